package ui

import "github.com/charmbracelet/lipgloss"

// Color palette. One warm accent color, grays for structure.
const (
	ColorAmber    = "214" // primary accent
	ColorAmberDim = "136" // dimmed accent for secondary emphasis
	ColorWhite    = "255" // headers
	ColorGray     = "245" // labels, secondary text
	ColorDarkGray = "238" // borders, separators
	ColorRed      = "196" // errors
	ColorYellow   = "220" // warnings
)

// Styles holds the lipgloss styles used by the dashboard.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Active  lipgloss.Style
	Label   lipgloss.Style
	Speed   lipgloss.Style
	Spark   lipgloss.Style
	Border  lipgloss.Style
}

// DefaultStyles returns the colored style set.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAmber)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAmber)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Active:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAmber)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Speed:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Spark:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAmber)),
		Border:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
	}
}

// NoColorStyles returns an unstyled set for NO_COLOR runs.
func NoColorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
		Active:  lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
		Speed:   lipgloss.NewStyle(),
		Spark:   lipgloss.NewStyle(),
		Border:  lipgloss.NewStyle(),
	}
}

// GetStyles returns the style set for the color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
