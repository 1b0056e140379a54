// Package output renders CLI status lines and indexing progress. On a
// terminal the progress bar redraws in place; piped or CI output falls
// back to one plain line per update so logs stay readable.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// barWidth is the character width of the in-place progress bar.
const barWidth = 30

// msgWidth is the column the progress message is fitted to, so each
// redraw fully overwrites the previous line.
const msgWidth = 44

// Writer provides formatted output for the CLI. Methods are safe for
// concurrent use; the indexing workers report progress in parallel.
type Writer struct {
	mu           sync.Mutex
	out          io.Writer
	interactive  bool
	progressOpen bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithInteractive overrides terminal detection.
func WithInteractive(on bool) Option {
	return func(w *Writer) { w.interactive = on }
}

// New creates a Writer. The in-place progress bar is used only when out
// is a terminal.
func New(out io.Writer, opts ...Option) *Writer {
	w := &Writer{
		out:         out,
		interactive: isTerminal(out),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Status prints a message with an icon. Write errors are ignored, this
// is console output.
func (w *Writer) Status(icon, msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closeProgress()
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closeProgress()
	_, _ = fmt.Fprintln(w.out)
}

// Progress reports progress through a counted run. Interactive output
// redraws one bar line; plain output emits a numbered line per call.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.interactive {
		_, _ = fmt.Fprintf(w.out, "[%d/%d] %s\n", current, total, msg)
		return
	}

	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, barWidth)
	_, _ = fmt.Fprintf(w.out, "\r[%s] %3.0f%% %s", bar, pct, fit(msg, msgWidth))
	w.progressOpen = true

	if current >= total {
		w.closeProgress()
	}
}

// ProgressDone terminates an in-place progress line, if one is open.
func (w *Writer) ProgressDone() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closeProgress()
}

// closeProgress must be called with the mutex held.
func (w *Writer) closeProgress() {
	if w.progressOpen {
		_, _ = fmt.Fprintln(w.out)
		w.progressOpen = false
	}
}

// fit pads or truncates msg to width so a redraw covers the previous
// message entirely. Long paths keep their tail, the most specific part.
func fit(msg string, width int) string {
	runes := []rune(msg)
	if len(runes) > width {
		return "…" + string(runes[len(runes)-width+1:])
	}
	return msg + strings.Repeat(" ", width-len(runes))
}

// renderProgressBar creates a text progress bar.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))

	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
