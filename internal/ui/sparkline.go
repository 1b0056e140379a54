package ui

import "strings"

// sparklineChars are the block characters used for the chart, lowest to
// highest.
var sparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline is a fixed-capacity ring of samples rendered as a block
// character chart, oldest on the left.
type Sparkline struct {
	samples []float64
	head    int
	count   int
	max     float64
}

// NewSparkline creates a sparkline holding up to capacity samples.
func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = 60
	}
	return &Sparkline{samples: make([]float64, capacity)}
}

// Add appends a sample, evicting the oldest when full.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % len(s.samples)
	s.count++

	if value > s.max {
		s.max = value
	}
	// The evicted sample may have been the max; rescan once per lap.
	if s.count%len(s.samples) == 0 {
		s.rescanMax()
	}
}

// Render returns the most recent samples as a chart exactly width
// characters wide, padded with spaces while the ring is filling.
func (s *Sparkline) Render(width int) string {
	capacity := len(s.samples)
	if width <= 0 || width > capacity {
		width = capacity
	}

	if s.count == 0 {
		return strings.Repeat(" ", width)
	}
	if s.max <= 0 {
		s.rescanMax()
	}

	held := s.count
	if held > capacity {
		held = capacity
	}
	shown := held
	if shown > width {
		shown = width
	}

	// Index of the oldest sample to draw.
	start := s.head - shown
	if start < 0 {
		start += capacity
	}

	var sb strings.Builder
	sb.Grow(width * 3)
	for i := 0; i < shown; i++ {
		value := s.samples[(start+i)%capacity]
		idx := int(value / s.max * float64(len(sparklineChars)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparklineChars) {
			idx = len(sparklineChars) - 1
		}
		sb.WriteRune(sparklineChars[idx])
	}
	for i := shown; i < width; i++ {
		sb.WriteRune(' ')
	}
	return sb.String()
}

// Clear resets the sparkline.
func (s *Sparkline) Clear() {
	for i := range s.samples {
		s.samples[i] = 0
	}
	s.head = 0
	s.count = 0
	s.max = 0
}

func (s *Sparkline) rescanMax() {
	s.max = 0
	for _, v := range s.samples {
		if v > s.max {
			s.max = v
		}
	}
	if s.max < 1 {
		s.max = 1
	}
}
