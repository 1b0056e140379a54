package ui

import (
	"sync"
	"time"
)

// speedSampleWindow is the minimum gap between speed samples. Sampling
// per event would be pure noise at high file rates.
const speedSampleWindow = 500 * time.Millisecond

// etaSmoothingFactor weights new ETA estimates against the previous one.
// Batch embedding latency varies a lot; raw estimates jump around.
const etaSmoothingFactor = 0.3

// speedSmoothingFactor weights new speed samples in the rolling average.
const speedSmoothingFactor = 0.2

// ProgressTracker aggregates run state for the renderers. It is safe for
// concurrent use; runner workers and the render loop both touch it.
type ProgressTracker struct {
	mu          sync.Mutex
	stage       Stage
	current     int
	total       int
	currentFile string
	startTime   time.Time
	stageStart  time.Time
	errCount    int
	warnCount   int

	lastETA time.Duration

	lastCurrent int
	lastSample  time.Time
	speed       float64
	avgSpeed    float64
	peakSpeed   float64
	samples     int
	spark       *Sparkline
}

// SpeedStats is a files-per-second snapshot.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a point-in-time snapshot of the run.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64 // 0.0 to 1.0
	ETA         time.Duration
	CurrentFile string
	ErrorCount  int
	WarnCount   int
	Speed       SpeedStats
}

// NewProgressTracker creates a tracker starting in the scanning stage.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		stage:      StageScanning,
		startTime:  now,
		stageStart: now,
		lastSample: now,
		spark:      NewSparkline(60),
	}
}

// SetStage transitions to a new stage and resets per-stage state.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = time.Now()
	p.lastETA = 0

	p.lastCurrent = 0
	p.lastSample = p.stageStart
	p.speed = 0
	p.avgSpeed = 0
	p.peakSpeed = 0
	p.samples = 0
	p.spark.Clear()
}

// Update records progress within the current stage.
func (p *ProgressTracker) Update(current int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if file != "" {
		p.currentFile = file
	}

	now := time.Now()
	elapsed := now.Sub(p.lastSample)
	if elapsed < speedSampleWindow {
		return
	}

	if delta := current - p.lastCurrent; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.speed = speed

		p.samples++
		if p.samples == 1 {
			p.avgSpeed = speed
		} else {
			p.avgSpeed = speedSmoothingFactor*speed + (1-speedSmoothingFactor)*p.avgSpeed
		}
		if speed > p.peakSpeed {
			p.peakSpeed = speed
		}
		p.spark.Add(speed)
	}

	p.lastCurrent = current
	p.lastSample = now
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnCount++
	} else {
		p.errCount++
	}
}

// Elapsed returns time since the tracker was created.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	return time.Since(p.startTime)
}

// Stats returns a snapshot of the current state. It takes the write lock
// because the ETA estimate feeds back into its own smoothing.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := 0.0
	if p.total > 0 {
		progress = float64(p.current) / float64(p.total)
		if progress > 1.0 {
			progress = 1.0
		}
	}

	return ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Progress:    progress,
		ETA:         p.smoothedETA(),
		CurrentFile: p.currentFile,
		ErrorCount:  p.errCount,
		WarnCount:   p.warnCount,
		Speed: SpeedStats{
			Current: p.speed,
			Avg:     p.avgSpeed,
			Peak:    p.peakSpeed,
		},
	}
}

// RenderSparkline renders the throughput sparkline at the given width.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.spark.Render(width)
}

// smoothedETA estimates remaining time from stage progress, smoothed
// exponentially against the previous estimate. Caller holds the lock.
func (p *ProgressTracker) smoothedETA() time.Duration {
	if p.current == 0 || p.total == 0 {
		return 0
	}

	elapsed := time.Since(p.stageStart)
	progress := float64(p.current) / float64(p.total)
	if progress <= 0 || progress >= 1.0 {
		return 0
	}

	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}

	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	p.lastETA = time.Duration(
		etaSmoothingFactor*float64(remaining) + (1-etaSmoothingFactor)*float64(p.lastETA))
	return p.lastETA
}
