// Package async runs an index pass in the background and tracks its
// progress, so serve mode can trigger reindexing without blocking the
// request that asked for it.
package async

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a background run.
type Status string

const (
	// StatusIdle means no run has been triggered yet.
	StatusIdle Status = "idle"
	// StatusRunning means a run is in progress.
	StatusRunning Status = "running"
	// StatusDone means the last run completed.
	StatusDone Status = "done"
	// StatusFailed means the last run returned an error. Cancellation
	// counts as failure; the error says so.
	StatusFailed Status = "failed"
)

// Snapshot is a point-in-time copy of a run's progress, shaped for the
// JSON status endpoint.
type Snapshot struct {
	Status         Status  `json:"status"`
	FilesTotal     int     `json:"files_total"`
	FilesDone      int     `json:"files_done"`
	FilesFailed    int     `json:"files_failed,omitempty"`
	CurrentFile    string  `json:"current_file,omitempty"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	Error          string  `json:"error,omitempty"`
}

// Progress tracks one run. Update and FileFailed match the index runner's
// callback signatures, so they wire in directly. Safe for concurrent use.
type Progress struct {
	mu sync.RWMutex

	status     Status
	total      int
	done       int
	failed     int
	current    string
	startedAt  time.Time
	finishedAt time.Time
	err        string
}

// NewProgress creates a tracker for a run starting now.
func NewProgress() *Progress {
	return &Progress{
		status:    StatusRunning,
		startedAt: time.Now(),
	}
}

// SetTotal records the file count as soon as the scan finishes, before
// the first file completes.
func (p *Progress) SetTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
}

// Update records one completed file.
func (p *Progress) Update(done, total int, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = done
	p.total = total
	p.current = path
}

// FileFailed counts one per-file failure. Failed files still count as
// done in Update; this tracks how many of them went wrong.
func (p *Progress) FileFailed(path string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failed++
}

// finish marks the run complete and freezes the elapsed time.
func (p *Progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusDone
	p.finishedAt = time.Now()
	p.current = ""
}

// fail marks the run failed.
func (p *Progress) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusFailed
	p.finishedAt = time.Now()
	p.err = err.Error()
}

// Snapshot returns a copy of the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.total > 0 {
		pct = float64(p.done) / float64(p.total) * 100
	}

	elapsed := time.Since(p.startedAt)
	if !p.finishedAt.IsZero() {
		elapsed = p.finishedAt.Sub(p.startedAt)
	}

	return Snapshot{
		Status:         p.status,
		FilesTotal:     p.total,
		FilesDone:      p.done,
		FilesFailed:    p.failed,
		CurrentFile:    p.current,
		ProgressPct:    pct,
		ElapsedSeconds: int(elapsed.Seconds()),
		Error:          p.err,
	}
}
