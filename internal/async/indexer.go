package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrBusy is returned by Trigger while a previous run is still active.
var ErrBusy = errors.New("an index run is already in progress")

// RunFunc does the indexing work for one triggered run, reporting through
// p as it goes.
type RunFunc func(ctx context.Context, p *Progress) error

// Indexer runs at most one indexing pass at a time in a background
// goroutine. It keeps the last run's progress, so status polls keep
// working after the run ends.
type Indexer struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	last    *Progress
}

// NewIndexer creates an idle Indexer.
func NewIndexer() *Indexer {
	return &Indexer{}
}

// Trigger starts fn in the background and returns immediately. The run
// inherits ctx, so cancelling it cancels the run. Returns ErrBusy while
// a previous run is still active.
func (x *Indexer) Trigger(ctx context.Context, fn RunFunc) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.running {
		return ErrBusy
	}

	runCtx, cancel := context.WithCancel(ctx)
	p := NewProgress()
	done := make(chan struct{})

	x.running = true
	x.cancel = cancel
	x.done = done
	x.last = p

	go x.run(runCtx, cancel, fn, p, done)
	return nil
}

func (x *Indexer) run(ctx context.Context, cancel context.CancelFunc, fn RunFunc, p *Progress, done chan struct{}) {
	defer close(done)
	defer cancel()

	// The progress must reach its terminal state before running flips
	// back, or a status poll could see a finished indexer with a
	// "running" snapshot.
	if err := fn(ctx, p); err != nil {
		p.fail(err)
		slog.Warn("background_index_failed", slog.String("error", err.Error()))
	} else {
		p.finish()
		snap := p.Snapshot()
		slog.Info("background_index_done",
			slog.Int("files", snap.FilesDone),
			slog.Int("failed", snap.FilesFailed))
	}

	x.mu.Lock()
	x.running = false
	x.mu.Unlock()
}

// Status returns the latest run's snapshot, or an idle one before any
// run has been triggered.
func (x *Indexer) Status() Snapshot {
	x.mu.Lock()
	last := x.last
	x.mu.Unlock()

	if last == nil {
		return Snapshot{Status: StatusIdle}
	}
	return last.Snapshot()
}

// Running reports whether a run is active.
func (x *Indexer) Running() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.running
}

// Wait blocks until the active run finishes. It returns immediately when
// nothing is running.
func (x *Indexer) Wait() {
	x.mu.Lock()
	done := x.done
	x.mu.Unlock()

	if done == nil {
		return
	}
	<-done
}

// Stop cancels the active run, if any, and waits for it to wind down.
func (x *Indexer) Stop() {
	x.mu.Lock()
	if !x.running {
		x.mu.Unlock()
		return
	}
	cancel, done := x.cancel, x.done
	x.mu.Unlock()

	cancel()
	<-done
}
