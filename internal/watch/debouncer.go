package watch

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// debouncer coalesces bursts of events per path so an editor save or a git
// checkout does not trigger several re-index passes. Within one window:
//
//	create then modify -> create
//	create then delete -> dropped
//	modify then delete -> delete
//	delete then create -> modify (the file was replaced)
type debouncer struct {
	window time.Duration
	out    chan []Event

	mu      sync.Mutex
	pending map[string]*pendingEvent
	timer   *time.Timer
	stopped bool
}

// pendingEvent keeps the first operation seen for a path; the merge rules
// key off it even as the visible event changes.
type pendingEvent struct {
	event Event
	first Op
}

func newDebouncer(window time.Duration, buffer int) *debouncer {
	return &debouncer{
		window:  window,
		out:     make(chan []Event, buffer),
		pending: make(map[string]*pendingEvent),
	}
}

// add records an event, merging it with any pending event for the same
// path, and re-arms the flush timer.
func (d *debouncer) add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if p, ok := d.pending[ev.Path]; ok {
		merged, keep := merge(p.first, p.event, ev)
		if !keep {
			delete(d.pending, ev.Path)
		} else {
			p.event = merged
		}
	} else {
		d.pending[ev.Path] = &pendingEvent{event: ev, first: ev.Op}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// merge applies the coalescing rules. keep=false drops the pending entry
// entirely.
func merge(first Op, current, next Event) (Event, bool) {
	switch first {
	case OpCreate:
		switch next.Op {
		case OpModify:
			return current, true
		case OpDelete:
			return Event{}, false
		}
	case OpDelete:
		if next.Op == OpCreate {
			next.Op = OpModify
			return next, true
		}
	}
	return next, true
}

// flush emits everything pending as one batch, sorted by path so consumers
// see a stable order.
func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]Event, 0, len(d.pending))
	for _, p := range d.pending {
		batch = append(batch, p.event)
	}
	d.pending = make(map[string]*pendingEvent)

	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

	select {
	case d.out <- batch:
	default:
		slog.Warn("watch_batch_dropped", slog.Int("events", len(batch)))
	}
}

// output returns the batch channel. It closes on stop.
func (d *debouncer) output() <-chan []Event {
	return d.out
}

// stop halts the timer and closes the output channel. Safe to call more
// than once.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}
