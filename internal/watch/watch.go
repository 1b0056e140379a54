// Package watch keeps an index current while the source tree changes.
//
// A Watcher tails the source root with fsnotify, coalesces event bursts
// through a debouncer, and emits batches of file events. The Service feeds
// those batches back into the index runner: changed files are re-indexed,
// deleted paths drop out of the collection.
package watch

import "time"

// Op is the kind of change an event reports.
type Op int

const (
	// OpCreate indicates a new file appeared.
	OpCreate Op = iota
	// OpModify indicates an existing file changed.
	OpModify
	// OpDelete indicates a file or directory went away.
	OpDelete
	// OpRename indicates a path was renamed away; the new name arrives as
	// a separate create.
	OpRename
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is one change under the watched root. Path is relative to the
// root with forward slashes.
type Event struct {
	Path string
	Op   Op
	Time time.Time
}

const (
	// DefaultWindow is how long a burst may settle before the coalesced
	// batch is emitted.
	DefaultWindow = 500 * time.Millisecond

	// DefaultBufferSize is the capacity of the batch channel.
	DefaultBufferSize = 256
)

// Options configures a Watcher.
type Options struct {
	// Window is the debounce window. Zero means DefaultWindow.
	Window time.Duration

	// BufferSize is the batch channel capacity. Zero means
	// DefaultBufferSize.
	BufferSize int

	// Ignore filters paths before debouncing. It is called with
	// root-relative slash paths; ignored directories are not watched at
	// all. Nil means nothing is ignored.
	Ignore func(relPath string, isDir bool) bool
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	return o
}
