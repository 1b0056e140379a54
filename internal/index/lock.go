// Package index runs the chunk-embed-upsert pipeline over a scanned source
// tree, tracks per-file state in a manifest, and produces a run report.
package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	hxerrors "github.com/reelpipe/hindex/internal/errors"
)

// RunLock is a cross-process lock on the state directory. Two concurrent
// indexing runs over one manifest would interleave writes and race on
// skip-unchanged decisions, so the second run fails fast instead.
type RunLock struct {
	path  string
	flock *flock.Flock
}

// AcquireRunLock takes the lock at path without blocking. A held lock is
// ERR_204: the caller reports it and exits rather than waiting.
func AcquireRunLock(path string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, hxerrors.New(hxerrors.ErrCodeManifest,
			fmt.Sprintf("cannot create state directory for lock %s", path), err)
	}

	fl := flock.New(path)
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, hxerrors.New(hxerrors.ErrCodeManifest,
			fmt.Sprintf("cannot acquire lock %s", path), err)
	}
	if !acquired {
		return nil, hxerrors.New(hxerrors.ErrCodeIndexLocked,
			fmt.Sprintf("another indexing run holds %s", path), nil).
			WithSuggestion("wait for the other run to finish, or remove the lock file if it is stale")
	}

	return &RunLock{path: path, flock: fl}, nil
}

// Release unlocks. Safe to call on an already released lock.
func (l *RunLock) Release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	return l.flock.Unlock()
}

// Path returns the lock file location.
func (l *RunLock) Path() string {
	return l.path
}
