// Package profiling captures pprof data for slow indexing runs.
package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Session bundles the profiles requested for one command invocation. Paths
// left empty are not captured. Start begins CPU and trace capture; Stop
// flushes both and writes the heap snapshot last, so it reflects the state
// at the end of the command.
type Session struct {
	CPUPath   string
	HeapPath  string
	TracePath string

	cpuFile   *os.File
	traceFile *os.File
}

// Active reports whether any profile was requested.
func (s *Session) Active() bool {
	return s.CPUPath != "" || s.HeapPath != "" || s.TracePath != ""
}

// Start begins the requested captures. On error, anything already started
// is stopped again.
func (s *Session) Start() error {
	if s.CPUPath != "" {
		f, err := os.Create(s.CPUPath)
		if err != nil {
			return fmt.Errorf("create cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("start cpu profile: %w", err)
		}
		s.cpuFile = f
	}

	if s.TracePath != "" {
		f, err := os.Create(s.TracePath)
		if err != nil {
			s.stopCPU()
			return fmt.Errorf("create trace file: %w", err)
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			s.stopCPU()
			return fmt.Errorf("start trace: %w", err)
		}
		s.traceFile = f
	}

	return nil
}

// Stop flushes all captures. Safe to call when Start was never called.
func (s *Session) Stop() error {
	s.stopCPU()

	if s.traceFile != nil {
		trace.Stop()
		_ = s.traceFile.Close()
		s.traceFile = nil
	}

	if s.HeapPath != "" {
		if err := writeHeap(s.HeapPath); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) stopCPU() {
	if s.cpuFile == nil {
		return
	}
	pprof.StopCPUProfile()
	_ = s.cpuFile.Close()
	s.cpuFile = nil
}

// writeHeap snapshots live allocations, forcing a GC first so the profile
// shows retained memory rather than garbage.
func writeHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create heap profile: %w", err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()

	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("write heap profile: %w", err)
	}
	return nil
}
