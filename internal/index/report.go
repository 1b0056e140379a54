package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/reelpipe/hindex/internal/chunk"
	hxerrors "github.com/reelpipe/hindex/internal/errors"
)

// Report summarizes one indexing run. It is written as JSON when the run is
// invoked with a report path; `by_file` maps each covered file to its chunk
// count so downstream tooling can display index coverage.
type Report struct {
	StartedAt     time.Time `json:"started_at"`
	DurationMS    int64     `json:"duration_ms"`
	FilesScanned  int       `json:"files_scanned"`
	FilesIndexed  int       `json:"files_indexed"`
	FilesSkipped  int       `json:"files_skipped"`
	FilesFailed   int       `json:"files_failed"`
	ChunksWritten int       `json:"chunks_written"`
	Oversized     int       `json:"chunks_oversized"`
	PointsDeleted int       `json:"points_deleted"`

	// Tokens is omitted when the run produced no chunks.
	Tokens *TokenStats `json:"tokens,omitempty"`

	ByFile  map[string]int `json:"by_file"`
	Skipped []FileNote     `json:"skipped,omitempty"`
	Failed  []FileNote     `json:"failed,omitempty"`
}

// FileNote records why a file was skipped or failed.
type FileNote struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// TokenStats describes the distribution of chunk token counts.
type TokenStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// Write persists the report as indented JSON, creating parent directories
// as needed. The write is atomic (temp file + rename).
func (r *Report) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return hxerrors.New(hxerrors.ErrCodeManifest,
			fmt.Sprintf("cannot create report directory for %s", path), err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return hxerrors.InternalError("cannot marshal index report", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return hxerrors.New(hxerrors.ErrCodeManifest,
			fmt.Sprintf("cannot write report file %s", path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return hxerrors.New(hxerrors.ErrCodeManifest,
			fmt.Sprintf("cannot write report file %s", path), err)
	}
	return nil
}

// reportBuilder accumulates per-file outcomes from concurrent workers.
type reportBuilder struct {
	mu        sync.Mutex
	started   time.Time
	scanned   int
	indexed   int
	byFile    map[string]int
	skipped   []FileNote
	failed    []FileNote
	tokens    []int
	oversized int
	deleted   int
}

func newReportBuilder(scanned int) *reportBuilder {
	return &reportBuilder{
		started: time.Now().UTC(),
		scanned: scanned,
		byFile:  make(map[string]int),
	}
}

func (b *reportBuilder) addIndexed(path string, chunks []*chunk.Chunk) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.indexed++
	b.byFile[path] = len(chunks)
	for _, c := range chunks {
		b.tokens = append(b.tokens, c.Tokens)
		if c.Oversized {
			b.oversized++
		}
	}
}

// addSkipped records a file left as is. Unchanged files keep their previous
// chunk count in by_file so coverage still reflects the whole collection.
func (b *reportBuilder) addSkipped(path, reason string, chunks int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.skipped = append(b.skipped, FileNote{Path: path, Reason: reason})
	b.byFile[path] = chunks
}

func (b *reportBuilder) addFailed(path string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed = append(b.failed, FileNote{Path: path, Reason: err.Error()})
}

func (b *reportBuilder) addDeleted(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted += n
}

func (b *reportBuilder) build() *Report {
	b.mu.Lock()
	defer b.mu.Unlock()

	skipped := append([]FileNote(nil), b.skipped...)
	failed := append([]FileNote(nil), b.failed...)
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Path < skipped[j].Path })
	sort.Slice(failed, func(i, j int) bool { return failed[i].Path < failed[j].Path })

	byFile := make(map[string]int, len(b.byFile))
	for path, n := range b.byFile {
		byFile[path] = n
	}

	return &Report{
		StartedAt:     b.started,
		DurationMS:    time.Since(b.started).Milliseconds(),
		FilesScanned:  b.scanned,
		FilesIndexed:  b.indexed,
		FilesSkipped:  len(skipped),
		FilesFailed:   len(failed),
		ChunksWritten: len(b.tokens),
		Oversized:     b.oversized,
		PointsDeleted: b.deleted,
		Tokens:        tokenStats(b.tokens),
		ByFile:        byFile,
		Skipped:       skipped,
		Failed:        failed,
	}
}

// tokenStats computes min/max/mean/p95 over chunk token counts, nil when
// the run produced no chunks. P95 uses the nearest-rank method.
func tokenStats(tokens []int) *TokenStats {
	if len(tokens) == 0 {
		return nil
	}
	sorted := append([]int(nil), tokens...)
	sort.Ints(sorted)
	sum := 0
	for _, t := range sorted {
		sum += t
	}
	rank := (len(sorted)*95 + 99) / 100
	return &TokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: float64(sum) / float64(len(sorted)),
		P95:  sorted[rank-1],
	}
}
