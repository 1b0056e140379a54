package source

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/reelpipe/hindex/internal/ignore"
)

// Scanner discovers indexable files under a source root.
type Scanner struct{}

// NewScanner creates a Scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Scan walks the source root and streams indexable files over the returned
// channel. The channel closes when the walk finishes or ctx is cancelled.
// A .hindexignore file at the root prunes the walk with gitignore syntax,
// on top of the built-in and configured exclude patterns.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) (<-chan ScanResult, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}

	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve source root: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root is not a directory: %s", absRoot)
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	rules, err := ignore.Load(filepath.Join(absRoot, ignore.FileName))
	if err != nil {
		return nil, err
	}
	if n := rules.Len(); n > 0 {
		slog.Debug("ignore_rules_loaded",
			slog.String("root", absRoot),
			slog.Int("rules", n))
	}

	results := make(chan ScanResult, 64)

	go func() {
		defer close(results)
		s.walk(ctx, absRoot, opts, rules, maxFileSize, results)
	}()

	return results, nil
}

// StatFile builds the FileInfo for a single path under the scan root,
// applying the same selection rules as Scan. It returns (nil, nil) when the
// path exists but is not indexable, and the stat error when the path is
// gone, so watch mode can tell "ignore" apart from "deleted".
func (s *Scanner) StatFile(opts *ScanOptions, relPath string) (*FileInfo, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}
	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve source root: %w", err)
	}

	rel := filepath.FromSlash(relPath)
	absPath := filepath.Join(absRoot, rel)

	format, ok := DetectFormat(rel)
	if !ok {
		return nil, nil
	}
	if Excluded(relPath, false, opts.ExcludePatterns) {
		return nil, nil
	}
	rules, err := ignore.Load(filepath.Join(absRoot, ignore.FileName))
	if err != nil {
		return nil, err
	}
	if rules.Match(relPath, false) {
		return nil, nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, nil
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if info.Size() > maxFileSize {
		return nil, nil
	}
	if isBinaryFile(absPath) {
		return nil, nil
	}

	return &FileInfo{
		Path:    filepath.ToSlash(rel),
		AbsPath: absPath,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Format:  format,
	}, nil
}

// Collect drains a scan into a slice sorted by relative path, so runs
// process files in a stable order.
func (s *Scanner) Collect(ctx context.Context, opts *ScanOptions) ([]*FileInfo, error) {
	ch, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var files []*FileInfo
	for res := range ch {
		if res.Error != nil {
			return nil, res.Error
		}
		files = append(files, res.File)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, opts *ScanOptions, rules *ignore.Matcher, maxFileSize int64, results chan<- ScanResult) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // skip unreadable entries
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}

		if d.IsDir() {
			if shouldExcludeDir(relPath, opts.ExcludePatterns) {
				return filepath.SkipDir
			}
			if rules.Match(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}

		format, ok := DetectFormat(relPath)
		if !ok {
			return nil
		}

		if shouldExcludeFile(relPath, opts.ExcludePatterns) {
			return nil
		}
		if rules.Match(relPath, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxFileSize {
			return nil
		}

		if isBinaryFile(path) {
			return nil
		}

		file := &FileInfo{
			Path:    filepath.ToSlash(relPath),
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Format:  format,
		}

		select {
		case results <- ScanResult{File: file}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- ScanResult{Error: err}:
		case <-ctx.Done():
		}
	}
}

// defaultExcludeDirs are never scanned.
var defaultExcludeDirs = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
}

// sensitiveFilePatterns are never indexed regardless of extension.
var sensitiveFilePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*credentials*",
	"*secrets*",
	"*password*",
}

// Excluded reports whether relPath falls under the built-in or custom
// exclude patterns. For files the parent directories are checked too, so a
// file inside an excluded directory counts as excluded.
func Excluded(relPath string, isDir bool, patterns []string) bool {
	rel := filepath.FromSlash(relPath)
	if isDir {
		return shouldExcludeDir(rel, patterns)
	}
	for dir := filepath.Dir(rel); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		if shouldExcludeDir(dir, patterns) {
			return true
		}
	}
	return shouldExcludeFile(rel, patterns)
}

func shouldExcludeDir(relPath string, custom []string) bool {
	for _, pattern := range defaultExcludeDirs {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	for _, pattern := range custom {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

func shouldExcludeFile(relPath string, custom []string) bool {
	baseName := filepath.Base(relPath)
	for _, pattern := range sensitiveFilePatterns {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	for _, pattern := range custom {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	return false
}

// matchDirPattern matches a directory path against **/name/**, name/**, and
// exact-prefix patterns.
func matchDirPattern(relPath, pattern string) bool {
	if strings.HasPrefix(pattern, "**/") {
		component := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		for _, part := range strings.Split(relPath, string(filepath.Separator)) {
			if part == component {
				return true
			}
		}
		return false
	}

	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return relPath == prefix || strings.HasPrefix(relPath, prefix+string(filepath.Separator))
	}

	return relPath == pattern || strings.HasPrefix(relPath, pattern+string(filepath.Separator))
}

// matchFilePattern matches a file against dir/**, **/*.ext, *middle*,
// prefix*, *suffix, and exact patterns.
func matchFilePattern(baseName, relPath, pattern string) bool {
	if strings.HasSuffix(pattern, "/**") && !strings.HasPrefix(pattern, "**/") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return strings.HasPrefix(relPath, prefix+string(filepath.Separator))
	}

	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if strings.HasPrefix(suffix, "*.") {
			return strings.HasSuffix(baseName, strings.TrimPrefix(suffix, "*"))
		}
		return matchDirPattern(relPath, pattern)
	}

	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 1 {
		middle := strings.TrimSuffix(strings.TrimPrefix(pattern, "*"), "*")
		return strings.Contains(strings.ToLower(baseName), strings.ToLower(middle))
	}

	if strings.HasPrefix(pattern, ".") && strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(baseName, strings.TrimSuffix(pattern, "*"))
	}

	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(baseName, strings.TrimPrefix(pattern, "*"))
	}

	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(baseName, strings.TrimSuffix(pattern, "*"))
	}

	return baseName == pattern
}

// isBinaryFile sniffs the first 512 bytes for null bytes.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil {
		return false
	}
	return bytes.Contains(buf[:n], []byte{0})
}
