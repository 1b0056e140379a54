// Package source discovers and loads indexable documents from a source
// directory. It streams discovered files over a channel, skipping excluded
// paths, oversized files, binaries, and anything that looks like a secret.
package source

import (
	"path/filepath"
	"strings"
	"time"
)

// Format classifies how a document gets chunked.
type Format string

const (
	// FormatProse is free text split into paragraph/sentence windows.
	FormatProse Format = "prose"
	// FormatCSV is tabular data chunked one row at a time.
	FormatCSV Format = "csv"
	// FormatJSON is an array of flat records chunked one object at a time.
	FormatJSON Format = "json"
)

// FileInfo describes a discovered source file.
type FileInfo struct {
	Path    string    // Relative to the scan root, forward slashes
	AbsPath string    // Absolute path
	Size    int64     // Size in bytes
	ModTime time.Time // Last modification time
	Format  Format    // prose, csv, json
}

// ScanOptions configures a scan.
type ScanOptions struct {
	// RootDir is the directory to scan.
	RootDir string

	// ExcludePatterns lists extra glob patterns to skip.
	ExcludePatterns []string

	// MaxFileSize caps file size in bytes (0 = 10MB default).
	MaxFileSize int64

	// FollowSymlinks enables following symbolic links (default: false).
	FollowSymlinks bool
}

// ScanResult is one item from the scan channel.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// DefaultMaxFileSize is the default maximum file size (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// formatByExtension maps indexable extensions to their format.
var formatByExtension = map[string]Format{
	".md":   FormatProse,
	".mdx":  FormatProse,
	".txt":  FormatProse,
	".csv":  FormatCSV,
	".json": FormatJSON,
}

// DetectFormat returns the chunking format for a path, or false when the
// extension is not indexable.
func DetectFormat(path string) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := formatByExtension[ext]
	return f, ok
}

// IsMarkdown reports whether the path is a markdown source, which gets a
// document title extracted from its first heading.
func IsMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".mdx"
}
