package source

import (
	"fmt"
	"os"
	"path/filepath"

	hxerrors "github.com/reelpipe/hindex/internal/errors"
)

// Document is a fully loaded source file ready for chunking.
type Document struct {
	// Path is the absolute filesystem path.
	Path string
	// RelPath is the path relative to the scan root, forward slashes.
	// Chunk IDs derive from it, so it must be stable across machines.
	RelPath string
	// Format selects the chunker.
	Format Format
	// Content is the raw file content.
	Content []byte
}

// SourceName is the base file name, used for payload filtering.
func (d *Document) SourceName() string {
	return filepath.Base(d.RelPath)
}

// Load reads the file behind info into a Document.
func Load(info *FileInfo) (*Document, error) {
	content, err := os.ReadFile(info.AbsPath)
	if err != nil {
		return nil, hxerrors.SourceError(
			fmt.Sprintf("cannot read source file %s", info.Path), err)
	}
	return &Document{
		Path:    info.AbsPath,
		RelPath: filepath.ToSlash(info.Path),
		Format:  info.Format,
		Content: content,
	}, nil
}
