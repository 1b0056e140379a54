package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.hindex/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".hindex", "logs")
	}
	return filepath.Join(home, ".hindex", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "hindex.log")
}
