package preflight

import (
	"fmt"
	"syscall"
)

const (
	// minStateDiskBytes is the free-space floor for the state directory.
	minStateDiskBytes = 100 * 1024 * 1024

	// minFileDescriptors is the open-file floor for concurrent indexing.
	minFileDescriptors = 256
)

// CheckDiskSpace warns when the state directory's filesystem is nearly
// full. The manifest and reports are small, so this never fails hard.
func (c *Checker) CheckDiskSpace() Result {
	result := Result{Name: "disk_space", Required: false}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(c.cfg.Index.StateDir, &stat); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot check free space: %v", err)
		return result
	}

	free := stat.Bavail * uint64(stat.Bsize)
	if free < minStateDiskBytes {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s free (recommended: at least %s)",
			formatBytes(free), formatBytes(minStateDiskBytes))
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s free", formatBytes(free))
	return result
}

// CheckFileDescriptors warns when the open-file limit is too low for the
// indexing worker pool.
func (c *Checker) CheckFileDescriptors() Result {
	result := Result{Name: "file_descriptors", Required: false}

	var rl syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rl); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot read limit: %v", err)
		return result
	}

	if rl.Cur < minFileDescriptors {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d open files allowed (recommended: at least %d)",
			rl.Cur, minFileDescriptors)
		result.Details = "raise it with ulimit -n"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d open files allowed", rl.Cur)
	return result
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
