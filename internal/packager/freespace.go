package packager

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"tvship/internal/services"
)

// ensureFreeSpace creates the staging directory and verifies its filesystem
// has room for the packaging output before the external tool runs.
func (a *Adapter) ensureFreeSpace() error {
	dir := a.cfg.Paths.StagingDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	minFree := uint64(a.cfg.Packager.MinFreeMiB) * 1024 * 1024
	if minFree == 0 {
		return nil
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return fmt.Errorf("statfs %s: %w", dir, err)
	}
	available := stat.Bavail * uint64(stat.Bsize)
	if available < minFree {
		return services.Wrap(services.ErrPackagingFailed, "package", "preflight",
			fmt.Sprintf("staging filesystem has %d MiB free, need %d MiB", available/(1024*1024), a.cfg.Packager.MinFreeMiB), nil)
	}
	return nil
}
