package platform

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Metadata is the subset of source attributes carried onto a copy.
type Metadata struct {
	Mode    os.FileMode
	AccTime time.Time
	ModTime time.Time
}

// MetadataOf extracts Metadata from a source file's Lstat result.
func MetadataOf(info os.FileInfo) Metadata {
	return Metadata{
		Mode:    info.Mode(),
		AccTime: accessTime(info),
		ModTime: info.ModTime(),
	}
}

// ApplyMetadata sets permission bits and timestamps on path. Symlinks are
// not followed.
func ApplyMetadata(path string, md Metadata) error {
	if err := os.Chmod(path, md.Mode.Perm()|(md.Mode&(os.ModeSetuid|os.ModeSetgid|os.ModeSticky))); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	times := []unix.Timespec{
		unix.NsecToTimespec(md.AccTime.UnixNano()),
		unix.NsecToTimespec(md.ModTime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return fmt.Errorf("utimensat %s: %w", path, err)
	}
	return nil
}
