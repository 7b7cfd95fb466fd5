// Package pathutil provides the directory-size and mount-status primitives
// the disk inventory and unit scanner build on.
package pathutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// DirSize recursively sums the apparent size of every regular file under
// root. Permission-denied or vanished entries are skipped silently, per
// the scanner's tolerance contract.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Exists reports whether path exists (any type), without following the
// usual "err == nil" idiom at every call site.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// MountStatus describes the capacity/usage of a mounted filesystem.
type MountStatus struct {
	Mounted    bool
	TotalBytes int64
	FreeBytes  int64
	UsedBytes  int64
}

// Statfs reports mount status for path using unix.Statfs. A path that
// doesn't exist or isn't a directory yields Mounted=false and no error.
// Any existing directory reports Mounted=true with the capacity of the
// filesystem holding it, whether or not it is a separate mount point;
// Statfs does not call IsSeparateMount.
func Statfs(path string) (MountStatus, error) {
	if !IsDir(path) {
		return MountStatus{}, nil
	}

	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENODEV) {
			return MountStatus{}, nil
		}
		return MountStatus{}, err
	}

	blockSize := int64(st.Bsize)
	total := int64(st.Blocks) * blockSize
	free := int64(st.Bavail) * blockSize
	used := total - int64(st.Bfree)*blockSize
	if used < 0 {
		used = 0
	}

	return MountStatus{
		Mounted:    true,
		TotalBytes: total,
		FreeBytes:  free,
		UsedBytes:  used,
	}, nil
}

// IsSeparateMount reports whether path is mounted on a different device
// than its parent directory — used to tell a genuinely mounted disk apart
// from a plain empty directory left behind at the mount point.
func IsSeparateMount(path string) (bool, error) {
	parent := filepath.Dir(path)

	var pst, st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, err
	}
	if err := unix.Stat(parent, &pst); err != nil {
		return false, err
	}
	return st.Dev != pst.Dev, nil
}
