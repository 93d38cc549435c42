//go:build linux

package fs

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Preallocate reserves size bytes for f so later WriteAt calls into the
// range cannot fail with ENOSPC. Filesystems without fallocate support fall
// back to a sparse Truncate.
func Preallocate(f File, size int64) error {
	if size <= 0 {
		return f.Truncate(size)
	}
	err := unix.Fallocate(int(f.Fd()), 0, 0, size)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EINVAL) {
		return f.Truncate(size)
	}
	return err
}

// AdviseRandom hints the kernel that f is accessed randomly.
func AdviseRandom(f File) error {
	return unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_RANDOM)
}
