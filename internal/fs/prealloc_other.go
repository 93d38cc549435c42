//go:build !linux

package fs

// Preallocate sizes f to size bytes. Only linux reserves blocks up front.
func Preallocate(f File, size int64) error {
	return f.Truncate(size)
}

// AdviseRandom is a no-op outside linux.
func AdviseRandom(File) error {
	return nil
}
