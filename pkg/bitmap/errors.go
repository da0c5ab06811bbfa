package bitmap

import "errors"

// Error classification. Callers classify with [errors.Is].
var (
	// ErrInvalidArgument covers zero-length bitmaps, a missing path for a
	// file-backed mode, and an unknown mode. Bit indices are not checked.
	ErrInvalidArgument = errors.New("bitmap: invalid argument")

	// ErrSizeMismatch is returned by [Open] when creating a file that
	// already exists with a non-zero size different from the requested
	// length.
	ErrSizeMismatch = errors.New("bitmap: size mismatch")

	// ErrIO wraps any OS-level I/O failure (open, mmap, msync, fsync,
	// pread, pwrite, ftruncate).
	ErrIO = errors.New("bitmap: io error")

	// ErrClosed is returned by Flush and Close on a bitmap that has
	// already been closed.
	ErrClosed = errors.New("bitmap: closed")
)
