// Package fs provides the filesystem seam used by the locking layer.
//
// The main types are:
//   - [FS]: interface for the filesystem operations [Locker] needs
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation wrapping [os]
//   - [Locker]/[Lock]: advisory, inode-verified file locking via flock(2)
//
// Components that need real file descriptors for syscalls (mmap, pread,
// pwrite, fstat) open raw descriptors with unix.Open directly - this package
// abstracts only the handful of operations [Locker] performs against a
// lock file, so tests can swap in a fake without touching the
// mmap-heavy bitmap code.
package fs

import (
	"os"
)

// File represents an open file descriptor.
//
// Satisfied by [os.File]. Fd() must return a descriptor usable with
// syscalls (flock) for the lifetime of the File.
type File interface {
	Close() error

	Fd() uintptr
	Stat() (os.FileInfo, error)
}

// FS defines the filesystem operations [Locker] needs to open and stat
// a lock file.
//
// All methods mirror their [os] package equivalents.
type FS interface {
	OpenFile(path string, flag int, perm os.FileMode) (File, error)
	MkdirAll(path string, perm os.FileMode) error
	Stat(path string) (os.FileInfo, error)
}

var _ File = (*os.File)(nil)
