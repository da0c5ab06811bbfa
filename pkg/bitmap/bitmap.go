// Package bitmap provides a bit-addressable byte buffer with three
// backing modes: anonymous (RAM only), shared (kernel-managed mmap), and
// persistent (anonymous RAM pages with manual, page-granular writeback).
//
// Bit order is big-endian within a byte: bit index i lives in byte i>>3
// at mask 1<<(7-(i&7)).
package bitmap

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Mode selects a Bitmap's backing store.
type Mode int

const (
	// Anonymous is RAM-only; never backed by a file. Flush is a no-op.
	Anonymous Mode = iota

	// Shared is mmap'd MAP_SHARED against an owned file descriptor.
	// Flush performs msync(MS_SYNC) then fsync.
	Shared

	// Persistent holds anonymous RAM pages plus an owned file descriptor.
	// On open the file contents are read fully into RAM; on flush the
	// whole buffer is written back page by page, then fsync'd.
	Persistent
)

const pageSize = 4096

// Options configures [Open].
type Options struct {
	// Mode selects the backing store.
	Mode Mode

	// Path is the backing file path. Required for Shared and Persistent,
	// ignored for Anonymous.
	Path string

	// Len is the bitmap length in bytes. For Anonymous it is the size to
	// allocate. For Shared/Persistent with Create it is the size to
	// truncate a newly created (or empty) file to. An existing file is
	// opened at its on-disk size: with Create, a non-zero size other than
	// Len fails with [ErrSizeMismatch]; without Create, Len must be
	// non-zero but is not compared to the file's size.
	Len int

	// Create creates the backing file (and parent directories) if it
	// does not already exist, truncated to Len. Ignored for Anonymous.
	Create bool
}

// Bitmap is a bit-addressable byte array with big-endian bit order within
// each byte.
type Bitmap struct {
	mode   Mode
	data   []byte
	fd     int // -1 for Anonymous
	length int
	dirty  bool
	closed bool
}

// Open opens or creates a Bitmap per opts.
//
// Possible errors: [ErrInvalidArgument] (len == 0), [ErrSizeMismatch]
// (creating but an existing file's size differs from Len), [ErrIO] (any
// OS-level failure).
func Open(opts Options) (*Bitmap, error) {
	if opts.Mode == Anonymous {
		return openAnonymous(opts.Len)
	}

	if opts.Path == "" {
		return nil, fmt.Errorf("path required for file-backed mode: %w", ErrInvalidArgument)
	}

	fd, length, err := openBackingFile(opts)
	if err != nil {
		return nil, err
	}

	switch opts.Mode {
	case Shared:
		return openShared(fd, length)
	case Persistent:
		return openPersistent(fd, length)
	default:
		_ = unix.Close(fd)
		return nil, fmt.Errorf("unknown mode %d: %w", opts.Mode, ErrInvalidArgument)
	}
}

func openAnonymous(length int) (*Bitmap, error) {
	if length == 0 {
		return nil, fmt.Errorf("len must be > 0: %w", ErrInvalidArgument)
	}

	data, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap anonymous pages: %w: %w", err, ErrIO)
	}

	return &Bitmap{mode: Anonymous, data: data, fd: -1, length: length}, nil
}

// openBackingFile resolves the file-backed open/create dance described by
// spec §4.1: open an existing file at its on-disk size, or create+truncate
// a missing one to Len.
func openBackingFile(opts Options) (fd int, length int, err error) {
	if opts.Len == 0 && !opts.Create {
		return 0, 0, fmt.Errorf("len must be > 0: %w", ErrInvalidArgument)
	}

	fd, openErr := unix.Open(opts.Path, unix.O_RDWR, 0)
	if openErr == nil {
		return finishOpenExisting(fd, opts)
	}

	if !errors.Is(openErr, unix.ENOENT) || !opts.Create {
		return 0, 0, fmt.Errorf("open %s: %w: %w", opts.Path, openErr, ErrIO)
	}

	if opts.Len == 0 {
		return 0, 0, fmt.Errorf("len must be > 0: %w", ErrInvalidArgument)
	}

	fd, createErr := unix.Open(opts.Path, unix.O_RDWR|unix.O_CREAT, 0o600)
	if createErr != nil {
		return 0, 0, fmt.Errorf("create %s: %w: %w", opts.Path, createErr, ErrIO)
	}

	if err := unix.Ftruncate(fd, int64(opts.Len)); err != nil {
		_ = unix.Close(fd)
		return 0, 0, fmt.Errorf("truncate %s: %w: %w", opts.Path, err, ErrIO)
	}

	return fd, opts.Len, nil
}

func finishOpenExisting(fd int, opts Options) (int, int, error) {
	var stat unix.Stat_t

	if err := unix.Fstat(fd, &stat); err != nil {
		_ = unix.Close(fd)
		return 0, 0, fmt.Errorf("stat %s: %w: %w", opts.Path, err, ErrIO)
	}

	size := int(stat.Size)

	if opts.Create && opts.Len != 0 && size != 0 && size != opts.Len {
		_ = unix.Close(fd)
		return 0, 0, fmt.Errorf("existing file size %d != requested %d: %w", size, opts.Len, ErrSizeMismatch)
	}

	if size == 0 && opts.Create {
		if err := unix.Ftruncate(fd, int64(opts.Len)); err != nil {
			_ = unix.Close(fd)
			return 0, 0, fmt.Errorf("truncate %s: %w: %w", opts.Path, err, ErrIO)
		}

		size = opts.Len
	}

	if size == 0 {
		_ = unix.Close(fd)
		return 0, 0, fmt.Errorf("file %s has zero length: %w", opts.Path, ErrInvalidArgument)
	}

	return fd, size, nil
}

func openShared(fd, length int) (*Bitmap, error) {
	data, err := unix.Mmap(fd, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap shared: %w: %w", err, ErrIO)
	}

	return &Bitmap{mode: Shared, data: data, fd: fd, length: length}, nil
}

func openPersistent(fd, length int) (*Bitmap, error) {
	data, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap anonymous pages: %w: %w", err, ErrIO)
	}

	if err := preadFull(fd, data); err != nil {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)
		return nil, fmt.Errorf("reading %d bytes into ram: %w: %w", length, err, ErrIO)
	}

	return &Bitmap{mode: Persistent, data: data, fd: fd, length: length}, nil
}

func preadFull(fd int, buf []byte) error {
	off := int64(0)
	for off < int64(len(buf)) {
		n, err := unix.Pread(fd, buf[off:], off)
		if err != nil {
			return err
		}

		if n == 0 {
			// Sparse/truncated file: remaining bytes stay zero, matching a
			// freshly ftruncate'd register file.
			return nil
		}

		off += int64(n)
	}

	return nil
}

// Len returns the bitmap length in bytes.
func (b *Bitmap) Len() int {
	return b.length
}

// Mode returns the bitmap's backing mode.
func (b *Bitmap) Mode() Mode {
	return b.mode
}

// GetBit reports whether bit i is set. i must be in [0, Len()*8).
func (b *Bitmap) GetBit(i uint64) bool {
	byteIdx := i >> 3
	mask := byte(1) << (7 - (i & 7))

	return b.data[byteIdx]&mask != 0
}

// SetBit sets bit i. i must be in [0, Len()*8).
func (b *Bitmap) SetBit(i uint64) {
	byteIdx := i >> 3
	mask := byte(1) << (7 - (i & 7))

	b.data[byteIdx] |= mask
	b.dirty = true
}

// ClearBit clears bit i. i must be in [0, Len()*8).
func (b *Bitmap) ClearBit(i uint64) {
	byteIdx := i >> 3
	mask := byte(1) << (7 - (i & 7))

	b.data[byteIdx] &^= mask
	b.dirty = true
}

// Bytes returns the backing buffer directly. Callers that write through
// it must call [Bitmap.MarkDirty] themselves.
func (b *Bitmap) Bytes() []byte {
	return b.data
}

// MarkDirty records that the backing buffer was mutated outside of
// SetBit/ClearBit (e.g. bulk register repacking) and needs a writeback on
// the next Flush.
func (b *Bitmap) MarkDirty() {
	b.dirty = true
}

// Flush persists pending mutations per the bitmap's mode.
//
// Anonymous: no-op. Shared: msync(MS_SYNC) + fsync. Persistent: writes the
// full buffer back in page-sized chunks (last page possibly short), then
// fsync.
func (b *Bitmap) Flush() error {
	if b.closed {
		return ErrClosed
	}

	switch b.mode {
	case Anonymous:
		return nil
	case Shared:
		return b.flushShared()
	case Persistent:
		return b.flushPersistent()
	default:
		return fmt.Errorf("unknown mode %d: %w", b.mode, ErrInvalidArgument)
	}
}

func (b *Bitmap) flushShared() error {
	if !b.dirty {
		return nil
	}

	if err := unix.Msync(b.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync: %w: %w", err, ErrIO)
	}

	if err := unix.Fsync(b.fd); err != nil {
		return fmt.Errorf("fsync: %w: %w", err, ErrIO)
	}

	b.dirty = false

	return nil
}

func (b *Bitmap) flushPersistent() error {
	if !b.dirty {
		return nil
	}

	for off := 0; off < len(b.data); off += pageSize {
		end := off + pageSize
		if end > len(b.data) {
			end = len(b.data)
		}

		if _, err := unix.Pwrite(b.fd, b.data[off:end], int64(off)); err != nil {
			return fmt.Errorf("pwrite at %d: %w: %w", off, err, ErrIO)
		}
	}

	if err := unix.Fsync(b.fd); err != nil {
		return fmt.Errorf("fsync: %w: %w", err, ErrIO)
	}

	b.dirty = false

	return nil
}

// Close flushes, unmaps, and closes the descriptor. The bitmap counts as
// closed after the first Close even if that call returned an error, and
// every later Close returns [ErrClosed]; callers must not double-close.
func (b *Bitmap) Close() error {
	if b.closed {
		return ErrClosed
	}

	flushErr := b.Flush()

	unmapErr := unix.Munmap(b.data)
	b.data = nil

	var closeErr error
	if b.fd >= 0 {
		closeErr = unix.Close(b.fd)
		b.fd = -1
	}

	b.closed = true

	if flushErr != nil {
		return flushErr
	}

	if unmapErr != nil {
		return fmt.Errorf("munmap: %w: %w", unmapErr, ErrIO)
	}

	if closeErr != nil {
		return fmt.Errorf("close fd: %w: %w", closeErr, ErrIO)
	}

	return nil
}
