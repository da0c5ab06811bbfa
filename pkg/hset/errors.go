package hset

import "errors"

var (
	// ErrInvalidArgument covers malformed config.ini values. Set names
	// are not validated.
	ErrInvalidArgument = errors.New("hset: invalid argument")

	// ErrIO wraps an OS-level failure opening, reading, or writing a
	// set's directory, config.ini, or registers.mmap.
	ErrIO = errors.New("hset: io error")

	// ErrFaultIn wraps a failed proxied-to-resident transition; the
	// underlying cause (ErrIO, bitmap.ErrSizeMismatch, ...) is wrapped
	// beneath it.
	ErrFaultIn = errors.New("hset: fault-in failed")

	// ErrCorrupt is returned by faultIn when an on-disk register file's
	// size does not match the byte length implied by the set's
	// persisted precision. Refusing to open is the safer of the two
	// documented behaviors for this mismatch.
	ErrCorrupt = errors.New("hset: register file size mismatch")
)
