package hll

import "errors"

var (
	// ErrInvalidArgument covers out-of-range precision or epsilon values.
	ErrInvalidArgument = errors.New("hll: invalid argument")

	// ErrSizeMismatch is returned when a Bitmap's length doesn't match
	// the byte length required for the given precision.
	ErrSizeMismatch = errors.New("hll: bitmap size mismatch")
)
