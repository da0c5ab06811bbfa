package hllconfig

import "errors"

var (
	// ErrInvalidArgument covers malformed or out-of-range config fields.
	ErrInvalidArgument = errors.New("hllconfig: invalid argument")

	// ErrIO wraps a failure to read or parse a configuration file.
	ErrIO = errors.New("hllconfig: io error")
)
