package setmgr

import "errors"

var (
	// ErrNotFound is returned when a named set is not in the directory.
	ErrNotFound = errors.New("setmgr: not found")

	// ErrAlreadyExists is returned by Create when an active set of the
	// same name already exists.
	ErrAlreadyExists = errors.New("setmgr: already exists")

	// ErrDeleteInProgress is returned by Create when a wrapper for the
	// name exists but is inactive, or the name is in the pending-delete
	// set populated during a vacuum swap.
	ErrDeleteInProgress = errors.New("setmgr: delete in progress")

	// ErrNotProxied is returned by Clear when the named set is
	// currently resident.
	ErrNotProxied = errors.New("setmgr: not proxied")

	// ErrInternal covers fault-in failures, Set initialization
	// failures, and other unexpected internal states.
	ErrInternal = errors.New("setmgr: internal error")
)
