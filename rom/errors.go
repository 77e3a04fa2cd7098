package rom

import "errors"

// Error kinds returned (wrapped) by the ROM and table code. Callers test for
// them with errors.Is.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOutOfRange         = errors.New("out of range")
	ErrFailedPrecondition = errors.New("failed precondition")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrResourceExhausted  = errors.New("resource exhausted")
	ErrAlreadyExists      = errors.New("already exists")
	ErrNotLoaded          = errors.New("rom not loaded")
)
