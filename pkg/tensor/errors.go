package tensor

import "errors"

// Errors for remote tensor operations
var (
	ErrTensorCreation = errors.New("remote tensor creation failed")
	ErrInvalidRegion  = errors.New("region of interest outside tensor bounds")
	ErrReleased       = errors.New("remote tensor released")
)
