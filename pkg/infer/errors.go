package infer

// inferError is a simple error type for the infer package
type inferError string

func (e inferError) Error() string { return string(e) }

// Errors for inference operations
const (
	ErrUnknownInput      = inferError("unknown input name")
	ErrUnknownOutput     = inferError("unknown output name")
	ErrModelImport       = inferError("model import failed")
	ErrMissingBinding    = inferError("missing binding")
	ErrInvalidInput      = inferError("invalid input data")
	ErrNetworkClosed     = inferError("network is closed")
	ErrRequestClosed     = inferError("infer request is closed")
	ErrNoOutput          = inferError("output not computed yet")
	ErrPrecisionMismatch = inferError("tensor precision mismatch")
)
