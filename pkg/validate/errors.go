package validate

import "errors"

var (
	ErrInvalidK             = errors.New("k must be at least 1")
	ErrUnsupportedPrecision = errors.New("unsupported precision")
	ErrReference            = errors.New("reference computation failed")
	ErrNilTensor            = errors.New("nil tensor")
	ErrInvalidTolerance     = errors.New("tolerance must be a non-negative number")
)
