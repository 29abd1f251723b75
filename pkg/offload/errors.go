package offload

import "errors"

var (
	ErrInvalidState  = errors.New("operation not valid in the current session state")
	ErrInvalidConfig = errors.New("invalid session configuration")
)
