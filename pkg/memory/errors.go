package memory

import "errors"

// Errors for remote memory operations
var (
	ErrAllocation      = errors.New("remote memory allocation failed")
	ErrSync            = errors.New("failed to sync memory to device")
	ErrSizeMismatch    = errors.New("host data size does not match handle size")
	ErrInvalidDesc     = errors.New("inconsistent memory descriptor")
	ErrStaleHandle     = errors.New("stale remote memory handle")
	ErrContextClosed   = errors.New("execution context closed")
	ErrAllocatorClosed = errors.New("allocator closed")
	ErrReadUnsupported = errors.New("device memory is not host readable")
	ErrOutOfRange      = errors.New("read outside handle bounds")
)
