package memory

import "fmt"

// Desc describes the geometry of a device buffer. Size is fixed at
// allocation and never changes.
type Desc struct {
	Size   uint64
	Stride uint64
	Width  uint64
	Height uint64
}

// LinearDesc describes an unstructured buffer of n bytes laid out as a single row
func LinearDesc(n uint64) Desc {
	return Desc{Size: n, Stride: n, Width: n, Height: 1}
}

// Validate checks that the geometry fits inside Size
func (d Desc) Validate() error {
	switch {
	case d.Size == 0:
		return fmt.Errorf("%w: zero size", ErrInvalidDesc)
	case d.Width == 0 || d.Height == 0:
		return fmt.Errorf("%w: zero width or height", ErrInvalidDesc)
	case d.Stride < d.Width:
		return fmt.Errorf("%w: stride %d smaller than width %d", ErrInvalidDesc, d.Stride, d.Width)
	case d.Width > d.Size:
		return fmt.Errorf("%w: width %d exceeds %d bytes", ErrInvalidDesc, d.Width, d.Size)
	case d.Height-1 > (d.Size-d.Width)/d.Stride:
		return fmt.Errorf("%w: %d rows of stride %d exceed %d bytes", ErrInvalidDesc, d.Height, d.Stride, d.Size)
	}
	return nil
}
