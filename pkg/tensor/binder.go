package tensor

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/emergingrobotics/remote-offload/pkg/memory"
	"github.com/emergingrobotics/remote-offload/pkg/transform"
)

// Binder wraps remote memory handles of one allocator into tensors
type Binder struct {
	alloc  *memory.Allocator
	logger *slog.Logger
}

// NewBinder creates a binder over an allocator
func NewBinder(alloc *memory.Allocator, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{alloc: alloc, logger: logger}
}

// CreateTensor lays desc over a synced remote memory handle. The tensor
// takes its own share of the handle; the caller keeps its share.
func (b *Binder) CreateTensor(ec memory.Context, desc Desc, h memory.HandleID) (*RemoteTensor, error) {
	if ec != b.alloc.Context() {
		return nil, fmt.Errorf("%w: handle belongs to another execution context", ErrTensorCreation)
	}
	if !ec.Alive() {
		return nil, fmt.Errorf("%w: %w", ErrTensorCreation, memory.ErrContextClosed)
	}
	if !desc.Shape.valid() {
		return nil, fmt.Errorf("%w: shape %s has a zero dimension", ErrTensorCreation, desc.Shape)
	}
	if err := checkFormat(desc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTensorCreation, err)
	}

	info, err := b.alloc.Info(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTensorCreation, err)
	}
	if !info.Synced {
		return nil, fmt.Errorf("%w: handle %d was not synced to the device", ErrTensorCreation, uint64(h))
	}
	if need := desc.RequiredBytes(); need > info.Size {
		return nil, fmt.Errorf("%w: %s %s %s needs %d bytes, handle holds %d",
			ErrTensorCreation, desc.Shape, desc.Precision, desc.ColorFormat, need, info.Size)
	}

	if err := b.alloc.Retain(h); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTensorCreation, err)
	}

	b.logger.Debug("remote tensor created", "handle", uint64(h), "shape", desc.Shape.String(), "color", desc.ColorFormat.String())
	return &RemoteTensor{
		alloc:  b.alloc,
		handle: h,
		root:   desc,
		roi:    ROI{Width: desc.Shape.W, Height: desc.Shape.H},
		owning: true,
	}, nil
}

// checkFormat rejects precision and color format combinations the device
// cannot lay out
func checkFormat(d Desc) error {
	switch d.ColorFormat {
	case ColorNV12, ColorI420:
		if d.Precision != PrecisionU8 {
			return fmt.Errorf("%s requires U8, got %s", d.ColorFormat, d.Precision)
		}
		if d.Shape.C != 3 {
			return fmt.Errorf("%s carries 3 channels, shape has %d", d.ColorFormat, d.Shape.C)
		}
		if d.Shape.H%2 != 0 || d.Shape.W%2 != 0 {
			return fmt.Errorf("%s needs even dimensions, got %dx%d", d.ColorFormat, d.Shape.W, d.Shape.H)
		}
	case ColorRGB, ColorBGR:
		if d.Shape.C != 3 {
			return fmt.Errorf("%s needs 3 channels, shape has %d", d.ColorFormat, d.Shape.C)
		}
	case ColorRaw:
	default:
		return fmt.Errorf("unknown color format %d", int(d.ColorFormat))
	}
	return nil
}

// CreateRegionOfInterest narrows t to roi. The view shares t's memory
// without taking a share of it; it must not be used once the memory is
// released.
func (b *Binder) CreateRegionOfInterest(t *RemoteTensor, roi ROI) (*RemoteTensor, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil tensor", ErrInvalidRegion)
	}
	if roi.X < 0 || roi.Y < 0 || roi.Width <= 0 || roi.Height <= 0 ||
		roi.X+roi.Width > t.roi.Width || roi.Y+roi.Height > t.roi.Height {
		return nil, fmt.Errorf("%w: %s in %dx%d", ErrInvalidRegion, roi, t.roi.Width, t.roi.Height)
	}

	abs := ROI{X: t.roi.X + roi.X, Y: t.roi.Y + roi.Y, Width: roi.Width, Height: roi.Height}
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegion, ErrReleased)
	}

	return &RemoteTensor{
		alloc:  t.alloc,
		handle: t.handle,
		root:   t.root,
		roi:    abs,
	}, nil
}

// RemoteTensor is a tensor laid over device memory. Owning tensors hold a
// share of their handle; region views only remember the handle id and
// re-check its liveness on every access.
type RemoteTensor struct {
	alloc  *memory.Allocator
	handle memory.HandleID
	root   Desc
	roi    ROI
	owning bool

	mu       sync.Mutex
	released bool
}

// Handle returns the remote memory handle id
func (t *RemoteTensor) Handle() memory.HandleID {
	return t.handle
}

// IsView reports whether t is a region of interest view
func (t *RemoteTensor) IsView() bool {
	return !t.owning
}

// Root returns the descriptor of the full tensor the view was cut from
func (t *RemoteTensor) Root() Desc {
	return t.root
}

// ROI returns the region of the root tensor t covers
func (t *RemoteTensor) ROI() ROI {
	return t.roi
}

// Desc returns the logical descriptor of t; for views H and W are the
// region's extent
func (t *RemoteTensor) Desc() Desc {
	d := t.root
	d.Shape.H = t.roi.Height
	d.Shape.W = t.roi.Width
	return d
}

// Valid reports whether the underlying memory is still live
func (t *RemoteTensor) Valid() bool {
	t.mu.Lock()
	released := t.released
	t.mu.Unlock()
	if released {
		return false
	}
	_, err := t.alloc.Info(t.handle)
	return err == nil
}

// Release drops an owning tensor's share of its memory. It is a no-op for
// views and for tensors already released.
func (t *RemoteTensor) Release() error {
	if !t.owning {
		return nil
	}
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return nil
	}
	t.released = true
	t.mu.Unlock()
	return t.alloc.Release(t.handle)
}

// Region is device data read back for a tensor. Desc describes Data and
// Inner locates the tensor's own region inside it.
type Region struct {
	Data  []byte
	Desc  Desc
	Inner ROI
}

// Exact reports whether Data holds the tensor's region and nothing more
func (r *Region) Exact() bool {
	return r.Inner.X == 0 && r.Inner.Y == 0 &&
		r.Inner.Width == r.Desc.Shape.W && r.Inner.Height == r.Desc.Shape.H
}

// ReadRegion copies the bytes t covers out of device memory in the root
// tensor's layout. NV12 and I420 regions off the 2x2 chroma grid are widened
// to the enclosing aligned rectangle so every pixel keeps its chroma sample.
func (t *RemoteTensor) ReadRegion() (*Region, error) {
	if !t.Valid() {
		return nil, ErrReleased
	}

	s := t.root.Shape
	full := make([]byte, t.root.RequiredBytes())
	if err := t.alloc.ReadBack(t.handle, 0, full); err != nil {
		return nil, err
	}
	if t.roi.X == 0 && t.roi.Y == 0 && t.roi.Width == s.W && t.roi.Height == s.H {
		return &Region{Data: full, Desc: t.root, Inner: ROI{Width: s.W, Height: s.H}}, nil
	}

	r := transform.Rect{X: t.roi.X, Y: t.roi.Y, Width: t.roi.Width, Height: t.roi.Height}
	copied := r
	batch := len(full) / s.N
	var out []byte
	for n := 0; n < s.N; n++ {
		img := full[n*batch : (n+1)*batch]
		var crop []byte
		var err error
		switch {
		case t.root.ColorFormat == ColorNV12:
			crop, copied, err = transform.CropNV12(img, s.W, s.H, r)
		case t.root.ColorFormat == ColorI420:
			crop, copied, err = transform.CropI420(img, s.W, s.H, r)
		case t.root.Layout == LayoutNHWC:
			crop, err = transform.CropInterleaved(img, s.W, s.H, s.C, t.root.Precision.Size(), r)
		default:
			crop, err = transform.CropPlanar(img, s.W, s.H, s.C, t.root.Precision.Size(), r)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, crop...)
	}

	d := t.root
	d.Shape.W, d.Shape.H = copied.Width, copied.Height
	return &Region{
		Data:  out,
		Desc:  d,
		Inner: ROI{X: r.X - copied.X, Y: r.Y - copied.Y, Width: r.Width, Height: r.Height},
	}, nil
}
