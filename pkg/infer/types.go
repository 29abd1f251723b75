package infer

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/emergingrobotics/remote-offload/pkg/tensor"
)

// ResizeAlgorithm selects how the execution layer scales a bound input
type ResizeAlgorithm int

const (
	ResizeNone ResizeAlgorithm = iota
	ResizeBilinear
	ResizeArea
)

var resizeNames = map[ResizeAlgorithm]string{
	ResizeNone:     "NONE",
	ResizeBilinear: "RESIZE_BILINEAR",
	ResizeArea:     "RESIZE_AREA",
}

// String returns the algorithm name
func (r ResizeAlgorithm) String() string {
	if name, ok := resizeNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ResizeAlgorithm(%d)", int(r))
}

// ParseResizeAlgorithm accepts "none", "bilinear", "area" or the full names
func ParseResizeAlgorithm(s string) (ResizeAlgorithm, error) {
	u := strings.ToUpper(s)
	for r, name := range resizeNames {
		if u == name || "RESIZE_"+u == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown resize algorithm %q", s)
}

// PreProcessInfo is the preprocessing intent attached to one input. It is
// carried unmodified to the execution layer, which performs the work.
type PreProcessInfo struct {
	ResizeAlgorithm ResizeAlgorithm
	ColorFormat     tensor.ColorFormat
}

// PortInfo describes a declared network input or output
type PortInfo struct {
	Name        string
	Precision   tensor.Precision
	Layout      tensor.Layout
	Shape       tensor.Shape
	ColorFormat tensor.ColorFormat

	// quantization of U8 ports
	Scale     float32
	ZeroPoint float32
}

// FrameSize returns the size in bytes of one tensor on this port
func (p PortInfo) FrameSize() int {
	return p.Shape.Elements() * p.Precision.Size()
}

// Tensor is a host-resident output tensor
type Tensor struct {
	Name      string
	Precision tensor.Precision
	Shape     tensor.Shape
	Data      []byte
}

// NewUint8Tensor wraps U8 values
func NewUint8Tensor(name string, shape tensor.Shape, values []uint8) *Tensor {
	data := make([]byte, len(values))
	copy(data, values)
	return &Tensor{Name: name, Precision: tensor.PrecisionU8, Shape: shape, Data: data}
}

// NewFloat32Tensor encodes FP32 values little endian
func NewFloat32Tensor(name string, shape tensor.Shape, values []float32) *Tensor {
	data := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return &Tensor{Name: name, Precision: tensor.PrecisionFP32, Shape: shape, Data: data}
}

// Len returns the number of elements
func (t *Tensor) Len() int {
	return len(t.Data) / t.Precision.Size()
}

// Uint8s returns the elements of a U8 tensor
func (t *Tensor) Uint8s() ([]uint8, error) {
	if t.Precision != tensor.PrecisionU8 {
		return nil, fmt.Errorf("%w: %s is %s, not U8", ErrPrecisionMismatch, t.Name, t.Precision)
	}
	return t.Data, nil
}

// Float32s decodes the elements of an FP32 tensor
func (t *Tensor) Float32s() ([]float32, error) {
	if t.Precision != tensor.PrecisionFP32 {
		return nil, fmt.Errorf("%w: %s is %s, not FP32", ErrPrecisionMismatch, t.Name, t.Precision)
	}
	out := make([]float32, len(t.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.Data[i*4:]))
	}
	return out, nil
}
