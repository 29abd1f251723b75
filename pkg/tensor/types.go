package tensor

import (
	"fmt"
	"strings"
)

// Precision represents the element type of a tensor
type Precision int

const (
	PrecisionU8 Precision = iota
	PrecisionFP16
	PrecisionFP32
	PrecisionI32
)

var precisionNames = map[Precision]string{
	PrecisionU8:   "U8",
	PrecisionFP16: "FP16",
	PrecisionFP32: "FP32",
	PrecisionI32:  "I32",
}

// String returns the precision name
func (p Precision) String() string {
	if name, ok := precisionNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Precision(%d)", int(p))
}

// Size returns the element size in bytes
func (p Precision) Size() int {
	switch p {
	case PrecisionFP16:
		return 2
	case PrecisionFP32, PrecisionI32:
		return 4
	default:
		return 1
	}
}

// ParsePrecision parses a precision name such as "U8" or "fp32"
func ParsePrecision(s string) (Precision, error) {
	for p, name := range precisionNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown precision %q", s)
}

// Layout represents the dimension order of a tensor
type Layout int

const (
	LayoutNCHW Layout = iota
	LayoutNHWC
)

// String returns the layout name
func (l Layout) String() string {
	switch l {
	case LayoutNCHW:
		return "NCHW"
	case LayoutNHWC:
		return "NHWC"
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

// ColorFormat is the pixel encoding a tensor declares to preprocessing
type ColorFormat int

const (
	ColorRaw ColorFormat = iota
	ColorRGB
	ColorBGR
	ColorNV12
	ColorI420
)

var colorNames = map[ColorFormat]string{
	ColorRaw:  "RAW",
	ColorRGB:  "RGB",
	ColorBGR:  "BGR",
	ColorNV12: "NV12",
	ColorI420: "I420",
}

// String returns the color format name
func (c ColorFormat) String() string {
	if name, ok := colorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ColorFormat(%d)", int(c))
}

// Subsampled reports whether the format is planar YUV 4:2:0
func (c ColorFormat) Subsampled() bool {
	return c == ColorNV12 || c == ColorI420
}

// ParseColorFormat parses a color format name such as "NV12"
func ParseColorFormat(s string) (ColorFormat, error) {
	for c, name := range colorNames {
		if strings.EqualFold(s, name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown color format %q", s)
}

// Shape holds tensor dimensions in N, C, H, W order
type Shape struct {
	N int
	C int
	H int
	W int
}

// Elements returns the total number of elements
func (s Shape) Elements() int {
	return s.N * s.C * s.H * s.W
}

// String returns the shape as {N,C,H,W}
func (s Shape) String() string {
	return fmt.Sprintf("{%d,%d,%d,%d}", s.N, s.C, s.H, s.W)
}

func (s Shape) valid() bool {
	return s.N > 0 && s.C > 0 && s.H > 0 && s.W > 0
}

// Desc describes a tensor laid over remote memory
type Desc struct {
	Shape       Shape
	Precision   Precision
	Layout      Layout
	ColorFormat ColorFormat
}

// RequiredBytes returns the number of bytes the tensor occupies. Planar
// YUV 4:2:0 stores one luma byte per pixel plus half as much chroma.
func (d Desc) RequiredBytes() uint64 {
	s := d.Shape
	if d.ColorFormat.Subsampled() {
		return uint64(s.N) * uint64(s.H) * uint64(s.W) * 3 / 2
	}
	return uint64(s.Elements()) * uint64(d.Precision.Size())
}

// ROI is a rectangle within a tensor's spatial extent
type ROI struct {
	X      int
	Y      int
	Width  int
	Height int
}

// String returns the region as x,y wxh
func (r ROI) String() string {
	return fmt.Sprintf("%d,%d %dx%d", r.X, r.Y, r.Width, r.Height)
}
