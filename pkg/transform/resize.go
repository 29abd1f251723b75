package transform

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Area averages every source pixel a destination pixel covers when
// downscaling; it is a box kernel whose support grows with the scale factor.
var Area = &draw.Kernel{Support: 0.5, At: func(t float64) float64 { return 1 }}

// Resize scales an interleaved RGB image with the given interpolator
func Resize(src []uint8, srcH, srcW, dstH, dstW int, interp draw.Interpolator) ([]uint8, error) {
	if srcH <= 0 || srcW <= 0 || dstH <= 0 || dstW <= 0 {
		return nil, fmt.Errorf("invalid resize %dx%d -> %dx%d", srcW, srcH, dstW, dstH)
	}
	if len(src) < srcH*srcW*3 {
		return nil, fmt.Errorf("image %dx%d needs %d bytes, got %d", srcW, srcH, srcH*srcW*3, len(src))
	}
	if srcH == dstH && srcW == dstW {
		out := make([]uint8, srcH*srcW*3)
		copy(out, src)
		return out, nil
	}

	in := image.NewRGBA(image.Rect(0, 0, srcW, srcH))
	for i := 0; i < srcH*srcW; i++ {
		in.Pix[i*4] = src[i*3]
		in.Pix[i*4+1] = src[i*3+1]
		in.Pix[i*4+2] = src[i*3+2]
		in.Pix[i*4+3] = 255
	}

	resized := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	interp.Scale(resized, resized.Bounds(), in, in.Bounds(), draw.Src, nil)

	out := make([]uint8, dstH*dstW*3)
	for i := 0; i < dstH*dstW; i++ {
		out[i*3] = resized.Pix[i*4]
		out[i*3+1] = resized.Pix[i*4+1]
		out[i*3+2] = resized.Pix[i*4+2]
	}
	return out, nil
}

// ResizeBilinear scales an interleaved RGB image with bilinear interpolation
func ResizeBilinear(src []uint8, srcH, srcW, dstH, dstW int) ([]uint8, error) {
	return Resize(src, srcH, srcW, dstH, dstW, draw.BiLinear)
}
