package transform

import "fmt"

// Rect is a crop rectangle in pixels
type Rect struct {
	X, Y, Width, Height int
}

func (r Rect) within(width, height int) bool {
	return r.X >= 0 && r.Y >= 0 && r.Width > 0 && r.Height > 0 &&
		r.X+r.Width <= width && r.Y+r.Height <= height
}

// AlignChroma widens r to the smallest enclosing rectangle on the 2x2
// chroma grid: offsets round down, far edges round up.
func (r Rect) AlignChroma() Rect {
	x0, y0 := r.X&^1, r.Y&^1
	x1, y1 := (r.X+r.Width+1)&^1, (r.Y+r.Height+1)&^1
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// CropNV12 crops an NV12 frame. A rectangle off the chroma grid is widened
// with AlignChroma; the returned Rect is the region actually copied.
func CropNV12(src []uint8, width, height int, r Rect) ([]uint8, Rect, error) {
	if err := checkYUVCrop(src, width, height, r); err != nil {
		return nil, Rect{}, err
	}
	r = r.AlignChroma()

	dst := make([]uint8, 0, YUV420Size(r.Width, r.Height))
	for y := r.Y; y < r.Y+r.Height; y++ {
		row := y*width + r.X
		dst = append(dst, src[row:row+r.Width]...)
	}
	uv := src[width*height:]
	for y := r.Y / 2; y < (r.Y+r.Height)/2; y++ {
		row := y*width + r.X
		dst = append(dst, uv[row:row+r.Width]...)
	}
	return dst, r, nil
}

// CropI420 crops an I420 frame, widening r like CropNV12
func CropI420(src []uint8, width, height int, r Rect) ([]uint8, Rect, error) {
	if err := checkYUVCrop(src, width, height, r); err != nil {
		return nil, Rect{}, err
	}
	r = r.AlignChroma()

	dst := make([]uint8, 0, YUV420Size(r.Width, r.Height))
	for y := r.Y; y < r.Y+r.Height; y++ {
		row := y*width + r.X
		dst = append(dst, src[row:row+r.Width]...)
	}
	cw, ch := width/2, height/2
	for plane := 0; plane < 2; plane++ {
		base := width*height + plane*cw*ch
		for y := r.Y / 2; y < (r.Y+r.Height)/2; y++ {
			row := base + y*cw + r.X/2
			dst = append(dst, src[row:row+r.Width/2]...)
		}
	}
	return dst, r, nil
}

func checkYUVCrop(src []uint8, width, height int, r Rect) error {
	if !r.within(width, height) {
		return fmt.Errorf("crop %+v outside %dx%d frame", r, width, height)
	}
	if width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("4:2:0 frame %dx%d must have even dimensions", width, height)
	}
	if len(src) < YUV420Size(width, height) {
		return fmt.Errorf("frame %dx%d needs %d bytes, got %d", width, height, YUV420Size(width, height), len(src))
	}
	return nil
}

// CropInterleaved crops an HWC image with elemSize-byte channels
func CropInterleaved(src []uint8, width, height, channels, elemSize int, r Rect) ([]uint8, error) {
	if !r.within(width, height) {
		return nil, fmt.Errorf("crop %+v outside %dx%d frame", r, width, height)
	}
	px := channels * elemSize
	if len(src) < width*height*px {
		return nil, fmt.Errorf("frame needs %d bytes, got %d", width*height*px, len(src))
	}

	dst := make([]uint8, 0, r.Width*r.Height*px)
	for y := r.Y; y < r.Y+r.Height; y++ {
		row := (y*width + r.X) * px
		dst = append(dst, src[row:row+r.Width*px]...)
	}
	return dst, nil
}

// CropPlanar crops a CHW image with elemSize-byte channels
func CropPlanar(src []uint8, width, height, channels, elemSize int, r Rect) ([]uint8, error) {
	if !r.within(width, height) {
		return nil, fmt.Errorf("crop %+v outside %dx%d frame", r, width, height)
	}
	if len(src) < width*height*channels*elemSize {
		return nil, fmt.Errorf("frame needs %d bytes, got %d", width*height*channels*elemSize, len(src))
	}

	dst := make([]uint8, 0, r.Width*r.Height*channels*elemSize)
	for c := 0; c < channels; c++ {
		plane := c * width * height
		for y := r.Y; y < r.Y+r.Height; y++ {
			row := (plane + y*width + r.X) * elemSize
			dst = append(dst, src[row:row+r.Width*elemSize]...)
		}
	}
	return dst, nil
}
