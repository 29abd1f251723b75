package transform

import "fmt"

// YUV420Size returns the byte size of a width x height 4:2:0 frame
func YUV420Size(width, height int) int {
	return width * height * 3 / 2
}

func clamp8(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// yuvToRGB uses BT.601 limited range integer coefficients
func yuvToRGB(y, u, v uint8) (uint8, uint8, uint8) {
	c := int32(y) - 16
	d := int32(u) - 128
	e := int32(v) - 128
	if c < 0 {
		c = 0
	}
	r := (298*c + 409*e + 128) >> 8
	g := (298*c - 100*d - 208*e + 128) >> 8
	b := (298*c + 516*d + 128) >> 8
	return clamp8(r), clamp8(g), clamp8(b)
}

// NV12ToRGB converts an NV12 frame (Y plane followed by interleaved UV)
// to interleaved RGB
func NV12ToRGB(src []uint8, width, height int) ([]uint8, error) {
	if width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("NV12 frame %dx%d must have even dimensions", width, height)
	}
	if len(src) < YUV420Size(width, height) {
		return nil, fmt.Errorf("NV12 frame %dx%d needs %d bytes, got %d", width, height, YUV420Size(width, height), len(src))
	}

	yPlane := src[:width*height]
	uvPlane := src[width*height:]
	dst := make([]uint8, width*height*3)
	for y := 0; y < height; y++ {
		uvRow := (y / 2) * width
		for x := 0; x < width; x++ {
			uvIdx := uvRow + (x &^ 1)
			r, g, b := yuvToRGB(yPlane[y*width+x], uvPlane[uvIdx], uvPlane[uvIdx+1])
			o := (y*width + x) * 3
			dst[o], dst[o+1], dst[o+2] = r, g, b
		}
	}
	return dst, nil
}

// I420ToRGB converts an I420 frame (Y, U and V planes) to interleaved RGB
func I420ToRGB(src []uint8, width, height int) ([]uint8, error) {
	if width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("I420 frame %dx%d must have even dimensions", width, height)
	}
	if len(src) < YUV420Size(width, height) {
		return nil, fmt.Errorf("I420 frame %dx%d needs %d bytes, got %d", width, height, YUV420Size(width, height), len(src))
	}

	cw := width / 2
	yPlane := src[:width*height]
	uPlane := src[width*height : width*height+cw*height/2]
	vPlane := src[width*height+cw*height/2:]
	dst := make([]uint8, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			ci := (y/2)*cw + x/2
			r, g, b := yuvToRGB(yPlane[y*width+x], uPlane[ci], vPlane[ci])
			o := (y*width + x) * 3
			dst[o], dst[o+1], dst[o+2] = r, g, b
		}
	}
	return dst, nil
}
