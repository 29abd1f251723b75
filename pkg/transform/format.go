package transform

// ConvertNHWCtoNCHW converts from NHWC to NCHW format
func ConvertNHWCtoNCHW(src, dst []uint8, height, width, channels int) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < channels; c++ {
				srcIdx := (y*width+x)*channels + c
				dstIdx := c*height*width + y*width + x
				dst[dstIdx] = src[srcIdx]
			}
		}
	}
}

// ConvertNCHWtoNHWC converts from NCHW to NHWC format
func ConvertNCHWtoNHWC(src, dst []uint8, height, width, channels int) {
	for c := 0; c < channels; c++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				srcIdx := c*height*width + y*width + x
				dstIdx := (y*width+x)*channels + c
				dst[dstIdx] = src[srcIdx]
			}
		}
	}
}

// ConvertBGRtoRGB swaps blue and red channels of interleaved pixels.
// src and dst may be the same slice.
func ConvertBGRtoRGB(src, dst []uint8) {
	pixels := len(src) / 3
	for i := 0; i < pixels; i++ {
		b, g, r := src[i*3], src[i*3+1], src[i*3+2]
		dst[i*3] = r
		dst[i*3+1] = g
		dst[i*3+2] = b
	}
}

// RGBToFeatures flattens an interleaved HWC image into the channel-major
// float feature vector models consume, scaled to [0, 1]
func RGBToFeatures(rgb []uint8, height, width int) []float32 {
	planar := make([]uint8, len(rgb))
	ConvertNHWCtoNCHW(rgb, planar, height, width, 3)
	out := make([]float32, len(planar))
	NormalizeU8(planar, out)
	return out
}
