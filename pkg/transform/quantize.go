package transform

// QuantInfo holds the affine parameters of a U8 output port
type QuantInfo struct {
	ZeroPoint float32
	Scale     float32
}

func (qi QuantInfo) scale() float32 {
	if qi.Scale == 0 {
		return 1
	}
	return qi.Scale
}

// Quantize maps value to value/Scale + ZeroPoint, rounded and clamped to
// [0, 255]. NaN maps to 0 and a zero Scale is treated as 1.
func Quantize(value float32, qi QuantInfo) uint8 {
	quantized := value/qi.scale() + qi.ZeroPoint

	if quantized != quantized || quantized < 0 {
		return 0
	}
	if quantized > 255 {
		return 255
	}
	return uint8(quantized + 0.5)
}

// QuantizeBatch quantizes a batch of float32 values
func QuantizeBatch(input []float32, output []uint8, qi QuantInfo) {
	for i, v := range input {
		output[i] = Quantize(v, qi)
	}
}

// NormalizeU8 maps bytes to [0, 1] floats
func NormalizeU8(input []uint8, output []float32) {
	for i, v := range input {
		output[i] = float32(v) / 255
	}
}
