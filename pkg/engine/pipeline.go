package engine

import (
	"fmt"

	"github.com/emergingrobotics/remote-offload/pkg/blob"
	"github.com/emergingrobotics/remote-offload/pkg/infer"
	"github.com/emergingrobotics/remote-offload/pkg/tensor"
	"github.com/emergingrobotics/remote-offload/pkg/transform"
)

// ToRGB converts one image laid out as desc into interleaved RGB. format
// overrides the descriptor's color format unless it is ColorRaw.
func ToRGB(frame []byte, desc tensor.Desc, format tensor.ColorFormat) ([]byte, error) {
	if format == tensor.ColorRaw {
		format = desc.ColorFormat
	}
	if desc.Shape.N != 1 {
		return nil, fmt.Errorf("%w: batch of %d", ErrUnsupportedFormat, desc.Shape.N)
	}
	if desc.Precision != tensor.PrecisionU8 {
		return nil, fmt.Errorf("%w: %s input", ErrUnsupportedFormat, desc.Precision)
	}
	w, h := desc.Shape.W, desc.Shape.H

	switch format {
	case tensor.ColorNV12:
		return transform.NV12ToRGB(frame, w, h)
	case tensor.ColorI420:
		return transform.I420ToRGB(frame, w, h)
	case tensor.ColorRGB, tensor.ColorBGR, tensor.ColorRaw:
	default:
		return nil, fmt.Errorf("%w: color format %s", ErrUnsupportedFormat, format)
	}

	if desc.Shape.C != 3 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, desc.Shape.C)
	}
	if len(frame) < w*h*3 {
		return nil, fmt.Errorf("%w: %dx%d image needs %d bytes, got %d", ErrUnsupportedFormat, w, h, w*h*3, len(frame))
	}
	rgb := make([]byte, w*h*3)
	if desc.Layout == tensor.LayoutNCHW {
		transform.ConvertNCHWtoNHWC(frame, rgb, h, w, 3)
	} else {
		copy(rgb, frame)
	}
	if format == tensor.ColorBGR {
		transform.ConvertBGRtoRGB(rgb, rgb)
	}
	return rgb, nil
}

// Preprocess turns a frame into the feature vector of the input port,
// converting color and resizing as pp asks
func Preprocess(frame []byte, desc tensor.Desc, pp infer.PreProcessInfo, in infer.PortInfo) ([]float32, error) {
	rgb, err := ToRGB(frame, desc, pp.ColorFormat)
	if err != nil {
		return nil, err
	}
	return resizeFeatures(rgb, desc.Shape.H, desc.Shape.W, pp, in)
}

// PreprocessRegion is Preprocess for a device read. A read widened to the
// chroma grid is converted whole and then cut back to its inner rectangle.
func PreprocessRegion(reg *tensor.Region, pp infer.PreProcessInfo, in infer.PortInfo) ([]float32, error) {
	rgb, err := ToRGB(reg.Data, reg.Desc, pp.ColorFormat)
	if err != nil {
		return nil, err
	}
	if reg.Exact() {
		return resizeFeatures(rgb, reg.Desc.Shape.H, reg.Desc.Shape.W, pp, in)
	}
	inner := transform.Rect(reg.Inner)
	rgb, err = transform.CropInterleaved(rgb, reg.Desc.Shape.W, reg.Desc.Shape.H, 3, 1, inner)
	if err != nil {
		return nil, err
	}
	return resizeFeatures(rgb, inner.Height, inner.Width, pp, in)
}

func resizeFeatures(rgb []byte, srcH, srcW int, pp infer.PreProcessInfo, in infer.PortInfo) ([]float32, error) {
	dstH, dstW := in.Shape.H, in.Shape.W
	if srcH != dstH || srcW != dstW {
		var err error
		switch pp.ResizeAlgorithm {
		case infer.ResizeBilinear:
			rgb, err = transform.ResizeBilinear(rgb, srcH, srcW, dstH, dstW)
		case infer.ResizeArea:
			rgb, err = transform.Resize(rgb, srcH, srcW, dstH, dstW, transform.Area)
		default:
			return nil, fmt.Errorf("%w: %dx%d input for %dx%d network without resize",
				ErrGeometry, srcW, srcH, dstW, dstH)
		}
		if err != nil {
			return nil, err
		}
	}
	return transform.RGBToFeatures(rgb, dstH, dstW), nil
}

// Evaluate runs the classifier and renders every declared output in its
// precision. U8 outputs are quantized with the port's scale and zero point.
func Evaluate(n *blob.Network, c *blob.Classifier, features []float32) (map[string]*infer.Tensor, error) {
	logits, err := c.Logits(features)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]*infer.Tensor, len(n.Outputs))
	for _, port := range n.Outputs {
		switch port.Precision {
		case tensor.PrecisionFP32:
			outputs[port.Name] = infer.NewFloat32Tensor(port.Name, port.Shape, logits)
		case tensor.PrecisionU8:
			q := make([]uint8, len(logits))
			transform.QuantizeBatch(logits, q, transform.QuantInfo{Scale: port.Scale, ZeroPoint: port.ZeroPoint})
			outputs[port.Name] = infer.NewUint8Tensor(port.Name, port.Shape, q)
		default:
			return nil, fmt.Errorf("%w: %s on %q", ErrUnsupportedOutput, port.Precision, port.Name)
		}
	}
	return outputs, nil
}
