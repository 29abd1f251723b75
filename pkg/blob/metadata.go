package blob

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/emergingrobotics/remote-offload/pkg/infer"
	"github.com/emergingrobotics/remote-offload/pkg/tensor"
)

// Metadata field numbers
const (
	fieldName     protowire.Number = 1
	fieldArch     protowire.Number = 2
	fieldInput    protowire.Number = 3
	fieldOutput   protowire.Number = 4
	fieldEncoding protowire.Number = 5
	fieldClasses  protowire.Number = 6
)

// Port field numbers
const (
	portName      protowire.Number = 1
	portPrecision protowire.Number = 2
	portLayout    protowire.Number = 3
	portDims      protowire.Number = 4
	portColor     protowire.Number = 5
	portScale     protowire.Number = 6
	portZeroPoint protowire.Number = 7
)

func appendMetadata(b []byte, n *Network) []byte {
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendString(b, n.Name)
	for _, a := range n.Archs {
		b = protowire.AppendTag(b, fieldArch, protowire.BytesType)
		b = protowire.AppendString(b, a)
	}
	for _, p := range n.Inputs {
		b = protowire.AppendTag(b, fieldInput, protowire.BytesType)
		b = protowire.AppendBytes(b, appendPort(nil, p))
	}
	for _, p := range n.Outputs {
		b = protowire.AppendTag(b, fieldOutput, protowire.BytesType)
		b = protowire.AppendBytes(b, appendPort(nil, p))
	}
	b = protowire.AppendTag(b, fieldEncoding, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(n.Encoding))
	b = protowire.AppendTag(b, fieldClasses, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(n.Classes))
	return b
}

func appendPort(b []byte, p infer.PortInfo) []byte {
	b = protowire.AppendTag(b, portName, protowire.BytesType)
	b = protowire.AppendString(b, p.Name)
	b = protowire.AppendTag(b, portPrecision, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Precision))
	b = protowire.AppendTag(b, portLayout, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Layout))

	var dims []byte
	for _, d := range []int{p.Shape.N, p.Shape.C, p.Shape.H, p.Shape.W} {
		dims = protowire.AppendVarint(dims, uint64(d))
	}
	b = protowire.AppendTag(b, portDims, protowire.BytesType)
	b = protowire.AppendBytes(b, dims)

	b = protowire.AppendTag(b, portColor, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.ColorFormat))
	b = protowire.AppendTag(b, portScale, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(p.Scale))
	b = protowire.AppendTag(b, portZeroPoint, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(p.ZeroPoint))
	return b
}

func parseMetadata(b []byte, n *Network) error {
	for len(b) > 0 {
		num, typ, m := protowire.ConsumeTag(b)
		if m < 0 {
			return fmt.Errorf("%w: %w", ErrInvalidMetadata, protowire.ParseError(m))
		}
		b = b[m:]

		switch {
		case num == fieldName && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return fmt.Errorf("%w: name: %w", ErrInvalidMetadata, protowire.ParseError(m))
			}
			n.Name = v
			b = b[m:]
		case num == fieldArch && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return fmt.Errorf("%w: arch: %w", ErrInvalidMetadata, protowire.ParseError(m))
			}
			n.Archs = append(n.Archs, v)
			b = b[m:]
		case (num == fieldInput || num == fieldOutput) && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: port: %w", ErrInvalidMetadata, protowire.ParseError(m))
			}
			p, err := parsePort(v)
			if err != nil {
				return err
			}
			if num == fieldInput {
				n.Inputs = append(n.Inputs, p)
			} else {
				n.Outputs = append(n.Outputs, p)
			}
			b = b[m:]
		case num == fieldEncoding && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("%w: encoding: %w", ErrInvalidMetadata, protowire.ParseError(m))
			}
			n.Encoding = WeightEncoding(v)
			b = b[m:]
		case num == fieldClasses && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("%w: classes: %w", ErrInvalidMetadata, protowire.ParseError(m))
			}
			n.Classes = int(v)
			b = b[m:]
		default:
			// unknown fields are skipped
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %w", ErrInvalidMetadata, num, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}

	if n.Encoding != WeightsFP32 && n.Encoding != WeightsFP16 {
		return fmt.Errorf("%w: weight encoding %s", ErrInvalidMetadata, n.Encoding)
	}
	return nil
}

func parsePort(b []byte) (infer.PortInfo, error) {
	var p infer.PortInfo
	for len(b) > 0 {
		num, typ, m := protowire.ConsumeTag(b)
		if m < 0 {
			return p, fmt.Errorf("%w: port: %w", ErrInvalidMetadata, protowire.ParseError(m))
		}
		b = b[m:]

		switch {
		case num == portName && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return p, fmt.Errorf("%w: port name: %w", ErrInvalidMetadata, protowire.ParseError(m))
			}
			p.Name = v
			b = b[m:]
		case num == portDims && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return p, fmt.Errorf("%w: port dims: %w", ErrInvalidMetadata, protowire.ParseError(m))
			}
			dims, err := parseDims(v)
			if err != nil {
				return p, err
			}
			p.Shape = tensor.Shape{N: dims[0], C: dims[1], H: dims[2], W: dims[3]}
			b = b[m:]
		case (num == portScale || num == portZeroPoint) && typ == protowire.Fixed32Type:
			v, m := protowire.ConsumeFixed32(b)
			if m < 0 {
				return p, fmt.Errorf("%w: port quantization: %w", ErrInvalidMetadata, protowire.ParseError(m))
			}
			if num == portScale {
				p.Scale = math.Float32frombits(v)
			} else {
				p.ZeroPoint = math.Float32frombits(v)
			}
			b = b[m:]
		case typ == protowire.VarintType && (num == portPrecision || num == portLayout || num == portColor):
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return p, fmt.Errorf("%w: port field %d: %w", ErrInvalidMetadata, num, protowire.ParseError(m))
			}
			switch num {
			case portPrecision:
				p.Precision = tensor.Precision(v)
			case portLayout:
				p.Layout = tensor.Layout(v)
			default:
				p.ColorFormat = tensor.ColorFormat(v)
			}
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return p, fmt.Errorf("%w: port field %d: %w", ErrInvalidMetadata, num, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}
	if p.Name == "" {
		return p, fmt.Errorf("%w: unnamed port", ErrInvalidMetadata)
	}
	return p, nil
}

func parseDims(b []byte) ([4]int, error) {
	var dims [4]int
	i := 0
	for len(b) > 0 {
		v, m := protowire.ConsumeVarint(b)
		if m < 0 {
			return dims, fmt.Errorf("%w: dims: %w", ErrInvalidMetadata, protowire.ParseError(m))
		}
		if i == len(dims) {
			return dims, fmt.Errorf("%w: more than 4 dims", ErrInvalidMetadata)
		}
		dims[i] = int(v)
		i++
		b = b[m:]
	}
	if i != len(dims) {
		return dims, fmt.Errorf("%w: %d dims, expected 4", ErrInvalidMetadata, i)
	}
	return dims, nil
}
