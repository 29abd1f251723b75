package blob

import (
	"errors"
	"fmt"
	"strings"

	"github.com/emergingrobotics/remote-offload/pkg/infer"
)

// Blob file format constants
const (
	Magic      = 0x4258464F // "OFXB" in little-endian
	HeaderSize = 32
	VersionV1  = 1

	// ArchAny marks a network every device type can import
	ArchAny = "ANY"
)

// Errors
var (
	ErrInvalidMagic       = errors.New("invalid blob magic number")
	ErrUnsupportedVersion = errors.New("unsupported blob version")
	ErrTruncatedHeader    = errors.New("truncated blob header")
	ErrTruncatedData      = errors.New("truncated blob data")
	ErrInvalidChecksum    = errors.New("invalid blob checksum")
	ErrInvalidMetadata    = errors.New("invalid blob metadata")
)

// WeightEncoding is the element type of the classifier payload
type WeightEncoding uint32

const (
	WeightsFP32 WeightEncoding = 0
	WeightsFP16 WeightEncoding = 1
)

func (e WeightEncoding) String() string {
	switch e {
	case WeightsFP32:
		return "fp32"
	case WeightsFP16:
		return "fp16"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

func (e WeightEncoding) size() int {
	if e == WeightsFP16 {
		return 2
	}
	return 4
}

// Header is the fixed-size blob header
type Header struct {
	Magic        uint32
	Version      uint32
	MetadataSize uint32
	Xxh3Hash     uint64
	PayloadSize  uint64
	Reserved     uint32
}

// Network is a parsed compiled network: a linear classifier over the
// normalized channel-major pixels of its single input
type Network struct {
	Version  uint32
	Name     string
	Archs    []string
	Inputs   []infer.PortInfo
	Outputs  []infer.PortInfo
	Encoding WeightEncoding
	Classes  int

	// Weights is row major [Classes][Features()]
	Weights []float32
	Bias    []float32
}

// Features returns the length of the classifier input vector
func (n *Network) Features() int {
	if len(n.Inputs) == 0 {
		return 0
	}
	s := n.Inputs[0].Shape
	return s.C * s.H * s.W
}

// CompatibleWith reports whether the network can be imported on a device type
func (n *Network) CompatibleWith(deviceType string) bool {
	for _, a := range n.Archs {
		if strings.EqualFold(a, ArchAny) || strings.EqualFold(a, deviceType) {
			return true
		}
	}
	return false
}

// Input returns the first declared input
func (n *Network) Input() (infer.PortInfo, error) {
	if len(n.Inputs) == 0 {
		return infer.PortInfo{}, fmt.Errorf("%w: network %q declares no inputs", ErrInvalidMetadata, n.Name)
	}
	return n.Inputs[0], nil
}

// Output returns the named output, or the first one when name is empty
func (n *Network) Output(name string) (infer.PortInfo, error) {
	if len(n.Outputs) == 0 {
		return infer.PortInfo{}, fmt.Errorf("%w: network %q declares no outputs", ErrInvalidMetadata, n.Name)
	}
	if name == "" {
		return n.Outputs[0], nil
	}
	if p, ok := infer.FindPort(n.Outputs, name); ok {
		return p, nil
	}
	return infer.PortInfo{}, fmt.Errorf("%w: %q", infer.ErrUnknownOutput, name)
}

// Validate checks the metadata against the payload geometry
func (n *Network) Validate() error {
	if len(n.Inputs) != 1 {
		return fmt.Errorf("%w: expected 1 input, got %d", ErrInvalidMetadata, len(n.Inputs))
	}
	if len(n.Outputs) == 0 {
		return fmt.Errorf("%w: no outputs", ErrInvalidMetadata)
	}
	in := n.Inputs[0].Shape
	if in.N != 1 || in.C != 3 || in.H <= 0 || in.W <= 0 {
		return fmt.Errorf("%w: input shape %s", ErrInvalidMetadata, in)
	}
	if n.Classes <= 0 {
		return fmt.Errorf("%w: %d classes", ErrInvalidMetadata, n.Classes)
	}
	for _, o := range n.Outputs {
		if o.Shape.Elements() != n.Classes {
			return fmt.Errorf("%w: output %q has %d elements for %d classes",
				ErrInvalidMetadata, o.Name, o.Shape.Elements(), n.Classes)
		}
	}
	if len(n.Weights) != n.Classes*n.Features() {
		return fmt.Errorf("%w: %d weights for %dx%d", ErrInvalidMetadata, len(n.Weights), n.Classes, n.Features())
	}
	if len(n.Bias) != n.Classes {
		return fmt.Errorf("%w: %d biases for %d classes", ErrInvalidMetadata, len(n.Bias), n.Classes)
	}
	return nil
}
