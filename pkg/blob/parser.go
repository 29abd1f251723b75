package blob

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"

	"github.com/x448/float16"
)

// Parse parses a blob file from a file path
func Parse(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob file: %w", err)
	}
	return ParseBytes(data)
}

// Read parses a blob from a reader
func Read(r io.Reader) (*Network, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes parses a blob from raw bytes
func ParseBytes(data []byte) (*Network, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	size := uint64(len(data))
	metaEnd := uint64(HeaderSize) + uint64(header.MetadataSize)
	if metaEnd > size || header.PayloadSize > size-metaEnd {
		return nil, fmt.Errorf("%w: %d metadata and %d payload bytes declared, file holds %d",
			ErrTruncatedData, header.MetadataSize, header.PayloadSize, len(data))
	}
	end := metaEnd + header.PayloadSize

	if sum := Checksum(data[HeaderSize:end]); sum != header.Xxh3Hash {
		return nil, fmt.Errorf("%w: got %016x, expected %016x", ErrInvalidChecksum, sum, header.Xxh3Hash)
	}

	n := &Network{Version: header.Version}
	if err := parseMetadata(data[HeaderSize:metaEnd], n); err != nil {
		return nil, err
	}

	want, ok := payloadSize(n)
	if !ok {
		return nil, fmt.Errorf("%w: %d classes over input %v", ErrInvalidMetadata, n.Classes, inputShape(n))
	}
	if header.PayloadSize != want {
		return nil, fmt.Errorf("%w: payload holds %d bytes, %d classes over %d features need %d",
			ErrInvalidMetadata, header.PayloadSize, n.Classes, n.Features(), want)
	}
	features := n.Features()

	values := decodeWeights(data[metaEnd:end], n.Encoding)
	n.Weights = values[:n.Classes*features]
	n.Bias = values[n.Classes*features:]

	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// payloadSize is the byte size of the weight matrix plus bias. ok is false
// when the geometry is not positive or the size does not fit in 64 bits.
func payloadSize(n *Network) (uint64, bool) {
	if len(n.Inputs) == 0 || n.Classes <= 0 {
		return 0, false
	}
	s := n.Inputs[0].Shape
	perClass := uint64(1)
	for _, d := range []int{s.C, s.H, s.W} {
		if d <= 0 {
			return 0, false
		}
		hi, lo := bits.Mul64(perClass, uint64(d))
		if hi != 0 || lo > math.MaxInt32 {
			return 0, false
		}
		perClass = lo
	}
	perClass++ // bias

	hi, total := bits.Mul64(perClass, uint64(n.Classes))
	if hi != 0 {
		return 0, false
	}
	hi, total = bits.Mul64(total, uint64(n.Encoding.size()))
	if hi != 0 {
		return 0, false
	}
	return total, true
}

func inputShape(n *Network) any {
	if len(n.Inputs) == 0 {
		return "none"
	}
	return n.Inputs[0].Shape
}

// Encode serializes a network into blob bytes
func Encode(n *Network) ([]byte, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	meta := appendMetadata(nil, n)
	payload := encodeWeights(nil, n.Weights, n.Encoding)
	payload = encodeWeights(payload, n.Bias, n.Encoding)

	body := make([]byte, 0, len(meta)+len(payload))
	body = append(body, meta...)
	body = append(body, payload...)

	header := Header{
		Magic:        Magic,
		Version:      VersionV1,
		MetadataSize: uint32(len(meta)),
		Xxh3Hash:     Checksum(body),
		PayloadSize:  uint64(len(payload)),
	}

	out := header.AppendBinary(make([]byte, 0, HeaderSize+len(body)))
	return append(out, body...), nil
}

// WriteFile encodes a network and writes it to path
func WriteFile(path string, n *Network) error {
	data, err := Encode(n)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func encodeWeights(b []byte, values []float32, enc WeightEncoding) []byte {
	for _, v := range values {
		if enc == WeightsFP16 {
			b = binary.LittleEndian.AppendUint16(b, float16.Fromfloat32(v).Bits())
		} else {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
		}
	}
	return b
}

func decodeWeights(b []byte, enc WeightEncoding) []float32 {
	size := enc.size()
	out := make([]float32, len(b)/size)
	for i := range out {
		if enc == WeightsFP16 {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(b[i*2:])).Float32()
		} else {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}
	}
	return out
}
