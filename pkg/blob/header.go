package blob

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/xxh3"
)

// ParseHeader parses the blob header from raw bytes
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrTruncatedHeader
	}

	header := &Header{
		Magic:        binary.LittleEndian.Uint32(data[0:4]),
		Version:      binary.LittleEndian.Uint32(data[4:8]),
		MetadataSize: binary.LittleEndian.Uint32(data[8:12]),
		Xxh3Hash:     binary.LittleEndian.Uint64(data[12:20]),
		PayloadSize:  binary.LittleEndian.Uint64(data[20:28]),
		Reserved:     binary.LittleEndian.Uint32(data[28:32]),
	}

	if header.Magic != Magic {
		return nil, fmt.Errorf("%w: got 0x%08X, expected 0x%08X", ErrInvalidMagic, header.Magic, Magic)
	}
	if header.Version != VersionV1 {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, header.Version)
	}

	return header, nil
}

// AppendBinary appends the encoded header to b
func (h *Header) AppendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, h.Magic)
	b = binary.LittleEndian.AppendUint32(b, h.Version)
	b = binary.LittleEndian.AppendUint32(b, h.MetadataSize)
	b = binary.LittleEndian.AppendUint64(b, h.Xxh3Hash)
	b = binary.LittleEndian.AppendUint64(b, h.PayloadSize)
	b = binary.LittleEndian.AppendUint32(b, h.Reserved)
	return b
}

// Checksum hashes everything after the header
func Checksum(body []byte) uint64 {
	return xxh3.Hash(body)
}
