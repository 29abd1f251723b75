//go:build unit

package blob

import (
	"encoding/binary"
	"errors"
	"testing"
)

func makeValidHeader() []byte {
	data := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(data[0:4], Magic)
	binary.LittleEndian.PutUint32(data[4:8], VersionV1)
	binary.LittleEndian.PutUint32(data[8:12], 1000)
	binary.LittleEndian.PutUint64(data[12:20], 0xDEADBEEFCAFEF00D)
	binary.LittleEndian.PutUint64(data[20:28], 4096)
	return data
}

func TestParseHeader(t *testing.T) {
	header, err := ParseHeader(makeValidHeader())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if header.MetadataSize != 1000 {
		t.Errorf("MetadataSize = %d, expected 1000", header.MetadataSize)
	}
	if header.Xxh3Hash != 0xDEADBEEFCAFEF00D {
		t.Errorf("Xxh3Hash = %016x", header.Xxh3Hash)
	}
	if header.PayloadSize != 4096 {
		t.Errorf("PayloadSize = %d, expected 4096", header.PayloadSize)
	}
}

func TestInvalidMagicNumber(t *testing.T) {
	data := makeValidHeader()
	binary.LittleEndian.PutUint32(data[0:4], 0x01484546)

	_, err := ParseHeader(data)
	if !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestUnknownVersionRejected(t *testing.T) {
	for _, version := range []uint32{0, 2, 99} {
		data := makeValidHeader()
		binary.LittleEndian.PutUint32(data[4:8], version)

		_, err := ParseHeader(data)
		if !errors.Is(err, ErrUnsupportedVersion) {
			t.Errorf("version %d: expected ErrUnsupportedVersion, got %v", version, err)
		}
	}
}

func TestTruncatedHeaderRejected(t *testing.T) {
	data := makeValidHeader()
	for _, size := range []int{0, 4, 12, HeaderSize - 1} {
		_, err := ParseHeader(data[:size])
		if !errors.Is(err, ErrTruncatedHeader) {
			t.Errorf("size %d: expected ErrTruncatedHeader, got %v", size, err)
		}
	}
}

func TestHeaderAppendBinary(t *testing.T) {
	h := Header{Magic: Magic, Version: VersionV1, MetadataSize: 7, Xxh3Hash: 42, PayloadSize: 9}
	data := h.AppendBinary(nil)
	if len(data) != HeaderSize {
		t.Fatalf("encoded header is %d bytes, expected %d", len(data), HeaderSize)
	}
	got, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if *got != h {
		t.Errorf("ParseHeader = %+v, expected %+v", *got, h)
	}
}

func TestMagicSpellsOFXB(t *testing.T) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], Magic)
	if string(b[:]) != "OFXB" {
		t.Errorf("magic bytes = %q, expected OFXB", b[:])
	}
}
