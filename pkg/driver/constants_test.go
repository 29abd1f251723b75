//go:build unit

package driver

import (
	"testing"
)

func TestIoctlMagicValues(t *testing.T) {
	if GeneralIoctlMagic != 0x67 {
		t.Errorf("expected 0x67, got 0x%02x", GeneralIoctlMagic)
	}
	if VdmaIoctlMagic != 0x76 {
		t.Errorf("expected 0x76, got 0x%02x", VdmaIoctlMagic)
	}
}

func TestBoardTypeString(t *testing.T) {
	tests := []struct {
		board    BoardType
		expected string
	}{
		{BoardTypeHailo8, "Hailo-8"},
		{BoardTypeHailo15, "Hailo-15"},
		{BoardTypeHailo15L, "Hailo-15L"},
		{BoardTypeHailo10H, "Hailo-10H"},
		{BoardType(42), "unknown board"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.board.String(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestIocMacro(t *testing.T) {
	// _IOC(_IOC_WRITE, 'g', 1, 32)
	got := Ioc(IocWrite, int(GeneralIoctlMagic), 1, 32)
	expected := uint32(1<<30 | 0x67<<8 | 1 | 32<<16)
	if got != expected {
		t.Errorf("Ioc() = 0x%08x, expected 0x%08x", got, expected)
	}
}

func TestIoDirections(t *testing.T) {
	tests := []struct {
		name string
		got  uint32
		dir  uint32
	}{
		{"IoW", IoW(int(VdmaIoctlMagic), 4, 8), IocWrite},
		{"IoR", IoR(int(VdmaIoctlMagic), 5, 8), IocRead},
		{"IoWR", IoWR(int(VdmaIoctlMagic), 6, 8), IocRead | IocWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if dir := tt.got >> IocDirShift; dir != tt.dir {
				t.Errorf("direction = %d, expected %d", dir, tt.dir)
			}
			if typ := (tt.got >> IocTypeShift) & 0xff; typ != uint32(VdmaIoctlMagic) {
				t.Errorf("type = 0x%02x, expected 0x%02x", typ, VdmaIoctlMagic)
			}
		})
	}
}

func TestIoctlCodesAreUnique(t *testing.T) {
	codes := map[uint32]string{}
	for name, code := range map[string]uint32{
		"QueryDeviceProperties": ioctlQueryDeviceProperties,
		"QueryDriverInfo":       ioctlQueryDriverInfo,
		"VdmaBufferMap":         ioctlVdmaBufferMap,
		"VdmaBufferUnmap":       ioctlVdmaBufferUnmap,
		"VdmaBufferSync":        ioctlVdmaBufferSync,
	} {
		if other, ok := codes[code]; ok {
			t.Errorf("%s and %s share code 0x%08x", name, other, code)
		}
		codes[code] = name
	}
}

func TestAlignToPage(t *testing.T) {
	tests := []struct {
		size     uint64
		expected uint64
	}{
		{1, PageSize},
		{PageSize, PageSize},
		{PageSize + 1, 2 * PageSize},
		{1920 * 1080 * 3 / 2, 760 * PageSize},
	}

	for _, tt := range tests {
		if got := AlignToPage(tt.size); got != tt.expected {
			t.Errorf("AlignToPage(%d) = %d, expected %d", tt.size, got, tt.expected)
		}
	}
}
