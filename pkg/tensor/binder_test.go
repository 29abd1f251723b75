//go:build unit

package tensor

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/emergingrobotics/remote-offload/pkg/device"
	"github.com/emergingrobotics/remote-offload/pkg/driver"
	"github.com/emergingrobotics/remote-offload/pkg/memory"
)

type fixture struct {
	ec    *device.ExecutionContext
	alloc *memory.Allocator
	b     *Binder
	sim   *driver.Simulator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sim := driver.NewSimulator(driver.SimulatorConfig{})
	mgr := device.NewManager(sim)
	wc, err := mgr.Register()
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	ec, err := mgr.CreateExecutionContext(wc, device.MustParseSelector(driver.SimulatorKind))
	if err != nil {
		t.Fatalf("CreateExecutionContext failed: %v", err)
	}
	alloc := memory.NewAllocator(ec)
	return &fixture{ec: ec, alloc: alloc, b: NewBinder(alloc, nil), sim: sim}
}

func (f *fixture) synced(t *testing.T, data []byte) memory.HandleID {
	t.Helper()
	h, err := f.alloc.Allocate(uint64(len(data)), memory.LinearDesc(uint64(len(data))))
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := f.alloc.SyncToDevice(h, data); err != nil {
		t.Fatalf("SyncToDevice failed: %v", err)
	}
	return h
}

func nv12Desc(w, h int) Desc {
	return Desc{
		Shape:       Shape{N: 1, C: 3, H: h, W: w},
		Precision:   PrecisionU8,
		Layout:      LayoutNCHW,
		ColorFormat: ColorNV12,
	}
}

func TestRequiredBytes(t *testing.T) {
	tests := []struct {
		name     string
		desc     Desc
		expected uint64
	}{
		{"nv12 1080p", nv12Desc(1920, 1080), 1920 * 1080 * 3 / 2},
		{"rgb u8", Desc{Shape: Shape{1, 3, 224, 224}, Precision: PrecisionU8, ColorFormat: ColorRGB}, 224 * 224 * 3},
		{"raw fp32", Desc{Shape: Shape{2, 1, 10, 10}, Precision: PrecisionFP32}, 2 * 100 * 4},
		{"raw fp16", Desc{Shape: Shape{1, 4, 2, 2}, Precision: PrecisionFP16}, 16 * 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.desc.RequiredBytes(); got != tt.expected {
				t.Errorf("RequiredBytes() = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestCreateTensor(t *testing.T) {
	f := newFixture(t)
	h := f.synced(t, make([]byte, 4*4*3/2))

	rt, err := f.b.CreateTensor(f.ec, nv12Desc(4, 4), h)
	if err != nil {
		t.Fatalf("CreateTensor failed: %v", err)
	}
	if rt.IsView() || !rt.Valid() {
		t.Errorf("expected a valid owning tensor")
	}
	info, _ := f.alloc.Info(h)
	if info.Refs != 2 {
		t.Errorf("expected tensor to take a share, refs=%d", info.Refs)
	}
}

func TestCreateTensorRejects(t *testing.T) {
	tests := []struct {
		name string
		desc Desc
	}{
		{"too large", nv12Desc(8, 8)},
		{"zero dim", Desc{Shape: Shape{1, 3, 0, 4}, ColorFormat: ColorNV12}},
		{"nv12 fp32", Desc{Shape: Shape{1, 3, 4, 4}, Precision: PrecisionFP32, ColorFormat: ColorNV12}},
		{"nv12 one channel", Desc{Shape: Shape{1, 1, 4, 4}, ColorFormat: ColorNV12}},
		{"rgb four channels", Desc{Shape: Shape{1, 4, 1, 1}, ColorFormat: ColorRGB}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			h := f.synced(t, make([]byte, 24))
			if _, err := f.b.CreateTensor(f.ec, tt.desc, h); !errors.Is(err, ErrTensorCreation) {
				t.Errorf("expected ErrTensorCreation, got %v", err)
			}
			info, _ := f.alloc.Info(h)
			if info.Refs != 1 {
				t.Errorf("failed creation must not take a share, refs=%d", info.Refs)
			}
		})
	}
}

func TestCreateTensorUnsyncedOrStale(t *testing.T) {
	f := newFixture(t)
	h, _ := f.alloc.Allocate(24, memory.LinearDesc(24))
	if _, err := f.b.CreateTensor(f.ec, nv12Desc(4, 4), h); !errors.Is(err, ErrTensorCreation) {
		t.Errorf("expected ErrTensorCreation for unsynced handle, got %v", err)
	}

	f.alloc.Release(h)
	_, err := f.b.CreateTensor(f.ec, nv12Desc(4, 4), h)
	if !errors.Is(err, ErrTensorCreation) || !errors.Is(err, memory.ErrStaleHandle) {
		t.Errorf("expected ErrTensorCreation wrapping ErrStaleHandle, got %v", err)
	}
}

func TestCreateTensorForeignContext(t *testing.T) {
	f := newFixture(t)
	other := newFixture(t)
	h := f.synced(t, make([]byte, 24))

	if _, err := f.b.CreateTensor(other.ec, nv12Desc(4, 4), h); !errors.Is(err, ErrTensorCreation) {
		t.Errorf("expected ErrTensorCreation, got %v", err)
	}
}

func TestRegionOfInterestBounds(t *testing.T) {
	f := newFixture(t)
	h := f.synced(t, make([]byte, 8*6*3/2))
	rt, err := f.b.CreateTensor(f.ec, nv12Desc(8, 6), h)
	if err != nil {
		t.Fatalf("CreateTensor failed: %v", err)
	}

	tests := []struct {
		name string
		roi  ROI
		ok   bool
	}{
		{"full frame", ROI{0, 0, 8, 6}, true},
		{"inner", ROI{2, 2, 4, 2}, true},
		{"bottom right", ROI{6, 4, 2, 2}, true},
		{"past right", ROI{4, 0, 6, 2}, false},
		{"past bottom", ROI{0, 2, 2, 6}, false},
		{"negative x", ROI{-2, 0, 2, 2}, false},
		{"negative y", ROI{0, -2, 2, 2}, false},
		{"empty", ROI{0, 0, 0, 2}, false},
		{"odd offset", ROI{1, 0, 2, 2}, true},
		{"odd width", ROI{0, 0, 3, 2}, true},
		{"odd height to bottom edge", ROI{0, 1, 8, 5}, true},
		{"single pixel", ROI{7, 5, 1, 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := f.b.CreateRegionOfInterest(rt, tt.roi)
			if !tt.ok {
				if !errors.Is(err, ErrInvalidRegion) {
					t.Errorf("expected ErrInvalidRegion, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateRegionOfInterest failed: %v", err)
			}
			if !view.IsView() || view.Handle() != rt.Handle() {
				t.Error("view must share the parent handle")
			}
			if got := view.Desc().Shape; got.W != tt.roi.Width || got.H != tt.roi.Height {
				t.Errorf("view shape %s does not match roi %s", got, tt.roi)
			}
		})
	}

	info, _ := f.alloc.Info(h)
	if info.Refs != 2 {
		t.Errorf("views must not take shares, refs=%d", info.Refs)
	}
}

func TestNestedRegionComposesOffsets(t *testing.T) {
	f := newFixture(t)
	h := f.synced(t, make([]byte, 8*8*3/2))
	rt, _ := f.b.CreateTensor(f.ec, nv12Desc(8, 8), h)

	outer, err := f.b.CreateRegionOfInterest(rt, ROI{2, 2, 4, 4})
	if err != nil {
		t.Fatalf("outer ROI failed: %v", err)
	}
	inner, err := f.b.CreateRegionOfInterest(outer, ROI{2, 0, 2, 4})
	if err != nil {
		t.Fatalf("inner ROI failed: %v", err)
	}
	if diff := cmp.Diff(ROI{4, 2, 2, 4}, inner.ROI()); diff != "" {
		t.Errorf("composed ROI mismatch (-want +got):\n%s", diff)
	}
	if _, err := f.b.CreateRegionOfInterest(outer, ROI{2, 0, 4, 4}); !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("inner ROI must be bounded by the outer view, got %v", err)
	}
}

func TestViewInvalidAfterMemoryReleased(t *testing.T) {
	f := newFixture(t)
	h := f.synced(t, make([]byte, 24))
	rt, _ := f.b.CreateTensor(f.ec, nv12Desc(4, 4), h)
	view, _ := f.b.CreateRegionOfInterest(rt, ROI{0, 0, 4, 4})

	if err := view.Release(); err != nil {
		t.Errorf("view Release should be a no-op, got %v", err)
	}
	if !view.Valid() {
		t.Fatal("view should be valid while the parent holds memory")
	}

	rt.Release()
	rt.Release()
	f.alloc.Release(h)

	if view.Valid() {
		t.Error("view must be invalid once the memory is freed")
	}
	if _, err := view.ReadRegion(); !errors.Is(err, ErrReleased) {
		t.Errorf("expected ErrReleased, got %v", err)
	}
	if f.sim.LiveBuffers() != 0 {
		t.Errorf("expected buffer freed, %d live", f.sim.LiveBuffers())
	}
}

func TestViewInvalidAfterContextClose(t *testing.T) {
	f := newFixture(t)
	h := f.synced(t, make([]byte, 24))
	rt, _ := f.b.CreateTensor(f.ec, nv12Desc(4, 4), h)

	f.ec.Close()
	if rt.Valid() {
		t.Error("tensor must be invalid after its execution context closes")
	}
}

func TestReadRegionCropsNV12(t *testing.T) {
	f := newFixture(t)
	frame := make([]byte, 4*4*3/2)
	for i := range frame {
		frame[i] = byte(i)
	}
	h := f.synced(t, frame)
	rt, _ := f.b.CreateTensor(f.ec, nv12Desc(4, 4), h)

	whole, err := rt.ReadRegion()
	if err != nil {
		t.Fatalf("ReadRegion failed: %v", err)
	}
	if !whole.Exact() {
		t.Errorf("full read should be exact, inner %s", whole.Inner)
	}
	if diff := cmp.Diff(frame, whole.Data); diff != "" {
		t.Errorf("full read mismatch (-want +got):\n%s", diff)
	}

	view, _ := f.b.CreateRegionOfInterest(rt, ROI{2, 2, 2, 2})
	got, err := view.ReadRegion()
	if err != nil {
		t.Fatalf("ReadRegion failed: %v", err)
	}
	// luma rows 2,3 cols 2,3 then the second UV row's right pair
	if diff := cmp.Diff([]byte{10, 11, 14, 15, 22, 23}, got.Data); diff != "" {
		t.Errorf("crop mismatch (-want +got):\n%s", diff)
	}
	if !got.Exact() {
		t.Errorf("aligned crop should be exact, inner %s", got.Inner)
	}
}

func TestReadRegionWidensUnalignedNV12(t *testing.T) {
	f := newFixture(t)
	frame := make([]byte, 4*4*3/2)
	for i := range frame {
		frame[i] = byte(i)
	}
	h := f.synced(t, frame)
	rt, _ := f.b.CreateTensor(f.ec, nv12Desc(4, 4), h)

	tests := []struct {
		name  string
		roi   ROI
		data  []byte
		w, h  int
		inner ROI
	}{
		{"odd column pair", ROI{3, 2, 1, 2}, []byte{10, 11, 14, 15, 22, 23}, 2, 2, ROI{1, 0, 1, 2}},
		{"straddles the grid", ROI{1, 1, 2, 2}, frame, 4, 4, ROI{1, 1, 2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := f.b.CreateRegionOfInterest(rt, tt.roi)
			if err != nil {
				t.Fatalf("CreateRegionOfInterest failed: %v", err)
			}
			got, err := view.ReadRegion()
			if err != nil {
				t.Fatalf("ReadRegion failed: %v", err)
			}
			if diff := cmp.Diff(tt.data, got.Data); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
			if got.Desc.Shape.W != tt.w || got.Desc.Shape.H != tt.h {
				t.Errorf("read shape %s, expected %dx%d", got.Desc.Shape, tt.w, tt.h)
			}
			if diff := cmp.Diff(tt.inner, got.Inner); diff != "" {
				t.Errorf("inner mismatch (-want +got):\n%s", diff)
			}
			if got.Exact() {
				t.Error("widened read must not report exact")
			}
		})
	}
}

func TestParseNames(t *testing.T) {
	if p, err := ParsePrecision("fp32"); err != nil || p != PrecisionFP32 {
		t.Errorf("ParsePrecision(fp32) = %v, %v", p, err)
	}
	if c, err := ParseColorFormat("nv12"); err != nil || c != ColorNV12 {
		t.Errorf("ParseColorFormat(nv12) = %v, %v", c, err)
	}
	if _, err := ParseColorFormat("CMYK"); err == nil {
		t.Error("expected error for unknown color format")
	}
}
