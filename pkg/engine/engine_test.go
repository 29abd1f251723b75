//go:build unit

package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/emergingrobotics/remote-offload/pkg/blob"
	"github.com/emergingrobotics/remote-offload/pkg/device"
	"github.com/emergingrobotics/remote-offload/pkg/driver"
	"github.com/emergingrobotics/remote-offload/pkg/infer"
	"github.com/emergingrobotics/remote-offload/pkg/memory"
	"github.com/emergingrobotics/remote-offload/pkg/tensor"
	"github.com/emergingrobotics/remote-offload/pkg/transform"
	"github.com/emergingrobotics/remote-offload/testutil"
)

const (
	frameW = 64
	frameH = 48
)

type fixture struct {
	ec    *device.ExecutionContext
	alloc *memory.Allocator
	b     *tensor.Binder
	net   *blob.Network
}

func newFixture(t *testing.T, out tensor.Precision) *fixture {
	t.Helper()
	mgr, _ := testutil.SimManager(t, driver.SimulatorConfig{})
	ec := testutil.ExecutionContext(t, mgr)
	alloc := memory.NewAllocator(ec)
	return &fixture{
		ec:    ec,
		alloc: alloc,
		b:     tensor.NewBinder(alloc, nil),
		net: blob.Random(3, blob.RandomOptions{
			Archs: []string{driver.SimulatorKind}, InputWidth: 16, InputHeight: 12,
			Classes: 30, OutputPrecision: out,
		}),
	}
}

func (f *fixture) encoded(t *testing.T) *bytes.Reader {
	t.Helper()
	data, err := blob.Encode(f.net)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return bytes.NewReader(data)
}

func (f *fixture) importNetwork(t *testing.T, c *Core) infer.Network {
	t.Helper()
	n, err := c.ImportNetwork(f.encoded(t), f.ec)
	if err != nil {
		t.Fatalf("ImportNetwork failed: %v", err)
	}
	return n
}

// frameView uploads an NV12 frame and returns a full-frame view of it
func (f *fixture) frameView(t *testing.T, frame []byte) *tensor.RemoteTensor {
	t.Helper()
	return f.regionView(t, frame, tensor.ROI{Width: frameW, Height: frameH})
}

func (f *fixture) regionView(t *testing.T, frame []byte, roi tensor.ROI) *tensor.RemoteTensor {
	t.Helper()
	h, err := f.alloc.Allocate(uint64(len(frame)), memory.LinearDesc(uint64(len(frame))))
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := f.alloc.SyncToDevice(h, frame); err != nil {
		t.Fatalf("SyncToDevice failed: %v", err)
	}
	rt, err := f.b.CreateTensor(f.ec, tensor.Desc{
		Shape: tensor.Shape{N: 1, C: 3, H: frameH, W: frameW}, ColorFormat: tensor.ColorNV12,
	}, h)
	if err != nil {
		t.Fatalf("CreateTensor failed: %v", err)
	}
	view, err := f.b.CreateRegionOfInterest(rt, roi)
	if err != nil {
		t.Fatalf("CreateRegionOfInterest failed: %v", err)
	}
	return view
}

func TestImportIncompatible(t *testing.T) {
	f := newFixture(t, tensor.PrecisionFP32)
	f.net.Archs = []string{"VPUX"}

	_, err := New().ImportNetwork(f.encoded(t), f.ec)
	if !errors.Is(err, infer.ErrModelImport) || !errors.Is(err, ErrIncompatible) {
		t.Errorf("expected ErrModelImport wrapping ErrIncompatible, got %v", err)
	}
}

func TestImportCorrupt(t *testing.T) {
	f := newFixture(t, tensor.PrecisionFP32)
	_, err := New().ImportNetwork(bytes.NewReader([]byte("not a blob at all, just text padding")), f.ec)
	if !errors.Is(err, infer.ErrModelImport) || !errors.Is(err, blob.ErrInvalidMagic) {
		t.Errorf("expected ErrModelImport wrapping ErrInvalidMagic, got %v", err)
	}
}

func TestImportClosedContext(t *testing.T) {
	f := newFixture(t, tensor.PrecisionFP32)
	f.ec.Close()
	_, err := New().ImportNetwork(f.encoded(t), f.ec)
	if !errors.Is(err, infer.ErrModelImport) {
		t.Errorf("expected ErrModelImport, got %v", err)
	}
}

func TestPreProcessDefaults(t *testing.T) {
	f := newFixture(t, tensor.PrecisionFP32)
	n := f.importNetwork(t, New())
	req, err := n.CreateInferRequest()
	if err != nil {
		t.Fatalf("CreateInferRequest failed: %v", err)
	}

	pp, err := req.PreProcess("data")
	if err != nil {
		t.Fatalf("PreProcess failed: %v", err)
	}
	want := infer.PreProcessInfo{ResizeAlgorithm: infer.ResizeNone, ColorFormat: tensor.ColorRGB}
	if pp != want {
		t.Errorf("PreProcess = %+v, expected %+v", pp, want)
	}

	if _, err := req.PreProcess("nope"); !errors.Is(err, infer.ErrUnknownInput) {
		t.Errorf("expected ErrUnknownInput, got %v", err)
	}
}

func TestInferMatchesHostPipeline(t *testing.T) {
	for _, prec := range []tensor.Precision{tensor.PrecisionFP32, tensor.PrecisionU8} {
		t.Run(prec.String(), func(t *testing.T) {
			f := newFixture(t, prec)
			n := f.importNetwork(t, New())
			req, err := n.CreateInferRequest()
			if err != nil {
				t.Fatal(err)
			}

			frame := testutil.NV12Frame(frameW, frameH, 11)
			pp := infer.PreProcessInfo{ResizeAlgorithm: infer.ResizeBilinear, ColorFormat: tensor.ColorNV12}
			if err := req.SetInputBinding("data", f.frameView(t, frame), pp); err != nil {
				t.Fatalf("SetInputBinding failed: %v", err)
			}
			if err := req.Infer(context.Background()); err != nil {
				t.Fatalf("Infer failed: %v", err)
			}
			got, err := req.Output("prob")
			if err != nil {
				t.Fatalf("Output failed: %v", err)
			}

			desc := tensor.Desc{Shape: tensor.Shape{N: 1, C: 3, H: frameH, W: frameW}, ColorFormat: tensor.ColorNV12}
			features, err := Preprocess(frame, desc, pp, f.net.Inputs[0])
			if err != nil {
				t.Fatal(err)
			}
			cls, err := f.net.Classifier()
			if err != nil {
				t.Fatal(err)
			}
			want, err := Evaluate(f.net, cls, features)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(want["prob"], got); diff != "" {
				t.Errorf("output mismatch (-host +device):\n%s", diff)
			}
			if got.Precision != prec {
				t.Errorf("output precision = %s, expected %s", got.Precision, prec)
			}
		})
	}
}

func TestInferOddRegion(t *testing.T) {
	for _, roi := range []tensor.ROI{{X: 1, Y: 1, Width: 61, Height: 45}, {X: 3, Y: 0, Width: 37, Height: 29}, {X: 0, Y: 1, Width: 64, Height: 47}} {
		t.Run(roi.String(), func(t *testing.T) {
			f := newFixture(t, tensor.PrecisionFP32)
			req, err := f.importNetwork(t, New()).CreateInferRequest()
			if err != nil {
				t.Fatal(err)
			}

			frame := testutil.NV12Frame(frameW, frameH, 5)
			pp := infer.PreProcessInfo{ResizeAlgorithm: infer.ResizeBilinear, ColorFormat: tensor.ColorNV12}
			if err := req.SetInputBinding("data", f.regionView(t, frame, roi), pp); err != nil {
				t.Fatalf("SetInputBinding failed: %v", err)
			}
			if err := req.Infer(context.Background()); err != nil {
				t.Fatalf("Infer failed: %v", err)
			}
			got, err := req.Output("prob")
			if err != nil {
				t.Fatalf("Output failed: %v", err)
			}

			// host side: convert the whole frame, then cut the region out of RGB
			rgb, err := ToRGB(frame, tensor.Desc{Shape: tensor.Shape{N: 1, C: 3, H: frameH, W: frameW}, ColorFormat: tensor.ColorNV12}, tensor.ColorRaw)
			if err != nil {
				t.Fatal(err)
			}
			crop, err := transform.CropInterleaved(rgb, frameW, frameH, 3, 1, transform.Rect(roi))
			if err != nil {
				t.Fatal(err)
			}
			desc := tensor.Desc{
				Shape:  tensor.Shape{N: 1, C: 3, H: roi.Height, W: roi.Width},
				Layout: tensor.LayoutNHWC, ColorFormat: tensor.ColorRGB,
			}
			features, err := Preprocess(crop, desc, infer.PreProcessInfo{ResizeAlgorithm: infer.ResizeBilinear}, f.net.Inputs[0])
			if err != nil {
				t.Fatal(err)
			}
			cls, err := f.net.Classifier()
			if err != nil {
				t.Fatal(err)
			}
			want, err := Evaluate(f.net, cls, features)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(want["prob"], got); diff != "" {
				t.Errorf("output mismatch (-host +device):\n%s", diff)
			}
		})
	}
}

func TestInferMissingBinding(t *testing.T) {
	f := newFixture(t, tensor.PrecisionFP32)
	req, _ := f.importNetwork(t, New()).CreateInferRequest()

	err := req.Infer(context.Background())
	if !errors.Is(err, ErrInferFailed) || !errors.Is(err, infer.ErrMissingBinding) {
		t.Errorf("expected ErrInferFailed wrapping ErrMissingBinding, got %v", err)
	}
	if _, err := req.Output("prob"); !errors.Is(err, infer.ErrNoOutput) {
		t.Errorf("expected ErrNoOutput, got %v", err)
	}
}

func TestInferWithoutResize(t *testing.T) {
	f := newFixture(t, tensor.PrecisionFP32)
	req, _ := f.importNetwork(t, New()).CreateInferRequest()
	view := f.frameView(t, testutil.NV12Frame(frameW, frameH, 1))
	if err := req.SetInputBinding("data", view, infer.PreProcessInfo{ColorFormat: tensor.ColorNV12}); err != nil {
		t.Fatal(err)
	}

	err := req.Infer(context.Background())
	if !errors.Is(err, ErrGeometry) {
		t.Errorf("expected ErrGeometry, got %v", err)
	}
}

func TestFailEvery(t *testing.T) {
	f := newFixture(t, tensor.PrecisionFP32)
	req, _ := f.importNetwork(t, New(WithFailEvery(2))).CreateInferRequest()
	view := f.frameView(t, testutil.NV12Frame(frameW, frameH, 1))
	pp := infer.PreProcessInfo{ResizeAlgorithm: infer.ResizeArea, ColorFormat: tensor.ColorNV12}
	if err := req.SetInputBinding("data", view, pp); err != nil {
		t.Fatal(err)
	}

	for call, wantErr := range []bool{false, true, false, true} {
		err := req.Infer(context.Background())
		if (err != nil) != wantErr {
			t.Errorf("call %d: err = %v, expected failure %v", call+1, err, wantErr)
		}
		if wantErr && !errors.Is(err, ErrInferFailed) {
			t.Errorf("call %d: expected ErrInferFailed, got %v", call+1, err)
		}
	}
}

func TestInferAfterContextClose(t *testing.T) {
	f := newFixture(t, tensor.PrecisionFP32)
	req, _ := f.importNetwork(t, New()).CreateInferRequest()
	view := f.frameView(t, testutil.NV12Frame(frameW, frameH, 1))
	req.SetInputBinding("data", view, infer.PreProcessInfo{ResizeAlgorithm: infer.ResizeBilinear, ColorFormat: tensor.ColorNV12})

	f.ec.Close()
	if err := req.Infer(context.Background()); !errors.Is(err, ErrContextUnavailable) {
		t.Errorf("expected ErrContextUnavailable, got %v", err)
	}
}

func TestInferCancelled(t *testing.T) {
	f := newFixture(t, tensor.PrecisionFP32)
	req, _ := f.importNetwork(t, New()).CreateInferRequest()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := req.Infer(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNetworkClose(t *testing.T) {
	f := newFixture(t, tensor.PrecisionFP32)
	n := f.importNetwork(t, New())
	req, _ := n.CreateInferRequest()
	n.Close()

	if _, err := n.CreateInferRequest(); !errors.Is(err, infer.ErrNetworkClosed) {
		t.Errorf("expected ErrNetworkClosed, got %v", err)
	}
	if err := req.Infer(context.Background()); !errors.Is(err, infer.ErrNetworkClosed) {
		t.Errorf("expected ErrNetworkClosed, got %v", err)
	}
}

func TestRequestClose(t *testing.T) {
	f := newFixture(t, tensor.PrecisionFP32)
	req, _ := f.importNetwork(t, New()).CreateInferRequest()
	if err := req.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := req.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	view := f.frameView(t, testutil.NV12Frame(frameW, frameH, 1))
	if err := req.SetInputBinding("data", view, infer.PreProcessInfo{}); !errors.Is(err, infer.ErrRequestClosed) {
		t.Errorf("expected ErrRequestClosed, got %v", err)
	}
}
