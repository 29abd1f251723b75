package testutil

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/emergingrobotics/remote-offload/pkg/blob"
	"github.com/emergingrobotics/remote-offload/pkg/device"
	"github.com/emergingrobotics/remote-offload/pkg/driver"
)

// SkipIfNoDevice skips test if no accelerator device node is present
func SkipIfNoDevice(t *testing.T) string {
	t.Helper()

	devices, err := driver.ScanDevices()
	if err == nil && len(devices) > 0 {
		return devices[0]
	}
	t.Skip("No accelerator device available")
	return ""
}

// TempFile creates a temporary file with content
func TempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// WriteBlob encodes n into a temporary blob file
func WriteBlob(t *testing.T, n *blob.Network) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), n.Name+".blob")
	if err := blob.WriteFile(path, n); err != nil {
		t.Fatalf("failed to write blob: %v", err)
	}
	return path
}

// SimManager returns a registration manager over a fresh simulator, closed
// when the test ends
func SimManager(t *testing.T, cfg driver.SimulatorConfig) (*device.Manager, *driver.Simulator) {
	t.Helper()
	sim := driver.NewSimulator(cfg)
	mgr := device.NewManager(sim)
	t.Cleanup(func() { mgr.Close() })
	return mgr, sim
}

// ExecutionContext registers a workload context on mgr and binds it
func ExecutionContext(t *testing.T, mgr *device.Manager) *device.ExecutionContext {
	t.Helper()
	wc, err := mgr.Register()
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	ec, err := mgr.CreateExecutionContext(wc, device.Selector{Kind: mgr.Info().Kind, Index: device.AnyIndex})
	if err != nil {
		t.Fatalf("CreateExecutionContext failed: %v", err)
	}
	return ec
}

// NV12Frame generates a deterministic NV12 frame: a diagonal luma
// gradient with seeded noise and smoothly varying chroma
func NV12Frame(width, height int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	frame := make([]byte, width*height*3/2)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := (x*255/width+y*255/height)/2 + rng.Intn(32) - 16
			frame[y*width+x] = clampByte(v)
		}
	}
	uv := frame[width*height:]
	for y := 0; y < height/2; y++ {
		for x := 0; x < width/2; x++ {
			uv[y*width+2*x] = clampByte(64 + x*128/(width/2) + rng.Intn(8))
			uv[y*width+2*x+1] = clampByte(192 - y*128/(height/2) + rng.Intn(8))
		}
	}
	return frame
}

// PlanarRGBFrame generates a deterministic channel-major RGB image
func PlanarRGBFrame(width, height int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	frame := make([]byte, 3*width*height)
	for c := 0; c < 3; c++ {
		for i := 0; i < width*height; i++ {
			frame[c*width*height+i] = clampByte((i%width)*255/width/(c+1) + rng.Intn(16))
		}
	}
	return frame
}

// MakeRandomBytes creates seeded random bytes
func MakeRandomBytes(size int, seed int64) []byte {
	data := make([]byte, size)
	rand.New(rand.NewSource(seed)).Read(data)
	return data
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
