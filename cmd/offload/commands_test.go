//go:build unit

package main

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergingrobotics/remote-offload/pkg/blob"
	"github.com/emergingrobotics/remote-offload/pkg/config"
	"github.com/emergingrobotics/remote-offload/pkg/device"
	"github.com/emergingrobotics/remote-offload/pkg/driver"
	"github.com/emergingrobotics/remote-offload/pkg/tensor"
	"github.com/emergingrobotics/remote-offload/pkg/validate"
	"github.com/emergingrobotics/remote-offload/testutil"
)

// execute runs the root command with args and returns stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeModel(t *testing.T, prec tensor.Precision) string {
	t.Helper()
	return testutil.WriteBlob(t, blob.Random(5, blob.RandomOptions{
		Name:            "cli-" + prec.String(),
		Archs:           []string{driver.SimulatorKind},
		InputWidth:      16,
		InputHeight:     12,
		Classes:         50,
		OutputPrecision: prec,
	}))
}

func TestRootCommand(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage")
	for _, sub := range []string{"scan", "info", "run", "validate", "mkblob", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestRunCommandHelp(t *testing.T) {
	out, err := execute(t, "run", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage")
	assert.Contains(t, out, "--iterations")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version")
	assert.Contains(t, out, Version)
}

func TestScanCommand(t *testing.T) {
	out, err := execute(t, "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "SELECTOR")
	for _, kind := range device.SimulatedKinds {
		assert.Contains(t, out, kind+".0")
	}
}

func TestInfoCommand(t *testing.T) {
	out, err := execute(t, "info", "SIM")
	require.NoError(t, err)
	assert.Contains(t, out, "Slots")
	assert.Contains(t, out, driver.SimulatorKind)
}

func TestInfoCommandUnknownDevice(t *testing.T) {
	_, err := execute(t, "info", "FOO")
	require.Error(t, err)
	assert.True(t, errors.Is(err, device.ErrUnknownDeviceType), "got %v", err)
}

func TestMkblobCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "net.blob")
	out, err := execute(t, "mkblob", path,
		"--name", "made", "--classes", "12", "--input-width", "8", "--input-height", "6",
		"--arch", "SIM,VPUX", "--fp16", "--output-precision", "U8")
	require.NoError(t, err)
	assert.Contains(t, out, "made")

	n, err := blob.Parse(path)
	require.NoError(t, err)
	assert.Equal(t, "made", n.Name)
	assert.Equal(t, 12, n.Classes)
	assert.Equal(t, []string{"SIM", "VPUX"}, n.Archs)
	assert.Equal(t, blob.WeightsFP16, n.Encoding)
	assert.Equal(t, tensor.PrecisionU8, n.Outputs[0].Precision)
	assert.Equal(t, tensor.Shape{N: 1, C: 3, H: 6, W: 8}, n.Inputs[0].Shape)
}

func TestMkblobCommandRejectsPrecision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "net.blob")
	_, err := execute(t, "mkblob", path, "--output-precision", "FP16")
	require.Error(t, err)
	_, err = execute(t, "mkblob", path, "--output-precision", "INT3")
	require.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	for _, prec := range []tensor.Precision{tensor.PrecisionU8, tensor.PrecisionFP32} {
		t.Run(prec.String(), func(t *testing.T) {
			model := writeModel(t, prec)
			out, err := execute(t, "run", "--model", model, "--width", "64", "--height", "48", "--iterations", "3")
			require.NoError(t, err)
			assert.Contains(t, out, "cli-"+prec.String())
			assert.Contains(t, out, "INFERENCES")
		})
	}
}

func TestRunCommandFrameFile(t *testing.T) {
	model := writeModel(t, tensor.PrecisionFP32)
	frame := testutil.TempFile(t, "frame.raw", testutil.NV12Frame(64, 48, 3))
	_, err := execute(t, "run", "--model", model, "--frame", frame, "--width", "64", "--height", "48", "--iterations", "1")
	require.NoError(t, err)

	short := testutil.TempFile(t, "short.raw", make([]byte, 10))
	_, err = execute(t, "run", "--model", model, "--frame", short, "--width", "64", "--height", "48")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs")
}

func TestRunCommandFromConfigFile(t *testing.T) {
	model := writeModel(t, tensor.PrecisionU8)
	cfg := testutil.TempFile(t, "offload.yaml", []byte(fmt.Sprintf(
		"device: SIM\nmodel: %s\nframe:\n  width: 32\n  height: 24\n  color_format: RGB\nresize: area\niterations: 2\n", model)))

	out, err := execute(t, "run", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "cli-U8")
}

func TestValidateCommand(t *testing.T) {
	for _, prec := range []tensor.Precision{tensor.PrecisionU8, tensor.PrecisionFP32} {
		t.Run(prec.String(), func(t *testing.T) {
			model := writeModel(t, prec)
			out, err := execute(t, "validate", "--model", model, "--width", "64", "--height", "48", "--topk", "5", "--seed", "11")
			require.NoError(t, err)
			assert.Contains(t, out, "top-5 match")
			assert.Equal(t, 1, strings.Count(out, "OFFLOAD"))
		})
	}
}

func TestValidateCommandDifferentReference(t *testing.T) {
	model := writeModel(t, tensor.PrecisionFP32)
	other := testutil.WriteBlob(t, blob.Random(77, blob.RandomOptions{
		Name:            "other",
		Archs:           []string{driver.SimulatorKind},
		InputWidth:      16,
		InputHeight:     12,
		Classes:         50,
		OutputPrecision: tensor.PrecisionFP32,
	}))

	_, err := execute(t, "validate", "--model", model, "--reference-model", other,
		"--width", "64", "--height", "48", "--topk", "10")
	require.Error(t, err)
	assert.ErrorIs(t, err, errMismatch)
}

func TestValidateCommandTolerance(t *testing.T) {
	model := writeModel(t, tensor.PrecisionFP32)
	out, err := execute(t, "validate", "--model", model, "--width", "64", "--height", "48",
		"--topk", "5", "--tolerance", "0.5")
	require.NoError(t, err)
	assert.Contains(t, out, "ties within 0.5")

	_, err = execute(t, "validate", "--model", model, "--width", "64", "--height", "48", "--tolerance", "-1")
	assert.ErrorIs(t, err, validate.ErrInvalidTolerance)
}

func TestFlagValidation(t *testing.T) {
	model := writeModel(t, tensor.PrecisionFP32)
	tests := []struct {
		name string
		args []string
	}{
		{"no model", []string{"run"}},
		{"odd NV12 width", []string{"run", "--model", model, "--width", "63", "--height", "48"}},
		{"unknown resize", []string{"run", "--model", model, "--resize", "cubic"}},
		{"unknown color", []string{"run", "--model", model, "--color", "CMYK"}},
		{"zero iterations", []string{"run", "--model", model, "--iterations", "0"}},
		{"bad selector", []string{"run", "--model", model, "--device", "SIM.x"}},
		{"zero topk", []string{"validate", "--model", model, "--topk", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrInvalid)
		})
	}
}
