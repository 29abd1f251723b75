package validate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/image/draw"

	"github.com/emergingrobotics/remote-offload/pkg/blob"
	"github.com/emergingrobotics/remote-offload/pkg/engine"
	"github.com/emergingrobotics/remote-offload/pkg/infer"
	"github.com/emergingrobotics/remote-offload/pkg/tensor"
	"github.com/emergingrobotics/remote-offload/pkg/transform"
)

// Input is the logical frame the reference path evaluates
type Input struct {
	Frame           []byte
	Width           int
	Height          int
	ColorFormat     tensor.ColorFormat
	Precision       tensor.Precision
	ResizeAlgorithm infer.ResizeAlgorithm
}

type model struct {
	net *blob.Network
	cls *blob.Classifier
}

// Harness computes reference outputs on the host. It touches no device
// state and is safe for concurrent use.
type Harness struct {
	logger     *slog.Logger
	outputName string
	interp     draw.Interpolator

	mu     sync.Mutex
	models map[string]*model
}

// Option configures a Harness
type Option func(*Harness)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithOutputName selects the output to capture instead of the first one
func WithOutputName(name string) Option {
	return func(h *Harness) {
		h.outputName = name
	}
}

// WithInterpolator resizes with interp instead of the input's resize
// algorithm, so the reference does not share the device path's resampler.
func WithInterpolator(interp draw.Interpolator) Option {
	return func(h *Harness) {
		h.interp = interp
	}
}

// NewHarness creates a reference harness
func NewHarness(opts ...Option) *Harness {
	h := &Harness{
		logger: slog.Default(),
		models: make(map[string]*model),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ComputeReference runs the model at modelPath on in and returns the
// captured output in the model's declared precision
func (h *Harness) ComputeReference(ctx context.Context, modelPath string, in Input) (*infer.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Precision != tensor.PrecisionU8 {
		return nil, fmt.Errorf("%w: %s input", ErrUnsupportedPrecision, in.Precision)
	}

	m, err := h.load(modelPath)
	if err != nil {
		return nil, err
	}
	port, err := m.net.Input()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReference, err)
	}
	out, err := m.net.Output(h.outputName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReference, err)
	}

	desc := tensor.Desc{
		Shape:       tensor.Shape{N: 1, C: 3, H: in.Height, W: in.Width},
		Precision:   in.Precision,
		Layout:      tensor.LayoutNCHW,
		ColorFormat: in.ColorFormat,
	}
	features, err := h.preprocess(in, desc, port)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReference, err)
	}
	outputs, err := engine.Evaluate(m.net, m.cls, features)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReference, err)
	}

	h.logger.Debug("reference computed", "model", m.net.Name, "output", out.Name, "precision", out.Precision.String())
	return outputs[out.Name], nil
}

func (h *Harness) preprocess(in Input, desc tensor.Desc, port infer.PortInfo) ([]float32, error) {
	if h.interp == nil {
		pp := infer.PreProcessInfo{ResizeAlgorithm: in.ResizeAlgorithm, ColorFormat: in.ColorFormat}
		return engine.Preprocess(in.Frame, desc, pp, port)
	}
	rgb, err := engine.ToRGB(in.Frame, desc, in.ColorFormat)
	if err != nil {
		return nil, err
	}
	dstH, dstW := port.Shape.H, port.Shape.W
	if in.Height != dstH || in.Width != dstW {
		if rgb, err = transform.Resize(rgb, in.Height, in.Width, dstH, dstW, h.interp); err != nil {
			return nil, err
		}
	}
	return transform.RGBToFeatures(rgb, dstH, dstW), nil
}

func (h *Harness) load(path string) (*model, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, ok := h.models[path]; ok {
		return m, nil
	}
	net, err := blob.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReference, err)
	}
	cls, err := net.Classifier()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReference, err)
	}
	m := &model{net: net, cls: cls}
	h.models[path] = m
	return m, nil
}
