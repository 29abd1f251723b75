package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/emergingrobotics/remote-offload/pkg/blob"
	"github.com/emergingrobotics/remote-offload/pkg/infer"
	"github.com/emergingrobotics/remote-offload/pkg/tensor"
)

// Core imports blobs and runs them on the host, reading bound inputs back
// from device memory
type Core struct {
	logger    *slog.Logger
	failEvery int
}

// Option configures a Core
type Option func(*Core)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Core) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFailEvery makes every n-th Infer call of each request fail
func WithFailEvery(n int) Option {
	return func(c *Core) {
		c.failEvery = n
	}
}

// New creates an execution core
func New(opts ...Option) *Core {
	c := &Core{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ImportNetwork parses a blob and loads it into ec
func (c *Core) ImportNetwork(r io.Reader, ec infer.ExecutionContext) (infer.Network, error) {
	if ec == nil || !ec.Alive() {
		return nil, fmt.Errorf("%w: %w", infer.ErrModelImport, ErrContextUnavailable)
	}

	n, err := blob.Read(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", infer.ErrModelImport, err)
	}
	if !n.CompatibleWith(ec.DeviceType()) {
		return nil, fmt.Errorf("%w: %w: %q targets %v, device is %s",
			infer.ErrModelImport, ErrIncompatible, n.Name, n.Archs, ec.DeviceType())
	}
	cls, err := n.Classifier()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", infer.ErrModelImport, err)
	}

	c.logger.Debug("network imported", "network", n.Name, "device", ec.DeviceType(),
		"classes", n.Classes, "weights", n.Encoding.String())
	return &Network{core: c, ec: ec, blob: n, cls: cls}, nil
}

// Network is an imported blob
type Network struct {
	core *Core
	ec   infer.ExecutionContext
	blob *blob.Network
	cls  *blob.Classifier

	mu     sync.Mutex
	closed bool
}

// Name returns the network name
func (n *Network) Name() string { return n.blob.Name }

// Inputs returns the declared inputs
func (n *Network) Inputs() []infer.PortInfo { return n.blob.Inputs }

// Outputs returns the declared outputs
func (n *Network) Outputs() []infer.PortInfo { return n.blob.Outputs }

// Blob returns the parsed blob
func (n *Network) Blob() *blob.Network { return n.blob }

// CreateInferRequest creates a request with no bindings
func (n *Network) CreateInferRequest() (infer.Request, error) {
	if n.isClosed() {
		return nil, infer.ErrNetworkClosed
	}
	return &Request{net: n, bindings: infer.NewBindings()}, nil
}

// Close unloads the network; its requests stop working
func (n *Network) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}

func (n *Network) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// Request is one inference request of a Network
type Request struct {
	net      *Network
	bindings *infer.Bindings

	mu      sync.Mutex
	outputs map[string]*infer.Tensor
	calls   int
	closed  bool
}

// PreProcess returns the bound preprocessing of an input, or the defaults
// for an unbound one: the port's color format and no resize
func (r *Request) PreProcess(name string) (infer.PreProcessInfo, error) {
	port, ok := infer.FindPort(r.net.Inputs(), name)
	if !ok {
		return infer.PreProcessInfo{}, fmt.Errorf("%w: %q", infer.ErrUnknownInput, name)
	}
	if bd, ok := r.bindings.Input(name); ok {
		return bd.PreProcess, nil
	}
	return infer.PreProcessInfo{ResizeAlgorithm: infer.ResizeNone, ColorFormat: port.ColorFormat}, nil
}

// SetInputBinding binds a remote tensor to a declared input
func (r *Request) SetInputBinding(name string, t *tensor.RemoteTensor, pp infer.PreProcessInfo) error {
	if r.isClosed() {
		return infer.ErrRequestClosed
	}
	return r.bindings.Bind(r.net.Inputs(), name, t, pp)
}

// Infer runs the network on the bound inputs
func (r *Request) Infer(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return infer.ErrRequestClosed
	}
	if r.net.isClosed() {
		return infer.ErrNetworkClosed
	}
	if !r.net.ec.Alive() {
		return fmt.Errorf("%w: %w", ErrInferFailed, ErrContextUnavailable)
	}

	r.calls++
	if f := r.net.core.failEvery; f > 0 && r.calls%f == 0 {
		return fmt.Errorf("%w: injected failure on call %d", ErrInferFailed, r.calls)
	}

	if err := r.bindings.Validate(r.net.Inputs()); err != nil {
		return fmt.Errorf("%w: %w", ErrInferFailed, err)
	}

	in := r.net.Inputs()[0]
	bd, _ := r.bindings.Input(in.Name)
	reg, err := bd.Tensor.ReadRegion()
	if err != nil {
		return fmt.Errorf("%w: read %q: %w", ErrInferFailed, in.Name, err)
	}
	features, err := PreprocessRegion(reg, bd.PreProcess, in)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInferFailed, err)
	}
	outputs, err := Evaluate(r.net.blob, r.net.cls, features)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInferFailed, err)
	}

	r.outputs = outputs
	r.net.core.logger.Debug("inference complete", "network", r.net.Name(), "call", r.calls)
	return nil
}

// Output returns an output of the last successful Infer
func (r *Request) Output(name string) (*infer.Tensor, error) {
	if _, ok := infer.FindPort(r.net.Outputs(), name); !ok {
		return nil, fmt.Errorf("%w: %q", infer.ErrUnknownOutput, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.outputs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", infer.ErrNoOutput, name)
	}
	return t, nil
}

// Close releases the request bindings
func (r *Request) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.outputs = nil
	r.mu.Unlock()
	return r.bindings.Release()
}

func (r *Request) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
