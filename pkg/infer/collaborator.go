package infer

import (
	"context"
	"io"

	"github.com/emergingrobotics/remote-offload/pkg/tensor"
)

// ExecutionContext is the device context a network is imported into
type ExecutionContext interface {
	DeviceType() string
	Alive() bool
}

// Core imports compiled networks. Implementations wrap rejection errors
// with ErrModelImport.
type Core interface {
	ImportNetwork(r io.Reader, ec ExecutionContext) (Network, error)
}

// Network is a compiled network loaded into an execution context
type Network interface {
	Name() string
	Inputs() []PortInfo
	Outputs() []PortInfo
	CreateInferRequest() (Request, error)
	Close() error
}

// Request is a single inference request with its input bindings
type Request interface {
	// PreProcess returns the preprocessing currently attached to an input
	PreProcess(name string) (PreProcessInfo, error)

	// SetInputBinding binds t to a declared input, replacing any previous
	// binding for that name
	SetInputBinding(name string, t *tensor.RemoteTensor, pp PreProcessInfo) error

	// Infer runs the request to completion
	Infer(ctx context.Context) error

	// Output returns a computed output tensor
	Output(name string) (*Tensor, error)

	Close() error
}

// FindPort returns the named port
func FindPort(ports []PortInfo, name string) (PortInfo, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return PortInfo{}, false
}
