package infer

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/emergingrobotics/remote-offload/pkg/tensor"
)

// Binding associates an input with a remote tensor and its preprocessing
type Binding struct {
	Tensor     *tensor.RemoteTensor
	PreProcess PreProcessInfo
}

// Bindings holds one binding per input name
type Bindings struct {
	mu     sync.Mutex
	inputs map[string]Binding
}

// NewBindings creates new empty bindings
func NewBindings() *Bindings {
	return &Bindings{
		inputs: make(map[string]Binding),
	}
}

// Bind attaches t and pp to a declared input, taking over the caller's
// share of t. A previous binding for the name is replaced and its tensor
// released. Unknown names fail with ErrUnknownInput and leave every
// binding untouched.
func (b *Bindings) Bind(declared []PortInfo, name string, t *tensor.RemoteTensor, pp PreProcessInfo) error {
	if _, ok := FindPort(declared, name); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownInput, name)
	}
	if t == nil {
		return fmt.Errorf("%w: nil tensor for %q", ErrInvalidInput, name)
	}

	b.mu.Lock()
	prev, had := b.inputs[name]
	b.inputs[name] = Binding{Tensor: t, PreProcess: pp}
	b.mu.Unlock()

	if had && prev.Tensor != t {
		return prev.Tensor.Release()
	}
	return nil
}

// Input returns the binding for a name
func (b *Bindings) Input(name string) (Binding, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bd, ok := b.inputs[name]
	return bd, ok
}

// InputNames returns all bound input names, sorted
func (b *Bindings) InputNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.inputs))
	for name := range b.inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every declared input is bound to a live tensor
func (b *Bindings) Validate(declared []PortInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range declared {
		bd, ok := b.inputs[p.Name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrMissingBinding, p.Name)
		}
		if !bd.Tensor.Valid() {
			return fmt.Errorf("%w: %q is bound to released memory", ErrInvalidInput, p.Name)
		}
	}
	return nil
}

// Release drops every binding and releases the bound tensors
func (b *Bindings) Release() error {
	b.mu.Lock()
	inputs := b.inputs
	b.inputs = make(map[string]Binding)
	b.mu.Unlock()

	var errs []error
	for _, bd := range inputs {
		if err := bd.Tensor.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
