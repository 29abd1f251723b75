package testutil

import (
	"errors"
	"io"
	"sync"

	"github.com/emergingrobotics/remote-offload/pkg/infer"
)

// ErrFakeImport is returned by a FakeCore set to reject imports
var ErrFakeImport = errors.New("fake import rejection")

// FakeCore wraps a real infer.Core and can be told to reject imports
type FakeCore struct {
	mu         sync.Mutex
	inner      infer.Core
	failImport bool
	imports    int
	networks   []infer.Network
}

// NewFakeCore wraps inner
func NewFakeCore(inner infer.Core) *FakeCore {
	return &FakeCore{inner: inner}
}

// ImportNetwork counts the call and forwards it unless rejection is set
func (c *FakeCore) ImportNetwork(r io.Reader, ec infer.ExecutionContext) (infer.Network, error) {
	c.mu.Lock()
	c.imports++
	fail := c.failImport
	c.mu.Unlock()

	if fail {
		return nil, errors.Join(infer.ErrModelImport, ErrFakeImport)
	}
	n, err := c.inner.ImportNetwork(r, ec)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.networks = append(c.networks, n)
	c.mu.Unlock()
	return n, nil
}

// SetFailOnImport makes ImportNetwork fail
func (c *FakeCore) SetFailOnImport(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failImport = fail
}

// Imports returns the number of ImportNetwork calls
func (c *FakeCore) Imports() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.imports
}

// Networks returns every network imported successfully
func (c *FakeCore) Networks() []infer.Network {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]infer.Network(nil), c.networks...)
}
