package device

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/emergingrobotics/remote-offload/pkg/driver"
)

// ContextState represents the lifecycle of a workload context
type ContextState int

const (
	StateUnregistered ContextState = iota
	StateRegistered
	StateBound
)

var contextStateNames = map[ContextState]string{
	StateUnregistered: "unregistered",
	StateRegistered:   "registered",
	StateBound:        "bound",
}

// String returns the state name
func (s ContextState) String() string {
	if name, ok := contextStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ContextState(%d)", int(s))
}

// Manager owns the device registration namespace. Registration is
// process-visible state on the device, so every register, deregister and
// execution context bind goes through a single Manager and is serialized
// by its mutex.
type Manager struct {
	mu       sync.Mutex
	sub      driver.Subsystem
	index    int
	logger   *slog.Logger
	contexts map[driver.ContextID]*WorkloadContext
	bound    int
	closed   bool
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithLogger sets the logger used for registration events
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDeviceIndex sets the index the managed device answers to in selectors
func WithDeviceIndex(i int) ManagerOption {
	return func(m *Manager) {
		if i >= 0 {
			m.index = i
		}
	}
}

// NewManager creates a registration manager for a device subsystem
func NewManager(sub driver.Subsystem, opts ...ManagerOption) *Manager {
	m := &Manager{
		sub:      sub,
		logger:   slog.Default(),
		contexts: make(map[driver.ContextID]*WorkloadContext),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subsystem returns the managed device subsystem
func (m *Manager) Subsystem() driver.Subsystem {
	return m.sub
}

// Info returns the managed device description
func (m *Manager) Info() driver.DeviceInfo {
	return m.sub.Info()
}

// Registered returns the number of live workload context registrations
func (m *Manager) Registered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}

// Bound returns the number of live execution contexts
func (m *Manager) Bound() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bound
}

// Register registers a new workload context with the device
func (m *Manager) Register() (*WorkloadContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("%w: %w", ErrDeviceRegistration, ErrManagerClosed)
	}

	id, status := m.sub.RegisterContext()
	if !status.OK() {
		return nil, fmt.Errorf("%w: %w", ErrDeviceRegistration,
			driver.NewError(status, "registerWorkloadContext failed"))
	}
	if _, dup := m.contexts[id]; dup {
		m.logger.Warn("device returned a context id that is already registered",
			"context", int64(id), "device", m.sub.Info().Kind)
		return nil, fmt.Errorf("%w: %w", ErrDeviceRegistration,
			driver.NewError(driver.StatusAlreadyRegistered, fmt.Sprintf("context %d", id)))
	}

	wc := &WorkloadContext{mgr: m, id: id, state: StateRegistered}
	m.contexts[id] = wc
	m.logger.Debug("workload context registered", "context", int64(id), "device", m.sub.Info().Kind)
	return wc, nil
}

// Deregister removes a workload context registration. It is equivalent to wc.Close.
func (m *Manager) Deregister(wc *WorkloadContext) error {
	if wc == nil {
		return nil
	}
	return wc.Close()
}

// CreateExecutionContext binds a registered workload context to the device
// named by sel. A workload context binds at most one execution context.
func (m *Manager) CreateExecutionContext(wc *WorkloadContext, sel Selector) (*ExecutionContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("%w: %w", ErrContextCreation, ErrManagerClosed)
	}
	if wc == nil || wc.mgr != m {
		return nil, fmt.Errorf("%w: workload context not registered with this device", ErrContextCreation)
	}

	switch wc.state {
	case StateUnregistered:
		return nil, fmt.Errorf("%w: workload context %d is not registered", ErrContextCreation, wc.id)
	case StateBound:
		return nil, fmt.Errorf("%w: workload context %d is already bound", ErrContextCreation, wc.id)
	}

	info := m.sub.Info()
	if !sel.MatchesKind(info.Kind) {
		return nil, fmt.Errorf("%w: device type %q does not match %q", ErrContextCreation, sel.Kind, info.Kind)
	}
	if sel.Index != AnyIndex && sel.Index != m.index {
		return nil, fmt.Errorf("%w: device index %d out of range", ErrContextCreation, sel.Index)
	}
	if m.bound >= info.Slots {
		return nil, fmt.Errorf("%w: %w", ErrContextCreation,
			driver.NewError(driver.StatusNoDeviceSlots, fmt.Sprintf("%d of %d slots in use", m.bound, info.Slots)))
	}

	ec := &ExecutionContext{
		mgr: m,
		wc:  wc,
		sel: Selector{Kind: info.Kind, Index: m.index},
	}
	wc.state = StateBound
	wc.exec = ec
	m.bound++

	m.logger.Debug("execution context created", "context", int64(wc.id), "selector", ec.sel.String())
	return ec, nil
}

// Close tears down every execution context and registration still alive,
// then closes the subsystem if it holds OS resources.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true

	var errs []error
	for id, wc := range m.contexts {
		if wc.exec != nil {
			m.unbindLocked(wc.exec)
		}
		if s := m.sub.UnregisterContext(id); !s.OK() {
			errs = append(errs, s.Err(fmt.Sprintf("unregister context %d", id)))
		}
		wc.state = StateUnregistered
		delete(m.contexts, id)
	}
	m.mu.Unlock()

	if c, ok := m.sub.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) unbindLocked(ec *ExecutionContext) {
	if ec.closed {
		return
	}
	ec.closed = true
	ec.wc.state = StateRegistered
	ec.wc.exec = nil
	m.bound--
}

// WorkloadContext is a device-visible registration token for one session
type WorkloadContext struct {
	mgr   *Manager
	id    driver.ContextID
	state ContextState
	exec  *ExecutionContext
}

// ID returns the device-assigned context identifier
func (wc *WorkloadContext) ID() driver.ContextID {
	return wc.id
}

// State returns the current lifecycle state
func (wc *WorkloadContext) State() ContextState {
	wc.mgr.mu.Lock()
	defer wc.mgr.mu.Unlock()
	return wc.state
}

// Close deregisters the workload context. Closing an unregistered context
// is a no-op; closing a bound one fails with ErrStillBound.
func (wc *WorkloadContext) Close() error {
	m := wc.mgr
	m.mu.Lock()
	defer m.mu.Unlock()

	switch wc.state {
	case StateUnregistered:
		return nil
	case StateBound:
		return ErrStillBound
	}

	// the registration is gone from our side whatever the device says
	wc.state = StateUnregistered
	delete(m.contexts, wc.id)

	if s := m.sub.UnregisterContext(wc.id); !s.OK() {
		m.logger.Warn("unregister workload context failed", "context", int64(wc.id), "status", s.String())
		return s.Err("unregisterWorkloadContext failed")
	}
	m.logger.Debug("workload context deregistered", "context", int64(wc.id))
	return nil
}

// ExecutionContext is a workload context bound to a device. Remote memory
// and tensors are scoped to it and become invalid once it is closed.
type ExecutionContext struct {
	mgr    *Manager
	wc     *WorkloadContext
	sel    Selector
	closed bool
}

// ContextID returns the identifier of the bound workload context
func (ec *ExecutionContext) ContextID() driver.ContextID {
	return ec.wc.id
}

// Workload returns the bound workload context
func (ec *ExecutionContext) Workload() *WorkloadContext {
	return ec.wc
}

// Selector returns the resolved device selector
func (ec *ExecutionContext) Selector() Selector {
	return ec.sel
}

// DeviceType returns the device type string of the bound device
func (ec *ExecutionContext) DeviceType() string {
	return ec.sel.Kind
}

// Subsystem returns the device subsystem backing this context
func (ec *ExecutionContext) Subsystem() driver.Subsystem {
	return ec.mgr.sub
}

// Alive reports whether the execution context is still open
func (ec *ExecutionContext) Alive() bool {
	ec.mgr.mu.Lock()
	defer ec.mgr.mu.Unlock()
	return !ec.closed
}

// Close releases the device slot and returns the workload context to
// the registered state. It is safe to call more than once.
func (ec *ExecutionContext) Close() error {
	ec.mgr.mu.Lock()
	defer ec.mgr.mu.Unlock()

	if ec.closed {
		return nil
	}
	ec.mgr.unbindLocked(ec)
	ec.mgr.logger.Debug("execution context closed", "context", int64(ec.wc.id))
	return nil
}
