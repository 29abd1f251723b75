package memory

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/emergingrobotics/remote-offload/pkg/driver"
)

// Context is the execution context remote memory is scoped to
type Context interface {
	ContextID() driver.ContextID
	Subsystem() driver.Subsystem
	Alive() bool
}

// HandleID refers to an arena slot. The low 32 bits hold the slot index
// plus one and the high 32 bits its generation, so an id outlives the
// buffer it named without ever aliasing a newer one.
type HandleID uint64

// InvalidHandle is never returned by Allocate
const InvalidHandle HandleID = 0

func makeHandleID(slot int, gen uint32) HandleID {
	return HandleID(uint64(gen)<<32 | uint64(slot+1))
}

func (id HandleID) slot() int {
	return int(uint32(id)) - 1
}

func (id HandleID) generation() uint32 {
	return uint32(id >> 32)
}

// Info is a snapshot of a live handle
type Info struct {
	Desc
	Synced bool
	Refs   int
}

type entry struct {
	gen    uint32
	live   bool
	buf    driver.BufferHandle
	desc   Desc
	refs   int
	synced bool
}

// Allocator hands out device buffers scoped to one execution context.
// Each buffer is reference counted: the allocator holds the first share
// and every tensor built on it retains another.
type Allocator struct {
	mu      sync.Mutex
	ctx     Context
	sub     driver.Subsystem
	logger  *slog.Logger
	entries []entry
	free    []int
	live    int
	closed  bool
}

// Option configures an Allocator
type Option func(*Allocator)

// WithLogger sets the allocator logger
func WithLogger(l *slog.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAllocator creates an allocator for an execution context
func NewAllocator(ctx Context, opts ...Option) *Allocator {
	a := &Allocator{
		ctx:    ctx,
		sub:    ctx.Subsystem(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Context returns the execution context the allocator is scoped to
func (a *Allocator) Context() Context {
	return a.ctx
}

// Allocate reserves size bytes of device memory described by desc
func (a *Allocator) Allocate(size uint64, desc Desc) (HandleID, error) {
	if size == 0 {
		return InvalidHandle, fmt.Errorf("%w: size must be positive", ErrAllocation)
	}
	if desc.Size != size {
		return InvalidHandle, fmt.Errorf("%w: descriptor size %d does not match %d", ErrAllocation, desc.Size, size)
	}
	if err := desc.Validate(); err != nil {
		return InvalidHandle, fmt.Errorf("%w: %w", ErrAllocation, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return InvalidHandle, fmt.Errorf("%w: %w", ErrAllocation, ErrAllocatorClosed)
	}
	if !a.ctx.Alive() {
		return InvalidHandle, fmt.Errorf("%w: %w", ErrAllocation, ErrContextClosed)
	}

	buf, status := a.sub.AllocateBuffer(a.ctx.ContextID(), driver.BufferDesc{
		Size:   desc.Size,
		Stride: desc.Stride,
		Width:  desc.Width,
		Height: desc.Height,
	})
	if !status.OK() {
		return InvalidHandle, fmt.Errorf("%w: %w", ErrAllocation, driver.NewError(status, "allocateDeviceBuffer failed"))
	}

	var slot int
	if n := len(a.free); n > 0 {
		slot = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.entries = append(a.entries, entry{})
		slot = len(a.entries) - 1
	}

	e := &a.entries[slot]
	e.gen++
	e.live = true
	e.buf = buf
	e.desc = desc
	e.refs = 1
	e.synced = false
	a.live++

	id := makeHandleID(slot, e.gen)
	a.logger.Debug("remote memory allocated", "handle", uint64(id), "size", size)
	return id, nil
}

// SyncToDevice copies data into the device buffer and blocks until the
// transfer completes. A failed transfer leaves the handle unsynced and it
// cannot be bound until a later sync succeeds.
func (a *Allocator) SyncToDevice(id HandleID, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, err := a.lookupLocked(id, true)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSync, err)
	}
	if uint64(len(data)) != e.desc.Size {
		return fmt.Errorf("%w: %w: got %d bytes, handle holds %d", ErrSync, ErrSizeMismatch, len(data), e.desc.Size)
	}

	status := a.sub.SyncHostToDevice(e.buf, data)
	if !status.OK() {
		e.synced = false
		return fmt.Errorf("%w: %w", ErrSync, driver.NewError(status, "syncHostToDevice failed"))
	}
	e.synced = true
	return nil
}

// Retain adds a share to a live handle
func (a *Allocator) Retain(id HandleID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, err := a.lookupLocked(id, true)
	if err != nil {
		return err
	}
	e.refs++
	return nil
}

// Release drops a share. The device buffer is freed with the last share.
func (a *Allocator) Release(id HandleID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, err := a.lookupLocked(id, false)
	if err != nil {
		return err
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}
	return a.freeLocked(id.slot())
}

// Info returns a snapshot of a live handle
func (a *Allocator) Info(id HandleID) (Info, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, err := a.lookupLocked(id, true)
	if err != nil {
		return Info{}, err
	}
	return Info{Desc: e.desc, Synced: e.synced, Refs: e.refs}, nil
}

// ReadBack copies device memory into dst starting at offset. It only
// works on subsystems whose buffers are host readable.
func (a *Allocator) ReadBack(id HandleID, offset uint64, dst []byte) error {
	reader, ok := a.sub.(driver.BufferReader)
	if !ok {
		return ErrReadUnsupported
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	e, err := a.lookupLocked(id, true)
	if err != nil {
		return err
	}
	if offset > e.desc.Size || uint64(len(dst)) > e.desc.Size-offset {
		return fmt.Errorf("%w: %d bytes at %d of %d", ErrOutOfRange, len(dst), offset, e.desc.Size)
	}
	if status := reader.ReadBuffer(e.buf, offset, dst); !status.OK() {
		return driver.NewError(status, "read device buffer")
	}
	return nil
}

// Live returns the number of live handles
func (a *Allocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Close frees every remaining device buffer regardless of outstanding shares
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var first error
	for slot := range a.entries {
		if !a.entries[slot].live {
			continue
		}
		if err := a.freeLocked(slot); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (a *Allocator) lookupLocked(id HandleID, requireAlive bool) (*entry, error) {
	slot := id.slot()
	if id == InvalidHandle || slot < 0 || slot >= len(a.entries) {
		return nil, fmt.Errorf("%w: %d", ErrStaleHandle, uint64(id))
	}
	e := &a.entries[slot]
	if !e.live || e.gen != id.generation() {
		return nil, fmt.Errorf("%w: %d", ErrStaleHandle, uint64(id))
	}
	if requireAlive && !a.ctx.Alive() {
		return nil, fmt.Errorf("%w: %w", ErrStaleHandle, ErrContextClosed)
	}
	return e, nil
}

func (a *Allocator) freeLocked(slot int) error {
	e := &a.entries[slot]
	status := a.sub.FreeBuffer(e.buf)

	e.live = false
	e.refs = 0
	e.synced = false
	a.free = append(a.free, slot)
	a.live--

	if !status.OK() {
		a.logger.Warn("free remote memory failed", "slot", slot, "status", status.String())
		return driver.NewError(status, "free device buffer")
	}
	a.logger.Debug("remote memory freed", "slot", slot)
	return nil
}
