package driver

import (
	"sync"
)

// Simulator defaults
const (
	SimulatorKind          = "SIM"
	DefaultSimulatorMemory = 256 << 20
	DefaultSimulatorSlots  = 4
)

// SimulatorConfig configures an in-process simulated device
type SimulatorConfig struct {
	Kind        string
	MemoryBytes uint64
	Slots       int
}

type simBuffer struct {
	owner ContextID
	desc  BufferDesc
	data  []byte
}

// Simulator is an in-process device with fixed memory and slot capacity.
// It is used by tests and by hardware-free runs of the CLI.
type Simulator struct {
	mu       sync.Mutex
	cfg      SimulatorConfig
	nextCtx  ContextID
	nextBuf  BufferHandle
	contexts map[ContextID]struct{}
	buffers  map[BufferHandle]*simBuffer
	used     uint64

	failOnRegister bool
	failOnAllocate bool
	failOnSync     bool
	disconnected   bool

	syncCount int
}

// NewSimulator creates a simulated device
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Kind == "" {
		cfg.Kind = SimulatorKind
	}
	if cfg.MemoryBytes == 0 {
		cfg.MemoryBytes = DefaultSimulatorMemory
	}
	if cfg.Slots <= 0 {
		cfg.Slots = DefaultSimulatorSlots
	}
	return &Simulator{
		cfg:      cfg,
		nextCtx:  1,
		nextBuf:  1,
		contexts: make(map[ContextID]struct{}),
		buffers:  make(map[BufferHandle]*simBuffer),
	}
}

// Info returns the simulated device description
func (s *Simulator) Info() DeviceInfo {
	return DeviceInfo{
		Kind:        s.cfg.Kind,
		Name:        "simulated accelerator",
		Slots:       s.cfg.Slots,
		MemoryBytes: s.cfg.MemoryBytes,
		Version:     "sim",
	}
}

// RegisterContext registers a new workload context
func (s *Simulator) RegisterContext() (ContextID, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disconnected {
		return InvalidContextID, StatusDeviceDisconnected
	}
	if s.failOnRegister {
		return InvalidContextID, StatusInternalFailure
	}

	id := s.nextCtx
	s.nextCtx++
	s.contexts[id] = struct{}{}
	return id, StatusSuccess
}

// UnregisterContext removes a context and frees any buffers it still owns
func (s *Simulator) UnregisterContext(id ContextID) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contexts[id]; !ok {
		return StatusNotRegistered
	}
	for h, buf := range s.buffers {
		if buf.owner == id {
			s.used -= buf.desc.Size
			delete(s.buffers, h)
		}
	}
	delete(s.contexts, id)
	return StatusSuccess
}

// AllocateBuffer reserves device memory for a context
func (s *Simulator) AllocateBuffer(id ContextID, desc BufferDesc) (BufferHandle, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disconnected {
		return 0, StatusDeviceDisconnected
	}
	if _, ok := s.contexts[id]; !ok {
		return 0, StatusNotRegistered
	}
	if desc.Size == 0 || desc.Stride < desc.Width {
		return 0, StatusInvalidArgument
	}
	if s.failOnAllocate || desc.Size > s.cfg.MemoryBytes-s.used {
		return 0, StatusOutOfDeviceMemory
	}

	h := s.nextBuf
	s.nextBuf++
	s.buffers[h] = &simBuffer{
		owner: id,
		desc:  desc,
		data:  make([]byte, desc.Size),
	}
	s.used += desc.Size
	return h, StatusSuccess
}

// SyncHostToDevice copies data into the simulated device buffer
func (s *Simulator) SyncHostToDevice(h BufferHandle, data []byte) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disconnected {
		return StatusDeviceDisconnected
	}
	buf, ok := s.buffers[h]
	if !ok {
		return StatusInvalidHandle
	}
	if uint64(len(data)) != buf.desc.Size {
		return StatusSizeMismatch
	}
	if s.failOnSync {
		return StatusDmaFailure
	}
	copy(buf.data, data)
	s.syncCount++
	return StatusSuccess
}

// ReadBuffer copies device memory back to the host
func (s *Simulator) ReadBuffer(h BufferHandle, offset uint64, dst []byte) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disconnected {
		return StatusDeviceDisconnected
	}
	buf, ok := s.buffers[h]
	if !ok {
		return StatusInvalidHandle
	}
	if offset > buf.desc.Size || uint64(len(dst)) > buf.desc.Size-offset {
		return StatusInvalidArgument
	}
	copy(dst, buf.data[offset:])
	return StatusSuccess
}

// FreeBuffer releases a simulated device buffer
func (s *Simulator) FreeBuffer(h BufferHandle) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[h]
	if !ok {
		return StatusInvalidHandle
	}
	s.used -= buf.desc.Size
	delete(s.buffers, h)
	return StatusSuccess
}

// RegisteredContexts returns the number of live registrations
func (s *Simulator) RegisteredContexts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}

// LiveBuffers returns the number of allocated buffers
func (s *Simulator) LiveBuffers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffers)
}

// UsedMemory returns the number of allocated bytes
func (s *Simulator) UsedMemory() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// SyncCount returns the number of successful host-to-device transfers
func (s *Simulator) SyncCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncCount
}

// SetFailOnRegister makes RegisterContext fail
func (s *Simulator) SetFailOnRegister(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOnRegister = fail
}

// SetFailOnAllocate makes AllocateBuffer report out of memory
func (s *Simulator) SetFailOnAllocate(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOnAllocate = fail
}

// SetFailOnSync makes SyncHostToDevice report a DMA failure
func (s *Simulator) SetFailOnSync(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOnSync = fail
}

// Disconnect makes every subsequent transfer fail as if the device was unplugged
func (s *Simulator) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true
}
