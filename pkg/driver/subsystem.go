package driver

// ContextID identifies a registered workload context. It is valid
// process-wide from registration until it is unregistered.
type ContextID int64

// InvalidContextID is the identifier of a context that was never registered
const InvalidContextID ContextID = -1

// BufferHandle identifies a device buffer owned by a registered context
type BufferHandle uint64

// BufferDesc describes the geometry of a device buffer
type BufferDesc struct {
	Size   uint64
	Stride uint64
	Width  uint64
	Height uint64
}

// DeviceInfo describes the device behind a Subsystem
type DeviceInfo struct {
	Kind        string // device type string matched against selectors, e.g. "SIM"
	Name        string
	Path        string
	Slots       int    // number of execution contexts the device can bind at once
	MemoryBytes uint64 // total device memory, 0 if unknown
	Version     string
}

// Subsystem is the device-side API used to register workload contexts and
// to move frame data into device-resident memory.
type Subsystem interface {
	// Info returns static information about the device
	Info() DeviceInfo

	// RegisterContext registers a new workload context
	RegisterContext() (ContextID, Status)

	// UnregisterContext removes a workload context and frees its buffers
	UnregisterContext(id ContextID) Status

	// AllocateBuffer allocates a device buffer scoped to a context
	AllocateBuffer(id ContextID, desc BufferDesc) (BufferHandle, Status)

	// SyncHostToDevice copies host data into a device buffer. It blocks
	// until the transfer has completed or failed.
	SyncHostToDevice(h BufferHandle, data []byte) Status

	// FreeBuffer releases a device buffer
	FreeBuffer(h BufferHandle) Status
}

// BufferReader is implemented by subsystems whose buffers can be read back
// by the host.
type BufferReader interface {
	ReadBuffer(h BufferHandle, offset uint64, dst []byte) Status
}
