package driver

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// hwBuffer is a page-aligned host buffer mapped for DMA
type hwBuffer struct {
	owner     ContextID
	desc      BufferDesc
	mem       []byte // full mmap region, page aligned
	mapHandle uint64
}

// Hardware is a Subsystem backed by a PCIe accelerator character device.
// Workload contexts are tracked in-process; buffers are anonymous mmap
// regions mapped through the VDMA buffer ioctls.
type Hardware struct {
	mu       sync.Mutex
	df       *DeviceFile
	props    *DeviceProperties
	drv      *DriverInfo
	nextCtx  ContextID
	nextBuf  BufferHandle
	contexts map[ContextID]struct{}
	buffers  map[BufferHandle]*hwBuffer
	closed   bool
}

// OpenHardware opens the device at path and queries its properties
func OpenHardware(path string) (*Hardware, error) {
	df, err := OpenDevice(path)
	if err != nil {
		return nil, err
	}

	props, err := df.QueryDeviceProperties()
	if err != nil {
		df.Close()
		return nil, fmt.Errorf("failed to query device properties: %w", err)
	}

	drv, err := df.QueryDriverInfo()
	if err != nil {
		df.Close()
		return nil, fmt.Errorf("failed to query driver info: %w", err)
	}

	return &Hardware{
		df:       df,
		props:    props,
		drv:      drv,
		nextCtx:  1,
		nextBuf:  1,
		contexts: make(map[ContextID]struct{}),
		buffers:  make(map[BufferHandle]*hwBuffer),
	}, nil
}

// Info returns the device description
func (h *Hardware) Info() DeviceInfo {
	return DeviceInfo{
		Kind:  HardwareKind,
		Name:  h.props.BoardType.String(),
		Path:  h.df.Path(),
		Slots: HardwareSlots,
		Version: fmt.Sprintf("%d.%d.%d",
			h.drv.MajorVersion, h.drv.MinorVersion, h.drv.RevisionVersion),
	}
}

// Properties returns the raw device properties
func (h *Hardware) Properties() DeviceProperties {
	return *h.props
}

// RegisterContext registers a new workload context
func (h *Hardware) RegisterContext() (ContextID, Status) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return InvalidContextID, StatusDeviceDisconnected
	}
	if !h.props.IsFwLoaded {
		return InvalidContextID, StatusUninitialized
	}

	id := h.nextCtx
	h.nextCtx++
	h.contexts[id] = struct{}{}
	return id, StatusSuccess
}

// UnregisterContext removes a context and releases the buffers it still owns
func (h *Hardware) UnregisterContext(id ContextID) Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.contexts[id]; !ok {
		return StatusNotRegistered
	}

	status := StatusSuccess
	for handle, buf := range h.buffers {
		if buf.owner != id {
			continue
		}
		if s := h.release(buf); !s.OK() {
			status = s
		}
		delete(h.buffers, handle)
	}
	delete(h.contexts, id)
	return status
}

// AllocateBuffer allocates and maps a page-aligned host buffer
func (h *Hardware) AllocateBuffer(id ContextID, desc BufferDesc) (BufferHandle, Status) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, StatusDeviceDisconnected
	}
	if _, ok := h.contexts[id]; !ok {
		return 0, StatusNotRegistered
	}
	if desc.Size == 0 || desc.Stride < desc.Width {
		return 0, StatusInvalidArgument
	}

	alignedSize := AlignToPage(desc.Size)
	mem, err := unix.Mmap(-1, 0, int(alignedSize),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		if errno, ok := err.(unix.Errno); ok {
			return 0, ErrnoToStatus(errno)
		}
		return 0, StatusOutOfHostMemory
	}

	mapHandle, err := h.df.VdmaBufferMap(uintptr(unsafe.Pointer(&mem[0])), alignedSize, DmaBidirectional)
	if err != nil {
		unix.Munmap(mem)
		return 0, StatusOf(err)
	}

	handle := h.nextBuf
	h.nextBuf++
	h.buffers[handle] = &hwBuffer{
		owner:     id,
		desc:      desc,
		mem:       mem,
		mapHandle: mapHandle,
	}
	return handle, StatusSuccess
}

// SyncHostToDevice copies data into the mapped buffer and flushes it to the device
func (h *Hardware) SyncHostToDevice(handle BufferHandle, data []byte) Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf, ok := h.buffers[handle]
	if !ok {
		return StatusInvalidHandle
	}
	if uint64(len(data)) != buf.desc.Size {
		return StatusSizeMismatch
	}

	copy(buf.mem, data)
	if err := h.df.VdmaBufferSync(buf.mapHandle, SyncForDevice, 0, uint64(len(buf.mem))); err != nil {
		return StatusOf(err)
	}
	return StatusSuccess
}

// ReadBuffer syncs the buffer for CPU access and copies it out
func (h *Hardware) ReadBuffer(handle BufferHandle, offset uint64, dst []byte) Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf, ok := h.buffers[handle]
	if !ok {
		return StatusInvalidHandle
	}
	if offset > buf.desc.Size || uint64(len(dst)) > buf.desc.Size-offset {
		return StatusInvalidArgument
	}
	if err := h.df.VdmaBufferSync(buf.mapHandle, SyncForCpu, 0, uint64(len(buf.mem))); err != nil {
		return StatusOf(err)
	}
	copy(dst, buf.mem[offset:])
	return StatusSuccess
}

// FreeBuffer unmaps and releases a buffer
func (h *Hardware) FreeBuffer(handle BufferHandle) Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf, ok := h.buffers[handle]
	if !ok {
		return StatusInvalidHandle
	}
	delete(h.buffers, handle)
	return h.release(buf)
}

func (h *Hardware) release(buf *hwBuffer) Status {
	status := StatusSuccess
	if err := h.df.VdmaBufferUnmap(buf.mapHandle); err != nil {
		status = StatusOf(err)
	}
	if err := unix.Munmap(buf.mem); err != nil && status.OK() {
		status = StatusDriverOperationFailed
	}
	buf.mem = nil
	return status
}

// Close releases every buffer and closes the device file
func (h *Hardware) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for handle, buf := range h.buffers {
		h.release(buf)
		delete(h.buffers, handle)
	}
	h.contexts = make(map[ContextID]struct{})
	return h.df.Close()
}
