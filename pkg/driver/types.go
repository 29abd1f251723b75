package driver

import "unsafe"

// DeviceProperties matches struct hailo_device_properties from the driver
type DeviceProperties struct {
	DescMaxPageSize uint16
	_               [2]byte // padding
	BoardType       BoardType
	AllocationMode  AllocationMode
	DmaType         DmaType
	DmaEnginesCount uint64
	IsFwLoaded      bool
	_               [7]byte // padding to 32 bytes
}

// DriverInfo matches struct hailo_driver_info from the driver
type DriverInfo struct {
	MajorVersion    uint32
	MinorVersion    uint32
	RevisionVersion uint32
}

// VdmaBufferMapParams matches struct hailo_vdma_buffer_map_params
type VdmaBufferMapParams struct {
	UserAddress           uintptr
	Size                  uint64
	DataDirection         DmaDataDirection
	BufferType            DmaBufferType
	AllocatedBufferHandle uintptr
	MappedHandle          uint64 // output
}

// VdmaBufferUnmapParams matches struct hailo_vdma_buffer_unmap_params
type VdmaBufferUnmapParams struct {
	MappedHandle uint64
}

// VdmaBufferSyncParams matches struct hailo_vdma_buffer_sync_params
type VdmaBufferSyncParams struct {
	Handle   uint64
	SyncType BufferSyncType
	Offset   uint64
	Count    uint64
}

// Size constants for struct validation
const (
	SizeOfDeviceProperties      = int(unsafe.Sizeof(DeviceProperties{}))
	SizeOfDriverInfo            = int(unsafe.Sizeof(DriverInfo{}))
	SizeOfVdmaBufferMapParams   = int(unsafe.Sizeof(VdmaBufferMapParams{}))
	SizeOfVdmaBufferUnmapParams = int(unsafe.Sizeof(VdmaBufferUnmapParams{}))
	SizeOfVdmaBufferSyncParams  = int(unsafe.Sizeof(VdmaBufferSyncParams{}))
)
