package driver

// IOCTL magic values of the PCIe accelerator driver
const (
	GeneralIoctlMagic = 'g' // 0x67
	VdmaIoctlMagic    = 'v' // 0x76
)

// Driver version the ioctl layouts below were taken from
const (
	DrvVerMajor    = 4
	DrvVerMinor    = 23
	DrvVerRevision = 0
)

// HardwareKind is the selector device type for PCIe accelerators
const HardwareKind = "HAILO"

// HardwareSlots is the number of execution contexts a PCIe device binds at once
const HardwareSlots = 1

// PageSize is the alignment used for DMA-mapped host buffers
const PageSize = 4096

// BoardType represents the accelerator board type
type BoardType uint32

const (
	BoardTypeHailo8   BoardType = 0
	BoardTypeHailo15  BoardType = 1
	BoardTypeHailo15L BoardType = 2
	BoardTypeHailo10H BoardType = 3
)

var boardNames = map[BoardType]string{
	BoardTypeHailo8:   "Hailo-8",
	BoardTypeHailo15:  "Hailo-15",
	BoardTypeHailo15L: "Hailo-15L",
	BoardTypeHailo10H: "Hailo-10H",
}

// String returns the board name
func (b BoardType) String() string {
	if name, ok := boardNames[b]; ok {
		return name
	}
	return "unknown board"
}

// DmaType represents the DMA interface type
type DmaType uint32

const (
	DmaTypePcie DmaType = 0
	DmaTypeDram DmaType = 1
)

// DmaDataDirection represents DMA transfer direction
type DmaDataDirection uint32

const (
	DmaBidirectional DmaDataDirection = 0
	DmaToDevice      DmaDataDirection = 1
	DmaFromDevice    DmaDataDirection = 2
)

// DmaBufferType represents the type of DMA buffer
type DmaBufferType uint32

const (
	DmaUserPtrBuffer DmaBufferType = 0
	DmaDmabufBuffer  DmaBufferType = 1
)

// AllocationMode represents buffer allocation mode
type AllocationMode uint32

const (
	AllocationModeUserspace AllocationMode = 0
	AllocationModeDriver    AllocationMode = 1
)

// BufferSyncType represents sync direction
type BufferSyncType uint32

const (
	SyncForCpu    BufferSyncType = 0
	SyncForDevice BufferSyncType = 1
)

// IOCTL command numbers - general
const (
	IoctlQueryDeviceProperties = 1
	IoctlQueryDriverInfo       = 2
)

// IOCTL command numbers - VDMA buffers
const (
	IoctlVdmaBufferMap   = 4
	IoctlVdmaBufferUnmap = 5
	IoctlVdmaBufferSync  = 6
)

// IOCTL direction flags for _IOC macro
const (
	IocNone  = 0
	IocWrite = 1
	IocRead  = 2
)

// IOCTL size/direction encoding constants
const (
	IocNrBits   = 8
	IocTypeBits = 8
	IocSizeBits = 14
	IocDirBits  = 2

	IocNrShift   = 0
	IocTypeShift = IocNrShift + IocNrBits
	IocSizeShift = IocTypeShift + IocTypeBits
	IocDirShift  = IocSizeShift + IocSizeBits
)

// Ioc creates an IOCTL command number
func Ioc(dir, iocType, nr, size int) uint32 {
	return uint32((dir << IocDirShift) |
		(iocType << IocTypeShift) |
		(nr << IocNrShift) |
		(size << IocSizeShift))
}

// IoW creates a write IOCTL (data flows from user to kernel)
func IoW(iocType, nr, size int) uint32 {
	return Ioc(IocWrite, iocType, nr, size)
}

// IoR creates a read IOCTL (data flows from kernel to user)
func IoR(iocType, nr, size int) uint32 {
	return Ioc(IocRead, iocType, nr, size)
}

// IoWR creates a read-write IOCTL
func IoWR(iocType, nr, size int) uint32 {
	return Ioc(IocRead|IocWrite, iocType, nr, size)
}

// AlignToPage rounds size up to a multiple of PageSize
func AlignToPage(size uint64) uint64 {
	return ((size + PageSize - 1) / PageSize) * PageSize
}
