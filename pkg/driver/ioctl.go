package driver

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DeviceFile represents an open accelerator character device
type DeviceFile struct {
	fd   int
	path string
}

// OpenDevice opens an accelerator device by path
func OpenDevice(path string) (*DeviceFile, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if errno, ok := err.(unix.Errno); ok {
			return nil, StatusFromErrno(errno, "opening device "+path)
		}
		return nil, NewErrorWithCause(StatusDriverOperationFailed, "opening device "+path, err)
	}
	return &DeviceFile{fd: fd, path: path}, nil
}

// Close closes the device file
func (d *DeviceFile) Close() error {
	if d.fd >= 0 {
		err := unix.Close(d.fd)
		d.fd = -1
		if err != nil {
			return NewErrorWithCause(StatusDriverOperationFailed, "closing device", err)
		}
	}
	return nil
}

// Path returns the device path
func (d *DeviceFile) Path() string {
	return d.path
}

func (d *DeviceFile) ioctl(cmd uint32, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(cmd), uintptr(arg))
	if errno != 0 {
		return StatusFromErrno(errno, "ioctl")
	}
	return nil
}

var (
	ioctlQueryDeviceProperties = IoW(int(GeneralIoctlMagic), IoctlQueryDeviceProperties, SizeOfDeviceProperties)
	ioctlQueryDriverInfo       = IoW(int(GeneralIoctlMagic), IoctlQueryDriverInfo, SizeOfDriverInfo)

	ioctlVdmaBufferMap   = IoWR(int(VdmaIoctlMagic), IoctlVdmaBufferMap, SizeOfVdmaBufferMapParams)
	ioctlVdmaBufferUnmap = IoR(int(VdmaIoctlMagic), IoctlVdmaBufferUnmap, SizeOfVdmaBufferUnmapParams)
	ioctlVdmaBufferSync  = IoR(int(VdmaIoctlMagic), IoctlVdmaBufferSync, SizeOfVdmaBufferSyncParams)
)

// QueryDeviceProperties queries device properties
func (d *DeviceFile) QueryDeviceProperties() (*DeviceProperties, error) {
	var props DeviceProperties
	if err := d.ioctl(ioctlQueryDeviceProperties, unsafe.Pointer(&props)); err != nil {
		return nil, err
	}
	return &props, nil
}

// QueryDriverInfo queries the driver version
func (d *DeviceFile) QueryDriverInfo() (*DriverInfo, error) {
	var info DriverInfo
	if err := d.ioctl(ioctlQueryDriverInfo, unsafe.Pointer(&info)); err != nil {
		return nil, err
	}
	return &info, nil
}

// VdmaBufferMap maps a user buffer for DMA and returns the driver handle
func (d *DeviceFile) VdmaBufferMap(userAddr uintptr, size uint64, direction DmaDataDirection) (uint64, error) {
	params := VdmaBufferMapParams{
		UserAddress:           userAddr,
		Size:                  size,
		DataDirection:         direction,
		BufferType:            DmaUserPtrBuffer,
		AllocatedBufferHandle: ^uintptr(0), // no driver-allocated backing
	}
	if err := d.ioctl(ioctlVdmaBufferMap, unsafe.Pointer(&params)); err != nil {
		return 0, err
	}
	return params.MappedHandle, nil
}

// VdmaBufferUnmap unmaps a previously mapped buffer
func (d *DeviceFile) VdmaBufferUnmap(handle uint64) error {
	params := VdmaBufferUnmapParams{MappedHandle: handle}
	return d.ioctl(ioctlVdmaBufferUnmap, unsafe.Pointer(&params))
}

// VdmaBufferSync synchronizes a mapped buffer between CPU and device
func (d *DeviceFile) VdmaBufferSync(handle uint64, syncType BufferSyncType, offset, count uint64) error {
	params := VdmaBufferSyncParams{
		Handle:   handle,
		SyncType: syncType,
		Offset:   offset,
		Count:    count,
	}
	return d.ioctl(ioctlVdmaBufferSync, unsafe.Pointer(&params))
}

// ScanDevices lists accelerator device nodes under /dev
func ScanDevices() ([]string, error) {
	var devices []string
	for i := 0; i < 16; i++ {
		path := fmt.Sprintf("/dev/hailo%d", i)
		if _, err := os.Stat(path); err == nil {
			devices = append(devices, path)
		}
	}
	return devices, nil
}
