// Package fanctl provides fan telemetry and speed control through the
// kernel's tuxedo_io control device, covering both the Clevo and Uniwill
// command sets behind one controller interface.
package fanctl

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultDevicePath is the control device node exposed by the tuxedo_io module.
const DefaultDevicePath = "/dev/tuxedo_io"

// ioctl request encoding. Requests carry a direction, a magic group, a
// command number and a payload size; the payload is always a pointer-sized
// buffer with the integer value in the first 4 bytes.
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNrShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	ptrSize = 8

	ioctlMagic = 0xEC

	// Read and write groups are offset from the base magic, one pair per
	// hardware family.
	magicReadClevo    = ioctlMagic + 1
	magicWriteClevo   = ioctlMagic + 2
	magicReadUniwill  = ioctlMagic + 3
	magicWriteUniwill = ioctlMagic + 4
)

func ioc(dir, typ, nr, size uint) uint {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

func ior(typ, nr uint) uint { return ioc(iocRead, typ, nr, ptrSize) }
func iow(typ, nr uint) uint { return ioc(iocWrite, typ, nr, ptrSize) }
func io(typ, nr uint) uint  { return ioc(iocNone, typ, nr, 0) }

// Capability probes. A return value of 1 confirms the command set.
var (
	reqHWCheckClevo   = ior(ioctlMagic, 0x05)
	reqHWCheckUniwill = ior(ioctlMagic, 0x06)
)

// Clevo command set. Fan info packs the raw speed in the low byte and the
// temperature in bits 16..23; the speed write sets all three fan channels
// in one packed word.
var (
	reqClevoFanInfo = [3]uint{
		ior(magicReadClevo, 0x10),
		ior(magicReadClevo, 0x11),
		ior(magicReadClevo, 0x12),
	}
	reqClevoFanSpeed = iow(magicWriteClevo, 0x10)
	reqClevoFanAuto  = iow(magicWriteClevo, 0x11)
)

// Uniwill command set. Each fan has independent speed/temperature reads and
// an independent speed write; auto mode is a no-argument command.
var (
	reqUniwillFanSpeed = [2]uint{
		ior(magicReadUniwill, 0x10),
		ior(magicReadUniwill, 0x11),
	}
	reqUniwillFanTemp = [2]uint{
		ior(magicReadUniwill, 0x12),
		ior(magicReadUniwill, 0x13),
	}
	reqUniwillSetSpeed = [2]uint{
		iow(magicWriteUniwill, 0x10),
		iow(magicWriteUniwill, 0x11),
	}
	reqUniwillFanAuto = io(magicWriteUniwill, 0x14)
)

// transport issues raw commands against one open control device handle.
// It exists as an interface so the protocol layer can be exercised against
// an in-memory embedded-controller model in tests.
type transport interface {
	readInt(req uint) (int32, error)
	writeInt(req uint, val int32) error
	call(req uint) error
	close() error
}

// devTransport is the real ioctl transport over an open file descriptor.
type devTransport struct {
	fd int
}

func openDevice(path string) (transport, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &devTransport{fd: fd}, nil
}

func (t *devTransport) ioctl(req uint, buf *[ptrSize]byte) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), uintptr(req), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

func (t *devTransport) readInt(req uint) (int32, error) {
	var buf [ptrSize]byte
	if err := t.ioctl(req, &buf); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:4])), nil
}

func (t *devTransport) writeInt(req uint, val int32) error {
	var buf [ptrSize]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(val))
	return t.ioctl(req, &buf)
}

func (t *devTransport) call(req uint) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), uintptr(req), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (t *devTransport) close() error {
	return unix.Close(t.fd)
}
