// Package kmsapi encodes the DRM/KMS ioctl surface used by the core: client
// capability negotiation, resource enumeration, dumb-buffer and framebuffer
// management, PRIME import/export, atomic commits, legacy page flips and
// gamma, property blobs, leases, and event draining.
//
// The numeric ioctl codes and structure layouts mirror the kernel's
// <drm/drm.h> and <drm/drm_mode.h> headers bit-for-bit; reimplementers must
// not renumber them.
package kmsapi

import (
	"unsafe"

	"golang.org/x/sys/unix"
	"honnef.co/go/safeish"
)

const drmIoctlBase = 0x64 // 'd'

// ioctl direction/size encoding, matching linux/ioctl.h.
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14
	iocDirBits  = 2

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (drmIoctlBase << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

func io(nr uintptr) uintptr              { return ioc(iocNone, nr, 0) }
func iow(nr, size uintptr) uintptr       { return ioc(iocWrite, nr, size) }
func ior(nr, size uintptr) uintptr       { return ioc(iocRead, nr, size) }
func iowr(nr, size uintptr) uintptr      { return ioc(iocRead|iocWrite, nr, size) }

// Ioctl numbers, matching drm.h / drm_mode.h in declaration order.
const (
	nrGetCap       = 0x0c
	nrSetClientCap = 0x0d

	nrPrimeHandleToFD = 0x2d
	nrPrimeFDToHandle = 0x2e

	nrModeGetResources = 0xa0
	nrModeGetCrtc      = 0xa1
	nrModeSetCrtc      = 0xa2
	nrModeGetGamma     = 0xa4
	nrModeSetGamma     = 0xa5
	nrModeGetEncoder   = 0xa6
	nrModeGetConnector = 0xa7
	nrModeGetProperty  = 0xaa
	nrModeGetPropBlob  = 0xac

	nrModeRmFB        = 0xaf
	nrModePageFlip    = 0xb0
	nrModeCreateDumb  = 0xb2
	nrModeMapDumb     = 0xb3
	nrModeDestroyDumb = 0xb4

	nrModeGetPlaneRes    = 0xb5
	nrModeGetPlane       = 0xb6
	nrModeAddFB2         = 0xb8
	nrModeObjGetProperties = 0xb9
	nrModeObjSetProperty   = 0xba

	nrModeAtomic          = 0xbc
	nrModeCreatePropBlob  = 0xbd
	nrModeDestroyPropBlob = 0xbe

	nrModeCreateLease = 0xc6
	nrModeRevokeLease = 0xc9
)

// call issues a DRM ioctl and returns the raw errno, unwrapped, so callers
// can distinguish EBUSY from every other kernel failure.
func call(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// ptrToUint64 embeds the address of a slice's backing array into a
// drm_mode_* struct's *_ptr field. Every such field is declared __u64 in the
// kernel header regardless of host pointer width, so the cast always goes
// through safeish rather than a second, easy-to-typo unsafe.Pointer/uintptr
// pair at each of the two dozen call sites that need it.
func ptrToUint64[T any](p *T) uint64 {
	return uint64(uintptr(safeish.Cast[unsafe.Pointer](p)))
}
