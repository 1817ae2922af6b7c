package kmsapi

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// DumbBuffer is the decoded result of CREATE_DUMB.
type DumbBuffer struct {
	Handle uint32
	Pitch  uint32
	Size   uint64
}

// CreateDumb allocates a CPU-mappable, driver-agnostic framebuffer. Used by
// the Dumb and CPU strategies and by devices with no Prime/Self path.
func CreateDumb(fd int, width, height, bpp uint32) (DumbBuffer, error) {
	var c modeCreateDumb
	c.Width, c.Height, c.BPP = width, height, bpp
	if err := call(fd, iowr(nrModeCreateDumb, unsafe.Sizeof(c)), unsafe.Pointer(&c)); err != nil {
		return DumbBuffer{}, err
	}
	return DumbBuffer{Handle: c.Handle, Pitch: c.Pitch, Size: c.Size}, nil
}

// MapDumb returns the mmap offset to pass to unix.Mmap for a dumb buffer
// handle.
func MapDumb(fd int, handle uint32) (offset uint64, err error) {
	var m modeMapDumb
	m.Handle = handle
	if err := call(fd, iowr(nrModeMapDumb, unsafe.Sizeof(m)), unsafe.Pointer(&m)); err != nil {
		return 0, err
	}
	return m.Offset, nil
}

// MmapDumb maps a dumb buffer (already queried via MapDumb) into this
// process so the Dumb/CPU render strategies and cursor-image upload can
// memcpy into or out of it directly.
func MmapDumb(fd int, offset uint64, size uint64) ([]byte, error) {
	return unix.Mmap(fd, int64(offset), int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// MunmapDumb releases a mapping returned by MmapDumb.
func MunmapDumb(b []byte) error {
	return unix.Munmap(b)
}

func DestroyDumb(fd int, handle uint32) error {
	var d modeDestroyDumb
	d.Handle = handle
	return call(fd, iowr(nrModeDestroyDumb, unsafe.Sizeof(d)), unsafe.Pointer(&d))
}

// AddFB2 registers a (possibly multi-plane, possibly modified) buffer as a
// framebuffer object and returns its FB id.
func AddFB2(fd int, width, height, pixelFormat uint32, handles, pitches, offsets [4]uint32, modifiers [4]uint64, withModifiers bool) (uint32, error) {
	var f modeFBCmd2
	f.Width, f.Height, f.PixelFmt = width, height, pixelFormat
	f.Handles, f.Pitches, f.Offsets = handles, pitches, offsets
	if withModifiers {
		const fbModifiersFlag = 1 << 1 // DRM_MODE_FB_MODIFIERS
		f.Flags = fbModifiersFlag
		f.Modifier = modifiers
	}
	if err := call(fd, iowr(nrModeAddFB2, unsafe.Sizeof(f)), unsafe.Pointer(&f)); err != nil {
		return 0, err
	}
	return f.FBID, nil
}

func RmFB(fd int, id uint32) error {
	v := id
	return call(fd, iowr(nrModeRmFB, unsafe.Sizeof(v)), unsafe.Pointer(&v))
}
