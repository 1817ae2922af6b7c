package kmsapi

import "unsafe"

type drmVersion struct {
	VersionMajor      int32
	VersionMinor      int32
	VersionPatchLevel int32
	NameLen           uint64
	NamePtr           uint64
	DateLen           uint64
	DatePtr           uint64
	DescLen           uint64
	DescPtr           uint64
}

const nrVersion = 0x00

// GetDriverName issues DRM_IOCTL_VERSION's two-pass query and returns just
// the driver name (e.g. "i915", "amdgpu", "vc4"), which the object model
// surfaces as Device.DriverName for diagnostics.
func GetDriverName(fd int) (string, error) {
	var v drmVersion
	if err := call(fd, iowr(nrVersion, unsafe.Sizeof(v)), unsafe.Pointer(&v)); err != nil {
		return "", err
	}
	if v.NameLen == 0 {
		return "", nil
	}
	buf := make([]byte, v.NameLen)
	v.NamePtr = ptrToUint64(&buf[0])
	if err := call(fd, iowr(nrVersion, unsafe.Sizeof(v)), unsafe.Pointer(&v)); err != nil {
		return "", err
	}
	return string(buf), nil
}
