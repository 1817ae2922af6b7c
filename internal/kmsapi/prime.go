package kmsapi

import "unsafe"

// DMA-BUF fd flags, matching DRM_CLOEXEC/DRM_RDWR.
const (
	PrimeFDFlagCloExec = 0x1
	PrimeFDFlagRDWR    = 0x2
)

// PrimeHandleToFD exports a GEM handle as a DMA-BUF fd.
func PrimeHandleToFD(fd int, handle uint32, flags uint32) (int32, error) {
	var p primeHandle
	p.Handle, p.Flags = handle, flags
	if err := call(fd, iowr(nrPrimeHandleToFD, unsafe.Sizeof(p)), unsafe.Pointer(&p)); err != nil {
		return -1, err
	}
	return p.FD, nil
}

// PrimeFDToHandle imports a DMA-BUF fd as a local GEM handle.
func PrimeFDToHandle(fd int, dmaFD int32) (uint32, error) {
	var p primeHandle
	p.FD = dmaFD
	if err := call(fd, iowr(nrPrimeFDToHandle, unsafe.Sizeof(p)), unsafe.Pointer(&p)); err != nil {
		return 0, err
	}
	return p.Handle, nil
}
