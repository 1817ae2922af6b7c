package kmsapi

import "unsafe"

// CreateLease mints a kernel lease over the given object ids, returning the
// lessee id and an owned fd the lessee process uses to open its own DRM
// session scoped to those objects.
func CreateLease(fd int, objectIDs []uint32, flags uint32) (lesseeID uint32, leaseFD int32, err error) {
	var l modeCreateLease
	l.ObjectCount = uint32(len(objectIDs))
	l.Flags = flags
	if len(objectIDs) > 0 {
		l.ObjectIDsPtr = ptrToUint64(&objectIDs[0])
	}
	if err := call(fd, iowr(nrModeCreateLease, unsafe.Sizeof(l)), unsafe.Pointer(&l)); err != nil {
		return 0, -1, err
	}
	return l.LesseeID, l.FD, nil
}

// RevokeLease terminates a lease by lessee id.
func RevokeLease(fd int, lesseeID uint32) error {
	var r modeRevokeLease
	r.LesseeID = lesseeID
	return call(fd, iowr(nrModeRevokeLease, unsafe.Sizeof(r)), unsafe.Pointer(&r))
}
