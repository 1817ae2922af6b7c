package kmsapi

import "unsafe"

// Atomic/page-flip commit flags, matching DRM_MODE_PAGE_FLIP_EVENT and
// DRM_MODE_ATOMIC_*.
const (
	FlagPageFlipEvent      = 0x01
	FlagAtomicAllowModeset = 0x0400
	FlagAtomicNonblock     = 0x0200
	FlagAtomicTestOnly     = 0x0100
)

// PropertyTriple is one (object, property, value) entry of an atomic
// request, matching struct drm_mode_atomic's parallel arrays.
type PropertyTriple struct {
	ObjectID   uint32
	PropertyID uint32
	Value      uint64
}

// AtomicCommit issues DRM_IOCTL_MODE_ATOMIC with the given property triples.
// Objects are listed once each, in the order of their first triple, and
// each object's properties are flattened contiguously after it (the kernel
// groups properties per object via parallel count/obj arrays).
func AtomicCommit(fd int, flags uint32, triples []PropertyTriple, userData uint64) error {
	objs := make([]uint32, 0, len(triples))
	counts := make([]uint32, 0, len(triples))
	objIndex := map[uint32]int{}
	propIDs := make([]uint32, 0, len(triples))
	propVals := make([]uint64, 0, len(triples))

	// Count properties per object, then flatten them object by object, so
	// each object's properties are contiguous in the flattened arrays as the
	// kernel requires, whatever order the caller supplied the triples in.
	for _, t := range triples {
		idx, ok := objIndex[t.ObjectID]
		if !ok {
			idx = len(objs)
			objIndex[t.ObjectID] = idx
			objs = append(objs, t.ObjectID)
			counts = append(counts, 0)
		}
		counts[idx]++
	}
	for _, obj := range objs {
		for _, t := range triples {
			if t.ObjectID == obj {
				propIDs = append(propIDs, t.PropertyID)
				propVals = append(propVals, t.Value)
			}
		}
	}

	var a modeAtomic
	a.Flags = flags
	a.CountObjs = uint32(len(objs))
	a.UserData = userData
	if len(objs) > 0 {
		a.ObjsPtr = ptrToUint64(&objs[0])
		a.CountPropsPtr = ptrToUint64(&counts[0])
	}
	if len(propIDs) > 0 {
		a.PropsPtr = ptrToUint64(&propIDs[0])
		a.PropValuesPtr = ptrToUint64(&propVals[0])
	}

	return call(fd, iowr(nrModeAtomic, unsafe.Sizeof(a)), unsafe.Pointer(&a))
}

// CreatePropBlob uploads opaque bytes (a mode blob, a gamma LUT, IN_FORMATS
// data) and returns its blob id.
func CreatePropBlob(fd int, data []byte) (uint32, error) {
	var b modeCreateBlob
	b.Length = uint32(len(data))
	if len(data) > 0 {
		b.Data = ptrToUint64(&data[0])
	}
	if err := call(fd, iowr(nrModeCreatePropBlob, unsafe.Sizeof(b)), unsafe.Pointer(&b)); err != nil {
		return 0, err
	}
	return b.BlobID, nil
}

func DestroyPropBlob(fd int, id uint32) error {
	var b modeDestroyBlob
	b.BlobID = id
	return call(fd, iowr(nrModeDestroyPropBlob, unsafe.Sizeof(b)), unsafe.Pointer(&b))
}

// PageFlip issues the legacy (non-atomic) page-flip ioctl for devices or
// client sessions operating without DRM_CLIENT_CAP_ATOMIC.
func PageFlip(fd int, crtcID, fbID uint32, flags uint32, userData uint64) error {
	var p modePageFlip
	p.CrtcID, p.FBID, p.Flags, p.UserData = crtcID, fbID, flags, userData
	return call(fd, iowr(nrModePageFlip, unsafe.Sizeof(p)), unsafe.Pointer(&p))
}

// GetGamma/SetGamma implement the legacy gamma ioctl path used when the
// atomic GAMMA_LUT property is unavailable.
func GetGamma(fd int, crtcID uint32, size uint32) (red, green, blue []uint16, err error) {
	red = make([]uint16, size)
	green = make([]uint16, size)
	blue = make([]uint16, size)
	var l modeCrtcLUT
	l.CrtcID, l.Size = crtcID, size
	if size > 0 {
		l.Red = ptrToUint64(&red[0])
		l.Green = ptrToUint64(&green[0])
		l.Blue = ptrToUint64(&blue[0])
	}
	if err := call(fd, iowr(nrModeGetGamma, unsafe.Sizeof(l)), unsafe.Pointer(&l)); err != nil {
		return nil, nil, nil, err
	}
	return red, green, blue, nil
}

func SetGamma(fd int, crtcID uint32, red, green, blue []uint16) error {
	var l modeCrtcLUT
	l.CrtcID = crtcID
	l.Size = uint32(len(red))
	if len(red) > 0 {
		l.Red = ptrToUint64(&red[0])
		l.Green = ptrToUint64(&green[0])
		l.Blue = ptrToUint64(&blue[0])
	}
	return call(fd, iowr(nrModeSetGamma, unsafe.Sizeof(l)), unsafe.Pointer(&l))
}
