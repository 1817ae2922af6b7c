package kmsapi

// Backend is the seam between the object model/render loop and the actual
// ioctl transport. realBackend below binds it to the functions in this
// package (i.e. the real kernel); tests bind it to an in-memory fake so the
// upper layers can be exercised without a DRM-capable GPU.
//
// Every method mirrors one of this package's free functions with the fd
// argument bound to the backend instance instead of passed per call.
type Backend interface {
	DriverName() (string, error)

	GetCap(capability uint64) (value uint64, ok bool)
	SetClientCap(capability uint64) bool

	GetResources() (CardResources, error)
	GetPlaneResources() ([]uint32, error)
	GetCrtc(id uint32) (Crtc, error)
	GetEncoder(id uint32) (Encoder, error)
	GetConnector(id uint32) (Connector, error)
	GetPlane(id uint32) (Plane, error)
	GetPropertyBlob(id uint32) ([]byte, error)
	ResolveProperties(objID, objType uint32) (map[string]NamedProperty, error)

	CreateDumb(width, height, bpp uint32) (DumbBuffer, error)
	MapDumb(handle uint32) (offset uint64, err error)
	MmapDumb(offset, size uint64) ([]byte, error)
	MunmapDumb(b []byte) error
	DestroyDumb(handle uint32) error

	AddFB2(width, height, pixelFormat uint32, handles, pitches, offsets [4]uint32, modifiers [4]uint64, withModifiers bool) (uint32, error)
	RmFB(id uint32) error

	PrimeHandleToFD(handle uint32, flags uint32) (int32, error)
	PrimeFDToHandle(dmaFD int32) (uint32, error)

	CreatePropBlob(data []byte) (uint32, error)
	DestroyPropBlob(id uint32) error

	AtomicCommit(flags uint32, triples []PropertyTriple, userData uint64) error
	PageFlip(crtcID, fbID uint32, flags uint32, userData uint64) error
	SetGamma(crtcID uint32, red, green, blue []uint16) error
	GetGamma(crtcID uint32, size uint32) (red, green, blue []uint16, err error)

	DrainEvents() ([]Event, error)

	CreateLease(objectIDs []uint32, flags uint32) (lesseeID uint32, leaseFD int32, err error)
	RevokeLease(lesseeID uint32) error

	// FD exposes the underlying file descriptor for callers (PollFD setup,
	// dup() for lease hand-off) that still need it directly.
	FD() int
}

// realBackend binds Backend to the real ioctl transport on an open DRM node
// fd. It is a thin adapter: every method is a one-line call into this
// package's free functions, kept separate from them so those functions stay
// directly unit-testable (see *_test.go in this package) independent of the
// interface.
type realBackend struct {
	fd int
}

// NewRealBackend wraps an already-open DRM device fd as a Backend.
func NewRealBackend(fd int) Backend { return &realBackend{fd: fd} }

func (b *realBackend) FD() int { return b.fd }

func (b *realBackend) DriverName() (string, error) { return GetDriverName(b.fd) }

func (b *realBackend) GetCap(capability uint64) (uint64, bool)  { return GetCap(b.fd, capability) }
func (b *realBackend) SetClientCap(capability uint64) bool      { return SetClientCap(b.fd, capability) }

func (b *realBackend) GetResources() (CardResources, error)  { return GetResources(b.fd) }
func (b *realBackend) GetPlaneResources() ([]uint32, error)  { return GetPlaneResources(b.fd) }
func (b *realBackend) GetCrtc(id uint32) (Crtc, error)       { return GetCrtc(b.fd, id) }
func (b *realBackend) GetEncoder(id uint32) (Encoder, error) { return GetEncoder(b.fd, id) }
func (b *realBackend) GetConnector(id uint32) (Connector, error) { return GetConnector(b.fd, id) }
func (b *realBackend) GetPlane(id uint32) (Plane, error)     { return GetPlane(b.fd, id) }
func (b *realBackend) GetPropertyBlob(id uint32) ([]byte, error) { return GetPropertyBlob(b.fd, id) }
func (b *realBackend) ResolveProperties(objID, objType uint32) (map[string]NamedProperty, error) {
	return ResolveProperties(b.fd, objID, objType)
}

func (b *realBackend) CreateDumb(width, height, bpp uint32) (DumbBuffer, error) {
	return CreateDumb(b.fd, width, height, bpp)
}
func (b *realBackend) MapDumb(handle uint32) (uint64, error) { return MapDumb(b.fd, handle) }
func (b *realBackend) MmapDumb(offset, size uint64) ([]byte, error) {
	return MmapDumb(b.fd, offset, size)
}
func (b *realBackend) MunmapDumb(buf []byte) error { return MunmapDumb(buf) }
func (b *realBackend) DestroyDumb(handle uint32) error { return DestroyDumb(b.fd, handle) }

func (b *realBackend) AddFB2(width, height, pixelFormat uint32, handles, pitches, offsets [4]uint32, modifiers [4]uint64, withModifiers bool) (uint32, error) {
	return AddFB2(b.fd, width, height, pixelFormat, handles, pitches, offsets, modifiers, withModifiers)
}
func (b *realBackend) RmFB(id uint32) error { return RmFB(b.fd, id) }

func (b *realBackend) PrimeHandleToFD(handle uint32, flags uint32) (int32, error) {
	return PrimeHandleToFD(b.fd, handle, flags)
}
func (b *realBackend) PrimeFDToHandle(dmaFD int32) (uint32, error) {
	return PrimeFDToHandle(b.fd, dmaFD)
}

func (b *realBackend) CreatePropBlob(data []byte) (uint32, error) { return CreatePropBlob(b.fd, data) }
func (b *realBackend) DestroyPropBlob(id uint32) error            { return DestroyPropBlob(b.fd, id) }

func (b *realBackend) AtomicCommit(flags uint32, triples []PropertyTriple, userData uint64) error {
	return AtomicCommit(b.fd, flags, triples, userData)
}
func (b *realBackend) PageFlip(crtcID, fbID uint32, flags uint32, userData uint64) error {
	return PageFlip(b.fd, crtcID, fbID, flags, userData)
}
func (b *realBackend) SetGamma(crtcID uint32, red, green, blue []uint16) error {
	return SetGamma(b.fd, crtcID, red, green, blue)
}
func (b *realBackend) GetGamma(crtcID uint32, size uint32) ([]uint16, []uint16, []uint16, error) {
	return GetGamma(b.fd, crtcID, size)
}

func (b *realBackend) DrainEvents() ([]Event, error) { return DrainEvents(b.fd) }

func (b *realBackend) CreateLease(objectIDs []uint32, flags uint32) (uint32, int32, error) {
	return CreateLease(b.fd, objectIDs, flags)
}
func (b *realBackend) RevokeLease(lesseeID uint32) error { return RevokeLease(b.fd, lesseeID) }
