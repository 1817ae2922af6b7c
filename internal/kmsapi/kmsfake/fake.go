// Package kmsfake is an in-memory stand-in for kmsapi.Backend: a virtual
// KMS card with no real ioctl transport, used to exercise the object model,
// render loop and lease manager in tests without a DRM-capable GPU.
package kmsfake

import (
	"errors"
	"sync"
	"syscall"

	"github.com/CuarzoSoftware/SRM-sub001/internal/kmsapi"
)

type crtcObj struct {
	gammaSize uint32
	props     map[string]uint32
	values    map[uint32]uint64
}

type encoderObj struct {
	typ           uint32
	possibleCrtcs uint32
}

type connectorObj struct {
	typ, typeID uint32
	connection  uint32
	encoderIDs  []uint32
	modes       []kmsapi.ModeInfo
	props       map[string]uint32
	values      map[uint32]uint64
}

type planeObj struct {
	typ           uint32 // DRM_PLANE_TYPE_*
	possibleCrtcs uint32
	formats       []uint32
	props         map[string]uint32
	values        map[uint32]uint64
}

type dumbBuf struct {
	width, height, bpp, pitch uint32
	size                      uint64
	data                      []byte
}

type fb struct {
	handle uint32
	width, height, format uint32
}

// Backend is a virtual card: object ids are assigned by the test via the
// Add* builders, then GetResources/GetPlaneResources enumerate them in
// insertion order exactly like the real ioctls do for a static card.
type Backend struct {
	mu sync.Mutex

	driverName string
	caps       map[uint64]uint64

	crtcIDs      []uint32
	encoderIDs   []uint32
	connectorIDs []uint32
	planeIDs     []uint32

	crtcs      map[uint32]*crtcObj
	encoders   map[uint32]*encoderObj
	connectors map[uint32]*connectorObj
	planes     map[uint32]*planeObj

	nextPropID uint32
	propNames  map[uint32]string

	nextHandle uint32
	dumbs      map[uint32]*dumbBuf

	nextFBID uint32
	fbs      map[uint32]*fb

	nextBlobID uint32
	blobs      map[uint32][]byte

	nextDMAFD int32
	primeFDs  map[int32]uint32

	nextLesseeID uint32
	leases       map[uint32][]uint32

	// busyCountdown makes the next N TEST_ONLY/real AtomicCommit calls fail
	// with EBUSY, so tests can exercise AtomicRequest.commit's retry loop.
	busyCountdown int

	// events queues synthetic page-flip completions for DrainEvents,
	// populated by PushFlipComplete (the test's simulated vblank ticker).
	events []kmsapi.Event

	// lastFlags/lastTriples record the most recent successful AtomicCommit,
	// so a test can inspect which properties a commit actually carried
	// instead of only observing its pass/fail outcome.
	lastFlags   uint32
	lastTriples []kmsapi.PropertyTriple
}

// New returns an empty card. Populate it with the Add* methods before
// wiring it into a Device.
func New() *Backend {
	return &Backend{
		driverName: "kmsfake",
		caps:       map[uint64]uint64{},
		crtcs:      map[uint32]*crtcObj{},
		encoders:   map[uint32]*encoderObj{},
		connectors: map[uint32]*connectorObj{},
		planes:     map[uint32]*planeObj{},
		propNames:  map[uint32]string{},
		dumbs:      map[uint32]*dumbBuf{},
		fbs:        map[uint32]*fb{},
		blobs:      map[uint32][]byte{},
		primeFDs:   map[int32]uint32{},
		leases:     map[uint32][]uint32{},
		nextHandle: 1,
		nextFBID:   1,
		nextBlobID: 1,
		nextDMAFD:  1,
		nextLesseeID: 1,
	}
}

func (b *Backend) internProp(name string) uint32 {
	for id, n := range b.propNames {
		if n == name {
			return id
		}
	}
	b.nextPropID++
	id := b.nextPropID
	b.propNames[id] = name
	return id
}

// AddCrtc registers a crtc with the given legacy gamma size and the usual
// atomic properties (ACTIVE, MODE_ID, GAMMA_LUT, GAMMA_LUT_SIZE, VRR_ENABLED)
// pre-resolved, matching what a real driver exposes.
func (b *Backend) AddCrtc(id uint32, gammaSize uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &crtcObj{gammaSize: gammaSize, props: map[string]uint32{}, values: map[uint32]uint64{}}
	for _, name := range []string{"ACTIVE", "MODE_ID", "GAMMA_LUT", "GAMMA_LUT_SIZE", "VRR_ENABLED"} {
		c.props[name] = b.internProp(name)
	}
	c.values[c.props["GAMMA_LUT_SIZE"]] = uint64(gammaSize)
	b.crtcs[id] = c
	b.crtcIDs = append(b.crtcIDs, id)
}

// AddEncoder registers an encoder whose possibleCrtcs bitmask indexes into
// the order crtcs were added (bit i == the i-th AddCrtc call), matching the
// kernel's CardResources.CrtcIDs positional convention.
func (b *Backend) AddEncoder(id uint32, possibleCrtcs uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.encoders[id] = &encoderObj{possibleCrtcs: possibleCrtcs}
	b.encoderIDs = append(b.encoderIDs, id)
}

const (
	DrmPlaneTypeOverlay = 0
	DrmPlaneTypePrimary = 1
	DrmPlaneTypeCursor  = 2
)

// AddPlane registers a plane of the given DRM_PLANE_TYPE_* value, compatible
// with the crtcs named by possibleCrtcs, supporting formats.
func (b *Backend) AddPlane(id uint32, typ uint32, possibleCrtcs uint32, formats []uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := &planeObj{typ: typ, possibleCrtcs: possibleCrtcs, formats: formats, props: map[string]uint32{}, values: map[uint32]uint64{}}
	for _, name := range []string{"FB_ID", "FB_DAMAGE_CLIPS", "IN_FENCE_FD", "CRTC_ID",
		"CRTC_X", "CRTC_Y", "CRTC_W", "CRTC_H", "SRC_X", "SRC_Y", "SRC_W", "SRC_H", "rotation", "type"} {
		p.props[name] = b.internProp(name)
	}
	p.values[p.props["type"]] = uint64(typ)
	b.planes[id] = p
	b.planeIDs = append(b.planeIDs, id)
}

// AddConnector registers a connector bound to encoderIDs, connected (status
// 1) if connected is true, advertising modes.
func (b *Backend) AddConnector(id uint32, typ, typeID uint32, connected bool, encoderIDs []uint32, modes []kmsapi.ModeInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	conn := 2 // disconnected
	if connected {
		conn = 1
	}
	c := &connectorObj{typ: typ, typeID: typeID, connection: uint32(conn), encoderIDs: encoderIDs, modes: modes,
		props: map[string]uint32{}, values: map[uint32]uint64{}}
	c.props["CRTC_ID"] = b.internProp("CRTC_ID")
	b.connectors[id] = c
	b.connectorIDs = append(b.connectorIDs, id)
}

// SetCap sets a device capability value returned by GetCap.
func (b *Backend) SetCap(capability, value uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.caps[capability] = value
}

// InjectBusy makes the next n atomic commit attempts (TEST_ONLY or real)
// fail with EBUSY, simulating an in-flight nonblocking flip on the crtc.
func (b *Backend) InjectBusy(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.busyCountdown = n
}

// PushFlipComplete enqueues one synthetic page-flip-complete event for
// DrainEvents, as the simulated vblank ticker does after a commit.
func (b *Backend) PushFlipComplete(crtcID uint32, sequence uint32, tvSec, tvUsec uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, kmsapi.Event{Sequence: sequence, TVSec: tvSec, TVUsec: tvUsec, CrtcID: crtcID})
}

// SetConnectorConnection changes a connector's live connection status, as
// hotplug.go's connectionStatus re-query observes.
func (b *Backend) SetConnectorConnection(id uint32, connected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.connectors[id]
	if !ok {
		return
	}
	if connected {
		c.connection = 1
	} else {
		c.connection = 2
	}
}

var errNotFound = errors.New("kmsfake: object not found")

func (b *Backend) DriverName() (string, error) { return b.driverName, nil }

func (b *Backend) GetCap(capability uint64) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.caps[capability]
	return v, ok
}

func (b *Backend) SetClientCap(uint64) bool { return true }

func (b *Backend) GetResources() (kmsapi.CardResources, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return kmsapi.CardResources{
		CrtcIDs:      append([]uint32{}, b.crtcIDs...),
		ConnectorIDs: append([]uint32{}, b.connectorIDs...),
		EncoderIDs:   append([]uint32{}, b.encoderIDs...),
	}, nil
}

func (b *Backend) GetPlaneResources() ([]uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint32{}, b.planeIDs...), nil
}

func (b *Backend) GetCrtc(id uint32) (kmsapi.Crtc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.crtcs[id]
	if !ok {
		return kmsapi.Crtc{}, errNotFound
	}
	return kmsapi.Crtc{ID: id, GammaSize: c.gammaSize}, nil
}

func (b *Backend) GetEncoder(id uint32) (kmsapi.Encoder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.encoders[id]
	if !ok {
		return kmsapi.Encoder{}, errNotFound
	}
	return kmsapi.Encoder{ID: id, Type: e.typ, PossibleCrtcs: e.possibleCrtcs}, nil
}

func (b *Backend) GetConnector(id uint32) (kmsapi.Connector, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.connectors[id]
	if !ok {
		return kmsapi.Connector{}, errNotFound
	}
	return kmsapi.Connector{
		ID:         id,
		Type:       c.typ,
		TypeID:     c.typeID,
		Connection: c.connection,
		EncoderIDs: append([]uint32{}, c.encoderIDs...),
		Modes:      append([]kmsapi.ModeInfo{}, c.modes...),
	}, nil
}

func (b *Backend) GetPlane(id uint32) (kmsapi.Plane, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.planes[id]
	if !ok {
		return kmsapi.Plane{}, errNotFound
	}
	return kmsapi.Plane{ID: id, PossibleCrtcs: p.possibleCrtcs, Formats: append([]uint32{}, p.formats...)}, nil
}

func (b *Backend) GetPropertyBlob(id uint32) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[id]
	if !ok {
		return nil, errNotFound
	}
	return append([]byte{}, data...), nil
}

func (b *Backend) ResolveProperties(objID, objType uint32) (map[string]kmsapi.NamedProperty, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var props map[string]uint32
	var values map[uint32]uint64
	switch objType {
	case kmsapi.ObjectCrtc:
		c, ok := b.crtcs[objID]
		if !ok {
			return nil, errNotFound
		}
		props, values = c.props, c.values
	case kmsapi.ObjectPlane:
		p, ok := b.planes[objID]
		if !ok {
			return nil, errNotFound
		}
		props, values = p.props, p.values
	case kmsapi.ObjectConnector:
		c, ok := b.connectors[objID]
		if !ok {
			return nil, errNotFound
		}
		props, values = c.props, c.values
	default:
		return nil, errNotFound
	}

	out := make(map[string]kmsapi.NamedProperty, len(props))
	for name, id := range props {
		out[name] = kmsapi.NamedProperty{ID: id, Value: values[id]}
	}
	return out, nil
}

func (b *Backend) CreateDumb(width, height, bpp uint32) (kmsapi.DumbBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pitch := width * (bpp / 8)
	size := uint64(pitch) * uint64(height)
	handle := b.nextHandle
	b.nextHandle++
	b.dumbs[handle] = &dumbBuf{width: width, height: height, bpp: bpp, pitch: pitch, size: size, data: make([]byte, size)}
	return kmsapi.DumbBuffer{Handle: handle, Pitch: pitch, Size: size}, nil
}

func (b *Backend) MapDumb(handle uint32) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.dumbs[handle]; !ok {
		return 0, errNotFound
	}
	return uint64(handle) << 32, nil // synthetic offset, opaque to the caller
}

// MmapDumb returns the fake buffer's real backing slice directly instead of
// a kernel mmap: copyAfterPaint and cursor upload write straight into it, and
// MunmapDumb is a no-op since there's no real mapping to tear down.
func (b *Backend) MmapDumb(offset, size uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	handle := uint32(offset >> 32)
	buf, ok := b.dumbs[handle]
	if !ok || uint64(len(buf.data)) < size {
		return nil, errNotFound
	}
	return buf.data, nil
}

func (b *Backend) MunmapDumb([]byte) error { return nil }

func (b *Backend) DestroyDumb(handle uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.dumbs, handle)
	return nil
}

func (b *Backend) AddFB2(width, height, pixelFormat uint32, handles, _, _ [4]uint32, _ [4]uint64, _ bool) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextFBID
	b.nextFBID++
	b.fbs[id] = &fb{handle: handles[0], width: width, height: height, format: pixelFormat}
	return id, nil
}

func (b *Backend) RmFB(id uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.fbs, id)
	return nil
}

// FBSize reports the width/height a live framebuffer id was created with, so
// a test can confirm a swap chain was rebuilt at the geometry SetMode asked
// for.
func (b *Backend) FBSize(id uint32) (width, height uint32, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.fbs[id]
	if !ok {
		return 0, 0, false
	}
	return f.width, f.height, true
}

func (b *Backend) PrimeHandleToFD(handle uint32, _ uint32) (int32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fd := b.nextDMAFD
	b.nextDMAFD++
	b.primeFDs[fd] = handle
	return fd, nil
}

func (b *Backend) PrimeFDToHandle(dmaFD int32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.primeFDs[dmaFD]
	if !ok {
		// An fd this card did not export stands for another card's buffer:
		// importing it yields a fresh local handle, as a real import would.
		h = b.nextHandle
		b.nextHandle++
		b.primeFDs[dmaFD] = h
	}
	return h, nil
}

func (b *Backend) CreatePropBlob(data []byte) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextBlobID
	b.nextBlobID++
	b.blobs[id] = append([]byte{}, data...)
	return id, nil
}

func (b *Backend) DestroyPropBlob(id uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, id)
	return nil
}

// AtomicCommit honors InjectBusy and otherwise just records the triples: the
// object model only needs acceptance/rejection, not a simulated plane/crtc
// state graph, but tests can still inspect what a commit carried via
// LastCommit.
func (b *Backend) AtomicCommit(flags uint32, triples []kmsapi.PropertyTriple, userData uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busyCountdown > 0 {
		b.busyCountdown--
		return syscall.EBUSY
	}
	b.lastFlags = flags
	b.lastTriples = append([]kmsapi.PropertyTriple{}, triples...)
	return nil
}

// LastCommit returns the flags and triples of the most recent successful
// AtomicCommit call (TEST_ONLY probes included, since this object model
// reissues the same triples for both), for tests asserting which properties
// made it into a commit without a real kernel to read back from.
func (b *Backend) LastCommit() (uint32, []kmsapi.PropertyTriple) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFlags, append([]kmsapi.PropertyTriple{}, b.lastTriples...)
}

func (b *Backend) PageFlip(crtcID, fbID uint32, flags uint32, userData uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busyCountdown > 0 {
		b.busyCountdown--
		return syscall.EBUSY
	}
	return nil
}

func (b *Backend) SetGamma(crtcID uint32, red, green, blue []uint16) error { return nil }

func (b *Backend) GetGamma(crtcID uint32, size uint32) ([]uint16, []uint16, []uint16, error) {
	return make([]uint16, size), make([]uint16, size), make([]uint16, size), nil
}

// DrainEvents returns and clears every event queued by PushFlipComplete,
// blocking never: the fake has no fd to read, so callers rely on the test
// having pushed an event before triggering the code path that awaits one.
func (b *Backend) DrainEvents() ([]kmsapi.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out, nil
}

func (b *Backend) CreateLease(objectIDs []uint32, flags uint32) (uint32, int32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextLesseeID
	b.nextLesseeID++
	b.leases[id] = append([]uint32{}, objectIDs...)
	return id, int32(id) + 1000, nil
}

func (b *Backend) RevokeLease(lesseeID uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.leases[lesseeID]; !ok {
		return errNotFound
	}
	delete(b.leases, lesseeID)
	return nil
}

func (b *Backend) FD() int { return -1 }

var _ kmsapi.Backend = (*Backend)(nil)
