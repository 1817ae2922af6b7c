package srm

import (
	"sync"

	"github.com/CuarzoSoftware/SRM-sub001/internal/kmsapi"
	"github.com/CuarzoSoftware/SRM-sub001/srmerr"
)

// ConnectorState is the state machine every Connector moves through between
// Initialize and Uninitialize.
type ConnectorState int

const (
	ConnectorUninitialized ConnectorState = iota
	ConnectorInitializing
	ConnectorInitialized
	ConnectorChangingMode
	ConnectorUninitializing
)

func (s ConnectorState) String() string {
	switch s {
	case ConnectorUninitialized:
		return "uninitialized"
	case ConnectorInitializing:
		return "initializing"
	case ConnectorInitialized:
		return "initialized"
	case ConnectorChangingMode:
		return "changing mode"
	case ConnectorUninitializing:
		return "uninitializing"
	default:
		return "unknown"
	}
}

// PresentedInfo is handed to ConnectorInterface.Presented once the kernel's
// page-flip event for a commit arrives.
type PresentedInfo struct {
	TimestampNs     int64
	Sequence        uint32
	RefreshPeriodNs int64
}

// ConnectorInterface is the caller-supplied set of per-connector callbacks.
// Every one of them runs on the connector's own render goroutine: they must
// not block on anything the render thread itself would need to make
// progress, the same discipline the teacher's function-pointer event
// interfaces (OnGlobal, OnConfigure, ...) impose on their callers.
type ConnectorInterface struct {
	// Initialized fires once, after the first frame has committed
	// successfully and its page-flip event has armed.
	Initialized func(conn *Connector)
	// Paint fires once per attempted frame; the callback draws into the
	// connector's current swap chain image.
	Paint func(conn *Connector)
	// Presented fires after a successful commit's page-flip event arrives.
	Presented func(conn *Connector, info PresentedInfo)
	// Discarded fires instead of Presented when a frame's image couldn't be
	// acquired, copied, or committed; the previous frame stays on screen.
	Discarded func(conn *Connector, paintID uint64)
	// Resized fires after SetMode completes successfully.
	Resized func(conn *Connector)
	// Uninitialized fires exactly once per successful Initialize, when the
	// render thread exits for any reason (explicit Uninitialize, hotplug
	// removal, or an unrecoverable SetMode failure).
	Uninitialized func(conn *Connector)
}

// CursorImage is the caller-supplied cursor pixel payload for SetCursor:
// tightly packed, row-major ARGB8888 (premultiplied), Width*Height*4 bytes.
type CursorImage struct {
	Width, Height uint32
	Pixels        []byte
}

// connectorChanges is the pending-property bitset accumulated by SetCursor,
// SetCursorPos and (nominally) gamma/content-type setters between two
// commits, flushed into the next atomic request and cleared on success.
type connectorChanges uint32

const (
	changeCursorVisibility connectorChanges = 1 << iota
	changeCursorPosition
	changeCursorBuffer
	changeGammaLUT
	changeContentType
)

// Connector represents one physical output.
type Connector struct {
	device *Device
	id     uint32
	connType, typeID uint32

	mu        sync.Mutex
	connected bool
	leased    bool

	encoders []*Encoder
	modes    []*ConnectorMode

	propCrtcID uint32

	state         ConnectorState
	crtc          *Crtc
	encoder       *Encoder
	plane         *Plane
	cursorPlane   *Plane
	currentMode   *ConnectorMode
	currentFormat Format
	strategy      renderStrategy

	iface              ConnectorInterface
	initializedFired   bool
	uninitializedFired bool
	paintCounter       uint64

	repaintCh chan struct{}
	doneCh    chan struct{}
	stoppedCh chan struct{}

	// Pending cursor mailbox, written by SetCursor/SetCursorPos under mu and
	// drained once per frame by the render thread via consumePendingCursor.
	pendingChanges       connectorChanges
	pendingCursorImage   *CursorImage
	pendingCursorX       int32
	pendingCursorY       int32
	pendingCursorVisible bool

	// Cursor plane state below is owned exclusively by the render thread
	// (never touched by another goroutine), matching the rest of the
	// swap-chain/plane-binding state's ownership discipline.
	cursorHandle           uint32
	cursorMap              []byte
	cursorFBID             uint32
	cursorBufW, cursorBufH uint32
	cursorX, cursorY       int32
	cursorVisible          bool

	pluggedListeners   []func(*Connector)
	unpluggedListeners []func(*Connector)
}

func newConnector(dev *Device, id uint32) (*Connector, error) {
	info, err := dev.backend.GetConnector(id)
	if err != nil {
		return nil, wrapKernel(err, "get connector %d", id)
	}

	c := &Connector{
		device:    dev,
		id:        id,
		connType:  info.Type,
		typeID:    info.TypeID,
		connected: info.Connection == 1,
		state:     ConnectorUninitialized,
	}

	for _, encID := range info.EncoderIDs {
		for _, enc := range dev.encoders {
			if enc.id == encID {
				c.encoders = append(c.encoders, enc)
			}
		}
	}
	for _, m := range info.Modes {
		c.modes = append(c.modes, newConnectorMode(c, m))
	}

	props, err := dev.backend.ResolveProperties(id, kmsapi.ObjectConnector)
	if err == nil {
		if p, ok := props["CRTC_ID"]; ok {
			c.propCrtcID = p.ID
		}
	}

	return c, nil
}

func (c *Connector) ID() uint32        { return c.id }
func (c *Connector) Device() *Device   { return c.device }
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
func (c *Connector) State() ConnectorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
func (c *Connector) Leased() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leased
}

// Modes lists every mode advertised by the connector.
func (c *Connector) Modes() []*ConnectorMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ConnectorMode, len(c.modes))
	copy(out, c.modes)
	return out
}

// PreferredMode returns the connector's DRM_MODE_TYPE_PREFERRED mode, or the
// first advertised mode if none is flagged preferred.
func (c *Connector) PreferredMode() *ConnectorMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.modes {
		if m.preferred {
			return m
		}
	}
	if len(c.modes) > 0 {
		return c.modes[0]
	}
	return nil
}

func (c *Connector) CurrentMode() *ConnectorMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentMode
}

// OnPlugged/OnUnplugged register hotplug listeners fired by the dispatcher.
func (c *Connector) OnPlugged(fn func(*Connector))   { c.pluggedListeners = append(c.pluggedListeners, fn) }
func (c *Connector) OnUnplugged(fn func(*Connector)) { c.unpluggedListeners = append(c.unpluggedListeners, fn) }

// bestConfiguration searches the device's unused (encoder, crtc, plane)
// triples compatible with this connector, preferring the combination whose
// primary plane advertises the greatest modifier diversity for the
// requested format, and additionally binds a compatible cursor plane when
// one is free. Leased crtcs/planes are an immovable veto.
func (c *Connector) bestConfiguration(format Format) (*Encoder, *Crtc, *Plane, *Plane, error) {
	dev := c.device

	usedCrtc := map[*Crtc]bool{}
	for _, other := range dev.connectors {
		if other == c {
			continue
		}
		other.mu.Lock()
		if other.state == ConnectorInitialized || other.state == ConnectorChangingMode {
			usedCrtc[other.crtc] = true
		}
		other.mu.Unlock()
	}

	var bestEnc *Encoder
	var bestCrtc *Crtc
	var bestPlane *Plane
	bestDiversity := -1

	for _, enc := range c.encoders {
		for _, crtc := range enc.possibleCrtcs {
			if usedCrtc[crtc] || crtc.leased {
				continue
			}
			for _, pl := range dev.planes {
				if pl.typ != PlanePrimary || pl.leased || !pl.CompatibleWith(crtc) {
					continue
				}
				if !pl.formats.Supports(format) {
					continue
				}
				div := pl.formats.diversity(format)
				if div > bestDiversity {
					bestDiversity = div
					bestEnc, bestCrtc, bestPlane = enc, crtc, pl
				}
			}
		}
	}

	if bestCrtc == nil {
		return nil, nil, nil, nil, srmerr.New(srmerr.NoResources, "no free encoder/crtc/plane triple for connector %d", c.id)
	}

	var cursorPlane *Plane
	for _, pl := range dev.planes {
		if pl.typ == PlaneCursor && !pl.leased && pl.CompatibleWith(bestCrtc) {
			cursorPlane = pl
			break
		}
	}

	return bestEnc, bestCrtc, bestPlane, cursorPlane, nil
}

// Initialize transitions the connector Uninitialized -> Initializing ->
// Initialized. It does not return until the render thread it spawns has
// either committed a first frame successfully (with a page-flip event
// armed) or failed to do so, matching the synchronous contract every
// caller of Initialize relies on.
func (c *Connector) Initialize(mode *ConnectorMode, format Format, iface ConnectorInterface) error {
	c.mu.Lock()
	if c.state != ConnectorUninitialized {
		c.mu.Unlock()
		return srmerr.New(srmerr.Invalid, "connector %d is not uninitialized", c.id)
	}
	if c.leased {
		c.mu.Unlock()
		return srmerr.New(srmerr.Leased, "connector %d is leased", c.id)
	}
	if !c.connected {
		c.mu.Unlock()
		return srmerr.New(srmerr.NoResources, "connector %d is disconnected", c.id)
	}
	c.state = ConnectorInitializing
	c.mu.Unlock()

	enc, crtc, plane, cursorPlane, err := c.bestConfiguration(format)
	if err != nil {
		c.mu.Lock()
		c.state = ConnectorUninitialized
		c.mu.Unlock()
		return err
	}

	strategy := newStrategyFor(c.device.strategy)
	if err := strategy.initSwapchain(c, mode.Width(), mode.Height(), format, 3); err != nil {
		c.mu.Lock()
		c.state = ConnectorUninitialized
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.encoder = enc
	c.crtc = crtc
	c.plane = plane
	c.cursorPlane = cursorPlane
	c.currentMode = mode
	c.currentFormat = format
	c.strategy = strategy
	c.iface = iface
	c.initializedFired = false
	c.uninitializedFired = false
	crtc.currentConnector = c
	enc.currentConnector = c
	plane.currentConnector = c
	if cursorPlane != nil {
		cursorPlane.currentConnector = c
	}
	c.repaintCh = make(chan struct{}, 1)
	c.doneCh = make(chan struct{})
	c.stoppedCh = make(chan struct{})
	c.mu.Unlock()

	firstFrame := make(chan error, 1)
	go c.renderLoop(firstFrame)

	if err := <-firstFrame; err != nil {
		return err
	}

	c.mu.Lock()
	c.state = ConnectorInitialized
	c.mu.Unlock()
	return nil
}

// SetMode transitions Initialized -> ChangingMode -> Initialized, tearing
// down and rebuilding the swap chain at the new geometry without stopping
// the render goroutine. On an allocation failure it reverts to the
// previous mode; if the revert itself fails, the render thread is joined
// and the connector falls all the way back to Uninitialized. Setting the
// mode that is already current does nothing.
func (c *Connector) SetMode(mode *ConnectorMode) error {
	c.mu.Lock()
	if c.state != ConnectorInitialized {
		c.mu.Unlock()
		return srmerr.New(srmerr.Invalid, "connector %d is not initialized", c.id)
	}
	if mode == c.currentMode {
		c.mu.Unlock()
		return nil
	}
	c.state = ConnectorChangingMode
	strategy := c.strategy
	format := c.currentFormat
	previousMode := c.currentMode
	iface := c.iface
	c.mu.Unlock()

	strategy.release(c)
	if err := strategy.initSwapchain(c, mode.Width(), mode.Height(), format, 3); err != nil {
		if previousMode == nil {
			return err
		}
		if revertErr := strategy.initSwapchain(c, previousMode.Width(), previousMode.Height(), format, 3); revertErr != nil {
			c.mu.Lock()
			doneCh := c.doneCh
			stopped := c.stoppedCh
			c.mu.Unlock()
			if doneCh != nil {
				close(doneCh)
			}
			c.Repaint()
			if stopped != nil {
				<-stopped
			}
			return revertErr
		}
		c.mu.Lock()
		c.state = ConnectorInitialized
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.currentMode = mode
	c.state = ConnectorInitialized
	c.mu.Unlock()

	if iface.Resized != nil {
		iface.Resized(c)
	}
	c.Repaint()
	return nil
}

// Repaint schedules one frame; repeated calls before the render goroutine
// wakes coalesce into a single repaint, matching the size-1 buffered
// channel convention.
func (c *Connector) Repaint() {
	c.mu.Lock()
	ch := c.repaintCh
	c.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Uninitialize transitions Initialized -> Uninitializing, signals the
// render thread and joins it. Idempotent.
func (c *Connector) Uninitialize() {
	c.mu.Lock()
	if c.state == ConnectorUninitialized || c.state == ConnectorUninitializing {
		c.mu.Unlock()
		return
	}
	c.state = ConnectorUninitializing
	doneCh := c.doneCh
	stopped := c.stoppedCh
	c.mu.Unlock()

	if doneCh != nil {
		close(doneCh)
	}
	c.Repaint() // wake the goroutine so it observes doneCh

	if stopped != nil {
		<-stopped
	}
}

// SetCursor enqueues a new cursor image, uploaded to the cursor plane's
// framebuffer by the render thread on the next commit. A nil image hides
// the cursor. Returns NotSupported if the connector has no cursor plane.
func (c *Connector) SetCursor(img *CursorImage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursorPlane == nil {
		return srmerr.New(srmerr.NotSupported, "connector %d has no cursor plane", c.id)
	}
	c.pendingCursorImage = img
	c.pendingCursorVisible = img != nil
	c.pendingChanges |= changeCursorBuffer | changeCursorVisibility
	return nil
}

// SetCursorPos enqueues a cursor position update applied on the next
// commit. Returns NotSupported if the connector has no cursor plane.
func (c *Connector) SetCursorPos(x, y int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursorPlane == nil {
		return srmerr.New(srmerr.NotSupported, "connector %d has no cursor plane", c.id)
	}
	c.pendingCursorX, c.pendingCursorY = x, y
	c.pendingChanges |= changeCursorPosition
	return nil
}

// consumePendingCursor drains the cursor mailbox under lock, returning the
// bits the render thread must act on this frame. Bits not returned here
// (GammaLUT, ContentType) are reserved for parity with the bitset's naming
// but nothing in this module sets them: SetGamma commits immediately
// rather than queueing, and content-type is not a modeled operation.
func (c *Connector) consumePendingCursor() (img *CursorImage, x, y int32, visible bool, changes connectorChanges) {
	c.mu.Lock()
	defer c.mu.Unlock()
	changes = c.pendingChanges & (changeCursorVisibility | changeCursorPosition | changeCursorBuffer)
	img = c.pendingCursorImage
	x, y = c.pendingCursorX, c.pendingCursorY
	visible = c.pendingCursorVisible
	c.pendingChanges &^= changes
	c.pendingCursorImage = nil
	return
}

// applyCursorChanges drains pending cursor state and, if anything changed,
// (re)allocates the cursor plane's framebuffer and adds its properties to
// req. Called from present() once per frame; a no-op when nothing is
// pending or the connector has no cursor plane.
func (c *Connector) applyCursorChanges(req *AtomicRequest) error {
	plane := c.cursorPlane
	if plane == nil {
		return nil
	}
	img, x, y, visible, changes := c.consumePendingCursor()
	if changes == 0 {
		return nil
	}

	dev := c.device

	if changes&changeCursorBuffer != 0 && img != nil {
		if c.cursorFBID != 0 {
			_ = dev.backend.RmFB(c.cursorFBID)
		}
		if c.cursorMap != nil {
			_ = dev.backend.MunmapDumb(c.cursorMap)
		}
		if c.cursorHandle != 0 {
			_ = dev.backend.DestroyDumb(c.cursorHandle)
		}
		c.cursorHandle, c.cursorMap, c.cursorFBID = 0, nil, 0

		buf, err := dev.backend.CreateDumb(img.Width, img.Height, 32)
		if err != nil {
			return srmerr.Wrap(srmerr.Alloc, err, "create cursor buffer")
		}
		offset, err := dev.backend.MapDumb(buf.Handle)
		if err != nil {
			_ = dev.backend.DestroyDumb(buf.Handle)
			return srmerr.Wrap(srmerr.Alloc, err, "map cursor buffer")
		}
		mapped, err := dev.backend.MmapDumb(offset, buf.Size)
		if err != nil {
			_ = dev.backend.DestroyDumb(buf.Handle)
			return srmerr.Wrap(srmerr.Alloc, err, "mmap cursor buffer")
		}
		rowBytes := img.Width * 4
		for row := uint32(0); row < img.Height; row++ {
			srcOff := row * rowBytes
			dstOff := row * buf.Pitch
			if srcOff+rowBytes > uint32(len(img.Pixels)) || dstOff+rowBytes > uint32(len(mapped)) {
				break
			}
			copy(mapped[dstOff:dstOff+rowBytes], img.Pixels[srcOff:srcOff+rowBytes])
		}

		handles := [4]uint32{buf.Handle}
		pitches := [4]uint32{buf.Pitch}
		var offsets [4]uint32
		fbID, err := dev.backend.AddFB2(img.Width, img.Height, uint32(formatARGB8888), handles, pitches, offsets, [4]uint64{}, false)
		if err != nil {
			_ = dev.backend.MunmapDumb(mapped)
			_ = dev.backend.DestroyDumb(buf.Handle)
			return srmerr.Wrap(srmerr.Alloc, err, "add fb for cursor buffer")
		}

		c.cursorHandle = buf.Handle
		c.cursorMap = mapped
		c.cursorFBID = fbID
		c.cursorBufW, c.cursorBufH = img.Width, img.Height
	}

	if changes&changeCursorPosition != 0 {
		c.cursorX, c.cursorY = x, y
	}
	if changes&changeCursorVisibility != 0 {
		c.cursorVisible = visible
	}

	if c.cursorVisible && c.cursorFBID != 0 && c.crtc != nil {
		req.addProperty(plane.id, plane.propFBID, uint64(c.cursorFBID))
		req.addProperty(plane.id, plane.propCrtcID, uint64(c.crtc.id))
		req.addProperty(plane.id, plane.propCrtcX, uint64(int64(c.cursorX)))
		req.addProperty(plane.id, plane.propCrtcY, uint64(int64(c.cursorY)))
		req.addProperty(plane.id, plane.propCrtcW, uint64(c.cursorBufW))
		req.addProperty(plane.id, plane.propCrtcH, uint64(c.cursorBufH))
	} else {
		req.addProperty(plane.id, plane.propFBID, 0)
		req.addProperty(plane.id, plane.propCrtcID, 0)
	}
	return nil
}

// SetGamma uploads a gamma LUT via the atomic GAMMA_LUT property when
// available, falling back to the legacy CRTC gamma ioctl otherwise. Unlike
// the cursor setters, this issues its own commit immediately rather than
// queueing through the pending-changes bitset, since a gamma change has no
// geometry dependency on the next paint.
func (c *Connector) SetGamma(red, green, blue []uint16) error {
	c.mu.Lock()
	crtc := c.crtc
	c.mu.Unlock()
	if crtc == nil {
		return srmerr.New(srmerr.Invalid, "connector %d has no bound crtc", c.id)
	}

	if crtc.device.clientCaps.Atomic && crtc.propGammaLUT != 0 {
		size := int(crtc.GammaSize())
		if size == 0 || len(red) != size || len(green) != size || len(blue) != size {
			return srmerr.New(srmerr.Invalid, "gamma LUT size mismatch for crtc %d", crtc.id)
		}
		data := make([]byte, size*8)
		for i := 0; i < size; i++ {
			data[i*8+0] = byte(red[i])
			data[i*8+1] = byte(red[i] >> 8)
			data[i*8+2] = byte(green[i])
			data[i*8+3] = byte(green[i] >> 8)
			data[i*8+4] = byte(blue[i])
			data[i*8+5] = byte(blue[i] >> 8)
		}
		blob, err := newPropertyBlob(crtc.device, data)
		if err != nil {
			return err
		}
		defer blob.release()

		req := newAtomicRequest(crtc.device)
		req.attachBlob(blob)
		req.addProperty(crtc.id, crtc.propGammaLUT, uint64(blob.ID()))
		return req.commit(kmsapi.FlagAtomicAllowModeset, false, nil)
	}

	if err := crtc.device.backend.SetGamma(crtc.id, red, green, blue); err != nil {
		return wrapKernel(err, "set legacy gamma on crtc %d", crtc.id)
	}
	return nil
}

// markConnected is invoked by the hotplug dispatcher on a connection-status
// change, firing the registered listeners outside the connector's lock.
func (c *Connector) markConnected(connected bool) {
	c.mu.Lock()
	was := c.connected
	c.connected = connected
	c.mu.Unlock()

	if was == connected {
		return
	}
	if connected {
		for _, fn := range c.pluggedListeners {
			fn(c)
		}
	} else {
		for _, fn := range c.unpluggedListeners {
			fn(c)
		}
	}
}
