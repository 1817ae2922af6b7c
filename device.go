package srm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/CuarzoSoftware/SRM-sub001/internal/kmsapi"
	"github.com/CuarzoSoftware/SRM-sub001/srmerr"
	"github.com/CuarzoSoftware/SRM-sub001/srmlog"
)

// RenderCapability lets the caller answer, per device node path, whether
// the opaque Image producer (the GPU rendering API is out of scope here)
// can create a rendering context on that device and/or import buffers
// produced elsewhere. The core never looks inside the rendering API; it
// only asks the render question below to drive the renderer-device
// assignment (import support comes from the device's Prime caps).
type RenderCapability interface {
	// CanRenderOn reports whether the Image producer can render on the
	// device at path (i.e. the device could be a Self-strategy renderer).
	CanRenderOn(path string) bool
}

type clientCaps struct {
	UniversalPlanes bool
	Atomic          bool
	Writeback       bool
	AspectRatio     bool
	Stereo3D        bool
}

type deviceCaps struct {
	DumbBuffer         bool
	PrimeImport        bool
	PrimeExport        bool
	AddFB2Modifiers    bool
	AsyncPageFlip      bool
	MonotonicTimestamp bool
}

// Device models one opened DRM node.
type Device struct {
	core *Core
	log  zerolog.Logger

	path       string
	driverName string
	fd         int
	backend    kmsapi.Backend
	closeFn    CloseRestrictedFunc

	clientCaps clientCaps
	deviceCaps deviceCaps

	crtcs      []*Crtc
	encoders   []*Encoder
	planes     []*Plane
	connectors []*Connector

	// rendererDevice points either to self or to another Device that
	// renders on this Device's behalf.
	rendererDevice *Device
	strategy       StrategyKind

	bootVGA bool
	enabled bool

	// eventMu serializes page-flip event draining: the kernel's event
	// dispatcher for one fd is not reentrant.
	eventMu sync.Mutex
}

func (d *Device) Path() string       { return d.path }
func (d *Device) DriverName() string { return d.driverName }
func (d *Device) Crtcs() []*Crtc     { return d.crtcs }
func (d *Device) Encoders() []*Encoder { return d.encoders }
func (d *Device) Planes() []*Plane   { return d.planes }
func (d *Device) Connectors() []*Connector { return d.connectors }
func (d *Device) RendererDevice() *Device  { return d.rendererDevice }
func (d *Device) Strategy() StrategyKind   { return d.strategy }
func (d *Device) IsEnabled() bool          { return d.enabled }
func (d *Device) IsRenderer() bool         { return d.rendererDevice == d }

// SetEnabled disables or enables a device. At least one Device must remain
// enabled at all times.
func (d *Device) SetEnabled(enabled bool) error {
	d.core.mu.Lock()
	defer d.core.mu.Unlock()
	if !enabled {
		count := 0
		for _, dev := range d.core.devices {
			if dev.enabled {
				count++
			}
		}
		if count <= 1 && d.enabled {
			return srmerr.New(srmerr.Invalid, "cannot disable the only enabled device")
		}
	}
	d.enabled = enabled
	return nil
}

// Core is the device registry.
type Core struct {
	mu      sync.RWMutex
	devices []*Device
	opts    CoreOptions
	log     zerolog.Logger
	render  RenderCapability
}

// NewCore opens every DRM node at the given paths (via the caller-supplied
// restricted-open callback), negotiates capabilities, enumerates objects in
// a fixed declaration order, and runs the renderer-device assignment. At
// least one device must end up enabled.
func NewCore(paths []string, render RenderCapability, opts CoreOptions) (*Core, error) {
	if opts.OpenRestricted == nil || opts.CloseRestricted == nil {
		return nil, srmerr.New(srmerr.Invalid, "OpenRestricted/CloseRestricted callbacks are required")
	}
	if render == nil {
		render = alwaysSelfRender{}
	}

	log := srmlog.For("registry")
	if opts.Logger != nil {
		log = *opts.Logger
	}

	core := &Core{opts: opts, log: log, render: render}

	for _, path := range paths {
		dev, err := core.openDevice(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to open device, skipping")
			continue
		}
		core.devices = append(core.devices, dev)
	}

	if len(core.devices) == 0 {
		return nil, srmerr.New(srmerr.NoResources, "no DRM devices could be opened")
	}

	// Every opened device starts enabled. The kernel exposes no portable
	// boot-VGA query through the ioctls used here, so the first
	// successfully opened device (in paths order) is marked boot-VGA;
	// CoreOptions.AllocatorOrder can override the resulting tie-break order.
	core.devices[0].bootVGA = true
	for _, dev := range core.devices {
		dev.enabled = true
	}

	core.assignRendererDevices()

	return core, nil
}

type alwaysSelfRender struct{}

func (alwaysSelfRender) CanRenderOn(string) bool { return true }

func (c *Core) openDevice(path string) (*Device, error) {
	fd, err := c.opts.OpenRestricted(path, 0)
	if err != nil {
		return nil, srmerr.Wrap(srmerr.Invalid, err, "open %s", path)
	}

	dev := &Device{
		core:    c,
		log:     srmlog.For("device").With().Str("path", path).Logger(),
		path:    path,
		fd:      fd,
		backend: kmsapi.NewRealBackend(fd),
		closeFn: c.opts.CloseRestricted,
	}

	if name, err := dev.backend.DriverName(); err == nil {
		dev.driverName = name
	}

	dev.negotiateClientCaps()
	dev.queryDeviceCaps()

	if err := dev.buildObjects(); err != nil {
		c.opts.CloseRestricted(fd)
		return nil, err
	}

	return dev, nil
}

func (d *Device) negotiateClientCaps() {
	d.clientCaps.UniversalPlanes = d.backend.SetClientCap(kmsapi.ClientCapUniversalPlanes)
	d.clientCaps.Atomic = d.backend.SetClientCap(kmsapi.ClientCapAtomic)
	d.clientCaps.Writeback = d.backend.SetClientCap(kmsapi.ClientCapWritebackConnectors)
	d.clientCaps.AspectRatio = d.backend.SetClientCap(kmsapi.ClientCapAspectRatio)
	d.clientCaps.Stereo3D = d.backend.SetClientCap(kmsapi.ClientCapStereo3D)
}

func boolCap(backend kmsapi.Backend, cap uint64) bool {
	v, ok := backend.GetCap(cap)
	return ok && v != 0
}

func (d *Device) queryDeviceCaps() {
	d.deviceCaps.DumbBuffer = boolCap(d.backend, kmsapi.CapDumbBuffer)
	d.deviceCaps.AsyncPageFlip = boolCap(d.backend, kmsapi.CapAsyncPageFlip)
	d.deviceCaps.MonotonicTimestamp = boolCap(d.backend, kmsapi.CapTimestampMonotonic)
	d.deviceCaps.AddFB2Modifiers = boolCap(d.backend, kmsapi.CapAddFB2Modifiers)
	if v, ok := d.backend.GetCap(kmsapi.CapPrime); ok {
		d.deviceCaps.PrimeImport = v&kmsapi.PrimeCapImport != 0
		d.deviceCaps.PrimeExport = v&kmsapi.PrimeCapExport != 0
	}
}

// buildObjects enumerates Crtcs, Encoders, Planes and Connectors in a fixed
// declaration order: Encoders and Planes depend on the Crtcs slice's order
// because their "possible CRTCs" bitmask indexes into it positionally.
func (d *Device) buildObjects() error {
	res, err := d.backend.GetResources()
	if err != nil {
		return wrapKernel(err, "get resources for %s", d.path)
	}

	for _, id := range res.CrtcIDs {
		crtc, err := newCrtc(d, id)
		if err != nil {
			return err
		}
		d.crtcs = append(d.crtcs, crtc)
	}

	for _, id := range res.EncoderIDs {
		enc, err := newEncoder(d, id)
		if err != nil {
			return err
		}
		d.encoders = append(d.encoders, enc)
	}

	planeIDs, err := d.backend.GetPlaneResources()
	if err != nil {
		return wrapKernel(err, "get plane resources for %s", d.path)
	}
	for _, id := range planeIDs {
		pl, err := newPlane(d, id)
		if err != nil {
			return err
		}
		d.planes = append(d.planes, pl)
	}

	for _, id := range res.ConnectorIDs {
		conn, err := newConnector(d, id)
		if err != nil {
			return err
		}
		d.connectors = append(d.connectors, conn)
	}

	return nil
}

// assignRendererDevices implements the central renderer-device decision for
// every enabled device, with ties broken in favour of the boot-VGA device,
// or in CoreOptions.AllocatorOrder's path order when that is set.
func (c *Core) assignRendererDevices() {
	order := make([]*Device, len(c.devices))
	copy(order, c.devices)
	rank := func(d *Device) int {
		for i, p := range c.opts.AllocatorOrder {
			if p == d.path {
				return i
			}
		}
		return len(c.opts.AllocatorOrder)
	}
	sort.SliceStable(order, func(i, j int) bool {
		if len(c.opts.AllocatorOrder) > 0 {
			return rank(order[i]) < rank(order[j])
		}
		if order[i].bootVGA != order[j].bootVGA {
			return order[i].bootVGA
		}
		return false
	})

	for _, dev := range c.devices {
		if !dev.enabled {
			continue
		}
		c.assignRendererDevice(dev, order)
	}
}

func (c *Core) assignRendererDevice(dev *Device, candidates []*Device) {
	// Rule 1: self-render.
	if c.render.CanRenderOn(dev.path) {
		dev.rendererDevice = dev
		dev.strategy = StrategySelf
		return
	}

	var primeCandidate, dumbCandidate, cpuCandidate *Device
	for _, remote := range candidates {
		if remote == dev || !remote.enabled || !c.render.CanRenderOn(remote.path) {
			continue
		}
		if cpuCandidate == nil {
			cpuCandidate = remote
		}
		if dumbCandidate == nil && dev.deviceCaps.DumbBuffer {
			dumbCandidate = remote
		}
		if primeCandidate == nil && dev.deviceCaps.PrimeImport && remote.deviceCaps.PrimeExport {
			primeCandidate = remote
		}
	}

	switch {
	case primeCandidate != nil:
		dev.rendererDevice = primeCandidate
		dev.strategy = StrategyPrime
	case dumbCandidate != nil:
		dev.rendererDevice = dumbCandidate
		dev.strategy = StrategyDumb
	case cpuCandidate != nil:
		dev.rendererDevice = cpuCandidate
		dev.strategy = StrategyCPU
	default:
		// No other device can render either; fall back to self so the
		// device is at least internally consistent (e.g. single-GPU test
		// harnesses that don't wire a RenderCapability).
		dev.rendererDevice = dev
		dev.strategy = StrategySelf
	}
}

// Close tears down every device: joins any running render threads (via
// Connector.Uninitialize), then closes the fd through the restricted-close
// callback.
func (c *Core) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, dev := range c.devices {
		for _, conn := range dev.connectors {
			conn.Uninitialize()
		}
		dev.closeFn(dev.fd)
	}
}

func (c *Core) Devices() []*Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Device, len(c.devices))
	copy(out, c.devices)
	return out
}

func (c *Core) deviceByPath(path string) *Device {
	for _, d := range c.devices {
		if d.path == path {
			return d
		}
	}
	return nil
}

func (d *Device) String() string {
	return fmt.Sprintf("Device(%s, driver=%s, strategy=%s)", d.path, d.driverName, d.strategy)
}
