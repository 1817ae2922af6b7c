package srm

import (
	"github.com/CuarzoSoftware/SRM-sub001/internal/kmsapi"
)

// PlaneType classifies a Plane's compositing role.
type PlaneType int

const (
	PlaneOverlay PlaneType = iota
	PlanePrimary
	PlaneCursor
	planeTypeCount
)

// TypeString names the plane type, mapping anything outside
// Overlay..Cursor to "Unknown" rather than reading past the table.
func (t PlaneType) TypeString() string {
	names := [...]string{"Overlay", "Primary", "Cursor"}
	if t < 0 || int(t) >= len(names) {
		return "Unknown"
	}
	return names[t]
}

// Crtc is the scanout engine that reads a framebuffer and drives a
// connector at a given mode.
type Crtc struct {
	device *Device
	id     uint32

	propActive       uint32
	propModeID       uint32
	propGammaLUT     uint32
	propGammaLUTSize uint32
	propVRREnabled   uint32
	hasVRR           bool

	legacyGammaSize uint32
	atomicGammaSize uint32

	// leased is the immovable veto from an active Lease: bestConfiguration
	// must never offer this crtc to a different connector while it's set.
	leased bool

	// currentConnector is a weak back-link: lookup only, never extends the
	// Connector's lifetime.
	currentConnector *Connector
}

func (c *Crtc) ID() uint32    { return c.id }
func (c *Crtc) Device() *Device { return c.device }

// GammaSize implements the gamma-size policy: prefer the atomic size
// when atomic is negotiated and GAMMA_LUT_SIZE is present, else the legacy
// CRTC gamma size.
func (c *Crtc) GammaSize() uint32 {
	if c.device.clientCaps.Atomic && c.propGammaLUTSize != 0 && c.atomicGammaSize > 0 {
		return c.atomicGammaSize
	}
	return c.legacyGammaSize
}

func (c *Crtc) currentConnectorLocked() *Connector { return c.currentConnector }

func newCrtc(dev *Device, id uint32) (*Crtc, error) {
	info, err := dev.backend.GetCrtc(id)
	if err != nil {
		return nil, wrapKernel(err, "get crtc %d", id)
	}
	c := &Crtc{device: dev, id: id, legacyGammaSize: info.GammaSize}

	props, err := dev.backend.ResolveProperties(id, kmsapi.ObjectCrtc)
	if err != nil {
		return nil, wrapKernel(err, "resolve crtc %d properties", id)
	}
	if p, ok := props["ACTIVE"]; ok {
		c.propActive = p.ID
	}
	if p, ok := props["MODE_ID"]; ok {
		c.propModeID = p.ID
	}
	if p, ok := props["GAMMA_LUT"]; ok {
		c.propGammaLUT = p.ID
	}
	if p, ok := props["GAMMA_LUT_SIZE"]; ok {
		c.propGammaLUTSize = p.ID
		c.atomicGammaSize = uint32(p.Value)
	}
	if p, ok := props["VRR_ENABLED"]; ok {
		c.propVRREnabled = p.ID
		c.hasVRR = true
	}
	return c, nil
}

// Encoder transforms CRTC pixels into a connector's signal format.
type Encoder struct {
	device *Device
	id     uint32

	// possibleCrtcs indexes into device.crtcs by position: bit i refers to
	// the i-th discovered Crtc.
	possibleCrtcs []*Crtc

	currentConnector *Connector // weak
}

func (e *Encoder) ID() uint32        { return e.id }
func (e *Encoder) Device() *Device   { return e.device }
func (e *Encoder) PossibleCrtcs() []*Crtc { return e.possibleCrtcs }

func newEncoder(dev *Device, id uint32) (*Encoder, error) {
	info, err := dev.backend.GetEncoder(id)
	if err != nil {
		return nil, wrapKernel(err, "get encoder %d", id)
	}
	e := &Encoder{device: dev, id: id}
	for i, crtc := range dev.crtcs {
		if info.PossibleCrtcs&(1<<uint(i)) != 0 {
			e.possibleCrtcs = append(e.possibleCrtcs, crtc)
		}
	}
	return e, nil
}

// Plane is a hardware compositor layer that reads a framebuffer and
// composites into a Crtc.
type Plane struct {
	device *Device
	id     uint32
	typ    PlaneType

	formats FormatSet

	propFBID           uint32
	propFBDamageClips  uint32
	propInFenceFD      uint32
	propCrtcID         uint32
	propCrtcX, propCrtcY, propCrtcW, propCrtcH uint32
	propSrcX, propSrcY, propSrcW, propSrcH     uint32
	propRotation       uint32
	propType           uint32

	possibleCrtcs []*Crtc

	// leased is the immovable veto from an active Lease, same discipline as
	// Crtc.leased.
	leased bool

	currentConnector *Connector // weak
}

func (p *Plane) ID() uint32         { return p.id }
func (p *Plane) Device() *Device    { return p.device }
func (p *Plane) Type() PlaneType    { return p.typ }
func (p *Plane) Formats() FormatSet { return p.formats }
func (p *Plane) PossibleCrtcs() []*Crtc { return p.possibleCrtcs }

// CompatibleWith reports whether this plane can be bound to crtc.
func (p *Plane) CompatibleWith(crtc *Crtc) bool {
	for _, c := range p.possibleCrtcs {
		if c == crtc {
			return true
		}
	}
	return false
}

func newPlane(dev *Device, id uint32) (*Plane, error) {
	info, err := dev.backend.GetPlane(id)
	if err != nil {
		return nil, wrapKernel(err, "get plane %d", id)
	}
	p := &Plane{device: dev, id: id}
	for i, crtc := range dev.crtcs {
		if info.PossibleCrtcs&(1<<uint(i)) != 0 {
			p.possibleCrtcs = append(p.possibleCrtcs, crtc)
		}
	}

	props, err := dev.backend.ResolveProperties(id, kmsapi.ObjectPlane)
	if err != nil {
		return nil, wrapKernel(err, "resolve plane %d properties", id)
	}
	assign := func(name string, dst *uint32) {
		if pr, ok := props[name]; ok {
			*dst = pr.ID
		}
	}
	assign("FB_ID", &p.propFBID)
	assign("FB_DAMAGE_CLIPS", &p.propFBDamageClips)
	assign("IN_FENCE_FD", &p.propInFenceFD)
	assign("CRTC_ID", &p.propCrtcID)
	assign("CRTC_X", &p.propCrtcX)
	assign("CRTC_Y", &p.propCrtcY)
	assign("CRTC_W", &p.propCrtcW)
	assign("CRTC_H", &p.propCrtcH)
	assign("SRC_X", &p.propSrcX)
	assign("SRC_Y", &p.propSrcY)
	assign("SRC_W", &p.propSrcW)
	assign("SRC_H", &p.propSrcH)
	assign("rotation", &p.propRotation)
	assign("type", &p.propType)

	if tp, ok := props["type"]; ok {
		switch tp.Value {
		case 1:
			p.typ = PlanePrimary
		case 2:
			p.typ = PlaneCursor
		default:
			p.typ = PlaneOverlay
		}
	}

	// Plane-format policy: IN_FORMATS blob when AddFb2Modifiers is
	// negotiated, else the per-format sentinel-modifier set.
	if dev.deviceCaps.AddFB2Modifiers {
		if fp, ok := props["IN_FORMATS"]; ok && fp.Value != 0 {
			raw, err := dev.backend.GetPropertyBlob(uint32(fp.Value))
			if err == nil {
				p.formats = formatSetFromInFormatsBlob(raw)
			}
		}
	}
	if p.formats == nil {
		p.formats = formatSetWithoutModifiers(info.Formats)
	}

	return p, nil
}

// ConnectorMode is an immutable resolution/refresh entry belonging to
// exactly one Connector.
type ConnectorMode struct {
	connector *Connector
	info      kmsapi.ModeInfo
	preferred bool
}

const modeTypePreferred = 1 << 3 // DRM_MODE_TYPE_PREFERRED

func newConnectorMode(conn *Connector, info kmsapi.ModeInfo) *ConnectorMode {
	return &ConnectorMode{connector: conn, info: info, preferred: info.Type&modeTypePreferred != 0}
}

func (m *ConnectorMode) Connector() *Connector { return m.connector }
func (m *ConnectorMode) Width() int            { return int(m.info.HDisplay) }
func (m *ConnectorMode) Height() int           { return int(m.info.VDisplay) }
func (m *ConnectorMode) RefreshHz() float64 {
	if m.info.HTotal == 0 || m.info.VTotal == 0 {
		return 0
	}
	return float64(m.info.Clock) * 1000.0 / (float64(m.info.HTotal) * float64(m.info.VTotal))
}
func (m *ConnectorMode) Name() string { return m.info.Name }
func (m *ConnectorMode) Preferred() bool { return m.preferred }

// refreshPeriodNs is the nanosecond period used to populate
// PresentedInfo.RefreshPeriodNs.
func (m *ConnectorMode) refreshPeriodNs() int64 {
	hz := m.RefreshHz()
	if hz <= 0 {
		return 0
	}
	return int64(1e9 / hz)
}
