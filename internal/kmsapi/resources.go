package kmsapi

import "unsafe"

// ModeInfo is the decoded, Go-native form of struct drm_mode_modeinfo.
type ModeInfo struct {
	Clock              uint32
	HDisplay, VDisplay uint16
	HSyncStart, HSyncEnd, HTotal, HSkew uint16
	VSyncStart, VSyncEnd, VTotal, VScan uint16
	VRefresh           uint32
	Flags              uint32
	Type               uint32
	Name               string
}

func (m ModeInfo) toC() modeInfo {
	var out modeInfo
	out.Clock = m.Clock
	out.HDisplay, out.VDisplay = m.HDisplay, m.VDisplay
	out.HSyncStart, out.HSyncEnd, out.HTotal, out.HSkew = m.HSyncStart, m.HSyncEnd, m.HTotal, m.HSkew
	out.VSyncStart, out.VSyncEnd, out.VTotal, out.VScan = m.VSyncStart, m.VSyncEnd, m.VTotal, m.VScan
	out.VRefresh = m.VRefresh
	out.Flags = m.Flags
	out.Type = m.Type
	n := copy(out.Name[:], m.Name)
	_ = n
	return out
}

func fromC(m modeInfo) ModeInfo {
	end := 0
	for end < len(m.Name) && m.Name[end] != 0 {
		end++
	}
	return ModeInfo{
		Clock:      m.Clock,
		HDisplay:   m.HDisplay,
		HSyncStart: m.HSyncStart,
		HSyncEnd:   m.HSyncEnd,
		HTotal:     m.HTotal,
		HSkew:      m.HSkew,
		VDisplay:   m.VDisplay,
		VSyncStart: m.VSyncStart,
		VSyncEnd:   m.VSyncEnd,
		VTotal:     m.VTotal,
		VScan:      m.VScan,
		VRefresh:   m.VRefresh,
		Flags:      m.Flags,
		Type:       m.Type,
		Name:       string(m.Name[:end]),
	}
}

// CardResources is the decoded struct drm_mode_card_res.
type CardResources struct {
	FBIDs        []uint32
	CrtcIDs      []uint32
	ConnectorIDs []uint32
	EncoderIDs   []uint32
	MinWidth, MaxWidth, MinHeight, MaxHeight uint32
}

func sliceU32Ptr(s []uint32) uint64 {
	if len(s) == 0 {
		return 0
	}
	return ptrToUint64(&s[0])
}

// GetResources enumerates the card's top-level object id lists. It issues
// the ioctl twice: once to learn the counts, once more with buffers sized to
// match, exactly as the kernel's two-pass GETRESOURCES protocol requires.
func GetResources(fd int) (CardResources, error) {
	var res modeCardRes
	if err := call(fd, iowr(nrModeGetResources, unsafe.Sizeof(res)), unsafe.Pointer(&res)); err != nil {
		return CardResources{}, err
	}

	fbs := make([]uint32, res.CountFbs)
	crtcs := make([]uint32, res.CountCrtcs)
	conns := make([]uint32, res.CountConnectors)
	encs := make([]uint32, res.CountEncoders)

	res.FbIDPtr = sliceU32Ptr(fbs)
	res.CrtcIDPtr = sliceU32Ptr(crtcs)
	res.ConnectorIDPtr = sliceU32Ptr(conns)
	res.EncoderIDPtr = sliceU32Ptr(encs)

	if err := call(fd, iowr(nrModeGetResources, unsafe.Sizeof(res)), unsafe.Pointer(&res)); err != nil {
		return CardResources{}, err
	}

	return CardResources{
		FBIDs:        fbs[:res.CountFbs],
		CrtcIDs:      crtcs[:res.CountCrtcs],
		ConnectorIDs: conns[:res.CountConnectors],
		EncoderIDs:   encs[:res.CountEncoders],
		MinWidth:     res.MinWidth,
		MaxWidth:     res.MaxWidth,
		MinHeight:    res.MinHeight,
		MaxHeight:    res.MaxHeight,
	}, nil
}

// Crtc is the decoded subset of struct drm_mode_crtc needed by the object
// model (current fb/position/mode, legacy gamma size).
type Crtc struct {
	ID        uint32
	FBID      uint32
	X, Y      uint32
	GammaSize uint32
	ModeValid bool
	Mode      ModeInfo
}

func GetCrtc(fd int, id uint32) (Crtc, error) {
	var c modeCrtc
	c.CrtcID = id
	if err := call(fd, iowr(nrModeGetCrtc, unsafe.Sizeof(c)), unsafe.Pointer(&c)); err != nil {
		return Crtc{}, err
	}
	return Crtc{
		ID:        c.CrtcID,
		FBID:      c.FbID,
		X:         c.X,
		Y:         c.Y,
		GammaSize: c.GammaSize,
		ModeValid: c.ModeValid != 0,
		Mode:      fromC(c.Mode),
	}, nil
}

// Encoder is the decoded struct drm_mode_get_encoder.
type Encoder struct {
	ID             uint32
	Type           uint32
	CrtcID         uint32
	PossibleCrtcs  uint32 // bitmask over the index into CardResources.CrtcIDs
	PossibleClones uint32
}

func GetEncoder(fd int, id uint32) (Encoder, error) {
	var e modeGetEncoder
	e.EncoderID = id
	if err := call(fd, iowr(nrModeGetEncoder, unsafe.Sizeof(e)), unsafe.Pointer(&e)); err != nil {
		return Encoder{}, err
	}
	return Encoder{
		ID:             e.EncoderID,
		Type:           e.EncoderType,
		CrtcID:         e.CrtcID,
		PossibleCrtcs:  e.PossibleCrtcs,
		PossibleClones: e.PossibleClones,
	}, nil
}

// Connector is the decoded struct drm_mode_get_connector.
type Connector struct {
	ID             uint32
	Type           uint32
	TypeID         uint32
	Connection     uint32 // 1=connected 2=disconnected 3=unknown
	MMWidth        uint32
	MMHeight       uint32
	EncoderIDs     []uint32
	Modes          []ModeInfo
	PropIDs        []uint32
	PropValues     []uint64
	EncoderID      uint32 // currently bound encoder, 0 if none
}

func GetConnector(fd int, id uint32) (Connector, error) {
	var c modeGetConnector
	c.ConnectorID = id
	if err := call(fd, iowr(nrModeGetConnector, unsafe.Sizeof(c)), unsafe.Pointer(&c)); err != nil {
		return Connector{}, err
	}

	encs := make([]uint32, c.CountEncoders)
	modes := make([]modeInfo, c.CountModes)
	propIDs := make([]uint32, c.CountProps)
	propVals := make([]uint64, c.CountProps)

	if len(encs) > 0 {
		c.EncodersPtr = ptrToUint64(&encs[0])
	}
	if len(modes) > 0 {
		c.ModesPtr = ptrToUint64(&modes[0])
	}
	if len(propIDs) > 0 {
		c.PropsPtr = ptrToUint64(&propIDs[0])
		c.PropValuesPtr = ptrToUint64(&propVals[0])
	}

	if err := call(fd, iowr(nrModeGetConnector, unsafe.Sizeof(c)), unsafe.Pointer(&c)); err != nil {
		return Connector{}, err
	}

	outModes := make([]ModeInfo, len(modes))
	for i, m := range modes {
		outModes[i] = fromC(m)
	}

	return Connector{
		ID:         c.ConnectorID,
		Type:       c.ConnectorType,
		TypeID:     c.ConnectorTypeID,
		Connection: c.Connection,
		MMWidth:    c.MmWidth,
		MMHeight:   c.MmHeight,
		EncoderIDs: encs,
		Modes:      outModes,
		PropIDs:    propIDs,
		PropValues: propVals,
		EncoderID:  c.EncoderID,
	}, nil
}

// Property is the decoded struct drm_mode_get_property (name + flags only;
// the core only needs property ids resolved by name).
type Property struct {
	ID    uint32
	Flags uint32
	Name  string
}

func GetProperty(fd int, id uint32) (Property, error) {
	var p modeGetProperty
	p.PropID = id
	if err := call(fd, iowr(nrModeGetProperty, unsafe.Sizeof(p)), unsafe.Pointer(&p)); err != nil {
		return Property{}, err
	}
	end := 0
	for end < len(p.Name) && p.Name[end] != 0 {
		end++
	}
	return Property{ID: p.PropID, Flags: p.Flags, Name: string(p.Name[:end])}, nil
}

// GetPropertyBlob returns the raw bytes of a property blob (IN_FORMATS,
// GAMMA_LUT readback, etc).
func GetPropertyBlob(fd int, id uint32) ([]byte, error) {
	var b modeGetBlob
	b.BlobID = id
	if err := call(fd, iowr(nrModeGetPropBlob, unsafe.Sizeof(b)), unsafe.Pointer(&b)); err != nil {
		return nil, err
	}
	data := make([]byte, b.Length)
	if b.Length > 0 {
		b.Data = ptrToUint64(&data[0])
		if err := call(fd, iowr(nrModeGetPropBlob, unsafe.Sizeof(b)), unsafe.Pointer(&b)); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// GetPlaneResources issues DRM_IOCTL_MODE_GETPLANERESOURCES's two-pass
// query and returns the plane ids from struct drm_mode_get_plane_res.
func GetPlaneResources(fd int) ([]uint32, error) {
	var r modeGetPlaneRes
	if err := call(fd, iowr(nrModeGetPlaneRes, unsafe.Sizeof(r)), unsafe.Pointer(&r)); err != nil {
		return nil, err
	}
	ids := make([]uint32, r.CountPlanes)
	if len(ids) > 0 {
		r.PlaneIDPtr = ptrToUint64(&ids[0])
		if err := call(fd, iowr(nrModeGetPlaneRes, unsafe.Sizeof(r)), unsafe.Pointer(&r)); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// Plane is the decoded struct drm_mode_get_plane plus its format list.
type Plane struct {
	ID                uint32
	CrtcID            uint32
	FBID              uint32
	PossibleCrtcs     uint32
	Formats           []uint32
	FormatModifiers   []uint64 // not filled by GetPlane; modifiers come from the IN_FORMATS blob
}

func GetPlane(fd int, id uint32) (Plane, error) {
	var p modeGetPlane
	p.PlaneID = id
	if err := call(fd, iowr(nrModeGetPlane, unsafe.Sizeof(p)), unsafe.Pointer(&p)); err != nil {
		return Plane{}, err
	}
	formats := make([]uint32, p.CountFormatTypes)
	if len(formats) > 0 {
		p.FormatTypePtr = ptrToUint64(&formats[0])
	}
	if err := call(fd, iowr(nrModeGetPlane, unsafe.Sizeof(p)), unsafe.Pointer(&p)); err != nil {
		return Plane{}, err
	}
	return Plane{
		ID:            p.PlaneID,
		CrtcID:        p.CrtcID,
		FBID:          p.FbID,
		PossibleCrtcs: p.PossibleCrtcs,
		Formats:       formats,
	}, nil
}
