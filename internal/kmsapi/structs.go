package kmsapi

// Struct layouts mirror struct drm_mode_* / struct drm_* from the kernel
// uapi headers field-for-field. Padding fields exist only to keep the Go
// struct size identical to the C one; they are never read.

type capGet struct {
	Capability uint64
	Value      uint64
}

type setClientCap struct {
	Capability uint64
	Value      uint64
}

type modeCardRes struct {
	FbIDPtr        uint64
	CrtcIDPtr      uint64
	ConnectorIDPtr uint64
	EncoderIDPtr   uint64
	CountFbs       uint32
	CountCrtcs     uint32
	CountConnectors uint32
	CountEncoders  uint32
	MinWidth       uint32
	MaxWidth       uint32
	MinHeight      uint32
	MaxHeight      uint32
}

type modeCrtc struct {
	SetConnectorsPtr uint64
	CountConnectors  uint32
	CrtcID           uint32
	FbID             uint32
	X, Y             uint32
	GammaSize        uint32
	ModeValid        uint32
	Mode             modeInfo
}

type modeInfo struct {
	Clock      uint32
	HDisplay   uint16
	HSyncStart uint16
	HSyncEnd   uint16
	HTotal     uint16
	HSkew      uint16
	VDisplay   uint16
	VSyncStart uint16
	VSyncEnd   uint16
	VTotal     uint16
	VScan      uint16
	VRefresh   uint32
	Flags      uint32
	Type       uint32
	Name       [32]byte
}

type modeGetEncoder struct {
	EncoderID     uint32
	EncoderType   uint32
	CrtcID        uint32
	PossibleCrtcs uint32
	PossibleClones uint32
}

type modeGetConnector struct {
	EncodersPtr    uint64
	ModesPtr       uint64
	PropsPtr       uint64
	PropValuesPtr  uint64
	CountModes     uint32
	CountProps     uint32
	CountEncoders  uint32
	EncoderID      uint32
	ConnectorID    uint32
	ConnectorType  uint32
	ConnectorTypeID uint32
	Connection     uint32
	MmWidth        uint32
	MmHeight       uint32
	Subpixel       uint32
	Pad            uint32
}

type modeGetProperty struct {
	ValuesPtr  uint64
	EnumBlobPtr uint64
	PropID     uint32
	Flags      uint32
	Name       [32]byte
	CountValues uint32
	CountEnumBlobs uint32
}

type modeGetBlob struct {
	BlobID uint32
	Length uint32
	Data   uint64
}

type modeCreateBlob struct {
	Data   uint64
	Length uint32
	BlobID uint32
}

type modeDestroyBlob struct {
	BlobID uint32
}

type modeGetPlaneRes struct {
	PlaneIDPtr uint64
	CountPlanes uint32
}

type modeGetPlane struct {
	PlaneID           uint32
	CrtcID            uint32
	FbID              uint32
	PossibleCrtcs     uint32
	GammaSize         uint32
	CountFormatTypes  uint32
	FormatTypePtr     uint64
	CountFormatModifiers uint32
	_pad              uint32
	FormatModifierPtr uint64
}

type modeCreateDumb struct {
	Height uint32
	Width  uint32
	BPP    uint32
	Flags  uint32
	Handle uint32
	Pitch  uint32
	Size   uint64
}

type modeMapDumb struct {
	Handle uint32
	Pad    uint32
	Offset uint64
}

type modeDestroyDumb struct {
	Handle uint32
}

type modeFBCmd2 struct {
	FBID     uint32
	Width    uint32
	Height   uint32
	PixelFmt uint32
	Flags    uint32
	Handles  [4]uint32
	Pitches  [4]uint32
	Offsets  [4]uint32
	Modifier [4]uint64
}

type primeHandle struct {
	Handle uint32
	Flags  uint32
	FD     int32
}

type modePageFlip struct {
	CrtcID   uint32
	FBID     uint32
	Flags    uint32
	Reserved uint32
	UserData uint64
}

type modeAtomic struct {
	Flags       uint32
	CountObjs   uint32
	ObjsPtr     uint64
	CountPropsPtr uint64
	PropsPtr    uint64
	PropValuesPtr uint64
	Reserved    uint64
	UserData    uint64
}

type modeCrtcLUT struct {
	CrtcID uint32
	Size   uint32
	Red    uint64
	Green  uint64
	Blue   uint64
}

type modeCreateLease struct {
	ObjectIDsPtr uint64
	ObjectCount  uint32
	Flags        uint32
	LesseeID     uint32
	FD           int32
}

type modeRevokeLease struct {
	LesseeID uint32
}

// event header as decoded from reading the device fd, matching struct
// drm_event.
type eventHeader struct {
	Type   uint32
	Length uint32
}

type eventVblank struct {
	Header   eventHeader
	UserData uint64
	TVSec    uint32
	TVUsec   uint32
	Sequence uint32
	CrtcID   uint32 // only present in the "vblank2"/page-flip variant
}

const (
	eventTypeVblank       = 0x01
	eventTypeFlipComplete = 0x02
)
