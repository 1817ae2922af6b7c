package kmsapi

import "unsafe"

// Object types, matching DRM_MODE_OBJECT_*, used by OBJ_GETPROPERTIES /
// OBJ_SETPROPERTY to disambiguate id namespaces.
const (
	ObjectCrtc      = 0xcccccccc
	ObjectConnector = 0xc0c0c0c0
	ObjectEncoder   = 0xe0e0e0e0
	ObjectPlane     = 0xeeeeeeee
)

type modeObjGetProperties struct {
	PropsPtr      uint64
	PropValuesPtr uint64
	CountProps    uint32
	ObjID         uint32
	ObjType       uint32
}

type modeObjSetProperty struct {
	Value   uint64
	PropID  uint32
	ObjID   uint32
	ObjType uint32
}

// ObjectProperties returns the (property id -> value) pairs currently set on
// an object, so the object model can resolve the property ids it will later
// set by name (ACTIVE, MODE_ID, FB_ID, CRTC_ID, ...).
func ObjectProperties(fd int, objID, objType uint32) (ids []uint32, values []uint64, err error) {
	var o modeObjGetProperties
	o.ObjID, o.ObjType = objID, objType
	if err := call(fd, iowr(nrModeObjGetProperties, unsafe.Sizeof(o)), unsafe.Pointer(&o)); err != nil {
		return nil, nil, err
	}
	ids = make([]uint32, o.CountProps)
	values = make([]uint64, o.CountProps)
	if o.CountProps > 0 {
		o.PropsPtr = ptrToUint64(&ids[0])
		o.PropValuesPtr = ptrToUint64(&values[0])
		if err := call(fd, iowr(nrModeObjGetProperties, unsafe.Sizeof(o)), unsafe.Pointer(&o)); err != nil {
			return nil, nil, err
		}
	}
	return ids, values, nil
}

// ObjectSetProperty issues the legacy (non-atomic) single-property set.
func ObjectSetProperty(fd int, objID, objType, propID uint32, value uint64) error {
	var o modeObjSetProperty
	o.ObjID, o.ObjType, o.PropID, o.Value = objID, objType, propID, value
	return call(fd, iowr(nrModeObjSetProperty, unsafe.Sizeof(o)), unsafe.Pointer(&o))
}

// NamedProperty is one resolved (id, current value) pair keyed by the
// kernel-defined property name, as used by object-model construction to
// cache the property ids it will later set.
type NamedProperty struct {
	ID    uint32
	Value uint64
}

// ResolveProperties fetches every property attached to an object and
// returns them keyed by name, so callers can look up ACTIVE, MODE_ID,
// FB_ID, IN_FORMATS, etc. by the names the kernel exposes.
func ResolveProperties(fd int, objID, objType uint32) (map[string]NamedProperty, error) {
	ids, values, err := ObjectProperties(fd, objID, objType)
	if err != nil {
		return nil, err
	}
	out := make(map[string]NamedProperty, len(ids))
	for i, id := range ids {
		p, err := GetProperty(fd, id)
		if err != nil {
			continue
		}
		out[p.Name] = NamedProperty{ID: id, Value: values[i]}
	}
	return out, nil
}
