package srm

import (
	"sync/atomic"
)

// PropertyBlob is an opaque kernel-side blob (a mode blob, IN_FORMATS data,
// a gamma LUT) identified by a numeric id. Blobs are shared-owned: an
// AtomicRequest that attaches one keeps it alive at least until the request
// is freed, because the kernel may dereference the blob id up to commit
// time.
type PropertyBlob struct {
	device *Device
	id     uint32
	refs   int32
}

// newPropertyBlob uploads data and wraps the resulting blob id with an
// initial refcount of 1, owned by the caller.
func newPropertyBlob(dev *Device, data []byte) (*PropertyBlob, error) {
	id, err := dev.backend.CreatePropBlob(data)
	if err != nil {
		return nil, wrapKernel(err, "create property blob")
	}
	return &PropertyBlob{device: dev, id: id, refs: 1}, nil
}

// ID returns the kernel blob id.
func (b *PropertyBlob) ID() uint32 { return b.id }

func (b *PropertyBlob) retain() *PropertyBlob {
	atomic.AddInt32(&b.refs, 1)
	return b
}

// release drops one reference, destroying the kernel blob once the count
// reaches zero.
func (b *PropertyBlob) release() {
	if atomic.AddInt32(&b.refs, -1) == 0 {
		_ = b.device.backend.DestroyPropBlob(b.id)
	}
}
