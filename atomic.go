package srm

import (
	"errors"
	"time"

	"github.com/CuarzoSoftware/SRM-sub001/internal/kmsapi"
	"github.com/CuarzoSoftware/SRM-sub001/srmerr"
)

// AtomicRequest accumulates (object, property, value) triples for one
// DRM_IOCTL_MODE_ATOMIC call, keeping the property blobs and fences it
// references alive until the commit finishes.
type AtomicRequest struct {
	device  *Device
	triples []kmsapi.PropertyTriple
	blobs   []*PropertyBlob
	fenceFDs []int32
}

func newAtomicRequest(dev *Device) *AtomicRequest {
	return &AtomicRequest{device: dev}
}

// addProperty appends one (object, property, value) triple.
func (r *AtomicRequest) addProperty(objectID, propertyID uint32, value uint64) {
	r.triples = append(r.triples, kmsapi.PropertyTriple{ObjectID: objectID, PropertyID: propertyID, Value: value})
}

// attachBlob retains blob for the lifetime of this request: the kernel may
// dereference its id any time up to commit, so it must outlive the call
// even if the caller's own reference is released first.
func (r *AtomicRequest) attachBlob(blob *PropertyBlob) {
	r.blobs = append(r.blobs, blob.retain())
}

// attachFD keeps a fence fd (IN_FENCE_FD) alive for the duration of the
// commit call; the kernel dup()s what it needs internally.
func (r *AtomicRequest) attachFD(fd int32) {
	r.fenceFDs = append(r.fenceFDs, fd)
}

// atomicRetryInterval is how long commit sleeps between EBUSY probes. The
// kernel returns EBUSY while a previous nonblocking flip on the same crtc
// is still outstanding; it always clears within a frame or two.
const atomicRetryInterval = 2 * time.Millisecond

// commit issues the atomic ioctl. When forceRetry is set, it first issues a
// TEST_ONLY probe, retrying on EBUSY every atomicRetryInterval with no
// attempt cap until the probe either succeeds or fails with some other
// error; cancel, when non-nil, lets Uninitialize abort an indefinite
// retry loop instead of leaving it spinning past the connector's lifetime.
// Only once the probe clears does it issue the real commit with flags.
func (r *AtomicRequest) commit(flags uint32, forceRetry bool, cancel <-chan struct{}) error {
	defer func() {
		for _, b := range r.blobs {
			b.release()
		}
	}()

	if forceRetry {
		for {
			err := r.device.backend.AtomicCommit(kmsapi.FlagAtomicTestOnly|kmsapi.FlagAtomicAllowModeset, r.triples, 0)
			if err == nil {
				break
			}
			wrapped := wrapKernel(err, "atomic test-only commit")
			if !errors.Is(wrapped, srmerr.ErrBusy) {
				return wrapped
			}
			select {
			case <-cancel:
				return srmerr.New(srmerr.Invalid, "atomic commit canceled")
			case <-time.After(atomicRetryInterval):
			}
		}
	}

	if err := r.device.backend.AtomicCommit(flags, r.triples, 0); err != nil {
		return wrapKernel(err, "atomic commit")
	}
	return nil
}
