package srm

import (
	"github.com/CuarzoSoftware/SRM-sub001/srmerr"
)

// Lease grants exclusive, kernel-enforced ownership of a set of KMS objects
// to another DRM master (compositor hand-off for VR/multi-seat use cases).
type Lease struct {
	device   *Device
	lesseeID uint32
	fd       int32

	crtc      *Crtc
	connector *Connector
	plane     *Plane

	revoked bool
}

// FD returns the fd the lessee process should use to open its own, scoped
// DRM session. The caller is responsible for sending it across whatever IPC
// channel reaches the lessee.
func (l *Lease) FD() int32 { return l.fd }

// CreateLease leases crtc, connector and plane as one atomic unit, marking
// each object leased so bestConfiguration vetoes them for any other
// connector until the lease is revoked.
func (d *Device) CreateLease(crtc *Crtc, connector *Connector, plane *Plane) (*Lease, error) {
	connector.mu.Lock()
	if connector.leased {
		connector.mu.Unlock()
		return nil, srmerr.New(srmerr.Leased, "connector %d is already leased", connector.id)
	}
	if connector.state != ConnectorUninitialized {
		connector.mu.Unlock()
		return nil, srmerr.New(srmerr.Invalid, "connector %d must be uninitialized before leasing", connector.id)
	}
	if crtc.leased || plane.leased {
		connector.mu.Unlock()
		return nil, srmerr.New(srmerr.Leased, "crtc %d or plane %d is already leased", crtc.id, plane.id)
	}
	connector.leased = true
	crtc.leased = true
	plane.leased = true
	connector.mu.Unlock()

	objectIDs := []uint32{crtc.id, connector.id, plane.id}
	lesseeID, fd, err := d.backend.CreateLease(objectIDs, 0)
	if err != nil {
		connector.mu.Lock()
		connector.leased = false
		crtc.leased = false
		plane.leased = false
		connector.mu.Unlock()
		return nil, wrapKernel(err, "create lease over crtc %d connector %d plane %d", crtc.id, connector.id, plane.id)
	}

	return &Lease{
		device:    d,
		lesseeID:  lesseeID,
		fd:        fd,
		crtc:      crtc,
		connector: connector,
		plane:     plane,
	}, nil
}

// clearLeaseFlags resets leased on every resource the lease covered.
func (l *Lease) clearLeaseFlags() {
	l.connector.mu.Lock()
	l.connector.leased = false
	l.connector.mu.Unlock()
	l.crtc.leased = false
	l.plane.leased = false
}

// Revoke terminates the lease and clears the leased flag on every object it
// covered, making them available for Initialize again. Revoking an already
// revoked lease is a no-op.
func (l *Lease) Revoke() error {
	if l.revoked {
		return nil
	}
	l.revoked = true

	err := l.device.backend.RevokeLease(l.lesseeID)
	l.clearLeaseFlags()

	if err != nil {
		return wrapKernel(err, "revoke lease %d", l.lesseeID)
	}
	return nil
}

// releaseOnDeviceClose ends the lease without issuing REVOKE_LEASE, for when
// the device fd is about to be closed out from under the lease anyway: the
// kernel tears it down implicitly and REVOKE_LEASE would just return an
// error. Core.Close does not call it, since the Core keeps no list of
// leases. Flags are still reset so Lease bookkeeping stays consistent if
// the Device were somehow reused.
func (l *Lease) releaseOnDeviceClose() {
	if l.revoked {
		return
	}
	l.revoked = true
	l.clearLeaseFlags()
}
