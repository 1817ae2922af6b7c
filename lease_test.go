package srm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateLeaseRefusesAlreadyLeasedConnector(t *testing.T) {
	dev := &Device{fd: -1}
	conn := &Connector{device: dev, leased: true, state: ConnectorUninitialized}
	crtc := &Crtc{device: dev}
	plane := &Plane{device: dev}

	_, err := dev.CreateLease(crtc, conn, plane)
	assert.Error(t, err)
	assert.True(t, conn.leased)
}

func TestCreateLeaseRefusesInitializedConnector(t *testing.T) {
	dev := &Device{fd: -1}
	conn := &Connector{device: dev, state: ConnectorInitialized}
	crtc := &Crtc{device: dev}
	plane := &Plane{device: dev}

	_, err := dev.CreateLease(crtc, conn, plane)
	assert.Error(t, err)
	assert.False(t, conn.leased)
}

func TestLeaseRevokeIsIdempotent(t *testing.T) {
	conn := &Connector{leased: true}
	l := &Lease{connector: conn, revoked: true}

	err := l.Revoke()
	assert.NoError(t, err)
	assert.True(t, conn.leased) // revoked was already true, nothing touched
}

func TestReleaseOnDeviceCloseClearsLeaseFlag(t *testing.T) {
	conn := &Connector{leased: true}
	l := &Lease{connector: conn, crtc: &Crtc{leased: true}, plane: &Plane{leased: true}}

	l.releaseOnDeviceClose()
	assert.False(t, conn.leased)
	assert.True(t, l.revoked)

	// second call is a no-op
	conn.leased = true
	l.releaseOnDeviceClose()
	assert.True(t, conn.leased)
}
