package srm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CuarzoSoftware/SRM-sub001/internal/kmsapi"
)

func TestPlaneTypeTypeString(t *testing.T) {
	assert.Equal(t, "Overlay", PlaneOverlay.TypeString())
	assert.Equal(t, "Primary", PlanePrimary.TypeString())
	assert.Equal(t, "Cursor", PlaneCursor.TypeString())
	assert.Equal(t, "Unknown", planeTypeCount.TypeString())
	assert.Equal(t, "Unknown", PlaneType(-1).TypeString())
	assert.Equal(t, "Unknown", PlaneType(99).TypeString())
}

func TestCrtcGammaSizePrefersAtomic(t *testing.T) {
	dev := &Device{clientCaps: clientCaps{Atomic: true}}
	c := &Crtc{device: dev, legacyGammaSize: 256, propGammaLUTSize: 7, atomicGammaSize: 1024}
	assert.Equal(t, uint32(1024), c.GammaSize())
}

func TestCrtcGammaSizeFallsBackToLegacy(t *testing.T) {
	dev := &Device{clientCaps: clientCaps{Atomic: false}}
	c := &Crtc{device: dev, legacyGammaSize: 256, propGammaLUTSize: 7, atomicGammaSize: 1024}
	assert.Equal(t, uint32(256), c.GammaSize())

	dev2 := &Device{clientCaps: clientCaps{Atomic: true}}
	c2 := &Crtc{device: dev2, legacyGammaSize: 256, propGammaLUTSize: 0, atomicGammaSize: 0}
	assert.Equal(t, uint32(256), c2.GammaSize())
}

func TestEncoderPossibleCrtcsIndexesByPosition(t *testing.T) {
	dev := &Device{}
	c0 := &Crtc{device: dev, id: 10}
	c1 := &Crtc{device: dev, id: 20}
	c2 := &Crtc{device: dev, id: 30}
	dev.crtcs = []*Crtc{c0, c1, c2}

	e := &Encoder{device: dev}
	mask := uint32(1<<0 | 1<<2) // c0 and c2, not c1
	for i, crtc := range dev.crtcs {
		if mask&(1<<uint(i)) != 0 {
			e.possibleCrtcs = append(e.possibleCrtcs, crtc)
		}
	}

	assert.ElementsMatch(t, []*Crtc{c0, c2}, e.possibleCrtcs)
}

func TestConnectorModeRefreshHz(t *testing.T) {
	m := &ConnectorMode{info: kmsapi.ModeInfo{Clock: 148500, HTotal: 2200, VTotal: 1125}}
	assert.InDelta(t, 60.0, m.RefreshHz(), 0.1)

	zero := &ConnectorMode{}
	assert.Equal(t, float64(0), zero.RefreshHz())
}

func TestConnectorModePreferredFlag(t *testing.T) {
	m := newConnectorMode(nil, kmsapi.ModeInfo{Type: modeTypePreferred})
	assert.True(t, m.Preferred())

	m2 := newConnectorMode(nil, kmsapi.ModeInfo{Type: 0})
	assert.False(t, m2.Preferred())
}

func TestPlaneCompatibleWith(t *testing.T) {
	c1 := &Crtc{id: 1}
	c2 := &Crtc{id: 2}
	p := &Plane{possibleCrtcs: []*Crtc{c1}}
	assert.True(t, p.CompatibleWith(c1))
	assert.False(t, p.CompatibleWith(c2))
}
