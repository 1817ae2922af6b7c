package srm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderCapability struct {
	canRender map[string]bool
}

func (f fakeRenderCapability) CanRenderOn(path string) bool { return f.canRender[path] }

func TestAssignRendererDeviceSelf(t *testing.T) {
	core := &Core{render: fakeRenderCapability{canRender: map[string]bool{"/dev/dri/card0": true}}}
	dev := &Device{path: "/dev/dri/card0", enabled: true}
	core.devices = []*Device{dev}

	core.assignRendererDevices()

	assert.Equal(t, dev, dev.rendererDevice)
	assert.Equal(t, StrategySelf, dev.strategy)
	assert.True(t, dev.IsRenderer())
}

func TestAssignRendererDevicePrimePreferredOverDumb(t *testing.T) {
	gpu := &Device{path: "/dev/dri/card0", enabled: true, deviceCaps: deviceCaps{PrimeExport: true}}
	scanout := &Device{
		path:       "/dev/dri/card1",
		enabled:    true,
		deviceCaps: deviceCaps{DumbBuffer: true, PrimeImport: true},
	}
	core := &Core{
		render: fakeRenderCapability{canRender: map[string]bool{"/dev/dri/card0": true}},
		devices: []*Device{gpu, scanout},
	}

	core.assignRendererDevices()

	require.Equal(t, gpu, scanout.rendererDevice)
	assert.Equal(t, StrategyPrime, scanout.strategy)
}

func TestAssignRendererDeviceFallsBackToDumbWithoutPrime(t *testing.T) {
	gpu := &Device{path: "/dev/dri/card0", enabled: true} // no Prime export
	scanout := &Device{
		path:       "/dev/dri/card1",
		enabled:    true,
		deviceCaps: deviceCaps{DumbBuffer: true},
	}
	core := &Core{
		render: fakeRenderCapability{canRender: map[string]bool{"/dev/dri/card0": true}},
		devices: []*Device{gpu, scanout},
	}

	core.assignRendererDevices()

	assert.Equal(t, gpu, scanout.rendererDevice)
	assert.Equal(t, StrategyDumb, scanout.strategy)
}

func TestAssignRendererDeviceFallsBackToCPU(t *testing.T) {
	gpu := &Device{path: "/dev/dri/card0", enabled: true}
	scanout := &Device{path: "/dev/dri/card1", enabled: true} // no dumb, no prime
	core := &Core{
		render: fakeRenderCapability{canRender: map[string]bool{"/dev/dri/card0": true}},
		devices: []*Device{gpu, scanout},
	}

	core.assignRendererDevices()

	assert.Equal(t, gpu, scanout.rendererDevice)
	assert.Equal(t, StrategyCPU, scanout.strategy)
}

func TestSetEnabledRefusesToDisableTheOnlyDevice(t *testing.T) {
	core := &Core{}
	dev := &Device{core: core, enabled: true}
	core.devices = []*Device{dev}

	err := dev.SetEnabled(false)
	require.Error(t, err)
	assert.True(t, dev.IsEnabled())
}

func TestSetEnabledAllowsDisablingWhenAnotherIsEnabled(t *testing.T) {
	core := &Core{}
	dev1 := &Device{core: core, enabled: true}
	dev2 := &Device{core: core, enabled: true}
	core.devices = []*Device{dev1, dev2}

	err := dev1.SetEnabled(false)
	require.NoError(t, err)
	assert.False(t, dev1.IsEnabled())
}
