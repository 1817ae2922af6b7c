package srm

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CuarzoSoftware/SRM-sub001/internal/kmsapi"
	"github.com/CuarzoSoftware/SRM-sub001/internal/kmsapi/kmsfake"
	"github.com/CuarzoSoftware/SRM-sub001/srmerr"
	"github.com/CuarzoSoftware/SRM-sub001/srmlog"
)

// This file and scenarios_test.go exercise the object model, lease manager
// and render loop end to end against kmsfake instead of a real DRM node,
// covering the testable properties and scenarios the rest of the package's
// unit tests (connector_test.go, strategy_test.go, ...) don't reach because
// they poke at individual structs rather than driving the public API.

const (
	fakeCrtcID      = 10
	fakeEncoderID   = 20
	fakePrimaryID   = 30
	fakeCursorID    = 31
	fakeConnectorID = 40
)

func mode1080p60() kmsapi.ModeInfo {
	return kmsapi.ModeInfo{
		Name: "1920x1080", Clock: 148500,
		HDisplay: 1920, HTotal: 2200,
		VDisplay: 1080, VTotal: 1125,
		Type: modeTypePreferred,
	}
}

func mode720p60() kmsapi.ModeInfo {
	return kmsapi.ModeInfo{
		Name: "1280x720", Clock: 74250,
		HDisplay: 1280, HTotal: 1650,
		VDisplay: 720, VTotal: 750,
	}
}

// newFakeDevice brings a Device up against a one-crtc, one-encoder,
// one-primary-plane, one-cursor-plane, one-connector virtual card, through
// the same negotiateClientCaps/queryDeviceCaps/buildObjects sequence
// openDevice uses for a real node. The device is its own renderer (Self
// strategy) unless the caller overwrites rendererDevice/strategy afterward.
func newFakeDevice(t *testing.T, modes ...kmsapi.ModeInfo) (*Device, *kmsfake.Backend) {
	t.Helper()
	if len(modes) == 0 {
		modes = []kmsapi.ModeInfo{mode1080p60()}
	}

	backend := kmsfake.New()
	backend.AddCrtc(fakeCrtcID, 256)
	backend.AddEncoder(fakeEncoderID, 1<<0)
	backend.AddPlane(fakePrimaryID, kmsfake.DrmPlaneTypePrimary, 1<<0, []uint32{uint32(formatXRGB8888)})
	backend.AddPlane(fakeCursorID, kmsfake.DrmPlaneTypeCursor, 1<<0, []uint32{uint32(formatARGB8888)})
	backend.AddConnector(fakeConnectorID, 0, 0, true, []uint32{fakeEncoderID}, modes)

	dev := &Device{
		log:     srmlog.For("kmsfake-test"),
		path:    "/dev/dri/fake0",
		backend: backend,
		closeFn: func(int) {},
	}
	dev.negotiateClientCaps()
	dev.queryDeviceCaps()
	require.NoError(t, dev.buildObjects())
	dev.rendererDevice = dev
	dev.strategy = StrategySelf
	dev.enabled = true
	return dev, backend
}

func (d *Device) connector() *Connector { return d.connectors[0] }

// countingInterface wraps ConnectorInterface with atomic counters, handed to
// Initialize in place of inline closures wherever a test needs to assert on
// how many times each callback fired.
type countingInterface struct {
	presented, discarded, resized, initialized, uninitialized int64
	lastPresented                                              PresentedInfo
	sequences                                                   []uint32
	mu                                                           sync.Mutex
}

func (c *countingInterface) iface() ConnectorInterface {
	return ConnectorInterface{
		Initialized: func(*Connector) { atomic.AddInt64(&c.initialized, 1) },
		Presented: func(_ *Connector, info PresentedInfo) {
			atomic.AddInt64(&c.presented, 1)
			c.mu.Lock()
			c.lastPresented = info
			c.sequences = append(c.sequences, info.Sequence)
			c.mu.Unlock()
		},
		Discarded:     func(*Connector, uint64) { atomic.AddInt64(&c.discarded, 1) },
		Resized:       func(*Connector) { atomic.AddInt64(&c.resized, 1) },
		Uninitialized: func(*Connector) { atomic.AddInt64(&c.uninitialized, 1) },
	}
}

// --- Property 1: paint - (presented+discarded) is always 0 or 1 ---

func TestProperty1PaintAndOutcomeStayInLockstep(t *testing.T) {
	dev, backend := newFakeDevice(t)
	conn := dev.connector()
	counters := &countingInterface{}

	mode := conn.PreferredMode()
	require.NoError(t, conn.Initialize(mode, formatXRGB8888, counters.iface()))
	defer conn.Uninitialize()

	for i := 0; i < 20; i++ {
		backend.PushFlipComplete(fakeCrtcID, uint32(i+2), 0, 0)
		require.NoError(t, conn.renderOnce())
	}

	paints := int64(21) // the synchronous first frame plus 20 explicit ones
	outcomes := atomic.LoadInt64(&counters.presented) + atomic.LoadInt64(&counters.discarded)
	assert.Equal(t, paints, outcomes)
}

// --- Properties 2 & 3: object-model weak links stay single-owner ---

func TestProperty2And3SingleConnectorOwnsCrtcAndPlane(t *testing.T) {
	dev, _ := newFakeDevice(t)
	conn := dev.connector()
	counters := &countingInterface{}

	require.NoError(t, conn.Initialize(conn.PreferredMode(), formatXRGB8888, counters.iface()))
	defer conn.Uninitialize()

	assert.Same(t, conn, dev.crtcs[0].currentConnector)
	assert.Same(t, conn, dev.planes[0].currentConnector)

	other := &Connector{device: dev, id: 99, encoders: conn.encoders, state: ConnectorUninitialized, connected: true}
	dev.connectors = append(dev.connectors, other)
	err := other.Initialize(conn.PreferredMode(), formatXRGB8888, ConnectorInterface{})
	assert.Error(t, err, "a crtc already bound to one connector must not be handed to a second")
}

// --- Property 4: lease flags are all-or-nothing ---

func TestProperty4LeaseFlagsAreAllOrNothing(t *testing.T) {
	dev, _ := newFakeDevice(t)
	conn := dev.connector()
	crtc, plane := dev.crtcs[0], dev.planes[0]

	lease, err := dev.CreateLease(crtc, conn, plane)
	require.NoError(t, err)
	assert.True(t, crtc.leased)
	assert.True(t, plane.leased)
	assert.True(t, conn.Leased())

	require.NoError(t, lease.Revoke())
	assert.False(t, crtc.leased)
	assert.False(t, plane.leased)
	assert.False(t, conn.Leased())
}

// --- Property 5: swap-chain age bookkeeping ---

func TestProperty5AgesResetOnlyOnThePresentedImage(t *testing.T) {
	dev, backend := newFakeDevice(t)
	conn := dev.connector()
	counters := &countingInterface{}

	require.NoError(t, conn.Initialize(conn.PreferredMode(), formatXRGB8888, counters.iface()))
	defer conn.Uninitialize()

	strat := conn.strategy.(*selfStrategy)
	require.Len(t, strat.images, 3)

	for frame := 0; frame < 6; frame++ {
		backend.PushFlipComplete(fakeCrtcID, uint32(frame+10), 0, 0)
		require.NoError(t, conn.renderOnce())

		zeros, nonzeroSum := 0, 0
		for _, img := range strat.images {
			if img.age == 0 {
				zeros++
			} else {
				nonzeroSum += img.age
			}
		}
		assert.Equal(t, 1, zeros, "exactly one image is the most recently presented")
	}
}

// --- Property 6: Initialize -> Uninitialize round-trips to a clean state ---

func TestProperty6InitializeUninitializeRoundTrips(t *testing.T) {
	dev, _ := newFakeDevice(t)
	conn := dev.connector()
	counters := &countingInterface{}

	require.NoError(t, conn.Initialize(conn.PreferredMode(), formatXRGB8888, counters.iface()))
	conn.Uninitialize()

	assert.Equal(t, ConnectorUninitialized, conn.State())
	assert.Nil(t, conn.crtc)
	assert.Nil(t, conn.encoder)
	assert.Nil(t, conn.plane)
	assert.Nil(t, conn.strategy)
	assert.Nil(t, dev.crtcs[0].currentConnector)
	assert.Nil(t, dev.planes[0].currentConnector)
	assert.Equal(t, int64(1), atomic.LoadInt64(&counters.initialized))
	assert.Equal(t, int64(1), atomic.LoadInt64(&counters.uninitialized))
}

// --- Property 7: SetMode(currentMode) is a no-op on geometry ---

func TestProperty7SetModeToCurrentModeIsANoop(t *testing.T) {
	dev, _ := newFakeDevice(t)
	conn := dev.connector()
	counters := &countingInterface{}

	current := conn.PreferredMode()
	require.NoError(t, conn.Initialize(current, formatXRGB8888, counters.iface()))
	defer conn.Uninitialize()

	err := conn.SetMode(current)
	require.NoError(t, err)
	assert.Equal(t, ConnectorInitialized, conn.State())
	assert.Same(t, current, conn.CurrentMode())
}

// --- Property 8: N>=1 Repaints before the loop wakes still produce one paint ---

func TestProperty8CoalescedRepaintsProduceExactlyOnePaint(t *testing.T) {
	conn := &Connector{repaintCh: make(chan struct{}, 1)}
	for i := 0; i < 50; i++ {
		conn.Repaint()
	}

	drained := 0
	for {
		select {
		case <-conn.repaintCh:
			drained++
		default:
			assert.Equal(t, 1, drained, "50 coalesced repaints must drain to exactly one signal")
			return
		}
	}
}

// --- Property 9: a 3-image Self swap chain cycles 0,1,2,0,1,2,... ---

func TestProperty9ThreeImageSwapchainCyclesInOrder(t *testing.T) {
	dev, backend := newFakeDevice(t)
	conn := dev.connector()
	counters := &countingInterface{}

	require.NoError(t, conn.Initialize(conn.PreferredMode(), formatXRGB8888, counters.iface()))
	defer conn.Uninitialize()

	strat := conn.strategy.(*selfStrategy)
	require.Len(t, strat.images, 3)

	// acquireFromPool always hands back the largest-age free image, so with
	// three images and strictly sequential single-threaded paints the
	// acquired fbID must cycle through all three ids in a fixed rotation.
	var order []uint32
	for frame := 0; frame < 9; frame++ {
		img, err := strat.acquireImage(conn)
		require.NoError(t, err)
		order = append(order, img.fbID)
		for _, other := range strat.images {
			if other == img {
				other.age = 0
			} else {
				other.age++
			}
		}
		strat.releaseImage(conn, img)
	}

	assert.Equal(t, order[0:3], order[3:6])
	assert.Equal(t, order[0:3], order[6:9])
}

// --- Property 10: forceRetry survives repeated EBUSY and still succeeds ---

func TestProperty10ForceRetrySurvivesRepeatedBusy(t *testing.T) {
	dev, backend := newFakeDevice(t)
	req := newAtomicRequest(dev)
	req.addProperty(dev.crtcs[0].id, dev.crtcs[0].propActive, 1)

	backend.InjectBusy(5)
	start := time.Now()
	err := req.commit(kmsapi.FlagAtomicNonblock, true, nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 5*atomicRetryInterval)
}

func TestProperty10ForceRetryHonorsCancelInsteadOfSpinningForever(t *testing.T) {
	dev, backend := newFakeDevice(t)
	req := newAtomicRequest(dev)
	req.addProperty(dev.crtcs[0].id, dev.crtcs[0].propActive, 1)

	backend.InjectBusy(1000) // effectively never clears within this test
	cancel := make(chan struct{})
	close(cancel)

	err := req.commit(kmsapi.FlagAtomicNonblock, true, cancel)
	require.Error(t, err)
	var srmErr *srmerr.Error
	require.ErrorAs(t, err, &srmErr)
	assert.Equal(t, srmerr.Invalid, srmErr.Kind)
}
