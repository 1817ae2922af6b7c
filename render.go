package srm

import (
	"errors"

	"github.com/CuarzoSoftware/SRM-sub001/internal/kmsapi"
	"github.com/CuarzoSoftware/SRM-sub001/srmerr"
)

// renderLoop is the dedicated goroutine started by Connector.Initialize. Its
// first frame is reported back to Initialize via firstFrame, synchronously,
// before the loop settles into steady-state repaint waiting; the caller's
// Initialized/Uninitialized callbacks are fired from here, never from
// Initialize or Uninitialize themselves, since both the render and the
// teardown happen on this goroutine.
func (c *Connector) renderLoop(firstFrame chan<- error) {
	if err := c.renderOnce(); err != nil {
		c.teardown()
		firstFrame <- err
		c.closeStopped()
		return
	}

	c.mu.Lock()
	c.initializedFired = true
	iface := c.iface
	c.mu.Unlock()
	if iface.Initialized != nil {
		iface.Initialized(c)
	}
	firstFrame <- nil

loop:
	for {
		c.mu.Lock()
		repaintCh := c.repaintCh
		doneCh := c.doneCh
		c.mu.Unlock()
		if repaintCh == nil || doneCh == nil {
			break loop
		}

		select {
		case <-doneCh:
			break loop
		case <-repaintCh:
		}

		select {
		case <-doneCh:
			break loop
		default:
		}

		if err := c.renderOnce(); err != nil {
			c.device.log.Warn().Err(err).Uint32("connector", c.id).Msg("frame failed")
		}
	}

	c.teardown()
	c.closeStopped()
}

func (c *Connector) closeStopped() {
	c.mu.Lock()
	stopped := c.stoppedCh
	c.mu.Unlock()
	if stopped != nil {
		close(stopped)
	}
}

// renderOnce attempts exactly one frame: acquire an image, call Paint,
// stage pixels for strategies that need a CPU copy, commit, and wait for
// the page-flip event. Exactly one of Presented/Discarded fires before it
// returns.
func (c *Connector) renderOnce() error {
	c.mu.Lock()
	strategy := c.strategy
	crtc := c.crtc
	plane := c.plane
	iface := c.iface
	c.paintCounter++
	paintID := c.paintCounter
	c.mu.Unlock()

	if strategy == nil || crtc == nil || plane == nil {
		return srmerr.New(srmerr.Invalid, "connector %d has no active configuration", c.id)
	}

	img, err := strategy.acquireImage(c)
	if err != nil {
		if iface.Discarded != nil {
			iface.Discarded(c, paintID)
		}
		return err
	}

	if iface.Paint != nil {
		iface.Paint(c)
	}

	if copier, ok := strategy.(pixelCopier); ok {
		if err := copier.copyAfterPaint(c, img); err != nil {
			strategy.releaseImage(c, img)
			if iface.Discarded != nil {
				iface.Discarded(c, paintID)
			}
			return err
		}
	}

	info, err := c.present(crtc, plane, img)
	if err != nil {
		strategy.releaseImage(c, img)
		if iface.Discarded != nil {
			iface.Discarded(c, paintID)
		}
		return err
	}

	// Swap-chain age bookkeeping: the presented image becomes the most
	// recently used (age 0) and every other image ages unconditionally,
	// including ones that have never been presented yet.
	for _, other := range allImages(strategy) {
		if other == img {
			other.age = 0
		} else {
			other.age++
		}
	}

	strategy.releaseImage(c, img)

	if iface.Presented != nil {
		iface.Presented(c, info)
	}
	return nil
}

// allImages returns the full image set of a strategy for age bookkeeping;
// every concrete strategy keeps a flat []*swapImage so this is a type
// switch rather than a wider interface method.
func allImages(s renderStrategy) []*swapImage {
	switch v := s.(type) {
	case *selfStrategy:
		return v.images
	case *primeStrategy:
		return v.images
	case *dumbStrategy:
		return v.images
	case *cpuStrategy:
		return v.images
	default:
		return nil
	}
}

// present drives one atomic commit (or legacy page flip) binding img's fb to
// crtc/plane, flushes any pending cursor-plane changes into the same
// commit, then blocks for the kernel's completion event on the device fd.
func (c *Connector) present(crtc *Crtc, plane *Plane, img *swapImage) (PresentedInfo, error) {
	dev := c.device

	if dev.clientCaps.Atomic {
		req := newAtomicRequest(dev)
		req.addProperty(plane.id, plane.propFBID, uint64(img.fbID))
		req.addProperty(plane.id, plane.propCrtcID, uint64(crtc.id))
		req.addProperty(plane.id, plane.propCrtcX, 0)
		req.addProperty(plane.id, plane.propCrtcY, 0)
		mode := c.CurrentMode()
		if mode != nil {
			req.addProperty(plane.id, plane.propCrtcW, uint64(mode.Width()))
			req.addProperty(plane.id, plane.propCrtcH, uint64(mode.Height()))
			req.addProperty(plane.id, plane.propSrcW, uint64(mode.Width())<<16)
			req.addProperty(plane.id, plane.propSrcH, uint64(mode.Height())<<16)
		}
		req.addProperty(crtc.id, crtc.propActive, 1)

		cursorStart := len(req.triples)
		if err := c.applyCursorChanges(req); err != nil {
			return PresentedInfo{}, err
		}
		cursorQueued := len(req.triples) > cursorStart

		c.mu.Lock()
		cancel := c.doneCh
		c.mu.Unlock()

		if err := req.commit(kmsapi.FlagPageFlipEvent|kmsapi.FlagAtomicNonblock, true, cancel); err != nil {
			if cursorQueued {
				// Re-flag the cursor state so the next commit carries it again.
				c.mu.Lock()
				c.pendingChanges |= changeCursorPosition | changeCursorVisibility
				c.mu.Unlock()
			}
			return PresentedInfo{}, err
		}
	} else {
		if err := dev.backend.PageFlip(crtc.id, img.fbID, kmsapi.FlagPageFlipEvent, 0); err != nil {
			wrapped := wrapKernel(err, "legacy page flip on crtc %d", crtc.id)
			if !errors.Is(wrapped, srmerr.ErrBusy) {
				return PresentedInfo{}, wrapped
			}
		}
	}

	ev, err := c.waitForFlip(crtc.id)
	if err != nil {
		return PresentedInfo{}, err
	}

	var refresh int64
	if mode := c.CurrentMode(); mode != nil {
		refresh = mode.refreshPeriodNs()
	}
	return PresentedInfo{
		TimestampNs:     int64(ev.TVSec)*1e9 + int64(ev.TVUsec)*1e3,
		Sequence:        ev.Sequence,
		RefreshPeriodNs: refresh,
	}, nil
}

// waitForFlip performs one blocking read of the device fd's event queue,
// serialized per-device via dev.eventMu since a single fd's event stream is
// shared across every connector initialized on it, and returns the event
// that names this crtc (or, on kernels that never report CRTC_ID, the first
// decoded event) so the caller can correlate timestamp/sequence back to the
// frame it just committed.
func (c *Connector) waitForFlip(crtcID uint32) (kmsapi.Event, error) {
	dev := c.device
	dev.eventMu.Lock()
	defer dev.eventMu.Unlock()

	events, err := dev.backend.DrainEvents()
	if err != nil {
		return kmsapi.Event{}, wrapKernel(err, "drain events for crtc %d", crtcID)
	}
	for _, ev := range events {
		if ev.CrtcID == crtcID {
			return ev, nil
		}
	}
	if len(events) > 0 && events[0].CrtcID == 0 {
		return events[0], nil
	}
	return kmsapi.Event{}, nil
}

// teardown releases the strategy, the cursor-plane upload, and every object
// binding. Called exactly once from the render thread, whether triggered by
// the first frame failing, by Uninitialize, or by a SetMode failure severe
// enough that the previous mode couldn't be restored either. Fires
// Uninitialized iff Initialized had previously fired.
func (c *Connector) teardown() {
	c.mu.Lock()
	strategy := c.strategy
	crtc := c.crtc
	enc := c.encoder
	plane := c.plane
	cursorPlane := c.cursorPlane
	c.mu.Unlock()

	if strategy != nil {
		strategy.release(c)
	}

	dev := c.device
	if c.cursorFBID != 0 {
		_ = dev.backend.RmFB(c.cursorFBID)
	}
	if c.cursorMap != nil {
		_ = dev.backend.MunmapDumb(c.cursorMap)
	}
	if c.cursorHandle != 0 {
		_ = dev.backend.DestroyDumb(c.cursorHandle)
	}
	c.cursorHandle, c.cursorMap, c.cursorFBID = 0, nil, 0
	c.cursorBufW, c.cursorBufH = 0, 0
	c.cursorVisible = false

	if crtc != nil {
		crtc.currentConnector = nil
	}
	if enc != nil {
		enc.currentConnector = nil
	}
	if plane != nil {
		plane.currentConnector = nil
	}
	if cursorPlane != nil {
		cursorPlane.currentConnector = nil
	}

	c.mu.Lock()
	c.crtc, c.encoder, c.plane, c.cursorPlane, c.strategy, c.currentMode = nil, nil, nil, nil, nil, nil
	c.repaintCh, c.doneCh = nil, nil
	c.state = ConnectorUninitialized
	c.mu.Unlock()

	c.fireUninitializedOnce()
}

// fireUninitializedOnce invokes iface.Uninitialized at most once per
// Initialize/Uninitialize cycle, and never when Initialized itself never
// fired (a first-frame failure).
func (c *Connector) fireUninitializedOnce() {
	c.mu.Lock()
	if c.uninitializedFired || !c.initializedFired {
		c.mu.Unlock()
		return
	}
	c.uninitializedFired = true
	iface := c.iface
	c.mu.Unlock()
	if iface.Uninitialized != nil {
		iface.Uninitialized(c)
	}
}
