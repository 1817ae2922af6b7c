package srm

import (
	"github.com/CuarzoSoftware/SRM-sub001/internal/kmsapi"
	"github.com/CuarzoSoftware/SRM-sub001/srmerr"
)

// StrategyKind names the rendering-device assignment a Device ended up with.
type StrategyKind int

const (
	StrategySelf StrategyKind = iota
	StrategyPrime
	StrategyDumb
	StrategyCPU
)

func (s StrategyKind) String() string {
	switch s {
	case StrategySelf:
		return "self"
	case StrategyPrime:
		return "prime"
	case StrategyDumb:
		return "dumb"
	case StrategyCPU:
		return "cpu"
	default:
		return "unknown"
	}
}

// swapImage is one entry of a Connector's swap chain: an opaque buffer
// handle plus the bookkeeping the render loop needs to answer
// "how many frames old is this image" (the swap chain's age query).
type swapImage struct {
	fbID      uint32
	dmaHandle uint32 // local GEM handle backing fbID, owned by this Device
	age       int
	inUse     bool
}

// renderStrategy is the small interface each of the four assignment tiers
// implements: acquire a presentable buffer for this frame, hand it to the
// atomic/legacy commit path, and release kernel-side resources at teardown.
type renderStrategy interface {
	// initSwapchain allocates the buffers a Connector cycles through at the
	// given geometry and pixel format.
	initSwapchain(conn *Connector, width, height int, format Format, count int) error
	// acquireImage returns the free swapImage with the largest age (the
	// least recently presented one), or an error if none is free.
	acquireImage(conn *Connector) (*swapImage, error)
	// releaseImage returns an image to the free pool after the compositor
	// has finished copying/importing from it for this frame.
	releaseImage(conn *Connector, img *swapImage)
	// release tears down every buffer and kernel object the strategy owns.
	release(conn *Connector)
}

// pixelCopier is implemented by strategies that stage rendered pixels
// through host memory before scanout (Dumb, CPU); render.go invokes it
// after Paint returns and before the frame is committed. Self and Prime
// scan out the rendered buffer directly and don't implement it.
type pixelCopier interface {
	copyAfterPaint(conn *Connector, img *swapImage) error
}

// acquireFromPool returns the free image with the largest age, i.e. the one
// least recently presented, as the swap chain's acquire step requires; ties
// are broken by pool order for determinism.
func acquireFromPool(images []*swapImage) (*swapImage, error) {
	var best *swapImage
	for _, img := range images {
		if img.inUse {
			continue
		}
		if best == nil || img.age > best.age {
			best = img
		}
	}
	if best == nil {
		return nil, srmerr.New(srmerr.NoResources, "no free swapchain image")
	}
	best.inUse = true
	return best, nil
}

// indexOfImage locates img within images, or -1 if it isn't a member -
// used by copyAfterPaint to find the CPU-mapping pair for an acquired image.
func indexOfImage(images []*swapImage, img *swapImage) int {
	for i, v := range images {
		if v == img {
			return i
		}
	}
	return -1
}

// selfStrategy is used when the Device renders its own scanout buffers
// directly: the swap chain's handles are dumb buffers allocated on the same
// device that will scan them out (the common single-GPU case).
type selfStrategy struct {
	images []*swapImage
}

func newSelfStrategy() *selfStrategy { return &selfStrategy{} }

func (s *selfStrategy) initSwapchain(conn *Connector, width, height int, format Format, count int) error {
	dev := conn.device
	bpp := bppForFormat(format)
	for i := 0; i < count; i++ {
		buf, err := dev.backend.CreateDumb(uint32(width), uint32(height), bpp)
		if err != nil {
			return srmerr.Wrap(srmerr.Alloc, err, "create dumb swapchain image %d", i)
		}
		handles := [4]uint32{buf.Handle}
		pitches := [4]uint32{buf.Pitch}
		var offsets [4]uint32
		fbID, err := dev.backend.AddFB2(uint32(width), uint32(height), uint32(format), handles, pitches, offsets, [4]uint64{}, false)
		if err != nil {
			_ = dev.backend.DestroyDumb(buf.Handle)
			return srmerr.Wrap(srmerr.Alloc, err, "add fb for swapchain image %d", i)
		}
		s.images = append(s.images, &swapImage{fbID: fbID, dmaHandle: buf.Handle, age: 0})
	}
	return nil
}

func (s *selfStrategy) acquireImage(conn *Connector) (*swapImage, error) {
	return acquireFromPool(s.images)
}

func (s *selfStrategy) releaseImage(conn *Connector, img *swapImage) {
	img.inUse = false
}

func (s *selfStrategy) release(conn *Connector) {
	dev := conn.device
	for _, img := range s.images {
		_ = dev.backend.RmFB(img.fbID)
		_ = dev.backend.DestroyDumb(img.dmaHandle)
	}
	s.images = nil
}

// primeStrategy scans out buffers rendered on RendererDevice by importing
// their DMA-BUF fd into this Device's GEM namespace.
type primeStrategy struct {
	images []*swapImage
	// remoteFDs records the DMA-BUF fd exported for each image. release
	// drops these records; it does not close the fds or destroy the
	// renderer-side dumb buffers.
	remoteFDs []int32
}

func newPrimeStrategy() *primeStrategy { return &primeStrategy{} }

func (s *primeStrategy) initSwapchain(conn *Connector, width, height int, format Format, count int) error {
	dev := conn.device
	remote := dev.rendererDevice
	bpp := bppForFormat(format)
	for i := 0; i < count; i++ {
		buf, err := remote.backend.CreateDumb(uint32(width), uint32(height), bpp)
		if err != nil {
			return srmerr.Wrap(srmerr.Alloc, err, "create remote dumb buffer %d", i)
		}
		dmaFD, err := remote.backend.PrimeHandleToFD(buf.Handle, kmsapi.PrimeFDFlagCloExec)
		if err != nil {
			_ = remote.backend.DestroyDumb(buf.Handle)
			return srmerr.Wrap(srmerr.Alloc, err, "export prime fd %d", i)
		}
		localHandle, err := dev.backend.PrimeFDToHandle(dmaFD)
		if err != nil {
			return srmerr.Wrap(srmerr.Alloc, err, "import prime fd %d", i)
		}
		handles := [4]uint32{localHandle}
		pitches := [4]uint32{buf.Pitch}
		var offsets [4]uint32
		fbID, err := dev.backend.AddFB2(uint32(width), uint32(height), uint32(format), handles, pitches, offsets, [4]uint64{}, false)
		if err != nil {
			return srmerr.Wrap(srmerr.Alloc, err, "add fb for prime image %d", i)
		}
		s.images = append(s.images, &swapImage{fbID: fbID, dmaHandle: localHandle, age: 0})
		s.remoteFDs = append(s.remoteFDs, dmaFD)
	}
	return nil
}

func (s *primeStrategy) acquireImage(conn *Connector) (*swapImage, error) {
	return acquireFromPool(s.images)
}

func (s *primeStrategy) releaseImage(conn *Connector, img *swapImage) { img.inUse = false }

func (s *primeStrategy) release(conn *Connector) {
	dev := conn.device
	for _, img := range s.images {
		_ = dev.backend.RmFB(img.fbID)
		_ = dev.backend.DestroyDumb(img.dmaHandle)
	}
	s.images = nil
	s.remoteFDs = nil
}

// dumbStrategy covers the case where the renderer device can produce pixels
// but this scanout device can't import them directly (no Prime support, or
// a Dumb-only driver): each swap image is actually a pair of CPU-mappable
// dumb buffers, one allocated on the renderer device (the "source" the
// caller's Paint fills) and one on this device (the "destination" that gets
// scanned out); copyAfterPaint memcpys source into destination once per
// frame, row by row to tolerate the two devices reporting different pitch
// for the same width/format.
type dumbStrategy struct {
	images []*swapImage

	renderHandles []uint32 // GEM handle on conn.device.rendererDevice backing each source buffer
	renderMaps    [][]byte
	localMaps     [][]byte

	renderPitch uint32
	localPitch  uint32
	rowBytes    uint32
	height      uint32
}

func newDumbStrategy() *dumbStrategy { return &dumbStrategy{} }

func (s *dumbStrategy) initSwapchain(conn *Connector, width, height int, format Format, count int) error {
	dev := conn.device
	remote := dev.rendererDevice
	bpp := bppForFormat(format)
	s.rowBytes = uint32(width) * (bpp / 8)
	s.height = uint32(height)

	for i := 0; i < count; i++ {
		rbuf, err := remote.backend.CreateDumb(uint32(width), uint32(height), bpp)
		if err != nil {
			return srmerr.Wrap(srmerr.Alloc, err, "create renderer-side dumb buffer %d", i)
		}
		roffset, err := remote.backend.MapDumb(rbuf.Handle)
		if err != nil {
			_ = remote.backend.DestroyDumb(rbuf.Handle)
			return srmerr.Wrap(srmerr.Alloc, err, "map renderer-side dumb buffer %d", i)
		}
		rmap, err := remote.backend.MmapDumb(roffset, rbuf.Size)
		if err != nil {
			_ = remote.backend.DestroyDumb(rbuf.Handle)
			return srmerr.Wrap(srmerr.Alloc, err, "mmap renderer-side dumb buffer %d", i)
		}

		buf, err := dev.backend.CreateDumb(uint32(width), uint32(height), bpp)
		if err != nil {
			_ = remote.backend.MunmapDumb(rmap)
			_ = remote.backend.DestroyDumb(rbuf.Handle)
			return srmerr.Wrap(srmerr.Alloc, err, "create local dumb buffer %d", i)
		}
		loffset, err := dev.backend.MapDumb(buf.Handle)
		if err != nil {
			_ = remote.backend.MunmapDumb(rmap)
			_ = remote.backend.DestroyDumb(rbuf.Handle)
			_ = dev.backend.DestroyDumb(buf.Handle)
			return srmerr.Wrap(srmerr.Alloc, err, "map local dumb buffer %d", i)
		}
		lmap, err := dev.backend.MmapDumb(loffset, buf.Size)
		if err != nil {
			_ = remote.backend.MunmapDumb(rmap)
			_ = remote.backend.DestroyDumb(rbuf.Handle)
			_ = dev.backend.DestroyDumb(buf.Handle)
			return srmerr.Wrap(srmerr.Alloc, err, "mmap local dumb buffer %d", i)
		}

		handles := [4]uint32{buf.Handle}
		pitches := [4]uint32{buf.Pitch}
		var offsets [4]uint32
		fbID, err := dev.backend.AddFB2(uint32(width), uint32(height), uint32(format), handles, pitches, offsets, [4]uint64{}, false)
		if err != nil {
			_ = dev.backend.MunmapDumb(lmap)
			_ = remote.backend.MunmapDumb(rmap)
			_ = remote.backend.DestroyDumb(rbuf.Handle)
			_ = dev.backend.DestroyDumb(buf.Handle)
			return srmerr.Wrap(srmerr.Alloc, err, "add fb for dumb image %d", i)
		}

		s.images = append(s.images, &swapImage{fbID: fbID, dmaHandle: buf.Handle, age: 0})
		s.renderHandles = append(s.renderHandles, rbuf.Handle)
		s.renderMaps = append(s.renderMaps, rmap)
		s.localMaps = append(s.localMaps, lmap)
		s.renderPitch = rbuf.Pitch
		s.localPitch = buf.Pitch
	}
	return nil
}

func (s *dumbStrategy) acquireImage(conn *Connector) (*swapImage, error) {
	return acquireFromPool(s.images)
}

func (s *dumbStrategy) releaseImage(conn *Connector, img *swapImage) { img.inUse = false }

// copyAfterPaint memcpys the renderer-side CPU mapping (which Paint just
// drew into) into this device's scanout mapping for the same image index.
func (s *dumbStrategy) copyAfterPaint(conn *Connector, img *swapImage) error {
	idx := indexOfImage(s.images, img)
	if idx < 0 {
		return srmerr.New(srmerr.Invalid, "image not owned by this swap chain")
	}
	src, dst := s.renderMaps[idx], s.localMaps[idx]
	for row := uint32(0); row < s.height; row++ {
		so := row * s.renderPitch
		do := row * s.localPitch
		if so+s.rowBytes > uint32(len(src)) || do+s.rowBytes > uint32(len(dst)) {
			break
		}
		copy(dst[do:do+s.rowBytes], src[so:so+s.rowBytes])
	}
	return nil
}

func (s *dumbStrategy) release(conn *Connector) {
	dev := conn.device
	remote := dev.rendererDevice
	for i, img := range s.images {
		_ = dev.backend.RmFB(img.fbID)
		if i < len(s.localMaps) {
			_ = dev.backend.MunmapDumb(s.localMaps[i])
		}
		_ = dev.backend.DestroyDumb(img.dmaHandle)
		if i < len(s.renderMaps) {
			_ = remote.backend.MunmapDumb(s.renderMaps[i])
		}
		if i < len(s.renderHandles) {
			_ = remote.backend.DestroyDumb(s.renderHandles[i])
		}
	}
	s.images, s.renderHandles, s.renderMaps, s.localMaps = nil, nil, nil, nil
}

// cpuStrategy is the last-resort path: the renderer device has no
// scanout-side sharing mechanism at all, so pixels are read back to host
// memory and copied in exactly the way dumbStrategy already does. Embedding
// gives it copyAfterPaint for free, so it satisfies pixelCopier too.
type cpuStrategy struct {
	dumbStrategy
}

func newCPUStrategy() *cpuStrategy { return &cpuStrategy{} }

// bppForFormat returns the bits-per-pixel CREATE_DUMB needs for a handful of
// common fourccs; anything else defaults to 32, matching the upstream
// library's dumb-buffer fallback for formats it doesn't special-case.
func bppForFormat(f Format) uint32 {
	switch f {
	case formatXRGB8888, formatARGB8888:
		return 32
	case formatRGB565:
		return 16
	default:
		return 32
	}
}

const (
	formatXRGB8888 Format = 0x34325258 // 'XR24'
	formatARGB8888 Format = 0x34325241 // 'AR24'
	formatRGB565   Format = 0x36314752 // 'RG16'
)

func newStrategyFor(kind StrategyKind) renderStrategy {
	switch kind {
	case StrategySelf:
		return newSelfStrategy()
	case StrategyPrime:
		return newPrimeStrategy()
	case StrategyDumb:
		return newDumbStrategy()
	case StrategyCPU:
		return newCPUStrategy()
	default:
		return newSelfStrategy()
	}
}
