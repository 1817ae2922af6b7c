package srm

// HotplugEventKind classifies one entry from the caller-fed hotplug
// channel. The core has no portable way to watch udev itself, so the
// caller (typically a udev monitor wired by the compositor) feeds events in.
type HotplugEventKind int

const (
	// HotplugDeviceAdded: a new DRM node appeared; the core must fully
	// re-enumerate and redo the renderer-device assignment.
	HotplugDeviceAdded HotplugEventKind = iota
	// HotplugDeviceRemoved: a DRM node vanished; every connector on it must
	// tear its render goroutine down.
	HotplugDeviceRemoved
	// HotplugConnectionChange: a connector's physical connection status
	// flipped; only that connector's "connected" flag and listeners change,
	// and a disconnect also uninitializes it.
	HotplugConnectionChange
)

// HotplugEvent is one entry the caller pushes onto the channel passed to
// Core.WatchHotplug.
type HotplugEvent struct {
	Kind HotplugEventKind
	// DevicePath identifies the device for Added/Removed events.
	DevicePath string
	// ConnectorID identifies the connector for ConnectionChange events.
	ConnectorID uint32
}

// WatchHotplug consumes events from ch until it is closed or the done
// channel fires, running each event to completion before the next is
// consumed.
func (c *Core) WatchHotplug(ch <-chan HotplugEvent, done <-chan struct{}) {
	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				c.handleHotplug(ev)
			}
		}
	}()
}

func (c *Core) handleHotplug(ev HotplugEvent) {
	switch ev.Kind {
	case HotplugDeviceAdded:
		c.handleDeviceAdded(ev.DevicePath)
	case HotplugDeviceRemoved:
		c.handleDeviceRemoved(ev.DevicePath)
	case HotplugConnectionChange:
		c.handleConnectionChange(ev.ConnectorID)
	}
}

func (c *Core) handleDeviceAdded(path string) {
	c.mu.Lock()
	if c.deviceByPath(path) != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	dev, err := c.openDevice(path)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("hotplug: failed to open new device")
		return
	}

	c.mu.Lock()
	c.devices = append(c.devices, dev)
	dev.enabled = true
	c.mu.Unlock()

	c.mu.Lock()
	c.assignRendererDevices()
	c.mu.Unlock()
}

func (c *Core) handleDeviceRemoved(path string) {
	c.mu.Lock()
	dev := c.deviceByPath(path)
	if dev == nil {
		c.mu.Unlock()
		return
	}
	remaining := make([]*Device, 0, len(c.devices))
	for _, d := range c.devices {
		if d != dev {
			remaining = append(remaining, d)
		}
	}
	c.devices = remaining
	c.mu.Unlock()

	for _, conn := range dev.connectors {
		conn.Uninitialize()
	}
	dev.closeFn(dev.fd)

	c.mu.Lock()
	c.assignRendererDevices()
	c.mu.Unlock()
}

func (c *Core) handleConnectionChange(connectorID uint32) {
	c.mu.RLock()
	var target *Connector
	for _, dev := range c.devices {
		for _, conn := range dev.connectors {
			if conn.id == connectorID {
				target = conn
			}
		}
	}
	c.mu.RUnlock()
	if target == nil {
		return
	}

	info, ok := connectionStatus(target)
	if !ok {
		return
	}
	target.markConnected(info)
	if !info {
		target.Uninitialize()
	}
}

// connectionStatus re-queries the connector's live connection state from
// the kernel, since the hotplug event itself carries no payload beyond
// "something changed".
func connectionStatus(c *Connector) (connected bool, ok bool) {
	info, err := c.device.backend.GetConnector(c.id)
	if err != nil {
		return false, false
	}
	return info.Connection == 1, true
}
