package srm

import "github.com/rs/zerolog"

// OpenRestrictedFunc opens a DRM node, letting the caller intermediate
// through a seat manager instead of calling open(2) directly.
type OpenRestrictedFunc func(path string, flags int) (fd int, err error)

// CloseRestrictedFunc closes an fd previously returned by an
// OpenRestrictedFunc.
type CloseRestrictedFunc func(fd int)

// CoreOptions configures a Core at construction time. There is no hot
// reconfiguration: everything the core knows is reconstructed from kernel
// queries at NewCore.
type CoreOptions struct {
	// OpenRestricted and CloseRestricted are mandatory; every node open and
	// close goes through them.
	OpenRestricted  OpenRestrictedFunc
	CloseRestricted CloseRestrictedFunc

	// Logger overrides the package-wide srmlog logger for this Core, mainly
	// for tests that want to capture output.
	Logger *zerolog.Logger

	// AllocatorOrder overrides the renderer-device assignment tie-break
	// order for testing: device paths listed earlier win, unlisted paths
	// come last. nil uses the default boot-VGA-preferred rule.
	AllocatorOrder []string
}
