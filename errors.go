package srm

import "github.com/CuarzoSoftware/SRM-sub001/srmerr"

// wrapKernel classifies a raw ioctl error, demoting EBUSY to srmerr.Busy so
// render-thread retry loops can special-case it with errors.Is.
func wrapKernel(err error, format string, args ...any) *srmerr.Error {
	return srmerr.Wrap(srmerr.Kernel, err, format, args...)
}
