package srmerr

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndKindOf(t *testing.T) {
	err := New(Invalid, "bad thing: %d", 42)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, Invalid, kind)
	assert.Contains(t, err.Error(), "bad thing: 42")
}

func TestWrapDemotesEBUSYToBusy(t *testing.T) {
	err := Wrap(Kernel, syscall.EBUSY, "atomic commit")
	assert.True(t, errors.Is(err, ErrBusy))
	assert.False(t, errors.Is(err, ErrKernel))
	kind, _ := KindOf(err)
	assert.Equal(t, Busy, kind)
	assert.Equal(t, syscall.EBUSY, err.Errno)
}

func TestWrapKeepsOtherErrnosAsKernel(t *testing.T) {
	err := Wrap(Kernel, syscall.EINVAL, "set crtc")
	assert.True(t, errors.Is(err, ErrKernel))
	assert.False(t, errors.Is(err, ErrBusy))
}

func TestIsMatchesOnlySentinelOfSameKind(t *testing.T) {
	err := New(NoResources, "no crtc available")
	assert.True(t, errors.Is(err, ErrNoResources))
	assert.False(t, errors.Is(err, ErrAlloc))
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(Alloc, cause, "create dumb buffer")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestKindStrings(t *testing.T) {
	cases := map[Kind]string{
		NotSupported: "not supported",
		NoResources:  "no resources",
		Alloc:        "alloc",
		Kernel:       "kernel",
		Busy:         "busy",
		Invalid:      "invalid",
		Leased:       "leased",
	}
	for k, want := range cases {
		assert.Equal(t, want, k.String())
	}
	assert.Equal(t, "unknown", Kind(99).String())
}
