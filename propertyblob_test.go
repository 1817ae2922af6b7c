package srm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CuarzoSoftware/SRM-sub001/internal/kmsapi/kmsfake"
)

func TestPropertyBlobRetainReleaseRefcounting(t *testing.T) {
	dev := &Device{fd: -1, backend: kmsfake.New()}
	blob := &PropertyBlob{device: dev, id: 7, refs: 1}

	blob.retain()
	assert.EqualValues(t, 2, blob.refs)

	blob.release() // refs -> 1, no destroy yet
	assert.EqualValues(t, 1, blob.refs)

	blob.release() // refs -> 0, destroys (ignored error on the fake backend)
	assert.EqualValues(t, 0, blob.refs)
}

func TestPropertyBlobID(t *testing.T) {
	blob := &PropertyBlob{id: 42}
	assert.Equal(t, uint32(42), blob.ID())
}
