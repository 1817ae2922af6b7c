package srm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSetWithoutModifiers(t *testing.T) {
	s := formatSetWithoutModifiers([]uint32{uint32(formatXRGB8888), uint32(formatARGB8888)})

	assert.True(t, s.Supports(formatXRGB8888))
	assert.True(t, s.Supports(formatARGB8888))
	assert.False(t, s.Supports(Format(0xdeadbeef)))

	mods := s.Modifiers(formatXRGB8888)
	require.Len(t, mods, 1)
	assert.Equal(t, InvalidModifier, mods[0])
	assert.Equal(t, 1, s.diversity(formatXRGB8888))
}

func TestFormatSetFromInFormatsBlob(t *testing.T) {
	le32 := func(v uint32) []byte {
		return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	}
	le64 := func(v uint64) []byte {
		b := make([]byte, 8)
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
		return b
	}

	// Header: 1 format, 1 modifier entry, formats at offset 24, modifiers at
	// offset 28.
	var raw []byte
	raw = append(raw, le32(1)...)  // version
	raw = append(raw, le32(0)...)  // flags
	raw = append(raw, le32(1)...)  // count_formats
	raw = append(raw, le32(24)...) // formats_offset
	raw = append(raw, le32(1)...)  // count_modifiers
	raw = append(raw, le32(28)...) // modifiers_offset
	raw = append(raw, le32(uint32(formatXRGB8888))...) // formats[0]
	// modifier entry: formats bitmask (bit 0 set), offset, pad, modifier
	raw = append(raw, le64(1)...)
	raw = append(raw, le32(0)...)
	raw = append(raw, le32(0)...)
	raw = append(raw, le64(0x0100000000000001)...)

	s := formatSetFromInFormatsBlob(raw)
	require.True(t, s.Supports(formatXRGB8888))
	mods := s.Modifiers(formatXRGB8888)
	require.Len(t, mods, 1)
	assert.Equal(t, Modifier(0x0100000000000001), mods[0])
}

func TestFormatSetFromInFormatsBlobTooShort(t *testing.T) {
	s := formatSetFromInFormatsBlob([]byte{1, 2, 3})
	assert.Empty(t, s)
}
