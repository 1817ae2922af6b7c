package srm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrategyKindString(t *testing.T) {
	assert.Equal(t, "self", StrategySelf.String())
	assert.Equal(t, "prime", StrategyPrime.String())
	assert.Equal(t, "dumb", StrategyDumb.String())
	assert.Equal(t, "cpu", StrategyCPU.String())
	assert.Equal(t, "unknown", StrategyKind(99).String())
}

func TestBppForFormat(t *testing.T) {
	assert.Equal(t, uint32(32), bppForFormat(formatXRGB8888))
	assert.Equal(t, uint32(32), bppForFormat(formatARGB8888))
	assert.Equal(t, uint32(16), bppForFormat(formatRGB565))
	assert.Equal(t, uint32(32), bppForFormat(Format(0x12345678)))
}

func TestNewStrategyForReturnsMatchingType(t *testing.T) {
	assert.IsType(t, &selfStrategy{}, newStrategyFor(StrategySelf))
	assert.IsType(t, &primeStrategy{}, newStrategyFor(StrategyPrime))
	assert.IsType(t, &dumbStrategy{}, newStrategyFor(StrategyDumb))
	assert.IsType(t, &cpuStrategy{}, newStrategyFor(StrategyCPU))
}

func TestAcquireFromPoolPicksLargestAge(t *testing.T) {
	a := &swapImage{age: 3}
	b := &swapImage{age: 7}
	c := &swapImage{age: 1}
	img, err := acquireFromPool([]*swapImage{a, b, c})
	assert.NoError(t, err)
	assert.Same(t, b, img)
	assert.True(t, b.inUse)
}

func TestAcquireFromPoolSkipsInUse(t *testing.T) {
	a := &swapImage{age: 9, inUse: true}
	b := &swapImage{age: 2}
	img, err := acquireFromPool([]*swapImage{a, b})
	assert.NoError(t, err)
	assert.Same(t, b, img)
}

func TestAcquireFromPoolErrorsWhenAllInUse(t *testing.T) {
	a := &swapImage{inUse: true}
	_, err := acquireFromPool([]*swapImage{a})
	assert.Error(t, err)
}

func TestAcquireFromPoolRotatesAcrossThreeBuffers(t *testing.T) {
	images := []*swapImage{{age: 0}, {age: 0}, {age: 0}}

	present := func() *swapImage {
		img, err := acquireFromPool(images)
		assert.NoError(t, err)
		for _, other := range images {
			if other == img {
				other.age = 0
			} else {
				other.age++
			}
		}
		img.inUse = false
		return img
	}

	first := present()
	second := present()
	third := present()
	assert.NotSame(t, first, second)
	assert.NotSame(t, second, third)
	assert.NotSame(t, first, third)
}

func TestIndexOfImage(t *testing.T) {
	a, b := &swapImage{}, &swapImage{}
	images := []*swapImage{a, b}
	assert.Equal(t, 0, indexOfImage(images, a))
	assert.Equal(t, 1, indexOfImage(images, b))
	assert.Equal(t, -1, indexOfImage(images, &swapImage{}))
}
