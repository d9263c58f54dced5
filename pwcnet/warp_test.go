package pwcnet

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWarp_ZeroFlowIsIdentity(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(5))
	input := randomTensor(rng, 1, 4, 13, 17)
	flow := NewTensor(1, 2, 13, 17)

	out := NewGridCache().Warp(input, flow)
	assert.Equal(t, input.Data, out.Data)
}

func TestWarp_IntegerShift(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(6))
	input := randomTensor(rng, 1, 2, 5, 6)
	flow := NewTensor(1, 2, 5, 6)
	for i := range flow.Plane(0, 0) {
		flow.Plane(0, 0)[i] = 1
	}

	out := NewGridCache().Warp(input, flow)
	for c := 0; c < 2; c++ {
		for y := 0; y < 5; y++ {
			for x := 0; x < 5; x++ {
				assert.InDelta(t, input.At(0, c, y, x+1), out.At(0, c, y, x), 1e-6)
			}
			assert.Zero(t, out.At(0, c, y, 5), "sample past the right edge")
		}
	}
}

func TestWarp_MaskBoundary(t *testing.T) {
	t.Parallel()

	input := filledTensor(1, 1, 1, 4, 2)
	cases := []struct {
		name string
		dx   float32
		keep bool
	}{
		{"on the first pixel", 0, true},
		{"just inside the threshold", -0.0005, true},
		{"at the threshold", -0.001, false},
		{"past the threshold", -0.002, false},
		{"half a pixel out", -0.5, false},
	}

	grids := NewGridCache()
	for _, tc := range cases {
		flow := NewTensor(1, 2, 1, 4)
		flow.Set(0, 0, 0, 0, tc.dx)

		out := grids.Warp(input, flow)
		if tc.keep {
			assert.InDelta(t, 2*(1+float64(tc.dx)), out.At(0, 0, 0, 0), 1e-4, tc.name)
		} else {
			assert.Zero(t, out.At(0, 0, 0, 0), tc.name)
		}
		assert.Equal(t, float32(2), out.At(0, 0, 0, 1), tc.name)
	}
}

func TestWarp_NaNFlowIsZeroed(t *testing.T) {
	t.Parallel()

	input := filledTensor(1, 3, 2, 2, 1)
	flow := NewTensor(1, 2, 2, 2)
	flow.Set(0, 1, 1, 1, float32(math.NaN()))

	out := NewGridCache().Warp(input, flow)
	for c := 0; c < 3; c++ {
		assert.Zero(t, out.At(0, c, 1, 1))
		assert.Equal(t, float32(1), out.At(0, c, 0, 0))
	}
}

func TestWarp_PanicsOnBadFlow(t *testing.T) {
	t.Parallel()

	grids := NewGridCache()
	assert.Panics(t, func() { grids.Warp(NewTensor(1, 3, 4, 4), NewTensor(1, 3, 4, 4)) })
	assert.Panics(t, func() { grids.Warp(NewTensor(1, 3, 4, 4), NewTensor(1, 2, 4, 5)) })
}

func TestGridCache_MemoisesPerShape(t *testing.T) {
	t.Parallel()

	grids := NewGridCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := 8 + i%2
			grids.Warp(NewTensor(1, 1, 8, w), NewTensor(1, 2, 8, w))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, grids.Len())
	assert.Same(t, grids.get(1, 8, 8), grids.get(1, 8, 8))
}
