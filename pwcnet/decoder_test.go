package pwcnet

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingCost returns a volume whose channel k is filled with k-40 and
// keeps the last pair it was asked to correlate.
type recordingCost struct {
	first, second *Tensor
}

func (r *recordingCost) Displacements() int { return costChannels }

func (r *recordingCost) Correlate(first, second *Tensor) *Tensor {
	r.first, r.second = first, second
	out := NewTensor(first.N, costChannels, first.H, first.W)
	for k := 0; k < costChannels; k++ {
		plane := out.Plane(0, k)
		for i := range plane {
			plane[i] = float32(k - 40)
		}
	}
	return out
}

func leaky(v float32) float32 {
	if v < 0 {
		return v * leakySlope
	}
	return v
}

func TestDecoder_WarpsByScaledUpsampledFlow(t *testing.T) {
	t.Parallel()

	for level := finestLevel; level < coarsestLevel; level++ {
		level := level
		t.Run(fmt.Sprintf("level %d", level), func(t *testing.T) {
			t.Parallel()

			d, err := loadDecoder(newSynthSource(0), level)
			require.NoError(t, err)

			// With zero kernels the upsampled flow is the bias, and after the
			// level's backward scale it must be exactly one pixel to the right.
			d.upflow.Bias[0] = 1 / backwardScale[level]
			d.upfeat.Bias[0], d.upfeat.Bias[1] = 0.7, -0.3

			channels := PyramidChannels[level-1]
			rng := rand.New(rand.NewSource(int64(level)))
			first := randomTensor(rng, 1, channels, 6, 6)
			second := randomTensor(rng, 1, channels, 6, 6)
			prev := Refined(NewTensor(1, 2, 3, 3), NewTensor(1, seedChannels(level+1)+denseTotal, 3, 3))

			cost := &recordingCost{}
			got := d.Forward(executor{threads: 1}, cost, NewGridCache(), first, second, prev)

			assert.Same(t, first, cost.first)
			require.Equal(t, second.String(), cost.second.String())
			for c := 0; c < channels; c++ {
				for y := 0; y < 6; y++ {
					for x := 0; x < 5; x++ {
						assert.InDelta(t, second.At(0, c, y, x+1), cost.second.At(0, c, y, x), 1e-5)
					}
					assert.Zero(t, cost.second.At(0, c, y, 5))
				}
			}

			require.Equal(t, fmt.Sprintf("1x%dx6x6", seedChannels(level)+denseTotal), got.Feat.String())
			assert.Equal(t, "1x2x6x6", got.Flow.String())

			// The seed sits behind the dense outputs as volume, first, upflow, upfeat.
			seed := denseTotal
			for k := 0; k < costChannels; k++ {
				assert.InDelta(t, leaky(float32(k-40)), got.Feat.At(0, seed+k, 2, 3), 1e-6, "volume channel %d", k)
			}
			seed += costChannels
			for c := 0; c < channels; c++ {
				assert.Equal(t, first.Plane(0, c), got.Feat.Plane(0, seed+c), "first channel %d", c)
			}
			seed += channels
			assert.InDelta(t, 1/backwardScale[level], got.Feat.At(0, seed, 4, 1), 1e-6)
			assert.Zero(t, got.Feat.At(0, seed+1, 4, 1))
			seed += 2
			assert.InDelta(t, 0.7, got.Feat.At(0, seed, 0, 5), 1e-6)
			assert.InDelta(t, -0.3, got.Feat.At(0, seed+1, 0, 5), 1e-6)

			// The dense blocks and the predictor have zero weights.
			for i := 0; i < denseTotal; i++ {
				assert.Zero(t, got.Feat.At(0, i, 1, 1))
			}
			for _, v := range got.Flow.Data {
				assert.Zero(t, v)
			}
		})
	}
}

func TestDecoder_CoarsestCorrelatesUnwarped(t *testing.T) {
	t.Parallel()

	d, err := loadDecoder(newSynthSource(0), coarsestLevel)
	require.NoError(t, err)
	assert.Nil(t, d.upflow)
	assert.Nil(t, d.upfeat)

	rng := rand.New(rand.NewSource(3))
	first := randomTensor(rng, 1, PyramidChannels[coarsestLevel-1], 2, 3)
	second := randomTensor(rng, 1, PyramidChannels[coarsestLevel-1], 2, 3)

	cost := &recordingCost{}
	got := d.Forward(executor{threads: 1}, cost, NewGridCache(), first, second, Coarsest())

	assert.Same(t, first, cost.first)
	assert.Same(t, second, cost.second)
	require.Equal(t, fmt.Sprintf("1x%dx2x3", costChannels+denseTotal), got.Feat.String())
	for k := 0; k < costChannels; k++ {
		assert.InDelta(t, leaky(float32(k-40)), got.Feat.At(0, denseTotal+k, 1, 2), 1e-6)
	}
	assert.False(t, got.IsCoarsest())
}

func TestDecoder_CoarsestLevelRejectsPreviousEstimate(t *testing.T) {
	t.Parallel()

	d, err := loadDecoder(newSynthSource(0), coarsestLevel)
	require.NoError(t, err)

	prev := Refined(NewTensor(1, 2, 1, 1), NewTensor(1, 1, 1, 1))
	assert.Panics(t, func() {
		d.Forward(executor{threads: 1}, &recordingCost{}, NewGridCache(), NewTensor(1, 196, 2, 2), NewTensor(1, 196, 2, 2), prev)
	})

	_, err = loadDecoder(newSynthSource(0), 1)
	assert.Error(t, err)
}

func TestRefiner_MatchesDilatedConvolutions(t *testing.T) {
	t.Parallel()

	r, err := loadRefiner(newSynthSource(0.05))
	require.NoError(t, err)

	for i, conv := range r.convs {
		assert.Equal(t, refinerLayers[i].dilation, conv.Dilation, "layer %d", i)
		assert.Equal(t, refinerLayers[i].dilation, conv.Padding, "layer %d", i)
		assert.Equal(t, refinerLayers[i].out, conv.Out, "layer %d", i)
	}

	rng := rand.New(rand.NewSource(11))
	feat := randomTensor(rng, 1, seedChannels(finestLevel)+denseTotal, 13, 13)

	want := feat
	for i, conv := range r.convs {
		want = naiveConv(conv, want)
		if i < len(r.convs)-1 {
			LeakyReLU(want, leakySlope)
		}
	}

	got := r.Forward(executor{threads: 2}, feat)
	require.Equal(t, "1x2x13x13", got.String())
	assert.InDeltaSlice(t, want.Data, got.Data, 1e-3)
}

func TestExtractor_HalvesEveryLevel(t *testing.T) {
	t.Parallel()

	e, err := loadExtractor(newSynthSource(0.1))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(5))
	img := randomTensor(rng, 1, 3, 64, 128)
	pyramid, err := e.Forward(executor{threads: 2}, img)
	require.NoError(t, err)
	require.Len(t, pyramid, pyramidLevels)

	input := img
	for l, level := range pyramid {
		want := fmt.Sprintf("1x%dx%dx%d", PyramidChannels[l], 64>>(l+1), 128>>(l+1))
		require.Equal(t, want, level.String(), "level %d", l+1)

		expected := input
		for _, conv := range e.levels[l] {
			expected = LeakyReLU(naiveConv(conv, expected), leakySlope)
		}
		assert.InDeltaSlice(t, expected.Data, level.Data, 1e-4, "level %d", l+1)
		input = level
	}

	_, err = e.Forward(executor{threads: 1}, NewTensor(1, 4, 64, 64))
	assert.ErrorIs(t, err, ErrChannels)
}

func TestExtractor_OddSizesRoundUp(t *testing.T) {
	t.Parallel()

	e, err := loadExtractor(newSynthSource(0.1))
	require.NoError(t, err)

	pyramid, err := e.Forward(executor{threads: 1}, NewTensor(1, 3, 37, 50))
	require.NoError(t, err)

	h, w := 37, 50
	for l, level := range pyramid {
		h, w = (h+1)/2, (w+1)/2
		assert.Equal(t, fmt.Sprintf("1x%dx%dx%d", PyramidChannels[l], h, w), level.String())
	}
}
