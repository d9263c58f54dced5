package pwcnet

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResize_SameSizeIsIdentity(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	in := randomTensor(rng, 1, 3, 64, 128)

	out := Resize(in, 64, 128)
	assert.Equal(t, in.Data, out.Data)

	out.Data[0]++
	assert.NotEqual(t, in.Data[0], out.Data[0], "resize must not alias its input")
}

func TestResize_HalfPixelDownsample(t *testing.T) {
	t.Parallel()

	in, err := FromCHW(1, 1, 4, []float32{1, 3, 5, 7})
	require.NoError(t, err)

	out := Resize(in, 1, 2)
	assert.InDeltaSlice(t, []float32{2, 6}, out.Data, 1e-6)
}

func TestResize_HalfPixelUpsample(t *testing.T) {
	t.Parallel()

	in, err := FromCHW(1, 1, 2, []float32{0, 4})
	require.NoError(t, err)

	out := Resize(in, 1, 4)
	assert.InDeltaSlice(t, []float32{0, 1, 3, 4}, out.Data, 1e-6)
}

func TestResize_KeepsConstantFields(t *testing.T) {
	t.Parallel()

	in := filledTensor(1, 2, 7, 13, 2.5)
	out := Resize(in, 64, 64)
	assert.Equal(t, "1x2x64x64", out.String())
	for _, v := range out.Data {
		assert.InDelta(t, 2.5, v, 1e-6)
	}
}

func TestScaleChannel(t *testing.T) {
	t.Parallel()

	in := filledTensor(2, 2, 1, 2, 1)
	ScaleChannel(in, 1, 3)
	assert.Equal(t, []float32{1, 1, 3, 3, 1, 1, 3, 3}, in.Data)
}

func TestAddInto(t *testing.T) {
	t.Parallel()

	dst := filledTensor(1, 2, 2, 2, 1)
	src := filledTensor(1, 2, 2, 2, 0.5)
	AddInto(dst, src)
	for _, v := range dst.Data {
		assert.Equal(t, float32(1.5), v)
	}

	assert.Panics(t, func() { AddInto(dst, NewTensor(1, 1, 2, 2)) })
}
