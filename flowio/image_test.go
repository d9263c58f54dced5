package flowio

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zelak312/flowarr/pwcnet"
)

func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(10 * x), G: uint8(20 * y), B: 200, A: 255})
		}
	}
	return img
}

func TestImageToTensor_RGBOrderAndRange(t *testing.T) {
	t.Parallel()

	tensor := ImageToTensor(gradientImage(4, 3))
	assert.Equal(t, "1x3x3x4", tensor.String())
	assert.InDelta(t, 30.0/255, tensor.At(0, 0, 1, 3), 1e-6)
	assert.InDelta(t, 40.0/255, tensor.At(0, 1, 2, 0), 1e-6)
	assert.InDelta(t, 200.0/255, tensor.At(0, 2, 0, 0), 1e-6)
}

func TestImageToTensor_OffsetBounds(t *testing.T) {
	t.Parallel()

	full := gradientImage(6, 6)
	sub := full.SubImage(image.Rect(2, 1, 5, 4))

	tensor := ImageToTensor(sub)
	assert.Equal(t, "1x3x3x3", tensor.String())
	assert.InDelta(t, 20.0/255, tensor.At(0, 0, 0, 0), 1e-6)
	assert.InDelta(t, 20.0/255, tensor.At(0, 1, 0, 0), 1e-6)
}

func TestRGB24(t *testing.T) {
	t.Parallel()

	frame := []byte{255, 0, 0, 0, 255, 0, 0, 0, 255, 51, 102, 153}

	img, err := RGB24ToImage(frame, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 51, G: 102, B: 153, A: 255}, img.RGBAAt(1, 1))

	tensor := ImageToTensor(img)
	assert.Equal(t, float32(1), tensor.At(0, 1, 0, 1))
	assert.InDelta(t, 0.6, tensor.At(0, 2, 1, 1), 1e-6)

	_, err = RGB24ToImage(frame[:9], 2, 2)
	assert.ErrorIs(t, err, pwcnet.ErrShapeMismatch)
	_, err = RGB24ToImage(frame, 3, 2)
	assert.ErrorIs(t, err, pwcnet.ErrShapeMismatch)
}

func TestSaveAndLoadPNG(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "frame.png")
	src := gradientImage(7, 5)
	require.NoError(t, SavePNG(path, src))

	img, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, ToRGBA(img).Pix)
}

func TestLoadImage_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "junk.png")
	require.NoError(t, os.WriteFile(path, []byte("junk"), 0o644))
	_, err = LoadImage(path)
	assert.ErrorContains(t, err, "decoding")
}

func TestResizeImage(t *testing.T) {
	t.Parallel()

	solid := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range solid.Pix {
		solid.Pix[i] = 128
	}

	out := ResizeImage(solid, 16, 4)
	assert.Equal(t, image.Rect(0, 0, 16, 4), out.Bounds())
	px := out.RGBAAt(9, 2)
	for _, c := range []uint8{px.R, px.G, px.B, px.A} {
		assert.InDelta(t, 128, int(c), 1)
	}
}
