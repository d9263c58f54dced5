package flowio

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Zelak312/flowarr/pwcnet"
)

// LoadImage decodes a PNG, JPEG, BMP, TIFF or WebP file.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// SavePNG encodes img as PNG at path.
func SavePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return png.Encode(f, img)
}

// ImageToTensor converts img to a 1 x 3 x H x W tensor in RGB order with
// values in [0, 1].
func ImageToTensor(img image.Image) *pwcnet.Tensor {
	rgba := ToRGBA(img)
	b := rgba.Bounds()
	w, h := b.Dx(), b.Dy()

	t := pwcnet.NewTensor(1, 3, h, w)
	r, g, bl := t.Plane(0, 0), t.Plane(0, 1), t.Plane(0, 2)
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			i := y*w + x
			r[i] = float32(row[4*x]) / 255
			g[i] = float32(row[4*x+1]) / 255
			bl[i] = float32(row[4*x+2]) / 255
		}
	}
	return t
}

// RGB24ToImage wraps a packed rgb24 frame as an RGBA image.
func RGB24ToImage(data []byte, width, height int) (*image.RGBA, error) {
	if len(data) != width*height*3 {
		return nil, fmt.Errorf("%w: %d bytes for a %dx%d rgb24 frame", pwcnet.ErrShapeMismatch, len(data), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		copy(img.Pix[4*i:4*i+3], data[3*i:3*i+3])
		img.Pix[4*i+3] = 255
	}
	return img, nil
}

// ToRGBA returns img as an *image.RGBA anchored at the origin, converting
// when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(rgba, rgba.Bounds(), img, b.Min, xdraw.Src)
	return rgba
}

// ResizeImage rescales img to width x height with Catmull-Rom filtering.
func ResizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}
