package flowio

import (
	"fmt"
	"image"
	"math"

	"github.com/Zelak312/flowarr/pwcnet"
)

// WarpImage backward-warps img by a 1 x 2 x H x W flow of the same size:
// output(x, y) is the bilinear sample of img at (x + u, y + v). Samples
// that land outside the frame are filled with opaque black.
func WarpImage(img image.Image, flow *pwcnet.Tensor) (*image.RGBA, error) {
	src := ToRGBA(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if flow.C != 2 || flow.W != w || flow.H != h {
		return nil, fmt.Errorf("%w: image %dx%d, flow %s", pwcnet.ErrShapeMismatch, w, h, flow)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	u := flow.Plane(0, 0)
	v := flow.Plane(0, 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			o := dst.PixOffset(x, y)
			sx := float64(x) + float64(u[i])
			sy := float64(y) + float64(v[i])
			if !(sx >= 0 && sx <= float64(w-1) && sy >= 0 && sy <= float64(h-1)) {
				dst.Pix[o+3] = 255
				continue
			}

			x0, y0 := int(math.Floor(sx)), int(math.Floor(sy))
			x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
			ax, ay := sx-float64(x0), sy-float64(y0)
			for c := 0; c < 4; c++ {
				top := float64(src.Pix[src.PixOffset(x0, y0)+c])*(1-ax) + float64(src.Pix[src.PixOffset(x1, y0)+c])*ax
				bottom := float64(src.Pix[src.PixOffset(x0, y1)+c])*(1-ax) + float64(src.Pix[src.PixOffset(x1, y1)+c])*ax
				dst.Pix[o+c] = uint8(math.Round(top*(1-ay) + bottom*ay))
			}
		}
	}
	return dst, nil
}

// UpscaleFlow resizes a flow field by an integer factor and multiplies the
// vectors by the same factor, so it can drive a warp of a larger image.
// Interpolation is bilinear, not bicubic, so sharp motion boundaries come out
// slightly softer.
func UpscaleFlow(flow *pwcnet.Tensor, factor int) *pwcnet.Tensor {
	if factor == 1 {
		return flow.Clone()
	}
	return pwcnet.Scale(pwcnet.Resize(flow, flow.H*factor, flow.W*factor), float32(factor))
}
