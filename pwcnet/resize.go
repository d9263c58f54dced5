package pwcnet

import "gonum.org/v1/gonum/blas/blas32"

// resizeAxis holds, for each output index, the two source taps and the
// weight of the upper one.
type resizeAxis struct {
	lo, hi []int
	frac   []float32
}

// newResizeAxis follows the half-pixel (align_corners=false) convention:
// src = (dst+0.5)*in/out - 0.5, clamped below at 0.
func newResizeAxis(in, out int) resizeAxis {
	axis := resizeAxis{lo: make([]int, out), hi: make([]int, out), frac: make([]float32, out)}
	scale := float32(in) / float32(out)
	for d := 0; d < out; d++ {
		src := (float32(d)+0.5)*scale - 0.5
		if src < 0 {
			src = 0
		}
		i := int(src)
		if i > in-1 {
			i = in - 1
		}
		axis.lo[d] = i
		axis.hi[d] = i
		if i < in-1 {
			axis.hi[d] = i + 1
		}
		axis.frac[d] = src - float32(i)
	}
	return axis
}

// Resize bilinearly resamples every plane of t to h x w without corner
// alignment. Resizing to the current size is the identity.
func Resize(t *Tensor, h, w int) *Tensor {
	if t.H == h && t.W == w {
		return t.Clone()
	}

	ys := newResizeAxis(t.H, h)
	xs := newResizeAxis(t.W, w)
	out := NewTensor(t.N, t.C, h, w)
	for n := 0; n < t.N; n++ {
		for c := 0; c < t.C; c++ {
			src := t.Plane(n, c)
			dst := out.Plane(n, c)
			for y := 0; y < h; y++ {
				r0 := src[ys.lo[y]*t.W : (ys.lo[y]+1)*t.W]
				r1 := src[ys.hi[y]*t.W : (ys.hi[y]+1)*t.W]
				fy := ys.frac[y]
				for x := 0; x < w; x++ {
					fx := xs.frac[x]
					top := r0[xs.lo[x]]*(1-fx) + r0[xs.hi[x]]*fx
					bottom := r1[xs.lo[x]]*(1-fx) + r1[xs.hi[x]]*fx
					dst[y*w+x] = top*(1-fy) + bottom*fy
				}
			}
		}
	}
	return out
}

// ScaleChannel multiplies channel c of every batch entry by alpha in place.
func ScaleChannel(t *Tensor, c int, alpha float32) {
	for n := 0; n < t.N; n++ {
		plane := t.Plane(n, c)
		blas32.Scal(alpha, blas32.Vector{N: len(plane), Inc: 1, Data: plane})
	}
}

// Scale multiplies every element of t by alpha in place and returns t.
func Scale(t *Tensor, alpha float32) *Tensor {
	blas32.Scal(alpha, blas32.Vector{N: len(t.Data), Inc: 1, Data: t.Data})
	return t
}

// AddInto accumulates src into dst (dst += src). Shapes must match.
func AddInto(dst, src *Tensor) *Tensor {
	if len(dst.Data) != len(src.Data) {
		panic("pwcnet: add of " + dst.String() + " and " + src.String())
	}
	blas32.Axpy(1, blas32.Vector{N: len(src.Data), Inc: 1, Data: src.Data},
		blas32.Vector{N: len(dst.Data), Inc: 1, Data: dst.Data})
	return dst
}
