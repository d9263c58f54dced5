package pwcnet

import (
	"fmt"
)

// Tensor is a dense float32 tensor in NCHW order.
type Tensor struct {
	N, C, H, W int
	Data       []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(n, c, h, w int) *Tensor {
	return &Tensor{N: n, C: c, H: h, W: w, Data: make([]float32, n*c*h*w)}
}

// FromCHW wraps a single-image CHW buffer as a batch-of-1 tensor.
func FromCHW(c, h, w int, data []float32) (*Tensor, error) {
	if len(data) != c*h*w {
		return nil, fmt.Errorf("%w: %d values for %dx%dx%d", ErrShapeMismatch, len(data), c, h, w)
	}
	return &Tensor{N: 1, C: c, H: h, W: w, Data: data}, nil
}

func (t *Tensor) String() string {
	return fmt.Sprintf("%dx%dx%dx%d", t.N, t.C, t.H, t.W)
}

// Plane returns the HxW slice for batch n, channel c.
func (t *Tensor) Plane(n, c int) []float32 {
	size := t.H * t.W
	off := (n*t.C + c) * size
	return t.Data[off : off+size]
}

// At returns the value at (n, c, y, x).
func (t *Tensor) At(n, c, y, x int) float32 {
	return t.Data[((n*t.C+c)*t.H+y)*t.W+x]
}

// Set stores v at (n, c, y, x).
func (t *Tensor) Set(n, c, y, x int, v float32) {
	t.Data[((n*t.C+c)*t.H+y)*t.W+x] = v
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{N: t.N, C: t.C, H: t.H, W: t.W, Data: make([]float32, len(t.Data))}
	copy(out.Data, t.Data)
	return out
}

func (t *Tensor) sameSpatial(o *Tensor) bool {
	return t.N == o.N && t.H == o.H && t.W == o.W
}

// Concat joins tensors along the channel axis. All inputs must share batch
// and spatial size.
func Concat(ts ...*Tensor) *Tensor {
	if len(ts) == 0 {
		panic("pwcnet: concat of nothing")
	}
	first := ts[0]
	channels := 0
	for _, t := range ts {
		if !t.sameSpatial(first) {
			panic(fmt.Sprintf("pwcnet: concat %s with %s", first, t))
		}
		channels += t.C
	}

	out := NewTensor(first.N, channels, first.H, first.W)
	size := first.H * first.W
	for n := 0; n < first.N; n++ {
		dst := out.Data[n*channels*size : (n+1)*channels*size]
		off := 0
		for _, t := range ts {
			src := t.Data[n*t.C*size : (n+1)*t.C*size]
			copy(dst[off:], src)
			off += len(src)
		}
	}
	return out
}

// LeakyReLU applies max(x, slope*x) in place and returns t.
func LeakyReLU(t *Tensor, slope float32) *Tensor {
	for i, v := range t.Data {
		if v < 0 {
			t.Data[i] = v * slope
		}
	}
	return t
}
