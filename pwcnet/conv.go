package pwcnet

import (
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Output columns handled per GEMM call. Bounds the im2col buffer to
// K*K*In*colTile floats.
const colTile = 512

// executor splits column ranges of a GEMM over goroutines. With threads <= 1
// everything runs on the calling goroutine.
type executor struct {
	threads int
}

func (e executor) parallel(total, tile int, fn func(lo, hi int)) {
	if e.threads <= 1 || total <= tile {
		for lo := 0; lo < total; lo += tile {
			fn(lo, min(lo+tile, total))
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(e.threads)
	for lo := 0; lo < total; lo += tile {
		lo, hi := lo, min(lo+tile, total)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}

// Conv2D is a square-kernel 2D convolution with PyTorch weight layout
// (Out x In x K x K).
type Conv2D struct {
	In, Out  int
	Kernel   int
	Stride   int
	Padding  int
	Dilation int
	Weight   []float32
	Bias     []float32
}

func loadConv2D(src WeightSource, prefix string, in, out, kernel, stride, padding, dilation int) (*Conv2D, error) {
	weight, err := src.Tensor(prefix+".weight", out, in, kernel, kernel)
	if err != nil {
		return nil, err
	}
	bias, err := src.Tensor(prefix+".bias", out)
	if err != nil {
		return nil, err
	}

	return &Conv2D{
		In:       in,
		Out:      out,
		Kernel:   kernel,
		Stride:   stride,
		Padding:  padding,
		Dilation: dilation,
		Weight:   weight,
		Bias:     bias,
	}, nil
}

// OutputSize returns the spatial size produced for an h x w input.
func (m *Conv2D) OutputSize(h, w int) (int, int) {
	span := m.Dilation*(m.Kernel-1) + 1
	return (h+2*m.Padding-span)/m.Stride + 1, (w+2*m.Padding-span)/m.Stride + 1
}

// Forward computes the convolution through im2col and a blas32 GEMM per
// column tile.
func (m *Conv2D) Forward(e executor, x *Tensor) *Tensor {
	if x.C != m.In {
		panic(fmt.Sprintf("pwcnet: conv expects %d channels, got %s", m.In, x))
	}

	outH, outW := m.OutputSize(x.H, x.W)
	out := NewTensor(x.N, m.Out, outH, outW)
	outHW := outH * outW
	depth := m.In * m.Kernel * m.Kernel

	weights := blas32.General{Rows: m.Out, Cols: depth, Stride: depth, Data: m.Weight}

	for n := 0; n < x.N; n++ {
		input := x.Data[n*x.C*x.H*x.W : (n+1)*x.C*x.H*x.W]
		output := out.Data[n*m.Out*outHW : (n+1)*m.Out*outHW]
		for o := 0; o < m.Out; o++ {
			plane := output[o*outHW : (o+1)*outHW]
			for i := range plane {
				plane[i] = m.Bias[o]
			}
		}

		e.parallel(outHW, colTile, func(lo, hi int) {
			cols := hi - lo
			buf := make([]float32, depth*cols)
			m.im2col(input, x.H, x.W, outW, lo, hi, buf)

			blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
				weights,
				blas32.General{Rows: depth, Cols: cols, Stride: cols, Data: buf},
				1,
				blas32.General{Rows: m.Out, Cols: cols, Stride: outHW, Data: output[lo:]})
		})
	}
	return out
}

// im2col fills buf with the receptive fields of output positions [lo, hi),
// one row per (channel, ky, kx) tap.
func (m *Conv2D) im2col(input []float32, h, w, outW, lo, hi int, buf []float32) {
	cols := hi - lo
	row := 0
	for c := 0; c < m.In; c++ {
		plane := input[c*h*w : (c+1)*h*w]
		for ky := 0; ky < m.Kernel; ky++ {
			for kx := 0; kx < m.Kernel; kx++ {
				dst := buf[row*cols : (row+1)*cols]
				for p := lo; p < hi; p++ {
					oy, ox := p/outW, p%outW
					iy := oy*m.Stride - m.Padding + ky*m.Dilation
					ix := ox*m.Stride - m.Padding + kx*m.Dilation
					if iy < 0 || iy >= h || ix < 0 || ix >= w {
						dst[p-lo] = 0
						continue
					}
					dst[p-lo] = plane[iy*w+ix]
				}
				row++
			}
		}
	}
}

// ConvTranspose2D is a square-kernel transposed convolution with PyTorch
// weight layout (In x Out x K x K).
type ConvTranspose2D struct {
	In, Out int
	Kernel  int
	Stride  int
	Padding int
	Weight  []float32
	Bias    []float32
}

func loadConvTranspose2D(src WeightSource, prefix string, in, out, kernel, stride, padding int) (*ConvTranspose2D, error) {
	weight, err := src.Tensor(prefix+".weight", in, out, kernel, kernel)
	if err != nil {
		return nil, err
	}
	bias, err := src.Tensor(prefix+".bias", out)
	if err != nil {
		return nil, err
	}

	return &ConvTranspose2D{
		In:      in,
		Out:     out,
		Kernel:  kernel,
		Stride:  stride,
		Padding: padding,
		Weight:  weight,
		Bias:    bias,
	}, nil
}

// OutputSize returns the spatial size produced for an h x w input.
func (m *ConvTranspose2D) OutputSize(h, w int) (int, int) {
	return (h-1)*m.Stride - 2*m.Padding + m.Kernel, (w-1)*m.Stride - 2*m.Padding + m.Kernel
}

// Forward multiplies the transposed weights into a column buffer, then
// scatters the columns onto the output grid.
func (m *ConvTranspose2D) Forward(e executor, x *Tensor) *Tensor {
	if x.C != m.In {
		panic(fmt.Sprintf("pwcnet: transposed conv expects %d channels, got %s", m.In, x))
	}

	outH, outW := m.OutputSize(x.H, x.W)
	out := NewTensor(x.N, m.Out, outH, outW)
	hw := x.H * x.W
	taps := m.Kernel * m.Kernel
	rows := m.Out * taps

	weights := blas32.General{Rows: m.In, Cols: rows, Stride: rows, Data: m.Weight}
	cols := make([]float32, rows*hw)

	for n := 0; n < x.N; n++ {
		input := x.Data[n*m.In*hw : (n+1)*m.In*hw]
		blas32.Gemm(blas.Trans, blas.NoTrans, 1,
			weights,
			blas32.General{Rows: m.In, Cols: hw, Stride: hw, Data: input},
			0,
			blas32.General{Rows: rows, Cols: hw, Stride: hw, Data: cols})

		e.parallel(m.Out, 1, func(lo, hi int) {
			for o := lo; o < hi; o++ {
				plane := out.Plane(n, o)
				for i := range plane {
					plane[i] = m.Bias[o]
				}
				for ky := 0; ky < m.Kernel; ky++ {
					for kx := 0; kx < m.Kernel; kx++ {
						col := cols[((o*m.Kernel+ky)*m.Kernel+kx)*hw:][:hw]
						for iy := 0; iy < x.H; iy++ {
							oy := iy*m.Stride - m.Padding + ky
							if oy < 0 || oy >= outH {
								continue
							}
							for ix := 0; ix < x.W; ix++ {
								ox := ix*m.Stride - m.Padding + kx
								if ox < 0 || ox >= outW {
									continue
								}
								plane[oy*outW+ox] += col[iy*x.W+ix]
							}
						}
					}
				}
			}
		})
	}
	return out
}
