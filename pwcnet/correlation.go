package pwcnet

import "fmt"

// CostVolume computes the matching cost between two equally shaped feature
// maps over a bounded displacement window.
type CostVolume interface {
	// Correlate returns an N x D x H x W tensor, one channel per displacement.
	Correlate(first, second *Tensor) *Tensor
	// Displacements reports D.
	Displacements() int
}

// Correlation is the reference CPU cost volume. Channel (dy+d)*(2d+1) +
// (dx+d) holds the channel-averaged dot product of first at (y, x) and second
// at (y+dy, x+dx), zero where the displaced position leaves the frame.
type Correlation struct {
	MaxDisplacement int
	exec            executor
}

// NewCorrelation returns the ±4 pixel (81 channel) cost volume.
func NewCorrelation(threads int) *Correlation {
	return &Correlation{MaxDisplacement: 4, exec: executor{threads: threads}}
}

func (c *Correlation) Displacements() int {
	side := 2*c.MaxDisplacement + 1
	return side * side
}

func (c *Correlation) Correlate(first, second *Tensor) *Tensor {
	if first.N != second.N || first.C != second.C || !first.sameSpatial(second) {
		panic(fmt.Sprintf("pwcnet: correlate %s with %s", first, second))
	}

	d := c.MaxDisplacement
	side := 2*d + 1
	h, w := first.H, first.W
	out := NewTensor(first.N, side*side, h, w)
	norm := 1 / float32(first.C)

	for n := 0; n < first.N; n++ {
		c.exec.parallel(side*side, 1, func(lo, hi int) {
			for k := lo; k < hi; k++ {
				dy := k/side - d
				dx := k%side - d
				dst := out.Plane(n, k)
				for ch := 0; ch < first.C; ch++ {
					a := first.Plane(n, ch)
					b := second.Plane(n, ch)
					for y := max(0, -dy); y < min(h, h-dy); y++ {
						rowA := a[y*w:]
						rowB := b[(y+dy)*w:]
						rowOut := dst[y*w:]
						for x := max(0, -dx); x < min(w, w-dx); x++ {
							rowOut[x] += rowA[x] * rowB[x+dx]
						}
					}
				}
				for i := range dst {
					dst[i] *= norm
				}
			}
		})
	}
	return out
}
