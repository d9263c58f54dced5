package pwcnet

import (
	"fmt"
	"math"
	"sync"
)

// Samples whose interpolated validity falls at or below this value are
// treated as out of frame and zeroed.
const maskThreshold = 0.999

type gridKey struct {
	n, h, w int
}

// grid holds the sampling coordinates of an identity warp. The corner-aligned
// [-1, 1] normalisation (-1 is the first pixel centre, +1 the last) cancels
// against its inverse, so coordinates are stored in pixels: xs[x] = x.
type grid struct {
	xs, ys []float32
}

// GridCache memoises identity sampling grids per (batch, height, width).
// Entries are created on first use and never evicted. It is safe for
// concurrent use.
type GridCache struct {
	mu    sync.RWMutex
	grids map[gridKey]*grid
}

// NewGridCache returns an empty cache.
func NewGridCache() *GridCache {
	return &GridCache{grids: make(map[gridKey]*grid)}
}

// Len reports the number of cached grids.
func (g *GridCache) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.grids)
}

func (g *GridCache) get(n, h, w int) *grid {
	key := gridKey{n, h, w}
	g.mu.RLock()
	cached, ok := g.grids[key]
	g.mu.RUnlock()
	if ok {
		return cached
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if cached, ok := g.grids[key]; ok {
		return cached
	}
	created := &grid{xs: mesh(w), ys: mesh(h)}
	g.grids[key] = created
	return created
}

func mesh(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

// Warp backward-warps input by flow: output(y, x) is the bilinear sample of
// input at (x + flow_x, y + flow_y), zero outside the frame. A constant ones
// plane is sampled alongside; wherever it comes back at or below 0.999 the
// output is zeroed across all channels.
func (g *GridCache) Warp(input, flow *Tensor) *Tensor {
	if flow.C != 2 || !input.sameSpatial(flow) {
		panic(fmt.Sprintf("pwcnet: warp of %s by flow %s", input, flow))
	}

	h, w := input.H, input.W
	base := g.get(flow.N, h, w)

	out := NewTensor(input.N, input.C, h, w)
	for n := 0; n < input.N; n++ {
		fx := flow.Plane(n, 0)
		fy := flow.Plane(n, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				sx := base.xs[x] + fx[i]
				sy := base.ys[y] + fy[i]

				taps, weights, valid := bilinearTaps(sx, sy, h, w)
				if valid <= maskThreshold {
					continue
				}
				for c := 0; c < input.C; c++ {
					plane := input.Plane(n, c)
					var v float32
					for k := range taps {
						if weights[k] != 0 {
							v += plane[taps[k]] * weights[k]
						}
					}
					out.Set(n, c, y, x, v)
				}
			}
		}
	}
	return out
}

// bilinearTaps returns the four neighbour indices of (sx, sy), their weights
// with out-of-frame neighbours zeroed, and the total in-frame weight, which
// equals the bilinear sample of a ones plane.
func bilinearTaps(sx, sy float32, h, w int) ([4]int, [4]float32, float32) {
	var taps [4]int
	var weights [4]float32
	if math.IsNaN(float64(sx)) || math.IsNaN(float64(sy)) {
		return taps, weights, 0
	}

	x0 := int(math.Floor(float64(sx)))
	y0 := int(math.Floor(float64(sy)))
	ax := sx - float32(x0)
	ay := sy - float32(y0)

	corners := [4][3]float32{
		{0, 0, (1 - ax) * (1 - ay)},
		{1, 0, ax * (1 - ay)},
		{0, 1, (1 - ax) * ay},
		{1, 1, ax * ay},
	}
	var valid float32
	for k, corner := range corners {
		cx := x0 + int(corner[0])
		cy := y0 + int(corner[1])
		if cx < 0 || cx >= w || cy < 0 || cy >= h {
			continue
		}
		taps[k] = cy*w + cx
		weights[k] = corner[2]
		valid += corner[2]
	}
	return taps, weights, valid
}
