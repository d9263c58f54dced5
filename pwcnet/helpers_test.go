package pwcnet

import (
	"hash/fnv"
	"math/rand"
	"sync"
)

// synthSource fabricates deterministic weights of whatever shape is asked
// for, and records the requests.
type synthSource struct {
	scale float32

	mu     sync.Mutex
	shapes map[string][]int
}

func newSynthSource(scale float32) *synthSource {
	return &synthSource{scale: scale, shapes: make(map[string][]int)}
}

func (s *synthSource) Tensor(name string, shape ...int) ([]float32, error) {
	s.mu.Lock()
	s.shapes[name] = append([]int(nil), shape...)
	s.mu.Unlock()

	size := 1
	for _, d := range shape {
		size *= d
	}
	out := make([]float32, size)
	if s.scale == 0 {
		return out, nil
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	for i := range out {
		out[i] = (rng.Float32()*2 - 1) * s.scale
	}
	return out, nil
}

func randomTensor(rng *rand.Rand, n, c, h, w int) *Tensor {
	t := NewTensor(n, c, h, w)
	for i := range t.Data {
		t.Data[i] = rng.Float32()*2 - 1
	}
	return t
}

func filledTensor(n, c, h, w int, v float32) *Tensor {
	t := NewTensor(n, c, h, w)
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}
