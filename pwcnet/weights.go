package pwcnet

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/nlpodyssey/safetensors"
	"github.com/sirupsen/logrus"
)

// WeightSource hands out float32 parameter tensors by name. Implementations
// must fail when the stored shape differs from the requested one.
type WeightSource interface {
	Tensor(name string, shape ...int) ([]float32, error)
}

// WeightsPath returns the artifact path for a named model variant inside
// dir, e.g. models/network-default.safetensors.
func WeightsPath(dir string, model string) string {
	return filepath.Join(dir, "network-"+model+".safetensors")
}

type safetensorsSource struct {
	st safetensors.SafeTensors
}

// OpenWeights reads a safetensors artifact fully into memory.
func OpenWeights(path string, logger logrus.FieldLogger) (WeightSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingWeights, path)
		}
		return nil, err
	}

	st, err := safetensors.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	logger.WithField("path", path).
		WithField("size", humanize.Bytes(uint64(len(data)))).
		Debug("Weights artifact read")
	return safetensorsSource{st: st}, nil
}

func (s safetensorsSource) Tensor(name string, shape ...int) ([]float32, error) {
	view, ok := s.st.Tensor(name)
	if !ok {
		return nil, fmt.Errorf("%w: tensor %q", ErrMissingWeights, name)
	}

	if view.DType() != safetensors.F32 {
		return nil, fmt.Errorf("%w: tensor %q is %v", ErrWeightDType, name, view.DType())
	}

	stored := view.Shape()
	if !sameShape(stored, shape) {
		return nil, fmt.Errorf("%w: tensor %q is %v, want %v", ErrWeightShape, name, stored, shape)
	}

	raw := view.Data()
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

func sameShape(stored []uint64, want []int) bool {
	if len(stored) != len(want) {
		return false
	}
	for i := range want {
		if stored[i] != uint64(want[i]) {
			return false
		}
	}
	return true
}
