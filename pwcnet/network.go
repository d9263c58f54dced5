package pwcnet

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Flow leaves the network in units of 1/20 pixel at the padded resolution.
const flowGain = 20.0

// Input sides are rounded up to a multiple of this, six stride-2 halvings.
const sizeMultiple = 64

// Resolution the published weights were validated at.
const (
	CalibratedWidth  = 1024
	CalibratedHeight = 436
)

// Config holds the options for a Network.
type Config struct {
	// Model selects the weight variant, network-<Model>.safetensors.
	Model string
	// Threads bounds the goroutines used inside one estimate.
	Threads int
	// CostVolume overrides the correlation primitive. It must produce 81
	// displacement channels.
	CostVolume CostVolume
	Logger     logrus.FieldLogger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:   "default",
		Threads: runtime.NumCPU(),
	}
}

// Network is the PWC-Net flow estimator. After LoadModel it is read-only and
// Estimate may be called from several goroutines.
type Network struct {
	config *Config
	logger logrus.FieldLogger
	exec   executor
	cost   CostVolume
	grids  *GridCache

	extractor *Extractor
	decoders  [coarsestLevel - finestLevel + 1]*Decoder
	refiner   *Refiner

	warnMu sync.Mutex
	warned map[[2]int]bool
}

// New creates a Network with the given configuration. Weights are loaded
// separately with LoadModel or Load.
func New(config *Config) (*Network, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Model == "" {
		config.Model = "default"
	}
	if config.Threads <= 0 {
		config.Threads = 1
	}

	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	cost := config.CostVolume
	if cost == nil {
		cost = NewCorrelation(config.Threads)
	}
	if cost.Displacements() != costChannels {
		return nil, fmt.Errorf("pwcnet: cost volume yields %d channels, want %d", cost.Displacements(), costChannels)
	}

	return &Network{
		config: config,
		logger: logger.WithField("from", "pwcnet"),
		exec:   executor{threads: config.Threads},
		cost:   cost,
		grids:  NewGridCache(),
		warned: make(map[[2]int]bool),
	}, nil
}

// LoadModel loads network-<Model>.safetensors from dir.
func (n *Network) LoadModel(dir string) error {
	path := WeightsPath(dir, n.config.Model)
	src, err := OpenWeights(path, n.logger)
	if err != nil {
		return err
	}

	if err := n.Load(src); err != nil {
		return fmt.Errorf("failed to load model from %s: %w", path, err)
	}
	return nil
}

// Load builds every module from src.
func (n *Network) Load(src WeightSource) error {
	start := time.Now()
	extractor, err := loadExtractor(src)
	if err != nil {
		return err
	}

	var decoders [coarsestLevel - finestLevel + 1]*Decoder
	for level := finestLevel; level <= coarsestLevel; level++ {
		d, err := loadDecoder(src, level)
		if err != nil {
			return err
		}
		decoders[level-finestLevel] = d
	}

	refiner, err := loadRefiner(src)
	if err != nil {
		return err
	}

	n.extractor = extractor
	n.decoders = decoders
	n.refiner = refiner
	n.logger.WithField("model", n.config.Model).
		WithField("elapsed", time.Since(start)).
		Info("Model loaded")
	return nil
}

// Close drops the loaded weights.
func (n *Network) Close() {
	n.extractor = nil
	n.decoders = [coarsestLevel - finestLevel + 1]*Decoder{}
	n.refiner = nil
}

// Grids exposes the sampling grid cache shared by all estimates.
func (n *Network) Grids() *GridCache {
	return n.grids
}

// PaddedSize rounds both sides up to the next multiple of 64.
func PaddedSize(h, w int) (int, int) {
	return roundUp(h), roundUp(w)
}

func roundUp(v int) int {
	return (v + sizeMultiple - 1) / sizeMultiple * sizeMultiple
}

// Estimate returns the 2 x H x W flow from first to second. Both inputs must
// be 1 x 3 x H x W images with values in [0, 1].
func (n *Network) Estimate(ctx context.Context, first, second *Tensor) (*Tensor, error) {
	if n.extractor == nil {
		return nil, ErrNotLoaded
	}
	if first.N != 1 || second.N != 1 {
		return nil, fmt.Errorf("%w: batch must be 1, got %s and %s", ErrShapeMismatch, first, second)
	}
	if first.C != 3 || second.C != 3 {
		return nil, fmt.Errorf("%w: got %s and %s", ErrChannels, first, second)
	}
	if first.H != second.H || first.W != second.W {
		return nil, fmt.Errorf("%w: %s and %s", ErrShapeMismatch, first, second)
	}
	if first.H == 0 || first.W == 0 {
		return nil, fmt.Errorf("%w: empty image %s", ErrShapeMismatch, first)
	}

	h, w := first.H, first.W
	n.warnResolution(h, w)
	hp, wp := PaddedSize(h, w)

	flow, err := n.forward(ctx, Resize(first, hp, wp), Resize(second, hp, wp))
	if err != nil {
		return nil, err
	}
	return restoreFlow(flow, hp, wp, h, w), nil
}

// restoreFlow brings the network output back to h x w pixels: upsample to
// the padded size, apply the gain, resize to the original size and rescale
// each axis by original/padded.
func restoreFlow(flow *Tensor, hp, wp, h, w int) *Tensor {
	padded := Scale(Resize(flow, hp, wp), flowGain)
	out := Resize(padded, h, w)
	ScaleChannel(out, 0, float32(w)/float32(wp))
	ScaleChannel(out, 1, float32(h)/float32(hp))
	return out
}

func (n *Network) forward(ctx context.Context, first, second *Tensor) (*Tensor, error) {
	pyramidFirst, err := n.extractor.Forward(n.exec, first)
	if err != nil {
		return nil, err
	}
	pyramidSecond, err := n.extractor.Forward(n.exec, second)
	if err != nil {
		return nil, err
	}

	estimate := Coarsest()
	for level := coarsestLevel; level >= finestLevel; level-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := n.decoders[level-finestLevel]
		estimate = d.Forward(n.exec, n.cost, n.grids, pyramidFirst[level-1], pyramidSecond[level-1], estimate)
	}

	return AddInto(estimate.Flow, n.refiner.Forward(n.exec, estimate.Feat)), nil
}

func (n *Network) warnResolution(h, w int) {
	if h == CalibratedHeight && w == CalibratedWidth {
		return
	}

	n.warnMu.Lock()
	defer n.warnMu.Unlock()
	key := [2]int{h, w}
	if n.warned[key] {
		return
	}
	n.warned[key] = true
	n.logger.WithField("height", h).
		WithField("width", w).
		Warn("Resolution differs from the calibrated 1024x436, estimate quality is not guaranteed")
}
