package pwcnet

import (
	"fmt"
)

// Channels produced by the ±4 pixel cost volume.
const costChannels = 81

// Growth of the descriptor across the dense cascade.
var denseGrowth = [5]int{128, 128, 96, 64, 32}

const denseTotal = 128 + 128 + 96 + 64 + 32

// backwardScale converts an upsampled flow into pixels of the level it
// warps. Flow is carried in units of 1/20 full-resolution pixels and level l
// is 2^l times smaller, so the factor is 20/2^l.
var backwardScale = map[int]float32{
	2: 5.0,
	3: 2.5,
	4: 1.25,
	5: 0.625,
}

const coarsestLevel = 6

const finestLevel = 2

// Estimate is the hand-off between decoder levels: either nothing (the
// coarsest level starts from scratch) or a flow and feature descriptor from
// the next coarser level.
type Estimate struct {
	refined bool
	Flow    *Tensor
	Feat    *Tensor
}

// Coarsest is the empty estimate fed to the level 6 decoder.
func Coarsest() Estimate { return Estimate{} }

// Refined wraps a decoder result for the next finer level.
func Refined(flow, feat *Tensor) Estimate {
	return Estimate{refined: true, Flow: flow, Feat: feat}
}

// IsCoarsest reports whether e carries no previous level.
func (e Estimate) IsCoarsest() bool { return !e.refined }

// seedChannels is the descriptor depth entering the dense cascade.
func seedChannels(level int) int {
	if level == coarsestLevel {
		return costChannels
	}
	return costChannels + PyramidChannels[level-1] + 2 + 2
}

// Decoder estimates the flow at one pyramid level.
type Decoder struct {
	Level    int
	backward float32
	upflow   *ConvTranspose2D
	upfeat   *ConvTranspose2D
	dense    [5]*Conv2D
	predict  *Conv2D
}

func loadDecoder(src WeightSource, level int) (*Decoder, error) {
	if level < finestLevel || level > coarsestLevel {
		return nil, fmt.Errorf("pwcnet: no decoder for level %d", level)
	}

	prefix := levelNames[level-1]
	d := &Decoder{Level: level}
	var err error
	if level < coarsestLevel {
		d.backward = backwardScale[level]
		if d.upflow, err = loadConvTranspose2D(src, prefix+".moduleUpflow", 2, 2, 4, 2, 1); err != nil {
			return nil, err
		}
		previous := seedChannels(level+1) + denseTotal
		if d.upfeat, err = loadConvTranspose2D(src, prefix+".moduleUpfeat", previous, 2, 4, 2, 1); err != nil {
			return nil, err
		}
	}

	in := seedChannels(level)
	for i, out := range denseGrowth {
		name := fmt.Sprintf("%s.%s.0", prefix, levelNames[i])
		if d.dense[i], err = loadConv2D(src, name, in, out, 3, 1, 1, 1); err != nil {
			return nil, err
		}
		in += out
	}
	if d.predict, err = loadConv2D(src, prefix+".moduleSix.0", in, 2, 3, 1, 1, 1); err != nil {
		return nil, err
	}
	return d, nil
}

// Forward refines prev into the estimate for this level. first and second
// are this level's features of the two frames.
func (d *Decoder) Forward(ex executor, cost CostVolume, grids *GridCache, first, second *Tensor, prev Estimate) Estimate {
	var feat *Tensor
	if prev.IsCoarsest() {
		feat = LeakyReLU(cost.Correlate(first, second), leakySlope)
	} else {
		if d.upflow == nil {
			panic(fmt.Sprintf("pwcnet: level %d decoder cannot take a previous estimate", d.Level))
		}
		flow := d.upflow.Forward(ex, prev.Flow)
		upfeat := d.upfeat.Forward(ex, prev.Feat)

		warped := grids.Warp(second, Scale(flow.Clone(), d.backward))
		volume := LeakyReLU(cost.Correlate(first, warped), leakySlope)
		feat = Concat(volume, first, flow, upfeat)
	}

	for _, conv := range d.dense {
		feat = Concat(LeakyReLU(conv.Forward(ex, feat), leakySlope), feat)
	}

	return Refined(d.predict.Forward(ex, feat), feat)
}
