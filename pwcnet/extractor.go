package pwcnet

import (
	"fmt"
)

const leakySlope = 0.1

// Levels of the feature pyramid, finest first.
const pyramidLevels = 6

// PyramidChannels lists the feature depth of pyramid levels 1..6.
var PyramidChannels = [pyramidLevels]int{16, 32, 64, 96, 128, 196}

var levelNames = [...]string{"moduleOne", "moduleTwo", "moduleThr", "moduleFou", "moduleFiv", "moduleSix"}

// Extractor turns an image into a six level feature pyramid. Every level
// halves the resolution with a strided convolution and refines it with two
// more, each followed by a leaky ReLU.
type Extractor struct {
	levels [pyramidLevels][3]*Conv2D
}

func loadExtractor(src WeightSource) (*Extractor, error) {
	e := &Extractor{}
	in := 3
	for l, out := range PyramidChannels {
		prefix := "moduleExtractor." + levelNames[l]
		var err error
		if e.levels[l][0], err = loadConv2D(src, prefix+".0", in, out, 3, 2, 1, 1); err != nil {
			return nil, err
		}
		if e.levels[l][1], err = loadConv2D(src, prefix+".2", out, out, 3, 1, 1, 1); err != nil {
			return nil, err
		}
		if e.levels[l][2], err = loadConv2D(src, prefix+".4", out, out, 3, 1, 1, 1); err != nil {
			return nil, err
		}
		in = out
	}
	return e, nil
}

// Forward returns the pyramid of img, finest level first.
func (e *Extractor) Forward(ex executor, img *Tensor) ([]*Tensor, error) {
	if img.C != 3 {
		return nil, fmt.Errorf("%w: got %s", ErrChannels, img)
	}

	pyramid := make([]*Tensor, 0, pyramidLevels)
	x := img
	for _, convs := range e.levels {
		for _, conv := range convs {
			x = LeakyReLU(conv.Forward(ex, x), leakySlope)
		}
		pyramid = append(pyramid, x)
	}
	return pyramid, nil
}
