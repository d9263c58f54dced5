package pwcnet

import "strconv"

// Refiner widens the receptive field over the finest descriptor with dilated
// convolutions and predicts a residual flow.
type Refiner struct {
	convs [7]*Conv2D
}

var refinerLayers = [7]struct{ out, dilation int }{
	{128, 1}, {128, 2}, {128, 4}, {96, 8}, {64, 16}, {32, 1}, {2, 1},
}

func loadRefiner(src WeightSource) (*Refiner, error) {
	r := &Refiner{}
	in := seedChannels(finestLevel) + denseTotal
	for i, layer := range refinerLayers {
		// Sequential indices skip the activations: 0, 2, 4, ...
		name := "moduleRefiner.moduleMain." + strconv.Itoa(2*i)
		conv, err := loadConv2D(src, name, in, layer.out, 3, 1, layer.dilation, layer.dilation)
		if err != nil {
			return nil, err
		}
		r.convs[i] = conv
		in = layer.out
	}
	return r, nil
}

// Forward returns the 2 channel residual for feat.
func (r *Refiner) Forward(ex executor, feat *Tensor) *Tensor {
	x := feat
	for i, conv := range r.convs {
		x = conv.Forward(ex, x)
		if i < len(r.convs)-1 {
			LeakyReLU(x, leakySlope)
		}
	}
	return x
}
