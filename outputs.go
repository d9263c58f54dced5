package main

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/Zelak312/flowarr/flowio"
	"github.com/Zelak312/flowarr/pwcnet"
)

// outputWriter lays out the per-frame artifacts of a job. A directory left
// empty means that artifact is disabled.
type outputWriter struct {
	flowDir      string
	warpDir      string
	highResDir   string
	floDir       string
	highResScale int
}

func newOutputWriter(root string, config *Config, highRes bool) (*outputWriter, error) {
	o := &outputWriter{highResScale: config.HighResScale}
	if *config.SaveFlowImage {
		o.flowDir = filepath.Join(root, "flow")
	}
	if *config.SaveWarpedImage {
		o.warpDir = filepath.Join(root, "warp")
		if highRes {
			o.highResDir = filepath.Join(root, fmt.Sprintf("warp_%dx", config.HighResScale))
		}
	}
	if *config.SaveFlowFile {
		o.floDir = filepath.Join(root, "flo")
	}

	for _, dir := range []string{root, o.flowDir, o.warpDir, o.highResDir, o.floDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// write stores every enabled artifact for one frame. A failing artifact does
// not stop the others.
func (o *outputWriter) write(name string, flow *pwcnet.Tensor, reference, highRes image.Image) error {
	var result *multierror.Error

	if o.flowDir != "" {
		err := flowio.SavePNG(filepath.Join(o.flowDir, name+"_flow.png"), flowio.FlowToColor(flow, 0))
		result = multierror.Append(result, err)
	}

	if o.warpDir != "" {
		warped, err := flowio.WarpImage(reference, flow)
		if err == nil {
			err = flowio.SavePNG(filepath.Join(o.warpDir, name+"_warped.png"), warped)
		}
		result = multierror.Append(result, err)
	}

	if o.highResDir != "" && highRes != nil {
		// bilinear upsampling of the flow, not bicubic; see UpscaleFlow
		warped, err := flowio.WarpImage(highRes, flowio.UpscaleFlow(flow, o.highResScale))
		if err == nil {
			err = flowio.SavePNG(filepath.Join(o.highResDir, name+"_warped.png"), warped)
		}
		result = multierror.Append(result, err)
	}

	if o.floDir != "" {
		result = multierror.Append(result, flowio.WriteFloFile(filepath.Join(o.floDir, name+".flo"), flow))
	}

	return result.ErrorOrNil()
}

// referenceSet keeps the reference images and tensor matched to the current
// frame size.
type referenceSet struct {
	logger    *logrus.Entry
	reference image.Image
	highRes   image.Image
	scale     int

	size          image.Point
	scaled        image.Image
	scaledHighRes image.Image
	tensor        *pwcnet.Tensor
}

func newReferenceSet(logger *logrus.Entry, reference, highRes image.Image, scale int) *referenceSet {
	return &referenceSet{
		logger:    logger,
		reference: reference,
		highRes:   highRes,
		scale:     scale,
	}
}

func (r *referenceSet) forSize(size image.Point) (image.Image, image.Image, *pwcnet.Tensor) {
	if r.tensor != nil && r.size == size {
		return r.scaled, r.scaledHighRes, r.tensor
	}

	r.size = size
	r.scaled = r.reference
	if r.reference.Bounds().Size() != size {
		r.logger.WithField("reference", r.reference.Bounds().Size()).
			WithField("frame", size).
			Warn("Reference size differs from frame size, resizing reference")
		r.scaled = flowio.ResizeImage(r.reference, size.X, size.Y)
	}

	r.scaledHighRes = r.highRes
	if r.highRes != nil {
		want := size.Mul(r.scale)
		if r.highRes.Bounds().Size() != want {
			r.logger.WithField("highResReference", r.highRes.Bounds().Size()).
				WithField("want", want).
				Warn("High resolution reference does not match the scaled frame size, resizing it")
			r.scaledHighRes = flowio.ResizeImage(r.highRes, want.X, want.Y)
		}
	}

	r.tensor = flowio.ImageToTensor(r.scaled)
	return r.scaled, r.scaledHighRes, r.tensor
}
