package flowio

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/Zelak312/flowarr/pwcnet"
)

// Components larger than this mark a pixel whose flow is unknown.
const unknownFlow = 1e9

const radiusEpsilon = 1e-5

// Hue steps between the primary and secondary colours of the Middlebury
// wheel, chosen for perceptual uniformity.
var wheelSegments = [6]struct {
	steps int
	from  func(t float64) colorful.Color
}{
	{15, func(t float64) colorful.Color { return colorful.Color{R: 1, G: t} }},     // red -> yellow
	{6, func(t float64) colorful.Color { return colorful.Color{R: 1 - t, G: 1} }},  // yellow -> green
	{4, func(t float64) colorful.Color { return colorful.Color{G: 1, B: t} }},      // green -> cyan
	{11, func(t float64) colorful.Color { return colorful.Color{G: 1 - t, B: 1} }}, // cyan -> blue
	{13, func(t float64) colorful.Color { return colorful.Color{R: t, B: 1} }},     // blue -> magenta
	{6, func(t float64) colorful.Color { return colorful.Color{R: 1, B: 1 - t} }},  // magenta -> red
}

var colorWheel = buildColorWheel()

// buildColorWheel quantises each ramp to 8 bits, matching the reference
// tables.
func buildColorWheel() []colorful.Color {
	var wheel []colorful.Color
	for _, seg := range wheelSegments {
		for i := 0; i < seg.steps; i++ {
			t := math.Floor(255*float64(i)/float64(seg.steps)) / 255
			wheel = append(wheel, seg.from(t))
		}
	}
	return wheel
}

// FlowToColor renders a 1 x 2 x H x W flow with the Middlebury colour wheel:
// hue encodes direction and saturation encodes magnitude relative to the
// largest known vector. When clip > 0 both components are first clamped to
// [0, clip]. Unknown vectors are drawn black.
func FlowToColor(flow *pwcnet.Tensor, clip float32) *image.RGBA {
	w, h := flow.W, flow.H
	u := append([]float32(nil), flow.Plane(0, 0)...)
	v := append([]float32(nil), flow.Plane(0, 1)...)

	known := make([]bool, len(u))
	maxRadius := 0.0
	for i := range u {
		if clip > 0 {
			u[i] = clamp(u[i], 0, clip)
			v[i] = clamp(v[i], 0, clip)
		}
		if isUnknown(u[i]) || isUnknown(v[i]) {
			continue
		}
		known[i] = true
		maxRadius = math.Max(maxRadius, math.Hypot(float64(u[i]), float64(v[i])))
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	norm := maxRadius + radiusEpsilon
	for i := range u {
		if !known[i] {
			img.Set(i%w, i/w, color.RGBA{A: 255})
			continue
		}
		r, g, b := wheelColor(float64(u[i])/norm, float64(v[i])/norm).RGB255()
		img.Set(i%w, i/w, color.RGBA{R: r, G: g, B: b, A: 255})
	}
	return img
}

// wheelColor maps a normalised vector onto the wheel. Vectors inside the unit
// circle fade towards white; outside it they are darkened.
func wheelColor(u, v float64) colorful.Color {
	n := len(colorWheel)
	radius := math.Hypot(u, v)
	angle := math.Atan2(-v, -u) / math.Pi

	fk := (angle + 1) / 2 * float64(n-1)
	k0 := int(math.Floor(fk))
	k1 := k0 + 1
	if k1 == n {
		k1 = 0
	}
	c := colorWheel[k0].BlendRgb(colorWheel[k1], fk-float64(k0))

	white := colorful.Color{R: 1, G: 1, B: 1}
	if radius <= 1 {
		return white.BlendRgb(c, radius).Clamped()
	}
	return colorful.Color{R: c.R * 0.75, G: c.G * 0.75, B: c.B * 0.75}
}

func isUnknown(v float32) bool {
	return math.IsNaN(float64(v)) || math.Abs(float64(v)) > unknownFlow
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
