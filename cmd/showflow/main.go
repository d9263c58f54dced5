// Command showflow renders a .flo file with the Middlebury colour coding.
package main

import (
	"flag"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/Zelak312/flowarr/flowio"
)

func main() {
	in := flag.String("in", "", "Input .flo file")
	out := flag.String("out", "./flow.png", "Output PNG")
	clip := flag.Float64("clip", 0, "Clamp both flow components to [0, clip] before colouring, 0 disables")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}

	flow, err := flowio.ReadFloFile(*in)
	if err != nil {
		log.Fatal(err)
	}

	if err := flowio.SavePNG(*out, flowio.FlowToColor(flow, float32(*clip))); err != nil {
		log.Fatal(err)
	}

	log.WithField("out", *out).
		WithField("width", flow.W).
		WithField("height", flow.H).
		Info("Flow image written")
}
