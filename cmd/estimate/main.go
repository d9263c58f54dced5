// Command estimate computes the optical flow between two images and writes
// it as a Middlebury .flo file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"

	log "github.com/sirupsen/logrus"

	"github.com/Zelak312/flowarr/flowio"
	"github.com/Zelak312/flowarr/pwcnet"
)

func main() {
	model := flag.String("model", "default", "Weight variant, loads network-<model>.safetensors")
	models := flag.String("models", ".", "Directory holding the weight files")
	first := flag.String("first", "", "First image")
	second := flag.String("second", "", "Second image")
	out := flag.String("out", "./out.flo", "Output .flo path")
	threads := flag.Int("threads", runtime.NumCPU(), "Goroutines used by one estimate")
	flag.Parse()

	if *first == "" || *second == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	network, err := pwcnet.New(&pwcnet.Config{Model: *model, Threads: *threads})
	if err != nil {
		log.Fatal(err)
	}
	defer network.Close()

	if err := network.LoadModel(*models); err != nil {
		log.Fatal(err)
	}

	firstImg, err := flowio.LoadImage(*first)
	if err != nil {
		log.Fatal(err)
	}

	secondImg, err := flowio.LoadImage(*second)
	if err != nil {
		log.Fatal(err)
	}

	flow, err := network.Estimate(ctx, flowio.ImageToTensor(firstImg), flowio.ImageToTensor(secondImg))
	if err != nil {
		log.Fatal(err)
	}

	if err := flowio.WriteFloFile(*out, flow); err != nil {
		log.Fatal(err)
	}

	log.WithField("out", *out).Info("Flow written")
}
