/*
Package pwcnet estimates dense optical flow between two images with a
pyramidal, coarse-to-fine convolutional network (PWC-Net).

Basic usage:

	// Create a network and load the weight artifact
	config := pwcnet.DefaultConfig()
	net, err := pwcnet.New(config)
	if err != nil {
	    log.Fatal(err)
	}
	defer net.Close()

	err = net.LoadModel("path/to/models")
	if err != nil {
	    log.Fatal(err)
	}

	// Estimate the flow from first to second, both 3xHxW in [0,1]
	flow, err := net.Estimate(ctx, first, second)
	if err != nil {
	    log.Fatal(err)
	}

The returned flow is a 2xHxW tensor at the resolution of the inputs. Channel
0 holds the horizontal displacement and channel 1 the vertical one, in
pixels.

The network was calibrated at 1024x436. Other resolutions are accepted but
the quality of the estimate away from that size is not guaranteed.
*/
package pwcnet
