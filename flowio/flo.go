// Package flowio reads and writes the artifacts around a flow estimate:
// Middlebury .flo files, colour-coded flow images, image tensors and images
// warped by a flow field.
package flowio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/Zelak312/flowarr/pwcnet"
)

// floMagic is the float32 tag opening every .flo file ("PIEH" in ASCII).
const floMagic float32 = 202021.25

// Sanity bound for the dimensions found in a .flo header.
const maxFloSide = 1 << 16

var (
	ErrBadMagic  = errors.New("flowio: not a .flo file")
	ErrTruncated = errors.New("flowio: truncated .flo data")
)

// WriteFlo encodes a 1 x 2 x H x W flow as a .flo stream: magic, width,
// height, then H*W interleaved (u, v) pairs, all little endian.
func WriteFlo(w io.Writer, flow *pwcnet.Tensor) error {
	if flow.N != 1 || flow.C != 2 {
		return fmt.Errorf("flowio: flow must be 1x2xHxW, got %s", flow)
	}

	bw := bufio.NewWriter(w)
	header := make([]byte, 12)
	binary.LittleEndian.PutUint32(header[0:], math.Float32bits(floMagic))
	binary.LittleEndian.PutUint32(header[4:], uint32(flow.W))
	binary.LittleEndian.PutUint32(header[8:], uint32(flow.H))
	if _, err := bw.Write(header); err != nil {
		return err
	}

	u := flow.Plane(0, 0)
	v := flow.Plane(0, 1)
	pair := make([]byte, 8)
	for i := range u {
		binary.LittleEndian.PutUint32(pair[0:], math.Float32bits(u[i]))
		binary.LittleEndian.PutUint32(pair[4:], math.Float32bits(v[i]))
		if _, err := bw.Write(pair); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadFlo decodes a .flo stream into a 1 x 2 x H x W tensor.
func ReadFlo(r io.Reader) (*pwcnet.Tensor, error) {
	br := bufio.NewReader(r)
	header := make([]byte, 12)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrTruncated, err)
	}

	if math.Float32frombits(binary.LittleEndian.Uint32(header[0:])) != floMagic {
		return nil, ErrBadMagic
	}
	width := int(int32(binary.LittleEndian.Uint32(header[4:])))
	height := int(int32(binary.LittleEndian.Uint32(header[8:])))
	if width <= 0 || height <= 0 || width > maxFloSide || height > maxFloSide {
		return nil, fmt.Errorf("flowio: invalid .flo size %dx%d", width, height)
	}

	// The header alone must not decide the allocation, so the body is read
	// first and only grows as bytes arrive.
	want := int64(8 * width * height)
	body, err := io.ReadAll(io.LimitReader(br, want))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) < want {
		return nil, fmt.Errorf("%w: %d of %d bytes of flow data", ErrTruncated, len(body), want)
	}

	flow := pwcnet.NewTensor(1, 2, height, width)
	u := flow.Plane(0, 0)
	v := flow.Plane(0, 1)
	for i := range u {
		u[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[8*i:]))
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[8*i+4:]))
	}
	return flow, nil
}

// WriteFloFile writes flow to path.
func WriteFloFile(path string, flow *pwcnet.Tensor) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return WriteFlo(f, flow)
}

// ReadFloFile reads the flow stored at path.
func ReadFloFile(path string) (*pwcnet.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrTruncated, err)
	}
	width := int64(int32(binary.LittleEndian.Uint32(header[4:])))
	height := int64(int32(binary.LittleEndian.Uint32(header[8:])))
	if width > 0 && height > 0 && width <= maxFloSide && height <= maxFloSide && info.Size() < 12+8*width*height {
		return nil, fmt.Errorf("%w: %s holds %d bytes, a %dx%d flow needs %d",
			ErrTruncated, path, info.Size(), width, height, 12+8*width*height)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return ReadFlo(f)
}
