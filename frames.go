package main

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Zelak312/flowarr/flowio"
)

var frameExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

type Frame struct {
	// Name is the base used for every artifact written for this frame.
	Name  string
	Image image.Image
}

// FrameSource yields the frames of a job in order. Next returns io.EOF
// after the last frame.
type FrameSource interface {
	Next() (Frame, error)
	// Count is the expected number of frames, 0 when unknown.
	Count() int
	// Output is the decoder's diagnostic output, if any.
	Output() string
	Close() error
}

// OpenFrameSource opens a directory of images or a video file.
func OpenFrameSource(ctx context.Context, source string, options FFmpegOptions) (FrameSource, error) {
	dir, err := IsDir(source)
	if err != nil {
		return nil, err
	}

	if dir {
		return newDirSource(source)
	}
	return newVideoSource(ctx, source, options)
}

type dirSource struct {
	paths []string
	next  int
}

func newDirSource(dir string) (*dirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no frames found in %s", dir)
	}

	sort.Strings(paths)
	return &dirSource{paths: paths}, nil
}

func (d *dirSource) Next() (Frame, error) {
	if d.next >= len(d.paths) {
		return Frame{}, io.EOF
	}

	path := d.paths[d.next]
	d.next++
	img, err := flowio.LoadImage(path)
	if err != nil {
		return Frame{}, err
	}

	base := filepath.Base(path)
	return Frame{Name: strings.TrimSuffix(base, filepath.Ext(base)), Image: img}, nil
}

func (d *dirSource) Count() int     { return len(d.paths) }
func (d *dirSource) Output() string { return "" }
func (d *dirSource) Close() error   { return nil }

type videoSource struct {
	vp    *VideoProcessor
	index int
}

func newVideoSource(ctx context.Context, path string, options FFmpegOptions) (*videoSource, error) {
	videoInfo, output, err := GetVideoInfo(ctx, path)
	if err != nil {
		return nil, &commandError{err: err, output: output}
	}

	vp := NewVideoProcessor(videoInfo, options)
	if err := vp.StartReading(ctx); err != nil {
		vp.Close()
		return nil, err
	}

	return &videoSource{vp: vp}, nil
}

func (v *videoSource) Next() (Frame, error) {
	raw, err := v.vp.ReadFrame()
	if err != nil {
		return Frame{}, err
	}

	img, err := flowio.RGB24ToImage(raw.Data, raw.Width, raw.Height)
	if err != nil {
		return Frame{}, err
	}

	v.index++
	return Frame{Name: fmt.Sprintf("%08d", v.index), Image: img}, nil
}

func (v *videoSource) Count() int     { return int(v.vp.FrameCount()) }
func (v *videoSource) Output() string { return v.vp.Output() }
func (v *videoSource) Close() error   { return v.vp.Close() }

// commandError carries the output of a failed external command so it can be
// stored with the failed job.
type commandError struct {
	err    error
	output string
}

func (e *commandError) Error() string { return e.err.Error() }
func (e *commandError) Unwrap() error { return e.err }
