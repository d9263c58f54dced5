package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type FFProbeOutput struct {
	Streams []struct {
		Width          int    `json:"width"`
		Height         int    `json:"height"`
		FrameRate      string `json:"r_frame_rate"`
		FrameCount     string `json:"nb_frames"`
		FrameCountRead string `json:"nb_read_frames"`
	} `json:"streams"`
}

type RawFrame struct {
	Data   []byte
	Width  int
	Height int
}

type VideoProcessor struct {
	videoInfo VideoInfo
	options   FFmpegOptions
	frameSize int

	reader  *Command
	stdout  io.ReadCloser
	cancel  context.CancelFunc
	drained bool
}

type VideoInfo struct {
	InputPath  string
	Width      int
	Height     int
	FrameRate  float64
	FrameCount int64
}

func parseVideoInfoFFProbeOutput(output string) (*FFProbeOutput, error) {
	var probeOutput FFProbeOutput
	if err := json.Unmarshal([]byte(output), &probeOutput); err != nil {
		return nil, fmt.Errorf("parsing probe output: %v\n%v", err, output)
	}

	if len(probeOutput.Streams) == 0 {
		return nil, fmt.Errorf("no video streams found")
	}

	return &probeOutput, nil
}

func parseFrameRate(rate string) (float64, error) {
	parts := strings.Split(rate, "/")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid framerate format: %q", rate)
	}

	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing framerate numerator: %v", err)
	}

	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing framerate denominator: %v", err)
	}

	if den == 0 {
		return 0, fmt.Errorf("invalid framerate denominator: %q", rate)
	}

	return num / den, nil
}

// videoInfoFromProbe fills everything but the frame count when the
// container does not carry one.
func videoInfoFromProbe(inputPath string, probe *FFProbeOutput) (*VideoInfo, bool, error) {
	mainStream := probe.Streams[0]
	frameRate, err := parseFrameRate(mainStream.FrameRate)
	if err != nil {
		return nil, false, err
	}

	videoInfo := &VideoInfo{
		InputPath: inputPath,
		Width:     mainStream.Width,
		Height:    mainStream.Height,
		FrameRate: frameRate,
	}

	if mainStream.FrameCount == "" || mainStream.FrameCount == "N/A" {
		return videoInfo, false, nil
	}

	frameCount, err := strconv.ParseInt(mainStream.FrameCount, 10, 64)
	if err != nil {
		return nil, false, err
	}

	videoInfo.FrameCount = frameCount
	return videoInfo, true, nil
}

func GetVideoInfo(ctx context.Context, inputPath string) (*VideoInfo, string, error) {
	cmd := NewCommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,nb_frames",
		"-of", "json",
		inputPath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, output, err
	}

	ffprobeOutput, err := parseVideoInfoFFProbeOutput(output)
	if err != nil {
		return nil, output, err
	}

	videoInfo, counted, err := videoInfoFromProbe(inputPath, ffprobeOutput)
	if err != nil {
		return nil, output, err
	}

	if counted {
		return videoInfo, "", nil
	}

	// container doesn't have frame count, counting frames
	cmd = NewCommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-count_frames",
		"-show_entries", "stream=nb_read_frames",
		"-of", "json",
		inputPath)

	output, err = cmd.CombinedOutput()
	if err != nil {
		return nil, output, err
	}

	ffprobeCountOutput, err := parseVideoInfoFFProbeOutput(output)
	if err != nil {
		return nil, output, err
	}

	frameCount, err := strconv.ParseInt(ffprobeCountOutput.Streams[0].FrameCountRead, 10, 64)
	if err != nil {
		return nil, output, err
	}

	videoInfo.FrameCount = frameCount
	return videoInfo, output, nil
}

func NewVideoProcessor(videoInfo *VideoInfo, options FFmpegOptions) *VideoProcessor {
	return &VideoProcessor{
		videoInfo: *videoInfo,
		options:   options,
		frameSize: videoInfo.Width * videoInfo.Height * 3,
	}
}

func (vp *VideoProcessor) readArgs() []string {
	args := []string{}
	if vp.options.HWAccelDecodeFlag != "" {
		args = append(args, "-hwaccel", vp.options.HWAccelDecodeFlag)
	}

	return append(args, "-i", vp.videoInfo.InputPath,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1")
}

func (vp *VideoProcessor) StartReading(ctx context.Context) error {
	ctx, vp.cancel = context.WithCancel(ctx)
	vp.reader = NewCommandContext(ctx, "ffmpeg", vp.readArgs()...)

	vp.reader.DisableOutputBuffer()
	stdout, err := vp.reader.GetStdout()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %v", err)
	}

	vp.stdout = stdout
	return vp.reader.Start()
}

// ReadFrame returns io.EOF once the stream is exhausted.
func (vp *VideoProcessor) ReadFrame() (RawFrame, error) {
	buf := make([]byte, vp.frameSize)
	_, err := io.ReadFull(vp.stdout, buf)
	if err == io.EOF {
		vp.drained = true
	}
	if err == io.ErrUnexpectedEOF {
		return RawFrame{}, fmt.Errorf("partial frame at end of stream: %w", err)
	}
	if err != nil {
		return RawFrame{}, err
	}

	return RawFrame{
		Data:   buf,
		Width:  vp.videoInfo.Width,
		Height: vp.videoInfo.Height,
	}, nil
}

// Output returns what ffmpeg wrote to stderr so far.
func (vp *VideoProcessor) Output() string {
	if vp.reader == nil {
		return ""
	}
	return vp.reader.GetOutput()
}

// Close stops ffmpeg if the stream was not read to the end and waits for
// it to exit. Exit errors are only reported for fully read streams.
func (vp *VideoProcessor) Close() error {
	if vp.reader == nil {
		return nil
	}

	defer vp.cancel()
	if !vp.drained {
		vp.cancel()
	}

	err := vp.reader.Wait()
	if err != nil && vp.drained {
		return fmt.Errorf("waiting for reader: %w", err)
	}
	return nil
}

func (vp *VideoProcessor) FrameCount() int64 { return vp.videoInfo.FrameCount }
