package main

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/Zelak312/flowarr/flowio"
	"github.com/Zelak312/flowarr/pwcnet"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(logger)
}

func boolPtr(v bool) *bool {
	return &v
}

func testConfig(t *testing.T) *Config {
	t.Helper()

	config := &Config{
		ProcessFolder: t.TempDir(),
		DatabasePath:  filepath.Join(t.TempDir(), "flowarr.db"),
		ModelPath:     t.TempDir(),
		Threads:       1,
	}
	require.NoError(t, verifyConfig(config))
	return config
}

func gradientImage(w, h int, shift uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x*16) + shift, G: uint8(y * 16), B: 128, A: 255})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), os.ModePerm))
	require.NoError(t, flowio.SavePNG(path, img))
}

// constantEstimator answers every pair with the same flow vector.
type constantEstimator struct {
	u, v float32
	err  error

	mu    sync.Mutex
	calls int
}

func (e *constantEstimator) Estimate(ctx context.Context, first, second *pwcnet.Tensor) (*pwcnet.Tensor, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.err != nil {
		return nil, e.err
	}

	flow := pwcnet.NewTensor(1, 2, first.H, first.W)
	for i := range flow.Plane(0, 0) {
		flow.Plane(0, 0)[i] = e.u
		flow.Plane(0, 1)[i] = e.v
	}
	return flow, nil
}

func (e *constantEstimator) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeStore struct {
	mu      sync.Mutex
	done    []int64
	retries map[int64]int
	failed  map[int64]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		retries: make(map[int64]int),
		failed:  make(map[int64]string),
	}
}

func (s *fakeStore) MarkJobAsDone(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = append(s.done, job.ID)
	return nil
}

func (s *fakeStore) GetJobRetries(job *Job) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries[job.ID], nil
}

func (s *fakeStore) UpdateJobRetries(job *Job, retries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries[job.ID] = retries
	return nil
}

func (s *fakeStore) FailJob(job *Job, output string, progErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[job.ID] = progErr
	return nil
}

func (s *fakeStore) Done() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64{}, s.done...)
}
