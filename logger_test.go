package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructFields(t *testing.T) {
	t.Parallel()

	job := Job{ID: 4, Source: "/frames", Reference: "/ref.png", OutputPath: "/out"}
	want := logrus.Fields{
		"ID":               int64(4),
		"Source":           "/frames",
		"Reference":        "/ref.png",
		"HighResReference": "",
		"OutputPath":       "/out",
	}
	assert.Equal(t, want, StructFields(job))
	assert.Equal(t, want, StructFields(&job))

	type withPrivate struct {
		Public  string
		private string
	}
	assert.Equal(t, logrus.Fields{"Public": "p"}, StructFields(withPrivate{Public: "p", private: "x"}))
}

// Not parallel: the log file is process wide.
func TestCreateLogger_WritesJSONToLogFile(t *testing.T) {
	logFile = nil
	_, err := CreateLogger("early")
	assert.Error(t, err)

	dir := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, InitLogFile(dir))
	t.Cleanup(func() {
		CloseLogFile()
		logFile = nil
	})

	logger, err := CreateLogger("test")
	require.NoError(t, err)
	logger.Debug("hello from the test")
	require.NoError(t, CloseLogFile())

	data, err := os.ReadFile(filepath.Join(dir, "current_log.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"from":"test"`)
	assert.Contains(t, string(data), `"msg":"hello from the test"`)
}
