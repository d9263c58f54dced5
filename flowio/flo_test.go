package flowio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zelak312/flowarr/pwcnet"
)

func sampleFlow() *pwcnet.Tensor {
	flow := pwcnet.NewTensor(1, 2, 2, 3)
	for i := range flow.Data {
		flow.Data[i] = float32(i) - 2.5
	}
	return flow
}

func TestWriteFlo_Layout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteFlo(&buf, sampleFlow()))

	raw := buf.Bytes()
	require.Len(t, raw, 12+2*3*2*4)
	assert.Equal(t, []byte("PIEH"), raw[:4])
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(raw[4:]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(raw[8:]))

	// First pixel: u = plane 0 value 0, v = plane 1 value 0.
	assert.Equal(t, float32(-2.5), math.Float32frombits(binary.LittleEndian.Uint32(raw[12:])))
	assert.Equal(t, float32(3.5), math.Float32frombits(binary.LittleEndian.Uint32(raw[16:])))
}

func TestFlo_RoundTripThroughFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pair.flo")
	flow := sampleFlow()
	require.NoError(t, WriteFloFile(path, flow))

	got, err := ReadFloFile(path)
	require.NoError(t, err)
	assert.Equal(t, flow.String(), got.String())
	assert.Equal(t, flow.Data, got.Data)
}

func TestReadFlo_Rejects(t *testing.T) {
	t.Parallel()

	var good bytes.Buffer
	require.NoError(t, WriteFlo(&good, sampleFlow()))

	badMagic := append([]byte(nil), good.Bytes()...)
	badMagic[0] = 'X'

	huge := append([]byte(nil), good.Bytes()[:12]...)
	binary.LittleEndian.PutUint32(huge[4:], 1<<20)

	cases := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"short header", good.Bytes()[:6], ErrTruncated},
		{"bad magic", badMagic, ErrBadMagic},
		{"truncated body", good.Bytes()[:good.Len()-1], ErrTruncated},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadFlo(bytes.NewReader(tc.data))
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := ReadFlo(bytes.NewReader(huge))
	assert.ErrorContains(t, err, "invalid .flo size")
}

func largeHeader(width, height uint32) []byte {
	header := make([]byte, 12)
	binary.LittleEndian.PutUint32(header[0:], math.Float32bits(floMagic))
	binary.LittleEndian.PutUint32(header[4:], width)
	binary.LittleEndian.PutUint32(header[8:], height)
	return header
}

func TestReadFlo_LargeHeaderWithoutBody(t *testing.T) {
	t.Parallel()

	// 40000 x 40000 would need about 12 GB if allocated up front
	_, err := ReadFlo(bytes.NewReader(largeHeader(40000, 40000)))
	assert.ErrorIs(t, err, ErrTruncated)

	withSomeBody := append(largeHeader(40000, 40000), make([]byte, 64)...)
	_, err = ReadFlo(bytes.NewReader(withSomeBody))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReadFloFile_ChecksSizeBeforeReading(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "short.flo")
	require.NoError(t, os.WriteFile(path, largeHeader(65536, 65536), 0o644))

	_, err := ReadFloFile(path)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.ErrorContains(t, err, "holds 12 bytes")
}

func TestWriteFlo_RejectsNonFlow(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	assert.Error(t, WriteFlo(&buf, pwcnet.NewTensor(1, 3, 2, 2)))
}
