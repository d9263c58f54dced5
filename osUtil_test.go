package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dest := filepath.Join(dir, "dest.txt")
	require.NoError(t, os.WriteFile(src, []byte("reference"), 0o644))

	require.NoError(t, CopyFile(src, dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "reference", string(data))

	assert.Error(t, CopyFile(filepath.Join(dir, "missing"), dest))
}

func TestIsSamePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	same, err := IsSamePath(filepath.Join(dir, "a"), filepath.Join(dir, "b", "..", "a"))
	require.NoError(t, err)
	assert.True(t, same)

	same, err = IsSamePath(filepath.Join(dir, "a"), filepath.Join(dir, "b"))
	require.NoError(t, err)
	assert.False(t, same)
}

func TestPathExistAndIsDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	exist, err := PathExist(file)
	require.NoError(t, err)
	assert.True(t, exist)

	exist, err = PathExist(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, exist)

	isDir, err := IsDir(dir)
	require.NoError(t, err)
	assert.True(t, isDir)

	isDir, err = IsDir(file)
	require.NoError(t, err)
	assert.False(t, isDir)

	_, err = IsDir(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
