package video

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func writeFrame(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	if filepath.Ext(path) == ".bmp" {
		require.NoError(t, bmp.Encode(f, img))
		return
	}
	require.NoError(t, png.Encode(f, img))
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, filepath.Join(dir, "frame-10.png"), 4, 4)
	writeFrame(t, filepath.Join(dir, "frame-2.png"), 4, 4)
	writeFrame(t, filepath.Join(dir, "7.bmp"), 4, 4)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cover.png"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "frame-1.png"), 0o755))

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, []int{2, 7, 10}, []int{files[0].Frame, files[1].Frame, files[2].Frame})

	_, err = ListImageFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestDirectorySource(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, filepath.Join(dir, "frame-0.png"), 8, 6)
	writeFrame(t, filepath.Join(dir, "frame-1.bmp"), 8, 6)
	writeFrame(t, filepath.Join(dir, "frame-2.png"), 8, 6)

	src, err := OpenDirectory(dir, 10)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, 3, src.FrameCount())
	assert.Equal(t, 10.0, src.FPS())

	ctx := context.Background()
	f, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Index)
	assert.Equal(t, 8, f.Width)
	assert.Equal(t, 6, f.Height)
	require.NotNil(t, f.Image)

	var s Skipper = src
	require.NoError(t, s.Skip(ctx))

	f, err = src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Index)
	assert.Equal(t, src.start.Add(offset(2, 10)), f.Timestamp)

	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.ErrorIs(t, src.Skip(ctx), io.EOF)
}

func TestDirectoryCorruptFrame(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame-0.png"), []byte("not a png"), 0o644))
	writeFrame(t, filepath.Join(dir, "frame-1.png"), 2, 2)

	src, err := OpenDirectory(dir, 0)
	require.NoError(t, err)
	assert.Equal(t, float64(DefaultDirectoryFPS), src.FPS())

	_, err = src.Read(context.Background())
	assert.Error(t, err)

	f, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.Index)
}
