package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// PrepareInput resizes img to size x size and writes it into dst as planar
// RGB floats in [0, 1], the layout YOLO models expect.
//
// Arguments:
//   - img: The image to prepare.
//   - size: The square model input size.
//   - dst: The destination buffer, at least 3*size*size floats.
//
// Returns:
//   - error: An error if the destination buffer is too small.
func PrepareInput(img image.Image, size int, dst []float32) error {
	channelSize := size * size
	if len(dst) < channelSize*3 {
		return errors.Errorf("destination tensor only holds %d floats, needs %d", len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	b := img.Bounds()
	if b.Dx() != size || b.Dy() != size {
		img = resize.Resize(uint(size), uint(size), img, resize.Bilinear)
		b = img.Bounds()
	}

	i := 0
	for y := b.Min.Y; y < b.Min.Y+size; y++ {
		for x := b.Min.X; x < b.Min.X+size; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(bl>>8) / 255.0
			i++
		}
	}
	return nil
}

// AnchorCount returns the number of YOLOv8 anchors for a square input size,
// the sum of the grid cells at strides 8, 16 and 32.
func AnchorCount(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		g := size / stride
		n += g * g
	}
	return n
}
