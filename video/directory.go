package video

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
)

// DefaultDirectoryFPS is the frame rate assumed for image directories.
const DefaultDirectoryFPS = 30

// ImageFile is one frame image on disk.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the frame number parsed from the file name.
	Frame int
}

// ListImageFiles lists the frame images in dir ordered by frame number. Files
// are named frame-<n>.<ext> or <n>.<ext> with ext one of jpg, jpeg, png or bmp.
// Other files are ignored.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []ImageFile: The frame images.
//   - error: Error if the directory cannot be read.
func ListImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %s", dir)
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		switch strings.ToLower(ext) {
		case ".jpg", ".jpeg", ".png", ".bmp":
		default:
			continue
		}
		frame, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSuffix(name, ext), "frame-"))
		if err != nil {
			continue
		}
		files = append(files, ImageFile{Path: filepath.Join(dir, name), Frame: frame})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Frame < files[j].Frame
	})
	return files, nil
}

// Directory is a Source reading frame images from a directory. Images are
// decoded on Read; Skip only advances.
type Directory struct {
	files []ImageFile
	rate  float64
	start time.Time
	next  int
}

// OpenDirectory opens a directory of frame images played back at rate frames
// per second. A non-positive rate uses DefaultDirectoryFPS.
func OpenDirectory(dir string, rate float64) (*Directory, error) {
	files, err := ListImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if rate <= 0 {
		rate = DefaultDirectoryFPS
	}
	return &Directory{files: files, rate: rate, start: time.Now()}, nil
}

// Read decodes the next image.
func (d *Directory) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if d.next >= len(d.files) {
		return Frame{}, io.EOF
	}
	index := d.next
	d.next++

	file := d.files[index]
	img, err := decode(file.Path)
	if err != nil {
		return Frame{Index: index}, err
	}
	b := img.Bounds()
	return Frame{
		Index:     index,
		Image:     img,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Timestamp: d.start.Add(offset(index, d.rate)),
	}, nil
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %s", path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error decoding %s", path)
	}
	return img, nil
}

// Skip advances past the next image without decoding it.
func (d *Directory) Skip(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.next >= len(d.files) {
		return io.EOF
	}
	d.next++
	return nil
}

// FrameCount returns the number of images.
func (d *Directory) FrameCount() int { return len(d.files) }

// FPS returns the playback rate.
func (d *Directory) FPS() float64 { return d.rate }

// Close is a no-op.
func (d *Directory) Close() error { return nil }
