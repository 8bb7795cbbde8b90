// Package capture - OpenCV backed video sources for files, devices and
// network streams.
package capture

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nvr-ai/beachwatch/video"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrUnavailable is returned when a source cannot be opened.
var ErrUnavailable = errors.New("video source unavailable")

// Capture reads frames from a gocv.VideoCapture.
type Capture struct {
	locator string
	vc      *gocv.VideoCapture
	mat     gocv.Mat

	live   bool
	start  time.Time
	frames int
	fps    float64
	next   int
}

var (
	_ video.Source  = (*Capture)(nil)
	_ video.Skipper = (*Capture)(nil)
	_ video.Opener  = OpenSource
)

// parseLocator returns a device index for purely numeric locators and the
// locator itself otherwise.
func parseLocator(locator string) (device interface{}, file bool) {
	if id, err := strconv.Atoi(locator); err == nil {
		return id, false
	}
	if strings.Contains(locator, "://") {
		return locator, false
	}
	return locator, true
}

// Open opens a video file, a camera device index or a stream URL.
//
// Arguments:
//   - locator: A file path, a device index such as "0" or an rtsp:// URL.
//
// Returns:
//   - *Capture: The opened source. The caller must Close it.
//   - error: ErrUnavailable wrapped with the cause if the source cannot be opened.
func Open(locator string) (*Capture, error) {
	device, file := parseLocator(locator)
	if file {
		if _, err := os.Stat(locator); err != nil {
			return nil, errors.Wrapf(ErrUnavailable, "%s: %v", locator, err)
		}
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "%s: %v", locator, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Wrapf(ErrUnavailable, "%s: capture not opened", locator)
	}

	frames := int(vc.Get(gocv.VideoCaptureFrameCount))
	if frames < 0 {
		frames = 0
	}
	return &Capture{
		locator: locator,
		vc:      vc,
		mat:     gocv.NewMat(),
		live:    !file,
		start:   time.Now(),
		frames:  frames,
		fps:     vc.Get(gocv.VideoCaptureFPS),
	}, nil
}

// OpenSource adapts Open to video.Opener. A locator naming a directory is
// opened as a sequence of frame images.
func OpenSource(locator string) (video.Source, error) {
	if info, err := os.Stat(locator); err == nil && info.IsDir() {
		d, err := video.OpenDirectory(locator, 0)
		if err != nil {
			return nil, errors.Wrapf(ErrUnavailable, "%s: %v", locator, err)
		}
		return d, nil
	}
	c, err := Open(locator)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Read decodes the next frame. Stored video is stamped with the capture start
// plus the stream position; live sources are stamped with the wall clock.
func (c *Capture) Read(ctx context.Context) (video.Frame, error) {
	if err := ctx.Err(); err != nil {
		return video.Frame{}, err
	}
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return video.Frame{}, io.EOF
	}

	img, err := c.mat.ToImage()
	if err != nil {
		c.next++
		return video.Frame{}, errors.Wrapf(err, "error converting frame %d of %s", c.next-1, c.locator)
	}

	f := video.Frame{
		Index:     c.next,
		Image:     img,
		Width:     c.mat.Cols(),
		Height:    c.mat.Rows(),
		Timestamp: c.timestamp(),
	}
	c.next++
	return f, nil
}

// Skip grabs the next frame without decoding it.
func (c *Capture) Skip(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.frames > 0 && c.next >= c.frames {
		return io.EOF
	}
	c.vc.Grab(1)
	c.next++
	return nil
}

func (c *Capture) timestamp() time.Time {
	if c.live {
		return time.Now()
	}
	ms := c.vc.Get(gocv.VideoCapturePosMsec)
	return c.start.Add(time.Duration(ms * float64(time.Millisecond)))
}

// FrameCount returns the container's frame count, or 0 for live sources.
func (c *Capture) FrameCount() int {
	if c.live {
		return 0
	}
	return c.frames
}

// FPS returns the nominal frame rate reported by the container or device.
func (c *Capture) FPS() float64 { return c.fps }

// Locator returns the locator the capture was opened with.
func (c *Capture) Locator() string { return c.locator }

// Close releases the capture and its frame buffer.
func (c *Capture) Close() error {
	if err := c.mat.Close(); err != nil {
		c.vc.Close()
		return errors.Wrap(err, "error closing frame buffer")
	}
	return errors.Wrapf(c.vc.Close(), "error closing %s", c.locator)
}
