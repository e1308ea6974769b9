// Package gocvio - OpenCV backed frame sources and display sinks.
package gocvio

import (
	"context"
	"image"
	"io"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-overlay/pipeline"
)

// keyEscape closes the window loop.
const keyEscape = 27

// Capture reads frames from a camera index, device path, video file or stream URL.
type Capture struct {
	name string
	cap  *gocv.VideoCapture
	mat  gocv.Mat
	once sync.Once
}

// OpenCapture opens device. A bare integer is treated as a camera index.
func OpenCapture(device string) (*Capture, error) {
	var id interface{} = device
	if n, err := strconv.Atoi(device); err == nil {
		id = n
	}
	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, errors.Wrapf(err, "open capture %s", device)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, errors.Errorf("capture %s is not opened", device)
	}
	return &Capture{name: device, cap: vc, mat: gocv.NewMat()}, nil
}

// Read grabs the next frame. Empty frames are skipped; a failed read ends the stream.
func (c *Capture) Read(ctx context.Context) (image.Image, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ok := c.cap.Read(&c.mat); !ok {
			return nil, io.EOF
		}
		if c.mat.Empty() {
			continue
		}
		img, err := c.mat.ToImage()
		if err != nil {
			return nil, errors.Wrap(err, "convert frame")
		}
		return img, nil
	}
}

// Name returns the device the capture was opened with.
func (c *Capture) Name() string {
	return c.name
}

// Close releases the device.
func (c *Capture) Close() error {
	var err error
	c.once.Do(func() {
		_ = c.mat.Close()
		err = c.cap.Close()
	})
	return err
}

// Window shows frames in a HighGUI window.
type Window struct {
	win  *gocv.Window
	once sync.Once
}

// NewWindow opens a window with the given title.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Show displays frame and polls the keyboard. Escape or closing the window returns
// pipeline.ErrStop.
func (w *Window) Show(title string, frame image.Image) error {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return errors.Wrap(err, "convert overlay")
	}
	defer mat.Close()

	w.win.SetWindowTitle(title)
	w.win.IMShow(mat)
	if w.win.WaitKey(1) == keyEscape || !w.win.IsOpen() {
		return pipeline.ErrStop
	}
	return nil
}

// Close destroys the window.
func (w *Window) Close() error {
	var err error
	w.once.Do(func() {
		err = w.win.Close()
	})
	return err
}
