package profiler

import (
	"time"
)

// Framerate computes frames per second, refreshed once per window.
type Framerate struct {
	window     time.Duration
	frames     int
	fps        float64
	windowFrom time.Time
	now        func() time.Time
}

// NewFramerate creates a counter that refreshes its value every second.
func NewFramerate() *Framerate {
	return newFramerate(time.Second, time.Now)
}

func newFramerate(window time.Duration, now func() time.Time) *Framerate {
	return &Framerate{window: window, now: now, windowFrom: now()}
}

// Tick records one completed frame and returns the current rate.
func (f *Framerate) Tick() float64 {
	f.frames++
	current := f.now()
	if elapsed := current.Sub(f.windowFrom); elapsed >= f.window {
		f.fps = float64(f.frames) / elapsed.Seconds()
		f.frames = 0
		f.windowFrom = current
	}
	return f.fps
}

// FPS returns the rate computed at the end of the last full window, zero before then.
func (f *Framerate) FPS() float64 {
	return f.fps
}
