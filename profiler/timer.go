// Package profiler - Inference timing and frame rate counters for the capture loop.
package profiler

import (
	"time"
)

// TimeTracker tracks operation timing statistics.
//
// It is owned by a single loop and is not safe for concurrent use.
type TimeTracker struct {
	name      string
	lastTime  time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
	now       func() time.Time
}

// Stats is a snapshot of a TimeTracker.
type Stats struct {
	Name    string        `json:"name"`
	Count   int64         `json:"count"`
	Last    time.Duration `json:"last"`
	Total   time.Duration `json:"total"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Average time.Duration `json:"average"`
}

// NewTimeTracker creates a tracker for the named operation.
func NewTimeTracker(name string) *TimeTracker {
	return &TimeTracker{name: name, now: time.Now}
}

// StartOperation begins timing an operation.
//
// Returns:
// - A function to call when the operation completes; it returns the measured duration.
func (t *TimeTracker) StartOperation() func() time.Duration {
	start := t.now()
	return func() time.Duration {
		d := t.now().Sub(start)
		t.Record(d)
		return d
	}
}

// Time runs fn and records how long it took.
func (t *TimeTracker) Time(fn func() error) (time.Duration, error) {
	stop := t.StartOperation()
	err := fn()
	return stop(), err
}

// Record adds one measured duration.
func (t *TimeTracker) Record(d time.Duration) {
	if t.count == 0 || d < t.minTime {
		t.minTime = d
	}
	if d > t.maxTime {
		t.maxTime = d
	}
	t.lastTime = d
	t.totalTime += d
	t.count++
}

// Last returns the most recent duration.
func (t *TimeTracker) Last() time.Duration {
	return t.lastTime
}

// Stats returns a snapshot of the counters.
func (t *TimeTracker) Stats() Stats {
	s := Stats{
		Name:  t.name,
		Count: t.count,
		Last:  t.lastTime,
		Total: t.totalTime,
		Min:   t.minTime,
		Max:   t.maxTime,
	}
	if t.count > 0 {
		s.Average = t.totalTime / time.Duration(t.count)
	}
	return s
}
