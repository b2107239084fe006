package rtt

import (
	"github.com/influxdata/tdigest"
)

const digestCompression = 100

// Tracker averages round trip samples over a fixed window. Link trackers also
// keep the lowest mean ever observed; command trackers do not.
type Tracker struct {
	window *SlidingWindow
	digest *tdigest.TDigest

	mean float64

	trackMin     bool
	min          float64
	hasMin       bool
	minUpdatedMs uint32
	lastSampleMs uint32
}

// NewLinkTracker creates a tracker for ping style link round trips.
func NewLinkTracker(size int) *Tracker {
	return newTracker(size, true)
}

// NewCommandTracker creates a tracker for command/response round trips.
func NewCommandTracker(size int) *Tracker {
	return newTracker(size, false)
}

func newTracker(size int, trackMin bool) *Tracker {
	return &Tracker{
		window:   NewSlidingWindow(size),
		digest:   tdigest.NewWithCompression(digestCompression),
		trackMin: trackMin,
	}
}

// SetSample drops the oldest sample, appends delayMs and recomputes the mean.
func (t *Tracker) SetSample(delayMs uint32, nowMs uint32) {
	t.window.Add(float64(delayMs))
	t.digest.Add(float64(delayMs), 1)
	t.mean = t.window.Mean()
	t.lastSampleMs = nowMs

	if t.trackMin && (!t.hasMin || t.mean < t.min) {
		t.min = t.mean
		t.hasMin = true
		t.minUpdatedMs = nowMs
	}
}

// Mean is the arithmetic mean of the window. Only filled samples count, so
// a window holding a single 40 ms sample has a mean of 40, not 40/size.
func (t *Tracker) Mean() float64 {
	return t.mean
}

// StdDev is the standard deviation of the window.
func (t *Tracker) StdDev() float64 {
	return t.window.StdDev()
}

// Min returns the lowest mean observed and when it was last lowered. It never increases until Reset.
func (t *Tracker) Min() (min float64, updatedMs uint32, ok bool) {
	return t.min, t.minUpdatedMs, t.hasMin
}

// Quantile estimates the q-quantile over every sample since the last Reset.
func (t *Tracker) Quantile(q float64) float64 {
	if t.window.Len() == 0 {
		return 0
	}
	return t.digest.Quantile(q)
}

// Samples returns the current window, oldest first.
func (t *Tracker) Samples() []float64 {
	return t.window.Values()
}

// LastSampleMs is the time of the latest sample.
func (t *Tracker) LastSampleMs() uint32 {
	return t.lastSampleMs
}

func (t *Tracker) Reset() {
	t.window.Reset()
	t.digest = tdigest.NewWithCompression(digestCompression)
	t.mean = 0
	t.min = 0
	t.hasMin = false
	t.minUpdatedMs = 0
	t.lastSampleMs = 0
}
