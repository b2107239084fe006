package rtt

import (
	"gonum.org/v1/gonum/stat"
	"gopkg.in/eapache/queue.v1"
)

// SlidingWindow keeps the last windowSize samples; adding to a full window drops the oldest.
type SlidingWindow struct {
	windowSize int
	data       *queue.Queue
}

// NewSlidingWindow creates a new SlidingWindow with a given size.
func NewSlidingWindow(size int) *SlidingWindow {
	return &SlidingWindow{
		windowSize: size,
		data:       queue.New(),
	}
}

// Add appends a sample at the newest end, sliding the window if necessary.
func (h *SlidingWindow) Add(value float64) {
	if h.data.Length() >= h.windowSize {
		h.data.Remove()
	}
	h.data.Add(value)
}

// Len is the number of samples currently held.
func (h *SlidingWindow) Len() int {
	return h.data.Length()
}

// Mean calculates the mean of the samples held, not of the full window size.
func (h *SlidingWindow) Mean() float64 {
	if h.data.Length() == 0 {
		return 0
	}
	return stat.Mean(h.Values(), nil)
}

// StdDev calculates the standard deviation of the data in the window.
func (h *SlidingWindow) StdDev() float64 {
	if h.data.Length() < 2 {
		return 0
	}
	return stat.StdDev(h.Values(), nil)
}

// Min returns the smallest sample in the window.
func (h *SlidingWindow) Min() float64 {
	min := float64(0)
	for i := 0; i < h.data.Length(); i++ {
		value := h.data.Get(i).(float64)
		if i == 0 || value < min {
			min = value
		}
	}
	return min
}

// Values copies the window, oldest first.
func (h *SlidingWindow) Values() []float64 {
	data := make([]float64, h.data.Length())
	for i := 0; i < h.data.Length(); i++ {
		data[i] = h.data.Get(i).(float64)
	}
	return data
}

// Reset drops every sample.
func (h *SlidingWindow) Reset() {
	h.data = queue.New()
}
