package history

import "github.com/mh-dx/fpv-linkstats/internal/linkstats/limits"

// Verdict is the dedup decision for one received packet.
type Verdict int

const (
	New Verdict = iota
	Duplicate
)

func (v Verdict) String() string {
	if v == Duplicate {
		return "duplicate"
	}
	return "new"
}

// Outcome is the result of checking a sequence against a window.
type Outcome struct {
	Verdict Verdict
	// Gap is the number of sequences skipped when a New packet advanced the maximum.
	Gap uint32
	// Late is set when a New packet arrived below the maximum (out of order).
	Late bool
}

type entry struct {
	seq  uint32
	atMs uint32
	used bool
}

// SeqWindow is a fixed capacity circular buffer of recently accepted
// (sequence, arrival time) pairs plus the highest sequence accepted so far.
type SeqWindow struct {
	entries [limits.StreamRxHistory]entry
	next    int
	max     uint32
	maxAtMs uint32
	hasMax  bool
}

// Max returns the highest accepted sequence, if any.
func (w *SeqWindow) Max() (uint32, bool) {
	return w.max, w.hasMax
}

// Reset forgets every entry and the maximum.
func (w *SeqWindow) Reset() {
	*w = SeqWindow{}
}

// Check decides whether seq is new or a duplicate and records it when new.
// width is the sequence space in bits (32 or 8).
//
// A maximum older than the freshness horizon no longer anchors the window:
// after an outage or a sender restart the window restarts at seq, unless a
// 32 bit sequence still moves forward.
func (w *SeqWindow) Check(seq uint32, width uint8, nowMs uint32) Outcome {
	if !w.hasMax {
		w.insert(seq, width, nowMs)
		return Outcome{Verdict: New}
	}
	if nowMs-w.maxAtMs > limits.FreshnessHorizonMs && (width < 32 || !newer(seq, w.max, width)) {
		w.reseed(seq, nowMs)
		return Outcome{Verdict: New}
	}
	if seq == w.max {
		return Outcome{Verdict: Duplicate}
	}
	if newer(seq, w.max, width) {
		gap := distance(seq, w.max, width) - 1
		w.insert(seq, width, nowMs)
		return Outcome{Verdict: New, Gap: gap}
	}
	if w.contains(seq, nowMs) {
		return Outcome{Verdict: Duplicate}
	}
	w.insert(seq, width, nowMs)
	return Outcome{Verdict: New, Late: true}
}

func (w *SeqWindow) insert(seq uint32, width uint8, nowMs uint32) {
	w.entries[w.next] = entry{seq: seq, atMs: nowMs, used: true}
	w.next = (w.next + 1) % len(w.entries)
	if !w.hasMax || newer(seq, w.max, width) {
		w.max = seq
		w.maxAtMs = nowMs
		w.hasMax = true
	}
}

// reseed makes seq the new maximum regardless of its distance to the old one.
func (w *SeqWindow) reseed(seq uint32, nowMs uint32) {
	w.entries[w.next] = entry{seq: seq, atMs: nowMs, used: true}
	w.next = (w.next + 1) % len(w.entries)
	w.max = seq
	w.maxAtMs = nowMs
}

// contains scans from the most recently written slot toward older ones and
// stops at the first empty or expired slot.
func (w *SeqWindow) contains(seq uint32, nowMs uint32) bool {
	n := len(w.entries)
	for i := 0; i < n; i++ {
		slot := (w.next - 1 - i + n) % n
		e := &w.entries[slot]
		if !e.used || nowMs-e.atMs > limits.FreshnessHorizonMs {
			return false
		}
		if e.seq == seq {
			return true
		}
	}
	return false
}

// newer reports whether a is ahead of b in a sequence space of the given width.
// The 8 bit space uses serial number arithmetic so it survives wraparound.
func newer(a, b uint32, width uint8) bool {
	if width >= 32 {
		return a > b
	}
	d := distance(a, b, width)
	return d != 0 && d < 1<<(width-1)
}

func distance(a, b uint32, width uint8) uint32 {
	if width >= 32 {
		return a - b
	}
	return (a - b) & (1<<width - 1)
}
