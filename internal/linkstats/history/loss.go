package history

// SeqBaseline is the last sequence seen for one (interface, stream) pair.
type SeqBaseline struct {
	last uint32
	ok   bool
}

// Observe returns how many sequences were skipped since the previous one.
// The baseline moves to seq unconditionally, so a late packet never counts as loss.
func (b *SeqBaseline) Observe(seq uint32) uint32 {
	var lost uint32
	if b.ok && seq > b.last {
		lost = seq - b.last - 1
	}
	b.last = seq
	b.ok = true
	return lost
}

// RollingBaseline is the 8 bit rolling counter of the short header on one interface.
type RollingBaseline struct {
	last uint8
	ok   bool
}

// Observe compares modulo 256: a difference above one counts the missing indexes.
func (b *RollingBaseline) Observe(index uint8) uint32 {
	var lost uint32
	if b.ok {
		diff := index - b.last
		if diff > 1 {
			lost = uint32(diff) - 1
		}
	}
	b.last = index
	b.ok = true
	return lost
}
