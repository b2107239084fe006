package engine

import (
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/limits"
)

// Counters are the byte and packet totals of an interface, link or stream.
// Totals only go back to zero on Reset; the Tmp fields are folded into the
// per second rates and zeroed on every rate computation.
type Counters struct {
	RxBytes   uint64
	RxPackets uint64
	TxBytes   uint64
	TxPackets uint64

	TmpRxBytes   uint64
	TmpRxPackets uint64
	TmpTxBytes   uint64
	TmpTxPackets uint64

	RxBytesPerSec   uint64
	RxPacketsPerSec uint64
	TxBytesPerSec   uint64
	TxPacketsPerSec uint64
}

func (c *Counters) addRx(bytes int) {
	c.RxBytes += uint64(bytes)
	c.RxPackets++
	c.TmpRxBytes += uint64(bytes)
	c.TmpRxPackets++
}

func (c *Counters) addTx(bytes int) {
	c.TxBytes += uint64(bytes)
	c.TxPackets++
	c.TmpTxBytes += uint64(bytes)
	c.TmpTxPackets++
}

// computeRates replaces the rates with the instantaneous ones, no smoothing.
// elapsedMs is the measured time since the previous tick of the cadence, so a
// late tick does not inflate the rate; it equals the interval when ticks are on time.
func (c *Counters) computeRates(elapsedMs uint32) {
	c.RxBytesPerSec = perSecond(c.TmpRxBytes, elapsedMs)
	c.RxPacketsPerSec = perSecond(c.TmpRxPackets, elapsedMs)
	c.TxBytesPerSec = perSecond(c.TmpTxBytes, elapsedMs)
	c.TxPacketsPerSec = perSecond(c.TmpTxPackets, elapsedMs)
	c.clearTmp()
}

// computeSmoothedRates moves the rates half way toward the instantaneous ones.
func (c *Counters) computeSmoothedRates(elapsedMs uint32) {
	c.RxBytesPerSec = c.RxBytesPerSec/2 + perSecond(c.TmpRxBytes, elapsedMs)/2
	c.RxPacketsPerSec = c.RxPacketsPerSec/2 + perSecond(c.TmpRxPackets, elapsedMs)/2
	c.TxBytesPerSec = c.TxBytesPerSec/2 + perSecond(c.TmpTxBytes, elapsedMs)/2
	c.TxPacketsPerSec = c.TxPacketsPerSec/2 + perSecond(c.TmpTxPackets, elapsedMs)/2
	c.clearTmp()
}

func (c *Counters) clearTmp() {
	c.TmpRxBytes = 0
	c.TmpRxPackets = 0
	c.TmpTxBytes = 0
	c.TmpTxPackets = 0
}

func perSecond(count uint64, elapsedMs uint32) uint64 {
	if elapsedMs == 0 {
		return 0
	}
	return count * 1000 / uint64(elapsedMs)
}

// GraphSlices is the time bucketed history of an interface, slot 0 is the newest slice.
type GraphSlices struct {
	Received [limits.MaxGraphSlices]uint16
	Bad      [limits.MaxGraphSlices]uint16
	Lost     [limits.MaxGraphSlices]uint16
	MaxGapMs [limits.MaxGraphSlices]uint16
}

// sliceAccumulator collects the slice that is currently open.
type sliceAccumulator struct {
	received uint32
	bad      uint32
	lost     uint32
	maxGapMs uint32
}

// push shifts every array one slot toward the oldest end and writes acc into slot 0.
func (s *GraphSlices) push(acc sliceAccumulator) {
	shift(s.Received[:], clampSlice(acc.received))
	shift(s.Bad[:], clampSlice(acc.bad))
	shift(s.Lost[:], clampSlice(acc.lost))
	shift(s.MaxGapMs[:], clampSlice(acc.maxGapMs))
}

func shift[T any](values []T, newest T) {
	copy(values[1:], values[:len(values)-1])
	values[0] = newest
}

func clampSlice(v uint32) uint16 {
	if v > limits.SliceValueMax {
		return limits.SliceValueMax
	}
	return uint16(v)
}

// RadioInterface is one physical radio.
type RadioInterface struct {
	Index int

	// Link is the owning radio link or limits.Unassigned
	Link int

	USBPort      string
	FrequencyKhz uint32

	LastSignalDBM      int
	LastSignalVideoDBM int
	LastSignalDataDBM  int
	DataRateBps        int
	VideoDataRateBps   int
	DataDataRateBps    int

	LastPacketMs uint32

	Counters

	BadPackets  uint64
	LostPackets uint64

	// QualityPercent is the share of recent packets neither lost nor corrupted
	QualityPercent int

	// RelativeQuality is a signed ranking score used to pick the TX interface
	RelativeQuality int

	Slices GraphSlices

	tmpSlice sliceAccumulator
}

func (r *RadioInterface) reset(index int) {
	*r = RadioInterface{
		Index: index,
		Link:  limits.Unassigned,
	}
}

// RadioLink is a logical group of interfaces used together.
type RadioLink struct {
	Index int

	Counters

	// Streams holds the per stream counters on this link
	Streams [limits.MaxStreams]Counters

	// TxInterface is the interface last used for transmitting on this link
	TxInterface int

	// BestTxInterface is the interface with the highest relative quality at the last stats tick
	BestTxInterface int

	RTTMs           float64
	RTTStdDevMs     float64
	MinRTTMs        float64
	MinRTTUpdatedMs uint32
	HasRTT          bool
	LastRTTSampleMs uint32

	// RTTP50Ms and RTTP95Ms are estimated over every sample since Reset
	RTTP50Ms float64
	RTTP95Ms float64
}

func (l *RadioLink) reset(index int) {
	*l = RadioLink{
		Index:           index,
		TxInterface:     limits.Unassigned,
		BestTxInterface: limits.Unassigned,
	}
}

// RadioStream is a logical channel, counted across every link.
type RadioStream struct {
	Index int

	Counters

	DuplicatePackets uint64

	// LostPackets are sequences skipped by the stream maximum, RecoveredPackets
	// the ones that later arrived out of order
	LostPackets      uint64
	RecoveredPackets uint64
}

func (s *RadioStream) reset(index int) {
	*s = RadioStream{Index: index}
}
