package engine

import (
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/limits"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/messages"
)

const noQuality = 0xFF

// ControllerLinkHistory is the coarse long horizon history rebroadcast over
// the link. Every array holds the newest slice in slot 0.
type ControllerLinkHistory struct {
	InterfaceQuality [limits.MaxInterfaces][limits.ControllerHistorySlices]uint8
	StreamQuality    [limits.MaxStreams][limits.ControllerHistorySlices]uint8

	VideoBlocksClean         [limits.ControllerHistorySlices]uint16
	VideoBlocksReconstructed [limits.ControllerHistorySlices]uint16
	VideoMaxECUsed           [limits.ControllerHistorySlices]uint8
	RetransmissionRequests   [limits.ControllerHistorySlices]uint16

	LastUpdateMs uint32

	tmpInterfaceQuality [limits.MaxInterfaces]uint8
	tmpStreamReceived   [limits.MaxStreams]uint32
	tmpStreamLost       [limits.MaxStreams]uint32
	tmpBlocksClean      uint32
	tmpBlocksRecon      uint32
	tmpMaxECUsed        uint32
	tmpRetransmissions  uint32
}

func (c *ControllerLinkHistory) reset() {
	*c = ControllerLinkHistory{}
	c.clearTmp()
}

func (c *ControllerLinkHistory) clearTmp() {
	for i := range c.tmpInterfaceQuality {
		c.tmpInterfaceQuality[i] = noQuality
	}
	c.tmpStreamReceived = [limits.MaxStreams]uint32{}
	c.tmpStreamLost = [limits.MaxStreams]uint32{}
	c.tmpBlocksClean = 0
	c.tmpBlocksRecon = 0
	c.tmpMaxECUsed = 0
	c.tmpRetransmissions = 0
}

// observeInterfaceQuality keeps the worst quality seen during the period.
func (c *ControllerLinkHistory) observeInterfaceQuality(iface int, quality int) {
	q := uint8(clampInt(quality, 0, 100))
	if c.tmpInterfaceQuality[iface] == noQuality || q < c.tmpInterfaceQuality[iface] {
		c.tmpInterfaceQuality[iface] = q
	}
}

func (c *ControllerLinkHistory) observeStream(stream int, received uint32, lost uint32) {
	c.tmpStreamReceived[stream] += received
	c.tmpStreamLost[stream] += lost
}

// recoverStream takes back one loss when a skipped sequence arrives late.
func (c *ControllerLinkHistory) recoverStream(stream int) {
	if c.tmpStreamLost[stream] > 0 {
		c.tmpStreamLost[stream]--
	}
}

func (c *ControllerLinkHistory) addVideoBlocks(clean uint32, reconstructed uint32, maxECUsed uint32) {
	c.tmpBlocksClean += clean
	c.tmpBlocksRecon += reconstructed
	if maxECUsed > c.tmpMaxECUsed {
		c.tmpMaxECUsed = maxECUsed
	}
}

func (c *ControllerLinkHistory) addRetransmissions(count uint32) {
	c.tmpRetransmissions += count
}

// aggregate closes the period: shift every array and write the accumulators
// into slot 0. current supplies the latest quality of interfaces that were not
// scored during the period.
func (c *ControllerLinkHistory) aggregate(nowMs uint32, interfaces []RadioInterface) {
	for i := range c.InterfaceQuality {
		q := c.tmpInterfaceQuality[i]
		if q == noQuality {
			q = 0
			if i < len(interfaces) {
				q = uint8(clampInt(interfaces[i].QualityPercent, 0, 100))
			}
		}
		shift(c.InterfaceQuality[i][:], q)
	}
	for s := range c.StreamQuality {
		shift(c.StreamQuality[s][:], streamQuality(c.tmpStreamReceived[s], c.tmpStreamLost[s]))
	}
	shift(c.VideoBlocksClean[:], clampSlice(c.tmpBlocksClean))
	shift(c.VideoBlocksReconstructed[:], clampSlice(c.tmpBlocksRecon))
	shift(c.VideoMaxECUsed[:], uint8(min(c.tmpMaxECUsed, 0xFF)))
	shift(c.RetransmissionRequests[:], clampSlice(c.tmpRetransmissions))
	c.LastUpdateMs = nowMs
	c.clearTmp()
}

func streamQuality(received uint32, lost uint32) uint8 {
	if received == 0 {
		return 0
	}
	return uint8(uint64(received) * 100 / (uint64(received) + uint64(lost)))
}

// Summary builds the compact summary sent back over the link.
func (c *ControllerLinkHistory) Summary(interfaceCount int) messages.ControllerLinkSummary {
	summary := messages.ControllerLinkSummary{
		TakenAtMs:                c.LastUpdateMs,
		InterfaceQuality:         make([][]uint8, interfaceCount),
		StreamQuality:            make([][]uint8, limits.MaxStreams),
		VideoBlocksClean:         append([]uint16(nil), c.VideoBlocksClean[:]...),
		VideoBlocksReconstructed: append([]uint16(nil), c.VideoBlocksReconstructed[:]...),
		VideoMaxECUsed:           append([]uint8(nil), c.VideoMaxECUsed[:]...),
		RetransmissionRequests:   append([]uint16(nil), c.RetransmissionRequests[:]...),
	}
	for i := 0; i < interfaceCount; i++ {
		summary.InterfaceQuality[i] = append([]uint8(nil), c.InterfaceQuality[i][:]...)
	}
	for s := range c.StreamQuality {
		summary.StreamQuality[s] = append([]uint8(nil), c.StreamQuality[s][:]...)
	}
	return summary
}

func clampInt(v int, lo int, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
