// Package limits holds the fixed capacities every linkstats table is sized by.
// They are compile time maxima, not dynamic limits: the engine is meant to run
// with a known memory budget on the radio host.
package limits

const (
	// MaxInterfaces is the number of physical radio interfaces tracked.
	MaxInterfaces = 6

	// MaxLinks is the number of logical radio links.
	MaxLinks = 3

	// MaxStreams is the number of multiplexed streams, bounded by the 4 bit stream id.
	MaxStreams = 16

	// MaxPeers is the number of remote peers tracked concurrently for dedup and loss.
	MaxPeers = 5

	// MaxGraphSlices is the depth of the per interface graph history.
	MaxGraphSlices = 80

	// RTTHistory is the depth of every round trip sample window.
	RTTHistory = 10

	// StreamRxHistory is the depth of every (sequence, arrival) circular buffer.
	StreamRxHistory = 64

	// ControllerHistorySlices is the depth of the coarse controller link history.
	ControllerHistorySlices = 30

	// FreshnessHorizonMs is the age after which a history entry no longer counts for dedup.
	FreshnessHorizonMs = 1000

	// SliceValueMax is the sentinel every graph slice value is clamped to.
	SliceValueMax = 0xFFFF
)

// Unassigned marks an interface without an owning radio link.
const Unassigned = -1
