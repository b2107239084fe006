package messages

// EventKind is the kind of a radio event received on the tap.
type EventKind string

const (
	// RX is a packet received on an interface
	RX EventKind = "RX"

	// TX is a packet transmitted on an interface and link
	TX EventKind = "TX"

	// LinkRTT is a ping style round trip measured on a link
	LinkRTT EventKind = "LRTT"

	// CommandRTT is a command/response round trip
	CommandRTT EventKind = "CRTT"

	// TxInterface announces which interface a link transmits on
	TxInterface EventKind = "TXIF"

	// Frequency announces the current frequency of an interface
	Frequency EventKind = "FREQ"

	// VideoBlocks reports video block decoding results
	VideoBlocks EventKind = "VBLK"

	// Retransmission reports retransmission requests sent
	Retransmission EventKind = "RETR"

	// ResetPeer drops the rx history of the peer in Value, e.g. on disconnect
	ResetPeer EventKind = "RSTP"

	// ResetOtherPeers keeps only the rx history of the peer in Value, e.g. after a peer switch
	ResetOtherPeers EventKind = "RSTX"

	// Pairing starts a new pairing session, forgetting every peer
	Pairing EventKind = "PAIR"
)

// RadioEvent is one datagram of the event tap, written by the process owning the radios.
type RadioEvent struct {
	Kind EventKind

	// Interface is the radio interface index
	Interface int

	// Link is the radio link index (TX, LRTT, TXIF)
	Link int

	// Stream is the stream index (TX, RETR)
	Stream int

	// Short selects the short header variant for RX
	Short bool

	// CRCOk is false when the radio reported a checksum failure
	CRCOk bool

	// SignalDBM and DataRateBps are optional readings taken with the packet, 0 when absent
	SignalDBM   int
	DataRateBps int

	// Video tells which bucket the reading belongs to
	Video bool

	// Value carries the scalar of non packet events: delay ms, frequency kHz, counts, peer id
	Value uint32

	// Clean, Reconstructed and MaxECUsed carry VBLK results
	Clean         uint32
	Reconstructed uint32
	MaxECUsed     uint32

	// Length is the transmitted size for TX events
	Length int

	// Data is the raw packet for RX events
	Data []byte
}

// ControllerLinkSummary is the compact link health summary sent back over the link.
type ControllerLinkSummary struct {
	// TakenAtMs is the engine time the summary was built at
	TakenAtMs uint32

	// InterfaceQuality holds per interface quality percent, newest slice first
	InterfaceQuality [][]uint8

	// StreamQuality holds per stream quality percent, newest slice first
	StreamQuality [][]uint8

	VideoBlocksClean         []uint16
	VideoBlocksReconstructed []uint16
	VideoMaxECUsed           []uint8
	RetransmissionRequests   []uint16
}
