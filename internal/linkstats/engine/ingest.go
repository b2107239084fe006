package engine

import (
	"errors"
	"fmt"
	"log"

	"github.com/mh-dx/fpv-linkstats/internal/linkstats/history"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/limits"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/packet"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/radioinfo"
)

// Verdict is the outcome of ingesting one received packet.
type Verdict int

const (
	// VerdictNone is returned together with an error when nothing was decided
	VerdictNone Verdict = iota

	// VerdictNew is the first arrival of a packet
	VerdictNew

	// VerdictDuplicate is a copy already received, typically over another interface
	VerdictDuplicate

	// VerdictUntracked is a packet of a peer that did not fit in the peer table;
	// it is counted but neither deduplicated nor loss tracked
	VerdictUntracked

	// VerdictCorrupted is a packet with a failed CRC or no usable header; it is
	// only counted as bad on its interface
	VerdictCorrupted
)

func (v Verdict) String() string {
	switch v {
	case VerdictNew:
		return "new"
	case VerdictDuplicate:
		return "duplicate"
	case VerdictUntracked:
		return "untracked"
	case VerdictCorrupted:
		return "corrupted"
	default:
		return "none"
	}
}

// IngestFullPacket processes a packet with the full 32 bit header received on an interface.
func (e *Engine) IngestFullPacket(iface int, data []byte, crcOK bool, nowMs uint32) (Verdict, error) {
	return e.ingest(packet.Full, iface, data, crcOK, nowMs)
}

// IngestShortPacket processes a packet with the short 8 bit header received on an interface.
func (e *Engine) IngestShortPacket(iface int, data []byte, crcOK bool, nowMs uint32) (Verdict, error) {
	return e.ingest(packet.Short, iface, data, crcOK, nowMs)
}

// ingest runs the whole receive path.
//
// Invalid interface, missing radio info and an uninitialized engine fail
// without touching any state. Every other packet updates the interface
// bookkeeping first. A packet on an interface without a link returns
// ErrUnassignedLink and stops there. A peer that does not fit the peer table
// returns VerdictUntracked with ErrPeerTableFull after the aggregates were
// updated.
func (e *Engine) ingest(variant packet.Variant, iface int, data []byte, crcOK bool, nowMs uint32) (Verdict, error) {
	if err := e.checkInterface(iface); err != nil {
		if errors.Is(err, ErrUninitialized) {
			log.Printf("ingest on uninitialized stats engine\n")
		} else {
			e.warnf("ingest %s packet: %s\n", variant, err)
		}
		return VerdictNone, err
	}
	info, ok := e.provider.Interface(iface)
	if !ok {
		e.warnf("ingest %s packet on interface %d: %s\n", variant, iface, ErrMissingRadioInfo)
		return VerdictNone, fmt.Errorf("%w: %d", ErrMissingRadioInfo, iface)
	}

	header, decodeErr := packet.Decode(variant, data, limits.MaxStreams)
	radio := &e.interfaces[iface]
	e.recordArrival(radio, info, header, len(data), nowMs)

	if !crcOK || len(data) <= 0 || decodeErr != nil {
		radio.BadPackets++
		radio.tmpSlice.bad++
		return VerdictCorrupted, nil
	}

	link := radio.Link
	if link == limits.Unassigned {
		e.warnf("%s packet on interface %d: %s\n", variant, iface, ErrUnassignedLink)
		return VerdictNone, fmt.Errorf("%w: interface %d", ErrUnassignedLink, iface)
	}

	peer, err := e.peers.LookupOrCreate(header.PeerID)
	if err != nil {
		e.warnf("peer %d on interface %d: %s\n", header.PeerID, iface, ErrPeerTableFull)
		e.countStream(header.StreamID, len(data))
		e.countLink(link, header.StreamID, len(data))
		return VerdictUntracked, fmt.Errorf("%w: %d", ErrPeerTableFull, header.PeerID)
	}
	peer.LastPacketMs = nowMs

	e.estimateLoss(radio, peer, header)
	return e.deduplicate(peer, link, header, len(data), nowMs), nil
}

// recordArrival updates everything that changes on an interface regardless of
// what the packet turns out to be.
func (e *Engine) recordArrival(radio *RadioInterface, info radioinfo.Info, header packet.Header, length int, nowMs uint32) {
	if radio.RxPackets > 0 {
		gap := uint32(0)
		if nowMs >= radio.LastPacketMs {
			gap = nowMs - radio.LastPacketMs
		}
		if gap > radio.tmpSlice.maxGapMs {
			radio.tmpSlice.maxGapMs = gap
		}
	}
	e.lastPacketMs = nowMs
	radio.LastPacketMs = nowMs
	radio.addRx(length)
	radio.tmpSlice.received++

	radio.Link = e.validLink(info.Link)
	radio.USBPort = info.USBPort
	radio.LastSignalDBM = info.SignalDBM
	radio.DataRateBps = info.DataRateBps
	if header.IsVideo() {
		radio.LastSignalVideoDBM = info.SignalDBM
		radio.VideoDataRateBps = info.VideoDataRateBps
	} else {
		radio.LastSignalDataDBM = info.SignalDBM
		radio.DataDataRateBps = info.DataDataRateBps
	}
}

// estimateLoss counts sequence gaps of this interface. Full headers compare
// per (interface, stream), short headers the 8 bit rolling index per interface.
func (e *Engine) estimateLoss(radio *RadioInterface, peer *history.PeerHistory, header packet.Header) {
	var lost uint32
	if header.Variant == packet.Short {
		lost = peer.Rolling(radio.Index).Observe(header.ShortIndex)
	} else {
		lost = peer.Baseline(radio.Index, header.StreamID).Observe(header.Sequence)
	}
	radio.LostPackets += uint64(lost)
	radio.tmpSlice.lost += lost
}

// deduplicate decides New or Duplicate on the stream level and, independently,
// on the (link, stream) level, updating the aggregates each level owns.
func (e *Engine) deduplicate(peer *history.PeerHistory, link int, header packet.Header, length int, nowMs uint32) Verdict {
	stream := header.StreamID

	global := peer.Stream(stream).Check(header.Sequence, header.Width, nowMs)
	onLink := peer.LinkStream(link, stream).Check(header.Sequence, header.Width, nowMs)

	if onLink.Verdict == history.New {
		e.countLink(link, stream, length)
	}

	if global.Verdict == history.Duplicate {
		e.streams[stream].DuplicatePackets++
		return VerdictDuplicate
	}

	s := &e.streams[stream]
	s.addRx(length)
	s.LostPackets += uint64(global.Gap)
	e.controller.observeStream(stream, 1, global.Gap)
	// a late arrival only recovers a sequence that was counted as lost
	if global.Late && s.RecoveredPackets < s.LostPackets {
		s.RecoveredPackets++
		e.controller.recoverStream(stream)
	}
	return VerdictNew
}

func (e *Engine) countStream(stream int, length int) {
	e.streams[stream].addRx(length)
	e.controller.observeStream(stream, 1, 0)
}

func (e *Engine) countLink(link int, stream int, length int) {
	e.links[link].addRx(length)
	e.links[link].Streams[stream].addRx(length)
}
