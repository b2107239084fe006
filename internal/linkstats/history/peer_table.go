package history

import (
	"errors"

	"github.com/mh-dx/fpv-linkstats/internal/linkstats/limits"
)

var ErrTableFull = errors.New("peer table full")

// PeerHistory holds everything needed to dedup and loss-count the packets of one remote peer.
// Dedup runs independently on the global stream level and on every (link, stream) pair.
type PeerHistory struct {
	PeerID       uint32
	LastPacketMs uint32

	streams  [limits.MaxStreams]SeqWindow
	links    [limits.MaxLinks][limits.MaxStreams]SeqWindow
	baseline [limits.MaxInterfaces][limits.MaxStreams]SeqBaseline
	rolling  [limits.MaxInterfaces]RollingBaseline
}

// Stream returns the global window of a stream.
func (p *PeerHistory) Stream(stream int) *SeqWindow {
	return &p.streams[stream]
}

// LinkStream returns the window of a stream on one radio link.
func (p *PeerHistory) LinkStream(link int, stream int) *SeqWindow {
	return &p.links[link][stream]
}

// Baseline returns the loss baseline of an (interface, stream) pair.
func (p *PeerHistory) Baseline(iface int, stream int) *SeqBaseline {
	return &p.baseline[iface][stream]
}

// Rolling returns the short header rolling counter of an interface.
func (p *PeerHistory) Rolling(iface int) *RollingBaseline {
	return &p.rolling[iface]
}

func (p *PeerHistory) reset(peerID uint32) {
	for s := range p.streams {
		p.streams[s].Reset()
	}
	for l := range p.links {
		for s := range p.links[l] {
			p.links[l][s].Reset()
		}
	}
	p.baseline = [limits.MaxInterfaces][limits.MaxStreams]SeqBaseline{}
	p.rolling = [limits.MaxInterfaces]RollingBaseline{}
	p.PeerID = peerID
	p.LastPacketMs = 0
}

// Table is the bounded per peer history table. Slots are preallocated; once
// every slot is taken unknown peers are not tracked until a slot is released.
type Table struct {
	peers [limits.MaxPeers]*PeerHistory
	used  [limits.MaxPeers]bool
}

func NewTable() *Table {
	t := &Table{}
	for i := range t.peers {
		t.peers[i] = &PeerHistory{}
	}
	return t
}

// Lookup returns the history of a tracked peer or nil.
func (t *Table) Lookup(peerID uint32) *PeerHistory {
	for i, p := range t.peers {
		if t.used[i] && p.PeerID == peerID {
			return p
		}
	}
	return nil
}

// LookupOrCreate returns the history of peerID, taking a free slot for an unknown peer.
func (t *Table) LookupOrCreate(peerID uint32) (*PeerHistory, error) {
	if p := t.Lookup(peerID); p != nil {
		return p, nil
	}
	for i, p := range t.peers {
		if !t.used[i] {
			p.reset(peerID)
			t.used[i] = true
			return p, nil
		}
	}
	return nil, ErrTableFull
}

// ResetPeer releases the slot of peerID.
func (t *Table) ResetPeer(peerID uint32) {
	for i, p := range t.peers {
		if t.used[i] && p.PeerID == peerID {
			p.reset(0)
			t.used[i] = false
		}
	}
}

// ResetAllExcept releases every slot except the one of peerID.
func (t *Table) ResetAllExcept(peerID uint32) {
	for i, p := range t.peers {
		if t.used[i] && p.PeerID != peerID {
			p.reset(0)
			t.used[i] = false
		}
	}
}

// Reset releases every slot.
func (t *Table) Reset() {
	for i, p := range t.peers {
		p.reset(0)
		t.used[i] = false
	}
}

// Count is the number of tracked peers.
func (t *Table) Count() int {
	n := 0
	for _, u := range t.used {
		if u {
			n++
		}
	}
	return n
}

// PeerIDs lists the tracked peers in slot order.
func (t *Table) PeerIDs() []uint32 {
	ids := make([]uint32, 0, limits.MaxPeers)
	for i, p := range t.peers {
		if t.used[i] {
			ids = append(ids, p.PeerID)
		}
	}
	return ids
}

// MaxReceivedSequence returns the highest sequence accepted for a stream of a peer, or 0.
func (t *Table) MaxReceivedSequence(peerID uint32, stream int) uint32 {
	p := t.Lookup(peerID)
	if p == nil || stream < 0 || stream >= limits.MaxStreams {
		return 0
	}
	highest, _ := p.streams[stream].Max()
	return highest
}
