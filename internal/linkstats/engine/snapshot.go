package engine

import (
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/limits"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/messages"
)

// Snapshot is an immutable copy of the engine tables. Version grows by one on
// every publish, so readers can tell a fresh snapshot from one already seen.
type Snapshot struct {
	Version      uint64
	SessionID    string
	TakenAtMs    uint32
	LastPacketMs uint32

	Interfaces []RadioInterface
	Links      []RadioLink
	Streams    []RadioStream
	Peers      []uint32

	CommandRTTMs    float64
	CommandRTTP95Ms float64

	// PeerStreams holds, per tracked peer, the highest sequence accepted on every stream
	PeerStreams []PeerStreams

	Controller messages.ControllerLinkSummary
}

// PeerStreams is the receive position of one tracked peer.
type PeerStreams struct {
	PeerID       uint32
	LastPacketMs uint32
	MaxSequence  []uint32
}

func (e *Engine) peerStreams() []PeerStreams {
	ids := e.peers.PeerIDs()
	peers := make([]PeerStreams, 0, len(ids))
	for _, id := range ids {
		p := PeerStreams{PeerID: id, MaxSequence: make([]uint32, limits.MaxStreams)}
		if history := e.peers.Lookup(id); history != nil {
			p.LastPacketMs = history.LastPacketMs
		}
		for s := range p.MaxSequence {
			p.MaxSequence[s] = e.GetMaxReceivedSequenceForStream(id, s)
		}
		peers = append(peers, p)
	}
	return peers
}

// Publish copies the current tables into a new snapshot. Only the writer calls it.
func (e *Engine) Publish(nowMs uint32) *Snapshot {
	e.version++
	snapshot := &Snapshot{
		Version:         e.version,
		SessionID:       e.sessionID.String(),
		TakenAtMs:       nowMs,
		LastPacketMs:    e.lastPacketMs,
		Interfaces:      append([]RadioInterface(nil), e.interfaces[:e.interfaceCount]...),
		Links:           append([]RadioLink(nil), e.links[:e.linkCount]...),
		Streams:         append([]RadioStream(nil), e.streams[:]...),
		Peers:           e.peers.PeerIDs(),
		CommandRTTMs:    e.commandRTT.Mean(),
		CommandRTTP95Ms: e.commandRTT.Quantile(0.95),
		PeerStreams:     e.peerStreams(),
		Controller:      e.controller.Summary(e.interfaceCount),
	}
	e.snapshot.Store(snapshot)
	return snapshot
}

// Snapshot returns the latest published snapshot, nil before the first Reset.
// It is safe to call from any goroutine; callers must not modify it.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// Version returns the version of the latest published snapshot.
func (e *Engine) Version() uint64 {
	if s := e.snapshot.Load(); s != nil {
		return s.Version
	}
	return 0
}
