// Package engine is the radio link statistics and packet quality engine.
//
// An Engine owns every interface, link and stream table plus the per peer
// dedup history. It has a single writer: the process owning the radios calls
// the ingest functions once per packet and PeriodicTick at least once per
// scheduler iteration, always from the same goroutine. None of the writer
// methods block or do I/O.
//
// Readers never touch the live tables. After every tick that changed state
// the engine publishes an immutable, versioned Snapshot that any goroutine
// may load through Snapshot().
package engine

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/history"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/limits"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/radioinfo"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/rtt"
	"golang.org/x/time/rate"
)

type Options struct {
	// RefreshIntervalMs drives rates and quality of interfaces and streams
	RefreshIntervalMs uint32

	// GraphRefreshIntervalMs drives the graph history slices
	GraphRefreshIntervalMs uint32

	// LinkRefreshIntervalMs drives the radio link rates
	LinkRefreshIntervalMs uint32

	// ControllerStatsIntervalMs drives the coarse controller link history
	ControllerStatsIntervalMs uint32

	// SignalFloorDBM is the signal under which SignalFloorPenalty is taken off the relative quality
	SignalFloorDBM     int
	SignalFloorPenalty int
}

func NewDefaultOptions() Options {
	return Options{
		RefreshIntervalMs:         500,
		GraphRefreshIntervalMs:    100,
		LinkRefreshIntervalMs:     250,
		ControllerStatsIntervalMs: 200,
		SignalFloorDBM:            -85,
		SignalFloorPenalty:        20,
	}
}

type Engine struct {
	provider radioinfo.Provider
	options  Options

	initialized    bool
	interfaceCount int
	linkCount      int

	interfaces [limits.MaxInterfaces]RadioInterface
	links      [limits.MaxLinks]RadioLink
	streams    [limits.MaxStreams]RadioStream
	peers      *history.Table
	controller ControllerLinkHistory

	linkRTT    [limits.MaxLinks]*rtt.Tracker
	commandRTT *rtt.Tracker

	sessionID    uuid.UUID
	lastPacketMs uint32
	lastTickMs   uint32

	lastStatsTickMs      uint32
	lastGraphTickMs      uint32
	lastLinkTickMs       uint32
	lastControllerTickMs uint32

	version  uint64
	snapshot atomic.Pointer[Snapshot]

	warnLimiter *rate.Limiter
}

// New creates an engine on top of a radio info provider. The engine is not
// usable before Reset is called.
func New(provider radioinfo.Provider, options Options) *Engine {
	e := &Engine{
		provider:    provider,
		options:     options,
		peers:       history.NewTable(),
		commandRTT:  rtt.NewCommandTracker(limits.RTTHistory),
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for l := range e.linkRTT {
		e.linkRTT[l] = rtt.NewLinkTracker(limits.RTTHistory)
	}
	return e
}

// Reset sizes the tables from the radio info provider and zeroes every
// counter, history and round trip window.
func (e *Engine) Reset(refreshIntervalMs uint32, graphRefreshIntervalMs uint32) {
	e.options.RefreshIntervalMs = max(refreshIntervalMs, 1)
	e.options.GraphRefreshIntervalMs = max(graphRefreshIntervalMs, 1)
	e.options.LinkRefreshIntervalMs = max(e.options.LinkRefreshIntervalMs, 1)
	e.options.ControllerStatsIntervalMs = max(e.options.ControllerStatsIntervalMs, 1)

	e.interfaceCount = min(e.provider.InterfaceCount(), limits.MaxInterfaces)
	e.linkCount = min(e.provider.LinkCount(), limits.MaxLinks)

	for i := range e.interfaces {
		e.interfaces[i].reset(i)
		if i >= e.interfaceCount {
			continue
		}
		if info, ok := e.provider.Interface(i); ok {
			e.interfaces[i].Link = e.validLink(info.Link)
			e.interfaces[i].USBPort = info.USBPort
		}
	}
	for l := range e.links {
		e.links[l].reset(l)
		e.linkRTT[l].Reset()
	}
	for s := range e.streams {
		e.streams[s].reset(s)
	}
	e.commandRTT.Reset()
	e.controller.reset()
	e.peers.Reset()

	e.sessionID = uuid.New()
	e.lastPacketMs = 0
	e.lastTickMs = 0
	e.lastStatsTickMs = 0
	e.lastGraphTickMs = 0
	e.lastLinkTickMs = 0
	e.lastControllerTickMs = 0
	e.initialized = true

	log.Printf("stats engine reset: %d interfaces, %d links, refresh %d ms, graph %d ms, session %s\n",
		e.interfaceCount, e.linkCount, e.options.RefreshIntervalMs, e.options.GraphRefreshIntervalMs, e.sessionID)
	e.Publish(0)
}

func (e *Engine) validLink(link int) int {
	if link < 0 || link >= e.linkCount {
		return limits.Unassigned
	}
	return link
}

// warnf logs at most a few warnings per second so a burst of bad packets
// cannot flood the log.
func (e *Engine) warnf(format string, args ...interface{}) {
	if e.warnLimiter.Allow() {
		log.Printf(format, args...)
	}
}

// StartPairingSession forgets every peer history and starts a new session id.
func (e *Engine) StartPairingSession() uuid.UUID {
	e.peers.Reset()
	e.sessionID = uuid.New()
	return e.sessionID
}

// SessionID identifies the current pairing session.
func (e *Engine) SessionID() uuid.UUID {
	return e.sessionID
}

// ResetStreamsRxHistoryForPeer forgets the dedup and loss history of one peer.
func (e *Engine) ResetStreamsRxHistoryForPeer(peerID uint32) {
	e.peers.ResetPeer(peerID)
}

// ResetStreamsRxHistoryForAllPeersExcept keeps only the history of the actively tracked peer.
func (e *Engine) ResetStreamsRxHistoryForAllPeersExcept(peerID uint32) {
	e.peers.ResetAllExcept(peerID)
}

// GetMaxReceivedSequenceForStream returns the highest sequence accepted for a
// stream of a peer, 0 when the peer or stream is unknown.
func (e *Engine) GetMaxReceivedSequenceForStream(peerID uint32, stream int) uint32 {
	return e.peers.MaxReceivedSequence(peerID, stream)
}

// TrackedPeers lists the peers currently holding a history slot.
func (e *Engine) TrackedPeers() []uint32 {
	return e.peers.PeerIDs()
}

func (e *Engine) checkInterface(iface int) error {
	if e == nil || !e.initialized {
		return ErrUninitialized
	}
	if iface < 0 || iface >= e.interfaceCount {
		return fmt.Errorf("%w: %d", ErrInvalidInterfaceIndex, iface)
	}
	return nil
}

func (e *Engine) checkLink(link int) error {
	if e == nil || !e.initialized {
		return ErrUninitialized
	}
	if link < 0 || link >= e.linkCount {
		return fmt.Errorf("%w: %d", ErrInvalidLinkIndex, link)
	}
	return nil
}

func checkStream(stream int) error {
	if stream < 0 || stream >= limits.MaxStreams {
		return fmt.Errorf("%w: %d", ErrInvalidStreamIndex, stream)
	}
	return nil
}

// OnPacketSentOnInterface counts a transmitted packet on an interface.
func (e *Engine) OnPacketSentOnInterface(iface int, bytes int) error {
	if err := e.checkInterface(iface); err != nil {
		return err
	}
	e.interfaces[iface].addTx(bytes)
	return nil
}

// OnPacketSentOnLink counts a transmitted packet of a stream on a link.
func (e *Engine) OnPacketSentOnLink(link int, stream int, bytes int) error {
	if err := e.checkLink(link); err != nil {
		return err
	}
	if err := checkStream(stream); err != nil {
		return err
	}
	e.links[link].addTx(bytes)
	e.links[link].Streams[stream].addTx(bytes)
	return nil
}

// OnPacketSentOnStream counts a transmitted packet on the global stream counters.
func (e *Engine) OnPacketSentOnStream(stream int, bytes int) error {
	if e == nil || !e.initialized {
		return ErrUninitialized
	}
	if err := checkStream(stream); err != nil {
		return err
	}
	e.streams[stream].addTx(bytes)
	return nil
}

// SetTxInterfaceForLink records which interface a link last transmitted on.
func (e *Engine) SetTxInterfaceForLink(link int, iface int) error {
	if err := e.checkLink(link); err != nil {
		return err
	}
	if err := e.checkInterface(iface); err != nil {
		return err
	}
	e.links[link].TxInterface = iface
	return nil
}

// SetInterfaceCurrentFrequency records the frequency an interface is tuned to.
func (e *Engine) SetInterfaceCurrentFrequency(iface int, freqKhz uint32) error {
	if err := e.checkInterface(iface); err != nil {
		return err
	}
	e.interfaces[iface].FrequencyKhz = freqKhz
	return nil
}

// SetLinkRoundTripDelay adds a ping round trip sample to a link.
func (e *Engine) SetLinkRoundTripDelay(link int, delayMs uint32, nowMs uint32) error {
	if err := e.checkLink(link); err != nil {
		return err
	}
	tracker := e.linkRTT[link]
	tracker.SetSample(delayMs, nowMs)
	l := &e.links[link]
	l.RTTMs = tracker.Mean()
	l.RTTStdDevMs = tracker.StdDev()
	l.RTTP50Ms = tracker.Quantile(0.5)
	l.RTTP95Ms = tracker.Quantile(0.95)
	l.MinRTTMs, l.MinRTTUpdatedMs, l.HasRTT = tracker.Min()
	l.LastRTTSampleMs = nowMs
	return nil
}

// SetCommandRoundTripDelay adds a command/response round trip sample.
func (e *Engine) SetCommandRoundTripDelay(delayMs uint32) {
	e.commandRTT.SetSample(delayMs, e.lastTickMs)
}

// CommandRoundTrip returns the mean command round trip of the sample window.
func (e *Engine) CommandRoundTrip() float64 {
	return e.commandRTT.Mean()
}

// LinkRoundTripQuantile estimates a quantile of every round trip seen on a link.
func (e *Engine) LinkRoundTripQuantile(link int, q float64) float64 {
	if link < 0 || link >= limits.MaxLinks {
		return 0
	}
	return e.linkRTT[link].Quantile(q)
}

// AddVideoBlocks feeds video block decoding results into the controller link history.
func (e *Engine) AddVideoBlocks(clean uint32, reconstructed uint32, maxECUsed uint32) {
	e.controller.addVideoBlocks(clean, reconstructed, maxECUsed)
}

// AddRetransmissionRequests feeds requested retransmissions into the controller link history.
func (e *Engine) AddRetransmissionRequests(count uint32) {
	e.controller.addRetransmissions(count)
}

// Interface returns a copy of an interface entry.
func (e *Engine) Interface(iface int) (RadioInterface, error) {
	if err := e.checkInterface(iface); err != nil {
		return RadioInterface{}, err
	}
	return e.interfaces[iface], nil
}

// Link returns a copy of a link entry.
func (e *Engine) Link(link int) (RadioLink, error) {
	if err := e.checkLink(link); err != nil {
		return RadioLink{}, err
	}
	return e.links[link], nil
}

// Stream returns a copy of a stream entry.
func (e *Engine) Stream(stream int) (RadioStream, error) {
	if err := checkStream(stream); err != nil {
		return RadioStream{}, err
	}
	return e.streams[stream], nil
}

// ControllerHistory returns a copy of the coarse controller link history.
func (e *Engine) ControllerHistory() ControllerLinkHistory {
	return e.controller
}

// InterfaceCount is the number of interfaces enumerated at Reset.
func (e *Engine) InterfaceCount() int {
	return e.interfaceCount
}

// LinkCount is the number of links enumerated at Reset.
func (e *Engine) LinkCount() int {
	return e.linkCount
}

// LastPacketReceivedMs is the arrival time of the latest packet on any interface.
func (e *Engine) LastPacketReceivedMs() uint32 {
	return e.lastPacketMs
}
