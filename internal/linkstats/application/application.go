package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mh-dx/fpv-linkstats/internal/linkstats/config"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/encoder"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/engine"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/messages"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/metrics"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/radioinfo"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/uplink"
)

// ControllerSummaryPath serves the msgpack encoded controller link summary.
const ControllerSummaryPath = "/controller"

const (
	eventBufferSize = 1024
	maxDatagramSize = 64 * 1024
	tickInterval    = 10 * time.Millisecond
)

var errUnknownEventKind = errors.New("unknown radio event kind")

type LinkStatsApplication struct {
	config config.LinkStatsConfig

	provider *radioinfo.Static

	// engine is only touched by the engine loop once the services run
	engine *engine.Engine

	encoderDecoder encoder.EncoderDecoder

	collector *metrics.Collector

	broadcaster *uplink.Broadcaster

	events chan messages.RadioEvent

	conn net.PacketConn

	servers   []*http.Server
	listeners map[string]net.Listener

	start time.Time

	context context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewLinkStatsApplication(cfg config.LinkStatsConfig) *LinkStatsApplication {
	provider := cfg.RadioInfo()
	options := engine.Options{
		RefreshIntervalMs:         uint32(cfg.RefreshInterval.Milliseconds()),
		GraphRefreshIntervalMs:    uint32(cfg.GraphRefreshInterval.Milliseconds()),
		LinkRefreshIntervalMs:     uint32(cfg.LinkRefreshInterval.Milliseconds()),
		ControllerStatsIntervalMs: uint32(cfg.ControllerStatsInterval.Milliseconds()),
		SignalFloorDBM:            cfg.SignalFloorDBM,
		SignalFloorPenalty:        cfg.SignalFloorPenalty,
	}
	stats := engine.New(provider, options)
	stats.Reset(options.RefreshIntervalMs, options.GraphRefreshIntervalMs)

	encoderDecoder := encoder.NewEncoderDecoder()
	return &LinkStatsApplication{
		config:         cfg,
		provider:       provider,
		engine:         stats,
		encoderDecoder: encoderDecoder,
		collector:      metrics.NewCollector(nil),
		broadcaster:    uplink.NewBroadcaster(encoderDecoder),
		events:         make(chan messages.RadioEvent, eventBufferSize),
		listeners:      map[string]net.Listener{},
		start:          time.Now(),
	}
}

// StartServices opens the event tap, the HTTP endpoints and starts the engine loop.
func (a *LinkStatsApplication) StartServices() error {
	a.context, a.cancel = context.WithCancel(context.Background())

	conn, err := net.ListenPacket("udp", a.config.EventListen)
	if err != nil {
		return fmt.Errorf("error listening for radio events on %s: %w", a.config.EventListen, err)
	}
	a.conn = conn
	log.Printf("listening for radio events on %s\n", conn.LocalAddr())

	if a.config.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.collector.Handler())
		if err := a.serve("metrics", a.config.MetricsListen, mux); err != nil {
			a.StopServices()
			return err
		}
	}
	if a.config.SnapshotListen != "" {
		mux := http.NewServeMux()
		mux.Handle(uplink.SnapshotPath, a.broadcaster)
		mux.HandleFunc(ControllerSummaryPath, a.serveControllerSummary)
		if err := a.serve("snapshot", a.config.SnapshotListen, mux); err != nil {
			a.StopServices()
			return err
		}
	}

	a.wg.Add(2)
	go a.readEvents()
	go a.run()
	return nil
}

// StopServices stops the loop, closes the event tap and shuts the HTTP endpoints down.
func (a *LinkStatsApplication) StopServices() error {
	if a.cancel != nil {
		a.cancel()
	}
	errs := []error{}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			log.Printf("error closing event tap: %v\n", err)
			errs = append(errs, err)
		}
	}
	for _, server := range a.servers {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("error stopping %s: %v\n", server.Addr, err)
			errs = append(errs, err)
		}
		cancel()
	}
	a.wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("errors while stopping services: %v", errs)
	}
	return nil
}

// EventAddr is the bound address of the event tap.
func (a *LinkStatsApplication) EventAddr() net.Addr {
	if a.conn == nil {
		return nil
	}
	return a.conn.LocalAddr()
}

// ListenAddr is the bound address of the "metrics" or "snapshot" endpoint.
func (a *LinkStatsApplication) ListenAddr(name string) net.Addr {
	if listener, ok := a.listeners[name]; ok {
		return listener.Addr()
	}
	return nil
}

// Snapshot returns the latest published engine snapshot.
func (a *LinkStatsApplication) Snapshot() *engine.Snapshot {
	return a.engine.Snapshot()
}

func (a *LinkStatsApplication) serve(name string, address string, handler http.Handler) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("error listening for %s on %s: %w", name, address, err)
	}
	server := &http.Server{Addr: listener.Addr().String(), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	a.servers = append(a.servers, server)
	a.listeners[name] = listener
	log.Printf("serving %s on %s\n", name, listener.Addr())
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("%s server stopped: %v\n", name, err)
		}
	}()
	return nil
}

func (a *LinkStatsApplication) serveControllerSummary(w http.ResponseWriter, _ *http.Request) {
	snapshot := a.engine.Snapshot()
	if snapshot == nil {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}
	payload, err := a.encoderDecoder.EncodeControllerLinkSummary(snapshot.Controller)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/msgpack")
	w.Write(payload)
}

// readEvents decodes tap datagrams into the event channel until the tap is closed.
func (a *LinkStatsApplication) readEvents() {
	defer a.wg.Done()
	buffer := make([]byte, maxDatagramSize)
	for {
		n, _, err := a.conn.ReadFrom(buffer)
		if err != nil {
			if a.context.Err() == nil {
				log.Printf("error reading radio event: %v\n", err)
			}
			return
		}
		event, err := a.encoderDecoder.DecodeRadioEvent(buffer[:n])
		if err != nil {
			log.Printf("error decoding radio event: %v\n", err)
			continue
		}
		select {
		case a.events <- event:
		case <-a.context.Done():
			return
		}
	}
}

// run is the single writer of the engine: it applies events in arrival order
// and ticks the engine, exporting every new snapshot.
func (a *LinkStatsApplication) run() {
	defer a.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case event := <-a.events:
			if err := a.handle(event); err != nil && errors.Is(err, errUnknownEventKind) {
				log.Printf("%v\n", err)
			}
		case <-ticker.C:
			a.tick()
		case <-a.context.Done():
			return
		}
	}
}

func (a *LinkStatsApplication) tick() {
	if !a.engine.PeriodicTick(a.nowMs()) {
		return
	}
	snapshot := a.engine.Snapshot()
	a.collector.Update(snapshot)
	if err := a.broadcaster.Publish(snapshot); err != nil {
		log.Printf("error publishing snapshot %d: %v\n", snapshot.Version, err)
	}
}

func (a *LinkStatsApplication) nowMs() uint32 {
	return uint32(time.Since(a.start).Milliseconds())
}

// handle applies one radio event to the engine.
func (a *LinkStatsApplication) handle(event messages.RadioEvent) error {
	now := a.nowMs()
	switch event.Kind {
	case messages.RX:
		if event.SignalDBM != 0 || event.DataRateBps != 0 {
			a.provider.UpdateReadings(event.Interface, event.SignalDBM, event.DataRateBps, event.Video)
		}
		var err error
		if event.Short {
			_, err = a.engine.IngestShortPacket(event.Interface, event.Data, event.CRCOk, now)
		} else {
			_, err = a.engine.IngestFullPacket(event.Interface, event.Data, event.CRCOk, now)
		}
		return err
	case messages.TX:
		if err := a.engine.OnPacketSentOnInterface(event.Interface, event.Length); err != nil {
			return err
		}
		if err := a.engine.OnPacketSentOnLink(event.Link, event.Stream, event.Length); err != nil {
			return err
		}
		return a.engine.OnPacketSentOnStream(event.Stream, event.Length)
	case messages.LinkRTT:
		return a.engine.SetLinkRoundTripDelay(event.Link, event.Value, now)
	case messages.CommandRTT:
		a.engine.SetCommandRoundTripDelay(event.Value)
		return nil
	case messages.TxInterface:
		return a.engine.SetTxInterfaceForLink(event.Link, event.Interface)
	case messages.Frequency:
		return a.engine.SetInterfaceCurrentFrequency(event.Interface, event.Value)
	case messages.VideoBlocks:
		a.engine.AddVideoBlocks(event.Clean, event.Reconstructed, event.MaxECUsed)
		return nil
	case messages.Retransmission:
		a.engine.AddRetransmissionRequests(event.Value)
		return nil
	case messages.ResetPeer:
		a.engine.ResetStreamsRxHistoryForPeer(event.Value)
		return nil
	case messages.ResetOtherPeers:
		a.engine.ResetStreamsRxHistoryForAllPeersExcept(event.Value)
		return nil
	case messages.Pairing:
		session := a.engine.StartPairingSession()
		log.Printf("pairing session %s started\n", session)
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownEventKind, event.Kind)
	}
}
