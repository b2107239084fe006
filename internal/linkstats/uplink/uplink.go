package uplink

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/encoder"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/engine"
)

// State is the state of a snapshot subscription.
type State string

const (
	// Disconnected is the state when the subscriber has no connection.
	Disconnected State = "disconnected"

	// Connected is the state when the subscriber is connected.
	Connected State = "connected"
)

type Event struct {
	// State is the state of the subscription
	State State
	// Event
	Event string
}

// SnapshotPath is where the broadcaster serves its websocket.
const SnapshotPath = "/snapshots"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Broadcaster pushes every published snapshot to the connected readers.
// A reader that cannot keep up loses frames; the broadcaster never blocks.
type Broadcaster struct {
	encoderDecoder encoder.EncoderDecoder

	mutex   sync.Mutex
	clients map[*client]struct{}
	last    []byte
	version uint64
}

type client struct {
	connection *websocket.Conn
	send       chan []byte
}

// NewBroadcaster creates a broadcaster. A nil encoderDecoder uses msgpack.
func NewBroadcaster(encoderDecoder encoder.EncoderDecoder) *Broadcaster {
	if encoderDecoder == nil {
		encoderDecoder = encoder.NewEncoderDecoder()
	}
	return &Broadcaster{
		encoderDecoder: encoderDecoder,
		clients:        make(map[*client]struct{}),
	}
}

// Publish encodes a snapshot once and queues it for every reader.
// Versions already sent are ignored.
func (b *Broadcaster) Publish(snapshot *engine.Snapshot) error {
	if snapshot == nil {
		return nil
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if snapshot.Version <= b.version {
		return nil
	}
	payload, err := b.encoderDecoder.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	b.version = snapshot.Version
	b.last = payload
	for c := range b.clients {
		select {
		case c.send <- payload:
		default:
			log.Printf("snapshot reader %s too slow, dropping version %d\n", c.connection.RemoteAddr(), snapshot.Version)
		}
	}
	return nil
}

// Clients is the number of connected readers.
func (b *Broadcaster) Clients() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.clients)
}

// ServeHTTP upgrades the request and streams snapshots until the reader leaves.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	connection, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("snapshot reader upgrade failed: %v\n", err)
		return
	}
	c := &client{connection: connection, send: make(chan []byte, 8)}

	b.mutex.Lock()
	b.clients[c] = struct{}{}
	if b.last != nil {
		c.send <- b.last
	}
	b.mutex.Unlock()

	done := make(chan struct{})
	// readers only send control frames; reading detects the close
	go func() {
		defer close(done)
		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		b.mutex.Lock()
		delete(b.clients, c)
		b.mutex.Unlock()
		connection.Close()
	}()

	ping := time.NewTicker(5 * time.Second)
	defer ping.Stop()
	for {
		select {
		case payload := <-c.send:
			connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := connection.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				log.Printf("snapshot reader %s: %v\n", connection.RemoteAddr(), err)
				return
			}
		case <-ping.C:
			if err := connection.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// dialer is the websocket dialer.
var dialer = websocket.Dialer{}

type Options struct {
	// URL is the websocket URL of the broadcaster
	URL string

	// MaxReconnectInterval is the maximum time to wait between reconnects
	MaxReconnectInterval time.Duration

	// ReconnectRetries is the number of retries to reconnect, 0 retries forever
	ReconnectRetries int64
}

func defaultOptions() Options {
	return Options{
		MaxReconnectInterval: 5 * time.Second,
		ReconnectRetries:     0,
	}
}

// Subscriber receives snapshots from a broadcaster and reconnects with
// exponential backoff when the connection drops.
type Subscriber struct {
	// Options defines the options for the subscriber
	Options Options

	// retries is the number of retries to reconnect
	retries int64

	// recv is the channel to receive snapshots
	recv chan *engine.Snapshot

	// events is the channel to receive events from the subscriber
	events chan Event

	// encoderdecoder decodes the snapshot frames
	encoderDecoder encoder.EncoderDecoder

	context context.Context
	cancel  context.CancelFunc

	mutex      sync.Mutex
	connection *websocket.Conn
}

// NewSubscriber creates a subscriber. It does not connect before Connect.
func NewSubscriber(options Options, encoderDecoder encoder.EncoderDecoder) (*Subscriber, error) {
	if options.URL == "" {
		return nil, fmt.Errorf("snapshot URL is required")
	}
	if options.MaxReconnectInterval == 0 {
		options.MaxReconnectInterval = defaultOptions().MaxReconnectInterval
	}
	if encoderDecoder == nil {
		encoderDecoder = encoder.NewEncoderDecoder()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Subscriber{
		Options:        options,
		recv:           make(chan *engine.Snapshot, 16),
		events:         make(chan Event, 100),
		encoderDecoder: encoderDecoder,
		context:        ctx,
		cancel:         cancel,
	}, nil
}

// Connect dials the broadcaster and returns the channel snapshots arrive on.
// The channel is closed when the subscriber is closed or gives up reconnecting.
func (s *Subscriber) Connect() (<-chan *engine.Snapshot, error) {
	connection, err := s.dial()
	if err != nil {
		return nil, err
	}
	go s.receive(connection)
	return s.recv, nil
}

// Events returns a channel to listen for connection events.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Close stops the subscriber and closes the connection.
func (s *Subscriber) Close() error {
	s.cancel()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.connection != nil {
		return s.connection.Close()
	}
	return nil
}

func (s *Subscriber) event(state State, format string, args ...interface{}) {
	select {
	case s.events <- Event{State: state, Event: fmt.Sprintf(format, args...)}:
	default:
	}
}

func (s *Subscriber) dial() (*websocket.Conn, error) {
	for {
		s.event(Disconnected, "connecting to snapshot broadcaster: %s", s.Options.URL)
		connection, _, err := dialer.DialContext(s.context, s.Options.URL, nil)
		if err == nil {
			s.retries = 0
			s.mutex.Lock()
			s.connection = connection
			s.mutex.Unlock()
			s.event(Connected, "connected to snapshot broadcaster: %s", s.Options.URL)
			return connection, nil
		}
		s.event(Disconnected, "error connecting to snapshot broadcaster: %v", err)
		if s.Options.ReconnectRetries != 0 && s.retries >= s.Options.ReconnectRetries {
			s.event(Disconnected, "maximum number of retries reached")
			return nil, fmt.Errorf("maximum number of retries reached after: %w", err)
		}
		s.retries++
		select {
		case <-time.After(s.calculateBackoff()):
		case <-s.context.Done():
			return nil, s.context.Err()
		}
	}
}

func (s *Subscriber) receive(connection *websocket.Conn) {
	defer close(s.recv)
	for {
		_, frame, err := connection.ReadMessage()
		if err != nil {
			connection.Close()
			if s.context.Err() != nil {
				return
			}
			s.event(Disconnected, "read - websocket closed after error: %v", err)
			connection, err = s.dial()
			if err != nil {
				return
			}
			continue
		}
		snapshot, err := s.encoderDecoder.DecodeSnapshot(frame)
		if err != nil {
			s.event(Connected, "error decoding snapshot: %v", err)
			continue
		}
		select {
		case s.recv <- snapshot:
		case <-s.context.Done():
			return
		}
	}
}

func (s *Subscriber) calculateBackoff() time.Duration {
	if s.retries == 0 {
		return 50 * time.Millisecond
	}
	// Calculate the exponential backoff and max it with the maximum reconnect interval
	backoff := time.Duration(math.Pow(2, float64(s.retries))) * 50 * time.Millisecond
	if backoff > s.Options.MaxReconnectInterval {
		backoff = s.Options.MaxReconnectInterval
	}
	return backoff
}
