// Package realtime maintains the persistent bidirectional vitals channel:
// subjects publish snapshots to the backend, observers subscribe to them.
// The two roles share the envelope codec but fail independently. A broken
// channel stays closed until its owner decides to re-establish it; nothing
// here reconnects silently.
package realtime

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/cdtp/vitalink/internal/groutine"
	"github.com/cdtp/vitalink/internal/wire"
)

// Config holds the channel endpoint and credential.
type Config struct {
	// BaseURL is the websocket root, e.g. "ws://backend:8000/ws". The role
	// paths ("/patient/{id}", "/vitals/{id}") are appended to it.
	BaseURL    string
	Credential string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// SendQueueSize bounds the publisher's outbound queue; sends beyond a
	// full queue are dropped, never blocked on.
	SendQueueSize int
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 32
	}
}

// State is a point-in-time view of the channel for one subject.
type State struct {
	Open                bool
	LastSend            time.Time
	LastReceive         time.Time
	ConsecutiveFailures int
}

// channelState tracks liveness shared by both roles.
type channelState struct {
	mu    sync.Mutex
	state State
}

func (s *channelState) snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *channelState) opened() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Open = true
	s.state.ConsecutiveFailures = 0
}

func (s *channelState) closed(failure bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Open = false
	if failure {
		s.state.ConsecutiveFailures++
	}
}

func (s *channelState) sent(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastSend = now
}

func (s *channelState) received(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastReceive = now
}

func dial(ctx context.Context, cfg Config, endpoint string) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	header := http.Header{}
	if cfg.Credential != "" {
		header.Set("Authorization", "Bearer "+cfg.Credential)
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return conn, nil
}

func endpointURL(base, role, subjectID string) string {
	return strings.TrimRight(base, "/") + "/" + role + "/" + subjectID
}

// ----------------------------
// Publisher (subject side)
// ----------------------------

// pubSocket is one publisher connection with its outbound queue and the quit
// signal that stops its writer task.
type pubSocket struct {
	conn *websocket.Conn
	out  chan []byte
	quit chan struct{}
	once sync.Once
}

func (s *pubSocket) stop() {
	s.once.Do(func() { close(s.quit) })
}

// Publisher pushes vitals snapshots for one subject. Send never blocks the
// caller's sample loop: the message is handed to a bounded queue drained by a
// writer task, and dropped when the channel is closed or the queue is full.
type Publisher struct {
	cfg    Config
	logger *logrus.Logger

	mu        sync.Mutex
	sock      *pubSocket
	subjectID string

	state channelState
	now   func() time.Time
}

// NewPublisher creates a publisher. Connect must be called before Send.
func NewPublisher(cfg Config, logger *logrus.Logger) *Publisher {
	cfg.applyDefaults()
	if logger == nil {
		logger = logrus.New()
	}
	return &Publisher{cfg: cfg, logger: logger, now: time.Now}
}

// Connect establishes the persistent publisher connection for subjectID and
// invokes onReady once the channel is open. A reader task drains inbound
// frames (server acks or commands) and a writer task drains the outbound
// queue; either marks the channel closed on transport failure, and neither
// reconnects on its own.
func (p *Publisher) Connect(ctx context.Context, subjectID string, onReady func()) error {
	p.mu.Lock()
	if p.sock != nil {
		p.mu.Unlock()
		return fmt.Errorf("publisher already connected for subject %q", p.subjectID)
	}
	p.mu.Unlock()

	endpoint := endpointURL(p.cfg.BaseURL, "patient", subjectID)
	conn, err := dial(ctx, p.cfg, endpoint)
	if err != nil {
		p.state.closed(true)
		return err
	}

	sock := &pubSocket{
		conn: conn,
		out:  make(chan []byte, p.cfg.SendQueueSize),
		quit: make(chan struct{}),
	}

	p.mu.Lock()
	p.sock = sock
	p.subjectID = subjectID
	p.mu.Unlock()
	p.state.opened()

	p.logger.WithField("subject", subjectID).Info("Realtime publisher connected")
	if onReady != nil {
		onReady()
	}

	groutine.Go(ctx, "realtime-publisher-read", func(ctx context.Context) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				p.markBroken(sock, err)
				return
			}
			p.state.received(p.now())
			p.logger.WithField("message", string(data)).Debug("Publisher received server frame")
		}
	})

	groutine.Go(ctx, "realtime-publisher-write", func(ctx context.Context) {
		for {
			select {
			case data := <-sock.out:
				_ = conn.SetWriteDeadline(p.now().Add(p.cfg.WriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					p.markBroken(sock, err)
					return
				}
			case <-sock.quit:
				return
			}
		}
	})
	return nil
}

// Send hands one vitals update to the outbound queue. Returns false when the
// channel is not open or the queue is full; the message is dropped either
// way. Never blocks, regardless of socket backpressure.
func (p *Publisher) Send(heartRate, inactivitySeconds int, status wire.Status) bool {
	p.mu.Lock()
	sock := p.sock
	subject := p.subjectID
	p.mu.Unlock()

	if sock == nil || !p.state.snapshot().Open {
		return false
	}

	data, err := wire.EncodeVitalMessage(subject, heartRate, inactivitySeconds, status, p.now())
	if err != nil {
		p.logger.WithField("error", err).Error("Failed to encode vital message")
		return false
	}

	select {
	case sock.out <- data:
		p.state.sent(p.now())
		return true
	default:
		// Queue full behind a slow socket; drop rather than stall.
		return false
	}
}

// Close tears the channel down. Idempotent; a closed publisher reports
// Send() == false until Connect is called again.
func (p *Publisher) Close() {
	p.mu.Lock()
	sock := p.sock
	p.sock = nil
	p.mu.Unlock()

	p.state.closed(false)
	if sock != nil {
		sock.stop()
		deadline := p.now().Add(p.cfg.WriteTimeout)
		_ = sock.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = sock.conn.Close()
		p.logger.Info("Realtime publisher closed")
	}
}

// State returns the channel liveness snapshot.
func (p *Publisher) State() State {
	return p.state.snapshot()
}

// markBroken records a transport failure for the given socket, unless another
// socket has already replaced it. The socket's writer is stopped either way.
func (p *Publisher) markBroken(sock *pubSocket, err error) {
	p.mu.Lock()
	current := p.sock == sock
	if current {
		p.sock = nil
	}
	p.mu.Unlock()

	sock.stop()
	if current {
		p.state.closed(true)
		p.logger.WithField("error", err).Warn("Realtime publisher channel broken")
		_ = sock.conn.Close()
	}
}

// ----------------------------
// Subscriber (observer side)
// ----------------------------

// Subscriber receives vitals snapshots for observed subjects. Each Subscribe
// call dials a fresh socket; cancelling the context closes it. A failed
// subscription can be reissued by the caller at any time.
type Subscriber struct {
	cfg    Config
	logger *logrus.Logger

	state channelState
	now   func() time.Time
}

// NewSubscriber creates a subscriber.
func NewSubscriber(cfg Config, logger *logrus.Logger) *Subscriber {
	cfg.applyDefaults()
	if logger == nil {
		logger = logrus.New()
	}
	return &Subscriber{cfg: cfg, logger: logger, now: time.Now}
}

// Subscribe opens the inbound vitals stream for subjectID. The returned
// channel closes when ctx is cancelled or the transport fails; malformed or
// unknown frames are dropped without failing the stream.
func (s *Subscriber) Subscribe(ctx context.Context, subjectID string) (<-chan wire.VitalsSnapshot, error) {
	endpoint := endpointURL(s.cfg.BaseURL, "vitals", subjectID)
	conn, err := dial(ctx, s.cfg, endpoint)
	if err != nil {
		s.state.closed(true)
		return nil, err
	}
	s.state.opened()
	s.logger.WithField("subject", subjectID).Info("Realtime subscriber connected")

	out := make(chan wire.VitalsSnapshot, 16)

	// Cancellation closes the socket, which unblocks the read loop.
	groutine.Go(ctx, "realtime-subscriber-watchdog", func(ctx context.Context) {
		<-ctx.Done()
		_ = conn.Close()
	})

	groutine.Go(ctx, "realtime-subscriber-read", func(ctx context.Context) {
		defer close(out)
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					s.state.closed(false)
					s.logger.WithField("subject", subjectID).Info("Realtime subscription cancelled")
				} else {
					s.state.closed(true)
					s.logger.WithFields(logrus.Fields{
						"subject": subjectID,
						"error":   err,
					}).Warn("Realtime subscription transport failure")
				}
				return
			}
			s.state.received(s.now())

			snap, err := wire.DecodeVitalMessage(data, subjectID)
			if err != nil {
				s.logger.WithField("error", err).Debug("Dropping unknown realtime frame")
				continue
			}

			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	})

	return out, nil
}

// State returns the channel liveness snapshot.
func (s *Subscriber) State() State {
	return s.state.snapshot()
}
