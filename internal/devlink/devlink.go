// Package devlink implements the connection state machine for one streaming
// wearable peripheral: scan by advertised name, connect, negotiate the sensor
// service, and stream notified payloads as parsed samples.
package devlink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cdtp/vitalink/internal/device"
	"github.com/cdtp/vitalink/internal/groutine"
	"github.com/cdtp/vitalink/internal/ringchan"
	"github.com/cdtp/vitalink/internal/wire"
)

// State is the link's position in the connection lifecycle. Transitions are
// owned exclusively by the Link; observers read it through Status().
type State int

const (
	StateDisconnected State = iota
	StateScanning
	StateConnecting
	StateServiceDiscovery
	StateStreaming
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateServiceDiscovery:
		return "service_discovery"
	case StateStreaming:
		return "streaming"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status pairs the state with a failure reason (set only for StateFailed).
type Status struct {
	State  State
	Reason string
}

var (
	// ErrAdapterUnavailable means the link layer is not powered on; the link
	// stays Disconnected and no scan is attempted.
	ErrAdapterUnavailable = errors.New("adapter unavailable")

	// ErrAlreadyStarted rejects a second start while the link is active.
	// Callers must Stop first.
	ErrAlreadyStarted = errors.New("link already started")
)

// Config holds the link's peripheral-matching and timing parameters.
type Config struct {
	// DeviceName is the advertised name the scan filter requires.
	DeviceName string

	// ServiceUUID / CharacteristicUUID locate the sensor data stream.
	ServiceUUID        string
	CharacteristicUUID string

	ScanTimeout    time.Duration
	ConnectTimeout time.Duration

	// SampleBufferSize bounds the sample ring between the notification
	// callback and the consumer; oldest samples are dropped when full.
	SampleBufferSize int
}

func (c *Config) applyDefaults() {
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = 10 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.SampleBufferSize <= 0 {
		c.SampleBufferSize = 128
	}
}

// Link tracks exactly one physical peer at a time. All transport callbacks
// are translated into state transitions and samples on an internal ring
// channel drained by the owner; nothing is delivered on transport threads.
type Link struct {
	cfg       Config
	transport device.Transport
	logger    *logrus.Logger

	mu      sync.RWMutex
	status  Status
	conn    device.Connection
	cancel  context.CancelFunc
	stopped bool

	samples   *ringchan.Ring[wire.Sample]
	malformed atomic.Uint64
	done      chan struct{}

	// now is the sample timestamp source, overridable in tests.
	now func() time.Time
}

// New creates a Link. The transport is injected; the Link never constructs
// process-wide shared state.
func New(cfg Config, transport device.Transport, logger *logrus.Logger) *Link {
	cfg.applyDefaults()
	if logger == nil {
		logger = logrus.New()
	}
	return &Link{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
		status:    Status{State: StateDisconnected},
		now:       time.Now,
	}
}

// Status returns the current link status. Safe for concurrent reads.
func (l *Link) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Samples returns the parsed sample stream. The channel is closed when the
// link reaches a terminal state (stopped, failed, or peer disconnect). Nil
// until Start succeeds.
func (l *Link) Samples() <-chan wire.Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.samples == nil {
		return nil
	}
	return l.samples.C()
}

// MalformedCount reports how many notified payloads failed to parse and were
// dropped. Malformed payloads never fail the link.
func (l *Link) MalformedCount() uint64 {
	return l.malformed.Load()
}

// DroppedCount reports how many parsed samples were discarded because the
// consumer fell behind the ring buffer.
func (l *Link) DroppedCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.samples == nil {
		return 0
	}
	return uint64(l.samples.Stats().Dropped)
}

// Start begins the scan → connect → discover → stream sequence in its own
// goroutine. It fails fast with ErrAdapterUnavailable when the adapter is off
// and with ErrAlreadyStarted when the link is anywhere past Disconnected.
func (l *Link) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.status.State != StateDisconnected {
		state := l.status.State
		l.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrAlreadyStarted, state)
	}

	scanner, err := l.transport.NewScanner()
	if err != nil {
		l.mu.Unlock()
		if errors.Is(err, device.ErrAdapterOff) {
			return fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
		}
		return fmt.Errorf("create scanner: %w", err)
	}

	// A previous run that ended on its own (peer disconnect) leaves its
	// context alive; release it before starting the new one.
	if l.cancel != nil {
		l.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.stopped = false
	l.samples = ringchan.New[wire.Sample](l.cfg.SampleBufferSize)
	l.done = make(chan struct{})
	l.status = Status{State: StateScanning}
	done := l.done
	l.mu.Unlock()

	l.logger.WithField("device_name", l.cfg.DeviceName).Info("Starting device link")

	groutine.Go(runCtx, "devlink-run", func(ctx context.Context) {
		defer close(done)
		defer l.closeSamples()
		l.run(ctx, scanner)
	})
	return nil
}

// Stop cancels the link's task and releases the transport resource. Safe to
// call from any state and any number of times; the link is Disconnected
// afterwards.
func (l *Link) Stop() {
	l.mu.Lock()
	if l.stopped && l.cancel == nil {
		// Never started or already fully stopped.
		l.status = Status{State: StateDisconnected}
		l.mu.Unlock()
		return
	}
	l.stopped = true
	cancel := l.cancel
	l.cancel = nil
	done := l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	l.releaseConn()

	l.mu.Lock()
	l.status = Status{State: StateDisconnected}
	l.mu.Unlock()
}

// run drives the whole lifecycle on the link's own task.
func (l *Link) run(ctx context.Context, scanner device.Scanner) {
	addr, ok := l.scan(ctx, scanner)
	if !ok {
		return
	}

	l.setState(Status{State: StateConnecting})
	conn, err := l.transport.Dial(ctx, addr, l.cfg.ConnectTimeout)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.WithFields(logrus.Fields{"address": addr, "error": err}).Error("Connect failed")
			l.setState(Status{State: StateFailed, Reason: fmt.Sprintf("connect failed: %v", err)})
		}
		return
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		_ = conn.Close()
		return
	}
	l.conn = conn
	l.status = Status{State: StateServiceDiscovery}
	l.mu.Unlock()

	err = conn.Subscribe(l.cfg.ServiceUUID, l.cfg.CharacteristicUUID, l.handleNotification)
	if err != nil {
		l.logger.WithField("error", err).Error("Service negotiation failed")
		l.releaseConn()

		var nf *device.NotFoundError
		if errors.As(err, &nf) {
			l.setState(Status{State: StateFailed, Reason: nf.Resource + " not found"})
		} else {
			l.setState(Status{State: StateFailed, Reason: fmt.Sprintf("subscription failed: %v", err)})
		}
		return
	}

	l.setState(Status{State: StateStreaming})
	l.logger.WithField("address", addr).Info("Streaming sensor notifications")

	select {
	case <-ctx.Done():
		// Owner is stopping; Stop() releases the connection.
	case <-conn.Disconnected():
		l.logger.Warn("Peripheral disconnected")
		l.releaseConn()
		l.setState(Status{State: StateDisconnected})
	}
}

// scan blocks until the target peripheral is found, the scan fails, or the
// timeout elapses. Non-matching advertisements are ignored.
func (l *Link) scan(ctx context.Context, scanner device.Scanner) (addr string, ok bool) {
	scanCtx, cancelScan := context.WithTimeout(ctx, l.cfg.ScanTimeout)
	defer cancelScan()

	var matchMu sync.Mutex
	var matched string
	found := false

	err := scanner.Scan(scanCtx, false, func(adv device.Advertisement) {
		if adv.LocalName() != l.cfg.DeviceName {
			return
		}
		matchMu.Lock()
		if !found {
			found = true
			matched = adv.Addr()
			l.logger.WithFields(logrus.Fields{
				"device":  adv.LocalName(),
				"address": matched,
				"rssi":    adv.RSSI(),
			}).Info("Target peripheral discovered")
		}
		matchMu.Unlock()
		cancelScan()
	})

	matchMu.Lock()
	defer matchMu.Unlock()

	if found {
		return matched, true
	}

	switch {
	case ctx.Err() != nil:
		// Stopped by the owner; not a failure.
	case errors.Is(err, context.DeadlineExceeded) || scanCtx.Err() != nil && err == nil:
		l.logger.WithField("device_name", l.cfg.DeviceName).Warn("Scan timed out without finding peripheral")
		l.setState(Status{State: StateFailed, Reason: "device not found"})
	case err != nil:
		l.logger.WithField("error", err).Error("Scan failed")
		l.setState(Status{State: StateFailed, Reason: fmt.Sprintf("scan failed: %v", err)})
	default:
		l.setState(Status{State: StateFailed, Reason: "device not found"})
	}
	return "", false
}

// handleNotification runs on the transport's callback thread: parse, count
// failures, and hand off the sample without blocking.
func (l *Link) handleNotification(data []byte) {
	sample, err := wire.ParseSample(data, l.now())
	if err != nil {
		l.malformed.Add(1)
		l.logger.WithField("error", err).Debug("Dropping malformed payload")
		return
	}

	l.mu.RLock()
	ring := l.samples
	l.mu.RUnlock()
	if ring != nil {
		ring.Put(sample)
	}
}

// setState records a transition unless the link has been stopped, in which
// case only Disconnected is allowed to stick.
func (l *Link) setState(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped && s.State != StateDisconnected {
		return
	}
	l.status = s
}

// releaseConn closes the transport resource exactly once.
func (l *Link) releaseConn() {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			l.logger.WithField("error", err).Warn("Connection released with errors")
		}
	}
}

func (l *Link) closeSamples() {
	l.mu.RLock()
	ring := l.samples
	l.mu.RUnlock()
	if ring != nil {
		ring.Close()
	}
}
