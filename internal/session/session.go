// Package session ties a subject's device link, vitals derivation, relay
// uploads and realtime publishing into one monitored stream with a single
// lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cdtp/vitalink/internal/devlink"
	"github.com/cdtp/vitalink/internal/groutine"
	"github.com/cdtp/vitalink/internal/realtime"
	"github.com/cdtp/vitalink/internal/relay"
	"github.com/cdtp/vitalink/internal/sensor"
	"github.com/cdtp/vitalink/internal/wire"
)

var (
	// ErrMissingSubject is returned when a session is started without a
	// subject identity.
	ErrMissingSubject = errors.New("subject id is required")
	// ErrMissingCredential is returned when a session is started without a
	// backend credential.
	ErrMissingCredential = errors.New("credential is required")
	// ErrSessionStopped is returned when Start is called on a session that
	// already ran. Sessions are single-use; build a new one to restart.
	ErrSessionStopped = errors.New("session already used")
)

// Config carries the per-subject knobs of a session.
type Config struct {
	SubjectID  string
	Credential string

	BatchSize         int
	Limits            sensor.Limits
	MovementThreshold float64

	SubmitTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = sensor.DefaultBatchSize
	}
	if c.Limits == (sensor.Limits{}) {
		c.Limits = sensor.DefaultLimits()
	}
	if c.MovementThreshold <= 0 {
		c.MovementThreshold = sensor.DefaultMovementThreshold
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 15 * time.Second
	}
}

// TransmissionState counts what left the session and what did not.
type TransmissionState struct {
	SamplesSeen      uint64
	BatchesSubmitted uint64
	BatchesFailed    uint64
	RealtimeSent     uint64
	RealtimeDropped  uint64
}

// Session runs the full pipeline for one subject: raw samples come off the
// device link, vitals are derived per sample, snapshots go out on the
// realtime channel, and sealed batches go to the relay. A session runs once;
// after Stop it cannot be restarted.
type Session struct {
	id     string
	cfg    Config
	logger *logrus.Logger

	link      *devlink.Link
	relay     *relay.Client
	publisher *realtime.Publisher

	buffer   *sensor.Buffer
	activity *sensor.ActivityTracker

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	latest  wire.VitalsSnapshot
	counts  TransmissionState

	loopDone chan struct{}
	now      func() time.Time
}

// New assembles a session from its already-configured parts. Nothing starts
// until Start is called.
func New(cfg Config, link *devlink.Link, relayClient *relay.Client, publisher *realtime.Publisher, logger *logrus.Logger) *Session {
	cfg.applyDefaults()
	if logger == nil {
		logger = logrus.New()
	}
	return &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		logger:    logger,
		link:      link,
		relay:     relayClient,
		publisher: publisher,
		buffer:    sensor.NewBuffer(cfg.SubjectID, cfg.BatchSize),
		activity:  sensor.NewActivityTracker(cfg.MovementThreshold),
		loopDone:  make(chan struct{}),
		now:       time.Now,
	}
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// SubjectID returns the subject this session monitors.
func (s *Session) SubjectID() string { return s.cfg.SubjectID }

// Start validates identity, brings the device link up and begins processing
// samples. The realtime channel is best-effort: a failed publisher connect is
// logged and the session continues on the relay path alone.
func (s *Session) Start(ctx context.Context) error {
	if s.cfg.SubjectID == "" {
		return ErrMissingSubject
	}
	if s.cfg.Credential == "" {
		return ErrMissingCredential
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session %s already started", s.id)
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.activity.Reset(s.now())

	if err := s.link.Start(runCtx); err != nil {
		cancel()
		// The loop never runs, so release anyone who calls Stop later.
		close(s.loopDone)
		return fmt.Errorf("start device link: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.Connect(runCtx, s.cfg.SubjectID, nil); err != nil {
			s.logger.WithFields(logrus.Fields{
				"session": s.id,
				"error":   err,
			}).Warn("Realtime channel unavailable, continuing with relay only")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"session": s.id,
		"subject": s.cfg.SubjectID,
	}).Info("Session started")

	groutine.Go(runCtx, "session-loop", s.loop)
	return nil
}

// Stop tears the session down: the device link first so the sample stream
// ends, then the processing loop drains, then the realtime channel closes.
// Idempotent; safe to call on a session that never started.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()

	if !started {
		return
	}

	s.link.Stop()
	if cancel != nil {
		cancel()
	}
	<-s.loopDone

	if s.publisher != nil {
		s.publisher.Close()
	}
	s.logger.WithField("session", s.id).Info("Session stopped")
}

// Vitals returns the most recently derived snapshot for this subject.
func (s *Session) Vitals() wire.VitalsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Transmission returns the session's delivery counters.
func (s *Session) Transmission() TransmissionState {
	s.mu.Lock()
	counts := s.counts
	s.mu.Unlock()
	counts.BatchesSubmitted = s.relay.Counters().Submitted()
	counts.BatchesFailed = s.relay.Counters().Failed()
	return counts
}

// LinkStatus reports the device link state.
func (s *Session) LinkStatus() devlink.Status {
	return s.link.Status()
}

// loop consumes samples until the link closes its stream. Relay submissions
// are fire-and-forget so a slow backend never stalls sample intake.
func (s *Session) loop(ctx context.Context) {
	defer close(s.loopDone)

	for sample := range s.link.Samples() {
		s.process(ctx, sample)
	}

	// Keep the last known vitals visible, stale but marked disconnected.
	s.mu.Lock()
	s.latest.Connected = false
	s.mu.Unlock()

	// Partial windows are discarded, never padded or submitted short.
	if n := s.buffer.Pending(); n > 0 {
		s.logger.WithFields(logrus.Fields{
			"session": s.id,
			"samples": n,
		}).Debug("Discarding partial batch at shutdown")
		s.buffer.Clear()
	}
}

func (s *Session) process(ctx context.Context, sample wire.Sample) {
	now := s.now()
	inactivity := s.activity.Observe(sample, now)
	bpm := sensor.EstimateHeartRate(sample.PPG)
	status := sensor.ClassifyStatus(bpm, int(inactivity.Minutes()), s.cfg.Limits)

	snap := wire.VitalsSnapshot{
		SubjectID:         s.cfg.SubjectID,
		HeartRate:         bpm,
		InactivityMinutes: int(inactivity.Minutes()),
		Status:            status,
		Connected:         true,
		Timestamp:         now,
	}

	s.mu.Lock()
	s.counts.SamplesSeen++
	s.latest = snap
	s.mu.Unlock()

	if s.publisher != nil {
		sent := s.publisher.Send(bpm, int(inactivity.Seconds()), status)
		s.mu.Lock()
		if sent {
			s.counts.RealtimeSent++
		} else {
			s.counts.RealtimeDropped++
		}
		s.mu.Unlock()
	}

	if batch := s.buffer.Add(sample); batch != nil {
		s.submit(ctx, batch)
	}
}

// submit ships one sealed batch in the background. The submit context is
// detached from the session context so an in-flight upload survives Stop,
// bounded by its own timeout.
func (s *Session) submit(ctx context.Context, batch *wire.Batch) {
	groutine.Go(ctx, "session-submit", func(context.Context) {
		submitCtx, cancel := context.WithTimeout(context.Background(), s.cfg.SubmitTimeout)
		defer cancel()

		if _, err := s.relay.Submit(submitCtx, batch); err != nil {
			s.logger.WithFields(logrus.Fields{
				"session": s.id,
				"error":   err,
			}).Warn("Batch submission failed")
		}
	})
}
