// Package relay submits sealed sample batches to the ingestion backend over
// its request/response channel. Each batch is one POST; failures are counted
// and surfaced, never retried implicitly beyond the configured policy.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cdtp/vitalink/internal/wire"
)

// ingestPath is the ingestion service's batch submission endpoint.
const ingestPath = "/api/v1/ingest"

// FailureKind discriminates submission failures.
type FailureKind string

const (
	FailureTimeout   FailureKind = "timeout"
	FailureRejected  FailureKind = "server_rejected"
	FailureTransport FailureKind = "transport_error"
)

// SubmitError is the typed failure returned by Submit.
type SubmitError struct {
	Kind FailureKind
	Code int // HTTP status for FailureRejected, 0 otherwise
	Err  error
}

func (e *SubmitError) Error() string {
	switch e.Kind {
	case FailureRejected:
		return fmt.Sprintf("server rejected batch (%d)", e.Code)
	case FailureTimeout:
		return fmt.Sprintf("submission timed out: %v", e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Is allows errors.Is comparison by failure kind.
func (e *SubmitError) Is(target error) bool {
	t, ok := target.(*SubmitError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == 0 || t.Code == e.Code)
}

// Sentinels for errors.Is checks.
var (
	ErrTimeout        = &SubmitError{Kind: FailureTimeout}
	ErrServerRejected = &SubmitError{Kind: FailureRejected}
	ErrTransport      = &SubmitError{Kind: FailureTransport}
)

// Ack is the backend's acknowledgment of an accepted batch.
type Ack struct {
	Message string
}

// Policy is the explicit, tunable retry policy. The default (one attempt, no
// backoff) preserves at-most-once delivery; operators who prefer retries over
// possible data loss raise MaxAttempts. Duplicate submission on retry is
// possible and must be tolerated by the backend.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultPolicy is at-most-once: no retry inside the core.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 1}
}

// Config holds the relay's endpoint and credential.
type Config struct {
	BaseURL    string
	Credential string
	Timeout    time.Duration
	Policy     Policy
}

// Counters tracks submission outcomes for the orchestrator's transmission
// state. Accessors are safe for concurrent use.
type Counters struct {
	submitted atomic.Uint64
	failed    atomic.Uint64
}

// Submitted returns the number of acknowledged batches.
func (c *Counters) Submitted() uint64 { return c.submitted.Load() }

// Failed returns the number of batches that ultimately failed.
func (c *Counters) Failed() uint64 { return c.failed.Load() }

// Client submits batches to the ingestion endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logrus.Logger
	counters   Counters
}

// NewClient creates a relay client. BaseURL must be a valid absolute URL.
func NewClient(cfg Config, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Policy.MaxAttempts < 1 {
		cfg.Policy.MaxAttempts = 1
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid ingestion base URL %q: %w", cfg.BaseURL, err)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// Counters exposes the submission counters.
func (c *Client) Counters() *Counters { return &c.counters }

// Submit posts one batch. It blocks until the backend acknowledges, the
// timeout elapses, or the policy is exhausted; callers that must not stall
// invoke it from their own task. No ordering is imposed across in-flight
// submissions.
func (c *Client) Submit(ctx context.Context, batch *wire.Batch) (*Ack, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.Policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, &SubmitError{Kind: FailureTransport, Err: ctx.Err()}
			case <-time.After(c.cfg.Policy.Backoff):
			}
		}

		ack, err := c.submitOnce(ctx, batch)
		if err == nil {
			c.counters.submitted.Add(1)
			return ack, nil
		}
		lastErr = err

		c.logger.WithFields(logrus.Fields{
			"subject": batch.SubjectID,
			"samples": batch.Len(),
			"attempt": attempt,
			"error":   err,
		}).Warn("Batch submission failed")
	}

	c.counters.failed.Add(1)
	return nil, lastErr
}

func (c *Client) submitOnce(ctx context.Context, batch *wire.Batch) (*Ack, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, &SubmitError{Kind: FailureTransport, Err: err}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + ingestPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &SubmitError{Kind: FailureTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &SubmitError{Kind: FailureTimeout, Err: err}
		}
		return nil, &SubmitError{Kind: FailureTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SubmitError{Kind: FailureRejected, Code: resp.StatusCode}
	}

	// The envelope is advisory; an unreadable body on a 2xx still counts as
	// accepted, matching the backend's contract.
	var envelope wire.APIResponse
	if data, readErr := io.ReadAll(resp.Body); readErr == nil && len(data) > 0 {
		if jsonErr := json.Unmarshal(data, &envelope); jsonErr == nil && !envelope.Success {
			return nil, &SubmitError{Kind: FailureRejected, Code: resp.StatusCode}
		}
	}

	return &Ack{Message: envelope.Message}, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
