package sensor

import (
	"math"
	"time"

	"github.com/cdtp/vitalink/internal/wire"
)

// PPG-to-BPM placeholder mapping. A real heart-rate algorithm needs peak
// detection over the PPG waveform and lives in the backend; this linear map
// only keeps the live display in a physiologically plausible range.
const (
	ppgBaseline = 1800
	ppgDivisor  = 10
	bpmFloor    = 60
	bpmCeiling  = 120
)

// Limits configures the status classification bands. Comfort bounds are
// inclusive; inactivity is in minutes.
type Limits struct {
	ComfortLow   int
	ComfortHigh  int
	CriticalLow  int
	CriticalHigh int

	InactivityLimitMinutes int
}

// DefaultLimits mirrors the backend's default patient settings.
func DefaultLimits() Limits {
	return Limits{
		ComfortLow:             60,
		ComfortHigh:            100,
		CriticalLow:            50,
		CriticalHigh:           120,
		InactivityLimitMinutes: 60,
	}
}

// EstimateHeartRate maps a raw PPG reading onto a bounded BPM estimate:
// 60 + (ppg-1800)/10, clamped to [60, 120].
func EstimateHeartRate(ppg int) int {
	offset := (ppg - ppgBaseline) / ppgDivisor
	if offset < 0 {
		offset = 0
	}
	if offset > bpmCeiling-bpmFloor {
		offset = bpmCeiling - bpmFloor
	}
	return bpmFloor + offset
}

// ClassifyStatus derives the alert status for one reading. CRITICAL when bpm
// falls outside the critical band, WARNING when it leaves the inclusive
// comfort band or inactivity exceeds its limit, NORMAL otherwise.
func ClassifyStatus(bpm, inactivityMinutes int, lim Limits) wire.Status {
	switch {
	case bpm < lim.CriticalLow || bpm > lim.CriticalHigh:
		return wire.StatusCritical
	case bpm < lim.ComfortLow || bpm > lim.ComfortHigh:
		return wire.StatusWarning
	case inactivityMinutes > lim.InactivityLimitMinutes:
		return wire.StatusWarning
	default:
		return wire.StatusNormal
	}
}

// DefaultMovementThreshold is the accelerometer magnitude (in g) above which
// a sample counts as movement.
const DefaultMovementThreshold = 1.5

// ActivityTracker derives an inactivity duration from the accelerometer
// stream. Owned by one session; not safe for concurrent use.
type ActivityTracker struct {
	threshold    float64
	lastMovement time.Time
}

// NewActivityTracker creates a tracker. A non-positive threshold falls back
// to DefaultMovementThreshold.
func NewActivityTracker(threshold float64) *ActivityTracker {
	if threshold <= 0 {
		threshold = DefaultMovementThreshold
	}
	return &ActivityTracker{threshold: threshold}
}

// Observe feeds one sample at the given time and returns the inactivity
// duration since the last detected movement.
func (t *ActivityTracker) Observe(s wire.Sample, now time.Time) time.Duration {
	if t.lastMovement.IsZero() {
		t.lastMovement = now
	}
	magnitude := math.Sqrt(float64(s.AccX*s.AccX + s.AccY*s.AccY + s.AccZ*s.AccZ))
	if magnitude > t.threshold {
		t.lastMovement = now
	}
	return now.Sub(t.lastMovement)
}

// Inactivity returns the duration since the last movement without consuming
// a sample.
func (t *ActivityTracker) Inactivity(now time.Time) time.Duration {
	if t.lastMovement.IsZero() {
		return 0
	}
	return now.Sub(t.lastMovement)
}

// Reset marks the current instant as movement, e.g. after an operator check-in.
func (t *ActivityTracker) Reset(now time.Time) {
	t.lastMovement = now
}
