package sensor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cdtp/vitalink/internal/sensor"
	"github.com/cdtp/vitalink/internal/wire"
)

func TestEstimateHeartRate(t *testing.T) {
	tests := []struct {
		name string
		ppg  int
		want int
	}{
		{name: "baseline maps to floor", ppg: 1800, want: 60},
		{name: "below baseline clamps to floor", ppg: 0, want: 60},
		{name: "mid range", ppg: 2000, want: 80},
		{name: "offset rounds down", ppg: 2009, want: 80},
		{name: "top of range", ppg: 2400, want: 120},
		{name: "above range clamps to ceiling", ppg: 9999, want: 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sensor.EstimateHeartRate(tt.ppg))
		})
	}
}

func TestClassifyStatus_Boundaries(t *testing.T) {
	lim := sensor.DefaultLimits()

	tests := []struct {
		name       string
		bpm        int
		inactivity int
		want       wire.Status
	}{
		{name: "lower comfort bound is inclusive", bpm: 60, want: wire.StatusNormal},
		{name: "upper comfort bound is inclusive", bpm: 100, want: wire.StatusNormal},
		{name: "one below comfort band", bpm: 59, want: wire.StatusWarning},
		{name: "one above comfort band", bpm: 101, want: wire.StatusWarning},
		{name: "at lower critical threshold", bpm: 50, want: wire.StatusWarning},
		{name: "below lower critical threshold", bpm: 49, want: wire.StatusCritical},
		{name: "at upper critical threshold", bpm: 120, want: wire.StatusWarning},
		{name: "above upper critical threshold", bpm: 121, want: wire.StatusCritical},
		{name: "inactivity at limit stays normal", bpm: 75, inactivity: 60, want: wire.StatusNormal},
		{name: "inactivity past limit warns", bpm: 75, inactivity: 61, want: wire.StatusWarning},
		{name: "critical bpm wins over inactivity", bpm: 130, inactivity: 600, want: wire.StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sensor.ClassifyStatus(tt.bpm, tt.inactivity, lim))
		})
	}
}

func TestClassifyStatus_CustomLimits(t *testing.T) {
	lim := sensor.Limits{
		ComfortLow:             70,
		ComfortHigh:            90,
		CriticalLow:            55,
		CriticalHigh:           110,
		InactivityLimitMinutes: 10,
	}

	assert.Equal(t, wire.StatusNormal, sensor.ClassifyStatus(70, 0, lim))
	assert.Equal(t, wire.StatusWarning, sensor.ClassifyStatus(69, 0, lim))
	assert.Equal(t, wire.StatusCritical, sensor.ClassifyStatus(54, 0, lim))
	assert.Equal(t, wire.StatusWarning, sensor.ClassifyStatus(80, 11, lim))
}

func TestActivityTracker(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := sensor.NewActivityTracker(1.5)

	still := wire.Sample{AccX: 0.2, AccY: 0.1, AccZ: 0.9}
	moving := wire.Sample{AccX: 1.5, AccY: 1.0, AccZ: 0.5} // magnitude ≈ 1.87

	// First observation establishes the reference instant.
	assert.Equal(t, time.Duration(0), tracker.Observe(still, base))

	// Stillness accumulates inactivity.
	got := tracker.Observe(still, base.Add(90*time.Second))
	assert.Equal(t, 90*time.Second, got)

	// Movement resets the counter.
	got = tracker.Observe(moving, base.Add(2*time.Minute))
	assert.Equal(t, time.Duration(0), got)

	got = tracker.Observe(still, base.Add(5*time.Minute))
	assert.Equal(t, 3*time.Minute, got)

	// Explicit reset behaves like movement.
	tracker.Reset(base.Add(6 * time.Minute))
	assert.Equal(t, time.Duration(0), tracker.Inactivity(base.Add(6*time.Minute)))
}
