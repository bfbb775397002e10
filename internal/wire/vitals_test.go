package wire_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdtp/vitalink/internal/wire"
)

func TestDecodeVitalMessage_Enveloped(t *testing.T) {
	raw := `{"type":"vital_data","patient_id":"p1","data":{"heart_rate":72,"inactivity_seconds":90,"status":"NORMAL","timestamp":"2024-01-01T00:00:00Z"}}`

	snap, err := wire.DecodeVitalMessage([]byte(raw), "fallback")
	require.NoError(t, err)

	assert.Equal(t, "p1", snap.SubjectID)
	assert.Equal(t, 72, snap.HeartRate)
	assert.Equal(t, 1, snap.InactivityMinutes)
	assert.Equal(t, wire.StatusNormal, snap.Status)
	assert.True(t, snap.Connected)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), snap.Timestamp)
}

func TestDecodeVitalMessage_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		subject string
		hr      int
		status  wire.Status
	}{
		{
			name:    "new_measurement type is accepted",
			raw:     `{"type":"new_measurement","patient_id":"p2","data":{"heart_rate":110,"inactivity_seconds":0,"status":"WARNING","timestamp":"2024-01-01T00:00:00Z"}}`,
			subject: "p2",
			hr:      110,
			status:  wire.StatusWarning,
		},
		{
			name:    "enveloped without nested data reads top-level fields",
			raw:     `{"type":"vital_data","patient_id":"p3","heart_rate":48,"inactivity_seconds":30,"status":"CRITICAL","timestamp":"2024-01-01T00:00:00Z"}`,
			subject: "p3",
			hr:      48,
			status:  wire.StatusCritical,
		},
		{
			name:    "envelope without patient id uses fallback subject",
			raw:     `{"type":"vital_data","data":{"heart_rate":65,"inactivity_seconds":10,"status":"NORMAL","timestamp":"2024-01-01T00:00:00Z"}}`,
			subject: "fallback",
			hr:      65,
			status:  wire.StatusNormal,
		},
		{
			name:    "flat legacy form",
			raw:     `{"patient_id":"p4","heart_rate":80,"inactivity_seconds":600,"status":"NORMAL","timestamp":"2024-01-01T00:00:00Z"}`,
			subject: "p4",
			hr:      80,
			status:  wire.StatusNormal,
		},
		{
			name:    "unknown status string normalizes to NORMAL",
			raw:     `{"patient_id":"p5","heart_rate":70,"inactivity_seconds":0,"status":"WEIRD","timestamp":"2024-01-01T00:00:00Z"}`,
			subject: "p5",
			hr:      70,
			status:  wire.StatusNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := wire.DecodeVitalMessage([]byte(tt.raw), "fallback")
			require.NoError(t, err)
			assert.Equal(t, tt.subject, snap.SubjectID)
			assert.Equal(t, tt.hr, snap.HeartRate)
			assert.Equal(t, tt.status, snap.Status)
			assert.True(t, snap.Connected)
		})
	}
}

func TestDecodeVitalMessage_FailsClosed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `garbage`},
		{name: "unrelated message kind", raw: `{"type":"ping"}`},
		{name: "flat form with missing field", raw: `{"patient_id":"p1","heart_rate":70,"status":"NORMAL","timestamp":"2024-01-01T00:00:00Z"}`},
		{name: "empty object", raw: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wire.DecodeVitalMessage([]byte(tt.raw), "p1")
			require.Error(t, err)
			assert.ErrorIs(t, err, wire.ErrUnknownMessage)
		})
	}
}

func TestEncodeVitalMessage_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 2, 15, 4, 5, 0, time.UTC)

	data, err := wire.EncodeVitalMessage("p1", 72, 90, wire.StatusNormal, ts)
	require.NoError(t, err)

	// The wire form is the enveloped shape.
	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &env))
	assert.JSONEq(t, `"vital_data"`, string(env["type"]))

	snap, err := wire.DecodeVitalMessage(data, "")
	require.NoError(t, err)
	assert.Equal(t, "p1", snap.SubjectID)
	assert.Equal(t, 72, snap.HeartRate)
	assert.Equal(t, 1, snap.InactivityMinutes)
	assert.Equal(t, wire.StatusNormal, snap.Status)
	assert.Equal(t, ts, snap.Timestamp)
}

func TestBatch_IngestBodyRoundTrip(t *testing.T) {
	batch := &wire.Batch{
		SubjectID: "p1",
		Timestamp: 1709420000.123,
		Accelerometer: wire.AxisSeries{
			X: []float32{0.1, 0.2, 0.3, 0.4, 0.5},
			Y: []float32{1.1, 1.2, 1.3, 1.4, 1.5},
			Z: []float32{9.8, 9.8, 9.8, 9.8, 9.8},
		},
		Gyroscope: wire.AxisSeries{
			X: []float32{0, 0, 0, 0, 0},
			Y: []float32{0.01, 0.02, 0.03, 0.04, 0.05},
			Z: []float32{0, 0, 0, 0, 0},
		},
		PPGRaw: []int{2000, 2010, 2020, 2030, 2040},
	}

	body, err := json.Marshal(batch)
	require.NoError(t, err)

	var decoded wire.Batch
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.Equal(t, batch.SubjectID, decoded.SubjectID)
	assert.InDelta(t, batch.Timestamp, decoded.Timestamp, 1e-9)
	assert.Equal(t, batch.Accelerometer, decoded.Accelerometer)
	assert.Equal(t, batch.Gyroscope, decoded.Gyroscope)
	assert.Equal(t, batch.PPGRaw, decoded.PPGRaw)
	assert.Equal(t, 5, decoded.Len())

	// Field names on the wire match the ingestion contract.
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &fields))
	for _, key := range []string{"patient_id", "timestamp", "accelerometer", "gyroscope", "ppg_raw"} {
		assert.Contains(t, fields, key)
	}
}
