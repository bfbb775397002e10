package wire

import "encoding/json"

// AxisSeries holds parallel per-axis value sequences for one 3-axis sensor.
type AxisSeries struct {
	X []float32 `json:"x"`
	Y []float32 `json:"y"`
	Z []float32 `json:"z"`
}

// Batch is a sealed window of consecutive samples for one subject, shaped for
// the ingestion endpoint:
//
//	{
//	  "patient_id": "...",
//	  "timestamp": 1709420000.0,
//	  "accelerometer": {"x":[...], "y":[...], "z":[...]},
//	  "gyroscope":     {"x":[...], "y":[...], "z":[...]},
//	  "ppg_raw": [2000, 2050, ...]
//	}
//
// Timestamp is the capture time of the first sample in the window, in
// fractional seconds since epoch. All seven sequences have equal length.
// A Batch is immutable once sealed by the sample buffer.
type Batch struct {
	SubjectID     string     `json:"patient_id"`
	Timestamp     float64    `json:"timestamp"`
	Accelerometer AxisSeries `json:"accelerometer"`
	Gyroscope     AxisSeries `json:"gyroscope"`
	PPGRaw        []int      `json:"ppg_raw"`
}

// Len returns the number of samples in the window.
func (b *Batch) Len() int {
	return len(b.PPGRaw)
}

// APIResponse is the generic backend envelope returned by request/response
// endpoints: a success flag, an optional message, and an optional payload.
type APIResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
