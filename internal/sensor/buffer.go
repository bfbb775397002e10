// Package sensor holds the per-session sample accumulation and the simple
// vitals derivation used for live display. Heavy signal processing belongs to
// the backend; everything here is intentionally lightweight.
package sensor

import "github.com/cdtp/vitalink/internal/wire"

// DefaultBatchSize is one second worth of samples at the wearable's 5 Hz rate.
const DefaultBatchSize = 5

// Buffer accumulates sequential samples for a single subject and seals them
// into fixed-size batches for network submission. Single-writer; a fresh
// Buffer is constructed per session.
type Buffer struct {
	subjectID string
	size      int

	accX []float32
	accY []float32
	accZ []float32

	gyroX []float32
	gyroY []float32
	gyroZ []float32

	ppg []int

	// startMillis is the capture timestamp of the first sample in the
	// current window. Only meaningful while the window is non-empty.
	startMillis int64
}

// NewBuffer creates a buffer that seals a batch every size samples.
// A size below 1 falls back to DefaultBatchSize.
func NewBuffer(subjectID string, size int) *Buffer {
	if size < 1 {
		size = DefaultBatchSize
	}
	return &Buffer{subjectID: subjectID, size: size}
}

// Add appends one sample. On the sample that fills the window it returns the
// sealed batch and starts a new empty window; otherwise it returns nil.
// The batch timestamp is the first sample's capture time converted from
// milliseconds to fractional seconds.
func (b *Buffer) Add(s wire.Sample) *wire.Batch {
	// Emptiness is tracked by length, not by the timestamp value: a capture
	// time of exactly epoch millisecond zero is still a valid window start.
	if len(b.ppg) == 0 {
		b.startMillis = s.CapturedAt
	}

	b.accX = append(b.accX, s.AccX)
	b.accY = append(b.accY, s.AccY)
	b.accZ = append(b.accZ, s.AccZ)
	b.gyroX = append(b.gyroX, s.GyroX)
	b.gyroY = append(b.gyroY, s.GyroY)
	b.gyroZ = append(b.gyroZ, s.GyroZ)
	b.ppg = append(b.ppg, s.PPG)

	if len(b.ppg) >= b.size {
		return b.flush()
	}
	return nil
}

// Pending reports how many samples are buffered in the open window.
func (b *Buffer) Pending() int {
	return len(b.ppg)
}

// Clear discards the open window. Partial windows are never flushed.
func (b *Buffer) Clear() {
	b.accX = nil
	b.accY = nil
	b.accZ = nil
	b.gyroX = nil
	b.gyroY = nil
	b.gyroZ = nil
	b.ppg = nil
	b.startMillis = 0
}

func (b *Buffer) flush() *wire.Batch {
	batch := &wire.Batch{
		SubjectID: b.subjectID,
		Timestamp: float64(b.startMillis) / 1000.0,
		Accelerometer: wire.AxisSeries{
			X: b.accX,
			Y: b.accY,
			Z: b.accZ,
		},
		Gyroscope: wire.AxisSeries{
			X: b.gyroX,
			Y: b.gyroY,
			Z: b.gyroZ,
		},
		PPGRaw: b.ppg,
	}
	// Hand the slices over to the batch; the next window gets fresh ones.
	b.accX, b.accY, b.accZ = nil, nil, nil
	b.gyroX, b.gyroY, b.gyroZ = nil, nil, nil
	b.ppg = nil
	b.startMillis = 0
	return batch
}
