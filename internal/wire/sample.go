package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedPayload indicates a peripheral payload that could not be decoded
// into a Sample. Callers decide whether to drop or log; the parser never fails
// past its boundary with anything else.
var ErrMalformedPayload = errors.New("malformed payload")

// Sample is one instant sensor reading from the wearable: 3-axis accelerometer,
// 3-axis gyroscope (zero when the peripheral omits it), one raw PPG value, and
// the capture timestamp in milliseconds since epoch. Immutable once constructed.
type Sample struct {
	AccX float32
	AccY float32
	AccZ float32

	GyroX float32
	GyroY float32
	GyroZ float32

	PPG int

	// CapturedAt is milliseconds since epoch at notification receipt.
	CapturedAt int64
}

type axisPayload struct {
	X *float32 `json:"x"`
	Y *float32 `json:"y"`
	Z *float32 `json:"z"`
}

type samplePayload struct {
	Acc  *axisPayload `json:"acc"`
	Gyro *axisPayload `json:"gyro"`
	PPG  *int         `json:"ppg"`
}

// ParseSample decodes a raw peripheral payload (UTF-8 JSON) into a Sample.
//
// Expected shape:
//
//	{"acc":{"x":0.1,"y":0.2,"z":0.98},"gyro":{"x":0.01,"y":0.01,"z":0.01},"ppg":2000}
//
// The gyro object is optional and defaults to (0,0,0). Missing required fields,
// wrong types, or unparsable JSON return an error wrapping ErrMalformedPayload.
// capturedAt stamps the sample; the parser itself is pure and reads no clock.
func ParseSample(payload []byte, capturedAt time.Time) (Sample, error) {
	var p samplePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if p.Acc == nil {
		return Sample{}, fmt.Errorf("%w: missing required field %q", ErrMalformedPayload, "acc")
	}
	if p.Acc.X == nil || p.Acc.Y == nil || p.Acc.Z == nil {
		return Sample{}, fmt.Errorf("%w: incomplete acc object", ErrMalformedPayload)
	}
	if p.PPG == nil {
		return Sample{}, fmt.Errorf("%w: missing required field %q", ErrMalformedPayload, "ppg")
	}

	s := Sample{
		AccX:       *p.Acc.X,
		AccY:       *p.Acc.Y,
		AccZ:       *p.Acc.Z,
		PPG:        *p.PPG,
		CapturedAt: capturedAt.UnixMilli(),
	}

	if p.Gyro != nil {
		if p.Gyro.X == nil || p.Gyro.Y == nil || p.Gyro.Z == nil {
			return Sample{}, fmt.Errorf("%w: incomplete gyro object", ErrMalformedPayload)
		}
		s.GyroX = *p.Gyro.X
		s.GyroY = *p.Gyro.Y
		s.GyroZ = *p.Gyro.Z
	}

	return s, nil
}
