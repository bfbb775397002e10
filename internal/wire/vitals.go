package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the overall alert classification attached to a vitals reading.
type Status string

const (
	StatusNormal   Status = "NORMAL"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
)

// ErrUnknownMessage indicates a realtime frame that matches neither the
// enveloped nor the flat vital-message shape. Such frames are dropped by the
// channel without failing it.
var ErrUnknownMessage = errors.New("unknown realtime message")

// VitalsSnapshot is the observer-facing derived state: one heart-rate estimate
// with its inactivity and alert classification. Superseded entirely by the
// next snapshot; the core retains no history.
type VitalsSnapshot struct {
	SubjectID         string
	HeartRate         int
	InactivityMinutes int
	Status            Status
	Connected         bool
	Timestamp         time.Time
}

// vitalPayload is the inner "data" object of a realtime vital message.
type vitalPayload struct {
	HeartRate         int    `json:"heart_rate"`
	InactivitySeconds int    `json:"inactivity_seconds"`
	Status            string `json:"status"`
	Timestamp         string `json:"timestamp"`
}

// vitalEnvelope is the tagged outer frame exchanged over the realtime channel.
type vitalEnvelope struct {
	Type      string          `json:"type"`
	PatientID string          `json:"patient_id"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// flatVitalMessage is the legacy non-enveloped form: the top-level object
// carries the vital fields directly. All fields are required.
type flatVitalMessage struct {
	PatientID         *string `json:"patient_id"`
	HeartRate         *int    `json:"heart_rate"`
	InactivitySeconds *int    `json:"inactivity_seconds"`
	Status            *string `json:"status"`
	Timestamp         *string `json:"timestamp"`
}

// EncodeVitalMessage builds the enveloped realtime frame for one vitals update:
//
//	{"type":"vital_data","patient_id":"...","data":{"heart_rate":72,...}}
//
// Timestamps are emitted as ISO 8601 (RFC 3339) UTC strings.
func EncodeVitalMessage(subjectID string, heartRate, inactivitySeconds int, status Status, ts time.Time) ([]byte, error) {
	payload, err := json.Marshal(vitalPayload{
		HeartRate:         heartRate,
		InactivitySeconds: inactivitySeconds,
		Status:            string(status),
		Timestamp:         ts.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("encode vital payload: %w", err)
	}
	return json.Marshal(vitalEnvelope{
		Type:      "vital_data",
		PatientID: subjectID,
		Data:      payload,
	})
}

// DecodeVitalMessage parses an inbound realtime frame into a VitalsSnapshot.
// It tries the enveloped shape first (types "vital_data" and "new_measurement";
// when the envelope has no nested "data" the top-level object carries the
// payload), then falls back to the flat shape, and fails closed with
// ErrUnknownMessage when neither matches. fallbackSubject fills the subject id
// when the frame omits it.
func DecodeVitalMessage(data []byte, fallbackSubject string) (VitalsSnapshot, error) {
	var env vitalEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return VitalsSnapshot{}, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}

	switch env.Type {
	case "vital_data", "new_measurement":
		raw := env.Data
		if len(raw) == 0 {
			raw = data
		}
		var p vitalPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return VitalsSnapshot{}, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
		}
		subject := env.PatientID
		if subject == "" {
			subject = fallbackSubject
		}
		return snapshotFromPayload(subject, p), nil
	}

	// Flat legacy form: every field must be present.
	var flat flatVitalMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return VitalsSnapshot{}, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}
	if flat.PatientID == nil || flat.HeartRate == nil || flat.InactivitySeconds == nil ||
		flat.Status == nil || flat.Timestamp == nil {
		return VitalsSnapshot{}, fmt.Errorf("%w: incomplete flat message", ErrUnknownMessage)
	}
	return snapshotFromPayload(*flat.PatientID, vitalPayload{
		HeartRate:         *flat.HeartRate,
		InactivitySeconds: *flat.InactivitySeconds,
		Status:            *flat.Status,
		Timestamp:         *flat.Timestamp,
	}), nil
}

func snapshotFromPayload(subjectID string, p vitalPayload) VitalsSnapshot {
	ts, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		ts = time.Time{} // best effort; an unparsable timestamp does not drop the frame
	}
	status := Status(p.Status)
	switch status {
	case StatusNormal, StatusWarning, StatusCritical:
	default:
		status = StatusNormal
	}
	return VitalsSnapshot{
		SubjectID:         subjectID,
		HeartRate:         p.HeartRate,
		InactivityMinutes: p.InactivitySeconds / 60,
		Status:            status,
		Connected:         true,
		Timestamp:         ts,
	}
}
