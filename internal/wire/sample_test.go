package wire_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdtp/vitalink/internal/wire"
)

func TestParseSample_ValidPayloads(t *testing.T) {
	capturedAt := time.UnixMilli(1709420000123)

	tests := []struct {
		name    string
		payload string
		want    wire.Sample
	}{
		{
			name:    "full payload with gyro",
			payload: `{"acc":{"x":0.1,"y":0.2,"z":0.98},"gyro":{"x":0.01,"y":0.02,"z":0.03},"ppg":2000}`,
			want: wire.Sample{
				AccX: 0.1, AccY: 0.2, AccZ: 0.98,
				GyroX: 0.01, GyroY: 0.02, GyroZ: 0.03,
				PPG:        2000,
				CapturedAt: 1709420000123,
			},
		},
		{
			name:    "simple payload without gyro defaults to zero",
			payload: `{"acc":{"x":-1.5,"y":0,"z":9.81},"ppg":1850}`,
			want: wire.Sample{
				AccX: -1.5, AccY: 0, AccZ: 9.81,
				PPG:        1850,
				CapturedAt: 1709420000123,
			},
		},
		{
			name:    "negative ppg is accepted as-is",
			payload: `{"acc":{"x":0,"y":0,"z":0},"ppg":-12}`,
			want: wire.Sample{
				PPG:        -12,
				CapturedAt: 1709420000123,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := wire.ParseSample([]byte(tt.payload), capturedAt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSample_MalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: `not-json`},
		{name: "empty payload", payload: ``},
		{name: "missing acc", payload: `{"ppg":2000}`},
		{name: "missing ppg", payload: `{"acc":{"x":0.1,"y":0.2,"z":0.98}}`},
		{name: "acc missing axis", payload: `{"acc":{"x":0.1,"y":0.2},"ppg":2000}`},
		{name: "acc with non-numeric axis", payload: `{"acc":{"x":"bad","y":0.2,"z":0.98},"ppg":2000}`},
		{name: "gyro with non-numeric axis", payload: `{"acc":{"x":0.1,"y":0.2,"z":0.98},"gyro":{"x":true,"y":0,"z":0},"ppg":2000}`},
		{name: "incomplete gyro object", payload: `{"acc":{"x":0.1,"y":0.2,"z":0.98},"gyro":{"x":0.1},"ppg":2000}`},
		{name: "fractional ppg", payload: `{"acc":{"x":0.1,"y":0.2,"z":0.98},"ppg":2000.5}`},
		{name: "ppg as string", payload: `{"acc":{"x":0.1,"y":0.2,"z":0.98},"ppg":"2000"}`},
		{name: "acc as array", payload: `{"acc":[0.1,0.2,0.98],"ppg":2000}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wire.ParseSample([]byte(tt.payload), time.Now())
			require.Error(t, err)
			assert.ErrorIs(t, err, wire.ErrMalformedPayload)
		})
	}
}
