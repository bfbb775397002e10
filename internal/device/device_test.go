package device_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cdtp/vitalink/internal/device"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{
			name:   "darwin adapter off",
			err:    fmt.Errorf("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"),
			target: device.ErrAdapterOff,
		},
		{
			name:   "generic adapter off",
			err:    fmt.Errorf("bluetooth is turned off"),
			target: device.ErrAdapterOff,
		},
		{
			name:   "linux adapter not powered",
			err:    fmt.Errorf("can't scan: adapter not powered"),
			target: device.ErrAdapterOff,
		},
		{
			name:   "not connected",
			err:    fmt.Errorf("write failed: device not connected"),
			target: device.ErrNotConnected,
		},
		{
			name:   "already connected",
			err:    fmt.Errorf("device already connected"),
			target: device.ErrAlreadyConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := device.NormalizeError(tt.err)
			assert.ErrorIs(t, got, tt.target)
			assert.Contains(t, got.Error(), tt.err.Error(), "original context must be preserved")
		})
	}

	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, device.NormalizeError(nil))
	})

	t.Run("unknown errors pass through unchanged", func(t *testing.T) {
		err := errors.New("some other failure")
		got := device.NormalizeError(err)
		assert.Equal(t, err, got)
		assert.NotErrorIs(t, got, device.ErrAdapterOff)
	})

	t.Run("context errors are not normalized", func(t *testing.T) {
		got := device.NormalizeError(context.Canceled)
		assert.ErrorIs(t, got, context.Canceled)
	})
}

func TestNormalizeUUID(t *testing.T) {
	assert.Equal(t, "0000180d00001000800000805f9b34fb", device.NormalizeUUID("0000180D-0000-1000-8000-00805F9B34FB"))
	assert.Equal(t, "2a37", device.NormalizeUUID("2A37"))
	assert.Equal(t, "180d", device.NormalizeUUID("180d"))
}

func TestNotFoundError(t *testing.T) {
	err := &device.NotFoundError{Resource: "service", UUID: "180d"}
	assert.Equal(t, `service "180d" not found`, err.Error())

	var target *device.NotFoundError
	assert.ErrorAs(t, fmt.Errorf("discovery: %w", err), &target)
	assert.Equal(t, "service", target.Resource)
}
