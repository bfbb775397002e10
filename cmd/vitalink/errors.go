package main

import (
	"errors"

	"github.com/cdtp/vitalink/internal/device"
	"github.com/cdtp/vitalink/internal/devlink"
	"github.com/cdtp/vitalink/internal/relay"
)

// FormatUserError turns internal errors into actionable messages. Unknown
// errors pass through unchanged.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, device.ErrAdapterOff), errors.Is(err, devlink.ErrAdapterUnavailable):
		return "bluetooth adapter is off or unavailable - turn bluetooth on and try again"
	case errors.Is(err, device.ErrNotConnected):
		return "wearable is not connected - check that it is powered on and in range"
	case errors.Is(err, relay.ErrTimeout):
		return "backend did not respond in time - check the ingest base URL and network"
	case errors.Is(err, relay.ErrServerRejected):
		return "backend rejected the upload - check the bearer token and subject id"
	default:
		return err.Error()
	}
}
