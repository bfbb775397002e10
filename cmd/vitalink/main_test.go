package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdtp/vitalink/internal/config"
	"github.com/cdtp/vitalink/internal/device"
	"github.com/cdtp/vitalink/internal/devlink"
	"github.com/cdtp/vitalink/internal/relay"
	"github.com/cdtp/vitalink/internal/wire"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "v2.0.0-rc1", formatVersion("2.0.0-rc1"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "adapter off",
			err:  fmt.Errorf("start link: %w", device.ErrAdapterOff),
			want: "bluetooth adapter is off or unavailable - turn bluetooth on and try again",
		},
		{
			name: "adapter unavailable",
			err:  devlink.ErrAdapterUnavailable,
			want: "bluetooth adapter is off or unavailable - turn bluetooth on and try again",
		},
		{
			name: "not connected",
			err:  device.ErrNotConnected,
			want: "wearable is not connected - check that it is powered on and in range",
		},
		{
			name: "relay timeout",
			err:  relay.ErrTimeout,
			want: "backend did not respond in time - check the ingest base URL and network",
		},
		{
			name: "relay rejection",
			err:  relay.ErrServerRejected,
			want: "backend rejected the upload - check the bearer token and subject id",
		},
		{
			name: "unknown error passes through",
			err:  errors.New("something else broke"),
			want: "something else broke",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}

func newFlaggedCommand(logLevel string) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("log-level", "", "")
	if logLevel != "" {
		cmd.Flags().Set("log-level", logLevel)
	}
	return cmd
}

func TestConfigureLogger_FlagOverridesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "info"

	logger, err := configureLogger(newFlaggedCommand("debug"), cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestConfigureLogger_FallsBackToConfig(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "warn"

	logger, err := configureLogger(newFlaggedCommand(""), cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
}

func TestConfigureLogger_RejectsInvalidLevels(t *testing.T) {
	for _, level := range []string{"loud", "trace", "fatal", "panic"} {
		_, err := configureLogger(newFlaggedCommand(level), config.Default())
		assert.Error(t, err, "level %q should be rejected", level)
	}
}

func TestColorizeStatus(t *testing.T) {
	// Color codes are stripped when not writing to a terminal; the status
	// word itself must always survive.
	assert.Contains(t, colorizeStatus(wire.StatusNormal), "NORMAL")
	assert.Contains(t, colorizeStatus(wire.StatusWarning), "WARNING")
	assert.Contains(t, colorizeStatus(wire.StatusCritical), "CRITICAL")
}
