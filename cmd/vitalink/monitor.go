package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cdtp/vitalink/internal/config"
	"github.com/cdtp/vitalink/internal/device/goble"
	"github.com/cdtp/vitalink/internal/devlink"
	"github.com/cdtp/vitalink/internal/realtime"
	"github.com/cdtp/vitalink/internal/relay"
	"github.com/cdtp/vitalink/internal/sensor"
	"github.com/cdtp/vitalink/internal/session"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <subject-id>",
	Short: "Stream a subject's vitals from their wearable to the backend",
	Long: `Connect to the subject's wearable, derive vitals from every sensor
reading, relay sealed sample batches to the ingestion API and publish live
snapshots over WebSocket. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

var monitorStatusInterval time.Duration

func init() {
	monitorCmd.Flags().DurationVar(&monitorStatusInterval, "status-interval", 30*time.Second,
		"How often to print a status line (0 to disable)")
}

// resolveToken returns the backend credential from --token or VITALINK_TOKEN.
func resolveToken(cmd *cobra.Command) string {
	if token, _ := cmd.Flags().GetString("token"); token != "" {
		return token
	}
	return os.Getenv("VITALINK_TOKEN")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	token := resolveToken(cmd)
	if token == "" {
		return fmt.Errorf("no credential: pass --token or set VITALINK_TOKEN")
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	subject := args[0]

	link := devlink.New(devlink.Config{
		DeviceName:         cfg.Device.Name,
		ServiceUUID:        cfg.Device.ServiceUUID,
		CharacteristicUUID: cfg.Device.CharacteristicUUID,
		ScanTimeout:        cfg.Device.ScanTimeout,
		ConnectTimeout:     cfg.Device.ConnectTimeout,
		SampleBufferSize:   cfg.Device.SampleBufferSize,
	}, goble.NewTransport(logger), logger)

	relayClient, err := relay.NewClient(relay.Config{
		BaseURL:    cfg.Ingest.BaseURL,
		Credential: token,
		Timeout:    cfg.Ingest.Timeout,
		Policy: relay.Policy{
			MaxAttempts: cfg.Ingest.MaxAttempts,
			Backoff:     cfg.Ingest.RetryBackoff,
		},
	}, logger)
	if err != nil {
		return err
	}

	publisher := realtime.NewPublisher(realtime.Config{
		BaseURL:          cfg.Realtime.BaseURL,
		Credential:       token,
		HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
		WriteTimeout:     cfg.Realtime.WriteTimeout,
	}, logger)

	sess := session.New(session.Config{
		SubjectID:  subject,
		Credential: token,
		BatchSize:  cfg.Ingest.BatchSize,
		Limits: sensor.Limits{
			ComfortLow:             cfg.Vitals.ComfortLow,
			ComfortHigh:            cfg.Vitals.ComfortHigh,
			CriticalLow:            cfg.Vitals.CriticalLow,
			CriticalHigh:           cfg.Vitals.CriticalHigh,
			InactivityLimitMinutes: cfg.Vitals.InactivityLimitMinutes,
		},
		MovementThreshold: cfg.Vitals.MovementThreshold,
	}, link, relayClient, publisher, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := session.NewManager(logger)
	if err := mgr.Start(ctx, sess); err != nil {
		return err
	}

	fmt.Printf("Monitoring subject %s (session %s), press Ctrl+C to stop\n", subject, sess.ID())

	var ticker *time.Ticker
	var tick <-chan time.Time
	if monitorStatusInterval > 0 {
		ticker = time.NewTicker(monitorStatusInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-tick:
			printStatusLine(sess)
		}
	}

	mgr.StopAll()

	tx := sess.Transmission()
	fmt.Printf("\nSession summary:\n")
	fmt.Printf("  samples seen:      %d\n", tx.SamplesSeen)
	fmt.Printf("  batches submitted: %d\n", tx.BatchesSubmitted)
	fmt.Printf("  batches failed:    %d\n", tx.BatchesFailed)
	fmt.Printf("  realtime sent:     %d\n", tx.RealtimeSent)
	fmt.Printf("  realtime dropped:  %d\n", tx.RealtimeDropped)
	return nil
}

func printStatusLine(sess *session.Session) {
	link := sess.LinkStatus()
	if link.State != devlink.StateStreaming {
		line := fmt.Sprintf("link %s", link.State)
		if link.Reason != "" {
			line += " (" + link.Reason + ")"
		}
		fmt.Println(line)
		return
	}

	vitals := sess.Vitals()
	fmt.Printf("%s  hr=%d bpm  inactivity=%d min  status=%s\n",
		vitals.Timestamp.Format(time.TimeOnly),
		vitals.HeartRate,
		vitals.InactivityMinutes,
		colorizeStatus(vitals.Status))
}
