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
	"github.com/cdtp/vitalink/internal/realtime"
)

// observeCmd represents the observe command
var observeCmd = &cobra.Command{
	Use:   "observe <subject-id>",
	Short: "Follow a subject's live vitals",
	Long: `Subscribe to the realtime vitals stream for a subject and print every
snapshot as it arrives. Intended for the caregiver side; requires the same
backend credential as monitoring. Runs until interrupted or the stream ends.`,
	Args: cobra.ExactArgs(1),
	RunE: runObserve,
}

func runObserve(cmd *cobra.Command, args []string) error {
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

	cmd.SilenceUsage = true

	subject := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := realtime.NewSubscriber(realtime.Config{
		BaseURL:          cfg.Realtime.BaseURL,
		Credential:       token,
		HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
		WriteTimeout:     cfg.Realtime.WriteTimeout,
	}, logger)

	stream, err := sub.Subscribe(ctx, subject)
	if err != nil {
		return err
	}

	fmt.Printf("Observing subject %s, press Ctrl+C to stop\n", subject)

	for snap := range stream {
		note := ""
		if !snap.Connected {
			note = "  (wearable disconnected)"
		}
		fmt.Printf("%s  %s  hr=%d bpm  inactivity=%d min  %s%s\n",
			snap.Timestamp.Local().Format(time.TimeOnly),
			snap.SubjectID,
			snap.HeartRate,
			snap.InactivityMinutes,
			colorizeStatus(snap.Status),
			note)
	}

	if ctx.Err() != nil {
		// Interrupted by the user: a clean exit.
		return nil
	}
	return fmt.Errorf("vitals stream for %s ended unexpectedly", subject)
}
