package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cdtp/vitalink/internal/config"
	"github.com/cdtp/vitalink/internal/device"
	"github.com/cdtp/vitalink/internal/device/goble"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby BLE peripherals",
	Long: `Scan for Bluetooth Low Energy peripherals and display their names,
addresses and signal strength. Useful for checking that a wearable is
advertising before starting a monitoring session.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanName     string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringVarP(&scanName, "name", "n", "", "Only show peripherals with this advertised name")
}

type discoveredPeripheral struct {
	Name        string `json:"name,omitempty"`
	Addr        string `json:"address"`
	RSSI        int    `json:"rssi"`
	Connectable bool   `json:"connectable"`
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	transport := goble.NewTransport(logger)
	scanner, err := transport.NewScanner()
	if err != nil {
		return fmt.Errorf("create BLE scanner: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, scanDuration)
	defer cancel()

	// Keep the strongest observation per address.
	var mu sync.Mutex
	seen := make(map[string]discoveredPeripheral)

	err = scanner.Scan(ctx, false, func(adv device.Advertisement) {
		if scanName != "" && adv.LocalName() != scanName {
			return
		}
		p := discoveredPeripheral{
			Name:        adv.LocalName(),
			Addr:        adv.Addr(),
			RSSI:        adv.RSSI(),
			Connectable: adv.Connectable(),
		}
		mu.Lock()
		if prev, ok := seen[p.Addr]; !ok || p.RSSI > prev.RSSI {
			seen[p.Addr] = p
		}
		mu.Unlock()
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scan failed: %w", device.NormalizeError(err))
	}

	mu.Lock()
	peripherals := make([]discoveredPeripheral, 0, len(seen))
	for _, p := range seen {
		peripherals = append(peripherals, p)
	}
	mu.Unlock()
	sort.Slice(peripherals, func(i, j int) bool { return peripherals[i].RSSI > peripherals[j].RSSI })

	switch scanFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(peripherals)
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tCONNECTABLE")
		for _, p := range peripherals {
			name := p.Name
			if name == "" {
				name = "(unknown)"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%t\n", name, p.Addr, p.RSSI, p.Connectable)
		}
		return w.Flush()
	}
}
