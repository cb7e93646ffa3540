package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/gasmon/internal/device"
	"github.com/srg/gasmon/scanner"
	"github.com/srg/gasmon/session"
)

type scanFlags struct {
	duration        time.Duration
	format          string
	services        []string
	allowList       []string
	blockList       []string
	allowDuplicates bool
	mode            string
}

func newScanCmd() *cobra.Command {
	f := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE peripherals",
		Long: `Scan for named Bluetooth Low Energy peripherals in the vicinity.

Peripherals without a name are skipped. Each peripheral is listed once,
in the order it was first seen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, f)
		},
	}

	cmd.Flags().DurationVarP(&f.duration, "duration", "d", 0, "Scan duration (default from config, 5s)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringSliceVarP(&f.services, "services", "s", nil, "Only show peripherals advertising these service UUIDs")
	cmd.Flags().StringSliceVar(&f.allowList, "allow", nil, "Only show peripherals with these addresses")
	cmd.Flags().StringSliceVar(&f.blockList, "block", nil, "Hide peripherals with these addresses")
	cmd.Flags().BoolVar(&f.allowDuplicates, "allow-duplicates", false, "Report repeated advertisements to the scanner")
	cmd.Flags().StringVar(&f.mode, "mode", "", "Scan mode (low-power, balanced, low-latency)")
	return cmd
}

func runScan(cmd *cobra.Command, f *scanFlags) error {
	if f.format != "table" && f.format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", f.format)
	}

	env, err := setupRuntime(cmd)
	if err != nil {
		return err
	}

	opts := env.cfg.ScanOptions()
	if f.duration > 0 {
		opts.Duration = f.duration
	}
	if cmd.Flags().Changed("allow-duplicates") {
		opts.AllowDuplicates = f.allowDuplicates
	}
	if f.mode != "" {
		mode, ok := device.ParseScanMode(f.mode)
		if !ok {
			return fmt.Errorf("invalid scan mode '%s': must be one of [low-power balanced low-latency]", f.mode)
		}
		opts.Mode = mode
	}
	if len(f.services) > 0 {
		if opts.ServiceUUIDs, err = device.ValidateUUID(f.services...); err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}
	opts.AllowList = f.allowList
	opts.BlockList = f.blockList

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	adapter, err := adapterFactory(env.cfg.Backend, env.channels, env.logger)
	if err != nil {
		return err
	}

	sessOpts := env.cfg.SessionOptions()
	sessOpts.Scan = opts
	facade, err := session.New(adapter, env.logger, sessOpts)
	if err != nil {
		return err
	}
	defer func() { _ = facade.Teardown() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress func(string)
	if isTerminal(cmd.ErrOrStderr()) {
		p := NewProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE peripherals", opts.Duration, "Processing results")
		p.Start()
		defer p.Stop()
		progress = p.Callback()
	}

	result, err := facade.Scan(ctx, progress)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if result.Warning != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", color.YellowString("WARNING:"), result.Warning)
	}

	if f.format == "json" {
		return displayPeripheralsJSON(cmd.OutOrStdout(), result.Peripherals)
	}
	return displayPeripheralsTable(cmd.OutOrStdout(), result.Peripherals)
}

func displayPeripheralsTable(out io.Writer, peripherals []scanner.Peripheral) error {
	if len(peripherals) == 0 {
		fmt.Fprintln(out, "No peripherals discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES\tMANUFACTURER")

	for _, p := range peripherals {
		name := p.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		services := strings.Join(p.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}
		manufacturer := p.Manufacturer
		if manufacturer == "" {
			manufacturer = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s\n", name, p.ID, p.RSSI, services, manufacturer)
	}

	return w.Flush()
}

func displayPeripheralsJSON(out io.Writer, peripherals []scanner.Peripheral) error {
	if peripherals == nil {
		peripherals = []scanner.Peripheral{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(peripherals)
}
