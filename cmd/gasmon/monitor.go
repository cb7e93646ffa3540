package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gasmon/internal/publish"
	"github.com/srg/gasmon/scanner"
	"github.com/srg/gasmon/session"
)

type monitorFlags struct {
	labels      []string
	duration    time.Duration
	format      string
	refresh     time.Duration
	scanTimeout time.Duration
	noScan      bool
	staleAfter  time.Duration

	mqtt         bool
	mqttBroker   string
	mqttTopic    string
	mqttEncoding string
}

func newMonitorCmd() *cobra.Command {
	f := &monitorFlags{}
	cmd := &cobra.Command{
		Use:   "monitor <name-or-address>",
		Short: "Connect to a sensor and show its latest readings",
		Long: `Connect to a gas sensor, subscribe to its channels and show the latest
decoded value of every channel until interrupted.

The sensor is looked up by a short scan, by address or advertised name.
With --no-scan the argument is dialed directly as an address.`,
		Example: `  gasmon monitor EnviroSensor
  gasmon monitor AA:BB:CC:DD:EE:FF --channels Methane,Ethanol --format json
  gasmon monitor EnviroSensor --mqtt --mqtt-broker tcp://localhost:1883`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, f, args[0])
		},
	}

	cmd.Flags().StringSliceVarP(&f.labels, "channels", "c", nil, "Channel labels to monitor (default all)")
	cmd.Flags().DurationVarP(&f.duration, "duration", "d", 0, "Stop after this long (0 runs until Ctrl+C)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Output format (table, json); default from config")
	cmd.Flags().DurationVar(&f.refresh, "refresh", 0, "Output refresh interval (default from config, 500ms)")
	cmd.Flags().DurationVar(&f.scanTimeout, "scan-timeout", 0, "How long to scan for the sensor (default from config, 5s)")
	cmd.Flags().BoolVar(&f.noScan, "no-scan", false, "Dial the argument as an address without scanning")
	cmd.Flags().DurationVar(&f.staleAfter, "stale-after", 0, "Mark readings older than this as stale (default from config, 10s)")
	cmd.Flags().BoolVar(&f.mqtt, "mqtt", false, "Publish snapshots to an MQTT broker")
	cmd.Flags().StringVar(&f.mqttBroker, "mqtt-broker", "", "MQTT broker URL")
	cmd.Flags().StringVar(&f.mqttTopic, "mqtt-topic", "", "MQTT topic")
	cmd.Flags().StringVar(&f.mqttEncoding, "mqtt-encoding", "", "Snapshot encoding (json, cbor)")
	return cmd
}

func runMonitor(cmd *cobra.Command, f *monitorFlags, target string) error {
	env, err := setupRuntime(cmd)
	if err != nil {
		return err
	}
	cfg := env.cfg

	if f.format != "" {
		cfg.Monitor.Output = f.format
	}
	if f.refresh > 0 {
		cfg.Monitor.Refresh = f.refresh
	}
	if f.scanTimeout > 0 {
		cfg.Scan.Timeout = f.scanTimeout
	}
	if f.staleAfter > 0 {
		cfg.Monitor.StaleAfter = f.staleAfter
	}
	if f.mqtt {
		cfg.MQTT.Enabled = true
	}
	if f.mqttBroker != "" {
		cfg.MQTT.Broker = f.mqttBroker
	}
	if f.mqttTopic != "" {
		cfg.MQTT.Topic = f.mqttTopic
	}
	if f.mqttEncoding != "" {
		cfg.MQTT.Encoding = f.mqttEncoding
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	selected, err := env.channels.Select(f.labels...)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	adapter, err := adapterFactory(cfg.Backend, env.channels, env.logger)
	if err != nil {
		return err
	}
	facade, err := session.New(adapter, env.logger, cfg.SessionOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err := facade.Teardown(); err != nil {
			env.logger.WithError(err).Debug("Teardown reported an error")
		}
	}()

	lost := make(chan struct{})
	var lostOnce sync.Once
	facade.OnStateChange(func(from, to session.State) {
		if from == session.StateDisconnecting && to == session.StateIdle {
			lostOnce.Do(func() { close(lost) })
		}
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errOut := cmd.ErrOrStderr()
	id := target
	if !f.noScan {
		if id, err = resolveTarget(ctx, facade, target, errOut); err != nil {
			return err
		}
	}

	s, err := facade.Connect(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(errOut, "Connected to %s (%s), MTU %d\n", s.Peripheral.DisplayName(), s.Peripheral.ID, s.MTU)

	result, err := facade.Monitor(ctx, selected)
	if err != nil {
		return err
	}
	reportFailures(errOut, result)
	if len(result.Started) == 0 {
		return result.Err()
	}

	if cfg.MQTT.Enabled {
		pub, err := startPublisher(ctx, facade, cfg.PublishOptions(), s.Peripheral.ID, env.logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		fmt.Fprintf(errOut, "Publishing snapshots to %s (topic %s)\n", cfg.MQTT.Broker, cfg.MQTT.Topic)
	}

	if f.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.duration)
		defer cancel()
	}

	view := &snapshotView{
		out:        cmd.OutOrStdout(),
		channels:   selected,
		format:     cfg.Monitor.Output,
		staleAfter: cfg.Monitor.StaleAfter,
		peripheral: s.Peripheral.ID,
		redraw:     cfg.Monitor.Output == "table" && isTerminal(cmd.OutOrStdout()),
		now:        time.Now,
	}

	ticker := time.NewTicker(cfg.Monitor.Refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final snapshot before teardown clears the store
			return view.render(facade.LatestValues())
		case <-lost:
			_ = view.render(facade.LatestValues())
			return ErrConnectionLost
		case <-ticker.C:
			if err := view.render(facade.LatestValues()); err != nil {
				return err
			}
		}
	}
}

// resolveTarget scans until a peripheral matching target by address or name is
// seen, and returns its ID.
func resolveTarget(ctx context.Context, facade *session.Facade, target string, errOut io.Writer) (string, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		for {
			select {
			case <-scanCtx.Done():
				return
			case ev := <-facade.Scanner().Events():
				if matchesTarget(ev.Peripheral, target) {
					facade.StopScan()
					return
				}
			}
		}
	}()

	result, err := facade.Scan(scanCtx, nil)
	if err != nil {
		return "", err
	}
	if result.Warning != nil {
		fmt.Fprintf(errOut, "%s %v\n", color.YellowString("WARNING:"), result.Warning)
	}

	for _, p := range result.Peripherals {
		if matchesTarget(p, target) {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrPeripheralNotFound, target)
}

func matchesTarget(p scanner.Peripheral, target string) bool {
	return strings.EqualFold(p.ID, target) || p.Name == target
}

func reportFailures(out io.Writer, result *session.MonitorResult) {
	labels := make([]string, 0, len(result.Failed))
	for l := range result.Failed {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Fprintf(out, "%s %s\n", color.YellowString("WARNING:"), FormatUserError(result.Failed[l]))
	}
}

func startPublisher(ctx context.Context, src publish.Source, opts *publish.Options, peripheral string, logger *logrus.Logger) (*publish.Publisher, error) {
	opts.Peripheral = peripheral
	pub, err := publish.New(src, opts, logger)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pub.Connect(connectCtx); err != nil {
		pub.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("mqtt broker %s did not answer in time", opts.Broker)
		}
		return nil, fmt.Errorf("mqtt: %w", err)
	}

	go func() { _ = pub.Run(ctx) }()
	return pub, nil
}
