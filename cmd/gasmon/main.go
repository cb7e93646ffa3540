package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. Tests build a fresh tree per case.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gasmon",
		Short: "BLE gas sensor monitor",
		Long: `Monitor a Bluetooth Low Energy environmental gas sensor:

- Scan for nearby named peripherals
- Connect to a sensor and subscribe to its gas channels
- Show the latest decoded reading of every channel
- Optionally publish snapshots to an MQTT broker`,
		Version: formatVersion(version),
		// main() prints clean errors
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("gasmon {{.Version}} (commit %s, built %s)\n", commit, date))

	root.AddCommand(newScanCmd())
	root.AddCommand(newMonitorCmd())
	root.AddCommand(newDecodeCmd())
	root.AddCommand(newChannelsCmd())

	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	root.PersistentFlags().String("config", "", "Path to a YAML config file")
	root.PersistentFlags().String("backend", "", "BLE backend (go-ble, tinygo)")
	root.PersistentFlags().String("channels-file", "", "YAML channel table replacing the default one")

	// Add -v as a short flag for --version
	root.Flags().BoolP("version", "v", false, "Show version information")
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
