package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gasmon/internal/channels"
	"github.com/srg/gasmon/internal/device"
	goble "github.com/srg/gasmon/internal/device/go-ble"
	"github.com/srg/gasmon/internal/device/tinygo"
	"github.com/srg/gasmon/pkg/config"
)

// adapterFactory builds the BLE backend; replaced in tests
var adapterFactory = newAdapter

func newAdapter(backend string, reg *channels.Registry, logger *logrus.Logger) (device.Adapter, error) {
	switch backend {
	case config.BackendTinyGo:
		return tinygo.NewAdapter(logger, watchedServices(reg))
	default:
		a, err := goble.NewAdapter(logger)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

// watchedServices lists the distinct services of the channel table
func watchedServices(reg *channels.Registry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ch := range reg.All() {
		k := device.NormalizeUUID(ch.Service)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, ch.Service)
	}
	return out
}

// runtimeEnv is what every device-facing command needs
type runtimeEnv struct {
	cfg      *config.Config
	logger   *logrus.Logger
	channels *channels.Registry
}

// loadConfig reads --config (if any) and applies the persistent flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Backend = strings.ToLower(backend)
	}
	if file, _ := cmd.Flags().GetString("channels-file"); file != "" {
		cfg.Monitor.ChannelsFile = file
	}
	return cfg, nil
}

func setupRuntime(cmd *cobra.Command) (*runtimeEnv, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg, err := cfg.Channels()
	if err != nil {
		return nil, fmt.Errorf("failed to load channels: %w", err)
	}

	return &runtimeEnv{cfg: cfg, logger: logger, channels: reg}, nil
}
