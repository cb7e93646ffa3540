package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/gasmon/internal/channels"
	"github.com/srg/gasmon/internal/device"
	"github.com/srg/gasmon/internal/publish"
	"github.com/srg/gasmon/scanner"
	"github.com/srg/gasmon/session"
	"gopkg.in/yaml.v3"
)

// Backend names accepted in Config.Backend
const (
	BackendGoBLE  = "go-ble"
	BackendTinyGo = "tinygo"
)

// Config holds application configuration
type Config struct {
	// LogLevel is a logrus level name; panic keeps the CLI quiet
	LogLevel string `yaml:"log_level" json:"log_level" default:"panic"`
	Backend  string `yaml:"backend" json:"backend" default:"go-ble"`

	Scan       ScanConfig       `yaml:"scan" json:"scan"`
	Connection ConnectionConfig `yaml:"connection" json:"connection"`
	Monitor    MonitorConfig    `yaml:"monitor" json:"monitor"`
	MQTT       MQTTConfig       `yaml:"mqtt" json:"mqtt"`
}

type ScanConfig struct {
	Timeout         time.Duration `yaml:"timeout" json:"timeout" default:"5s"`
	AllowDuplicates bool          `yaml:"allow_duplicates" json:"allow_duplicates" default:"false"`
	Mode            string        `yaml:"mode" json:"mode" default:"low-latency"`
}

type ConnectionConfig struct {
	ConnectTimeout   time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"10s"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout" json:"discovery_timeout" default:"15s"`
	MTUTimeout       time.Duration `yaml:"mtu_timeout" json:"mtu_timeout" default:"5s"`
	MTU              int           `yaml:"mtu" json:"mtu" default:"256"`
}

type MonitorConfig struct {
	QueueSize    uint32        `yaml:"queue_size" json:"queue_size" default:"64"`
	StaleAfter   time.Duration `yaml:"stale_after" json:"stale_after" default:"10s"`
	Refresh      time.Duration `yaml:"refresh" json:"refresh" default:"500ms"`
	ChannelsFile string        `yaml:"channels_file" json:"channels_file"`
	Output       string        `yaml:"output" json:"output" default:"table"` // table, json
}

// MQTTConfig configures the optional snapshot publisher
type MQTTConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled" default:"false"`
	Broker   string        `yaml:"broker" json:"broker" default:"tcp://localhost:1883"`
	Topic    string        `yaml:"topic" json:"topic" default:"gasmon/latest"`
	ClientID string        `yaml:"client_id" json:"client_id" default:"gasmon"`
	QoS      byte          `yaml:"qos" json:"qos" default:"0"`
	Retained bool          `yaml:"retained" json:"retained" default:"false"`
	Interval time.Duration `yaml:"interval" json:"interval" default:"1s"`
	Encoding string        `yaml:"encoding" json:"encoding" default:"json"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// LoadFile reads a YAML config file over the defaults. Keys missing from the
// file keep their default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated values and ranges
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Backend {
	case BackendGoBLE, BackendTinyGo:
	default:
		return fmt.Errorf("invalid backend %q: must be %s or %s", c.Backend, BackendGoBLE, BackendTinyGo)
	}
	if _, ok := device.ParseScanMode(c.Scan.Mode); !ok {
		return fmt.Errorf("invalid scan mode %q: must be low-power, balanced or low-latency", c.Scan.Mode)
	}
	if c.Connection.MTU < session.DefaultMTU || c.Connection.MTU > 517 {
		return fmt.Errorf("invalid mtu %d: must be between %d and 517", c.Connection.MTU, session.DefaultMTU)
	}
	switch c.Monitor.Output {
	case "table", "json":
	default:
		return fmt.Errorf("invalid output %q: must be table or json", c.Monitor.Output)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos %d: must be 0, 1 or 2", c.MQTT.QoS)
	}
	if _, err := publish.ParseEncoding(c.MQTT.Encoding); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel; an empty level is treated as panic
func (c *Config) Level() (logrus.Level, error) {
	if strings.TrimSpace(c.LogLevel) == "" {
		return logrus.PanicLevel, nil
	}
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return lvl, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	lvl, err := c.Level()
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// ScanOptions maps the scan section onto scanner options
func (c *Config) ScanOptions() *scanner.ScanOptions {
	opts := scanner.DefaultScanOptions()
	opts.Duration = c.Scan.Timeout
	opts.AllowDuplicates = c.Scan.AllowDuplicates
	opts.Mode, _ = device.ParseScanMode(c.Scan.Mode)
	return opts
}

// SessionOptions maps the connection and monitor sections onto session options
func (c *Config) SessionOptions() *session.Options {
	opts := session.DefaultOptions()
	opts.ConnectTimeout = c.Connection.ConnectTimeout
	opts.DiscoveryTimeout = c.Connection.DiscoveryTimeout
	opts.MTUTimeout = c.Connection.MTUTimeout
	opts.RequestedMTU = c.Connection.MTU
	opts.QueueSize = c.Monitor.QueueSize
	opts.Scan = c.ScanOptions()
	return opts
}

// PublishOptions maps the mqtt section onto publisher options
func (c *Config) PublishOptions() *publish.Options {
	enc, _ := publish.ParseEncoding(c.MQTT.Encoding)
	return &publish.Options{
		Broker:   c.MQTT.Broker,
		Topic:    c.MQTT.Topic,
		ClientID: c.MQTT.ClientID,
		QoS:      c.MQTT.QoS,
		Retained: c.MQTT.Retained,
		Interval: c.MQTT.Interval,
		Encoding: enc,
	}
}

// Channels loads the channel file, or returns the default registry when none is set
func (c *Config) Channels() (*channels.Registry, error) {
	if c.Monitor.ChannelsFile == "" {
		return channels.Default(), nil
	}
	return channels.LoadFile(c.Monitor.ChannelsFile)
}
