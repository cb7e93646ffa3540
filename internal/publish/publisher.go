// Package publish exports latest-value snapshots to an MQTT broker.
package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/gasmon/internal/store"
)

// ErrStopped is returned by Connect after Close
var ErrStopped = errors.New("publisher stopped")

// Source provides the snapshot to publish; session.Facade satisfies it.
type Source interface {
	LatestValues() map[string]store.Reading
}

// Options configures a Publisher
type Options struct {
	Broker         string        `default:"tcp://localhost:1883"`
	Topic          string        `default:"gasmon/latest"`
	ClientID       string        `default:"gasmon"`
	QoS            byte          `default:"0"`
	Retained       bool          `default:"false"`
	Interval       time.Duration `default:"1s"`
	PublishTimeout time.Duration `default:"5s"`
	Encoding       Encoding      `default:"json"`

	// Peripheral is copied into every snapshot when set
	Peripheral string
}

// DefaultOptions returns the default publisher options
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

// mqttClient is the part of mqtt.Client the publisher uses
type mqttClient interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher periodically publishes the snapshot of a Source.
type Publisher struct {
	client mqttClient
	source Source
	opts   *Options
	logger *logrus.Logger

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// New creates a publisher backed by a paho client with auto-reconnect.
func New(source Source, opts *Options, logger *logrus.Logger) (*Publisher, error) {
	p, err := newPublisher(nil, source, opts, logger)
	if err != nil {
		return nil, err
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(p.opts.Broker)
	co.SetClientID(p.opts.ClientID)
	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(5 * time.Second)
	co.SetMaxReconnectInterval(60 * time.Second)
	co.SetKeepAlive(30 * time.Second)
	co.SetPingTimeout(10 * time.Second)

	co.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		p.logger.WithField("broker", p.opts.Broker).Info("MQTT connected")
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.WithError(err).Warn("MQTT connection lost")
	})

	p.client = mqtt.NewClient(co)
	return p, nil
}

func newPublisher(client mqttClient, source Source, opts *Options, logger *logrus.Logger) (*Publisher, error) {
	if source == nil {
		return nil, errors.New("publish: source is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultOptions()
	} else {
		o := *opts
		defaults.SetDefaults(&o)
		opts = &o
	}
	if _, err := ParseEncoding(string(opts.Encoding)); err != nil {
		return nil, err
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("publish: invalid QoS %d", opts.QoS)
	}

	return &Publisher{
		client: client,
		source: source,
		opts:   opts,
		logger: logger,
		stopCh: make(chan struct{}),
		now:    time.Now,
	}, nil
}

// Connect waits for the initial broker connection, honoring ctx and Close.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return ErrStopped
	default:
	}

	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			p.setConnected(true)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return ErrStopped
		default:
		}
	}
}

// Snapshot builds the snapshot that PublishOnce would send
func (p *Publisher) Snapshot() Snapshot {
	return Snapshot{
		Peripheral: p.opts.Peripheral,
		At:         p.now(),
		Readings:   p.source.LatestValues(),
	}
}

// PublishOnce publishes the current snapshot. An empty snapshot is skipped
// and reported as published=false.
func (p *Publisher) PublishOnce() (bool, error) {
	if !p.IsConnected() {
		return false, errors.New("mqtt client not connected")
	}

	snap := p.Snapshot()
	if len(snap.Readings) == 0 {
		return false, nil
	}

	data, err := Encode(p.opts.Encoding, snap)
	if err != nil {
		return false, fmt.Errorf("encode snapshot: %w", err)
	}

	token := p.client.Publish(p.opts.Topic, p.opts.QoS, p.opts.Retained, data)
	if !token.WaitTimeout(p.opts.PublishTimeout) {
		return false, fmt.Errorf("publish timeout for topic %s", p.opts.Topic)
	}
	if err := token.Error(); err != nil {
		return false, fmt.Errorf("publish snapshot: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"topic":    p.opts.Topic,
		"readings": len(snap.Readings),
		"bytes":    len(data),
	}).Debug("Published snapshot")
	return true, nil
}

// Run publishes every Interval until ctx is done or Close is called.
// Failed publishes are logged and retried on the next tick.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if _, err := p.PublishOnce(); err != nil {
				p.logger.WithError(err).Warn("Snapshot publish failed")
			}
		}
	}
}

// IsConnected reports whether the broker connection is up
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Close stops Run and disconnects. Safe to call more than once.
func (p *Publisher) Close() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.client.Disconnect(250)
		p.setConnected(false)
		p.logger.Debug("MQTT publisher closed")
	})
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
