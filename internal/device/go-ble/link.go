package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/gasmon/internal/bledb"
	"github.com/srg/gasmon/internal/device"
	"github.com/srg/gasmon/internal/groutine"
)

// gattClient is the part of ble.Client a link uses
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ExchangeMTU(rxMTU int) (int, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// link implements device.Link over a go-ble client.
type link struct {
	client  gattClient
	address string
	logger  *logrus.Logger

	mu    sync.Mutex
	chars map[string]*ble.Characteristic
	// subscribed maps a characteristic key to its mode (true = indicate)
	subscribed map[string]bool

	disconnected chan struct{}
	downOnce     sync.Once
	closeOnce    sync.Once
	closeErr     error
}

func newLink(client gattClient, address string, logger *logrus.Logger) *link {
	l := &link{
		client:       client,
		address:      address,
		logger:       logger,
		chars:        make(map[string]*ble.Characteristic),
		subscribed:   make(map[string]bool),
		disconnected: make(chan struct{}),
	}

	// Clients that report disconnection (CoreBluetooth, HCI) get a watcher
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
			select {
			case <-dc.Disconnected():
				l.logger.WithField("address", l.address).Debug("BLE stack reported disconnection")
				l.markDown()
			case <-l.disconnected:
			}
		})
	} else {
		logger.Debug("Client does not support Disconnected() channel")
	}
	return l
}

func charKey(service, characteristic string) string {
	return device.NormalizeUUID(service) + "/" + device.NormalizeUUID(characteristic)
}

func (l *link) Address() string {
	return l.address
}

// DiscoverProfile performs full discovery and remembers the characteristics for Subscribe.
func (l *link) DiscoverProfile(ctx context.Context) ([]device.ServiceInfo, error) {
	profile, err := groutine.Await(ctx, "ble-discover-"+l.address, func() (*ble.Profile, error) {
		return l.client.DiscoverProfile(true)
	})
	if err != nil {
		return nil, NormalizeError(err)
	}
	if profile == nil {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	services := make([]device.ServiceInfo, 0, len(profile.Services))
	for _, svc := range profile.Services {
		svcRawUUID := svc.UUID.String()
		info := device.ServiceInfo{
			UUID: device.NormalizeUUID(svcRawUUID),
			Name: bledb.LookupService(svcRawUUID),
		}
		for _, c := range svc.Characteristics {
			charRawUUID := c.UUID.String()
			info.Characteristics = append(info.Characteristics, device.CharacteristicInfo{
				UUID:     device.NormalizeUUID(charRawUUID),
				Name:     bledb.LookupCharacteristic(charRawUUID),
				Notify:   c.Property&ble.CharNotify != 0,
				Indicate: c.Property&ble.CharIndicate != 0,
				Read:     c.Property&ble.CharRead != 0,
			})
			l.chars[charKey(svcRawUUID, charRawUUID)] = c
		}
		services = append(services, info)
	}
	return services, nil
}

// ExchangeMTU returns device.ErrUnsupported on stacks that negotiate on their own (CoreBluetooth)
func (l *link) ExchangeMTU(ctx context.Context, mtu int) (int, error) {
	granted, err := groutine.Await(ctx, "ble-mtu-"+l.address, func() (int, error) {
		return l.client.ExchangeMTU(mtu)
	})
	if err != nil {
		return 0, NormalizeError(err)
	}
	return granted, nil
}

// Subscribe prefers notifications and falls back to indications
func (l *link) Subscribe(service, characteristic string, handler device.NotificationHandler) error {
	key := charKey(service, characteristic)

	l.mu.Lock()
	c, ok := l.chars[key]
	l.mu.Unlock()
	if !ok {
		return &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, characteristic}}
	}

	var indicate bool
	switch {
	case c.Property&ble.CharNotify != 0:
	case c.Property&ble.CharIndicate != 0:
		indicate = true
	default:
		return fmt.Errorf("%w: characteristic %s supports neither notify nor indicate", device.ErrUnsupported, characteristic)
	}

	err := l.client.Subscribe(c, indicate, func(data []byte) {
		handler(data)
	})
	if err != nil {
		return NormalizeError(err)
	}

	l.mu.Lock()
	l.subscribed[key] = indicate
	l.mu.Unlock()

	l.logger.WithFields(logrus.Fields{
		"service_uuid": service,
		"char_uuid":    characteristic,
		"indicate":     indicate,
	}).Debug("Subscribed to characteristic")
	return nil
}

// Unsubscribe is a no-op for a characteristic without a subscription
func (l *link) Unsubscribe(service, characteristic string) error {
	key := charKey(service, characteristic)

	l.mu.Lock()
	indicate, ok := l.subscribed[key]
	c := l.chars[key]
	delete(l.subscribed, key)
	l.mu.Unlock()

	if !ok || c == nil {
		return nil
	}
	return NormalizeError(l.client.Unsubscribe(c, indicate))
}

func (l *link) Disconnected() <-chan struct{} {
	return l.disconnected
}

func (l *link) markDown() {
	l.downOnce.Do(func() { close(l.disconnected) })
}

// Close cancels the connection once; later calls return the first result
func (l *link) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.subscribed = make(map[string]bool)
		l.mu.Unlock()

		l.closeErr = NormalizeError(l.client.CancelConnection())
		l.markDown()
	})
	return l.closeErr
}
