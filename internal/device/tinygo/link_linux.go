//go:build linux

package tinygo

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/gasmon/internal/bledb"
	"github.com/srg/gasmon/internal/device"
	"github.com/srg/gasmon/internal/groutine"
	"tinygo.org/x/bluetooth"
)

type link struct {
	dev     bluetooth.Device
	address string
	logger  *logrus.Logger
	onClose func()

	mu         sync.Mutex
	chars      map[string]bluetooth.DeviceCharacteristic
	subscribed map[string]bool

	disconnected chan struct{}
	downOnce     sync.Once
	closeOnce    sync.Once
	closeErr     error
}

func newLink(dev bluetooth.Device, address string, logger *logrus.Logger, onClose func()) *link {
	return &link{
		dev:          dev,
		address:      address,
		logger:       logger,
		onClose:      onClose,
		chars:        make(map[string]bluetooth.DeviceCharacteristic),
		subscribed:   make(map[string]bool),
		disconnected: make(chan struct{}),
	}
}

func charKey(service, characteristic string) string {
	return device.NormalizeUUID(service) + "/" + device.NormalizeUUID(characteristic)
}

func (l *link) Address() string {
	return l.address
}

type discovered struct {
	services []device.ServiceInfo
	chars    map[string]bluetooth.DeviceCharacteristic
}

// DiscoverProfile walks every service and characteristic. BlueZ does not
// expose characteristic properties through this API, so characteristics are
// reported as notifying and Subscribe surfaces the ones that are not.
func (l *link) DiscoverProfile(ctx context.Context) ([]device.ServiceInfo, error) {
	res, err := groutine.Await(ctx, "tinygo-discover-"+l.address, func() (discovered, error) {
		out := discovered{chars: make(map[string]bluetooth.DeviceCharacteristic)}

		services, err := l.dev.DiscoverServices(nil)
		if err != nil {
			return out, err
		}
		for _, svc := range services {
			svcRawUUID := svc.UUID().String()
			info := device.ServiceInfo{
				UUID: device.NormalizeUUID(svcRawUUID),
				Name: bledb.LookupService(svcRawUUID),
			}

			chars, err := svc.DiscoverCharacteristics(nil)
			if err != nil {
				return out, fmt.Errorf("service %s: %w", svcRawUUID, err)
			}
			for _, c := range chars {
				charRawUUID := c.UUID().String()
				info.Characteristics = append(info.Characteristics, device.CharacteristicInfo{
					UUID:   device.NormalizeUUID(charRawUUID),
					Name:   bledb.LookupCharacteristic(charRawUUID),
					Notify: true,
				})
				out.chars[charKey(svcRawUUID, charRawUUID)] = c
			}
			out.services = append(out.services, info)
		}
		return out, nil
	})
	if err != nil {
		return nil, NormalizeError(err)
	}

	l.mu.Lock()
	l.chars = res.chars
	l.mu.Unlock()
	return res.services, nil
}

// ExchangeMTU is not available: BlueZ negotiates the MTU on connection
func (l *link) ExchangeMTU(context.Context, int) (int, error) {
	return 0, fmt.Errorf("%w: BlueZ negotiates the MTU itself", device.ErrUnsupported)
}

func (l *link) Subscribe(service, characteristic string, handler device.NotificationHandler) error {
	key := charKey(service, characteristic)

	l.mu.Lock()
	c, ok := l.chars[key]
	l.mu.Unlock()
	if !ok {
		return &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, characteristic}}
	}

	if err := c.EnableNotifications(func(buf []byte) { handler(buf) }); err != nil {
		return NormalizeError(err)
	}

	l.mu.Lock()
	l.subscribed[key] = true
	l.mu.Unlock()
	return nil
}

// Unsubscribe passes a nil callback, which BlueZ turns into StopNotify
func (l *link) Unsubscribe(service, characteristic string) error {
	key := charKey(service, characteristic)

	l.mu.Lock()
	c, chOK := l.chars[key]
	_, subOK := l.subscribed[key]
	delete(l.subscribed, key)
	l.mu.Unlock()

	if !chOK || !subOK {
		return nil
	}
	return NormalizeError(c.EnableNotifications(nil))
}

func (l *link) Disconnected() <-chan struct{} {
	return l.disconnected
}

func (l *link) markDown() {
	l.downOnce.Do(func() { close(l.disconnected) })
}

func (l *link) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = NormalizeError(l.dev.Disconnect())
		l.markDown()
		if l.onClose != nil {
			l.onClose()
		}
	})
	return l.closeErr
}
