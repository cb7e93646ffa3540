//go:build linux

package tinygo

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/gasmon/internal/device"
	"github.com/srg/gasmon/internal/groutine"
	"tinygo.org/x/bluetooth"
)

// Adapter implements device.Adapter on the BlueZ default adapter.
type Adapter struct {
	adapter *bluetooth.Adapter
	logger  *logrus.Logger
	watched []watchedService

	mu sync.Mutex
	// seen keeps the BlueZ address of every peripheral reported by a scan;
	// BlueZ connects only to devices it has discovered.
	seen  map[string]bluetooth.Address
	links map[string]*link

	scanMu sync.Mutex
}

var _ device.Adapter = (*Adapter)(nil)

// NewAdapter enables the default BlueZ adapter. watchServices lists the
// service UUIDs reported in advertisements.
func NewAdapter(logger *logrus.Logger, watchServices []string) (device.Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}

	bt := bluetooth.DefaultAdapter
	if err := bt.Enable(); err != nil {
		return nil, NormalizeError(err)
	}

	a := &Adapter{
		adapter: bt,
		logger:  logger,
		seen:    make(map[string]bluetooth.Address),
		links:   make(map[string]*link),
	}

	for _, s := range watchServices {
		uuid, err := bluetooth.ParseUUID(canonicalUUID(s))
		if err != nil {
			return nil, fmt.Errorf("invalid service UUID %q: %w", s, err)
		}
		a.watched = append(a.watched, watchedService{uuid: uuid, text: device.NormalizeUUID(s)})
	}

	bt.SetConnectHandler(func(d bluetooth.Device, connected bool) {
		if connected {
			return
		}
		a.mu.Lock()
		l := a.links[strings.ToUpper(d.Address.String())]
		a.mu.Unlock()
		if l != nil {
			l.logger.WithField("address", l.address).Debug("BlueZ reported disconnection")
			l.markDown()
		}
	})

	return a, nil
}

// Scan runs a BlueZ discovery until ctx is done. Duplicates are always
// reported and params are ignored; the scanner deduplicates.
func (a *Adapter) Scan(ctx context.Context, _ device.ScanParams, handler func(device.Advertisement)) error {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	errc := make(chan error, 1)
	groutine.Go(ctx, "tinygo-scan", func(context.Context) {
		errc <- a.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
			if ctx.Err() != nil {
				return
			}
			addr := strings.ToUpper(r.Address.String())

			a.mu.Lock()
			a.seen[addr] = r.Address
			a.mu.Unlock()

			handler(&advertisement{address: addr, rssi: int(r.RSSI), payload: r, watched: a.watched})
		})
	})

	select {
	case err := <-errc:
		return NormalizeError(err)
	case <-ctx.Done():
		if err := a.adapter.StopScan(); err != nil {
			a.logger.WithError(err).Debug("Failed to stop BlueZ discovery")
		}
		<-errc
		return ctx.Err()
	}
}

// Connect dials a peripheral reported by an earlier scan.
func (a *Adapter) Connect(ctx context.Context, address string) (device.Link, error) {
	key := strings.ToUpper(address)

	a.mu.Lock()
	addr, ok := a.seen[key]
	a.mu.Unlock()
	if !ok {
		return nil, &device.NotFoundError{Resource: "peripheral", UUIDs: []string{address}}
	}

	type dialed struct{ dev bluetooth.Device }
	res, err := groutine.Await(ctx, "tinygo-connect-"+key, func() (dialed, error) {
		dev, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		if err == nil && ctx.Err() != nil {
			// the caller gave up while BlueZ was connecting
			_ = dev.Disconnect()
			return dialed{}, ctx.Err()
		}
		return dialed{dev: dev}, err
	})
	if err != nil {
		return nil, NormalizeError(err)
	}

	l := newLink(res.dev, key, a.logger, func() {
		a.mu.Lock()
		delete(a.links, key)
		a.mu.Unlock()
	})

	a.mu.Lock()
	a.links[key] = l
	a.mu.Unlock()
	return l, nil
}
