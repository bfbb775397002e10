// Package goble implements the device transport interfaces over
// github.com/go-ble/ble.
package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/cdtp/vitalink/internal/device"
)

// Transport creates go-ble backed scanners and connections.
type Transport struct {
	logger *logrus.Logger
}

// NewTransport creates a Transport. A nil logger gets a default one.
func NewTransport(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{logger: logger}
}

// NewScanner creates a scanner backed by the platform BLE adapter. An adapter
// that is off or missing surfaces as device.ErrAdapterOff.
func (t *Transport) NewScanner() (device.Scanner, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, device.NormalizeError(err)
	}
	return &bleScanner{dev: dev}, nil
}

// Dial connects to the peripheral at addr and discovers its GATT profile.
func (t *Transport) Dial(ctx context.Context, addr string, timeout time.Duration) (device.Connection, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, device.NormalizeError(err)
	}
	ble.SetDefaultDevice(dev)

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t.logger.WithFields(logrus.Fields{
		"address": addr,
		"timeout": timeout,
	}).Info("Dialing peripheral")

	client, err := ble.Dial(dialCtx, ble.NewAddr(addr))
	if err != nil {
		return nil, fmt.Errorf("dial %q: %w", addr, device.NormalizeError(err))
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			t.logger.WithField("error", cancelErr).Warn("Failed to cancel connection after discovery failure")
		}
		return nil, fmt.Errorf("discover profile: %w", device.NormalizeError(err))
	}

	t.logger.WithFields(logrus.Fields{
		"address":  addr,
		"services": len(profile.Services),
	}).Debug("Profile discovered")

	return &bleConnection{
		client:  client,
		profile: profile,
		logger:  t.logger,
	}, nil
}

type bleScanner struct {
	dev ble.Device
}

func (s *bleScanner) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	err := s.dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(&bleAdvertisement{adv: adv})
	})
	return device.NormalizeError(err)
}

type bleAdvertisement struct {
	adv ble.Advertisement
}

func (a *bleAdvertisement) LocalName() string { return a.adv.LocalName() }
func (a *bleAdvertisement) Addr() string      { return a.adv.Addr().String() }
func (a *bleAdvertisement) RSSI() int         { return a.adv.RSSI() }
func (a *bleAdvertisement) Connectable() bool { return a.adv.Connectable() }

type bleConnection struct {
	client  ble.Client
	profile *ble.Profile
	logger  *logrus.Logger

	mu     sync.Mutex
	closed bool
}

func (c *bleConnection) Subscribe(serviceUUID, charUUID string, callback func(data []byte)) error {
	char, err := c.findCharacteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	if char.Property&ble.CharNotify == 0 && char.Property&ble.CharIndicate == 0 {
		return fmt.Errorf("%q: %w", charUUID, device.ErrNoNotifySupport)
	}

	if err := device.NormalizeError(c.client.Subscribe(char, false, callback)); err != nil {
		return fmt.Errorf("subscribe %q: %w", charUUID, err)
	}

	c.logger.WithFields(logrus.Fields{
		"service":        serviceUUID,
		"characteristic": charUUID,
	}).Info("Subscribed to characteristic notifications")
	return nil
}

func (c *bleConnection) findCharacteristic(serviceUUID, charUUID string) (*ble.Characteristic, error) {
	wantSvc := device.NormalizeUUID(serviceUUID)
	wantChar := device.NormalizeUUID(charUUID)

	for _, svc := range c.profile.Services {
		if device.NormalizeUUID(svc.UUID.String()) != wantSvc {
			continue
		}
		for _, char := range svc.Characteristics {
			if device.NormalizeUUID(char.UUID.String()) == wantChar {
				return char, nil
			}
		}
		return nil, &device.NotFoundError{Resource: "characteristic", UUID: charUUID}
	}
	return nil, &device.NotFoundError{Resource: "service", UUID: serviceUUID}
}

func (c *bleConnection) Disconnected() <-chan struct{} {
	return c.client.Disconnected()
}

func (c *bleConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	err := c.client.CancelConnection()
	if err != nil {
		c.logger.WithField("error", err).Warn("Peripheral disconnected with errors")
	} else {
		c.logger.Info("Peripheral disconnected")
	}
	return device.NormalizeError(err)
}
