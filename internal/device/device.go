// Package device defines the transport abstraction the device link runs on:
// scanning for advertisements, dialing a peripheral, and arming notification
// subscriptions. The go-ble backed implementation lives in the goble
// subpackage; tests substitute fakes.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NotFoundError reports a GATT lookup miss during service negotiation.
type NotFoundError struct {
	Resource string // "service" or "characteristic"
	UUID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.UUID)
}

// Sentinel errors for transport-level conditions. Implementations wrap these
// with %w so callers can test with errors.Is.
var (
	ErrAdapterOff       = errors.New("bluetooth adapter is off")
	ErrNotConnected     = errors.New("device not connected")
	ErrAlreadyConnected = errors.New("device already connected")
	ErrNoNotifySupport  = errors.New("characteristic does not support notifications")
)

// NormalizeError maps known platform error strings onto the sentinel errors
// above, wrapping to preserve the original context. Unknown errors pass
// through unchanged.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "is bluetooth turned on"),
		strings.Contains(msg, "bluetooth is turned off"),
		strings.Contains(msg, "adapter not powered"),
		strings.Contains(msg, "operation not possible due to rf-kill"):
		return fmt.Errorf("%w: %v", ErrAdapterOff, err)
	case strings.Contains(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case strings.Contains(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	default:
		return err
	}
}

// NormalizeUUID lowercases and strips dashes so UUIDs compare consistently
// regardless of the form the platform reports them in.
func NormalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}

// Advertisement is one observed broadcast from a nearby peripheral.
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Connectable() bool
}

// Scanner discovers nearby peripherals. Scan blocks until ctx is done or the
// underlying scan fails, invoking handler for every advertisement seen.
type Scanner interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Connection is an established transport-level link to one peripheral with
// its GATT profile already discovered.
type Connection interface {
	// Subscribe arms change notifications on the characteristic and delivers
	// every notified payload to callback. Returns a NotFoundError when the
	// service or characteristic is absent, ErrNoNotifySupport when the
	// characteristic cannot notify.
	Subscribe(serviceUUID, charUUID string, callback func(data []byte)) error

	// Disconnected is closed when the peer or the platform drops the link.
	Disconnected() <-chan struct{}

	// Close releases the transport resource. Idempotent.
	Close() error
}

// Transport creates scanners and connections. One Transport is constructed
// per session owner; there is no process-wide shared instance.
type Transport interface {
	NewScanner() (Scanner, error)
	Dial(ctx context.Context, addr string, timeout time.Duration) (Connection, error)
}
