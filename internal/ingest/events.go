package ingest

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/skobkin/meshwatch/internal/domain"
)

// Listeners receive pipeline events synchronously. Any field may be nil. A returned error or a
// panic is logged and does not stop delivery to the remaining listeners.
type Listeners struct {
	OnConnect    func() error
	OnDisconnect func(err error) error
	OnMessage    func(msg domain.Message) error
	OnNodeUpdate func(nodeID string, isNew bool) error
	OnAlert      func(alert domain.Alert) error
	OnPosition   func(nodeID string) error
	OnTelemetry  func(nodeID string) error
}

type dispatcher struct {
	logger *slog.Logger

	mu        sync.RWMutex
	listeners []Listeners
}

func (d *dispatcher) add(l Listeners) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.listeners = append(d.listeners, l)
}

func (d *dispatcher) snapshot() []Listeners {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return append([]Listeners(nil), d.listeners...)
}

// each calls fn for every registered listener set, isolating failures per call.
func (d *dispatcher) each(event string, fn func(Listeners) error) {
	for i, l := range d.snapshot() {
		if err := safeCall(fn, l); err != nil {
			d.logger.Warn("listener failed", "event", event, "listener", i, "error", err)
		}
	}
}

func safeCall(fn func(Listeners) error, l Listeners) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return fn(l)
}

func (d *dispatcher) connected() {
	d.each("connect", func(l Listeners) error {
		if l.OnConnect == nil {
			return nil
		}
		return l.OnConnect()
	})
}

func (d *dispatcher) disconnected(cause error) {
	d.each("disconnect", func(l Listeners) error {
		if l.OnDisconnect == nil {
			return nil
		}
		return l.OnDisconnect(cause)
	})
}

func (d *dispatcher) message(msg domain.Message) {
	d.each("message", func(l Listeners) error {
		if l.OnMessage == nil {
			return nil
		}
		return l.OnMessage(msg)
	})
}

func (d *dispatcher) nodeUpdate(nodeID string, isNew bool) {
	d.each("node_update", func(l Listeners) error {
		if l.OnNodeUpdate == nil {
			return nil
		}
		return l.OnNodeUpdate(nodeID, isNew)
	})
}

func (d *dispatcher) alert(alert domain.Alert) {
	d.each("alert", func(l Listeners) error {
		if l.OnAlert == nil {
			return nil
		}
		return l.OnAlert(alert)
	})
}

func (d *dispatcher) position(nodeID string) {
	d.each("position", func(l Listeners) error {
		if l.OnPosition == nil {
			return nil
		}
		return l.OnPosition(nodeID)
	})
}

func (d *dispatcher) telemetry(nodeID string) {
	d.each("telemetry", func(l Listeners) error {
		if l.OnTelemetry == nil {
			return nil
		}
		return l.OnTelemetry(nodeID)
	})
}
