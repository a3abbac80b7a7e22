package transport

import (
	"context"
	"errors"
)

var ErrNotConnected = errors.New("transport is not connected")

// Callbacks receive broker traffic. OnMessage runs on the client's delivery goroutine and must
// not block for long.
type Callbacks struct {
	OnMessage        func(topic string, payload []byte)
	OnConnectionLost func(err error)
}

// Session is a publish/subscribe connection to a broker.
type Session interface {
	Name() string
	Connect(ctx context.Context, cb Callbacks) error
	Subscribe(ctx context.Context, filters []string) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

type StatusTargetResolver interface {
	StatusTarget() string
}
