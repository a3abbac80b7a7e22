package bus

import (
	"io"
	"log/slog"
	"reflect"

	"github.com/cskr/pubsub"
)

// DefaultCapacity is the per-subscriber buffer. A slow subscriber blocks publishers once it fills.
const DefaultCapacity = 256

type Subscription chan any

// Publisher is the producer side handed to the ingest pipeline.
type Publisher interface {
	Publish(topic string, msg any)
}

// TryPublisher is implemented by buses that can drop an event instead of blocking when a
// subscriber buffer is full.
type TryPublisher interface {
	TryPublish(topic string, msg any)
}

type MessageBus interface {
	Publisher
	Subscribe(topic string) Subscription
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

type PubSubBus struct {
	ps     *pubsub.PubSub
	logger *slog.Logger
}

func New(logger *slog.Logger) *PubSubBus {
	return NewWithCapacity(logger, DefaultCapacity)
}

func NewWithCapacity(logger *slog.Logger, capacity int) *PubSubBus {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &PubSubBus{
		ps:     pubsub.New(capacity),
		logger: logger,
	}
}

func (b *PubSubBus) Publish(topic string, msg any) {
	b.logger.Debug("publish", "topic", topic, "payload_type", payloadType(msg))
	b.ps.Pub(msg, topic)
}

// TryPublish delivers msg only to subscribers with free buffer space. Used for high-volume
// debug topics.
func (b *PubSubBus) TryPublish(topic string, msg any) {
	b.ps.TryPub(msg, topic)
}

func (b *PubSubBus) Subscribe(topic string) Subscription {
	ch := b.ps.Sub(topic)
	b.logger.Debug("subscribe", "topic", topic)
	return ch
}

func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	if len(topics) == 0 {
		b.ps.Unsub(ch)
		b.logger.Debug("unsubscribe", "mode", "all")
		return
	}
	b.ps.Unsub(ch, topics...)
	b.logger.Debug("unsubscribe", "topics", topics)
}

func (b *PubSubBus) Close() {
	b.ps.Shutdown()
}

func payloadType(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
