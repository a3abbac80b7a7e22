package domain

import (
	"context"

	"github.com/skobkin/meshwatch/internal/bus"
	"github.com/skobkin/meshwatch/internal/connectors"
)

// WriteQueue serializes persistence writes from async domain events.
type WriteQueue interface {
	Enqueue(name string, fn func(context.Context) error)
}

// StartPersistenceProjection mirrors store events from the bus into the repositories.
func StartPersistenceProjection(ctx context.Context, b bus.MessageBus, queue WriteQueue, repos Repositories) {
	if repos.Nodes != nil {
		project(ctx, b, connectors.TopicNodeUpdate, func(ev NodeEvent) {
			n := ev.Node
			queue.Enqueue("upsert_node", func(writeCtx context.Context) error {
				return repos.Nodes.Upsert(writeCtx, n)
			})
		})
	}
	if repos.Routes != nil {
		project(ctx, b, connectors.TopicRoute, func(r MeshRoute) {
			route := cloneRoute(r)
			queue.Enqueue("upsert_route", func(writeCtx context.Context) error {
				return repos.Routes.Upsert(writeCtx, route)
			})
		})
	}
	if repos.Alerts != nil {
		project(ctx, b, connectors.TopicAlert, func(a Alert) {
			alert := cloneAlert(a)
			queue.Enqueue("insert_alert", func(writeCtx context.Context) error {
				return repos.Alerts.Insert(writeCtx, alert)
			})
		})
		project(ctx, b, connectors.TopicAlertAck, func(ack AlertAck) {
			queue.Enqueue("ack_alert", func(writeCtx context.Context) error {
				return repos.Alerts.Acknowledge(writeCtx, ack.ID)
			})
		})
	}
	if repos.Messages != nil {
		project(ctx, b, connectors.TopicMessage, func(m Message) {
			queue.Enqueue("insert_message", func(writeCtx context.Context) error {
				return repos.Messages.Insert(writeCtx, m)
			})
		})
	}
}

func project[T any](ctx context.Context, b bus.MessageBus, topic string, handle func(T)) {
	sub := b.Subscribe(topic)
	go func() {
		defer b.Unsubscribe(sub, topic)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				ev, ok := raw.(T)
				if !ok {
					continue
				}
				handle(ev)
			}
		}
	}()
}
