package domain

import (
	"context"
	"time"
)

type NodeRepository interface {
	Upsert(ctx context.Context, n Node) error
	ListSortedByLastHeard(ctx context.Context) ([]Node, error)
	DeleteHeardBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type RouteRepository interface {
	Upsert(ctx context.Context, r MeshRoute) error
	List(ctx context.Context) ([]MeshRoute, error)
}

type AlertRepository interface {
	Insert(ctx context.Context, a Alert) error
	Acknowledge(ctx context.Context, id string) error
	ListRecent(ctx context.Context, limit int) ([]Alert, error)
}

type MessageRepository interface {
	Insert(ctx context.Context, m Message) error
	ListRecent(ctx context.Context, limit int) ([]Message, error)
}

// Repositories groups the snapshot stores. A nil member disables that table.
type Repositories struct {
	Nodes    NodeRepository
	Routes   RouteRepository
	Alerts   AlertRepository
	Messages MessageRepository
}
