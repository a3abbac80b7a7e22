package domain

import (
	"context"
	"fmt"
)

// LoadStoreFromRepositories restores a persisted snapshot into store.
func LoadStoreFromRepositories(ctx context.Context, store *NetworkStore, repos Repositories) error {
	if repos.Nodes != nil {
		nodes, err := repos.Nodes.ListSortedByLastHeard(ctx)
		if err != nil {
			return fmt.Errorf("load nodes from db: %w", err)
		}
		store.LoadNodes(nodes)
	}
	if repos.Routes != nil {
		routes, err := repos.Routes.List(ctx)
		if err != nil {
			return fmt.Errorf("load routes from db: %w", err)
		}
		store.LoadRoutes(routes)
	}
	if repos.Alerts != nil {
		alerts, err := repos.Alerts.ListRecent(ctx, MaxAlerts)
		if err != nil {
			return fmt.Errorf("load alerts from db: %w", err)
		}
		store.LoadAlerts(alerts)
	}
	if repos.Messages != nil {
		messages, err := repos.Messages.ListRecent(ctx, MaxMessages)
		if err != nil {
			return fmt.Errorf("load messages from db: %w", err)
		}
		store.LoadMessages(messages)
	}

	return nil
}
