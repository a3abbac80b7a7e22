package persistence

import (
	"fmt"
	"testing"
	"time"

	"github.com/skobkin/meshwatch/internal/domain"
)

func TestClearDatabase_ClearsAllTables(t *testing.T) {
	ctx, db := openTestDB(t)

	now := time.Now().UTC()
	if err := NewNodeRepo(db).Upsert(ctx, domain.Node{NodeID: "!00000001", LastHeardAt: now}); err != nil {
		t.Fatalf("seed nodes: %v", err)
	}
	if err := NewRouteRepo(db).Upsert(ctx, domain.MeshRoute{DestinationID: "!00000001", DiscoveredAt: now}); err != nil {
		t.Fatalf("seed routes: %v", err)
	}
	if err := NewAlertRepo(db).Insert(ctx, domain.Alert{ID: "a1", Type: domain.AlertTypeNewNode, At: now}); err != nil {
		t.Fatalf("seed alerts: %v", err)
	}
	if err := NewMessageRepo(db).Insert(ctx, domain.Message{ID: "m1", Text: "hello", Direction: domain.MessageDirectionIn, At: now}); err != nil {
		t.Fatalf("seed messages: %v", err)
	}

	if err := ClearDatabase(ctx, db); err != nil {
		t.Fatalf("clear database: %v", err)
	}

	for _, table := range []string{"messages", "alerts", "routes", "nodes"} {
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Fatalf("count rows in %s: %v", table, err)
		}
		if count != 0 {
			t.Fatalf("expected %s to be empty after clear, got %d rows", table, count)
		}
	}
}

func TestPruneStale_RemovesOldNodesAndTrimsLogs(t *testing.T) {
	ctx, db := openTestDB(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	nodes := NewNodeRepo(db)
	routes := NewRouteRepo(db)
	messages := NewMessageRepo(db)

	if err := nodes.Upsert(ctx, domain.Node{NodeID: "!0000000a", LastHeardAt: now.Add(-100 * time.Hour)}); err != nil {
		t.Fatalf("seed stale node: %v", err)
	}
	if err := nodes.Upsert(ctx, domain.Node{NodeID: "!0000000b", LastHeardAt: now}); err != nil {
		t.Fatalf("seed fresh node: %v", err)
	}
	if err := routes.Upsert(ctx, domain.MeshRoute{DestinationID: "!0000000a", DiscoveredAt: now}); err != nil {
		t.Fatalf("seed route: %v", err)
	}
	for i := 0; i < 5; i++ {
		msg := domain.Message{ID: fmt.Sprintf("m%d", i), At: now.Add(time.Duration(i) * time.Second)}
		if err := messages.Insert(ctx, msg); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	removed, err := PruneStale(ctx, db, now.Add(-72*time.Hour), 3, 10)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one node removed, got %d", removed)
	}

	left, err := nodes.ListSortedByLastHeard(ctx)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(left) != 1 || left[0].NodeID != "!0000000b" {
		t.Fatalf("expected only the fresh node, got %+v", left)
	}
	routeList, err := routes.List(ctx)
	if err != nil {
		t.Fatalf("list routes: %v", err)
	}
	if len(routeList) != 0 {
		t.Fatalf("expected route to pruned node removed, got %+v", routeList)
	}
	msgs, err := messages.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 3 || msgs[0].ID != "m2" {
		t.Fatalf("expected three newest messages, got %+v", msgs)
	}
}
