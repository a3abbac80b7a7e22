package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/skobkin/meshwatch/internal/domain"
)

func TestRouteRepoUpsert_ReplacesHops(t *testing.T) {
	ctx, db := openTestDB(t)

	repo := NewRouteRepo(db)
	discovered := time.Now().UTC().Truncate(time.Millisecond)

	if err := repo.Upsert(ctx, domain.MeshRoute{
		DestinationID: "!00000042",
		Hops:          []domain.RouteHop{{NodeID: "!00000010", SNR: 8.75}, {NodeID: "!00000011", SNR: -2}},
		DiscoveredAt:  discovered,
	}); err != nil {
		t.Fatalf("upsert initial route: %v", err)
	}
	if err := repo.Upsert(ctx, domain.MeshRoute{
		DestinationID: "!00000042",
		Hops:          []domain.RouteHop{{NodeID: "!00000020", SNR: 4.5}},
		DiscoveredAt:  discovered.Add(time.Minute),
	}); err != nil {
		t.Fatalf("upsert replacement route: %v", err)
	}

	routes, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list routes: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected one route, got %d", len(routes))
	}
	r := routes[0]
	if len(r.Hops) != 1 || r.Hops[0].NodeID != "!00000020" || r.Hops[0].SNR != 4.5 {
		t.Fatalf("expected replacement hops, got %+v", r.Hops)
	}
	if !r.DiscoveredAt.Equal(discovered.Add(time.Minute)) {
		t.Fatalf("unexpected discovered at %v", r.DiscoveredAt)
	}
}

func TestAlertRepo_InsertAcknowledgeList(t *testing.T) {
	ctx, db := openTestDB(t)

	repo := NewAlertRepo(db)
	base := time.Now().UTC().Truncate(time.Millisecond)
	alerts := []domain.Alert{
		{ID: "a1", Type: domain.AlertTypeBattery, Title: "Low battery", Severity: 2, SourceNode: "!00000001", At: base, Metadata: map[string]string{"battery": "12"}},
		{ID: "a2", Type: domain.AlertTypeNewNode, Title: "New node", Severity: 1, At: base.Add(time.Second)},
		{ID: "a3", Type: domain.AlertTypeEmergency, Title: "Emergency", Severity: 4, At: base.Add(2 * time.Second)},
	}
	for _, a := range alerts {
		if err := repo.Insert(ctx, a); err != nil {
			t.Fatalf("insert %s: %v", a.ID, err)
		}
	}
	if err := repo.Insert(ctx, alerts[0]); err != nil {
		t.Fatalf("repeated insert should be ignored: %v", err)
	}
	if err := repo.Acknowledge(ctx, "a1"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	got, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a2" || got[1].ID != "a3" {
		t.Fatalf("expected two newest alerts oldest first, got %+v", got)
	}

	all, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list all alerts: %v", err)
	}
	if !all[0].Acknowledged || all[0].Metadata["battery"] != "12" || all[0].SourceNode != "!00000001" {
		t.Fatalf("unexpected first alert: %+v", all[0])
	}
}

func TestMessageRepo_InsertIsIdempotent(t *testing.T) {
	ctx, db := openTestDB(t)

	repo := NewMessageRepo(db)
	snr := 6.25
	hops := 2
	msg := domain.Message{
		ID:          "m1",
		SenderID:    "!00000001",
		RecipientID: domain.BroadcastNodeID,
		Channel:     1,
		Text:        "hello mesh",
		Type:        domain.MessageTypeText,
		Port:        "TEXT_MESSAGE_APP",
		Direction:   domain.MessageDirectionIn,
		At:          time.Now().UTC().Truncate(time.Millisecond),
		SNR:         &snr,
		HopCount:    &hops,
		Encrypted:   true,
		RelayHint:   "!??????ab",
	}
	for i := 0; i < 2; i++ {
		if err := repo.Insert(ctx, msg); err != nil {
			t.Fatalf("insert message: %v", err)
		}
	}

	got, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one stored message, got %d", len(got))
	}
	m := got[0]
	if m.Text != msg.Text || m.Channel != 1 || !m.Encrypted || m.RelayHint != "!??????ab" {
		t.Fatalf("unexpected message: %+v", m)
	}
	if m.SNR == nil || *m.SNR != snr || m.HopCount == nil || *m.HopCount != hops || m.RSSI != nil {
		t.Fatalf("unexpected radio metrics: %+v", m)
	}
}

func TestOpenMemoryDatabase(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	defer func() { _ = db.Close() }()

	var timeout int
	if err := db.QueryRowContext(ctx, `PRAGMA busy_timeout;`).Scan(&timeout); err != nil {
		t.Fatalf("read busy timeout: %v", err)
	}
	if timeout != busyTimeoutMs {
		t.Fatalf("expected busy timeout %d, got %d", busyTimeoutMs, timeout)
	}

	if err := NewAlertRepo(db).Insert(ctx, domain.Alert{ID: "a1", Type: domain.AlertTypeBattery, Severity: 2, At: time.Now()}); err != nil {
		t.Fatalf("insert alert into memory db: %v", err)
	}
}
