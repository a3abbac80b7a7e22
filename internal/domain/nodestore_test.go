package domain

import (
	"fmt"
	"testing"
	"time"
)

func newTestStore(now time.Time) (*NetworkStore, *time.Time) {
	clock := now
	store := NewNetworkStore()
	store.now = func() time.Time { return clock }

	return store, &clock
}

func TestNetworkStoreUpsert_PreservesCoordinatesOnSparseUpdates(t *testing.T) {
	store := NewNetworkStore()
	lat := 37.7749
	lon := -122.4194
	alt := int32(123)

	store.UpsertNode(NodeUpdate{Node: Node{
		NodeID:     "!11111111",
		Latitude:   &lat,
		Longitude:  &lon,
		Altitude:   &alt,
		LongName:   "Alpha",
		ShortName:  "ALPH",
		BoardModel: "T_ECHO",
	}})
	store.UpsertNode(NodeUpdate{Node: Node{
		NodeID:   "!11111111",
		LongName: "Alpha Updated",
	}})

	node, ok := store.GetNode("!11111111")
	if !ok {
		t.Fatalf("expected node in store")
	}
	if node.Latitude == nil || *node.Latitude != lat {
		t.Fatalf("expected latitude preserved, got %v", node.Latitude)
	}
	if node.Longitude == nil || *node.Longitude != lon {
		t.Fatalf("expected longitude preserved, got %v", node.Longitude)
	}
	if node.Altitude == nil || *node.Altitude != alt {
		t.Fatalf("expected altitude preserved, got %v", node.Altitude)
	}
	if node.LongName != "Alpha Updated" {
		t.Fatalf("expected long name update to apply, got %q", node.LongName)
	}
	if node.ShortName != "ALPH" {
		t.Fatalf("expected short name preserved, got %q", node.ShortName)
	}
	if node.NodeNum != 0x11111111 {
		t.Fatalf("expected node number derived from id, got 0x%08x", node.NodeNum)
	}
}

func TestNetworkStoreUpsert_ReportsNewNodes(t *testing.T) {
	store := NewNetworkStore()

	_, isNew := store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!0000beef"}, FromPacket: true})
	if !isNew {
		t.Fatalf("expected first upsert to be new")
	}
	node, isNew := store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!0000BEEF"}, FromPacket: true})
	if isNew {
		t.Fatalf("expected second upsert to update the same node")
	}
	if !node.Online || node.LastHeardAt.IsZero() {
		t.Fatalf("expected packet update to mark node online and heard")
	}
	if store.NodeCount() != 1 {
		t.Fatalf("expected one node, got %d", store.NodeCount())
	}
	if _, ok := store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!ffffffff"}}); ok {
		t.Fatalf("expected broadcast id to be rejected")
	}
}

func TestNetworkStore_ReadsReturnCopies(t *testing.T) {
	store := NewNetworkStore()
	store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!00000001"}, FromPacket: true})
	store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!00000002"}, FromPacket: true})
	store.UpdateNeighbors("!00000001", []string{"!00000002"})

	node, _ := store.GetNode("!00000001")
	node.Neighbors[0] = "!deadbeef"
	node.LongName = "mutated"

	again, _ := store.GetNode("!00000001")
	if again.Neighbors[0] != "!00000002" || again.LongName != "" {
		t.Fatalf("expected store to be unaffected by caller mutation, got %+v", again)
	}
}

func TestNetworkStore_PruneStale(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store, clock := newTestStore(base)
	threshold := time.Hour

	store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!0000000a"}, LastHeard: base.Add(-2 * threshold)})
	store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!0000000b"}, LastHeard: base.Add(-threshold / 2)})
	store.UpdateRoute("!0000000a", MeshRoute{Hops: []RouteHop{{NodeID: "!0000000b"}}})
	store.UpdateNeighbors("!0000000b", []string{"!0000000a"})
	*clock = base

	if removed := store.PruneStale(threshold); removed != 1 {
		t.Fatalf("expected one node pruned, got %d", removed)
	}
	if _, ok := store.GetNode("!0000000a"); ok {
		t.Fatalf("expected stale node to be removed")
	}
	if _, ok := store.GetNode("!0000000b"); !ok {
		t.Fatalf("expected fresh node to be retained")
	}
	if _, ok := store.Route("!0000000a"); ok {
		t.Fatalf("expected route to pruned node to be dropped")
	}
	if node, _ := store.GetNode("!0000000b"); len(node.Neighbors) != 0 {
		t.Fatalf("expected neighbor reference to pruned node to be removed, got %v", node.Neighbors)
	}
}

func TestNetworkStore_PruneEnforcesCapacity(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store, _ := newTestStore(base)
	store.maxNodes = 3

	var loaded []Node
	for i := 1; i <= 5; i++ {
		loaded = append(loaded, Node{
			NodeID:      NodeIDFromNum(uint32(i)),
			LastHeardAt: base.Add(-time.Duration(10-i) * time.Minute),
		})
	}
	store.LoadNodes(loaded)
	if removed := store.PruneStale(24 * time.Hour); removed != 2 {
		t.Fatalf("expected two nodes evicted, got %d", removed)
	}
	for _, id := range []uint32{1, 2} {
		if _, ok := store.GetNode(NodeIDFromNum(id)); ok {
			t.Fatalf("expected least recently heard node %d to be evicted", id)
		}
	}
}

func TestNetworkStoreUpsert_EvictsLeastRecentlyHeardWhenFull(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store, clock := newTestStore(base)
	store.maxNodes = 3

	for i := 1; i <= 3; i++ {
		*clock = base.Add(time.Duration(i) * time.Minute)
		store.UpsertNode(NodeUpdate{Node: Node{NodeID: NodeIDFromNum(uint32(i))}, FromPacket: true})
	}
	store.UpdateNeighbors("!00000003", []string{"!00000001", "!00000002"})
	store.UpdateRoute("!00000001", MeshRoute{Hops: []RouteHop{{NodeID: "!00000001", SNR: 4}}})

	// Refreshing a known node in a full table evicts nothing.
	*clock = base.Add(4 * time.Minute)
	store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!00000002"}, FromPacket: true})
	if store.NodeCount() != 3 {
		t.Fatalf("expected 3 nodes after refresh, got %d", store.NodeCount())
	}

	*clock = base.Add(5 * time.Minute)
	if _, isNew := store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!00000004"}, FromPacket: true}); !isNew {
		t.Fatalf("expected !00000004 to be inserted")
	}
	if store.NodeCount() != 3 {
		t.Fatalf("expected capacity 3 to hold, got %d", store.NodeCount())
	}
	if _, ok := store.GetNode("!00000001"); ok {
		t.Fatalf("expected least recently heard !00000001 to be evicted")
	}
	if _, ok := store.Route("!00000001"); ok {
		t.Fatalf("expected route to evicted node to be dropped")
	}
	if node, _ := store.GetNode("!00000003"); len(node.Neighbors) != 1 || node.Neighbors[0] != "!00000002" {
		t.Fatalf("expected neighbor reference to evicted node to be removed, got %v", node.Neighbors)
	}
}

func TestNetworkStoreUpsert_FloodStaysWithinMaxNodes(t *testing.T) {
	store := NewNetworkStore()

	for i := 1; i <= MaxNodes+500; i++ {
		store.UpsertNode(NodeUpdate{Node: Node{NodeID: NodeIDFromNum(uint32(i))}, FromPacket: true})
	}
	if got := store.NodeCount(); got != MaxNodes {
		t.Fatalf("expected %d nodes after flood, got %d", MaxNodes, got)
	}
}

func TestNetworkStore_MarkOffline(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store, clock := newTestStore(base)

	store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!00000001"}, FromPacket: true})
	*clock = base.Add(20 * time.Minute)
	store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!00000002"}, FromPacket: true})

	if changed := store.MarkOffline(15 * time.Minute); len(changed) != 1 || changed[0] != "!00000001" {
		t.Fatalf("expected !00000001 to go offline, got %v", changed)
	}
	if node, _ := store.GetNode("!00000001"); node.Online {
		t.Fatalf("expected old node offline")
	}
	if node, _ := store.GetNode("!00000002"); !node.Online {
		t.Fatalf("expected recent node online")
	}
}

func TestNetworkStore_SetNodeOnline(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store, clock := newTestStore(base)

	if store.SetNodeOnline("!00000001", true) {
		t.Fatalf("expected unknown node to be ignored")
	}
	store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!00000001"}, FromPacket: true})
	if !store.SetNodeOnline("!00000001", false) {
		t.Fatalf("expected known node to be updated")
	}
	if node, _ := store.GetNode("!00000001"); node.Online {
		t.Fatalf("expected node offline")
	}

	*clock = base.Add(time.Minute)
	store.SetNodeOnline("!00000001", true)
	node, _ := store.GetNode("!00000001")
	if !node.Online || !node.LastHeardAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("expected node online and heard at %v, got %+v", base.Add(time.Minute), node)
	}
}

func TestNetworkStore_LinkQualityAccumulates(t *testing.T) {
	store := NewNetworkStore()
	if store.UpdateLinkQuality("!00000001", 5, -90, 1) {
		t.Fatalf("expected unknown node to be ignored")
	}
	store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!00000001"}})

	store.UpdateLinkQuality("!00000001", 5, -90, 1)
	store.UpdateLinkQuality("!00000001", -5, -110, 2)
	store.UpdateLinkQuality("!00000001", 3, -95, 0)

	node, _ := store.GetNode("!00000001")
	lq := node.LinkQuality
	if lq.PacketCount != 3 || lq.SNRSum != 3 {
		t.Fatalf("unexpected aggregate: %+v", lq)
	}
	if lq.BestSNR != 5 || lq.WorstSNR != -5 {
		t.Fatalf("unexpected best/worst: %+v", lq)
	}
	if lq.AvgSNR() != 1 || lq.LastRSSI != -95 {
		t.Fatalf("unexpected avg/last rssi: %+v", lq)
	}
	if lq.QualityPercent() != 64 {
		t.Fatalf("expected 64%% quality, got %d", lq.QualityPercent())
	}

	store.ResetLinkQuality("!00000001")
	if node, _ := store.GetNode("!00000001"); node.LinkQuality.PacketCount != 0 {
		t.Fatalf("expected reset aggregate")
	}
}

func TestNetworkStore_MessageRingIsBounded(t *testing.T) {
	store := NewNetworkStore()
	for i := 0; i < MaxMessages+25; i++ {
		store.RecordMessage(Message{ID: fmt.Sprintf("m%d", i), Channel: i % 2})
	}

	all := store.Messages(MessageFilter{})
	if len(all) != MaxMessages {
		t.Fatalf("expected %d messages, got %d", MaxMessages, len(all))
	}
	if all[0].ID != "m25" {
		t.Fatalf("expected oldest messages dropped first, got %q", all[0].ID)
	}

	one := 1
	filtered := store.Messages(MessageFilter{Channel: &one, Limit: 10})
	if len(filtered) != 10 {
		t.Fatalf("expected 10 filtered messages, got %d", len(filtered))
	}
	for _, m := range filtered {
		if m.Channel != 1 {
			t.Fatalf("expected channel 1 only, got %d", m.Channel)
		}
	}
	if store.Channels()[0].MessageCount != (MaxMessages+25)/2+1 {
		t.Fatalf("unexpected channel 0 counter: %d", store.Channels()[0].MessageCount)
	}
}

func TestNetworkStore_AlertsAndAcknowledge(t *testing.T) {
	store := NewNetworkStore()
	for i := 0; i < MaxAlerts+1; i++ {
		store.RecordAlert(Alert{ID: fmt.Sprintf("a%d", i), Type: AlertTypeCustom, Severity: 1})
	}
	if got := len(store.Alerts(false)); got != MaxAlerts {
		t.Fatalf("expected %d alerts, got %d", MaxAlerts, got)
	}
	if store.AcknowledgeAlert("a0") {
		t.Fatalf("expected evicted alert to be unknown")
	}
	if !store.AcknowledgeAlert("a10") {
		t.Fatalf("expected alert a10 to be acknowledged")
	}
	if got := len(store.Alerts(true)); got != MaxAlerts-1 {
		t.Fatalf("expected %d unread alerts, got %d", MaxAlerts-1, got)
	}
}

func TestNetworkStore_RouteReplaceAndEviction(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store, _ := newTestStore(base)

	store.UpdateRoute("!00000009", MeshRoute{Hops: []RouteHop{{NodeID: "!00000001"}, {NodeID: "!00000002"}}})
	store.UpdateRoute("!00000009", MeshRoute{Hops: []RouteHop{{NodeID: "!00000003"}}})
	route, ok := store.Route("!00000009")
	if !ok || route.HopCount() != 1 || route.Hops[0].NodeID != "!00000003" {
		t.Fatalf("expected newer route to replace older, got %+v", route)
	}

	for i := 0; i < MaxRoutes; i++ {
		store.UpdateRoute(NodeIDFromNum(uint32(1000+i)), MeshRoute{DiscoveredAt: base.Add(time.Duration(i+1) * time.Second)})
	}
	if got := len(store.Routes()); got != MaxRoutes {
		t.Fatalf("expected %d routes, got %d", MaxRoutes, got)
	}
	if _, ok := store.Route("!00000009"); ok {
		t.Fatalf("expected oldest discovered route to be evicted")
	}
}

func TestNetworkStore_Health(t *testing.T) {
	store := NewNetworkStore()
	if h := store.Health(); h.Status != HealthUnknown || h.Score != 0 {
		t.Fatalf("expected unknown health for empty store, got %+v", h)
	}

	util := 20.0
	store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!00000001", ChannelUtilization: &util}, FromPacket: true})
	store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!00000002"}})
	store.UpdateLinkQuality("!00000001", 5, -80, 0)

	h := store.Health()
	// 1/2*40 + min(30, (5+10)*2) + (30 - 20*0.3) = 20 + 30 + 24
	if h.Score != 74 || h.Status != HealthGood {
		t.Fatalf("unexpected health: %+v", h)
	}
	if h.OnlineNodes != 1 || h.TotalNodes != 2 || h.AvgSNR != 5 || h.AvgChannelUtilization != 20 {
		t.Fatalf("unexpected health details: %+v", h)
	}
}

func TestNetworkStore_GeoJSONSkipsInvalidPositions(t *testing.T) {
	store := NewNetworkStore()
	lat, lon := 45.0, 7.5
	zero := 0.0
	store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!00000001", LongName: "Placed", Latitude: &lat, Longitude: &lon}})
	store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!00000002", Latitude: &zero, Longitude: &zero}})
	store.UpsertNode(NodeUpdate{Node: Node{NodeID: "!00000003"}})

	fc := store.GeoJSON()
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 {
		t.Fatalf("expected one feature, got %+v", fc)
	}
	f := fc.Features[0]
	if f.Geometry.Coordinates[0] != lon || f.Geometry.Coordinates[1] != lat {
		t.Fatalf("expected [lon, lat] order, got %v", f.Geometry.Coordinates)
	}
	if f.Properties["name"] != "Placed" {
		t.Fatalf("unexpected name property: %v", f.Properties["name"])
	}
}

func TestNetworkStore_ChannelsHaveEightSlots(t *testing.T) {
	store := NewNetworkStore()
	channels := store.Channels()
	if len(channels) != ChannelSlots {
		t.Fatalf("expected %d channels, got %d", ChannelSlots, len(channels))
	}
	if channels[0].Role != ChannelRolePrimary || channels[1].Role != ChannelRoleDisabled {
		t.Fatalf("unexpected default roles: %v %v", channels[0].Role, channels[1].Role)
	}
	if store.SetChannel(Channel{Index: 8}) {
		t.Fatalf("expected out of range slot to be rejected")
	}
	store.SetChannel(Channel{Index: 0, Name: "LongFast", Encrypted: true})
	if got := store.Channels()[0].DisplayName(); got != "LongFast" {
		t.Fatalf("unexpected display name %q", got)
	}
	if got := store.Channels()[3].DisplayName(); got != "Channel 3" {
		t.Fatalf("unexpected display name %q", got)
	}
}

func TestNodeDisplayName_Fallback(t *testing.T) {
	if got := NodeDisplayName(Node{NodeID: "!1234abcd"}); got != "!abcd" {
		t.Fatalf("expected short id fallback, got %q", got)
	}
	if got := NodeDisplayName(Node{NodeID: "!1234abcd", ShortName: "AB"}); got != "AB" {
		t.Fatalf("expected short name, got %q", got)
	}
}
