package domain

import (
	"sort"
	"sync"
	"time"
)

const (
	MaxNodes            = 10000
	MaxRoutes           = 5000
	MaxNeighborsPerNode = 200
	MaxMessages         = 1000
	MaxAlerts           = 500
	ChannelSlots        = 8

	DefaultStaleThreshold  = 72 * time.Hour
	DefaultOnlineThreshold = 15 * time.Minute
)

// NetworkStore is the single owner of reconstructed mesh topology. Every read and write holds
// mu for its duration and reads return copies.
type NetworkStore struct {
	mu sync.RWMutex

	nodes    map[string]*Node
	routes   map[string]MeshRoute
	channels [ChannelSlots]Channel
	messages []Message
	alerts   []Alert

	localNodeID      string
	connectionStatus string
	lastUpdate       time.Time

	maxNodes int
	now      func() time.Time
}

func NewNetworkStore() *NetworkStore {
	s := &NetworkStore{
		nodes:            make(map[string]*Node),
		routes:           make(map[string]MeshRoute),
		connectionStatus: "disconnected",
		maxNodes:         MaxNodes,
		now:              time.Now,
	}
	for i := range s.channels {
		s.channels[i] = Channel{Index: i, Role: ChannelRoleDisabled}
	}
	s.channels[0].Role = ChannelRolePrimary

	return s
}

// UpsertNode merges a sparse update into the node table and reports whether the node is new.
// Inserting into a full table evicts the least recently heard node first.
func (s *NetworkStore) UpsertNode(update NodeUpdate) (Node, bool) {
	nodeID := NormalizeNodeID(update.Node.NodeID)
	if nodeID == "" {
		return Node{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, ok := s.nodes[nodeID]
	if !ok {
		if len(s.nodes) >= s.maxNodes {
			s.evictOldestLocked()
		}
		existing = &Node{NodeID: nodeID, FirstSeenAt: now}
		s.nodes[nodeID] = existing
	}
	mergeNode(existing, update.Node)
	if num, err := ParseNodeID(nodeID); err == nil {
		existing.NodeNum = num
	}

	heard := update.LastHeard
	if heard.IsZero() && update.FromPacket {
		heard = now
	}
	if heard.After(existing.LastHeardAt) {
		existing.LastHeardAt = heard
	}
	if update.FromPacket {
		existing.Online = true
	}
	existing.UpdatedAt = now
	s.touch(now)

	return cloneNode(existing), !ok
}

// mergeNode copies every set field of src into dst. Pointer fields are replaced, never written
// through, so copies handed out earlier keep their values.
func mergeNode(dst *Node, src Node) {
	if src.LongName != "" {
		dst.LongName = src.LongName
	}
	if src.ShortName != "" {
		dst.ShortName = src.ShortName
	}
	if src.BoardModel != "" {
		dst.BoardModel = src.BoardModel
	}
	if src.Role != "" {
		dst.Role = src.Role
	}
	if src.IsLicensed != nil {
		dst.IsLicensed = src.IsLicensed
	}
	if src.Latitude != nil && src.Longitude != nil {
		dst.Latitude = src.Latitude
		dst.Longitude = src.Longitude
		dst.PositionAt = src.PositionAt
	}
	if src.Altitude != nil {
		dst.Altitude = src.Altitude
	}
	if src.PositionPrecision != nil {
		dst.PositionPrecision = src.PositionPrecision
	}
	if src.BatteryLevel != nil {
		dst.BatteryLevel = src.BatteryLevel
	}
	if src.Voltage != nil {
		dst.Voltage = src.Voltage
	}
	if src.ChannelUtilization != nil {
		dst.ChannelUtilization = src.ChannelUtilization
	}
	if src.AirUtilTx != nil {
		dst.AirUtilTx = src.AirUtilTx
	}
	if src.UptimeSeconds != nil {
		dst.UptimeSeconds = src.UptimeSeconds
	}
	if src.Temperature != nil {
		dst.Temperature = src.Temperature
	}
	if src.Humidity != nil {
		dst.Humidity = src.Humidity
	}
	if src.Pressure != nil {
		dst.Pressure = src.Pressure
	}
	if src.GasResistance != nil {
		dst.GasResistance = src.GasResistance
	}
	if src.TelemetryAt.After(dst.TelemetryAt) {
		dst.TelemetryAt = src.TelemetryAt
	}
	if src.RSSI != nil {
		dst.RSSI = src.RSSI
	}
	if src.SNR != nil {
		dst.SNR = src.SNR
	}
	if src.HopCount != nil {
		dst.HopCount = src.HopCount
	}
}

func (s *NetworkStore) GetNode(nodeID string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[NormalizeNodeID(nodeID)]
	if !ok {
		return Node{}, false
	}

	return cloneNode(node), true
}

// FindNodeByLastByte returns the single node whose number ends in lowByte. It fails when no
// node or more than one node matches.
func (s *NetworkStore) FindNodeByLastByte(lowByte uint32) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *Node
	for _, node := range s.nodes {
		if node.NodeNum&0xff != lowByte&0xff {
			continue
		}
		if found != nil {
			return Node{}, false
		}
		found = node
	}
	if found == nil {
		return Node{}, false
	}

	return cloneNode(found), true
}

// Nodes returns all nodes, most recently heard first.
func (s *NetworkStore) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		out = append(out, cloneNode(node))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastHeardAt.Equal(out[j].LastHeardAt) {
			return out[i].NodeID < out[j].NodeID
		}
		return out[i].LastHeardAt.After(out[j].LastHeardAt)
	})

	return out
}

func (s *NetworkStore) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.nodes)
}

// UpdateLinkQuality accumulates one reception into the node's link aggregate. Unknown nodes are
// ignored.
func (s *NetworkStore) UpdateLinkQuality(nodeID string, snr float64, rssi int, hops int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[NormalizeNodeID(nodeID)]
	if !ok {
		return false
	}
	node.LinkQuality.add(snr, rssi, hops, s.now())

	return true
}

func (s *NetworkStore) ResetLinkQuality(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if node, ok := s.nodes[NormalizeNodeID(nodeID)]; ok {
		node.LinkQuality = LinkQuality{}
	}
}

// UpdateNeighbors records that reporterID heard each of heardIDs. Only nodes already in the
// table are linked. Both lists keep the most recent MaxNeighborsPerNode entries.
func (s *NetworkStore) UpdateNeighbors(reporterID string, heardIDs []string) {
	reporterID = NormalizeNodeID(reporterID)
	if reporterID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reporter := s.nodes[reporterID]
	for _, raw := range heardIDs {
		heardID := NormalizeNodeID(raw)
		if heardID == "" || heardID == reporterID {
			continue
		}
		if reporter != nil {
			reporter.Neighbors = appendBounded(reporter.Neighbors, heardID, MaxNeighborsPerNode)
		}
		if heard, ok := s.nodes[heardID]; ok {
			heard.HeardBy = appendBounded(heard.HeardBy, reporterID, MaxNeighborsPerNode)
		}
	}
	s.touch(s.now())
}

func appendBounded(list []string, id string, limit int) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	list = append(list, id)
	if len(list) > limit {
		list = append([]string(nil), list[len(list)-limit:]...)
	}

	return list
}

// MarkOffline flags nodes not heard within threshold as offline and returns their ids, sorted.
func (s *NetworkStore) MarkOffline(threshold time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-threshold)
	var changed []string
	for id, node := range s.nodes {
		if node.Online && node.LastHeardAt.Before(cutoff) {
			node.Online = false
			changed = append(changed, id)
		}
	}
	sort.Strings(changed)

	return changed
}

// SetNodeOnline records a presence report. Coming online also counts as being heard.
func (s *NetworkStore) SetNodeOnline(nodeID string, online bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[NormalizeNodeID(nodeID)]
	if !ok {
		return false
	}
	now := s.now()
	node.Online = online
	if online && now.After(node.LastHeardAt) {
		node.LastHeardAt = now
	}
	node.UpdatedAt = now
	s.touch(now)

	return true
}

// PruneStale removes nodes not heard within threshold together with routes to them, then evicts
// the least recently heard nodes while the table exceeds its capacity.
func (s *NetworkStore) PruneStale(threshold time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-threshold)
	removed := make(map[string]struct{})
	for id, node := range s.nodes {
		if !node.LastHeardAt.IsZero() && node.LastHeardAt.Before(cutoff) {
			removed[id] = struct{}{}
		}
	}

	if remaining := len(s.nodes) - len(removed); remaining > s.maxNodes {
		candidates := make([]*Node, 0, remaining)
		for id, node := range s.nodes {
			if _, gone := removed[id]; !gone {
				candidates = append(candidates, node)
			}
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].LastHeardAt.Before(candidates[j].LastHeardAt)
		})
		for _, node := range candidates[:remaining-s.maxNodes] {
			removed[node.NodeID] = struct{}{}
		}
	}
	if len(removed) == 0 {
		return 0
	}
	s.removeLocked(removed)
	s.touch(s.now())

	return len(removed)
}

func (s *NetworkStore) evictOldestLocked() {
	var oldest *Node
	for _, node := range s.nodes {
		if oldest == nil || node.LastHeardAt.Before(oldest.LastHeardAt) ||
			(node.LastHeardAt.Equal(oldest.LastHeardAt) && node.NodeID < oldest.NodeID) {
			oldest = node
		}
	}
	if oldest != nil {
		s.removeLocked(map[string]struct{}{oldest.NodeID: {}})
	}
}

// removeLocked deletes nodes, routes to them and every neighbour reference.
func (s *NetworkStore) removeLocked(removed map[string]struct{}) {
	for id := range removed {
		delete(s.nodes, id)
		delete(s.routes, id)
	}
	for _, node := range s.nodes {
		node.Neighbors = withoutIDs(node.Neighbors, removed)
		node.HeardBy = withoutIDs(node.HeardBy, removed)
	}
}

func withoutIDs(list []string, removed map[string]struct{}) []string {
	if len(list) == 0 {
		return list
	}
	out := list[:0:0]
	for _, id := range list {
		if _, gone := removed[id]; !gone {
			out = append(out, id)
		}
	}

	return out
}

// LoadNodes replaces stored nodes with persisted ones. Loaded nodes start offline.
func (s *NetworkStore) LoadNodes(nodes []Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, node := range nodes {
		id := NormalizeNodeID(node.NodeID)
		if id == "" {
			continue
		}
		loaded := cloneNode(&node)
		loaded.NodeID = id
		loaded.Online = false
		s.nodes[id] = &loaded
	}
}

func (s *NetworkStore) touch(now time.Time) {
	s.lastUpdate = now
}

func cloneNode(n *Node) Node {
	out := *n
	out.Neighbors = append([]string(nil), n.Neighbors...)
	out.HeardBy = append([]string(nil), n.HeardBy...)

	return out
}
