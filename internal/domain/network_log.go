package domain

import (
	"sort"
	"time"
)

// RecordMessage appends to the bounded message log and bumps the channel counters.
func (s *NetworkStore) RecordMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if msg.At.IsZero() {
		msg.At = now
	}
	s.messages = appendRing(s.messages, msg, MaxMessages)
	if msg.Channel >= 0 && msg.Channel < ChannelSlots {
		ch := &s.channels[msg.Channel]
		ch.MessageCount++
		ch.LastActivity = msg.At
	}
	s.touch(now)
}

// Messages returns matching messages oldest first. A positive Limit keeps the newest entries.
func (s *NetworkStore) Messages(filter MessageFilter) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, 0, len(s.messages))
	for _, msg := range s.messages {
		if filter.match(msg) {
			out = append(out, msg)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}

	return out
}

// RecordAlert appends to the bounded alert log. The oldest alert is dropped first.
func (s *NetworkStore) RecordAlert(alert Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alert.At.IsZero() {
		alert.At = s.now()
	}
	s.alerts = appendRing(s.alerts, cloneAlert(alert), MaxAlerts)
	s.touch(s.now())
}

func (s *NetworkStore) AcknowledgeAlert(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Acknowledged = true
			s.touch(s.now())
			return true
		}
	}

	return false
}

// Alerts returns alerts oldest first, optionally only unacknowledged ones.
func (s *NetworkStore) Alerts(unreadOnly bool) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		if unreadOnly && alert.Acknowledged {
			continue
		}
		out = append(out, cloneAlert(alert))
	}

	return out
}

// LoadAlerts restores persisted alerts ahead of anything recorded since startup.
func (s *NetworkStore) LoadAlerts(alerts []Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]Alert, 0, len(alerts)+len(s.alerts))
	for _, alert := range alerts {
		merged = append(merged, cloneAlert(alert))
	}
	merged = append(merged, s.alerts...)
	if len(merged) > MaxAlerts {
		merged = merged[len(merged)-MaxAlerts:]
	}
	s.alerts = merged
}

// UpdateRoute replaces the route to destID. Over capacity, the oldest discovered route goes.
func (s *NetworkStore) UpdateRoute(destID string, route MeshRoute) {
	destID = NormalizeNodeID(destID)
	if destID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	route.DestinationID = destID
	if route.DiscoveredAt.IsZero() {
		route.DiscoveredAt = now
	}
	if route.LastUsedAt.IsZero() {
		route.LastUsedAt = route.DiscoveredAt
	}
	s.routes[destID] = cloneRoute(route)

	if len(s.routes) > MaxRoutes {
		oldestID := ""
		var oldest time.Time
		for id, r := range s.routes {
			if oldestID == "" || r.DiscoveredAt.Before(oldest) {
				oldestID, oldest = id, r.DiscoveredAt
			}
		}
		delete(s.routes, oldestID)
	}
	s.touch(now)
}

func (s *NetworkStore) Route(destID string) (MeshRoute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.routes[NormalizeNodeID(destID)]
	if !ok {
		return MeshRoute{}, false
	}

	return cloneRoute(r), true
}

// Routes returns all routes ordered by destination id.
func (s *NetworkStore) Routes() []MeshRoute {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]MeshRoute, 0, len(s.routes))
	for _, r := range s.routes {
		out = append(out, cloneRoute(r))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DestinationID < out[j].DestinationID
	})

	return out
}

func (s *NetworkStore) LoadRoutes(routes []MeshRoute) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range routes {
		if id := NormalizeNodeID(r.DestinationID); id != "" {
			r.DestinationID = id
			s.routes[id] = cloneRoute(r)
		}
	}
}

// SetChannel replaces the configuration of one slot, keeping its activity counters.
func (s *NetworkStore) SetChannel(ch Channel) bool {
	if ch.Index < 0 || ch.Index >= ChannelSlots {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.channels[ch.Index]
	ch.MessageCount = current.MessageCount
	if ch.LastActivity.IsZero() {
		ch.LastActivity = current.LastActivity
	}
	if ch.Role == "" {
		ch.Role = current.Role
	}
	s.channels[ch.Index] = ch
	s.touch(s.now())

	return true
}

// TouchChannel records non-message activity on a channel slot.
func (s *NetworkStore) TouchChannel(index int, at time.Time) {
	if index < 0 || index >= ChannelSlots {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if at.After(s.channels[index].LastActivity) {
		s.channels[index].LastActivity = at
	}
}

func (s *NetworkStore) Channels() []Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Channel, ChannelSlots)
	copy(out, s.channels[:])

	return out
}

func (s *NetworkStore) SetLocalNodeID(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.localNodeID = NormalizeNodeID(nodeID)
}

func (s *NetworkStore) LocalNodeID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.localNodeID
}

func (s *NetworkStore) SetConnectionStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connectionStatus = status
	s.touch(s.now())
}

func (s *NetworkStore) ConnectionStatus() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.connectionStatus
}

func appendRing[T any](ring []T, item T, limit int) []T {
	ring = append(ring, item)
	if len(ring) > limit {
		// Copy so the dropped head does not pin the old backing array.
		ring = append(make([]T, 0, limit), ring[len(ring)-limit:]...)
	}

	return ring
}

func cloneAlert(a Alert) Alert {
	if a.Metadata != nil {
		meta := make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			meta[k] = v
		}
		a.Metadata = meta
	}

	return a
}

func cloneRoute(r MeshRoute) MeshRoute {
	r.Hops = append([]RouteHop(nil), r.Hops...)

	return r
}

// LoadMessages restores persisted messages ahead of anything recorded since startup. Channel
// counters are not replayed.
func (s *NetworkStore) LoadMessages(messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]Message, 0, len(messages)+len(s.messages))
	merged = append(merged, messages...)
	merged = append(merged, s.messages...)
	if len(merged) > MaxMessages {
		merged = merged[len(merged)-MaxMessages:]
	}
	s.messages = merged
}
