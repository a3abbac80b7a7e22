package domain

import (
	"math"
	"time"
)

type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthExcellent HealthStatus = "excellent"
	HealthGood      HealthStatus = "good"
	HealthFair      HealthStatus = "fair"
	HealthPoor      HealthStatus = "poor"
	HealthCritical  HealthStatus = "critical"
)

// Health summarizes signal quality across the network.
type Health struct {
	Status                HealthStatus `json:"status"`
	Score                 int          `json:"score"`
	OnlineNodes           int          `json:"online_nodes"`
	TotalNodes            int          `json:"total_nodes"`
	AvgSNR                float64      `json:"avg_snr"`
	AvgChannelUtilization float64      `json:"avg_channel_utilization"`
}

// Health scores the network from 0 to 100: up to 40 points for the online ratio, 30 for the
// average link SNR and 30 for low channel utilization.
func (s *NetworkStore) Health() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return computeHealth(s.nodes)
}

func computeHealth(nodes map[string]*Node) Health {
	if len(nodes) == 0 {
		return Health{Status: HealthUnknown}
	}

	var online, snrCount, utilCount int
	var snrSum, utilSum float64
	for _, node := range nodes {
		if node.Online {
			online++
		}
		if node.LinkQuality.PacketCount > 0 {
			snrSum += node.LinkQuality.AvgSNR()
			snrCount++
		}
		if node.ChannelUtilization != nil && *node.ChannelUtilization > 0 {
			utilSum += *node.ChannelUtilization
			utilCount++
		}
	}

	var avgSNR, avgUtil float64
	if snrCount > 0 {
		avgSNR = snrSum / float64(snrCount)
	}
	if utilCount > 0 {
		avgUtil = utilSum / float64(utilCount)
	}

	onlineScore := float64(online) / float64(len(nodes)) * 40
	snrScore := math.Min(30, math.Max(0, (avgSNR+10)*2))
	utilScore := math.Max(0, 30-avgUtil*0.3)
	score := int(onlineScore + snrScore + utilScore)

	return Health{
		Status:                healthStatus(score),
		Score:                 score,
		OnlineNodes:           online,
		TotalNodes:            len(nodes),
		AvgSNR:                round2(avgSNR),
		AvgChannelUtilization: round2(avgUtil),
	}
}

func healthStatus(score int) HealthStatus {
	switch {
	case score >= 80:
		return HealthExcellent
	case score >= 60:
		return HealthGood
	case score >= 40:
		return HealthFair
	case score >= 20:
		return HealthPoor
	default:
		return HealthCritical
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Snapshot is a consistent copy of the whole store taken under one lock.
type Snapshot struct {
	Nodes            []Node
	Routes           []MeshRoute
	Channels         []Channel
	Messages         []Message
	Alerts           []Alert
	LocalNodeID      string
	ConnectionStatus string
	Health           Health
	LastUpdate       time.Time
}

func (s *NetworkStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Nodes:            make([]Node, 0, len(s.nodes)),
		Routes:           make([]MeshRoute, 0, len(s.routes)),
		Channels:         make([]Channel, ChannelSlots),
		Messages:         append([]Message(nil), s.messages...),
		Alerts:           make([]Alert, 0, len(s.alerts)),
		LocalNodeID:      s.localNodeID,
		ConnectionStatus: s.connectionStatus,
		Health:           computeHealth(s.nodes),
		LastUpdate:       s.lastUpdate,
	}
	for _, node := range s.nodes {
		snap.Nodes = append(snap.Nodes, cloneNode(node))
	}
	for _, r := range s.routes {
		snap.Routes = append(snap.Routes, cloneRoute(r))
	}
	copy(snap.Channels, s.channels[:])
	for _, a := range s.alerts {
		snap.Alerts = append(snap.Alerts, cloneAlert(a))
	}

	return snap
}
