package domain

import (
	"strings"
	"time"
)

type MessageDirection int

const (
	MessageDirectionIn MessageDirection = iota + 1
	MessageDirectionOut
)

type MessageType string

const (
	MessageTypeText       MessageType = "text"
	MessageTypePosition   MessageType = "position"
	MessageTypeTelemetry  MessageType = "telemetry"
	MessageTypeNodeInfo   MessageType = "nodeinfo"
	MessageTypeRouting    MessageType = "routing"
	MessageTypeTraceroute MessageType = "traceroute"
	MessageTypeNeighbors  MessageType = "neighborinfo"
	MessageTypeOther      MessageType = "other"
)

type ChannelRole string

const (
	ChannelRolePrimary   ChannelRole = "PRIMARY"
	ChannelRoleSecondary ChannelRole = "SECONDARY"
	ChannelRoleDisabled  ChannelRole = "DISABLED"
)

type AlertType string

const (
	AlertTypeEmergency  AlertType = "emergency"
	AlertTypeBattery    AlertType = "battery"
	AlertTypeNewNode    AlertType = "new_node"
	AlertTypeCongestion AlertType = "congestion"
	AlertTypeSNR        AlertType = "snr"
	AlertTypeDisconnect AlertType = "disconnect"
	AlertTypeCustom     AlertType = "custom"
)

// Node is the latest known state of one mesh node. Optional values are nil until observed.
type Node struct {
	NodeID    string
	NodeNum   uint32
	LongName  string
	ShortName string
	// BoardModel is the hardware model name reported in NODEINFO.
	BoardModel string
	Role       string
	IsLicensed *bool

	Latitude          *float64
	Longitude         *float64
	Altitude          *int32
	PositionPrecision *uint32
	PositionAt        time.Time

	BatteryLevel       *uint32
	Voltage            *float64
	ChannelUtilization *float64
	AirUtilTx          *float64
	UptimeSeconds      *uint32
	Temperature        *float64
	Humidity           *float64
	Pressure           *float64
	GasResistance      *float64
	TelemetryAt        time.Time

	RSSI     *int
	SNR      *float64
	HopCount *int

	Online      bool
	LastHeardAt time.Time
	FirstSeenAt time.Time
	UpdatedAt   time.Time

	Neighbors   []string
	HeardBy     []string
	LinkQuality LinkQuality
}

// HasPosition reports whether the node has a usable coordinate pair.
func (n Node) HasPosition() bool {
	if n.Latitude == nil || n.Longitude == nil {
		return false
	}

	return IsValidCoordinate(*n.Latitude, *n.Longitude)
}

// NodeUpdate is a sparse observation of a node. Nil and empty fields leave stored values intact.
type NodeUpdate struct {
	Node      Node
	LastHeard time.Time
	// FromPacket marks updates derived from received radio traffic, which also mark the node online.
	FromPacket bool
}

// LinkQuality accumulates per-reception radio metrics for a node until reset.
type LinkQuality struct {
	PacketCount int
	SNRSum      float64
	BestSNR     float64
	WorstSNR    float64
	LastSNR     float64
	LastRSSI    int
	HopCount    int
	LastSeen    time.Time
}

func (q *LinkQuality) add(snr float64, rssi int, hops int, at time.Time) {
	if q.PacketCount == 0 || snr > q.BestSNR {
		q.BestSNR = snr
	}
	if q.PacketCount == 0 || snr < q.WorstSNR {
		q.WorstSNR = snr
	}
	q.PacketCount++
	q.SNRSum += snr
	q.LastSNR = snr
	q.LastRSSI = rssi
	q.HopCount = hops
	q.LastSeen = at
}

func (q LinkQuality) AvgSNR() float64 {
	if q.PacketCount == 0 {
		return 0
	}

	return q.SNRSum / float64(q.PacketCount)
}

// QualityPercent maps the average SNR from [-15, 10] dB onto 0..100.
func (q LinkQuality) QualityPercent() int {
	if q.PacketCount == 0 {
		return 0
	}
	avg := q.AvgSNR()
	switch {
	case avg >= 10:
		return 100
	case avg <= -15:
		return 0
	default:
		return int((avg + 15) / 25 * 100)
	}
}

type RouteHop struct {
	NodeID string
	SNR    float64
	At     time.Time
}

// MeshRoute is the latest known path to a destination. A newer traceroute replaces it.
type MeshRoute struct {
	DestinationID string
	Hops          []RouteHop
	DiscoveredAt  time.Time
	LastUsedAt    time.Time
}

func (r MeshRoute) HopCount() int {
	return len(r.Hops)
}

func (r MeshRoute) AvgSNR() float64 {
	if len(r.Hops) == 0 {
		return 0
	}
	var sum float64
	for _, h := range r.Hops {
		sum += h.SNR
	}

	return sum / float64(len(r.Hops))
}

type Channel struct {
	Index           int
	Name            string
	Role            ChannelRole
	Encrypted       bool
	UplinkEnabled   bool
	DownlinkEnabled bool
	MessageCount    int
	LastActivity    time.Time
}

func (c Channel) DisplayName() string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	if c.Index == 0 {
		return "Primary"
	}

	return "Channel " + itoa(c.Index)
}

// Alert is immutable once recorded except for Acknowledged.
type Alert struct {
	ID           string
	Type         AlertType
	Title        string
	Message      string
	Severity     int
	SourceNode   string
	At           time.Time
	Acknowledged bool
	Metadata     map[string]string
}

func (a Alert) SeverityLabel() string {
	switch a.Severity {
	case 1:
		return "Low"
	case 2:
		return "Medium"
	case 3:
		return "High"
	case 4:
		return "Critical"
	default:
		return "Unknown"
	}
}

type Message struct {
	ID          string
	SenderID    string
	SenderName  string
	RecipientID string
	Channel     int
	Text        string
	Type        MessageType
	Port        string
	Direction   MessageDirection
	At          time.Time
	HopCount    *int
	SNR         *float64
	RSSI        *int
	Encrypted   bool
	// RelayHint is the partial id of the last relaying node when only its low byte is known.
	RelayHint string
}

func (m Message) IsBroadcast() bool {
	return m.RecipientID == "" || m.RecipientID == BroadcastNodeID || m.RecipientID == "^all"
}

// MessageFilter narrows Messages. Zero values match everything.
type MessageFilter struct {
	Channel *int
	NodeID  string
	// Conversation is a "channel:N" or "dm:<node id>" key.
	Conversation string
	Limit        int
}

func (f MessageFilter) match(m Message) bool {
	if f.Channel != nil && m.Channel != *f.Channel {
		return false
	}
	if f.NodeID != "" && m.SenderID != f.NodeID && m.RecipientID != f.NodeID {
		return false
	}
	if f.Conversation != "" && !matchConversation(f.Conversation, m) {
		return false
	}

	return true
}
