package api

import (
	"time"

	"github.com/skobkin/meshwatch/internal/domain"
)

type nodeView struct {
	ID                 string     `json:"id"`
	Num                uint32     `json:"num"`
	Name               string     `json:"name"`
	LongName           string     `json:"long_name,omitempty"`
	ShortName          string     `json:"short_name,omitempty"`
	Hardware           string     `json:"hardware,omitempty"`
	Role               string     `json:"role,omitempty"`
	Online             bool       `json:"online"`
	Latitude           *float64   `json:"latitude,omitempty"`
	Longitude          *float64   `json:"longitude,omitempty"`
	Altitude           *int32     `json:"altitude,omitempty"`
	BatteryLevel       *uint32    `json:"battery_level,omitempty"`
	Voltage            *float64   `json:"voltage,omitempty"`
	ChannelUtilization *float64   `json:"channel_utilization,omitempty"`
	Congestion         string     `json:"congestion_status,omitempty"`
	AirUtilTx          *float64   `json:"air_util_tx,omitempty"`
	AirUtilTxStatus    string     `json:"air_util_tx_status,omitempty"`
	Uptime             *uint32    `json:"uptime_seconds,omitempty"`
	Temperature        *float64   `json:"temperature,omitempty"`
	Humidity           *float64   `json:"humidity,omitempty"`
	Pressure           *float64   `json:"pressure,omitempty"`
	SNR                *float64   `json:"snr,omitempty"`
	RSSI               *int       `json:"rssi,omitempty"`
	HopCount           *int       `json:"hop_count,omitempty"`
	LinkQuality        *linkView  `json:"link_quality,omitempty"`
	Neighbors          []string   `json:"neighbors"`
	HeardBy            []string   `json:"heard_by"`
	LastHeard          *time.Time `json:"last_heard,omitempty"`
	FirstSeen          *time.Time `json:"first_seen,omitempty"`
}

type linkView struct {
	Packets  int     `json:"packets"`
	AvgSNR   float64 `json:"avg_snr"`
	BestSNR  float64 `json:"best_snr"`
	WorstSNR float64 `json:"worst_snr"`
	LastRSSI int     `json:"last_rssi"`
	Quality  int     `json:"quality_percent"`
}

type messageView struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	FromName  string    `json:"from_name,omitempty"`
	To        string    `json:"to"`
	Channel   int       `json:"channel"`
	Text      string    `json:"text"`
	Type      string    `json:"type"`
	Direction string    `json:"direction"`
	Encrypted bool      `json:"encrypted"`
	HopCount  *int      `json:"hop_count,omitempty"`
	SNR       *float64  `json:"snr,omitempty"`
	RSSI      *int      `json:"rssi,omitempty"`
	RelayHint string    `json:"relay_hint,omitempty"`
	At        time.Time `json:"at"`
}

type alertView struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Title        string            `json:"title"`
	Message      string            `json:"message"`
	Severity     int               `json:"severity"`
	SeverityText string            `json:"severity_label"`
	SourceNode   string            `json:"source_node,omitempty"`
	Acknowledged bool              `json:"acknowledged"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	At           time.Time         `json:"at"`
}

type routeHopView struct {
	NodeID string  `json:"node_id"`
	SNR    float64 `json:"snr"`
}

type routeView struct {
	Destination  string         `json:"destination"`
	Hops         []routeHopView `json:"hops"`
	HopCount     int            `json:"hop_count"`
	AvgSNR       float64        `json:"avg_snr"`
	DiscoveredAt time.Time      `json:"discovered_at"`
	LastUsedAt   time.Time      `json:"last_used_at"`
}

type channelView struct {
	Index        int        `json:"index"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	Encrypted    bool       `json:"encrypted"`
	Uplink       bool       `json:"uplink"`
	Downlink     bool       `json:"downlink"`
	MessageCount int        `json:"message_count"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}

func newNodeView(n domain.Node) nodeView {
	v := nodeView{
		ID:                 n.NodeID,
		Num:                n.NodeNum,
		Name:               domain.NodeDisplayName(n),
		LongName:           n.LongName,
		ShortName:          n.ShortName,
		Hardware:           n.BoardModel,
		Role:               n.Role,
		Online:             n.Online,
		Altitude:           n.Altitude,
		BatteryLevel:       n.BatteryLevel,
		Voltage:            n.Voltage,
		ChannelUtilization: n.ChannelUtilization,
		AirUtilTx:          n.AirUtilTx,
		Uptime:             n.UptimeSeconds,
		Temperature:        n.Temperature,
		Humidity:           n.Humidity,
		Pressure:           n.Pressure,
		SNR:                n.SNR,
		RSSI:               n.RSSI,
		HopCount:           n.HopCount,
		Neighbors:          append([]string{}, n.Neighbors...),
		HeardBy:            append([]string{}, n.HeardBy...),
		LastHeard:          timePtr(n.LastHeardAt),
		FirstSeen:          timePtr(n.FirstSeenAt),
	}
	if n.ChannelUtilization != nil {
		v.Congestion = domain.CongestionStatus(*n.ChannelUtilization)
	}
	if n.AirUtilTx != nil {
		v.AirUtilTxStatus = domain.AirUtilTxStatus(*n.AirUtilTx)
	}
	if n.HasPosition() {
		v.Latitude = n.Latitude
		v.Longitude = n.Longitude
	}
	if q := n.LinkQuality; q.PacketCount > 0 {
		v.LinkQuality = &linkView{
			Packets:  q.PacketCount,
			AvgSNR:   q.AvgSNR(),
			BestSNR:  q.BestSNR,
			WorstSNR: q.WorstSNR,
			LastRSSI: q.LastRSSI,
			Quality:  q.QualityPercent(),
		}
	}

	return v
}

func newMessageView(m domain.Message) messageView {
	direction := "in"
	if m.Direction == domain.MessageDirectionOut {
		direction = "out"
	}

	return messageView{
		ID:        m.ID,
		From:      m.SenderID,
		FromName:  m.SenderName,
		To:        m.RecipientID,
		Channel:   m.Channel,
		Text:      m.Text,
		Type:      string(m.Type),
		Direction: direction,
		Encrypted: m.Encrypted,
		HopCount:  m.HopCount,
		SNR:       m.SNR,
		RSSI:      m.RSSI,
		RelayHint: m.RelayHint,
		At:        m.At,
	}
}

func newAlertView(a domain.Alert) alertView {
	return alertView{
		ID:           a.ID,
		Type:         string(a.Type),
		Title:        a.Title,
		Message:      a.Message,
		Severity:     a.Severity,
		SeverityText: a.SeverityLabel(),
		SourceNode:   a.SourceNode,
		Acknowledged: a.Acknowledged,
		Metadata:     a.Metadata,
		At:           a.At,
	}
}

func newRouteView(r domain.MeshRoute) routeView {
	hops := make([]routeHopView, 0, len(r.Hops))
	for _, h := range r.Hops {
		hops = append(hops, routeHopView{NodeID: h.NodeID, SNR: h.SNR})
	}

	return routeView{
		Destination:  r.DestinationID,
		Hops:         hops,
		HopCount:     r.HopCount(),
		AvgSNR:       r.AvgSNR(),
		DiscoveredAt: r.DiscoveredAt,
		LastUsedAt:   r.LastUsedAt,
	}
}

func newChannelView(c domain.Channel) channelView {
	return channelView{
		Index:        c.Index,
		Name:         c.DisplayName(),
		Role:         string(c.Role),
		Encrypted:    c.Encrypted,
		Uplink:       c.UplinkEnabled,
		Downlink:     c.DownlinkEnabled,
		MessageCount: c.MessageCount,
		LastActivity: timePtr(c.LastActivity),
	}
}
