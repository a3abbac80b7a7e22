package ingest

import (
	"time"

	"github.com/google/uuid"

	"github.com/skobkin/meshwatch/internal/connectors"
	"github.com/skobkin/meshwatch/internal/domain"
	"github.com/skobkin/meshwatch/internal/radio"
)

// packet is the common shape of binary and JSON traffic once decoded.
type packet struct {
	From      uint32
	To        uint32
	ID        uint64
	Channel   int
	HopStart  uint32
	HopLimit  uint32
	Hops      *int
	SNR       float64
	RSSI      int
	RelayNode uint32
	Encrypted bool
	Port      radio.PortNum
	Body      radio.Body
	DecodeErr string
	At        time.Time
	RxTime    time.Time
	Source    string
}

func packetFromProcessed(res radio.ProcessedPacket, now time.Time) packet {
	env := res.Envelope
	pkt := packet{
		From:      env.From,
		To:        env.To,
		ID:        env.PacketID,
		Channel:   int(env.Channel),
		HopStart:  env.HopStart,
		HopLimit:  env.HopLimit,
		SNR:       float64(env.RxSNR),
		RSSI:      int(env.RxRSSI),
		RelayNode: env.RelayNode,
		Encrypted: res.Encrypted,
		Port:      res.Port,
		Body:      res.Decoded.Body,
		DecodeErr: res.Decoded.Err,
		At:        now,
	}
	if hops, ok := env.Hops(); ok {
		pkt.Hops = &hops
	}
	if env.RxTime > 0 {
		pkt.RxTime = time.Unix(int64(env.RxTime), 0)
	}

	return pkt
}

func (p packet) hopCount() int {
	if p.Hops == nil {
		return 0
	}

	return *p.Hops
}

// dedupKey prefers the protocol packet id and falls back to a content hash.
func (p packet) dedupKey(topic string, payload []byte) string {
	if p.From != 0 && p.ID != 0 {
		return PacketKey(p.From, p.ID)
	}

	return ContentKey(topic, payload)
}

// apply writes one deduplicated packet into the store and fans out the resulting events.
func (pl *Pipeline) apply(pkt packet, topic Topic) {
	if pkt.From == 0 || pkt.From == domain.BroadcastNodeNum {
		return
	}
	senderID := domain.NodeIDFromNum(pkt.From)
	check := fieldCheck{}

	update := domain.Node{NodeID: senderID}
	update.SNR = check.snr(pkt.SNR)
	update.RSSI = check.rssi(pkt.RSSI)
	if pkt.Hops != nil {
		hops := *pkt.Hops
		update.HopCount = &hops
	}

	var positioned, telemetered bool
	switch body := pkt.Body.(type) {
	case radio.PositionBody:
		if pos, ok := check.positionUpdate(senderID, body, pkt.At); ok {
			update.Latitude, update.Longitude, update.PositionAt = pos.Latitude, pos.Longitude, pos.PositionAt
			update.Altitude, update.PositionPrecision = pos.Altitude, pos.PositionPrecision
			positioned = true
		}
	case radio.TelemetryBody:
		if tel, ok := check.telemetryUpdate(senderID, body, pkt.At); ok {
			mergeTelemetry(&update, tel)
			telemetered = true
		}
	case radio.NodeInfoBody:
		update.LongName = body.LongName
		update.ShortName = body.ShortName
		update.BoardModel = body.HardwareModel
		update.Role = body.Role
		licensed := body.IsLicensed
		update.IsLicensed = &licensed
	}
	if check.invalid > 0 {
		pl.stats.invalidFields.Add(int64(check.invalid))
		pl.logger.Debug("dropped out of range fields", "node_id", senderID, "count", check.invalid)
	}

	node, isNew := pl.store.UpsertNode(domain.NodeUpdate{Node: update, LastHeard: pkt.At, FromPacket: true})
	if update.SNR != nil {
		rssi := 0
		if update.RSSI != nil {
			rssi = *update.RSSI
		}
		pl.store.UpdateLinkQuality(senderID, *update.SNR, rssi, pkt.hopCount())
	}
	pl.publishNode(node, isNew)
	if positioned {
		pl.bus.Publish(connectors.TopicPosition, senderID)
		pl.events.position(senderID)
	}
	if telemetered {
		pl.bus.Publish(connectors.TopicTelemetry, senderID)
		pl.events.telemetry(senderID)
	}
	if pl.alerts != nil {
		pl.raise(pl.alerts.CheckNode(node, isNew)...)
	}

	relayHint := pl.applyRelay(pkt, senderID)

	switch body := pkt.Body.(type) {
	case radio.TextBody:
		pl.recordText(pkt, topic, senderID, body.Text, relayHint)
	case radio.NeighborInfoBody:
		pl.applyNeighbors(senderID, body)
	case radio.TracerouteBody:
		pl.applyTraceroute(pkt, senderID, body.RouteDiscovery)
	case radio.RoutingBody:
		if body.ErrorReason != nil && *body.ErrorReason != 0 {
			pl.logger.Debug("routing error reported", "node_id", senderID, "reason", body.ErrorReason.String())
		}
	}
	if idx := pl.channelSlot(pkt, topic); idx >= 0 && pkt.Port != radio.PortTextMessage {
		pl.store.TouchChannel(idx, pkt.At)
	}
}

func mergeTelemetry(dst *domain.Node, src domain.Node) {
	dst.BatteryLevel = src.BatteryLevel
	dst.Voltage = src.Voltage
	dst.ChannelUtilization = src.ChannelUtilization
	dst.AirUtilTx = src.AirUtilTx
	dst.UptimeSeconds = src.UptimeSeconds
	dst.Temperature = src.Temperature
	dst.Humidity = src.Humidity
	dst.Pressure = src.Pressure
	dst.GasResistance = src.GasResistance
	dst.TelemetryAt = src.TelemetryAt
}

// applyRelay links a fully identified relay as having heard the sender. A relay known only by its
// low byte is resolved when exactly one known node matches, otherwise it stays a hint.
func (pl *Pipeline) applyRelay(pkt packet, senderID string) string {
	if pkt.RelayNode == 0 {
		return ""
	}

	relayID := ""
	hint := ""
	if pkt.RelayNode > 0xff {
		relayID = domain.NodeIDFromNum(pkt.RelayNode)
		node, isNew := pl.store.UpsertNode(domain.NodeUpdate{
			Node:       domain.Node{NodeID: relayID},
			LastHeard:  pkt.At,
			FromPacket: true,
		})
		pl.publishNode(node, isNew)
	} else {
		hint = domain.PlaceholderNodeID(pkt.RelayNode)
		if node, ok := pl.store.FindNodeByLastByte(pkt.RelayNode); ok {
			relayID = node.NodeID
		}
	}
	if relayID != "" && relayID != senderID {
		pl.store.UpdateNeighbors(relayID, []string{senderID})
	}

	return hint
}

func (pl *Pipeline) recordText(pkt packet, topic Topic, senderID, text, relayHint string) {
	msg := domain.Message{
		ID:          pl.messageID(pkt),
		SenderID:    senderID,
		SenderName:  domain.NodeDisplayNameByID(pl.store, senderID),
		RecipientID: domain.NodeIDFromNum(pkt.To),
		Channel:     pl.channelSlot(pkt, topic),
		Text:        text,
		Type:        domain.MessageTypeText,
		Port:        pkt.Port.String(),
		Direction:   domain.MessageDirectionIn,
		At:          pkt.At,
		HopCount:    pkt.Hops,
		Encrypted:   pkt.Encrypted,
		RelayHint:   relayHint,
	}
	if msg.Channel < 0 {
		msg.Channel = pkt.Channel
	}
	if pkt.SNR != 0 && domain.IsValidSNR(pkt.SNR) {
		snr := pkt.SNR
		msg.SNR = &snr
	}
	if pkt.RSSI != 0 && domain.IsValidRSSI(pkt.RSSI) {
		rssi := pkt.RSSI
		msg.RSSI = &rssi
	}

	pl.store.RecordMessage(msg)
	pl.bus.Publish(connectors.TopicMessage, msg)
	pl.events.message(msg)
	if pl.alerts != nil {
		pl.raise(pl.alerts.CheckMessage(msg)...)
	}
}

func (pl *Pipeline) messageID(pkt packet) string {
	if pkt.From != 0 && pkt.ID != 0 {
		return PacketKey(pkt.From, pkt.ID)
	}

	return uuid.NewString()
}

func (pl *Pipeline) applyNeighbors(senderID string, body radio.NeighborInfoBody) {
	reporterID := senderID
	if body.NodeID != 0 {
		reporterID = domain.NodeIDFromNum(body.NodeID)
	}
	heard := make([]string, 0, len(body.Neighbors))
	for _, n := range body.Neighbors {
		if n.NodeID == 0 {
			continue
		}
		heard = append(heard, domain.NodeIDFromNum(n.NodeID))
	}
	pl.store.UpdateNeighbors(reporterID, heard)
}

// applyTraceroute stores the forward path of a traceroute reply as the route to its sender and
// links every consecutive pair of hops.
func (pl *Pipeline) applyTraceroute(pkt packet, senderID string, rd radio.RouteDiscovery) {
	if len(rd.Route) == 0 && len(rd.SNRTowards) == 0 {
		return
	}

	hops := make([]domain.RouteHop, 0, len(rd.Route)+1)
	for i, num := range rd.Route {
		hops = append(hops, domain.RouteHop{NodeID: domain.NodeIDFromNum(num), SNR: routeSNR(rd.SNRTowards, i), At: pkt.At})
	}
	hops = append(hops, domain.RouteHop{NodeID: senderID, SNR: routeSNR(rd.SNRTowards, len(rd.Route)), At: pkt.At})

	route := domain.MeshRoute{DestinationID: senderID, Hops: hops, DiscoveredAt: pkt.At, LastUsedAt: pkt.At}
	pl.store.UpdateRoute(senderID, route)
	pl.bus.Publish(connectors.TopicRoute, route)

	prev := ""
	if pkt.To != 0 && pkt.To != domain.BroadcastNodeNum {
		prev = domain.NodeIDFromNum(pkt.To)
	}
	for _, hop := range hops {
		if prev != "" {
			pl.store.UpdateNeighbors(hop.NodeID, []string{prev})
		}
		prev = hop.NodeID
	}
}

// routeSNR converts the protocol's quarter-dB SNR values. Missing entries read as 0.
func routeSNR(values []int32, i int) float64 {
	if i >= len(values) || values[i] == -128 {
		return 0
	}

	return float64(values[i]) / 4
}

// channelSlot maps a packet onto one of the store's channel slots, or -1. Encrypted MQTT
// traffic carries a channel hash instead of an index, so the topic's channel name decides.
func (pl *Pipeline) channelSlot(pkt packet, topic Topic) int {
	if pkt.Source == KindJSON && pkt.Channel >= 0 && pkt.Channel < domain.ChannelSlots {
		return pkt.Channel
	}
	if topic.Channel != "" {
		for _, ch := range pl.store.Channels() {
			if ch.Name == topic.Channel {
				return ch.Index
			}
		}
		return -1
	}
	if pkt.Channel >= 0 && pkt.Channel < domain.ChannelSlots {
		return pkt.Channel
	}

	return -1
}

func (pl *Pipeline) publishNode(node domain.Node, isNew bool) {
	pl.bus.Publish(connectors.TopicNodeUpdate, domain.NodeEvent{Node: node, IsNew: isNew})
	pl.events.nodeUpdate(node.NodeID, isNew)
}

func (pl *Pipeline) raise(alerts ...domain.Alert) {
	for _, alert := range alerts {
		pl.store.RecordAlert(alert)
		pl.bus.Publish(connectors.TopicAlert, alert)
		pl.events.alert(alert)
		pl.logger.Info("alert raised", "type", alert.Type, "severity", alert.Severity, "node_id", alert.SourceNode)
	}
}
