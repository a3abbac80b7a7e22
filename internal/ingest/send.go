package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skobkin/meshwatch/internal/connectors"
	"github.com/skobkin/meshwatch/internal/domain"
	"github.com/skobkin/meshwatch/internal/radio"
	"github.com/skobkin/meshwatch/internal/transport"
)

// MaxTextBytes is the largest text payload a single mesh packet carries.
const MaxTextBytes = 228

var (
	ErrEmptyMessage   = errors.New("message body is empty")
	ErrMessageTooLong = errors.New("message body is too long")
	ErrMissingNodeID  = errors.New("node id is not configured")
	ErrInvalidChannel = errors.New("channel index out of range")
	ErrInvalidTarget  = errors.New("invalid destination")
)

type outboundText struct {
	From    uint32          `json:"from"`
	To      uint32          `json:"to"`
	Channel int             `json:"channel"`
	Type    string          `json:"type"`
	Payload outboundPayload `json:"payload"`
}

type outboundPayload struct {
	Text string `json:"text"`
}

// SendText publishes text as a JSON message to destination ("" or "^all" for broadcast) on the
// given channel index and records it as outgoing.
func (p *Pipeline) SendText(ctx context.Context, text, destination string, channel int) (domain.Message, error) {
	if len(text) == 0 {
		return domain.Message{}, ErrEmptyMessage
	}
	if len(text) > MaxTextBytes {
		return domain.Message{}, fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLong, len(text), MaxTextBytes)
	}
	if channel < 0 || channel >= domain.ChannelSlots {
		return domain.Message{}, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}

	nodeID := domain.NormalizeNodeID(p.cfg.MQTT.NodeID)
	if nodeID == "" {
		return domain.Message{}, ErrMissingNodeID
	}
	from, err := domain.ParseNodeID(nodeID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %w", ErrMissingNodeID, err)
	}

	to := domain.BroadcastNodeNum
	recipient := domain.BroadcastNodeID
	if dest := strings.TrimSpace(destination); dest != "" && dest != "^all" {
		num, err := domain.ParseNodeID(dest)
		if err != nil {
			return domain.Message{}, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
		}
		to, recipient = num, domain.NodeIDFromNum(num)
	}
	if p.State() != connectors.ConnectionStateConnected {
		return domain.Message{}, transport.ErrNotConnected
	}

	body, err := json.Marshal(outboundText{
		From:    from,
		To:      to,
		Channel: channel,
		Type:    "text",
		Payload: outboundPayload{Text: text},
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("encode outgoing message: %w", err)
	}

	topic := JSONPublishTopic(p.cfg.MQTT.TopicRoot, p.cfg.MQTT.Channel, nodeID)
	// The broker echoes our own publish back through the JSON subscription.
	p.dedup.Seen(ContentKey(topic, body))

	sendCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()
	if err := p.session.Publish(sendCtx, topic, body); err != nil {
		return domain.Message{}, fmt.Errorf("send outgoing message: %w", err)
	}
	p.stats.sent.Add(1)

	msg := domain.Message{
		ID:          uuid.NewString(),
		SenderID:    nodeID,
		SenderName:  domain.NodeDisplayNameByID(p.store, nodeID),
		RecipientID: recipient,
		Channel:     channel,
		Text:        text,
		Type:        domain.MessageTypeText,
		Port:        radio.PortTextMessage.String(),
		Direction:   domain.MessageDirectionOut,
		At:          p.now(),
	}
	p.store.RecordMessage(msg)
	p.bus.Publish(connectors.TopicMessage, msg)
	p.events.message(msg)
	p.logger.Info("message sent", "topic", topic, "to", recipient, "channel", channel, "bytes", len(text))

	return msg, nil
}
