package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ConversationKey groups a message into a channel thread or a direct thread with the peer node.
func ConversationKey(msg Message, localNodeID string) string {
	if msg.IsBroadcast() {
		return ChannelConversationKey(msg.Channel)
	}
	peer := msg.SenderID
	if localNodeID != "" && strings.EqualFold(msg.SenderID, localNodeID) {
		peer = msg.RecipientID
	}

	return DMConversationKey(peer)
}

func ChannelConversationKey(index int) string {
	return fmt.Sprintf("channel:%d", index)
}

func DMConversationKey(nodeID string) string {
	return "dm:" + strings.ToLower(strings.TrimSpace(nodeID))
}

func IsDMKey(key string) bool {
	return strings.HasPrefix(strings.TrimSpace(key), "dm:")
}

func NodeIDFromDMKey(key string) string {
	key = strings.TrimSpace(key)
	if !IsDMKey(key) {
		return ""
	}

	return strings.TrimPrefix(key, "dm:")
}

// ChannelFromKey returns the slot index of a "channel:N" key.
func ChannelFromKey(key string) (int, bool) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(key), "channel:")
	if !ok {
		return 0, false
	}
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 || index >= ChannelSlots {
		return 0, false
	}

	return index, true
}

func matchConversation(key string, m Message) bool {
	if IsDMKey(key) {
		peer := NodeIDFromDMKey(key)
		return !m.IsBroadcast() && (strings.EqualFold(m.SenderID, peer) || strings.EqualFold(m.RecipientID, peer))
	}
	index, ok := ChannelFromKey(key)

	return ok && m.IsBroadcast() && m.Channel == index
}
