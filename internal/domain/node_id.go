package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	BroadcastNodeNum = ^uint32(0)
	BroadcastNodeID  = "!ffffffff"
)

// NodeIDFromNum formats a node number as the canonical "!1234abcd" id.
func NodeIDFromNum(num uint32) string {
	return fmt.Sprintf("!%08x", num)
}

// ParseNodeID accepts "!1234abcd", "0x1234abcd", bare hex of eight digits or a decimal number.
func ParseNodeID(raw string) (uint32, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0, fmt.Errorf("node id is empty")
	}

	base := 10
	switch {
	case strings.HasPrefix(v, "!"):
		v, base = v[1:], 16
	case strings.HasPrefix(v, "0x"), strings.HasPrefix(v, "0X"):
		v, base = v[2:], 16
	case len(v) == 8 && strings.IndexFunc(v, isHexLetter) >= 0:
		base = 16
	}

	num, err := strconv.ParseUint(v, base, 32)
	if err != nil {
		return 0, fmt.Errorf("parse node id %q: %w", raw, err)
	}

	return uint32(num), nil
}

// PlaceholderNodeID renders a relay hint for a node of which only the low byte is known.
func PlaceholderNodeID(lowByte uint32) string {
	return fmt.Sprintf("!??????%02x", lowByte&0xff)
}

// NormalizeNodeID returns the canonical "!1234abcd" form of raw. Anything ParseNodeID rejects,
// placeholders, node 0 and the broadcast address yield "".
func NormalizeNodeID(raw string) string {
	num, err := ParseNodeID(raw)
	if err != nil || num == 0 || num == BroadcastNodeNum {
		return ""
	}

	return NodeIDFromNum(num)
}

func isHexLetter(r rune) bool {
	return (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
