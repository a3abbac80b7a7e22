package domain

import "strings"

// NodeDisplayName prefers the long name, then the short name, then "!" plus the last four hex
// digits of the id.
func NodeDisplayName(node Node) string {
	if value := strings.TrimSpace(node.LongName); value != "" {
		return value
	}
	if value := strings.TrimSpace(node.ShortName); value != "" {
		return value
	}

	suffix := strings.TrimPrefix(strings.TrimSpace(node.NodeID), "!")
	if suffix == "" {
		suffix = "unknown"
	}
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}

	return "!" + suffix
}

func NodeDisplayNameByID(store *NetworkStore, nodeID string) string {
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return ""
	}
	if store == nil {
		return nodeID
	}
	node, ok := store.GetNode(nodeID)
	if !ok {
		return nodeID
	}

	return NodeDisplayName(node)
}
