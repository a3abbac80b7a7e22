package ingest

import (
	"strings"
)

// Topic kinds. Anything the parser does not recognize is KindRaw.
const (
	KindEncrypted = "e"
	KindJSON      = "json"
	KindStatus    = "stat"
	KindRaw       = "raw"
)

// Topic is the positional breakdown of a Meshtastic MQTT topic such as
// "msh/US/2/e/LongFast/!1234abcd".
type Topic struct {
	Root    string
	Region  string
	Channel string
	Kind    string
	NodeID  string
}

// ParseTopic splits topic on "/". The first two segments are the root literal and the region.
// The first "e", "json" or "stat" segment after them selects the kind; for "e" and "json" the
// next segment is the channel name. A trailing "!xxxxxxxx" segment is the gateway node id.
func ParseTopic(topic string) Topic {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	out := Topic{Kind: KindRaw}
	if len(parts) > 0 {
		out.Root = parts[0]
	}
	if len(parts) > 1 {
		out.Region = parts[1]
	}
	if last := parts[len(parts)-1]; len(parts) > 2 && strings.HasPrefix(last, "!") {
		out.NodeID = strings.ToLower(last)
	}

	for i := 2; i < len(parts); i++ {
		switch parts[i] {
		case KindEncrypted, KindJSON:
			out.Kind = parts[i]
			if i+1 < len(parts) && !strings.HasPrefix(parts[i+1], "!") {
				out.Channel = parts[i+1]
			} else if i > 2 && parts[i-1] != "2" {
				// "<root>/<channel>/json/<node>" as used for downlink.
				out.Channel = parts[i-1]
			}

			return out
		case KindStatus:
			out.Kind = KindStatus

			return out
		}
	}
	if len(parts) > 2 && !strings.HasPrefix(parts[2], "!") {
		out.Channel = parts[2]
	}

	return out
}

// SubscriptionFilters returns the topic filters covering primary channel traffic, JSON
// convenience topics, encrypted traffic and presence reports under root.
func SubscriptionFilters(root, channel string) []string {
	root = strings.TrimSuffix(root, "/")

	return []string{
		root + "/" + channel + "/#",
		root + "/2/json/#",
		root + "/+/json/#",
		root + "/2/e/#",
		root + "/2/stat/#",
	}
}

// JSONPublishTopic is where outbound JSON text messages go.
func JSONPublishTopic(root, channel, nodeID string) string {
	return strings.TrimSuffix(root, "/") + "/" + channel + "/json/" + nodeID
}
