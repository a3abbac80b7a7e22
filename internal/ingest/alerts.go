package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skobkin/meshwatch/internal/config"
	"github.com/skobkin/meshwatch/internal/domain"
)

// AlertDetector turns observations into alerts. Apart from emergencies, each (type, node) pair
// fires at most once per cooldown.
type AlertDetector struct {
	keywords         []string
	batteryThreshold uint32
	lowSNR           float64
	newNodes         bool
	cooldown         time.Duration

	mu    sync.Mutex
	last  map[string]time.Time
	now   func() time.Time
	newID func() string
}

func NewAlertDetector(cfg config.AlertsConfig) *AlertDetector {
	keywords := make([]string, 0, len(cfg.EmergencyKeywords))
	for _, k := range cfg.EmergencyKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	threshold := uint32(0)
	if cfg.BatteryThreshold > 0 {
		threshold = uint32(cfg.BatteryThreshold)
	}

	return &AlertDetector{
		keywords:         keywords,
		batteryThreshold: threshold,
		lowSNR:           cfg.LowSNRThreshold,
		newNodes:         cfg.NewNodeAlerts,
		cooldown:         cfg.Cooldown.Std(),
		last:             make(map[string]time.Time),
		now:              time.Now,
		newID:            uuid.NewString,
	}
}

// CheckMessage looks for the first emergency keyword in an incoming text message.
func (d *AlertDetector) CheckMessage(msg domain.Message) []domain.Alert {
	if msg.Type != domain.MessageTypeText || msg.Direction == domain.MessageDirectionOut {
		return nil
	}
	text := strings.ToLower(msg.Text)
	for _, keyword := range d.keywords {
		if !strings.Contains(text, keyword) {
			continue
		}
		sender := msg.SenderName
		if sender == "" {
			sender = msg.SenderID
		}

		return []domain.Alert{d.build(domain.AlertTypeEmergency, 4, msg.SenderID,
			"Emergency keyword",
			fmt.Sprintf("%s: %s", sender, msg.Text),
			map[string]string{"keyword": keyword, "channel": strconv.Itoa(msg.Channel)})}
	}

	return nil
}

// CheckNode inspects a freshly merged node for discovery, battery, congestion and signal alerts.
func (d *AlertDetector) CheckNode(node domain.Node, isNew bool) []domain.Alert {
	var out []domain.Alert
	name := domain.NodeDisplayName(node)

	if isNew && d.newNodes {
		if a, ok := d.fire(domain.AlertTypeNewNode, 1, node.NodeID, "New node",
			fmt.Sprintf("%s joined the mesh", name), nil); ok {
			out = append(out, a)
		}
	}

	if lvl := node.BatteryLevel; lvl != nil && *lvl > 0 && *lvl < d.batteryThreshold {
		if a, ok := d.fire(domain.AlertTypeBattery, 2, node.NodeID, "Low battery",
			fmt.Sprintf("%s at %d%%", name, *lvl),
			map[string]string{"battery_level": strconv.FormatUint(uint64(*lvl), 10)}); ok {
			out = append(out, a)
		}
	}

	if util := node.ChannelUtilization; util != nil && domain.CongestionStatus(*util) != domain.UtilizationNormal {
		severity := 2
		if domain.CongestionStatus(*util) == domain.UtilizationCritical {
			severity = 3
		}
		if a, ok := d.fire(domain.AlertTypeCongestion, severity, node.NodeID, "Channel congestion",
			fmt.Sprintf("%s reports %.1f%% channel utilization", name, *util),
			map[string]string{"channel_utilization": strconv.FormatFloat(*util, 'f', 1, 64)}); ok {
			out = append(out, a)
		}
	}

	if snr := node.SNR; snr != nil && *snr < d.lowSNR {
		if a, ok := d.fire(domain.AlertTypeSNR, 2, node.NodeID, "Weak signal",
			fmt.Sprintf("%s heard at %.1f dB SNR", name, *snr),
			map[string]string{"snr": strconv.FormatFloat(*snr, 'f', 1, 64)}); ok {
			out = append(out, a)
		}
	}

	return out
}

// CheckOffline reports nodes that stopped being heard.
func (d *AlertDetector) CheckOffline(nodes []domain.Node) []domain.Alert {
	var out []domain.Alert
	for _, node := range nodes {
		if a, ok := d.fire(domain.AlertTypeDisconnect, 1, node.NodeID, "Node offline",
			fmt.Sprintf("%s has not been heard since %s", domain.NodeDisplayName(node),
				node.LastHeardAt.Format(time.RFC3339)), nil); ok {
			out = append(out, a)
		}
	}

	return out
}

func (d *AlertDetector) fire(kind domain.AlertType, severity int, nodeID, title, message string, meta map[string]string) (domain.Alert, bool) {
	key := string(kind) + "|" + nodeID

	d.mu.Lock()
	now := d.now()
	if at, ok := d.last[key]; ok && now.Sub(at) < d.cooldown {
		d.mu.Unlock()
		return domain.Alert{}, false
	}
	d.last[key] = now
	d.mu.Unlock()

	return d.build(kind, severity, nodeID, title, message, meta), true
}

func (d *AlertDetector) build(kind domain.AlertType, severity int, nodeID, title, message string, meta map[string]string) domain.Alert {
	return domain.Alert{
		ID:         d.newID(),
		Type:       kind,
		Title:      title,
		Message:    message,
		Severity:   severity,
		SourceNode: nodeID,
		At:         d.now(),
		Metadata:   meta,
	}
}

// ForgetBefore drops cooldown entries older than cutoff.
func (d *AlertDetector) ForgetBefore(cutoff time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, at := range d.last {
		if at.Before(cutoff) {
			delete(d.last, key)
		}
	}
}
