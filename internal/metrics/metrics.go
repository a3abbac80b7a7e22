package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/skobkin/meshwatch/internal/connectors"
	"github.com/skobkin/meshwatch/internal/domain"
	"github.com/skobkin/meshwatch/internal/ingest"
)

const namespace = "meshwatch"

// StatsSource exposes ingest counters.
type StatsSource interface {
	Stats() ingest.StatsSnapshot
	State() connectors.ConnectionState
}

// NetworkSource exposes the aggregated network state.
type NetworkSource interface {
	Health() domain.Health
	Alerts(unreadOnly bool) []domain.Alert
}

var connectionStates = []connectors.ConnectionState{
	connectors.ConnectionStateDisconnected,
	connectors.ConnectionStateConnecting,
	connectors.ConnectionStateConnected,
	connectors.ConnectionStateReconnecting,
	connectors.ConnectionStateFailed,
}

// Collector reads its values at scrape time, so nothing has to be pushed from the ingest path.
type Collector struct {
	stats   StatsSource
	network NetworkSource

	messages     *prometheus.Desc
	errors       *prometheus.Desc
	reconnects   *prometheus.Desc
	sent         *prometheus.Desc
	lastMessage  *prometheus.Desc
	dedupEntries *prometheus.Desc
	connState    *prometheus.Desc
	nodes        *prometheus.Desc
	onlineNodes  *prometheus.Desc
	healthScore  *prometheus.Desc
	avgSNR       *prometheus.Desc
	avgUtil      *prometheus.Desc
	unreadAlerts *prometheus.Desc
}

func NewCollector(stats StatsSource, network NetworkSource) *Collector {
	return &Collector{
		stats:   stats,
		network: network,
		messages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ingest", "messages_total"),
			"MQTT messages by ingest outcome",
			[]string{"outcome"}, nil,
		),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ingest", "errors_total"),
			"Ingest errors by kind",
			[]string{"kind"}, nil,
		),
		reconnects: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "mqtt", "reconnect_attempts_total"),
			"Broker reconnect attempts",
			nil, nil,
		),
		sent: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "mqtt", "sent_messages_total"),
			"Text messages published to the broker",
			nil, nil,
		),
		lastMessage: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ingest", "last_message_timestamp_seconds"),
			"Unix time of the last received MQTT message",
			nil, nil,
		),
		dedupEntries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ingest", "dedup_entries"),
			"Packet keys held by the duplicate filter",
			nil, nil,
		),
		connState: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "mqtt", "connection_state"),
			"1 for the current broker session state",
			[]string{"state"}, nil,
		),
		nodes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "network", "nodes"),
			"Known mesh nodes",
			nil, nil,
		),
		onlineNodes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "network", "online_nodes"),
			"Mesh nodes heard within the online threshold",
			nil, nil,
		),
		healthScore: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "network", "health_score"),
			"Network health score from 0 to 100",
			nil, nil,
		),
		avgSNR: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "network", "avg_snr_db"),
			"Average link SNR across nodes",
			nil, nil,
		),
		avgUtil: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "network", "avg_channel_utilization_percent"),
			"Average reported channel utilization",
			nil, nil,
		),
		unreadAlerts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "alerts", "unread"),
			"Unacknowledged alerts by type",
			[]string{"type"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.messages
	ch <- c.errors
	ch <- c.reconnects
	ch <- c.sent
	ch <- c.lastMessage
	ch <- c.dedupEntries
	ch <- c.connState
	ch <- c.nodes
	ch <- c.onlineNodes
	ch <- c.healthScore
	ch <- c.avgSNR
	ch <- c.avgUtil
	ch <- c.unreadAlerts
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.stats != nil {
		s := c.stats.Stats()
		counter := func(desc *prometheus.Desc, v int64, labels ...string) {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
		}
		counter(c.messages, s.Received, "received")
		counter(c.messages, s.Processed, "processed")
		counter(c.messages, s.Rejected, "rejected")
		counter(c.messages, s.Duplicates, "duplicate")
		counter(c.messages, s.Encrypted, "encrypted")
		counter(c.messages, s.JSONMessages, "json")
		counter(c.messages, s.StatusMessages, "status")
		counter(c.messages, s.RawMessages, "raw")
		counter(c.errors, s.DecodeErrors, "decode")
		counter(c.errors, s.JSONErrors, "json")
		counter(c.errors, s.InvalidFields, "invalid_field")
		counter(c.reconnects, s.ReconnectAttempts)
		counter(c.sent, s.Sent)

		var last float64
		if !s.LastMessageAt.IsZero() {
			last = float64(s.LastMessageAt.UnixMilli()) / 1000
		}
		ch <- prometheus.MustNewConstMetric(c.lastMessage, prometheus.GaugeValue, last)
		ch <- prometheus.MustNewConstMetric(c.dedupEntries, prometheus.GaugeValue, float64(s.DedupEntries))

		current := c.stats.State()
		for _, state := range connectionStates {
			var v float64
			if state == current {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(c.connState, prometheus.GaugeValue, v, string(state))
		}
	}

	if c.network == nil {
		return
	}
	h := c.network.Health()
	ch <- prometheus.MustNewConstMetric(c.nodes, prometheus.GaugeValue, float64(h.TotalNodes))
	ch <- prometheus.MustNewConstMetric(c.onlineNodes, prometheus.GaugeValue, float64(h.OnlineNodes))
	ch <- prometheus.MustNewConstMetric(c.healthScore, prometheus.GaugeValue, float64(h.Score))
	ch <- prometheus.MustNewConstMetric(c.avgSNR, prometheus.GaugeValue, h.AvgSNR)
	ch <- prometheus.MustNewConstMetric(c.avgUtil, prometheus.GaugeValue, h.AvgChannelUtilization)

	unread := map[domain.AlertType]int{}
	for _, a := range c.network.Alerts(true) {
		unread[a.Type]++
	}
	for _, t := range alertTypes {
		ch <- prometheus.MustNewConstMetric(c.unreadAlerts, prometheus.GaugeValue, float64(unread[t]), string(t))
	}
}

var alertTypes = []domain.AlertType{
	domain.AlertTypeEmergency,
	domain.AlertTypeBattery,
	domain.AlertTypeNewNode,
	domain.AlertTypeCongestion,
	domain.AlertTypeSNR,
	domain.AlertTypeDisconnect,
	domain.AlertTypeCustom,
}

// NewRegistry returns a registry with the mesh collector plus the Go runtime and process collectors.
func NewRegistry(stats StatsSource, network NetworkSource) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(stats, network),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}
