package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skobkin/meshwatch/internal/domain"
	"github.com/skobkin/meshwatch/internal/meshcrypto"
)

const (
	DefaultBroker         = "mqtt.meshtastic.org"
	DefaultPort           = 1883
	DefaultUsername       = "meshdev"
	DefaultPassword       = "large4cats"
	DefaultTopicRoot      = "msh/US"
	DefaultChannel        = "LongFast"
	DefaultEncryptionKey  = "AQ=="
	DefaultMaxPayloadSize = 65536
	DefaultDedupSize      = 10000

	LogFormatText   = "text"
	LogFormatJSON   = "json"
	LogFormatPretty = "pretty"
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	Format    string `json:"format"`
	LogToFile bool   `json:"log_to_file"`
	File      string `json:"file"`
}

// MQTTConfig describes the broker session and the mesh channel it listens to.
type MQTTConfig struct {
	Broker   string `json:"broker"`
	Port     int    `json:"port"`
	UseTLS   bool   `json:"use_tls"`
	Username string `json:"username"`
	Password string `json:"password"`
	// TopicRoot is the region prefix, e.g. "msh/US".
	TopicRoot string `json:"topic_root"`
	Channel   string `json:"channel"`
	// NodeID is our own "!xxxxxxxx" id. Sending requires it.
	NodeID        string `json:"node_id"`
	ClientID      string `json:"client_id"`
	EncryptionKey string `json:"encryption_key"`
	QoS           int    `json:"qos"`

	ReconnectDelay    Duration `json:"reconnect_delay"`
	MaxReconnectDelay Duration `json:"max_reconnect_delay"`
	// MaxReconnectAttempts of 0 retries forever.
	MaxReconnectAttempts int      `json:"max_reconnect_attempts"`
	ConnectTimeout       Duration `json:"connect_timeout"`
	KeepAlive            Duration `json:"keep_alive"`
}

// IngestConfig tunes packet handling and node lifecycle.
type IngestConfig struct {
	MaxPayloadSize  int      `json:"max_payload_size"`
	DedupWindow     Duration `json:"dedup_window"`
	DedupSize       int      `json:"dedup_size"`
	CleanupInterval Duration `json:"cleanup_interval"`
	OnlineThreshold Duration `json:"online_threshold"`
	StaleThreshold  Duration `json:"stale_threshold"`
}

// AlertsConfig controls the alert detector.
type AlertsConfig struct {
	Enabled              bool     `json:"enabled"`
	EmergencyKeywords    []string `json:"emergency_keywords"`
	BatteryThreshold     int      `json:"battery_threshold"`
	LowSNRThreshold      float64  `json:"low_snr_threshold"`
	NewNodeAlerts        bool     `json:"new_node_alerts"`
	OfflineAlerts        bool     `json:"offline_alerts"`
	Cooldown             Duration `json:"cooldown"`
	DesktopNotifications bool     `json:"desktop_notifications"`
}

// StorageConfig enables the SQLite snapshot of the network state.
type StorageConfig struct {
	Enabled       bool     `json:"enabled"`
	Path          string   `json:"path"`
	PruneInterval Duration `json:"prune_interval"`
}

// HTTPConfig exposes the read API.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
	// RateLimit is requests per second per client. 0 disables limiting.
	RateLimit float64 `json:"rate_limit"`
	Burst     int     `json:"burst"`
	// CORSOrigins enables CORS for the listed origins.
	CORSOrigins []string `json:"cors_origins"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	MQTT    MQTTConfig    `json:"mqtt"`
	Ingest  IngestConfig  `json:"ingest"`
	Alerts  AlertsConfig  `json:"alerts"`
	Storage StorageConfig `json:"storage"`
	HTTP    HTTPConfig    `json:"http"`
	Logging LoggingConfig `json:"logging"`
}

func Default() AppConfig {
	return AppConfig{
		MQTT: MQTTConfig{
			Broker:               DefaultBroker,
			Port:                 DefaultPort,
			UseTLS:               false,
			Username:             DefaultUsername,
			Password:             DefaultPassword,
			TopicRoot:            DefaultTopicRoot,
			Channel:              DefaultChannel,
			EncryptionKey:        DefaultEncryptionKey,
			QoS:                  1,
			ReconnectDelay:       Duration(5 * time.Second),
			MaxReconnectDelay:    Duration(60 * time.Second),
			MaxReconnectAttempts: 10,
			ConnectTimeout:       Duration(10 * time.Second),
			KeepAlive:            Duration(60 * time.Second),
		},
		Ingest: IngestConfig{
			MaxPayloadSize:  DefaultMaxPayloadSize,
			DedupWindow:     Duration(60 * time.Second),
			DedupSize:       DefaultDedupSize,
			CleanupInterval: Duration(5 * time.Minute),
			OnlineThreshold: Duration(15 * time.Minute),
			StaleThreshold:  Duration(72 * time.Hour),
		},
		Alerts: AlertsConfig{
			Enabled:           true,
			EmergencyKeywords: []string{"emergency", "911", "112", "999", "sos", "help", "mayday"},
			BatteryThreshold:  20,
			LowSNRThreshold:   -15,
			NewNodeAlerts:     true,
			Cooldown:          Duration(300 * time.Second),
		},
		Storage: StorageConfig{
			Enabled:       false,
			Path:          "meshwatch.db",
			PruneInterval: Duration(time.Hour),
		},
		HTTP: HTTPConfig{
			Enabled:   false,
			Listen:    "127.0.0.1:8080",
			RateLimit: 10,
			Burst:     20,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    LogFormatText,
			LogToFile: false,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path comes from the command line.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	def := Default()

	if strings.TrimSpace(c.MQTT.Broker) == "" {
		c.MQTT.Broker = def.MQTT.Broker
	}
	if c.MQTT.Port <= 0 {
		c.MQTT.Port = def.MQTT.Port
	}
	c.MQTT.TopicRoot = strings.TrimSuffix(strings.TrimSpace(c.MQTT.TopicRoot), "/")
	if c.MQTT.TopicRoot == "" {
		c.MQTT.TopicRoot = def.MQTT.TopicRoot
	}
	if strings.TrimSpace(c.MQTT.Channel) == "" {
		c.MQTT.Channel = def.MQTT.Channel
	}
	if c.MQTT.ReconnectDelay <= 0 {
		c.MQTT.ReconnectDelay = def.MQTT.ReconnectDelay
	}
	if c.MQTT.MaxReconnectDelay <= 0 {
		c.MQTT.MaxReconnectDelay = def.MQTT.MaxReconnectDelay
	}
	if c.MQTT.MaxReconnectAttempts < 0 {
		c.MQTT.MaxReconnectAttempts = 0
	}
	if c.MQTT.ConnectTimeout <= 0 {
		c.MQTT.ConnectTimeout = def.MQTT.ConnectTimeout
	}
	if c.MQTT.KeepAlive <= 0 {
		c.MQTT.KeepAlive = def.MQTT.KeepAlive
	}

	if c.Ingest.MaxPayloadSize <= 0 {
		c.Ingest.MaxPayloadSize = def.Ingest.MaxPayloadSize
	}
	if c.Ingest.DedupWindow <= 0 {
		c.Ingest.DedupWindow = def.Ingest.DedupWindow
	}
	if c.Ingest.DedupSize <= 0 {
		c.Ingest.DedupSize = def.Ingest.DedupSize
	}
	if c.Ingest.CleanupInterval <= 0 {
		c.Ingest.CleanupInterval = def.Ingest.CleanupInterval
	}
	if c.Ingest.OnlineThreshold <= 0 {
		c.Ingest.OnlineThreshold = def.Ingest.OnlineThreshold
	}
	if c.Ingest.StaleThreshold <= 0 {
		c.Ingest.StaleThreshold = def.Ingest.StaleThreshold
	}

	if c.Alerts.Cooldown <= 0 {
		c.Alerts.Cooldown = def.Alerts.Cooldown
	}
	if c.Storage.PruneInterval <= 0 {
		c.Storage.PruneInterval = def.Storage.PruneInterval
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = def.Storage.Path
	}
	if strings.TrimSpace(c.HTTP.Listen) == "" {
		c.HTTP.Listen = def.HTTP.Listen
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = normalizeLogFormat(c.Logging.Format)
}

func normalizeLogFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case LogFormatJSON:
		return LogFormatJSON
	case LogFormatPretty:
		return LogFormatPretty
	default:
		return LogFormatText
	}
}

func (c AppConfig) Validate() error {
	if strings.TrimSpace(c.MQTT.Broker) == "" {
		return errors.New("mqtt broker is required")
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt port out of range: %d", c.MQTT.Port)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if strings.TrimSpace(c.MQTT.TopicRoot) == "" {
		return errors.New("mqtt topic root is required")
	}
	if strings.ContainsAny(c.MQTT.TopicRoot+c.MQTT.Channel, "#+") {
		return errors.New("mqtt topic root and channel must not contain wildcards")
	}
	if strings.TrimSpace(c.MQTT.Channel) == "" {
		return errors.New("mqtt channel is required")
	}
	if _, err := meshcrypto.NewCipher(c.MQTT.EncryptionKey); err != nil {
		return fmt.Errorf("mqtt encryption key: %w", err)
	}
	if id := strings.TrimSpace(c.MQTT.NodeID); id != "" {
		if _, err := domain.ParseNodeID(id); err != nil {
			return fmt.Errorf("mqtt node id: %w", err)
		}
	}
	if c.MQTT.MaxReconnectDelay < c.MQTT.ReconnectDelay {
		return errors.New("mqtt max reconnect delay must not be below reconnect delay")
	}
	if c.Ingest.MaxPayloadSize <= 0 || c.Ingest.MaxPayloadSize > DefaultMaxPayloadSize {
		return fmt.Errorf("ingest max payload size must be within 1..%d", DefaultMaxPayloadSize)
	}
	if c.Alerts.BatteryThreshold < 0 || c.Alerts.BatteryThreshold > 100 {
		return fmt.Errorf("alerts battery threshold must be within 0..100, got %d", c.Alerts.BatteryThreshold)
	}
	if c.HTTP.RateLimit < 0 {
		return errors.New("http rate limit must not be negative")
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
