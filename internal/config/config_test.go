package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppConfigFillMissingDefaults(t *testing.T) {
	cfg := AppConfig{}
	cfg.FillMissingDefaults()

	if cfg.MQTT.Broker != DefaultBroker {
		t.Fatalf("expected default broker %q, got %q", DefaultBroker, cfg.MQTT.Broker)
	}
	if cfg.MQTT.Port != DefaultPort {
		t.Fatalf("expected default port %d, got %d", DefaultPort, cfg.MQTT.Port)
	}
	if cfg.MQTT.ReconnectDelay.Std() != 5*time.Second || cfg.MQTT.MaxReconnectDelay.Std() != 60*time.Second {
		t.Fatalf("unexpected reconnect delays: %v/%v", cfg.MQTT.ReconnectDelay.Std(), cfg.MQTT.MaxReconnectDelay.Std())
	}
	if cfg.Ingest.MaxPayloadSize != DefaultMaxPayloadSize {
		t.Fatalf("expected default payload limit %d, got %d", DefaultMaxPayloadSize, cfg.Ingest.MaxPayloadSize)
	}
	if cfg.Ingest.StaleThreshold.Std() != 72*time.Hour {
		t.Fatalf("expected 72h stale threshold, got %v", cfg.Ingest.StaleThreshold.Std())
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != LogFormatText {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
	if cfg.MQTT.Username != "meshdev" || cfg.MQTT.Password != "large4cats" {
		t.Fatalf("expected public broker credentials, got %q/%q", cfg.MQTT.Username, cfg.MQTT.Password)
	}
	if cfg.MQTT.EncryptionKey != "AQ==" {
		t.Fatalf("expected default channel key, got %q", cfg.MQTT.EncryptionKey)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  "mqtt": {
    "broker": "broker.local",
    "topic_root": "msh/EU_868/",
    "reconnect_delay": "2s",
    "max_reconnect_delay": 30
  },
  "logging": {
    "format": "PRETTY"
  }
}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MQTT.Broker != "broker.local" {
		t.Fatalf("expected broker override, got %q", cfg.MQTT.Broker)
	}
	if cfg.MQTT.TopicRoot != "msh/EU_868" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.MQTT.TopicRoot)
	}
	if cfg.MQTT.Channel != DefaultChannel || cfg.MQTT.Port != DefaultPort {
		t.Fatalf("expected default channel and port, got %q/%d", cfg.MQTT.Channel, cfg.MQTT.Port)
	}
	if cfg.MQTT.ReconnectDelay.Std() != 2*time.Second {
		t.Fatalf("expected 2s reconnect delay, got %v", cfg.MQTT.ReconnectDelay.Std())
	}
	if cfg.MQTT.MaxReconnectDelay.Std() != 30*time.Second {
		t.Fatalf("expected numeric seconds to parse, got %v", cfg.MQTT.MaxReconnectDelay.Std())
	}
	if cfg.Logging.Format != LogFormatPretty {
		t.Fatalf("expected pretty format, got %q", cfg.Logging.Format)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MQTT.Broker != DefaultBroker {
		t.Fatalf("expected defaults, got broker %q", cfg.MQTT.Broker)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"ingest":{"dedup_window":"soon"}}`), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected bad duration to fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{name: "port", mutate: func(c *AppConfig) { c.MQTT.Port = 70000 }, wantErr: "port"},
		{name: "qos", mutate: func(c *AppConfig) { c.MQTT.QoS = 3 }, wantErr: "qos"},
		{name: "wildcard", mutate: func(c *AppConfig) { c.MQTT.Channel = "#" }, wantErr: "wildcards"},
		{name: "key", mutate: func(c *AppConfig) { c.MQTT.EncryptionKey = "***" }, wantErr: "encryption key"},
		{name: "node id", mutate: func(c *AppConfig) { c.MQTT.NodeID = "!xyz" }, wantErr: "node id"},
		{name: "payload", mutate: func(c *AppConfig) { c.Ingest.MaxPayloadSize = 70000 }, wantErr: "payload"},
		{name: "battery", mutate: func(c *AppConfig) { c.Alerts.BatteryThreshold = 120 }, wantErr: "battery"},
		{name: "delays", mutate: func(c *AppConfig) { c.MQTT.MaxReconnectDelay = Duration(time.Second) }, wantErr: "reconnect delay"},
	}

	for _, tt := range tests {
		cfg := Default()
		tt.mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Fatalf("%s: expected error containing %q, got %v", tt.name, tt.wantErr, err)
		}
	}

	cfg := Default()
	cfg.MQTT.EncryptionKey = "none"
	cfg.MQTT.NodeID = "!1234abcd"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected disabled key and valid node id to pass, got %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"MESHWATCH_BROKER":   "mqtt.example.org",
		"MESHWATCH_PORT":     "8883",
		"MESHWATCH_TLS":      "true",
		"MESHWATCH_USERNAME": "user",
		"MESHWATCH_PASSWORD": "secret",
		"MESHWATCH_KEY":      "none",
		"MESHWATCH_NODE_ID":  "!0000beef",
	}
	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}

	cfg := Default()
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.MQTT.Broker != "mqtt.example.org" || cfg.MQTT.Port != 8883 || !cfg.MQTT.UseTLS {
		t.Fatalf("unexpected broker settings: %+v", cfg.MQTT)
	}
	if cfg.MQTT.Username != "user" || cfg.MQTT.Password != "secret" {
		t.Fatalf("unexpected credentials: %q/%q", cfg.MQTT.Username, cfg.MQTT.Password)
	}
	if cfg.MQTT.EncryptionKey != "none" || cfg.MQTT.NodeID != "!0000beef" {
		t.Fatalf("unexpected key/node id: %q/%q", cfg.MQTT.EncryptionKey, cfg.MQTT.NodeID)
	}
	if cfg.MQTT.Channel != DefaultChannel {
		t.Fatalf("expected untouched channel, got %q", cfg.MQTT.Channel)
	}

	env["MESHWATCH_PORT"] = "abc"
	if err := cfg.applyEnv(lookup); err == nil {
		t.Fatalf("expected bad port to fail")
	}
}

func TestSaveWritesLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.MQTT.Channel = "MediumFast"
	cfg.Ingest.DedupWindow = Duration(90 * time.Second)

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}
	if !strings.Contains(string(raw), `"dedup_window": "1m30s"`) {
		t.Fatalf("expected duration to be written as a string, got %s", raw)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load saved config: %v", err)
	}
	if loaded.MQTT.Channel != "MediumFast" || loaded.Ingest.DedupWindow.Std() != 90*time.Second {
		t.Fatalf("unexpected round trip: %+v", loaded)
	}
}
