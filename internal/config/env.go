package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const EnvPrefix = "MESHWATCH_"

// ApplyEnv overrides connection settings from MESHWATCH_* variables.
func (c *AppConfig) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *AppConfig) applyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("BROKER"); ok && v != "" {
		c.MQTT.Broker = v
	}
	if v, ok := get("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sPORT: %w", EnvPrefix, err)
		}
		c.MQTT.Port = port
	}
	if v, ok := get("TLS"); ok && v != "" {
		useTLS, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %sTLS: %w", EnvPrefix, err)
		}
		c.MQTT.UseTLS = useTLS
	}
	if v, ok := get("USERNAME"); ok {
		c.MQTT.Username = v
	}
	if v, ok := get("PASSWORD"); ok {
		c.MQTT.Password = v
	}
	if v, ok := get("TOPIC_ROOT"); ok && v != "" {
		c.MQTT.TopicRoot = strings.TrimSuffix(v, "/")
	}
	if v, ok := get("CHANNEL"); ok && v != "" {
		c.MQTT.Channel = v
	}
	if v, ok := get("NODE_ID"); ok {
		c.MQTT.NodeID = v
	}
	if v, ok := get("KEY"); ok {
		c.MQTT.EncryptionKey = v
	}
	if v, ok := get("LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := get("LOG_FORMAT"); ok && v != "" {
		c.Logging.Format = normalizeLogFormat(v)
	}

	return nil
}
