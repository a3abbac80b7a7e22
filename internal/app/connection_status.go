package app

import (
	"strings"
	"time"

	"github.com/skobkin/meshwatch/internal/config"
	"github.com/skobkin/meshwatch/internal/connectors"
	"github.com/skobkin/meshwatch/internal/transport"
)

// MQTTSessionConfig maps the persisted settings onto the transport session config.
func MQTTSessionConfig(cfg config.MQTTConfig, clientID string) transport.MQTTConfig {
	return transport.MQTTConfig{
		Host:           strings.TrimSpace(cfg.Broker),
		Port:           cfg.Port,
		UseTLS:         cfg.UseTLS,
		Username:       cfg.Username,
		Password:       cfg.Password,
		ClientID:       clientID,
		QoS:            byte(cfg.QoS),
		KeepAlive:      cfg.KeepAlive.Std(),
		ConnectTimeout: cfg.ConnectTimeout.Std(),
	}
}

// InitialConnectionStatus is published before the first connect attempt.
func InitialConnectionStatus(session transport.Session, now time.Time) connectors.ConnectionStatus {
	status := connectors.ConnectionStatus{
		State:         connectors.ConnectionStateDisconnected,
		TransportName: session.Name(),
		Timestamp:     now,
	}
	if resolver, ok := session.(transport.StatusTargetResolver); ok {
		status.Target = resolver.StatusTarget()
	}

	return status
}
