package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultMQTTPort       = 1883
	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesceMs   = 250
)

// MQTTConfig holds the broker connection parameters.
type MQTTConfig struct {
	Host           string
	Port           int
	UseTLS         bool
	Username       string
	Password       string
	ClientID       string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger
}

// MQTTSession is a Session over an MQTT 3.1.1 broker. Reconnection is left to the caller.
type MQTTSession struct {
	cfg MQTTConfig

	mu     sync.Mutex
	client mqtt.Client
}

func NewMQTTSession(cfg MQTTConfig) *MQTTSession {
	if cfg.Port == 0 {
		cfg.Port = defaultMQTTPort
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	return &MQTTSession{cfg: cfg}
}

func (s *MQTTSession) Name() string {
	return "mqtt"
}

func (s *MQTTSession) StatusTarget() string {
	return brokerURL(s.cfg.Host, s.cfg.Port, s.cfg.UseTLS)
}

func (s *MQTTSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.client != nil && s.client.IsConnected()
}

func (s *MQTTSession) Connect(ctx context.Context, cb Callbacks) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := brokerURL(s.cfg.Host, s.cfg.Port, s.cfg.UseTLS)
	logger := transportLogger(s.cfg.Logger, "mqtt", "target", target, "client_id", s.cfg.ClientID)

	if s.client != nil && s.client.IsConnected() {
		logger.Debug("connect skipped: already connected")

		return nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(target).
		SetClientID(s.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(true).
		SetConnectTimeout(s.cfg.ConnectTimeout)
	if s.cfg.KeepAlive > 0 {
		opts.SetKeepAlive(s.cfg.KeepAlive)
	}
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	if s.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12, ServerName: s.cfg.Host})
	}
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		if cb.OnMessage != nil {
			cb.OnMessage(msg.Topic(), msg.Payload())
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("connection lost", "error", err)
		if cb.OnConnectionLost != nil {
			cb.OnConnectionLost(err)
		}
	})

	logger.Info("connecting")
	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect(), s.cfg.ConnectTimeout); err != nil {
		client.Disconnect(0)
		logger.Warn("connect failed", "error", err)

		return fmt.Errorf("connect to %s: %w", target, err)
	}
	s.client = client
	logger.Info("connected")

	return nil
}

func (s *MQTTSession) Subscribe(ctx context.Context, filters []string) error {
	client, err := s.connectedClient()
	if err != nil {
		return err
	}

	subs := make(map[string]byte, len(filters))
	for _, f := range filters {
		subs[f] = s.cfg.QoS
	}
	if err := waitToken(ctx, client.SubscribeMultiple(subs, nil), s.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("subscribe %v: %w", filters, err)
	}
	transportLogger(s.cfg.Logger, "mqtt").Debug("subscribed", "filters", filters, "qos", s.cfg.QoS)

	return nil
}

func (s *MQTTSession) Publish(ctx context.Context, topic string, payload []byte) error {
	client, err := s.connectedClient()
	if err != nil {
		return err
	}
	if err := waitToken(ctx, client.Publish(topic, s.cfg.QoS, false, payload), s.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	return nil
}

func (s *MQTTSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	s.client.Disconnect(disconnectQuiesceMs)
	s.client = nil
	transportLogger(s.cfg.Logger, "mqtt").Info("disconnected")

	return nil
}

func (s *MQTTSession) connectedClient() (mqtt.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil || !s.client.IsConnected() {
		return nil, ErrNotConnected
	}

	return s.client, nil
}

var errTokenTimeout = errors.New("timed out waiting for broker")

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errTokenTimeout
	}
}

func brokerURL(host string, port int, useTLS bool) string {
	scheme := "tcp"
	if useTLS {
		scheme = "ssl"
	}

	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}
