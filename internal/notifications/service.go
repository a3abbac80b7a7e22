package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/skobkin/meshwatch/internal/bus"
	"github.com/skobkin/meshwatch/internal/connectors"
	"github.com/skobkin/meshwatch/internal/domain"
)

// Service listens to bus events and turns alerts and session changes into notifications.
type Service struct {
	bus         bus.MessageBus
	sender      Sender
	minSeverity int
	logger      *slog.Logger

	connStatusMu     sync.Mutex
	lastConnState    connectors.ConnectionState
	lastConnStateSet bool
}

// NewService notifies about alerts of at least minSeverity. Emergencies are always delivered.
func NewService(messageBus bus.MessageBus, sender Sender, minSeverity int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default().With("component", "notifications")
	}

	return &Service{
		bus:         messageBus,
		sender:      sender,
		minSeverity: minSeverity,
		logger:      logger,
	}
}

func (s *Service) Start(ctx context.Context) {
	if s == nil || s.bus == nil || s.sender == nil {
		return
	}

	alertSub := s.bus.Subscribe(connectors.TopicAlert)
	connSub := s.bus.Subscribe(connectors.TopicConnStatus)

	go func() {
		defer s.bus.Unsubscribe(alertSub, connectors.TopicAlert)
		defer s.bus.Unsubscribe(connSub, connectors.TopicConnStatus)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-alertSub:
				if !ok {
					return
				}
				alert, ok := raw.(domain.Alert)
				if !ok {
					continue
				}
				s.handleAlert(alert)
			case raw, ok := <-connSub:
				if !ok {
					return
				}
				status, ok := raw.(connectors.ConnectionStatus)
				if !ok {
					continue
				}
				s.handleConnectionStatus(status)
			}
		}
	}()
}

func (s *Service) handleAlert(alert domain.Alert) {
	if alert.Type != domain.AlertTypeEmergency && alert.Severity < s.minSeverity {
		return
	}

	title := strings.TrimSpace(alert.Title)
	if title == "" {
		title = string(alert.Type)
	}
	s.send(Payload{
		Title:   fmt.Sprintf("[%s] %s", alert.SeverityLabel(), title),
		Content: alert.Message,
		Urgent:  alert.Type == domain.AlertTypeEmergency,
	})
}

func (s *Service) handleConnectionStatus(status connectors.ConnectionStatus) {
	if status.State == "" {
		return
	}

	s.connStatusMu.Lock()
	if s.lastConnStateSet && s.lastConnState == status.State {
		s.connStatusMu.Unlock()

		return
	}
	first := !s.lastConnStateSet
	s.lastConnState = status.State
	s.lastConnStateSet = true
	s.connStatusMu.Unlock()

	switch status.State {
	case connectors.ConnectionStateConnected, connectors.ConnectionStateFailed:
	case connectors.ConnectionStateDisconnected:
		// Startup reports disconnected before the first connect.
		if first {
			return
		}
	default:
		return
	}

	details := strings.TrimSpace(status.Target)
	if details == "" {
		details = "No connection details"
	}
	if errText := strings.TrimSpace(status.Err); errText != "" && status.State != connectors.ConnectionStateConnected {
		details = fmt.Sprintf("%s (error: %s)", details, errText)
	}

	s.send(Payload{
		Title:   fmt.Sprintf("MQTT - %s", status.State),
		Content: details,
	})
}

func (s *Service) send(notification Payload) {
	title := strings.TrimSpace(notification.Title)
	content := strings.TrimSpace(notification.Content)
	if title == "" && content == "" {
		return
	}
	s.logger.Debug("sending notification", "title", title)
	s.sender.Send(Payload{
		Title:   title,
		Content: content,
	})
}
