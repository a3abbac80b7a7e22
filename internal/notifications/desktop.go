package notifications

import (
	"log/slog"
	"strings"

	"github.com/gen2brain/beeep"
)

// DesktopSender shows notifications through the OS notification daemon.
type DesktopSender struct {
	notify func(title, message string) error
	alert  func(title, message string) error
	logger *slog.Logger
}

func NewDesktopSender(appName string, logger *slog.Logger) *DesktopSender {
	if logger == nil {
		logger = slog.Default().With("component", "notifications.desktop")
	}
	if name := strings.TrimSpace(appName); name != "" {
		beeep.AppName = name
	}

	return &DesktopSender{
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		alert: func(title, message string) error {
			return beeep.Alert(title, message, "")
		},
		logger: logger,
	}
}

func (s *DesktopSender) Send(payload Payload) {
	if s == nil || s.notify == nil {
		return
	}

	title := strings.TrimSpace(payload.Title)
	content := strings.TrimSpace(payload.Content)
	if title == "" && content == "" {
		return
	}
	show := s.notify
	if payload.Urgent && s.alert != nil {
		show = s.alert
	}
	// No display server is common on headless hosts; the failure is not fatal.
	if err := show(title, content); err != nil {
		s.logger.Warn("desktop notification failed", "error", err, "urgent", payload.Urgent)
	}
}
