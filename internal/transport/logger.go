package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func transportLogger(base *slog.Logger, name string, attrs ...any) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	logger := base.With("transport", name)
	if len(attrs) == 0 {
		return logger
	}

	return logger.With(attrs...)
}

// pahoLogger adapts slog to the client library's package-level Println/Printf loggers.
type pahoLogger struct {
	logger *slog.Logger
	level  slog.Level
}

func (l pahoLogger) Println(v ...interface{}) {
	l.log(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l pahoLogger) Printf(format string, v ...interface{}) {
	l.log(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l pahoLogger) log(msg string) {
	if msg == "" {
		return
	}
	l.logger.Log(context.Background(), l.level, msg)
}

// RouteClientLogs sends the MQTT client's internal error and warning output to logger.
// Debug output stays discarded: it logs every packet.
func RouteClientLogs(logger *slog.Logger) {
	if logger == nil {
		return
	}
	logger = logger.With("source", "paho")
	mqtt.ERROR = pahoLogger{logger: logger, level: slog.LevelError}
	mqtt.CRITICAL = pahoLogger{logger: logger, level: slog.LevelError}
	mqtt.WARN = pahoLogger{logger: logger, level: slog.LevelWarn}
}
