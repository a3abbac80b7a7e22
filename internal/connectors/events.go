package connectors

import "time"

// ConnectionState describes the broker session lifecycle.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateReconnecting ConnectionState = "reconnecting"
	// ConnectionStateFailed is terminal until the next explicit Connect.
	ConnectionStateFailed ConnectionState = "failed"
)

// ConnectionStatus is a bus event snapshot of current session status.
type ConnectionStatus struct {
	State         ConnectionState
	Err           string
	TransportName string
	Target        string
	Attempt       int
	Timestamp     time.Time
}

// RawPacket carries an inbound MQTT payload for debug logging.
type RawPacket struct {
	Topic string
	Hex   string
	Len   int
}
