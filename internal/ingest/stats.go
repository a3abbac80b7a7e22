package ingest

import (
	"sync/atomic"
	"time"
)

// Stats counts ingest outcomes. All fields are updated atomically.
type Stats struct {
	received          atomic.Int64
	processed         atomic.Int64
	rejected          atomic.Int64
	duplicates        atomic.Int64
	decodeErrors      atomic.Int64
	jsonErrors        atomic.Int64
	invalidFields     atomic.Int64
	encrypted         atomic.Int64
	jsonMessages      atomic.Int64
	statusMessages    atomic.Int64
	rawMessages       atomic.Int64
	reconnectAttempts atomic.Int64
	sent              atomic.Int64
	lastMessageAt     atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Received          int64     `json:"received"`
	Processed         int64     `json:"processed"`
	Rejected          int64     `json:"rejected"`
	Duplicates        int64     `json:"duplicates"`
	DecodeErrors      int64     `json:"decode_errors"`
	JSONErrors        int64     `json:"json_errors"`
	InvalidFields     int64     `json:"invalid_fields"`
	Encrypted         int64     `json:"encrypted"`
	JSONMessages      int64     `json:"json_messages"`
	StatusMessages    int64     `json:"status_messages"`
	RawMessages       int64     `json:"raw_messages"`
	ReconnectAttempts int64     `json:"reconnect_attempts"`
	Sent              int64     `json:"sent"`
	LastMessageAt     time.Time `json:"last_message_at"`
	// DedupEntries is the number of packet keys currently held by the duplicate filter.
	DedupEntries      int       `json:"dedup_entries"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	out := StatsSnapshot{
		Received:          s.received.Load(),
		Processed:         s.processed.Load(),
		Rejected:          s.rejected.Load(),
		Duplicates:        s.duplicates.Load(),
		DecodeErrors:      s.decodeErrors.Load(),
		JSONErrors:        s.jsonErrors.Load(),
		InvalidFields:     s.invalidFields.Load(),
		Encrypted:         s.encrypted.Load(),
		JSONMessages:      s.jsonMessages.Load(),
		StatusMessages:    s.statusMessages.Load(),
		RawMessages:       s.rawMessages.Load(),
		ReconnectAttempts: s.reconnectAttempts.Load(),
		Sent:              s.sent.Load(),
	}
	if ms := s.lastMessageAt.Load(); ms > 0 {
		out.LastMessageAt = time.UnixMilli(ms)
	}

	return out
}

func (s *Stats) markReceived(at time.Time) {
	s.received.Add(1)
	s.lastMessageAt.Store(at.UnixMilli())
}
