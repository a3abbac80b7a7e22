package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skobkin/meshwatch/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Insert stores a message once. Repeated ids are ignored.
func (r *MessageRepo) Insert(ctx context.Context, m domain.Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages(
			message_id, sender_id, sender_name, recipient_id, channel, body, type, port,
			direction, at, hop_count, snr, rssi, encrypted, relay_hint
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.SenderID, m.SenderName, m.RecipientID, m.Channel, m.Text, string(m.Type), m.Port,
		int(m.Direction), toUnixMillis(m.At), nullable(m.HopCount), nullable(m.SNR), nullable(m.RSSI),
		boolToInt(m.Encrypted), nullableString(m.RelayHint),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}

// ListRecent returns up to limit of the newest messages, oldest first.
func (r *MessageRepo) ListRecent(ctx context.Context, limit int) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT message_id, sender_id, sender_name, recipient_id, channel, body, type, port,
			direction, at, hop_count, snr, rssi, encrypted, relay_hint
		FROM messages
		ORDER BY at DESC, local_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out, nil
}

func scanMessage(scanner interface {
	Scan(dest ...any) error
}) (domain.Message, error) {
	var (
		m          domain.Message
		typ        string
		direction  int
		atMs       int64
		hops, rssi sql.NullInt64
		snr        sql.NullFloat64
		encrypted  int64
		relayHint  sql.NullString
	)
	if err := scanner.Scan(
		&m.ID, &m.SenderID, &m.SenderName, &m.RecipientID, &m.Channel, &m.Text, &typ, &m.Port,
		&direction, &atMs, &hops, &snr, &rssi, &encrypted, &relayHint,
	); err != nil {
		return domain.Message{}, fmt.Errorf("scan message: %w", err)
	}
	m.Type = domain.MessageType(typ)
	m.Direction = domain.MessageDirection(direction)
	m.At = fromUnixMillis(atMs)
	m.HopCount = intPtr(hops)
	m.SNR = floatPtr(snr)
	m.RSSI = intPtr(rssi)
	m.Encrypted = encrypted != 0
	m.RelayHint = relayHint.String

	return m, nil
}
