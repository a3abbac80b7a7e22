package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skobkin/meshwatch/internal/domain"
)

type AlertRepo struct {
	db *sql.DB
}

func NewAlertRepo(db *sql.DB) *AlertRepo {
	return &AlertRepo{db: db}
}

func (r *AlertRepo) Insert(ctx context.Context, a domain.Alert) error {
	metaJSON, err := marshalJSONNullable(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal alert metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alerts(alert_id, type, title, message, severity, source_node, at, acknowledged, meta_json)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, string(a.Type), a.Title, a.Message, a.Severity, nullableString(a.SourceNode), toUnixMillis(a.At), boolToInt(a.Acknowledged), metaJSON)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	return nil
}

func (r *AlertRepo) Acknowledge(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE alerts SET acknowledged = 1 WHERE alert_id = ?`, id); err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}

	return nil
}

// ListRecent returns up to limit of the newest alerts, oldest first.
func (r *AlertRepo) ListRecent(ctx context.Context, limit int) ([]domain.Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT alert_id, type, title, message, severity, source_node, at, acknowledged, meta_json
		FROM alerts
		ORDER BY at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Alert
	for rows.Next() {
		var (
			a       domain.Alert
			typ     string
			source  sql.NullString
			metaRaw sql.NullString
			atMs    int64
			acked   int64
		)
		if err := rows.Scan(&a.ID, &typ, &a.Title, &a.Message, &a.Severity, &source, &atMs, &acked, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = domain.AlertType(typ)
		a.SourceNode = source.String
		a.At = fromUnixMillis(atMs)
		a.Acknowledged = acked != 0
		if err := unmarshalJSONNullable(metaRaw, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode alert metadata: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out, nil
}
