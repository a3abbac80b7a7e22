package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

//goland:noinspection SqlWithoutWhere
var clearDatabaseStatements = []string{
	`DELETE FROM messages;`,
	`DELETE FROM alerts;`,
	`DELETE FROM routes;`,
	`DELETE FROM nodes;`,
}

func ClearDatabase(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database is not initialized")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear database tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range clearDatabaseStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear database tables: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear database tx: %w", err)
	}

	return nil
}

// TrimLogs keeps only the newest keepMessages messages and keepAlerts alerts.
func TrimLogs(ctx context.Context, db *sql.DB, keepMessages, keepAlerts int) error {
	if db == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := db.ExecContext(ctx, `
		DELETE FROM messages WHERE local_id NOT IN (
			SELECT local_id FROM messages ORDER BY at DESC, local_id DESC LIMIT ?
		)
	`, keepMessages); err != nil {
		return fmt.Errorf("trim messages: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		DELETE FROM alerts WHERE alert_id NOT IN (
			SELECT alert_id FROM alerts ORDER BY at DESC LIMIT ?
		)
	`, keepAlerts); err != nil {
		return fmt.Errorf("trim alerts: %w", err)
	}

	return nil
}

// PruneStale removes nodes not heard since cutoff together with their routes, and trims the logs
// to the in-memory ring sizes.
func PruneStale(ctx context.Context, db *sql.DB, cutoff time.Time, keepMessages, keepAlerts int) (int64, error) {
	removed, err := NewNodeRepo(db).DeleteHeardBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if err := TrimLogs(ctx, db, keepMessages, keepAlerts); err != nil {
		return removed, err
	}

	return removed, nil
}
