package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS nodes (
		node_id TEXT PRIMARY KEY,
		node_num INTEGER NOT NULL DEFAULT 0,
		long_name TEXT NOT NULL DEFAULT '',
		short_name TEXT NOT NULL DEFAULT '',
		board_model TEXT,
		device_role TEXT,
		is_licensed INTEGER,
		latitude REAL,
		longitude REAL,
		altitude INTEGER,
		position_precision INTEGER,
		position_at INTEGER NOT NULL DEFAULT 0,
		battery_level INTEGER,
		voltage REAL,
		channel_utilization REAL,
		air_util_tx REAL,
		uptime_seconds INTEGER,
		temperature REAL,
		humidity REAL,
		pressure REAL,
		gas_resistance REAL,
		telemetry_at INTEGER NOT NULL DEFAULT 0,
		rssi INTEGER,
		snr REAL,
		hop_count INTEGER,
		neighbors_json TEXT,
		heard_by_json TEXT,
		first_seen_at INTEGER NOT NULL DEFAULT 0,
		last_heard_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_last_heard ON nodes(last_heard_at);`,
	`CREATE TABLE IF NOT EXISTS routes (
		destination_id TEXT PRIMARY KEY,
		hops_json TEXT,
		discovered_at INTEGER NOT NULL DEFAULT 0,
		last_used_at INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS alerts (
		alert_id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		severity INTEGER NOT NULL DEFAULT 0,
		source_node TEXT,
		at INTEGER NOT NULL DEFAULT 0,
		acknowledged INTEGER NOT NULL DEFAULT 0,
		meta_json TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_at ON alerts(at);`,
	`CREATE TABLE IF NOT EXISTS messages (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL UNIQUE,
		sender_id TEXT NOT NULL DEFAULT '',
		sender_name TEXT NOT NULL DEFAULT '',
		recipient_id TEXT NOT NULL DEFAULT '',
		channel INTEGER NOT NULL DEFAULT 0,
		body TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT '',
		port TEXT NOT NULL DEFAULT '',
		direction INTEGER NOT NULL DEFAULT 1,
		at INTEGER NOT NULL DEFAULT 0,
		hop_count INTEGER,
		snr REAL,
		rssi INTEGER,
		encrypted INTEGER NOT NULL DEFAULT 0,
		relay_hint TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_at ON messages(at);`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, schemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration tx: %w", err)
	}

	return nil
}
