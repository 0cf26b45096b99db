package db

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS messages (
				owner_id INTEGER NOT NULL,
				id INTEGER NOT NULL,
				sender_id INTEGER NOT NULL,
				receiver_id INTEGER NOT NULL,
				sender_name TEXT NOT NULL DEFAULT '',
				receiver_name TEXT NOT NULL DEFAULT '',
				sender_role TEXT NOT NULL DEFAULT '',
				receiver_role TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL,
				task_id INTEGER,
				created_at TEXT NOT NULL,
				read INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (owner_id, id)
			)`,
			`CREATE INDEX IF NOT EXISTS messages_owner_created_idx ON messages(owner_id, created_at)`,
			`CREATE TABLE IF NOT EXISTS snapshots (
				owner_id INTEGER PRIMARY KEY,
				synced_at TEXT NOT NULL,
				message_count INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				timestamp TEXT NOT NULL,
				type TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				payload_json TEXT,
				metadata_json TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS events_timestamp_idx ON events(timestamp, id)`,
			`CREATE INDEX IF NOT EXISTS events_entity_idx ON events(entity_type, entity_id)`,
		},
	},
}

// SchemaVersion returns the applied schema version, 0 for a fresh database.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_version: %w", err)
	}
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// MigrateUp applies pending migrations and returns how many ran.
func (db *DB) MigrateUp(ctx context.Context) (int, error) {
	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d: %w", m.version, err)
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.version)
			return err
		})
		if err != nil {
			return applied, err
		}
		applied++
		db.logger.Debug().Int("version", m.version).Msg("applied migration")
	}
	return applied, nil
}
