package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		title      TEXT    NOT NULL DEFAULT '',
		model      TEXT    NOT NULL DEFAULT '',
		parent_id  TEXT    NOT NULL DEFAULT '',
		archived   INTEGER NOT NULL DEFAULT 0,
		favorite   INTEGER NOT NULL DEFAULT 0,
		tags       TEXT    NOT NULL DEFAULT '[]',
		created_at TEXT    NOT NULL,
		updated_at TEXT    NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		conversation_id TEXT    NOT NULL,
		seq             INTEGER NOT NULL,
		id              TEXT    NOT NULL,
		role            TEXT    NOT NULL,
		content         TEXT    NOT NULL DEFAULT '',
		timestamp       TEXT    NOT NULL,
		attachments     TEXT    NOT NULL DEFAULT '[]',
		PRIMARY KEY (conversation_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq)`,

	`CREATE TABLE IF NOT EXISTS links (
		id              TEXT PRIMARY KEY,
		source_id       TEXT NOT NULL,
		target_id       TEXT NOT NULL,
		type            TEXT NOT NULL,
		fork_message_id TEXT NOT NULL DEFAULT '',
		metadata        TEXT NOT NULL DEFAULT '{}',
		created_at      TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id)`,

	`CREATE TABLE IF NOT EXISTS context_configs (
		conversation_id  TEXT PRIMARY KEY,
		included_links   TEXT    NOT NULL DEFAULT '[]',
		auto_load_parent INTEGER NOT NULL DEFAULT 1,
		auto_load_links  INTEGER NOT NULL DEFAULT 0,
		strategy         TEXT    NOT NULL DEFAULT 'balanced',
		max_tokens       INTEGER NOT NULL DEFAULT 0
	)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	ctx := context.TODO()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: apply schema: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return nil
}
