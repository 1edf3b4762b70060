package repository

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chats (
		id                TEXT PRIMARY KEY,
		client_id         TEXT NOT NULL,
		client_name       TEXT NOT NULL DEFAULT '',
		client_lang       TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL DEFAULT 'open',
		waiting_for_agent BOOLEAN NOT NULL DEFAULT FALSE,
		agent_accepted    BOOLEAN NOT NULL DEFAULT FALSE,
		agent_id          TEXT,
		agent_name        TEXT NOT NULL DEFAULT '',
		agent_lang        TEXT NOT NULL DEFAULT '',
		created_at        BIGINT NOT NULL,
		accepted_at       BIGINT,
		closed_at         BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS chats_waiting_idx ON chats (status, waiting_for_agent)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		seq             BIGSERIAL,
		id              TEXT PRIMARY KEY,
		room_id         TEXT NOT NULL REFERENCES chats(id),
		sender_id       TEXT NOT NULL,
		sender_name     TEXT NOT NULL DEFAULT '',
		sender_type     TEXT NOT NULL,
		type            TEXT NOT NULL,
		text            TEXT NOT NULL DEFAULT '',
		image_base64    TEXT NOT NULL DEFAULT '',
		audio_base64    TEXT NOT NULL DEFAULT '',
		translated_text TEXT NOT NULL DEFAULT '',
		agent_lang      TEXT NOT NULL DEFAULT '',
		client_lang     TEXT NOT NULL DEFAULT '',
		created_at      BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_room_idx ON chat_messages (room_id, seq)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id           UUID PRIMARY KEY,
		event_type   TEXT NOT NULL,
		payload      JSONB NOT NULL,
		status       TEXT NOT NULL DEFAULT 'pending',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_pending_idx ON outbox_events (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS user_presence (
		user_id   TEXT PRIMARY KEY,
		status    TEXT NOT NULL,
		last_seen BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		user_id   TEXT NOT NULL,
		date      TEXT NOT NULL,
		check_in  TEXT NOT NULL,
		check_out TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         UUID PRIMARY KEY,
		user_id    TEXT NOT NULL,
		room_id    TEXT NOT NULL,
		body       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables used by the Postgres stores.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
