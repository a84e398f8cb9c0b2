package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(ctx context.Context, dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error { return d.Conn.Close() }

// users and activities belong to the profile and activity services; they are
// created here only so a standalone deployment has something to reference.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS activities (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(200) NOT NULL,
		creator_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS matches (
		id BIGSERIAL PRIMARY KEY,
		user1_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user2_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		status VARCHAR(10) NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'INACTIVE', 'BLOCKED')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_message_at TIMESTAMPTZ,
		compatibility_score REAL,
		CHECK (user1_id <> user2_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS matches_pair_uq
		ON matches (LEAST(user1_id, user2_id), GREATEST(user1_id, user2_id))`,

	`CREATE TABLE IF NOT EXISTS direct_messages (
		id BIGSERIAL PRIMARY KEY,
		match_id BIGINT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
		sender_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		media_url TEXT,
		media_type VARCHAR(20),
		sent_at TIMESTAMPTZ NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT false,
		read_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS direct_messages_match_idx ON direct_messages (match_id, sent_at, id)`,

	`CREATE TABLE IF NOT EXISTS rooms (
		id BIGSERIAL PRIMARY KEY,
		activity_id BIGINT NOT NULL UNIQUE REFERENCES activities(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS memberships (
		id BIGSERIAL PRIMARY KEY,
		room_id BIGINT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role VARCHAR(10) NOT NULL CHECK (role IN ('OWNER', 'MEMBER')),
		joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (room_id, user_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS memberships_one_owner ON memberships (room_id) WHERE role = 'OWNER'`,
	`CREATE INDEX IF NOT EXISTS memberships_user_idx ON memberships (user_id)`,

	`CREATE TABLE IF NOT EXISTS group_messages (
		id BIGSERIAL PRIMARY KEY,
		room_id BIGINT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		sender_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
		content TEXT NOT NULL,
		system_message BOOLEAN NOT NULL DEFAULT false,
		sent_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
	)`,
	`CREATE INDEX IF NOT EXISTS group_messages_room_idx ON group_messages (room_id, sent_at, id)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type VARCHAR(50) NOT NULL,
		title VARCHAR(255) NOT NULL,
		message TEXT NOT NULL,
		related_id BIGINT,
		related_type VARCHAR(50),
		is_read BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_user_idx ON notifications (user_id, created_at DESC)`,
}

func (d *Database) AutoMigrate(ctx context.Context) error {
	for _, query := range schema {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
