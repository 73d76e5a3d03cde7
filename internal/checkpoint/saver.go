// Package checkpoint persists conversation turns to Postgres, keyed by
// thread id. A Saver is scoped to a single orchestration call: opened at
// the start, closed on every exit path, never shared across requests.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kurious/kurio/internal/model"
)

// Saver reads and writes checkpointed messages over one database
// connection.
type Saver struct {
	conn *pgx.Conn
}

// Open dials the checkpoint database. The connection string already
// carries the checkpoint connection arguments derived by the config.
func Open(ctx context.Context, connString string) (*Saver, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect checkpoint store: %w", err)
	}
	return &Saver{conn: conn}, nil
}

// Setup creates the backing schema if it does not exist. Idempotent and
// safe to call before every use.
func (s *Saver) Setup(ctx context.Context) error {
	// One statement per Exec: the connection runs in extended query mode.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id BIGSERIAL PRIMARY KEY,
			thread_id TEXT NOT NULL,
			message JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS checkpoints_thread_id_idx
			ON checkpoints (thread_id, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("setup checkpoint schema: %w", err)
		}
	}
	return nil
}

// LoadThread returns all checkpointed messages for a thread in insertion
// order.
func (s *Saver) LoadThread(ctx context.Context, threadID string) ([]model.Message, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT message FROM checkpoints
		WHERE thread_id = $1
		ORDER BY id ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		var msg model.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("decode checkpoint: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// AppendMessages checkpoints the given messages at the end of a thread.
func (s *Saver) AppendMessages(ctx context.Context, threadID string, msgs []model.Message) error {
	for _, msg := range msgs {
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode checkpoint: %w", err)
		}
		if _, err := s.conn.Exec(ctx, `
			INSERT INTO checkpoints (thread_id, message)
			VALUES ($1, $2)`, threadID, raw); err != nil {
			return fmt.Errorf("append checkpoint: %w", err)
		}
	}
	return nil
}

// ReplaceThread atomically swaps a thread's history, used after the
// summarizer compacts old messages.
func (s *Saver) ReplaceThread(ctx context.Context, threadID string, msgs []model.Message) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace thread: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM checkpoints WHERE thread_id = $1`, threadID); err != nil {
		return fmt.Errorf("clear thread %s: %w", threadID, err)
	}
	for _, msg := range msgs {
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode checkpoint: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO checkpoints (thread_id, message)
			VALUES ($1, $2)`, threadID, raw); err != nil {
			return fmt.Errorf("append checkpoint: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// DeleteThread removes every checkpointed row for a thread.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.conn.Exec(ctx,
		`DELETE FROM checkpoints WHERE thread_id = $1`, threadID); err != nil {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return nil
}

// Close releases the connection.
func (s *Saver) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}
