// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLRepo implements MemoryRepo and ChatRepo on top of a shared *sql.DB,
// the way pkg/ratelimit.SQLStore shares its connection via config.DBPool.
// It targets SQLite by default (single-writer, WAL) but accepts any
// dialect name config.DatabaseConfig.Dialect() produces.
type SQLRepo struct {
	db      *sql.DB
	dialect string
}

// NewSQLRepo creates a SQL-backed repo and ensures its tables exist.
func NewSQLRepo(db *sql.DB, dialect string) (*SQLRepo, error) {
	r := &SQLRepo{db: db, dialect: dialect}
	if err := r.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("repo: migrate: %w", err)
	}
	return r, nil
}

func (r *SQLRepo) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			bot_id TEXT NOT NULL,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			importance REAL NOT NULL DEFAULT 0,
			source_agent_id TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_bot_id ON memories(bot_id)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			model TEXT,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session_id ON chat_messages(session_id)`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			session_id TEXT PRIMARY KEY,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveMemory inserts a memory record, generating an id if none was set.
func (r *SQLRepo) SaveMemory(ctx context.Context, m MemoryEntry) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	var sourceAgentID any
	if m.SourceAgentID != "" {
		sourceAgentID = m.SourceAgentID
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO memories (id, bot_id, content, category, importance, source_agent_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.BotID, m.Content, m.Category, m.Importance, sourceAgentID, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("repo: save memory: %w", err)
	}
	return nil
}

// LoadAllForBot returns every memory recorded for a bot, oldest first.
func (r *SQLRepo) LoadAllForBot(ctx context.Context, botID string) ([]MemoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, bot_id, content, category, importance, source_agent_id, created_at FROM memories WHERE bot_id = ? ORDER BY created_at ASC`,
		botID)
	if err != nil {
		return nil, fmt.Errorf("repo: load memories: %w", err)
	}
	defer rows.Close()

	var out []MemoryEntry
	for rows.Next() {
		var m MemoryEntry
		var sourceAgentID sql.NullString
		if err := rows.Scan(&m.ID, &m.BotID, &m.Content, &m.Category, &m.Importance, &sourceAgentID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("repo: scan memory: %w", err)
		}
		m.SourceAgentID = sourceAgentID.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveUserMessage records a user turn in the chat transcript.
func (r *SQLRepo) SaveUserMessage(ctx context.Context, sessionID string, content string) error {
	return r.saveMessage(ctx, sessionID, "user", content, "", 0)
}

// SaveAssistantMessage records an assistant turn and its token cost.
func (r *SQLRepo) SaveAssistantMessage(ctx context.Context, sessionID string, content string, model string, tokensUsed int) error {
	if err := r.saveMessage(ctx, sessionID, "assistant", content, model, tokensUsed); err != nil {
		return err
	}
	return r.UpdateSessionTokens(ctx, sessionID, tokensUsed)
}

func (r *SQLRepo) saveMessage(ctx context.Context, sessionID, role, content, model string, tokensUsed int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, model, tokens_used, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, role, content, model, tokensUsed, time.Now())
	if err != nil {
		return fmt.Errorf("repo: save %s message: %w", role, err)
	}
	return nil
}

// UpdateSessionTokens adds tokens to a session's running total, creating
// the session row on first use.
func (r *SQLRepo) UpdateSessionTokens(ctx context.Context, sessionID string, tokens int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repo: begin tx: %w", err)
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRowContext(ctx, `SELECT total_tokens FROM chat_sessions WHERE session_id = ?`, sessionID).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chat_sessions (session_id, total_tokens, updated_at) VALUES (?, ?, ?)`,
			sessionID, tokens, time.Now())
	case err != nil:
		return fmt.Errorf("repo: read session tokens: %w", err)
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE chat_sessions SET total_tokens = ?, updated_at = ? WHERE session_id = ?`,
			current+tokens, time.Now(), sessionID)
	}
	if err != nil {
		return fmt.Errorf("repo: write session tokens: %w", err)
	}
	return tx.Commit()
}
