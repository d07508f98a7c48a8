// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLStore is a database-backed Store, suitable for multi-instance
// deployments that must agree on usage across processes. It shares a
// *sql.DB with other components via config.DBPool rather than owning its
// own connection.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore creates a SQL-backed store and ensures its table exists.
// dialect is the normalized name from config.DatabaseConfig.Dialect()
// ("sqlite", "postgres", or "mysql").
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("ratelimit: migrate sql store: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	autoIncrement := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == "postgres" {
		autoIncrement = "SERIAL PRIMARY KEY"
	} else if s.dialect == "mysql" {
		autoIncrement = "INTEGER PRIMARY KEY AUTO_INCREMENT"
	}

	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ratelimit_usage (
		id %s,
		scope TEXT NOT NULL,
		identifier TEXT NOT NULL,
		limit_type TEXT NOT NULL,
		window TEXT NOT NULL,
		amount BIGINT NOT NULL DEFAULT 0,
		window_end TIMESTAMP NOT NULL,
		UNIQUE(scope, identifier, limit_type, window)
	)`, autoIncrement)

	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// GetUsage gets current usage for a specific limit.
func (s *SQLStore) GetUsage(ctx context.Context, scope Scope, identifier string, limitType LimitType, window TimeWindow) (int64, time.Time, error) {
	var amount int64
	var windowEnd time.Time

	row := s.db.QueryRowContext(ctx,
		`SELECT amount, window_end FROM ratelimit_usage WHERE scope = ? AND identifier = ? AND limit_type = ? AND window = ?`,
		string(scope), identifier, string(limitType), string(window))

	err := row.Scan(&amount, &windowEnd)
	if err == sql.ErrNoRows {
		return 0, time.Now().Add(window.Duration()), nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit: get usage: %w", err)
	}

	if windowEnd.Before(time.Now()) {
		return 0, time.Now().Add(window.Duration()), nil
	}
	return amount, windowEnd, nil
}

// IncrementUsage increments usage for a specific limit, resetting the
// window if it has expired.
func (s *SQLStore) IncrementUsage(ctx context.Context, scope Scope, identifier string, limitType LimitType, window TimeWindow, amount int64) (int64, time.Time, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit: begin tx: %w", err)
	}
	defer tx.Rollback()

	var current int64
	var windowEnd time.Time
	row := tx.QueryRowContext(ctx,
		`SELECT amount, window_end FROM ratelimit_usage WHERE scope = ? AND identifier = ? AND limit_type = ? AND window = ?`,
		string(scope), identifier, string(limitType), string(window))
	err = row.Scan(&current, &windowEnd)

	now := time.Now()
	switch {
	case err == sql.ErrNoRows:
		windowEnd = now.Add(window.Duration())
		current = amount
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ratelimit_usage (scope, identifier, limit_type, window, amount, window_end) VALUES (?, ?, ?, ?, ?, ?)`,
			string(scope), identifier, string(limitType), string(window), current, windowEnd)
	case err != nil:
		return 0, time.Time{}, fmt.Errorf("ratelimit: read usage: %w", err)
	case windowEnd.Before(now):
		windowEnd = now.Add(window.Duration())
		current = amount
		_, err = tx.ExecContext(ctx,
			`UPDATE ratelimit_usage SET amount = ?, window_end = ? WHERE scope = ? AND identifier = ? AND limit_type = ? AND window = ?`,
			current, windowEnd, string(scope), identifier, string(limitType), string(window))
	default:
		current += amount
		_, err = tx.ExecContext(ctx,
			`UPDATE ratelimit_usage SET amount = ? WHERE scope = ? AND identifier = ? AND limit_type = ? AND window = ?`,
			current, string(scope), identifier, string(limitType), string(window))
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit: write usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit: commit: %w", err)
	}
	return current, windowEnd, nil
}

// SetUsage sets usage for a specific limit, used for explicit resets or
// window rollovers.
func (s *SQLStore) SetUsage(ctx context.Context, scope Scope, identifier string, limitType LimitType, window TimeWindow, amount int64, windowEnd time.Time) error {
	_, err := s.db.ExecContext(ctx, upsertUsageSQL(s.dialect),
		string(scope), identifier, string(limitType), string(window), amount, windowEnd,
		amount, windowEnd)
	if err != nil {
		return fmt.Errorf("ratelimit: set usage: %w", err)
	}
	return nil
}

func upsertUsageSQL(dialect string) string {
	if dialect == "postgres" {
		return `INSERT INTO ratelimit_usage (scope, identifier, limit_type, window, amount, window_end)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (scope, identifier, limit_type, window)
			DO UPDATE SET amount = $7, window_end = $8`
	}
	return `INSERT INTO ratelimit_usage (scope, identifier, limit_type, window, amount, window_end)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (scope, identifier, limit_type, window)
		DO UPDATE SET amount = ?, window_end = ?`
}

// DeleteUsage deletes all usage records for an identifier.
func (s *SQLStore) DeleteUsage(ctx context.Context, scope Scope, identifier string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM ratelimit_usage WHERE scope = ? AND identifier = ?`,
		string(scope), identifier)
	if err != nil {
		return fmt.Errorf("ratelimit: delete usage: %w", err)
	}
	return nil
}

// DeleteExpired deletes all expired usage records.
func (s *SQLStore) DeleteExpired(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ratelimit_usage WHERE window_end < ?`, before)
	if err != nil {
		return fmt.Errorf("ratelimit: delete expired: %w", err)
	}
	return nil
}

// Close is a no-op: the underlying *sql.DB is owned by config.DBPool and
// shared with other components.
func (s *SQLStore) Close() error {
	return nil
}
