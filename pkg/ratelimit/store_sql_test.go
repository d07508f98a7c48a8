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
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLStore(db, "sqlite")
	if err != nil {
		t.Fatalf("new sql store: %v", err)
	}
	return store
}

func TestSQLStore_IncrementUsage_AccumulatesWithinWindow(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	amount, _, err := store.IncrementUsage(ctx, ScopeSession, "session1", LimitTypeToken, WindowMinute, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount != 50 {
		t.Errorf("expected amount 50, got %d", amount)
	}

	amount, _, err = store.IncrementUsage(ctx, ScopeSession, "session1", LimitTypeToken, WindowMinute, 40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount != 90 {
		t.Errorf("expected amount 90, got %d", amount)
	}
}

func TestSQLStore_GetUsage_UnknownKeyReturnsZero(t *testing.T) {
	store := newTestSQLStore(t)
	amount, _, err := store.GetUsage(context.Background(), ScopeSession, "nobody", LimitTypeToken, WindowHour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount != 0 {
		t.Errorf("expected 0, got %d", amount)
	}
}

func TestSQLStore_SetUsage_ThenGetReflectsExplicitValue(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	windowEnd := time.Now().Add(time.Hour)

	if err := store.SetUsage(ctx, ScopeUser, "user1", LimitTypeCount, WindowDay, 7, windowEnd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amount, _, err := store.GetUsage(ctx, ScopeUser, "user1", LimitTypeCount, WindowDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount != 7 {
		t.Errorf("expected 7, got %d", amount)
	}
}

func TestSQLStore_DeleteUsage_RemovesAllWindowsForIdentifier(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	if _, _, err := store.IncrementUsage(ctx, ScopeSession, "session1", LimitTypeToken, WindowMinute, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.DeleteUsage(ctx, ScopeSession, "session1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amount, _, err := store.GetUsage(ctx, ScopeSession, "session1", LimitTypeToken, WindowMinute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount != 0 {
		t.Errorf("expected usage cleared, got %d", amount)
	}
}
