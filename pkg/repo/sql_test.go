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
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLRepo(t *testing.T) *SQLRepo {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r, err := NewSQLRepo(db, "sqlite")
	require.NoError(t, err)
	return r
}

func TestSQLRepo_SaveAndLoadMemoriesForBot(t *testing.T) {
	r := newTestSQLRepo(t)
	ctx := context.Background()

	require.NoError(t, r.SaveMemory(ctx, MemoryEntry{BotID: "bot1", Content: "likes tea", Category: "preference", Importance: 0.7}))
	require.NoError(t, r.SaveMemory(ctx, MemoryEntry{BotID: "bot1", Content: "works remotely", Category: "fact", Importance: 0.5, SourceAgentID: "agent-42"}))
	require.NoError(t, r.SaveMemory(ctx, MemoryEntry{BotID: "bot2", Content: "unrelated", Category: "fact", Importance: 0.2}))

	memories, err := r.LoadAllForBot(ctx, "bot1")
	require.NoError(t, err)
	require.Len(t, memories, 2)
	assert.Equal(t, "likes tea", memories[0].Content)
	assert.Empty(t, memories[0].SourceAgentID)
	assert.Equal(t, "works remotely", memories[1].Content)
	assert.Equal(t, "agent-42", memories[1].SourceAgentID)
}

func TestSQLRepo_LoadAllForBot_UnknownBotReturnsEmpty(t *testing.T) {
	r := newTestSQLRepo(t)
	memories, err := r.LoadAllForBot(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, memories)
}

func TestSQLRepo_ChatMessagesAccumulateSessionTokens(t *testing.T) {
	r := newTestSQLRepo(t)
	ctx := context.Background()

	require.NoError(t, r.SaveUserMessage(ctx, "sess1", "hello"))
	require.NoError(t, r.SaveAssistantMessage(ctx, "sess1", "hi there", "gpt-4o", 42))
	require.NoError(t, r.SaveAssistantMessage(ctx, "sess1", "anything else?", "gpt-4o", 8))

	var total int
	err := r.db.QueryRowContext(ctx, `SELECT total_tokens FROM chat_sessions WHERE session_id = ?`, "sess1").Scan(&total)
	require.NoError(t, err)
	assert.Equal(t, 50, total)

	var count int
	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages WHERE session_id = ?`, "sess1").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSQLRepo_UpdateSessionTokens_DirectCallAlsoAccumulates(t *testing.T) {
	r := newTestSQLRepo(t)
	ctx := context.Background()

	require.NoError(t, r.UpdateSessionTokens(ctx, "sess2", 10))
	require.NoError(t, r.UpdateSessionTokens(ctx, "sess2", 15))

	var total int
	err := r.db.QueryRowContext(ctx, `SELECT total_tokens FROM chat_sessions WHERE session_id = ?`, "sess2").Scan(&total)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
}
