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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepo_SaveAndLoadScopedByBot(t *testing.T) {
	r := NewInMemoryRepo()
	ctx := context.Background()

	require.NoError(t, r.SaveMemory(ctx, MemoryEntry{ID: "1", BotID: "bot-a", Content: "likes tea"}))
	require.NoError(t, r.SaveMemory(ctx, MemoryEntry{ID: "2", BotID: "bot-b", Content: "likes coffee"}))

	got, err := r.LoadAllForBot(ctx, "bot-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "likes tea", got[0].Content)
}

func TestInMemoryRepo_LoadAllForUnknownBotReturnsEmpty(t *testing.T) {
	r := NewInMemoryRepo()
	got, err := r.LoadAllForBot(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}
