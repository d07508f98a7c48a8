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

// Package repo defines the repository traits the orchestration core
// consumes for long-term memory, vector recall, and chat transcript
// persistence. The concrete store behind each trait is a deployment
// detail; this package also ships one reference SQL implementation.
package repo

import (
	"context"
	"time"

	"github.com/kadirpekel/hector/pkg/vector"
)

// MemoryEntry is one long-term memory record, either extracted from a
// conversation or written directly.
type MemoryEntry struct {
	ID         string
	BotID      string
	Content    string
	Category   string
	Importance float64
	// SourceAgentID is set when this memory was extracted from a
	// sub-agent's response rather than the root conversation.
	SourceAgentID string
	CreatedAt     time.Time
}

// MemoryRepo persists and loads a bot's long-term memories.
type MemoryRepo interface {
	SaveMemory(ctx context.Context, m MemoryEntry) error
	LoadAllForBot(ctx context.Context, botID string) ([]MemoryEntry, error)
}

// VectorStore is the recall-time trait the memory pipeline queries. It
// wraps a vector.Provider with a bot-scoped collection convention and a
// similarity floor, since vector.Provider itself has no notion of a
// minimum-score cutoff.
type VectorStore interface {
	Upsert(ctx context.Context, botID string, id string, content string, embedding []float32, metadata map[string]any) error
	Search(ctx context.Context, botID string, queryEmbedding []float32, topK int, minSimilarity float32) ([]vector.Result, error)
}

// ChatRepo persists the raw conversation transcript, independent of the
// agent-context history used for prompt assembly.
type ChatRepo interface {
	SaveUserMessage(ctx context.Context, sessionID string, content string) error
	SaveAssistantMessage(ctx context.Context, sessionID string, content string, model string, tokensUsed int) error
	UpdateSessionTokens(ctx context.Context, sessionID string, tokens int) error
}
