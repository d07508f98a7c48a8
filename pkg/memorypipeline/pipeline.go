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

package memorypipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/hector/pkg/embedder"
	"github.com/kadirpekel/hector/pkg/eventbus"
	"github.com/kadirpekel/hector/pkg/model"
	"github.com/kadirpekel/hector/pkg/orchestrator"
	"github.com/kadirpekel/hector/pkg/repo"
)

// Pipeline is the C6 memory component: pre-request recall into an agent
// context, and post-response extraction of new memories, tagged with the
// sub-agent that produced them where applicable.
type Pipeline struct {
	cfg         Config
	embedder    embedder.Embedder
	vectorStore repo.VectorStore
	memoryRepo  repo.MemoryRepo
	extractor   model.LLM
	bus         *eventbus.Bus
	logger      *slog.Logger
}

// New creates a Pipeline. extractor is the LLM used for the structured
// fact-extraction call; it may differ from the conversational provider.
func New(cfg Config, emb embedder.Embedder, vs repo.VectorStore, mr repo.MemoryRepo, extractor model.LLM, bus *eventbus.Bus, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:         cfg,
		embedder:    emb,
		vectorStore: vs,
		memoryRepo:  mr,
		extractor:   extractor,
		bus:         bus,
		logger:      logger,
	}
}

// Extract runs post-response extraction: once against the full root
// conversation, and once per entry in result.MemoryContexts, tagging each
// produced memory with the source sub-agent's id. Extraction failures are
// logged and skipped rather than propagated, per-entry, so one bad
// extraction cannot block the others or the caller's response path.
func (p *Pipeline) Extract(ctx context.Context, botID string, result *orchestrator.Result, rootConversation []Message) error {
	p.extractInto(ctx, botID, rootConversation, "")

	for _, mc := range result.MemoryContexts {
		conversation := []Message{
			{Role: "user", Content: mc.TaskDescription},
			{Role: "assistant", Content: mc.ResponseText},
		}
		p.extractInto(ctx, botID, conversation, mc.AgentID)
	}
	return nil
}

func (p *Pipeline) extractInto(ctx context.Context, botID string, conversation []Message, sourceAgentID string) {
	facts, err := extractFacts(ctx, p.extractor, conversation)
	if err != nil {
		p.logger.Debug("memory extraction failed, skipping", "bot_id", botID, "source_agent_id", sourceAgentID, "error", err)
		return
	}

	for _, fact := range facts {
		id := uuid.NewString()
		createdAt := time.Now()

		entry := repo.MemoryEntry{
			ID:            id,
			BotID:         botID,
			Content:       fact.Fact,
			Category:      fact.Category,
			Importance:    fact.Importance,
			SourceAgentID: sourceAgentID,
			CreatedAt:     createdAt,
		}
		if err := p.memoryRepo.SaveMemory(ctx, entry); err != nil {
			p.logger.Debug("memory extraction: save failed, skipping", "bot_id", botID, "error", err)
			continue
		}

		if err := p.indexMemory(ctx, botID, entry); err != nil {
			p.logger.Debug("memory extraction: index failed, memory persisted without recall", "bot_id", botID, "error", err)
		}

		if sourceAgentID != "" && p.bus != nil {
			p.bus.Publish(eventbus.Event{
				Type: eventbus.TypeMemoryCreated,
				MemoryCreated: &eventbus.MemoryCreated{
					AgentID:  sourceAgentID,
					MemoryID: id,
				},
			})
		}
	}
}

func (p *Pipeline) indexMemory(ctx context.Context, botID string, entry repo.MemoryEntry) error {
	embedding, err := p.embedder.Embed(ctx, entry.Content)
	if err != nil {
		return err
	}
	metadata := map[string]any{
		"category":   entry.Category,
		"importance": entry.Importance,
		"created_at": entry.CreatedAt.Format(time.RFC3339),
	}
	return p.vectorStore.Upsert(ctx, botID, entry.ID, entry.Content, embedding, metadata)
}
