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
	"encoding/json"
	"fmt"
	"iter"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hector/pkg/agentctx"
	"github.com/kadirpekel/hector/pkg/eventbus"
	"github.com/kadirpekel/hector/pkg/model"
	"github.com/kadirpekel/hector/pkg/orchestrator"
	"github.com/kadirpekel/hector/pkg/repo"
	"github.com/kadirpekel/hector/pkg/vector"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) { return f.vec, f.err }
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (f *fakeEmbedder) Dimension() int { return 3 }
func (f *fakeEmbedder) Model() string  { return "fake" }
func (f *fakeEmbedder) Close() error   { return nil }

type fakeVectorStore struct {
	upserts []struct {
		botID, id, content string
		metadata           map[string]any
	}
	searchResults []vector.Result
	searchErr     error
}

func (f *fakeVectorStore) Upsert(ctx context.Context, botID, id, content string, embedding []float32, metadata map[string]any) error {
	f.upserts = append(f.upserts, struct {
		botID, id, content string
		metadata           map[string]any
	}{botID, id, content, metadata})
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, botID string, queryEmbedding []float32, topK int, minSimilarity float32) ([]vector.Result, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResults, nil
}

type fakeMemoryRepo struct {
	saved []repo.MemoryEntry
}

func (f *fakeMemoryRepo) SaveMemory(ctx context.Context, m repo.MemoryEntry) error {
	f.saved = append(f.saved, m)
	return nil
}

func (f *fakeMemoryRepo) LoadAllForBot(ctx context.Context, botID string) ([]repo.MemoryEntry, error) {
	var out []repo.MemoryEntry
	for _, m := range f.saved {
		if m.BotID == botID {
			out = append(out, m)
		}
	}
	return out, nil
}

// textLLM yields exactly one non-streaming response with fixed text, or an error.
type textLLM struct {
	text string
	err  error
}

func (t *textLLM) Name() string             { return "fake-extractor" }
func (t *textLLM) Provider() model.Provider { return model.ProviderOpenAI }
func (t *textLLM) Close() error             { return nil }
func (t *textLLM) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		if t.err != nil {
			yield(nil, t.err)
			return
		}
		yield(&model.Response{
			Content: &model.Content{Parts: []a2a.Part{a2a.TextPart{Text: t.text}}, Role: a2a.MessageRoleAssistant},
			Partial: false,
		}, nil)
	}
}

func factsJSON(facts ...ExtractedFact) string {
	b, _ := json.Marshal(extractionPayload{Facts: facts})
	return string(b)
}

func TestRecall_AttachesRecalledMemoriesSortedByRelevance(t *testing.T) {
	now := time.Now().Format(time.RFC3339)
	vs := &fakeVectorStore{searchResults: []vector.Result{
		{ID: "m1", Content: "likes espresso", Score: 0.5, Metadata: map[string]any{"category": "preference", "importance": 0.9, "created_at": now}},
		{ID: "m2", Content: "lives in Lisbon", Score: 0.9, Metadata: map[string]any{"category": "fact", "importance": 0.1, "created_at": now}},
	}}
	p := New(DefaultConfig(), &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}, vs, nil, nil, nil, nil)

	ac, err := agentctx.New(agentctx.Config{BotID: "bot1"}, "soul", "", "", nil, 0, "")
	require.NoError(t, err)

	require.NoError(t, p.Recall(context.Background(), "bot1", "what do you know about me?", ac))
	require.Len(t, ac.RecalledMemories, 2)
	assert.Equal(t, "lives in Lisbon", ac.RecalledMemories[0].Content)
	assert.Equal(t, "likes espresso", ac.RecalledMemories[1].Content)
}

func TestRecall_EmbeddingFailureDegradesToNoMemoriesNotError(t *testing.T) {
	p := New(DefaultConfig(), &fakeEmbedder{err: fmt.Errorf("boom")}, &fakeVectorStore{}, nil, nil, nil, nil)
	ac, err := agentctx.New(agentctx.Config{BotID: "bot1"}, "soul", "", "", nil, 0, "")
	require.NoError(t, err)

	require.NoError(t, p.Recall(context.Background(), "bot1", "hi", ac))
	assert.Empty(t, ac.RecalledMemories)
}

func TestRecall_SearchFailureDegradesToNoMemoriesNotError(t *testing.T) {
	vs := &fakeVectorStore{searchErr: fmt.Errorf("store unreachable")}
	p := New(DefaultConfig(), &fakeEmbedder{vec: []float32{0.1}}, vs, nil, nil, nil, nil)
	ac, err := agentctx.New(agentctx.Config{BotID: "bot1"}, "soul", "", "", nil, 0, "")
	require.NoError(t, err)

	require.NoError(t, p.Recall(context.Background(), "bot1", "hi", ac))
	assert.Empty(t, ac.RecalledMemories)
}

func TestExtractFacts_ParsesStructuredResponse(t *testing.T) {
	llm := &textLLM{text: factsJSON(ExtractedFact{Fact: "prefers dark mode", Category: "preference", Importance: 0.6})}
	facts, err := extractFacts(context.Background(), llm, []Message{{Role: "user", Content: "I always use dark mode"}})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "prefers dark mode", facts[0].Fact)
}

func TestExtractFacts_LLMErrorPropagates(t *testing.T) {
	llm := &textLLM{err: fmt.Errorf("provider down")}
	_, err := extractFacts(context.Background(), llm, []Message{{Role: "user", Content: "hi"}})
	assert.Error(t, err)
}

func TestRelevanceScore_HigherSimilarityWinsAtEqualAgeAndImportance(t *testing.T) {
	low := relevanceScore(0.2, 0, 0.5)
	high := relevanceScore(0.9, 0, 0.5)
	assert.Greater(t, high, low)
}

func TestRelevanceScore_OlderMemoryScoresLowerAtEqualSimilarity(t *testing.T) {
	fresh := relevanceScore(0.7, 0, 0.5)
	stale := relevanceScore(0.7, 365*24*time.Hour, 0.5)
	assert.Greater(t, fresh, stale)
}

func TestExtract_RootConversationAndMemoryContextsAreBothExtracted(t *testing.T) {
	llm := &textLLM{text: factsJSON(ExtractedFact{Fact: "fact", Category: "general", Importance: 0.4})}
	mr := &fakeMemoryRepo{}
	vs := &fakeVectorStore{}
	p := New(DefaultConfig(), &fakeEmbedder{vec: []float32{0.1, 0.2}}, vs, mr, llm, eventbus.New(eventbus.DefaultCapacity), nil)

	result := &orchestrator.Result{
		MemoryContexts: []orchestrator.MemoryContext{
			{AgentID: "agent-1", ResponseText: "did the research", TaskDescription: "research X"},
		},
	}
	root := []Message{{Role: "user", Content: "hello"}, {Role: "assistant", Content: "hi there"}}

	require.NoError(t, p.Extract(context.Background(), "bot1", result, root))

	require.Len(t, mr.saved, 2)
	assert.Empty(t, mr.saved[0].SourceAgentID)
	assert.Equal(t, "agent-1", mr.saved[1].SourceAgentID)
	assert.Len(t, vs.upserts, 2)
}

func TestExtract_PerEntryFailureDoesNotBlockOtherEntries(t *testing.T) {
	llm := &textLLM{err: fmt.Errorf("extractor down")}
	mr := &fakeMemoryRepo{}
	p := New(DefaultConfig(), &fakeEmbedder{vec: []float32{0.1}}, &fakeVectorStore{}, mr, llm, nil, nil)

	result := &orchestrator.Result{MemoryContexts: []orchestrator.MemoryContext{
		{AgentID: "agent-1", ResponseText: "r1", TaskDescription: "t1"},
	}}
	require.NoError(t, p.Extract(context.Background(), "bot1", result, []Message{{Role: "user", Content: "hi"}}))
	assert.Empty(t, mr.saved)
}

func TestExtract_SubAgentMemoryPublishesMemoryCreated(t *testing.T) {
	llm := &textLLM{text: factsJSON(ExtractedFact{Fact: "fact", Category: "general", Importance: 0.4})}
	mr := &fakeMemoryRepo{}
	bus := eventbus.New(eventbus.DefaultCapacity)
	sub := bus.Subscribe()
	p := New(DefaultConfig(), &fakeEmbedder{vec: []float32{0.1}}, &fakeVectorStore{}, mr, llm, bus, nil)

	result := &orchestrator.Result{MemoryContexts: []orchestrator.MemoryContext{
		{AgentID: "agent-9", ResponseText: "r", TaskDescription: "t"},
	}}
	require.NoError(t, p.Extract(context.Background(), "bot1", result, nil))

	select {
	case ev := <-sub.Events():
		require.Equal(t, eventbus.TypeMemoryCreated, ev.Type)
		assert.Equal(t, "agent-9", ev.MemoryCreated.AgentID)
	default:
		t.Fatal("expected a MemoryCreated event")
	}
}
