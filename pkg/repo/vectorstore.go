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
	"fmt"

	"github.com/kadirpekel/hector/pkg/vector"
)

// ProviderVectorStore adapts a vector.Provider into the VectorStore trait
// the memory pipeline consumes, applying a per-bot collection naming
// convention and a minimum-similarity floor the provider itself does not
// enforce.
type ProviderVectorStore struct {
	provider        vector.Provider
	vectorDimension int
}

// NewProviderVectorStore wraps an existing vector.Provider.
func NewProviderVectorStore(provider vector.Provider, vectorDimension int) *ProviderVectorStore {
	return &ProviderVectorStore{provider: provider, vectorDimension: vectorDimension}
}

func (s *ProviderVectorStore) collection(botID string) string {
	return "memories_" + botID
}

// Upsert stores one embedded memory, creating the bot's collection on
// first use.
func (s *ProviderVectorStore) Upsert(ctx context.Context, botID string, id string, content string, embedding []float32, metadata map[string]any) error {
	collection := s.collection(botID)
	if err := s.provider.CreateCollection(ctx, collection, s.vectorDimension); err != nil {
		return fmt.Errorf("repo: create collection for bot %s: %w", botID, err)
	}

	merged := map[string]any{"content": content}
	for k, v := range metadata {
		merged[k] = v
	}
	if err := s.provider.Upsert(ctx, collection, id, embedding, merged); err != nil {
		return fmt.Errorf("repo: upsert memory for bot %s: %w", botID, err)
	}
	return nil
}

// Search returns the bot's top-K memories above minSimilarity, ordered by
// score descending the way the underlying provider returns them.
func (s *ProviderVectorStore) Search(ctx context.Context, botID string, queryEmbedding []float32, topK int, minSimilarity float32) ([]vector.Result, error) {
	results, err := s.provider.Search(ctx, s.collection(botID), queryEmbedding, topK)
	if err != nil {
		return nil, fmt.Errorf("repo: search memories for bot %s: %w", botID, err)
	}

	filtered := make([]vector.Result, 0, len(results))
	for _, r := range results {
		if r.Score >= minSimilarity {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}
