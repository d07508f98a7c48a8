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
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kadirpekel/hector/pkg/agentctx"
	"github.com/kadirpekel/hector/pkg/vector"
)

// relevanceHalfLife is how long it takes a memory's time-decay factor to
// fall to 0.5, independent of its importance weight.
const relevanceHalfLife = 30 * 24 * time.Hour

// Recall embeds userMsg, searches botID's vector store for similar
// memories, and attaches the scored results to ac. A failure to embed or
// search degrades to zero recalled memories rather than failing the
// request, matching the graceful-degradation behavior this pipeline is
// grounded on: a missing or unreachable vector store should not block the
// conversation.
func (p *Pipeline) Recall(ctx context.Context, botID string, userMsg string, ac *agentctx.Context) error {
	embedding, err := p.embedder.Embed(ctx, userMsg)
	if err != nil {
		p.logger.Warn("memory recall: embedding failed, proceeding without recall", "bot_id", botID, "error", err)
		return nil
	}

	results, err := p.vectorStore.Search(ctx, botID, embedding, p.cfg.TopK, p.cfg.MinSimilarity)
	if err != nil {
		p.logger.Warn("memory recall: vector search failed, proceeding without recall", "bot_id", botID, "error", err)
		return nil
	}
	if len(results) == 0 {
		return nil
	}

	recalled := make([]agentctx.RecalledMemory, 0, len(results))
	for _, r := range results {
		recalled = append(recalled, toRecalledMemory(r))
	}

	sort.Slice(recalled, func(i, j int) bool {
		return recalled[i].RelevanceScore > recalled[j].RelevanceScore
	})

	ac.SetRecalledMemories(recalled)
	return nil
}

func toRecalledMemory(r vector.Result) agentctx.RecalledMemory {
	category, _ := r.Metadata["category"].(string)
	provenance, _ := r.Metadata["provenance"].(string)
	importance := metadataFloat(r.Metadata, "importance")
	age := metadataAge(r.Metadata, "created_at")

	return agentctx.RecalledMemory{
		Memory: agentctx.Memory{
			ID:         r.ID,
			Content:    r.Content,
			Category:   category,
			Importance: importance,
		},
		RelevanceScore: relevanceScore(float64(r.Score), age, importance),
		Provenance:     provenance,
	}
}

// relevanceScore blends retrieval similarity with a time-decay factor and
// the memory's own importance weight. Similarity dominates since it is
// what made the hit relevant to this specific turn; decay and importance
// act as tie-breakers among similarly-scored hits.
func relevanceScore(similarity float64, age time.Duration, importance float64) float64 {
	decay := math.Exp(-float64(age) / float64(relevanceHalfLife) * math.Ln2)
	score := 0.6*similarity + 0.2*decay + 0.2*importance
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func metadataFloat(metadata map[string]any, key string) float64 {
	switch v := metadata[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%f", &f); err == nil {
			return f
		}
	}
	return 0
}

func metadataAge(metadata map[string]any, key string) time.Duration {
	s, _ := metadata[key].(string)
	if s == "" {
		return 0
	}
	created, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	if age := time.Since(created); age > 0 {
		return age
	}
	return 0
}
