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

package embedder

import (
	"context"
	"testing"
)

type fakeLegacyProvider struct {
	dim   int
	model string
}

func (f *fakeLegacyProvider) Embed(text string) ([]float32, error) {
	return []float32{float32(len(text)), 0, 0}, nil
}
func (f *fakeLegacyProvider) GetDimension() int   { return f.dim }
func (f *fakeLegacyProvider) GetModelName() string { return f.model }
func (f *fakeLegacyProvider) Close() error         { return nil }

func TestFromLegacy_EmbedDelegatesToProvider(t *testing.T) {
	e := FromLegacy(&fakeLegacyProvider{dim: 3, model: "nomic-embed-text"})

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3-dim vector, got %d", len(vec))
	}
	if e.Dimension() != 3 {
		t.Errorf("Dimension() = %d, want 3", e.Dimension())
	}
	if e.Model() != "nomic-embed-text" {
		t.Errorf("Model() = %q, want nomic-embed-text", e.Model())
	}
}

func TestFromLegacy_EmbedBatchCallsEmbedPerText(t *testing.T) {
	e := FromLegacy(&fakeLegacyProvider{dim: 3, model: "m"})

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	if vecs[1][0] != 2 {
		t.Errorf("vecs[1][0] = %v, want 2 (len of \"bb\")", vecs[1][0])
	}
}
