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

import "context"

// legacyProvider is the shape of pkg/embedders.EmbedderProvider. It is
// declared structurally here, rather than imported, so this package does
// not depend on the legacy registry package.
type legacyProvider interface {
	Embed(text string) ([]float32, error)
	GetDimension() int
	GetModelName() string
	Close() error
}

// FromLegacy adapts a pkg/embedders.EmbedderProvider (synchronous,
// context-less) to the context-aware Embedder interface this package's
// consumers expect. EmbedBatch has no batched legacy counterpart, so it
// calls Embed once per text.
func FromLegacy(p legacyProvider) Embedder {
	return &legacyAdapter{p: p}
}

type legacyAdapter struct {
	p legacyProvider
}

func (a *legacyAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.p.Embed(text)
}

func (a *legacyAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := a.p.Embed(text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (a *legacyAdapter) Dimension() int { return a.p.GetDimension() }

func (a *legacyAdapter) Model() string { return a.p.GetModelName() }

func (a *legacyAdapter) Close() error { return a.p.Close() }
