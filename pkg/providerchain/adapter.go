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

package providerchain

import (
	"context"
	"iter"

	"github.com/kadirpekel/hector/pkg/model"
)

// LLM adapts a Chain to the model.LLM interface, so the orchestrator can
// treat an entire fallback chain as a single provider. Every call selects
// a provider fresh: streaming calls use SelectStream and report the
// outcome back to the chain's breakers once the stream is drained;
// non-streaming calls delegate directly to Complete, which already walks
// the chain internally.
type LLM struct {
	chain *Chain
	name  string
}

// NewLLM wraps chain as a model.LLM. name is the identifier reported by
// Name(), typically the bot or role this chain serves.
func NewLLM(chain *Chain, name string) *LLM {
	return &LLM{chain: chain, name: name}
}

func (l *LLM) Name() string { return l.name }

func (l *LLM) Provider() model.Provider { return model.ProviderUnknown }

func (l *LLM) Close() error { return nil }

// GenerateContent satisfies model.LLM. For stream=false it delegates to
// Chain.Complete, which already tries every provider in order. For
// stream=true it selects one provider via SelectStream and drives its
// stream directly, recording success or failure against that provider's
// breaker once the stream ends; a failed or exhausted stream is not
// retried against the next provider, matching SelectStream's documented
// no-mid-stream-retry contract.
func (l *LLM) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	if !stream {
		return func(yield func(*model.Response, error) bool) {
			result, err := l.chain.Complete(ctx, req)
			if err != nil {
				yield(nil, err)
				return
			}
			yield(result.Response, nil)
		}
	}

	return func(yield func(*model.Response, error) bool) {
		sel, err := l.chain.SelectStream(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		failed := false
		for resp, callErr := range sel.Provider.GenerateContent(ctx, req, true) {
			if callErr != nil {
				failed = true
				l.chain.RecordStreamFailure(sel.ProviderName, callErr)
				if !yield(nil, callErr) {
					return
				}
				continue
			}
			if !yield(resp, nil) {
				return
			}
		}
		if !failed {
			l.chain.RecordStreamSuccess(sel.ProviderName)
		}
	}
}
