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
	"errors"
	"fmt"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hector/pkg/model"
)

// fakeLLM is a scripted model.LLM for exercising Chain without a network
// call. Each GenerateContent invocation consumes the next queued response
// or error.
type fakeLLM struct {
	name  string
	calls int
	err   error
	resp  *model.Response
}

func (f *fakeLLM) Name() string           { return f.name }
func (f *fakeLLM) Provider() model.Provider { return model.ProviderOpenAI }
func (f *fakeLLM) Close() error            { return nil }

func (f *fakeLLM) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		f.calls++
		if f.err != nil {
			yield(nil, f.err)
			return
		}
		yield(f.resp, nil)
	}
}

func okResponse(text string) *model.Response {
	return &model.Response{Content: &model.Content{}, TurnComplete: true}
}

func TestHealth_OpensAfterFailThreshold(t *testing.T) {
	h := NewHealth(3, time.Minute)

	require.True(t, h.AvailableAt(time.Now()))
	h.RecordFailure("boom")
	h.RecordFailure("boom")
	assert.True(t, h.AvailableAt(time.Now()))
	h.RecordFailure("boom")
	assert.False(t, h.AvailableAt(time.Now()))
}

func TestHealth_OpenTransitionsToHalfOpenAfterCoolDown(t *testing.T) {
	h := NewHealth(1, 10*time.Millisecond)
	h.RecordFailure("boom")
	require.False(t, h.AvailableAt(time.Now()))

	later := time.Now().Add(20 * time.Millisecond)
	assert.True(t, h.AvailableAt(later))
	snap := h.Snapshot("p")
	assert.Equal(t, CircuitHalfOpen, snap.CircuitState)
}

func TestHealth_HalfOpenSuccessCloses(t *testing.T) {
	h := NewHealth(1, 10*time.Millisecond)
	h.RecordFailure("boom")
	later := time.Now().Add(20 * time.Millisecond)
	require.True(t, h.AvailableAt(later))

	h.RecordSuccess()
	assert.Equal(t, CircuitClosed, h.Snapshot("p").CircuitState)
}

func TestHealth_HalfOpenFailureReopens(t *testing.T) {
	h := NewHealth(1, 10*time.Millisecond)
	h.RecordFailure("boom")
	later := time.Now().Add(20 * time.Millisecond)
	require.True(t, h.AvailableAt(later))

	h.RecordFailure("still broken")
	assert.False(t, h.AvailableAt(time.Now()))
}

func TestIsFailoverError_RateLimitAndServerErrorsFailover(t *testing.T) {
	assert.True(t, IsFailoverError(fmt.Errorf("API error (status 429): rate limit exceeded")))
	assert.True(t, IsFailoverError(fmt.Errorf("API error (status 503): service unavailable")))
	assert.True(t, IsFailoverError(errors.New("dial tcp: connection refused")))
	assert.True(t, IsFailoverError(errors.New("context deadline: timeout reading response")))
}

func TestIsFailoverError_ClientErrorsAreTerminal(t *testing.T) {
	assert.False(t, IsFailoverError(fmt.Errorf("API error (status 401): invalid api key")))
	assert.False(t, IsFailoverError(fmt.Errorf("API error (status 400): invalid request")))
	assert.False(t, IsFailoverError(errors.New("malformed response schema")))
}

func TestIsFailoverError_ContextCancellationIsTerminal(t *testing.T) {
	assert.False(t, IsFailoverError(context.Canceled))
	assert.False(t, IsFailoverError(context.DeadlineExceeded))
}

func TestIsFailoverError_NilIsFalse(t *testing.T) {
	assert.False(t, IsFailoverError(nil))
}

func TestIsRateLimitError_MatchesOnly429AndRateLimitMessages(t *testing.T) {
	assert.True(t, IsRateLimitError(fmt.Errorf("API error (status 429): rate limit exceeded")))
	assert.True(t, IsRateLimitError(errors.New("too many requests, slow down")))
	assert.False(t, IsRateLimitError(fmt.Errorf("API error (status 503): service unavailable")))
	assert.False(t, IsRateLimitError(errors.New("connection reset")))
	assert.False(t, IsRateLimitError(nil))
}

func TestChain_SelectStream_PicksPrimaryWhenHealthy(t *testing.T) {
	primary := &fakeLLM{name: "openai", resp: okResponse("hi")}
	backup := &fakeLLM{name: "anthropic", resp: okResponse("hi")}
	c := New([]Entry{{Name: "openai", Provider: primary, Priority: 0}, {Name: "anthropic", Provider: backup, Priority: 1}}, DefaultConfig())

	sel, err := c.SelectStream(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "openai", sel.ProviderName)
	assert.Nil(t, sel.FailoverWarning)
}

func TestChain_SelectStream_SkipsOpenPrimary(t *testing.T) {
	primary := &fakeLLM{name: "openai"}
	backup := &fakeLLM{name: "anthropic"}
	cfg := DefaultConfig()
	cfg.FailThreshold = 1
	c := New([]Entry{{Name: "openai", Provider: primary, Priority: 0}, {Name: "anthropic", Provider: backup, Priority: 1}}, cfg)

	c.RecordStreamFailure("openai", errors.New("connection reset"))

	sel, err := c.SelectStream(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "anthropic", sel.ProviderName)
	require.NotNil(t, sel.FailoverWarning)
	assert.Equal(t, "openai", sel.FailoverWarning.From)
	assert.Equal(t, "anthropic", sel.FailoverWarning.To)
}

func TestChain_SelectStream_AllOpenReturnsError(t *testing.T) {
	primary := &fakeLLM{name: "openai"}
	cfg := DefaultConfig()
	cfg.FailThreshold = 1
	c := New([]Entry{{Name: "openai", Provider: primary, Priority: 0}}, cfg)

	c.RecordStreamFailure("openai", errors.New("timeout"))

	_, err := c.SelectStream(context.Background())
	require.Error(t, err)
	var unavailable *ErrAllProvidersUnavailable
	assert.ErrorAs(t, err, &unavailable)
}

func TestChain_Complete_AdvancesOnFailoverError(t *testing.T) {
	primary := &fakeLLM{name: "openai", err: errors.New("API error (status 503): service unavailable")}
	backup := &fakeLLM{name: "anthropic", resp: okResponse("hi")}
	c := New([]Entry{{Name: "openai", Provider: primary, Priority: 0}, {Name: "anthropic", Provider: backup, Priority: 1}}, DefaultConfig())

	res, err := c.Complete(context.Background(), &model.Request{})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", res.ProviderName)
	require.NotNil(t, res.FailoverWarning)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, backup.calls)
}

func TestChain_Complete_TerminalErrorAbortsImmediately(t *testing.T) {
	primary := &fakeLLM{name: "openai", err: fmt.Errorf("API error (status 401): invalid api key")}
	backup := &fakeLLM{name: "anthropic", resp: okResponse("hi")}
	c := New([]Entry{{Name: "openai", Provider: primary, Priority: 0}, {Name: "anthropic", Provider: backup, Priority: 1}}, DefaultConfig())

	_, err := c.Complete(context.Background(), &model.Request{})
	require.Error(t, err)
	assert.Equal(t, 0, backup.calls)
}

// sequenceLLM scripts a distinct error (or nil, for success) per call,
// indexed by call order, for exercising the queue-then-retry path in
// Chain.Complete where a single provider is called more than once.
type sequenceLLM struct {
	name  string
	calls int
	errs  []error
	resp  *model.Response
}

func (f *sequenceLLM) Name() string             { return f.name }
func (f *sequenceLLM) Provider() model.Provider { return model.ProviderOpenAI }
func (f *sequenceLLM) Close() error             { return nil }

func (f *sequenceLLM) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		idx := f.calls
		f.calls++
		if idx < len(f.errs) && f.errs[idx] != nil {
			yield(nil, f.errs[idx])
			return
		}
		yield(f.resp, nil)
	}
}

func TestChain_Complete_QueuesRateLimitedProviderInsteadOfFailingOver(t *testing.T) {
	limited := fmt.Errorf("API error (status 429): rate limit exceeded")
	primary := &sequenceLLM{name: "openai", errs: []error{limited}, resp: okResponse("hi")}
	backup := &fakeLLM{name: "anthropic", resp: okResponse("backup")}
	cfg := DefaultConfig()
	cfg.RateLimitQueueMax = 5 * time.Millisecond
	c := New([]Entry{{Name: "openai", Provider: primary, Priority: 0}, {Name: "anthropic", Provider: backup, Priority: 1}}, cfg)

	res, err := c.Complete(context.Background(), &model.Request{})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.ProviderName)
	assert.Nil(t, res.FailoverWarning)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 0, backup.calls)
}

func TestChain_Complete_AdvancesWhenQueuedRetryAlsoRateLimited(t *testing.T) {
	limited := fmt.Errorf("API error (status 429): rate limit exceeded")
	primary := &sequenceLLM{name: "openai", errs: []error{limited, limited}}
	backup := &fakeLLM{name: "anthropic", resp: okResponse("backup")}
	cfg := DefaultConfig()
	cfg.RateLimitQueueMax = 5 * time.Millisecond
	c := New([]Entry{{Name: "openai", Provider: primary, Priority: 0}, {Name: "anthropic", Provider: backup, Priority: 1}}, cfg)

	res, err := c.Complete(context.Background(), &model.Request{})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", res.ProviderName)
	require.NotNil(t, res.FailoverWarning)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 1, backup.calls)
}

func TestChain_Complete_ZeroQueueMaxFailsOverImmediatelyOnRateLimit(t *testing.T) {
	limited := fmt.Errorf("API error (status 429): rate limit exceeded")
	primary := &sequenceLLM{name: "openai", errs: []error{limited}}
	backup := &fakeLLM{name: "anthropic", resp: okResponse("backup")}
	c := New([]Entry{{Name: "openai", Provider: primary, Priority: 0}, {Name: "anthropic", Provider: backup, Priority: 1}}, DefaultConfig())

	res, err := c.Complete(context.Background(), &model.Request{})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", res.ProviderName)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, backup.calls)
}

func TestChain_Snapshot_ReflectsBreakerState(t *testing.T) {
	primary := &fakeLLM{name: "openai"}
	cfg := DefaultConfig()
	cfg.FailThreshold = 1
	c := New([]Entry{{Name: "openai", Provider: primary, Priority: 0}}, cfg)

	c.RecordStreamFailure("openai", errors.New("rate limit"))

	snaps := c.Snapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, CircuitOpen, snaps[0].CircuitState)
}

func TestChain_RecordStreamFailure_IgnoresTerminalErrors(t *testing.T) {
	primary := &fakeLLM{name: "openai"}
	cfg := DefaultConfig()
	cfg.FailThreshold = 1
	c := New([]Entry{{Name: "openai", Provider: primary, Priority: 0}}, cfg)

	c.RecordStreamFailure("openai", errors.New("invalid api key"))

	sel, err := c.SelectStream(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "openai", sel.ProviderName)
}
