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

// Package providerchain implements the ordered LLM-provider fallback
// chain: per-provider circuit breakers, failover-class error
// classification, and a single selected stream per request. The
// orchestrator holds no knowledge of concrete provider kinds; it only
// ever sees the model.LLM interface this chain selects.
package providerchain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kadirpekel/hector/pkg/model"
)

// Entry is one provider registered with the chain, in ascending
// priority order (lower Priority value is tried first).
type Entry struct {
	Name     string
	Provider model.LLM
	Priority int
}

// Config tunes the chain's circuit-breaker and queueing behavior (spec
// §8 defaults: breaker_fail_threshold=3, breaker_cool_down_ms=30000).
type Config struct {
	FailThreshold int
	CoolDown      time.Duration
	// RateLimitQueueMax is how long Complete waits and retries the same
	// provider once after a rate-limit-specific rejection, instead of
	// immediately advancing to the next provider. Zero disables
	// queueing, so rate limits are treated as ordinary failover errors.
	RateLimitQueueMax time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		FailThreshold:     3,
		CoolDown:          30 * time.Second,
		RateLimitQueueMax: 0,
	}
}

// Chain is an ordered list of LLM providers tried under circuit-breaker
// discipline. Entries are fixed at construction; Health state mutates as
// calls succeed or fail.
type Chain struct {
	entries []Entry
	health  map[string]*Health
	cfg     Config
}

// New builds a Chain from entries, sorted ascending by Priority.
func New(entries []Entry, cfg Config) *Chain {
	if cfg.FailThreshold <= 0 {
		cfg = DefaultConfig()
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	health := make(map[string]*Health, len(sorted))
	for _, e := range sorted {
		health[e.Name] = NewHealth(cfg.FailThreshold, cfg.CoolDown)
	}

	return &Chain{entries: sorted, health: health, cfg: cfg}
}

// ErrAllProvidersUnavailable is returned when every provider in the
// chain is Open or failed on this attempt.
type ErrAllProvidersUnavailable struct {
	Hint   string
	Causes map[string]error
}

func (e *ErrAllProvidersUnavailable) Error() string {
	return fmt.Sprintf("all providers unavailable: %s", e.Hint)
}

// Selection is the result of a successful provider pick: either a
// one-shot response (Complete) or a stream handle (SelectStream), plus
// whether a failover occurred.
type Selection struct {
	ProviderName    string
	FailoverWarning *FailoverWarning
}

// FailoverWarning names the provider actually used when it was not the
// chain's primary (priority-0) entry.
type FailoverWarning struct {
	From   string
	To     string
	Reason string
}

// StreamSelection is returned by SelectStream: the chosen provider,
// undriven, so the caller can consume it token by token and later report
// success/failure back to the chain via RecordStreamSuccess/Failure.
type StreamSelection struct {
	Selection
	Provider model.LLM
}

// SelectStream walks the chain in priority order, skipping providers
// whose breaker is Open (transitioning Open -> HalfOpen once the
// cool-down elapses), and returns the first available provider without
// making any call. Streaming selection never retries mid-stream: a
// mid-stream failure surfaces to the caller, which reports it via
// RecordStreamFailure; retrying is the caller's policy choice.
func (c *Chain) SelectStream(ctx context.Context) (*StreamSelection, error) {
	if len(c.entries) == 0 {
		return nil, &ErrAllProvidersUnavailable{Hint: "no providers configured"}
	}

	primary := c.entries[0].Name
	now := time.Now()

	for _, entry := range c.entries {
		h := c.health[entry.Name]
		if !h.AvailableAt(now) {
			continue
		}

		sel := Selection{ProviderName: entry.Name}
		if entry.Name != primary {
			sel.FailoverWarning = &FailoverWarning{
				From:   primary,
				To:     entry.Name,
				Reason: "primary provider unavailable",
			}
		}
		return &StreamSelection{Selection: sel, Provider: entry.Provider}, nil
	}

	return nil, &ErrAllProvidersUnavailable{Hint: "every configured provider's circuit is open"}
}

// CompleteResult is the outcome of a successful Complete call.
type CompleteResult struct {
	Selection
	Response *model.Response
}

// Complete performs a non-streaming one-shot call, iterating providers
// in priority order and skipping any whose breaker is Open. The first
// successful response is returned. A terminal-class error aborts
// immediately without trying the next provider; a failover-class error
// records the failure and advances.
func (c *Chain) Complete(ctx context.Context, req *model.Request) (*CompleteResult, error) {
	if len(c.entries) == 0 {
		return nil, &ErrAllProvidersUnavailable{Hint: "no providers configured"}
	}

	primary := c.entries[0].Name
	causes := make(map[string]error)

	for _, entry := range c.entries {
		h := c.health[entry.Name]
		if !h.AvailableAt(time.Now()) {
			continue
		}

		resp, callErr := c.callWithRateLimitQueue(ctx, entry, req)

		if callErr != nil {
			if !IsFailoverError(callErr) {
				return nil, fmt.Errorf("provider %s: terminal error: %w", entry.Name, callErr)
			}
			h.RecordFailure(callErr.Error())
			causes[entry.Name] = callErr
			continue
		}

		h.RecordSuccess()
		sel := Selection{ProviderName: entry.Name}
		if entry.Name != primary {
			sel.FailoverWarning = &FailoverWarning{From: primary, To: entry.Name, Reason: "primary provider unavailable"}
		}
		return &CompleteResult{Selection: sel, Response: resp}, nil
	}

	return nil, &ErrAllProvidersUnavailable{
		Hint:   "every configured provider is open or failing",
		Causes: causes,
	}
}

// callWithRateLimitQueue calls entry once, and once more after waiting
// out the configured queue timeout if the first call was rejected for
// rate limiting specifically. A zero RateLimitQueueMax disables queueing
// entirely, so a rate-limit error falls straight through to the normal
// failover-class handling in the caller.
func (c *Chain) callWithRateLimitQueue(ctx context.Context, entry Entry, req *model.Request) (*model.Response, error) {
	resp, err := call(ctx, entry.Provider, req)
	if err == nil || c.cfg.RateLimitQueueMax <= 0 || !IsRateLimitError(err) {
		return resp, err
	}

	select {
	case <-time.After(c.cfg.RateLimitQueueMax):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return call(ctx, entry.Provider, req)
}

// call performs a single non-streaming request against provider.
func call(ctx context.Context, provider model.LLM, req *model.Request) (*model.Response, error) {
	for r, err := range provider.GenerateContent(ctx, req, false) {
		return r, err
	}
	return nil, fmt.Errorf("provider returned no response")
}

// RecordStreamSuccess moves the named provider's breaker toward Closed.
func (c *Chain) RecordStreamSuccess(name string) {
	if h, ok := c.health[name]; ok {
		h.RecordSuccess()
	}
}

// RecordStreamFailure applies failover classification to err and, if
// failover-class, counts it toward the named provider's breaker.
// Terminal-class errors are not counted (the caller already surfaced
// them without trying further providers).
func (c *Chain) RecordStreamFailure(name string, err error) {
	if !IsFailoverError(err) {
		return
	}
	if h, ok := c.health[name]; ok {
		h.RecordFailure(err.Error())
	}
}

// Snapshot returns a HealthSnapshot per provider, in chain (priority)
// order.
func (c *Chain) Snapshot() []HealthSnapshot {
	snaps := make([]HealthSnapshot, 0, len(c.entries))
	for _, e := range c.entries {
		snaps = append(snaps, c.health[e.Name].Snapshot(e.Name))
	}
	return snaps
}

// Provider looks up a registered provider by name, for callers that
// already know which one they want (e.g. retrying the same provider).
func (c *Chain) Provider(name string) (model.LLM, bool) {
	for _, e := range c.entries {
		if e.Name == name {
			return e.Provider, true
		}
	}
	return nil, false
}
