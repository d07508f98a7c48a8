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

package config

import "fmt"

// OrchestratorConfig bounds and tunes a bot's sub-agent orchestration: how
// deep spawned agents may recurse, how the shared token budget is enforced,
// how the lifecycle event bus is sized, and how the LLM provider fallback
// chain and memory recall behave.
type OrchestratorConfig struct {
	// MaxDepth is the maximum sub-agent recursion depth. The root
	// conversation is depth 0; a spawned agent is depth 1, a spawn of that
	// agent is depth 2, and so on.
	MaxDepth int `yaml:"max_depth,omitempty" json:"max_depth,omitempty"`

	// RequestBudgetTotal is the total token budget shared across the root
	// conversation and every sub-agent it spawns, for a single request.
	RequestBudgetTotal int `yaml:"request_budget_total,omitempty" json:"request_budget_total,omitempty"`

	// BudgetWarningFraction is the fraction of RequestBudgetTotal at which
	// a budget warning event is published, ahead of outright exhaustion.
	BudgetWarningFraction float64 `yaml:"budget_warning_fraction,omitempty" json:"budget_warning_fraction,omitempty"`

	// EventBusCapacity is the buffered channel size for each lifecycle
	// event subscriber.
	EventBusCapacity int `yaml:"event_bus_capacity,omitempty" json:"event_bus_capacity,omitempty"`

	// BreakerFailThreshold is the number of consecutive provider failures
	// that trip the fallback chain's circuit breaker for that provider.
	BreakerFailThreshold int `yaml:"breaker_fail_threshold,omitempty" json:"breaker_fail_threshold,omitempty"`

	// BreakerCoolDownMS is how long a tripped provider stays excluded from
	// the fallback chain before being retried, in milliseconds.
	BreakerCoolDownMS int `yaml:"breaker_cool_down_ms,omitempty" json:"breaker_cool_down_ms,omitempty"`

	// RateLimitQueueMaxMS is how long the fallback chain waits and
	// retries the same provider once after a 429/rate-limit rejection,
	// before treating it as an ordinary failover and advancing to the
	// next provider. Zero disables queueing.
	RateLimitQueueMaxMS int `yaml:"rate_limit_queue_max_ms,omitempty" json:"rate_limit_queue_max_ms,omitempty"`

	// SubAgentRetryCount is how many times a failed spawned sub-agent is
	// retried before its failure is folded into the parent's result.
	SubAgentRetryCount int `yaml:"sub_agent_retry_count,omitempty" json:"sub_agent_retry_count,omitempty"`

	// RecallTopK is the number of candidate memories fetched per recall.
	RecallTopK int `yaml:"recall_top_k,omitempty" json:"recall_top_k,omitempty"`

	// RecallMinSimilarity discards recall candidates scoring below this
	// threshold before relevance scoring is applied.
	RecallMinSimilarity float64 `yaml:"recall_min_similarity,omitempty" json:"recall_min_similarity,omitempty"`
}

// DefaultOrchestratorConfig returns the orchestrator defaults used when a
// config omits the orchestrator section entirely.
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		MaxDepth:              3,
		RequestBudgetTotal:    200000,
		BudgetWarningFraction: 0.8,
		EventBusCapacity:      1024,
		BreakerFailThreshold:  3,
		BreakerCoolDownMS:     30000,
		SubAgentRetryCount:    1,
		RecallTopK:            10,
		RecallMinSimilarity:   0.3,
	}
}

// SetDefaults fills in zero-valued fields with their orchestrator defaults.
func (c *OrchestratorConfig) SetDefaults() {
	d := DefaultOrchestratorConfig()
	if c.MaxDepth == 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.RequestBudgetTotal == 0 {
		c.RequestBudgetTotal = d.RequestBudgetTotal
	}
	if c.BudgetWarningFraction == 0 {
		c.BudgetWarningFraction = d.BudgetWarningFraction
	}
	if c.EventBusCapacity == 0 {
		c.EventBusCapacity = d.EventBusCapacity
	}
	if c.BreakerFailThreshold == 0 {
		c.BreakerFailThreshold = d.BreakerFailThreshold
	}
	if c.BreakerCoolDownMS == 0 {
		c.BreakerCoolDownMS = d.BreakerCoolDownMS
	}
	if c.SubAgentRetryCount == 0 {
		c.SubAgentRetryCount = d.SubAgentRetryCount
	}
	if c.RecallTopK == 0 {
		c.RecallTopK = d.RecallTopK
	}
	if c.RecallMinSimilarity == 0 {
		c.RecallMinSimilarity = d.RecallMinSimilarity
	}
}

// Validate checks the OrchestratorConfig for errors.
func (c *OrchestratorConfig) Validate() error {
	if c.MaxDepth < 1 {
		return fmt.Errorf("orchestrator.max_depth must be at least 1")
	}
	if c.RequestBudgetTotal < 1 {
		return fmt.Errorf("orchestrator.request_budget_total must be positive")
	}
	if c.BudgetWarningFraction <= 0 || c.BudgetWarningFraction > 1 {
		return fmt.Errorf("orchestrator.budget_warning_fraction must be in (0, 1]")
	}
	if c.EventBusCapacity < 1 {
		return fmt.Errorf("orchestrator.event_bus_capacity must be positive")
	}
	if c.BreakerFailThreshold < 1 {
		return fmt.Errorf("orchestrator.breaker_fail_threshold must be positive")
	}
	if c.BreakerCoolDownMS < 0 {
		return fmt.Errorf("orchestrator.breaker_cool_down_ms must not be negative")
	}
	if c.RateLimitQueueMaxMS < 0 {
		return fmt.Errorf("orchestrator.rate_limit_queue_max_ms must not be negative")
	}
	if c.SubAgentRetryCount < 0 {
		return fmt.Errorf("orchestrator.sub_agent_retry_count must not be negative")
	}
	if c.RecallTopK < 0 {
		return fmt.Errorf("orchestrator.recall_top_k must not be negative")
	}
	if c.RecallMinSimilarity < 0 || c.RecallMinSimilarity > 1 {
		return fmt.Errorf("orchestrator.recall_min_similarity must be in [0, 1]")
	}
	return nil
}
