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

// Package eventbus implements the lifecycle-event broadcast channel that
// fans agent-tree events out to transport adapters (terminal renderer,
// socket, SSE stream). Publishing never blocks the orchestrator; a slow
// subscriber is handed a lag signal and continues from the next event
// rather than backpressuring the publisher.
package eventbus

// Type discriminates the Event payload. Carried on every transport as
// the envelope's "type" field.
type Type string

const (
	TypeAgentSpawned       Type = "agent_spawned"
	TypeAgentTextDelta     Type = "agent_text_delta"
	TypeAgentCompleted     Type = "agent_completed"
	TypeAgentFailed        Type = "agent_failed"
	TypeAgentCancelled     Type = "agent_cancelled"
	TypeBudgetUpdate       Type = "budget_update"
	TypeBudgetWarning      Type = "budget_warning"
	TypeBudgetExhausted    Type = "budget_exhausted"
	TypeDepthLimitReached  Type = "depth_limit_reached"
	TypeCycleDetected      Type = "cycle_detected"
	TypeSynthesisStarted   Type = "synthesis_started"
	TypeMemoryCreated      Type = "memory_created"
	TypeProviderFailover   Type = "provider_failover"
)

// Event is the tagged sum type carried by the bus. Exactly one of the
// typed payload fields is populated, matching Type.
type Event struct {
	Type Type

	AgentSpawned      *AgentSpawned
	AgentTextDelta    *AgentTextDelta
	AgentCompleted    *AgentCompleted
	AgentFailed       *AgentFailed
	AgentCancelled    *AgentCancelled
	BudgetUpdate      *BudgetUpdate
	BudgetWarning     *BudgetWarning
	BudgetExhausted   *BudgetExhausted
	DepthLimitReached *DepthLimitReached
	CycleDetected     *CycleDetected
	SynthesisStarted  *SynthesisStarted
	MemoryCreated     *MemoryCreated
	ProviderFailover  *ProviderFailover
}

// AgentSpawned announces a new node entering the agent tree.
type AgentSpawned struct {
	AgentID  string
	ParentID string // empty for the root agent
	Task     string
	Depth    int
	Index    int
	Total    int
}

// AgentTextDelta carries one streamed text chunk from an agent's LLM call.
type AgentTextDelta struct {
	AgentID string
	Text    string
}

// AgentCompleted announces a successful terminal state.
type AgentCompleted struct {
	AgentID       string
	ResultSummary string
	TokensUsed    int
	DurationMs    int64
}

// AgentFailed announces a failure, possibly followed by a retry.
type AgentFailed struct {
	AgentID   string
	Error     string
	WillRetry bool
}

// AgentCancelled announces a cancelled terminal state.
type AgentCancelled struct {
	AgentID string
	Reason  string
}

// BudgetUpdate reports the running token total for a request. Consecutive
// BudgetUpdate events for one request_id carry non-decreasing tokens_used.
type BudgetUpdate struct {
	RequestID   string
	TokensUsed  int
	BudgetTotal int
	Percentage  int
}

// BudgetWarning fires once per request when the warning fraction is
// first crossed.
type BudgetWarning struct {
	RequestID   string
	TokensUsed  int
	BudgetTotal int
}

// BudgetExhausted fires whenever the budget is at or past its total,
// listing which agents had completed versus were still in flight.
type BudgetExhausted struct {
	RequestID        string
	TokensUsed       int
	BudgetTotal      int
	CompletedAgents  []string
	IncompleteAgents []string
}

// DepthLimitReached fires when a spawn directive is discarded because it
// would exceed max_depth.
type DepthLimitReached struct {
	AgentID         string
	AttemptedDepth  int
	MaxDepth        int
}

// CycleDetected fires when a proposed task is skipped because it (or an
// equivalent normalized form) was already attempted at this depth or
// shallower.
type CycleDetected struct {
	AgentID          string
	CycleDescription string
}

// SynthesisStarted fires once, strictly after every child's terminal
// event, when the orchestrator begins the synthesis LLM call.
type SynthesisStarted struct {
	RequestID string
}

// MemoryCreated fires once per extracted memory record, tagged with the
// sub-agent that produced the underlying response.
type MemoryCreated struct {
	AgentID  string
	MemoryID string
}

// ProviderFailover fires when the fallback chain serves a request from a
// provider other than the primary.
type ProviderFailover struct {
	From   string
	To     string
	Reason string
}
