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

// Package orchestrator runs one user request through an agent tree: a
// root LLM call, optional decomposition into parallel or sequential
// sub-agents via a spawn directive, and synthesis of their results back
// into a single response. Every state transition is announced on an
// eventbus.Bus; the returned Result is the only thing callers need to
// persist.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/hector/pkg/agentctx"
	"github.com/kadirpekel/hector/pkg/eventbus"
	"github.com/kadirpekel/hector/pkg/model"
	"github.com/kadirpekel/hector/pkg/requestctx"
	"github.com/kadirpekel/hector/pkg/spawn"
)

// Status is the terminal state of an agent node. There is no exported
// Pending/Running state: transitions are observable only through the
// events published while a node is in flight.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrorKind classifies an OrchestratorError for callers that need to
// branch on it (e.g. a transport deciding whether to retry the whole
// request).
type ErrorKind string

const (
	ErrCancelled       ErrorKind = "cancelled"
	ErrBudgetExhausted ErrorKind = "budget_exhausted"
	ErrLLM             ErrorKind = "llm"
	ErrInternal        ErrorKind = "internal"
)

// Error is the root-level failure returned by Execute. Sub-agent
// failures never surface this way; they are absorbed into
// SubAgentResult and the request still completes.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("orchestrator: %s", e.Kind)
	}
	return fmt.Sprintf("orchestrator: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SubAgentResult is the outcome of one spawned sub-agent, as recorded
// for synthesis and for the caller's own bookkeeping. Exactly one of
// Response or Error is set, unless Status is Cancelled, in which case
// both may be nil.
type SubAgentResult struct {
	AgentID    string
	Task       string
	Status     Status
	Response   *string
	Error      *string
	TokensUsed int
	DurationMs int64
}

// AgentNode is one node of the executed agent tree, including any
// grandchildren a sub-agent spawned by emitting its own directive.
type AgentNode struct {
	AgentID    string
	ParentID   *string
	Task       string
	Depth      int
	Status     Status
	TokensUsed int
	DurationMs int64
	Children   []AgentNode
}

// MemoryContext is one completed sub-agent's response, tagged for the
// memory pipeline's per-agent extraction pass.
type MemoryContext struct {
	AgentID         string
	ResponseText    string
	TaskDescription string
}

// Result is everything Execute produces for one request.
type Result struct {
	// PreSpawnText is the prose that preceded a spawn fence, set only
	// when a (possibly discarded) directive was found.
	PreSpawnText    *string
	SubAgentResults []SubAgentResult
	// Synthesis is the text of the synthesis call, set only when
	// sub-agents actually ran.
	Synthesis       *string
	FinalResponse   string
	TotalTokensUsed int
	AgentTree       []AgentNode
	MemoryContexts  []MemoryContext
}

// Config controls the orchestrator's recursion and retry policy.
type Config struct {
	// MaxDepth is the deepest a spawned agent may sit at. Depth 0 is the
	// root; a directive from a depth-(MaxDepth) agent is discarded with
	// DepthLimitReached rather than honored.
	MaxDepth int
	// SubAgentRetryCount is how many times a failed sub-agent call is
	// retried before its result is recorded as Failed. Spec default: 1.
	SubAgentRetryCount int
}

// DefaultConfig matches the documented configuration defaults.
func DefaultConfig() Config {
	return Config{MaxDepth: 3, SubAgentRetryCount: 1}
}

// Orchestrator runs requests against a Config. It holds no per-request
// state; every field it touches at execution time is threaded through
// Execute's parameters.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Orchestrator. A nil logger falls back to slog.Default().
func New(cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultConfig().MaxDepth
	}
	if cfg.SubAgentRetryCount < 0 {
		cfg.SubAgentRetryCount = DefaultConfig().SubAgentRetryCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, logger: logger}
}

// Execute runs one user request: a root LLM call, optional decomposition
// into sub-agents, and synthesis. It returns a root-level *Error only for
// failures that abort the whole request (root LLM error, cancellation);
// every sub-agent failure is absorbed into the returned Result.
func (o *Orchestrator) Execute(ctx context.Context, provider model.LLM, ac *agentctx.Context, userMsg string, rc *requestctx.RequestContext, bus *eventbus.Bus) (*Result, error) {
	rootID := uuid.NewString()

	ac.RebuildSystemPrompt()
	ac.AddUserMessage(userMsg)

	bus.Publish(eventbus.Event{Type: eventbus.TypeAgentSpawned, AgentSpawned: &eventbus.AgentSpawned{
		AgentID: rootID,
		Task:    userMsg,
		Depth:   rc.Depth,
		Index:   0,
		Total:   1,
	}})

	run := o.runNode(ctx, provider, ac, rc, bus, rootID, nil)

	switch run.Status {
	case StatusCancelled:
		return nil, &Error{Kind: ErrCancelled, Err: errors.New("request cancelled")}
	case StatusFailed:
		msg := "sub-agent failed"
		if run.Error != nil {
			msg = *run.Error
		}
		return nil, &Error{Kind: ErrLLM, Err: errors.New(msg)}
	}

	response := ""
	if run.Response != nil {
		response = *run.Response
	}

	rootNode := AgentNode{
		AgentID:    rootID,
		Task:       userMsg,
		Depth:      rc.Depth,
		Status:     StatusCompleted,
		TokensUsed: run.TokensUsed,
		DurationMs: run.DurationMs,
		Children:   run.Children,
	}

	return &Result{
		PreSpawnText:    run.PreSpawnText,
		SubAgentResults: run.SubResults,
		Synthesis:       run.Synthesis,
		FinalResponse:   response,
		TotalTokensUsed: rc.Budget.TokensUsed(),
		AgentTree:       []AgentNode{rootNode},
		MemoryContexts:  memoryContextsFrom(run.SubResults),
	}, nil
}

// nodeRun is the internal result of executing one agent node (root or
// sub-agent), before the caller reshapes it into a SubAgentResult or the
// top-level Result.
type nodeRun struct {
	Status       Status
	Response     *string
	Error        *string
	PreSpawnText *string
	Synthesis    *string
	TokensUsed   int
	DurationMs   int64
	SubResults   []SubAgentResult
	Children     []AgentNode
}

// runNode drives one agent's LLM call (up to 1+*retryBudget attempts when
// retryBudget is non-nil, a single attempt when it is nil), then
// recursively handles any spawn directive in its response. The same
// function executes the root (retryBudget nil, called once from Execute)
// and every sub-agent (retryBudget from cfg.SubAgentRetryCount),
// which is what lets a sub-agent itself decompose further until MaxDepth
// is reached.
func (o *Orchestrator) runNode(ctx context.Context, provider model.LLM, ac *agentctx.Context, rc *requestctx.RequestContext, bus *eventbus.Bus, agentID string, retryBudget *int) nodeRun {
	start := time.Now()
	maxAttempts := 1
	if retryBudget != nil {
		maxAttempts = 1 + *retryBudget
	}

	var text string
	var tokens int
	var budgetExhausted bool
	var cerr *Error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-rc.Cancellation.Done():
			bus.Publish(eventbus.Event{Type: eventbus.TypeAgentCancelled, AgentCancelled: &eventbus.AgentCancelled{
				AgentID: agentID,
				Reason:  "request cancelled by user",
			}})
			return nodeRun{Status: StatusCancelled, DurationMs: time.Since(start).Milliseconds()}
		default:
		}

		text, tokens, budgetExhausted, cerr = o.collectStreamWithEvents(ctx, provider, buildRequest(ac), rc, bus, agentID)

		if cerr == nil {
			break
		}
		if cerr.Kind == ErrCancelled {
			return nodeRun{Status: StatusCancelled, DurationMs: time.Since(start).Milliseconds()}
		}

		willRetry := attempt+1 < maxAttempts
		errMsg := cerr.Err.Error()
		bus.Publish(eventbus.Event{Type: eventbus.TypeAgentFailed, AgentFailed: &eventbus.AgentFailed{
			AgentID:   agentID,
			Error:     errMsg,
			WillRetry: willRetry,
		}})
		if !willRetry {
			return nodeRun{Status: StatusFailed, Error: &errMsg, DurationMs: time.Since(start).Milliseconds()}
		}
		o.logger.Debug("sub-agent failed, retrying once", "agent_id", agentID, "error", errMsg)
	}

	ac.AddAssistantMessage(text)
	duration := time.Since(start).Milliseconds()

	complete := func(responseText string, tokensUsed int, preSpawnText, synthesis *string, subResults []SubAgentResult, children []AgentNode) nodeRun {
		d := time.Since(start).Milliseconds()
		bus.Publish(eventbus.Event{Type: eventbus.TypeAgentCompleted, AgentCompleted: &eventbus.AgentCompleted{
			AgentID:       agentID,
			ResultSummary: truncateSummary(responseText, 200),
			TokensUsed:    tokensUsed,
			DurationMs:    d,
		}})
		resp := responseText
		return nodeRun{
			Status:       StatusCompleted,
			Response:     &resp,
			PreSpawnText: preSpawnText,
			Synthesis:    synthesis,
			TokensUsed:   tokensUsed,
			DurationMs:   d,
			SubResults:   subResults,
			Children:     children,
		}
	}

	if budgetExhausted {
		return complete(text, tokens, nil, nil, nil, nil)
	}

	preText, directive, perr := spawn.Parse(text)
	if perr != nil {
		o.logger.Warn("malformed spawn directive, treating as a direct response", "agent_id", agentID, "error", perr)
		directive = nil
	}

	if directive == nil {
		return complete(text, tokens, nil, nil, nil, nil)
	}

	if rc.Depth >= o.cfg.MaxDepth {
		bus.Publish(eventbus.Event{Type: eventbus.TypeDepthLimitReached, DepthLimitReached: &eventbus.DepthLimitReached{
			AgentID:        agentID,
			AttemptedDepth: rc.Depth + 1,
			MaxDepth:       o.cfg.MaxDepth,
		}})
		return complete(text, tokens, &preText, nil, nil, nil)
	}

	var validTasks []string
	for _, t := range directive.Tasks {
		cr := rc.CycleDetector.CheckAndRegister(t, rc.Depth+1)
		if cr.Cycle {
			bus.Publish(eventbus.Event{Type: eventbus.TypeCycleDetected, CycleDetected: &eventbus.CycleDetected{
				AgentID:          agentID,
				CycleDescription: cr.Description,
			}})
			o.logger.Warn("cycle detected, skipping task", "agent_id", agentID, "task", t)
			continue
		}
		validTasks = append(validTasks, t)
	}

	if len(validTasks) == 0 {
		return complete(text, tokens, &preText, nil, nil, nil)
	}

	var subResults []SubAgentResult
	var children []AgentNode
	switch directive.Mode {
	case spawn.ModeParallel:
		subResults, children = o.executeParallel(ctx, provider, ac, rc, bus, agentID, validTasks)
	case spawn.ModeSequential:
		subResults, children = o.executeSequential(ctx, provider, ac, rc, bus, agentID, validTasks)
	}

	bus.Publish(eventbus.Event{Type: eventbus.TypeSynthesisStarted, SynthesisStarted: &eventbus.SynthesisStarted{
		RequestID: rc.RequestID,
	}})

	synthPrompt := buildSynthesisPrompt(subResults)
	ac.AddUserMessage(synthPrompt)
	synthText, synthTokens, _, serr := o.collectStreamWithEvents(ctx, provider, buildRequest(ac), rc, bus, agentID)
	if serr != nil {
		if serr.Kind == ErrCancelled {
			return nodeRun{Status: StatusCancelled, DurationMs: time.Since(start).Milliseconds(), SubResults: subResults, Children: children}
		}
		errMsg := serr.Err.Error()
		bus.Publish(eventbus.Event{Type: eventbus.TypeAgentFailed, AgentFailed: &eventbus.AgentFailed{
			AgentID: agentID, Error: errMsg, WillRetry: false,
		}})
		return nodeRun{Status: StatusFailed, Error: &errMsg, DurationMs: time.Since(start).Milliseconds(), SubResults: subResults, Children: children}
	}

	ac.AddAssistantMessage(synthText)
	finalTokens := tokens + synthTokens
	synthCopy := synthText
	run := complete(synthText, finalTokens, nil, &synthCopy, subResults, children)
	run.PreSpawnText = strPtrOrNil(preText)
	return run
}

// executeParallel runs every task concurrently, each through runNode
// with retry enabled. A sub-agent panic is recovered and recorded as a
// Failed result rather than crashing the request. Results preserve the
// caller's task order regardless of completion order.
func (o *Orchestrator) executeParallel(ctx context.Context, provider model.LLM, ac *agentctx.Context, rc *requestctx.RequestContext, bus *eventbus.Bus, parentID string, tasks []string) ([]SubAgentResult, []AgentNode) {
	total := len(tasks)
	results := make([]SubAgentResult, total)
	nodes := make([]AgentNode, total)

	var wg sync.WaitGroup
	for i, task := range tasks {
		i, task := i, task
		childRC := rc.Child()
		agentID := uuid.NewString()
		childAC := ac.ChildForTask(task, childRC.Depth)
		parent := parentID

		bus.Publish(eventbus.Event{Type: eventbus.TypeAgentSpawned, AgentSpawned: &eventbus.AgentSpawned{
			AgentID:  agentID,
			ParentID: parent,
			Task:     task,
			Depth:    childRC.Depth,
			Index:    i,
			Total:    total,
		}})

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errMsg := fmt.Sprintf("task panicked: %v", r)
					bus.Publish(eventbus.Event{Type: eventbus.TypeAgentFailed, AgentFailed: &eventbus.AgentFailed{
						AgentID: agentID, Error: errMsg, WillRetry: false,
					}})
					results[i] = SubAgentResult{AgentID: agentID, Task: task, Status: StatusFailed, Error: &errMsg}
					nodes[i] = AgentNode{AgentID: agentID, ParentID: &parent, Task: task, Depth: childRC.Depth, Status: StatusFailed}
				}
			}()

			retry := o.cfg.SubAgentRetryCount
			run := o.runNode(ctx, provider, childAC, childRC, bus, agentID, &retry)
			results[i] = SubAgentResult{
				AgentID: agentID, Task: task, Status: run.Status,
				Response: run.Response, Error: run.Error,
				TokensUsed: run.TokensUsed, DurationMs: run.DurationMs,
			}
			nodes[i] = AgentNode{
				AgentID: agentID, ParentID: &parent, Task: task, Depth: childRC.Depth,
				Status: run.Status, TokensUsed: run.TokensUsed, DurationMs: run.DurationMs, Children: run.Children,
			}
		}()
	}

	wg.Wait()
	return results, nodes
}

// executeSequential runs tasks one at a time, checking cancellation and
// budget between tasks, and carrying the immediately preceding task's
// response into the next task's context.
func (o *Orchestrator) executeSequential(ctx context.Context, provider model.LLM, ac *agentctx.Context, rc *requestctx.RequestContext, bus *eventbus.Bus, parentID string, tasks []string) ([]SubAgentResult, []AgentNode) {
	total := len(tasks)
	var results []SubAgentResult
	var nodes []AgentNode

	for i, task := range tasks {
		if rc.IsCancelled() {
			o.logger.Debug("sequential execution cancelled", "after_task", i)
			break
		}
		if rc.Budget.Remaining() == 0 {
			completed := make([]string, 0, len(results))
			for _, r := range results {
				completed = append(completed, r.AgentID)
			}
			bus.Publish(eventbus.Event{Type: eventbus.TypeBudgetExhausted, BudgetExhausted: &eventbus.BudgetExhausted{
				RequestID:       rc.RequestID,
				TokensUsed:      rc.Budget.TokensUsed(),
				BudgetTotal:     rc.Budget.Total(),
				CompletedAgents: completed,
			}})
			o.logger.Debug("budget exhausted, stopping sequential execution", "after_task", i)
			break
		}

		childRC := rc.Child()
		agentID := uuid.NewString()
		childAC := ac.ChildForTask(task, childRC.Depth)
		parent := parentID

		if len(results) > 0 {
			if prev := results[len(results)-1]; prev.Response != nil {
				childAC.AddUserMessage("Previous sub-agent result for context:\n" + *prev.Response)
			}
		}

		bus.Publish(eventbus.Event{Type: eventbus.TypeAgentSpawned, AgentSpawned: &eventbus.AgentSpawned{
			AgentID:  agentID,
			ParentID: parent,
			Task:     task,
			Depth:    childRC.Depth,
			Index:    i,
			Total:    total,
		}})

		retry := o.cfg.SubAgentRetryCount
		run := o.runNode(ctx, provider, childAC, childRC, bus, agentID, &retry)

		results = append(results, SubAgentResult{
			AgentID: agentID, Task: task, Status: run.Status,
			Response: run.Response, Error: run.Error,
			TokensUsed: run.TokensUsed, DurationMs: run.DurationMs,
		})
		nodes = append(nodes, AgentNode{
			AgentID: agentID, ParentID: &parent, Task: task, Depth: childRC.Depth,
			Status: run.Status, TokensUsed: run.TokensUsed, DurationMs: run.DurationMs, Children: run.Children,
		})
	}

	return results, nodes
}

// collectStreamWithEvents drives one streaming LLM call to completion,
// publishing AgentTextDelta and budget events as text arrives. It
// returns the accumulated text, an estimated-then-reconciled token
// count, whether the budget was exhausted mid-stream (in which case the
// caller must skip spawn detection on the partial text), and a
// root-abort error for cancellation or a terminal LLM failure.
func (o *Orchestrator) collectStreamWithEvents(ctx context.Context, provider model.LLM, req *model.Request, rc *requestctx.RequestContext, bus *eventbus.Bus, agentID string) (string, int, bool, *Error) {
	var deltaAccum strings.Builder
	var finalText string
	var sawFinal bool
	var totalTokens int
	var usage *model.Usage

	collected := func() string {
		if sawFinal {
			return finalText
		}
		return deltaAccum.String()
	}

	for resp, err := range provider.GenerateContent(ctx, req, true) {
		if rc.IsCancelled() {
			bus.Publish(eventbus.Event{Type: eventbus.TypeAgentCancelled, AgentCancelled: &eventbus.AgentCancelled{
				AgentID: agentID,
				Reason:  "request cancelled during streaming",
			}})
			return collected(), totalTokens, false, &Error{Kind: ErrCancelled, Err: errors.New("cancelled during streaming")}
		}
		if err != nil {
			return collected(), totalTokens, false, &Error{Kind: ErrLLM, Err: err}
		}
		if resp == nil {
			continue
		}
		if resp.Usage != nil {
			usage = resp.Usage
		}

		if !resp.Partial {
			// The aggregated final frame is for persistence, not display:
			// its text replaces (not appends to) the streamed deltas.
			finalText = resp.TextContent()
			sawFinal = true
			continue
		}

		text := resp.TextContent()
		if text == "" {
			continue
		}
		deltaAccum.WriteString(text)

		bus.Publish(eventbus.Event{Type: eventbus.TypeAgentTextDelta, AgentTextDelta: &eventbus.AgentTextDelta{
			AgentID: agentID,
			Text:    text,
		}})

		chunkTokens := len(text) / 4
		if chunkTokens < 1 {
			chunkTokens = 1
		}
		totalTokens += chunkTokens

		status := rc.Budget.AddTokens(chunkTokens)
		bus.Publish(eventbus.Event{Type: eventbus.TypeBudgetUpdate, BudgetUpdate: &eventbus.BudgetUpdate{
			RequestID:   rc.RequestID,
			TokensUsed:  rc.Budget.TokensUsed(),
			BudgetTotal: rc.Budget.Total(),
			Percentage:  rc.Budget.Percentage(),
		}})

		switch status {
		case requestctx.BudgetWarning:
			bus.Publish(eventbus.Event{Type: eventbus.TypeBudgetWarning, BudgetWarning: &eventbus.BudgetWarning{
				RequestID:   rc.RequestID,
				TokensUsed:  rc.Budget.TokensUsed(),
				BudgetTotal: rc.Budget.Total(),
			}})
		case requestctx.BudgetExhausted:
			bus.Publish(eventbus.Event{Type: eventbus.TypeBudgetExhausted, BudgetExhausted: &eventbus.BudgetExhausted{
				RequestID:        rc.RequestID,
				TokensUsed:       rc.Budget.TokensUsed(),
				BudgetTotal:      rc.Budget.Total(),
				IncompleteAgents: []string{agentID},
			}})
			return deltaAccum.String(), totalTokens, true, nil
		}
	}

	if usage != nil && usage.TotalTokens > totalTokens {
		diff := usage.TotalTokens - totalTokens
		rc.Budget.AddTokens(diff)
		totalTokens = usage.TotalTokens
	}

	return collected(), totalTokens, false, nil
}

func buildRequest(ac *agentctx.Context) *model.Request {
	cfg := &model.GenerateConfig{}
	if ac.Config.Temperature != 0 {
		t := ac.Config.Temperature
		cfg.Temperature = &t
	}
	if ac.Config.MaxOutputTokens != 0 {
		m := ac.Config.MaxOutputTokens
		cfg.MaxTokens = &m
	}
	return &model.Request{
		Messages:          ac.BuildMessages(),
		Config:            cfg,
		SystemInstruction: ac.SystemPrompt,
	}
}

// buildSynthesisPrompt renders sub-agent results as an XML block the
// root agent is asked to weave into one cohesive answer.
func buildSynthesisPrompt(results []SubAgentResult) string {
	var b strings.Builder
	b.WriteString("<sub_agent_results>\n")
	for _, r := range results {
		fmt.Fprintf(&b, "  <result task=%q status=%q>\n", xmlEscape(r.Task), r.Status)
		switch {
		case r.Response != nil:
			fmt.Fprintf(&b, "    %s\n", strings.TrimSpace(*r.Response))
		case r.Error != nil:
			fmt.Fprintf(&b, "    Error: %s\n", strings.TrimSpace(*r.Error))
		default:
			b.WriteString("    (no output)\n")
		}
		b.WriteString("  </result>\n")
	}
	b.WriteString("</sub_agent_results>\n\n")
	b.WriteString("Based on these sub-agent results, synthesize a cohesive response that integrates all findings. Address any gaps from failed sub-agents.")
	return b.String()
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", `"`, "&quot;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func truncateSummary(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func memoryContextsFrom(results []SubAgentResult) []MemoryContext {
	var out []MemoryContext
	for _, r := range results {
		if r.Status != StatusCompleted || r.Response == nil {
			continue
		}
		out = append(out, MemoryContext{
			AgentID:         r.AgentID,
			ResponseText:    *r.Response,
			TaskDescription: r.Task,
		})
	}
	return out
}
