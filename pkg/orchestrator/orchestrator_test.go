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

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hector/pkg/agentctx"
	"github.com/kadirpekel/hector/pkg/eventbus"
	"github.com/kadirpekel/hector/pkg/model"
	"github.com/kadirpekel/hector/pkg/requestctx"
)

// chunk is one scripted streaming response.
type chunk struct {
	text string
	err  error
}

// scriptedLLM serves one scripted call's worth of chunks per
// GenerateContent invocation, in FIFO order across calls. Safe for
// concurrent use by parallel sub-agents.
type scriptedLLM struct {
	mu      sync.Mutex
	scripts [][]chunk
	calls   int
}

func newScriptedLLM(scripts ...[]chunk) *scriptedLLM {
	return &scriptedLLM{scripts: scripts}
}

func (f *scriptedLLM) Name() string             { return "scripted" }
func (f *scriptedLLM) Provider() model.Provider { return model.ProviderOpenAI }
func (f *scriptedLLM) Close() error             { return nil }

func (f *scriptedLLM) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	var script []chunk
	if idx < len(f.scripts) {
		script = f.scripts[idx]
	}
	f.mu.Unlock()

	return func(yield func(*model.Response, error) bool) {
		for _, c := range script {
			if c.err != nil {
				if !yield(nil, c.err) {
					return
				}
				continue
			}
			resp := &model.Response{
				Content: &model.Content{Parts: []a2a.Part{a2a.TextPart{Text: c.text}}},
			}
			if !yield(resp, nil) {
				return
			}
		}
	}
}

func textChunks(s string) []chunk {
	return []chunk{{text: s}}
}

func newTestAgentCtx(t *testing.T) *agentctx.Context {
	t.Helper()
	ac, err := agentctx.New(
		agentctx.Config{BotID: "bot1", DisplayName: "Botty", Model: "gpt-4o"},
		"You are helpful.", "", "", nil, 0, "gpt-4o",
	)
	require.NoError(t, err)
	return ac
}

func drainBus(sub *eventbus.Subscription) []eventbus.Event {
	var events []eventbus.Event
	for {
		select {
		case e := <-sub.Events():
			events = append(events, e)
		default:
			return events
		}
	}
}

func eventsOfType(events []eventbus.Event, t eventbus.Type) []eventbus.Event {
	var out []eventbus.Event
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestExecute_DirectResponseNoSpawn(t *testing.T) {
	llm := newScriptedLLM(textChunks("Hello there, no need to split this up."))
	bus := eventbus.New(64)
	sub := bus.Subscribe()
	defer sub.Close()

	o := New(DefaultConfig(), nil)
	rc := requestctx.New(10000)
	ac := newTestAgentCtx(t)

	result, err := o.Execute(context.Background(), llm, ac, "hi", rc, bus)
	require.NoError(t, err)
	assert.Equal(t, "Hello there, no need to split this up.", result.FinalResponse)
	assert.Nil(t, result.PreSpawnText)
	assert.Empty(t, result.SubAgentResults)
	assert.Nil(t, result.Synthesis)
	require.Len(t, result.AgentTree, 1)
	assert.Equal(t, StatusCompleted, result.AgentTree[0].Status)

	events := drainBus(sub)
	spawned := eventsOfType(events, eventbus.TypeAgentSpawned)
	completed := eventsOfType(events, eventbus.TypeAgentCompleted)
	synthesisStarted := eventsOfType(events, eventbus.TypeSynthesisStarted)
	require.Len(t, spawned, 1)
	assert.Equal(t, 0, spawned[0].AgentSpawned.Depth)
	require.Len(t, completed, 1)
	assert.Empty(t, synthesisStarted)
}

func TestExecute_ParallelSpawnAndSynthesis(t *testing.T) {
	root := "I'll split this.\n\n```spawn\nmode: parallel\ntasks:\n  - \"Research A\"\n  - \"Research B\"\n```\n"
	llm := newScriptedLLM(
		textChunks(root),
		textChunks("Result A"),
		textChunks("Result B"),
		textChunks("Combined synthesis."),
	)
	bus := eventbus.New(64)
	sub := bus.Subscribe()
	defer sub.Close()

	o := New(DefaultConfig(), nil)
	rc := requestctx.New(100000)
	ac := newTestAgentCtx(t)

	result, err := o.Execute(context.Background(), llm, ac, "please research", rc, bus)
	require.NoError(t, err)

	require.NotNil(t, result.PreSpawnText)
	assert.Equal(t, "I'll split this.", *result.PreSpawnText)
	require.Len(t, result.SubAgentResults, 2)
	for _, r := range result.SubAgentResults {
		assert.Equal(t, StatusCompleted, r.Status)
		require.NotNil(t, r.Response)
	}
	require.NotNil(t, result.Synthesis)
	assert.Equal(t, "Combined synthesis.", result.FinalResponse)

	require.Len(t, result.AgentTree, 1)
	require.Len(t, result.AgentTree[0].Children, 2)

	events := drainBus(sub)
	spawned := eventsOfType(events, eventbus.TypeAgentSpawned)
	completed := eventsOfType(events, eventbus.TypeAgentCompleted)
	synthesisStarted := eventsOfType(events, eventbus.TypeSynthesisStarted)
	// one root spawn + two children
	require.Len(t, spawned, 3)
	// two children complete, then root completes after synthesis
	require.Len(t, completed, 3)
	require.Len(t, synthesisStarted, 1)
}

func TestExecute_SequentialInjectsPreviousResult(t *testing.T) {
	root := "```spawn\nmode: sequential\ntasks:\n  - \"Step1\"\n  - \"Step2\"\n```"
	llm := newScriptedLLM(
		textChunks(root),
		textChunks("First step done"),
		textChunks("Second step done"),
		textChunks("Synthesis."),
	)
	bus := eventbus.New(64)
	sub := bus.Subscribe()
	defer sub.Close()

	o := New(DefaultConfig(), nil)
	rc := requestctx.New(100000)
	ac := newTestAgentCtx(t)

	result, err := o.Execute(context.Background(), llm, ac, "do it step by step", rc, bus)
	require.NoError(t, err)
	require.Len(t, result.SubAgentResults, 2)
	assert.Equal(t, StatusCompleted, result.SubAgentResults[1].Status)
	_ = drainBus(sub)
}

func TestExecute_DepthLimitReachedReturnsVerbatim(t *testing.T) {
	root := "```spawn\nmode: parallel\ntasks:\n  - \"go deeper\"\n```"
	llm := newScriptedLLM(textChunks(root))
	bus := eventbus.New(64)
	sub := bus.Subscribe()
	defer sub.Close()

	cfg := DefaultConfig()
	cfg.MaxDepth = 0
	o := New(cfg, nil)
	rc := requestctx.New(10000)
	ac := newTestAgentCtx(t)

	result, err := o.Execute(context.Background(), llm, ac, "go", rc, bus)
	require.NoError(t, err)
	assert.Empty(t, result.SubAgentResults)
	assert.Equal(t, root, result.FinalResponse)

	events := drainBus(sub)
	depthLimit := eventsOfType(events, eventbus.TypeDepthLimitReached)
	require.Len(t, depthLimit, 1)
	assert.Equal(t, 1, depthLimit[0].DepthLimitReached.AttemptedDepth)
	assert.Equal(t, 0, depthLimit[0].DepthLimitReached.MaxDepth)
}

func TestExecute_CycleDetectedSkipsDuplicateTask(t *testing.T) {
	root := "```spawn\nmode: parallel\ntasks:\n  - \"same task\"\n```"
	llm := newScriptedLLM(textChunks(root))
	bus := eventbus.New(64)
	sub := bus.Subscribe()
	defer sub.Close()

	o := New(DefaultConfig(), nil)
	rc := requestctx.New(10000)
	rc.CycleDetector.CheckAndRegister("same task", 1)
	ac := newTestAgentCtx(t)

	result, err := o.Execute(context.Background(), llm, ac, "go", rc, bus)
	require.NoError(t, err)
	assert.Empty(t, result.SubAgentResults)

	events := drainBus(sub)
	cycles := eventsOfType(events, eventbus.TypeCycleDetected)
	require.Len(t, cycles, 1)
}

func TestExecute_SubAgentFailureIsAbsorbedNotSurfaced(t *testing.T) {
	root := "```spawn\nmode: parallel\ntasks:\n  - \"will fail\"\n```"
	llm := newScriptedLLM(
		textChunks(root),
		{{err: errors.New("llm down")}},
		{{err: errors.New("llm down again")}},
		textChunks("Synthesis despite failure."),
	)
	bus := eventbus.New(64)
	sub := bus.Subscribe()
	defer sub.Close()

	o := New(DefaultConfig(), nil)
	rc := requestctx.New(10000)
	ac := newTestAgentCtx(t)

	result, err := o.Execute(context.Background(), llm, ac, "go", rc, bus)
	require.NoError(t, err)
	require.Len(t, result.SubAgentResults, 1)
	assert.Equal(t, StatusFailed, result.SubAgentResults[0].Status)
	require.NotNil(t, result.SubAgentResults[0].Error)
	assert.Equal(t, "Synthesis despite failure.", result.FinalResponse)

	events := drainBus(sub)
	failed := eventsOfType(events, eventbus.TypeAgentFailed)
	require.Len(t, failed, 2)
	assert.True(t, failed[0].AgentFailed.WillRetry)
	assert.False(t, failed[1].AgentFailed.WillRetry)
}

func TestExecute_RootLLMErrorSurfacesAsOrchestratorError(t *testing.T) {
	llm := newScriptedLLM([]chunk{{err: errors.New("provider exploded")}})
	bus := eventbus.New(64)
	sub := bus.Subscribe()
	defer sub.Close()

	o := New(DefaultConfig(), nil)
	rc := requestctx.New(10000)
	ac := newTestAgentCtx(t)

	_, err := o.Execute(context.Background(), llm, ac, "go", rc, bus)
	require.Error(t, err)
	var oe *Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, ErrLLM, oe.Kind)
}

func TestExecute_CancelledBeforeStreamStarts(t *testing.T) {
	llm := newScriptedLLM(textChunks("should not be used"))
	bus := eventbus.New(64)
	sub := bus.Subscribe()
	defer sub.Close()

	o := New(DefaultConfig(), nil)
	rc := requestctx.New(10000)
	rc.Cancel()
	ac := newTestAgentCtx(t)

	_, err := o.Execute(context.Background(), llm, ac, "go", rc, bus)
	require.Error(t, err)
	var oe *Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, ErrCancelled, oe.Kind)

	events := drainBus(sub)
	cancelled := eventsOfType(events, eventbus.TypeAgentCancelled)
	require.Len(t, cancelled, 1)
}

func TestBuildSynthesisPrompt_EscapesAndFormatsResults(t *testing.T) {
	resp := "Quantum computing uses qubits"
	results := []SubAgentResult{
		{Task: `Research "quantum" & computing`, Status: StatusCompleted, Response: &resp},
	}
	prompt := buildSynthesisPrompt(results)
	assert.Contains(t, prompt, "<sub_agent_results>")
	assert.Contains(t, prompt, "</sub_agent_results>")
	assert.Contains(t, prompt, `status="completed"`)
	assert.Contains(t, prompt, "&quot;quantum&quot;")
	assert.Contains(t, prompt, "Quantum computing uses qubits")
	assert.Contains(t, prompt, "synthesize a cohesive response")
}

func TestTruncateSummary_OnlyAddsEllipsisWhenTruncated(t *testing.T) {
	short := "short text"
	assert.Equal(t, short, truncateSummary(short, 200))

	long := fmt.Sprintf("%0200d", 0)
	truncated := truncateSummary(long, 50)
	assert.Len(t, truncated, 53)
	assert.True(t, len(truncated) > 50)
}
