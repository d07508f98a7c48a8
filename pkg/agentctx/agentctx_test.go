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

package agentctx

import (
	"strings"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	c, err := New(
		Config{BotID: "bot1", DisplayName: "Botty", Model: "gpt-4o"},
		"You are helpful.",
		"Identity details.",
		"User prefers concise answers.",
		[]Memory{{ID: "m1", Content: "Likes Go", Category: "preference", Importance: 0.8}},
		2000,
		"gpt-4o",
	)
	require.NoError(t, err)
	return c
}

func TestNew_RebuildsSystemPromptOnConstruction(t *testing.T) {
	c := newTestContext(t)
	assert.Contains(t, c.SystemPrompt, "IDENTITY:")
	assert.Contains(t, c.SystemPrompt, "Botty")
	assert.Contains(t, c.SystemPrompt, "LONG-TERM MEMORY:")
	assert.Contains(t, c.SystemPrompt, "Likes Go")
	assert.Contains(t, c.SystemPrompt, "AGENT CAPABILITIES:")
}

func TestBuildMessages_RoundTripsHistory(t *testing.T) {
	c := newTestContext(t)
	c.AddUserMessage("hello")
	c.AddAssistantMessage("hi there")

	msgs := c.BuildMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, a2a.MessageRoleUser, msgs[0].Role)
	assert.Equal(t, a2a.MessageRoleAssistant, msgs[1].Role)
}

func TestChildForTask_SeedsHistoryFromTaskAndDropsRecalledMemories(t *testing.T) {
	c := newTestContext(t)
	c.SetRecalledMemories([]RecalledMemory{{Memory: Memory{Content: "recalled"}, RelevanceScore: 0.9}})
	c.AddUserMessage("root turn")

	child := c.ChildForTask("Research topic X", 1)

	require.Len(t, child.History, 1)
	assert.Equal(t, "Research topic X", child.History[0].Content)
	assert.Empty(t, child.RecalledMemories)
	assert.Equal(t, c.Memories, child.Memories)
	assert.NotContains(t, child.SystemPrompt, "recalled")
}

func TestChildForTask_DoesNotMutateParentHistory(t *testing.T) {
	c := newTestContext(t)
	c.AddUserMessage("root turn")

	_ = c.ChildForTask("task", 1)

	require.Len(t, c.History, 1)
	assert.Equal(t, "root turn", c.History[0].Content)
}

func TestRecalledMemoryBlock_IncludesProvenanceWhenSet(t *testing.T) {
	c := newTestContext(t)
	c.SetRecalledMemories([]RecalledMemory{
		{Memory: Memory{Content: "shared fact"}, RelevanceScore: 0.5, Provenance: "Written by BotX"},
	})
	prompt := c.RebuildSystemPrompt()

	assert.Contains(t, prompt, "RELEVANT MEMORIES FOR THIS TURN:")
	assert.Contains(t, prompt, "Written by BotX")
	assert.Contains(t, prompt, "shared fact")
}

func TestShouldSummarize_FalseBelowThreshold(t *testing.T) {
	c := newTestContext(t)
	c.AddUserMessage("short message")
	assert.False(t, c.ShouldSummarize())
}

func TestShouldSummarize_TrueNearCapacity(t *testing.T) {
	c := newTestContext(t)
	c.TokenBudget = 50
	c.AddUserMessage(strings.Repeat("word ", 200))
	assert.True(t, c.ShouldSummarize())
}

func TestShouldSummarize_FalseWhenNoBudgetConfigured(t *testing.T) {
	c := newTestContext(t)
	c.TokenBudget = 0
	c.AddUserMessage(strings.Repeat("word ", 200))
	assert.False(t, c.ShouldSummarize())
}
