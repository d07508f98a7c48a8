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

// Package agentctx holds the per-agent configuration, conversation
// history, recalled memories, and system-prompt assembly that the
// orchestrator clones into every sub-agent it spawns.
package agentctx

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/hector/pkg/spawn"
	"github.com/kadirpekel/hector/pkg/utils"
)

// Config identifies the bot an agent context belongs to and the model
// parameters its LLM calls should use.
type Config struct {
	BotID           string
	DisplayName     string
	Slug            string
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// Memory is one long-term memory record attached to a bot.
type Memory struct {
	ID         string
	Content    string
	Category   string
	Importance float64
}

// RecalledMemory is a Memory surfaced by the memory pipeline for one
// specific user turn, carrying why it was surfaced.
type RecalledMemory struct {
	Memory
	RelevanceScore float64
	// Provenance is set (e.g. "Written by BotX") when the memory came
	// from a cross-bot shared source rather than the bot's own history.
	Provenance string
}

// HistoryMessage is one turn of conversation history.
type HistoryMessage struct {
	Role    a2a.MessageRole
	Content string
}

// Context is the per-agent state threaded through one orchestration
// tree node. The root owns its copy; every child owns a clone produced
// by ChildForTask. No field is safely mutated across goroutines without
// external synchronization, matching spec's "owned by a single task"
// invariant.
type Context struct {
	Config Config

	SoulContent     string
	IdentityContent string
	UserContent     string

	Memories         []Memory
	RecalledMemories []RecalledMemory
	History          []HistoryMessage

	// SystemPrompt is the cached rendering. RebuildSystemPrompt must be
	// called at orchestration entry so the capability block reflects the
	// current spawn semantics.
	SystemPrompt string

	// TokenBudget is the provider's context-window capacity, distinct
	// from the request token budget; it only drives ShouldSummarize.
	TokenBudget int

	tokenCounter *utils.TokenCounter
}

// New creates a root Context. tokenModel selects the tiktoken encoding
// used for ShouldSummarize; an empty string falls back to cl100k_base.
func New(cfg Config, soul, identity, user string, memories []Memory, tokenBudget int, tokenModel string) (*Context, error) {
	counter, err := utils.NewTokenCounter(tokenModel)
	if err != nil {
		return nil, fmt.Errorf("agentctx: new token counter: %w", err)
	}

	c := &Context{
		Config:          cfg,
		SoulContent:     soul,
		IdentityContent: identity,
		UserContent:     user,
		Memories:        memories,
		TokenBudget:     tokenBudget,
		tokenCounter:    counter,
	}
	c.RebuildSystemPrompt()
	return c, nil
}

// BuildMessages returns the conversation history as the LLM message
// list. The system prompt travels separately as the request's
// SystemInstruction field, not as a history entry.
func (c *Context) BuildMessages() []*a2a.Message {
	msgs := make([]*a2a.Message, 0, len(c.History))
	for _, h := range c.History {
		msgs = append(msgs, a2a.NewMessage(h.Role, a2a.TextPart{Text: h.Content}))
	}
	return msgs
}

// AddUserMessage appends a user turn to history.
func (c *Context) AddUserMessage(content string) {
	c.History = append(c.History, HistoryMessage{Role: a2a.MessageRoleUser, Content: content})
}

// AddAssistantMessage appends an assistant turn to history.
func (c *Context) AddAssistantMessage(content string) {
	c.History = append(c.History, HistoryMessage{Role: a2a.MessageRoleAssistant, Content: content})
}

// SetRecalledMemories replaces the recall buffer populated by the memory
// pipeline for this turn.
func (c *Context) SetRecalledMemories(list []RecalledMemory) {
	c.RecalledMemories = list
}

// ChildForTask clones config, soul/identity/user content, and the long-
// term memory snapshot into a fresh Context for a spawned sub-agent.
// Conversation history is emptied and reseeded with the task description
// as the child's first user turn. Recalled memories are deliberately not
// copied: the child sees memory only through whatever conversation it is
// handed (e.g. the prior sibling's response in Sequential mode).
func (c *Context) ChildForTask(task string, depth int) *Context {
	child := &Context{
		Config:          c.Config,
		SoulContent:     c.SoulContent,
		IdentityContent: c.IdentityContent,
		UserContent:     c.UserContent,
		Memories:        c.Memories,
		TokenBudget:     c.TokenBudget,
		tokenCounter:    c.tokenCounter,
		History:         []HistoryMessage{{Role: a2a.MessageRoleUser, Content: task}},
	}
	child.SystemPrompt = child.buildSystemPromptForDepth(depth)
	return child
}

// ShouldSummarize reports whether the serialized history is approaching
// the provider's context-window capacity (80% of TokenBudget).
func (c *Context) ShouldSummarize() bool {
	if c.TokenBudget <= 0 || c.tokenCounter == nil {
		return false
	}

	msgs := make([]utils.Message, 0, len(c.History))
	for _, h := range c.History {
		msgs = append(msgs, utils.Message{Role: string(h.Role), Content: h.Content})
	}

	used := c.tokenCounter.CountMessages(msgs)
	return float64(used) >= 0.80*float64(c.TokenBudget)
}

// RebuildSystemPrompt regenerates SystemPrompt from current content,
// including the capability block. The orchestrator calls this at entry
// so every request sees up-to-date spawn semantics.
func (c *Context) RebuildSystemPrompt() string {
	c.SystemPrompt = c.buildSystemPromptForDepth(0)
	return c.SystemPrompt
}

func (c *Context) buildSystemPromptForDepth(depth int) string {
	var sections []string

	if block := c.identityBlock(); block != "" {
		sections = append(sections, block)
	}
	if c.SoulContent != "" {
		sections = append(sections, c.SoulContent)
	}
	if c.UserContent != "" {
		sections = append(sections, "USER BRIEFING:\n"+c.UserContent)
	}
	if block := c.memoryBlock(); block != "" {
		sections = append(sections, block)
	}
	if block := c.recalledMemoryBlock(); block != "" {
		sections = append(sections, block)
	}
	sections = append(sections, capabilityBlock(depth))

	return strings.Join(sections, "\n\n")
}

func (c *Context) identityBlock() string {
	var b strings.Builder
	b.WriteString("IDENTITY:\n")
	if c.Config.DisplayName != "" {
		fmt.Fprintf(&b, "You are %s.\n", c.Config.DisplayName)
	}
	if c.IdentityContent != "" {
		b.WriteString(c.IdentityContent)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Context) memoryBlock() string {
	if len(c.Memories) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("LONG-TERM MEMORY:\n")
	for _, m := range c.Memories {
		fmt.Fprintf(&b, "- [%s, importance %.2f] %s\n", m.Category, m.Importance, m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Context) recalledMemoryBlock() string {
	if len(c.RecalledMemories) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("RELEVANT MEMORIES FOR THIS TURN:\n")
	for _, m := range c.RecalledMemories {
		if m.Provenance != "" {
			fmt.Fprintf(&b, "- (%s, relevance %.2f) %s\n", m.Provenance, m.RelevanceScore, m.Content)
		} else {
			fmt.Fprintf(&b, "- (relevance %.2f) %s\n", m.RelevanceScore, m.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// capabilityBlock describes the spawn directive wire format an agent may
// emit. depth is informational only (future capability-block variants
// may tailor wording near the depth cap); it does not change the parsed
// contract. The embedded schema is generated from pkg/spawn.Directive so
// the prompt can never drift from what the parser actually accepts.
func capabilityBlock(depth int) string {
	var schemaBlurb string
	if schema, err := spawn.Schema(); err == nil {
		if data, err := json.MarshalIndent(schema, "", "  "); err == nil {
			schemaBlurb = string(data)
		}
	}

	block := "AGENT CAPABILITIES:\n" +
		"You may decompose this request into sub-agents by emitting a spawn\n" +
		"directive block after your response text, shaped like:\n\n" +
		"```spawn\n" +
		"mode: parallel\n" +
		"tasks:\n" +
		"  - \"first sub-task\"\n" +
		"  - \"second sub-task\"\n" +
		"```\n\n" +
		"mode is either \"parallel\" (tasks run concurrently and see no other\n" +
		"sub-agent's output) or \"sequential\" (tasks run in order; each task\n" +
		"after the first is given the immediately preceding task's response\n" +
		"as additional context). Omit the block entirely to answer directly."

	if schemaBlurb != "" {
		block += "\n\nThe block's contents must validate against this shape:\n" + schemaBlurb
	}
	return block
}
