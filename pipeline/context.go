package pipeline

import (
	"encoding/json"
	"sync"
)

// defaultMaxMessages and defaultMaxContextChars mirror
// original_source/voxbridge/pipeline/context.py's ConversationContext
// defaults (spec §3's ConversationContext invariant).
const (
	defaultMaxMessages     = 50
	defaultMaxContextChars = 32000
)

// ConversationContext holds the ordered message history sent to the
// LLM on every turn: system prompt, user/assistant turns, and tool
// call/result pairs, trimmed to stay within bounds. Trimming never
// removes a system-role message (spec §3).
type ConversationContext struct {
	SystemPrompt    string
	FirstMessage    string
	MaxMessages     int
	MaxContextChars int
	Tools           []ToolDefinition

	mu                sync.Mutex
	messages          []Message
	totalInputTokens  int
	totalOutputTokens int
}

// NewConversationContext builds a context seeded with the system
// prompt and, if configured, a first (greeting) assistant message.
// Zero MaxMessages/MaxContextChars fall back to the spec defaults.
func NewConversationContext(systemPrompt, firstMessage string, tools []ToolDefinition) *ConversationContext {
	c := &ConversationContext{
		SystemPrompt:    systemPrompt,
		FirstMessage:    firstMessage,
		MaxMessages:     defaultMaxMessages,
		MaxContextChars: defaultMaxContextChars,
		Tools:           tools,
	}
	if systemPrompt != "" {
		c.messages = append(c.messages, Message{Role: "system", Content: systemPrompt})
	}
	if firstMessage != "" {
		c.messages = append(c.messages, Message{Role: "assistant", Content: firstMessage})
	}
	return c
}

// AddUserMessage appends a caller turn and trims the context.
func (c *ConversationContext) AddUserMessage(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{Role: "user", Content: text})
	c.trim()
}

// AddAssistantMessage appends an LLM response. Empty text is dropped
// silently (a turn that produced only tool calls has nothing to add
// here).
func (c *ConversationContext) AddAssistantMessage(text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{Role: "assistant", Content: text})
	c.trim()
}

// AddAssistantToolCalls appends an assistant message carrying one or
// more tool calls the LLM requested.
func (c *ConversationContext) AddAssistantToolCalls(text string, calls []ToolCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{Role: "assistant", Content: text, ToolCalls: calls})
	c.trim()
}

// AddToolResult appends a tool execution result. Non-string results
// are JSON-encoded.
func (c *ConversationContext) AddToolResult(toolCallID, toolName string, result any) {
	content, ok := result.(string)
	if !ok {
		b, err := json.Marshal(result)
		if err != nil {
			content = ""
		} else {
			content = string(b)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{Role: "tool", Content: content, ToolCallID: toolCallID, Name: toolName})
	c.trim()
}

// Messages returns a snapshot of the current message list for LLM
// input.
func (c *ConversationContext) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// UpdateTokenUsage accumulates token counts reported by the LLM
// provider across the conversation's lifetime.
func (c *ConversationContext) UpdateTokenUsage(input, output int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalInputTokens += input
	c.totalOutputTokens += output
}

// TotalTokens returns the cumulative input+output token count.
func (c *ConversationContext) TotalTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalInputTokens + c.totalOutputTokens
}

// MessageCount returns the current number of messages held.
func (c *ConversationContext) MessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// LastUserMessage returns the most recent user-role message content,
// or "" if there is none.
func (c *ConversationContext) LastUserMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == "user" {
			return c.messages[i].Content
		}
	}
	return ""
}

// ReplaceLastUserMessage overwrites the most recent user-role message
// content in place, used by the end-call-phrase path to rewrite the
// caller's turn into a goodbye prompt before the final LLM generation
// (original_source/voxbridge/pipeline/orchestrator.py's
// `_on_turn_end`).
func (c *ConversationContext) ReplaceLastUserMessage(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == "user" {
			c.messages[i] = Message{Role: "user", Content: text}
			return
		}
	}
}

// Clear drops every message except system prompts.
func (c *ConversationContext) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.messages[:0:0]
	for _, m := range c.messages {
		if m.Role == "system" {
			kept = append(kept, m)
		}
	}
	c.messages = kept
}

// trim enforces MaxMessages and MaxContextChars, never dropping a
// system-role message. Must be called with c.mu held.
func (c *ConversationContext) trim() {
	maxMessages := c.MaxMessages
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	if len(c.messages) > maxMessages {
		var system, rest []Message
		for _, m := range c.messages {
			if m.Role == "system" {
				system = append(system, m)
			} else {
				rest = append(rest, m)
			}
		}
		keep := maxMessages - len(system)
		if keep < 0 {
			keep = 0
		}
		if keep < len(rest) {
			rest = rest[len(rest)-keep:]
		}
		c.messages = append(append([]Message{}, system...), rest...)
	}

	maxChars := c.MaxContextChars
	if maxChars <= 0 {
		maxChars = defaultMaxContextChars
	}
	total := 0
	for _, m := range c.messages {
		total += len(m.Content)
	}
	for total > maxChars && len(c.messages) > 2 {
		idx := -1
		for i, m := range c.messages {
			if m.Role != "system" {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		total -= len(c.messages[idx].Content)
		c.messages = append(c.messages[:idx], c.messages[idx+1:]...)
	}
}
