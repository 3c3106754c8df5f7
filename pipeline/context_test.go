package pipeline

import (
	"strings"
	"testing"
)

func TestNewConversationContextSeedsSystemAndGreeting(t *testing.T) {
	c := NewConversationContext("be terse", "hello there", nil)
	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "be terse" {
		t.Errorf("msgs[0] = %+v, want system prompt first", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "hello there" {
		t.Errorf("msgs[1] = %+v, want greeting second", msgs[1])
	}
}

func TestNewConversationContextNoSystemOrGreeting(t *testing.T) {
	c := NewConversationContext("", "", nil)
	if got := c.MessageCount(); got != 0 {
		t.Fatalf("MessageCount() = %d, want 0", got)
	}
}

func TestConversationContextTrimNeverDropsSystem(t *testing.T) {
	c := NewConversationContext("system rules", "", nil)
	c.MaxMessages = 5

	for i := 0; i < 20; i++ {
		c.AddUserMessage("question")
		c.AddAssistantMessage("answer")
	}

	msgs := c.Messages()
	if len(msgs) > 5 {
		t.Fatalf("MessageCount() = %d, want <= 5", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Fatalf("msgs[0].Role = %q, want system to survive trimming", msgs[0].Role)
	}
	systemCount := 0
	for _, m := range msgs {
		if m.Role == "system" {
			systemCount++
		}
	}
	if systemCount != 1 {
		t.Errorf("systemCount = %d, want exactly 1", systemCount)
	}
}

func TestConversationContextTrimByCharBudget(t *testing.T) {
	c := NewConversationContext("sys", "", nil)
	c.MaxMessages = 1000
	c.MaxContextChars = 50

	for i := 0; i < 20; i++ {
		c.AddUserMessage(strings.Repeat("x", 20))
	}

	total := 0
	msgs := c.Messages()
	for _, m := range msgs {
		total += len(m.Content)
	}
	if total > 50 && len(msgs) > 2 {
		t.Errorf("total content chars = %d, want <= 50 once trimmed below the message floor", total)
	}
}

func TestConversationContextAddAssistantMessageDropsEmpty(t *testing.T) {
	c := NewConversationContext("", "", nil)
	c.AddAssistantMessage("")
	if got := c.MessageCount(); got != 0 {
		t.Fatalf("MessageCount() = %d, want 0 after adding empty assistant message", got)
	}
}

func TestConversationContextToolRoundTrip(t *testing.T) {
	c := NewConversationContext("", "", nil)
	c.AddAssistantToolCalls("", []ToolCall{{ID: "call-1", Name: "lookup", Arguments: `{"x":1}`}})
	c.AddToolResult("call-1", "lookup", map[string]any{"ok": true})

	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ToolCalls[0].Name != "lookup" {
		t.Errorf("ToolCalls[0].Name = %q, want lookup", msgs[0].ToolCalls[0].Name)
	}
	if msgs[1].Role != "tool" || msgs[1].ToolCallID != "call-1" {
		t.Errorf("msgs[1] = %+v, want tool result keyed to call-1", msgs[1])
	}
	if !strings.Contains(msgs[1].Content, "true") {
		t.Errorf("tool result content = %q, want JSON-encoded map", msgs[1].Content)
	}
}

func TestConversationContextReplaceLastUserMessage(t *testing.T) {
	c := NewConversationContext("", "", nil)
	c.AddUserMessage("goodbye")
	c.AddAssistantMessage("wait, really?")
	c.AddUserMessage("yes bye")

	c.ReplaceLastUserMessage("rewritten goodbye")

	if got := c.LastUserMessage(); got != "rewritten goodbye" {
		t.Errorf("LastUserMessage() = %q, want rewritten goodbye", got)
	}
	if got := c.MessageCount(); got != 3 {
		t.Errorf("MessageCount() = %d, want 3 (no message added or removed)", got)
	}
}

func TestConversationContextClearKeepsSystemOnly(t *testing.T) {
	c := NewConversationContext("sys", "hi", nil)
	c.AddUserMessage("question")
	c.Clear()

	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].Role != "system" {
		t.Fatalf("Messages() after Clear = %+v, want only the system prompt", msgs)
	}
}

func TestConversationContextTokenUsageAccumulates(t *testing.T) {
	c := NewConversationContext("", "", nil)
	c.UpdateTokenUsage(10, 5)
	c.UpdateTokenUsage(3, 2)
	if got := c.TotalTokens(); got != 20 {
		t.Errorf("TotalTokens() = %d, want 20", got)
	}
}
