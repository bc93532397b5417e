package agentloop

import (
	"sync"

	"github.com/martinemde/sfagent/unifiedllm"
)

// Conversation is the append-only message history of one session. Messages
// are copied on the way in and on the way out, so callers cannot mutate
// what has been recorded.
type Conversation struct {
	mu       sync.RWMutex
	messages []unifiedllm.Message
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append records messages in order.
func (c *Conversation) Append(msgs ...unifiedllm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		c.messages = append(c.messages, m.Clone())
	}
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []unifiedllm.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]unifiedllm.Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Last returns the most recent message.
func (c *Conversation) Last() (unifiedllm.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return unifiedllm.Message{}, false
	}
	return c.messages[len(c.messages)-1].Clone(), true
}

// CountRole returns how many messages have the given role.
func (c *Conversation) CountRole(role unifiedllm.Role) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, m := range c.messages {
		if m.Role == role {
			n++
		}
	}
	return n
}

// ToolCalls returns every tool call in the history, oldest first.
func (c *Conversation) ToolCalls() []unifiedllm.ToolCall {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var calls []unifiedllm.ToolCall
	for _, m := range c.messages {
		if m.Role == unifiedllm.RoleAssistant {
			calls = append(calls, m.ToolCalls()...)
		}
	}
	return calls
}
