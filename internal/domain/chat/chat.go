// Package chat provides the message model for retrieval-augmented
// conversations: roles, tool calls, and the transcript invariants the
// agent loop relies on.
package chat

import (
	"fmt"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a single tool invocation requested by the assistant.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is one turn in a transcript. Assistant messages may carry tool
// call requests; tool messages carry the call ID they answer.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// SystemMessage builds a system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage builds a user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage builds an assistant message with optional tool calls.
func AssistantMessage(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// ToolResult builds a tool message answering the given call.
func ToolResult(callID, name, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, ToolName: name, Content: content}
}

// CheckToolPairing verifies the transcript invariant: every tool message
// answers exactly one preceding assistant tool call, and every requested
// call is answered exactly once before the next assistant message.
func CheckToolPairing(msgs []Message) error {
	pending := map[string]bool{}
	order := []string{}

	for i, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			for id := range pending {
				if pending[id] {
					return fmt.Errorf("message %d: tool call %s has no result before next assistant turn", i, id)
				}
			}
			pending = map[string]bool{}
			order = order[:0]
			for _, tc := range m.ToolCalls {
				if tc.ID == "" {
					return fmt.Errorf("message %d: tool call %q has empty call id", i, tc.Name)
				}
				if _, dup := pending[tc.ID]; dup {
					return fmt.Errorf("message %d: duplicate tool call id %s", i, tc.ID)
				}
				pending[tc.ID] = true
				order = append(order, tc.ID)
			}
		case RoleTool:
			if len(order) == 0 {
				return fmt.Errorf("message %d: tool result %s without preceding tool call", i, m.ToolCallID)
			}
			want := order[0]
			if m.ToolCallID != want {
				return fmt.Errorf("message %d: tool result %s out of order, expected %s", i, m.ToolCallID, want)
			}
			order = order[1:]
			pending[m.ToolCallID] = false
		}
	}

	for id, unanswered := range pending {
		if unanswered {
			return fmt.Errorf("tool call %s was never answered", id)
		}
	}
	return nil
}

// Conversation identifies a durable chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoredMessage is a persisted turn-boundary message. ToolNote carries the
// model-view annotation summarizing tool activity for the turn; the display
// view omits it.
type StoredMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	ToolNote       string    `json:"tool_note,omitempty"`
	Turn           int       `json:"turn"`
	CreatedAt      time.Time `json:"created_at"`
}
