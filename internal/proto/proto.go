// Package proto defines the message model shared by the agent graph, the
// model bridge, and the chat transports.
package proto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the author of a message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-issued request to invoke a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is one entry of a conversation.
//
// ID is the identity token used by UIs to reconcile rewrites of the same
// message. ToolCalls is only set on assistant messages; ToolCallID is only set
// on tool messages and names the call the result answers.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// HasToolCalls reports whether the message carries pending tool calls.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// NewUserMessage returns a user message with the given content.
func NewUserMessage(id, content string) Message {
	return Message{ID: id, Role: RoleUser, Content: content}
}

// NewSystemMessage returns a system message with the given content.
func NewSystemMessage(id, content string) Message {
	return Message{ID: id, Role: RoleSystem, Content: content}
}

// NewToolMessage returns the result of the tool call identified by callID.
func NewToolMessage(id, callID, content string) Message {
	return Message{ID: id, Role: RoleTool, Content: content, ToolCallID: callID}
}

func (m Message) String() string {
	var sb strings.Builder
	switch m.Role {
	case RoleUser:
		sb.WriteString("**Prompt**:\n")
	case RoleAssistant:
		sb.WriteString("**Assistant**:\n")
	case RoleSystem:
		sb.WriteString("**System**:\n")
	case RoleTool:
		fmt.Fprintf(&sb, "> Tool result for %q:\n", m.ToolCallID)
	}
	sb.WriteString(m.Content)
	for _, call := range m.ToolCalls {
		fmt.Fprintf(&sb, "\n> Tool call %q: %s(%s)", call.ID, call.Name, string(call.Arguments))
	}
	sb.WriteString("\n\n")
	return sb.String()
}
