package domain

import "time"

// Role identifies the author of a message in a session history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in a conversation history.
//
// Tool result messages carry the tool name, the id of the call they answer
// and the turn they were produced in, so a turn's tool activity can be
// selected by filtering instead of by position.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Timestamp  time.Time  `json:"timestamp"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	ToolName   string     `json:"toolName,omitempty"`
	Turn       int        `json:"turn,omitempty"`
}

// IsReply reports whether the message counts toward the trimmed window:
// user messages and assistant messages that carry a reply rather than a
// tool request.
func (m Message) IsReply() bool {
	switch m.Role {
	case RoleUser:
		return true
	case RoleAssistant:
		return len(m.ToolCalls) == 0
	default:
		return false
	}
}

// ToolCall represents an LLM tool invocation within a message.
type ToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"` // JSON string
}
