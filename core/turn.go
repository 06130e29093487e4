package core

import (
	"time"

	"github.com/google/uuid"
)

// Conversation roles. Tool turns carry the result of an operation invocation
// and reference the originating call via ToolCallID.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// Turn is a single entry in a conversation history. After creation it should
// be treated as immutable.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// ToolCallID correlates an assistant turn that requested an operation
	// with the tool turn carrying its result.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolName is the operation name for tool-related turns.
	ToolName string `json:"tool_name,omitempty"`
}

// NewTurn creates a turn with a high precision UTC timestamp.
func NewTurn(role, content string) Turn {
	return Turn{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// NewToolTurn records the result of an operation invocation.
func NewToolTurn(callID, operation, result string) Turn {
	t := NewTurn(RoleTool, result)
	t.ToolCallID = callID
	t.ToolName = operation
	return t
}

// NewID generates a new unique identifier for runs, turns and tool calls.
func NewID() string { return uuid.NewString() }
