package core

import "encoding/json"

// AgentRequest is the invocation payload sent to a remote agent. Scratch
// carries the intermediate results accumulated by earlier routing stages so a
// downstream agent can build on them.
type AgentRequest struct {
	Query   string         `json:"query"`
	History []Turn         `json:"history,omitempty"`
	Scratch map[string]any `json:"scratch,omitempty"`
}

// ToolCallRecord documents one operation invocation an agent performed while
// producing its answer.
type ToolCallRecord struct {
	Operation string          `json:"operation"`
	Args      map[string]any  `json:"args,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// AgentResponse is a (partial or final) reply from a remote agent. With a
// streaming transport, chunks carry Final=false until the last one; the proxy
// accumulates them so routers only ever observe a complete response.
type AgentResponse struct {
	Answer    string           `json:"answer"`
	ToolCalls []ToolCallRecord `json:"toolCalls,omitempty"`
	Final     bool             `json:"final"`
}

// Merge folds a streamed chunk into the accumulated response: answer text is
// concatenated, tool call records are appended, Final reflects the last chunk.
func (r *AgentResponse) Merge(chunk AgentResponse) {
	r.Answer += chunk.Answer
	r.ToolCalls = append(r.ToolCalls, chunk.ToolCalls...)
	r.Final = chunk.Final
}
