// Package reason defines the reasoning-unit contract: given an instruction, a
// set of allowed operations and a conversation history, a Reasoner produces
// either a tool invocation request or a final answer. Provider adapters live
// in the openai and anthropic subpackages; MockReasoner provides scripted
// decisions for tests.
package reason

import (
	"context"
	"fmt"
	"sync"

	"github.com/crewlink/crewlink/core"
)

// ToolDefinition declaratively exposes a callable operation to the reasoning
// unit. Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a reasoning unit's request to invoke a named operation.
type ToolCall struct {
	ID        string         `json:"id"`
	Operation string         `json:"operation"`
	Args      map[string]any `json:"args,omitempty"`
}

// Request captures the normalized reasoning input.
type Request struct {
	Instruction string           `json:"instruction"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	History     []core.Turn      `json:"history"`
}

// Decision is the reasoning unit's output: exactly one of a tool call or a
// final answer.
type Decision struct {
	ToolCall *ToolCall `json:"tool_call,omitempty"`
	Answer   string    `json:"answer,omitempty"`
}

// IsFinal reports whether the decision carries a final answer rather than a
// tool invocation request.
func (d *Decision) IsFinal() bool { return d.ToolCall == nil }

// Info contains metadata about a reasoner implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", ...
}

// Reasoner is the minimal interface agents and routers use for reasoning
// steps. Implementations must be safe for concurrent use.
type Reasoner interface {
	Reason(ctx context.Context, req Request) (*Decision, error)

	// Info returns information about the reasoner implementation.
	Info() Info
}

// MockReasoner is a lightweight in-memory Reasoner useful for tests and
// examples. Scripted decisions are returned in FIFO order; once the script is
// exhausted the fallback function (or a canned echo answer) takes over.
type MockReasoner struct {
	mu       sync.Mutex
	info     Info
	script   []*Decision
	fallback func(req Request) *Decision
	calls    []Request
	err      error
}

// NewMockReasoner constructs an empty MockReasoner.
func NewMockReasoner(name string) *MockReasoner {
	return &MockReasoner{info: Info{Name: name, Provider: "mock"}}
}

// Enqueue appends scripted decisions returned by subsequent Reason calls.
func (m *MockReasoner) Enqueue(decisions ...*Decision) *MockReasoner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, decisions...)
	return m
}

// SetFallback installs a function producing decisions once the script is empty.
func (m *MockReasoner) SetFallback(fn func(req Request) *Decision) *MockReasoner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = fn
	return m
}

// FailWith makes every subsequent Reason call return err.
func (m *MockReasoner) FailWith(err error) *MockReasoner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Calls returns the requests observed so far.
func (m *MockReasoner) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]Request, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// Reason implements Reasoner.
func (m *MockReasoner) Reason(ctx context.Context, req Request) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if m.err != nil {
		return nil, m.err
	}
	if len(m.script) > 0 {
		d := m.script[0]
		m.script = m.script[1:]
		return d, nil
	}
	if m.fallback != nil {
		return m.fallback(req), nil
	}

	var last string
	if len(req.History) > 0 {
		last = req.History[len(req.History)-1].Content
	}
	return &Decision{Answer: fmt.Sprintf("Mock answer to: %s", last)}, nil
}

// Info implements Reasoner.
func (m *MockReasoner) Info() Info { return m.info }
