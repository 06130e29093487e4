// Package router implements the routing strategies that decide which agents
// handle a query and in what order: Sequential (fixed pipeline), Dynamic
// (reasoning-driven selection) and Parallel (fan-out with synthesis). Routers
// operate over a Registry of callers and communicate intermediate results
// through run-scoped conversation state.
package router

import (
	"context"
	"time"

	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/descriptor"
)

// Caller invokes one agent, local or remote. Both agent.Agent and
// proxy.RemoteAgent satisfy it.
type Caller interface {
	Descriptor() descriptor.Descriptor
	Call(ctx context.Context, req core.AgentRequest) (*core.AgentResponse, error)
}

// Entry registers a caller under a routing role. The role doubles as the
// scratch key its output is merged under, so concurrent stages never share a
// key. A zero Timeout leaves the caller's own deadline in charge.
type Entry struct {
	Role    string
	Agent   Caller
	Timeout time.Duration
}

// Registry is the ordered set of agents a router can dispatch to. Order is
// registration order and determines both sequential execution order and the
// deterministic collection order of parallel outcomes.
type Registry struct {
	entries []Entry
	index   map[string]int
}

// NewRegistry builds a registry, rejecting empty or duplicate roles.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{index: map[string]int{}}
	for _, e := range entries {
		if e.Role == "" {
			return nil, core.NewError(core.KindInvalidConfiguration, "registry entry with empty role")
		}
		if e.Agent == nil {
			return nil, core.NewError(core.KindInvalidConfiguration, "registry entry %q has no agent", e.Role)
		}
		if _, dup := r.index[e.Role]; dup {
			return nil, core.NewError(core.KindInvalidConfiguration, "duplicate registry role %q", e.Role)
		}
		r.index[e.Role] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// Entries returns the registered entries in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Lookup returns the entry registered under a role.
func (r *Registry) Lookup(role string) (Entry, bool) {
	i, ok := r.index[role]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Roles returns the registered roles in registration order.
func (r *Registry) Roles() []string {
	roles := make([]string, len(r.entries))
	for i, e := range r.entries {
		roles[i] = e.Role
	}
	return roles
}

// Len returns the number of registered agents.
func (r *Registry) Len() int { return len(r.entries) }

// RoutingDecision is the outcome of a Dynamic selection step: which agents to
// involve, in order, and why the others were skipped. Decisions are produced
// fresh per query and never persisted.
type RoutingDecision struct {
	SelectedAgents []string          `json:"selectedAgents"`
	Rationale      string            `json:"rationale,omitempty"`
	SkipReasons    map[string]string `json:"skipReasons,omitempty"`
}

// Outcome is a router's result: the final answer plus the metadata a front
// door surfaces. Failures maps agent roles to the cause of their stage
// failure; routers never silently drop a failed stage.
type Outcome struct {
	Answer   string
	Scratch  map[string]any
	Failures map[string]string
	Decision *RoutingDecision
}

// Router dispatches one query over a registry using run-scoped state.
type Router interface {
	Route(ctx context.Context, conv *core.Conversation, query string) (*Outcome, error)
}

// buildRequest snapshots the conversation into an invocation request so a
// downstream agent sees the history and every earlier stage's output.
func buildRequest(conv *core.Conversation, query string) core.AgentRequest {
	return core.AgentRequest{
		Query:   query,
		History: conv.Turns(),
		Scratch: conv.Scratch(),
	}
}

// callEntry invokes one registry entry under its per-entry timeout.
func callEntry(ctx context.Context, e Entry, req core.AgentRequest) (*core.AgentResponse, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	return e.Agent.Call(ctx, req)
}
