package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies a failure within the orchestration engine. Every error
// surfaced by the front door carries exactly one kind so operators can tell a
// misconfiguration apart from a transient network fault.
type Kind string

const (
	// KindDiscovery indicates a descriptor document could not be fetched or parsed.
	KindDiscovery Kind = "discovery_error"
	// KindNotFound indicates a referenced agent or record does not exist.
	KindNotFound Kind = "not_found"
	// KindUnauthorized indicates an operation outside an agent's binding.
	KindUnauthorized Kind = "unauthorized"
	// KindValidation indicates arguments that do not match an operation's schema.
	KindValidation Kind = "validation_error"
	// KindBackend wraps a failure from the operation backend.
	KindBackend Kind = "backend_error"
	// KindTimeout indicates a remote call exceeded its hard deadline.
	KindTimeout Kind = "timeout"
	// KindUnreachable indicates the remote endpoint could not be reached.
	KindUnreachable Kind = "unreachable"
	// KindRemote carries a well-formed error response from a remote agent.
	KindRemote Kind = "remote_error"
	// KindStageFailure marks a whole-run failure caused by one routing stage.
	KindStageFailure Kind = "stage_failure"
	// KindInvalidRoutingDecision marks a routing decision naming an unknown agent.
	KindInvalidRoutingDecision Kind = "invalid_routing_decision"
	// KindBudgetExceeded marks a routing decision exceeding the invocation budget.
	KindBudgetExceeded Kind = "budget_exceeded"
	// KindAllAgentsFailed marks a parallel run where no agent succeeded.
	KindAllAgentsFailed Kind = "all_agents_failed"
	// KindRunTimeout marks expiry of the run-level deadline.
	KindRunTimeout Kind = "run_timeout"
	// KindInvalidConfiguration marks a startup configuration fault.
	KindInvalidConfiguration Kind = "invalid_configuration"
)

// Error is the structured error type shared by all components. Agent names
// the implicated agent where one exists; Payload carries a remote error body
// unmodified so the front door can surface it verbatim.
type Error struct {
	Kind    Kind            `json:"kind"`
	Agent   string          `json:"agent,omitempty"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Cause   error           `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Agent != "" && e.Cause != nil:
		return fmt.Sprintf("%s [agent %s]: %s: %v", e.Kind, e.Agent, e.Message, e.Cause)
	case e.Agent != "":
		return fmt.Sprintf("%s [agent %s]: %s", e.Kind, e.Agent, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Cause }

// NewError creates a structured error of the given kind.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a structured error wrapping a cause.
func WrapError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// AgentError creates a structured error implicating a named agent.
func AgentError(kind Kind, agent string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Agent: agent, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the kind from an error chain; empty if the chain contains
// no structured Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether the error chain contains a structured Error of kind k.
func IsKind(err error, k Kind) bool {
	for e := err; e != nil; {
		var ce *Error
		if !errors.As(e, &ce) {
			return false
		}
		if ce.Kind == k {
			return true
		}
		e = ce.Cause
	}
	return false
}
