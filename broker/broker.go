// Package broker mediates access between agents and the operation backend.
// Each agent binds to a named, filtered subset of the backend's operation
// catalog; invocations outside the binding fail closed before any backend
// call, arguments are validated against the operation's JSON schema, and
// transient backend failures are retried once for non-mutating operations.
package broker

import (
	"context"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/logging"
)

// Operation is a named, typed unit of backend functionality. Parameters is a
// JSON Schema object; Mutates marks destructive or admin operations that must
// never be retried automatically.
type Operation struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
	Returns     string         `json:"returns"`
	Mutates     bool           `json:"mutates"`
}

// Backend is the operation backend consumed by the broker: a catalog of
// operations plus an execution entry point. Its own concurrency control and
// persistence are its own concern.
type Backend interface {
	Operations() []Operation
	Execute(ctx context.Context, name string, args map[string]any) (any, error)
}

// Binding restricts an agent to a subset of the backend catalog. An agent can
// never invoke an operation outside its binding.
type Binding struct {
	AgentID string
	Allowed []string
}

// NewBinding creates a binding for the given agent over the listed operations.
func NewBinding(agentID string, operations ...string) Binding {
	return Binding{AgentID: agentID, Allowed: operations}
}

// Allows reports whether the binding grants access to the named operation.
func (b Binding) Allows(operation string) bool {
	for _, name := range b.Allowed {
		if name == operation {
			return true
		}
	}
	return false
}

// Options configure a Broker.
type Options struct {
	// Logger receives invocation events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Broker dispatches operation invocations to the backend after authorization
// and argument validation. It is safe for concurrent use; the authorization
// and retry-eligibility checks are side-effect free.
type Broker struct {
	backend Backend
	ops     map[string]Operation
	order   []string
	schemas map[string]*gojsonschema.Schema
	logger  logging.Logger
}

// New constructs a Broker over the backend's catalog, compiling every
// operation's parameter schema up front so argument validation at call time
// cannot fail on a bad schema.
func New(backend Backend, optFns ...func(o *Options)) (*Broker, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	b := &Broker{
		backend: backend,
		ops:     map[string]Operation{},
		schemas: map[string]*gojsonschema.Schema{},
		logger:  opts.Logger,
	}

	for _, op := range backend.Operations() {
		if _, exists := b.ops[op.Name]; exists {
			return nil, core.NewError(core.KindInvalidConfiguration, "duplicate operation %q in backend catalog", op.Name)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(op.Parameters))
		if err != nil {
			return nil, core.WrapError(core.KindInvalidConfiguration, err, "compiling parameter schema for operation %q", op.Name)
		}
		b.ops[op.Name] = op
		b.order = append(b.order, op.Name)
		b.schemas[op.Name] = schema
	}

	return b, nil
}

// ValidateBinding checks a binding against the catalog at startup. Any
// allowed operation not present in the catalog is a configuration error and
// must fail fast, not at call time.
func (b *Broker) ValidateBinding(bind Binding) error {
	var unknown []string
	for _, name := range bind.Allowed {
		if _, ok := b.ops[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return core.NewError(core.KindInvalidConfiguration,
			"binding for agent %q names operations not in the catalog: %s",
			bind.AgentID, strings.Join(unknown, ", "))
	}
	return nil
}

// Definitions returns the operations a binding grants, in catalog order.
// Agents expose these to their reasoning unit as callable tools.
func (b *Broker) Definitions(bind Binding) []Operation {
	defs := make([]Operation, 0, len(bind.Allowed))
	for _, name := range b.order {
		if bind.Allows(name) {
			defs = append(defs, b.ops[name])
		}
	}
	return defs
}

// Invoke executes an operation on behalf of a bound agent.
//
// Failure modes:
//   - unauthorized: operation outside the binding, rejected before any
//     backend call (a misconfigured or compromised agent can never exercise
//     an operation outside its declared set)
//   - validation_error: arguments do not match the parameter schema
//   - backend_error: the backend failed; retried exactly once for
//     non-mutating operations, surfaced verbatim for mutating ones
func (b *Broker) Invoke(ctx context.Context, bind Binding, operation string, args map[string]any) (any, error) {
	if !bind.Allows(operation) {
		b.logger.Warn("broker.invoke.unauthorized", "agent_id", bind.AgentID, "operation", operation)
		return nil, core.AgentError(core.KindUnauthorized, bind.AgentID, nil,
			"operation %q is not in the agent's allowed set", operation)
	}

	op, ok := b.ops[operation]
	if !ok {
		// Bindings are validated at startup, so this indicates a catalog
		// swapped out from under a live binding.
		return nil, core.AgentError(core.KindUnauthorized, bind.AgentID, nil,
			"operation %q is not in the backend catalog", operation)
	}

	if err := b.validateArgs(op, args); err != nil {
		b.logger.Warn("broker.invoke.validation_failed", "agent_id", bind.AgentID, "operation", operation, "error", err.Error())
		return nil, err
	}

	result, err := b.backend.Execute(ctx, operation, args)
	if err != nil && !op.Mutates && ctx.Err() == nil {
		b.logger.Debug("broker.invoke.retry", "agent_id", bind.AgentID, "operation", operation, "error", err.Error())
		result, err = b.backend.Execute(ctx, operation, args)
	}
	if err != nil {
		b.logger.Error("broker.invoke.backend_failed", "agent_id", bind.AgentID, "operation", operation, "error", err.Error())
		return nil, core.AgentError(core.KindBackend, bind.AgentID, err, "operation %q failed", operation)
	}

	b.logger.Info("broker.invoke.success", "agent_id", bind.AgentID, "operation", operation)

	return result, nil
}

func (b *Broker) validateArgs(op Operation, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}

	result, err := b.schemas[op.Name].Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return core.WrapError(core.KindValidation, err, "validating arguments for operation %q", op.Name)
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, e.String())
	}

	return core.NewError(core.KindValidation, "arguments for operation %q do not match its schema: %s",
		op.Name, strings.Join(details, "; "))
}
