// Package agent implements the agent runtime: a reasoning loop that turns an
// instruction, a bound set of operations and a conversation history into tool
// invocations and a final answer, plus the HTTP service exposing it.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/crewlink/crewlink/broker"
	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/descriptor"
	"github.com/crewlink/crewlink/logging"
	"github.com/crewlink/crewlink/reason"
)

// Options configure an Agent.
type Options struct {
	// Instruction is the system prompt framing the agent's role.
	Instruction string
	// MaxSteps bounds the reasoning loop. Defaults to 8.
	MaxSteps int
	// Logger receives loop events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Agent runs the reasoning loop for one agent identity. All operation access
// goes through the broker under the agent's binding; the agent itself never
// touches the backend.
type Agent struct {
	desc        descriptor.Descriptor
	reasoner    reason.Reasoner
	broker      *broker.Broker
	bind        broker.Binding
	instruction string
	maxSteps    int
	logger      logging.Logger
}

// New creates an Agent. The binding is validated against the broker's catalog
// up front so a misconfigured agent fails at startup, not at call time.
func New(desc descriptor.Descriptor, reasoner reason.Reasoner, brk *broker.Broker, bind broker.Binding, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{MaxSteps: 8, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if err := brk.ValidateBinding(bind); err != nil {
		return nil, err
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 8
	}

	return &Agent{
		desc:        desc,
		reasoner:    reasoner,
		broker:      brk,
		bind:        bind,
		instruction: opts.Instruction,
		maxSteps:    opts.MaxSteps,
		logger:      opts.Logger,
	}, nil
}

// Descriptor returns the agent's published descriptor.
func (a *Agent) Descriptor() descriptor.Descriptor { return a.desc }

// Respond runs the reasoning loop to completion and returns the final
// response.
func (a *Agent) Respond(ctx context.Context, req core.AgentRequest) (*core.AgentResponse, error) {
	return a.run(ctx, req, nil)
}

// Call is an alias for Respond so an in-process agent satisfies the same
// caller contract as a remote proxy.
func (a *Agent) Call(ctx context.Context, req core.AgentRequest) (*core.AgentResponse, error) {
	return a.Respond(ctx, req)
}

// RespondStream runs the reasoning loop, emitting a chunk per completed tool
// call followed by a final chunk carrying the answer. The channels are closed
// when the loop ends; at most one error is sent.
func (a *Agent) RespondStream(ctx context.Context, req core.AgentRequest) (<-chan core.AgentResponse, <-chan error) {
	out := make(chan core.AgentResponse, 8)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		final, err := a.run(ctx, req, func(chunk core.AgentResponse) {
			select {
			case out <- chunk:
			case <-ctx.Done():
			}
		})
		if err != nil {
			errCh <- err
			return
		}

		select {
		case out <- core.AgentResponse{Answer: final.Answer, Final: true}:
		case <-ctx.Done():
		}
	}()

	return out, errCh
}

// run executes the bounded reasoning loop. When emit is non-nil, each
// completed tool call is reported as a non-final chunk.
func (a *Agent) run(ctx context.Context, req core.AgentRequest, emit func(core.AgentResponse)) (*core.AgentResponse, error) {
	history := a.buildHistory(req)
	defs := a.toolDefinitions()

	var records []core.ToolCallRecord

	for step := 0; step < a.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		decision, err := a.reasoner.Reason(ctx, reason.Request{
			Instruction: a.instruction,
			Tools:       defs,
			History:     history,
		})
		if err != nil {
			return nil, core.AgentError(core.KindStageFailure, a.desc.AgentID, err, "reasoning step %d failed", step+1)
		}

		if decision.IsFinal() {
			a.logger.Info("agent.respond.final", "agent_id", a.desc.AgentID, "steps", step+1, "tool_calls", len(records))
			return &core.AgentResponse{Answer: decision.Answer, ToolCalls: records, Final: true}, nil
		}

		record := a.invokeTool(ctx, decision.ToolCall, &history)
		records = append(records, record)
		if emit != nil {
			emit(core.AgentResponse{ToolCalls: []core.ToolCallRecord{record}})
		}
	}

	return nil, core.AgentError(core.KindStageFailure, a.desc.AgentID, nil,
		"no final answer after %d reasoning steps", a.maxSteps)
}

// invokeTool dispatches one tool call through the broker and appends the
// assistant/tool turn pair to the history. Invocation failures are fed back to
// the reasoning unit as the tool result rather than aborting the loop, so the
// agent can recover or explain.
func (a *Agent) invokeTool(ctx context.Context, call *reason.ToolCall, history *[]core.Turn) core.ToolCallRecord {
	if call.ID == "" {
		call.ID = core.NewID()
	}

	argsJSON, err := json.Marshal(call.Args)
	if err != nil {
		argsJSON = []byte("{}")
	}

	assistant := core.NewTurn(core.RoleAssistant, string(argsJSON))
	assistant.ToolCallID = call.ID
	assistant.ToolName = call.Operation
	*history = append(*history, assistant)

	record := core.ToolCallRecord{Operation: call.Operation, Args: call.Args}

	result, err := a.broker.Invoke(ctx, a.bind, call.Operation, call.Args)
	if err != nil {
		a.logger.Warn("agent.tool.failed", "agent_id", a.desc.AgentID, "operation", call.Operation, "error", err.Error())
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		record.Result = payload
		*history = append(*history, core.NewToolTurn(call.ID, call.Operation, string(payload)))
		return record
	}

	payload, err := json.Marshal(result)
	if err != nil {
		payload = []byte(fmt.Sprintf("%q", fmt.Sprint(result)))
	}
	record.Result = payload
	*history = append(*history, core.NewToolTurn(call.ID, call.Operation, string(payload)))

	a.logger.Debug("agent.tool.success", "agent_id", a.desc.AgentID, "operation", call.Operation)

	return record
}

// buildHistory assembles the loop's working history: the caller-provided
// turns, any scratch context from earlier routing stages, then the query.
func (a *Agent) buildHistory(req core.AgentRequest) []core.Turn {
	history := make([]core.Turn, 0, len(req.History)+2)
	history = append(history, req.History...)

	if len(req.Scratch) > 0 {
		history = append(history, core.NewTurn(core.RoleSystem, renderScratch(req.Scratch)))
	}
	if req.Query != "" {
		history = append(history, core.NewTurn(core.RoleUser, req.Query))
	}

	return history
}

// renderScratch formats accumulated stage results so the reasoning unit can
// build on them. Keys are sorted for deterministic prompts.
func renderScratch(scratch map[string]any) string {
	keys := make([]string, 0, len(scratch))
	for k := range scratch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := "Context from earlier stages:"
	for _, k := range keys {
		v, err := json.Marshal(scratch[k])
		if err != nil {
			v = []byte(fmt.Sprint(scratch[k]))
		}
		out += fmt.Sprintf("\n%s: %s", k, v)
	}
	return out
}

func (a *Agent) toolDefinitions() []reason.ToolDefinition {
	ops := a.broker.Definitions(a.bind)
	defs := make([]reason.ToolDefinition, len(ops))
	for i, op := range ops {
		defs[i] = reason.ToolDefinition{
			Name:        op.Name,
			Description: op.Description,
			Parameters:  op.Parameters,
		}
	}
	return defs
}
