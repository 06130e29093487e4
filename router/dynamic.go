package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/logging"
	"github.com/crewlink/crewlink/reason"
)

// DynamicOptions configure a Dynamic router.
type DynamicOptions struct {
	// Budget caps the number of agents one query may involve. Zero means the
	// full registry size.
	Budget int
	Logger logging.Logger
}

// Dynamic selects which agents to involve per query via a reasoning-unit
// decision step. The decision is validated fail-closed: an unknown agent name
// aborts the run before any remote call, and selecting zero agents produces a
// direct clarification answer. Selected agents run with sequential merge
// semantics; unselected agents are never called.
type Dynamic struct {
	registry *Registry
	reasoner reason.Reasoner
	budget   int
	logger   logging.Logger
}

// NewDynamic creates a Dynamic router using the given reasoning unit for the
// selection step.
func NewDynamic(registry *Registry, reasoner reason.Reasoner, optFns ...func(o *DynamicOptions)) *Dynamic {
	opts := DynamicOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Budget <= 0 {
		opts.Budget = registry.Len()
	}
	return &Dynamic{registry: registry, reasoner: reasoner, budget: opts.Budget, logger: opts.Logger}
}

// Route implements Router.
func (d *Dynamic) Route(ctx context.Context, conv *core.Conversation, query string) (*Outcome, error) {
	decision, err := d.decide(ctx, query)
	if err != nil {
		return nil, err
	}

	d.logger.Info("router.dynamic.decision", "run_id", conv.RunID(),
		"selected", strings.Join(decision.SelectedAgents, ","), "rationale", decision.Rationale)

	entries := make([]Entry, 0, len(decision.SelectedAgents))
	seen := map[string]bool{}
	for _, role := range decision.SelectedAgents {
		e, ok := d.registry.Lookup(role)
		if !ok {
			return nil, core.NewError(core.KindInvalidRoutingDecision,
				"routing decision selected unknown agent %q", role)
		}
		// Duplicate selections collapse to the first occurrence.
		if seen[role] {
			continue
		}
		seen[role] = true
		entries = append(entries, e)
	}

	if len(entries) > d.budget {
		return nil, core.NewError(core.KindBudgetExceeded,
			"routing decision selected %d agents, budget is %d", len(entries), d.budget)
	}

	if len(entries) == 0 {
		answer := decision.Rationale
		if answer == "" {
			answer = "I need more detail to route this request. Could you clarify what you are trying to do?"
		}
		return &Outcome{Answer: answer, Decision: decision, Scratch: conv.Scratch()}, nil
	}

	outcome, err := runPipeline(ctx, entries, conv, query, d.logger)
	if err != nil {
		return nil, err
	}
	outcome.Decision = decision

	return outcome, nil
}

// decide asks the reasoning unit for a routing decision and parses it
// fail-closed: anything that is not a well-formed decision document aborts
// with zero remote calls.
func (d *Dynamic) decide(ctx context.Context, query string) (*RoutingDecision, error) {
	res, err := d.reasoner.Reason(ctx, reason.Request{
		Instruction: d.decisionInstruction(),
		History:     []core.Turn{core.NewTurn(core.RoleUser, query)},
	})
	if err != nil {
		return nil, core.WrapError(core.KindInvalidRoutingDecision, err, "routing decision step failed")
	}
	if !res.IsFinal() {
		return nil, core.NewError(core.KindInvalidRoutingDecision,
			"routing decision step returned a tool call instead of a decision")
	}

	decision, err := parseDecision(res.Answer)
	if err != nil {
		return nil, core.WrapError(core.KindInvalidRoutingDecision, err, "parsing routing decision")
	}

	return decision, nil
}

func (d *Dynamic) decisionInstruction() string {
	var sb strings.Builder
	sb.WriteString("You are a routing controller for a team of specialist agents. ")
	sb.WriteString("Decide which agents, in order, should handle the user's query.\n\nAgents:\n")

	for _, e := range d.registry.Entries() {
		desc := e.Agent.Descriptor()
		fmt.Fprintf(&sb, "- %s: %s", e.Role, desc.DisplayName)
		for _, skill := range desc.Skills {
			fmt.Fprintf(&sb, "\n    %s: %s", skill.SkillID, skill.Description)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nRespond with JSON only, no prose:\n")
	sb.WriteString(`{"selectedAgents": ["role", ...], "rationale": "...", "skipReasons": {"role": "..."}}` + "\n")
	sb.WriteString("Select the minimal set of agents that can answer the query. ")
	sb.WriteString("If the query is too vague to route, select no agents and put a clarification question in the rationale.")

	return sb.String()
}

// parseDecision decodes a decision document, tolerating a fenced code block
// around the JSON.
func parseDecision(raw string) (*RoutingDecision, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}

	var decision RoutingDecision
	if err := json.Unmarshal([]byte(text), &decision); err != nil {
		return nil, fmt.Errorf("decision is not valid JSON: %w", err)
	}

	return &decision, nil
}
