package router

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/logging"
	"github.com/crewlink/crewlink/reason"
)

// ParallelOptions configure a Parallel router.
type ParallelOptions struct {
	Logger logging.Logger
}

// Parallel dispatches the query to every registered agent concurrently, each
// under its own timeout, and synthesizes the successful answers into one
// final answer via a reasoning call. Individual failures are tolerated and
// reported; the run fails only when no agent succeeds.
type Parallel struct {
	registry *Registry
	reasoner reason.Reasoner
	logger   logging.Logger
}

// NewParallel creates a Parallel router using the given reasoning unit for
// the synthesis step.
func NewParallel(registry *Registry, reasoner reason.Reasoner, optFns ...func(o *ParallelOptions)) *Parallel {
	opts := ParallelOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Parallel{registry: registry, reasoner: reasoner, logger: opts.Logger}
}

// Route implements Router. Outcomes are collected in registry order so the
// synthesis input is deterministic regardless of completion order.
func (p *Parallel) Route(ctx context.Context, conv *core.Conversation, query string) (*Outcome, error) {
	entries := p.registry.Entries()
	req := buildRequest(conv, query)

	type result struct {
		resp *core.AgentResponse
		err  error
	}
	results := make([]result, len(entries))

	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func(i int, e Entry) {
			defer wg.Done()
			resp, err := callEntry(ctx, e, req)
			results[i] = result{resp: resp, err: err}
		}(i, e)
	}
	wg.Wait()

	failures := map[string]string{}
	succeeded := 0

	for i, e := range entries {
		if results[i].err != nil {
			p.logger.Warn("router.parallel.agent_failed", "run_id", conv.RunID(), "role", e.Role, "error", results[i].err.Error())
			failures[e.Role] = results[i].err.Error()
			continue
		}
		conv.SetScratch(e.Role, results[i].resp.Answer)
		succeeded++
	}

	if succeeded == 0 {
		causes := make([]string, 0, len(entries))
		for _, e := range entries {
			causes = append(causes, fmt.Sprintf("%s: %s", e.Role, failures[e.Role]))
		}
		return nil, core.NewError(core.KindAllAgentsFailed,
			"no agent produced an answer: %s", strings.Join(causes, "; "))
	}

	answer, err := p.synthesize(ctx, query, entries, func(i int) (string, bool) {
		if results[i].err != nil {
			return results[i].err.Error(), false
		}
		return results[i].resp.Answer, true
	})
	if err != nil {
		return nil, core.WrapError(core.KindStageFailure, err, "synthesis step failed")
	}

	conv.Append(core.NewTurn(core.RoleAssistant, answer))

	return &Outcome{Answer: answer, Scratch: conv.Scratch(), Failures: failures}, nil
}

// synthesize combines the per-agent outcomes into one answer. Failed agents
// appear as "unavailable: <cause>" so the synthesis can acknowledge gaps
// instead of inventing content for them.
func (p *Parallel) synthesize(ctx context.Context, query string, entries []Entry, outcome func(i int) (string, bool)) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "User query: %s\n\nAgent results:\n", query)

	for i, e := range entries {
		text, ok := outcome(i)
		if !ok {
			text = "unavailable: " + text
		}
		fmt.Fprintf(&sb, "\n[%s]\n%s\n", e.Role, text)
	}

	res, err := p.reasoner.Reason(ctx, reason.Request{
		Instruction: "Combine the agent results below into a single coherent answer to the user's query. " +
			"Mention when a relevant agent was unavailable; never invent content for it.",
		History: []core.Turn{core.NewTurn(core.RoleUser, sb.String())},
	})
	if err != nil {
		return "", err
	}
	if !res.IsFinal() {
		return "", fmt.Errorf("synthesis step returned a tool call instead of an answer")
	}

	return res.Answer, nil
}
