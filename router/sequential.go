package router

import (
	"context"

	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/logging"
)

// SequentialOptions configure a Sequential router.
type SequentialOptions struct {
	Logger logging.Logger
}

// Sequential dispatches to every registered agent in registration order. Each
// stage's output is merged into the scratch map under the stage's role before
// the next stage runs, so later agents build on earlier results. A stage
// failure is terminal for the run.
type Sequential struct {
	registry *Registry
	logger   logging.Logger
}

// NewSequential creates a Sequential router over the registry.
func NewSequential(registry *Registry, optFns ...func(o *SequentialOptions)) *Sequential {
	opts := SequentialOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Sequential{registry: registry, logger: opts.Logger}
}

// Route implements Router.
func (s *Sequential) Route(ctx context.Context, conv *core.Conversation, query string) (*Outcome, error) {
	return runPipeline(ctx, s.registry.Entries(), conv, query, s.logger)
}

// runPipeline executes entries in order with sequential merge semantics. It
// is shared with the Dynamic router, which runs its selected subset the same
// way.
func runPipeline(ctx context.Context, entries []Entry, conv *core.Conversation, query string, logger logging.Logger) (*Outcome, error) {
	var last *core.AgentResponse

	for _, e := range entries {
		logger.Info("router.stage.start", "run_id", conv.RunID(), "role", e.Role)

		resp, err := callEntry(ctx, e, buildRequest(conv, query))
		if err != nil {
			logger.Error("router.stage.failed", "run_id", conv.RunID(), "role", e.Role, "error", err.Error())
			return nil, core.AgentError(core.KindStageFailure, e.Agent.Descriptor().AgentID, err,
				"stage %q failed", e.Role)
		}

		conv.SetScratch(e.Role, resp.Answer)
		turn := core.NewTurn(core.RoleAssistant, resp.Answer)
		turn.ToolName = e.Role
		conv.Append(turn)
		last = resp
	}

	outcome := &Outcome{Scratch: conv.Scratch()}
	if last != nil {
		outcome.Answer = last.Answer
	}
	return outcome, nil
}
