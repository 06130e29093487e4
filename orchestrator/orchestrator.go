// Package orchestrator wires configuration, discovery, proxies and a router
// into the engine's front door: one entry point that receives a user query,
// runs it under run-scoped state and an optional deadline, and returns either
// a final answer or a structured failure naming the error kind and the
// implicated agents.
package orchestrator

import (
	"context"
	"errors"

	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/descriptor"
	"github.com/crewlink/crewlink/logging"
	"github.com/crewlink/crewlink/proxy"
	"github.com/crewlink/crewlink/reason"
	"github.com/crewlink/crewlink/router"
)

// Options configure a FrontDoor beyond what the Config carries.
type Options struct {
	// Resolver resolves agent references during construction. Defaults to a
	// fresh resolver.
	Resolver *descriptor.Resolver
	// Logger receives run events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Result is a completed run: the final answer plus the metadata the caller
// may surface. Failures lists the stages that failed in a partial-tolerant
// run; Decision is present for dynamic routing.
type Result struct {
	RunID    string                  `json:"runId"`
	Answer   string                  `json:"answer"`
	Scratch  map[string]any          `json:"scratch,omitempty"`
	Failures map[string]string       `json:"failures,omitempty"`
	Decision *router.RoutingDecision `json:"decision,omitempty"`
}

// FrontDoor is the orchestration entry point. It is safe for concurrent use;
// every Handle call runs under its own conversation state.
type FrontDoor struct {
	mode       Mode
	route      router.Router
	registry   *router.Registry
	runTimeout Duration
	logger     logging.Logger
}

// New builds a FrontDoor from configuration: every agent reference is
// resolved, wrapped in a proxy and registered under its role, then the
// configured routing mode is instantiated. Dynamic and parallel modes need a
// reasoning unit for their decision and synthesis steps.
func New(ctx context.Context, cfg *Config, reasoner reason.Reasoner, optFns ...func(o *Options)) (*FrontDoor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Resolver == nil {
		opts.Resolver = descriptor.NewResolver()
	}

	entries := make([]router.Entry, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		remote, err := proxy.Dial(ctx, opts.Resolver, a.Reference(), func(o *proxy.Options) {
			if cfg.CallTimeout > 0 {
				o.Timeout = cfg.CallTimeout.Std()
			}
			if cfg.MaxRetries > 0 {
				o.MaxRetries = cfg.MaxRetries
			}
			o.Stream = cfg.Stream
			o.Logger = opts.Logger
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, router.Entry{Role: a.Role, Agent: remote, Timeout: a.Timeout.Std()})
	}

	registry, err := router.NewRegistry(entries...)
	if err != nil {
		return nil, err
	}

	return NewFromRegistry(cfg, registry, reasoner, optFns...)
}

// NewFromRegistry builds a FrontDoor over an already assembled registry,
// bypassing discovery. Useful for in-process agents and tests.
func NewFromRegistry(cfg *Config, registry *router.Registry, reasoner reason.Reasoner, optFns ...func(o *Options)) (*FrontDoor, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	var route router.Router
	switch cfg.Mode {
	case ModeSequential:
		route = router.NewSequential(registry, func(o *router.SequentialOptions) {
			o.Logger = opts.Logger
		})
	case ModeDynamic:
		if reasoner == nil {
			return nil, core.NewError(core.KindInvalidConfiguration, "dynamic mode requires a reasoning unit")
		}
		route = router.NewDynamic(registry, reasoner, func(o *router.DynamicOptions) {
			o.Budget = cfg.Budget
			o.Logger = opts.Logger
		})
	case ModeParallel:
		if reasoner == nil {
			return nil, core.NewError(core.KindInvalidConfiguration, "parallel mode requires a reasoning unit")
		}
		route = router.NewParallel(registry, reasoner, func(o *router.ParallelOptions) {
			o.Logger = opts.Logger
		})
	default:
		return nil, core.NewError(core.KindInvalidConfiguration, "unknown routing mode %q", cfg.Mode)
	}

	return &FrontDoor{
		mode:       cfg.Mode,
		route:      route,
		registry:   registry,
		runTimeout: cfg.RunTimeout,
		logger:     opts.Logger,
	}, nil
}

// Registry exposes the assembled registry, mainly for inspection.
func (f *FrontDoor) Registry() *router.Registry { return f.registry }

// Handle runs one query end to end. Run state is created fresh and discarded
// after the final answer; when the run deadline expires, outstanding proxy
// calls are abandoned via context cancellation and the run fails with a
// run_timeout.
func (f *FrontDoor) Handle(ctx context.Context, query string) (*Result, error) {
	if query == "" {
		return nil, core.NewError(core.KindValidation, "empty query")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if f.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, f.runTimeout.Std())
		defer cancel()
	}

	conv := core.NewConversation()
	conv.Append(core.NewTurn(core.RoleUser, query))

	f.logger.Info("orchestrator.run.start", "run_id", conv.RunID(), "mode", string(f.mode))

	outcome, err := f.route.Route(runCtx, conv, query)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			err = core.WrapError(core.KindRunTimeout, err, "run %s exceeded its deadline", conv.RunID())
		}
		f.logger.Error("orchestrator.run.failed", "run_id", conv.RunID(), "kind", string(core.KindOf(err)), "error", err.Error())
		return nil, err
	}

	f.logger.Info("orchestrator.run.done", "run_id", conv.RunID(), "failures", len(outcome.Failures))

	return &Result{
		RunID:    conv.RunID(),
		Answer:   outcome.Answer,
		Scratch:  outcome.Scratch,
		Failures: outcome.Failures,
		Decision: outcome.Decision,
	}, nil
}

// FailedAgents extracts the implicated agent names from a run error.
func FailedAgents(err error) []string {
	var agents []string
	for e := err; e != nil; {
		var ce *core.Error
		if !errors.As(e, &ce) {
			break
		}
		if ce.Agent != "" {
			agents = append(agents, ce.Agent)
		}
		e = ce.Cause
	}
	return agents
}
