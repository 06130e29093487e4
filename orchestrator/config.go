package orchestrator

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/descriptor"
)

// Mode selects the routing strategy.
type Mode string

const (
	// ModeSequential runs every agent in registration order.
	ModeSequential Mode = "sequential"
	// ModeDynamic lets a reasoning step select the agents per query.
	ModeDynamic Mode = "dynamic"
	// ModeParallel fans out to all agents and synthesizes the answers.
	ModeParallel Mode = "parallel"
)

// Duration wraps time.Duration with YAML decoding of strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AgentConfig registers one agent: a routing role plus either a discovery URL
// or an inline descriptor.
type AgentConfig struct {
	Role       string                 `yaml:"role"`
	URL        string                 `yaml:"url,omitempty"`
	Descriptor *descriptor.Descriptor `yaml:"descriptor,omitempty"`
	// Timeout caps this agent's stage within a run. Zero leaves the proxy's
	// call timeout in charge.
	Timeout Duration `yaml:"timeout,omitempty"`
}

// Config is the orchestrator configuration, typically loaded from YAML.
type Config struct {
	Mode Mode `yaml:"mode"`
	// Budget caps the agents one dynamic run may involve. Zero means the
	// registry size.
	Budget int `yaml:"budget,omitempty"`
	// RunTimeout is the whole-run deadline. Zero disables it.
	RunTimeout Duration `yaml:"runTimeout,omitempty"`
	// CallTimeout is the hard per-call deadline applied by the proxy.
	CallTimeout Duration `yaml:"callTimeout,omitempty"`
	// MaxRetries bounds proxy re-attempts after an unreachable endpoint.
	MaxRetries int `yaml:"maxRetries,omitempty"`
	// Stream selects the chunked invoke endpoint for remote calls.
	Stream bool          `yaml:"stream,omitempty"`
	Agents []AgentConfig `yaml:"agents"`
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.WrapError(core.KindInvalidConfiguration, err, "reading config %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, core.WrapError(core.KindInvalidConfiguration, err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration at load time so an unknown mode or a
// malformed agent entry never reaches a live run.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeSequential, ModeDynamic, ModeParallel:
	default:
		return core.NewError(core.KindInvalidConfiguration, "unknown routing mode %q", c.Mode)
	}

	if len(c.Agents) == 0 {
		return core.NewError(core.KindInvalidConfiguration, "no agents configured")
	}
	if c.Budget < 0 {
		return core.NewError(core.KindInvalidConfiguration, "budget must not be negative")
	}

	seen := map[string]bool{}
	for i, a := range c.Agents {
		if a.Role == "" {
			return core.NewError(core.KindInvalidConfiguration, "agent %d has no role", i)
		}
		if seen[a.Role] {
			return core.NewError(core.KindInvalidConfiguration, "duplicate agent role %q", a.Role)
		}
		seen[a.Role] = true

		if (a.URL == "") == (a.Descriptor == nil) {
			return core.NewError(core.KindInvalidConfiguration,
				"agent %q must set exactly one of url or descriptor", a.Role)
		}
		if a.Descriptor != nil {
			if err := a.Descriptor.Validate(); err != nil {
				return core.WrapError(core.KindInvalidConfiguration, err, "agent %q descriptor", a.Role)
			}
		}
	}

	return nil
}

// Reference returns the descriptor reference for an agent entry.
func (a AgentConfig) Reference() descriptor.Reference {
	if a.Descriptor != nil {
		return descriptor.RefInline(*a.Descriptor)
	}
	return descriptor.RefURL(a.URL)
}
