package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewlink/crewlink/core"
)

const sampleConfig = `
mode: dynamic
budget: 2
runTimeout: 90s
callTimeout: 30s
maxRetries: 2
agents:
  - role: customer_data
    url: http://127.0.0.1:8101
    timeout: 20s
  - role: support
    descriptor:
      agentId: support
      endpoint: http://127.0.0.1:8102
      displayName: Support Ticket Agent
      skills:
        - skillId: ticket-handling
          description: Create and update tickets
`

func TestParseConfig(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ModeDynamic, cfg.Mode)
	assert.Equal(t, 2, cfg.Budget)
	assert.Equal(t, 90*time.Second, cfg.RunTimeout.Std())
	assert.Equal(t, 30*time.Second, cfg.CallTimeout.Std())
	assert.Equal(t, 2, cfg.MaxRetries)

	require.Len(t, cfg.Agents, 2)
	assert.Equal(t, "http://127.0.0.1:8101", cfg.Agents[0].URL)
	assert.Equal(t, 20*time.Second, cfg.Agents[0].Timeout.Std())

	require.NotNil(t, cfg.Agents[1].Descriptor)
	assert.Equal(t, "support", cfg.Agents[1].Descriptor.AgentID)
	require.Len(t, cfg.Agents[1].Descriptor.Skills, 1)
	assert.Equal(t, "ticket-handling", cfg.Agents[1].Descriptor.Skills[0].SkillID)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crewlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeDynamic, cfg.Mode)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, core.KindInvalidConfiguration, core.KindOf(err))
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	_, err := Parse([]byte("mode: roundrobin\nagents:\n  - role: a\n    url: http://x\n"))
	assert.Equal(t, core.KindInvalidConfiguration, core.KindOf(err))
	assert.Contains(t, err.Error(), "roundrobin")
}

func TestValidateRejectsEmptyAgents(t *testing.T) {
	_, err := Parse([]byte("mode: sequential\n"))
	assert.Equal(t, core.KindInvalidConfiguration, core.KindOf(err))
}

func TestValidateRejectsDuplicateRoles(t *testing.T) {
	cfg := &Config{Mode: ModeSequential, Agents: []AgentConfig{
		{Role: "support", URL: "http://a"},
		{Role: "support", URL: "http://b"},
	}}
	err := cfg.Validate()
	assert.Equal(t, core.KindInvalidConfiguration, core.KindOf(err))
}

func TestValidateRequiresExactlyOneSource(t *testing.T) {
	neither := &Config{Mode: ModeSequential, Agents: []AgentConfig{{Role: "support"}}}
	assert.Equal(t, core.KindInvalidConfiguration, core.KindOf(neither.Validate()))

	both := &Config{Mode: ModeSequential, Agents: []AgentConfig{{
		Role: "support",
		URL:  "http://a",
		Descriptor: &descriptorFixture,
	}}}
	assert.Equal(t, core.KindInvalidConfiguration, core.KindOf(both.Validate()))
}

func TestValidateRejectsIncompleteInlineDescriptor(t *testing.T) {
	cfg := &Config{Mode: ModeSequential, Agents: []AgentConfig{{
		Role:       "support",
		Descriptor: &incompleteDescriptorFixture,
	}}}
	assert.Equal(t, core.KindInvalidConfiguration, core.KindOf(cfg.Validate()))
}

func TestDurationRejectsMalformedValue(t *testing.T) {
	_, err := Parse([]byte("mode: sequential\nrunTimeout: soon\nagents:\n  - role: a\n    url: http://x\n"))
	assert.Equal(t, core.KindInvalidConfiguration, core.KindOf(err))
}
