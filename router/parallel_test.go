package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/reason"
)

func synthesisReasoner() *reason.MockReasoner {
	return reason.NewMockReasoner("synth").SetFallback(func(req reason.Request) *reason.Decision {
		return &reason.Decision{Answer: "synthesized"}
	})
}

func TestParallelRunsConcurrently(t *testing.T) {
	stageDelay := 100 * time.Millisecond

	reg, err := NewRegistry(
		Entry{Role: "a", Agent: &fakeCaller{id: "a", answer: "A", delay: stageDelay}},
		Entry{Role: "b", Agent: &fakeCaller{id: "b", answer: "B", delay: stageDelay}},
		Entry{Role: "c", Agent: &fakeCaller{id: "c", answer: "C", delay: stageDelay}},
	)
	require.NoError(t, err)

	start := time.Now()
	outcome, err := NewParallel(reg, synthesisReasoner()).Route(context.Background(), core.NewConversation(), "q")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "synthesized", outcome.Answer)

	// Wall time tracks the slowest agent, not the sum of all three.
	assert.Less(t, elapsed, 3*stageDelay)
}

func TestParallelToleratesPartialFailure(t *testing.T) {
	reg, err := NewRegistry(
		Entry{Role: "customer_data", Agent: &fakeCaller{id: "customer-data", answer: "customer found"}},
		Entry{Role: "support", Agent: &fakeCaller{id: "support", err: errors.New("connection reset")}},
	)
	require.NoError(t, err)

	synth := synthesisReasoner()
	outcome, err := NewParallel(reg, synth).Route(context.Background(), core.NewConversation(), "q")
	require.NoError(t, err)

	assert.Equal(t, "synthesized", outcome.Answer)
	assert.Contains(t, outcome.Failures["support"], "connection reset")
	assert.Equal(t, "customer found", outcome.Scratch["customer_data"])

	// The synthesis input marks the failed agent unavailable instead of
	// dropping it.
	calls := synth.Calls()
	require.Len(t, calls, 1)
	input := calls[0].History[0].Content
	assert.Contains(t, input, "unavailable: ")
	assert.Contains(t, input, "connection reset")
}

func TestParallelAllAgentsFailed(t *testing.T) {
	reg, err := NewRegistry(
		Entry{Role: "a", Agent: &fakeCaller{id: "a", err: errors.New("down")}},
		Entry{Role: "b", Agent: &fakeCaller{id: "b", err: errors.New("also down")}},
	)
	require.NoError(t, err)

	synth := synthesisReasoner()
	_, err = NewParallel(reg, synth).Route(context.Background(), core.NewConversation(), "q")

	assert.Equal(t, core.KindAllAgentsFailed, core.KindOf(err))
	assert.Contains(t, err.Error(), "down")

	// No synthesis happens when there is nothing to synthesize.
	assert.Empty(t, synth.Calls())
}

func TestParallelSynthesisInputIsRegistryOrdered(t *testing.T) {
	reg, err := NewRegistry(
		Entry{Role: "zeta", Agent: &fakeCaller{id: "z", answer: "Z", delay: 50 * time.Millisecond}},
		Entry{Role: "alpha", Agent: &fakeCaller{id: "a", answer: "A"}},
	)
	require.NoError(t, err)

	synth := synthesisReasoner()
	_, err = NewParallel(reg, synth).Route(context.Background(), core.NewConversation(), "q")
	require.NoError(t, err)

	input := synth.Calls()[0].History[0].Content
	// zeta finished last but is registered first, so it appears first.
	assert.Less(t, strings.Index(input, "[zeta]"), strings.Index(input, "[alpha]"))
}

func TestParallelPerEntryTimeout(t *testing.T) {
	reg, err := NewRegistry(
		Entry{Role: "fast", Agent: &fakeCaller{id: "f", answer: "quick"}},
		Entry{Role: "slow", Agent: &fakeCaller{id: "s", answer: "late", delay: time.Second}, Timeout: 20 * time.Millisecond},
	)
	require.NoError(t, err)

	outcome, err := NewParallel(reg, synthesisReasoner()).Route(context.Background(), core.NewConversation(), "q")
	require.NoError(t, err)

	assert.Equal(t, "quick", outcome.Scratch["fast"])
	assert.Contains(t, outcome.Failures, "slow")
}
