package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewlink/crewlink/core"
)

func TestSequentialMergesScratchBetweenStages(t *testing.T) {
	first := &fakeCaller{id: "a", answer: "customer 3 is disabled"}
	second := &fakeCaller{id: "b", fn: func(req core.AgentRequest) *core.AgentResponse {
		// The second stage must observe the first stage's output.
		v, ok := req.Scratch["customer_data"]
		require.True(t, ok)
		return &core.AgentResponse{Answer: "opened ticket referencing: " + v.(string), Final: true}
	}}

	reg, err := NewRegistry(
		Entry{Role: "customer_data", Agent: first},
		Entry{Role: "support", Agent: second},
	)
	require.NoError(t, err)

	conv := core.NewConversation()
	outcome, err := NewSequential(reg).Route(context.Background(), conv, "customer 3 cannot log in")
	require.NoError(t, err)

	assert.Equal(t, "opened ticket referencing: customer 3 is disabled", outcome.Answer)
	assert.Equal(t, "customer 3 is disabled", outcome.Scratch["customer_data"])
	assert.Equal(t, outcome.Answer, outcome.Scratch["support"])

	// Both stages saw the original query.
	assert.Equal(t, "customer 3 cannot log in", first.lastCall().Query)
	assert.Equal(t, "customer 3 cannot log in", second.lastCall().Query)
}

func TestSequentialStageFailureIsTerminal(t *testing.T) {
	first := &fakeCaller{id: "a", err: errors.New("boom")}
	second := &fakeCaller{id: "b", answer: "never reached"}

	reg, err := NewRegistry(
		Entry{Role: "customer_data", Agent: first},
		Entry{Role: "support", Agent: second},
	)
	require.NoError(t, err)

	_, err = NewSequential(reg).Route(context.Background(), core.NewConversation(), "q")
	require.Error(t, err)

	assert.Equal(t, core.KindStageFailure, core.KindOf(err))

	var ce *core.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "a", ce.Agent)

	// Downstream stages never run after a terminal failure.
	assert.Equal(t, 0, second.callCount())
}

func TestSequentialAppendsStageTurns(t *testing.T) {
	reg, err := NewRegistry(Entry{Role: "support", Agent: &fakeCaller{id: "a", answer: "done"}})
	require.NoError(t, err)

	conv := core.NewConversation()
	_, err = NewSequential(reg).Route(context.Background(), conv, "q")
	require.NoError(t, err)

	turns := conv.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, core.RoleAssistant, turns[0].Role)
	assert.Equal(t, "done", turns[0].Content)
}
