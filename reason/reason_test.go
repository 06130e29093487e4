package reason

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewlink/crewlink/core"
)

func TestDecisionIsFinal(t *testing.T) {
	assert.True(t, (&Decision{Answer: "done"}).IsFinal())
	assert.False(t, (&Decision{ToolCall: &ToolCall{Operation: "get_customer"}}).IsFinal())
}

func TestMockReasonerScript(t *testing.T) {
	m := NewMockReasoner("scripted").Enqueue(
		&Decision{ToolCall: &ToolCall{Operation: "get_customer", Args: map[string]any{"customer_id": 1}}},
		&Decision{Answer: "Customer 1 is active."},
	)

	d, err := m.Reason(context.Background(), Request{})
	require.NoError(t, err)
	require.NotNil(t, d.ToolCall)
	assert.Equal(t, "get_customer", d.ToolCall.Operation)

	d, err = m.Reason(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "Customer 1 is active.", d.Answer)

	// Script exhausted, the echo fallback takes over.
	d, err = m.Reason(context.Background(), Request{History: []core.Turn{core.NewTurn(core.RoleUser, "ping")}})
	require.NoError(t, err)
	assert.Equal(t, "Mock answer to: ping", d.Answer)

	assert.Len(t, m.Calls(), 3)
}

func TestMockReasonerFailWith(t *testing.T) {
	m := NewMockReasoner("failing").FailWith(errors.New("provider down"))

	_, err := m.Reason(context.Background(), Request{})
	assert.ErrorContains(t, err, "provider down")
}

func TestMockReasonerHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockReasoner("ctx").Reason(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}
