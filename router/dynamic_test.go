package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/reason"
)

func dynamicRegistry(t *testing.T) (*Registry, *fakeCaller, *fakeCaller) {
	t.Helper()

	customer := &fakeCaller{id: "customer-data", answer: "customer 5 found"}
	support := &fakeCaller{id: "support", answer: "duplicate charge refunded"}

	reg, err := NewRegistry(
		Entry{Role: "customer_data", Agent: customer},
		Entry{Role: "support", Agent: support},
	)
	require.NoError(t, err)

	return reg, customer, support
}

func decisionReasoner(decision string) *reason.MockReasoner {
	return reason.NewMockReasoner("decider").Enqueue(&reason.Decision{Answer: decision})
}

func TestDynamicRunsOnlySelectedAgents(t *testing.T) {
	reg, customer, support := dynamicRegistry(t)
	reasoner := decisionReasoner(`{"selectedAgents":["support"],"rationale":"billing issue","skipReasons":{"customer_data":"no account question"}}`)

	outcome, err := NewDynamic(reg, reasoner).Route(context.Background(), core.NewConversation(),
		"My statement shows a duplicate charge")
	require.NoError(t, err)

	assert.Equal(t, "duplicate charge refunded", outcome.Answer)
	require.NotNil(t, outcome.Decision)
	assert.Equal(t, []string{"support"}, outcome.Decision.SelectedAgents)
	assert.Equal(t, "no account question", outcome.Decision.SkipReasons["customer_data"])

	assert.Equal(t, 1, support.callCount())
	assert.Equal(t, 0, customer.callCount())
}

func TestDynamicUnknownAgentFailsClosed(t *testing.T) {
	reg, customer, support := dynamicRegistry(t)
	reasoner := decisionReasoner(`{"selectedAgents":["billing"],"rationale":"sounds like billing"}`)

	_, err := NewDynamic(reg, reasoner).Route(context.Background(), core.NewConversation(), "q")
	assert.Equal(t, core.KindInvalidRoutingDecision, core.KindOf(err))

	// Fail-closed: no remote call may happen on an invalid decision.
	assert.Equal(t, 0, customer.callCount())
	assert.Equal(t, 0, support.callCount())
}

func TestDynamicMalformedDecisionFailsClosed(t *testing.T) {
	reg, customer, support := dynamicRegistry(t)
	reasoner := decisionReasoner(`definitely route to support`)

	_, err := NewDynamic(reg, reasoner).Route(context.Background(), core.NewConversation(), "q")
	assert.Equal(t, core.KindInvalidRoutingDecision, core.KindOf(err))
	assert.Equal(t, 0, customer.callCount())
	assert.Equal(t, 0, support.callCount())
}

func TestDynamicToleratesFencedDecision(t *testing.T) {
	reg, _, support := dynamicRegistry(t)
	reasoner := decisionReasoner("```json\n{\"selectedAgents\":[\"support\"]}\n```")

	outcome, err := NewDynamic(reg, reasoner).Route(context.Background(), core.NewConversation(), "q")
	require.NoError(t, err)
	assert.Equal(t, "duplicate charge refunded", outcome.Answer)
	assert.Equal(t, 1, support.callCount())
}

func TestDynamicZeroAgentsIsClarification(t *testing.T) {
	reg, customer, support := dynamicRegistry(t)
	reasoner := decisionReasoner(`{"selectedAgents":[],"rationale":"Which account is this about?"}`)

	outcome, err := NewDynamic(reg, reasoner).Route(context.Background(), core.NewConversation(), "it is broken")
	require.NoError(t, err)

	assert.Equal(t, "Which account is this about?", outcome.Answer)
	assert.Equal(t, 0, customer.callCount())
	assert.Equal(t, 0, support.callCount())
}

func TestDynamicBudgetExceeded(t *testing.T) {
	reg, customer, support := dynamicRegistry(t)
	reasoner := decisionReasoner(`{"selectedAgents":["customer_data","support"]}`)

	_, err := NewDynamic(reg, reasoner, func(o *DynamicOptions) { o.Budget = 1 }).
		Route(context.Background(), core.NewConversation(), "q")

	assert.Equal(t, core.KindBudgetExceeded, core.KindOf(err))
	assert.Equal(t, 0, customer.callCount())
	assert.Equal(t, 0, support.callCount())
}

func TestDynamicSelectedAgentsRunSequentially(t *testing.T) {
	customer := &fakeCaller{id: "customer-data", answer: "customer 3 is disabled"}
	support := &fakeCaller{id: "support", fn: func(req core.AgentRequest) *core.AgentResponse {
		v, _ := req.Scratch["customer_data"].(string)
		return &core.AgentResponse{Answer: "ticket opened for: " + v, Final: true}
	}}

	reg, err := NewRegistry(
		Entry{Role: "customer_data", Agent: customer},
		Entry{Role: "support", Agent: support},
	)
	require.NoError(t, err)

	reasoner := decisionReasoner(`{"selectedAgents":["customer_data","support"]}`)

	outcome, err := NewDynamic(reg, reasoner).Route(context.Background(), core.NewConversation(), "q")
	require.NoError(t, err)
	assert.Equal(t, "ticket opened for: customer 3 is disabled", outcome.Answer)
}

func TestDynamicDecisionPromptListsAgents(t *testing.T) {
	reg, _, _ := dynamicRegistry(t)
	reasoner := decisionReasoner(`{"selectedAgents":[]}`)

	_, err := NewDynamic(reg, reasoner).Route(context.Background(), core.NewConversation(), "q")
	require.NoError(t, err)

	calls := reasoner.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Instruction, "customer_data")
	assert.Contains(t, calls[0].Instruction, "support")
}
