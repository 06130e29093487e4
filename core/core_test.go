package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// -------------------- Error Tests --------------------

func TestErrorFormatting(t *testing.T) {
	err := NewError(KindValidation, "bad args")
	assert.Equal(t, "validation_error: bad args", err.Error())

	wrapped := WrapError(KindBackend, errors.New("disk full"), "insert failed")
	assert.Equal(t, "backend_error: insert failed: disk full", wrapped.Error())

	agentErr := AgentError(KindTimeout, "support", nil, "deadline hit")
	assert.Equal(t, "timeout [agent support]: deadline hit", agentErr.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := AgentError(KindUnreachable, "billing", cause, "endpoint down")

	assert.ErrorIs(t, err, cause)

	var ce *Error
	assert.ErrorAs(t, error(err), &ce)
	assert.Equal(t, KindUnreachable, ce.Kind)
	assert.Equal(t, "billing", ce.Agent)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NewError(KindNotFound, "missing")))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestIsKindWalksCauseChain(t *testing.T) {
	inner := NewError(KindTimeout, "call deadline")
	outer := WrapError(KindStageFailure, inner, "stage support failed")

	assert.True(t, IsKind(outer, KindStageFailure))
	assert.True(t, IsKind(outer, KindTimeout))
	assert.False(t, IsKind(outer, KindUnauthorized))
}

// -------------------- Conversation Tests --------------------

func TestConversationTurnsAreCopied(t *testing.T) {
	conv := NewConversation()
	conv.Append(NewTurn(RoleUser, "hello"))

	turns := conv.Turns()
	turns[0].Content = "mutated"

	assert.Equal(t, "hello", conv.Turns()[0].Content)
}

func TestConversationScratchLastWriteWins(t *testing.T) {
	conv := NewConversation()
	conv.SetScratch("customer_data", "v1")
	conv.SetScratch("customer_data", "v2")

	v, ok := conv.ScratchValue("customer_data")
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	snapshot := conv.Scratch()
	snapshot["customer_data"] = "external"
	v, _ = conv.ScratchValue("customer_data")
	assert.Equal(t, "v2", v)
}

func TestConversationRunIDsAreUnique(t *testing.T) {
	a := NewConversation()
	b := NewConversation()
	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())
}

// -------------------- Wire Tests --------------------

func TestAgentResponseMerge(t *testing.T) {
	var acc AgentResponse

	acc.Merge(AgentResponse{ToolCalls: []ToolCallRecord{{Operation: "get_customer"}}})
	acc.Merge(AgentResponse{Answer: "Customer 3 "})
	acc.Merge(AgentResponse{Answer: "is disabled.", Final: true})

	assert.Equal(t, "Customer 3 is disabled.", acc.Answer)
	assert.Len(t, acc.ToolCalls, 1)
	assert.True(t, acc.Final)
}
