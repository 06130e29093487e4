package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/descriptor"
)

// fakeCaller is a scriptable in-process Caller recording every request it
// receives.
type fakeCaller struct {
	id     string
	answer string
	err    error
	delay  time.Duration
	fn     func(req core.AgentRequest) *core.AgentResponse

	mu    sync.Mutex
	calls []core.AgentRequest
}

func (f *fakeCaller) Descriptor() descriptor.Descriptor {
	return descriptor.Descriptor{AgentID: f.id, Endpoint: "http://test/" + f.id, DisplayName: f.id}
}

func (f *fakeCaller) Call(ctx context.Context, req core.AgentRequest) (*core.AgentResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.fn != nil {
		return f.fn(req), nil
	}
	return &core.AgentResponse{Answer: f.answer, Final: true}, nil
}

func (f *fakeCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCaller) lastCall() core.AgentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// -------------------- Registry Tests --------------------

func TestNewRegistryRejectsDuplicateRoles(t *testing.T) {
	_, err := NewRegistry(
		Entry{Role: "support", Agent: &fakeCaller{id: "a"}},
		Entry{Role: "support", Agent: &fakeCaller{id: "b"}},
	)
	assert.Equal(t, core.KindInvalidConfiguration, core.KindOf(err))
}

func TestNewRegistryRejectsEmptyRole(t *testing.T) {
	_, err := NewRegistry(Entry{Agent: &fakeCaller{id: "a"}})
	assert.Equal(t, core.KindInvalidConfiguration, core.KindOf(err))
}

func TestRegistryPreservesOrder(t *testing.T) {
	reg, err := NewRegistry(
		Entry{Role: "customer_data", Agent: &fakeCaller{id: "a"}},
		Entry{Role: "support", Agent: &fakeCaller{id: "b"}},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"customer_data", "support"}, reg.Roles())

	e, ok := reg.Lookup("support")
	assert.True(t, ok)
	assert.Equal(t, "support", e.Role)

	_, ok = reg.Lookup("billing")
	assert.False(t, ok)
}
