package core

import (
	"sync"
)

// Conversation tracks an ordered turn history plus a scratch map used to pass
// intermediate results (for example a customer record) between routing stages
// within one orchestration run. It is safe for concurrent access.
//
// Contract:
//   - Turns and Scratch return defensive copies to avoid external mutation
//   - scratch keys are assigned per agent role, so concurrent stages of a
//     parallel run never share a key
type Conversation struct {
	mu      sync.RWMutex
	runID   string
	turns   []Turn
	scratch map[string]any
}

// NewConversation creates empty run-scoped state with a fresh run ID.
func NewConversation() *Conversation {
	return &Conversation{runID: NewID(), scratch: map[string]any{}}
}

// RunID returns the identifier of the orchestration run owning this state.
func (c *Conversation) RunID() string { return c.runID }

// Append adds a turn to the history.
func (c *Conversation) Append(t Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, t)
}

// Turns returns a copy of the full turn history.
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	turns := make([]Turn, len(c.turns))
	copy(turns, c.turns)
	return turns
}

// SetScratch stores an intermediate result under the given key, replacing any
// previous value.
func (c *Conversation) SetScratch(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scratch[key] = value
}

// ScratchValue returns the last written value for a key.
func (c *Conversation) ScratchValue(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.scratch[key]
	return v, ok
}

// Scratch returns a copy of the scratch map.
func (c *Conversation) Scratch() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.scratch))
	for k, v := range c.scratch {
		out[k] = v
	}
	return out
}
