// Package core holds the shared vocabulary of the orchestration engine:
// conversation turns and run-scoped state, the agent request/response wire
// shapes exchanged between the proxy and remote agents, and the structured
// error taxonomy used across every component.
//
// Everything here is run-scoped. State is created per incoming query, mutated
// by the stages a router invokes, and discarded once the final answer is
// returned; durability is the operation backend's concern.
package core
