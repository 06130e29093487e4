// Package crewlink coordinates independent agent services behind a single
// front door. Agents publish capability descriptors at a well-known path,
// the remote proxy turns a descriptor into a callable unit with timeout and
// retry semantics, and a pluggable router decides which agents handle a
// query and how their outputs are combined.
//
// The main packages are:
//
//   - core: conversation state, wire types and the error taxonomy
//   - descriptor: capability descriptors and discovery resolution
//   - broker: tool-access mediation between agents and the operation backend
//   - backend: the SQLite-backed customer/ticket operation backend
//   - reason: the reasoning-unit contract with OpenAI and Anthropic providers
//   - agent: the agent runtime (reasoning loop + HTTP service)
//   - proxy: the remote agent invocation proxy
//   - router: sequential, dynamic and parallel routing strategies
//   - orchestrator: configuration and the front door
//
// See examples/support_mesh for an end-to-end wiring of the customer
// support mesh.
package crewlink
