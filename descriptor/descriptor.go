// Package descriptor defines capability descriptors, the published metadata
// that makes an agent discoverable and invocable, and a resolver that turns
// an inline descriptor or a discovery URL into a validated Descriptor.
package descriptor

import (
	"github.com/crewlink/crewlink/core"
)

// WellKnownPath is the fixed relative path under an agent's base URL where
// its descriptor document is served.
const WellKnownPath = "/.well-known/agent.json"

// Skill describes a discrete capability an agent advertises.
type Skill struct {
	SkillID     string   `json:"skillId" yaml:"skillId"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Examples    []string `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// Descriptor is the published metadata describing an agent: identity, network
// address and declared skills. Once resolved it is immutable for the duration
// of an orchestration run.
type Descriptor struct {
	AgentID     string  `json:"agentId" yaml:"agentId"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	DisplayName string  `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Skills      []Skill `json:"skills,omitempty" yaml:"skills,omitempty"`
}

// Validate checks the minimum fields a descriptor document must carry.
func (d Descriptor) Validate() error {
	if d.AgentID == "" {
		return core.NewError(core.KindDiscovery, "descriptor document missing agentId")
	}
	if d.Endpoint == "" {
		return core.NewError(core.KindDiscovery, "descriptor document missing endpoint")
	}
	return nil
}

// Reference names an agent either by inline descriptor or by discovery URL.
// Exactly one of the two forms must be set.
type Reference struct {
	Inline *Descriptor
	URL    string
}

// RefInline creates a reference to an already known descriptor.
func RefInline(d Descriptor) Reference { return Reference{Inline: &d} }

// RefURL creates a reference resolved by fetching the well-known descriptor
// document under the given base URL.
func RefURL(base string) Reference { return Reference{URL: base} }
