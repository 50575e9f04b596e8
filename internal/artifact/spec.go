// Package artifact models units of work and the dependency graphs between them.
//
// A Graph is an immutable, validated snapshot: resolution happens once when
// the snapshot is built, and growing a graph produces a new snapshot.
package artifact

import (
	"maps"
	"slices"
)

// Domain types with scheduling meaning. Any other tag is accepted.
const (
	DomainProtocol       = "protocol"
	DomainInterface      = "interface"
	DomainSchema         = "schema"
	DomainSpec           = "spec"
	DomainOutline        = "outline"
	DomainImplementation = "implementation"
	DomainComponent      = "component"
	DomainGoal           = "goal"
)

var contractDomains = map[string]bool{
	DomainProtocol:  true,
	DomainInterface: true,
	DomainSchema:    true,
	DomainSpec:      true,
	DomainOutline:   true,
}

// Spec is the identity and requirements of one artifact.
type Spec struct {
	ID               string            `json:"id" yaml:"id"`
	Description      string            `json:"description" yaml:"description"`
	Contract         string            `json:"contract" yaml:"contract"`
	DomainType       string            `json:"domain_type,omitempty" yaml:"domain_type,omitempty"`
	Requires         []string          `json:"requires,omitempty" yaml:"requires,omitempty"`
	ProducesLocation string            `json:"produces_location,omitempty" yaml:"produces_location,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// IsLeaf reports whether the artifact has no dependencies.
func (s Spec) IsLeaf() bool {
	return len(s.Requires) == 0
}

// IsContract reports whether the artifact defines an interface other artifacts build against.
func (s Spec) IsContract() bool {
	return contractDomains[s.DomainType]
}

// WithMetadata returns a copy of s with key set. s itself is left untouched.
func (s Spec) WithMetadata(key, value string) Spec {
	out := s.clone()
	if out.Metadata == nil {
		out.Metadata = make(map[string]string, 1)
	}
	out.Metadata[key] = value
	return out
}

// clone deep-copies s with requires sorted and deduplicated.
func (s Spec) clone() Spec {
	out := s
	out.Requires = normalizeIDs(s.Requires)
	if s.Metadata != nil {
		out.Metadata = maps.Clone(s.Metadata)
	}
	return out
}

func normalizeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
