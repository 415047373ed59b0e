package types

// Scope identifies the kind of identity a mapping links across the two systems.
type Scope int

const (
	ScopeProject Scope = iota
	ScopeUser
	ScopeIncident
	ScopeRequirement
	ScopeRelease
	ScopeCustomProperty
	ScopeCustomPropertyValue
)

// String returns the scope name used in logs and mapping-store keys.
func (s Scope) String() string {
	switch s {
	case ScopeProject:
		return "project"
	case ScopeUser:
		return "user"
	case ScopeIncident:
		return "incident"
	case ScopeRequirement:
		return "requirement"
	case ScopeRelease:
		return "release"
	case ScopeCustomProperty:
		return "custom-property"
	case ScopeCustomPropertyValue:
		return "custom-property-value"
	}
	return "unknown"
}

// Mapping links a hub-internal numeric identifier to an external tracker key
// within a scope and, for project-scoped entities, a hub project.
//
// (Scope, HubProjectID, InternalID) uniquely identifies a primary entry.
// Non-primary entries are alias keys: several may share an InternalID, and
// lookups by external key return the first match in iteration order.
type Mapping struct {
	Scope        Scope
	HubProjectID int
	InternalID   int
	ExternalKey  string
	Primary      bool
}

// ProjectPair links a hub project to its tracker project. Pairs are created
// administratively and never mutated by the engine.
type ProjectPair struct {
	HubProjectID      int
	TrackerProjectKey string
}
