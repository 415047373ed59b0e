// Package transform builds full artifact payloads in either direction and
// performs per-field value coercion between the hub's typed custom-property
// model and the tracker's metadata-driven custom fields.
package transform

import (
	"strconv"
	"strings"

	"github.com/slatewood/bridgesync/internal/eventlog"
	"github.com/slatewood/bridgesync/internal/jira"
	"github.com/slatewood/bridgesync/internal/mapping"
	"github.com/slatewood/bridgesync/internal/types"
)

// Sentinel external keys on custom-property mappings. These select special
// transformer branches instead of a numeric custom-field id.
const (
	SentinelEnvironment   = "Environment"
	SentinelComponent     = "Component"
	SentinelResolution    = "Resolution"
	SentinelSecurityLevel = "SecurityLevel"
	SentinelIssueKey      = "JiraIssueKey"
)

// Requirement defaults applied when the tracker value has no mapping.
const (
	DefaultRequirementStatusID = 1 // Requested
	DefaultRequirementTypeID   = 4 // User Story
)

// Config carries everything the transformers need for one project pair:
// the resolver, the per-project enum and option-value mapping tables, the
// hub's custom-property catalogs, and the tracker catalogs.
type Config struct {
	ProjectID         int
	TrackerProjectKey string

	Log      *eventlog.Logger
	Resolver *mapping.Resolver

	// Enum (field-value) mapping tables.
	Statuses            []types.Mapping
	IncidentTypes       []types.Mapping
	Priorities          []types.Mapping
	Severities          []types.Mapping
	Components          []types.Mapping
	RequirementStatuses []types.Mapping
	RequirementTypes    []types.Mapping
	Importances         []types.Mapping

	// Custom-property slot mappings per artifact family (scope
	// CustomProperty; InternalID is the slot number, ExternalKey a
	// customfield id or a sentinel).
	IncidentProperties    []types.Mapping
	RequirementProperties []types.Mapping

	// PropertyValues maps hub list-option ids to tracker option names
	// (scope CustomPropertyValue). Option ids are unique per project, so a
	// single table serves every slot.
	PropertyValues []types.Mapping

	// Hub custom-property catalogs, fetched each run.
	IncidentCatalog    []types.CustomPropertyDefinition
	RequirementCatalog []types.CustomPropertyDefinition

	// Tracker catalogs.
	TrackerComponents []jira.Component
	Meta              *jira.CreateMeta

	// Engine options that alter transformer behavior.
	UseSecurityLevel      bool
	SeverityCustomFieldID int // 0 disables the severity mirror
	DefaultHubUserID      int // author fallback when a login has no mapping
	PersistReleaseMappings bool
}

// byInternal returns the first mapping for an internal id, nil when absent.
func byInternal(ms []types.Mapping, id int) *types.Mapping {
	for i := range ms {
		if ms[i].InternalID == id {
			return &ms[i]
		}
	}
	return nil
}

// byExternal returns the first mapping for an external key, nil when absent.
func byExternal(ms []types.Mapping, key string) *types.Mapping {
	for i := range ms {
		if strings.EqualFold(ms[i].ExternalKey, key) {
			return &ms[i]
		}
	}
	return nil
}

// customFieldID parses a property mapping's external key into a numeric
// custom-field id. Accepts both "customfield_20001" and "20001".
func customFieldID(externalKey string) (int, bool) {
	s := strings.TrimPrefix(externalKey, jira.CustomFieldPrefix)
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return id, true
}

// isSentinel reports whether the external key selects a sentinel branch.
func isSentinel(externalKey string) bool {
	switch externalKey {
	case SentinelEnvironment, SentinelComponent, SentinelResolution,
		SentinelSecurityLevel, SentinelIssueKey:
		return true
	}
	return false
}

// PropertyByName finds a definition in a catalog by display name.
func PropertyByName(catalog []types.CustomPropertyDefinition, name string) *types.CustomPropertyDefinition {
	if name == "" {
		return nil
	}
	for i := range catalog {
		if strings.EqualFold(catalog[i].Name, name) {
			return &catalog[i]
		}
	}
	return nil
}

// IssueKeySlot returns the incident slot mapped to the issue-key sentinel,
// false when the project declares none.
func (c *Config) IssueKeySlot() (int, bool) {
	for i := range c.IncidentProperties {
		if c.IncidentProperties[i].ExternalKey == SentinelIssueKey {
			return c.IncidentProperties[i].InternalID, true
		}
	}
	return 0, false
}

// catalogDefinition finds the slot's definition in a catalog.
func catalogDefinition(catalog []types.CustomPropertyDefinition, slot int) *types.CustomPropertyDefinition {
	for i := range catalog {
		if catalog[i].PropertyNumber == slot {
			return &catalog[i]
		}
	}
	return nil
}
