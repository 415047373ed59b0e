package engine

// Page sizes fixed by the two wire surfaces: the hub's incident retrieval
// pages at 15, the tracker's key-only JQL search at 100.
const (
	pushPageSize = 15
	pullPageSize = 100
)

// Options are the host-supplied knobs for one engine instance.
type Options struct {
	// AutoMapUsers bypasses the user mapping table and pairs hub users with
	// tracker logins directly by login.
	AutoMapUsers bool

	// UseSecurityLevel enables propagation of the security-level sentinel to
	// the tracker. Off by default; most tracker instances reject the field.
	UseSecurityLevel bool

	// SeverityCustomFieldID mirrors hub severity into a tracker select
	// custom field. 0 disables the mirror.
	SeverityCustomFieldID int

	// OnlyCreateNewItemsInTracker restricts artifact creation to the
	// hub-to-tracker direction: the pull phase still updates mapped
	// artifacts but never creates hub artifacts for unmapped issues.
	OnlyCreateNewItemsInTracker bool

	// RequirementIssueTypes lists the tracker issue-type ids routed to the
	// requirement transformer instead of the incident transformer.
	RequirementIssueTypes []string

	// IncidentLinkType names the tracker issue-link type used for
	// incident-to-incident associations. Empty skips issue links.
	IncidentLinkType string

	// LocalTimezoneOffsetHours shifts UTC into the tracker's local time when
	// building the JQL updated-since clause.
	LocalTimezoneOffsetHours int

	// TrackerTimezone, when set to an IANA zone name, overrides the naive
	// hour offset for JQL timestamps.
	TrackerTimezone string

	// PushUpdatedOnly narrows the push scan to hub incidents updated since
	// the last sync instead of walking the full incident list every run.
	PushUpdatedOnly bool

	// PersistAutoCreatedReleaseMappings writes release pairs created during
	// auto-provisioning back to the hub's mapping table. Off by default:
	// the same tracker version is then re-probed on subsequent runs.
	PersistAutoCreatedReleaseMappings bool

	// DefaultHubUserID is the author used when a tracker login has no hub
	// mapping.
	DefaultHubUserID int

	// SyncFlagProperty names the hub list-typed custom property gating push
	// per incident. The property's first list option means yes, the second
	// means no. Empty disables gating.
	SyncFlagProperty string

	// ProjectKeyProperty names the hub text-typed custom property that
	// overrides the target tracker project per incident. Empty disables
	// overrides.
	ProjectKeyProperty string
}
