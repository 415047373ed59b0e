package types

import "time"

// DefaultSyncHorizon is the pull horizon used when the host supplies no
// last-sync timestamp.
var DefaultSyncHorizon = time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)

// ArtifactType distinguishes the hub artifact families the engine touches.
type ArtifactType int

const (
	ArtifactIncident ArtifactType = iota
	ArtifactRequirement
	ArtifactRelease
	ArtifactTestRun
)

func (a ArtifactType) String() string {
	switch a {
	case ArtifactIncident:
		return "incident"
	case ArtifactRequirement:
		return "requirement"
	case ArtifactRelease:
		return "release"
	case ArtifactTestRun:
		return "testrun"
	}
	return "unknown"
}

// Incident is the hub's defect artifact.
type Incident struct {
	ID         int
	ProjectID  int
	Name       string
	Description string // HTML
	StatusID   int
	TypeID     int
	PriorityID *int
	SeverityID *int
	OpenerID   int
	OwnerID    *int

	CreationDate   time.Time // UTC
	StartDate      *time.Time
	ClosedDate     *time.Time
	LastUpdateDate time.Time

	DetectedReleaseID *int
	ResolvedReleaseID *int
	ComponentIDs      []int

	// CustomProperties is keyed by slot number 1..30.
	CustomProperties map[int]TypedValue
}

// Requirement is the hub's requirement artifact.
type Requirement struct {
	ID          int
	ProjectID   int
	Name        string
	Description string // HTML
	StatusID    int
	TypeID      int
	ImportanceID *int
	AuthorID    int
	OwnerID     *int

	CreationDate time.Time
	ReleaseID    *int
	ComponentID  *int

	CustomProperties map[int]TypedValue
}

// Release is a hub release/version record. VersionNumber is capped at 10
// characters by the hub schema.
type Release struct {
	ID            int
	ProjectID     int
	Name          string
	VersionNumber string
	Active        bool
	StartDate     time.Time
	EndDate       time.Time
	ReleaseStatusID int
	ReleaseTypeID   int
}

// Hub release status/type ids used when auto-provisioning.
const (
	ReleaseStatusPlanned = 1
	ReleaseTypeMajor     = 1
)

// CommentRecord is a comment on a hub artifact. Equality for de-duplication
// is defined solely on Text.
type CommentRecord struct {
	ArtifactID   int
	AuthorID     int
	Text         string
	CreationDate time.Time // UTC
}

// Document is a hub attachment: either an uploaded file (Data set) or a URL
// link (Data nil, FilenameOrURL holding the URL).
type Document struct {
	ArtifactID    int
	ArtifactType  ArtifactType
	FilenameOrURL string
	Data          []byte
	AuthorID      int
	Description   string
}

// PropertyKind is the declared type of a hub custom-property slot.
type PropertyKind int

const (
	PropertyText PropertyKind = iota
	PropertyInteger
	PropertyDecimal
	PropertyBoolean
	PropertyDate
	PropertyList
	PropertyMultiList
	PropertyUser
)

func (p PropertyKind) String() string {
	switch p {
	case PropertyText:
		return "text"
	case PropertyInteger:
		return "integer"
	case PropertyDecimal:
		return "decimal"
	case PropertyBoolean:
		return "boolean"
	case PropertyDate:
		return "date"
	case PropertyList:
		return "list"
	case PropertyMultiList:
		return "multilist"
	case PropertyUser:
		return "user"
	}
	return "unknown"
}

// ListOption is one option of a list-typed custom property.
type ListOption struct {
	ID   int
	Name string
}

// CustomPropertyDefinition describes one slot (1..30) of the hub's closed
// custom-property schema for an artifact type. The catalog is fetched each
// run; the hub has no schema discovery beyond it.
type CustomPropertyDefinition struct {
	PropertyNumber int
	Name           string
	Kind           PropertyKind
	ListOptions    []ListOption
}

// OptionName resolves a list option id to its name.
func (d *CustomPropertyDefinition) OptionName(id int) (string, bool) {
	for _, o := range d.ListOptions {
		if o.ID == id {
			return o.Name, true
		}
	}
	return "", false
}

// OptionID resolves a list option name to its id.
func (d *CustomPropertyDefinition) OptionID(name string) (int, bool) {
	for _, o := range d.ListOptions {
		if o.Name == name {
			return o.ID, true
		}
	}
	return 0, false
}

// HubUser is a hub user record, used by the resolver's auto-map path.
type HubUser struct {
	ID    int
	Login string
	Name  string
	Email string
}

// Association links two hub artifacts (incident-incident,
// incident-requirement, incident-test-run).
type Association struct {
	SourceArtifactID   int
	DestArtifactID     int
	DestArtifactType   ArtifactType
	Comment            string
}

// TestRunRef identifies a hub test run associated with an incident.
type TestRunRef struct {
	TestRunID int
	Name      string
}
