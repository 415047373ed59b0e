// Package jira is the tracker-side client: typed wrappers over the REST
// resources the engine uses (create-metadata, projects, versions, components,
// JQL search, issue fetch/create, attachments, links, permission probe).
package jira

import (
	"encoding/json"
	"strings"

	"github.com/slatewood/bridgesync/internal/types"
)

// CustomFieldPrefix is the tracker's JSON property prefix for custom fields.
const CustomFieldPrefix = "customfield_"

// Issue is a tracker issue with the fields the engine consumes. CustomFields
// is reconstructed from the raw JSON by inspecting value shapes against the
// create-metadata; it is keyed by numeric custom-field id.
type Issue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Self   string `json:"self"`
	Fields Fields `json:"fields"`

	// CustomFields holds decoded customfield_* values. Absent entries mean
	// the field was null, missing, or of an unrecognized shape.
	CustomFields map[int]types.TypedValue `json:"-"`
}

// Fields are the standard tracker issue fields.
type Fields struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Environment string `json:"environment,omitempty"`

	Project   *Project   `json:"project,omitempty"`
	IssueType *IssueType `json:"issuetype,omitempty"`
	Status    *Status    `json:"status,omitempty"`
	Priority  *Priority  `json:"priority,omitempty"`
	Resolution *Resolution `json:"resolution,omitempty"`
	Security  *SecurityLevel `json:"security,omitempty"`

	Reporter *User `json:"reporter,omitempty"`
	Assignee *User `json:"assignee,omitempty"`

	Created        string `json:"created,omitempty"`
	Updated        string `json:"updated,omitempty"`
	DueDate        string `json:"duedate,omitempty"`
	ResolutionDate string `json:"resolutiondate,omitempty"`

	Versions    []Version   `json:"versions,omitempty"`
	FixVersions []Version   `json:"fixVersions,omitempty"`
	Components  []Component `json:"components,omitempty"`

	Attachments []Attachment `json:"attachment,omitempty"`
	Comment     *CommentPage `json:"comment,omitempty"`
}

// Project identifies a tracker project.
type Project struct {
	ID   string `json:"id,omitempty"`
	Key  string `json:"key,omitempty"`
	Name string `json:"name,omitempty"`
}

// IssueType identifies a tracker issue type.
type IssueType struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Status is a tracker workflow status.
type Status struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Priority is a tracker priority.
type Priority struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Resolution is a tracker resolution.
type Resolution struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// SecurityLevel restricts issue visibility.
type SecurityLevel struct {
	ID string `json:"id"`
}

// User is a tracker user reference. Name is the login the engine maps.
type User struct {
	Name         string `json:"name,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

// Version is a tracker project version.
type Version struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Released    bool   `json:"released,omitempty"`
	Archived    bool   `json:"archived,omitempty"`
	ReleaseDate string `json:"releaseDate,omitempty"` // yyyy-mm-dd
	ProjectKey  string `json:"project,omitempty"`
}

// Component is a tracker project component.
type Component struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Attachment is a tracker file attachment.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Content  string `json:"content"` // download URL
	Author   *User  `json:"author,omitempty"`
	Created  string `json:"created,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// CommentPage is the tracker's paged comment container.
type CommentPage struct {
	Comments []Comment `json:"comments"`
}

// Comment is a tracker issue comment.
type Comment struct {
	Body         string `json:"body"`
	Author       *User  `json:"author,omitempty"`
	UpdateAuthor *User  `json:"updateAuthor,omitempty"`
	Created      string `json:"created,omitempty"`
}

// AuthorLogin returns the comment author's login, falling back to the update
// author when the original author is unavailable.
func (c *Comment) AuthorLogin() string {
	if c.Author != nil && c.Author.Name != "" {
		return c.Author.Name
	}
	if c.UpdateAuthor != nil {
		return c.UpdateAuthor.Name
	}
	return ""
}

// SearchResult is the JQL search envelope.
type SearchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// CreateMeta is the tracker's field catalog grouped by project and issue
// type, used to validate required fields, drop unknown fields, and translate
// select-option names and ids.
type CreateMeta struct {
	Projects []MetaProject `json:"projects"`
}

// MetaProject is one project's slice of the create-metadata.
type MetaProject struct {
	ID         string          `json:"id"`
	Key        string          `json:"key"`
	IssueTypes []MetaIssueType `json:"issuetypes"`
}

// MetaIssueType declares the fields valid when creating one issue type.
type MetaIssueType struct {
	ID     string               `json:"id"`
	Name   string               `json:"name"`
	Fields map[string]MetaField `json:"fields"`
}

// MetaField describes one creatable field.
type MetaField struct {
	Required      bool         `json:"required"`
	Name          string       `json:"name"`
	AllowedValues []MetaOption `json:"allowedValues,omitempty"`
}

// MetaOption is an allowed value of a select field. Depending on the field
// the display text arrives as "value" or "name".
type MetaOption struct {
	ID    string `json:"id"`
	Value string `json:"value,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Display returns the option's human-readable text.
func (o MetaOption) Display() string {
	if o.Value != "" {
		return o.Value
	}
	return o.Name
}

// IssueTypeNode locates the metadata node for (projectKey, issueTypeID).
// Returns nil when the metadata does not cover that combination, in which
// case validation is skipped.
func (m *CreateMeta) IssueTypeNode(projectKey, issueTypeID string) *MetaIssueType {
	if m == nil {
		return nil
	}
	for i := range m.Projects {
		p := &m.Projects[i]
		if !strings.EqualFold(p.Key, projectKey) {
			continue
		}
		for j := range p.IssueTypes {
			if p.IssueTypes[j].ID == issueTypeID {
				return &p.IssueTypes[j]
			}
		}
	}
	return nil
}

// OptionDisplayByID resolves an option id to its display text within a field.
func (f *MetaField) OptionDisplayByID(id string) (string, bool) {
	for _, o := range f.AllowedValues {
		if o.ID == id {
			return o.Display(), true
		}
	}
	return "", false
}

// OptionIDByDisplay resolves display text to the option id within a field.
func (f *MetaField) OptionIDByDisplay(display string) (string, bool) {
	for _, o := range f.AllowedValues {
		if strings.EqualFold(o.Display(), display) {
			return o.ID, true
		}
	}
	return "", false
}

// RemoteLink is a remote web link on an issue.
type RemoteLink struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// IssueLinkRequest creates a typed link between two issues.
type IssueLinkRequest struct {
	Type         IssueLinkType  `json:"type"`
	InwardIssue  IssueRef       `json:"inwardIssue"`
	OutwardIssue IssueRef       `json:"outwardIssue"`
	Comment      *LinkComment   `json:"comment,omitempty"`
}

// IssueLinkType names a link type (e.g. "Relates").
type IssueLinkType struct {
	Name string `json:"name"`
}

// IssueRef references an issue by key.
type IssueRef struct {
	Key string `json:"key"`
}

// LinkComment is the optional comment on an issue link.
type LinkComment struct {
	Body string `json:"body"`
}

// rawIssue captures the issue envelope with fields kept raw so that
// customfield_* properties can be decoded by shape.
type rawIssue struct {
	ID     string                     `json:"id"`
	Key    string                     `json:"key"`
	Self   string                     `json:"self"`
	Fields map[string]json.RawMessage `json:"fields"`
}
