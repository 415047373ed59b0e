// Package hub wraps the hub's RPC surface in typed, engine-facing calls.
// The RPC stubs themselves are host-provided; everything here runs through
// the Transport interface so the engine never sees binding details.
package hub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slatewood/bridgesync/internal/types"
)

// webURLPlaceholder marks the position of the hub's web-server base URL in
// artifact URL templates.
const webURLPlaceholder = "~"

// Transport is the host-provided RPC binding. Sessions are stateful and
// scoped to a single connected project at a time; calls after expiry return
// ErrSessionExpired.
type Transport interface {
	Authenticate(ctx context.Context, login, password string) error
	ConnectProject(ctx context.Context, projectID int) error
	Disconnect(ctx context.Context) error

	// Mapping tables, owned by the hub and keyed by data-sync system.
	ProjectPairs(ctx context.Context, systemID int) ([]types.ProjectPair, error)
	Mappings(ctx context.Context, systemID int, scope types.Scope, projectID int) ([]types.Mapping, error)
	AddMappings(ctx context.Context, systemID int, scope types.Scope, projectID int, mappings []types.Mapping) error
	FieldValueMappings(ctx context.Context, systemID, projectID int, field string) ([]types.Mapping, error)
	CustomPropertyMappings(ctx context.Context, systemID, projectID int, artifact types.ArtifactType) ([]types.Mapping, error)
	CustomPropertyValueMappings(ctx context.Context, systemID, projectID, propertyNumber int) ([]types.Mapping, error)

	// Schema: the custom-property catalog is fetched each run, there is no
	// further schema discovery.
	CustomProperties(ctx context.Context, projectID int, artifact types.ArtifactType) ([]types.CustomPropertyDefinition, error)

	// Artifacts.
	Incidents(ctx context.Context, projectID, start, count int, since *time.Time) ([]types.Incident, error)
	CreateIncident(ctx context.Context, inc *types.Incident) (*types.Incident, error)
	UpdateIncident(ctx context.Context, inc *types.Incident) error
	IncidentByID(ctx context.Context, projectID, id int) (*types.Incident, error)
	CreateRequirement(ctx context.Context, req *types.Requirement) (*types.Requirement, error)
	UpdateRequirement(ctx context.Context, req *types.Requirement) error
	RequirementByID(ctx context.Context, projectID, id int) (*types.Requirement, error)

	Comments(ctx context.Context, artifact types.ArtifactType, artifactID int) ([]types.CommentRecord, error)
	AddComments(ctx context.Context, artifact types.ArtifactType, comments []types.CommentRecord) error

	Documents(ctx context.Context, artifact types.ArtifactType, artifactID int) ([]types.Document, error)
	AttachDocument(ctx context.Context, doc *types.Document) error

	Releases(ctx context.Context, projectID int) ([]types.Release, error)
	CreateRelease(ctx context.Context, rel *types.Release) (*types.Release, error)

	IncidentAssociations(ctx context.Context, projectID, incidentID int) ([]types.Association, error)
	TestRunsForIncident(ctx context.Context, projectID, incidentID int) ([]types.TestRunRef, error)

	UserByID(ctx context.Context, id int) (*types.HubUser, error)
	UserByLogin(ctx context.Context, login string) (*types.HubUser, error)

	// ArtifactURL returns the hub's URL template for an artifact, with the
	// web-server base position marked by "~".
	ArtifactURL(ctx context.Context, artifact types.ArtifactType, projectID, artifactID int) (string, error)
}

// Client is the typed hub client used by the engine. It tracks the session
// so the engine can reconnect at checkpoints.
type Client struct {
	transport Transport
	login     string
	password  string

	// SystemID identifies this data-sync plugin in the hub's mapping tables.
	SystemID int

	// WebBaseURL replaces the "~" placeholder in artifact URL templates.
	WebBaseURL string

	connectedProject int
	authenticated    bool
}

// NewClient creates a hub client over the given transport.
func NewClient(transport Transport, login, password string, systemID int, webBaseURL string) *Client {
	return &Client{
		transport:  transport,
		login:      login,
		password:   password,
		SystemID:   systemID,
		WebBaseURL: strings.TrimSuffix(webBaseURL, "/"),
	}
}

// Authenticate opens a hub session.
func (c *Client) Authenticate(ctx context.Context) error {
	if err := c.transport.Authenticate(ctx, c.login, c.password); err != nil {
		c.authenticated = false
		return fmt.Errorf("hub authentication for %q: %w", c.login, err)
	}
	c.authenticated = true
	c.connectedProject = 0
	return nil
}

// ConnectProject scopes the session to a project.
func (c *Client) ConnectProject(ctx context.Context, projectID int) error {
	if err := c.transport.ConnectProject(ctx, projectID); err != nil {
		return fmt.Errorf("connect to hub project %d: %w", projectID, err)
	}
	c.connectedProject = projectID
	return nil
}

// Reconnect re-authenticates and re-connects to the current project. Called
// before each major phase to survive server-side session timeouts.
func (c *Client) Reconnect(ctx context.Context) error {
	if err := c.Authenticate(ctx); err != nil {
		return err
	}
	if c.connectedProject == 0 {
		return nil
	}
	return c.ConnectProject(ctx, c.connectedProject)
}

// Disconnect closes the session.
func (c *Client) Disconnect(ctx context.Context) error {
	c.authenticated = false
	c.connectedProject = 0
	return c.transport.Disconnect(ctx)
}

// ConnectedProject returns the currently connected project id, 0 when none.
func (c *Client) ConnectedProject() int { return c.connectedProject }

// ProjectPairs lists the administratively configured project mappings.
func (c *Client) ProjectPairs(ctx context.Context) ([]types.ProjectPair, error) {
	return c.transport.ProjectPairs(ctx, c.SystemID)
}

// LoadMappings implements mapping.Store.
func (c *Client) LoadMappings(ctx context.Context, scope types.Scope, projectID int) ([]types.Mapping, error) {
	return c.transport.Mappings(ctx, c.SystemID, scope, projectID)
}

// SaveMappings implements mapping.Store. Mappings are append-only.
func (c *Client) SaveMappings(ctx context.Context, scope types.Scope, projectID int, mappings []types.Mapping) error {
	return c.transport.AddMappings(ctx, c.SystemID, scope, projectID, mappings)
}

// FieldValueMappings loads the enum mapping for a standard field
// (status, type, priority, severity, importance, requirement-status, ...).
func (c *Client) FieldValueMappings(ctx context.Context, projectID int, field string) ([]types.Mapping, error) {
	return c.transport.FieldValueMappings(ctx, c.SystemID, projectID, field)
}

// CustomPropertyMappings loads the slot mappings for one artifact family.
func (c *Client) CustomPropertyMappings(ctx context.Context, projectID int, artifact types.ArtifactType) ([]types.Mapping, error) {
	return c.transport.CustomPropertyMappings(ctx, c.SystemID, projectID, artifact)
}

// CustomPropertyValueMappings loads the option-value mapping for one slot.
func (c *Client) CustomPropertyValueMappings(ctx context.Context, projectID, propertyNumber int) ([]types.Mapping, error) {
	return c.transport.CustomPropertyValueMappings(ctx, c.SystemID, projectID, propertyNumber)
}

// CustomProperties fetches the custom-property catalog for an artifact type.
func (c *Client) CustomProperties(ctx context.Context, projectID int, artifact types.ArtifactType) ([]types.CustomPropertyDefinition, error) {
	return c.transport.CustomProperties(ctx, projectID, artifact)
}

// Incidents retrieves a page of incidents sorted by name ascending. A
// non-nil since narrows the retrieval to incidents updated at or after it.
func (c *Client) Incidents(ctx context.Context, projectID, start, count int, since *time.Time) ([]types.Incident, error) {
	return c.transport.Incidents(ctx, projectID, start, count, since)
}

// CreateIncident creates an incident and returns it with its id assigned.
func (c *Client) CreateIncident(ctx context.Context, inc *types.Incident) (*types.Incident, error) {
	return c.transport.CreateIncident(ctx, inc)
}

// UpdateIncident updates an incident in place.
func (c *Client) UpdateIncident(ctx context.Context, inc *types.Incident) error {
	return c.transport.UpdateIncident(ctx, inc)
}

// IncidentByID fetches one incident, nil when absent.
func (c *Client) IncidentByID(ctx context.Context, projectID, id int) (*types.Incident, error) {
	return c.transport.IncidentByID(ctx, projectID, id)
}

// CreateRequirement creates a requirement and returns it with its id.
func (c *Client) CreateRequirement(ctx context.Context, req *types.Requirement) (*types.Requirement, error) {
	return c.transport.CreateRequirement(ctx, req)
}

// UpdateRequirement updates a requirement in place.
func (c *Client) UpdateRequirement(ctx context.Context, req *types.Requirement) error {
	return c.transport.UpdateRequirement(ctx, req)
}

// RequirementByID fetches one requirement, nil when absent.
func (c *Client) RequirementByID(ctx context.Context, projectID, id int) (*types.Requirement, error) {
	return c.transport.RequirementByID(ctx, projectID, id)
}

// Comments lists an artifact's comments.
func (c *Client) Comments(ctx context.Context, artifact types.ArtifactType, artifactID int) ([]types.CommentRecord, error) {
	return c.transport.Comments(ctx, artifact, artifactID)
}

// AddComments appends comments to an artifact.
func (c *Client) AddComments(ctx context.Context, artifact types.ArtifactType, comments []types.CommentRecord) error {
	if len(comments) == 0 {
		return nil
	}
	return c.transport.AddComments(ctx, artifact, comments)
}

// Documents lists an artifact's documents.
func (c *Client) Documents(ctx context.Context, artifact types.ArtifactType, artifactID int) ([]types.Document, error) {
	return c.transport.Documents(ctx, artifact, artifactID)
}

// AttachDocumentFile uploads file bytes as a hub document.
func (c *Client) AttachDocumentFile(ctx context.Context, artifact types.ArtifactType, artifactID int, filename string, data []byte, authorID int) error {
	return c.transport.AttachDocument(ctx, &types.Document{
		ArtifactID:    artifactID,
		ArtifactType:  artifact,
		FilenameOrURL: filename,
		Data:          data,
		AuthorID:      authorID,
	})
}

// AttachDocumentURL records a URL document against a hub artifact.
func (c *Client) AttachDocumentURL(ctx context.Context, artifact types.ArtifactType, artifactID int, docURL, description string, authorID int) error {
	return c.transport.AttachDocument(ctx, &types.Document{
		ArtifactID:    artifactID,
		ArtifactType:  artifact,
		FilenameOrURL: docURL,
		AuthorID:      authorID,
		Description:   description,
	})
}

// Releases lists a project's releases.
func (c *Client) Releases(ctx context.Context, projectID int) ([]types.Release, error) {
	return c.transport.Releases(ctx, projectID)
}

// CreateRelease creates a release and returns it with its id assigned.
func (c *Client) CreateRelease(ctx context.Context, rel *types.Release) (*types.Release, error) {
	return c.transport.CreateRelease(ctx, rel)
}

// IncidentAssociations lists an incident's associations to other artifacts.
func (c *Client) IncidentAssociations(ctx context.Context, projectID, incidentID int) ([]types.Association, error) {
	return c.transport.IncidentAssociations(ctx, projectID, incidentID)
}

// TestRunsForIncident lists test runs associated with an incident.
func (c *Client) TestRunsForIncident(ctx context.Context, projectID, incidentID int) ([]types.TestRunRef, error) {
	return c.transport.TestRunsForIncident(ctx, projectID, incidentID)
}

// UserByID implements mapping.UserDirectory.
func (c *Client) UserByID(ctx context.Context, id int) (*types.HubUser, error) {
	return c.transport.UserByID(ctx, id)
}

// UserByLogin implements mapping.UserDirectory.
func (c *Client) UserByLogin(ctx context.Context, login string) (*types.HubUser, error) {
	return c.transport.UserByLogin(ctx, login)
}

// ArtifactWebURL resolves an artifact's browse URL, substituting the hub's
// web-server base for the "~" placeholder in the template.
func (c *Client) ArtifactWebURL(ctx context.Context, artifact types.ArtifactType, projectID, artifactID int) (string, error) {
	template, err := c.transport.ArtifactURL(ctx, artifact, projectID, artifactID)
	if err != nil {
		return "", fmt.Errorf("resolve %s %d URL: %w", artifact, artifactID, err)
	}
	return strings.Replace(template, webURLPlaceholder, c.WebBaseURL, 1), nil
}
