package transform

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slatewood/bridgesync/internal/eventlog"
	"github.com/slatewood/bridgesync/internal/jira"
	"github.com/slatewood/bridgesync/internal/mapping"
	"github.com/slatewood/bridgesync/internal/types"
)

type memStore struct {
	tables map[string][]types.Mapping
	saved  int
}

func (s *memStore) key(scope types.Scope, projectID int) string {
	return fmt.Sprintf("%s/%d", scope, projectID)
}

func (s *memStore) LoadMappings(ctx context.Context, scope types.Scope, projectID int) ([]types.Mapping, error) {
	return s.tables[s.key(scope, projectID)], nil
}

func (s *memStore) SaveMappings(ctx context.Context, scope types.Scope, projectID int, ms []types.Mapping) error {
	s.saved += len(ms)
	s.tables[s.key(scope, projectID)] = append(s.tables[s.key(scope, projectID)], ms...)
	return nil
}

type memDirectory struct{ users []types.HubUser }

func (d *memDirectory) UserByID(ctx context.Context, id int) (*types.HubUser, error) {
	for i := range d.users {
		if d.users[i].ID == id {
			return &d.users[i], nil
		}
	}
	return nil, nil
}

func (d *memDirectory) UserByLogin(ctx context.Context, login string) (*types.HubUser, error) {
	for i := range d.users {
		if d.users[i].Login == login {
			return &d.users[i], nil
		}
	}
	return nil, nil
}

func testConfig(t *testing.T) (*Config, *memStore) {
	t.Helper()
	store := &memStore{tables: make(map[string][]types.Mapping)}
	dir := &memDirectory{users: []types.HubUser{
		{ID: 7, Login: "alice"},
		{ID: 9, Login: "bob"},
	}}
	resolver := mapping.NewResolver(store, dir, true)

	var warnings []string
	log := eventlog.New(eventlog.SinkFunc(func(sev eventlog.Severity, msg string) {
		if sev == eventlog.SeverityWarning {
			warnings = append(warnings, msg)
		}
	}), false)

	cfg := &Config{
		ProjectID:         4,
		TrackerProjectKey: "DEMO",
		Log:               log,
		Resolver:          resolver,

		Statuses: []types.Mapping{
			{InternalID: 1, ExternalKey: "1"},  // Open
			{InternalID: 8, ExternalKey: "5"},  // Resolved
		},
		IncidentTypes: []types.Mapping{
			{InternalID: 2, ExternalKey: "10001"},
		},
		Priorities: []types.Mapping{
			{InternalID: 3, ExternalKey: "2"},
		},
		Severities: []types.Mapping{
			{InternalID: 1, ExternalKey: "Critical"},
			{InternalID: 2, ExternalKey: "Major"},
		},
		Components: []types.Mapping{
			{InternalID: 11, ExternalKey: "10100"},
		},
		RequirementStatuses: []types.Mapping{
			{InternalID: 2, ExternalKey: "3"}, // In Progress
		},
		RequirementTypes: []types.Mapping{
			{InternalID: 3, ExternalKey: "10002"}, // Story
		},
		Importances: []types.Mapping{
			{InternalID: 2, ExternalKey: "2"},
		},

		IncidentProperties: []types.Mapping{
			{InternalID: 1, ExternalKey: "customfield_20001"}, // Operating System (list)
			{InternalID: 2, ExternalKey: SentinelResolution},  // list
			{InternalID: 3, ExternalKey: SentinelEnvironment}, // text
			{InternalID: 4, ExternalKey: SentinelIssueKey},    // text
			{InternalID: 5, ExternalKey: "customfield_20050"}, // boolean
		},
		PropertyValues: []types.Mapping{
			{InternalID: 31, ExternalKey: "Windows"},
			{InternalID: 32, ExternalKey: "Linux"},
			{InternalID: 41, ExternalKey: "10200"}, // resolution Fixed
		},
		IncidentCatalog: []types.CustomPropertyDefinition{
			{PropertyNumber: 1, Name: "Operating System", Kind: types.PropertyList,
				ListOptions: []types.ListOption{{ID: 31, Name: "Windows"}, {ID: 32, Name: "Linux"}}},
			{PropertyNumber: 2, Name: "Resolution", Kind: types.PropertyList,
				ListOptions: []types.ListOption{{ID: 41, Name: "Fixed"}}},
			{PropertyNumber: 3, Name: "Environment", Kind: types.PropertyText},
			{PropertyNumber: 4, Name: "Issue Key", Kind: types.PropertyText},
			{PropertyNumber: 5, Name: "Regression", Kind: types.PropertyBoolean},
		},
		SeverityCustomFieldID: 30001,
		DefaultHubUserID:      1,
	}
	return cfg, store
}

func TestIncidentToIssueMapsStandardFields(t *testing.T) {
	cfg, _ := testConfig(t)
	bridge := NewReleaseBridge(cfg, nil, nil, nil, nil)

	inc := &types.Incident{
		ID:          500,
		ProjectID:   4,
		Name:        "Login crashes on empty password",
		Description: "<p>Steps:<br/>1. leave blank</p>",
		TypeID:      2,
		PriorityID:  intPtr(3),
		SeverityID:  intPtr(1),
		OpenerID:    7,
		OwnerID:     intPtr(9),
		ComponentIDs: []int{11},
		CustomProperties: map[int]types.TypedValue{
			1: types.List("32"), // Linux
			3: types.Text("staging cluster"),
			5: types.Boolean(true),
		},
	}

	issue, err := IncidentToIssue(context.Background(), cfg, inc, bridge)
	require.NoError(t, err)

	assert.Equal(t, "Login crashes on empty password", issue.Fields.Summary)
	assert.Contains(t, issue.Fields.Description, "1. leave blank")
	assert.Equal(t, "DEMO", issue.Fields.Project.Key)
	assert.Equal(t, "10001", issue.Fields.IssueType.ID)
	assert.Equal(t, "2", issue.Fields.Priority.ID)
	assert.Equal(t, "alice", issue.Fields.Reporter.Name)
	assert.Equal(t, "bob", issue.Fields.Assignee.Name)
	require.Len(t, issue.Fields.Components, 1)
	assert.Equal(t, "10100", issue.Fields.Components[0].ID)

	sev, ok := issue.CustomFields[30001].ListValue()
	require.True(t, ok)
	assert.Equal(t, "Critical", sev)

	os, ok := issue.CustomFields[20001].ListValue()
	require.True(t, ok)
	assert.Equal(t, "Linux", os, "hub option id translated to tracker option name")

	assert.Equal(t, "staging cluster", issue.Fields.Environment)

	reg, ok := issue.CustomFields[20050].BoolValue()
	require.True(t, ok)
	assert.True(t, reg)
}

func TestPushResolutionSentinel(t *testing.T) {
	cfg, _ := testConfig(t)
	bridge := NewReleaseBridge(cfg, nil, nil, nil, nil)

	inc := &types.Incident{
		ID: 501, ProjectID: 4, Name: "x", TypeID: 2, OpenerID: 7,
		CustomProperties: map[int]types.TypedValue{
			2: types.List("41"), // Fixed -> tracker resolution id 10200
		},
	}
	issue, err := IncidentToIssue(context.Background(), cfg, inc, bridge)
	require.NoError(t, err)
	require.NotNil(t, issue.Fields.Resolution)
	assert.Equal(t, "10200", issue.Fields.Resolution.ID)
}

func TestSecurityLevelRequiresOptIn(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.IncidentProperties = append(cfg.IncidentProperties,
		types.Mapping{InternalID: 6, ExternalKey: SentinelSecurityLevel})
	cfg.IncidentCatalog = append(cfg.IncidentCatalog,
		types.CustomPropertyDefinition{PropertyNumber: 6, Name: "Visibility", Kind: types.PropertyList,
			ListOptions: []types.ListOption{{ID: 51, Name: "Internal"}}})
	cfg.PropertyValues = append(cfg.PropertyValues,
		types.Mapping{InternalID: 51, ExternalKey: "10300"})

	inc := &types.Incident{
		ID: 502, ProjectID: 4, Name: "x", TypeID: 2, OpenerID: 7,
		CustomProperties: map[int]types.TypedValue{6: types.List("51")},
	}

	bridge := NewReleaseBridge(cfg, nil, nil, nil, nil)
	issue, err := IncidentToIssue(context.Background(), cfg, inc, bridge)
	require.NoError(t, err)
	assert.Nil(t, issue.Fields.Security, "security level stays off without opt-in")

	cfg.UseSecurityLevel = true
	issue, err = IncidentToIssue(context.Background(), cfg, inc, bridge)
	require.NoError(t, err)
	require.NotNil(t, issue.Fields.Security)
	assert.Equal(t, "10300", issue.Fields.Security.ID)
}

func TestApplyIssueToIncident(t *testing.T) {
	cfg, _ := testConfig(t)
	bridge := NewReleaseBridge(cfg, nil, nil, nil, nil)

	issue := &jira.Issue{
		Key: "DEMO-12",
		Fields: jira.Fields{
			Summary:     "Pulled summary",
			Description: "line one\nline two",
			Status:      &jira.Status{ID: "5", Name: "Resolved"},
			IssueType:   &jira.IssueType{ID: "10001", Name: "Bug"},
			Priority:    &jira.Priority{ID: "2", Name: "High"},
			Assignee:    &jira.User{Name: "bob"},
			Reporter:    &jira.User{Name: "alice"},
			Components:  []jira.Component{{ID: "10100", Name: "Backend"}},
			Environment: "prod",
			ResolutionDate: "2024-07-02T10:30:00.000+0000",
		},
		CustomFields: map[int]types.TypedValue{
			30001: types.List("Major"),
			20001: types.List("Windows"),
			20050: types.Boolean(false),
		},
	}

	inc := &types.Incident{ProjectID: 4}
	require.NoError(t, ApplyIssueToIncident(context.Background(), cfg, issue, inc, bridge))

	assert.Equal(t, "Pulled summary", inc.Name)
	assert.Contains(t, inc.Description, "line one<br />line two")
	assert.Equal(t, 8, inc.StatusID)
	assert.Equal(t, 2, inc.TypeID)
	require.NotNil(t, inc.PriorityID)
	assert.Equal(t, 3, *inc.PriorityID)
	require.NotNil(t, inc.SeverityID)
	assert.Equal(t, 2, *inc.SeverityID)
	require.NotNil(t, inc.OwnerID)
	assert.Equal(t, 9, *inc.OwnerID)
	assert.Equal(t, 7, inc.OpenerID)
	assert.Equal(t, []int{11}, inc.ComponentIDs)
	require.NotNil(t, inc.ClosedDate)
	assert.Equal(t, time.July, inc.ClosedDate.Month())

	os, ok := inc.CustomProperties[1].ListValue()
	require.True(t, ok)
	assert.Equal(t, "31", os, "tracker option name translated to hub option id")

	env, ok := inc.CustomProperties[3].TextValue()
	require.True(t, ok)
	assert.Equal(t, "prod", env)

	key, ok := inc.CustomProperties[4].TextValue()
	require.True(t, ok)
	assert.Equal(t, "DEMO-12", key)
}

func TestApplyIssueToRequirementDefaults(t *testing.T) {
	cfg, _ := testConfig(t)
	bridge := NewReleaseBridge(cfg, nil, nil, nil, nil)

	// Status and type have no requirement mapping, so the hub defaults apply.
	issue := &jira.Issue{
		Key: "DEMO-30",
		Fields: jira.Fields{
			Summary:   "As a user I can reset my password",
			Status:    &jira.Status{ID: "99", Name: "Backlog"},
			IssueType: &jira.IssueType{ID: "10099", Name: "Epic"},
			Reporter:  &jira.User{Name: "ghost"},
		},
	}

	req := &types.Requirement{ProjectID: 4}
	require.NoError(t, ApplyIssueToRequirement(context.Background(), cfg, issue, req, bridge))

	assert.Equal(t, DefaultRequirementStatusID, req.StatusID)
	assert.Equal(t, DefaultRequirementTypeID, req.TypeID)
	assert.Equal(t, cfg.DefaultHubUserID, req.AuthorID, "unmapped reporter falls back to default user")
}

func TestApplyIssueToRequirementMapped(t *testing.T) {
	cfg, _ := testConfig(t)
	bridge := NewReleaseBridge(cfg, nil, nil, nil, nil)

	issue := &jira.Issue{
		Key: "DEMO-31",
		Fields: jira.Fields{
			Summary:   "Mapped story",
			Status:    &jira.Status{ID: "3"},
			IssueType: &jira.IssueType{ID: "10002"},
			Priority:  &jira.Priority{ID: "2"},
			Assignee:  &jira.User{Name: "alice"},
		},
	}

	req := &types.Requirement{ProjectID: 4}
	require.NoError(t, ApplyIssueToRequirement(context.Background(), cfg, issue, req, bridge))

	assert.Equal(t, 2, req.StatusID)
	assert.Equal(t, 3, req.TypeID)
	require.NotNil(t, req.ImportanceID)
	assert.Equal(t, 2, *req.ImportanceID)
	require.NotNil(t, req.OwnerID)
	assert.Equal(t, 7, *req.OwnerID)
}

func TestNewHubCommentsDeduplicatesByBody(t *testing.T) {
	cfg, _ := testConfig(t)

	hub := []types.CommentRecord{
		{Text: "<p>Already synced</p>", AuthorID: 7},
	}
	tracker := []jira.Comment{
		{Body: "Already synced", Author: &jira.User{Name: "alice"}},
		{Body: "Brand new remark", Author: &jira.User{Name: "bob"}, Created: "2024-07-01T09:00:00.000+0000"},
		{Body: "  "}, // blank bodies never sync
	}

	added := NewHubComments(context.Background(), cfg, 500, hub, tracker)
	require.Len(t, added, 1)
	assert.Equal(t, 9, added[0].AuthorID)
	assert.Contains(t, added[0].Text, "Brand new remark")
	assert.Equal(t, 500, added[0].ArtifactID)
}

func TestNewTrackerComments(t *testing.T) {
	hub := []types.CommentRecord{
		{Text: "<p>Already synced</p>"},
		{Text: "<p>Only in hub</p>"},
	}
	tracker := []jira.Comment{{Body: "Already synced"}}

	out := NewTrackerComments(hub, tracker)
	assert.Equal(t, []string{"Only in hub"}, out)
}

func TestNewHubCommentsUnknownAuthorFallsBack(t *testing.T) {
	cfg, _ := testConfig(t)
	tracker := []jira.Comment{{Body: "from a stranger", Author: &jira.User{Name: "stranger"}}}
	added := NewHubComments(context.Background(), cfg, 1, nil, tracker)
	require.Len(t, added, 1)
	assert.Equal(t, cfg.DefaultHubUserID, added[0].AuthorID)
}
