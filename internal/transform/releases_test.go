package transform

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slatewood/bridgesync/internal/jira"
	"github.com/slatewood/bridgesync/internal/types"
)

type fakeHubReleases struct {
	created []types.Release
	nextID  int
}

func (f *fakeHubReleases) CreateRelease(ctx context.Context, rel *types.Release) (*types.Release, error) {
	f.nextID++
	out := *rel
	out.ID = 1000 + f.nextID
	f.created = append(f.created, out)
	return &out, nil
}

type fakeTrackerVersions struct {
	created []jira.Version
	nextID  int
}

func (f *fakeTrackerVersions) CreateVersion(ctx context.Context, v jira.Version) (*jira.Version, error) {
	f.nextID++
	out := v
	out.ID = strconv.Itoa(9000 + f.nextID)
	f.created = append(f.created, out)
	return &out, nil
}

func TestVersionForReleaseUsesExistingMapping(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Resolver.Preload(types.ScopeRelease, 4, []types.Mapping{
		{Scope: types.ScopeRelease, HubProjectID: 4, InternalID: 20, ExternalKey: "9001", Primary: true},
	})
	versions := []jira.Version{{ID: "9001", Name: "2.1.0"}}
	bridge := NewReleaseBridge(cfg, &fakeHubReleases{}, &fakeTrackerVersions{}, nil, versions)

	name, err := bridge.VersionForRelease(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", name)
}

func TestVersionForReleaseAutoCreatesTrackerVersion(t *testing.T) {
	cfg, _ := testConfig(t)
	tracker := &fakeTrackerVersions{}
	hubReleases := []types.Release{
		{ID: 20, ProjectID: 4, Name: "Release 2.1", VersionNumber: "2.1.0"},
	}
	bridge := NewReleaseBridge(cfg, &fakeHubReleases{}, tracker, hubReleases, nil)

	name, err := bridge.VersionForRelease(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", name)
	require.Len(t, tracker.created, 1)
	assert.Equal(t, "DEMO", tracker.created[0].ProjectKey)

	// Second resolution hits the run cache, no duplicate version.
	name, err = bridge.VersionForRelease(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", name)
	assert.Len(t, tracker.created, 1)
}

func TestReleaseForVersionAutoCreatesHubRelease(t *testing.T) {
	cfg, _ := testConfig(t)
	hub := &fakeHubReleases{}
	bridge := NewReleaseBridge(cfg, hub, &fakeTrackerVersions{}, nil, nil)

	id, err := bridge.ReleaseForVersion(context.Background(),
		jira.Version{ID: "9001", Name: "2024.07", ReleaseDate: "2024-07-15"})
	require.NoError(t, err)
	assert.Equal(t, 1001, id)

	require.Len(t, hub.created, 1)
	created := hub.created[0]
	assert.Equal(t, "2024.07", created.Name)
	assert.Equal(t, "2024.07", created.VersionNumber)
	assert.Equal(t, types.ReleaseStatusPlanned, created.ReleaseStatusID)
	assert.Equal(t, types.ReleaseTypeMajor, created.ReleaseTypeID)
	assert.True(t, created.Active)

	end := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, end.AddDate(0, 0, -1), created.StartDate)
	assert.Equal(t, end, created.EndDate)
}

func TestReleaseForVersionTruncatesLongNumbers(t *testing.T) {
	cfg, _ := testConfig(t)
	hub := &fakeHubReleases{}
	bridge := NewReleaseBridge(cfg, hub, &fakeTrackerVersions{}, nil, nil)

	_, err := bridge.ReleaseForVersion(context.Background(),
		jira.Version{ID: "9002", Name: "3.0.0-beta.1"})
	require.NoError(t, err)
	require.Len(t, hub.created, 1)
	assert.Equal(t, "3.0.0-beta", hub.created[0].VersionNumber,
		"version number capped at 10 characters")
}

func TestReleaseForVersionWithoutReleaseDate(t *testing.T) {
	cfg, _ := testConfig(t)
	hub := &fakeHubReleases{}
	bridge := NewReleaseBridge(cfg, hub, &fakeTrackerVersions{}, nil, nil)

	_, err := bridge.ReleaseForVersion(context.Background(), jira.Version{ID: "9003", Name: "edge"})
	require.NoError(t, err)
	require.Len(t, hub.created, 1)
	window := hub.created[0].EndDate.Sub(hub.created[0].StartDate)
	assert.Equal(t, 5*24*time.Hour, window)
}

func TestReleaseForVersionReusesMatchingHubRelease(t *testing.T) {
	cfg, _ := testConfig(t)
	hub := &fakeHubReleases{}
	hubReleases := []types.Release{{ID: 30, ProjectID: 4, VersionNumber: "4.2"}}
	bridge := NewReleaseBridge(cfg, hub, &fakeTrackerVersions{}, hubReleases, nil)

	id, err := bridge.ReleaseForVersion(context.Background(), jira.Version{ID: "9004", Name: "4.2"})
	require.NoError(t, err)
	assert.Equal(t, 30, id)
	assert.Empty(t, hub.created)
}

func TestAutoCreatedMappingPersistenceIsOptIn(t *testing.T) {
	cfg, _ := testConfig(t)
	bridge := NewReleaseBridge(cfg, &fakeHubReleases{}, &fakeTrackerVersions{}, nil, nil)

	_, err := bridge.ReleaseForVersion(context.Background(), jira.Version{ID: "9005", Name: "5.0"})
	require.NoError(t, err)
	assert.Zero(t, cfg.Resolver.PendingCount(types.ScopeRelease, 4),
		"pairs stay run-local without the persist option")

	cfg.PersistReleaseMappings = true
	bridge = NewReleaseBridge(cfg, &fakeHubReleases{}, &fakeTrackerVersions{}, nil, nil)
	_, err = bridge.ReleaseForVersion(context.Background(), jira.Version{ID: "9006", Name: "5.1"})
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Resolver.PendingCount(types.ScopeRelease, 4))
}
