package transform

import (
	"context"
	"fmt"
	"time"

	"github.com/slatewood/bridgesync/internal/jira"
	"github.com/slatewood/bridgesync/internal/types"
)

// versionNumberMax is the hub schema's cap on release version numbers.
const versionNumberMax = 10

// TrackerVersionCreator creates project versions on the tracker side.
type TrackerVersionCreator interface {
	CreateVersion(ctx context.Context, v jira.Version) (*jira.Version, error)
}

// HubReleaseCreator creates releases on the hub side.
type HubReleaseCreator interface {
	CreateRelease(ctx context.Context, rel *types.Release) (*types.Release, error)
}

// ReleaseBridge resolves releases across the boundary, auto-provisioning the
// missing side when a release exists only in one system. Mappings key the
// hub release id against the tracker version id. Auto-created pairs are
// remembered for the run and persisted to the hub's mapping table only when
// the persist option is on.
type ReleaseBridge struct {
	cfg *Config

	hub     HubReleaseCreator
	tracker TrackerVersionCreator

	hubReleases     []types.Release
	trackerVersions []jira.Version

	// Run-local cache of pairs resolved or created this run.
	byReleaseID   map[int]*jira.Version
	byVersionID   map[string]int
}

// NewReleaseBridge builds a bridge over the catalogs loaded for this pair.
func NewReleaseBridge(cfg *Config, hub HubReleaseCreator, tracker TrackerVersionCreator, hubReleases []types.Release, trackerVersions []jira.Version) *ReleaseBridge {
	return &ReleaseBridge{
		cfg:             cfg,
		hub:             hub,
		tracker:         tracker,
		hubReleases:     hubReleases,
		trackerVersions: trackerVersions,
		byReleaseID:     make(map[int]*jira.Version),
		byVersionID:     make(map[string]int),
	}
}

// VersionForRelease resolves a hub release id to a tracker version name for
// the outbound payload, creating the version when the tracker has no
// counterpart.
func (b *ReleaseBridge) VersionForRelease(ctx context.Context, releaseID int) (string, error) {
	if v, ok := b.byReleaseID[releaseID]; ok {
		return v.Name, nil
	}
	if m := b.cfg.Resolver.ByInternalID(types.ScopeRelease, b.cfg.ProjectID, releaseID); m != nil {
		if v := b.trackerVersionByID(m.ExternalKey); v != nil {
			b.byReleaseID[releaseID] = v
			b.byVersionID[v.ID] = releaseID
			return v.Name, nil
		}
		return "", fmt.Errorf("release mapping %d points at unknown tracker version %s", releaseID, m.ExternalKey)
	}

	rel := b.hubReleaseByID(releaseID)
	if rel == nil {
		return "", fmt.Errorf("hub release %d not found in project %d", releaseID, b.cfg.ProjectID)
	}

	// Reuse an existing version with the same name before creating one.
	v := b.trackerVersionByName(rel.VersionNumber)
	if v == nil {
		created, err := b.tracker.CreateVersion(ctx, jira.Version{
			Name:        rel.VersionNumber,
			Description: rel.Name,
			ProjectKey:  b.cfg.TrackerProjectKey,
		})
		if err != nil {
			return "", fmt.Errorf("create tracker version %q: %w", rel.VersionNumber, err)
		}
		b.trackerVersions = append(b.trackerVersions, *created)
		v = &b.trackerVersions[len(b.trackerVersions)-1]
		b.cfg.Log.Tracef("created tracker version %q (%s) for hub release %d", v.Name, v.ID, releaseID)
	}

	b.record(releaseID, v)
	return v.Name, nil
}

// ReleaseForVersion resolves a tracker version reference to a hub release id,
// creating the release when the hub has no counterpart.
func (b *ReleaseBridge) ReleaseForVersion(ctx context.Context, version jira.Version) (int, error) {
	if id, ok := b.byVersionID[version.ID]; ok {
		return id, nil
	}
	if m := b.cfg.Resolver.ByExternalKey(types.ScopeRelease, b.cfg.ProjectID, version.ID, false); m != nil {
		b.byVersionID[version.ID] = m.InternalID
		return m.InternalID, nil
	}

	// A hub release whose version number matches gets mapped rather than
	// duplicated.
	if rel := b.hubReleaseByNumber(version.Name); rel != nil {
		b.record(rel.ID, &version)
		return rel.ID, nil
	}

	// Issue payloads omit the release date; fill it from the catalog.
	if version.ReleaseDate == "" {
		if v := b.trackerVersionByID(version.ID); v != nil {
			version.ReleaseDate = v.ReleaseDate
		}
	}

	start, end := releaseWindow(version.ReleaseDate)
	created, err := b.hub.CreateRelease(ctx, &types.Release{
		ProjectID:       b.cfg.ProjectID,
		Name:            version.Name,
		VersionNumber:   truncate(version.Name, versionNumberMax),
		Active:          true,
		StartDate:       start,
		EndDate:         end,
		ReleaseStatusID: types.ReleaseStatusPlanned,
		ReleaseTypeID:   types.ReleaseTypeMajor,
	})
	if err != nil {
		return 0, fmt.Errorf("create hub release %q: %w", version.Name, err)
	}
	b.hubReleases = append(b.hubReleases, *created)
	b.cfg.Log.Tracef("created hub release %d for tracker version %q (%s)", created.ID, version.Name, version.ID)

	b.record(created.ID, &version)
	return created.ID, nil
}

// record caches a pair and queues the mapping when persistence is enabled.
func (b *ReleaseBridge) record(releaseID int, v *jira.Version) {
	b.byReleaseID[releaseID] = v
	b.byVersionID[v.ID] = releaseID
	if b.cfg.PersistReleaseMappings {
		b.cfg.Resolver.Add(types.ScopeRelease, b.cfg.ProjectID, types.Mapping{
			Scope:        types.ScopeRelease,
			HubProjectID: b.cfg.ProjectID,
			InternalID:   releaseID,
			ExternalKey:  v.ID,
			Primary:      true,
		})
	}
}

func (b *ReleaseBridge) hubReleaseByID(id int) *types.Release {
	for i := range b.hubReleases {
		if b.hubReleases[i].ID == id {
			return &b.hubReleases[i]
		}
	}
	return nil
}

func (b *ReleaseBridge) hubReleaseByNumber(number string) *types.Release {
	for i := range b.hubReleases {
		if b.hubReleases[i].VersionNumber == number {
			return &b.hubReleases[i]
		}
	}
	return nil
}

func (b *ReleaseBridge) trackerVersionByID(id string) *jira.Version {
	for i := range b.trackerVersions {
		if b.trackerVersions[i].ID == id {
			return &b.trackerVersions[i]
		}
	}
	return nil
}

func (b *ReleaseBridge) trackerVersionByName(name string) *jira.Version {
	for i := range b.trackerVersions {
		if b.trackerVersions[i].Name == name {
			return &b.trackerVersions[i]
		}
	}
	return nil
}

// releaseWindow derives the hub release's start/end dates from the tracker
// version's release date when it has one, otherwise a five-day window from
// today.
func releaseWindow(releaseDate string) (time.Time, time.Time) {
	if releaseDate != "" {
		if end, err := time.Parse("2006-01-02", releaseDate); err == nil {
			return end.AddDate(0, 0, -1), end
		}
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	return today, today.AddDate(0, 0, 5)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
