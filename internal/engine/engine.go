// Package engine drives one reconciliation cycle between the hub and the
// tracker: a push phase (hub incidents out) and a pull phase (tracker issues
// back in) per administratively mapped project pair, with mapping flushes at
// checkpoints.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slatewood/bridgesync/internal/eventlog"
	"github.com/slatewood/bridgesync/internal/hub"
	"github.com/slatewood/bridgesync/internal/jira"
	"github.com/slatewood/bridgesync/internal/mapping"
	"github.com/slatewood/bridgesync/internal/telemetry"
	"github.com/slatewood/bridgesync/internal/transform"
	"github.com/slatewood/bridgesync/internal/types"
)

// Tracker is the tracker-side client surface the engine needs. *jira.Client
// implements it; engine tests substitute fakes.
type Tracker interface {
	Permissions(ctx context.Context) (json.RawMessage, error)
	Meta(ctx context.Context, projectKeys []string) (*jira.CreateMeta, error)
	Projects(ctx context.Context) ([]jira.Project, error)
	Versions(ctx context.Context, projectKey string) ([]jira.Version, error)
	Components(ctx context.Context, projectKey string) ([]jira.Component, error)
	CreateVersion(ctx context.Context, v jira.Version) (*jira.Version, error)
	SearchKeys(ctx context.Context, jql string, pageSize int) ([]string, error)
	GetIssue(ctx context.Context, key string, meta *jira.CreateMeta) (*jira.Issue, error)
	CreateIssue(ctx context.Context, issue *jira.Issue, meta *jira.CreateMeta) (*jira.Issue, error)
	AddAttachment(ctx context.Context, key, filename string, data []byte) error
	DownloadAttachment(ctx context.Context, contentURL string) ([]byte, error)
	AddRemoteLink(ctx context.Context, key, linkURL, title string) error
	AddIssueLink(ctx context.Context, linkType, fromKey, toKey, comment string) error
	AddComment(ctx context.Context, key, body string) error
	BrowseURL(key string) string
}

// Engine reconciles hub and tracker state. One Execute call runs one full
// cycle; the engine holds no state across cycles beyond what the hub's
// mapping tables record.
type Engine struct {
	hub     *hub.Client
	tracker Tracker
	log     *eventlog.Logger
	metrics *telemetry.SyncMetrics
	opts    Options

	resolver *mapping.Resolver
	meta     *jira.CreateMeta
}

// New creates an engine over the two clients. metrics may be nil.
func New(hubClient *hub.Client, tracker Tracker, log *eventlog.Logger, metrics *telemetry.SyncMetrics, opts Options) *Engine {
	return &Engine{
		hub:     hubClient,
		tracker: tracker,
		log:     log,
		metrics: metrics,
		opts:    opts,
	}
}

// pairContext bundles everything one project pair's phases share.
type pairContext struct {
	pair            types.ProjectPair
	cfg             *transform.Config
	bridge          *transform.ReleaseBridge
	trackerProjects map[string]bool
	lastSyncAt      time.Time
}

// Execute runs one full sync cycle. lastSyncAt nil means the full horizon.
// A non-nil return means the run ended with Error; per-artifact failures are
// logged and do not surface here.
func (e *Engine) Execute(ctx context.Context, lastSyncAt *time.Time, now time.Time) error {
	since := types.DefaultSyncHorizon
	if lastSyncAt != nil {
		since = lastSyncAt.UTC()
	}
	e.log.Tracef("sync cycle starting, window since %s", since.Format(time.RFC3339))

	if err := e.hub.Authenticate(ctx); err != nil {
		e.log.Errorf("hub authentication failed: %v", err)
		return err
	}
	defer func() { _ = e.hub.Disconnect(ctx) }()

	perms, err := e.tracker.Permissions(ctx)
	if err != nil {
		e.log.Errorf("tracker connectivity probe failed: %v", err)
		return err
	}
	if len(perms) == 0 {
		err := errors.New("tracker permissions probe returned an empty response")
		e.log.Errorf("%v", err)
		return err
	}

	e.resolver = mapping.NewResolver(e.hub, e.hub, e.opts.AutoMapUsers)
	if !e.opts.AutoMapUsers {
		if err := e.resolver.Load(ctx, types.ScopeUser, 0); err != nil {
			e.log.Errorf("load user mappings: %v", err)
			return err
		}
	}

	pairs, err := e.hub.ProjectPairs(ctx)
	if err != nil {
		e.log.Errorf("load project pairs: %v", err)
		return err
	}
	if len(pairs) == 0 {
		e.log.Tracef("no project pairs configured, nothing to do")
		return nil
	}

	trackerProjects, err := e.trackerProjectSet(ctx)
	if err != nil {
		e.log.Errorf("list tracker projects: %v", err)
		return err
	}

	keys := make([]string, 0, len(pairs))
	for _, p := range pairs {
		keys = append(keys, p.TrackerProjectKey)
	}
	if e.meta, err = e.tracker.Meta(ctx, keys); err != nil {
		e.log.Errorf("fetch tracker create metadata: %v", err)
		return err
	}

	for _, pair := range pairs {
		if err := e.syncPair(ctx, pair, trackerProjects, since); err != nil {
			return err
		}
	}

	e.log.Tracef("sync cycle finished")
	return nil
}

// syncPair runs both phases for one project pair. Project connect failures
// skip the pair; reauthentication failures end the run.
func (e *Engine) syncPair(ctx context.Context, pair types.ProjectPair, trackerProjects map[string]bool, since time.Time) error {
	if err := e.hub.ConnectProject(ctx, pair.HubProjectID); err != nil {
		e.log.Errorf("skipping project %d: %v", pair.HubProjectID, err)
		return nil
	}

	pc := &pairContext{
		pair:            pair,
		trackerProjects: trackerProjects,
		lastSyncAt:      since,
	}

	cfg, err := e.loadPairConfig(ctx, pair)
	if err != nil {
		e.log.Errorf("skipping project %d: %v", pair.HubProjectID, err)
		return nil
	}
	pc.cfg = cfg

	if err := e.loadArtifactMappings(ctx, pair.HubProjectID); err != nil {
		e.log.Errorf("skipping project %d: %v", pair.HubProjectID, err)
		return nil
	}

	hubReleases, err := e.hub.Releases(ctx, pair.HubProjectID)
	if err != nil {
		e.log.Errorf("skipping project %d: load releases: %v", pair.HubProjectID, err)
		return nil
	}
	trackerVersions, err := e.tracker.Versions(ctx, pair.TrackerProjectKey)
	if err != nil {
		e.log.Errorf("skipping project %d: load tracker versions: %v", pair.HubProjectID, err)
		return nil
	}
	pc.bridge = transform.NewReleaseBridge(cfg, e.hub, e.tracker, hubReleases, trackerVersions)

	if err := e.pushIncidents(ctx, pc); err != nil {
		e.log.Errorf("push phase failed for project %d: %v", pair.HubProjectID, err)
		return nil
	}

	// Checkpoint: reauthenticate and make push results visible to pull.
	if err := e.hub.Reconnect(ctx); err != nil {
		e.log.Errorf("reauthentication failed after push: %v", err)
		return err
	}
	if err := e.loadArtifactMappings(ctx, pair.HubProjectID); err != nil {
		e.log.Errorf("skipping pull for project %d: %v", pair.HubProjectID, err)
		return nil
	}

	if err := e.pullIssues(ctx, pc); err != nil {
		e.log.Errorf("pull phase failed for project %d: %v", pair.HubProjectID, err)
		return nil
	}

	if err := e.hub.Reconnect(ctx); err != nil {
		e.log.Errorf("reauthentication failed before flush: %v", err)
		return err
	}
	if err := e.resolver.Flush(ctx); err != nil {
		e.log.Errorf("flush mappings for project %d: %v", pair.HubProjectID, err)
	}
	return nil
}

// Hub enum mapping table names.
const (
	fieldIncidentStatus        = "IncidentStatus"
	fieldIncidentType          = "IncidentType"
	fieldIncidentPriority      = "IncidentPriority"
	fieldIncidentSeverity      = "IncidentSeverity"
	fieldComponent             = "Component"
	fieldRequirementStatus     = "RequirementStatus"
	fieldRequirementType       = "RequirementType"
	fieldRequirementImportance = "RequirementImportance"
)

// loadPairConfig fetches the enum tables, custom-property slot mappings,
// option-value mappings, and catalogs one project pair's transformers need.
func (e *Engine) loadPairConfig(ctx context.Context, pair types.ProjectPair) (*transform.Config, error) {
	cfg := &transform.Config{
		ProjectID:         pair.HubProjectID,
		TrackerProjectKey: strings.ToUpper(pair.TrackerProjectKey),
		Log:               e.log,
		Resolver:          e.resolver,

		UseSecurityLevel:       e.opts.UseSecurityLevel,
		SeverityCustomFieldID:  e.opts.SeverityCustomFieldID,
		DefaultHubUserID:       e.opts.DefaultHubUserID,
		PersistReleaseMappings: e.opts.PersistAutoCreatedReleaseMappings,
		Meta:                   e.meta,
	}

	enums := []struct {
		field string
		dst   *[]types.Mapping
	}{
		{fieldIncidentStatus, &cfg.Statuses},
		{fieldIncidentType, &cfg.IncidentTypes},
		{fieldIncidentPriority, &cfg.Priorities},
		{fieldIncidentSeverity, &cfg.Severities},
		{fieldComponent, &cfg.Components},
		{fieldRequirementStatus, &cfg.RequirementStatuses},
		{fieldRequirementType, &cfg.RequirementTypes},
		{fieldRequirementImportance, &cfg.Importances},
	}
	for _, enum := range enums {
		ms, err := e.hub.FieldValueMappings(ctx, pair.HubProjectID, enum.field)
		if err != nil {
			return nil, fmt.Errorf("load %s mappings: %w", enum.field, err)
		}
		*enum.dst = ms
	}

	var err error
	if cfg.IncidentProperties, err = e.hub.CustomPropertyMappings(ctx, pair.HubProjectID, types.ArtifactIncident); err != nil {
		return nil, fmt.Errorf("load incident property mappings: %w", err)
	}
	if cfg.RequirementProperties, err = e.hub.CustomPropertyMappings(ctx, pair.HubProjectID, types.ArtifactRequirement); err != nil {
		return nil, fmt.Errorf("load requirement property mappings: %w", err)
	}
	if cfg.IncidentCatalog, err = e.hub.CustomProperties(ctx, pair.HubProjectID, types.ArtifactIncident); err != nil {
		return nil, fmt.Errorf("load incident property catalog: %w", err)
	}
	if cfg.RequirementCatalog, err = e.hub.CustomProperties(ctx, pair.HubProjectID, types.ArtifactRequirement); err != nil {
		return nil, fmt.Errorf("load requirement property catalog: %w", err)
	}

	for _, catalog := range [][]types.CustomPropertyDefinition{cfg.IncidentCatalog, cfg.RequirementCatalog} {
		for _, def := range catalog {
			if def.Kind != types.PropertyList && def.Kind != types.PropertyMultiList {
				continue
			}
			ms, err := e.hub.CustomPropertyValueMappings(ctx, pair.HubProjectID, def.PropertyNumber)
			if err != nil {
				return nil, fmt.Errorf("load value mappings for property %d: %w", def.PropertyNumber, err)
			}
			cfg.PropertyValues = append(cfg.PropertyValues, ms...)
		}
	}

	if cfg.TrackerComponents, err = e.tracker.Components(ctx, pair.TrackerProjectKey); err != nil {
		return nil, fmt.Errorf("load tracker components: %w", err)
	}
	return cfg, nil
}

// loadArtifactMappings (re)loads the artifact-scope tables for a project.
func (e *Engine) loadArtifactMappings(ctx context.Context, projectID int) error {
	for _, scope := range []types.Scope{types.ScopeIncident, types.ScopeRequirement, types.ScopeRelease} {
		if err := e.resolver.Load(ctx, scope, projectID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) trackerProjectSet(ctx context.Context) (map[string]bool, error) {
	projects, err := e.tracker.Projects(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(projects))
	for _, p := range projects {
		set[strings.ToUpper(p.Key)] = true
	}
	return set, nil
}

// logArtifactError writes one structured entry for a failed artifact. Hub
// validation faults expand into their field messages.
func (e *Engine) logArtifactError(what string, err error) {
	var vf *hub.ValidationFault
	if errors.As(err, &vf) {
		e.log.Errorf("%s rejected: %s", what, vf.Error())
		return
	}
	e.log.Errorf("%s failed: %v", what, err)
}
