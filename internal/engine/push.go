package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/slatewood/bridgesync/internal/transform"
	"github.com/slatewood/bridgesync/internal/types"
)

// pushIncidents walks the hub's incidents in name order and creates tracker
// issues for the unmapped ones. Each incident runs inside its own failure
// boundary; a bad incident is logged and skipped, never aborting the page
// loop.
func (e *Engine) pushIncidents(ctx context.Context, pc *pairContext) error {
	var since *time.Time
	if e.opts.PushUpdatedOnly {
		since = &pc.lastSyncAt
	}

	start := 0
	for {
		incidents, err := e.hub.Incidents(ctx, pc.pair.HubProjectID, start, pushPageSize, since)
		if err != nil {
			return err
		}
		for i := range incidents {
			if err := e.pushIncident(ctx, pc, &incidents[i]); err != nil {
				e.logArtifactError("push incident "+strconv.Itoa(incidents[i].ID), err)
				e.metrics.Errored(ctx, pc.pair.HubProjectID, "push")
			}
		}
		if len(incidents) < pushPageSize {
			return nil
		}
		start += pushPageSize
	}
}

// pushIncident creates one tracker issue for a hub incident, then wires the
// surrounding state: the artifact mapping, cross-system web links, the
// issue-key write-back, attachments, comments, and associations.
func (e *Engine) pushIncident(ctx context.Context, pc *pairContext, inc *types.Incident) error {
	if !e.syncFlagAllows(pc.cfg, inc) {
		e.log.Tracef("incident %d: sync flag off, skipping", inc.ID)
		return nil
	}

	cfg := pc.cfg
	if key, override := e.projectKeyOverride(pc.cfg, inc); override {
		if !pc.trackerProjects[key] {
			e.log.Warnf("incident %d: tracker has no project %q, skipping", inc.ID, key)
			return nil
		}
		scoped := *pc.cfg
		scoped.TrackerProjectKey = key
		cfg = &scoped
	}

	// Already-mapped incidents were pushed on an earlier run.
	if e.resolver.ByInternalID(types.ScopeIncident, inc.ProjectID, inc.ID) != nil {
		return nil
	}

	// Fetch documents before adding our own back-link below.
	documents, err := e.hub.Documents(ctx, types.ArtifactIncident, inc.ID)
	if err != nil {
		e.log.Warnf("incident %d: list documents: %v", inc.ID, err)
	}
	comments, err := e.hub.Comments(ctx, types.ArtifactIncident, inc.ID)
	if err != nil {
		e.log.Warnf("incident %d: list comments: %v", inc.ID, err)
	}

	issue, err := transform.IncidentToIssue(ctx, cfg, inc, pc.bridge)
	if err != nil {
		return err
	}
	created, err := e.tracker.CreateIssue(ctx, issue, e.meta)
	if err != nil {
		return err
	}
	e.log.Tracef("incident %d pushed as %s", inc.ID, created.Key)
	e.metrics.Pushed(ctx, inc.ProjectID)

	e.resolver.Add(types.ScopeIncident, inc.ProjectID, types.Mapping{
		Scope:        types.ScopeIncident,
		HubProjectID: inc.ProjectID,
		InternalID:   inc.ID,
		ExternalKey:  created.Key,
		Primary:      true,
	})

	e.writeBackIssueKey(ctx, cfg, inc, created.Key)
	e.crossLink(ctx, types.ArtifactIncident, inc.ProjectID, inc.ID, inc.Name, inc.OpenerID, created.Key)
	e.pushAttachments(ctx, created.Key, documents)

	for _, body := range transform.NewTrackerComments(comments, nil) {
		if err := e.tracker.AddComment(ctx, created.Key, body); err != nil {
			e.log.Warnf("incident %d: copy comment to %s: %v", inc.ID, created.Key, err)
		}
	}

	e.pushAssociations(ctx, pc, inc, created.Key)
	return nil
}

// syncFlagAllows evaluates the per-incident push gate. The gating property's
// first list option means yes, the second means no; an incident whose flag
// does not sit on the first option is never pushed. Projects without the
// property push everything.
func (e *Engine) syncFlagAllows(cfg *transform.Config, inc *types.Incident) bool {
	def := transform.PropertyByName(cfg.IncidentCatalog, e.opts.SyncFlagProperty)
	if def == nil || len(def.ListOptions) == 0 {
		return true
	}
	v, ok := inc.CustomProperties[def.PropertyNumber]
	if !ok {
		return false
	}
	raw, ok := v.ListValue()
	if !ok {
		return false
	}
	optionID, err := strconv.Atoi(raw)
	if err != nil {
		return false
	}
	return optionID == def.ListOptions[0].ID
}

// projectKeyOverride reads the per-incident target-project property.
func (e *Engine) projectKeyOverride(cfg *transform.Config, inc *types.Incident) (string, bool) {
	def := transform.PropertyByName(cfg.IncidentCatalog, e.opts.ProjectKeyProperty)
	if def == nil {
		return "", false
	}
	v, ok := inc.CustomProperties[def.PropertyNumber]
	if !ok {
		return "", false
	}
	key, _ := v.TextValue()
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" || key == cfg.TrackerProjectKey {
		return "", false
	}
	return key, true
}

// writeBackIssueKey stores the assigned tracker key into the incident's
// issue-key slot when the project declares one.
func (e *Engine) writeBackIssueKey(ctx context.Context, cfg *transform.Config, inc *types.Incident, key string) {
	slot, ok := cfg.IssueKeySlot()
	if !ok {
		return
	}
	if inc.CustomProperties == nil {
		inc.CustomProperties = make(map[int]types.TypedValue)
	}
	inc.CustomProperties[slot] = types.Text(key)
	if err := e.hub.UpdateIncident(ctx, inc); err != nil {
		e.log.Warnf("incident %d: write back issue key %s: %v", inc.ID, key, err)
	}
}

// crossLink writes the two one-way links between a hub artifact and its
// tracker issue. Each side tolerates the other's failure.
func (e *Engine) crossLink(ctx context.Context, artifact types.ArtifactType, projectID, artifactID int, title string, authorID int, key string) {
	if hubURL, err := e.hub.ArtifactWebURL(ctx, artifact, projectID, artifactID); err != nil {
		e.log.Warnf("%s %d: resolve web URL: %v", artifact, artifactID, err)
	} else if err := e.tracker.AddRemoteLink(ctx, key, hubURL, title); err != nil {
		e.log.Warnf("%s %d: add tracker link: %v", artifact, artifactID, err)
	}

	browse := e.tracker.BrowseURL(key)
	if err := e.hub.AttachDocumentURL(ctx, artifact, artifactID, browse, "Tracker issue "+key, authorID); err != nil {
		e.log.Warnf("%s %d: add hub link document: %v", artifact, artifactID, err)
	}
}

// pushAttachments copies the hub documents onto the new issue: file
// documents upload as attachments, URL documents become web links.
func (e *Engine) pushAttachments(ctx context.Context, key string, documents []types.Document) {
	for _, doc := range documents {
		if len(doc.Data) > 0 {
			if err := e.tracker.AddAttachment(ctx, key, doc.FilenameOrURL, doc.Data); err != nil {
				e.log.Warnf("upload %q to %s: %v", doc.FilenameOrURL, key, err)
			}
			continue
		}
		if strings.HasPrefix(doc.FilenameOrURL, "http") {
			title := doc.Description
			if title == "" {
				title = doc.FilenameOrURL
			}
			if err := e.tracker.AddRemoteLink(ctx, key, doc.FilenameOrURL, title); err != nil {
				e.log.Warnf("link %q on %s: %v", doc.FilenameOrURL, key, err)
			}
		}
	}
}

// pushAssociations mirrors the incident's hub associations: mapped
// incident-incident pairs become typed issue links, everything else becomes
// a web link back to the hub artifact.
func (e *Engine) pushAssociations(ctx context.Context, pc *pairContext, inc *types.Incident, key string) {
	assocs, err := e.hub.IncidentAssociations(ctx, inc.ProjectID, inc.ID)
	if err != nil {
		e.log.Warnf("incident %d: list associations: %v", inc.ID, err)
		return
	}
	for _, assoc := range assocs {
		switch assoc.DestArtifactType {
		case types.ArtifactIncident:
			if e.opts.IncidentLinkType == "" {
				continue
			}
			dest := e.resolver.ByInternalID(types.ScopeIncident, inc.ProjectID, assoc.DestArtifactID)
			if dest == nil {
				continue
			}
			if err := e.tracker.AddIssueLink(ctx, e.opts.IncidentLinkType, key, dest.ExternalKey, assoc.Comment); err != nil {
				e.log.Warnf("incident %d: link %s to %s: %v", inc.ID, key, dest.ExternalKey, err)
			}
		default:
			destURL, err := e.hub.ArtifactWebURL(ctx, assoc.DestArtifactType, inc.ProjectID, assoc.DestArtifactID)
			if err != nil {
				e.log.Warnf("incident %d: resolve %s %d URL: %v", inc.ID, assoc.DestArtifactType, assoc.DestArtifactID, err)
				continue
			}
			title := assoc.Comment
			if title == "" {
				title = assoc.DestArtifactType.String() + " " + strconv.Itoa(assoc.DestArtifactID)
			}
			if err := e.tracker.AddRemoteLink(ctx, key, destURL, title); err != nil {
				e.log.Warnf("incident %d: web-link %s: %v", inc.ID, destURL, err)
			}
		}
	}

	runs, err := e.hub.TestRunsForIncident(ctx, inc.ProjectID, inc.ID)
	if err != nil {
		e.log.Warnf("incident %d: list test runs: %v", inc.ID, err)
		return
	}
	for _, run := range runs {
		runURL, err := e.hub.ArtifactWebURL(ctx, types.ArtifactTestRun, inc.ProjectID, run.TestRunID)
		if err != nil {
			e.log.Warnf("incident %d: resolve test run %d URL: %v", inc.ID, run.TestRunID, err)
			continue
		}
		if err := e.tracker.AddRemoteLink(ctx, key, runURL, run.Name); err != nil {
			e.log.Warnf("incident %d: web-link test run %d: %v", inc.ID, run.TestRunID, err)
		}
	}
}
