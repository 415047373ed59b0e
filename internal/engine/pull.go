package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/slatewood/bridgesync/internal/htmltext"
	"github.com/slatewood/bridgesync/internal/jira"
	"github.com/slatewood/bridgesync/internal/transform"
	"github.com/slatewood/bridgesync/internal/types"
)

// jqlTimeFormat is the timestamp layout the tracker's query language accepts.
const jqlTimeFormat = "2006/01/02 15:04"

// pullIssues fetches every tracker issue updated since the last sync and
// routes each to the incident or requirement transformer. Keys come from a
// lightweight paged search; full issues are re-fetched one by one.
func (e *Engine) pullIssues(ctx context.Context, pc *pairContext) error {
	jql := e.pullJQL(pc.cfg.TrackerProjectKey, pc.lastSyncAt)
	e.log.Tracef("pull query: %s", jql)

	keys, err := e.tracker.SearchKeys(ctx, jql, pullPageSize)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := e.pullIssue(ctx, pc, key); err != nil {
			e.logArtifactError("pull "+key, err)
			e.metrics.Errored(ctx, pc.pair.HubProjectID, "pull")
		}
	}
	return nil
}

// pullJQL renders the updated-since query in the tracker's local time. A
// configured zone name wins over the naive hour offset.
func (e *Engine) pullJQL(projectKey string, since time.Time) string {
	loc := time.FixedZone("tracker", e.opts.LocalTimezoneOffsetHours*3600)
	if e.opts.TrackerTimezone != "" {
		if named, err := time.LoadLocation(e.opts.TrackerTimezone); err == nil {
			loc = named
		} else {
			e.log.Warnf("unknown tracker timezone %q, using offset %+dh", e.opts.TrackerTimezone, e.opts.LocalTimezoneOffsetHours)
		}
	}
	return fmt.Sprintf("project = '%s' AND updated >= '%s' order by updated asc",
		projectKey, since.In(loc).Format(jqlTimeFormat))
}

// pullIssue processes one tracker issue inside its own failure boundary.
func (e *Engine) pullIssue(ctx context.Context, pc *pairContext, key string) error {
	issue, err := e.tracker.GetIssue(ctx, key, e.meta)
	if err != nil {
		return err
	}
	if e.isRequirementType(issue) {
		return e.pullRequirement(ctx, pc, issue)
	}
	return e.pullIncident(ctx, pc, issue)
}

func (e *Engine) isRequirementType(issue *jira.Issue) bool {
	if issue.Fields.IssueType == nil {
		return false
	}
	for _, id := range e.opts.RequirementIssueTypes {
		if id == issue.Fields.IssueType.ID {
			return true
		}
	}
	return false
}

// pullIncident updates the mapped hub incident or creates a new one when
// the issue has no hub counterpart and reverse creation is allowed.
func (e *Engine) pullIncident(ctx context.Context, pc *pairContext, issue *jira.Issue) error {
	m := e.resolver.ByExternalKey(types.ScopeIncident, pc.pair.HubProjectID, issue.Key, false)

	if m == nil {
		if e.opts.OnlyCreateNewItemsInTracker {
			e.log.Tracef("%s has no hub incident and reverse creation is off, skipping", issue.Key)
			return nil
		}
		inc := &types.Incident{ProjectID: pc.pair.HubProjectID}
		if err := transform.ApplyIssueToIncident(ctx, pc.cfg, issue, inc, pc.bridge); err != nil {
			return err
		}
		stubArtifact(&inc.Name, &inc.Description, issue.Key)
		created, err := e.hub.CreateIncident(ctx, inc)
		if err != nil {
			return err
		}
		e.log.Tracef("%s pulled as new incident %d", issue.Key, created.ID)
		e.metrics.Pulled(ctx, pc.pair.HubProjectID, "incident")

		e.resolver.Add(types.ScopeIncident, pc.pair.HubProjectID, types.Mapping{
			Scope:        types.ScopeIncident,
			HubProjectID: pc.pair.HubProjectID,
			InternalID:   created.ID,
			ExternalKey:  issue.Key,
			Primary:      true,
		})
		e.crossLink(ctx, types.ArtifactIncident, pc.pair.HubProjectID, created.ID, created.Name, created.OpenerID, issue.Key)
		return e.syncInboundExtras(ctx, pc, types.ArtifactIncident, created.ID, issue)
	}

	inc, err := e.hub.IncidentByID(ctx, pc.pair.HubProjectID, m.InternalID)
	if err != nil {
		return err
	}
	if inc == nil {
		e.log.Warnf("%s maps to incident %d which no longer exists", issue.Key, m.InternalID)
		e.resolver.MarkForRemoval(*m)
		return nil
	}
	if err := transform.ApplyIssueToIncident(ctx, pc.cfg, issue, inc, pc.bridge); err != nil {
		return err
	}
	if err := e.hub.UpdateIncident(ctx, inc); err != nil {
		return err
	}
	e.metrics.Pulled(ctx, pc.pair.HubProjectID, "incident")
	return e.syncInboundExtras(ctx, pc, types.ArtifactIncident, inc.ID, issue)
}

// pullRequirement is the requirement counterpart of pullIncident.
func (e *Engine) pullRequirement(ctx context.Context, pc *pairContext, issue *jira.Issue) error {
	m := e.resolver.ByExternalKey(types.ScopeRequirement, pc.pair.HubProjectID, issue.Key, false)

	if m == nil {
		if e.opts.OnlyCreateNewItemsInTracker {
			e.log.Tracef("%s has no hub requirement and reverse creation is off, skipping", issue.Key)
			return nil
		}
		req := &types.Requirement{ProjectID: pc.pair.HubProjectID}
		if err := transform.ApplyIssueToRequirement(ctx, pc.cfg, issue, req, pc.bridge); err != nil {
			return err
		}
		stubArtifact(&req.Name, &req.Description, issue.Key)
		created, err := e.hub.CreateRequirement(ctx, req)
		if err != nil {
			return err
		}
		e.log.Tracef("%s pulled as new requirement %d", issue.Key, created.ID)
		e.metrics.Pulled(ctx, pc.pair.HubProjectID, "requirement")

		e.resolver.Add(types.ScopeRequirement, pc.pair.HubProjectID, types.Mapping{
			Scope:        types.ScopeRequirement,
			HubProjectID: pc.pair.HubProjectID,
			InternalID:   created.ID,
			ExternalKey:  issue.Key,
			Primary:      true,
		})
		e.crossLink(ctx, types.ArtifactRequirement, pc.pair.HubProjectID, created.ID, created.Name, created.AuthorID, issue.Key)
		return e.syncInboundExtras(ctx, pc, types.ArtifactRequirement, created.ID, issue)
	}

	req, err := e.hub.RequirementByID(ctx, pc.pair.HubProjectID, m.InternalID)
	if err != nil {
		return err
	}
	if req == nil {
		e.log.Warnf("%s maps to requirement %d which no longer exists", issue.Key, m.InternalID)
		e.resolver.MarkForRemoval(*m)
		return nil
	}
	if err := transform.ApplyIssueToRequirement(ctx, pc.cfg, issue, req, pc.bridge); err != nil {
		return err
	}
	if err := e.hub.UpdateRequirement(ctx, req); err != nil {
		return err
	}
	e.metrics.Pulled(ctx, pc.pair.HubProjectID, "requirement")
	return e.syncInboundExtras(ctx, pc, types.ArtifactRequirement, req.ID, issue)
}

// syncInboundExtras copies the issue's comments and attachments onto the hub
// artifact. Failures here warn and continue; the parent artifact is already
// saved.
func (e *Engine) syncInboundExtras(ctx context.Context, pc *pairContext, artifact types.ArtifactType, artifactID int, issue *jira.Issue) error {
	hubComments, err := e.hub.Comments(ctx, artifact, artifactID)
	if err != nil {
		e.log.Warnf("%s %d: list comments: %v", artifact, artifactID, err)
		hubComments = nil
	}
	var trackerComments []jira.Comment
	if issue.Fields.Comment != nil {
		trackerComments = issue.Fields.Comment.Comments
	}
	added := transform.NewHubComments(ctx, pc.cfg, artifactID, hubComments, trackerComments)
	if err := e.hub.AddComments(ctx, artifact, added); err != nil {
		e.log.Warnf("%s %d: add comments: %v", artifact, artifactID, err)
	}

	e.pullAttachments(ctx, pc, artifact, artifactID, issue)
	return nil
}

// pullAttachments downloads tracker attachments the hub does not have yet,
// de-duplicated by filename.
func (e *Engine) pullAttachments(ctx context.Context, pc *pairContext, artifact types.ArtifactType, artifactID int, issue *jira.Issue) {
	if len(issue.Fields.Attachments) == 0 {
		return
	}
	documents, err := e.hub.Documents(ctx, artifact, artifactID)
	if err != nil {
		e.log.Warnf("%s %d: list documents: %v", artifact, artifactID, err)
		return
	}
	existing := make(map[string]bool, len(documents))
	for _, doc := range documents {
		existing[doc.FilenameOrURL] = true
	}

	for _, att := range issue.Fields.Attachments {
		if existing[att.Filename] {
			continue
		}
		data, err := e.tracker.DownloadAttachment(ctx, att.Content)
		if err != nil {
			e.log.Warnf("%s %d: download %q: %v", artifact, artifactID, att.Filename, err)
			continue
		}
		authorID := pc.cfg.DefaultHubUserID
		if att.Author != nil {
			authorID = hubAuthorID(ctx, pc.cfg, att.Author.Name)
		}
		if err := e.hub.AttachDocumentFile(ctx, artifact, artifactID, att.Filename, data, authorID); err != nil {
			e.log.Warnf("%s %d: attach %q: %v", artifact, artifactID, att.Filename, err)
		}
	}
}

// hubAuthorID resolves an attachment author through the resolver, falling
// back to the default user.
func hubAuthorID(ctx context.Context, cfg *transform.Config, login string) int {
	if login == "" {
		return cfg.DefaultHubUserID
	}
	m, err := cfg.Resolver.UserByExternalKey(ctx, login)
	if err != nil || m == nil {
		return cfg.DefaultHubUserID
	}
	return m.InternalID
}

// stubArtifact fills empty name/description on newly created artifacts so
// the hub's required-field validation never trips on blank tracker issues.
func stubArtifact(name, description *string, key string) {
	if *name == "" {
		*name = key
	}
	if *description == "" {
		*description = htmltext.FromPlainText(*name)
	}
}
