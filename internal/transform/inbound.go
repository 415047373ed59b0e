package transform

import (
	"context"

	"github.com/slatewood/bridgesync/internal/htmltext"
	"github.com/slatewood/bridgesync/internal/jira"
	"github.com/slatewood/bridgesync/internal/types"
)

// ApplyIssueToIncident maps an inbound tracker issue onto a hub incident.
// For an update pass inc carries the current hub state; for a create pass it
// is a zero incident with only ProjectID set. Unmappable enum values keep
// the incident's current value and log a warning rather than failing the
// artifact.
func ApplyIssueToIncident(ctx context.Context, cfg *Config, issue *jira.Issue, inc *types.Incident, releases *ReleaseBridge) error {
	inc.Name = issue.Fields.Summary
	inc.Description = htmltext.FromPlainText(issue.Fields.Description)

	if issue.Fields.Status != nil {
		if m := lookupEnum(cfg.Statuses, issue.Fields.Status.ID, issue.Fields.Status.Name); m != nil {
			inc.StatusID = m.InternalID
		} else {
			cfg.Log.Warnf("issue %s: no hub status mapped for tracker status %s", issue.Key, issue.Fields.Status.Name)
		}
	}
	if issue.Fields.IssueType != nil {
		if m := lookupEnum(cfg.IncidentTypes, issue.Fields.IssueType.ID, issue.Fields.IssueType.Name); m != nil {
			inc.TypeID = m.InternalID
		} else {
			cfg.Log.Warnf("issue %s: no hub incident type mapped for tracker type %s", issue.Key, issue.Fields.IssueType.Name)
		}
	}
	if issue.Fields.Priority != nil {
		if m := lookupEnum(cfg.Priorities, issue.Fields.Priority.ID, issue.Fields.Priority.Name); m != nil {
			inc.PriorityID = intPtr(m.InternalID)
		} else {
			cfg.Log.Warnf("issue %s: no hub priority mapped for tracker priority %s", issue.Key, issue.Fields.Priority.Name)
		}
	}
	if sev := severityFromIssue(cfg, issue); sev != nil {
		inc.SeverityID = sev
	}

	if issue.Fields.Assignee != nil {
		inc.OwnerID = intPtr(hubUserID(ctx, cfg, issue.Fields.Assignee.Name))
	}
	if inc.OpenerID == 0 && issue.Fields.Reporter != nil {
		inc.OpenerID = hubUserID(ctx, cfg, issue.Fields.Reporter.Name)
	}
	if inc.OpenerID == 0 {
		inc.OpenerID = cfg.DefaultHubUserID
	}

	if len(issue.Fields.Versions) > 0 {
		id, err := releases.ReleaseForVersion(ctx, issue.Fields.Versions[0])
		if err != nil {
			return err
		}
		inc.DetectedReleaseID = intPtr(id)
	}
	if len(issue.Fields.FixVersions) > 0 {
		id, err := releases.ReleaseForVersion(ctx, issue.Fields.FixVersions[0])
		if err != nil {
			return err
		}
		inc.ResolvedReleaseID = intPtr(id)
	}

	inc.ComponentIDs = nil
	for _, comp := range issue.Fields.Components {
		if m := lookupEnum(cfg.Components, comp.ID, comp.Name); m != nil {
			inc.ComponentIDs = append(inc.ComponentIDs, m.InternalID)
		} else {
			cfg.Log.Warnf("issue %s: no hub component mapped for tracker component %s", issue.Key, comp.Name)
		}
	}

	if issue.Fields.ResolutionDate != "" {
		if t, ok := jira.ParseTimestamp(issue.Fields.ResolutionDate); ok {
			utc := t.UTC()
			inc.ClosedDate = &utc
		}
	}

	mergeCustomProperties(inc, pullCustomProperties(ctx, cfg, issue, cfg.IncidentProperties, cfg.IncidentCatalog))
	return nil
}

// ApplyIssueToRequirement maps an inbound tracker issue onto a hub
// requirement. Unmapped status and type fall back to the hub's Requested /
// User Story defaults so pulls never stall on workflow gaps.
func ApplyIssueToRequirement(ctx context.Context, cfg *Config, issue *jira.Issue, req *types.Requirement, releases *ReleaseBridge) error {
	req.Name = issue.Fields.Summary
	req.Description = htmltext.FromPlainText(issue.Fields.Description)

	req.StatusID = DefaultRequirementStatusID
	if issue.Fields.Status != nil {
		if m := lookupEnum(cfg.RequirementStatuses, issue.Fields.Status.ID, issue.Fields.Status.Name); m != nil {
			req.StatusID = m.InternalID
		} else {
			cfg.Log.Warnf("issue %s: no hub requirement status mapped for %s, defaulting", issue.Key, issue.Fields.Status.Name)
		}
	}
	req.TypeID = DefaultRequirementTypeID
	if issue.Fields.IssueType != nil {
		if m := lookupEnum(cfg.RequirementTypes, issue.Fields.IssueType.ID, issue.Fields.IssueType.Name); m != nil {
			req.TypeID = m.InternalID
		} else {
			cfg.Log.Warnf("issue %s: no hub requirement type mapped for %s, defaulting", issue.Key, issue.Fields.IssueType.Name)
		}
	}
	if issue.Fields.Priority != nil {
		if m := lookupEnum(cfg.Importances, issue.Fields.Priority.ID, issue.Fields.Priority.Name); m != nil {
			req.ImportanceID = intPtr(m.InternalID)
		} else {
			cfg.Log.Warnf("issue %s: no hub importance mapped for tracker priority %s", issue.Key, issue.Fields.Priority.Name)
		}
	}

	if issue.Fields.Assignee != nil {
		req.OwnerID = intPtr(hubUserID(ctx, cfg, issue.Fields.Assignee.Name))
	}
	if req.AuthorID == 0 && issue.Fields.Reporter != nil {
		req.AuthorID = hubUserID(ctx, cfg, issue.Fields.Reporter.Name)
	}
	if req.AuthorID == 0 {
		req.AuthorID = cfg.DefaultHubUserID
	}

	if len(issue.Fields.FixVersions) > 0 {
		id, err := releases.ReleaseForVersion(ctx, issue.Fields.FixVersions[0])
		if err != nil {
			return err
		}
		req.ReleaseID = intPtr(id)
	}
	if len(issue.Fields.Components) > 0 {
		comp := issue.Fields.Components[0]
		if m := lookupEnum(cfg.Components, comp.ID, comp.Name); m != nil {
			req.ComponentID = intPtr(m.InternalID)
		}
	}

	if req.CustomProperties == nil {
		req.CustomProperties = make(map[int]types.TypedValue)
	}
	for slot, v := range pullCustomProperties(ctx, cfg, issue, cfg.RequirementProperties, cfg.RequirementCatalog) {
		req.CustomProperties[slot] = v
	}
	return nil
}

// mergeCustomProperties overlays pulled values onto the incident's slots.
// Slots the tracker did not supply keep their hub value.
func mergeCustomProperties(inc *types.Incident, pulled map[int]types.TypedValue) {
	if inc.CustomProperties == nil {
		inc.CustomProperties = make(map[int]types.TypedValue)
	}
	for slot, v := range pulled {
		inc.CustomProperties[slot] = v
	}
}
