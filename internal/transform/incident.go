package transform

import (
	"context"

	"github.com/slatewood/bridgesync/internal/htmltext"
	"github.com/slatewood/bridgesync/internal/jira"
	"github.com/slatewood/bridgesync/internal/types"
)

// IncidentToIssue builds the outbound tracker issue for a hub incident. The
// returned issue carries standard fields plus typed custom-field values; the
// tracker client reconciles those against the create-metadata at POST time.
func IncidentToIssue(ctx context.Context, cfg *Config, inc *types.Incident, releases *ReleaseBridge) (*jira.Issue, error) {
	issue := &jira.Issue{
		Fields: jira.Fields{
			Summary:     inc.Name,
			Description: htmltext.ToPlainText(inc.Description),
			Project:     &jira.Project{Key: cfg.TrackerProjectKey},
		},
		CustomFields: make(map[int]types.TypedValue),
	}

	if m := byInternal(cfg.IncidentTypes, inc.TypeID); m != nil {
		issue.Fields.IssueType = &jira.IssueType{ID: m.ExternalKey}
	} else {
		cfg.Log.Warnf("incident %d: no tracker issue type mapped for hub type %d", inc.ID, inc.TypeID)
	}

	if inc.PriorityID != nil {
		if m := byInternal(cfg.Priorities, *inc.PriorityID); m != nil {
			issue.Fields.Priority = &jira.Priority{ID: m.ExternalKey}
		} else {
			cfg.Log.Warnf("incident %d: no tracker priority mapped for hub priority %d", inc.ID, *inc.PriorityID)
		}
	}

	// Severity has no standard tracker field; it mirrors into a configured
	// select custom field by option display name.
	if cfg.SeverityCustomFieldID != 0 && inc.SeverityID != nil {
		if m := byInternal(cfg.Severities, *inc.SeverityID); m != nil {
			issue.CustomFields[cfg.SeverityCustomFieldID] = types.List(m.ExternalKey)
		} else {
			cfg.Log.Warnf("incident %d: no severity mapping for hub severity %d", inc.ID, *inc.SeverityID)
		}
	}

	if login := trackerLogin(ctx, cfg, inc.OpenerID); login != "" {
		issue.Fields.Reporter = &jira.User{Name: login}
	}
	if inc.OwnerID != nil {
		if login := trackerLogin(ctx, cfg, *inc.OwnerID); login != "" {
			issue.Fields.Assignee = &jira.User{Name: login}
		}
	}

	if inc.DetectedReleaseID != nil {
		name, err := releases.VersionForRelease(ctx, *inc.DetectedReleaseID)
		if err != nil {
			return nil, err
		}
		issue.Fields.Versions = []jira.Version{{Name: name}}
	}
	if inc.ResolvedReleaseID != nil {
		name, err := releases.VersionForRelease(ctx, *inc.ResolvedReleaseID)
		if err != nil {
			return nil, err
		}
		issue.Fields.FixVersions = []jira.Version{{Name: name}}
	}

	for _, componentID := range inc.ComponentIDs {
		if m := byInternal(cfg.Components, componentID); m != nil {
			issue.Fields.Components = append(issue.Fields.Components, jira.Component{ID: m.ExternalKey})
		} else {
			cfg.Log.Warnf("incident %d: no tracker component mapped for hub component %d", inc.ID, componentID)
		}
	}

	pushCustomProperties(ctx, cfg, inc.CustomProperties, cfg.IncidentProperties, cfg.IncidentCatalog, issue)
	return issue, nil
}

// trackerLogin resolves a hub user id to a tracker login, empty when the
// user has no mapping.
func trackerLogin(ctx context.Context, cfg *Config, userID int) string {
	m, err := cfg.Resolver.UserByInternalID(ctx, userID)
	if err != nil || m == nil {
		cfg.Log.Warnf("no tracker login mapped for hub user %d", userID)
		return ""
	}
	return m.ExternalKey
}

// lookupEnum matches a tracker value against an enum mapping table, trying
// the id first and the display name second.
func lookupEnum(ms []types.Mapping, id, name string) *types.Mapping {
	if id != "" {
		if m := byExternal(ms, id); m != nil {
			return m
		}
	}
	if name != "" {
		if m := byExternal(ms, name); m != nil {
			return m
		}
	}
	return nil
}

// hubUserID resolves a tracker login to a hub user id, falling back to the
// configured default when the login has no mapping.
func hubUserID(ctx context.Context, cfg *Config, login string) int {
	if login == "" {
		return cfg.DefaultHubUserID
	}
	m, err := cfg.Resolver.UserByExternalKey(ctx, login)
	if err != nil || m == nil {
		cfg.Log.Warnf("no hub user mapped for tracker login %q", login)
		return cfg.DefaultHubUserID
	}
	return m.InternalID
}

// severityFromIssue reads the mirrored severity custom field back into a hub
// severity id, nil when unmapped or absent.
func severityFromIssue(cfg *Config, issue *jira.Issue) *int {
	if cfg.SeverityCustomFieldID == 0 {
		return nil
	}
	cf, ok := issue.CustomFields[cfg.SeverityCustomFieldID]
	if !ok {
		return nil
	}
	display, ok := cf.ListValue()
	if !ok {
		display = cf.DisplayString()
	}
	if display == "" {
		return nil
	}
	if m := byExternal(cfg.Severities, display); m != nil {
		id := m.InternalID
		return &id
	}
	cfg.Log.Warnf("issue %s: no hub severity mapped for %q", issue.Key, display)
	return nil
}

// intPtr is a convenience for optional enum ids.
func intPtr(n int) *int { return &n }
