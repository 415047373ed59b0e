package transform

import (
	"context"
	"strings"
	"time"

	"github.com/slatewood/bridgesync/internal/htmltext"
	"github.com/slatewood/bridgesync/internal/jira"
	"github.com/slatewood/bridgesync/internal/types"
)

// Comment equality across the boundary is defined on plain-text body alone:
// hub comments are HTML, tracker bodies are plain text, so both sides are
// normalized before comparison. Authors and timestamps never participate.

// NewHubComments returns the tracker comments missing from the hub artifact,
// converted to hub comment records. Authors resolve by tracker login with
// the configured default user as fallback.
func NewHubComments(ctx context.Context, cfg *Config, artifactID int, hubComments []types.CommentRecord, trackerComments []jira.Comment) []types.CommentRecord {
	seen := make(map[string]bool, len(hubComments))
	for _, c := range hubComments {
		seen[normalizeComment(htmltext.ToPlainText(c.Text))] = true
	}

	var out []types.CommentRecord
	for _, tc := range trackerComments {
		key := normalizeComment(tc.Body)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		created := time.Now().UTC()
		if t, ok := jira.ParseTimestamp(tc.Created); ok {
			created = t.UTC()
		}
		out = append(out, types.CommentRecord{
			ArtifactID:   artifactID,
			AuthorID:     hubUserID(ctx, cfg, tc.AuthorLogin()),
			Text:         htmltext.FromPlainText(tc.Body),
			CreationDate: created,
		})
	}
	return out
}

// NewTrackerComments returns the hub comment bodies missing from the tracker
// issue, as plain text ready to post.
func NewTrackerComments(hubComments []types.CommentRecord, trackerComments []jira.Comment) []string {
	seen := make(map[string]bool, len(trackerComments))
	for _, tc := range trackerComments {
		seen[normalizeComment(tc.Body)] = true
	}

	var out []string
	for _, c := range hubComments {
		body := htmltext.ToPlainText(c.Text)
		key := normalizeComment(body)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, body)
	}
	return out
}

func normalizeComment(s string) string {
	return strings.TrimSpace(s)
}
