package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/slatewood/bridgesync/internal/types"
)

// issueFields is the projection requested by search and fetch. Search only
// accumulates keys; the full projection is used for the per-key fetch.
const issueFields = "summary,description,environment,project,issuetype,status,priority,resolution," +
	"reporter,assignee,created,updated,duedate,resolutiondate,versions,fixVersions,components," +
	"attachment,comment,security"

// MissingRequiredError reports a create payload missing a field the
// metadata marks as required for the target issue type.
type MissingRequiredError struct {
	Field       string
	ProjectKey  string
	IssueTypeID string
}

func (e *MissingRequiredError) Error() string {
	return fmt.Sprintf("field %q is required for issue type %s in project %s",
		e.Field, e.IssueTypeID, e.ProjectKey)
}

// SearchKeys runs a paginated JQL search accumulating only issue keys.
// It pages in pageSize batches until a short page is returned. The engine
// re-fetches each issue by key afterwards to keep search payloads small.
func (c *Client) SearchKeys(ctx context.Context, jql string, pageSize int) ([]string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	var keys []string
	startAt := 0
	for {
		params := url.Values{
			"jql":        {jql},
			"fields":     {"key"},
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(pageSize)},
		}
		body, err := c.get(ctx, apiBase+"/search", params)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", jql, err)
		}
		var result SearchResult
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("parse search response: %w", err)
		}
		for _, issue := range result.Issues {
			keys = append(keys, issue.Key)
		}
		if len(result.Issues) < pageSize {
			return keys, nil
		}
		startAt += len(result.Issues)
	}
}

// GetIssue fetches the full issue record including comments and attachments.
// Custom-field values are reconstructed dynamically from the JSON value
// shapes against the create-metadata.
func (c *Client) GetIssue(ctx context.Context, key string, meta *CreateMeta) (*Issue, error) {
	params := url.Values{"fields": {issueFields + ",*all"}}
	body, err := c.get(ctx, apiBase+"/issue/"+url.PathEscape(key), params)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", key, err)
	}

	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("parse issue %s: %w", key, err)
	}

	var raw rawIssue
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse issue %s fields: %w", key, err)
	}
	issue.CustomFields = decodeCustomFields(raw.Fields, meta, issueTypeID(&issue))

	return &issue, nil
}

func issueTypeID(issue *Issue) string {
	if issue.Fields.IssueType != nil {
		return issue.Fields.IssueType.ID
	}
	return ""
}

// decodeCustomFields classifies every customfield_* property by its JSON
// value shape. Null, missing, or unrecognized shapes yield no entry.
func decodeCustomFields(fields map[string]json.RawMessage, meta *CreateMeta, issueTypeID string) map[int]types.TypedValue {
	decoded := make(map[int]types.TypedValue)
	for name, raw := range fields {
		if !strings.HasPrefix(name, CustomFieldPrefix) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(name, CustomFieldPrefix))
		if err != nil {
			continue
		}
		v := decodeCustomValue(raw, metaFieldFor(meta, issueTypeID, name))
		if !v.IsAbsent() {
			decoded[id] = v
		}
	}
	return decoded
}

// metaFieldFor finds the metadata entry for a custom field on any project
// node carrying the issue type; option tables are shared across projects.
func metaFieldFor(meta *CreateMeta, issueTypeID, fieldName string) *MetaField {
	if meta == nil {
		return nil
	}
	for i := range meta.Projects {
		for j := range meta.Projects[i].IssueTypes {
			it := &meta.Projects[i].IssueTypes[j]
			if issueTypeID != "" && it.ID != issueTypeID {
				continue
			}
			if f, ok := it.Fields[fieldName]; ok {
				return &f
			}
		}
	}
	return nil
}

// decodeCustomValue maps one raw JSON value to a TypedValue:
//   - array of objects with "id" -> MultiList of option names (via metadata)
//   - object with "id"           -> List with the option name
//   - object with "name"         -> User with the login
//   - bool/number/date/string    -> the corresponding scalar
func decodeCustomValue(raw json.RawMessage, field *MetaField) types.TypedValue {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return types.Absent()
	}

	switch trimmed[0] {
	case '[':
		var items []struct {
			ID    string `json:"id"`
			Value string `json:"value"`
			Name  string `json:"name"`
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return types.Absent()
		}
		var names []string
		for _, item := range items {
			if item.ID == "" {
				continue
			}
			names = append(names, optionDisplay(field, item.ID, item.Value, item.Name))
		}
		if names == nil {
			return types.Absent()
		}
		return types.MultiList(names)

	case '{':
		var obj struct {
			ID    string `json:"id"`
			Value string `json:"value"`
			Name  string `json:"name"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return types.Absent()
		}
		if obj.ID != "" {
			return types.List(optionDisplay(field, obj.ID, obj.Value, obj.Name))
		}
		if obj.Name != "" {
			return types.User(obj.Name)
		}
		return types.Absent()

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return types.Absent()
		}
		return types.Boolean(b)

	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return types.Absent()
		}
		if t, ok := parseTimestamp(s); ok {
			return types.Date(t)
		}
		return types.Text(s)

	default:
		if n, err := strconv.Atoi(trimmed); err == nil {
			return types.Integer(n)
		}
		if d, err := decimal.NewFromString(trimmed); err == nil {
			return types.Decimal(d)
		}
		return types.Absent()
	}
}

// optionDisplay prefers the metadata's display text for an option id, then
// whatever text came inline with the value.
func optionDisplay(field *MetaField, id, value, name string) string {
	if field != nil {
		if display, ok := field.OptionDisplayByID(id); ok {
			return display
		}
	}
	if value != "" {
		return value
	}
	if name != "" {
		return name
	}
	return id
}

// timestampFormats are the wire formats the tracker emits.
var timestampFormats = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
	"2006-01-02",
}

// parseTimestamp parses a tracker timestamp, normalized to UTC.
func parseTimestamp(s string) (time.Time, bool) {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseTimestamp is the exported form used by the transformers.
func ParseTimestamp(s string) (time.Time, bool) { return parseTimestamp(s) }

// CreateIssue validates the issue against the create-metadata, shapes the
// payload, and posts it. The returned issue carries only id/key/self.
func (c *Client) CreateIssue(ctx context.Context, issue *Issue, meta *CreateMeta) (*Issue, error) {
	fields, err := ShapeCreateFields(issue, meta)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{"fields": fields}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal create payload: %w", err)
	}

	body, err := c.send(ctx, http.MethodPost, apiBase+"/issue/", data)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}

	var created Issue
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("parse create response: %w", err)
	}
	return &created, nil
}

// ShapeCreateFields projects the typed issue onto the fields the target
// issue type actually exposes. Two passes: project to a free-form tree, then
// reconcile that tree against the metadata before serialization.
//
// Rules, in order:
//  1. Without a metadata node for (projectKey, issueTypeID), validation is
//     skipped and the projection ships as-is.
//  2. Every required non-custom field must be present, else
//     MissingRequiredError.
//  3. Fields absent from the metadata are dropped, except issuetype.
//  4. Custom fields are appended only when the metadata declares them for
//     the issue type; option values are translated display->id via
//     allowedValues, mismatches silently dropped.
func ShapeCreateFields(issue *Issue, meta *CreateMeta) (map[string]interface{}, error) {
	fields := projectFields(issue)

	projectKey := ""
	if issue.Fields.Project != nil {
		projectKey = issue.Fields.Project.Key
	}
	node := meta.IssueTypeNode(projectKey, issueTypeID(issue))
	if node == nil {
		appendCustomFields(fields, issue.CustomFields, nil)
		return fields, nil
	}

	for name, f := range node.Fields {
		if !f.Required || strings.HasPrefix(name, CustomFieldPrefix) {
			continue
		}
		if _, ok := fields[name]; !ok {
			return nil, &MissingRequiredError{Field: name, ProjectKey: projectKey, IssueTypeID: node.ID}
		}
	}

	for name := range fields {
		if name == "issuetype" {
			continue
		}
		if _, ok := node.Fields[name]; !ok {
			delete(fields, name)
		}
	}

	appendCustomFields(fields, issue.CustomFields, node)
	return fields, nil
}

// projectFields builds the free-form field tree from the typed issue.
// IDs are serialized as decimal strings per the tracker's schema.
func projectFields(issue *Issue) map[string]interface{} {
	fields := make(map[string]interface{})
	f := &issue.Fields

	if f.Project != nil {
		fields["project"] = map[string]string{"key": f.Project.Key}
	}
	fields["summary"] = f.Summary
	if f.Description != "" {
		fields["description"] = f.Description
	}
	if f.Environment != "" {
		fields["environment"] = f.Environment
	}
	if f.IssueType != nil {
		fields["issuetype"] = map[string]string{"id": f.IssueType.ID}
	}
	if f.Priority != nil {
		fields["priority"] = map[string]string{"id": f.Priority.ID}
	}
	if f.Resolution != nil {
		fields["resolution"] = map[string]string{"id": f.Resolution.ID}
	}
	if f.Security != nil {
		fields["security"] = map[string]string{"id": f.Security.ID}
	}
	if f.Reporter != nil && f.Reporter.Name != "" {
		fields["reporter"] = map[string]string{"name": f.Reporter.Name}
	}
	if f.Assignee != nil && f.Assignee.Name != "" {
		fields["assignee"] = map[string]string{"name": f.Assignee.Name}
	}
	if f.DueDate != "" {
		fields["duedate"] = f.DueDate
	}
	if len(f.Versions) > 0 {
		fields["versions"] = versionRefs(f.Versions)
	}
	if len(f.FixVersions) > 0 {
		fields["fixVersions"] = versionRefs(f.FixVersions)
	}
	if len(f.Components) > 0 {
		refs := make([]map[string]string, 0, len(f.Components))
		for _, comp := range f.Components {
			if comp.ID != "" {
				refs = append(refs, map[string]string{"id": comp.ID})
			} else {
				refs = append(refs, map[string]string{"name": comp.Name})
			}
		}
		fields["components"] = refs
	}
	return fields
}

func versionRefs(versions []Version) []map[string]string {
	refs := make([]map[string]string, 0, len(versions))
	for _, v := range versions {
		if v.ID != "" {
			refs = append(refs, map[string]string{"id": v.ID})
		} else {
			refs = append(refs, map[string]string{"name": v.Name})
		}
	}
	return refs
}

// appendCustomFields adds the typed custom values, each gated on the
// metadata declaring that custom field for the target issue type. With no
// metadata node the gate is open.
func appendCustomFields(fields map[string]interface{}, customs map[int]types.TypedValue, node *MetaIssueType) {
	for id, value := range customs {
		name := fmt.Sprintf("%s%d", CustomFieldPrefix, id)
		var metaField *MetaField
		if node != nil {
			f, ok := node.Fields[name]
			if !ok {
				continue
			}
			metaField = &f
		}
		if encoded, ok := encodeCustomValue(value, metaField); ok {
			fields[name] = encoded
		}
	}
}

// encodeCustomValue renders one TypedValue as tracker JSON. List options are
// translated display->id through allowedValues; unmatched options drop.
func encodeCustomValue(v types.TypedValue, field *MetaField) (interface{}, bool) {
	switch v.Kind() {
	case types.KindText:
		s, _ := v.TextValue()
		return s, true
	case types.KindInteger:
		n, _ := v.IntValue()
		return n, true
	case types.KindDecimal:
		d, _ := v.DecimalValue()
		f, _ := d.Float64()
		return f, true
	case types.KindBoolean:
		b, _ := v.BoolValue()
		return b, true
	case types.KindDate:
		t, _ := v.DateValue()
		return t.Format("2006-01-02T15:04:05.000-0700"), true
	case types.KindUser:
		login, _ := v.UserValue()
		return map[string]string{"name": login}, true
	case types.KindList:
		option, _ := v.ListValue()
		if field == nil {
			return map[string]string{"value": option}, true
		}
		if id, ok := field.OptionIDByDisplay(option); ok {
			return map[string]string{"id": id}, true
		}
		return nil, false
	case types.KindMultiList:
		options, _ := v.MultiListValue()
		var encoded []map[string]string
		for _, option := range options {
			if field == nil {
				encoded = append(encoded, map[string]string{"value": option})
				continue
			}
			if id, ok := field.OptionIDByDisplay(option); ok {
				encoded = append(encoded, map[string]string{"id": id})
			}
		}
		if encoded == nil {
			return nil, false
		}
		return encoded, true
	}
	return nil, false
}
