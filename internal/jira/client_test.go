package jira

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchKeysPagination(t *testing.T) {
	pageSize := 2
	total := 5
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		var issues []Issue
		for i := startAt; i < total && i < startAt+pageSize; i++ {
			issues = append(issues, Issue{Key: "DEMO-" + strconv.Itoa(i+1)})
		}
		_ = json.NewEncoder(w).Encode(SearchResult{
			StartAt: startAt, MaxResults: pageSize, Total: total, Issues: issues,
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "sync", "secret")
	keys, err := c.SearchKeys(context.Background(), "updated >= '2024/07/01 00:00' order by updated asc", pageSize)
	require.NoError(t, err)

	assert.Equal(t, []string{"DEMO-1", "DEMO-2", "DEMO-3", "DEMO-4", "DEMO-5"}, keys)
	assert.Equal(t, 3, requests, "pages until a short page is returned")
}

func TestCreateIssuePayload(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/2/issue/", r.URL.Path)
		auth := r.Header.Get("Authorization")
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("sync:secret"))
		assert.Equal(t, want, auth)

		var payload struct {
			Fields map[string]interface{} `json:"fields"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		captured = payload.Fields

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "10042", "key": "DEMO-8"})
	}))
	defer server.Close()

	c := NewClient(server.URL, "sync", "secret")
	issue := &Issue{Fields: Fields{
		Summary:   "Crash on login",
		Project:   &Project{Key: "DEMO"},
		IssueType: &IssueType{ID: "10001"},
		Reporter:  &User{Name: "alice"},
	}}

	created, err := c.CreateIssue(context.Background(), issue, demoMeta())
	require.NoError(t, err)
	assert.Equal(t, "DEMO-8", created.Key)

	assert.Equal(t, "Crash on login", captured["summary"])
	assert.Equal(t, map[string]interface{}{"key": "DEMO"}, captured["project"])
	assert.Equal(t, map[string]interface{}{"id": "10001"}, captured["issuetype"])
	assert.Equal(t, map[string]interface{}{"name": "alice"}, captured["reporter"])
	for name := range captured {
		switch name {
		case "summary", "project", "issuetype", "reporter":
		default:
			t.Errorf("unexpected field %q leaked into create payload", name)
		}
	}
}

func TestGetIssueReconstructsCustomFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": "10011", "key": "DEMO-11",
			"fields": {
				"summary": "Pulled issue",
				"issuetype": {"id": "10001", "name": "Bug"},
				"status": {"id": "3", "name": "In Progress"},
				"customfield_20001": {"id": "31"},
				"customfield_20050": true,
				"comment": {"comments": [{"body": "fixed", "author": {"name": "bob"}}]}
			}
		}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "sync", "secret")
	issue, err := c.GetIssue(context.Background(), "DEMO-11", demoMeta())
	require.NoError(t, err)

	assert.Equal(t, "DEMO-11", issue.Key)
	assert.Equal(t, "Pulled issue", issue.Fields.Summary)

	opt, ok := issue.CustomFields[20001].ListValue()
	require.True(t, ok)
	assert.Equal(t, "Windows", opt, "option id resolved to name via metadata")

	b, ok := issue.CustomFields[20050].BoolValue()
	require.True(t, ok)
	assert.True(t, b)

	require.NotNil(t, issue.Fields.Comment)
	require.Len(t, issue.Fields.Comment.Comments, 1)
	assert.Equal(t, "bob", issue.Fields.Comment.Comments[0].AuthorLogin())
}

func TestAddAttachmentHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "nocheck", r.Header.Get("X-Atlassian-Token"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		assert.Equal(t, "trace.log", header.Filename)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "sync", "secret")
	err := c.AddAttachment(context.Background(), "DEMO-8", "trace.log", []byte("boom"))
	require.NoError(t, err)
}

func TestPermissionsLatchesProtocol(t *testing.T) {
	resetProtocolLatch()
	defer resetProtocolLatch()

	var probes int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes++
		_, _ = w.Write([]byte(`{"permissions":{}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "sync", "secret")
	body, err := c.Permissions(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, body)
	assert.Equal(t, 1, probes, "first ladder step succeeds and latches")

	// Second probe reuses the latched protocol without re-walking the ladder.
	_, err = c.Permissions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, probes)
}

func TestDoRetriesServerErrors(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "sync", "secret")
	_, err := c.Projects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewClient(server.URL, "sync", "wrong")
	_, err := c.Projects(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
