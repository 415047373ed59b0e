package jira

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// apiBase is the REST base path for all tracker resources.
const apiBase = "/rest/api/2"

// Client provides HTTP access to the tracker. Transient failures are retried
// here; the engine layer does no retries of its own.
type Client struct {
	BaseURL  string
	Username string
	Password string

	// UseDefaultCredentials enables integrated single-sign-on mode: no
	// Authorization header is sent and the ambient transport credentials
	// apply.
	UseDefaultCredentials bool

	// InsecureSkipVerify accepts self-signed certificates. Opt-in per
	// client instance; deployments with private CAs need it, everyone
	// else should leave it off.
	InsecureSkipVerify bool

	HTTPClient *http.Client
}

// protocolLatch records the first TLS version that succeeded against the
// permissions probe. Init-once, read-many, process-wide.
var protocolLatch struct {
	mu      sync.Mutex
	decided bool
	version uint16
}

// NewClient creates a tracker client for the given base URL and credentials.
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		Username: username,
		Password: password,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// BrowseURL returns the human-readable URL for an issue key.
func (c *Client) BrowseURL(key string) string {
	return c.BaseURL + "/browse/" + key
}

// Permissions probes connectivity and authorization via the mypermissions
// resource and returns the raw JSON. On first use it walks the TLS protocol
// ladder (1.2, 1.1, 1.0) and latches the first version that succeeds; SSL 3.0
// is not supported by the runtime, so the ladder bottoms out at TLS 1.0.
func (c *Client) Permissions(ctx context.Context) (json.RawMessage, error) {
	protocolLatch.mu.Lock()
	decided := protocolLatch.decided
	version := protocolLatch.version
	protocolLatch.mu.Unlock()

	if decided {
		c.applyTLSVersion(version)
		return c.get(ctx, apiBase+"/mypermissions", nil)
	}

	ladder := []uint16{tls.VersionTLS12, tls.VersionTLS11, tls.VersionTLS10}
	var lastErr error
	for _, v := range ladder {
		c.applyTLSVersion(v)
		body, err := c.get(ctx, apiBase+"/mypermissions", nil)
		if err == nil {
			protocolLatch.mu.Lock()
			if !protocolLatch.decided {
				protocolLatch.decided = true
				protocolLatch.version = v
			}
			protocolLatch.mu.Unlock()
			return body, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("permissions probe failed on every TLS version: %w", lastErr)
}

// applyTLSVersion pins the client transport to a single TLS version.
func (c *Client) applyTLSVersion(version uint16) {
	c.HTTPClient.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         version,
			MaxVersion:         version,
			InsecureSkipVerify: c.InsecureSkipVerify,
		},
		Proxy: http.ProxyFromEnvironment,
	}
}

// Meta fetches the create-metadata for the given project keys, expanded down
// to field level. The engine fetches it once per run and threads it through
// issue shaping and custom-field decoding.
func (c *Client) Meta(ctx context.Context, projectKeys []string) (*CreateMeta, error) {
	params := url.Values{
		"projectKeys": {strings.Join(projectKeys, ",")},
		"expand":      {"projects.issuetypes.fields"},
	}
	body, err := c.get(ctx, apiBase+"/issue/createmeta", params)
	if err != nil {
		return nil, fmt.Errorf("fetch create metadata: %w", err)
	}
	var meta CreateMeta
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("parse create metadata: %w", err)
	}
	return &meta, nil
}

// Projects lists the tracker's projects.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	body, err := c.get(ctx, apiBase+"/project", nil)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var projects []Project
	if err := json.Unmarshal(body, &projects); err != nil {
		return nil, fmt.Errorf("parse projects: %w", err)
	}
	return projects, nil
}

// Versions lists the versions of a project.
func (c *Client) Versions(ctx context.Context, projectKey string) ([]Version, error) {
	body, err := c.get(ctx, apiBase+"/project/"+url.PathEscape(projectKey)+"/versions", nil)
	if err != nil {
		return nil, fmt.Errorf("list versions for %s: %w", projectKey, err)
	}
	var versions []Version
	if err := json.Unmarshal(body, &versions); err != nil {
		return nil, fmt.Errorf("parse versions: %w", err)
	}
	return versions, nil
}

// Components lists the components of a project.
func (c *Client) Components(ctx context.Context, projectKey string) ([]Component, error) {
	body, err := c.get(ctx, apiBase+"/project/"+url.PathEscape(projectKey)+"/components", nil)
	if err != nil {
		return nil, fmt.Errorf("list components for %s: %w", projectKey, err)
	}
	var components []Component
	if err := json.Unmarshal(body, &components); err != nil {
		return nil, fmt.Errorf("parse components: %w", err)
	}
	return components, nil
}

// CreateVersion creates a project version and returns it with its id set.
func (c *Client) CreateVersion(ctx context.Context, v Version) (*Version, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal version: %w", err)
	}
	body, err := c.send(ctx, http.MethodPost, apiBase+"/version", data)
	if err != nil {
		return nil, fmt.Errorf("create version %q: %w", v.Name, err)
	}
	var created Version
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("parse created version: %w", err)
	}
	return &created, nil
}

// AddAttachment uploads a file attachment to an issue.
func (c *Client) AddAttachment(ctx context.Context, key, filename string, data []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("build multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write multipart: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	endpoint := c.BaseURL + apiBase + "/issue/" + url.PathEscape(key) + "/attachments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return fmt.Errorf("create attachment request: %w", err)
	}
	c.setAuth(req)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-Atlassian-Token", "nocheck")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload attachment %q to %s: %w", filename, key, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload attachment %q to %s: status %d: %s", filename, key, resp.StatusCode, string(respBody))
	}
	return nil
}

// DownloadAttachment fetches attachment content from its download URL.
func (c *Client) DownloadAttachment(ctx context.Context, contentURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, contentURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download attachment: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// AddComment posts a plain-text comment to an issue.
func (c *Client) AddComment(ctx context.Context, key, body string) error {
	data, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}
	if _, err := c.send(ctx, http.MethodPost, apiBase+"/issue/"+url.PathEscape(key)+"/comment", data); err != nil {
		return fmt.Errorf("comment on %s: %w", key, err)
	}
	return nil
}

// AddRemoteLink attaches a remote web link to an issue.
func (c *Client) AddRemoteLink(ctx context.Context, key, linkURL, title string) error {
	payload := map[string]interface{}{
		"object": RemoteLink{URL: linkURL, Title: title},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal remote link: %w", err)
	}
	if _, err := c.send(ctx, http.MethodPost, apiBase+"/issue/"+url.PathEscape(key)+"/remotelink", data); err != nil {
		return fmt.Errorf("add remote link to %s: %w", key, err)
	}
	return nil
}

// AddIssueLink creates a typed link between two issues.
func (c *Client) AddIssueLink(ctx context.Context, linkType, fromKey, toKey, comment string) error {
	link := IssueLinkRequest{
		Type:         IssueLinkType{Name: linkType},
		InwardIssue:  IssueRef{Key: fromKey},
		OutwardIssue: IssueRef{Key: toKey},
	}
	if comment != "" {
		link.Comment = &LinkComment{Body: comment}
	}
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("marshal issue link: %w", err)
	}
	if _, err := c.send(ctx, http.MethodPost, apiBase+"/issueLink", data); err != nil {
		return fmt.Errorf("link %s to %s: %w", fromKey, toKey, err)
	}
	return nil
}

// get issues an authenticated GET with query parameters.
func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	endpoint := c.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

// send issues an authenticated request with a JSON body.
func (c *Client) send(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	return c.do(ctx, method, c.BaseURL+path, body)
}

// do executes one request with bounded exponential backoff on network errors
// and 5xx responses. 4xx responses are permanent.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (json.RawMessage, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("tracker URL not configured")
	}

	var result json.RawMessage
	operation := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		c.setAuth(req)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err // retryable
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusNoContent:
			result = nil
			return nil
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			result = respBody
			return nil
		case resp.StatusCode >= 500:
			return fmt.Errorf("tracker returned %d: %s", resp.StatusCode, string(respBody))
		default:
			return backoff.Permanent(fmt.Errorf("tracker returned %d: %s", resp.StatusCode, string(respBody)))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return result, nil
}

// setAuth applies HTTP Basic auth unless integrated credentials are in use.
func (c *Client) setAuth(req *http.Request) {
	if c.UseDefaultCredentials {
		return
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
	req.Header.Set("Authorization", "Basic "+auth)
}

// resetProtocolLatch clears the process-wide TLS preference. Test hook.
func resetProtocolLatch() {
	protocolLatch.mu.Lock()
	protocolLatch.decided = false
	protocolLatch.version = 0
	protocolLatch.mu.Unlock()
}
