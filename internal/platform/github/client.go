package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/issueflow/internal/workflow"
)

const (
	acceptJSON = "application/vnd.github.v3+json"
	acceptDiff = "application/vnd.github.v3.diff"
	userAgent  = "issueflow-bot"

	perPage = 100
)

// APIError carries a non-2xx GitHub response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("GitHub API request failed with status %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the GitHub REST API as a GitHub App. All requests pass
// through a shared rate limiter so bursts of webhook deliveries stay
// inside GitHub's secondary limits.
type Client struct {
	auth       *AppAuth
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient wraps auth into an API client rooted at baseURL.
func NewClient(auth *AppAuth, baseURL string) *Client {
	return &Client{
		auth:       auth,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// ForInstallation binds the client to one installation's token.
func (c *Client) ForInstallation(installationID int64) workflow.PlatformClient {
	return &InstallationClient{client: c, installationID: installationID}
}

var _ workflow.Platform = (*Client)(nil)

// InstallationClient performs REST calls authorized as one installation.
type InstallationClient struct {
	client         *Client
	installationID int64
}

var _ workflow.PlatformClient = (*InstallationClient)(nil)

func (ic *InstallationClient) doRequest(ctx context.Context, method, path string, body interface{}, accept string) ([]byte, error) {
	if err := ic.client.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := ic.client.auth.InstallationToken(ctx, ic.installationID)
	if err != nil {
		return nil, fmt.Errorf("installation token: %w", err)
	}

	var reader *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewBuffer(payload)
	} else {
		reader = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, ic.client.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept == "" {
		accept = acceptJSON
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)

	resp, err := ic.client.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data := &bytes.Buffer{}
	if _, err := data.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: data.String()}
	}
	return data.Bytes(), nil
}

func (ic *InstallationClient) getJSON(ctx context.Context, path string, out interface{}) error {
	data, err := ic.doRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (ic *InstallationClient) postJSON(ctx context.Context, path string, body, out interface{}) error {
	data, err := ic.doRequest(ctx, http.MethodPost, path, body, "")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// GetIssue fetches issue metadata.
func (ic *InstallationClient) GetIssue(ctx context.Context, repo string, number int) (*workflow.Issue, error) {
	var issue issueResponse
	if err := ic.getJSON(ctx, fmt.Sprintf("/repos/%s/issues/%d", repo, number), &issue); err != nil {
		return nil, err
	}
	return &workflow.Issue{Number: issue.Number, Title: issue.Title, Body: issue.Body}, nil
}

// ListIssueComments returns all comment bodies on an issue or pull
// request, oldest first.
func (ic *InstallationClient) ListIssueComments(ctx context.Context, repo string, number int) ([]string, error) {
	var bodies []string
	for page := 1; ; page++ {
		var batch []commentResponse
		path := fmt.Sprintf("/repos/%s/issues/%d/comments?per_page=%d&page=%d", repo, number, perPage, page)
		if err := ic.getJSON(ctx, path, &batch); err != nil {
			return nil, err
		}
		for _, comment := range batch {
			bodies = append(bodies, comment.Body)
		}
		if len(batch) < perPage {
			return bodies, nil
		}
	}
}

// CreateIssueComment posts a comment on an issue or pull request.
func (ic *InstallationClient) CreateIssueComment(ctx context.Context, repo string, number int, body string) error {
	payload := map[string]string{"body": body}
	return ic.postJSON(ctx, fmt.Sprintf("/repos/%s/issues/%d/comments", repo, number), payload, nil)
}

// GetPullRequest fetches pull request metadata.
func (ic *InstallationClient) GetPullRequest(ctx context.Context, repo string, number int) (*workflow.PullRequest, error) {
	var pr pullRequestResponse
	if err := ic.getJSON(ctx, fmt.Sprintf("/repos/%s/pulls/%d", repo, number), &pr); err != nil {
		return nil, err
	}
	return &workflow.PullRequest{
		Number:  pr.Number,
		Title:   pr.Title,
		Body:    pr.Body,
		HeadRef: pr.Head.Ref,
		HeadSHA: pr.Head.SHA,
		BaseRef: pr.Base.Ref,
	}, nil
}

// GetPullRequestDiff fetches the unified diff of a pull request.
func (ic *InstallationClient) GetPullRequestDiff(ctx context.Context, repo string, number int) (string, error) {
	data, err := ic.doRequest(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/pulls/%d", repo, number), nil, acceptDiff)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ListPullRequestFiles returns the paths currently touched by a pull
// request.
func (ic *InstallationClient) ListPullRequestFiles(ctx context.Context, repo string, number int) ([]string, error) {
	var paths []string
	for page := 1; ; page++ {
		var batch []pullRequestFile
		path := fmt.Sprintf("/repos/%s/pulls/%d/files?per_page=%d&page=%d", repo, number, perPage, page)
		if err := ic.getJSON(ctx, path, &batch); err != nil {
			return nil, err
		}
		for _, f := range batch {
			paths = append(paths, f.Filename)
		}
		if len(batch) < perPage {
			return paths, nil
		}
	}
}

// CreatePullRequest opens a pull request from head into base.
func (ic *InstallationClient) CreatePullRequest(ctx context.Context, repo, title, head, base, body string) (*workflow.PullRequest, error) {
	payload := map[string]string{
		"title": title,
		"head":  head,
		"base":  base,
		"body":  body,
	}
	var pr pullRequestResponse
	if err := ic.postJSON(ctx, fmt.Sprintf("/repos/%s/pulls", repo), payload, &pr); err != nil {
		return nil, err
	}
	return &workflow.PullRequest{
		Number:  pr.Number,
		Title:   pr.Title,
		Body:    pr.Body,
		HeadRef: pr.Head.Ref,
		HeadSHA: pr.Head.SHA,
		BaseRef: pr.Base.Ref,
	}, nil
}

// GetBranchHead returns the SHA of the tip commit of a branch.
func (ic *InstallationClient) GetBranchHead(ctx context.Context, repo, branch string) (string, error) {
	var resp branchResponse
	if err := ic.getJSON(ctx, fmt.Sprintf("/repos/%s/branches/%s", repo, url.PathEscape(branch)), &resp); err != nil {
		return "", err
	}
	return resp.Commit.SHA, nil
}

// CreateBranch points a new branch at the tip commit of base.
func (ic *InstallationClient) CreateBranch(ctx context.Context, repo, branch, base string) error {
	sha, err := ic.GetBranchHead(ctx, repo, base)
	if err != nil {
		return fmt.Errorf("resolve base branch %s: %w", base, err)
	}
	payload := map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	}
	return ic.postJSON(ctx, fmt.Sprintf("/repos/%s/git/refs", repo), payload, nil)
}

// ListFiles walks the repository tree at ref breadth-first and returns
// every file path.
func (ic *InstallationClient) ListFiles(ctx context.Context, repo, ref string) ([]string, error) {
	var files []string
	queue := []string{""}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		var entries []contentEntry
		if err := ic.getJSON(ctx, ic.contentsPath(repo, dir, ref), &entries); err != nil {
			return nil, fmt.Errorf("list %q: %w", dir, err)
		}
		for _, entry := range entries {
			switch entry.Type {
			case "dir":
				queue = append(queue, entry.Path)
			case "file":
				files = append(files, entry.Path)
			}
		}
	}
	return files, nil
}

// GetFileContent fetches a file's content at ref. The second return value
// reports presence: missing paths, directories, binary blobs and entries
// the contents API refuses to inline all come back as absent rather than
// as errors.
func (ic *InstallationClient) GetFileContent(ctx context.Context, repo, path, ref string) (string, bool, error) {
	var entry contentEntry
	err := ic.getJSON(ctx, ic.contentsPath(repo, path, ref), &entry)
	if err != nil {
		if IsNotFound(err) {
			return "", false, nil
		}
		var jsonErr *json.UnmarshalTypeError
		if errors.As(err, &jsonErr) {
			// A directory listing decodes as an array, not an object.
			return "", false, nil
		}
		return "", false, err
	}
	if entry.Type != "file" || entry.Encoding != "base64" {
		return "", false, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(entry.Content, "\n", ""))
	if err != nil {
		return "", false, fmt.Errorf("decode %s: %w", path, err)
	}
	if !utf8.Valid(decoded) {
		return "", false, nil
	}
	return string(decoded), true, nil
}

// UpsertFile writes content to path on branch, updating the file when it
// already exists and creating it otherwise.
func (ic *InstallationClient) UpsertFile(ctx context.Context, repo, branch, path, content, message string) error {
	payload := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"branch":  branch,
	}

	var existing contentEntry
	err := ic.getJSON(ctx, ic.contentsPath(repo, path, branch), &existing)
	switch {
	case err == nil && existing.SHA != "":
		payload["sha"] = existing.SHA
	case err != nil && !IsNotFound(err):
		return fmt.Errorf("probe %s: %w", path, err)
	}

	_, err = ic.doRequest(ctx, http.MethodPut, fmt.Sprintf("/repos/%s/contents/%s", repo, escapePath(path)), payload, "")
	return err
}

// DeleteFile removes path from branch.
func (ic *InstallationClient) DeleteFile(ctx context.Context, repo, branch, path, message string) error {
	var existing contentEntry
	if err := ic.getJSON(ctx, ic.contentsPath(repo, path, branch), &existing); err != nil {
		return fmt.Errorf("probe %s: %w", path, err)
	}
	payload := map[string]string{
		"message": message,
		"sha":     existing.SHA,
		"branch":  branch,
	}
	_, err := ic.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/repos/%s/contents/%s", repo, escapePath(path)), payload, "")
	return err
}

// CombinedStatus classifies the commit statuses reported for ref: no_ci
// when nothing reported, failure when anything failed or errored, success
// when everything succeeded, pending otherwise.
func (ic *InstallationClient) CombinedStatus(ctx context.Context, repo, ref string) (workflow.CIStatus, error) {
	var combined combinedStatusResponse
	if err := ic.getJSON(ctx, fmt.Sprintf("/repos/%s/commits/%s/status", repo, url.PathEscape(ref)), &combined); err != nil {
		return "", err
	}
	if len(combined.Statuses) == 0 {
		return workflow.CINoCI, nil
	}
	allSuccess := true
	for _, status := range combined.Statuses {
		switch status.State {
		case "failure", "error":
			return workflow.CIFailure, nil
		case "success":
		default:
			allSuccess = false
		}
	}
	if allSuccess {
		return workflow.CISuccess, nil
	}
	return workflow.CIPending, nil
}

func (ic *InstallationClient) contentsPath(repo, path, ref string) string {
	p := fmt.Sprintf("/repos/%s/contents", repo)
	if path != "" {
		p += "/" + escapePath(path)
	}
	if ref != "" {
		p += "?ref=" + url.QueryEscape(ref)
	}
	return p
}

// escapePath escapes each path segment while keeping the separators, the
// form the contents API expects.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
