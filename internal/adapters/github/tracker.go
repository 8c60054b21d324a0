// Package github implements the issue tracker port against the GitHub REST
// API. Branch content is pushed with git plumbing; the credential rides in
// request headers and is never rendered into URLs, logs, or errors.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/conveyor-dev/conveyor/internal/domain"
	"github.com/conveyor-dev/conveyor/internal/ports"
)

type Tracker struct {
	// APIBase and HTTPClient are overridable for tests.
	APIBase    string
	HTTPClient *http.Client

	// PushBranch publishes contentDir as a single commit on branch. The
	// default implementation shells out to git.
	PushBranch func(ctx context.Context, repositoryURL, branch, contentDir, message string) error

	token domain.Secret
	log   *log.Logger
}

func NewTracker(token domain.Secret, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.New(nil)
	}
	t := &Tracker{
		APIBase:    "https://api.github.com",
		HTTPClient: http.DefaultClient,
		token:      token,
		log:        logger,
	}
	t.PushBranch = t.gitPush
	return t
}

// ReadIssue fetches one issue. Unauthorized reads are indistinguishable
// from missing issues on purpose: both surface as IssueNotFoundError.
func (t *Tracker) ReadIssue(ctx context.Context, repositoryURL string, number int) (*ports.Issue, error) {
	owner, repo, err := splitRepository(repositoryURL)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		Body    string `json:"body"`
		HTMLURL string `json:"html_url"`
	}
	status, err := t.request(ctx, http.MethodGet,
		fmt.Sprintf("%s/repos/%s/%s/issues/%d", t.APIBase, owner, repo, number), nil, &payload)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden, http.StatusGone:
		return nil, &domain.IssueNotFoundError{Repository: repositoryURL, Number: number}
	default:
		return nil, fmt.Errorf("reading issue #%d: unexpected status %d", number, status)
	}

	return &ports.Issue{
		Number: payload.Number,
		Title:  payload.Title,
		Body:   payload.Body,
		URL:    payload.HTMLURL,
	}, nil
}

// CreatePullRequest pushes contentDir as a fresh branch and opens a pull
// request against the repository's default branch.
func (t *Tracker) CreatePullRequest(ctx context.Context, repositoryURL, title, body, contentDir string) (*ports.PullRequest, error) {
	owner, repo, err := splitRepository(repositoryURL)
	if err != nil {
		return nil, err
	}

	base, err := t.defaultBranch(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	branch := "conveyor/" + uuid.NewString()[:8]
	if err := t.PushBranch(ctx, repositoryURL, branch, contentDir, title); err != nil {
		return nil, fmt.Errorf("pushing branch %s: %w", branch, err)
	}

	reqBody := map[string]string{
		"title": title,
		"body":  body,
		"head":  branch,
		"base":  base,
	}
	var payload struct {
		HTMLURL string `json:"html_url"`
	}
	status, err := t.request(ctx, http.MethodPost,
		fmt.Sprintf("%s/repos/%s/%s/pulls", t.APIBase, owner, repo), reqBody, &payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("creating pull request: unexpected status %d", status)
	}

	t.log.Info("pull request created", "branch", branch, "base", base)
	return &ports.PullRequest{Title: title, Body: body, URL: payload.HTMLURL}, nil
}

func (t *Tracker) defaultBranch(ctx context.Context, owner, repo string) (string, error) {
	var payload struct {
		DefaultBranch string `json:"default_branch"`
	}
	status, err := t.request(ctx, http.MethodGet,
		fmt.Sprintf("%s/repos/%s/%s", t.APIBase, owner, repo), nil, &payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK || payload.DefaultBranch == "" {
		return "main", nil
	}
	return payload.DefaultBranch, nil
}

func (t *Tracker) request(ctx context.Context, method, url string, body any, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if !t.token.Empty() {
		req.Header.Set("Authorization", "Bearer "+t.token.Reveal())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("tracker request failed: %w", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding tracker response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// gitPush publishes contentDir as one commit on branch. The directory is a
// fresh export with no history; the commit stands alone and GitHub computes
// the diff against the base branch.
func (t *Tracker) gitPush(ctx context.Context, repositoryURL, branch, contentDir, message string) error {
	remote := strings.TrimSuffix(repositoryURL, "/")
	if !strings.HasSuffix(remote, ".git") {
		remote += ".git"
	}

	gitEnv := append(os.Environ(),
		"GIT_AUTHOR_NAME=conveyor", "GIT_AUTHOR_EMAIL=conveyor@local",
		"GIT_COMMITTER_NAME=conveyor", "GIT_COMMITTER_EMAIL=conveyor@local",
	)

	// The credential travels as an http header config value, never inside
	// the remote URL, so failed commands cannot echo it back.
	auth := "http." + remote + ".extraheader=Authorization: Bearer " + t.token.Reveal()

	steps := [][]string{
		{"git", "init", "--quiet"},
		{"git", "add", "-A"},
		{"git", "commit", "--quiet", "-m", message},
		{"git", "-c", auth, "push", "--quiet", remote, "HEAD:refs/heads/" + branch},
	}
	for _, step := range steps {
		cmd := exec.CommandContext(ctx, step[0], step[1:]...)
		cmd.Dir = contentDir
		cmd.Env = gitEnv

		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("git %s: %s: %w", step[1], strings.TrimSpace(stderr.String()), err)
		}
	}
	return nil
}

// splitRepository extracts owner and repo from a GitHub repository URL.
func splitRepository(repositoryURL string) (owner, repo string, err error) {
	u, err := url.Parse(repositoryURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing repository url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository url %q must include owner and name", repositoryURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}
