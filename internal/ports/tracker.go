package ports

import "context"

// Issue is an external tracker record. Read-only; never owned by this
// process.
type Issue struct {
	Number int
	Title  string
	Body   string
	URL    string
}

// PullRequest is created, never mutated.
type PullRequest struct {
	Title string
	Body  string
	URL   string
}

// IssueTracker is the tracker collaborator: read one issue, submit one pull
// request whose branch content is the directory at contentDir.
type IssueTracker interface {
	ReadIssue(ctx context.Context, repositoryURL string, number int) (*Issue, error)
	CreatePullRequest(ctx context.Context, repositoryURL, title, body, contentDir string) (*PullRequest, error)
}
