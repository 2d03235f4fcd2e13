// Package github exports a reconstructed workspace to a GitHub repository
// as a single commit on an existing branch.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v68/github"

	"github.com/vibewire/vibewire/workspace"
)

// ErrEmptyWorkspace is returned when there is nothing to export.
var ErrEmptyWorkspace = errors.New("github: workspace has no files")

// Exporter pushes workspace contents to a repository branch.
type Exporter struct {
	client  *github.Client
	owner   string
	repo    string
	branch  string
	baseURL string
}

// Option configures the Exporter.
type Option func(*Exporter)

// WithBranch sets the target branch (default "main").
func WithBranch(branch string) Option {
	return func(e *Exporter) { e.branch = branch }
}

// WithHTTPClient sets the underlying HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(e *Exporter) { e.client = github.NewClient(hc) }
}

// WithBaseURL points API calls at a GitHub Enterprise (or test) endpoint.
func WithBaseURL(raw string) Option {
	return func(e *Exporter) { e.baseURL = raw }
}

// New creates an exporter targeting owner/repo, authenticated with a
// personal access token (repo scope).
func New(token, owner, repo string, opts ...Option) (*Exporter, error) {
	if owner == "" || repo == "" {
		return nil, errors.New("github: owner and repo are required")
	}
	e := &Exporter{
		client: github.NewClient(nil),
		owner:  owner,
		repo:   repo,
		branch: "main",
	}
	for _, o := range opts {
		o(e)
	}
	if token != "" {
		e.client = e.client.WithAuthToken(token)
	}
	if e.baseURL != "" {
		if !strings.HasSuffix(e.baseURL, "/") {
			e.baseURL += "/"
		}
		u, err := url.Parse(e.baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
		e.client.BaseURL = u
	}
	return e, nil
}

// Export commits every file in the workspace onto the target branch and
// returns the commit URL. Files absent from the workspace are left alone;
// the commit layers the workspace on top of the branch's current tree.
func (e *Exporter) Export(ctx context.Context, ws *workspace.Workspace, message string) (string, error) {
	files := ws.Files()
	if len(files) == 0 {
		return "", ErrEmptyWorkspace
	}
	if message == "" {
		message = "vibewire export"
	}

	refName := "refs/heads/" + e.branch
	ref, _, err := e.client.Git.GetRef(ctx, e.owner, e.repo, refName)
	if err != nil {
		return "", fmt.Errorf("resolving branch %s: %w", e.branch, err)
	}
	baseSHA := ref.GetObject().GetSHA()

	entries := make([]*github.TreeEntry, 0, len(files))
	for _, path := range ws.Paths() {
		entries = append(entries, &github.TreeEntry{
			Path:    github.Ptr(path),
			Mode:    github.Ptr("100644"),
			Type:    github.Ptr("blob"),
			Content: github.Ptr(files[path]),
		})
	}

	tree, _, err := e.client.Git.CreateTree(ctx, e.owner, e.repo, baseSHA, entries)
	if err != nil {
		return "", fmt.Errorf("creating tree: %w", err)
	}

	commit, _, err := e.client.Git.CreateCommit(ctx, e.owner, e.repo, &github.Commit{
		Message: github.Ptr(message),
		Tree:    tree,
		Parents: []*github.Commit{{SHA: github.Ptr(baseSHA)}},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("creating commit: %w", err)
	}

	ref.Object.SHA = commit.SHA
	if _, _, err := e.client.Git.UpdateRef(ctx, e.owner, e.repo, ref, false); err != nil {
		return "", fmt.Errorf("updating %s: %w", refName, err)
	}

	return commit.GetHTMLURL(), nil
}
