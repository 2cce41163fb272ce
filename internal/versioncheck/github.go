package versioncheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v55/github"
	"golang.org/x/time/rate"

	"github.com/oshokin/swupdate/internal/logger"
)

// ErrNoRelease is returned when a repository has no matching release.
var ErrNoRelease = errors.New("no release found")

// Release is the subset of a GitHub release the checks use.
type Release struct {
	Tag        string
	Name       string
	Prerelease bool
}

// GitHub wraps the go-github client with a rate limiter.
type GitHub struct {
	c *github.Client
	l *rate.Limiter
}

// GitHubOption configures the client.
type GitHubOption func(*githubOptions)

type githubOptions struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// WithAuthToken authenticates requests.
func WithAuthToken(token string) GitHubOption {
	return func(o *githubOptions) { o.token = token }
}

// WithBaseURL points the client at another API root.
func WithBaseURL(baseURL string) GitHubOption {
	return func(o *githubOptions) { o.baseURL = baseURL }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) GitHubOption {
	return func(o *githubOptions) { o.httpClient = c }
}

// WithLimiter replaces the rate limiter.
func WithLimiter(l *rate.Limiter) GitHubOption {
	return func(o *githubOptions) { o.limiter = l }
}

// NewLimiter creates the GitHub API rate limiter.
// Authenticated: 5000 requests per hour with burst 10.
// Unauthenticated: 60 requests per hour with burst 1.
func NewLimiter(authenticated bool) *rate.Limiter {
	if authenticated {
		return rate.NewLimiter(rate.Limit(5000.0/3600.0), 10)
	}

	return rate.NewLimiter(rate.Limit(60.0/3600.0), 1)
}

// NewGitHub creates a GitHub client.
func NewGitHub(opts ...GitHubOption) (*GitHub, error) {
	var o githubOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := github.NewClient(o.httpClient)
	if o.token != "" {
		c = c.WithAuthToken(o.token)
	}

	if o.baseURL != "" {
		base := o.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}

		parsed, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse github url: %w", err)
		}

		c.BaseURL = parsed
	}

	l := o.limiter
	if l == nil {
		l = NewLimiter(o.token != "")
	}

	return &GitHub{c: c, l: l}, nil
}

// LatestRelease returns the newest published release.
// Prereleases are considered only when prerelease is true.
func (g *GitHub) LatestRelease(ctx context.Context, owner, repo string, prerelease bool) (*Release, error) {
	if err := g.l.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	if !prerelease {
		release, _, err := g.c.Repositories.GetLatestRelease(ctx, owner, repo)
		if err != nil {
			return nil, fmt.Errorf("github latest release of %s/%s: %w", owner, repo, err)
		}

		return toRelease(release), nil
	}

	releases, _, err := g.c.Repositories.ListReleases(ctx, owner, repo, &github.ListOptions{PerPage: 30})
	if err != nil {
		return nil, fmt.Errorf("github list releases of %s/%s: %w", owner, repo, err)
	}

	// Releases come newest first.
	for _, release := range releases {
		if release.GetDraft() {
			continue
		}

		logger.DebugKV(ctx, "Selected release", "repo", owner+"/"+repo, "tag", release.GetTagName())

		return toRelease(release), nil
	}

	return nil, fmt.Errorf("%w: %s/%s", ErrNoRelease, owner, repo)
}

// BranchHead returns the SHA of a branch head.
func (g *GitHub) BranchHead(ctx context.Context, owner, repo, branch string) (string, error) {
	if err := g.l.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	sha, _, err := g.c.Repositories.GetCommitSHA1(ctx, owner, repo, branch, "")
	if err != nil {
		return "", fmt.Errorf("github head of %s/%s@%s: %w", owner, repo, branch, err)
	}

	return strings.TrimSpace(sha), nil
}

func toRelease(r *github.RepositoryRelease) *Release {
	name := r.GetName()
	if name == "" {
		name = r.GetTagName()
	}

	return &Release{
		Tag:        r.GetTagName(),
		Name:       name,
		Prerelease: r.GetPrerelease(),
	}
}
