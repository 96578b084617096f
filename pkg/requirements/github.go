package requirements

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v83/github"
	"github.com/mchmarny/permitctl/pkg/score"
)

const (
	githubScheme       = "github://"
	rateLimitThreshold = 10
)

// sleep waits for d or until ctx is done.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GitHubSource reads a corpus file stored in a GitHub repository.
type GitHubSource struct {
	Owner  string
	Repo   string
	Path   string
	Ref    string
	Client *github.Client

	mu   sync.Mutex
	last *github.Response
}

// NewGitHubSource builds a source using httpClient, which should carry the
// token for private repositories.
func NewGitHubSource(owner, repo, path, ref string, httpClient *http.Client) *GitHubSource {
	return &GitHubSource{
		Owner:  owner,
		Repo:   repo,
		Path:   path,
		Ref:    ref,
		Client: github.NewClient(httpClient),
	}
}

// ParseGitHubRef parses github://owner/repo/path/to/file[@ref].
func ParseGitHubRef(ref string, httpClient *http.Client) (*GitHubSource, error) {
	s := strings.TrimPrefix(ref, githubScheme)
	var gitRef string
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s, gitRef = s[:i], s[i+1:]
	}
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, fmt.Errorf("invalid GitHub reference %q, expected github://owner/repo/path[@ref]", ref)
	}
	return NewGitHubSource(parts[0], parts[1], parts[2], gitRef, httpClient), nil
}

func (g *GitHubSource) String() string {
	s := githubScheme + g.Owner + "/" + g.Repo + "/" + g.Path
	if g.Ref != "" {
		s += "@" + g.Ref
	}
	return s
}

// Load fetches the file. When the previous fetch left the rate limit nearly
// spent, Load waits for the window to reset before calling again.
func (g *GitHubSource) Load(ctx context.Context) (score.Corpus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := checkRateLimit(ctx, g.last); err != nil {
		return nil, err
	}

	client := g.Client
	if client == nil {
		client = github.NewClient(nil)
	}

	var opts *github.RepositoryContentGetOptions
	if g.Ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: g.Ref}
	}

	file, _, resp, err := client.Repositories.GetContents(ctx, g.Owner, g.Repo, g.Path, opts)
	g.last = resp
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", g, err)
	}
	slog.Debug("fetched requirements", "source", g.String(), "rate", rateInfo(resp))

	if file == nil {
		return nil, fmt.Errorf("%s is a directory, expected a file", g)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", g, err)
	}

	return Parse(g.Path, strings.NewReader(content))
}

func rateInfo(resp *github.Response) string {
	if resp == nil {
		return ""
	}
	r := resp.Rate
	return fmt.Sprintf("rate:%d/%d until:%s", r.Remaining, r.Limit, r.Reset.Format("15:04"))
}

// checkRateLimit waits for the rate limit window to reset when few calls remain.
func checkRateLimit(ctx context.Context, resp *github.Response) error {
	if resp == nil {
		return nil
	}

	if resp.Rate.Remaining > rateLimitThreshold {
		return nil
	}

	resetAt := resp.Rate.Reset.Time
	wait := time.Until(resetAt)
	if wait <= 0 {
		return nil
	}

	jitter := time.Duration(rand.IntN(2000)) * time.Millisecond
	total := wait + jitter

	slog.Info("rate limit approaching, waiting",
		"remaining", resp.Rate.Remaining,
		"reset_at", resetAt.Format(time.RFC3339),
		"wait", total.String(),
	)

	return sleep(ctx, total)
}
