// Package requirements loads the regulatory requirement corpus scored
// against permit applications.
package requirements

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mchmarny/permitctl/pkg/net"
	"github.com/mchmarny/permitctl/pkg/score"
	"gopkg.in/yaml.v3"
)

const (
	commentPrefix = "#"
	maxDownload   = 4 << 20
)

// Source supplies a requirement corpus.
type Source interface {
	Load(ctx context.Context) (score.Corpus, error)
}

// Static is a fixed in-memory corpus.
type Static score.Corpus

func (s Static) Load(context.Context) (score.Corpus, error) {
	return append(score.Corpus(nil), s...), nil
}

// Document is the YAML corpus layout.
type Document struct {
	Name         string   `yaml:"name,omitempty"`
	Source       string   `yaml:"source,omitempty"`
	Requirements []string `yaml:"requirements"`
}

// ParseLines reads one requirement per line, skipping blanks and # comments.
func ParseLines(r io.Reader) (score.Corpus, error) {
	corpus := make(score.Corpus, 0)
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}
		corpus = append(corpus, line)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("reading requirement lines: %w", err)
	}
	return corpus, nil
}

// ParseYAML decodes a Document and returns its non-blank requirements.
func ParseYAML(r io.Reader) (score.Corpus, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decoding requirement document: %w", err)
	}
	corpus := make(score.Corpus, 0, len(doc.Requirements))
	for _, req := range doc.Requirements {
		if req = strings.TrimSpace(req); req != "" {
			corpus = append(corpus, req)
		}
	}
	return corpus, nil
}

// Parse picks the parser by file name extension.
func Parse(name string, r io.Reader) (score.Corpus, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return ParseYAML(r)
	default:
		return ParseLines(r)
	}
}

// FileSource reads a text or YAML corpus file.
type FileSource struct {
	Path string
}

func (f FileSource) Load(ctx context.Context) (score.Corpus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Path == "" {
		return nil, fmt.Errorf("requirements file path is required")
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("opening requirements file %s: %w", f.Path, err)
	}
	defer file.Close()
	return Parse(f.Path, file)
}

// GlobSource concatenates every file matching a doublestar pattern, in
// lexical path order.
type GlobSource struct {
	Pattern string
}

func (g GlobSource) Load(ctx context.Context) (score.Corpus, error) {
	matches, err := doublestar.FilepathGlob(g.Pattern)
	if err != nil {
		return nil, fmt.Errorf("matching %s: %w", g.Pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no requirement files match %s", g.Pattern)
	}
	sort.Strings(matches)

	corpus := make(score.Corpus, 0)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", m, err)
		}
		if info.IsDir() {
			continue
		}
		c, err := FileSource{Path: m}.Load(ctx)
		if err != nil {
			return nil, err
		}
		corpus = append(corpus, c...)
	}
	return corpus, nil
}

// URLSource downloads a plain text or YAML corpus.
type URLSource struct {
	URL    string
	Client *http.Client
}

func (u URLSource) Load(ctx context.Context) (score.Corpus, error) {
	txt, err := net.GetText(ctx, u.Client, u.URL, maxDownload)
	if err != nil {
		return nil, fmt.Errorf("downloading requirements from %s: %w", u.URL, err)
	}
	return Parse(u.URL, strings.NewReader(txt))
}

// New returns the source matching spec: an http(s) URL, a github:// reference,
// a glob pattern or a file path.
func New(spec string, client *http.Client) (Source, error) {
	switch {
	case spec == "":
		return nil, fmt.Errorf("requirements source is required")
	case strings.HasPrefix(spec, "http://"), strings.HasPrefix(spec, "https://"):
		return URLSource{URL: spec, Client: client}, nil
	case strings.HasPrefix(spec, githubScheme):
		g, err := ParseGitHubRef(spec, client)
		if err != nil {
			return nil, err
		}
		return g, nil
	case strings.ContainsAny(spec, "*?[{"):
		return GlobSource{Pattern: spec}, nil
	default:
		return FileSource{Path: spec}, nil
	}
}
