package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/mchmarny/permitctl/pkg/audit"
	"github.com/mchmarny/permitctl/pkg/auth"
	"github.com/mchmarny/permitctl/pkg/config"
	"github.com/mchmarny/permitctl/pkg/llm"
	"github.com/mchmarny/permitctl/pkg/net"
	"github.com/mchmarny/permitctl/pkg/requirements"
	"github.com/mchmarny/permitctl/pkg/review"
	"github.com/mchmarny/permitctl/pkg/score"
	"github.com/urfave/cli/v3"
)

var (
	requirementsFlag = &cli.StringFlag{
		Name:    "requirements",
		Aliases: []string{"r"},
		Usage:   "Requirements source: file, glob, http(s) URL or github://owner/repo/path[@ref]",
		Sources: cli.EnvVars("PERMITCTL_REQUIREMENTS"),
	}

	explainFlag = &cli.BoolFlag{
		Name:  "explain",
		Usage: "Draft a reviewer summary with the LLM (optional, default: false)",
	}

	llmEndpointFlag = &cli.StringFlag{
		Name:    "llm-endpoint",
		Usage:   "LlamaStack server URL",
		Sources: cli.EnvVars("LLAMA_STACK_ENDPOINT"),
	}

	llmAPIKeyFlag = &cli.StringFlag{
		Name:    "llm-api-key",
		Usage:   "LlamaStack API key (default: from OS keychain)",
		Sources: cli.EnvVars("LLAMA_STACK_API_KEY"),
	}

	vectorDBFlag = &cli.StringFlag{
		Name:    "vector-db",
		Usage:   "Vector DB ID used to retrieve relevant regulations",
		Sources: cli.EnvVars("LLAMA_STACK_VECTOR_DB"),
	}

	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Number of concurrent reviews (default: from config)",
	}

	reviewFlags = []cli.Flag{
		requirementsFlag,
		explainFlag,
		llmEndpointFlag,
		llmAPIKeyFlag,
		vectorDBFlag,
	}
)

func credentials(cfg *appConfig) auth.Store {
	return auth.Store{Service: appName, Dir: cfg.Home}
}

// requirementsClient returns an HTTP client for remote corpus sources,
// authenticated for GitHub when a token is stored.
func requirementsClient(ctx context.Context, cfg *appConfig, spec string) (*http.Client, error) {
	if strings.HasPrefix(spec, "github://") {
		if tok, err := credentials(cfg).Get(auth.KeyGitHubToken); err == nil {
			return net.GetOAuthClient(ctx, tok, 0), nil
		}
		slog.Debug("no GitHub token stored, using anonymous access")
	}
	return net.GetHTTPClient()
}

func requirementsSpec(cmd *cli.Command, cfg *appConfig) string {
	if s := cmd.String(requirementsFlag.Name); s != "" {
		return s
	}
	return cfg.Conf.Requirements
}

// loadCorpus returns an empty corpus when no source is configured.
func loadCorpus(ctx context.Context, cfg *appConfig, spec string) (score.Corpus, error) {
	if spec == "" {
		slog.Debug("no requirements source configured, compliance checks are vacuous")
		return score.Corpus{}, nil
	}

	hc, err := requirementsClient(ctx, cfg, spec)
	if err != nil {
		return nil, err
	}
	src, err := requirements.New(spec, hc)
	if err != nil {
		return nil, fmt.Errorf("creating requirements source: %w", err)
	}
	corpus, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading requirements: %w", err)
	}
	slog.Debug("requirements loaded", "source", spec, "count", len(corpus))
	return corpus, nil
}

func llmConfig(cmd *cli.Command, cfg *appConfig) llm.Config {
	lc := cfg.Conf.LLM
	if v := cmd.String(llmEndpointFlag.Name); v != "" {
		lc.BaseURL = v
	}
	if v := cmd.String(vectorDBFlag.Name); v != "" {
		lc.VectorDBID = v
	}
	lc.APIKey = cmd.String(llmAPIKeyFlag.Name)
	if lc.APIKey == "" {
		if k, err := credentials(cfg).Get(auth.KeyLLMAPIKey); err == nil {
			lc.APIKey = k
		}
	}
	return lc
}

// openSink returns the configured audit sink and a function releasing it.
func openSink(ctx context.Context, cfg *appConfig) (audit.Sink, func(), error) {
	a := cfg.Conf.Audit
	switch a.Backend {
	case config.AuditSQLite, "":
		return audit.NewSQLiteSink(cfg.DB), func() {}, nil
	case config.AuditMemory:
		return audit.NewMemorySink(), func() {}, nil
	case config.AuditPostgres:
		s, err := audit.OpenPostgres(ctx, a.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case config.AuditNATS:
		s, nc, err := audit.ConnectNATS(a.NATSURL, a.NATSSubject)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { nc.Drain() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported audit backend: %s", a.Backend)
	}
}

// pipelineOptions selects the optional pipeline steps. Ask creates the LLM
// client even when no review step needs it.
type pipelineOptions struct {
	Requirements string
	Explain      bool
	Ask          bool
	LLM          llm.Config
}

func reviewOptions(cmd *cli.Command, cfg *appConfig) pipelineOptions {
	return pipelineOptions{
		Requirements: requirementsSpec(cmd, cfg),
		Explain:      cmd.Bool(explainFlag.Name),
		LLM:          llmConfig(cmd, cfg),
	}
}

type pipeline struct {
	reviewer *review.Reviewer
	llm      *llm.Client
	corpus   score.Corpus
	closers  []func()
}

func (r *pipeline) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// newPipeline builds a reviewer from the config and command options.
func newPipeline(ctx context.Context, cfg *appConfig, opts pipelineOptions) (*pipeline, error) {
	engine, err := score.NewEngine(cfg.Conf.RequiredFields)
	if err != nil {
		return nil, fmt.Errorf("creating scoring engine: %w", err)
	}

	corpus, err := loadCorpus(ctx, cfg, opts.Requirements)
	if err != nil {
		return nil, err
	}

	sink, closeSink, err := openSink(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening audit sink: %w", err)
	}

	rt := &pipeline{
		corpus:  corpus,
		closers: []func(){closeSink},
		reviewer: &review.Reviewer{
			Engine: engine,
			Corpus: func() score.Corpus { return corpus },
			Sink:   sink,
			DB:     cfg.DB,
		},
	}

	lc := opts.LLM
	if lc.VectorDBID != "" || opts.Explain || opts.Ask {
		client, err := llm.NewClient(ctx, lc)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("creating LLM client: %w", err)
		}
		rt.llm = client
		if lc.VectorDBID != "" {
			rt.reviewer.Retriever = client
		}
		if opts.Explain {
			rt.reviewer.Explainer = client
		}
	}

	return rt, nil
}

func workers(cmd *cli.Command, cfg *appConfig) int {
	if w := int(cmd.Int(workersFlag.Name)); w > 0 {
		return w
	}
	return cfg.Conf.Workers
}

// readApplication reads a JSON object of field names to status values from
// path, or from stdin when path is "-".
func readApplication(path string) (score.Application, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading application %s: %w", path, err)
	}

	app, err := decodeApplication(b)
	if err != nil {
		return nil, fmt.Errorf("application %s: %w", path, err)
	}
	return app, nil
}

var errNotObject = errors.New("application must be a JSON object of string values")
