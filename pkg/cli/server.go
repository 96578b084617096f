package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mchmarny/permitctl/pkg/logging"
	"github.com/mchmarny/permitctl/pkg/requirements"
	"github.com/mchmarny/permitctl/pkg/score"
	"github.com/urfave/cli/v3"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
	serverPortDefault         = 8080
	serverAddressDefault      = "127.0.0.1"
)

var (
	portFlag = &cli.IntFlag{
		Name:    "port",
		Usage:   "Port on which the server will listen",
		Value:   serverPortDefault,
		Sources: cli.EnvVars("PORT"),
	}

	addressFlag = &cli.StringFlag{
		Name:  "address",
		Usage: "Address on which the server will listen",
		Value: serverAddressDefault,
	}

	jsonLogFlag = &cli.BoolFlag{
		Name:  "log-json",
		Usage: "Write structured JSON logs",
	}

	watchFlag = &cli.BoolFlag{
		Name:  "watch",
		Usage: "Reload a file requirements source when it changes",
	}

	serverCmd = &cli.Command{
		Name:            "server",
		Aliases:         []string{"serve"},
		Usage:           "Start the scoring HTTP server",
		HideHelpCommand: true,
		Flags:           append([]cli.Flag{portFlag, addressFlag, watchFlag, jsonLogFlag}, reviewFlags...),
		Action:          cmdStartServer,
	}
)

func cmdStartServer(ctx context.Context, cmd *cli.Command) error {
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool(jsonLogFlag.Name) {
		level := "info"
		if cfg.Debug {
			level = "debug"
		}
		slog.SetDefault(logging.NewServerLogger(os.Stderr, level, appName, version))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := reviewOptions(cmd, cfg)
	opts.Ask = true
	p, err := newPipeline(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer p.Close()

	if p.llm != nil {
		if status, err := p.llm.Health(ctx); err != nil {
			slog.Warn("LLM server unreachable, retrieval, explanations and questions will fail", "error", err)
		} else {
			slog.Info("LLM server ready", "status", status, "endpoint", p.llm.Config().BaseURL)
		}
	}

	m := newMetrics()
	m.requirements.Set(float64(len(p.corpus)))

	if cmd.Bool(watchFlag.Name) {
		if err := watchRequirements(ctx, cmd, cfg, p, m); err != nil {
			return err
		}
	}

	ar, done, err := auditReader(ctx, cfg, p.reviewer.Sink)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer done()

	h := newHandlers(p.reviewer, ar, m)
	h.db = cfg.DB
	if p.llm != nil {
		h.asker = p.llm
	}

	address := fmt.Sprintf("%s:%d", cmd.String(addressFlag.Name), int(cmd.Int(portFlag.Name)))
	s := &http.Server{
		Addr:           address,
		Handler:        makeRouter(h, m),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("server started", "address", "http://"+address)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("starting server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

// watchRequirements swaps the reviewer corpus for a live-reloading one.
func watchRequirements(ctx context.Context, cmd *cli.Command, cfg *appConfig, p *pipeline, m *metrics) error {
	spec := requirementsSpec(cmd, cfg)
	if spec == "" || strings.Contains(spec, "://") || strings.ContainsAny(spec, "*?[{") {
		return fmt.Errorf("--watch requires a local requirements file, got: %q", spec)
	}

	w, err := requirements.NewWatcher(ctx, spec, requirements.WithReloadHook(func(c score.Corpus, err error) {
		if err == nil {
			m.requirements.Set(float64(len(c)))
		}
	}))
	if err != nil {
		return fmt.Errorf("watching requirements: %w", err)
	}
	p.closers = append(p.closers, func() { w.Close() })
	p.reviewer.Corpus = w.Corpus

	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("requirements watcher stopped", "error", err)
		}
	}()
	return nil
}

func makeRouter(h *handlers, m *metrics) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/score", m.instrument("/v1/score", h.score))
	mux.HandleFunc("POST /v1/review", m.instrument("/v1/review", h.review))
	mux.HandleFunc("GET /v1/audit", m.instrument("/v1/audit", h.auditList))
	mux.HandleFunc("GET /v1/requirements", m.instrument("/v1/requirements", h.requirements))
	mux.HandleFunc("POST /v1/query", m.instrument("/v1/query", h.query))
	mux.HandleFunc("GET /v1/sessions/{id}", m.instrument("/v1/sessions", h.session))
	mux.HandleFunc("DELETE /v1/sessions/{id}", m.instrument("/v1/sessions", h.deleteSession))

	mux.HandleFunc("GET /health", health)
	mux.Handle("GET /metrics", m.handler())

	return mux
}
