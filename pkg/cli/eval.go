package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mchmarny/permitctl/pkg/audit"
	"github.com/mchmarny/permitctl/pkg/eval"
	"github.com/urfave/cli/v3"
)

const formatMarkdown = "markdown"

var (
	seedFlag = &cli.IntFlag{
		Name:  "seed",
		Usage: "Random seed for generated applications",
		Value: 42,
	}

	perfectFlag = &cli.IntFlag{
		Name:  "perfect",
		Usage: "Number of complete applications to generate",
		Value: eval.DefaultPerfect,
	}

	incompleteFlag = &cli.IntFlag{
		Name:  "incomplete",
		Usage: "Number of incomplete applications to generate",
		Value: eval.DefaultIncomplete,
	}

	casesFlag = &cli.StringFlag{
		Name:  "cases",
		Usage: "JSON file with evaluation cases (default: generate them)",
	}

	consistencyRunsFlag = &cli.IntFlag{
		Name:  "consistency-runs",
		Usage: "Times the consistency check reviews the same application",
		Value: eval.DefaultConsistencyRuns,
	}

	queriesFlag = &cli.StringFlag{
		Name:  "queries",
		Usage: "JSON file with retrieval queries and expected keywords (default: built-in set)",
	}

	reportFormatFlag = &cli.StringFlag{
		Name:  "report",
		Usage: "Report format [json, yaml, markdown] (default: --format)",
	}

	generateCmd = &cli.Command{
		Name:            "generate",
		Aliases:         []string{"gen"},
		Usage:           "Generate synthetic applications with expected scores",
		HideHelpCommand: true,
		Flags:           []cli.Flag{seedFlag, perfectFlag, incompleteFlag, requirementsFlag, outputFlag},
		Action:          cmdGenerate,
	}

	evalCmd = &cli.Command{
		Name:            "eval",
		Usage:           "Evaluate scoring accuracy, performance, robustness and retrieval against expected results",
		HideHelpCommand: true,
		Flags: append([]cli.Flag{
			casesFlag, seedFlag, perfectFlag, incompleteFlag, workersFlag, consistencyRunsFlag, queriesFlag,
			reportFormatFlag, outputFlag,
		}, reviewFlags...),
		Action: cmdEval,
	}
)

func generateCases(ctx context.Context, cmd *cli.Command, cfg *appConfig) ([]eval.Case, error) {
	corpus, err := loadCorpus(ctx, cfg, requirementsSpec(cmd, cfg))
	if err != nil {
		return nil, err
	}
	g := eval.Generator{Fields: cfg.Conf.RequiredFields, Corpus: corpus}
	counts := eval.Counts{
		Perfect:    int(cmd.Int(perfectFlag.Name)),
		Incomplete: int(cmd.Int(incompleteFlag.Name)),
	}
	cases, err := g.Generate(uint64(cmd.Int(seedFlag.Name)), counts)
	if err != nil {
		return nil, fmt.Errorf("generating cases: %w", err)
	}
	return cases, nil
}

// output returns the file named by --output or stdout.
func output(cmd *cli.Command, cfg *appConfig) (io.Writer, func(), error) {
	path := cmd.String(outputFlag.Name)
	if path == "" {
		return cfg.Out, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

func cmdGenerate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}
	cases, err := generateCases(ctx, cmd, cfg)
	if err != nil {
		return err
	}

	w, done, err := output(cmd, cfg)
	if err != nil {
		return err
	}
	defer done()
	slog.Debug("generated cases", "count", len(cases))
	return encode(w, cfg.Format, cases)
}

// readJSONList decodes a JSON array file.
func readJSONList[T any](path string) ([]T, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var list []T
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return list, nil
}

func cmdEval(ctx context.Context, cmd *cli.Command) error {
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}

	var cases []eval.Case
	if p := cmd.String(casesFlag.Name); p != "" {
		cases, err = readJSONList[eval.Case](p)
	} else {
		cases, err = generateCases(ctx, cmd, cfg)
	}
	if err != nil {
		return err
	}

	p, err := newPipeline(ctx, cfg, reviewOptions(cmd, cfg))
	if err != nil {
		return err
	}
	defer p.Close()

	// evaluation runs must not show up in the audit log
	p.reviewer.Sink = audit.Discard{}
	p.reviewer.DB = nil

	report, err := eval.Run(ctx, p.reviewer, cases, cfg.Conf.Thresholds, workers(cmd, cfg))
	if err != nil {
		return fmt.Errorf("running evaluation: %w", err)
	}

	if report.Robustness, err = eval.CheckRobustness(ctx, p.reviewer, int(cmd.Int(consistencyRunsFlag.Name))); err != nil {
		return fmt.Errorf("checking robustness: %w", err)
	}

	if p.reviewer.Retriever != nil {
		queries := eval.DefaultQueries()
		if path := cmd.String(queriesFlag.Name); path != "" {
			if queries, err = readJSONList[eval.Query](path); err != nil {
				return err
			}
		}
		if report.Retrieval, err = eval.EvaluateRetrieval(ctx, p.reviewer.Retriever, queries); err != nil {
			return fmt.Errorf("evaluating retrieval: %w", err)
		}
	} else {
		slog.Debug("no vector DB configured, skipping retrieval evaluation")
	}
	report.Evaluate()

	w, done, err := output(cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	format := cmd.String(reportFormatFlag.Name)
	if format == "" {
		format = cfg.Format
	}
	if format == formatMarkdown || format == "md" {
		if _, err := io.WriteString(w, report.Markdown()); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	} else if err := encode(w, format, report); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if !report.Passed() {
		return cli.Exit(fmt.Sprintf("evaluation failed: %d threshold(s) not met", len(report.Failures)), 2)
	}
	return nil
}
