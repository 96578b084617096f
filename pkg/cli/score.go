package cli

import (
	"context"
	"fmt"

	"github.com/mchmarny/permitctl/pkg/review"
	"github.com/mchmarny/permitctl/pkg/score"
	"github.com/urfave/cli/v3"
)

var (
	fullFlag = &cli.BoolFlag{
		Name:  "full",
		Usage: "Print the full review record including the gap report",
	}

	scoreCmd = &cli.Command{
		Name:      "score",
		Usage:     "Score a single application and record the decision",
		ArgsUsage: "<application.json | ->",
		UsageText: `permitctl score app.json                          # score against the configured requirements
   permitctl score -r regs.txt --full app.json       # print the gap report too
   cat app.json | permitctl score --explain -          # read stdin, draft an LLM summary`,
		HideHelpCommand: true,
		Flags:           append([]cli.Flag{fullFlag}, reviewFlags...),
		Action:          cmdScore,
	}

	batchCmd = &cli.Command{
		Name:            "batch",
		Usage:           "Score many applications concurrently",
		ArgsUsage:       "<application.json>...",
		HideHelpCommand: true,
		Flags:           append([]cli.Flag{fullFlag, workersFlag}, reviewFlags...),
		Action:          cmdBatch,
	}
)

type scoreResponse struct {
	Completeness int            `json:"completeness" yaml:"completeness"`
	Compliance   int            `json:"compliance" yaml:"compliance"`
	Risk         score.Risk     `json:"risk" yaml:"risk"`
	Decision     score.Decision `json:"decision" yaml:"decision"`
}

func newScoreResponse(r *review.Result) scoreResponse {
	return scoreResponse{
		Completeness: r.Scorecard.Completeness,
		Compliance:   r.Scorecard.Compliance,
		Risk:         r.Scorecard.Risk,
		Decision:     r.Decision,
	}
}

func cmdScore(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return cli.ShowSubcommandHelp(cmd)
	}
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}

	app, err := readApplication(cmd.Args().First())
	if err != nil {
		return err
	}

	p, err := newPipeline(ctx, cfg, reviewOptions(cmd, cfg))
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := p.reviewer.Review(ctx, app)
	if err != nil {
		return fmt.Errorf("reviewing application: %w", err)
	}

	if cmd.Bool(fullFlag.Name) {
		return cfg.encode(res)
	}
	return cfg.encode(newScoreResponse(res))
}

func cmdBatch(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() == 0 {
		return cli.ShowSubcommandHelp(cmd)
	}
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}

	apps := make([]score.Application, 0, cmd.NArg())
	for _, path := range cmd.Args().Slice() {
		app, err := readApplication(path)
		if err != nil {
			return err
		}
		apps = append(apps, app)
	}

	p, err := newPipeline(ctx, cfg, reviewOptions(cmd, cfg))
	if err != nil {
		return err
	}
	defer p.Close()

	results, err := p.reviewer.ReviewAll(ctx, apps, workers(cmd, cfg))
	if err != nil {
		return fmt.Errorf("reviewing applications: %w", err)
	}

	if cmd.Bool(fullFlag.Name) {
		return cfg.encode(results)
	}
	out := make([]scoreResponse, 0, len(results))
	for _, r := range results {
		out = append(out, newScoreResponse(r))
	}
	return cfg.encode(out)
}
