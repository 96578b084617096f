package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
)

const corpusFileMode = 0600

var (
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "File to write the fetched requirements to",
	}

	saveSourceFlag = &cli.BoolFlag{
		Name:  "save",
		Usage: "Make the written file the configured requirements source",
	}

	requirementsCmd = &cli.Command{
		Name:            "requirements",
		Aliases:         []string{"req"},
		Usage:           "Inspect or fetch the requirements corpus",
		HideHelpCommand: true,
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the requirements currently in effect",
				Flags:  []cli.Flag{requirementsFlag},
				Action: cmdRequirementsShow,
			},
			{
				Name:  "fetch",
				Usage: "Download requirements from a remote source into a local file",
				UsageText: `permitctl requirements fetch -r github://denver/permits/food-truck.yaml -o regs.yaml --save
   permitctl requirements fetch -r https://example.com/regs.txt -o regs.txt`,
				Flags:  []cli.Flag{requirementsFlag, outputFlag, saveSourceFlag},
				Action: cmdRequirementsFetch,
			},
		},
	}
)

func cmdRequirementsShow(ctx context.Context, cmd *cli.Command) error {
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}
	corpus, err := loadCorpus(ctx, cfg, requirementsSpec(cmd, cfg))
	if err != nil {
		return err
	}
	return cfg.encode(corpus)
}

func cmdRequirementsFetch(ctx context.Context, cmd *cli.Command) error {
	out := cmd.String(outputFlag.Name)
	if cmd.String(requirementsFlag.Name) == "" || out == "" {
		return cli.ShowSubcommandHelp(cmd)
	}
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}

	corpus, err := loadCorpus(ctx, cfg, requirementsSpec(cmd, cfg))
	if err != nil {
		return err
	}

	var b strings.Builder
	for _, line := range corpus {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(out, []byte(b.String()), corpusFileMode); err != nil {
		return fmt.Errorf("writing requirements to %s: %w", out, err)
	}
	slog.Info("requirements fetched", "count", len(corpus), "file", out)

	if cmd.Bool(saveSourceFlag.Name) {
		cfg.Conf.Requirements = out
		if err := saveConfig(cfg); err != nil {
			return err
		}
	}
	return nil
}
