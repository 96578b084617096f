package cli

import (
	"context"
	"fmt"

	"github.com/mchmarny/permitctl/pkg/audit"
	"github.com/mchmarny/permitctl/pkg/config"
	"github.com/mchmarny/permitctl/pkg/data"
	"github.com/urfave/cli/v3"
)

const auditListLimitDefault = 100

var (
	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of entries to return",
		Value: auditListLimitDefault,
	}

	auditCmd = &cli.Command{
		Name:            "audit",
		Usage:           "Inspect the audit log of scoring decisions",
		HideHelpCommand: true,
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List the most recent audit entries, oldest first",
				Flags:  []cli.Flag{limitFlag},
				Action: cmdAuditList,
			},
			{
				Name:   "state",
				Usage:  "Show counts of audit entries and reviews by decision",
				Action: cmdAuditState,
			},
			{
				Name:      "show",
				Usage:     "Show a recorded review by ID",
				ArgsUsage: "<id>",
				Action:    cmdAuditShow,
			},
		},
	}
)

// auditReader returns sink when it can be read back, otherwise a reader for
// the configured backend. Publish-only backends fall back to the local database.
func auditReader(ctx context.Context, cfg *appConfig, sink audit.Sink) (audit.Reader, func(), error) {
	if r, ok := sink.(audit.Reader); ok {
		return r, func() {}, nil
	}
	if cfg.Conf.Audit.Backend == config.AuditPostgres {
		s, err := audit.OpenPostgres(ctx, cfg.Conf.Audit.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
	return audit.NewSQLiteSink(cfg.DB), func() {}, nil
}

func cmdAuditList(ctx context.Context, cmd *cli.Command) error {
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}

	r, done, err := auditReader(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer done()

	list, err := r.List(ctx, int(cmd.Int(limitFlag.Name)))
	if err != nil {
		return fmt.Errorf("listing audit entries: %w", err)
	}
	return cfg.encode(list)
}

func cmdAuditState(ctx context.Context, _ *cli.Command) error {
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}
	state, err := data.GetDataState(cfg.DB)
	if err != nil {
		return fmt.Errorf("getting data state: %w", err)
	}
	return cfg.encode(state)
}

func cmdAuditShow(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return cli.ShowSubcommandHelp(cmd)
	}
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}
	r, err := data.GetReview(cfg.DB, cmd.Args().First())
	if err != nil {
		return fmt.Errorf("getting review: %w", err)
	}
	if r == nil {
		return fmt.Errorf("review not found: %s", cmd.Args().First())
	}
	return cfg.encode(r)
}
