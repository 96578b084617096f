package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mchmarny/permitctl/pkg/data"
	"github.com/urfave/cli/v3"
)

var (
	yesFlag = &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Do not ask for confirmation",
	}

	resetCmd = &cli.Command{
		Name:            "reset",
		Usage:           "Delete the local audit log and reviews and start fresh",
		HideHelpCommand: true,
		Flags:           []cli.Flag{yesFlag},
		Action:          cmdReset,
	}
)

func cmdReset(ctx context.Context, cmd *cli.Command) error {
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}

	if !cmd.Bool(yesFlag.Name) {
		fmt.Printf("This will permanently delete all data in %s\n", cfg.DBPath)
		fmt.Print("Are you sure? [y/N]: ")

		answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// close the DB before deleting the file
	if cfg.DB != nil {
		cfg.DB.Close()
		cfg.DB = nil
	}

	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(cfg.DBPath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleting database: %w", err)
		}
	}
	slog.Info("database deleted", "path", cfg.DBPath)

	if err := data.Init(cfg.DBPath); err != nil {
		return fmt.Errorf("re-initializing database: %w", err)
	}

	slog.Info("database re-initialized", "path", cfg.DBPath)
	fmt.Println("Reset complete.")
	return nil
}
