package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/permitctl/pkg/config"
	"github.com/mchmarny/permitctl/pkg/data"
	"github.com/mchmarny/permitctl/pkg/logging"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName = "permitctl"
	dirMode = 0700

	formatJSON = "json"
	formatYAML = "yaml"
)

type appConfigKey struct{}

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	debugFlag = &cli.BoolFlag{
		Name:    "debug",
		Usage:   "Prints verbose logs (optional, default: false)",
		Sources: cli.EnvVars("PERMITCTL_DEBUG"),
	}

	dbFilePathFlag = &cli.StringFlag{
		Name:    "db",
		Usage:   "Path to the Sqlite database file",
		Sources: cli.EnvVars("PERMITCTL_DB"),
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}

	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to the config file (default: ~/.permitctl/config.yaml)",
		Sources: cli.EnvVars("PERMITCTL_CONFIG"),
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Home       string
	ConfigPath string
	DBPath     string
	Debug      bool
	Format     string
	Conf       *config.Config
	DB         *sql.DB
	Out        io.Writer
}

func getConfig(ctx context.Context) (*appConfig, error) {
	cfg, ok := ctx.Value(appConfigKey{}).(*appConfig)
	if !ok || cfg == nil {
		return nil, errors.New("application not initialized")
	}
	return cfg, nil
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Score food truck permit applications for completeness, compliance and risk",
		Flags: []cli.Flag{
			debugFlag,
			dbFilePathFlag,
			formatFlag,
			configFlag,
		},
		Commands: []*cli.Command{
			scoreCmd,
			batchCmd,
			auditCmd,
			requirementsCmd,
			generateCmd,
			evalCmd,
			askCmd,
			serverCmd,
			authCmd,
			resetCmd,
		},
		Before: initApp,
		After: func(ctx context.Context, _ *cli.Command) error {
			if cfg, err := getConfig(ctx); err == nil && cfg.DB != nil {
				cfg.DB.Close()
			}
			return nil
		},
	}
}

func initApp(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	debug := cmd.Bool(debugFlag.Name)
	if debug {
		logging.SetDefaultCLILogger("debug")
	}

	format := formatJSON
	if f := cmd.String(formatFlag.Name); f == formatYAML || f == "yml" {
		format = formatYAML
	}

	home := getHomeDir()

	var (
		conf *config.Config
		err  error
	)
	confPath := cmd.String(configFlag.Name)
	if confPath != "" {
		conf, err = config.Read(confPath)
	} else {
		confPath = filepath.Join(home, config.FileName)
		conf, err = config.ReadOrCreate(home)
	}
	if err != nil {
		return ctx, fmt.Errorf("loading config: %w", err)
	}

	dbPath := cmd.String(dbFilePathFlag.Name)
	if dbPath == "" {
		dbPath = filepath.Join(home, data.DataFileName)
	}

	if err := data.Init(dbPath); err != nil {
		return ctx, fmt.Errorf("initializing database: %w", err)
	}

	db, err := data.GetDB(dbPath)
	if err != nil {
		return ctx, fmt.Errorf("opening database: %w", err)
	}

	cfg := &appConfig{
		Home:       home,
		ConfigPath: confPath,
		DBPath:     dbPath,
		Debug:      debug,
		Format:     format,
		Conf:       conf,
		DB:         db,
		Out:        os.Stdout,
	}
	return context.WithValue(ctx, appConfigKey{}, cfg), nil
}

func getHomeDir() string {
	dir, created, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}
	if created {
		slog.Debug("created home dir", "path", dir)
	}
	return dir
}

func saveConfig(cfg *appConfig) error {
	if err := config.SaveFile(cfg.ConfigPath, cfg.Conf); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	slog.Debug("config saved", "path", cfg.ConfigPath)
	return nil
}

func (c *appConfig) encode(v any) error {
	return encode(c.Out, c.Format, v)
}

func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
