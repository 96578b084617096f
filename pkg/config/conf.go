// Package config reads and writes the permitctl YAML configuration file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mchmarny/permitctl/pkg/eval"
	"github.com/mchmarny/permitctl/pkg/llm"
	"github.com/mchmarny/permitctl/pkg/score"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	FileName = "config.yaml"

	dirMode  = 0700
	fileMode = 0600

	AuditSQLite   = "sqlite"
	AuditPostgres = "postgres"
	AuditNATS     = "nats"
	AuditMemory   = "memory"

	DefaultWorkers = 4
)

var auditBackends = []string{AuditSQLite, AuditPostgres, AuditNATS, AuditMemory}

// Audit selects where scoring decisions are recorded.
type Audit struct {
	Backend     string `yaml:"backend"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
	NATSURL     string `yaml:"nats_url,omitempty"`
	NATSSubject string `yaml:"nats_subject,omitempty"`
}

// Config represents app config object.
type Config struct {
	RequiredFields []string        `yaml:"required_fields"`
	Requirements   string          `yaml:"requirements,omitempty"`
	Workers        int             `yaml:"workers"`
	LLM            llm.Config      `yaml:"llm"`
	Audit          Audit           `yaml:"audit"`
	Thresholds     eval.Thresholds `yaml:"thresholds"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		RequiredFields: slices.Clone(score.DefaultRequiredFields),
		Workers:        DefaultWorkers,
		LLM: llm.Config{
			BaseURL: llm.DefaultBaseURL,
			Model:   llm.DefaultModel,
			Timeout: llm.DefaultTimeout,
		},
		Audit:      Audit{Backend: AuditSQLite},
		Thresholds: eval.DefaultThresholds(),
	}
}

// Validate checks the config is usable.
func (c *Config) Validate() error {
	if len(c.RequiredFields) == 0 {
		return errors.Wrap(score.ErrInvalidInput, "required_fields must not be empty")
	}
	for _, f := range c.RequiredFields {
		if strings.TrimSpace(f) == "" {
			return errors.Wrap(score.ErrInvalidInput, "required_fields must not contain blank names")
		}
	}
	if !slices.Contains(auditBackends, c.Audit.Backend) {
		return fmt.Errorf("invalid audit backend %q, expected one of: %s",
			c.Audit.Backend, strings.Join(auditBackends, ", "))
	}
	if c.Audit.Backend == AuditPostgres && c.Audit.PostgresDSN == "" {
		return errors.New("audit.postgres_dsn is required for the postgres backend")
	}
	if c.Audit.Backend == AuditNATS && c.Audit.NATSURL == "" {
		return errors.New("audit.nats_url is required for the nats backend")
	}
	return nil
}

// Save writes c to the config file in dirPath.
func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	return SaveFile(filepath.Join(dirPath, FileName), c)
}

// SaveFile writes c to path.
func SaveFile(path string, c *Config) error {
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return errors.Wrapf(err, "failed to write config file: %s", path)
	}
	return nil
}

// Read loads a config file, filling unset values from Default.
func Read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file: %s", path)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "error unmarshalling config file: %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file: %s", path)
	}
	return c, nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return nil, errors.Wrapf(err, "failed to create dir: %s", dirPath)
		}
	}

	path := filepath.Join(dirPath, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, Default()); err != nil {
			return nil, errors.Wrap(err, "failed to create default config")
		}
	}

	return Read(path)
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, errors.Wrap(err, "failed to get user home dir")
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, errors.Wrapf(err, "failed to create dir: %s", dir)
		}
		created = true
	}
	return dir, created, nil
}
