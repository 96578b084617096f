package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mchmarny/permitctl/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	dir := t.TempDir()

	c1, err := ReadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, score.DefaultRequiredFields, c1.RequiredFields)
	assert.Equal(t, AuditSQLite, c1.Audit.Backend)
	assert.FileExists(t, filepath.Join(dir, FileName))

	c1.Workers = 8
	c1.Requirements = "regs/*.txt"
	c1.RequiredFields = []string{"Business License"}

	require.NoError(t, Save(dir, c1))

	c2, err := ReadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, 8, c2.Workers)
	assert.Equal(t, "regs/*.txt", c2.Requirements)
	assert.Equal(t, []string{"Business License"}, c2.RequiredFields)
	assert.Equal(t, c1.Thresholds, c2.Thresholds)
}

func TestReadOrCreate_NestedDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	_, err := ReadOrCreate(dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)
}

func TestReadOrCreate_EmptyDir(t *testing.T) {
	_, err := ReadOrCreate("")
	assert.Error(t, err)
}

func TestRead_PartialFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\n"), 0600))

	c, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Workers)
	assert.Equal(t, score.DefaultRequiredFields, c.RequiredFields)
	assert.InDelta(t, 0.95, c.Thresholds.MinCompletenessAccuracy, 0.0001)
}

func TestRead_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("workers: ["), 0600))
	_, err := Read(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		err    bool
	}{
		{"default", func(*Config) {}, false},
		{"no fields", func(c *Config) { c.RequiredFields = nil }, true},
		{"blank field", func(c *Config) { c.RequiredFields = []string{" "} }, true},
		{"bad backend", func(c *Config) { c.Audit.Backend = "kafka" }, true},
		{"postgres without dsn", func(c *Config) { c.Audit.Backend = AuditPostgres }, true},
		{"postgres", func(c *Config) {
			c.Audit.Backend = AuditPostgres
			c.Audit.PostgresDSN = "postgres://localhost/permits"
		}, false},
		{"nats without url", func(c *Config) { c.Audit.Backend = AuditNATS }, true},
		{"memory", func(c *Config) { c.Audit.Backend = AuditMemory }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.err {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	c := Default()
	c.RequiredFields = nil
	assert.ErrorIs(t, c.Validate(), score.ErrInvalidInput)
}

func TestGetOrCreateHomeDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir, created, err := GetOrCreateHomeDir("permitctl")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ".permitctl", filepath.Base(dir))

	_, created, err = GetOrCreateHomeDir(".permitctl")
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = GetOrCreateHomeDir("")
	assert.Error(t, err)
}
