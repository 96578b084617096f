package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mchmarny/permitctl/pkg/config"
	"github.com/mchmarny/permitctl/pkg/data"
	"github.com/mchmarny/permitctl/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logging.SetDefaultCLILogger("error")
	os.Exit(m.Run())
}

func newTestConfig(t *testing.T) (*appConfig, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, data.DataFileName)
	require.NoError(t, data.Init(dbPath))
	db, err := data.GetDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	conf := config.Default()
	conf.Audit.Backend = config.AuditSQLite

	var out bytes.Buffer
	return &appConfig{
		Home:       dir,
		ConfigPath: filepath.Join(dir, config.FileName),
		DBPath:     dbPath,
		Format:     formatJSON,
		Conf:       conf,
		DB:         db,
		Out:        &out,
	}, &out
}

func TestGetConfig(t *testing.T) {
	_, err := getConfig(context.Background())
	assert.Error(t, err)

	cfg, _ := newTestConfig(t)
	ctx := context.WithValue(context.Background(), appConfigKey{}, cfg)
	got, err := getConfig(ctx)
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}

func TestEncode(t *testing.T) {
	v := map[string]int{"completeness": 80}

	var buf bytes.Buffer
	require.NoError(t, encode(&buf, formatJSON, v))
	assert.JSONEq(t, `{"completeness":80}`, buf.String())

	buf.Reset()
	require.NoError(t, encode(&buf, formatYAML, v))
	assert.Equal(t, "completeness: 80\n", buf.String())
}

func TestSaveConfig(t *testing.T) {
	cfg, _ := newTestConfig(t)
	cfg.Conf.Requirements = "regs.txt"
	require.NoError(t, saveConfig(cfg))

	got, err := config.Read(cfg.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "regs.txt", got.Requirements)
}

func TestNewApp(t *testing.T) {
	app := newApp()
	assert.Equal(t, appName, app.Name)

	names := make([]string, 0, len(app.Commands))
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{
		"score", "batch", "audit", "requirements", "generate", "eval", "ask", "server", "auth", "reset",
	}, names)
}
