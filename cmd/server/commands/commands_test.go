package commands

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"serve", "migrate", "seed", "cleanup-tokens"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestLoadReadsConfigFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	path := filepath.Join(t.TempDir(), "leaveflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database_url: postgres://file\nlog_level: warn\n"), 0o600))

	opts := &rootOptions{configPath: path, logLevel: "debug"}
	require.NoError(t, opts.load())
	assert.Equal(t, "postgres://file", opts.cfg.DatabaseURL)
	assert.Equal(t, "warn", opts.cfg.LogLevel)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	t.Setenv("LEAVEFLOW_CONFIG", "")
	opts := &rootOptions{logLevel: "loud"}
	assert.Error(t, opts.load())
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"migrate"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.ErrorContains(t, cmd.Execute(), "DATABASE_URL is required")
}
