package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults when no file exists", func(t *testing.T) {
		cfg, err := Load("", t.TempDir())
		require.NoError(t, err)
		require.Equal(t, StoreBadger, cfg.Store.Backend)
		require.Equal(t, 100, cfg.TraversalLimit)
		require.Equal(t, "Verified", cfg.Integration.Label)
		require.Contains(t, cfg.Footers.Strip, "Reviewed-on:")
		require.Equal(t, ":8080", cfg.Server.Addr)
	})

	t.Run("reads the file in the git directory", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, `
actor:
  name: CI Bot
  email: ci@example.com
store:
  backend: memory
traversal_limit: 250
review:
  - label: Code-Review
    min: 2
footers:
  reviewed_by: true
`)
		cfg, err := Load("", dir)
		require.NoError(t, err)
		require.Equal(t, "CI Bot", cfg.Actor.Name)
		require.Equal(t, StoreMemory, cfg.Store.Backend)
		require.Equal(t, 250, cfg.TraversalLimit)
		require.Equal(t, []Requirement{{Label: "Code-Review", Min: 2}}, cfg.Review)
		require.True(t, cfg.Footers.ReviewedBy)
		// untouched sections keep their defaults
		require.Equal(t, "Code-Review", cfg.Footers.ReviewLabel)
	})

	t.Run("an explicit path must exist", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), t.TempDir())
		require.Error(t, err)
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "store:\n  backend: memory\n")
		t.Setenv("STAGELINE_STORE", "redis")
		t.Setenv("STAGELINE_REDIS_ADDR", "localhost:6379")
		t.Setenv("STAGELINE_TRAVERSAL_LIMIT", "7")

		cfg, err := Load("", dir)
		require.NoError(t, err)
		require.Equal(t, StoreRedis, cfg.Store.Backend)
		require.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
		require.Equal(t, 7, cfg.TraversalLimit)
	})

	t.Run("empty variables are ignored", func(t *testing.T) {
		t.Setenv("STAGELINE_STORE", "")
		t.Setenv("STAGELINE_TRAVERSAL_LIMIT", " ")
		cfg, err := Load("", t.TempDir())
		require.NoError(t, err)
		require.Equal(t, StoreBadger, cfg.Store.Backend)
		require.Equal(t, 100, cfg.TraversalLimit)
	})

	t.Run("rejects a malformed integer override", func(t *testing.T) {
		t.Setenv("STAGELINE_TRAVERSAL_LIMIT", "lots")
		_, err := Load("", t.TempDir())
		require.ErrorContains(t, err, "STAGELINE_TRAVERSAL_LIMIT")
	})

	t.Run("rejects a malformed file", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "store: [")
		_, err := Load("", dir)
		require.ErrorContains(t, err, "failed to parse")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, "Backend"},
		{"redis without address", func(c *Config) { c.Store.Backend = StoreRedis }, "store.redis.addr"},
		{"zero traversal limit", func(c *Config) { c.TraversalLimit = 0 }, "TraversalLimit"},
		{"requirement without label", func(c *Config) { c.Review = []Requirement{{Min: 1}} }, "Label"},
		{"channel without redis", func(c *Config) { c.Events.RedisChannel = "stageline" }, "events.redis_channel"},
		{"s3 without bucket", func(c *Config) { c.Events.Manifest.Backend = ManifestS3 }, "bucket"},
		{"bad actor email", func(c *Config) { c.Actor.Email = "nope" }, "Email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	require.NoError(t, Default().Validate())
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Store.Backend = StoreMemory
	cfg.Review = []Requirement{{Label: "Code-Review", Min: 2}}

	require.NoError(t, Save(Path(dir), cfg))
	loaded, err := Load("", dir)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}
