package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/dashlego/core/cache"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DASHLEGO_CONFIG", "")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "memory", c.Cache.Backend)
	require.Equal(t, cache.DefaultTTL, c.Cache.TTL)
	require.Equal(t, 4, c.Pipeline.Workers)
	require.Equal(t, 30*time.Second, c.UI.Refresh)

	d, err := c.Descriptor()
	require.NoError(t, err)
	require.Equal(t, cache.KindMemory, d.Kind)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[cache]
backend = "redis"
ttl = "90s"

[cache.redis]
host = "cache.internal"
port = 6380
db = 2

[ui]
title = "Sales"
`), 0o600))
	t.Setenv("DASHLEGO_CONFIG", path)
	t.Setenv("DASHLEGO_PIPELINE_WORKERS", "8")
	t.Setenv("DASHLEGO_SIGNING_KEY", "s3cret")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "Sales", c.UI.Title)
	require.Equal(t, 8, c.Pipeline.Workers)

	d, err := c.Descriptor()
	require.NoError(t, err)
	require.Equal(t, cache.KindRedis, d.Kind)
	require.Equal(t, "cache.internal", d.Redis.Host)
	require.Equal(t, 6380, d.Redis.Port)
	require.Equal(t, 2, d.Redis.DB)
	require.Equal(t, 90*time.Second, d.Redis.TTL)
	require.Equal(t, []byte("s3cret"), d.Redis.SigningKey)
	require.True(t, strings.HasPrefix(d.Key(), "redis:cache.internal:6380/2#"), d.Key())
	require.NotContains(t, d.Key(), "s3cret")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestDescriptorRejectsUnknownBackend(t *testing.T) {
	c := Config{Cache: CacheConfig{Backend: "memcached"}}
	_, err := c.Descriptor()
	require.Error(t, err)
}
