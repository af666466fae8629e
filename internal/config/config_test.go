package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
siteTitle: meu blog
cms:
  endpoint: https://spacetraveling.cdn.prismic.io/api/v2
  pageSize: 5
cache:
  driver: postgres
  dsn: postgres://localhost/blog
  revalidate: 1h
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "meu blog", cfg.SiteTitle)
	assert.Equal(t, "https://spacetraveling.cdn.prismic.io/api/v2", cfg.CMS.Endpoint)
	assert.Equal(t, 5, cfg.CMS.PageSize)
	assert.Equal(t, "postgres", cfg.Cache.Driver)
	assert.Equal(t, time.Hour, cfg.Cache.Revalidate)
	// untouched keys keep their defaults
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.RetainFor)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cms:\n  pageSize: 0\n"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "pageSize")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.CMS.PageSize)
	assert.Equal(t, 24*time.Hour, cfg.Cache.Revalidate)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SPACETRAVELING_CMS_ENDPOINT":     "https://cms.example/api/v2",
		"SPACETRAVELING_CMS_PAGE_SIZE":    "3",
		"SPACETRAVELING_CACHE_REVALIDATE": "90s",
		"SPACETRAVELING_DEBUG":            "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, "https://cms.example/api/v2", cfg.CMS.Endpoint)
	assert.Equal(t, 3, cfg.CMS.PageSize)
	assert.Equal(t, 90*time.Second, cfg.Cache.Revalidate)
	assert.True(t, cfg.Debug)

	env["SPACETRAVELING_CMS_PAGE_SIZE"] = "many"
	assert.Error(t, cfg.applyEnv(lookup))
}
