package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryan-buckman/spacetraveling/internal/cms/cmstest"
	"github.com/bryan-buckman/spacetraveling/internal/database"
	"github.com/bryan-buckman/spacetraveling/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, endpoint string) string {
	t.Helper()
	path := filepath.Join(dir, "spacetraveling.yaml")
	cfg := "cms:\n  endpoint: " + endpoint + "\ncache:\n  driver: sqlite\n  dsn: " + filepath.Join(dir, "cache.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildCommand(t *testing.T) {
	backend := cmstest.NewServer(
		cmstest.Post("p1", "Primeiro", time.Date(2021, 4, 19, 10, 0, 0, 0, time.UTC), "a"),
		cmstest.Post("p2", "Segundo", time.Date(2021, 4, 20, 10, 0, 0, 0, time.UTC), "b"),
	)
	defer backend.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "public")
	_, err := run(t, "build", "--config", writeConfig(t, dir, backend.Endpoint()), "--out", out)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(out, "index.html"))
	assert.FileExists(t, filepath.Join(out, "posts", "more", "2.html"))
	assert.FileExists(t, filepath.Join(out, "post", "p2", "index.html"))
}

func TestBuildCommand_NoEndpoint(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "build", "--config", writeConfig(t, dir, `""`))
	assert.ErrorContains(t, err, "cms.endpoint")
}

func TestCachePurgeCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "https://cms.example/api/v2")

	store, err := database.New(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	require.NoError(t, store.PutEntry(&model.CacheEntry{Key: "post:old", Body: []byte("{}"), FetchedAt: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, store.PutEntry(&model.CacheEntry{Key: "post:new", Body: []byte("{}"), FetchedAt: time.Now()}))
	require.NoError(t, store.Close())

	out, err := run(t, "cache", "purge", "--config", path, "--older-than", "24h")
	require.NoError(t, err)
	assert.Contains(t, out, "purged 1 documents")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := run(t, "cache", "purge", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
