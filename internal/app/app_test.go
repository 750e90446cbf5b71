package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"nai-prompt-bot/internal/config"
	"nai-prompt-bot/internal/engine"
	"nai-prompt-bot/internal/preset"
)

const pooled = `
id: pooled
categories:
  - id: hair
    groups:
      - id: hair_pool
        source_type: pool
        pool_id: hair
  - id: subject
    groups:
      - id: subject_group
        children: ["__animal__"]
variables:
  colour:
    group:
      id: colour_pool
      source_type: pool
      pool_id: colours
`

const namespace = `
variables:
  animal:
    group:
      id: animals
      children: [fox]
`

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestBuild_WiresPoolsAndNamespace(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		id := filepath.Base(r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "tags": []string{id + " tag"}})
	}))
	defer srv.Close()

	dir := t.TempDir()
	write(t, dir, "pooled.yaml", pooled)
	nsFile := write(t, t.TempDir(), "globals.yaml", namespace)

	stack, err := Build(context.Background(), config.Config{
		PresetDir:           dir,
		GlobalVariablesFile: nsFile,
		PoolBaseURL:         srv.URL,
		PoolRetryAttempts:   1,
	}, srv.Client(), nil)
	require.NoError(t, err)
	defer stack.Close()

	require.NotNil(t, stack.Pools)
	assert.Equal(t, 2, stack.Pools.Len(), "referenced pools are warmed")
	assert.EqualValues(t, 2, hits.Load())

	p, err := stack.Library.Get("pooled")
	require.NoError(t, err)
	res, err := stack.Engine.Expand(context.Background(), p, engine.Context{}, 1)
	require.NoError(t, err)
	assert.Equal(t, "hair tag, fox", res.Text)
	assert.EqualValues(t, 2, hits.Load(), "expansion is served from the cache")
}

func TestBuild_WithoutPools(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "pooled.yaml", pooled)

	stack, err := Build(context.Background(), config.Config{PresetDir: dir}, nil, nil)
	require.NoError(t, err)
	defer stack.Close()

	assert.Nil(t, stack.Pools)
	p, err := stack.Library.Get("pooled")
	require.NoError(t, err)
	res, err := stack.Engine.Expand(context.Background(), p, engine.Context{}, 1)
	require.NoError(t, err)
	assert.Equal(t, "__animal__", res.Text)
	assert.Equal(t, []engine.Decision{engine.SkippedBySourceUnavailable}, res.Trace.Decisions("hair_pool"))
}

func TestBuild_BadNamespace(t *testing.T) {
	_, err := Build(context.Background(), config.Config{
		PresetDir:           t.TempDir(),
		GlobalVariablesFile: filepath.Join(t.TempDir(), "missing.yaml"),
	}, nil, nil)
	assert.Error(t, err)
}

func TestBuild_StartsWatcher(t *testing.T) {
	defer goleak.VerifyNone(t)

	stack, err := Build(context.Background(), config.Config{PresetDir: t.TempDir(), WatchPresets: true}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, stack.watcher)
	stack.Close()
}

func TestPoolIDs(t *testing.T) {
	p, err := preset.Parse([]byte(pooled))
	require.NoError(t, err)

	assert.Equal(t, []string{"hair", "colours"}, PoolIDs([]*preset.Preset{p, p}))
}
