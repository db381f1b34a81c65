package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingres/internal/config"
	"ingres/internal/confidence"
	"ingres/internal/domain"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "aquifer.txt"),
		[]byte("An aquifer is a body of rock that holds groundwater. Recharge replenishes it."), 0o644))

	cfg, err := config.Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	cfg.Index.Path = filepath.Join(dir, "index.gwix")
	cfg.Ingest.Documents = []string{filepath.Join(docs, "**", "*.txt")}
	return cfg
}

func TestApp_ColdStartBuildsAndPersists(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := New(ctx, cfg, io.Discard)
	require.NoError(t, err)
	require.NoError(t, a.Initialize(ctx))

	h := a.Health()
	assert.True(t, h.Initialized)
	assert.False(t, h.IndexLoaded)
	require.NotNil(t, h.LastRebuild)
	// four default records plus one document
	assert.Equal(t, 5, h.Index.Documents)
	assert.Equal(t, "memory", h.Store)
	assert.False(t, h.GenerationConfigured)
	require.NoError(t, a.Shutdown(ctx))

	again, err := New(ctx, cfg, io.Discard)
	require.NoError(t, err)
	require.NoError(t, again.Initialize(ctx))
	assert.True(t, again.Health().IndexLoaded)
	assert.Nil(t, again.Health().LastRebuild)
	assert.Equal(t, 5, again.Health().Index.Documents)
}

func TestApp_NoBuildOnStart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Index.BuildOnStart = false

	a, err := New(ctx, cfg, io.Discard)
	require.NoError(t, err)
	require.NoError(t, a.Initialize(ctx))
	assert.Equal(t, 0, a.Health().Index.Documents)

	rep, err := a.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Documents)
	assert.Equal(t, 5, a.Health().Index.Documents)
}

func TestApp_ProcessEndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), io.Discard)
	require.NoError(t, err)
	require.NoError(t, a.Initialize(ctx))

	resp := a.Service.Process(ctx, domain.Query{Text: "what is rainfall in bihar?"})
	assert.Equal(t, domain.IntentStatistics, resp.Intent)
	assert.Contains(t, resp.Answer, "1202.46")
	assert.Equal(t, confidence.Fallback, resp.Confidence)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "Groundwater data for Bihar", resp.Sources[0].Content)

	turns, err := a.Service.History(ctx, resp.SessionID, 5)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestApp_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Type = "mongo"
	_, err := New(context.Background(), cfg, io.Discard)
	assert.Error(t, err)
}

func TestApp_SeedFile(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	seed := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(`[{"state": "Sikkim", "rainfall": 2739.9}]`), 0o644))
	cfg.Store.SeedFile = seed
	cfg.Ingest.Documents = nil

	a, err := New(ctx, cfg, io.Discard)
	require.NoError(t, err)
	require.NoError(t, a.Initialize(ctx))
	assert.Equal(t, 1, a.Health().Index.Documents)

	recs, err := a.Service.SearchStructured(ctx, domain.Filter{Region: "sikkim"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
