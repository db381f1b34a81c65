package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestEmbedder_Deterministic(t *testing.T) {
	e := NewEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, []string{"Rainfall in Bihar was 1202.46 mm"})
	require.NoError(t, err)
	b, err := e.Embed(ctx, []string{"Rainfall in Bihar was 1202.46 mm"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a[0], 64)
	assert.Equal(t, "hashing-64", e.Name())
}

func TestEmbedder_UnitLength(t *testing.T) {
	e := NewEmbedder(0)
	vecs, err := e.Embed(context.Background(), []string{"groundwater extraction in punjab"})
	require.NoError(t, err)
	assert.Equal(t, DefaultDimension, e.Dimension())
	assert.InDelta(t, 1.0, math.Sqrt(dot(vecs[0], vecs[0])), 1e-9)
}

func TestEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	e := NewEmbedder(256)
	vecs, err := e.Embed(context.Background(), []string{
		"annual rainfall in bihar",
		"bihar rainfall annual figures",
		"aquifer recharge through tube wells",
	})
	require.NoError(t, err)

	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
}

func TestEmbedder_StopwordsOnlyYieldsZeroVector(t *testing.T) {
	e := NewEmbedder(32)
	vecs, err := e.Embed(context.Background(), []string{"the and of"})
	require.NoError(t, err)
	for _, v := range vecs[0] {
		assert.Zero(t, v)
	}
}

func TestEmbedder_CanceledContext(t *testing.T) {
	e := NewEmbedder(32)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Embed(ctx, []string{"rainfall"})
	assert.ErrorIs(t, err, context.Canceled)
}
