package memory

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingres/internal/domain"
	"ingres/internal/structured"
)

var quiet = log.New(io.Discard, "", 0)

func TestStore_FindByRegion(t *testing.T) {
	s, err := New(DefaultRecords(), structured.DefaultAliases, quiet)
	require.NoError(t, err)
	defer s.Close()

	recs, err := s.Find(context.Background(), domain.Filter{Region: "MAHARASHTRA"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1039.98, recs[0]["rainfall"])
}

func TestStore_FindAllAndLimit(t *testing.T) {
	s, err := New(DefaultRecords(), structured.DefaultAliases, quiet)
	require.NoError(t, err)
	defer s.Close()

	recs, err := s.Find(context.Background(), domain.Filter{})
	require.NoError(t, err)
	assert.Len(t, recs, 4)

	recs, err = s.Find(context.Background(), domain.Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestStore_TextSearch(t *testing.T) {
	s, err := New(DefaultRecords(), structured.DefaultAliases, quiet)
	require.NoError(t, err)
	defer s.Close()

	recs, err := s.Find(context.Background(), domain.Filter{Text: "anything on punjab"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Punjab", recs[0]["state"])

	recs, err = s.Find(context.Background(), domain.Filter{Text: "rainfall 1202.46"})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStore_Replace(t *testing.T) {
	s, err := New(DefaultRecords(), structured.DefaultAliases, quiet)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Replace(context.Background(), []domain.Record{{"State": "Goa", "rainfall": 3000.0}}))
	assert.Equal(t, 1, s.Len())

	recs, err := s.Find(context.Background(), domain.Filter{Text: "goa"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = s.Find(context.Background(), domain.Filter{Region: "bihar"})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStore_FindAfterClose(t *testing.T) {
	s, err := New(DefaultRecords(), structured.DefaultAliases, quiet)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Find(context.Background(), domain.Filter{Text: "punjab"})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Find(context.Background(), domain.Filter{Region: "bihar"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"STATE":"Kerala","year":"2024","rainfall_mm":2890.5}]`), 0o644))

	s, err := NewFromFile(path, structured.DefaultAliases, quiet)
	require.NoError(t, err)
	defer s.Close()

	recs, err := s.Find(context.Background(), domain.Filter{Region: "kerala", Period: "2024"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = NewFromFile(filepath.Join(t.TempDir(), "missing.json"), structured.DefaultAliases, quiet)
	assert.Error(t, err)
}
