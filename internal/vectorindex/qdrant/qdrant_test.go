package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingres/internal/domain"
	"ingres/internal/embedding/hashing"
)

type fakeCollection struct {
	size   int
	ids    []string
	points map[string]map[string]any
}

// fakeQdrant keeps collections and aliases in memory and resolves aliases
// on point operations the way the server does.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	aliases     map[string]string
	created     []string
	searches    []string
	failUpsert  bool
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: map[string]*fakeCollection{}, aliases: map[string]string{}}
}

func (f *fakeQdrant) seed(name string, size, points int) {
	c := &fakeCollection{size: size, points: map[string]map[string]any{}}
	for i := 0; i < points; i++ {
		id := fmt.Sprintf("p%d", i)
		c.ids = append(c.ids, id)
		c.points[id] = map[string]any{"id": id, "payload": map[string]any{"content": id}}
	}
	f.collections[name] = c
}

func (f *fakeQdrant) target(name string) string {
	if real, ok := f.aliases[name]; ok {
		return real
	}
	return name
}

func (f *fakeQdrant) pointCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[f.target(name)]
	if !ok {
		return -1
	}
	return len(c.points)
}

func (f *fakeQdrant) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/aliases":
			var list []map[string]string
			for alias, coll := range f.aliases {
				list = append(list, map[string]string{"alias_name": alias, "collection_name": coll})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"aliases": list}})
		case r.Method == http.MethodPost && r.URL.Path == "/collections/aliases":
			var body struct {
				Actions []struct {
					Create *struct {
						Collection string `json:"collection_name"`
						Alias      string `json:"alias_name"`
					} `json:"create_alias"`
					Delete *struct {
						Alias string `json:"alias_name"`
					} `json:"delete_alias"`
				} `json:"actions"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			for _, a := range body.Actions {
				if a.Delete != nil {
					delete(f.aliases, a.Delete.Alias)
				}
				if a.Create != nil {
					if _, taken := f.collections[a.Create.Alias]; taken {
						w.WriteHeader(http.StatusBadRequest)
						return
					}
					f.aliases[a.Create.Alias] = a.Create.Collection
				}
			}
			_, _ = io.WriteString(w, `{"result":true}`)
		case len(parts) == 2 && parts[0] == "collections":
			name := parts[1]
			switch r.Method {
			case http.MethodPut:
				if _, ok := f.collections[name]; ok {
					w.WriteHeader(http.StatusConflict)
					return
				}
				var body struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				f.collections[name] = &fakeCollection{size: body.Vectors.Size, points: map[string]map[string]any{}}
				f.created = append(f.created, name)
				_, _ = io.WriteString(w, `{"result":true}`)
			case http.MethodGet:
				c, ok := f.collections[name]
				if !ok {
					http.NotFound(w, r)
					return
				}
				fmt.Fprintf(w, `{"result":{"points_count":%d,"config":{"params":{"vectors":{"size":%d}}}}}`, len(c.points), c.size)
			case http.MethodDelete:
				if _, ok := f.collections[name]; !ok {
					http.NotFound(w, r)
					return
				}
				delete(f.collections, name)
				for alias, coll := range f.aliases {
					if coll == name {
						delete(f.aliases, alias)
					}
				}
				_, _ = io.WriteString(w, `{"result":true}`)
			}
		case len(parts) == 3 && parts[0] == "collections" && parts[2] == "points" && r.Method == http.MethodPut:
			c, ok := f.collections[f.target(parts[1])]
			if !ok || f.failUpsert {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			var body struct {
				Points []map[string]any `json:"points"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			for _, p := range body.Points {
				id := p["id"].(string)
				if _, seen := c.points[id]; !seen {
					c.ids = append(c.ids, id)
				}
				c.points[id] = p
			}
			_, _ = io.WriteString(w, `{"status":"ok"}`)
		case len(parts) == 4 && parts[2] == "points" && parts[3] == "search" && r.Method == http.MethodPost:
			name := f.target(parts[1])
			f.searches = append(f.searches, name)
			c, ok := f.collections[name]
			if !ok {
				http.NotFound(w, r)
				return
			}
			var hits []map[string]any
			for i, id := range c.ids {
				hits = append(hits, map[string]any{"score": 0.9 - float64(i)*0.1, "payload": c.points[id]["payload"]})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": hits})
		default:
			http.NotFound(w, r)
		}
	})
}

func newTestStore(t *testing.T) (*Store, *fakeQdrant) {
	t.Helper()
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return NewStore(Config{URL: srv.URL, Collection: "gw", Logger: log.New(io.Discard, "", 0)}, hashing.NewEmbedder(64)), fake
}

func sampleDocs() []domain.IndexedDocument {
	return []domain.IndexedDocument{
		{Content: "Bihar rainfall 1202.46 mm", Origin: "bihar", Kind: domain.OriginStructured, Metadata: map[string]string{"state": "Bihar"}},
		{Content: "aquifer recharge", Origin: "report.pdf", Kind: domain.OriginDocument},
	}
}

func TestStore_AddAndSearch(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	docs := sampleDocs()
	require.NoError(t, s.Add(ctx, docs))
	assert.Equal(t, []string{"gw"}, fake.created)
	require.Equal(t, 2, fake.pointCount("gw"))
	assert.Contains(t, fake.collections["gw"].points, PointID(docs[0]))

	res, err := s.Search(ctx, "bihar rainfall", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "bihar", res[0].Document.Origin)
	assert.Equal(t, domain.OriginStructured, res[0].Document.Kind)
	assert.Equal(t, "Bihar", res[0].Document.Metadata["state"])
	assert.Equal(t, 1, res[0].Rank)
	assert.Equal(t, 2, res[1].Rank)

	st := s.Stats()
	assert.Equal(t, 2, st.Documents)
	assert.Equal(t, 64, st.Dimension)
}

func TestStore_ReAddDoesNotInflateCount(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, sampleDocs()))
	require.NoError(t, s.Add(ctx, sampleDocs()))

	assert.Equal(t, 2, fake.pointCount("gw"))
	assert.Equal(t, 2, s.Stats().Documents)
}

func TestStore_LoadAndReset(t *testing.T) {
	s, fake := newTestStore(t)
	fake.seed("gw", 64, 7)
	require.True(t, s.Load())
	assert.Equal(t, 7, s.Stats().Documents)
	assert.Equal(t, 64, s.Stats().Dimension)

	require.NoError(t, s.Reset(context.Background()))
	assert.Equal(t, -1, fake.pointCount("gw"))
	assert.Equal(t, 0, s.Stats().Documents)
	assert.False(t, s.Load())
}

func TestStore_ReplaceSwitchesAlias(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	fake.seed("gw", 64, 5)
	require.True(t, s.Load())

	docs := append(sampleDocs(), domain.IndexedDocument{Content: "Punjab extraction", Origin: "punjab.pdf"})
	require.NoError(t, s.Replace(ctx, docs, 2))

	live, ok := fake.aliases["gw"]
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(live, "gw_"))
	assert.Len(t, fake.collections, 1)
	assert.Equal(t, 3, s.Stats().Documents)

	res, err := s.Search(ctx, "rainfall", 5)
	require.NoError(t, err)
	assert.Len(t, res, 3)
	assert.Equal(t, live, fake.searches[len(fake.searches)-1])

	// a second replace moves the alias again and drops the first build
	require.NoError(t, s.Replace(ctx, sampleDocs(), 2))
	assert.NotEqual(t, live, fake.aliases["gw"])
	assert.NotContains(t, fake.collections, live)
	assert.Equal(t, 2, s.Stats().Documents)
}

func TestStore_ReplaceFailureKeepsLiveCollection(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, sampleDocs(), 1))
	live := fake.aliases["gw"]

	fake.failUpsert = true
	require.Error(t, s.Replace(ctx, append(sampleDocs(), domain.IndexedDocument{Content: "extra", Origin: "x"}), 1))

	assert.Equal(t, live, fake.aliases["gw"])
	assert.Len(t, fake.collections, 1)
	assert.Equal(t, 2, fake.pointCount("gw"))
	assert.Equal(t, 2, s.Stats().Documents)
}

func TestStore_LoadUnreachable(t *testing.T) {
	s := NewStore(Config{URL: "http://127.0.0.1:1", Collection: "gw", Logger: log.New(io.Discard, "", 0)}, hashing.NewEmbedder(8))
	assert.False(t, s.Load())
}

func TestStore_SearchEmptySkipsServer(t *testing.T) {
	s := NewStore(Config{URL: "http://127.0.0.1:1", Logger: log.New(io.Discard, "", 0)}, hashing.NewEmbedder(8))
	res, err := s.Search(context.Background(), "rainfall", 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestPointID_ContentAddressed(t *testing.T) {
	a := domain.IndexedDocument{Content: "x", Origin: "o"}
	b := domain.IndexedDocument{Content: "x", Origin: "o"}
	c := domain.IndexedDocument{Content: "y", Origin: "o"}
	assert.Equal(t, PointID(a), PointID(b))
	assert.NotEqual(t, PointID(a), PointID(c))
	assert.False(t, strings.Contains(PointID(a), ":"))
}
