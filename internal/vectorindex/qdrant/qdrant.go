package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"ingres/internal/domain"
	"ingres/internal/embedding"
	"ingres/internal/vectorindex"
)

// Store is a minimal REST client to Qdrant exposing the index surface.
// It assumes cosine distance. The configured collection name is used as an
// alias once Replace has run, and as a plain collection created by the
// first Add before that.
type Store struct {
	url          string
	apiKey       string
	collection   string
	embedder     domain.Embedder
	defaultTopK  int
	embedTimeout time.Duration
	client       *http.Client
	logger       *log.Logger

	writeMu   sync.Mutex
	mu        sync.Mutex
	dimension int
	count     int
}

var _ vectorindex.Backend = (*Store)(nil)

type Config struct {
	URL          string
	APIKey       string
	Collection   string
	Timeout      time.Duration
	DefaultTopK  int
	EmbedTimeout time.Duration
	Logger       *log.Logger
}

// pointNamespace derives content-addressed point ids.
var pointNamespace = uuid.MustParse("6f1c2b0e-6a53-4d8e-9a59-3c1f4d2b7e10")

func NewStore(cfg Config, embedder domain.Embedder) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "groundwater"
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[QDRANT] ", log.LstdFlags)
	}
	return &Store{
		url:          cfg.URL,
		apiKey:       cfg.APIKey,
		collection:   cfg.Collection,
		embedder:     embedder,
		defaultTopK:  cfg.DefaultTopK,
		embedTimeout: cfg.EmbedTimeout,
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// PointID returns the stable id a document is stored under.
func PointID(d domain.IndexedDocument) string {
	return uuid.NewSHA1(pointNamespace, []byte(string(d.Kind)+"\x00"+d.Origin+"\x00"+d.Content)).String()
}

func (s *Store) Add(ctx context.Context, docs []domain.IndexedDocument) error {
	if len(docs) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	vecs, err := s.embed(ctx, docs)
	if err != nil {
		return fmt.Errorf("add %d documents: %w", len(docs), err)
	}
	dim := s.Stats().Dimension
	if dim == 0 {
		dim = len(vecs[0])
		if err := s.createCollection(ctx, s.collection, dim); err != nil {
			return err
		}
	}
	if err := s.upsert(ctx, s.collection, docs, vecs, dim); err != nil {
		return err
	}
	// ids are content-addressed, so re-added documents do not grow the collection
	if err := s.refresh(ctx); err != nil {
		return fmt.Errorf("count points: %w", err)
	}
	return nil
}

// Replace upserts docs into a fresh collection, points the alias at it and
// drops the previous collection. Searches go to the previous collection
// until the alias moves; on failure the fresh collection is dropped.
func (s *Store) Replace(ctx context.Context, docs []domain.IndexedDocument, batchSize int) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if len(docs) == 0 {
		return s.reset(ctx)
	}
	if batchSize <= 0 || batchSize > len(docs) {
		batchSize = len(docs)
	}
	old, err := s.resolve(ctx)
	if err != nil {
		return fmt.Errorf("replace: %w", err)
	}

	next := fmt.Sprintf("%s_%d", s.collection, time.Now().UnixNano())
	dim := 0
	for i := 0; i < len(docs); i += batchSize {
		batch := docs[i:min(i+batchSize, len(docs))]
		vecs, err := s.embed(ctx, batch)
		if err != nil {
			s.drop(next, dim > 0)
			return fmt.Errorf("add %d documents: %w", len(batch), err)
		}
		if dim == 0 {
			if err := s.createCollection(ctx, next, len(vecs[0])); err != nil {
				return err
			}
			dim = len(vecs[0])
		}
		if err := s.upsert(ctx, next, batch, vecs, dim); err != nil {
			s.drop(next, true)
			return err
		}
	}

	var actions []map[string]any
	if old != s.collection {
		actions = append(actions, map[string]any{"delete_alias": map[string]any{"alias_name": s.collection}})
	} else if err := s.do(ctx, http.MethodDelete, s.collectionURL(s.collection, ""), nil, nil, http.StatusNotFound); err != nil {
		// a plain collection holding the alias name has to go first
		s.drop(next, true)
		return fmt.Errorf("drop collection %s: %w", s.collection, err)
	}
	actions = append(actions, map[string]any{"create_alias": map[string]any{"collection_name": next, "alias_name": s.collection}})
	if err := s.do(ctx, http.MethodPost, s.url+"/collections/aliases", map[string]any{"actions": actions}, nil); err != nil {
		s.drop(next, true)
		return fmt.Errorf("switch alias: %w", err)
	}
	if old != s.collection {
		s.drop(old, true)
	}
	if err := s.refresh(ctx); err != nil {
		return fmt.Errorf("count points: %w", err)
	}
	s.logger.Printf("collection %s now serves %d points from %s", s.collection, s.Stats().Documents, next)
	return nil
}

func (s *Store) embed(ctx context.Context, docs []domain.IndexedDocument) ([][]float64, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	return embedding.EmbedWithTimeout(ctx, s.embedder, texts, s.embedTimeout)
}

func (s *Store) createCollection(ctx context.Context, name string, dim int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	// Qdrant answers 409 when the collection exists already; treat that as success
	if err := s.do(ctx, http.MethodPut, s.collectionURL(name, ""), body, nil, http.StatusConflict); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, name string, docs []domain.IndexedDocument, vecs [][]float64, dim int) error {
	points := make([]map[string]any, len(docs))
	for i, d := range docs {
		if len(vecs[i]) != dim {
			return fmt.Errorf("add documents: vector %d has dimension %d, collection has %d", i, len(vecs[i]), dim)
		}
		points[i] = map[string]any{
			"id":     PointID(d),
			"vector": embedding.Normalize(vecs[i]),
			"payload": map[string]any{
				"content":  d.Content,
				"origin":   d.Origin,
				"kind":     string(d.Kind),
				"metadata": d.Metadata,
			},
		}
	}
	body := map[string]any{"points": points}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(name, "/points?wait=true"), body, nil); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

// drop deletes a collection on a fresh context, since ctx may be the reason
// the caller is bailing out.
func (s *Store) drop(name string, exists bool) {
	if !exists {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()
	if err := s.do(ctx, http.MethodDelete, s.collectionURL(name, ""), nil, nil, http.StatusNotFound); err != nil {
		s.logger.Printf("drop collection %s: %v", name, err)
	}
}

// resolve returns the collection the alias points at, or the configured
// name when no alias exists.
func (s *Store) resolve(ctx context.Context) (string, error) {
	var resp struct {
		Result struct {
			Aliases []struct {
				AliasName      string `json:"alias_name"`
				CollectionName string `json:"collection_name"`
			} `json:"aliases"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.url+"/aliases", nil, &resp); err != nil {
		return "", fmt.Errorf("list aliases: %w", err)
	}
	for _, a := range resp.Result.Aliases {
		if a.AliasName == s.collection {
			return a.CollectionName, nil
		}
	}
	return s.collection, nil
}

// refresh reads point count and vector size of the live collection.
func (s *Store) refresh(ctx context.Context) error {
	target, err := s.resolve(ctx)
	if err != nil {
		return err
	}
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.collectionURL(target, ""), nil, &resp); err != nil {
		return err
	}
	s.mu.Lock()
	s.count = resp.Result.PointsCount
	s.dimension = resp.Result.Config.Params.Vectors.Size
	s.mu.Unlock()
	return nil
}

func (s *Store) Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if s.Stats().Documents == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = s.defaultTopK
	}
	vecs, err := embedding.EmbedWithTimeout(ctx, s.embedder, []string{query}, s.embedTimeout)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	req := map[string]any{
		"vector":       embedding.Normalize(vecs[0]),
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				Content  string            `json:"content"`
				Origin   string            `json:"origin"`
				Kind     string            `json:"kind"`
				Metadata map[string]string `json:"metadata"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(s.collection, "/points/search"), req, &resp); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for i, r := range resp.Result {
		results = append(results, domain.SearchResult{
			Document: domain.IndexedDocument{
				Content:  r.Payload.Content,
				Origin:   r.Payload.Origin,
				Kind:     domain.OriginKind(r.Payload.Kind),
				Metadata: r.Payload.Metadata,
			},
			Score: r.Score,
			Rank:  i + 1,
		})
	}
	return results, nil
}

// Save is a no-op: Qdrant persists writes itself.
func (s *Store) Save() error { return nil }

// Load reports whether the collection exists and holds points.
func (s *Store) Load() bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()
	if err := s.refresh(ctx); err != nil {
		s.logger.Printf("collection %s not loaded: %v", s.collection, err)
		return false
	}
	n := s.Stats().Documents
	if n == 0 {
		return false
	}
	s.logger.Printf("collection %s has %d points", s.collection, n)
	return true
}

// Reset drops the live collection, and with it the alias.
func (s *Store) Reset(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.reset(ctx)
}

func (s *Store) reset(ctx context.Context) error {
	target, err := s.resolve(ctx)
	if err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	if err := s.do(ctx, http.MethodDelete, s.collectionURL(target, ""), nil, nil, http.StatusNotFound); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	s.mu.Lock()
	s.dimension = 0
	s.count = 0
	s.mu.Unlock()
	return nil
}

func (s *Store) Stats() domain.IndexStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.IndexStats{Documents: s.count, Dimension: s.dimension, Embedder: s.embedder.Name()}
}

func (s *Store) collectionURL(name, suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, name, suffix)
}

func (s *Store) do(ctx context.Context, method, url string, body, out any, okStatus ...int) error {
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}
	var req *http.Request
	var err error
	if rdr != nil {
		req, err = http.NewRequestWithContext(ctx, method, url, rdr)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	for _, code := range okStatus {
		if resp.StatusCode == code {
			return nil
		}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Join(errors.New("decode qdrant response"), err)
		}
	}
	return nil
}
