package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ingres/internal/domain"
	"ingres/internal/embedding"
)

// Backend is the surface the orchestrator and the reprocessing path use.
// Both the in-process Index and the qdrant store implement it.
type Backend interface {
	Add(ctx context.Context, docs []domain.IndexedDocument) error
	Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
	Save() error
	Load() bool
	Reset(ctx context.Context) error
	// Replace builds docs in batches of batchSize off to the side and swaps
	// them in as the whole index. On error the previous contents stay live.
	Replace(ctx context.Context, docs []domain.IndexedDocument, batchSize int) error
	Stats() domain.IndexStats
}

// Options configures an Index.
type Options struct {
	// Path is the persisted index file.
	Path string
	// DefaultTopK is used when Search is called with k <= 0.
	DefaultTopK int
	// Dimension fixes the vector size up front. Zero infers it from the first batch.
	Dimension    int
	EmbedTimeout time.Duration
	Logger       *log.Logger
}

type snapshot struct {
	dimension int
	vectors   [][]float64
	docs      []domain.IndexedDocument
}

func (s *snapshot) len() int {
	if s == nil {
		return 0
	}
	return len(s.docs)
}

// Index is an in-memory brute-force cosine index. Readers work against the
// last published snapshot and never block; Add, Reset, Save and Load are
// serialized by one writer lock.
type Index struct {
	embedder domain.Embedder
	opts     Options
	logger   *log.Logger

	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
}

var _ Backend = (*Index)(nil)

// New creates an empty index bound to one embedder.
func New(embedder domain.Embedder, opts Options) *Index {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 5
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[INDEX] ", log.LstdFlags)
	}
	return &Index{embedder: embedder, opts: opts, logger: logger}
}

// Add embeds docs in one batch and appends them. The dimension is fixed by
// the first successful Add unless configured.
func (x *Index) Add(ctx context.Context, docs []domain.IndexedDocument) error {
	if len(docs) == 0 {
		return nil
	}
	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	old := x.current.Load()
	next := &snapshot{dimension: x.opts.Dimension}
	if old.len() > 0 {
		// full slice expressions force a copy so published snapshots stay immutable
		next.dimension = old.dimension
		next.vectors = old.vectors[:len(old.vectors):len(old.vectors)]
		next.docs = old.docs[:len(old.docs):len(old.docs)]
	}
	if err := x.embedInto(ctx, next, docs); err != nil {
		return err
	}
	x.current.Store(next)
	x.logger.Printf("added %d documents (total %d, dim %d)", len(docs), len(next.docs), next.dimension)
	return nil
}

// Replace embeds docs into a private snapshot and publishes it in one step.
// Searches keep reading the previous snapshot until then.
func (x *Index) Replace(ctx context.Context, docs []domain.IndexedDocument, batchSize int) error {
	if batchSize <= 0 || batchSize > len(docs) {
		batchSize = len(docs)
	}
	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	next := &snapshot{dimension: x.opts.Dimension}
	for i := 0; i < len(docs); i += batchSize {
		end := min(i+batchSize, len(docs))
		if err := x.embedInto(ctx, next, docs[i:end]); err != nil {
			return err
		}
	}
	if next.len() == 0 {
		x.current.Store(nil)
	} else {
		x.current.Store(next)
	}
	x.logger.Printf("replaced index with %d documents (dim %d)", next.len(), next.dimension)
	return nil
}

// embedInto appends docs to an unpublished snapshot.
func (x *Index) embedInto(ctx context.Context, next *snapshot, docs []domain.IndexedDocument) error {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := embedding.EmbedWithTimeout(ctx, x.embedder, texts, x.opts.EmbedTimeout)
	if err != nil {
		return fmt.Errorf("add %d documents: %w", len(docs), err)
	}
	if next.dimension == 0 && len(vecs) > 0 {
		next.dimension = len(vecs[0])
	}
	for i, v := range vecs {
		if len(v) != next.dimension {
			return fmt.Errorf("add documents: vector %d has dimension %d, index has %d", i, len(v), next.dimension)
		}
	}
	for i, v := range vecs {
		next.vectors = append(next.vectors, embedding.Normalize(append([]float64(nil), v...)))
		next.docs = append(next.docs, docs[i])
	}
	return nil
}

// Search returns the k most similar documents by cosine similarity, best
// first, with 1-based ranks. An empty or unbuilt index yields no results.
func (x *Index) Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	snap := x.current.Load()
	if snap.len() == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = x.opts.DefaultTopK
	}
	vecs, err := embedding.EmbedWithTimeout(ctx, x.embedder, []string{query}, x.opts.EmbedTimeout)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	q := embedding.Normalize(vecs[0])
	if len(q) != snap.dimension {
		return nil, fmt.Errorf("search: query dimension %d, index has %d", len(q), snap.dimension)
	}

	scores := make([]float64, len(snap.vectors))
	for i := range snap.vectors {
		scores[i] = dot(snap.vectors[i], q)
	}
	idxs := argsortDesc(scores)
	if k > len(idxs) {
		k = len(idxs)
	}
	results := make([]domain.SearchResult, 0, k)
	for i := 0; i < k; i++ {
		j := idxs[i]
		results = append(results, domain.SearchResult{Document: snap.docs[j], Score: scores[j], Rank: i + 1})
	}
	return results, nil
}

// Reset drops every entry. The configured dimension, if any, is kept.
func (x *Index) Reset(ctx context.Context) error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	x.current.Store(nil)
	return nil
}

// Stats reports size, dimension and embedder identity.
func (x *Index) Stats() domain.IndexStats {
	snap := x.current.Load()
	st := domain.IndexStats{Documents: snap.len(), Embedder: x.embedder.Name()}
	if snap != nil {
		st.Dimension = snap.dimension
	} else {
		st.Dimension = x.opts.Dimension
	}
	return st
}

// Save writes the current snapshot to Options.Path as a single file.
func (x *Index) Save() error {
	if x.opts.Path == "" {
		return errors.New("save index: no path configured")
	}
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	snap := x.current.Load()
	if err := writeFile(x.opts.Path, x.embedder.Name(), snap); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	x.logger.Printf("saved %d documents to %s", snap.len(), x.opts.Path)
	return nil
}

// Load restores a persisted index. It reports false, leaving the index
// untouched, when the file is absent, corrupt, empty or was written by a
// different embedder.
func (x *Index) Load() bool {
	if x.opts.Path == "" {
		return false
	}
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	snap, err := readFile(x.opts.Path, x.embedder.Name())
	if err != nil {
		x.logger.Printf("no usable index at %s: %v", x.opts.Path, err)
		return false
	}
	if snap.len() == 0 {
		x.logger.Printf("index at %s is empty", x.opts.Path)
		return false
	}
	if x.opts.Dimension > 0 && snap.dimension != x.opts.Dimension {
		x.logger.Printf("index at %s has dimension %d, want %d", x.opts.Path, snap.dimension, x.opts.Dimension)
		return false
	}
	x.current.Store(snap)
	x.logger.Printf("loaded %d documents from %s", snap.len(), x.opts.Path)
	return true
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// argsortDesc orders indexes by descending value; ties keep insertion order.
func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return vals[idxs[a]] > vals[idxs[b]] })
	return idxs
}
