package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"

	"ingres/internal/domain"
	"ingres/internal/structured"
)

// Store is the in-memory Structured Store. Free text goes through an
// in-memory bleve index over the records' string values.
type Store struct {
	aliases structured.AliasTable
	logger  *log.Logger

	mu      sync.RWMutex
	records []domain.Record
	text    bleve.Index
}

// ErrClosed is returned by Find after Close.
var ErrClosed = errors.New("memory store closed")

var (
	_ domain.RecordStore  = (*Store)(nil)
	_ domain.RecordWriter = (*Store)(nil)
)

// DefaultRecords is the stand-in data used when no seed file is configured.
func DefaultRecords() []domain.Record {
	return []domain.Record{
		{"state": "Bihar", "rainfall": 1202.46, "groundwater_level": 12.5},
		{"state": "Maharashtra", "rainfall": 1039.98, "groundwater_level": 15.2},
		{"state": "Rajasthan", "rainfall": 431.23, "groundwater_level": 8.9},
		{"state": "Punjab", "rainfall": 617.85, "groundwater_level": 18.3},
	}
}

// New creates a store holding records.
func New(records []domain.Record, aliases structured.AliasTable, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	}
	s := &Store{aliases: aliases, logger: logger}
	if err := s.Replace(context.Background(), records); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFromFile seeds a store from a JSON array of records. An empty path
// uses DefaultRecords.
func NewFromFile(path string, aliases structured.AliasTable, logger *log.Logger) (*Store, error) {
	if path == "" {
		return New(DefaultRecords(), aliases, logger)
	}
	recs, err := ReadRecords(path)
	if err != nil {
		return nil, err
	}
	return New(recs, aliases, logger)
}

// ReadRecords decodes a JSON array of records from path.
func ReadRecords(path string) ([]domain.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	var recs []domain.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode records %s: %w", path, err)
	}
	return recs, nil
}

func (s *Store) Name() string { return "memory" }

// Find filters by region and period; Text ranks candidates by full-text
// relevance and drops records without a match.
func (s *Store) Find(ctx context.Context, f domain.Filter) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.text == nil {
		return nil, ErrClosed
	}

	order, err := s.candidates(ctx, f.Text)
	if err != nil {
		return nil, err
	}
	var out []domain.Record
	for _, i := range order {
		rec := s.records[i]
		if !s.aliases.MatchesRegion(rec, f.Region) || !s.aliases.MatchesPeriod(rec, f.Period) {
			continue
		}
		out = append(out, rec)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) candidates(ctx context.Context, text string) ([]int, error) {
	if strings.TrimSpace(text) == "" {
		order := make([]int, len(s.records))
		for i := range order {
			order[i] = i
		}
		return order, nil
	}
	terms := structured.Terms(text)
	if len(terms) == 0 || len(s.records) == 0 {
		return nil, nil
	}
	q := bleve.NewMatchQuery(strings.Join(terms, " "))
	req := bleve.NewSearchRequestOptions(q, len(s.records), 0, false)
	res, err := s.text.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	order := make([]int, 0, len(res.Hits))
	for _, hit := range res.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(s.records) {
			continue
		}
		order = append(order, i)
	}
	return order, nil
}

// Replace swaps the full record set and rebuilds the text index.
func (s *Store) Replace(ctx context.Context, records []domain.Record) error {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("create text index: %w", err)
	}
	batch := idx.NewBatch()
	for i, rec := range records {
		if err := batch.Index(strconv.Itoa(i), map[string]any{"text": searchableText(rec)}); err != nil {
			_ = idx.Close()
			return fmt.Errorf("index record %d: %w", i, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return fmt.Errorf("index records: %w", err)
	}

	s.mu.Lock()
	old := s.text
	s.records = append([]domain.Record(nil), records...)
	s.text = idx
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	s.logger.Printf("holding %d records", len(records))
	return nil
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.text == nil {
		return nil
	}
	err := s.text.Close()
	s.text = nil
	return err
}

// searchableText joins the record's string values. Numeric measurements
// stay out so numbers in a question do not match arbitrary records.
func searchableText(rec domain.Record) string {
	var parts []string
	for _, v := range rec {
		if str, ok := v.(string); ok && strings.TrimSpace(str) != "" {
			parts = append(parts, str)
		}
	}
	return strings.Join(parts, " ")
}
