package structured

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"

	"ingres/internal/domain"
)

const (
	// DefaultLimit caps records handed to the context builder.
	DefaultLimit = 10
	// DefaultRawLimit caps direct structured searches.
	DefaultRawLimit = 100
)

// Retriever bridges extracted entities to a RecordStore.
type Retriever struct {
	store    domain.RecordStore
	limit    int
	rawLimit int
	logger   *log.Logger
}

func NewRetriever(store domain.RecordStore, limit, rawLimit int, logger *log.Logger) *Retriever {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if rawLimit <= 0 {
		rawLimit = DefaultRawLimit
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[STRUCTURED] ", log.LstdFlags)
	}
	return &Retriever{store: store, limit: limit, rawLimit: rawLimit, logger: logger}
}

// Query runs one filter against the store, capped at the raw search limit.
func (r *Retriever) Query(ctx context.Context, f domain.Filter) ([]domain.Record, error) {
	if f.Limit <= 0 || f.Limit > r.rawLimit {
		f.Limit = r.rawLimit
	}
	recs, err := r.store.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", r.store.Name(), err)
	}
	if len(recs) > f.Limit {
		recs = recs[:f.Limit]
	}
	return recs, nil
}

// ForEntities retrieves records for a query: each extracted region, scoped
// to the first extracted year and relaxed to region-only when that finds
// nothing, then free text over the whole query when no region matched.
// Results from several regions are interleaved so every region is
// represented near the top.
func (r *Retriever) ForEntities(ctx context.Context, text string, ents domain.Entities) ([]domain.Record, error) {
	year := ""
	if len(ents.Years) > 0 {
		year = ents.Years[0]
	}

	var perRegion [][]domain.Record
	for _, region := range ents.Regions {
		recs, err := r.Query(ctx, domain.Filter{Region: region, Period: year, Limit: r.limit})
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 && year != "" {
			recs, err = r.Query(ctx, domain.Filter{Region: region, Limit: r.limit})
			if err != nil {
				return nil, err
			}
		}
		r.logger.Printf("found %d records for region %q", len(recs), region)
		if len(recs) > 0 {
			perRegion = append(perRegion, recs)
		}
	}

	out := interleave(perRegion, r.limit)
	if len(out) > 0 {
		return out, nil
	}

	if len(Terms(text)) == 0 {
		return nil, nil
	}
	recs, err := r.Query(ctx, domain.Filter{Text: text, Limit: r.limit})
	if err != nil {
		return nil, err
	}
	r.logger.Printf("free-text search found %d records", len(recs))
	if len(recs) > r.limit {
		recs = recs[:r.limit]
	}
	return recs, nil
}

func interleave(groups [][]domain.Record, limit int) []domain.Record {
	var out []domain.Record
	for i := 0; len(out) < limit; i++ {
		added := false
		for _, g := range groups {
			if i < len(g) && len(out) < limit {
				out = append(out, g[i])
				added = true
			}
		}
		if !added {
			break
		}
	}
	return out
}

var termStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "what": {}, "which": {}, "with": {}, "show": {}, "tell": {},
	"give": {}, "about": {}, "compare": {}, "versus": {}, "between": {}, "difference": {}, "data": {},
	"how": {}, "much": {}, "are": {}, "was": {}, "does": {}, "please": {}, "information": {},
}

// Terms splits free text into lowercase search terms of three or more
// letters, dropping question words.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 3 || seen[f] {
			continue
		}
		if _, stop := termStopwords[f]; stop {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
