package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"ingres/internal/contextbuilder"
	"ingres/internal/domain"
	"ingres/internal/structured"
	"ingres/internal/structured/memory"
	"ingres/internal/vectorindex"
)

// Options lists the sources a rebuild reads.
type Options struct {
	// Documents are doublestar globs of .jsonl and .txt chunk files.
	Documents []string
	// RecordsFile is a JSON array of structured records. When empty,
	// Records is used instead.
	RecordsFile string
	Records     []domain.Record
	// SummarySentences bounds the report summary.
	SummarySentences int
	// Persist saves the index after a successful rebuild.
	Persist bool
	// BatchSize is the number of documents embedded per Add call.
	BatchSize int
	Logger    *log.Logger
}

// Report describes one rebuild.
type Report struct {
	Records      int
	Documents    int
	Files        []string
	Skipped      []string
	Summary      string
	Duration     time.Duration
	IndexedStats domain.IndexStats
}

// Rebuilder replaces the structured records and rebuilds the vector index
// from source files. Concurrent calls are serialized.
type Rebuilder struct {
	index      vectorindex.Backend
	records    domain.RecordWriter
	chunker    domain.Chunker
	summarizer domain.Summarizer
	aliases    structured.AliasTable
	opts       Options
	logger     *log.Logger

	mu sync.Mutex
}

// NewRebuilder wires a rebuild. records, chunker and summarizer may be nil.
func NewRebuilder(index vectorindex.Backend, records domain.RecordWriter, ch domain.Chunker, sum domain.Summarizer, aliases structured.AliasTable, opts Options) *Rebuilder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = 3
	}
	if aliases.Aliases == nil {
		aliases = structured.DefaultAliases
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	return &Rebuilder{index: index, records: records, chunker: ch, summarizer: sum, aliases: aliases, opts: opts, logger: logger}
}

// Rebuild runs a full reprocessing pass. Sources are read and the new index
// is built before anything is swapped in, so an unreadable records file or
// a failed embedding leaves the store and index untouched and searches keep
// seeing the last completed build. Records are replaced only after the index
// swap. Unreadable document files are skipped and reported.
func (r *Rebuilder) Rebuild(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := time.Now()
	var rep Report

	records := r.opts.Records
	if r.opts.RecordsFile != "" {
		recs, err := memory.ReadRecords(r.opts.RecordsFile)
		if err != nil {
			return rep, fmt.Errorf("rebuild: %w", err)
		}
		records = recs
		rep.Files = append(rep.Files, r.opts.RecordsFile)
	}

	files, err := r.Match()
	if err != nil {
		return rep, fmt.Errorf("rebuild: %w", err)
	}
	var sourceDocs []domain.IndexedDocument
	for _, path := range files {
		docs, err := ReadDocuments(path)
		if err != nil {
			r.logger.Printf("skipping %s: %v", path, err)
			rep.Skipped = append(rep.Skipped, path)
			continue
		}
		rep.Files = append(rep.Files, path)
		sourceDocs = append(sourceDocs, docs...)
	}

	docs := make([]domain.IndexedDocument, 0, len(records)+len(sourceDocs))
	for _, rec := range records {
		if d, ok := RecordDocument(rec, r.aliases); ok {
			docs = append(docs, d)
		}
	}
	var corpus strings.Builder
	for _, d := range sourceDocs {
		chunks := []domain.IndexedDocument{d}
		if r.chunker != nil {
			if chunks, err = r.chunker.Chunk(d); err != nil {
				return rep, fmt.Errorf("rebuild: chunk %s: %w", d.Origin, err)
			}
		}
		docs = append(docs, chunks...)
		corpus.WriteString(d.Content)
		corpus.WriteString("\n")
	}

	if err := r.index.Replace(ctx, docs, r.opts.BatchSize); err != nil {
		return rep, fmt.Errorf("rebuild: %w", err)
	}
	rep.Documents = len(docs)
	if r.opts.Persist {
		if err := r.index.Save(); err != nil {
			return rep, fmt.Errorf("rebuild: %w", err)
		}
	}

	if r.records != nil && len(records) > 0 {
		if err := r.records.Replace(ctx, records); err != nil {
			return rep, fmt.Errorf("rebuild: replace records: %w", err)
		}
	}
	rep.Records = len(records)

	if r.summarizer != nil && corpus.Len() > 0 {
		if rep.Summary, err = r.summarizer.Summarize(corpus.String(), r.opts.SummarySentences); err != nil {
			r.logger.Printf("summary unavailable: %v", err)
		}
	}
	rep.IndexedStats = r.index.Stats()
	rep.Duration = time.Since(start)
	r.logger.Printf("rebuilt index: %d records, %d documents from %d files in %s",
		rep.Records, rep.Documents, len(rep.Files), rep.Duration)
	return rep, nil
}

// Match expands the document globs, sorted and deduplicated.
func (r *Rebuilder) Match() ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, pattern := range r.opts.Documents {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

type jsonlDocument struct {
	Content  string            `json:"content"`
	Text     string            `json:"text"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata"`
}

// ReadDocuments loads one source file. JSONL files hold one document per
// line with content (or text), source and metadata; any other file is a
// single plain text document named after the file.
func ReadDocuments(path string) ([]domain.IndexedDocument, error) {
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return readJSONL(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	return []domain.IndexedDocument{{Content: text, Origin: filepath.Base(path), Kind: domain.OriginDocument}}, nil
}

func readJSONL(path string) ([]domain.IndexedDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []domain.IndexedDocument
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var d jsonlDocument
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		content := d.Content
		if content == "" {
			content = d.Text
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		origin := d.Source
		if origin == "" {
			origin = filepath.Base(path)
		}
		out = append(out, domain.IndexedDocument{Content: content, Origin: origin, Kind: domain.OriginDocument, Metadata: d.Metadata})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("no documents")
	}
	return out, nil
}

// RecordDocument renders a structured record as retrievable text, so
// semantic search also reaches the figures. Records without any known
// field are skipped.
func RecordDocument(rec domain.Record, aliases structured.AliasTable) (domain.IndexedDocument, bool) {
	res := aliases.Resolve(rec)
	if len(res.Known) == 0 {
		return domain.IndexedDocument{}, false
	}
	var sb strings.Builder
	meta := map[string]string{}
	if region, ok := aliases.Region(rec); ok {
		fmt.Fprintf(&sb, "Groundwater data for %s.", region)
		meta["region"] = region
	}
	if period, ok := aliases.Period(rec); ok {
		meta["period"] = period
	}
	for _, v := range res.Known {
		if v.Field == structured.FieldRegion {
			continue
		}
		unit := ""
		if a, ok := aliases.Alias(v.Field); ok {
			unit = a.Unit
		}
		fmt.Fprintf(&sb, " %s: %s.", v.Label, v.Text(unit))
	}
	for _, v := range res.Rest {
		fmt.Fprintf(&sb, " %s: %s.", v.Label, structured.FormatValue(v.Value))
	}
	return domain.IndexedDocument{
		Content:  strings.TrimSpace(sb.String()),
		Origin:   contextbuilder.DatabaseOrigin,
		Kind:     domain.OriginStructured,
		Metadata: meta,
	}, true
}
