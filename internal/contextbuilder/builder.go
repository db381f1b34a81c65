package contextbuilder

import (
	"fmt"
	"log"
	"strings"

	"ingres/internal/domain"
	"ingres/internal/structured"
)

const (
	recordsHeader   = "=== GROUNDWATER DATABASE RECORDS ==="
	documentsHeader = "=== ADDITIONAL DOCUMENTS ==="
	// DatabaseOrigin names the structured channel in source attributions.
	DatabaseOrigin = "INGRES Database"
	ellipsis       = "..."
)

// Options bounds the assembled context.
type Options struct {
	MaxRecords    int
	MaxDocuments  int
	DocumentChars int
	ExcerptChars  int
	Aliases       structured.AliasTable
	Logger        *log.Logger
}

// Builder merges both retrieval channels into one labelled text block and
// a parallel source list. Only what appears in the text gets a source.
type Builder struct {
	opts   Options
	logger *log.Logger
}

func New(opts Options) *Builder {
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = 5
	}
	if opts.MaxDocuments <= 0 {
		opts.MaxDocuments = 3
	}
	if opts.DocumentChars <= 0 {
		opts.DocumentChars = 500
	}
	if opts.ExcerptChars <= 0 {
		opts.ExcerptChars = 200
	}
	if opts.Aliases.Aliases == nil {
		opts.Aliases = structured.DefaultAliases
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[CONTEXT] ", log.LstdFlags)
	}
	return &Builder{opts: opts, logger: logger}
}

// Build is deterministic for equal inputs. Missing fields are omitted.
func (b *Builder) Build(records []domain.Record, hits []domain.SearchResult, ents domain.Entities) domain.Context {
	if len(records) > b.opts.MaxRecords {
		records = records[:b.opts.MaxRecords]
	}
	if len(hits) > b.opts.MaxDocuments {
		hits = hits[:b.opts.MaxDocuments]
	}

	var (
		sb      strings.Builder
		sources []domain.Source
	)
	if len(records) > 0 {
		sb.WriteString(recordsHeader)
		sb.WriteString("\n")
		for i, rec := range records {
			b.writeRecord(&sb, i+1, rec)
			sources = append(sources, b.recordSource(rec))
		}
	}
	if len(hits) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(documentsHeader)
		sb.WriteString("\n")
		for i, h := range hits {
			b.writeDocument(&sb, i+1, h)
			sources = append(sources, b.documentSource(h))
		}
	}

	text := sb.String()
	b.logger.Printf("built context: %d chars, %d records, %d documents, %d regions asked",
		len(text), len(records), len(hits), len(ents.Regions))
	return domain.Context{Text: text, Sources: sources}
}

func (b *Builder) writeRecord(sb *strings.Builder, n int, rec domain.Record) {
	fmt.Fprintf(sb, "\nRecord %d:\n", n)
	res := b.opts.Aliases.Resolve(rec)
	for _, v := range res.Known {
		unit := ""
		if a, ok := b.opts.Aliases.Alias(v.Field); ok {
			unit = a.Unit
		}
		fmt.Fprintf(sb, "  • %s: %s\n", v.Label, v.Text(unit))
	}
	for _, v := range res.Rest {
		fmt.Fprintf(sb, "  • %s: %s\n", v.Label, structured.FormatValue(v.Value))
	}
}

func (b *Builder) writeDocument(sb *strings.Builder, n int, h domain.SearchResult) {
	fmt.Fprintf(sb, "\nDocument %d:\n", n)
	fmt.Fprintf(sb, "  • Source: %s\n", describeOrigin(h.Document))
	fmt.Fprintf(sb, "  • Content: %s\n", Truncate(h.Document.Content, b.opts.DocumentChars))
	fmt.Fprintf(sb, "  • Relevance Score: %.2f\n", h.Score)
	sb.WriteString("---\n")
}

func (b *Builder) recordSource(rec domain.Record) domain.Source {
	region, ok := b.opts.Aliases.Region(rec)
	if !ok {
		region = "Unknown"
	}
	return domain.Source{
		Type:    domain.SourceStructured,
		Origin:  DatabaseOrigin,
		Content: "Groundwater data for " + region,
		Fields:  rec,
	}
}

func (b *Builder) documentSource(h domain.SearchResult) domain.Source {
	origin := h.Document.Origin
	if origin == "" {
		origin = "Unknown"
	}
	return domain.Source{
		Type:    domain.SourceUnstructured,
		Origin:  origin,
		Kind:    string(h.Document.Kind),
		Content: Truncate(h.Document.Content, b.opts.ExcerptChars),
		Score:   h.Score,
	}
}

func describeOrigin(d domain.IndexedDocument) string {
	kind := string(d.Kind)
	if kind == "" {
		kind = "unknown"
	}
	if d.Origin == "" {
		return kind
	}
	return kind + " (" + d.Origin + ")"
}

// Truncate cuts s to at most max runes, marking the cut with an ellipsis
// that counts toward max.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return string(r[:max])
	}
	return string(r[:max-len(ellipsis)]) + ellipsis
}
