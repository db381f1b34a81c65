package domain

import (
	"strings"
	"time"
)

// Query is one user question.
type Query struct {
	Text      string
	UserID    string
	SessionID string
}

// Entities are vocabulary terms found in a query, in vocabulary order.
type Entities struct {
	Regions []string
	Metrics []string
	Years   []string
}

// Empty reports whether nothing was extracted.
func (e Entities) Empty() bool {
	return len(e.Regions) == 0 && len(e.Metrics) == 0 && len(e.Years) == 0
}

// Intent is the discrete purpose of a query.
type Intent string

const (
	IntentGreeting    Intent = "greeting"
	IntentFarewell    Intent = "farewell"
	IntentHelp        Intent = "help"
	IntentStatistics  Intent = "statistics"
	IntentComparison  Intent = "comparison"
	IntentExplanation Intent = "explanation"
	IntentGeneral     Intent = "general"
)

// IsConversational reports whether the intent skips retrieval.
func (i Intent) IsConversational() bool {
	return i == IntentGreeting || i == IntentFarewell || i == IntentHelp
}

// Record is one row of the Structured Store as a field map. Field names
// vary between sources; see the structured package alias table.
type Record map[string]any

// Filter narrows a Structured Store lookup. Empty fields are ignored.
type Filter struct {
	Region string
	Period string
	Text   string
	Limit  int
}

// CanonicalRegion trims and lowercases a region identifier for comparison.
func CanonicalRegion(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// OriginKind tells where an indexed document came from.
type OriginKind string

const (
	OriginStructured OriginKind = "structured"
	OriginDocument   OriginKind = "document"
)

// IndexedDocument is one retrievable text unit. Content is immutable once indexed.
type IndexedDocument struct {
	Content  string
	Origin   string
	Kind     OriginKind
	Metadata map[string]string
}

// SearchResult is a vector hit with its cosine similarity and 1-based rank.
type SearchResult struct {
	Document IndexedDocument
	Score    float64
	Rank     int
}

// SourceType distinguishes the retrieval channel a source came from.
type SourceType string

const (
	SourceStructured   SourceType = "structured"
	SourceUnstructured SourceType = "unstructured"
)

// Source attributes a piece of evidence surfaced in the context.
type Source struct {
	Type    SourceType `json:"type"`
	Origin  string     `json:"source"`
	Kind    string     `json:"source_type,omitempty"`
	Content string     `json:"content"`
	Score   float64    `json:"relevance_score,omitempty"`
	Fields  Record     `json:"metadata,omitempty"`
}

// Context is the bounded evidence block handed to generation.
type Context struct {
	Text    string
	Sources []Source
}

// Empty reports whether no evidence was assembled.
func (c Context) Empty() bool {
	return strings.TrimSpace(c.Text) == ""
}

// Response is the final answer to a Query. It is never mutated after construction.
type Response struct {
	Answer     string        `json:"answer"`
	Sources    []Source      `json:"sources"`
	Confidence float64       `json:"confidence_score"`
	Latency    time.Duration `json:"response_time"`
	SessionID  string        `json:"session_id"`
	Intent     Intent        `json:"intent,omitempty"`
}

// Feedback is a user's rating of one answer.
type Feedback struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Rating    int       `json:"rating"`
	Comments  string    `json:"comments,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IndexStats describes the vector index for health reporting.
type IndexStats struct {
	Documents int    `json:"total_documents"`
	Dimension int    `json:"embedding_dimension"`
	Embedder  string `json:"model_name"`
}
