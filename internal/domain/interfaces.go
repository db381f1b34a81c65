package domain

import "context"

// Embedder converts free text into fixed-dimension numeric vectors.
// Implementations must be deterministic for a given model version.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Generator produces answer text from a fully rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RecordStore is the filter capability of the Structured Store.
type RecordStore interface {
	Name() string
	Find(ctx context.Context, filter Filter) ([]Record, error)
	Close() error
}

// RecordWriter replaces the full set of structured records during a rebuild.
type RecordWriter interface {
	Replace(ctx context.Context, records []Record) error
}

// Chunker splits a source text into retrievable documents.
type Chunker interface {
	Chunk(document IndexedDocument) ([]IndexedDocument, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
