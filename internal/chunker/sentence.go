package chunker

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"ingres/internal/domain"
)

// Metadata keys set on every chunk.
const (
	MetaChunk  = "chunk"
	MetaParent = "parent"
)

// SentenceChunker splits long texts into windows of whole sentences with
// overlap, so one retrievable document stays near the context budget.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
}

var _ domain.Chunker = (*SentenceChunker)(nil)

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{sentencesPerChunk: sentencesPerChunk, overlapSentences: overlapSentences}
}

// Sentences splits text after terminal punctuation followed by whitespace,
// so decimals like 1202.46 stay intact. A trailing fragment without
// punctuation is kept as its own sentence.
func Sentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next, _ := utf8.DecodeRuneInString(text[i+1:])
		if i+1 < len(text) && !unicode.IsSpace(next) {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

// Chunk returns doc unchanged when it fits in one window. Otherwise every
// chunk inherits Origin, Kind and Metadata, plus its position.
func (c *SentenceChunker) Chunk(doc domain.IndexedDocument) ([]domain.IndexedDocument, error) {
	sentences := Sentences(doc.Content)
	if len(sentences) == 0 {
		return nil, nil
	}
	if len(sentences) <= c.sentencesPerChunk {
		return []domain.IndexedDocument{doc}, nil
	}

	var chunks []domain.IndexedDocument
	for i, idx := 0, 0; i < len(sentences); idx++ {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		meta := make(map[string]string, len(doc.Metadata)+2)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta[MetaChunk] = strconv.Itoa(idx)
		meta[MetaParent] = doc.Origin
		chunks = append(chunks, domain.IndexedDocument{
			Content:  strings.Join(sentences[i:end], " "),
			Origin:   doc.Origin,
			Kind:     doc.Kind,
			Metadata: meta,
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks, nil
}
