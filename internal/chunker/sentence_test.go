package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingres/internal/domain"
)

func TestSentences(t *testing.T) {
	got := Sentences("Recharge is high. Extraction rose!  Is it safe? trailing note")
	assert.Equal(t, []string{"Recharge is high.", "Extraction rose!", "Is it safe?", "trailing note"}, got)
	assert.Equal(t, []string{"Rainfall was 1202.46 mm.", "Next."}, Sentences("Rainfall was 1202.46 mm. Next."))
	assert.Empty(t, Sentences("   "))
}

func TestChunk_ShortDocumentUnchanged(t *testing.T) {
	doc := domain.IndexedDocument{Content: "One. Two.", Origin: "a.txt", Kind: domain.OriginDocument}
	chunks, err := NewSentenceChunker(5, 1).Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, doc, chunks[0])
}

func TestChunk_WindowsWithOverlap(t *testing.T) {
	doc := domain.IndexedDocument{
		Content:  "S1. S2. S3. S4. S5.",
		Origin:   "report.pdf",
		Kind:     domain.OriginDocument,
		Metadata: map[string]string{"year": "2022"},
	}
	chunks, err := NewSentenceChunker(2, 1).Chunk(doc)
	require.NoError(t, err)

	var texts []string
	for _, c := range chunks {
		texts = append(texts, c.Content)
		assert.Equal(t, "report.pdf", c.Origin)
		assert.Equal(t, "2022", c.Metadata["year"])
		assert.Equal(t, "report.pdf", c.Metadata[MetaParent])
	}
	assert.Equal(t, []string{"S1. S2.", "S2. S3.", "S3. S4.", "S4. S5."}, texts)
	assert.Equal(t, "3", chunks[3].Metadata[MetaChunk])
	assert.NotContains(t, doc.Metadata, MetaChunk, "source metadata must not be mutated")
}

func TestChunk_OverlapClamped(t *testing.T) {
	chunks, err := NewSentenceChunker(2, 5).Chunk(domain.IndexedDocument{Content: "A. B. C."})
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestChunk_Empty(t *testing.T) {
	chunks, err := NewSentenceChunker(3, 0).Chunk(domain.IndexedDocument{Content: " "})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
