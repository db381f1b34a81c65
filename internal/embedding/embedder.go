package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"ingres/internal/domain"
)

// Embedder converts free text into a numeric vector representation.
type Embedder = domain.Embedder

// EmbedWithTimeout runs one batch through e, bounded by timeout when positive.
// A missed deadline is reported as domain.ErrTimeout.
func EmbedWithTimeout(ctx context.Context, e Embedder, texts []string, timeout time.Duration) ([][]float64, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	vecs, err := e.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("embed with %s: %w", e.Name(), domain.ErrTimeout)
		}
		return nil, fmt.Errorf("embed with %s: %w", e.Name(), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed with %s: got %d vectors for %d texts", e.Name(), len(vecs), len(texts))
	}
	return vecs, nil
}

// Normalize scales v to unit L2 length in place. Zero vectors are left alone.
func Normalize(v []float64) []float64 {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
	return v
}
