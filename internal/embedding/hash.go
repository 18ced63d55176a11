package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic bag-of-words embedder. It needs no model
// server and is used when QFORGE_EMBEDDER=none and in tests: texts sharing
// words land close together.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a HashEmbedder with dim buckets.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		f.Write([]byte(w))
		vec[int(f.Sum32())%h.dim]++
	}
	return Normalize(vec), nil
}

func (h *HashEmbedder) Dimension() int { return h.dim }
