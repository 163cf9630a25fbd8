package credentials

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"
)

const embeddingDim = 128

var commonChars = []rune{'a', 'e', 'i', 'o', 'u', ' ', '.', ',', '\n', '_', '-'}

// localEmbedding builds a deterministic character statistics vector. Stored
// documents are only ever fetched by ID, so the vector exists to satisfy the
// collection and never leaves the process.
func localEmbedding(text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	vec := make([]float32, embeddingDim)
	vec[0] = float32(len(text)) / 1000.0

	counts := make(map[rune]int)
	for _, r := range text {
		counts[r]++
	}
	for i, r := range commonChars {
		vec[i+1] = float32(counts[r]) / float32(len(text)+1)
	}

	hash := 0
	for _, r := range text {
		hash = (hash*31 + int(r)) % 1000
	}
	for i := len(commonChars) + 1; i < embeddingDim; i++ {
		hash = (hash*31 + i) % 1000
		vec[i] = float32(hash%100) / 100.0
	}
	return vec, nil
}

// EmbeddingFunc adapts localEmbedding to chromem.
func EmbeddingFunc() chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		return localEmbedding(text)
	}
}
