package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// localEmbeddingDim keeps the local vectors small; retrieval quality only
// needs to separate page sections, not rival a trained model.
const localEmbeddingDim = 256

// localEmbeddingFunc returns a deterministic bag-of-words embedding used
// when no embedding API is configured. Tokens are hashed into a fixed-size
// vector which is then L2-normalized, so cosine similarity reflects token
// overlap.
func localEmbeddingFunc() func(ctx context.Context, text string) ([]float32, error) {
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, localEmbeddingDim)
		for _, token := range tokenize(text) {
			h := fnv.New32a()
			h.Write([]byte(token))
			vec[h.Sum32()%localEmbeddingDim]++
		}

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm > 0 {
			inv := float32(1 / math.Sqrt(norm))
			for i := range vec {
				vec[i] *= inv
			}
		}
		return vec, nil
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
