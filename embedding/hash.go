package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashModel is a deterministic bag-of-words model. Each lowercase token is
// hashed into one of Dimensions buckets with a hash-derived sign. Texts that
// share tokens land close together, which is enough for development and tests.
type HashModel struct {
	Dimensions int
}

func NewHashModel(dimensions int) *HashModel {
	return &HashModel{Dimensions: dimensions}
}

func (m *HashModel) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vectors[i] = m.embed(text)
	}

	return vectors, nil
}

func (m *HashModel) embed(text string) []float64 {
	v := make([]float64, m.Dimensions)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '_'
	})

	for _, token := range tokens {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		idx := int(sum % uint64(m.Dimensions))
		if sum&(1<<63) != 0 {
			v[idx] -= 1
		} else {
			v[idx] += 1
		}
	}

	return v
}

// HashLoader returns a Loader that yields a HashModel.
func HashLoader(dimensions int) Loader {
	return func(ctx context.Context) (Model, error) {
		return NewHashModel(dimensions), nil
	}
}
