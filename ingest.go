package docrag

import (
	"context"
	"errors"
	"fmt"

	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/store"
	"github.com/flarexio/docrag/vector"
)

// Chunk is a piece of a document ready for embedding. Offsets index the
// document text.
type Chunk struct {
	Text       string
	StartIndex int
	EndIndex   int
	PageNumber *int
}

// EmbedAndPackage embeds every chunk in batches and encodes the vectors for
// storage. Any failure, including a single vector of the wrong width, fails
// the whole run and returns no records.
func EmbedAndPackage(ctx context.Context, provider embedding.Provider, chunks []Chunk, documentID int64, batchSize int) ([]store.ChunkRecord, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no chunks to embed")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := provider.EmbedPassages(ctx, texts, batchSize)
	if err != nil {
		return nil, fmt.Errorf("embedding document %d: %w", documentID, err)
	}

	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", embedding.ErrCountMismatch, len(chunks), len(vectors))
	}

	dim := provider.Dimensions()

	records := make([]store.ChunkRecord, len(chunks))
	for i, c := range chunks {
		v := vectors[i]
		if v.Dim() != dim {
			return nil, &embedding.DimensionMismatchError{Expected: dim, Got: v.Dim()}
		}

		records[i] = store.ChunkRecord{
			DocumentID: documentID,
			StartIndex: c.StartIndex,
			EndIndex:   c.EndIndex,
			PageNumber: c.PageNumber,
			Embedding:  vector.Encode(v),
		}
	}

	return records, nil
}
