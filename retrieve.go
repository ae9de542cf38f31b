package docrag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/flarexio/docrag/store"
	"github.com/flarexio/docrag/vector"
)

func (svc *service) Retrieve(ctx context.Context, query string, scope store.Scope, k ...int) ([]Source, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	n := svc.cfg.Retrieval.DefaultK
	if len(k) > 0 && k[0] > 0 {
		n = k[0]
	}

	if maxK := svc.cfg.Retrieval.MaxK; maxK > 0 && n > maxK {
		n = maxK
	}

	log := svc.log.With(
		zap.String("action", "retrieve"),
		zap.Stringer("scope", scope),
	)

	rows, err := svc.store.FetchChunksForScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("fetching chunks: %w", err)
	}

	sources := make([]Source, 0)
	if len(rows) == 0 {
		return sources, nil
	}

	dim := svc.provider.Dimensions()

	valid := make([]store.ChunkRow, 0, len(rows))
	candidates := make([]vector.Vector, 0, len(rows))
	for _, row := range rows {
		v, err := vector.DecodeDim(row.Embedding, dim)
		if err != nil {
			log.Warn("skipping malformed chunk",
				zap.Int64("document_id", row.DocumentID),
				zap.Int("start_index", row.StartIndex),
				zap.Int("blob_bytes", len(row.Embedding)),
				zap.Error(err),
			)

			continue
		}

		valid = append(valid, row)
		candidates = append(candidates, v)
	}

	if len(candidates) == 0 {
		return sources, nil
	}

	q, err := svc.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	neighbors, err := vector.Rank(q, candidates)
	if err != nil {
		return nil, err
	}

	texts := make(map[int64]string)
	for _, nb := range neighbors {
		if len(sources) == n {
			break
		}

		row := valid[nb.Index]

		text, err := svc.documentText(ctx, row, texts)
		if err != nil {
			log.Warn("skipping chunk without document text",
				zap.Int64("document_id", row.DocumentID),
				zap.Error(err),
			)

			continue
		}

		if row.StartIndex < 0 || row.StartIndex >= row.EndIndex || row.EndIndex > len(text) {
			log.Warn("skipping chunk with out of range offsets",
				zap.Int64("document_id", row.DocumentID),
				zap.Int("start_index", row.StartIndex),
				zap.Int("end_index", row.EndIndex),
				zap.Int("text_length", len(text)),
			)

			continue
		}

		sources = append(sources, Source{
			Text:         text[row.StartIndex:row.EndIndex],
			DocumentName: row.DocumentName,
			DocumentID:   row.DocumentID,
			PageNumber:   row.PageNumber,
			Distance:     nb.Distance,
		})
	}

	return sources, nil
}

// documentText returns the inline text of row or loads it once per call.
func (svc *service) documentText(ctx context.Context, row store.ChunkRow, cache map[int64]string) (string, error) {
	if row.DocumentText != "" {
		return row.DocumentText, nil
	}

	if text, ok := cache[row.DocumentID]; ok {
		return text, nil
	}

	text, err := svc.store.FetchDocumentText(ctx, row.DocumentID)
	if err != nil {
		return "", err
	}

	cache[row.DocumentID] = text
	return text, nil
}
