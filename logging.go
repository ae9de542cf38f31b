package docrag

import (
	"context"

	"go.uber.org/zap"

	"github.com/flarexio/docrag/store"
)

func LoggingMiddleware(log *zap.Logger) ServiceMiddleware {
	log = log.With(
		zap.String("service", "docrag"),
	)

	return func(next Service) Service {
		log.Info("service initialized")

		return &loggingMiddleware{
			log:  log,
			next: next,
		}
	}
}

type loggingMiddleware struct {
	log  *zap.Logger
	next Service
}

func (mw *loggingMiddleware) Close() error {
	log := mw.log.With(
		zap.String("action", "close"),
	)

	err := mw.next.Close()
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("service closed")
	return nil
}

func (mw *loggingMiddleware) AddDocument(ctx context.Context, req AddDocumentRequest) (*AddDocumentResult, error) {
	log := mw.log.With(
		zap.String("action", "add_document"),
		zap.Stringer("scope", req.Scope),
		zap.String("name", req.Name),
	)

	if len(req.Pages) > 0 {
		log = log.With(
			zap.Int("pages", len(req.Pages)),
		)
	}

	result, err := mw.next.AddDocument(ctx, req)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log = log.With(
		zap.Int64("document_id", result.Document.ID),
	)

	switch {
	case result.Existing:
		log.Info("document already exists")
	case result.Dispatched:
		log.Info("document added, ingestion dispatched")
	default:
		log.Info("document added", zap.Int("chunks", result.Chunks))
	}

	return result, nil
}

func (mw *loggingMiddleware) ProcessDocument(ctx context.Context, job IngestJob) (int, error) {
	log := mw.log.With(
		zap.String("action", "process_document"),
		zap.Int64("document_id", job.DocumentID),
		zap.Bool("fast", job.Fast),
	)

	n, err := mw.next.ProcessDocument(ctx, job)
	if err != nil {
		log.Error(err.Error())
		return 0, err
	}

	log.Info("document processed", zap.Int("chunks", n))
	return n, nil
}

func (mw *loggingMiddleware) ListDocuments(ctx context.Context, scope store.Scope) ([]store.Document, error) {
	log := mw.log.With(
		zap.String("action", "list_documents"),
		zap.Stringer("scope", scope),
	)

	docs, err := mw.next.ListDocuments(ctx, scope)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("documents listed", zap.Int("count", len(docs)))
	return docs, nil
}

func (mw *loggingMiddleware) DeleteDocument(ctx context.Context, id int64) error {
	log := mw.log.With(
		zap.String("action", "delete_document"),
		zap.Int64("document_id", id),
	)

	err := mw.next.DeleteDocument(ctx, id)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("document deleted")
	return nil
}

func (mw *loggingMiddleware) Retrieve(ctx context.Context, query string, scope store.Scope, k ...int) ([]Source, error) {
	var n int
	if len(k) > 0 {
		n = k[0]
	}

	log := mw.log.With(
		zap.String("action", "retrieve"),
		zap.Stringer("scope", scope),
		zap.String("query", query),
	)

	if n > 0 {
		log = log.With(
			zap.Int("k", n),
		)
	}

	sources, err := mw.next.Retrieve(ctx, query, scope, k...)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("chunks retrieved", zap.Int("count", len(sources)))
	return sources, nil
}
