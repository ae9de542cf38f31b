package docrag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/flarexio/docrag/chunker"
	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/store"
)

// Service defines the document retrieval core of DocRAG.
type Service interface {

	// Close releases the chunk store.
	Close() error

	// AddDocument registers a document in a scope and schedules its ingestion.
	// A document with the same name in the same scope is returned as is.
	AddDocument(ctx context.Context, req AddDocumentRequest) (*AddDocumentResult, error)

	// ProcessDocument chunks, embeds and stores a registered document,
	// returning the number of chunks written.
	ProcessDocument(ctx context.Context, job IngestJob) (int, error)

	// ListDocuments returns the documents of a scope.
	ListDocuments(ctx context.Context, scope store.Scope) ([]store.Document, error)

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, id int64) error

	// Retrieve returns the chunks of a scope closest to the query, best first.
	Retrieve(ctx context.Context, query string, scope store.Scope, k ...int) ([]Source, error)
}

type ServiceMiddleware func(Service) Service

// NewService wires the core. A nil dispatcher makes AddDocument ingest inline.
func NewService(cfg Config, st store.Store, provider embedding.Provider, dispatcher Dispatcher) Service {
	log := zap.L().With(
		zap.String("service", "docrag"),
	)

	splitters := chunker.NewCache(cfg.Chunking.Separators...)
	splitters.Preload(cfg.Chunking.MaxChunkSize, cfg.Chunking.Overlap)

	return &service{
		cfg:        cfg,
		store:      st,
		provider:   provider,
		splitters:  splitters,
		dispatcher: dispatcher,
		log:        log,
	}
}

type service struct {
	cfg        Config
	store      store.Store
	provider   embedding.Provider
	splitters  *chunker.Cache
	dispatcher Dispatcher

	log *zap.Logger
}

func (svc *service) Close() error {
	return errors.Join(svc.provider.Close(), svc.store.Close())
}

// joinPages concatenates pages and records where each one starts.
func joinPages(pages []string) (string, []int) {
	var sb strings.Builder

	starts := make([]int, len(pages))
	for i, page := range pages {
		starts[i] = sb.Len()
		sb.WriteString(page)
	}

	return sb.String(), starts
}

func (svc *service) AddDocument(ctx context.Context, req AddDocumentRequest) (*AddDocumentResult, error) {
	if err := req.Scope.Validate(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidDocumentName
	}

	doc := store.Document{
		Name:  name,
		Scope: req.Scope,
		Text:  req.Text,
	}

	if len(req.Pages) > 0 {
		doc.Text, doc.PageStarts = joinPages(req.Pages)
	}

	if strings.TrimSpace(doc.Text) == "" {
		return nil, ErrEmptyDocument
	}

	doc, existed, err := svc.store.AddDocument(ctx, doc)
	if err != nil {
		return nil, err
	}

	doc.Text = ""
	doc.PageStarts = nil

	result := &AddDocumentResult{
		Document: doc,
		Existing: existed,
	}

	if existed {
		return result, nil
	}

	job := IngestJob{
		DocumentID:   doc.ID,
		MaxChunkSize: req.MaxChunkSize,
		Fast:         req.Fast,
	}

	if svc.dispatcher == nil {
		n, err := svc.ProcessDocument(ctx, job)
		if err != nil {
			svc.discard(ctx, doc.ID, err)
			return nil, err
		}

		result.Chunks = n
		return result, nil
	}

	if err := svc.dispatcher.Dispatch(ctx, job); err != nil {
		svc.discard(ctx, doc.ID, err)
		return nil, fmt.Errorf("dispatching document %d: %w", doc.ID, err)
	}

	result.Dispatched = true
	return result, nil
}

// discard removes a document whose ingestion failed, so that adding it again
// ingests it instead of returning a document without chunks.
func (svc *service) discard(ctx context.Context, id int64, cause error) {
	log := svc.log.With(
		zap.String("action", "discard_document"),
		zap.Int64("document_id", id),
		zap.NamedError("cause", cause),
	)

	if err := svc.store.DeleteDocument(context.WithoutCancel(ctx), id); err != nil {
		log.Error(err.Error())
		return
	}

	log.Warn("document removed after failed ingestion")
}

// IngestHandler processes dispatched jobs. A job that fails removes its
// document, like a failed inline ingestion does.
func IngestHandler(svc Service) JobHandler {
	return func(ctx context.Context, job IngestJob) error {
		if _, err := svc.ProcessDocument(ctx, job); err != nil {
			if derr := svc.DeleteDocument(context.WithoutCancel(ctx), job.DocumentID); derr != nil && !errors.Is(derr, ErrDocumentNotFound) {
				return errors.Join(err, derr)
			}

			return err
		}

		return nil
	}
}

func (svc *service) ProcessDocument(ctx context.Context, job IngestJob) (int, error) {
	log := svc.log.With(
		zap.String("action", "process_document"),
		zap.Int64("document_id", job.DocumentID),
	)

	doc, err := svc.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		return 0, err
	}

	size := job.MaxChunkSize
	if size <= 0 {
		size = svc.cfg.Chunking.MaxChunkSize
	}

	splitter := svc.splitters.Get(size, svc.cfg.Chunking.Overlap)

	var chunks []Chunk
	if len(doc.PageStarts) > 0 {
		for _, p := range splitter.SplitPages(doc.Pages()) {
			page := p.Page
			chunks = append(chunks, Chunk{
				Text:       p.Text,
				StartIndex: p.DocStart,
				EndIndex:   p.DocEnd,
				PageNumber: &page,
			})
		}
	} else {
		for _, p := range splitter.Split(doc.Text) {
			chunks = append(chunks, Chunk{
				Text:       p.Text,
				StartIndex: p.Start,
				EndIndex:   p.End,
			})
		}
	}

	if len(chunks) == 0 {
		log.Warn("document produced no chunks")
		return 0, nil
	}

	batchSize := svc.cfg.Ingestion.BatchSize
	if job.Fast {
		batchSize = svc.cfg.Ingestion.FastBatchSize
	}

	records, err := EmbedAndPackage(ctx, svc.provider, chunks, doc.ID, batchSize)
	if err != nil {
		return 0, err
	}

	if err := svc.store.InsertChunks(ctx, records); err != nil {
		return 0, err
	}

	log.Debug("chunks stored",
		zap.Int("chunks", len(records)),
		zap.Int("max_chunk_size", size),
		zap.Int("batch_size", batchSize),
	)

	return len(records), nil
}

func (svc *service) ListDocuments(ctx context.Context, scope store.Scope) ([]store.Document, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	return svc.store.ListDocuments(ctx, scope)
}

func (svc *service) DeleteDocument(ctx context.Context, id int64) error {
	return svc.store.DeleteDocument(ctx, id)
}
