package docrag

import (
	"context"
	"errors"

	"github.com/flarexio/docrag/store"
)

func ProxyMiddleware(endpoints *EndpointSet) ServiceMiddleware {
	return func(next Service) Service {
		return &proxyMiddleware{
			endpoints: endpoints,
		}
	}
}

type proxyMiddleware struct {
	endpoints *EndpointSet
}

func (mw *proxyMiddleware) Close() error {
	return errors.New("method not implemented")
}

func (mw *proxyMiddleware) AddDocument(ctx context.Context, req AddDocumentRequest) (*AddDocumentResult, error) {
	resp, err := mw.endpoints.AddDocument(ctx, req)
	if err != nil {
		return nil, err
	}

	result, ok := resp.(*AddDocumentResult)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return result, nil
}

func (mw *proxyMiddleware) ProcessDocument(ctx context.Context, job IngestJob) (int, error) {
	resp, err := mw.endpoints.ProcessDocument(ctx, job)
	if err != nil {
		return 0, err
	}

	result, ok := resp.(ProcessDocumentResponse)
	if !ok {
		return 0, errors.New("invalid response type")
	}

	return result.Chunks, nil
}

func (mw *proxyMiddleware) ListDocuments(ctx context.Context, scope store.Scope) ([]store.Document, error) {
	resp, err := mw.endpoints.ListDocuments(ctx, scope)
	if err != nil {
		return nil, err
	}

	docs, ok := resp.([]store.Document)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return docs, nil
}

func (mw *proxyMiddleware) DeleteDocument(ctx context.Context, id int64) error {
	req := DeleteDocumentRequest{
		DocumentID: id,
	}

	_, err := mw.endpoints.DeleteDocument(ctx, req)
	return err
}

func (mw *proxyMiddleware) Retrieve(ctx context.Context, query string, scope store.Scope, k ...int) ([]Source, error) {
	n := 0
	if len(k) > 0 {
		n = k[0]
	}

	req := RetrieveRequest{
		Query: query,
		Scope: scope,
		K:     n,
	}

	resp, err := mw.endpoints.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	sources, ok := resp.([]Source)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return sources, nil
}
