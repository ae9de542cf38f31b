package docrag

import (
	"context"
	"errors"

	"github.com/go-kit/kit/endpoint"

	"github.com/flarexio/docrag/store"
)

type EndpointSet struct {
	AddDocument     endpoint.Endpoint
	ProcessDocument endpoint.Endpoint
	ListDocuments   endpoint.Endpoint
	DeleteDocument  endpoint.Endpoint
	Retrieve        endpoint.Endpoint
}

func MakeEndpointSet(svc Service) *EndpointSet {
	return &EndpointSet{
		AddDocument:     AddDocumentEndpoint(svc),
		ProcessDocument: ProcessDocumentEndpoint(svc),
		ListDocuments:   ListDocumentsEndpoint(svc),
		DeleteDocument:  DeleteDocumentEndpoint(svc),
		Retrieve:        RetrieveEndpoint(svc),
	}
}

func AddDocumentEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(AddDocumentRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.AddDocument(ctx, req)
	}
}

type ProcessDocumentResponse struct {
	Chunks int `json:"chunks"`
}

func ProcessDocumentEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		job, ok := request.(IngestJob)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		n, err := svc.ProcessDocument(ctx, job)
		if err != nil {
			return nil, err
		}

		return ProcessDocumentResponse{n}, nil
	}
}

type ListDocumentsRequest = store.Scope

func ListDocumentsEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		scope, ok := request.(ListDocumentsRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.ListDocuments(ctx, scope)
	}
}

type DeleteDocumentRequest struct {
	DocumentID int64 `json:"document_id"`
}

func DeleteDocumentEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(DeleteDocumentRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		err := svc.DeleteDocument(ctx, req.DocumentID)
		return nil, err
	}
}

type RetrieveRequest struct {
	Query string      `json:"query"`
	Scope store.Scope `json:"scope"`
	K     int         `json:"k,omitempty"`
}

func RetrieveEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(RetrieveRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.Retrieve(ctx, req.Query, req.Scope, req.K)
	}
}
