package nats

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/docrag"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, docrag.ErrDocumentNotFound):
		return "404"

	case errors.Is(err, docrag.ErrInvalidScope),
		errors.Is(err, docrag.ErrEmptyQuery),
		errors.Is(err, docrag.ErrEmptyDocument),
		errors.Is(err, docrag.ErrInvalidDocumentName):
		return "400"

	default:
		return "417"
	}
}

func AddDocumentHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req docrag.AddDocumentRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := context.Background()
		resp, err := endpoint(ctx, req)
		if err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		r.RespondJSON(&resp)
	}
}

func ProcessDocumentHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var job docrag.IngestJob
		if err := json.Unmarshal(r.Data(), &job); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := context.Background()
		resp, err := endpoint(ctx, job)
		if err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		r.RespondJSON(&resp)
	}
}

func ListDocumentsHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var scope docrag.ListDocumentsRequest
		if err := json.Unmarshal(r.Data(), &scope); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := context.Background()
		resp, err := endpoint(ctx, scope)
		if err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		r.RespondJSON(&resp)
	}
}

func DeleteDocumentHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req docrag.DeleteDocumentRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := context.Background()
		if _, err := endpoint(ctx, req); err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		r.Respond([]byte("OK"))
	}
}

func RetrieveHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req docrag.RetrieveRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := context.Background()
		resp, err := endpoint(ctx, req)
		if err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		r.RespondJSON(&resp)
	}
}
