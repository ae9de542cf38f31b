package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/docrag"
	"github.com/flarexio/docrag/store"
)

// IngestTimeout bounds requests that embed a whole document synchronously.
const IngestTimeout = 5 * time.Minute

func MakeEndpoints(nc *nats.Conn, prefix string) *docrag.EndpointSet {
	return &docrag.EndpointSet{
		AddDocument:     AddDocumentEndpoint(nc, prefix+".add_document"),
		ProcessDocument: ProcessDocumentEndpoint(nc, prefix+".process_document"),
		ListDocuments:   ListDocumentsEndpoint(nc, prefix+".list_documents"),
		DeleteDocument:  DeleteDocumentEndpoint(nc, prefix+".delete_document"),
		Retrieve:        RetrieveEndpoint(nc, prefix+".retrieve"),
	}
}

func requestMsg(ctx context.Context, nc *nats.Conn, topic string, req any, timeout time.Duration) (*nats.Msg, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := nc.RequestWithContext(ctx, topic, data)
	if err != nil {
		return nil, err
	}

	if err := Error(resp); err != nil {
		return nil, err
	}

	return resp, nil
}

func AddDocumentEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(docrag.AddDocumentRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := requestMsg(ctx, nc, topic, req, IngestTimeout)
		if err != nil {
			return nil, err
		}

		var result *docrag.AddDocumentResult
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		return result, nil
	}
}

func ProcessDocumentEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		job, ok := request.(docrag.IngestJob)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := requestMsg(ctx, nc, topic, job, IngestTimeout)
		if err != nil {
			return nil, err
		}

		var result docrag.ProcessDocumentResponse
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		return result, nil
	}
}

func ListDocumentsEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		scope, ok := request.(docrag.ListDocumentsRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := requestMsg(ctx, nc, topic, scope, nats.DefaultTimeout)
		if err != nil {
			return nil, err
		}

		var docs []store.Document
		if err := json.Unmarshal(resp.Data, &docs); err != nil {
			return nil, err
		}

		return docs, nil
	}
}

func DeleteDocumentEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(docrag.DeleteDocumentRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := requestMsg(ctx, nc, topic, req, nats.DefaultTimeout)
		if err != nil {
			return nil, err
		}

		return string(resp.Data), nil
	}
}

func RetrieveEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(docrag.RetrieveRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		// the first query may have to load the embedding model
		resp, err := requestMsg(ctx, nc, topic, req, time.Minute)
		if err != nil {
			return nil, err
		}

		sources := make([]docrag.Source, 0)
		if err := json.Unmarshal(resp.Data, &sources); err != nil {
			return nil, err
		}

		return sources, nil
	}
}

// Error converts a micro error reply into an error. Replies without an error
// code yield nil.
func Error(msg *nats.Msg) error {
	if msg == nil {
		return errors.New("nil message")
	}

	code := msg.Header.Get(micro.ErrorCodeHeader)
	if code == "" {
		return nil
	}

	description := msg.Header.Get(micro.ErrorHeader)
	if description == "" {
		description = "unknown error"
	}

	if code == "404" {
		return fmt.Errorf("%w: %s", docrag.ErrDocumentNotFound, description)
	}

	return errors.New(code + ":" + description)
}
