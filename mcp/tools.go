package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flarexio/docrag"
	"github.com/flarexio/docrag/store"
)

const (
	ToolRetrieveRelevantChunks = "retrieve_relevant_chunks"
	ToolIngestDocument         = "ingest_document"
	ToolListDocuments          = "list_documents"
	ToolDeleteDocument         = "delete_document"
)

// DefaultToolK is the number of chunks retrieve_relevant_chunks returns when
// k is omitted.
const DefaultToolK = 2

func scopeOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("scope_kind",
			mcp.Description("Scope the documents belong to"),
			mcp.Enum(string(store.ScopeChat), string(store.ScopeWorkflow)),
			mcp.DefaultString(string(store.ScopeChat)),
		),
		mcp.WithNumber("scope_id",
			mcp.Description("Chat or workflow ID"),
			mcp.Required(),
		),
	}
}

// Tools describes the tools served over MCP.
func Tools() []mcp.Tool {
	retrieve := append([]mcp.ToolOption{
		mcp.WithDescription("Retrieve relevant document chunks based on a given user query"),
		mcp.WithString("query",
			mcp.Description("Question or search text"),
			mcp.Required(),
		),
		mcp.WithNumber("k",
			mcp.Description("Number of chunks to return"),
			mcp.DefaultNumber(DefaultToolK),
		),
	}, scopeOptions()...)

	ingest := append([]mcp.ToolOption{
		mcp.WithDescription("Ingest a document and create embeddings"),
		mcp.WithString("document_name",
			mcp.Description("Document name, unique within the scope"),
			mcp.Required(),
		),
		mcp.WithString("text",
			mcp.Description("Full document text"),
		),
		mcp.WithArray("pages",
			mcp.Description("Document text split into pages, used instead of text"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithNumber("chunk_size",
			mcp.Description("Maximum chunk size in characters"),
		),
	}, scopeOptions()...)

	list := append([]mcp.ToolOption{
		mcp.WithDescription("List all documents in a chat or workflow"),
	}, scopeOptions()...)

	return []mcp.Tool{
		mcp.NewTool(ToolRetrieveRelevantChunks, retrieve...),
		mcp.NewTool(ToolIngestDocument, ingest...),
		mcp.NewTool(ToolListDocuments, list...),
		mcp.NewTool(ToolDeleteDocument,
			mcp.WithDescription("Delete a document and its chunks"),
			mcp.WithNumber("doc_id",
				mcp.Description("Document ID"),
				mcp.Required(),
			),
		),
	}
}

type toolHandler func(ctx context.Context, svc docrag.Service, arguments any) (*mcp.CallToolResult, error)

var toolHandlers = map[string]toolHandler{
	ToolRetrieveRelevantChunks: retrieveRelevantChunks,
	ToolIngestDocument:         ingestDocument,
	ToolListDocuments:          listDocuments,
	ToolDeleteDocument:         deleteDocument,
}

func bindArguments(arguments any, v any) error {
	bs, err := json.Marshal(arguments)
	if err != nil {
		return err
	}

	return json.Unmarshal(bs, v)
}

type scopeArgs struct {
	ScopeKind string `json:"scope_kind"`
	ScopeID   int64  `json:"scope_id"`
}

func (args scopeArgs) scope() (store.Scope, error) {
	kind := args.ScopeKind
	if kind == "" {
		kind = string(store.ScopeChat)
	}

	k, err := store.ParseScopeKind(kind)
	if err != nil {
		return store.Scope{}, err
	}

	return store.Scope{Kind: k, ID: args.ScopeID}, nil
}

// FormatSources renders sources as numbered blocks separated by rules.
func FormatSources(sources []docrag.Source) string {
	if len(sources) == 0 {
		return "No relevant documents found."
	}

	blocks := make([]string, len(sources))
	for i, s := range sources {
		blocks[i] = fmt.Sprintf("Source %d (%s):\n%s", i+1, s.DocumentName, s.Text)
	}

	return strings.Join(blocks, "\n\n---\n\n")
}

func retrieveRelevantChunks(ctx context.Context, svc docrag.Service, arguments any) (*mcp.CallToolResult, error) {
	var args struct {
		scopeArgs
		Query string `json:"query"`
		K     int    `json:"k"`
	}

	if err := bindArguments(arguments, &args); err != nil {
		return nil, err
	}

	scope, err := args.scope()
	if err != nil {
		return nil, err
	}

	if args.K <= 0 {
		args.K = DefaultToolK
	}

	sources, err := svc.Retrieve(ctx, args.Query, scope, args.K)
	if err != nil {
		return mcp.NewToolResultError("Error retrieving documents: " + err.Error()), nil
	}

	return mcp.NewToolResultText(FormatSources(sources)), nil
}

func ingestDocument(ctx context.Context, svc docrag.Service, arguments any) (*mcp.CallToolResult, error) {
	var args struct {
		scopeArgs
		DocumentName string   `json:"document_name"`
		Text         string   `json:"text"`
		Pages        []string `json:"pages"`
		ChunkSize    int      `json:"chunk_size"`
	}

	if err := bindArguments(arguments, &args); err != nil {
		return nil, err
	}

	scope, err := args.scope()
	if err != nil {
		return nil, err
	}

	if args.Text == "" && len(args.Pages) == 0 {
		return nil, errors.New("text or pages is required")
	}

	result, err := svc.AddDocument(ctx, docrag.AddDocumentRequest{
		Scope:        scope,
		Name:         args.DocumentName,
		Text:         args.Text,
		Pages:        args.Pages,
		MaxChunkSize: args.ChunkSize,
	})
	if err != nil {
		return mcp.NewToolResultError("Error ingesting document: " + err.Error()), nil
	}

	msg := fmt.Sprintf("Document '%s' ingested successfully. Document ID: %d", result.Document.Name, result.Document.ID)
	if result.Existing {
		msg = fmt.Sprintf("Document '%s' already exists. Document ID: %d", result.Document.Name, result.Document.ID)
	}

	return mcp.NewToolResultText(msg), nil
}

func listDocuments(ctx context.Context, svc docrag.Service, arguments any) (*mcp.CallToolResult, error) {
	var args scopeArgs
	if err := bindArguments(arguments, &args); err != nil {
		return nil, err
	}

	scope, err := args.scope()
	if err != nil {
		return nil, err
	}

	docs, err := svc.ListDocuments(ctx, scope)
	if err != nil {
		return mcp.NewToolResultError("Error listing documents: " + err.Error()), nil
	}

	if len(docs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No documents found in this %s.", scope.Kind)), nil
	}

	lines := make([]string, len(docs))
	for i, doc := range docs {
		lines[i] = fmt.Sprintf("ID: %d - %s", doc.ID, doc.Name)
	}

	return mcp.NewToolResultText("Documents:\n" + strings.Join(lines, "\n")), nil
}

func deleteDocument(ctx context.Context, svc docrag.Service, arguments any) (*mcp.CallToolResult, error) {
	var args struct {
		DocID int64 `json:"doc_id"`
	}

	if err := bindArguments(arguments, &args); err != nil {
		return nil, err
	}

	if err := svc.DeleteDocument(ctx, args.DocID); err != nil {
		return mcp.NewToolResultError("Error deleting document: " + err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Document %d deleted.", args.DocID)), nil
}
