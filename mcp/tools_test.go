package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/suite"

	"github.com/flarexio/docrag"
	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/persistence/memory"
	"github.com/flarexio/docrag/store"
)

type toolsTestSuite struct {
	suite.Suite
	svc       docrag.Service
	endpoints map[mcp.MCPMethod]MCPEndpoint
}

func (suite *toolsTestSuite) SetupTest() {
	cfg := docrag.DefaultConfig()
	cfg.Store.Driver = store.DriverMemory

	provider := embedding.NewProvider(embedding.Options{
		Name:       "hash",
		Dimensions: cfg.Embedding.Dimensions,
	}, embedding.HashLoader(cfg.Embedding.Dimensions))

	suite.svc = docrag.NewService(cfg, memory.NewStore(), provider, nil)
	suite.endpoints = MakeEndpoints(suite.svc)
}

func (suite *toolsTestSuite) TearDownTest() {
	suite.svc.Close()
}

func (suite *toolsTestSuite) call(name string, arguments map[string]any) *mcp.CallToolResult {
	params, err := json.Marshal(map[string]any{
		"name":      name,
		"arguments": arguments,
	})
	suite.Require().NoError(err)

	req := JSONRPCRequest{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      mcp.NewRequestId(int64(1)),
		Method:  mcp.MethodToolsCall,
		Params:  params,
	}

	msg := suite.endpoints[mcp.MethodToolsCall](context.Background(), req)

	resp, ok := msg.(mcp.JSONRPCResponse)
	suite.Require().True(ok, "unexpected message %#v", msg)

	result, ok := resp.Result.(*mcp.CallToolResult)
	suite.Require().True(ok)
	return result
}

func text(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}

	content, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}

	return content.Text
}

func (suite *toolsTestSuite) TestIngestListRetrieveDelete() {
	result := suite.call(ToolListDocuments, map[string]any{"scope_id": 3})
	suite.Equal("No documents found in this chat.", text(result))

	result = suite.call(ToolIngestDocument, map[string]any{
		"document_name": "handbook.txt",
		"text":          "Refunds are issued within fourteen days of purchase.",
		"scope_id":      3,
	})
	suite.False(result.IsError)
	suite.Equal("Document 'handbook.txt' ingested successfully. Document ID: 1", text(result))

	result = suite.call(ToolIngestDocument, map[string]any{
		"document_name": "handbook.txt",
		"text":          "Refunds are issued within fourteen days of purchase.",
		"scope_id":      3,
	})
	suite.Equal("Document 'handbook.txt' already exists. Document ID: 1", text(result))

	result = suite.call(ToolListDocuments, map[string]any{"scope_id": 3})
	suite.Equal("Documents:\nID: 1 - handbook.txt", text(result))

	result = suite.call(ToolRetrieveRelevantChunks, map[string]any{
		"query":    "when are refunds issued",
		"scope_id": 3,
		"k":        2,
	})
	suite.Equal("Source 1 (handbook.txt):\nRefunds are issued within fourteen days of purchase.", text(result))

	result = suite.call(ToolRetrieveRelevantChunks, map[string]any{
		"query":      "when are refunds issued",
		"scope_kind": "workflow",
		"scope_id":   3,
	})
	suite.Equal("No relevant documents found.", text(result))

	result = suite.call(ToolDeleteDocument, map[string]any{"doc_id": 1})
	suite.False(result.IsError)

	result = suite.call(ToolDeleteDocument, map[string]any{"doc_id": 1})
	suite.True(result.IsError)
}

func (suite *toolsTestSuite) TestRetrieveEmptyQueryIsToolError() {
	result := suite.call(ToolRetrieveRelevantChunks, map[string]any{
		"query":    "   ",
		"scope_id": 3,
	})

	suite.True(result.IsError)
	suite.Contains(text(result), "Error retrieving documents")
}

func (suite *toolsTestSuite) TestUnknownTool() {
	req := JSONRPCRequest{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      mcp.NewRequestId(int64(9)),
		Method:  mcp.MethodToolsCall,
		Params:  json.RawMessage(`{"name": "get_weather", "arguments": {}}`),
	}

	msg := suite.endpoints[mcp.MethodToolsCall](context.Background(), req)

	resp, ok := msg.(mcp.JSONRPCError)
	suite.Require().True(ok)
	suite.Equal(mcp.METHOD_NOT_FOUND, resp.Error.Code)
}

func (suite *toolsTestSuite) TestListTools() {
	req := JSONRPCRequest{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      mcp.NewRequestId(int64(2)),
		Method:  mcp.MethodToolsList,
	}

	msg := suite.endpoints[mcp.MethodToolsList](context.Background(), req)

	resp, ok := msg.(mcp.JSONRPCResponse)
	suite.Require().True(ok)

	result, ok := resp.Result.(*mcp.ListToolsResult)
	suite.Require().True(ok)

	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}

	suite.ElementsMatch([]string{
		ToolRetrieveRelevantChunks,
		ToolIngestDocument,
		ToolListDocuments,
		ToolDeleteDocument,
	}, names)
}

func TestToolsTestSuite(t *testing.T) {
	suite.Run(t, new(toolsTestSuite))
}
