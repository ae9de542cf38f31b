package http

import (
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flarexio/docrag"

	mcpE "github.com/flarexio/docrag/mcp"
)

func AddRouters(r *gin.Engine, endpoints *docrag.EndpointSet) {
	api := r.Group("/api")
	{
		api.POST("/documents", AddDocumentHandler(endpoints.AddDocument))
		api.POST("/documents/:document_id/process", ProcessDocumentHandler(endpoints.ProcessDocument))
		api.DELETE("/documents/:document_id", DeleteDocumentHandler(endpoints.DeleteDocument))
		api.GET("/scopes/:kind/:scope_id/documents", ListDocumentsHandler(endpoints.ListDocuments))
		api.POST("/retrieve", RetrieveHandler(endpoints.Retrieve))
	}
}

func AddStreamableRouters(r *gin.Engine, endpoints map[mcp.MCPMethod]mcpE.MCPEndpoint) {
	mcp := r.Group("/mcp")
	{
		mcp.POST("/", MCPStreamableHandler(endpoints))
	}
}
