package nats

import (
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/docrag"
)

func AddEndpoints(group micro.Group, endpoints *docrag.EndpointSet) {
	group.AddEndpoint("add_document", AddDocumentHandler(endpoints.AddDocument))
	group.AddEndpoint("process_document", ProcessDocumentHandler(endpoints.ProcessDocument))
	group.AddEndpoint("list_documents", ListDocumentsHandler(endpoints.ListDocuments))
	group.AddEndpoint("delete_document", DeleteDocumentHandler(endpoints.DeleteDocument))
	group.AddEndpoint("retrieve", RetrieveHandler(endpoints.Retrieve))
}
