package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/kit/endpoint"

	"github.com/flarexio/docrag"
	"github.com/flarexio/docrag/store"
)

func statusCode(err error) int {
	switch {
	case errors.Is(err, docrag.ErrDocumentNotFound):
		return http.StatusNotFound

	case errors.Is(err, docrag.ErrInvalidScope),
		errors.Is(err, docrag.ErrEmptyQuery),
		errors.Is(err, docrag.ErrEmptyDocument),
		errors.Is(err, docrag.ErrInvalidDocumentName):
		return http.StatusBadRequest

	default:
		return http.StatusExpectationFailed
	}
}

func documentID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("document_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid document id")
	}

	return id, nil
}

func AddDocumentHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req docrag.AddDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			c.Error(err)
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			c.String(statusCode(err), err.Error())
			c.Error(err)
			c.Abort()
			return
		}

		result, ok := resp.(*docrag.AddDocumentResult)
		if ok && !result.Existing {
			c.JSON(http.StatusCreated, result)
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

func ProcessDocumentHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := documentID(c)
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			c.Error(err)
			c.Abort()
			return
		}

		job := docrag.IngestJob{
			DocumentID: id,
		}

		if size := c.Query("max_chunk_size"); size != "" {
			n, err := strconv.Atoi(size)
			if err != nil {
				c.String(http.StatusBadRequest, err.Error())
				c.Error(err)
				c.Abort()
				return
			}

			job.MaxChunkSize = n
		}

		job.Fast = c.Query("fast") == "true"

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, job)
		if err != nil {
			c.String(statusCode(err), err.Error())
			c.Error(err)
			c.Abort()
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

func DeleteDocumentHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := documentID(c)
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			c.Error(err)
			c.Abort()
			return
		}

		req := docrag.DeleteDocumentRequest{
			DocumentID: id,
		}

		ctx := c.Request.Context()
		if _, err := endpoint(ctx, req); err != nil {
			c.String(statusCode(err), err.Error())
			c.Error(err)
			c.Abort()
			return
		}

		c.String(http.StatusOK, "OK")
	}
}

func ListDocumentsHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, err := store.ParseScopeKind(c.Param("kind"))
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			c.Error(err)
			c.Abort()
			return
		}

		id, err := strconv.ParseInt(c.Param("scope_id"), 10, 64)
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			c.Error(err)
			c.Abort()
			return
		}

		scope := docrag.ListDocumentsRequest{
			Kind: kind,
			ID:   id,
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, scope)
		if err != nil {
			c.String(statusCode(err), err.Error())
			c.Error(err)
			c.Abort()
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

func RetrieveHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req docrag.RetrieveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			c.Error(err)
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			c.String(statusCode(err), err.Error())
			c.Error(err)
			c.Abort()
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}
