package docrag

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flarexio/docrag/store"
)

var (
	ErrInvalidScope        = store.ErrInvalidScope
	ErrDocumentNotFound    = store.ErrDocumentNotFound
	ErrEmptyQuery          = errors.New("empty query")
	ErrEmptyDocument       = errors.New("empty document")
	ErrInvalidDocumentName = errors.New("invalid document name")
	ErrDispatcherClosed    = errors.New("dispatcher closed")
)

type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	str := d.Duration().String()
	return json.Marshal(str)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration().String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

type AddDocumentRequest struct {
	Scope store.Scope `json:"scope"`
	Name  string      `json:"name"`

	// Text and Pages are alternatives. When Pages is set the document text is
	// the concatenation of the pages and chunks record their page number.
	Text  string   `json:"text,omitempty"`
	Pages []string `json:"pages,omitempty"`

	MaxChunkSize int  `json:"max_chunk_size,omitempty"`
	Fast         bool `json:"fast,omitempty"`
}

type AddDocumentResult struct {
	Document   store.Document `json:"document"`
	Existing   bool           `json:"existing"`
	Dispatched bool           `json:"dispatched"`
	Chunks     int            `json:"chunks"`
}

// IngestJob asks a worker to chunk, embed and store one document.
type IngestJob struct {
	DocumentID   int64 `json:"document_id"`
	MaxChunkSize int   `json:"max_chunk_size,omitempty"`
	Fast         bool  `json:"fast,omitempty"`
}

// Dispatcher submits ingestion jobs without waiting for them to finish.
type Dispatcher interface {
	Dispatch(ctx context.Context, job IngestJob) error
}

type JobHandler func(ctx context.Context, job IngestJob) error

// Source is one retrieval result. Text is sliced from the owning document at
// the chunk's stored offsets.
type Source struct {
	Text         string  `json:"chunk_text"`
	DocumentName string  `json:"document_name"`
	DocumentID   int64   `json:"document_id"`
	PageNumber   *int    `json:"page_number,omitempty"`
	Distance     float64 `json:"distance"`
}
