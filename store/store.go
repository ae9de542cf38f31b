package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidScope     = errors.New("invalid scope")
	ErrUnknownDriver    = errors.New("unknown store driver")
)

type ScopeKind string

const (
	ScopeChat     ScopeKind = "chat"
	ScopeWorkflow ScopeKind = "workflow"
)

func ParseScopeKind(s string) (ScopeKind, error) {
	switch ScopeKind(s) {
	case ScopeChat, ScopeWorkflow:
		return ScopeKind(s), nil
	default:
		return "", fmt.Errorf("%w: kind %q", ErrInvalidScope, s)
	}
}

// Scope is the retrieval isolation unit. A document belongs to exactly one
// chat or one workflow.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   int64     `json:"id"`
}

func ChatScope(id int64) Scope {
	return Scope{ScopeChat, id}
}

func WorkflowScope(id int64) Scope {
	return Scope{ScopeWorkflow, id}
}

// Validate rejects unknown kinds and non-positive ids. Id 0 is the guest chat,
// which is never persisted.
func (s Scope) Validate() error {
	if _, err := ParseScopeKind(string(s.Kind)); err != nil {
		return err
	}

	if s.ID <= 0 {
		return fmt.Errorf("%w: %s id %d", ErrInvalidScope, s.Kind, s.ID)
	}

	return nil
}

func (s Scope) String() string {
	return string(s.Kind) + ":" + strconv.FormatInt(s.ID, 10)
}

type Document struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Scope Scope  `json:"scope"`
	Text  string `json:"text,omitempty"`

	// PageStarts holds the byte offset in Text where each page begins. Empty
	// for documents ingested as a single text.
	PageStarts []int     `json:"page_starts,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Pages splits Text back into the pages it was built from.
func (d Document) Pages() []string {
	if len(d.PageStarts) == 0 {
		return []string{d.Text}
	}

	pages := make([]string, len(d.PageStarts))
	for i, start := range d.PageStarts {
		end := len(d.Text)
		if i+1 < len(d.PageStarts) {
			end = d.PageStarts[i+1]
		}

		pages[i] = d.Text[start:end]
	}

	return pages
}

// ChunkRecord is a chunk as written during ingestion. Offsets index the
// owning document's Text.
type ChunkRecord struct {
	DocumentID int64  `json:"document_id" db:"document_id"`
	StartIndex int    `json:"start_index" db:"start_index"`
	EndIndex   int    `json:"end_index" db:"end_index"`
	PageNumber *int   `json:"page_number,omitempty" db:"page_number"`
	Embedding  []byte `json:"-" db:"embedding"`
}

// ChunkRow is a chunk as read for retrieval. DocumentText is empty when the
// backend does not inline it; callers then use FetchDocumentText.
type ChunkRow struct {
	ChunkRecord

	DocumentName string `db:"document_name"`
	DocumentText string `db:"document_text"`
}

type Store interface {

	// AddDocument stores doc unless a document with the same name exists in
	// the same scope, in which case the existing one is returned with true.
	AddDocument(ctx context.Context, doc Document) (Document, bool, error)

	GetDocument(ctx context.Context, id int64) (Document, error)

	// ListDocuments returns the documents of a scope without their text.
	ListDocuments(ctx context.Context, scope Scope) ([]Document, error)

	// DeleteDocument removes a document and all of its chunks.
	DeleteDocument(ctx context.Context, id int64) error

	InsertChunks(ctx context.Context, chunks []ChunkRecord) error

	FetchChunksForScope(ctx context.Context, scope Scope) ([]ChunkRow, error)

	FetchDocumentText(ctx context.Context, id int64) (string, error)

	Close() error
}

type Driver string

const (
	DriverSQLite Driver = "sqlite"
	DriverMongo  Driver = "mongo"
	DriverMemory Driver = "memory"
)

type Config struct {
	Driver   Driver `yaml:"driver"`
	Path     string `yaml:"path"`
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

func (cfg Config) Validate() error {
	switch cfg.Driver {
	case DriverSQLite, DriverMemory:
		return nil
	case DriverMongo:
		if cfg.URI == "" {
			return errors.New("mongo store requires uri")
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
