package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/flarexio/docrag/store"
)

func NewStore() store.Store {
	return &memoryStore{
		documents: make(map[int64]store.Document),
		chunks:    make(map[int64][]store.ChunkRecord),
	}
}

type memoryStore struct {
	documents map[int64]store.Document
	chunks    map[int64][]store.ChunkRecord
	nextID    int64
	sync.RWMutex
}

func (s *memoryStore) AddDocument(ctx context.Context, doc store.Document) (store.Document, bool, error) {
	s.Lock()
	defer s.Unlock()

	for _, existing := range s.documents {
		if existing.Scope == doc.Scope && existing.Name == doc.Name {
			return existing, true, nil
		}
	}

	s.nextID++

	doc.ID = s.nextID
	doc.PageStarts = slices.Clone(doc.PageStarts)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	s.documents[doc.ID] = doc
	return doc, false, nil
}

func (s *memoryStore) GetDocument(ctx context.Context, id int64) (store.Document, error) {
	s.RLock()
	defer s.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return store.Document{}, store.ErrDocumentNotFound
	}

	return doc, nil
}

func (s *memoryStore) ListDocuments(ctx context.Context, scope store.Scope) ([]store.Document, error) {
	s.RLock()
	defer s.RUnlock()

	docs := make([]store.Document, 0)
	for _, doc := range s.documents {
		if doc.Scope != scope {
			continue
		}

		doc.Text = ""
		doc.PageStarts = nil
		docs = append(docs, doc)
	}

	slices.SortFunc(docs, func(a, b store.Document) int {
		return int(a.ID - b.ID)
	})

	return docs, nil
}

func (s *memoryStore) DeleteDocument(ctx context.Context, id int64) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.documents[id]; !ok {
		return store.ErrDocumentNotFound
	}

	delete(s.documents, id)
	delete(s.chunks, id)
	return nil
}

func (s *memoryStore) InsertChunks(ctx context.Context, chunks []store.ChunkRecord) error {
	s.Lock()
	defer s.Unlock()

	for _, c := range chunks {
		if _, ok := s.documents[c.DocumentID]; !ok {
			return store.ErrDocumentNotFound
		}
	}

	for _, c := range chunks {
		c.Embedding = slices.Clone(c.Embedding)
		s.chunks[c.DocumentID] = append(s.chunks[c.DocumentID], c)
	}

	return nil
}

// FetchChunksForScope returns rows ordered by document id, then insertion
// order.
func (s *memoryStore) FetchChunksForScope(ctx context.Context, scope store.Scope) ([]store.ChunkRow, error) {
	s.RLock()
	defer s.RUnlock()

	ids := make([]int64, 0)
	for id, doc := range s.documents {
		if doc.Scope == scope {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)

	rows := make([]store.ChunkRow, 0)
	for _, id := range ids {
		doc := s.documents[id]
		for _, c := range s.chunks[id] {
			rows = append(rows, store.ChunkRow{
				ChunkRecord:  c,
				DocumentName: doc.Name,
				DocumentText: doc.Text,
			})
		}
	}

	return rows, nil
}

func (s *memoryStore) FetchDocumentText(ctx context.Context, id int64) (string, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return "", err
	}

	return doc.Text, nil
}

func (s *memoryStore) Close() error {
	return nil
}
