package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flarexio/docrag/store"
)

const (
	DefaultDatabase = "docrag"

	documentsCollection = "documents"
	chunksCollection    = "chunks"
	countersCollection  = "counters"
)

type documentEntity struct {
	ID         int64     `bson:"_id"`
	Name       string    `bson:"name"`
	ScopeKind  string    `bson:"scope_kind"`
	ScopeID    int64     `bson:"scope_id"`
	Text       string    `bson:"text,omitempty"`
	PageStarts []int     `bson:"page_starts,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
}

func (e documentEntity) document() store.Document {
	return store.Document{
		ID:   e.ID,
		Name: e.Name,
		Scope: store.Scope{
			Kind: store.ScopeKind(e.ScopeKind),
			ID:   e.ScopeID,
		},
		Text:       e.Text,
		PageStarts: e.PageStarts,
		CreatedAt:  e.CreatedAt,
	}
}

type chunkEntity struct {
	DocumentID int64  `bson:"document_id"`
	StartIndex int    `bson:"start_index"`
	EndIndex   int    `bson:"end_index"`
	PageNumber *int   `bson:"page_number,omitempty"`
	Embedding  []byte `bson:"embedding"`
}

// NewStore connects to MongoDB and ensures the collection indexes.
func NewStore(ctx context.Context, cfg store.Config) (store.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	name := cfg.Database
	if name == "" {
		name = DefaultDatabase
	}

	db := client.Database(name)

	s := &mongoStore{
		client:    client,
		documents: db.Collection(documentsCollection),
		chunks:    db.Collection(chunksCollection),
		counters:  db.Collection(countersCollection),
	}

	if err := s.createIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

type mongoStore struct {
	client    *mongo.Client
	documents *mongo.Collection
	chunks    *mongo.Collection
	counters  *mongo.Collection
}

func (s *mongoStore) createIndexes(ctx context.Context) error {
	_, err := s.documents.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "scope_kind", Value: 1},
			{Key: "scope_id", Value: 1},
			{Key: "name", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = s.chunks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "document_id", Value: 1}},
	})
	return err
}

// nextID allocates a sequential document id.
func (s *mongoStore) nextID(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}

	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": documentsCollection},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, err
	}

	return counter.Seq, nil
}

func (s *mongoStore) findByName(ctx context.Context, scope store.Scope, name string) (store.Document, error) {
	var entity documentEntity
	err := s.documents.FindOne(ctx, bson.M{
		"scope_kind": scope.Kind,
		"scope_id":   scope.ID,
		"name":       name,
	}).Decode(&entity)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return store.Document{}, store.ErrDocumentNotFound
		}

		return store.Document{}, err
	}

	return entity.document(), nil
}

func (s *mongoStore) AddDocument(ctx context.Context, doc store.Document) (store.Document, bool, error) {
	existing, err := s.findByName(ctx, doc.Scope, doc.Name)
	if err == nil {
		return existing, true, nil
	}

	if !errors.Is(err, store.ErrDocumentNotFound) {
		return store.Document{}, false, err
	}

	id, err := s.nextID(ctx)
	if err != nil {
		return store.Document{}, false, err
	}

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	doc.ID = id
	doc.CreatedAt = doc.CreatedAt.UTC().Truncate(time.Millisecond)

	_, err = s.documents.InsertOne(ctx, documentEntity{
		ID:         doc.ID,
		Name:       doc.Name,
		ScopeKind:  string(doc.Scope.Kind),
		ScopeID:    doc.Scope.ID,
		Text:       doc.Text,
		PageStarts: doc.PageStarts,
		CreatedAt:  doc.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, err := s.findByName(ctx, doc.Scope, doc.Name)
			return existing, err == nil, err
		}

		return store.Document{}, false, err
	}

	return doc, false, nil
}

func (s *mongoStore) GetDocument(ctx context.Context, id int64) (store.Document, error) {
	var entity documentEntity
	if err := s.documents.FindOne(ctx, bson.M{"_id": id}).Decode(&entity); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return store.Document{}, store.ErrDocumentNotFound
		}

		return store.Document{}, err
	}

	return entity.document(), nil
}

func (s *mongoStore) ListDocuments(ctx context.Context, scope store.Scope) ([]store.Document, error) {
	opts := options.Find().
		SetProjection(bson.M{"text": 0, "page_starts": 0}).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := s.documents.Find(ctx, bson.M{
		"scope_kind": scope.Kind,
		"scope_id":   scope.ID,
	}, opts)
	if err != nil {
		return nil, err
	}

	var entities []documentEntity
	if err := cursor.All(ctx, &entities); err != nil {
		return nil, err
	}

	docs := make([]store.Document, len(entities))
	for i, e := range entities {
		docs[i] = e.document()
	}

	return docs, nil
}

func (s *mongoStore) DeleteDocument(ctx context.Context, id int64) error {
	result, err := s.documents.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}

	if result.DeletedCount == 0 {
		return store.ErrDocumentNotFound
	}

	_, err = s.chunks.DeleteMany(ctx, bson.M{"document_id": id})
	return err
}

func (s *mongoStore) InsertChunks(ctx context.Context, chunks []store.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]any, len(chunks))
	for i, c := range chunks {
		docs[i] = chunkEntity{
			DocumentID: c.DocumentID,
			StartIndex: c.StartIndex,
			EndIndex:   c.EndIndex,
			PageNumber: c.PageNumber,
			Embedding:  c.Embedding,
		}
	}

	_, err := s.chunks.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	return err
}

// FetchChunksForScope does not inline document text; callers load it through
// FetchDocumentText for the documents they need.
func (s *mongoStore) FetchChunksForScope(ctx context.Context, scope store.Scope) ([]store.ChunkRow, error) {
	docs, err := s.ListDocuments(ctx, scope)
	if err != nil {
		return nil, err
	}

	rows := make([]store.ChunkRow, 0)
	if len(docs) == 0 {
		return rows, nil
	}

	names := make(map[int64]string, len(docs))
	ids := make([]int64, len(docs))
	for i, doc := range docs {
		names[doc.ID] = doc.Name
		ids[i] = doc.ID
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "document_id", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.chunks.Find(ctx, bson.M{"document_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var c chunkEntity
		if err := cursor.Decode(&c); err != nil {
			return nil, err
		}

		rows = append(rows, store.ChunkRow{
			ChunkRecord: store.ChunkRecord{
				DocumentID: c.DocumentID,
				StartIndex: c.StartIndex,
				EndIndex:   c.EndIndex,
				PageNumber: c.PageNumber,
				Embedding:  c.Embedding,
			},
			DocumentName: names[c.DocumentID],
		})
	}

	return rows, cursor.Err()
}

func (s *mongoStore) FetchDocumentText(ctx context.Context, id int64) (string, error) {
	var entity documentEntity
	err := s.documents.FindOne(ctx, bson.M{"_id": id},
		options.FindOne().SetProjection(bson.M{"text": 1}),
	).Decode(&entity)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", store.ErrDocumentNotFound
		}

		return "", err
	}

	return entity.Text, nil
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.client.Disconnect(ctx)
}
