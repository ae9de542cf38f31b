package docrag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/persistence/memory"
	"github.com/flarexio/docrag/store"
	"github.com/flarexio/docrag/vector"
)

type recordingDispatcher struct {
	jobs []IngestJob
	sync.Mutex
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, job IngestJob) error {
	d.Lock()
	defer d.Unlock()

	d.jobs = append(d.jobs, job)
	return nil
}

type failingDispatcher struct{}

func (failingDispatcher) Dispatch(ctx context.Context, job IngestJob) error {
	return ErrDispatcherClosed
}

type failingQueryProvider struct {
	embedding.Provider
}

func (p failingQueryProvider) EmbedQuery(ctx context.Context, text string) (vector.Vector, error) {
	return nil, errors.New("inference backend unavailable")
}

type docragTestSuite struct {
	suite.Suite
	cfg      Config
	store    store.Store
	provider embedding.Provider
	svc      Service
}

func (suite *docragTestSuite) SetupTest() {
	cfg := DefaultConfig()
	cfg.Store.Driver = store.DriverMemory

	suite.cfg = cfg
	suite.store = memory.NewStore()
	suite.provider = embedding.NewProvider(embedding.Options{
		Name:       "hash",
		Dimensions: cfg.Embedding.Dimensions,
	}, embedding.HashLoader(cfg.Embedding.Dimensions))

	suite.svc = NewService(cfg, suite.store, suite.provider, nil)
}

func (suite *docragTestSuite) TearDownTest() {
	suite.svc.Close()
}

func sentences(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "Sentence number %d discusses topic %d in detail. ", i, i%5)
	}

	return sb.String()
}

func (suite *docragTestSuite) TestEndToEndMarker() {
	ctx := context.Background()
	scope := store.ChatScope(42)

	result, err := suite.svc.AddDocument(ctx, AddDocumentRequest{
		Scope: scope,
		Name:  "manual.pdf",
		Pages: []string{
			"Page one talks about the weather in spring. Nothing else matters much here.",
			"Page two holds the UNIQUE_MARKER_42 token here.",
			"Page three covers cooking recipes and kitchen tools for beginners.",
		},
		MaxChunkSize: 50,
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.False(result.Existing)
	suite.False(result.Dispatched)
	suite.Greater(result.Chunks, 3)

	sources, err := suite.svc.Retrieve(ctx, "where is UNIQUE_MARKER_42 on page two", scope, 3)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Len(sources, 3)

	top := sources[0]
	suite.Contains(top.Text, "UNIQUE_MARKER_42")
	suite.Equal("manual.pdf", top.DocumentName)
	suite.Equal(result.Document.ID, top.DocumentID)
	if suite.NotNil(top.PageNumber) {
		suite.Equal(2, *top.PageNumber)
	}

	for i := 1; i < len(sources); i++ {
		suite.LessOrEqual(sources[i-1].Distance, sources[i].Distance)
	}
}

func (suite *docragTestSuite) TestRetrieveEmptyScope() {
	sources, err := suite.svc.Retrieve(context.Background(), "anything", store.WorkflowScope(7), 5)

	suite.NoError(err)
	suite.NotNil(sources)
	suite.Empty(sources)
}

func (suite *docragTestSuite) TestRetrieveTopK() {
	ctx := context.Background()
	scope := store.ChatScope(3)

	result, err := suite.svc.AddDocument(ctx, AddDocumentRequest{
		Scope:        scope,
		Name:         "long.txt",
		Text:         sentences(40),
		MaxChunkSize: 120,
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	total := result.Chunks
	suite.Greater(total, suite.cfg.Retrieval.MaxK)

	for _, k := range []int{1, 3, 10} {
		sources, err := suite.svc.Retrieve(ctx, "topic 3 in detail", scope, k)
		suite.NoError(err)
		suite.Len(sources, k)
	}

	sources, err := suite.svc.Retrieve(ctx, "topic 3", scope)
	suite.NoError(err)
	suite.Len(sources, suite.cfg.Retrieval.DefaultK)

	sources, err = suite.svc.Retrieve(ctx, "topic 3", scope, 500)
	suite.NoError(err)
	suite.Len(sources, suite.cfg.Retrieval.MaxK)
}

func (suite *docragTestSuite) TestRetrieveFewerChunksThanK() {
	ctx := context.Background()
	scope := store.ChatScope(4)

	result, err := suite.svc.AddDocument(ctx, AddDocumentRequest{
		Scope: scope,
		Name:  "tiny.txt",
		Text:  "just one short chunk",
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Equal(1, result.Chunks)

	sources, err := suite.svc.Retrieve(ctx, "short chunk", scope, 5)
	suite.NoError(err)
	suite.Len(sources, 1)
	suite.Equal("just one short chunk", sources[0].Text)
	suite.Nil(sources[0].PageNumber)
}

func (suite *docragTestSuite) TestRetrieveSkipsMalformedRows() {
	ctx := context.Background()
	scope := store.ChatScope(5)

	result, err := suite.svc.AddDocument(ctx, AddDocumentRequest{
		Scope:        scope,
		Name:         "mixed.txt",
		Text:         sentences(6),
		MaxChunkSize: 100,
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	err = suite.store.InsertChunks(ctx, []store.ChunkRecord{
		{DocumentID: result.Document.ID, StartIndex: 0, EndIndex: 10, Embedding: vector.Encode(vector.Vector{1, 2, 3})},
		{DocumentID: result.Document.ID, StartIndex: 0, EndIndex: 10, Embedding: []byte{1, 2, 3}},
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	sources, err := suite.svc.Retrieve(ctx, "sentence number", scope, 10)
	suite.NoError(err)
	suite.Len(sources, min(10, result.Chunks))
}

func (suite *docragTestSuite) TestRetrieveOnlyMalformedRows() {
	ctx := context.Background()
	scope := store.ChatScope(6)

	doc, _, err := suite.store.AddDocument(ctx, store.Document{
		Name:  "legacy.txt",
		Scope: scope,
		Text:  "legacy content",
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	err = suite.store.InsertChunks(ctx, []store.ChunkRecord{
		{DocumentID: doc.ID, StartIndex: 0, EndIndex: 6, Embedding: vector.Encode(make(vector.Vector, 384))},
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	sources, err := suite.svc.Retrieve(ctx, "legacy", scope)
	suite.NoError(err)
	suite.Empty(sources)
}

func (suite *docragTestSuite) TestRetrieveQueryEmbeddingFailure() {
	ctx := context.Background()
	scope := store.ChatScope(8)

	_, err := suite.svc.AddDocument(ctx, AddDocumentRequest{
		Scope: scope,
		Name:  "doc.txt",
		Text:  "some indexed content",
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	svc := NewService(suite.cfg, suite.store, failingQueryProvider{suite.provider}, nil)

	sources, err := svc.Retrieve(ctx, "indexed", scope)
	suite.Error(err)
	suite.Nil(sources)
}

func (suite *docragTestSuite) TestRetrieveInvalidInput() {
	ctx := context.Background()

	_, err := suite.svc.Retrieve(ctx, "question", store.ChatScope(0))
	suite.ErrorIs(err, ErrInvalidScope)

	_, err = suite.svc.Retrieve(ctx, "   ", store.ChatScope(1))
	suite.ErrorIs(err, ErrEmptyQuery)
}

func (suite *docragTestSuite) TestAddDocumentDedupe() {
	ctx := context.Background()
	scope := store.WorkflowScope(11)

	req := AddDocumentRequest{
		Scope: scope,
		Name:  "faq.md",
		Text:  sentences(5),
	}

	first, err := suite.svc.AddDocument(ctx, req)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	second, err := suite.svc.AddDocument(ctx, req)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.True(second.Existing)
	suite.Equal(first.Document.ID, second.Document.ID)
	suite.Zero(second.Chunks)

	rows, err := suite.store.FetchChunksForScope(ctx, scope)
	suite.NoError(err)
	suite.Len(rows, first.Chunks)
}

func (suite *docragTestSuite) TestAddDocumentRejectsInvalid() {
	ctx := context.Background()

	_, err := suite.svc.AddDocument(ctx, AddDocumentRequest{
		Scope: store.ChatScope(0),
		Name:  "guest.txt",
		Text:  "guest chats are not stored",
	})
	suite.ErrorIs(err, ErrInvalidScope)

	_, err = suite.svc.AddDocument(ctx, AddDocumentRequest{
		Scope: store.ChatScope(1),
		Name:  "blank.txt",
		Pages: []string{"", "  \n"},
	})
	suite.ErrorIs(err, ErrEmptyDocument)

	_, err = suite.svc.AddDocument(ctx, AddDocumentRequest{
		Scope: store.ChatScope(1),
		Text:  "no name",
	})
	suite.ErrorIs(err, ErrInvalidDocumentName)
}

func (suite *docragTestSuite) TestDispatchedIngestion() {
	ctx := context.Background()
	scope := store.ChatScope(12)

	dispatcher := new(recordingDispatcher)
	svc := NewService(suite.cfg, suite.store, suite.provider, dispatcher)

	result, err := svc.AddDocument(ctx, AddDocumentRequest{
		Scope: scope,
		Name:  "queued.txt",
		Text:  sentences(10),
		Fast:  true,
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.True(result.Dispatched)
	suite.Zero(result.Chunks)

	sources, err := svc.Retrieve(ctx, "topic", scope)
	suite.NoError(err)
	suite.Empty(sources, "document is not searchable before its job runs")

	if !suite.Len(dispatcher.jobs, 1) {
		return
	}

	job := dispatcher.jobs[0]
	suite.Equal(result.Document.ID, job.DocumentID)
	suite.True(job.Fast)

	n, err := svc.ProcessDocument(ctx, job)
	suite.NoError(err)
	suite.Positive(n)

	sources, err = svc.Retrieve(ctx, "topic", scope)
	suite.NoError(err)
	suite.Len(sources, min(n, suite.cfg.Retrieval.DefaultK))
}

func (suite *docragTestSuite) TestProcessDocumentDimensionMismatch() {
	ctx := context.Background()
	scope := store.ChatScope(13)

	provider := embedding.NewProvider(embedding.Options{
		Dimensions: 768,
	}, embedding.HashLoader(384))

	svc := NewService(suite.cfg, suite.store, provider, nil)

	_, err := svc.AddDocument(ctx, AddDocumentRequest{
		Scope: scope,
		Name:  "wrong-model.txt",
		Text:  sentences(3),
	})
	suite.ErrorIs(err, vector.ErrDimensionMismatch)

	rows, err := suite.store.FetchChunksForScope(ctx, scope)
	suite.NoError(err)
	suite.Empty(rows)
}

func (suite *docragTestSuite) wrongDimensionService(dispatcher Dispatcher) Service {
	provider := embedding.NewProvider(embedding.Options{
		Dimensions: 768,
	}, embedding.HashLoader(384))

	return NewService(suite.cfg, suite.store, provider, dispatcher)
}

func (suite *docragTestSuite) TestFailedIngestionCanBeRetried() {
	ctx := context.Background()
	scope := store.ChatScope(15)

	req := AddDocumentRequest{
		Scope: scope,
		Name:  "retry.txt",
		Text:  sentences(3),
	}

	_, err := suite.wrongDimensionService(nil).AddDocument(ctx, req)
	suite.ErrorIs(err, vector.ErrDimensionMismatch)

	docs, err := suite.svc.ListDocuments(ctx, scope)
	suite.NoError(err)
	suite.Empty(docs)

	result, err := suite.svc.AddDocument(ctx, req)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.False(result.Existing)
	suite.Greater(result.Chunks, 0)

	rows, err := suite.store.FetchChunksForScope(ctx, scope)
	suite.NoError(err)
	suite.Len(rows, result.Chunks)
}

func (suite *docragTestSuite) TestFailedDispatchDiscardsDocument() {
	ctx := context.Background()
	scope := store.ChatScope(16)

	svc := NewService(suite.cfg, suite.store, suite.provider, failingDispatcher{})

	_, err := svc.AddDocument(ctx, AddDocumentRequest{
		Scope: scope,
		Name:  "queued.txt",
		Text:  sentences(3),
	})
	suite.ErrorIs(err, ErrDispatcherClosed)

	docs, err := suite.svc.ListDocuments(ctx, scope)
	suite.NoError(err)
	suite.Empty(docs)
}

func (suite *docragTestSuite) TestIngestHandler() {
	ctx := context.Background()
	scope := store.ChatScope(17)

	dispatcher := new(recordingDispatcher)
	svc := suite.wrongDimensionService(dispatcher)

	for _, name := range []string{"bad.txt", "good.txt"} {
		_, err := svc.AddDocument(ctx, AddDocumentRequest{
			Scope: scope,
			Name:  name,
			Text:  sentences(3),
		})
		suite.NoError(err)
	}

	suite.Require().Len(dispatcher.jobs, 2)

	err := IngestHandler(svc)(ctx, dispatcher.jobs[0])
	suite.ErrorIs(err, vector.ErrDimensionMismatch)

	err = IngestHandler(suite.svc)(ctx, dispatcher.jobs[1])
	suite.NoError(err)

	docs, err := suite.svc.ListDocuments(ctx, scope)
	suite.NoError(err)
	if suite.Len(docs, 1) {
		suite.Equal("good.txt", docs[0].Name)
	}

	rows, err := suite.store.FetchChunksForScope(ctx, scope)
	suite.NoError(err)
	suite.NotEmpty(rows)
}

func (suite *docragTestSuite) TestListAndDeleteDocuments() {
	ctx := context.Background()
	scope := store.ChatScope(14)

	for _, name := range []string{"one.txt", "two.txt"} {
		_, err := suite.svc.AddDocument(ctx, AddDocumentRequest{
			Scope: scope,
			Name:  name,
			Text:  "contents of " + name,
		})
		if err != nil {
			suite.Fail(err.Error())
			return
		}
	}

	docs, err := suite.svc.ListDocuments(ctx, scope)
	suite.NoError(err)
	if !suite.Len(docs, 2) {
		return
	}

	suite.NoError(suite.svc.DeleteDocument(ctx, docs[0].ID))
	suite.ErrorIs(suite.svc.DeleteDocument(ctx, docs[0].ID), ErrDocumentNotFound)

	sources, err := suite.svc.Retrieve(ctx, "contents", scope)
	suite.NoError(err)
	if suite.Len(sources, 1) {
		suite.Equal("two.txt", sources[0].DocumentName)
	}
}

func (suite *docragTestSuite) TestEmbedAndPackageBatchEquivalence() {
	ctx := context.Background()

	chunks := make([]Chunk, 100)
	for i := range chunks {
		text := fmt.Sprintf("chunk %d mentions item %d", i, i%9)
		chunks[i] = Chunk{Text: text, StartIndex: i * 10, EndIndex: i*10 + len(text)}
	}

	small, err := EmbedAndPackage(ctx, suite.provider, chunks, 1, 32)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	large, err := EmbedAndPackage(ctx, suite.provider, chunks, 1, 100)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Len(small, 100)
	for i := range small {
		a, err := vector.DecodeDim(small[i].Embedding, 768)
		suite.NoError(err)

		b, err := vector.DecodeDim(large[i].Embedding, 768)
		suite.NoError(err)

		suite.InDeltaSlice(a, b, 1e-9)
		suite.Equal(chunks[i].StartIndex, small[i].StartIndex)
	}
}

func TestDocragTestSuite(t *testing.T) {
	suite.Run(t, new(docragTestSuite))
}
