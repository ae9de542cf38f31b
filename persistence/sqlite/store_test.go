package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/flarexio/docrag/store"
	"github.com/flarexio/docrag/vector"
)

type sqliteStoreTestSuite struct {
	suite.Suite
	store store.Store
	path  string
}

func (suite *sqliteStoreTestSuite) SetupTest() {
	suite.path = filepath.Join(suite.T().TempDir(), "docrag.db")

	s, err := NewStore(suite.path)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.store = s
}

func (suite *sqliteStoreTestSuite) TearDownTest() {
	if suite.store != nil {
		suite.store.Close()
	}
}

func (suite *sqliteStoreTestSuite) TestAddDocumentDedupe() {
	ctx := context.Background()

	doc, existed, err := suite.store.AddDocument(ctx, store.Document{
		Name:       "report.pdf",
		Scope:      store.ChatScope(1),
		Text:       "page onepage two",
		PageStarts: []int{0, 8},
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.False(existed)
	suite.Positive(doc.ID)

	again, existed, err := suite.store.AddDocument(ctx, store.Document{
		Name:  "report.pdf",
		Scope: store.ChatScope(1),
		Text:  "different text",
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.True(existed)
	suite.Equal(doc.ID, again.ID)
	suite.Equal([]string{"page one", "page two"}, again.Pages())

	other, existed, err := suite.store.AddDocument(ctx, store.Document{
		Name:  "report.pdf",
		Scope: store.WorkflowScope(1),
		Text:  "workflow copy",
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.False(existed)
	suite.NotEqual(doc.ID, other.ID)
}

func (suite *sqliteStoreTestSuite) TestChunksRoundTrip() {
	ctx := context.Background()

	doc, _, err := suite.store.AddDocument(ctx, store.Document{
		Name:  "notes.txt",
		Scope: store.ChatScope(2),
		Text:  "alpha beta gamma delta",
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	page := 1
	emb := vector.Encode(vector.Vector{0.25, -0.5, 1})

	err = suite.store.InsertChunks(ctx, []store.ChunkRecord{
		{DocumentID: doc.ID, StartIndex: 0, EndIndex: 10, PageNumber: &page, Embedding: emb},
		{DocumentID: doc.ID, StartIndex: 6, EndIndex: 22, Embedding: emb},
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	rows, err := suite.store.FetchChunksForScope(ctx, store.ChatScope(2))
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Len(rows, 2)
	suite.Equal("notes.txt", rows[0].DocumentName)
	suite.Equal("alpha beta gamma delta", rows[0].DocumentText)
	suite.Equal(emb, rows[0].Embedding)
	if suite.NotNil(rows[0].PageNumber) {
		suite.Equal(1, *rows[0].PageNumber)
	}
	suite.Nil(rows[1].PageNumber)
	suite.Equal(6, rows[1].StartIndex)

	empty, err := suite.store.FetchChunksForScope(ctx, store.ChatScope(3))
	suite.NoError(err)
	suite.Empty(empty)
}

func (suite *sqliteStoreTestSuite) TestDeleteCascades() {
	ctx := context.Background()

	doc, _, err := suite.store.AddDocument(ctx, store.Document{
		Name:  "gone.txt",
		Scope: store.WorkflowScope(5),
		Text:  "short lived",
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	err = suite.store.InsertChunks(ctx, []store.ChunkRecord{
		{DocumentID: doc.ID, StartIndex: 0, EndIndex: 5, Embedding: vector.Encode(vector.Vector{1})},
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.NoError(suite.store.DeleteDocument(ctx, doc.ID))
	suite.ErrorIs(suite.store.DeleteDocument(ctx, doc.ID), store.ErrDocumentNotFound)

	rows, err := suite.store.FetchChunksForScope(ctx, store.WorkflowScope(5))
	suite.NoError(err)
	suite.Empty(rows)

	_, err = suite.store.FetchDocumentText(ctx, doc.ID)
	suite.ErrorIs(err, store.ErrDocumentNotFound)
}

func (suite *sqliteStoreTestSuite) TestListDocumentsOmitsText() {
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt"} {
		_, _, err := suite.store.AddDocument(ctx, store.Document{
			Name:  name,
			Scope: store.ChatScope(9),
			Text:  "body of " + name,
		})
		if err != nil {
			suite.Fail(err.Error())
			return
		}
	}

	docs, err := suite.store.ListDocuments(ctx, store.ChatScope(9))
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Len(docs, 2)
	suite.Equal("a.txt", docs[0].Name)
	suite.Empty(docs[0].Text)

	text, err := suite.store.FetchDocumentText(ctx, docs[1].ID)
	suite.NoError(err)
	suite.Equal("body of b.txt", text)
}

func (suite *sqliteStoreTestSuite) TestReopenKeepsData() {
	ctx := context.Background()

	_, _, err := suite.store.AddDocument(ctx, store.Document{
		Name:  "persisted.txt",
		Scope: store.ChatScope(4),
		Text:  "still here",
	})
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.NoError(suite.store.Close())

	s, err := NewStore(suite.path)
	if err != nil {
		suite.Fail(err.Error())
		return
	}
	suite.store = s

	docs, err := s.ListDocuments(ctx, store.ChatScope(4))
	suite.NoError(err)
	suite.Len(docs, 1)
}

func TestSQLiteStoreTestSuite(t *testing.T) {
	suite.Run(t, new(sqliteStoreTestSuite))
}
