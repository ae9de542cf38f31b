package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeValidate(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(ChatScope(7).Validate())
	assert.NoError(WorkflowScope(1).Validate())

	assert.ErrorIs(ChatScope(0).Validate(), ErrInvalidScope)
	assert.ErrorIs(Scope{Kind: "team", ID: 3}.Validate(), ErrInvalidScope)

	assert.Equal("workflow:12", WorkflowScope(12).String())
}

func TestDocumentPages(t *testing.T) {
	assert := assert.New(t)

	doc := Document{
		Text:       "page one" + "" + "page three",
		PageStarts: []int{0, 8, 8},
	}

	assert.Equal([]string{"page one", "", "page three"}, doc.Pages())

	single := Document{Text: "whole"}
	assert.Equal([]string{"whole"}, single.Pages())
}

func TestConfigValidate(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(Config{Driver: DriverSQLite}.Validate())
	assert.Error(Config{Driver: DriverMongo}.Validate())
	assert.ErrorIs(Config{Driver: "postgres"}.Validate(), ErrUnknownDriver)
}
