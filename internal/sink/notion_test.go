package sink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobclip/jobclip-cli/internal/model"
)

// stubNotionClient records requests and replays canned responses.
type stubNotionClient struct {
	database    *notionapi.Database
	queryResp   *notionapi.DatabaseQueryResponse
	createdPage *notionapi.Page
	err         error

	lastQuery  *notionapi.DatabaseQueryRequest
	lastCreate *notionapi.PageCreateRequest
	lastUpdate *notionapi.PageUpdateRequest
}

func (s *stubNotionClient) GetDatabase(_ context.Context, _ string) (*notionapi.Database, error) {
	return s.database, s.err
}

func (s *stubNotionClient) QueryDatabase(_ context.Context, _ string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	s.lastQuery = req
	if s.err != nil {
		return nil, s.err
	}
	return s.queryResp, nil
}

func (s *stubNotionClient) CreatePage(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	s.lastCreate = req
	if s.err != nil {
		return nil, s.err
	}
	return s.createdPage, nil
}

func (s *stubNotionClient) UpdatePage(_ context.Context, _ string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	s.lastUpdate = req
	if s.err != nil {
		return nil, s.err
	}
	return &notionapi.Page{ID: "page-1"}, nil
}

func notionSnapshot() *model.SchemaSnapshot {
	return &model.SchemaSnapshot{
		SinkID: "notion",
		Fields: []model.FieldDefinition{
			{Name: "Title", Kind: model.KindTitle, Required: true},
			{Name: "Status", Kind: model.KindStatus, Options: []string{"Applied"}},
			{Name: "Tags", Kind: model.KindMultiSelect, Options: []string{"Go"}},
			{Name: "Posted", Kind: model.KindDate},
			{Name: "Salary", Kind: model.KindNumber},
			{Name: "URL", Kind: model.KindURL},
			{Name: "Favorite", Kind: model.KindCheckbox},
		},
		FetchedAt: time.Now(),
		TTL:       time.Hour,
	}
}

func TestNotionFetchSchema(t *testing.T) {
	stub := &stubNotionClient{
		database: &notionapi.Database{
			ID: "db-1",
			Properties: notionapi.PropertyConfigs{
				"Name":   &notionapi.TitlePropertyConfig{Type: notionapi.PropertyConfigTypeTitle},
				"Notes":  &notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
				"Status": &notionapi.StatusPropertyConfig{Type: notionapi.PropertyConfigStatus, Status: notionapi.StatusConfig{Options: []notionapi.Option{{Name: "Applied"}, {Name: "Rejected"}}}},
				"Mode":   &notionapi.SelectPropertyConfig{Type: notionapi.PropertyConfigTypeSelect, Select: notionapi.Select{Options: []notionapi.Option{{Name: "Remote"}}}},
				"Tags":   &notionapi.MultiSelectPropertyConfig{Type: notionapi.PropertyConfigTypeMultiSelect, MultiSelect: notionapi.Select{Options: []notionapi.Option{{Name: "Go"}}}},
				"URL":    &notionapi.URLPropertyConfig{Type: notionapi.PropertyConfigTypeURL},
				"People": &notionapi.PeoplePropertyConfig{Type: notionapi.PropertyConfigTypePeople},
			},
		},
	}
	s := NewNotionStore(stub, "db-1", "URL")

	fields, err := s.FetchSchema(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 7)

	byName := make(map[string]model.RawField, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	assert.Equal(t, string(model.KindTitle), byName["Name"].Kind)
	assert.True(t, byName["Name"].Required)
	assert.Equal(t, string(model.KindText), byName["Notes"].Kind)
	assert.Equal(t, []string{"Applied", "Rejected"}, byName["Status"].Options)
	assert.Equal(t, []string{"Remote"}, byName["Mode"].Options)
	assert.Equal(t, string(model.KindMultiSelect), byName["Tags"].Kind)
	assert.Equal(t, string(model.KindURL), byName["URL"].Kind)
	// People has no mapping; its raw type name survives for the cache to
	// downgrade.
	assert.Equal(t, "people", byName["People"].Kind)
}

func TestNotionFindByKey(t *testing.T) {
	stub := &stubNotionClient{
		queryResp: &notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{ID: "page-1"}},
		},
	}
	s := NewNotionStore(stub, "db-1", "URL")

	id, found, err := s.FindByKey(context.Background(), "https://example.com/jobs/1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "page-1", id)

	filter, ok := stub.lastQuery.Filter.(urlEqualsFilter)
	require.True(t, ok)
	assert.Equal(t, "URL", filter.property)
	assert.Equal(t, "https://example.com/jobs/1", filter.equals)
}

func TestURLEqualsFilterJSON(t *testing.T) {
	f := urlEqualsFilter{property: "URL", equals: "https://example.com/jobs/1"}

	var asFilter notionapi.Filter = f
	raw, err := json.Marshal(asFilter)
	require.NoError(t, err)
	assert.JSONEq(t, `{"property":"URL","url":{"equals":"https://example.com/jobs/1"}}`, string(raw))
}

func TestNotionFindByKeyMissing(t *testing.T) {
	stub := &stubNotionClient{queryResp: &notionapi.DatabaseQueryResponse{}}
	s := NewNotionStore(stub, "db-1", "URL")

	_, found, err := s.FindByKey(context.Background(), "https://nowhere.example")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNotionCreateBuildsProperties(t *testing.T) {
	stub := &stubNotionClient{createdPage: &notionapi.Page{ID: "page-new"}}
	s := NewNotionStore(stub, "db-1", "URL")

	rec := Record{
		Key:      "https://example.com/jobs/1",
		Snapshot: notionSnapshot(),
		Values: map[string]any{
			"Title":    "Go Engineer",
			"Status":   "Applied",
			"Tags":     []string{"Go"},
			"Posted":   "2026-08-25",
			"Salary":   float64(120000),
			"URL":      "https://example.com/jobs/1?utm=x",
			"Favorite": true,
		},
	}

	id, err := s.Create(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "page-new", id)

	props := stub.lastCreate.Properties

	title, ok := props["Title"].(notionapi.TitleProperty)
	require.True(t, ok)
	require.Len(t, title.Title, 1)
	assert.Equal(t, "Go Engineer", title.Title[0].Text.Content)

	status, ok := props["Status"].(notionapi.StatusProperty)
	require.True(t, ok)
	assert.Equal(t, "Applied", status.Status.Name)

	tags, ok := props["Tags"].(notionapi.MultiSelectProperty)
	require.True(t, ok)
	require.Len(t, tags.MultiSelect, 1)
	assert.Equal(t, "Go", tags.MultiSelect[0].Name)

	num, ok := props["Salary"].(notionapi.NumberProperty)
	require.True(t, ok)
	assert.Equal(t, float64(120000), num.Number)

	check, ok := props["Favorite"].(notionapi.CheckboxProperty)
	require.True(t, ok)
	assert.True(t, check.Checkbox)

	date, ok := props["Posted"].(notionapi.DateProperty)
	require.True(t, ok)
	require.NotNil(t, date.Date.Start)

	// The key property carries the dedup key, not the extracted value.
	keyProp, ok := props["URL"].(notionapi.URLProperty)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/jobs/1", keyProp.URL)

	assert.Equal(t, notionapi.DatabaseID("db-1"), stub.lastCreate.Parent.DatabaseID)
}

func TestNotionUpdate(t *testing.T) {
	stub := &stubNotionClient{}
	s := NewNotionStore(stub, "db-1", "URL")

	rec := Record{
		Key:      "https://example.com/jobs/1",
		Snapshot: notionSnapshot(),
		Values:   map[string]any{"Title": "Go Engineer"},
	}

	require.NoError(t, s.Update(context.Background(), "page-1", rec))
	require.NotNil(t, stub.lastUpdate)
	assert.Contains(t, stub.lastUpdate.Properties, "Title")
}

func TestNotionTransientClassification(t *testing.T) {
	stub := &stubNotionClient{err: &notionapi.Error{Status: 429, Message: "rate limited"}}
	s := NewNotionStore(stub, "db-1", "URL")

	_, _, err := s.FindByKey(context.Background(), "https://example.com/jobs/1")
	require.Error(t, err)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "notion", se.Sink)
	assert.True(t, se.Transient)
}
