package sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/jobclip/jobclip-cli/internal/model"
	"github.com/jobclip/jobclip-cli/internal/resilience"
	"github.com/jobclip/jobclip-cli/pkg/notion"
)

// NotionStore writes records into one Notion database. The configured key
// property (a url property) holds the deduplication key.
type NotionStore struct {
	client      notion.Client
	databaseID  string
	keyProperty string
}

// NewNotionStore creates a store over the given database. keyProperty names
// the url property used for idempotent lookups.
func NewNotionStore(client notion.Client, databaseID, keyProperty string) *NotionStore {
	return &NotionStore{client: client, databaseID: databaseID, keyProperty: keyProperty}
}

func (s *NotionStore) ID() string { return "notion" }

// FetchSchema maps the database's property configurations onto neutral field
// definitions. Property types without an equivalent keep their Notion type
// name and are downgraded downstream.
func (s *NotionStore) FetchSchema(ctx context.Context) ([]model.RawField, error) {
	db, err := s.client.GetDatabase(ctx, s.databaseID)
	if err != nil {
		return nil, s.wrap(err)
	}

	fields := make([]model.RawField, 0, len(db.Properties))
	for name, cfg := range db.Properties {
		f := model.RawField{Name: name}
		switch c := cfg.(type) {
		case *notionapi.TitlePropertyConfig:
			f.Kind = string(model.KindTitle)
			f.Required = true
		case *notionapi.RichTextPropertyConfig:
			f.Kind = string(model.KindText)
		case *notionapi.SelectPropertyConfig:
			f.Kind = string(model.KindSelect)
			f.Options = optionNames(c.Select.Options)
		case *notionapi.MultiSelectPropertyConfig:
			f.Kind = string(model.KindMultiSelect)
			f.Options = optionNames(c.MultiSelect.Options)
		case *notionapi.StatusPropertyConfig:
			f.Kind = string(model.KindStatus)
			f.Options = optionNames(c.Status.Options)
		case *notionapi.URLPropertyConfig:
			f.Kind = string(model.KindURL)
		case *notionapi.DatePropertyConfig:
			f.Kind = string(model.KindDate)
		case *notionapi.NumberPropertyConfig:
			f.Kind = string(model.KindNumber)
		case *notionapi.EmailPropertyConfig:
			f.Kind = string(model.KindEmail)
		case *notionapi.PhoneNumberPropertyConfig:
			f.Kind = string(model.KindPhone)
		case *notionapi.CheckboxPropertyConfig:
			f.Kind = string(model.KindCheckbox)
		case *notionapi.FilesPropertyConfig:
			f.Kind = string(model.KindFileList)
		default:
			f.Kind = string(cfg.GetType())
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func optionNames(opts []notionapi.Option) []string {
	names := make([]string, 0, len(opts))
	for _, o := range opts {
		names = append(names, o.Name)
	}
	return names
}

// urlEqualsFilter is an equality filter on a url property. notionapi's
// PropertyFilter does not model the url condition, so this marshals it
// directly; the embedded PropertyFilter supplies the Filter interface.
type urlEqualsFilter struct {
	notionapi.PropertyFilter

	property string
	equals   string
}

func (f urlEqualsFilter) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Property string                        `json:"property"`
		URL      notionapi.TextFilterCondition `json:"url"`
	}{
		Property: f.property,
		URL:      notionapi.TextFilterCondition{Equals: f.equals},
	})
}

func (s *NotionStore) FindByKey(ctx context.Context, key string) (string, bool, error) {
	resp, err := s.client.QueryDatabase(ctx, s.databaseID, &notionapi.DatabaseQueryRequest{
		Filter:   urlEqualsFilter{property: s.keyProperty, equals: key},
		PageSize: 1,
	})
	if err != nil {
		return "", false, s.wrap(err)
	}
	if len(resp.Results) == 0 {
		return "", false, nil
	}
	return string(resp.Results[0].ID), true, nil
}

func (s *NotionStore) Create(ctx context.Context, rec Record) (string, error) {
	page, err := s.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(s.databaseID),
		},
		Properties: s.buildProperties(rec),
	})
	if err != nil {
		return "", s.wrap(err)
	}
	return string(page.ID), nil
}

func (s *NotionStore) Update(ctx context.Context, recordID string, rec Record) error {
	_, err := s.client.UpdatePage(ctx, recordID, &notionapi.PageUpdateRequest{
		Properties: s.buildProperties(rec),
	})
	if err != nil {
		return s.wrap(err)
	}
	return nil
}

// buildProperties converts normalized values into Notion page properties.
// The key property always carries the deduplication key so later clips of
// the same page find this record.
func (s *NotionStore) buildProperties(rec Record) notionapi.Properties {
	props := make(notionapi.Properties)
	for name, value := range rec.Values {
		f, ok := rec.Snapshot.Field(name)
		if !ok || name == s.keyProperty {
			continue
		}
		if p := buildProperty(f, value); p != nil {
			props[name] = p
		}
	}
	props[s.keyProperty] = notionapi.URLProperty{
		Type: notionapi.PropertyTypeURL,
		URL:  rec.Key,
	}
	return props
}

func buildProperty(f model.FieldDefinition, value any) notionapi.Property {
	switch f.Kind {
	case model.KindTitle:
		s, _ := value.(string)
		return notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
			},
		}
	case model.KindText:
		s, _ := value.(string)
		return notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
			},
		}
	case model.KindSelect:
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		return notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: s},
		}
	case model.KindStatus:
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		return notionapi.StatusProperty{
			Type:   notionapi.PropertyTypeStatus,
			Status: notionapi.Status{Name: s},
		}
	case model.KindMultiSelect:
		elems, _ := value.([]string)
		opts := make([]notionapi.Option, 0, len(elems))
		for _, el := range elems {
			opts = append(opts, notionapi.Option{Name: el})
		}
		return notionapi.MultiSelectProperty{
			Type:        notionapi.PropertyTypeMultiSelect,
			MultiSelect: opts,
		}
	case model.KindDate:
		s, _ := value.(string)
		t, err := parseISODate(s)
		if err != nil {
			return nil
		}
		d := notionapi.Date(t)
		return notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &d},
		}
	case model.KindNumber:
		n, ok := value.(float64)
		if !ok {
			return nil
		}
		return notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: n,
		}
	case model.KindURL:
		s, _ := value.(string)
		return notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: s}
	case model.KindEmail:
		s, _ := value.(string)
		return notionapi.EmailProperty{Type: notionapi.PropertyTypeEmail, Email: s}
	case model.KindPhone:
		s, _ := value.(string)
		return notionapi.PhoneNumberProperty{
			Type:        notionapi.PropertyTypePhoneNumber,
			PhoneNumber: s,
		}
	case model.KindCheckbox:
		b, _ := value.(bool)
		return notionapi.CheckboxProperty{
			Type:     notionapi.PropertyTypeCheckbox,
			Checkbox: b,
		}
	default:
		// file_list and unknown kinds have no writable representation.
		return nil
	}
}

func parseISODate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// wrap classifies a Notion API failure. Rate limits and server errors are
// transient.
func (s *NotionStore) wrap(err error) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return NewError(s.ID(), resilience.IsTransientHTTPStatus(apiErr.Status), apiErr)
	}
	return NewError(s.ID(), resilience.IsTransient(err), eris.Wrap(err, "notion request"))
}
