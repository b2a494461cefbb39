package sink

import (
	"context"
	"fmt"

	"github.com/jobclip/jobclip-cli/internal/model"
	"github.com/jobclip/jobclip-cli/internal/resilience"
	"github.com/jobclip/jobclip-cli/pkg/feishu"
)

// FeishuStore writes records into one Bitable table. The configured key
// field (a url field) holds the deduplication key.
type FeishuStore struct {
	client   feishu.Client
	keyField string
}

// NewFeishuStore creates a store over the given Bitable client. keyField
// names the url field used for idempotent lookups.
func NewFeishuStore(client feishu.Client, keyField string) *FeishuStore {
	return &FeishuStore{client: client, keyField: keyField}
}

func (s *FeishuStore) ID() string { return "feishu" }

// FetchSchema maps Bitable field type codes onto neutral field definitions.
// The primary text field becomes the title; unmapped type codes keep a
// numeric name and are downgraded downstream.
func (s *FeishuStore) FetchSchema(ctx context.Context) ([]model.RawField, error) {
	fields, err := s.client.ListFields(ctx)
	if err != nil {
		return nil, NewError(s.ID(), resilience.IsTransient(err), err)
	}

	out := make([]model.RawField, 0, len(fields))
	for _, f := range fields {
		rf := model.RawField{Name: f.Name, Options: f.Options}
		switch f.Type {
		case feishu.FieldTypeText:
			if f.IsPrimary {
				rf.Kind = string(model.KindTitle)
				rf.Required = true
			} else {
				rf.Kind = string(model.KindText)
			}
		case feishu.FieldTypeNumber:
			rf.Kind = string(model.KindNumber)
		case feishu.FieldTypeSelect:
			rf.Kind = string(model.KindSelect)
		case feishu.FieldTypeMultiSelect:
			rf.Kind = string(model.KindMultiSelect)
		case feishu.FieldTypeDate:
			rf.Kind = string(model.KindDate)
		case feishu.FieldTypeCheckbox:
			rf.Kind = string(model.KindCheckbox)
		case feishu.FieldTypePhone:
			rf.Kind = string(model.KindPhone)
		case feishu.FieldTypeURL:
			rf.Kind = string(model.KindURL)
		case feishu.FieldTypeAttachment:
			rf.Kind = string(model.KindFileList)
		default:
			rf.Kind = fmt.Sprintf("type_%d", f.Type)
		}
		out = append(out, rf)
	}
	return out, nil
}

func (s *FeishuStore) FindByKey(ctx context.Context, key string) (string, bool, error) {
	records, err := s.client.SearchRecords(ctx, s.keyField, key)
	if err != nil {
		return "", false, NewError(s.ID(), resilience.IsTransient(err), err)
	}
	if len(records) == 0 {
		return "", false, nil
	}
	return records[0].RecordID, true, nil
}

func (s *FeishuStore) Create(ctx context.Context, rec Record) (string, error) {
	id, err := s.client.CreateRecord(ctx, s.buildFields(rec))
	if err != nil {
		return "", NewError(s.ID(), resilience.IsTransient(err), err)
	}
	return id, nil
}

func (s *FeishuStore) Update(ctx context.Context, recordID string, rec Record) error {
	if _, err := s.client.UpdateRecord(ctx, recordID, s.buildFields(rec)); err != nil {
		return NewError(s.ID(), resilience.IsTransient(err), err)
	}
	return nil
}

// buildFields converts normalized values into Bitable cell values. Dates
// become millisecond timestamps, urls become link objects.
func (s *FeishuStore) buildFields(rec Record) map[string]any {
	fields := make(map[string]any)
	for name, value := range rec.Values {
		f, ok := rec.Snapshot.Field(name)
		if !ok || name == s.keyField {
			continue
		}
		if v, ok := buildCell(f, value); ok {
			fields[name] = v
		}
	}
	fields[s.keyField] = urlCell(rec.Key)
	return fields
}

func buildCell(f model.FieldDefinition, value any) (any, bool) {
	switch f.Kind {
	case model.KindTitle, model.KindText, model.KindSelect, model.KindStatus, model.KindPhone, model.KindEmail:
		s, _ := value.(string)
		return s, true
	case model.KindMultiSelect:
		elems, _ := value.([]string)
		return elems, true
	case model.KindNumber:
		n, ok := value.(float64)
		return n, ok
	case model.KindCheckbox:
		b, _ := value.(bool)
		return b, true
	case model.KindDate:
		s, _ := value.(string)
		t, err := parseISODate(s)
		if err != nil {
			return nil, false
		}
		return t.UnixMilli(), true
	case model.KindURL:
		s, _ := value.(string)
		return urlCell(s), true
	default:
		return nil, false
	}
}

func urlCell(u string) map[string]any {
	return map[string]any{"link": u, "text": u}
}

var (
	_ Store = (*FeishuStore)(nil)
	_ Store = (*NotionStore)(nil)
)
