// Package model holds the shared data types flowing through the clip pipeline.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// FieldKind identifies a supported sink field type. The set is closed: remote
// kinds outside it are downgraded to KindText when a snapshot is built.
type FieldKind string

const (
	KindTitle       FieldKind = "title"
	KindText        FieldKind = "text"
	KindSelect      FieldKind = "select"
	KindMultiSelect FieldKind = "multi_select"
	KindStatus      FieldKind = "status"
	KindURL         FieldKind = "url"
	KindDate        FieldKind = "date"
	KindNumber      FieldKind = "number"
	KindEmail       FieldKind = "email"
	KindPhone       FieldKind = "phone"
	KindCheckbox    FieldKind = "checkbox"
	KindFileList    FieldKind = "file_list"
)

var supportedKinds = map[FieldKind]bool{
	KindTitle:       true,
	KindText:        true,
	KindSelect:      true,
	KindMultiSelect: true,
	KindStatus:      true,
	KindURL:         true,
	KindDate:        true,
	KindNumber:      true,
	KindEmail:       true,
	KindPhone:       true,
	KindCheckbox:    true,
	KindFileList:    true,
}

// Supported reports whether k is one of the closed set of field kinds.
func (k FieldKind) Supported() bool {
	return supportedKinds[k]
}

// HasOptions reports whether the kind carries a fixed option list.
func (k FieldKind) HasOptions() bool {
	return k == KindSelect || k == KindMultiSelect || k == KindStatus
}

// RawField is a schema entry as reported by a sink, before kind validation.
type RawField struct {
	Name     string
	Kind     string
	Options  []string
	Required bool
}

// FieldDefinition is a validated schema field.
type FieldDefinition struct {
	Name     string    `json:"name"`
	Kind     FieldKind `json:"kind"`
	Options  []string  `json:"options,omitempty"`
	Required bool      `json:"required,omitempty"`
}

// SchemaSnapshot is an immutable view of a sink's schema at one fetch.
// Owned by the schema cache; callers must not mutate it.
type SchemaSnapshot struct {
	SinkID      string
	Fields      []FieldDefinition
	Fingerprint string
	Warnings    []FieldWarning
	FetchedAt   time.Time
	TTL         time.Duration
}

// Expired reports whether the snapshot is older than its TTL at now.
func (s *SchemaSnapshot) Expired(now time.Time) bool {
	return now.After(s.FetchedAt.Add(s.TTL))
}

// Field returns the definition with the given name, matched case-sensitively.
func (s *SchemaSnapshot) Field(name string) (FieldDefinition, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// Fingerprint computes a deterministic hash over a set of field definitions.
// Field order does not affect the result.
func Fingerprint(fields []FieldDefinition) string {
	sorted := make([]FieldDefinition, len(fields))
	copy(sorted, fields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	h := sha256.New()
	for _, f := range sorted {
		h.Write([]byte(f.Name))
		h.Write([]byte{0})
		h.Write([]byte(f.Kind))
		h.Write([]byte{0})
		h.Write([]byte(strings.Join(f.Options, "\x1f")))
		h.Write([]byte{0})
		if f.Required {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ContractField is one field of an extraction contract.
type ContractField struct {
	Name        string
	Kind        FieldKind
	Description string
	Options     []string
	Required    bool
}

// ExtractionContract is the closed output specification handed to the
// language model for one extraction call. Rebuilt per request.
type ExtractionContract struct {
	Fields      []ContractField
	Fingerprint string
}

// Field returns the contract field with the given name.
func (c *ExtractionContract) Field(name string) (ContractField, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ContractField{}, false
}

// FieldOfKind returns the name of the first contract field with the given
// kind, or "" when absent.
func (c *ExtractionContract) FieldOfKind(kind FieldKind) string {
	for _, f := range c.Fields {
		if f.Kind == kind {
			return f.Name
		}
	}
	return ""
}
