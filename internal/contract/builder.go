// Package contract turns schema snapshots into closed extraction contracts
// and renders them for structured-output model calls.
package contract

import (
	"fmt"
	"strings"

	"github.com/jobclip/jobclip-cli/internal/model"
)

// synonymGuidance attaches extra extraction guidance to semantically
// recognized field names. Keys are compared lowercased.
var synonymGuidance = map[string]string{
	"requirements": "Collect the required skills, experience, education and qualifications into one field.",
	"requirement":  "Collect the required skills, experience, education and qualifications into one field.",
	"要求":           "Collect the required skills, experience, education and qualifications into one field.",
	"任职要求":         "Collect the required skills, experience, education and qualifications into one field.",
	"招聘要求":         "Collect the required skills, experience, education and qualifications into one field.",
	"qualifications": "Collect the required skills, experience, education and qualifications into one field.",
	"salary":         "Extract the stated compensation verbatim, including currency and range.",
	"薪资":             "Extract the stated compensation verbatim, including currency and range.",
	"location":       "Extract the work location; prefer city-level detail when given.",
	"工作地点":           "Extract the work location; prefer city-level detail when given.",
}

// Build turns a snapshot into a closed extraction contract. Every snapshot
// field appears exactly once; title is always required regardless of the
// snapshot's own flag since it anchors the record's identity.
func Build(snap *model.SchemaSnapshot) model.ExtractionContract {
	fields := make([]model.ContractField, 0, len(snap.Fields))
	for _, f := range snap.Fields {
		cf := model.ContractField{
			Name:        f.Name,
			Kind:        f.Kind,
			Description: describe(f),
			Required:    f.Required || f.Kind == model.KindTitle,
		}
		if f.Kind.HasOptions() {
			cf.Options = append([]string(nil), f.Options...)
		}
		fields = append(fields, cf)
	}
	return model.ExtractionContract{
		Fields:      fields,
		Fingerprint: snap.Fingerprint,
	}
}

// describe renders the natural-language extraction instruction for one field.
// Option strings are reproduced verbatim, never paraphrased.
func describe(f model.FieldDefinition) string {
	var b strings.Builder

	switch f.Kind {
	case model.KindTitle:
		b.WriteString("The main title of the record, e.g. the job position name.")
	case model.KindText:
		b.WriteString("Free text extracted from the page.")
	case model.KindSelect:
		b.WriteString("A single value chosen from the allowed options.")
	case model.KindMultiSelect:
		b.WriteString("Zero or more values chosen from the allowed options, as a list.")
	case model.KindStatus:
		b.WriteString("The current status, chosen from the allowed options.")
	case model.KindURL:
		b.WriteString("A full URL including the scheme.")
	case model.KindDate:
		b.WriteString("A date or datetime; preserve the page's stated value.")
	case model.KindNumber:
		b.WriteString("A numeric value; omit units and thousands separators.")
	case model.KindEmail:
		b.WriteString("An email address.")
	case model.KindPhone:
		b.WriteString("A phone number.")
	case model.KindCheckbox:
		b.WriteString("A yes/no flag.")
	case model.KindFileList:
		b.WriteString("File attachments; leave empty, files cannot be extracted from text.")
	}

	if f.Kind.HasOptions() && len(f.Options) > 0 {
		b.WriteString(" Allowed options: ")
		for i, opt := range f.Options {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%q", opt)
		}
		b.WriteString(".")
	}

	if g, ok := synonymGuidance[strings.ToLower(strings.TrimSpace(f.Name))]; ok {
		b.WriteString(" ")
		b.WriteString(g)
	}

	return b.String()
}
