package contract

import (
	"fmt"
	"strings"

	"github.com/jobclip/jobclip-cli/internal/model"
)

// JSONSchema renders the contract as a closed JSON Schema object suitable as
// a structured-output constraint. Unknown fields are forbidden via
// additionalProperties=false.
func JSONSchema(c model.ExtractionContract) map[string]any {
	properties := make(map[string]any, len(c.Fields))
	required := make([]string, 0, len(c.Fields))

	for _, f := range c.Fields {
		properties[f.Name] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}

	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func fieldSchema(f model.ContractField) map[string]any {
	s := map[string]any{"description": f.Description}

	switch f.Kind {
	case model.KindNumber:
		s["type"] = "number"
	case model.KindCheckbox:
		s["type"] = "boolean"
	case model.KindMultiSelect:
		item := map[string]any{"type": "string"}
		if len(f.Options) > 0 {
			item["enum"] = toAnySlice(f.Options)
		}
		s["type"] = "array"
		s["items"] = item
	case model.KindFileList:
		s["type"] = "array"
		s["items"] = map[string]any{"type": "string"}
	default:
		s["type"] = "string"
		if f.Kind.HasOptions() && len(f.Options) > 0 {
			s["enum"] = toAnySlice(f.Options)
		}
	}

	return s
}

func toAnySlice(vals []string) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

// SystemPrompt renders the extraction instructions for one contract.
func SystemPrompt(c model.ExtractionContract) string {
	var b strings.Builder

	b.WriteString("You extract structured data from a web page.\n")
	b.WriteString("Return a single JSON object with exactly the fields described below. ")
	b.WriteString("Do not invent fields. Use an empty string for text fields you cannot find, ")
	b.WriteString("and omit nothing that is required.\n\nFields:\n")

	for _, f := range c.Fields {
		fmt.Fprintf(&b, "- %s (%s)", f.Name, f.Kind)
		if f.Required {
			b.WriteString(" [required]")
		}
		b.WriteString(": ")
		b.WriteString(f.Description)
		b.WriteString("\n")
	}

	b.WriteString("\nFor option-constrained fields, copy the option text exactly as listed.")
	return b.String()
}
