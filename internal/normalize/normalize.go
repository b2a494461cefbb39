// Package normalize coerces raw extracted values into sink-ready payloads,
// field kind by field kind. Normalize is pure: same inputs, same outputs,
// no side effects.
package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/jobclip/jobclip-cli/internal/model"
)

// ValidationError is the normalizer's only fatal failure: a record whose
// title is empty after trimming has no usable identity.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on field %q: %s", e.Field, e.Reason)
}

// Options tunes normalization behavior.
type Options struct {
	// FuzzyThreshold is the minimal token-set score (0-100) for a fuzzy
	// option match. Default 80.
	FuzzyThreshold int
	// StrictOptions controls sub-threshold select values: strict drops them
	// with a warning, non-strict passes the raw value through as a
	// new-option candidate.
	StrictOptions bool
	// MaxTextLen truncates text fields. Default 2000.
	MaxTextLen int
}

// DefaultOptions returns the standard normalization settings.
func DefaultOptions() Options {
	return Options{FuzzyThreshold: 80, StrictOptions: true, MaxTextLen: 2000}
}

var (
	currencyStripRe = regexp.MustCompile(`[,¥$€£%\s]`)
	multiSplitRe    = regexp.MustCompile(`[,;|、]`)
	emailRe         = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneCharsRe    = regexp.MustCompile(`^[+]?[0-9()\-\. ]+$`)
	digitRe         = regexp.MustCompile(`[0-9]`)
)

// truthyTokens maps affirmative checkbox inputs; everything else is false.
var truthyTokens = map[string]bool{
	"true": true, "yes": true, "是": true, "1": true, "on": true, "enabled": true, "启用": true,
}

// Normalize validates and coerces a raw record against a snapshot. Keys not
// present in the snapshot are dropped. Every defect except an empty title
// becomes a warning, never an error.
func Normalize(rec *model.RawRecord, snap *model.SchemaSnapshot, opts Options) (*model.NormalizedPayload, error) {
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = 80
	}
	if opts.MaxTextLen <= 0 {
		opts.MaxTextLen = 2000
	}

	payload := &model.NormalizedPayload{Values: make(map[string]any)}

	for _, f := range snap.Fields {
		raw, ok := rec.Values[f.Name]
		if !ok || raw == nil {
			if f.Kind == model.KindTitle {
				return nil, &ValidationError{Field: f.Name, Reason: "title is empty"}
			}
			continue
		}

		value, warnings, keep := normalizeField(f, raw, opts)
		payload.Warnings = append(payload.Warnings, warnings...)
		if f.Kind == model.KindTitle {
			title, _ := value.(string)
			if title == "" {
				return nil, &ValidationError{Field: f.Name, Reason: "title is empty"}
			}
		}
		if keep {
			payload.Values[f.Name] = value
		}
	}

	// A snapshot without a title field cannot produce identifiable records.
	if title := titleField(snap); title == "" {
		return nil, &ValidationError{Field: "title", Reason: "schema has no title field"}
	}

	return payload, nil
}

func titleField(snap *model.SchemaSnapshot) string {
	for _, f := range snap.Fields {
		if f.Kind == model.KindTitle {
			return f.Name
		}
	}
	return ""
}

// normalizeField applies the per-kind rule. keep=false omits the field from
// the payload entirely.
func normalizeField(f model.FieldDefinition, raw any, opts Options) (value any, warnings []model.FieldWarning, keep bool) {
	warn := func(format string, args ...any) {
		warnings = append(warnings, model.FieldWarning{Field: f.Name, Message: fmt.Sprintf(format, args...)})
	}

	switch f.Kind {
	case model.KindTitle:
		return strings.TrimSpace(coerceString(raw)), nil, true

	case model.KindText:
		s := strings.TrimSpace(coerceString(raw))
		if runes := []rune(s); len(runes) > opts.MaxTextLen {
			s = string(runes[:opts.MaxTextLen])
			warn("text truncated to %d characters", opts.MaxTextLen)
		}
		return s, warnings, true

	case model.KindSelect, model.KindStatus:
		s := strings.TrimSpace(coerceString(raw))
		if s == "" {
			return nil, nil, false
		}
		if canonical, ok := matchOption(s, f.Options, opts.FuzzyThreshold); ok {
			return canonical, nil, true
		}
		if opts.StrictOptions {
			warn("value %q matches no option", s)
			return nil, warnings, false
		}
		warn("value %q matches no option, passed through as new option candidate", s)
		return s, warnings, true

	case model.KindMultiSelect:
		return normalizeMultiSelect(f, raw, opts, warn)

	case model.KindDate:
		s := strings.TrimSpace(coerceString(raw))
		if s == "" {
			return nil, nil, false
		}
		iso, err := toISODate(s)
		if err != nil {
			warn("unparseable date %q", s)
			return nil, warnings, false
		}
		return iso, nil, true

	case model.KindNumber:
		switch v := raw.(type) {
		case float64:
			return v, nil, true
		case string:
			stripped := currencyStripRe.ReplaceAllString(strings.TrimSpace(v), "")
			if stripped == "" {
				return nil, nil, false
			}
			n, err := strconv.ParseFloat(stripped, 64)
			if err != nil {
				warn("non-numeric value %q", v)
				return nil, warnings, false
			}
			return n, nil, true
		default:
			warn("non-numeric value %v", raw)
			return nil, warnings, false
		}

	case model.KindURL:
		s := strings.TrimSpace(coerceString(raw))
		if s == "" {
			return nil, nil, false
		}
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			warn("invalid url %q", s)
			return nil, warnings, false
		}
		return s, nil, true

	case model.KindEmail:
		s := strings.TrimSpace(coerceString(raw))
		if s == "" {
			return nil, nil, false
		}
		if !emailRe.MatchString(s) {
			warn("invalid email %q", s)
			return nil, warnings, false
		}
		return s, nil, true

	case model.KindPhone:
		s := strings.TrimSpace(coerceString(raw))
		if s == "" {
			return nil, nil, false
		}
		if !phoneCharsRe.MatchString(s) || len(digitRe.FindAllString(s, -1)) < 7 {
			warn("invalid phone %q", s)
			return nil, warnings, false
		}
		return s, nil, true

	case model.KindCheckbox:
		switch v := raw.(type) {
		case bool:
			return v, nil, true
		case string:
			return truthyTokens[fold(v)], nil, true
		case float64:
			return v == 1, nil, true
		default:
			return false, nil, true
		}

	case model.KindFileList:
		// Files cannot be synthesized from page text.
		return []string{}, nil, true

	default:
		return nil, nil, false
	}
}

func normalizeMultiSelect(f model.FieldDefinition, raw any, opts Options, warn func(string, ...any)) (any, []model.FieldWarning, bool) {
	var warnings []model.FieldWarning
	collect := func(format string, args ...any) {
		warnings = append(warnings, model.FieldWarning{Field: f.Name, Message: fmt.Sprintf(format, args...)})
	}

	var elements []string
	switch v := raw.(type) {
	case []any:
		for _, el := range v {
			elements = append(elements, strings.TrimSpace(coerceString(el)))
		}
	case string:
		for _, part := range multiSplitRe.Split(v, -1) {
			elements = append(elements, strings.TrimSpace(part))
		}
	default:
		collect("expected a list, got %T", raw)
		return nil, warnings, false
	}

	// Each element follows the select rule independently; invalid elements
	// are dropped, valid ones kept.
	var out []string
	seen := make(map[string]bool)
	for _, el := range elements {
		if el == "" {
			continue
		}
		canonical, ok := matchOption(el, f.Options, opts.FuzzyThreshold)
		if !ok {
			if opts.StrictOptions {
				collect("element %q matches no option", el)
				continue
			}
			collect("element %q matches no option, passed through as new option candidate", el)
			canonical = el
		}
		if !seen[canonical] {
			seen[canonical] = true
			out = append(out, canonical)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out, warnings, true
}

// toISODate parses common textual date forms into ISO-8601. Date-only
// inputs stay date-only.
func toISODate(s string) (string, error) {
	// Already-normalized values round-trip unchanged.
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Format("2006-01-02"), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(time.RFC3339), nil
	}

	t, err := dateparse.ParseAny(s)
	if err != nil {
		return "", err
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02"), nil
	}
	return t.Format(time.RFC3339), nil
}

// coerceString renders a JSON primitive (or list of them) as a string.
func coerceString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case []any:
		parts := make([]string, 0, len(s))
		for _, el := range s {
			if p := coerceString(el); p != "" {
				parts = append(parts, p)
			}
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
