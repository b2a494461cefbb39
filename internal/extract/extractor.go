// Package extract invokes a language model against an extraction contract
// and enforces the contract's JSON shape on the reply.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jobclip/jobclip-cli/internal/contract"
	"github.com/jobclip/jobclip-cli/internal/model"
	"github.com/jobclip/jobclip-cli/internal/resilience"
	"github.com/jobclip/jobclip-cli/pkg/llm"
)

// ErrorKind distinguishes extraction failure modes.
type ErrorKind string

const (
	// KindMalformedOutput means the model kept producing output that does
	// not match the contract shape.
	KindMalformedOutput ErrorKind = "malformed_output"
	// KindUnavailable means the provider could not be reached.
	KindUnavailable ErrorKind = "unavailable"
)

// Error is a failed extraction.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Extractor runs contract-constrained extraction calls.
type Extractor struct {
	provider      llm.Provider
	maxTokens     int
	repairRetries int
	retry         resilience.RetryConfig
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRepairRetries sets how many corrective reprompts are attempted after a
// malformed reply.
func WithRepairRetries(n int) Option {
	return func(e *Extractor) { e.repairRetries = n }
}

// WithMaxTokens sets the completion token budget.
func WithMaxTokens(n int) Option {
	return func(e *Extractor) { e.maxTokens = n }
}

// WithRetryConfig overrides the transport retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(e *Extractor) { e.retry = cfg }
}

// New creates an Extractor over the given provider.
func New(provider llm.Provider, opts ...Option) *Extractor {
	e := &Extractor{
		provider:      provider,
		maxTokens:     4096,
		repairRetries: 2,
		retry:         resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Infer extracts a record from page content. The reply must be a JSON object
// whose values are primitives or lists of primitives; enum membership and
// semantic validity are left to normalization. When srcURL is non-empty and
// the contract has a url field, the source URL overrides whatever the model
// produced for it.
func (e *Extractor) Infer(ctx context.Context, content, srcURL string, c model.ExtractionContract) (*model.RawRecord, error) {
	schema := contract.JSONSchema(c)
	system := contract.SystemPrompt(c)

	messages := []llm.Message{{Role: llm.RoleUser, Content: content}}

	var lastShapeErr error
	for attempt := 0; attempt <= e.repairRetries; attempt++ {
		req := llm.Request{
			System:    system,
			Messages:  messages,
			Schema:    schema,
			MaxTokens: e.maxTokens,
		}

		cfg := e.retry
		cfg.OnRetry = resilience.RetryLogger(e.provider.Name(), "complete")
		resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*llm.Response, error) {
			return e.provider.Complete(ctx, req)
		})
		if err != nil {
			return nil, &Error{Kind: KindUnavailable, Err: err}
		}

		values, shapeErr := parseRecord(resp.Content, c)
		if shapeErr == nil {
			if urlField := c.FieldOfKind(model.KindURL); urlField != "" && srcURL != "" {
				values[urlField] = srcURL
			}
			return &model.RawRecord{
				Values:              values,
				ContractFingerprint: c.Fingerprint,
			}, nil
		}
		lastShapeErr = shapeErr

		zap.L().Warn("malformed extraction output",
			zap.String("provider", e.provider.Name()),
			zap.Int("attempt", attempt+1),
			zap.Error(shapeErr),
		)

		// Resend with the invalid output and a corrective instruction.
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(
				"The previous output was invalid: %v. Reply again with a single JSON object matching the field specification exactly.",
				shapeErr,
			)},
		)
	}

	return nil, &Error{Kind: KindMalformedOutput, Err: lastShapeErr}
}

// parseRecord decodes the model reply and checks it against the contract's
// field/type shape.
func parseRecord(raw string, c model.ExtractionContract) (map[string]any, error) {
	cleaned := StripMarkdownFence(raw)
	if strings.TrimSpace(cleaned) == "" {
		return nil, eris.New("empty reply")
	}

	var values map[string]any
	if err := json.Unmarshal([]byte(cleaned), &values); err != nil {
		return nil, eris.Wrap(err, "reply is not a JSON object")
	}

	for name, v := range values {
		f, ok := c.Field(name)
		if !ok {
			// Unsolicited keys are not a shape violation; normalization
			// drops them.
			continue
		}
		if err := checkShape(f, v); err != nil {
			return nil, err
		}
	}

	return values, nil
}

func checkShape(f model.ContractField, v any) error {
	if v == nil {
		return nil
	}
	switch f.Kind {
	case model.KindNumber:
		switch v.(type) {
		case float64, string:
			return nil
		}
		return eris.Errorf("field %q: expected number, got %T", f.Name, v)
	case model.KindCheckbox:
		switch v.(type) {
		case bool, string, float64:
			return nil
		}
		return eris.Errorf("field %q: expected boolean, got %T", f.Name, v)
	case model.KindMultiSelect, model.KindFileList:
		switch vv := v.(type) {
		case []any:
			for _, el := range vv {
				if !isPrimitive(el) {
					return eris.Errorf("field %q: list element %T is not a primitive", f.Name, el)
				}
			}
			return nil
		case string:
			return nil
		}
		return eris.Errorf("field %q: expected list, got %T", f.Name, v)
	default:
		if isPrimitive(v) {
			return nil
		}
		return eris.Errorf("field %q: expected primitive, got %T", f.Name, v)
	}
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case string, float64, bool, nil:
		return true
	default:
		return false
	}
}

// StripMarkdownFence removes a surrounding ```json fence when present.
func StripMarkdownFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
