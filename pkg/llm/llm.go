// Package llm abstracts structured-output completion across model providers.
package llm

import "context"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversational message.
type Message struct {
	Role    string
	Content string
}

// Request asks a provider for one completion constrained to a JSON schema.
type Request struct {
	System    string
	Messages  []Message
	Schema    map[string]any
	MaxTokens int
}

// TokenUsage tracks token consumption for one call.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is the provider's reply. Content is the raw JSON text.
type Response struct {
	Content string
	Model   string
	Usage   TokenUsage
}

// Provider is a structured-output-capable language model.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Name() string
}
