package llm

import (
	"context"
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const extractToolName = "emit_record"

// AnthropicProvider implements Provider over the official SDK, using
// tool-use to force schema-conforming JSON output.
type AnthropicProvider struct {
	client sdk.Client
	model  string
}

// NewAnthropic creates an Anthropic-backed provider.
func NewAnthropic(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: maxTokens,
		Messages:  toSDKMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	if req.Schema != nil {
		properties, _ := req.Schema["properties"].(map[string]any)
		required, _ := req.Schema["required"].([]string)
		params.Tools = []sdk.ToolUnionParam{
			{
				OfTool: &sdk.ToolParam{
					Name:        extractToolName,
					Description: sdk.String("Emit the extracted record as structured data"),
					InputSchema: sdk.ToolInputSchemaParam{
						Type:       "object",
						Properties: properties,
						Required:   required,
					},
				},
			},
		}
		params.ToolChoice = sdk.ToolChoiceParamOfTool(extractToolName)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	var content string
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			content = b.Text
		case sdk.ToolUseBlock:
			// The tool input is the structured record itself.
			raw, err := json.Marshal(b.Input)
			if err != nil {
				return nil, eris.Wrap(err, "anthropic: marshal tool input")
			}
			content = string(raw)
		}
	}

	zap.L().Debug("anthropic completion",
		zap.String("model", string(msg.Model)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)

	return &Response{
		Content: content,
		Model:   string(msg.Model),
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}

func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case RoleAssistant:
			out[i] = sdk.NewAssistantMessage(block)
		default:
			out[i] = sdk.NewUserMessage(block)
		}
	}
	return out
}

var _ Provider = (*AnthropicProvider)(nil)
