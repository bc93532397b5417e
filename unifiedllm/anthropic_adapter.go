package unifiedllm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicAdapter talks to the Anthropic Messages API.
//
// Stop reasons: "tool_use" maps to tool_use, "end_turn" and "stop_sequence"
// to natural_stop, "max_tokens" to max_tokens and "refusal" to
// content_filtered. "pause_turn", an empty reason and anything newer are
// reported as *UnmappedStopReasonError.
//
// Consecutive tool messages are sent as a single user message holding one
// tool_result block per result, in call order.
type AnthropicAdapter struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature *float64
	logger      *slog.Logger
}

// NewAnthropicAdapter creates an adapter authenticated with apiKey. The SDK's
// own retries are disabled; use RetryMiddleware instead.
func NewAnthropicAdapter(apiKey string, opts ...AdapterOption) *AnthropicAdapter {
	cfg := newAdapterConfig(ProviderAnthropic, opts)
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}
	return &AnthropicAdapter{
		client:      anthropic.NewClient(reqOpts...),
		model:       cfg.model,
		maxTokens:   cfg.maxTokens,
		temperature: cfg.temperature,
		logger:      cfg.logger,
	}
}

func (a *AnthropicAdapter) Name() string { return ProviderAnthropic }

// Complete sends the conversation to the Messages API.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	params := a.BuildRequest(req)
	a.logger.Debug("sending request", "model", params.Model, "messages", len(params.Messages), "tools", len(params.Tools))

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, a.translateError(ctx, err)
	}
	return a.ParseResponse(msg)
}

// BuildRequest converts a Request into Messages API parameters.
func (a *AnthropicAdapter) BuildRequest(req Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = a.model
	}
	maxTokens := a.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  anthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if t := req.Temperature; t != nil {
		params.Temperature = anthropic.Float(*t)
	} else if a.temperature != nil {
		params.Temperature = anthropic.Float(*a.temperature)
	}
	for _, def := range req.Tools {
		schema := def.Parameters.ToMap()
		tool := anthropic.ToolParam{
			Name: def.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema["properties"],
			},
		}
		if def.Description != "" {
			tool.Description = anthropic.String(def.Description)
		}
		if def.Parameters != nil {
			tool.InputSchema.Required = def.Parameters.Required
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return params
}

func anthropicMessages(msgs []Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var pending []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pending) > 0 {
			out = append(out, anthropic.NewUserMessage(pending...))
			pending = nil
		}
	}

	for _, msg := range msgs {
		switch msg.Role {
		case RoleTool:
			for _, result := range msg.ToolResults() {
				pending = append(pending, anthropic.NewToolResultBlock(result.CallID, result.PayloadString(), result.IsError()))
			}
		case RoleUser:
			flush()
			if text := msg.TextContent(); text != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		case RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			for _, part := range msg.Content {
				switch {
				case part.Kind == ContentText && part.Text != "":
					blocks = append(blocks, anthropic.NewTextBlock(part.Text))
				case part.Kind == ContentToolCall && part.ToolCall != nil:
					args := part.ToolCall.Arguments
					if args == nil {
						args = map[string]any{}
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(part.ToolCall.ID, args, part.ToolCall.Name))
				}
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}
	flush()
	return out
}

// ParseResponse converts a Messages API reply into a Response.
func (a *AnthropicAdapter) ParseResponse(msg *anthropic.Message) (*Response, error) {
	raw := string(msg.StopReason)
	var stop StopReason
	switch raw {
	case "tool_use":
		stop = StopToolUse
	case "end_turn", "stop_sequence":
		stop = StopNatural
	case "max_tokens":
		stop = StopMaxTokens
	case "refusal":
		stop = StopContentFiltered
	default:
		return nil, &UnmappedStopReasonError{Provider: ProviderAnthropic, Raw: raw}
	}

	out := Message{Role: RoleAssistant}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				out.Content = append(out.Content, TextPart(block.Text))
			}
		case "tool_use":
			rawArgs := string(block.Input)
			args, err := decodeArguments(rawArgs)
			if err != nil {
				a.logger.Warn("tool_use input is not an object", "tool", block.Name, "error", err)
			}
			out.Content = append(out.Content, ToolCallPart(ToolCall{
				ID:           block.ID,
				Name:         block.Name,
				Arguments:    args,
				RawArguments: rawArgs,
			}))
		}
	}

	in, outTok := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &Response{
		ID:            msg.ID,
		Model:         string(msg.Model),
		Provider:      ProviderAnthropic,
		Message:       out,
		StopReason:    stop,
		RawStopReason: raw,
		Usage:         Usage{InputTokens: in, OutputTokens: outTok, TotalTokens: in + outTok},
	}, nil
}

func (a *AnthropicAdapter) translateError(ctx context.Context, err error) error {
	if cerr := contextError(ctx.Err()); cerr != nil {
		return cerr
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		var retryAfter *float64
		if apiErr.Response != nil {
			retryAfter = retryAfterSeconds(apiErr.Response.Header)
		}
		return ErrorFromStatusCode(apiErr.StatusCode, apiErr.Error(), ProviderAnthropic, "", err, retryAfter)
	}
	return networkError(ProviderAnthropic, err)
}
