package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIAdapter talks to the Chat Completions API. It also serves any
// OpenAI-compatible endpoint, such as Groq.
//
// Finish reasons: "tool_calls" and the legacy "function_call" map to
// tool_use, "stop" to natural_stop, "length" to max_tokens and
// "content_filter" to content_filtered. A null reason, a reply without
// choices, or any other value is reported as *UnmappedStopReasonError.
//
// Some compatible servers omit tool call IDs; those calls get a generated
// "call_<uuid>" ID.
//
// Failed tool results are sent as {"error": "..."} JSON content since the
// API has no error flag on tool messages.
type OpenAIAdapter struct {
	name        string
	client      *openai.Client
	model       string
	maxTokens   int
	temperature *float64
	logger      *slog.Logger
}

// NewOpenAIAdapter creates an adapter for api.openai.com, or for the URL
// given with WithBaseURL.
func NewOpenAIAdapter(apiKey string, opts ...AdapterOption) *OpenAIAdapter {
	return newOpenAICompatible(ProviderOpenAI, apiKey, "", opts)
}

// NewGroqAdapter creates an OpenAI-compatible adapter for Groq.
func NewGroqAdapter(apiKey string, opts ...AdapterOption) *OpenAIAdapter {
	return newOpenAICompatible(ProviderGroq, apiKey, GroqBaseURL, opts)
}

func newOpenAICompatible(name, apiKey, baseURL string, opts []AdapterOption) *OpenAIAdapter {
	cfg := newAdapterConfig(name, opts)
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	if cfg.baseURL != "" {
		clientCfg.BaseURL = cfg.baseURL
	}
	if cfg.httpClient != nil {
		clientCfg.HTTPClient = cfg.httpClient
	}
	return &OpenAIAdapter{
		name:        name,
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.model,
		maxTokens:   cfg.maxTokens,
		temperature: cfg.temperature,
		logger:      cfg.logger,
	}
}

func (a *OpenAIAdapter) Name() string { return a.name }

// Complete sends the conversation to the Chat Completions API.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	chatReq := a.BuildRequest(req)
	a.logger.Debug("sending request", "model", chatReq.Model, "messages", len(chatReq.Messages), "tools", len(chatReq.Tools))

	resp, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, a.translateError(ctx, err)
	}
	return a.ParseResponse(resp)
}

// BuildRequest converts a Request into a chat completion request.
func (a *OpenAIAdapter) BuildRequest(req Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = a.model
	}
	out := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: a.maxTokens,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if t := req.Temperature; t != nil {
		out.Temperature = float32(*t)
	} else if a.temperature != nil {
		out.Temperature = float32(*a.temperature)
	}

	if req.System != "" {
		out.Messages = append(out.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			out.Messages = append(out.Messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.TextContent(),
			})
		case RoleAssistant:
			m := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.TextContent(),
			}
			for _, call := range msg.ToolCalls() {
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: encodeArguments(call),
					},
				})
			}
			out.Messages = append(out.Messages, m)
		case RoleTool:
			for _, result := range msg.ToolResults() {
				content := result.PayloadString()
				if result.IsError() {
					content = result.EnvelopeJSON()
				}
				out.Messages = append(out.Messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    content,
					ToolCallID: result.CallID,
				})
			}
		}
	}

	for _, def := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters.ToMap(),
			},
		})
	}
	return out
}

// ParseResponse converts a chat completion into a Response. Only the first
// choice is used.
func (a *OpenAIAdapter) ParseResponse(resp openai.ChatCompletionResponse) (*Response, error) {
	if len(resp.Choices) == 0 {
		return nil, &UnmappedStopReasonError{Provider: a.name}
	}
	choice := resp.Choices[0]
	raw := string(choice.FinishReason)
	var stop StopReason
	switch choice.FinishReason {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		stop = StopToolUse
	case openai.FinishReasonStop:
		stop = StopNatural
	case openai.FinishReasonLength:
		stop = StopMaxTokens
	case openai.FinishReasonContentFilter:
		stop = StopContentFiltered
	default:
		return nil, &UnmappedStopReasonError{Provider: a.name, Raw: raw}
	}

	msg := Message{Role: RoleAssistant}
	if choice.Message.Content != "" {
		msg.Content = append(msg.Content, TextPart(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		args, err := decodeArguments(tc.Function.Arguments)
		if err != nil {
			a.logger.Warn("tool call arguments are not an object", "tool", tc.Function.Name, "error", err)
		}
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		msg.Content = append(msg.Content, ToolCallPart(ToolCall{
			ID:           id,
			Name:         tc.Function.Name,
			Arguments:    args,
			RawArguments: tc.Function.Arguments,
		}))
	}
	if fc := choice.Message.FunctionCall; fc != nil && len(choice.Message.ToolCalls) == 0 {
		args, _ := decodeArguments(fc.Arguments)
		msg.Content = append(msg.Content, ToolCallPart(ToolCall{
			ID:           "call_" + fc.Name,
			Name:         fc.Name,
			Arguments:    args,
			RawArguments: fc.Arguments,
		}))
	}

	return &Response{
		ID:            resp.ID,
		Model:         resp.Model,
		Provider:      a.name,
		Message:       msg,
		StopReason:    stop,
		RawStopReason: raw,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

func (a *OpenAIAdapter) translateError(ctx context.Context, err error) error {
	if cerr := contextError(ctx.Err()); cerr != nil {
		return cerr
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		if code == "context_length_exceeded" {
			return &ContextLengthError{ProviderError: ProviderError{
				SDKError: SDKError{Message: apiErr.Message, Cause: err}, Provider: a.name,
				StatusCode: apiErr.HTTPStatusCode, ErrorCode: code,
			}}
		}
		if code == "insufficient_quota" {
			return &QuotaExceededError{ProviderError: ProviderError{
				SDKError: SDKError{Message: apiErr.Message, Cause: err}, Provider: a.name,
				StatusCode: apiErr.HTTPStatusCode, ErrorCode: code,
			}}
		}
		return ErrorFromStatusCode(apiErr.HTTPStatusCode, apiErr.Message, a.name, code, err, nil)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ErrorFromStatusCode(reqErr.HTTPStatusCode, reqErr.Error(), a.name, "", err, nil)
	}
	return networkError(a.name, err)
}
