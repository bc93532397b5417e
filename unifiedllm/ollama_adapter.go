package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
)

// OllamaAdapter talks to a local or remote Ollama server via /api/chat.
//
// Ollama reports done_reason "stop" whether or not the model called tools,
// so "stop" maps to tool_use when the message carries tool calls and to
// natural_stop otherwise. "length" maps to max_tokens. "load", "unload" and
// any other reason are reported as *UnmappedStopReasonError.
//
// Ollama does not issue call IDs; calls get a generated "call_<uuid>" ID and
// results are sent back as tool messages tagged with the tool name.
type OllamaAdapter struct {
	client      *api.Client
	model       string
	maxTokens   int
	temperature *float64
	logger      *slog.Logger
}

// NewOllamaAdapter creates an adapter for the server at WithBaseURL, or at
// OLLAMA_HOST when no URL is given.
func NewOllamaAdapter(opts ...AdapterOption) (*OllamaAdapter, error) {
	cfg := newAdapterConfig(ProviderOllama, opts)
	var client *api.Client
	if cfg.baseURL != "" {
		base, err := url.Parse(cfg.baseURL)
		if err != nil {
			return nil, &ConfigurationError{SDKError: SDKError{Message: "invalid ollama base URL", Cause: err}}
		}
		hc := cfg.httpClient
		if hc == nil {
			hc = http.DefaultClient
		}
		client = api.NewClient(base, hc)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, &ConfigurationError{SDKError: SDKError{Message: "failed to create ollama client", Cause: err}}
		}
	}
	return &OllamaAdapter{
		client:      client,
		model:       cfg.model,
		maxTokens:   cfg.maxTokens,
		temperature: cfg.temperature,
		logger:      cfg.logger,
	}, nil
}

func (a *OllamaAdapter) Name() string { return ProviderOllama }

// Complete sends a non-streaming chat request.
func (a *OllamaAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	chatReq, err := a.BuildRequest(req)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("sending request", "model", chatReq.Model, "messages", len(chatReq.Messages), "tools", len(chatReq.Tools))

	var final *api.ChatResponse
	err = a.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		final = &resp
		return nil
	})
	if err != nil {
		return nil, a.translateError(ctx, err)
	}
	if final == nil {
		return nil, &UnmappedStopReasonError{Provider: ProviderOllama}
	}
	return a.ParseResponse(*final)
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

// BuildRequest converts a Request into an Ollama chat request.
func (a *OllamaAdapter) BuildRequest(req Request) (*api.ChatRequest, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}
	stream := false
	out := &api.ChatRequest{
		Model:   model,
		Stream:  &stream,
		Options: map[string]any{"num_predict": a.maxTokens},
	}
	if req.MaxTokens != nil {
		out.Options["num_predict"] = *req.MaxTokens
	}
	if t := req.Temperature; t != nil {
		out.Options["temperature"] = *t
	} else if a.temperature != nil {
		out.Options["temperature"] = *a.temperature
	}

	var msgs []ollamaMessage
	if req.System != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			msgs = append(msgs, ollamaMessage{Role: "user", Content: msg.TextContent()})
		case RoleAssistant:
			m := ollamaMessage{Role: "assistant", Content: msg.TextContent()}
			for _, call := range msg.ToolCalls() {
				var tc ollamaToolCall
				tc.Function.Name = call.Name
				tc.Function.Arguments = call.Arguments
				if tc.Function.Arguments == nil {
					tc.Function.Arguments = map[string]any{}
				}
				m.ToolCalls = append(m.ToolCalls, tc)
			}
			msgs = append(msgs, m)
		case RoleTool:
			for _, result := range msg.ToolResults() {
				content := result.PayloadString()
				if result.IsError() {
					content = result.EnvelopeJSON()
				}
				msgs = append(msgs, ollamaMessage{Role: "tool", Content: content, ToolName: result.Name})
			}
		}
	}
	if err := jsonConvert(msgs, &out.Messages); err != nil {
		return nil, &InvalidRequestError{ProviderError: ProviderError{
			SDKError: SDKError{Message: "failed to encode ollama messages", Cause: err}, Provider: ProviderOllama,
		}}
	}

	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, def := range req.Tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        def.Name,
					"description": def.Description,
					"parameters":  def.Parameters.ToMap(),
				},
			})
		}
		if err := jsonConvert(tools, &out.Tools); err != nil {
			return nil, &InvalidRequestError{ProviderError: ProviderError{
				SDKError: SDKError{Message: "failed to encode ollama tools", Cause: err}, Provider: ProviderOllama,
			}}
		}
	}
	return out, nil
}

// ParseResponse converts the final chat response into a Response.
func (a *OllamaAdapter) ParseResponse(resp api.ChatResponse) (*Response, error) {
	var calls []ollamaToolCall
	if len(resp.Message.ToolCalls) > 0 {
		if err := jsonConvert(resp.Message.ToolCalls, &calls); err != nil {
			return nil, fmt.Errorf("decode ollama tool calls: %w", err)
		}
	}

	msg := Message{Role: RoleAssistant}
	if resp.Message.Content != "" {
		msg.Content = append(msg.Content, TextPart(resp.Message.Content))
	}
	for _, tc := range calls {
		args := tc.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		msg.Content = append(msg.Content, ToolCallPart(ToolCall{
			ID:        "call_" + uuid.NewString(),
			Name:      tc.Function.Name,
			Arguments: args,
		}))
	}

	raw := resp.DoneReason
	var stop StopReason
	switch raw {
	case "stop":
		if len(calls) > 0 {
			stop = StopToolUse
		} else {
			stop = StopNatural
		}
	case "length":
		stop = StopMaxTokens
	default:
		return nil, &UnmappedStopReasonError{Provider: ProviderOllama, Raw: raw}
	}

	in, outTok := resp.PromptEvalCount, resp.EvalCount
	return &Response{
		ID:            "resp_" + uuid.NewString(),
		Model:         resp.Model,
		Provider:      ProviderOllama,
		Message:       msg,
		StopReason:    stop,
		RawStopReason: raw,
		Usage:         Usage{InputTokens: in, OutputTokens: outTok, TotalTokens: in + outTok},
	}, nil
}

func (a *OllamaAdapter) translateError(ctx context.Context, err error) error {
	if cerr := contextError(ctx.Err()); cerr != nil {
		return cerr
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		msg := statusErr.ErrorMessage
		if msg == "" {
			msg = statusErr.Status
		}
		return ErrorFromStatusCode(statusErr.StatusCode, msg, ProviderOllama, "", err, nil)
	}
	return networkError(ProviderOllama, err)
}

// jsonConvert re-decodes src into dst through its JSON form.
func jsonConvert(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
