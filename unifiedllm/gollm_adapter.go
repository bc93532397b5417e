package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// gollmToolProtocol is appended to the system prompt so models reached
// through gollm's text interface can request tools.
const gollmToolProtocol = `To call tools, reply with only a JSON array of calls and no other text:
[{"name": "<tool name>", "arguments": {<arguments>}}]
Tool results will be sent back to you. When no tool is needed, reply in plain text.`

// GollmAdapter wraps a gollm.LLM. gollm exposes text generation only, so the
// conversation is rendered as a transcript and tool calls are parsed from
// JSON in the reply.
//
// Stop reasons: a reply containing parsable tool calls maps to tool_use and
// any other reply to natural_stop. gollm does not surface truncation or
// filtering, so max_tokens and content_filtered never occur.
type GollmAdapter struct {
	backend string
	llm     gollm.LLM
	model   string
	logger  *slog.Logger
}

// NewGollmAdapter creates an adapter for the gollm backend chosen with
// WithGollmProvider. If apiKey is empty, gollm reads it from the environment.
func NewGollmAdapter(apiKey string, opts ...AdapterOption) (*GollmAdapter, error) {
	cfg := newAdapterConfig(ProviderGollm, opts)
	backend := cfg.gollmProvider
	if backend == "" {
		backend = ProviderOpenAI
	}
	temperature := 0.7
	if cfg.temperature != nil {
		temperature = *cfg.temperature
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(backend),
		gollm.SetModel(cfg.model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(temperature),
		gollm.SetMaxRetries(0), // retries belong to RetryMiddleware
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(apiKey))
	}

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("failed to create gollm LLM for backend %s", backend),
			Cause:   err,
		}}
	}
	return &GollmAdapter{backend: backend, llm: llm, model: cfg.model, logger: cfg.logger}, nil
}

func (a *GollmAdapter) Name() string { return ProviderGollm }

// Complete renders the conversation, generates a reply and parses it.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.BuildRequest(req)
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		if cerr := contextError(ctx.Err()); cerr != nil {
			return nil, cerr
		}
		return nil, a.translateError(err)
	}
	resp, err := a.ParseResponse(text)
	if err != nil {
		return nil, err
	}
	if req.Model != "" {
		resp.Model = req.Model
	}
	resp.Usage = Usage{InputTokens: estimateTokens(req), OutputTokens: len(text) / 4}
	resp.Usage.TotalTokens = resp.Usage.InputTokens + resp.Usage.OutputTokens
	return resp, nil
}

// BuildRequest renders the conversation as a gollm prompt.
func (a *GollmAdapter) BuildRequest(req Request) *gollm.Prompt {
	var parts []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			parts = append(parts, msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				parts = append(parts, "[Assistant]: "+text)
			}
			for _, call := range msg.ToolCalls() {
				parts = append(parts, fmt.Sprintf("[Assistant called %s]: %s", call.Name, encodeArguments(call)))
			}
		case RoleTool:
			for _, result := range msg.ToolResults() {
				prefix := "[Tool Result " + result.Name + "]"
				if result.IsError() {
					prefix = "[Tool Error " + result.Name + "]"
				}
				parts = append(parts, prefix+": "+result.PayloadString())
			}
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	system := req.System
	if len(req.Tools) > 0 {
		system = strings.TrimSpace(system + "\n\n" + gollmToolProtocol)
	}

	var promptOpts []gollm.PromptOption
	if system != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters.ToMap(),
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools), gollm.WithToolChoice("auto"))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// ParseResponse splits a generated reply into text and tool calls.
func (a *GollmAdapter) ParseResponse(text string) (*Response, error) {
	calls, before := parseTextToolCalls(text)

	msg := Message{Role: RoleAssistant}
	if len(calls) == 0 {
		if text != "" {
			msg.Content = append(msg.Content, TextPart(text))
		}
		return &Response{
			ID: "resp_" + uuid.New().String()[:8], Model: a.model, Provider: ProviderGollm,
			Message: msg, StopReason: StopNatural, RawStopReason: "text",
		}, nil
	}

	if before != "" {
		msg.Content = append(msg.Content, TextPart(before))
	}
	for _, call := range calls {
		msg.Content = append(msg.Content, ToolCallPart(call))
	}
	return &Response{
		ID: "resp_" + uuid.New().String()[:8], Model: a.model, Provider: ProviderGollm,
		Message: msg, StopReason: StopToolUse, RawStopReason: "tool_calls",
	}, nil
}

type textToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// parseTextToolCalls finds a JSON array of calls, or an object with a
// "tool_calls" array, and returns the calls plus the text preceding it.
func parseTextToolCalls(text string) ([]ToolCall, string) {
	for _, marker := range []string{`{"tool_calls"`, `[{"name"`, "[\n"} {
		idx := strings.Index(text, marker)
		if idx == -1 {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[idx:]))
		var raw []textToolCall
		if strings.HasPrefix(marker, "{") {
			var wrapper struct {
				ToolCalls []textToolCall `json:"tool_calls"`
			}
			if err := dec.Decode(&wrapper); err != nil {
				continue
			}
			raw = wrapper.ToolCalls
		} else if err := dec.Decode(&raw); err != nil {
			continue
		}

		var calls []ToolCall
		for _, rc := range raw {
			if rc.Name == "" {
				continue
			}
			args, _ := decodeArguments(string(rc.Arguments))
			calls = append(calls, ToolCall{
				ID:           "call_" + uuid.New().String()[:8],
				Name:         rc.Name,
				Arguments:    args,
				RawArguments: string(rc.Arguments),
			})
		}
		if len(calls) > 0 {
			return calls, strings.TrimSpace(text[:idx])
		}
	}
	return nil, text
}

// translateError classifies gollm errors, which only carry a message.
func (a *GollmAdapter) translateError(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	pe := ProviderError{SDKError: SDKError{Message: msg, Cause: err}, Provider: ProviderGollm}

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		pe.StatusCode = 401
		return &AuthenticationError{ProviderError: pe}
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		pe.StatusCode = 403
		return &AccessDeniedError{ProviderError: pe}
	case strings.Contains(lower, "404") || strings.Contains(lower, "not found"):
		pe.StatusCode = 404
		return &NotFoundError{ProviderError: pe}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		pe.StatusCode, pe.Retryable = 429, true
		return &RateLimitError{ProviderError: pe}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		pe.StatusCode = 413
		return &ContextLengthError{ProviderError: pe}
	case strings.Contains(lower, "500") || strings.Contains(lower, "internal server") || strings.Contains(lower, "503"):
		pe.StatusCode, pe.Retryable = 500, true
		return &ServerError{ProviderError: pe}
	case strings.Contains(lower, "timeout"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "safety"):
		return &ContentFilterError{ProviderError: pe}
	default:
		pe.Retryable = true
		return &pe
	}
}

// estimateTokens approximates prompt size as one token per four characters.
func estimateTokens(req Request) int {
	total := len(req.System) / 4
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			switch part.Kind {
			case ContentText:
				total += len(part.Text) / 4
			case ContentToolResult:
				total += len(part.ToolResult.PayloadString()) / 4
			}
		}
	}
	return total
}
