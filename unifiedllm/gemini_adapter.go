package unifiedllm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

// GeminiAdapter talks to the Gemini API through the genai chat session.
//
// Gemini reports STOP whether or not the turn requested functions, so STOP
// maps to tool_use when the candidate carries function calls and to
// natural_stop otherwise. MAX_TOKENS maps to max_tokens; SAFETY, RECITATION
// and a blocked prompt map to content_filtered. OTHER, unspecified and newer
// reasons are reported as *UnmappedStopReasonError.
//
// Gemini does not issue call IDs. Calls get a generated "call_<uuid>" ID and
// results are correlated on the wire by function name.
type GeminiAdapter struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature *float64
	logger      *slog.Logger
}

// GeminiRequest is the native payload for one chat turn: prior turns go in
// History and the trailing user turn is sent as Parts.
type GeminiRequest struct {
	Model       string
	System      *genai.Content
	History     []*genai.Content
	Parts       []genai.Part
	Tools       []*genai.Tool
	MaxTokens   int32
	Temperature *float32
}

// NewGeminiAdapter creates an adapter authenticated with apiKey.
func NewGeminiAdapter(ctx context.Context, apiKey string, opts ...AdapterOption) (*GeminiAdapter, error) {
	cfg := newAdapterConfig(ProviderGemini, opts)
	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.baseURL))
	}
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "failed to create gemini client", Cause: err}}
	}
	return &GeminiAdapter{
		client:      client,
		model:       cfg.model,
		maxTokens:   cfg.maxTokens,
		temperature: cfg.temperature,
		logger:      cfg.logger,
	}, nil
}

func (a *GeminiAdapter) Name() string { return ProviderGemini }

// Close releases the underlying client.
func (a *GeminiAdapter) Close() error {
	return a.client.Close()
}

// Complete replays the conversation as chat history and sends the last turn.
func (a *GeminiAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	gr, err := a.BuildRequest(req)
	if err != nil {
		return nil, err
	}
	model := a.client.GenerativeModel(gr.Model)
	model.SystemInstruction = gr.System
	model.Tools = gr.Tools
	if gr.MaxTokens > 0 {
		model.SetMaxOutputTokens(gr.MaxTokens)
	}
	if gr.Temperature != nil {
		model.SetTemperature(*gr.Temperature)
	}
	cs := model.StartChat()
	cs.History = gr.History

	a.logger.Debug("sending request", "model", gr.Model, "history", len(gr.History), "tools", len(req.Tools))
	resp, err := cs.SendMessage(ctx, gr.Parts...)
	if err != nil {
		// Blocked prompts and safety stops surface as errors; they are
		// responses as far as the loop is concerned.
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			synthetic := &genai.GenerateContentResponse{PromptFeedback: blocked.PromptFeedback}
			if blocked.Candidate != nil {
				synthetic.Candidates = []*genai.Candidate{blocked.Candidate}
			}
			return a.ParseResponse(synthetic)
		}
		return nil, a.translateError(ctx, err)
	}
	return a.ParseResponse(resp)
}

// BuildRequest converts a Request into a GeminiRequest. Consecutive messages
// that map to the same Gemini role are merged into one content.
func (a *GeminiAdapter) BuildRequest(req Request) (*GeminiRequest, error) {
	gr := &GeminiRequest{Model: req.Model, MaxTokens: int32(a.maxTokens)}
	if gr.Model == "" {
		gr.Model = a.model
	}
	if req.MaxTokens != nil {
		gr.MaxTokens = int32(*req.MaxTokens)
	}
	if t := req.Temperature; t != nil {
		f := float32(*t)
		gr.Temperature = &f
	} else if a.temperature != nil {
		f := float32(*a.temperature)
		gr.Temperature = &f
	}
	if req.System != "" {
		gr.System = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	var contents []*genai.Content
	appendParts := func(role string, parts ...genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			if text := msg.TextContent(); text != "" {
				appendParts("user", genai.Text(text))
			}
		case RoleAssistant:
			var parts []genai.Part
			for _, part := range msg.Content {
				switch {
				case part.Kind == ContentText && part.Text != "":
					parts = append(parts, genai.Text(part.Text))
				case part.Kind == ContentToolCall && part.ToolCall != nil:
					args := part.ToolCall.Arguments
					if args == nil {
						args = map[string]any{}
					}
					parts = append(parts, genai.FunctionCall{Name: part.ToolCall.Name, Args: args})
				}
			}
			appendParts("model", parts...)
		case RoleTool:
			for _, result := range msg.ToolResults() {
				appendParts("user", genai.FunctionResponse{Name: result.Name, Response: result.Envelope()})
			}
		}
	}

	if len(contents) == 0 || contents[len(contents)-1].Role != "user" {
		return nil, &InvalidRequestError{ProviderError: ProviderError{
			SDKError: SDKError{Message: "conversation must end with a user or tool turn"},
			Provider: ProviderGemini,
		}}
	}
	last := contents[len(contents)-1]
	gr.History = contents[:len(contents)-1]
	gr.Parts = last.Parts

	if len(req.Tools) > 0 {
		tool := &genai.Tool{}
		for _, def := range req.Tools {
			decl := &genai.FunctionDeclaration{Name: def.Name, Description: def.Description}
			// Gemini rejects OBJECT parameters without properties.
			if def.Parameters != nil && len(def.Parameters.Properties) > 0 {
				decl.Parameters = toGeminiSchema(def.Parameters)
			}
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, decl)
		}
		gr.Tools = []*genai.Tool{tool}
	}
	return gr, nil
}

func toGeminiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{Description: s.Description}
	switch s.Type {
	case TypeString:
		out.Type = genai.TypeString
	case TypeInteger:
		out.Type = genai.TypeInteger
	case TypeNumber:
		out.Type = genai.TypeNumber
	case TypeBoolean:
		out.Type = genai.TypeBoolean
	case TypeArray:
		out.Type = genai.TypeArray
		out.Items = toGeminiSchema(s.Items)
	case TypeObject:
		out.Type = genai.TypeObject
		if len(s.Properties) > 0 {
			out.Properties = make(map[string]*genai.Schema, len(s.Properties))
			for name, prop := range s.Properties {
				out.Properties[name] = toGeminiSchema(prop)
			}
		}
		out.Required = append([]string(nil), s.Required...)
	}
	if len(s.Enum) > 0 {
		out.Format = "enum"
		out.Enum = append([]string(nil), s.Enum...)
	}
	return out
}

// ParseResponse converts the first candidate into a Response.
func (a *GeminiAdapter) ParseResponse(resp *genai.GenerateContentResponse) (*Response, error) {
	out := &Response{
		ID:       "resp_" + uuid.NewString(),
		Model:    a.model,
		Provider: ProviderGemini,
		Message:  Message{Role: RoleAssistant},
	}
	if um := resp.UsageMetadata; um != nil {
		out.Usage = Usage{
			InputTokens:  int(um.PromptTokenCount),
			OutputTokens: int(um.CandidatesTokenCount),
			TotalTokens:  int(um.TotalTokenCount),
		}
	}

	if len(resp.Candidates) == 0 {
		if pf := resp.PromptFeedback; pf != nil && pf.BlockReason != genai.BlockReasonUnspecified {
			out.StopReason = StopContentFiltered
			out.RawStopReason = "BLOCKED_" + pf.BlockReason.String()
			return out, nil
		}
		return nil, &UnmappedStopReasonError{Provider: ProviderGemini}
	}

	cand := resp.Candidates[0]
	calls := 0
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				if p != "" {
					out.Message.Content = append(out.Message.Content, TextPart(string(p)))
				}
			case genai.FunctionCall:
				out.Message.Content = append(out.Message.Content, ToolCallPart(geminiToolCall(p)))
				calls++
			case *genai.FunctionCall:
				out.Message.Content = append(out.Message.Content, ToolCallPart(geminiToolCall(*p)))
				calls++
			}
		}
	}

	out.RawStopReason = cand.FinishReason.String()
	switch cand.FinishReason {
	case genai.FinishReasonStop:
		if calls > 0 {
			out.StopReason = StopToolUse
		} else {
			out.StopReason = StopNatural
		}
	case genai.FinishReasonMaxTokens:
		out.StopReason = StopMaxTokens
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		out.StopReason = StopContentFiltered
	default:
		return nil, &UnmappedStopReasonError{Provider: ProviderGemini, Raw: out.RawStopReason}
	}
	return out, nil
}

func geminiToolCall(fc genai.FunctionCall) ToolCall {
	args := fc.Args
	if args == nil {
		args = map[string]any{}
	}
	return ToolCall{ID: "call_" + uuid.NewString(), Name: fc.Name, Arguments: args}
}

func (a *GeminiAdapter) translateError(ctx context.Context, err error) error {
	if cerr := contextError(ctx.Err()); cerr != nil {
		return cerr
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return ErrorFromStatusCode(gErr.Code, gErr.Message, ProviderGemini, "", err, retryAfterSeconds(gErr.Header))
	}
	if apiErr, ok := apierror.FromError(err); ok {
		if status := apiErr.HTTPCode(); status > 0 {
			return ErrorFromStatusCode(status, apiErr.Error(), ProviderGemini, apiErr.Reason(), err, nil)
		}
		if st := apiErr.GRPCStatus(); st != nil {
			return ErrorFromStatusCode(grpcToHTTP(st.Code()), st.Message(), ProviderGemini, st.Code().String(), err, nil)
		}
	}
	return networkError(ProviderGemini, err)
}

func grpcToHTTP(code codes.Code) int {
	switch code {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.DeadlineExceeded:
		return http.StatusRequestTimeout
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Internal, codes.Unknown, codes.DataLoss:
		return http.StatusInternalServerError
	}
	return 0
}
