// Package unifiedllm presents several LLM providers behind one canonical
// message model and one completion call.
//
// # Architecture
//
// The package has three layers:
//
//   - Types: Message, ContentPart, ToolCall, ToolResult, Schema and the
//     StopReason vocabulary shared by every provider.
//   - Adapters: one ProviderAdapter per wire protocol. Each converts a
//     Request into the provider's native payload and the native response
//     back into a Response, normalizing the stop reason.
//   - Client: routes requests to adapters by provider name or model
//     catalog entry and runs middleware such as RetryMiddleware.
//
// # Quick Start
//
//	adapter, err := unifiedllm.NewAdapter(ctx, unifiedllm.ProviderAnthropic, os.Getenv("ANTHROPIC_API_KEY"))
//	if err != nil {
//	    return err
//	}
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider(unifiedllm.ProviderAnthropic, adapter),
//	    unifiedllm.WithMiddleware(unifiedllm.RetryMiddleware(unifiedllm.DefaultRetryPolicy())),
//	)
//	resp, err := client.Complete(ctx, unifiedllm.Request{
//	    Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
//
// # Stop Reasons
//
// Every adapter maps its provider's native stop signal onto StopToolUse,
// StopNatural, StopMaxTokens or StopContentFiltered. A signal with no
// mapping is returned as *UnmappedStopReasonError rather than guessed.
//
// # Tool Results
//
// Results travel as one tool message per call. Adapters whose protocol
// expects results grouped in a single turn (Anthropic, Gemini) merge
// consecutive tool messages while preserving call order.
package unifiedllm
