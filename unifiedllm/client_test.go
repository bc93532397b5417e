package unifiedllm

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockAdapter is a test double for ProviderAdapter. errs are returned in
// order before response is served.
type mockAdapter struct {
	name     string
	response *Response
	errs     []error
	calls    int
	closed   bool
	lastReq  Request
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	m.calls++
	m.lastReq = req
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	return m.response, nil
}

func (m *mockAdapter) Close() error {
	m.closed = true
	return nil
}

func newMockAdapter(name, text string) *mockAdapter {
	return &mockAdapter{
		name: name,
		response: &Response{
			ID:         "test_resp",
			Model:      "test-model",
			Provider:   name,
			Message:    AssistantMessage(text),
			StopReason: StopNatural,
			Usage:      Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
		},
	}
}

func TestClientComplete(t *testing.T) {
	mock := newMockAdapter("test-provider", "Hello!")
	client := NewClient(
		WithProvider("test-provider", mock),
		WithDefaultProvider("test-provider"),
	)

	resp, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", resp.Text())
	}
	if mock.lastReq.Provider != "test-provider" {
		t.Errorf("expected request provider to be filled in, got %q", mock.lastReq.Provider)
	}
}

func TestClientProviderRouting(t *testing.T) {
	openai := newMockAdapter("openai", "OpenAI response")
	anthropic := newMockAdapter("anthropic", "Anthropic response")

	client := NewClient(
		WithProvider("openai", openai),
		WithProvider("anthropic", anthropic),
		WithDefaultProvider("openai"),
	)

	resp, err := client.Complete(context.Background(), Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{UserMessage("Hi")},
		Provider: "anthropic",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Anthropic response" {
		t.Errorf("expected Anthropic response, got %q", resp.Text())
	}

	resp, err = client.Complete(context.Background(), Request{
		Model:    "gpt-4o",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "OpenAI response" {
		t.Errorf("expected OpenAI response, got %q", resp.Text())
	}
}

func TestClientRoutesByCatalogModel(t *testing.T) {
	gemini := newMockAdapter("gemini", "from gemini")
	client := &Client{providers: map[string]ProviderAdapter{"gemini": gemini}}

	resp, err := client.Complete(context.Background(), Request{
		Model:    "gemini-2.0-flash",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "from gemini" {
		t.Errorf("expected catalog routing to gemini, got %q", resp.Text())
	}
}

func TestClientNoProvider(t *testing.T) {
	client := NewClient()
	_, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err == nil {
		t.Fatal("expected error for no provider")
	}
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigurationError, got %T", err)
	}
}

func TestClientMiddlewareOrder(t *testing.T) {
	mock := newMockAdapter("test", "response")
	var order []int

	mw1 := func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		order = append(order, 1)
		resp, err := next(ctx, req)
		order = append(order, -1)
		return resp, err
	}
	mw2 := func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		order = append(order, 2)
		resp, err := next(ctx, req)
		order = append(order, -2)
		return resp, err
	}

	client := NewClient(
		WithProvider("test", mock),
		WithMiddleware(mw1, mw2),
	)

	_, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Onion pattern: first registered runs first for request, reverse for response.
	expected := []int{1, 2, -2, -1}
	if len(order) != len(expected) {
		t.Fatalf("expected %d middleware calls, got %d", len(expected), len(order))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("position %d: expected %d, got %d", i, v, order[i])
		}
	}
}

func TestClientRetryMiddleware(t *testing.T) {
	mock := newMockAdapter("test", "eventually")
	mock.errs = []error{
		ErrorFromStatusCode(503, "overloaded", "test", "", nil, nil),
		ErrorFromStatusCode(429, "slow down", "test", "", nil, nil),
	}
	var retries []int
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}
	policy.OnRetry = func(err error, attempt int, _ time.Duration) {
		retries = append(retries, attempt)
	}

	client := NewClient(WithProvider("test", mock), WithMiddleware(RetryMiddleware(policy)))
	resp, err := client.Complete(context.Background(), Request{Messages: []Message{UserMessage("Hi")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "eventually" {
		t.Errorf("expected %q, got %q", "eventually", resp.Text())
	}
	if mock.calls != 3 {
		t.Errorf("expected 3 provider calls, got %d", mock.calls)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("unexpected retry attempts: %v", retries)
	}
}

func TestClientRetryMiddlewareStopsOnAuthError(t *testing.T) {
	mock := newMockAdapter("test", "never")
	mock.errs = []error{ErrorFromStatusCode(401, "bad key", "test", "", nil, nil)}
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}

	client := NewClient(WithProvider("test", mock), WithMiddleware(RetryMiddleware(policy)))
	_, err := client.Complete(context.Background(), Request{Messages: []Message{UserMessage("Hi")}})
	if KindOf(err) != KindAuthentication {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if mock.calls != 1 {
		t.Errorf("expected a single call, got %d", mock.calls)
	}
}

func TestClientRegisterProvider(t *testing.T) {
	client := NewClient()
	mock := newMockAdapter("dynamic", "dynamic response")
	client.RegisterProvider("dynamic", mock)

	resp, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "dynamic response" {
		t.Errorf("expected %q, got %q", "dynamic response", resp.Text())
	}
	if names := client.ProviderNames(); len(names) != 1 || names[0] != "dynamic" {
		t.Errorf("unexpected provider names %v", names)
	}
}

func TestClientClose(t *testing.T) {
	a := newMockAdapter("a", "")
	b := newMockAdapter("b", "")
	client := NewClient(WithProvider("a", a), WithProvider("b", b))
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("expected every adapter to be closed")
	}
}
