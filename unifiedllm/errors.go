package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// SDKError is the base error type for all unified LLM errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by an LLM provider.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorCode  string
	Retryable  bool
	RetryAfter *float64
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type AccessDeniedError struct{ ProviderError }
type NotFoundError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContentFilterError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }
type QuotaExceededError struct{ ProviderError }

// Non-provider errors.

type RequestTimeoutError struct{ SDKError }
type AbortError struct{ SDKError }
type NetworkError struct{ SDKError }
type ConfigurationError struct{ SDKError }

// UnmappedStopReasonError is returned by ParseResponse when a backend reports
// a stop reason the adapter has no mapping for.
type UnmappedStopReasonError struct {
	Provider string
	Raw      string
}

func (e *UnmappedStopReasonError) Error() string {
	if e.Raw == "" {
		return fmt.Sprintf("[%s] response carried no stop reason", e.Provider)
	}
	return fmt.Sprintf("[%s] unmapped stop reason %q", e.Provider, e.Raw)
}

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, provider, errorCode string, cause error, retryAfter *float64) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message, Cause: cause},
		Provider:   provider,
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		RetryAfter: retryAfter,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{ProviderError: pe}
	case 401:
		return &AuthenticationError{ProviderError: pe}
	case 402:
		return &QuotaExceededError{ProviderError: pe}
	case 403:
		return &AccessDeniedError{ProviderError: pe}
	case 404:
		return &NotFoundError{ProviderError: pe}
	case 408:
		return &RequestTimeoutError{SDKError: SDKError{Message: message, Cause: cause}}
	case 413:
		return &ContextLengthError{ProviderError: pe}
	case 429:
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504, 529:
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		// Unknown errors default to retryable.
		pe.Retryable = true
		return &pe
	}
}

// IsRetryable returns true if the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var (
		auth     *AuthenticationError
		denied   *AccessDeniedError
		notFound *NotFoundError
		invalid  *InvalidRequestError
		ctxLen   *ContextLengthError
		quota    *QuotaExceededError
		filter   *ContentFilterError
		config   *ConfigurationError
		abort    *AbortError
		unmapped *UnmappedStopReasonError
		rate     *RateLimitError
		server   *ServerError
		network  *NetworkError
		timeout  *RequestTimeoutError
		provider *ProviderError
	)
	switch {
	case errors.As(err, &auth), errors.As(err, &denied), errors.As(err, &notFound),
		errors.As(err, &invalid), errors.As(err, &ctxLen), errors.As(err, &quota),
		errors.As(err, &filter), errors.As(err, &config), errors.As(err, &abort),
		errors.As(err, &unmapped):
		return false
	case errors.As(err, &rate), errors.As(err, &server), errors.As(err, &network), errors.As(err, &timeout):
		return true
	case errors.As(err, &provider):
		return provider.Retryable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		// Unknown errors default to retryable.
		return true
	}
}

// ErrorKind is a short stable classification used in loop outcomes and logs.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindAuthentication     ErrorKind = "authentication"
	KindAccessDenied       ErrorKind = "access_denied"
	KindNotFound           ErrorKind = "not_found"
	KindInvalidRequest     ErrorKind = "invalid_request"
	KindRateLimit          ErrorKind = "rate_limit"
	KindServer             ErrorKind = "server"
	KindContentFilter      ErrorKind = "content_filter"
	KindContextLength      ErrorKind = "context_length"
	KindQuotaExceeded      ErrorKind = "quota_exceeded"
	KindTimeout            ErrorKind = "timeout"
	KindNetwork            ErrorKind = "network"
	KindCancelled          ErrorKind = "cancelled"
	KindConfiguration      ErrorKind = "configuration"
	KindProvider           ErrorKind = "provider"
	KindUnmappedStopReason ErrorKind = "unmapped_stop_reason"
	KindUnknown            ErrorKind = "unknown"
)

// KindOf classifies err. Wrapped errors are unwrapped with errors.As.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var (
		unmapped *UnmappedStopReasonError
		auth     *AuthenticationError
		denied   *AccessDeniedError
		notFound *NotFoundError
		invalid  *InvalidRequestError
		rate     *RateLimitError
		server   *ServerError
		filter   *ContentFilterError
		ctxLen   *ContextLengthError
		quota    *QuotaExceededError
		timeout  *RequestTimeoutError
		abort    *AbortError
		network  *NetworkError
		config   *ConfigurationError
		provider *ProviderError
	)
	switch {
	case errors.As(err, &unmapped):
		return KindUnmappedStopReason
	case errors.As(err, &auth):
		return KindAuthentication
	case errors.As(err, &denied):
		return KindAccessDenied
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &invalid):
		return KindInvalidRequest
	case errors.As(err, &rate):
		return KindRateLimit
	case errors.As(err, &server):
		return KindServer
	case errors.As(err, &filter):
		return KindContentFilter
	case errors.As(err, &ctxLen):
		return KindContextLength
	case errors.As(err, &quota):
		return KindQuotaExceeded
	case errors.As(err, &timeout):
		return KindTimeout
	case errors.As(err, &abort), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &network):
		return KindNetwork
	case errors.As(err, &config):
		return KindConfiguration
	case errors.As(err, &provider):
		return KindProvider
	default:
		return KindUnknown
	}
}

// IsTransportError reports whether err came from the provider call itself
// rather than from interpreting its response.
func IsTransportError(err error) bool {
	switch KindOf(err) {
	case KindNone, KindUnmappedStopReason, KindConfiguration, KindUnknown:
		return false
	}
	return true
}

// networkError wraps a low-level transport failure.
func networkError(provider string, err error) error {
	return &NetworkError{SDKError: SDKError{Message: provider + " request failed", Cause: err}}
}

// contextError converts a context failure into the unified hierarchy.
func contextError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: err}}
	case errors.Is(err, context.DeadlineExceeded):
		return &RequestTimeoutError{SDKError: SDKError{Message: "request deadline exceeded", Cause: err}}
	}
	return nil
}

// retryAfterSeconds reads a numeric Retry-After header.
func retryAfterSeconds(h http.Header) *float64 {
	v := h.Get("Retry-After")
	if v == "" {
		return nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return nil
	}
	return &secs
}
