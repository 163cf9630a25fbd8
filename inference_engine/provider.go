package inference_engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"codeguardian/types"
)

// ErrorKind classifies a failed provider attempt.
type ErrorKind string

const (
	ErrorKindUnauthorized ErrorKind = "unauthorized"
	ErrorKindRateLimited  ErrorKind = "rate_limited"
	ErrorKindNetwork      ErrorKind = "network"
	ErrorKindMalformed    ErrorKind = "malformed"
	ErrorKindUnknown      ErrorKind = "unknown"
)

// ProviderClient sends one prompt, with the prior conversation, to a provider.
type ProviderClient interface {
	Send(ctx context.Context, prompt string, history []types.ConversationTurn, cfg types.ProviderConfig) (string, error)
}

// ProviderError is the typed failure of a single provider call.
type ProviderError struct {
	Provider types.ProviderID
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a ProviderError of an explicit kind.
func NewProviderError(provider types.ProviderID, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// ClassifyError maps an arbitrary transport or codec error onto a ProviderError.
// Errors that are already classified are returned unchanged.
func ClassifyError(provider types.ProviderID, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return NewProviderError(provider, kindForStatus(statusErr.StatusCode), err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProviderError(provider, ErrorKindNetwork, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "401", "403", "unauthorized", "api key", "api_key", "x-api-key", "authentication", "permission denied"):
		return NewProviderError(provider, ErrorKindUnauthorized, err)
	case containsAny(msg, "429", "rate limit", "rate_limit", "too many requests", "quota", "resource_exhausted"):
		return NewProviderError(provider, ErrorKindRateLimited, err)
	case containsAny(msg, "timeout", "deadline", "connection refused", "connection reset", "no such host", "network", "eof", "unavailable", "502", "503", "504"):
		return NewProviderError(provider, ErrorKindNetwork, err)
	case containsAny(msg, "unmarshal", "invalid character", "unexpected end of json", "no text content", "no choices", "no response candidates", "malformed"):
		return NewProviderError(provider, ErrorKindMalformed, err)
	default:
		return NewProviderError(provider, ErrorKindUnknown, err)
	}
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorKindUnauthorized
	case code == http.StatusTooManyRequests:
		return ErrorKindRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout:
		return ErrorKindNetwork
	default:
		return ErrorKindUnknown
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
