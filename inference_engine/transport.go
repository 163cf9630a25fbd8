package inference_engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"codeguardian/internal/logging"
	"codeguardian/types"
)

// Request is one encoded provider call.
type Request struct {
	Provider types.ProviderID
	URL      string
	Headers  map[string]string
	Body     []byte

	// Prompt is the latest user prompt.
	Prompt string
	// Encode renders a response text in the vendor's body shape.
	Encode func(text string) ([]byte, error)
}

// Transport carries an encoded request and returns the raw response body.
type Transport interface {
	RoundTrip(ctx context.Context, req *Request) ([]byte, error)
}

// StatusError is a non-2xx vendor response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Fault kinds accepted by InjectFault, in addition to the ErrorKind values.
const FaultEmpty = "empty"

// SimulatedTransport answers every request locally with the simulation
// templates, encoded in the vendor's own response shape.
type SimulatedTransport struct {
	responder *SimulationClient
	latency   time.Duration

	mu     sync.RWMutex
	faults map[types.ProviderID]string
}

// NewSimulatedTransport creates a transport that waits latency per call.
func NewSimulatedTransport(latency time.Duration) *SimulatedTransport {
	if latency < 0 {
		latency = 0
	}
	return &SimulatedTransport{
		responder: NewSimulationClient(0),
		latency:   latency,
		faults:    make(map[types.ProviderID]string),
	}
}

// InjectFault makes every call to provider fail with the given kind
// (unauthorized, rate_limited, network, malformed, unknown or empty).
func (t *SimulatedTransport) InjectFault(provider types.ProviderID, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faults[provider] = strings.ToLower(strings.TrimSpace(kind))
}

// InjectFaults applies a provider→kind table, ignoring unknown provider names.
func (t *SimulatedTransport) InjectFaults(faults map[string]string) {
	for name, kind := range faults {
		id, ok := types.ParseProviderID(name)
		if !ok {
			logging.L_warnf("⚠️  Ignoring simulated failure for unknown provider %q", name)
			continue
		}
		t.InjectFault(id, kind)
	}
}

func (t *SimulatedTransport) fault(provider types.ProviderID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	kind, ok := t.faults[provider]
	return kind, ok
}

// RoundTrip waits the simulated latency, then applies any scripted fault or
// answers with the simulation template for the prompt.
func (t *SimulatedTransport) RoundTrip(ctx context.Context, req *Request) ([]byte, error) {
	if t.latency > 0 {
		timer := time.NewTimer(t.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("request to %s aborted: %w", req.Provider, ctx.Err())
		case <-timer.C:
		}
	}

	if kind, ok := t.fault(req.Provider); ok {
		switch kind {
		case string(ErrorKindUnauthorized):
			return nil, &StatusError{StatusCode: http.StatusUnauthorized, Body: "invalid api key"}
		case string(ErrorKindRateLimited):
			return nil, &StatusError{StatusCode: http.StatusTooManyRequests, Body: "rate limit exceeded"}
		case string(ErrorKindNetwork):
			return nil, fmt.Errorf("dial tcp %s: connection refused", hostOf(req.URL))
		case string(ErrorKindMalformed):
			return []byte("<html><body>upstream returned an unexpected page</body></html>"), nil
		case FaultEmpty:
			if req.Encode == nil {
				return []byte{}, nil
			}
			return req.Encode("")
		default:
			return nil, &StatusError{StatusCode: http.StatusInternalServerError, Body: "simulated server failure"}
		}
	}

	if req.Encode == nil {
		return nil, errors.New("simulated transport: request has no response encoder")
	}
	return req.Encode(t.responder.Respond(req.Prompt))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

var _ Transport = (*SimulatedTransport)(nil)
