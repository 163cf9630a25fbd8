package inference_engine

import (
	"context"
	"strings"
	"time"

	apperrors "codeguardian/internal/errors"
	"codeguardian/internal/logging"
	"codeguardian/types"
)

// DispatchPolicy decides what happens when no provider produced an answer.
type DispatchPolicy struct {
	Name string
	// RequireCredentials fails the dispatch when no provider has a credential.
	RequireCredentials bool
	// SimulateOnExhaustion answers with the simulation client even when
	// available providers returned errors.
	SimulateOnExhaustion bool
}

var (
	// ChatPolicy must tell the user to configure a key rather than invent an answer.
	ChatPolicy = DispatchPolicy{Name: "chat", RequireCredentials: true, SimulateOnExhaustion: false}
	// AnalysisPolicy always produces something.
	AnalysisPolicy = DispatchPolicy{Name: "analysis", RequireCredentials: false, SimulateOnExhaustion: true}
)

// ProviderDirectory is the read side of the provider registry.
type ProviderDirectory interface {
	ListInPriorityOrder() []types.ProviderID
	IsAvailable(id types.ProviderID) bool
	Get(id types.ProviderID) (types.ProviderConfig, error)
}

// FallbackDispatcher tries providers one at a time in priority order and
// returns the first non-empty answer.
type FallbackDispatcher struct {
	providers  ProviderDirectory
	client     ProviderClient
	simulation ProviderClient
}

// NewFallbackDispatcher creates a dispatcher. client serves every real
// provider; simulation is the last resort.
func NewFallbackDispatcher(providers ProviderDirectory, client ProviderClient, simulation ProviderClient) *FallbackDispatcher {
	if simulation == nil {
		simulation = NewSimulationClient(DefaultSimulatedLatency)
	}
	return &FallbackDispatcher{
		providers:  providers,
		client:     client,
		simulation: simulation,
	}
}

// Dispatch runs one prompt through the providers. It never returns an error;
// failures are reported in the result.
func (d *FallbackDispatcher) Dispatch(ctx context.Context, prompt string, history []types.ConversationTurn, policy DispatchPolicy) (result types.DispatchResult) {
	start := time.Now()
	var attempts []types.ProviderAttempt

	defer func() {
		if r := recover(); r != nil {
			logging.L_error("❌ Panic during dispatch", "policy", policy.Name, "panic", r)
			result = types.DispatchResult{
				Success:      false,
				ErrorCode:    apperrors.CodeUnexpected,
				ErrorMessage: apperrors.UnexpectedMessage,
				Attempts:     attempts,
			}
		}
	}()

	var lastErr error
	available := 0

	for _, id := range d.providers.ListInPriorityOrder() {
		if !d.providers.IsAvailable(id) {
			attempts = append(attempts, types.ProviderAttempt{Provider: id, Outcome: types.OutcomeSkipped})
			continue
		}
		available++

		cfg, err := d.providers.Get(id)
		if err != nil {
			lastErr = err
			attempts = append(attempts, types.ProviderAttempt{Provider: id, Outcome: types.AttemptOutcome(ErrorKindUnknown)})
			continue
		}

		if d.client == nil {
			attempts = append(attempts, types.ProviderAttempt{Provider: id, Outcome: types.OutcomeSkipped})
			continue
		}

		text, err := d.client.Send(ctx, prompt, history, cfg)
		if err != nil {
			perr := ClassifyError(id, err)
			lastErr = perr
			attempts = append(attempts, types.ProviderAttempt{Provider: id, Outcome: types.AttemptOutcome(perr.Kind)})
			logging.L_warn("⚠️  Provider failed, trying next", "provider", id, "kind", perr.Kind, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			attempts = append(attempts, types.ProviderAttempt{Provider: id, Outcome: types.OutcomeEmpty})
			logging.L_warn("⚠️  Provider returned an empty answer, trying next", "provider", id)
			continue
		}

		attempts = append(attempts, types.ProviderAttempt{Provider: id, Outcome: types.OutcomeSuccess})
		logging.L_info("✅ Dispatch answered", "policy", policy.Name, "provider", id, "elapsed", time.Since(start).Round(time.Millisecond))
		return types.DispatchResult{Success: true, Text: text, ProviderID: id, Attempts: attempts}
	}

	if policy.RequireCredentials && available == 0 {
		logging.L_warn("🔑 No provider credentials configured", "policy", policy.Name)
		return types.DispatchResult{
			Success:      false,
			ErrorCode:    apperrors.CodeNoCredentials,
			ErrorMessage: apperrors.NoCredentialsMessage,
			Attempts:     attempts,
		}
	}

	if !policy.SimulateOnExhaustion && lastErr != nil {
		logging.L_warn("❌ All providers failed", "policy", policy.Name, "last_error", lastErr)
		return types.DispatchResult{
			Success:      false,
			ErrorCode:    apperrors.CodeProviderError,
			ErrorMessage: lastErr.Error(),
			Attempts:     attempts,
		}
	}

	text, _ := d.simulation.Send(ctx, prompt, history, types.ProviderConfig{ID: types.ProviderSimulation})
	attempts = append(attempts, types.ProviderAttempt{Provider: types.ProviderSimulation, Outcome: types.OutcomeSuccess})
	logging.L_info("🎭 Answered by simulation", "policy", policy.Name, "available", available, "elapsed", time.Since(start).Round(time.Millisecond))
	return types.DispatchResult{Success: true, Text: text, ProviderID: types.ProviderSimulation, Attempts: attempts}
}
