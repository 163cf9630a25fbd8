package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"codeguardian/internal/config"
	"codeguardian/internal/credentials"
	apperrors "codeguardian/internal/errors"
	"codeguardian/internal/guardian"
	"codeguardian/internal/logging"
	"codeguardian/types"
)

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Question string `json:"question" jsonschema:"required,description=Question for the AI providers"`
}

// AnalyzeRequest is the body of POST /api/v1/analyze.
type AnalyzeRequest struct {
	Code     string `json:"code" jsonschema:"description=Source code to review"`
	Language string `json:"language" jsonschema:"description=Language name used in the prompt"`
}

// ProviderParams updates the generation parameters of one provider.
// Zero values leave the current setting unchanged.
type ProviderParams struct {
	Model       string   `json:"model,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" jsonschema:"minimum=0,maximum=2"`
}

// SettingsRequest is the body of POST /api/v1/settings.
type SettingsRequest struct {
	APIKeys   map[string]string         `json:"api_keys,omitempty"`
	Providers map[string]ProviderParams `json:"providers,omitempty"`
}

// ProviderView is a provider as shown to clients. Credentials are masked.
type ProviderView struct {
	ID          types.ProviderID `json:"id"`
	Name        string           `json:"name"`
	Endpoint    string           `json:"endpoint"`
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
	Available   bool             `json:"available"`
	Credential  string           `json:"credential"`
	Priority    int              `json:"priority"`
}

// SettingsView is the response of GET /api/v1/settings.
type SettingsView struct {
	APIKeys   map[types.ProviderID]string `json:"api_keys"`
	Providers []ProviderView              `json:"providers"`
	Saved     []types.ProviderID          `json:"saved,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if appErr := decodeJSON(w, r, &req); appErr != nil {
		apperrors.SendError(w, appErr)
		return
	}

	response, err := s.deps.Guardian.SendQuery(r.Context(), s.sessionID(w, r), req.Question)
	if err != nil {
		apperrors.SendError(w, apperrors.AsAppError(err))
		return
	}
	apperrors.SendSuccess(w, response)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if appErr := decodeJSON(w, r, &req); appErr != nil {
		apperrors.SendError(w, appErr)
		return
	}

	response, err := s.deps.Guardian.AnalyzeCode(r.Context(), s.sessionID(w, r), req.Code, req.Language)
	if err != nil {
		apperrors.SendError(w, apperrors.AsAppError(err))
		return
	}
	apperrors.SendSuccess(w, response)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	apperrors.SendSuccess(w, map[string]interface{}{
		"session_id": sid,
		"history":    s.deps.Guardian.History(sid),
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	if err := s.deps.Guardian.ClearHistory(sid); err != nil {
		apperrors.SendError(w, apperrors.AsAppError(err))
		return
	}
	apperrors.SendSuccess(w, map[string]interface{}{"session_id": sid, "cleared": true})
}

func (s *Server) providerView(id types.ProviderID, priority int) (ProviderView, error) {
	cfg, err := s.deps.Registry.Get(id)
	if err != nil {
		return ProviderView{}, err
	}
	return ProviderView{
		ID:          cfg.ID,
		Name:        cfg.ID.DisplayName(),
		Endpoint:    cfg.Endpoint,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Available:   cfg.HasCredential(),
		Credential:  credentials.Mask(cfg.Credential),
		Priority:    priority,
	}, nil
}

func (s *Server) providerViews() ([]ProviderView, error) {
	ids := s.deps.Registry.ListInPriorityOrder()
	views := make([]ProviderView, 0, len(ids))
	for i, id := range ids {
		view, err := s.providerView(id, i+1)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Server) handleListProviders(w http.ResponseWriter, _ *http.Request) {
	views, err := s.providerViews()
	if err != nil {
		apperrors.SendError(w, apperrors.AsAppError(err))
		return
	}
	apperrors.SendSuccess(w, map[string]interface{}{
		"providers": views,
		"available": s.deps.Registry.Available(),
	})
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]
	id, ok := types.ParseProviderID(raw)
	if !ok {
		apperrors.SendError(w, apperrors.NewConfigNotFoundError(raw))
		return
	}

	for i, candidate := range s.deps.Registry.ListInPriorityOrder() {
		if candidate != id {
			continue
		}
		view, err := s.providerView(id, i+1)
		if err != nil {
			apperrors.SendError(w, apperrors.AsAppError(err))
			return
		}
		apperrors.SendSuccess(w, view)
		return
	}
	apperrors.SendError(w, apperrors.NewConfigNotFoundError(raw))
}

func (s *Server) settingsView(saved []types.ProviderID) (SettingsView, error) {
	views, err := s.providerViews()
	if err != nil {
		return SettingsView{}, err
	}
	return SettingsView{
		APIKeys:   s.deps.Vault.Masked(),
		Providers: views,
		Saved:     saved,
	}, nil
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	view, err := s.settingsView(nil)
	if err != nil {
		apperrors.SendError(w, apperrors.AsAppError(err))
		return
	}
	apperrors.SendSuccess(w, view)
}

// handleSaveSettings validates every entry, including the merged provider
// parameters, before it stores any key or applies any parameter.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if appErr := decodeJSON(w, r, &req); appErr != nil {
		apperrors.SendError(w, appErr)
		return
	}

	keys := make(map[types.ProviderID]string, len(req.APIKeys))
	for raw, key := range req.APIKeys {
		id, ok := types.ParseProviderID(strings.ToLower(strings.TrimSpace(raw)))
		if !ok {
			apperrors.SendError(w, apperrors.NewConfigNotFoundError(raw))
			return
		}
		keys[id] = key
	}
	updates := make(map[types.ProviderID]config.ProviderUpdate, len(req.Providers))
	for raw, p := range req.Providers {
		id, ok := types.ParseProviderID(strings.ToLower(strings.TrimSpace(raw)))
		if !ok {
			apperrors.SendError(w, apperrors.NewConfigNotFoundError(raw))
			return
		}
		updates[id] = config.ProviderUpdate{Model: p.Model, MaxTokens: p.MaxTokens, Temperature: p.Temperature}
	}
	if len(updates) > 0 {
		if _, err := s.deps.Settings.PrepareProviders(updates); err != nil {
			apperrors.SendError(w, apperrors.NewValidationError(err.Error(), map[string]interface{}{"providers": providerIDs(updates)}))
			return
		}
	}

	var saved []types.ProviderID
	for _, id := range types.DefaultPriorityOrder {
		key, ok := keys[id]
		if !ok {
			continue
		}
		stored, err := s.deps.Vault.Save(r.Context(), id, key)
		if err != nil {
			apperrors.SendError(w, apperrors.NewInternalError("Failed to save API key", err))
			return
		}
		if stored {
			saved = append(saved, id)
			s.deps.Guardian.RecordActivity(guardian.ActivityKeys, fmt.Sprintf("Updated API key for %s", id.DisplayName()), map[string]interface{}{
				"provider": id,
			})
		}
	}

	if len(updates) > 0 {
		if err := s.deps.Settings.UpdateProviders(updates); err != nil {
			apperrors.SendError(w, apperrors.NewValidationError(err.Error(), map[string]interface{}{"providers": providerIDs(updates)}))
			return
		}
		for _, id := range providerIDs(updates) {
			s.deps.Guardian.RecordActivity(guardian.ActivitySettings, fmt.Sprintf("Updated settings for %s", id.DisplayName()), map[string]interface{}{
				"provider": id,
			})
		}
		s.persistSettings()
	}

	view, err := s.settingsView(saved)
	if err != nil {
		apperrors.SendError(w, apperrors.AsAppError(err))
		return
	}
	apperrors.SendSuccess(w, view)
}

// providerIDs returns the ids of updates in priority order.
func providerIDs(updates map[types.ProviderID]config.ProviderUpdate) []types.ProviderID {
	ids := make([]types.ProviderID, 0, len(updates))
	for _, id := range types.DefaultPriorityOrder {
		if _, ok := updates[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Server) persistSettings() {
	if s.deps.SettingsFile == "" {
		return
	}
	if err := s.deps.Settings.SaveToFile(s.deps.SettingsFile); err != nil {
		logging.L_warn("⚠️  Failed to persist settings", "file", s.deps.SettingsFile, "error", err)
	}
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]
	id := types.ProviderID(strings.ToLower(raw))
	if err := s.deps.Vault.Delete(r.Context(), id); err != nil {
		apperrors.SendError(w, apperrors.AsAppError(err))
		return
	}
	s.deps.Guardian.RecordActivity(guardian.ActivityKeys, fmt.Sprintf("Removed API key for %s", id.DisplayName()), map[string]interface{}{
		"provider": id,
	})
	apperrors.SendSuccess(w, map[string]interface{}{"provider": id, "deleted": true})
}

func (s *Server) handleSecurityScan(w http.ResponseWriter, r *http.Request) {
	var req guardian.ScanRequest
	if appErr := decodeJSON(w, r, &req); appErr != nil {
		apperrors.SendError(w, appErr)
		return
	}
	apperrors.SendSuccess(w, s.deps.Guardian.ScanSecurity(req))
}

func (s *Server) handleScalabilityAssessment(w http.ResponseWriter, r *http.Request) {
	var req guardian.ScanRequest
	if appErr := decodeJSON(w, r, &req); appErr != nil {
		apperrors.SendError(w, appErr)
		return
	}
	apperrors.SendSuccess(w, s.deps.Guardian.AssessScalability(req))
}

func (s *Server) handleActivity(w http.ResponseWriter, _ *http.Request) {
	apperrors.SendSuccess(w, map[string]interface{}{
		"activities": s.deps.Guardian.RecentActivity(),
	})
}
