package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	apperrors "codeguardian/internal/errors"
	"codeguardian/internal/guardian"
	"codeguardian/types"
)

type metricsFunc func(ctx context.Context) (map[string]interface{}, error)

// collectSystemMetrics collects host metrics using gopsutil
func collectSystemMetrics(ctx context.Context) (map[string]interface{}, error) {
	metrics := make(map[string]interface{})

	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU metrics: %w", err)
	}
	if len(cpuPercent) > 0 {
		metrics["cpu"] = cpuPercent[0]
	} else {
		metrics["cpu"] = 0.0
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get memory metrics: %w", err)
	}
	metrics["memory"] = memInfo.UsedPercent

	diskInfo, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return nil, fmt.Errorf("failed to get disk metrics: %w", err)
	}
	metrics["disk"] = diskInfo.UsedPercent

	metrics["goroutines"] = runtime.NumGoroutine()
	return metrics, nil
}

func (s *Server) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	system, err := s.metrics(ctx)
	if err != nil {
		apperrors.SendError(w, apperrors.NewInternalError("Failed to collect system metrics", err))
		return
	}

	response := map[string]interface{}{
		"system":         system,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"sessions":       s.deps.Guardian.Sessions().Count(),
		"timestamp":      time.Now().Format(time.RFC3339),
	}
	if s.deps.Registry != nil {
		response["providers_available"] = len(s.deps.Registry.Available())
	}
	if s.deps.Hub != nil {
		response["websocket_clients"] = s.deps.Hub.ClientCount()
	}
	if s.deps.Events != nil {
		response["events"] = map[string]interface{}{
			"totals":  s.deps.Events.Totals(),
			"windows": s.deps.Events.Windows(),
		}
	}
	apperrors.SendSuccess(w, response)
}

// endpointDoc describes one route in /api/v1/docs.
type endpointDoc struct {
	Method      string             `json:"method"`
	Path        string             `json:"path"`
	Description string             `json:"description"`
	Request     *jsonschema.Schema `json:"request,omitempty"`
	Response    *jsonschema.Schema `json:"response,omitempty"`
}

func reflectSchema(v interface{}) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	return reflector.Reflect(v)
}

func apiDocs() []endpointDoc {
	scanRequest := reflectSchema(&guardian.ScanRequest{})
	return []endpointDoc{
		{Method: "GET", Path: "/health", Description: "Service status"},
		{Method: "POST", Path: "/api/v1/chat", Description: "Ask a question in the session conversation", Request: reflectSchema(&ChatRequest{}), Response: reflectSchema(&guardian.ChatResponse{})},
		{Method: "POST", Path: "/api/v1/analyze", Description: "Review code for vulnerabilities, performance and scalability", Request: reflectSchema(&AnalyzeRequest{}), Response: reflectSchema(&guardian.AnalysisResponse{})},
		{Method: "GET", Path: "/api/v1/history", Description: "Session transcript"},
		{Method: "DELETE", Path: "/api/v1/history", Description: "Clear the session transcript"},
		{Method: "GET", Path: "/api/v1/providers", Description: "Providers in priority order with availability", Response: reflectSchema(&ProviderView{})},
		{Method: "GET", Path: "/api/v1/providers/{id}", Description: "Single provider", Response: reflectSchema(&ProviderView{})},
		{Method: "GET", Path: "/api/v1/settings", Description: "Provider parameters and masked keys", Response: reflectSchema(&SettingsView{})},
		{Method: "POST", Path: "/api/v1/settings", Description: "Save API keys and provider parameters", Request: reflectSchema(&SettingsRequest{}), Response: reflectSchema(&SettingsView{})},
		{Method: "DELETE", Path: "/api/v1/settings/keys/{id}", Description: "Remove a stored API key"},
		{Method: "POST", Path: "/api/v1/scan/security", Description: "Security vulnerability scan", Request: scanRequest, Response: reflectSchema(&types.SecurityScanResult{})},
		{Method: "POST", Path: "/api/v1/scan/scalability", Description: "Scalability assessment", Request: scanRequest, Response: reflectSchema(&types.ScalabilityResult{})},
		{Method: "GET", Path: "/api/v1/activity", Description: "Recent activity, newest first"},
		{Method: "GET", Path: "/api/v1/metrics", Description: "System and service metrics"},
		{Method: "GET", Path: "/api/v1/docs", Description: "This document"},
		{Method: "GET", Path: "/ws", Description: "Websocket event stream"},
	}
}

func (s *Server) handleAPIDocs(w http.ResponseWriter, _ *http.Request) {
	apperrors.SendSuccess(w, map[string]interface{}{
		"version":   version,
		"endpoints": apiDocs(),
	})
}
