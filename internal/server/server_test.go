package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeguardian/data_engine"
	"codeguardian/inference_engine"
	"codeguardian/internal/config"
	"codeguardian/internal/credentials"
	"codeguardian/internal/detector"
	apperrors "codeguardian/internal/errors"
	"codeguardian/internal/guardian"
	"codeguardian/types"
)

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *apperrors.APIError `json:"error"`
}

type testEnv struct {
	server       *httptest.Server
	client       *http.Client
	app          *Server
	vault        *credentials.Vault
	registry     *inference_engine.ProviderRegistry
	guardian     *guardian.CodeGuardian
	events       *data_engine.WindowedAggregator
	settingsFile string
}

func newTestEnv(t *testing.T, rateLimit int) *testEnv {
	t.Helper()
	ctx := context.Background()

	cfg := config.Load()
	cfg.RateLimit.Limit = rateLimit
	cfg.RateLimit.Window = time.Minute

	vault, err := credentials.NewVault(ctx, credentials.NewMemoryKeyStore())
	require.NoError(t, err)
	registry := inference_engine.NewProviderRegistry(cfg.ProviderConfigs(), vault)
	transport := inference_engine.NewSimulatedTransport(0)
	dispatcher := inference_engine.NewFallbackDispatcher(registry, inference_engine.NewCodecClient(transport, nil), inference_engine.NewSimulationClient(0))

	g := guardian.NewCodeGuardian(dispatcher, guardian.NewSessionManager(0, ""),
		detector.NewSecurityScanner(rand.New(rand.NewSource(1))),
		detector.NewScalabilityAssessor(rand.New(rand.NewSource(1))))
	events := data_engine.NewWindowedAggregator(time.Minute, 5)
	g.AddEventSink(events)

	settings := config.NewSettingsManager(cfg)
	settings.AddChangeListener(registry)
	settingsFile := filepath.Join(t.TempDir(), "settings.json")

	app := NewServer(cfg, Dependencies{
		Guardian:     g,
		Registry:     registry,
		Vault:        vault,
		Settings:     settings,
		SettingsFile: settingsFile,
		Events:       events,
	})
	app.metrics = func(context.Context) (map[string]interface{}, error) {
		return map[string]interface{}{"cpu": 12.5, "memory": 40.0, "disk": 70.0}, nil
	}
	t.Cleanup(app.rateLimiter.Stop)

	server := httptest.NewServer(app.Handler())
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testEnv{
		server:       server,
		client:       &http.Client{Jar: jar},
		app:          app,
		vault:        vault,
		registry:     registry,
		guardian:     g,
		events:       events,
		settingsFile: settingsFile,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, 100)
	status, body := env.do(t, "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)
	var data map[string]interface{}
	decodeData(t, body, &data)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, float64(0), data["providers_available"])
}

func TestServer_ChatValidation(t *testing.T) {
	env := newTestEnv(t, 100)

	testCases := []struct {
		name        string
		body        interface{}
		contentType string
		status      int
		code        string
	}{
		{name: "blank question", body: ChatRequest{Question: "   "}, status: http.StatusBadRequest, code: apperrors.CodeEmptyInput},
		{name: "malformed json", body: "not an object", status: http.StatusBadRequest, code: apperrors.CodeValidationFailed},
		{name: "wrong content type", body: ChatRequest{Question: "hi"}, contentType: "text/plain", status: http.StatusBadRequest, code: apperrors.CodeValidationFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.body)
			require.NoError(t, err)
			req, err := http.NewRequest("POST", env.server.URL+"/api/v1/chat", bytes.NewReader(data))
			require.NoError(t, err)
			contentType := tc.contentType
			if contentType == "" {
				contentType = "application/json"
			}
			req.Header.Set("Content-Type", contentType)

			resp, err := env.client.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			var body envelope
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, tc.code, body.Error.Code)
		})
	}
}

func TestServer_ChatWithoutCredentials(t *testing.T) {
	env := newTestEnv(t, 100)

	status, body := env.do(t, "POST", "/api/v1/chat", ChatRequest{Question: "How do I hash passwords?"})
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.Success)

	var chat guardian.ChatResponse
	decodeData(t, body, &chat)
	assert.False(t, chat.Result.Success)
	assert.Equal(t, apperrors.CodeNoCredentials, chat.Result.ErrorCode)
	assert.Equal(t, apperrors.NoCredentialsMessage, chat.Result.ErrorMessage)
	assert.Empty(t, chat.Transcript)
}

func TestServer_ChatConversationFlow(t *testing.T) {
	env := newTestEnv(t, 100)

	status, body := env.do(t, "POST", "/api/v1/settings", SettingsRequest{
		APIKeys: map[string]string{"gemini": "gm-key-0001", "openai": "   "},
	})
	require.Equal(t, http.StatusOK, status)
	var settings SettingsView
	decodeData(t, body, &settings)
	assert.Equal(t, []types.ProviderID{types.ProviderGemini}, settings.Saved)
	assert.Equal(t, "********0001", settings.APIKeys[types.ProviderGemini])

	status, body = env.do(t, "POST", "/api/v1/chat", ChatRequest{Question: "How should I store secrets?"})
	require.Equal(t, http.StatusOK, status)
	var chat guardian.ChatResponse
	decodeData(t, body, &chat)
	require.True(t, chat.Result.Success, chat.Result.ErrorMessage)
	assert.Equal(t, types.ProviderGemini, chat.Result.ProviderID)
	assert.NotEmpty(t, chat.HTML)

	// The cookie jar keeps the same session across requests.
	status, body = env.do(t, "GET", "/api/v1/history", nil)
	require.Equal(t, http.StatusOK, status)
	var history struct {
		SessionID string                   `json:"session_id"`
		History   []types.ConversationTurn `json:"history"`
	}
	decodeData(t, body, &history)
	assert.Equal(t, chat.SessionID, history.SessionID)
	require.Len(t, history.History, 2)
	assert.Equal(t, types.RoleUser, history.History[0].Role)

	status, _ = env.do(t, "DELETE", "/api/v1/history", nil)
	require.Equal(t, http.StatusOK, status)
	_, body = env.do(t, "GET", "/api/v1/history", nil)
	decodeData(t, body, &history)
	assert.Empty(t, history.History)
}

func TestServer_Analyze(t *testing.T) {
	env := newTestEnv(t, 100)

	status, body := env.do(t, "POST", "/api/v1/analyze", AnalyzeRequest{Code: "eval(input)", Language: "javascript"})
	require.Equal(t, http.StatusOK, status)

	var analysis guardian.AnalysisResponse
	decodeData(t, body, &analysis)
	assert.True(t, analysis.Result.Success)
	assert.Equal(t, types.ProviderSimulation, analysis.Result.ProviderID)
	require.NotNil(t, analysis.Report)
	assert.Equal(t, "Simulated AI", analysis.Report.ProviderName)
	assert.NotEmpty(t, analysis.Report.Issues)
}

func TestServer_Providers(t *testing.T) {
	env := newTestEnv(t, 100)
	_, err := env.vault.Save(context.Background(), types.ProviderAnthropic, "sk-ant-secret-9876")
	require.NoError(t, err)

	status, body := env.do(t, "GET", "/api/v1/providers", nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Providers []ProviderView     `json:"providers"`
		Available []types.ProviderID `json:"available"`
	}
	decodeData(t, body, &list)
	require.Len(t, list.Providers, len(types.DefaultPriorityOrder))
	for i, id := range types.DefaultPriorityOrder {
		assert.Equal(t, id, list.Providers[i].ID)
		assert.Equal(t, i+1, list.Providers[i].Priority)
	}
	assert.Equal(t, []types.ProviderID{types.ProviderAnthropic}, list.Available)
	assert.Equal(t, "********9876", list.Providers[2].Credential)
	assert.NotContains(t, string(body.Data), "sk-ant-secret")

	testCases := []struct {
		name   string
		id     string
		status int
	}{
		{name: "known provider", id: "anthropic", status: http.StatusOK},
		{name: "unknown provider", id: "mistral", status: http.StatusNotFound},
		{name: "simulation is internal", id: "simulation", status: http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := env.do(t, "GET", "/api/v1/providers/"+tc.id, nil)
			assert.Equal(t, tc.status, status)
			if tc.status == http.StatusNotFound {
				require.NotNil(t, body.Error)
				assert.Equal(t, apperrors.CodeConfigNotFound, body.Error.Code)
				return
			}
			var view ProviderView
			decodeData(t, body, &view)
			assert.Equal(t, "Anthropic", view.Name)
			assert.True(t, view.Available)
		})
	}
}

func TestServer_SaveSettings(t *testing.T) {
	env := newTestEnv(t, 100)
	temp := 0.2
	hot := 3.0

	testCases := []struct {
		name   string
		req    SettingsRequest
		status int
		code   string
	}{
		{name: "updates parameters", req: SettingsRequest{Providers: map[string]ProviderParams{"openai": {Model: "gpt-4o", MaxTokens: 2048, Temperature: &temp}}}, status: http.StatusOK},
		{name: "rejects temperature out of range", req: SettingsRequest{Providers: map[string]ProviderParams{"openai": {Temperature: &hot}}}, status: http.StatusBadRequest, code: apperrors.CodeValidationFailed},
		{name: "rejects unknown key provider", req: SettingsRequest{APIKeys: map[string]string{"mistral": "k"}}, status: http.StatusNotFound, code: apperrors.CodeConfigNotFound},
		{name: "rejects unknown parameter provider", req: SettingsRequest{Providers: map[string]ProviderParams{"simulation": {Model: "x"}}}, status: http.StatusNotFound, code: apperrors.CodeConfigNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := env.do(t, "POST", "/api/v1/settings", tc.req)
			assert.Equal(t, tc.status, status)
			if tc.code != "" {
				require.NotNil(t, body.Error)
				assert.Equal(t, tc.code, body.Error.Code)
			}
		})
	}

	cfg, err := env.registry.Get(types.ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 2048, cfg.MaxTokens)
	assert.Equal(t, 0.2, cfg.Temperature)

	saved, err := os.ReadFile(env.settingsFile)
	require.NoError(t, err)
	assert.Contains(t, string(saved), "gpt-4o")
}

func TestServer_SaveSettings_RejectedRequestChangesNothing(t *testing.T) {
	env := newTestEnv(t, 100)
	before, err := env.registry.Get(types.ProviderPerplexity)
	require.NoError(t, err)
	hot := 5.0

	status, body := env.do(t, "POST", "/api/v1/settings", SettingsRequest{
		APIKeys: map[string]string{"openai": "sk-openai-5678"},
		Providers: map[string]ProviderParams{
			"perplexity": {Model: "sonar-pro"},
			"openai":     {Temperature: &hot},
		},
	})

	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, body.Error)
	assert.Equal(t, apperrors.CodeValidationFailed, body.Error.Code)

	assert.False(t, env.registry.IsAvailable(types.ProviderOpenAI))
	assert.Equal(t, "", env.vault.Lookup(types.ProviderOpenAI))
	after, err := env.registry.Get(types.ProviderPerplexity)
	require.NoError(t, err)
	assert.Equal(t, before.Model, after.Model)
	assert.Empty(t, env.guardian.RecentActivity())
	assert.NoFileExists(t, env.settingsFile)
}

func TestServer_DeleteKey(t *testing.T) {
	env := newTestEnv(t, 100)
	_, err := env.vault.Save(context.Background(), types.ProviderOpenAI, "sk-openai-1234")
	require.NoError(t, err)

	status, _ := env.do(t, "DELETE", "/api/v1/settings/keys/openai", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "", env.vault.Lookup(types.ProviderOpenAI))

	status, body := env.do(t, "DELETE", "/api/v1/settings/keys/unknown", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, apperrors.CodeConfigNotFound, body.Error.Code)

	activity := env.guardian.RecentActivity()
	require.NotEmpty(t, activity)
	assert.Equal(t, "Removed API key for OpenAI", activity[0].Description)
}

func TestServer_ScansAndActivity(t *testing.T) {
	env := newTestEnv(t, 100)
	code := "const rows = db.query(\"SELECT * FROM users WHERE id=\" + id)\nconnection.commit()"

	status, body := env.do(t, "POST", "/api/v1/scan/security", guardian.ScanRequest{Code: code, Depth: "standard"})
	require.Equal(t, http.StatusOK, status)
	var security types.SecurityScanResult
	decodeData(t, body, &security)
	assert.NotEmpty(t, security.Vulnerabilities)
	assert.Equal(t, "standard", security.ScanDepth)

	status, body = env.do(t, "POST", "/api/v1/scan/scalability", guardian.ScanRequest{Code: code, Depth: "comprehensive"})
	require.Equal(t, http.StatusOK, status)
	var scalability types.ScalabilityResult
	decodeData(t, body, &scalability)
	assert.NotEmpty(t, scalability.Issues)

	status, body = env.do(t, "POST", "/api/v1/scan/security", guardian.ScanRequest{})
	require.Equal(t, http.StatusOK, status)
	var empty types.SecurityScanResult
	decodeData(t, body, &empty)
	assert.Equal(t, "unknown", empty.ThreatLevel)

	_, body = env.do(t, "GET", "/api/v1/activity", nil)
	var activity struct {
		Activities []types.Activity `json:"activities"`
	}
	decodeData(t, body, &activity)
	require.Len(t, activity.Activities, 2)
	assert.Equal(t, guardian.ActivityScalability, activity.Activities[0].Type)
	assert.Equal(t, guardian.ActivitySecurity, activity.Activities[1].Type)
}

func TestServer_MetricsAndDocs(t *testing.T) {
	env := newTestEnv(t, 100)
	env.do(t, "POST", "/api/v1/scan/security", guardian.ScanRequest{Code: "eval(x)"})

	status, body := env.do(t, "GET", "/api/v1/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	var metrics map[string]interface{}
	decodeData(t, body, &metrics)
	assert.Equal(t, 12.5, metrics["system"].(map[string]interface{})["cpu"])
	totals := metrics["events"].(map[string]interface{})["totals"].(map[string]interface{})
	assert.Equal(t, float64(1), totals[guardian.EventSecurityScan])

	status, body = env.do(t, "GET", "/api/v1/docs", nil)
	require.Equal(t, http.StatusOK, status)
	var docs struct {
		Endpoints []map[string]interface{} `json:"endpoints"`
	}
	decodeData(t, body, &docs)
	assert.Len(t, docs.Endpoints, len(apiDocs()))
	assert.Contains(t, string(body.Data), "question")
}

func TestServer_WebsocketDisabled(t *testing.T) {
	env := newTestEnv(t, 100)
	status, body := env.do(t, "GET", "/ws", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.False(t, body.Success)
}

func TestServer_DashboardAndCORS(t *testing.T) {
	env := newTestEnv(t, 100)

	resp, err := env.client.Get(env.server.URL + "/")
	require.NoError(t, err)
	page, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(page), "<title>CodeGuardian</title>")
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/api/v1/chat", nil)
	require.NoError(t, err)
	resp, err = env.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_RateLimit(t *testing.T) {
	env := newTestEnv(t, 2)

	for i := 0; i < 2; i++ {
		status, _ := env.do(t, "GET", "/api/v1/activity", nil)
		require.Equal(t, http.StatusOK, status)
	}
	status, body := env.do(t, "GET", "/api/v1/activity", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, apperrors.CodeRateLimitExceeded, body.Error.Code)
}

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(time.Minute, 2)
	defer rl.Stop()
	rl.now = func() time.Time { return now }

	testCases := []struct {
		name    string
		client  string
		advance time.Duration
		allowed bool
	}{
		{name: "first request", client: "a", allowed: true},
		{name: "second request", client: "a", allowed: true},
		{name: "over the limit", client: "a", allowed: false},
		{name: "other client unaffected", client: "b", allowed: true},
		{name: "window elapsed", client: "a", advance: 2 * time.Minute, allowed: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			now = now.Add(tc.advance)
			assert.Equal(t, tc.allowed, rl.Allow(tc.client))
		})
	}

	now = now.Add(5 * time.Minute)
	rl.cleanup()
	assert.Empty(t, rl.visitors)
}

func TestRateLimiter_DisabledWhenLimitNotPositive(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	defer rl.Stop()
	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow("a"))
	}
}
