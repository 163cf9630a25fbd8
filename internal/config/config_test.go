package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeguardian/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testListener struct {
	mu    sync.Mutex
	calls int
	last  *Config
}

func (tl *testListener) OnSettingsChanged(oldSettings, newSettings *Config) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.calls++
	tl.last = newSettings
}

type rejectAllValidator struct{}

func (rejectAllValidator) Validate(*Config) error {
	return assert.AnError
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "PERPLEXITY_MODEL", "HISTORY_TOKEN_LIMIT", "SIMULATED_LATENCY_MS", "SIMULATED_FAILURES", "OPENAI_API_KEY"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "https://api.perplexity.ai/chat/completions", cfg.Providers.Perplexity.Endpoint)
	assert.Equal(t, "pplx-7b-online", cfg.Providers.Perplexity.Model)
	assert.Equal(t, "gpt-4", cfg.Providers.OpenAI.Model)
	assert.Equal(t, "claude-3-opus-20240229", cfg.Providers.Anthropic.Model)
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/models/gemini-pro:generateContent", cfg.Providers.Gemini.Endpoint)
	assert.Equal(t, 1024, cfg.Providers.Gemini.MaxTokens)
	assert.InDelta(t, 0.7, cfg.Providers.Anthropic.Temperature, 1e-9)
	assert.Equal(t, 0, cfg.History.TokenLimit)
	assert.Equal(t, 1500*time.Millisecond, cfg.Simulation.Latency)
	assert.Empty(t, cfg.Simulation.Failures)
	assert.NoError(t, (&DefaultSettingsValidator{}).Validate(cfg))
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("OPENAI_API_KEY", "  sk-openai  ")
	t.Setenv("GEMINI_TEMPERATURE", "1.5")
	t.Setenv("HISTORY_TOKEN_LIMIT", "2048")
	t.Setenv("SIMULATED_LATENCY_MS", "0")
	t.Setenv("SIMULATED_FAILURES", "Perplexity:rate_limited, openai:UNAUTHORIZED,broken")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := Load()

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.InDelta(t, 1.5, cfg.Providers.Gemini.Temperature, 1e-9)
	assert.Equal(t, 2048, cfg.History.TokenLimit)
	assert.Equal(t, time.Duration(0), cfg.Simulation.Latency)
	assert.Equal(t, map[string]string{"perplexity": "rate_limited", "openai": "unauthorized"}, cfg.Simulation.Failures)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.DataEngine.KafkaBrokers)
	assert.Equal(t, map[types.ProviderID]string{types.ProviderOpenAI: "sk-openai"}, cfg.SeedAPIKeys())
}

func TestConfig_ProviderConfigsInPriorityOrder(t *testing.T) {
	cfg := getDefaultSettings()
	cfg.Providers.OpenAI.APIKey = "sk-should-not-leak"

	configs := cfg.ProviderConfigs()
	require.Len(t, configs, 4)

	ids := make([]types.ProviderID, 0, len(configs))
	for _, c := range configs {
		ids = append(ids, c.ID)
		assert.Empty(t, c.Credential)
	}
	assert.Equal(t, types.DefaultPriorityOrder, ids)
	assert.Equal(t, "gpt-4", configs[1].Model)
}

func TestDefaultSettingsValidator_Validate(t *testing.T) {
	validator := &DefaultSettingsValidator{}

	testCases := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "Valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:        "Port out of range",
			mutate:      func(c *Config) { c.ServerPort = 70000 },
			expectError: true,
			errorMsg:    "server_port must be between 1 and 65535",
		},
		{
			name:        "Temperature above two",
			mutate:      func(c *Config) { c.Providers.OpenAI.Temperature = 2.5 },
			expectError: true,
			errorMsg:    "openai: temperature must be between 0 and 2",
		},
		{
			name:        "Negative temperature",
			mutate:      func(c *Config) { c.Providers.Gemini.Temperature = -0.1 },
			expectError: true,
			errorMsg:    "gemini: temperature must be between 0 and 2",
		},
		{
			name:   "Temperature boundaries allowed",
			mutate: func(c *Config) { c.Providers.Gemini.Temperature = 0; c.Providers.OpenAI.Temperature = 2 },
		},
		{
			name:        "Zero max tokens",
			mutate:      func(c *Config) { c.Providers.Anthropic.MaxTokens = 0 },
			expectError: true,
			errorMsg:    "anthropic: max_tokens must be positive",
		},
		{
			name:        "Relative endpoint",
			mutate:      func(c *Config) { c.Providers.Perplexity.Endpoint = "/chat/completions" },
			expectError: true,
			errorMsg:    "perplexity: endpoint must be an absolute URL",
		},
		{
			name:        "Missing model",
			mutate:      func(c *Config) { c.Providers.Perplexity.Model = "" },
			expectError: true,
			errorMsg:    "perplexity: model is required",
		},
		{
			name:        "Negative history limit",
			mutate:      func(c *Config) { c.History.TokenLimit = -1 },
			expectError: true,
			errorMsg:    "history.token_limit cannot be negative",
		},
		{
			name:        "Kafka without brokers",
			mutate:      func(c *Config) { c.DataEngine.EnableKafka = true; c.DataEngine.KafkaBrokers = nil },
			expectError: true,
			errorMsg:    "kafka_brokers is required when kafka is enabled",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := getDefaultSettings()
			tc.mutate(cfg)

			err := validator.Validate(cfg)
			if tc.expectError {
				require.Error(t, err)
				assert.Equal(t, tc.errorMsg, err.Error())
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSettingsManager_GetSettingsReturnsCopy(t *testing.T) {
	initial := getDefaultSettings()
	initial.SessionSecret = "secret"
	initial.Providers.Gemini.APIKey = "gem-key"
	sm := NewSettingsManager(initial)

	copy1 := sm.GetSettings()
	copy1.Providers.OpenAI.Model = "changed"

	copy2 := sm.GetSettings()
	assert.Equal(t, "gpt-4", copy2.Providers.OpenAI.Model)
	assert.Equal(t, "secret", copy2.SessionSecret)
	assert.Equal(t, "gem-key", copy2.Providers.Gemini.APIKey)
}

func TestSettingsManager_UpdateSettingsNotifiesListeners(t *testing.T) {
	sm := NewSettingsManager(nil)
	listener := &testListener{}
	sm.AddChangeListener(listener)

	updated := sm.GetSettings()
	updated.Providers.OpenAI.Model = "gpt-4o"
	require.NoError(t, sm.UpdateSettings(updated))

	assert.Equal(t, 1, listener.calls)
	assert.Equal(t, "gpt-4o", listener.last.Providers.OpenAI.Model)
	assert.Equal(t, "gpt-4o", sm.GetSettings().Providers.OpenAI.Model)
}

func TestSettingsManager_UpdateSettings_ValidationFailure(t *testing.T) {
	sm := NewSettingsManager(nil)
	listener := &testListener{}
	sm.AddChangeListener(listener)

	bad := sm.GetSettings()
	bad.Providers.OpenAI.Temperature = 3
	err := sm.UpdateSettings(bad)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Equal(t, 0, listener.calls)
	assert.InDelta(t, 0.7, sm.GetSettings().Providers.OpenAI.Temperature, 1e-9)
}

func TestSettingsManager_AddValidator(t *testing.T) {
	sm := NewSettingsManager(nil)
	sm.AddValidator(rejectAllValidator{})

	err := sm.UpdateSettings(sm.GetSettings())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSettingsManager_UpdateProvider(t *testing.T) {
	sm := NewSettingsManager(nil)
	temp := 1.2

	require.NoError(t, sm.UpdateProvider(types.ProviderAnthropic, "claude-3-haiku", 512, &temp))
	s := sm.GetSettings().Providers.Anthropic
	assert.Equal(t, "claude-3-haiku", s.Model)
	assert.Equal(t, 512, s.MaxTokens)
	assert.InDelta(t, 1.2, s.Temperature, 1e-9)

	// zero values leave fields alone
	require.NoError(t, sm.UpdateProvider(types.ProviderAnthropic, "", 0, nil))
	assert.Equal(t, "claude-3-haiku", sm.GetSettings().Providers.Anthropic.Model)

	bad := 5.0
	assert.Error(t, sm.UpdateProvider(types.ProviderAnthropic, "", 0, &bad))
	assert.Error(t, sm.UpdateProvider(types.ProviderID("cohere"), "x", 0, nil))
}

func TestSettingsManager_UpdateProviders_AllOrNothing(t *testing.T) {
	sm := NewSettingsManager(nil)
	listener := &testListener{}
	sm.AddChangeListener(listener)
	cool, hot := 0.3, 5.0

	testCases := []struct {
		name    string
		updates map[types.ProviderID]ProviderUpdate
	}{
		{
			name: "one invalid temperature",
			updates: map[types.ProviderID]ProviderUpdate{
				types.ProviderPerplexity: {Model: "sonar", Temperature: &cool},
				types.ProviderOpenAI:     {Temperature: &hot},
			},
		},
		{
			name: "unknown provider",
			updates: map[types.ProviderID]ProviderUpdate{
				types.ProviderPerplexity:   {Model: "sonar"},
				types.ProviderID("cohere"): {Model: "command"},
			},
		},
		{
			name: "negative max tokens",
			updates: map[types.ProviderID]ProviderUpdate{
				types.ProviderGemini: {MaxTokens: -1},
			},
		},
	}

	before := sm.GetSettings()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sm.PrepareProviders(tc.updates)
			require.Error(t, err)
			require.Error(t, sm.UpdateProviders(tc.updates))
			assert.Equal(t, before.Providers, sm.GetSettings().Providers)
		})
	}
	assert.Zero(t, listener.calls)

	require.NoError(t, sm.UpdateProviders(map[types.ProviderID]ProviderUpdate{
		types.ProviderPerplexity: {Model: "sonar", Temperature: &cool},
		types.ProviderGemini:     {MaxTokens: 4096},
	}))
	after := sm.GetSettings().Providers
	assert.Equal(t, "sonar", after.Perplexity.Model)
	assert.InDelta(t, 0.3, after.Perplexity.Temperature, 1e-9)
	assert.Equal(t, 4096, after.Gemini.MaxTokens)
	assert.Equal(t, 1, listener.calls)
}

func TestSettingsManager_SaveAndLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	initial := getDefaultSettings()
	initial.Providers.OpenAI.APIKey = "sk-never-on-disk"
	initial.Providers.OpenAI.Model = "gpt-4-turbo"
	sm := NewSettingsManager(initial)
	require.NoError(t, sm.SaveToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-never-on-disk")

	other := NewSettingsManager(nil)
	listener := &testListener{}
	other.AddChangeListener(listener)
	require.NoError(t, other.LoadFromFile(path))

	assert.Equal(t, "gpt-4-turbo", other.GetSettings().Providers.OpenAI.Model)
	assert.Equal(t, 1, listener.calls)
}

func TestSettingsManager_LoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()
	sm := NewSettingsManager(nil)

	err := sm.LoadFromFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read settings file")

	invalidPath := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalidPath, []byte(`{"invalid": json`), 0644))
	err = sm.LoadFromFile(invalidPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse settings file")

	badValues, err := json.Marshal(map[string]interface{}{
		"providers": map[string]interface{}{
			"openai": map[string]interface{}{"temperature": 9},
		},
	})
	require.NoError(t, err)
	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, badValues, 0644))
	err = sm.LoadFromFile(badPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loaded settings validation failed")
}

func TestSettingsManager_ConcurrentAccess(t *testing.T) {
	sm := NewSettingsManager(nil)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = sm.UpdateProvider(types.ProviderOpenAI, "", 100+i, nil)
		}(i)
		go func() {
			defer wg.Done()
			_ = sm.GetSettings()
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, sm.GetSettings().Providers.OpenAI.MaxTokens, 100)
}
