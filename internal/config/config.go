package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeguardian/types"
)

// Config represents the main application configuration
type Config struct {
	ServerPort    int              `json:"server_port"`
	DataDir       string           `json:"data_dir"`
	LogLevel      string           `json:"log_level"`
	SessionSecret string           `json:"-"`
	Providers     ProvidersConfig  `json:"providers"`
	History       HistoryConfig    `json:"history"`
	Simulation    SimulationConfig `json:"simulation"`
	DataEngine    DataEngineConfig `json:"data_engine"`
	RateLimit     RateLimitConfig  `json:"rate_limit"`
}

// ProvidersConfig holds settings for each AI provider
type ProvidersConfig struct {
	Perplexity ProviderSettings `json:"perplexity"`
	OpenAI     ProviderSettings `json:"openai"`
	Anthropic  ProviderSettings `json:"anthropic"`
	Gemini     ProviderSettings `json:"gemini"`
}

// ProviderSettings is the persisted form of a provider configuration. APIKey only
// seeds the key store on first start and is never written back to disk.
type ProviderSettings struct {
	APIKey      string  `json:"-"`
	Endpoint    string  `json:"endpoint"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// HistoryConfig bounds the conversation context handed to providers.
// A TokenLimit of 0 sends the whole history.
type HistoryConfig struct {
	TokenLimit int    `json:"token_limit"`
	TokenModel string `json:"token_model"`
}

// SimulationConfig controls the simulated provider transport
type SimulationConfig struct {
	Latency  time.Duration     `json:"latency"`
	Failures map[string]string `json:"failures,omitempty"` // provider -> error kind
}

// DataEngineConfig represents configuration for event fan-out
type DataEngineConfig struct {
	EnableKafka     bool     `json:"enable_kafka"`
	EnableWebSocket bool     `json:"enable_websocket"`
	KafkaBrokers    []string `json:"kafka_brokers"`
	KafkaTopic      string   `json:"kafka_topic"`
}

// RateLimitConfig configures the per-client HTTP rate limiter
type RateLimitConfig struct {
	Window time.Duration `json:"window"`
	Limit  int           `json:"limit"`
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		ServerPort:    getEnvInt("SERVER_PORT", 8080),
		DataDir:       getEnv("DATA_DIR", "./data"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		SessionSecret: getEnv("SESSION_SECRET", "codeguardian-dev-session-secret"),
		Providers: ProvidersConfig{
			Perplexity: ProviderSettings{
				APIKey:      getEnv("PERPLEXITY_API_KEY", ""),
				Endpoint:    getEnv("PERPLEXITY_ENDPOINT", "https://api.perplexity.ai/chat/completions"),
				Model:       getEnv("PERPLEXITY_MODEL", "pplx-7b-online"),
				MaxTokens:   getEnvInt("PERPLEXITY_MAX_TOKENS", 1024),
				Temperature: getEnvFloat("PERPLEXITY_TEMPERATURE", 0.7),
			},
			OpenAI: ProviderSettings{
				APIKey:      getEnv("OPENAI_API_KEY", ""),
				Endpoint:    getEnv("OPENAI_ENDPOINT", "https://api.openai.com/v1/chat/completions"),
				Model:       getEnv("OPENAI_MODEL", "gpt-4"),
				MaxTokens:   getEnvInt("OPENAI_MAX_TOKENS", 1024),
				Temperature: getEnvFloat("OPENAI_TEMPERATURE", 0.7),
			},
			Anthropic: ProviderSettings{
				APIKey:      getEnv("ANTHROPIC_API_KEY", ""),
				Endpoint:    getEnv("ANTHROPIC_ENDPOINT", "https://api.anthropic.com/v1/messages"),
				Model:       getEnv("ANTHROPIC_MODEL", "claude-3-opus-20240229"),
				MaxTokens:   getEnvInt("ANTHROPIC_MAX_TOKENS", 1024),
				Temperature: getEnvFloat("ANTHROPIC_TEMPERATURE", 0.7),
			},
			Gemini: ProviderSettings{
				APIKey:      getEnv("GEMINI_API_KEY", ""),
				Endpoint:    getEnv("GEMINI_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta/models/gemini-pro:generateContent"),
				Model:       getEnv("GEMINI_MODEL", "gemini-pro"),
				MaxTokens:   getEnvInt("GEMINI_MAX_TOKENS", 1024),
				Temperature: getEnvFloat("GEMINI_TEMPERATURE", 0.7),
			},
		},
		History: HistoryConfig{
			TokenLimit: getEnvInt("HISTORY_TOKEN_LIMIT", 0),
			TokenModel: getEnv("HISTORY_TOKEN_MODEL", "gpt-4"),
		},
		Simulation: SimulationConfig{
			Latency:  time.Duration(getEnvInt("SIMULATED_LATENCY_MS", 1500)) * time.Millisecond,
			Failures: parseFailures(getEnv("SIMULATED_FAILURES", "")),
		},
		DataEngine: DataEngineConfig{
			EnableKafka:     getEnvBool("KAFKA_ENABLE", false),
			EnableWebSocket: getEnvBool("WEBSOCKET_ENABLE", true),
			KafkaBrokers:    strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			KafkaTopic:      getEnv("KAFKA_TOPIC", "codeguardian-events"),
		},
		RateLimit: RateLimitConfig{
			Window: time.Minute,
			Limit:  getEnvInt("RATE_LIMIT_PER_MINUTE", 100),
		},
	}
}

// Settings returns the settings block for a provider id.
func (p *ProvidersConfig) Settings(id types.ProviderID) (*ProviderSettings, bool) {
	switch id {
	case types.ProviderPerplexity:
		return &p.Perplexity, true
	case types.ProviderOpenAI:
		return &p.OpenAI, true
	case types.ProviderAnthropic:
		return &p.Anthropic, true
	case types.ProviderGemini:
		return &p.Gemini, true
	}
	return nil, false
}

// ProviderConfigs returns provider configurations in priority order, without credentials.
func (c *Config) ProviderConfigs() []types.ProviderConfig {
	configs := make([]types.ProviderConfig, 0, len(types.DefaultPriorityOrder))
	for _, id := range types.DefaultPriorityOrder {
		s, _ := c.Providers.Settings(id)
		configs = append(configs, types.ProviderConfig{
			ID:          id,
			Endpoint:    s.Endpoint,
			Model:       s.Model,
			MaxTokens:   s.MaxTokens,
			Temperature: s.Temperature,
		})
	}
	return configs
}

// SeedAPIKeys returns the API keys supplied through the environment.
func (c *Config) SeedAPIKeys() map[types.ProviderID]string {
	keys := make(map[types.ProviderID]string)
	for _, id := range types.DefaultPriorityOrder {
		s, _ := c.Providers.Settings(id)
		if key := strings.TrimSpace(s.APIKey); key != "" {
			keys[id] = key
		}
	}
	return keys
}

// parseFailures parses "perplexity:rate_limited,openai:unauthorized".
func parseFailures(raw string) map[string]string {
	failures := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		provider, kind, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || provider == "" || kind == "" {
			continue
		}
		failures[strings.ToLower(provider)] = strings.ToLower(kind)
	}
	return failures
}

// getEnv retrieves environment variable with fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves boolean environment variable with fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvInt retrieves integer environment variable with fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves float environment variable with fallback
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// SettingsValidator defines the interface for validating settings
type SettingsValidator interface {
	Validate(settings *Config) error
}

// SettingsChangeListener defines the interface for listening to settings changes
type SettingsChangeListener interface {
	OnSettingsChanged(oldSettings, newSettings *Config)
}

// SettingsManager manages application settings with validation and persistence
type SettingsManager struct {
	settings   *Config
	validators []SettingsValidator
	listeners  []SettingsChangeListener
	mutex      sync.RWMutex
}

// DefaultSettingsValidator provides default validation for settings
type DefaultSettingsValidator struct{}

// Validate validates the configuration settings
func (v *DefaultSettingsValidator) Validate(settings *Config) error {
	if settings.ServerPort < 1 || settings.ServerPort > 65535 {
		return fmt.Errorf("server_port must be between 1 and 65535")
	}

	for _, id := range types.DefaultPriorityOrder {
		s, _ := settings.Providers.Settings(id)
		if err := ValidateProviderSettings(id, s); err != nil {
			return err
		}
	}

	if settings.History.TokenLimit < 0 {
		return fmt.Errorf("history.token_limit cannot be negative")
	}

	if settings.Simulation.Latency < 0 {
		return fmt.Errorf("simulation.latency cannot be negative")
	}

	if settings.DataEngine.EnableKafka && len(settings.DataEngine.KafkaBrokers) == 0 {
		return fmt.Errorf("kafka_brokers is required when kafka is enabled")
	}

	return nil
}

// ValidateProviderSettings checks a single provider block.
func ValidateProviderSettings(id types.ProviderID, s *ProviderSettings) error {
	if s.Model == "" {
		return fmt.Errorf("%s: model is required", id)
	}
	if s.MaxTokens <= 0 {
		return fmt.Errorf("%s: max_tokens must be positive", id)
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("%s: temperature must be between 0 and 2", id)
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s: endpoint must be an absolute URL", id)
	}
	return nil
}

// NewSettingsManager creates a new settings manager seeded with initial settings.
func NewSettingsManager(initial *Config) *SettingsManager {
	if initial == nil {
		initial = getDefaultSettings()
	}
	return &SettingsManager{
		settings:   initial,
		validators: []SettingsValidator{&DefaultSettingsValidator{}},
		listeners:  make([]SettingsChangeListener, 0),
	}
}

// GetDefaultSettings returns default configuration settings
func (sm *SettingsManager) GetDefaultSettings() *Config {
	return getDefaultSettings()
}

// getDefaultSettings returns the defaults Load would produce with an empty environment.
func getDefaultSettings() *Config {
	return &Config{
		ServerPort: 8080,
		DataDir:    "./data",
		LogLevel:   "info",
		Providers: ProvidersConfig{
			Perplexity: ProviderSettings{Endpoint: "https://api.perplexity.ai/chat/completions", Model: "pplx-7b-online", MaxTokens: 1024, Temperature: 0.7},
			OpenAI:     ProviderSettings{Endpoint: "https://api.openai.com/v1/chat/completions", Model: "gpt-4", MaxTokens: 1024, Temperature: 0.7},
			Anthropic:  ProviderSettings{Endpoint: "https://api.anthropic.com/v1/messages", Model: "claude-3-opus-20240229", MaxTokens: 1024, Temperature: 0.7},
			Gemini:     ProviderSettings{Endpoint: "https://generativelanguage.googleapis.com/v1beta/models/gemini-pro:generateContent", Model: "gemini-pro", MaxTokens: 1024, Temperature: 0.7},
		},
		History:    HistoryConfig{TokenModel: "gpt-4"},
		Simulation: SimulationConfig{Latency: 1500 * time.Millisecond},
		DataEngine: DataEngineConfig{
			EnableWebSocket: true,
			KafkaBrokers:    []string{"localhost:9092"},
			KafkaTopic:      "codeguardian-events",
		},
		RateLimit: RateLimitConfig{Window: time.Minute, Limit: 100},
	}
}

// GetSettings returns a copy of the current settings
func (sm *SettingsManager) GetSettings() *Config {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return cloneConfig(sm.settings)
}

// cloneConfig deep copies through JSON, then restores the fields JSON skips.
func cloneConfig(src *Config) *Config {
	data, _ := json.Marshal(src)
	var dst Config
	_ = json.Unmarshal(data, &dst)

	dst.SessionSecret = src.SessionSecret
	for _, id := range types.DefaultPriorityOrder {
		from, _ := src.Providers.Settings(id)
		to, _ := dst.Providers.Settings(id)
		to.APIKey = from.APIKey
	}
	return &dst
}

// UpdateSettings updates the settings after validation
func (sm *SettingsManager) UpdateSettings(newSettings *Config) error {
	sm.mutex.Lock()

	for _, validator := range sm.validators {
		if err := validator.Validate(newSettings); err != nil {
			sm.mutex.Unlock()
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	oldSettings := sm.settings
	sm.settings = newSettings
	listeners := append([]SettingsChangeListener(nil), sm.listeners...)
	sm.mutex.Unlock()

	for _, listener := range listeners {
		listener.OnSettingsChanged(oldSettings, newSettings)
	}

	return nil
}

// ProviderUpdate changes the generation parameters of one provider.
// Zero values keep the current setting.
type ProviderUpdate struct {
	Model       string
	MaxTokens   int
	Temperature *float64
}

// PrepareProviders returns a copy of the current settings with every update
// merged in, validated as a whole. The live settings are not touched.
func (sm *SettingsManager) PrepareProviders(updates map[types.ProviderID]ProviderUpdate) (*Config, error) {
	candidate := sm.GetSettings()
	for id, u := range updates {
		s, ok := candidate.Providers.Settings(id)
		if !ok {
			return nil, fmt.Errorf("unknown provider: %s", id)
		}
		if u.Model != "" {
			s.Model = u.Model
		}
		if u.MaxTokens != 0 {
			s.MaxTokens = u.MaxTokens
		}
		if u.Temperature != nil {
			s.Temperature = *u.Temperature
		}
	}

	sm.mutex.RLock()
	validators := append([]SettingsValidator(nil), sm.validators...)
	sm.mutex.RUnlock()
	for _, validator := range validators {
		if err := validator.Validate(candidate); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
	}
	return candidate, nil
}

// UpdateProviders applies every update or none of them.
func (sm *SettingsManager) UpdateProviders(updates map[types.ProviderID]ProviderUpdate) error {
	candidate, err := sm.PrepareProviders(updates)
	if err != nil {
		return err
	}
	return sm.UpdateSettings(candidate)
}

// UpdateProvider applies a parameter change to one provider and notifies listeners.
func (sm *SettingsManager) UpdateProvider(id types.ProviderID, model string, maxTokens int, temperature *float64) error {
	return sm.UpdateProviders(map[types.ProviderID]ProviderUpdate{
		id: {Model: model, MaxTokens: maxTokens, Temperature: temperature},
	})
}

// AddValidator adds a settings validator
func (sm *SettingsManager) AddValidator(validator SettingsValidator) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.validators = append(sm.validators, validator)
}

// AddChangeListener adds a settings change listener
func (sm *SettingsManager) AddChangeListener(listener SettingsChangeListener) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.listeners = append(sm.listeners, listener)
}

// SaveToFile saves the current settings to a file. API keys are excluded.
func (sm *SettingsManager) SaveToFile(filename string) error {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	data, err := json.MarshalIndent(sm.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

// LoadFromFile loads settings from a file on top of the current values.
func (sm *SettingsManager) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	newSettings := sm.GetSettings()
	if err := json.Unmarshal(data, newSettings); err != nil {
		return fmt.Errorf("failed to parse settings file: %w", err)
	}

	for _, validator := range sm.validators {
		if err := validator.Validate(newSettings); err != nil {
			return fmt.Errorf("loaded settings validation failed: %w", err)
		}
	}

	sm.mutex.Lock()
	oldSettings := sm.settings
	sm.settings = newSettings
	listeners := append([]SettingsChangeListener(nil), sm.listeners...)
	sm.mutex.Unlock()

	for _, listener := range listeners {
		listener.OnSettingsChanged(oldSettings, newSettings)
	}

	return nil
}
