package inference_engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/guiperry/gollm_cerebras/config"
	"github.com/guiperry/gollm_cerebras/providers"
	"github.com/guiperry/gollm_cerebras/types"
	"github.com/guiperry/gollm_cerebras/utils"
)

const defaultGeminiBase = "https://generativelanguage.googleapis.com/v1beta/"

// GeminiProvider implements the provider interface for Google Gemini.
type GeminiProvider struct {
	apiKey       string
	model        string
	maxTokens    int
	temperature  *float32
	endpoint     string
	extraHeaders map[string]string
	logger       utils.Logger
	mutex        sync.Mutex
}

// --- Gemini API Request/Response Structs ---
type GeminiRequest struct {
	Contents         []GeminiContent         `json:"contents"`
	GenerationConfig *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

type GeminiContent struct {
	Role  string       `json:"role,omitempty"` // "user" or "model"
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text string `json:"text"`
}

type GeminiGenerationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	MaxOutputTokens *int32   `json:"maxOutputTokens,omitempty"`
}

type GeminiCandidate struct {
	Content      *GeminiContent `json:"content"`
	FinishReason string         `json:"finishReason,omitempty"`
}

type GeminiResponse struct {
	Candidates     []GeminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

type GeminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGeminiProvider creates a Gemini codec. endpoint may be the full
// generateContent URL or the API base, in which case the model path is appended.
func NewGeminiProvider(endpoint, apiKey, model string, extraHeaders map[string]string) *GeminiProvider {
	provider := &GeminiProvider{
		apiKey:       apiKey,
		model:        model,
		maxTokens:    1024,
		endpoint:     endpoint,
		extraHeaders: make(map[string]string),
		logger:       utils.NewLogger(utils.LogLevelInfo),
	}
	if provider.model == "" {
		provider.model = "gemini-pro"
	}
	if provider.endpoint == "" {
		provider.endpoint = defaultGeminiBase
	}
	for k, v := range extraHeaders {
		provider.extraHeaders[k] = v
	}
	return provider
}

// Name returns the name of the provider.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Endpoint returns the generateContent URL with the API key as a query parameter.
func (p *GeminiProvider) Endpoint() string {
	p.mutex.Lock()
	base := p.endpoint
	model := p.model
	apiKey := p.apiKey
	p.mutex.Unlock()

	if !strings.Contains(base, ":generateContent") {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		base = fmt.Sprintf("%smodels/%s:generateContent", base, model)
	}
	if apiKey == "" {
		p.logger.Error("Gemini API key is missing when constructing endpoint URL")
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "key=" + url.QueryEscape(apiKey)
}

// Headers returns the necessary HTTP headers. The key travels in the URL.
func (p *GeminiProvider) Headers() map[string]string {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	headers := map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   "CodeGuardian/1.0",
	}
	for k, v := range p.extraHeaders {
		headers[k] = v
	}
	return headers
}

// PrepareRequest sends the prompt as the single part of a single content.
func (p *GeminiProvider) PrepareRequest(prompt string, options map[string]interface{}) ([]byte, error) {
	return p.PrepareRequestWithMessages([]types.MemoryMessage{{Role: "user", Content: prompt}}, options)
}

func (p *GeminiProvider) PrepareRequestWithSchema(prompt string, options map[string]interface{}, schema interface{}) ([]byte, error) {
	return p.PrepareRequest(prompt, options)
}

// PrepareRequestWithMessages maps assistant turns onto the "model" role.
func (p *GeminiProvider) PrepareRequestWithMessages(messages []types.MemoryMessage, options map[string]interface{}) ([]byte, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	contents := make([]GeminiContent, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		switch strings.ToLower(msg.Role) {
		case "assistant", "ai", "model":
			role = "model"
		}
		contents = append(contents, GeminiContent{
			Role:  role,
			Parts: []GeminiPart{{Text: msg.Content}},
		})
	}

	genConfig := &GeminiGenerationConfig{Temperature: p.temperature}
	maxTokens := int32(p.maxTokens)
	genConfig.MaxOutputTokens = &maxTokens

	if tempVal, ok := optionFloat(options, "temperature"); ok {
		t := float32(tempVal)
		genConfig.Temperature = &t
	}
	if mt, ok := optionInt(options, "max_tokens"); ok && mt > 0 {
		v := int32(mt)
		genConfig.MaxOutputTokens = &v
	}

	return json.Marshal(GeminiRequest{Contents: contents, GenerationConfig: genConfig})
}

// ParseResponse extracts the generated text from the API response.
func (p *GeminiProvider) ParseResponse(body []byte) (string, error) {
	var resp GeminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal Gemini response: %w", err)
	}

	if len(resp.Candidates) == 0 {
		var errResp GeminiErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("gemini API error %d (%s): %s", errResp.Error.Code, errResp.Error.Status, errResp.Error.Message)
		}
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			p.logger.Warn("Gemini prompt was blocked", "blockReason", resp.PromptFeedback.BlockReason)
			return "", fmt.Errorf("prompt blocked by Gemini: %s", resp.PromptFeedback.BlockReason)
		}
		return "", errors.New("no response candidates found in Gemini response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content != nil && len(candidate.Content.Parts) > 0 {
		return candidate.Content.Parts[0].Text, nil
	}

	switch candidate.FinishReason {
	case "SAFETY":
		return "", errors.New("response blocked by Gemini safety filters")
	case "RECITATION":
		return "", errors.New("response blocked by Gemini recitation filters")
	case "MAX_TOKENS":
		return "", errors.New("response truncated due to max tokens limit")
	default:
		return "", fmt.Errorf("no content in response (finish reason: %s)", candidate.FinishReason)
	}
}

// EncodeResponse renders text as a generateContent body.
func (p *GeminiProvider) EncodeResponse(text string) ([]byte, error) {
	return json.Marshal(GeminiResponse{
		Candidates: []GeminiCandidate{{
			Content:      &GeminiContent{Role: "model", Parts: []GeminiPart{{Text: text}}},
			FinishReason: "STOP",
		}},
	})
}

func (p *GeminiProvider) SendsHistory() bool { return false }

// SetExtraHeaders configures additional HTTP headers.
func (p *GeminiProvider) SetExtraHeaders(extraHeaders map[string]string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.extraHeaders = make(map[string]string, len(extraHeaders))
	for k, v := range extraHeaders {
		p.extraHeaders[k] = v
	}
}

func (p *GeminiProvider) HandleFunctionCalls(body []byte) ([]byte, error) {
	return body, nil
}

func (p *GeminiProvider) SupportsJSONSchema() bool {
	return false
}

// SetDefaultOptions applies the key, model and token limit from a gollm config.
func (p *GeminiProvider) SetDefaultOptions(cfg *config.Config) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if cfg == nil {
		p.logger.Warn("SetDefaultOptions called with nil config")
		return
	}
	if apiKey, ok := cfg.APIKeys[p.Name()]; ok && p.apiKey == "" {
		p.apiKey = apiKey
	}
	if cfg.Model != "" {
		p.model = cfg.Model
	}
	if cfg.MaxTokens > 0 {
		p.maxTokens = cfg.MaxTokens
	}
	if p.temperature == nil && cfg.Temperature > 0 {
		t := float32(cfg.Temperature)
		p.temperature = &t
	}
}

// SetOption validates and applies a single option.
func (p *GeminiProvider) SetOption(key string, value interface{}) {
	if err := validateGeminiOption(key, value); err != nil {
		p.logger.Warn("Ignoring invalid Gemini option", "key", key, "error", err)
		return
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	options := map[string]interface{}{key: value}
	switch key {
	case "model":
		p.model = value.(string)
	case "max_tokens":
		v, _ := optionInt(options, key)
		p.maxTokens = v
	case "temperature":
		v, _ := optionFloat(options, key)
		t := float32(v)
		p.temperature = &t
	}
}

func validateGeminiOption(key string, value interface{}) error {
	options := map[string]interface{}{key: value}
	switch key {
	case "model":
		if s, ok := value.(string); !ok || s == "" {
			return errors.New("model must be a non-empty string")
		}
	case "temperature":
		temp, ok := optionFloat(options, key)
		if !ok {
			return errors.New("temperature must be a number")
		}
		if temp < 0.0 || temp > 2.0 {
			return fmt.Errorf("temperature must be between 0.0 and 2.0, got %f", temp)
		}
	case "max_tokens":
		mt, ok := optionInt(options, key)
		if !ok || mt <= 0 {
			return errors.New("max_tokens must be a positive integer")
		}
	}
	return nil
}

func (p *GeminiProvider) SetLogger(logger utils.Logger) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.logger = logger
}

func (p *GeminiProvider) SupportsStreaming() bool { return false }

func (p *GeminiProvider) PrepareStreamRequest(prompt string, options map[string]interface{}) ([]byte, error) {
	return nil, errors.New("streaming not implemented for Gemini provider")
}

func (p *GeminiProvider) ParseStreamResponse(chunk []byte) (string, error) {
	return "", errors.New("streaming not implemented for Gemini provider")
}

var _ providers.Provider = (*GeminiProvider)(nil)
var _ Codec = (*GeminiProvider)(nil)
