package inference_engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/guiperry/gollm_cerebras/config"
	"github.com/guiperry/gollm_cerebras/providers"
	gollm_types "github.com/guiperry/gollm_cerebras/types"
	"github.com/guiperry/gollm_cerebras/utils"
)

// --- Anthropic API Specific Structs ---

type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AnthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []AnthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
}

type AnthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type AnthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Model      string                  `json:"model,omitempty"`
	Content    []AnthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
}

type AnthropicErrorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- AnthropicProvider Implementation ---

// AnthropicProvider sends only the latest user prompt; prior turns are not forwarded.
type AnthropicProvider struct {
	endpoint     string
	apiKey       string
	model        string
	maxTokens    int
	temperature  *float64
	extraHeaders map[string]string
	logger       utils.Logger
	mutex        sync.Mutex
}

func NewAnthropicProvider(endpoint, apiKey, model string, extraHeaders map[string]string) *AnthropicProvider {
	provider := &AnthropicProvider{
		endpoint:     endpoint,
		apiKey:       apiKey,
		model:        model,
		maxTokens:    1024,
		extraHeaders: make(map[string]string),
		logger:       utils.NewLogger(utils.LogLevelInfo),
	}
	if provider.endpoint == "" {
		provider.endpoint = "https://api.anthropic.com/v1/messages"
	}
	if provider.model == "" {
		provider.model = "claude-3-opus-20240229"
	}
	for k, v := range extraHeaders {
		provider.extraHeaders[k] = v
	}
	return provider
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

func (p *AnthropicProvider) Endpoint() string {
	return p.endpoint
}

func (p *AnthropicProvider) Headers() map[string]string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	headers := map[string]string{
		"Content-Type":      "application/json",
		"x-api-key":         p.apiKey,
		"anthropic-version": "2023-06-01",
		"User-Agent":        "CodeGuardian/1.0",
	}
	for k, v := range p.extraHeaders {
		headers[k] = v
	}
	return headers
}

func (p *AnthropicProvider) PrepareRequest(prompt string, options map[string]interface{}) ([]byte, error) {
	return p.PrepareRequestWithMessages([]gollm_types.MemoryMessage{{Role: "user", Content: prompt}}, options)
}

func (p *AnthropicProvider) PrepareRequestWithMessages(messages []gollm_types.MemoryMessage, options map[string]interface{}) ([]byte, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	apiMessages := make([]AnthropicMessage, 0, len(messages))
	var systemPrompt string
	for _, msg := range messages {
		role := "user"
		switch strings.ToLower(msg.Role) {
		case "assistant", "ai":
			role = "assistant"
		case "system":
			systemPrompt = msg.Content
			continue
		}
		apiMessages = append(apiMessages, AnthropicMessage{Role: role, Content: msg.Content})
	}

	req := AnthropicRequest{
		Model:       p.model,
		Messages:    apiMessages,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		System:      systemPrompt,
	}

	if m, ok := options["model"].(string); ok && m != "" {
		req.Model = m
	}
	if mt, ok := optionInt(options, "max_tokens"); ok && mt > 0 {
		req.MaxTokens = mt
	}
	if t, ok := optionFloat(options, "temperature"); ok {
		req.Temperature = &t
	}

	return json.Marshal(req)
}

func (p *AnthropicProvider) ParseResponse(body []byte) (string, error) {
	var response AnthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal Anthropic response: %w", err)
	}

	if response.Type == "error" {
		var errResp AnthropicErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil {
			return "", fmt.Errorf("anthropic API error (%s): %s", errResp.Error.Type, errResp.Error.Message)
		}
	}

	if len(response.Content) > 0 && response.Content[0].Type == "text" {
		return response.Content[0].Text, nil
	}

	return "", errors.New("no text content found in Anthropic response")
}

// EncodeResponse renders text as a Messages API body.
func (p *AnthropicProvider) EncodeResponse(text string) ([]byte, error) {
	p.mutex.Lock()
	model := p.model
	p.mutex.Unlock()

	return json.Marshal(AnthropicResponse{
		ID:         "msg_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Type:       "message",
		Role:       "assistant",
		Model:      model,
		Content:    []AnthropicContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
	})
}

func (p *AnthropicProvider) SendsHistory() bool { return false }

func (p *AnthropicProvider) SetDefaultOptions(cfg *config.Config) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if cfg == nil {
		return
	}
	if apiKey, ok := cfg.APIKeys[p.Name()]; ok && p.apiKey == "" {
		p.apiKey = apiKey
	}
	if p.model == "" && cfg.Model != "" {
		p.model = cfg.Model
	}
	if cfg.MaxTokens > 0 {
		p.maxTokens = cfg.MaxTokens
	}
}

func (p *AnthropicProvider) SetOption(key string, value interface{}) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	options := map[string]interface{}{key: value}
	switch key {
	case "model":
		if v, ok := value.(string); ok {
			p.model = v
		}
	case "max_tokens":
		if v, ok := optionInt(options, key); ok {
			p.maxTokens = v
		}
	case "temperature":
		if v, ok := optionFloat(options, key); ok {
			p.temperature = &v
		}
	}
}

func (p *AnthropicProvider) SetExtraHeaders(headers map[string]string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.extraHeaders = make(map[string]string, len(headers))
	for k, v := range headers {
		p.extraHeaders[k] = v
	}
}

// --- Stubbed/Unsupported Methods ---

func (p *AnthropicProvider) PrepareRequestWithSchema(prompt string, options map[string]interface{}, schema interface{}) ([]byte, error) {
	return nil, errors.New("anthropic provider does not support JSON schema validation via response_format")
}
func (p *AnthropicProvider) SupportsJSONSchema() bool                        { return false }
func (p *AnthropicProvider) HandleFunctionCalls(body []byte) ([]byte, error) { return body, nil }
func (p *AnthropicProvider) SetLogger(logger utils.Logger)                   { p.logger = logger }
func (p *AnthropicProvider) SupportsStreaming() bool                         { return false }
func (p *AnthropicProvider) PrepareStreamRequest(prompt string, options map[string]interface{}) ([]byte, error) {
	return nil, errors.New("streaming not implemented for Anthropic provider")
}
func (p *AnthropicProvider) ParseStreamResponse(chunk []byte) (string, error) {
	return "", errors.New("streaming not implemented for Anthropic provider")
}

var _ providers.Provider = (*AnthropicProvider)(nil)
var _ Codec = (*AnthropicProvider)(nil)
