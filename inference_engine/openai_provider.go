package inference_engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guiperry/gollm_cerebras/config"
	"github.com/guiperry/gollm_cerebras/providers"
	gollm_types "github.com/guiperry/gollm_cerebras/types"
	"github.com/guiperry/gollm_cerebras/utils"
	openai "github.com/sashabaranov/go-openai"
)

// ChatCompletionProvider shapes requests for chat-completion style APIs.
// Perplexity and OpenAI share the wire format and differ only in endpoint and model.
type ChatCompletionProvider struct {
	name         string
	endpoint     string
	apiKey       string
	model        string
	maxTokens    int
	temperature  *float32
	extraHeaders map[string]string
	logger       utils.Logger
	mutex        sync.Mutex
}

func NewChatCompletionProvider(name, endpoint, apiKey, model string, extraHeaders map[string]string) *ChatCompletionProvider {
	provider := &ChatCompletionProvider{
		name:         name,
		endpoint:     endpoint,
		apiKey:       apiKey,
		model:        model,
		maxTokens:    1024,
		extraHeaders: make(map[string]string),
		logger:       utils.NewLogger(utils.LogLevelInfo),
	}
	for k, v := range extraHeaders {
		provider.extraHeaders[k] = v
	}
	return provider
}

func (p *ChatCompletionProvider) Name() string {
	return p.name
}

func (p *ChatCompletionProvider) Endpoint() string {
	return p.endpoint
}

func (p *ChatCompletionProvider) Headers() map[string]string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + p.apiKey,
		"User-Agent":    "CodeGuardian/1.0",
	}
	for k, v := range p.extraHeaders {
		headers[k] = v
	}
	return headers
}

func (p *ChatCompletionProvider) PrepareRequest(prompt string, options map[string]interface{}) ([]byte, error) {
	return p.PrepareRequestWithMessages([]gollm_types.MemoryMessage{{Role: "user", Content: prompt}}, options)
}

func (p *ChatCompletionProvider) PrepareRequestWithMessages(messages []gollm_types.MemoryMessage, options map[string]interface{}) ([]byte, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	apiMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch strings.ToLower(msg.Role) {
		case "assistant", "ai", "model":
			role = openai.ChatMessageRoleAssistant
		case "system":
			role = openai.ChatMessageRoleSystem
		}
		apiMessages = append(apiMessages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  apiMessages,
		MaxTokens: p.maxTokens,
	}
	if p.temperature != nil {
		req.Temperature = *p.temperature
	}

	if m, ok := options["model"].(string); ok && m != "" {
		req.Model = m
	}
	if mt, ok := optionInt(options, "max_tokens"); ok && mt > 0 {
		req.MaxTokens = mt
	}
	if t, ok := optionFloat(options, "temperature"); ok {
		req.Temperature = float32(t)
	}

	return json.Marshal(req)
}

func (p *ChatCompletionProvider) ParseResponse(body []byte) (string, error) {
	var response openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal %s response: %w", p.name, err)
	}

	if len(response.Choices) == 0 {
		var errResp openai.ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("%s API error (%s): %s", p.name, errResp.Error.Type, errResp.Error.Message)
		}
		return "", fmt.Errorf("no choices in %s response", p.name)
	}

	return response.Choices[0].Message.Content, nil
}

// EncodeResponse renders text as a chat.completion body.
func (p *ChatCompletionProvider) EncodeResponse(text string) ([]byte, error) {
	p.mutex.Lock()
	model := p.model
	p.mutex.Unlock()

	return json.Marshal(openai.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text},
			FinishReason: openai.FinishReasonStop,
		}},
	})
}

func (p *ChatCompletionProvider) SendsHistory() bool { return true }

func (p *ChatCompletionProvider) SetDefaultOptions(cfg *config.Config) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if cfg == nil {
		return
	}
	if apiKey, ok := cfg.APIKeys[p.name]; ok && p.apiKey == "" {
		p.apiKey = apiKey
	}
	if p.model == "" && cfg.Model != "" {
		p.model = cfg.Model
	}
	if cfg.MaxTokens > 0 {
		p.maxTokens = cfg.MaxTokens
	}
}

func (p *ChatCompletionProvider) SetOption(key string, value interface{}) {
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
			t := float32(v)
			p.temperature = &t
		}
	}
}

func (p *ChatCompletionProvider) SetExtraHeaders(headers map[string]string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.extraHeaders = make(map[string]string, len(headers))
	for k, v := range headers {
		p.extraHeaders[k] = v
	}
}

func (p *ChatCompletionProvider) SetLogger(logger utils.Logger) { p.logger = logger }

// --- Unsupported ---

func (p *ChatCompletionProvider) PrepareRequestWithSchema(prompt string, options map[string]interface{}, schema interface{}) ([]byte, error) {
	return p.PrepareRequest(prompt, options)
}
func (p *ChatCompletionProvider) SupportsJSONSchema() bool                        { return false }
func (p *ChatCompletionProvider) HandleFunctionCalls(body []byte) ([]byte, error) { return body, nil }
func (p *ChatCompletionProvider) SupportsStreaming() bool                         { return false }
func (p *ChatCompletionProvider) PrepareStreamRequest(prompt string, options map[string]interface{}) ([]byte, error) {
	return nil, errors.New("streaming not supported by " + p.name + " provider")
}
func (p *ChatCompletionProvider) ParseStreamResponse(chunk []byte) (string, error) {
	return "", errors.New("streaming not supported by " + p.name + " provider")
}

var _ providers.Provider = (*ChatCompletionProvider)(nil)
var _ Codec = (*ChatCompletionProvider)(nil)
