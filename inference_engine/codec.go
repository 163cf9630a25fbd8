package inference_engine

import (
	"github.com/guiperry/gollm_cerebras/config"
	"github.com/guiperry/gollm_cerebras/providers"
	"github.com/guiperry/gollm_cerebras/utils"

	apperrors "codeguardian/internal/errors"
	"codeguardian/types"
)

// Codec is a vendor request/response shaper. Besides the gollm provider
// contract it can render text in the vendor's own response shape, which the
// simulated transport uses to answer requests.
type Codec interface {
	providers.Provider
	EncodeResponse(text string) ([]byte, error)
	// SendsHistory reports whether requests carry prior turns or only the latest prompt.
	SendsHistory() bool
}

// NewCodec builds a fresh codec for one request. Codecs hold the credential, so
// they are never shared between calls.
func NewCodec(cfg types.ProviderConfig, logger utils.Logger) (Codec, error) {
	var codec Codec
	switch cfg.ID {
	case types.ProviderPerplexity, types.ProviderOpenAI:
		codec = NewChatCompletionProvider(string(cfg.ID), cfg.Endpoint, cfg.Credential, cfg.Model, nil)
	case types.ProviderAnthropic:
		codec = NewAnthropicProvider(cfg.Endpoint, cfg.Credential, cfg.Model, nil)
	case types.ProviderGemini:
		codec = NewGeminiProvider(cfg.Endpoint, cfg.Credential, cfg.Model, nil)
	default:
		return nil, apperrors.NewConfigNotFoundError(string(cfg.ID))
	}

	if logger != nil {
		codec.SetLogger(logger)
	}
	codec.SetDefaultOptions(&config.Config{
		APIKeys:   map[string]string{string(cfg.ID): cfg.Credential},
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	})
	codec.SetOption("temperature", cfg.Temperature)
	return codec, nil
}

// requestOptions is the option map handed to PrepareRequest*.
func requestOptions(cfg types.ProviderConfig) map[string]interface{} {
	return map[string]interface{}{
		"model":       cfg.Model,
		"max_tokens":  cfg.MaxTokens,
		"temperature": cfg.Temperature,
	}
}

func optionInt(options map[string]interface{}, key string) (int, bool) {
	switch v := options[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func optionFloat(options map[string]interface{}, key string) (float64, bool) {
	switch v := options[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}
