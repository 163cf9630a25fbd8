package inference_engine

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"codeguardian/internal/logging"
)

// modelToEncoding maps model name fragments to their tiktoken encoding.
var modelToEncoding = map[string]string{
	"gpt-4":   "cl100k_base",
	"gpt-3.5": "cl100k_base",
	"pplx":    "cl100k_base",
	"sonar":   "cl100k_base",
	"llama":   "cl100k_base",
	"mistral": "cl100k_base",
	"claude":  "cl100k_base",
	"gemini":  "cl100k_base",
}

var encodingCache sync.Map // encoding name -> *tiktoken.Tiktoken

func encodingNameForModel(model string) string {
	lowerModel := strings.ToLower(model)
	if name, ok := tiktoken.MODEL_TO_ENCODING[lowerModel]; ok {
		return name
	}
	for prefix, name := range modelToEncoding {
		if strings.Contains(lowerModel, prefix) {
			return name
		}
	}
	return "cl100k_base"
}

func getEncodingForModel(model string) (*tiktoken.Tiktoken, error) {
	name := encodingNameForModel(model)
	if enc, ok := encodingCache.Load(name); ok {
		return enc.(*tiktoken.Tiktoken), nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	encodingCache.Store(name, enc)
	return enc, nil
}

// EstimateTokens counts the tokens of content for model, falling back to a
// character heuristic when no encoding can be loaded.
func EstimateTokens(content, model string) int {
	enc, err := getEncodingForModel(model)
	if err == nil {
		return len(enc.Encode(content, nil, nil))
	}
	logging.L_debug("⚠️  Using character-based token estimate", "model", model, "error", err)
	return len(content)/4 + 5
}
