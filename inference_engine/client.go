package inference_engine

import (
	"context"
	"fmt"

	gollm_types "github.com/guiperry/gollm_cerebras/types"
	"github.com/guiperry/gollm_cerebras/utils"

	"codeguardian/internal/logging"
	"codeguardian/types"
)

// CodecClient is the ProviderClient for real vendors: it shapes the request
// with the vendor codec and hands it to a Transport.
type CodecClient struct {
	transport Transport
	logger    utils.Logger
}

// NewCodecClient creates a client over transport. logger is passed to each codec.
func NewCodecClient(transport Transport, logger utils.Logger) *CodecClient {
	if logger == nil {
		logger = utils.NewLogger(utils.LogLevelInfo)
	}
	return &CodecClient{transport: transport, logger: logger}
}

// BuildMessages flattens prior turns plus the new prompt into the gollm message list.
// The new prompt is always last, with the user role.
func BuildMessages(history []types.ConversationTurn, prompt string) []gollm_types.MemoryMessage {
	messages := make([]gollm_types.MemoryMessage, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, gollm_types.MemoryMessage{Role: string(turn.Role), Content: turn.Content})
	}
	return append(messages, gollm_types.MemoryMessage{Role: string(types.RoleUser), Content: prompt})
}

// Send implements ProviderClient.
func (c *CodecClient) Send(ctx context.Context, prompt string, history []types.ConversationTurn, cfg types.ProviderConfig) (string, error) {
	codec, err := NewCodec(cfg, c.logger)
	if err != nil {
		return "", err
	}

	options := requestOptions(cfg)
	var body []byte
	if codec.SendsHistory() {
		body, err = codec.PrepareRequestWithMessages(BuildMessages(history, prompt), options)
	} else {
		body, err = codec.PrepareRequest(prompt, options)
	}
	if err != nil {
		return "", NewProviderError(cfg.ID, ErrorKindUnknown, fmt.Errorf("prepare request: %w", err))
	}

	logging.L_debug("🌐 Sending request", "provider", cfg.ID, "model", cfg.Model, "bytes", len(body), "history", len(history))

	raw, err := c.transport.RoundTrip(ctx, &Request{
		Provider: cfg.ID,
		URL:      codec.Endpoint(),
		Headers:  codec.Headers(),
		Body:     body,
		Prompt:   prompt,
		Encode:   codec.EncodeResponse,
	})
	if err != nil {
		return "", ClassifyError(cfg.ID, err)
	}

	text, err := codec.ParseResponse(raw)
	if err != nil {
		perr := ClassifyError(cfg.ID, err)
		if perr.Kind == ErrorKindUnknown {
			perr.Kind = ErrorKindMalformed
		}
		return "", perr
	}
	return text, nil
}

var _ ProviderClient = (*CodecClient)(nil)
