package inference_engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeguardian/types"
)

// recordingTransport captures the request and delegates to a simulated transport.
type recordingTransport struct {
	inner    Transport
	requests []*Request
}

func (r *recordingTransport) RoundTrip(ctx context.Context, req *Request) ([]byte, error) {
	r.requests = append(r.requests, req)
	return r.inner.RoundTrip(ctx, req)
}

func testConfig(id types.ProviderID) types.ProviderConfig {
	endpoints := map[types.ProviderID]string{
		types.ProviderPerplexity: "https://api.perplexity.ai/chat/completions",
		types.ProviderOpenAI:     "https://api.openai.com/v1/chat/completions",
		types.ProviderAnthropic:  "https://api.anthropic.com/v1/messages",
		types.ProviderGemini:     "https://generativelanguage.googleapis.com/v1beta/models/gemini-pro:generateContent",
	}
	return types.ProviderConfig{
		ID:          id,
		Endpoint:    endpoints[id],
		Credential:  "secret-" + string(id),
		Model:       "model-" + string(id),
		MaxTokens:   256,
		Temperature: 0.5,
	}
}

var threeTurns = []types.ConversationTurn{
	{Role: types.RoleUser, Content: "first question"},
	{Role: types.RoleAssistant, Content: "first answer"},
	{Role: types.RoleUser, Content: "second question"},
}

func TestBuildMessages_AppendsPromptAsUser(t *testing.T) {
	messages := BuildMessages(threeTurns, "new prompt")

	require.Len(t, messages, 4)
	assert.Equal(t, "first question", messages[0].Content)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.Equal(t, "second question", messages[2].Content)
	assert.Equal(t, "user", messages[3].Role)
	assert.Equal(t, "new prompt", messages[3].Content)
}

func TestCodecClient_MessageArrayProviders(t *testing.T) {
	for _, id := range []types.ProviderID{types.ProviderPerplexity, types.ProviderOpenAI} {
		t.Run(string(id), func(t *testing.T) {
			transport := &recordingTransport{inner: NewSimulatedTransport(0)}
			client := NewCodecClient(transport, nil)

			text, err := client.Send(context.Background(), "how is performance?", threeTurns, testConfig(id))
			require.NoError(t, err)
			assert.Equal(t, performanceTemplate, text)

			require.Len(t, transport.requests, 1)
			req := transport.requests[0]
			assert.Equal(t, testConfig(id).Endpoint, req.URL)
			assert.Equal(t, "Bearer secret-"+string(id), req.Headers["Authorization"])

			var body openai.ChatCompletionRequest
			require.NoError(t, json.Unmarshal(req.Body, &body))
			assert.Equal(t, "model-"+string(id), body.Model)
			assert.Equal(t, 256, body.MaxTokens)
			assert.InDelta(t, 0.5, body.Temperature, 0.0001)
			require.Len(t, body.Messages, 4, "all prior turns plus the prompt")
			assert.Equal(t, "first question", body.Messages[0].Content)
			assert.Equal(t, openai.ChatMessageRoleAssistant, body.Messages[1].Role)
			assert.Equal(t, openai.ChatMessageRoleUser, body.Messages[3].Role)
			assert.Equal(t, "how is performance?", body.Messages[3].Content)
		})
	}
}

func TestCodecClient_AnthropicSendsLatestPromptOnly(t *testing.T) {
	transport := &recordingTransport{inner: NewSimulatedTransport(0)}
	client := NewCodecClient(transport, nil)

	text, err := client.Send(context.Background(), "cloud setup?", threeTurns, testConfig(types.ProviderAnthropic))
	require.NoError(t, err)
	assert.Equal(t, cloudTemplate, text)

	req := transport.requests[0]
	assert.Equal(t, "secret-anthropic", req.Headers["x-api-key"])
	assert.Equal(t, "2023-06-01", req.Headers["anthropic-version"])
	assert.Empty(t, req.Headers["Authorization"])

	var body AnthropicRequest
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, 256, body.MaxTokens)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, AnthropicMessage{Role: "user", Content: "cloud setup?"}, body.Messages[0])
}

func TestCodecClient_GeminiSinglePrompt(t *testing.T) {
	transport := &recordingTransport{inner: NewSimulatedTransport(0)}
	client := NewCodecClient(transport, nil)

	text, err := client.Send(context.Background(), "tell me about your API", threeTurns, testConfig(types.ProviderGemini))
	require.NoError(t, err)
	assert.Equal(t, apiTemplate, text)

	req := transport.requests[0]
	assert.True(t, strings.HasSuffix(req.URL, ":generateContent?key=secret-gemini"), req.URL)
	assert.Empty(t, req.Headers["Authorization"])

	var body GeminiRequest
	require.NoError(t, json.Unmarshal(req.Body, &body))
	require.Len(t, body.Contents, 1)
	require.Len(t, body.Contents[0].Parts, 1)
	assert.Equal(t, "tell me about your API", body.Contents[0].Parts[0].Text)
	require.NotNil(t, body.GenerationConfig)
	require.NotNil(t, body.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, int32(256), *body.GenerationConfig.MaxOutputTokens)
	require.NotNil(t, body.GenerationConfig.Temperature)
	assert.InDelta(t, 0.5, *body.GenerationConfig.Temperature, 0.0001)
}

func TestCodecClient_FaultClassification(t *testing.T) {
	testCases := []struct {
		fault    string
		expected ErrorKind
	}{
		{fault: "unauthorized", expected: ErrorKindUnauthorized},
		{fault: "rate_limited", expected: ErrorKindRateLimited},
		{fault: "network", expected: ErrorKindNetwork},
		{fault: "malformed", expected: ErrorKindMalformed},
		{fault: "unknown", expected: ErrorKindUnknown},
	}

	for _, tc := range testCases {
		for _, id := range types.DefaultPriorityOrder {
			t.Run(tc.fault+"/"+string(id), func(t *testing.T) {
				transport := NewSimulatedTransport(0)
				transport.InjectFault(id, tc.fault)
				client := NewCodecClient(transport, nil)

				_, err := client.Send(context.Background(), "q", nil, testConfig(id))
				require.Error(t, err)

				var perr *ProviderError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, tc.expected, perr.Kind)
				assert.Equal(t, id, perr.Provider)
				assert.NotContains(t, err.Error(), "secret-", "credentials must not leak into errors")
			})
		}
	}
}

func TestCodecClient_EmptyFaultReturnsEmptyText(t *testing.T) {
	transport := NewSimulatedTransport(0)
	transport.InjectFault(types.ProviderOpenAI, FaultEmpty)

	text, err := NewCodecClient(transport, nil).Send(context.Background(), "q", nil, testConfig(types.ProviderOpenAI))
	require.NoError(t, err)
	assert.Empty(t, text)

	text, err = NewCodecClient(transport, nil).Send(context.Background(), "q", nil, testConfig(types.ProviderGemini))
	require.NoError(t, err)
	assert.Equal(t, generalTemplate, text, "faults apply to one provider only")
}

func TestCodecClient_UnknownProvider(t *testing.T) {
	_, err := NewCodecClient(NewSimulatedTransport(0), nil).Send(context.Background(), "q", nil, types.ProviderConfig{ID: "cohere"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIG_NOT_FOUND")
}

func TestSimulatedTransport_HonoursContext(t *testing.T) {
	transport := NewSimulatedTransport(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCodecClient(transport, nil).Send(ctx, "q", nil, testConfig(types.ProviderOpenAI))
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorKindNetwork, perr.Kind)
}

func TestSimulatedTransport_InjectFaultsIgnoresUnknownNames(t *testing.T) {
	transport := NewSimulatedTransport(0)
	transport.InjectFaults(map[string]string{"OpenAI": "rate_limited", "cohere": "network"})

	kind, ok := transport.fault(types.ProviderOpenAI)
	assert.True(t, ok)
	assert.Equal(t, "rate_limited", kind)
	assert.Len(t, transport.faults, 1)
}
