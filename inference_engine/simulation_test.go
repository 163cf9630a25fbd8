package inference_engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeguardian/types"
)

func TestSimulationClient_Templates(t *testing.T) {
	testCases := []struct {
		name     string
		prompt   string
		topic    string
		expected string
	}{
		{name: "security", prompt: "Is my login SECURITY ok?", topic: "security", expected: securityTemplate},
		{name: "performance", prompt: "performance tips", topic: "performance", expected: performanceTemplate},
		{name: "scalability", prompt: "How about scalability", topic: "scalability", expected: scalabilityTemplate},
		{name: "api", prompt: "review my API design", topic: "api", expected: apiTemplate},
		{name: "cloud", prompt: "cloud deployment", topic: "cloud", expected: cloudTemplate},
		{name: "general", prompt: "hello there", topic: "general", expected: generalTemplate},
		{name: "security wins over later keywords", prompt: "cloud api performance security", topic: "security", expected: securityTemplate},
		{name: "performance before scalability", prompt: "scalability and performance", topic: "performance", expected: performanceTemplate},
	}

	sim := NewSimulationClient(0)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, sim.Respond(tc.prompt))
			assert.Equal(t, tc.topic, sim.topic(tc.prompt))
		})
	}
}

func TestSimulationClient_SecurityTemplateText(t *testing.T) {
	text, err := NewSimulationClient(0).Send(context.Background(), "check security please", nil, types.ProviderConfig{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.ToLower(text),
		"based on my analysis of your code, i've identified several security considerations"))
}

func TestSimulationClient_AnalysisPromptMapsToSecurity(t *testing.T) {
	prompt := "Analyze this go code for security vulnerabilities, performance issues, and scalability concerns."
	assert.Equal(t, securityTemplate, NewSimulationClient(0).Respond(prompt))
}

func TestSimulationClient_NeverFailsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	text, err := NewSimulationClient(time.Hour).Send(ctx, "x", nil, types.ProviderConfig{})
	require.NoError(t, err)
	assert.Equal(t, generalTemplate, text)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSimulationClient_Deterministic(t *testing.T) {
	sim := NewSimulationClient(0)
	for _, prompt := range []string{"security", "api", "", "anything"} {
		assert.Equal(t, sim.Respond(prompt), sim.Respond(prompt))
	}
}
