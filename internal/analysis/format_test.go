package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMessage(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		contains []string
	}{
		{name: "bold", input: "**API Security**: use OAuth", contains: []string{"<strong>API Security</strong>"}},
		{name: "italic", input: "an *important* note", contains: []string{"<em>important</em>"}},
		{name: "inline code", input: "call `Close()` always", contains: []string{"<code>Close()</code>"}},
		{name: "fenced code", input: "```\nx := 1\n```", contains: []string{"<pre><code>x := 1"}},
		{name: "numbered list", input: "1. first\n2. second", contains: []string{"<ol>", "<li>first</li>"}},
		{name: "hard wraps", input: "line one\nline two", contains: []string{"line one<br"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := FormatMessage(tc.input)
			require.NoError(t, err)
			for _, want := range tc.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestFormatMessage_EscapesRawHTML(t *testing.T) {
	out, err := FormatMessage("<script>alert(1)</script>")
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")

	empty, err := FormatMessage("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPlainText(t *testing.T) {
	testCases := []struct {
		name     string
		html     string
		max      int
		expected string
	}{
		{name: "strips tags", html: "<p>Hello <strong>world</strong></p>", expected: "Hello world"},
		{name: "block boundaries become spaces", html: "<ol><li>one</li><li>two</li></ol>", expected: "one two"},
		{name: "drops scripts", html: "<p>a</p><script>evil()</script><p>b</p>", expected: "a b"},
		{name: "unescapes entities", html: "<p>x &lt; y &amp;&amp; z</p>", expected: "x < y && z"},
		{name: "truncates", html: "<p>abcdefghij</p>", max: 4, expected: "abcd…"},
		{name: "no truncation when short", html: "<p>abc</p>", max: 10, expected: "abc"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, PlainText(tc.html, tc.max))
		})
	}
}

func TestSummary(t *testing.T) {
	summary := Summary("Based on **my analysis**, fix:\n\n1. input validation", 0)
	assert.Equal(t, "Based on my analysis, fix: input validation", summary)
	assert.False(t, strings.Contains(summary, "<"))
}
