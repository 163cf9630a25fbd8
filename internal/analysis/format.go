package analysis

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// FormatMessage renders a model response as HTML. Raw HTML in the input is
// not passed through.
func FormatMessage(text string) (string, error) {
	if text == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// FormatMessageSafe is FormatMessage with the escaped input as fallback.
func FormatMessageSafe(text string) string {
	formatted, err := FormatMessage(text)
	if err != nil {
		return html.EscapeString(text)
	}
	return formatted
}

// PlainText extracts the visible text of an HTML fragment, collapsing
// whitespace and cutting it to at most maxRunes runes (0 means no limit).
func PlainText(fragment string, maxRunes int) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skip := 0

loop:
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			break loop
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "li", "pre", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				b.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "li", "pre", "td", "th":
				b.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}

	text := strings.Join(strings.Fields(b.String()), " ")
	if maxRunes > 0 {
		runes := []rune(text)
		if len(runes) > maxRunes {
			return strings.TrimSpace(string(runes[:maxRunes])) + "…"
		}
	}
	return text
}

// Summary renders text as markdown and returns its plain preview.
func Summary(text string, maxRunes int) string {
	return PlainText(FormatMessageSafe(text), maxRunes)
}
