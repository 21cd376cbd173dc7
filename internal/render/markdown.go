// ABOUTME: Renders dream journal markdown to sanitized HTML for API responses
// ABOUTME: goldmark converts, bluemonday strips anything unsafe before it leaves the gateway

package render

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Renderer converts markdown to safe HTML. Safe for concurrent use.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewRenderer creates a Renderer with strikethrough, autolinks and a strict
// allowlist: basic formatting, lists, quotes, code, https links and images.
func NewRenderer() *Renderer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "hr", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
		"h1", "h2", "h3", "h4", "h5", "h6",
	)
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemeWithCustomPolicy("https", func(*url.URL) bool { return true })
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
		),
		policy: p,
	}
}

// HTML renders markdown source to sanitized HTML. Empty input yields "".
func (r *Renderer) HTML(source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}

// Excerpt returns the plain text of source truncated to at most n runes,
// with an ellipsis when shortened.
func (r *Renderer) Excerpt(source string, n int) string {
	html, err := r.HTML(source)
	if err != nil {
		html = source
	}
	text := strings.Join(strings.Fields(bluemonday.StrictPolicy().Sanitize(html)), " ")

	runes := []rune(text)
	if n <= 0 || len(runes) <= n {
		return text
	}
	return strings.TrimSpace(string(runes[:n])) + "…"
}
