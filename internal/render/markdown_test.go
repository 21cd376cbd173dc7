// ABOUTME: Tests for markdown rendering and sanitization
// ABOUTME: Verifies formatting survives while scripts, handlers and unsafe URLs do not

package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTML_BasicFormatting(t *testing.T) {
	r := NewRenderer()

	out, err := r.HTML("I was **flying** over a _lake_ ~~or sea~~\n\n- gulls\n- wind")
	require.NoError(t, err)
	assert.Contains(t, out, "<strong>flying</strong>")
	assert.Contains(t, out, "<em>lake</em>")
	assert.Contains(t, out, "<del>or sea</del>")
	assert.Contains(t, out, "<li>gulls</li>")
}

func TestHTML_StripsScriptsAndHandlers(t *testing.T) {
	r := NewRenderer()

	out, err := r.HTML("hello <script>alert(1)</script> <img src=\"https://x/y.png\" onerror=\"steal()\">")
	require.NoError(t, err)
	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "onerror")
}

func TestHTML_LinksAreSafe(t *testing.T) {
	r := NewRenderer()

	out, err := r.HTML("[ok](https://example.com) [bad](javascript:alert(1))")
	require.NoError(t, err)
	assert.Contains(t, out, `href="https://example.com"`)
	assert.Contains(t, out, "noreferrer")
	assert.NotContains(t, out, "javascript:")
}

func TestHTML_Empty(t *testing.T) {
	out, err := NewRenderer().HTML("   \n")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestExcerpt(t *testing.T) {
	r := NewRenderer()

	assert.Equal(t, "A short dream", r.Excerpt("A *short* dream", 100))
	assert.Equal(t, "abcde…", r.Excerpt("abcdefghij", 5))
	assert.Equal(t, "", r.Excerpt("", 10))
}
