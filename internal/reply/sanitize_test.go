// ABOUTME: Tests for completion output sanitation.
// ABOUTME: Markdown stripping, blank-line collapsing and rune-safe truncation.

package reply

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_StripsEmphasis(t *testing.T) {
	out := Sanitize("This is **bold** and *italic* text", 600)
	assert.Equal(t, "This is bold and italic text", out)
}

func TestSanitize_StripsCodeMarkup(t *testing.T) {
	out := Sanitize("Use `haan` to agree", 600)
	assert.Equal(t, "Use haan to agree", out)

	out = Sanitize("look:\n```\nsome code\n```\ndone", 600)
	assert.Contains(t, out, "some code")
	assert.NotContains(t, out, "```")
}

func TestSanitize_CollapsesBlankLines(t *testing.T) {
	out := Sanitize("first\n\n\n\n\nsecond", 600)
	assert.NotContains(t, out, "\n\n\n")
	assert.Contains(t, out, "first")
	assert.Contains(t, out, "second")
}

func TestSanitize_TruncatesWithEllipsis(t *testing.T) {
	long := strings.Repeat("a", 700)
	out := Sanitize(long, 600)

	assert.LessOrEqual(t, len([]rune(out)), 600)
	assert.True(t, strings.HasSuffix(out, "…"))
}

func TestSanitize_TruncationIsRuneSafe(t *testing.T) {
	long := strings.Repeat("न", 50)
	out := Sanitize(long, 10)

	runes := []rune(out)
	assert.LessOrEqual(t, len(runes), 10)
	assert.Equal(t, '…', runes[len(runes)-1])
}

func TestSanitize_ShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "hello", Sanitize("hello", 600))
}

func TestSanitize_TrimsWhitespace(t *testing.T) {
	assert.Equal(t, "hello", Sanitize("  \n hello \n\n ", 600))
}
