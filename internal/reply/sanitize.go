// ABOUTME: Completion output sanitation: markdown stripped to plain text.
// ABOUTME: Collapses excess blank lines and truncates overlong replies with an ellipsis.

package reply

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Sanitize strips markdown emphasis and code markup from the raw completion,
// collapses runs of blank lines and truncates to maxLen runes, appending an
// ellipsis when truncation occurs.
func Sanitize(raw string, maxLen int) string {
	src := []byte(strings.TrimSpace(raw))

	md := goldmark.New()
	doc := md.Parser().Parse(gtext.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.(type) {
			case *ast.Paragraph, *ast.Heading, *ast.ListItem:
				b.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}

		switch v := n.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteString("\n")
			}
		case *ast.FencedCodeBlock:
			writeLines(&b, v.Lines(), src)
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			writeLines(&b, v.Lines(), src)
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			b.Write(v.URL(src))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	out := blankLines.ReplaceAllString(b.String(), "\n\n")
	out = strings.TrimSpace(out)

	return truncate(out, maxLen)
}

// writeLines copies raw source line segments into the builder.
func writeLines(b *strings.Builder, lines *gtext.Segments, src []byte) {
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
}

// truncate cuts s to at most maxLen runes, marking the cut with an ellipsis.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return strings.TrimSpace(string(runes[:maxLen-1])) + "…"
}
