package chunk

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New()

// ExtractDocTitle returns the text of the first level-1 heading in a
// markdown document, or "" when there is none. The chat frontend shows it
// alongside citations.
func ExtractDocTitle(content []byte) string {
	if len(content) == 0 {
		return ""
	}

	doc := markdownParser.Parser().Parse(gmtext.NewReader(content))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if heading, ok := n.(*ast.Heading); ok && heading.Level == 1 {
			title = headingText(heading, content)
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

// headingText collects the plain text of a heading's inline children.
func headingText(n ast.Node, content []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
