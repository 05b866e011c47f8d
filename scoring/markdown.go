package scoring

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Structure holds the markdown features of a message body that feed the
// content dimension.
type Structure struct {
	CodeBlocks int
	Headings   int
}

var markdown = goldmark.New()

// AnalyzeStructure parses the content as markdown and counts the
// structural markers the scorer cares about.
func AnalyzeStructure(content string) Structure {
	if content == "" {
		return Structure{}
	}

	src := []byte(content)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var s Structure
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			s.CodeBlocks++
		case *ast.Heading:
			s.Headings++
		}
		return ast.WalkContinue, nil
	})
	return s
}
