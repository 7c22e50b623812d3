package extract

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// MarkdownToText renders markdown as plain text: markup is dropped,
// code blocks and table cells are kept, blocks are separated by blank lines.
func MarkdownToText(markdown string) string {
	parser := goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough),
	).Parser()

	source := []byte(markdown)
	r := &textRenderer{source: source}
	if err := ast.Walk(parser.Parse(text.NewReader(source)), r.walk); err != nil {
		return markdown
	}

	return strings.TrimSpace(blankLines.ReplaceAllString(r.out.String(), "\n\n"))
}

type textRenderer struct {
	source []byte
	out    strings.Builder
}

func (r *textRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindText:
		if entering {
			t := n.(*ast.Text)
			r.out.Write(t.Segment.Value(r.source))
			if t.HardLineBreak() {
				r.out.WriteByte('\n')
			} else if t.SoftLineBreak() {
				r.out.WriteByte(' ')
			}
		}
	case ast.KindString:
		if entering {
			r.out.Write(n.(*ast.String).Value)
		}
	case ast.KindCodeBlock, ast.KindFencedCodeBlock:
		if entering {
			r.writeLines(n.Lines())
			r.out.WriteString("\n")
		}
		return ast.WalkSkipChildren, nil
	case ast.KindHTMLBlock, ast.KindRawHTML:
		return ast.WalkSkipChildren, nil
	case extast.KindTableCell:
		if !entering {
			r.out.WriteString("\t")
		}
	case extast.KindTableRow, extast.KindTableHeader:
		if !entering {
			r.out.WriteString("\n")
		}
	case ast.KindHeading, ast.KindParagraph, ast.KindListItem, ast.KindBlockquote, ast.KindThematicBreak:
		if !entering {
			r.out.WriteString("\n\n")
		}
	}
	return ast.WalkContinue, nil
}

func (r *textRenderer) writeLines(lines *text.Segments) {
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		r.out.Write(line.Value(r.source))
	}
}
