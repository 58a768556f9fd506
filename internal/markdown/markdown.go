// Package markdown extracts verse from Markdown documents.
package markdown

import (
	"bytes"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// PoemText returns the paragraph text of md with line breaks kept and
// stanzas separated by a blank line. Headings, code, HTML and tables are
// dropped; inline emphasis is reduced to its text.
func PoemText(md []byte) string {
	p := parser.NewWithExtensions(parser.CommonExtensions &^ parser.Tables)
	doc := p.Parse(normalizeNewlines(md))

	var stanzas []string
	var cur bytes.Buffer
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		switch n := node.(type) {
		case *ast.Heading, *ast.CodeBlock, *ast.HTMLBlock, *ast.HTMLSpan, *ast.Table, *ast.HorizontalRule:
			return ast.SkipChildren
		case *ast.Paragraph:
			if !entering {
				if s := cleanStanza(cur.String()); s != "" {
					stanzas = append(stanzas, s)
				}
				cur.Reset()
			}
		case *ast.Text:
			cur.Write(n.Literal)
		case *ast.Code:
			cur.Write(n.Literal)
		case *ast.Softbreak, *ast.Hardbreak:
			cur.WriteByte('\n')
		}
		return ast.GoToNext
	})
	return strings.Join(stanzas, "\n\n")
}

func normalizeNewlines(md []byte) []byte {
	return bytes.ReplaceAll(md, []byte("\r\n"), []byte("\n"))
}

func cleanStanza(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
