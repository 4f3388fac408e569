package cmds

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// firstBlockText returns the plain text of the first markdown block of md.
// Code blocks are shown as a placeholder naming their language.
func firstBlockText(md string) string {
	source := []byte(md)
	document := goldmark.DefaultParser().Parse(text.NewReader(source))

	for n := document.FirstChild(); n != nil; n = n.NextSibling() {
		var ret string
		switch v := n.(type) {
		case *ast.FencedCodeBlock:
			lang := string(v.Language(source))
			if lang == "" {
				lang = "code"
			}
			ret = "[" + lang + " block]"
		case *ast.CodeBlock:
			ret = "[code block]"
		case *ast.ThematicBreak, *ast.HTMLBlock:
			continue
		default:
			ret = string(n.Text(source))
		}
		ret = strings.Join(strings.Fields(ret), " ")
		if ret != "" {
			return ret
		}
	}
	return ""
}
