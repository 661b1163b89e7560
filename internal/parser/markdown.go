package parser

import (
	"bytes"
	"io"
	"net/url"
	"strings"

	"github.com/dgallion1/pageview/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmparser "github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark.
type MarkdownParser struct {
	BaseURL *url.URL
}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithParserOptions(gmparser.WithAutoHeadingID()))
	doc := md.Parser().Parse(text.NewReader(src))

	w := &markdownWalker{b: newTreeBuilder(), src: src, base: p.BaseURL}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		w.block(n, doctree.KindParagraph)
	}
	return w.b.tree(TitleFromFilename(filename)), nil
}

type markdownWalker struct {
	b    *treeBuilder
	src  []byte
	base *url.URL
}

// block adds one block-level AST node. kind is used for plain paragraphs so
// that list item paragraphs keep their bullet.
func (w *markdownWalker) block(n ast.Node, kind doctree.NodeKind) {
	switch node := n.(type) {
	case *ast.Heading:
		runs, carry := normalizeRuns(w.inline(node, runContext{}, nil))
		w.b.heading(node.Level, runs, headingID(node))
		w.b.anchor(carry)

	case *ast.Paragraph, *ast.TextBlock:
		runs, carry := normalizeRuns(w.inline(node, runContext{}, nil))
		w.b.block(kind, runs, "")
		w.b.anchor(carry)

	case *ast.List:
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			first := true
			for c := item.FirstChild(); c != nil; c = c.NextSibling() {
				k := doctree.KindParagraph
				if first {
					k = doctree.KindListItem
				}
				w.block(c, k)
				first = false
			}
		}

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		code := strings.TrimRight(string(blockLines(n, w.src)), "\n")
		w.b.block(doctree.KindPreformatted, doctree.PlainRuns(code), "")

	case *ast.Blockquote:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			w.block(c, doctree.KindParagraph)
		}

	case *ast.ThematicBreak, *ast.HTMLBlock:
		// Nothing to lay out.

	default:
		// Collect text content from anything else.
		if t := extractText(n, w.src); t != "" {
			w.b.block(kind, doctree.PlainRuns(t), "")
		}
	}
}

// inline appends the runs of n's inline children.
func (w *markdownWalker) inline(n ast.Node, ctx runContext, runs []doctree.Run) []doctree.Run {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			s := string(v.Segment.Value(w.src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				s += " "
			}
			runs = append(runs, doctree.Run{Text: s, Link: ctx.link, Bold: ctx.bold})
		case *ast.String:
			runs = append(runs, doctree.Run{Text: string(v.Value), Link: ctx.link, Bold: ctx.bold})
		case *ast.Emphasis:
			inner := ctx
			if v.Level >= 2 {
				inner.bold = true
			}
			runs = w.inline(v, inner, runs)
		case *ast.Link:
			inner := ctx
			inner.link = resolveLink(string(v.Destination), w.base)
			runs = w.inline(v, inner, runs)
		case *ast.AutoLink:
			inner := ctx
			if v.AutoLinkType == ast.AutoLinkURL {
				inner.link = resolveLink(string(v.URL(w.src)), w.base)
			}
			runs = append(runs, doctree.Run{Text: string(v.Label(w.src)), Link: inner.link, Bold: inner.bold})
		case *ast.RawHTML:
			// Inline HTML tags carry no text of their own.
		default:
			runs = w.inline(c, ctx, runs)
		}
	}
	return runs
}

func headingID(h *ast.Heading) string {
	v, ok := h.AttributeString("id")
	if !ok {
		return ""
	}
	switch id := v.(type) {
	case []byte:
		return string(id)
	case string:
		return id
	}
	return ""
}

func blockLines(n ast.Node, src []byte) []byte {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return buf.Bytes()
}

// extractText gets the text content of a goldmark AST node.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock {
		buf.Write(blockLines(n, src))
	}
	// Also handle inline children.
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			// Recurse for nested inlines.
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
