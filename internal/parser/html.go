package parser

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/dgallion1/pageview/internal/box"
	"github.com/dgallion1/pageview/internal/doctree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLParser handles HTML files.
type HTMLParser struct {
	BaseURL *url.URL
}

// runContext is the inherited inline state while collecting runs.
type runContext struct {
	link box.Link
	bold bool
}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base := p.BaseURL
	if href := findBaseHref(doc); href != "" {
		if u, err := url.Parse(href); err == nil {
			if base != nil {
				u = base.ResolveReference(u)
			}
			if u.IsAbs() {
				base = u
			}
		}
	}

	title := TitleFromFilename(filename)
	// Extract title from <title> tag if present.
	if t := findTitle(doc); t != "" {
		title = t
	}

	w := &htmlWalker{b: newTreeBuilder(), base: base}
	// Find <body> or use whole document.
	if body := findBody(doc); body != nil {
		w.walk(body)
	} else {
		w.walk(doc)
	}
	w.flushLoose()

	return w.b.tree(title), nil
}

type htmlWalker struct {
	b     *treeBuilder
	base  *url.URL
	loose []doctree.Run // inline content found outside any block element
}

func (w *htmlWalker) flushLoose() {
	runs, carry := normalizeRuns(w.loose)
	w.loose = nil
	w.b.block(doctree.KindParagraph, runs, "")
	w.b.anchor(carry)
}

func (w *htmlWalker) addBlock(kind doctree.NodeKind, n *html.Node) {
	var runs []doctree.Run
	var carry string
	if kind == doctree.KindPreformatted {
		runs, carry = trimPreformatted(w.collectChildren(n, runContext{}, nil))
	} else {
		runs, carry = normalizeRuns(w.collectChildren(n, runContext{bold: n.DataAtom == atom.Th}, nil))
	}
	w.b.block(kind, runs, attr(n, "id"))
	w.b.anchor(carry)
}

func (w *htmlWalker) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.loose = append(w.loose, doctree.Run{Text: n.Data})
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c)
		}
		return
	}

	if level := headingLevel(n.DataAtom); level > 0 {
		w.flushLoose()
		runs, carry := normalizeRuns(w.collectChildren(n, runContext{}, nil))
		w.b.heading(level, runs, attr(n, "id"))
		w.b.anchor(carry)
		return // Don't recurse into heading children (already extracted text).
	}

	switch n.DataAtom {
	// Skip non-content elements.
	case atom.Script, atom.Style, atom.Nav, atom.Noscript, atom.Template, atom.Head:
		return
	case atom.P, atom.Td, atom.Th, atom.Dt, atom.Dd, atom.Caption, atom.Figcaption:
		w.flushLoose()
		w.addBlock(doctree.KindParagraph, n)
		return
	case atom.Li:
		w.flushLoose()
		w.addBlock(doctree.KindListItem, n)
		return
	case atom.Pre:
		w.flushLoose()
		w.addBlock(doctree.KindPreformatted, n)
		return
	}

	if isInline(n.DataAtom) {
		w.loose = w.collect(n, runContext{}, w.loose)
		return
	}

	// Block container: its own id anchors whatever comes next.
	w.flushLoose()
	w.b.anchor(attr(n, "id"))
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	w.flushLoose()
}

// collect appends the inline runs of n to runs.
func (w *htmlWalker) collect(n *html.Node, ctx runContext, runs []doctree.Run) []doctree.Run {
	switch n.Type {
	case html.TextNode:
		return append(runs, doctree.Run{Text: n.Data, Link: ctx.link, Bold: ctx.bold})
	case html.ElementNode:
	default:
		return runs
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Template:
		return runs
	case atom.Br:
		return append(runs, doctree.Run{Text: "\n", Link: ctx.link, Bold: ctx.bold})
	case atom.Img:
		if alt := attr(n, "alt"); alt != "" {
			return append(runs, doctree.Run{Text: alt, Link: ctx.link, Bold: ctx.bold})
		}
		return runs
	case atom.B, atom.Strong, atom.Th:
		ctx.bold = true
	case atom.A:
		if href, ok := attrOK(n, "href"); ok {
			ctx.link = resolveLink(href, w.base)
		}
		if name := attr(n, "name"); name != "" {
			runs = append(runs, doctree.Run{Anchor: name, Link: ctx.link})
		}
	}

	if id := attr(n, "id"); id != "" {
		runs = append(runs, doctree.Run{Anchor: id, Link: ctx.link})
	}
	return w.collectChildren(n, ctx, runs)
}

func (w *htmlWalker) collectChildren(n *html.Node, ctx runContext, runs []doctree.Run) []doctree.Run {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		runs = w.collect(c, ctx, runs)
	}
	return runs
}

// trimPreformatted drops the leading newline browsers ignore after <pre>
// and trailing blank lines, keeping inner whitespace intact.
func trimPreformatted(runs []doctree.Run) ([]doctree.Run, string) {
	if len(runs) > 0 {
		runs[0].Text = strings.TrimPrefix(runs[0].Text, "\n")
		last := &runs[len(runs)-1]
		last.Text = strings.TrimRight(last.Text, "\n ")
	}
	var out []doctree.Run
	carry := ""
	for _, r := range runs {
		if r.Anchor == "" {
			r.Anchor = carry
			carry = ""
		}
		if r.Text == "" {
			if r.Anchor != "" {
				carry = r.Anchor
			}
			continue
		}
		out = append(out, r)
	}
	return out, carry
}

func isInline(a atom.Atom) bool {
	switch a {
	case atom.A, atom.Abbr, atom.B, atom.Br, atom.Cite, atom.Code, atom.Em, atom.I,
		atom.Img, atom.Kbd, atom.Label, atom.Mark, atom.Q, atom.S, atom.Samp,
		atom.Small, atom.Span, atom.Strong, atom.Sub, atom.Sup, atom.Time, atom.U, atom.Var:
		return true
	}
	return false
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

func attr(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return strings.TrimSpace(v)
}

func attrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBaseHref(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Base {
		return attr(n, "href")
	}
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if h := findBaseHref(c); h != "" {
			return h
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
