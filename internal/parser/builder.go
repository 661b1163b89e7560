package parser

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/dgallion1/pageview/internal/box"
	"github.com/dgallion1/pageview/internal/doctree"
)

// treeBuilder nests blocks under the most recent heading of lower level.
type treeBuilder struct {
	root  *doctree.DocNode
	stack []stackEntry
	// pending holds an anchor seen without content; it lands on the next node.
	pending string
}

type stackEntry struct {
	node  *doctree.DocNode
	level int
}

func newTreeBuilder() *treeBuilder {
	root := &doctree.DocNode{Kind: doctree.KindSection}
	return &treeBuilder{
		root:  root,
		stack: []stackEntry{{node: root, level: 0}},
	}
}

func (b *treeBuilder) top() *doctree.DocNode {
	return b.stack[len(b.stack)-1].node
}

// anchor records a destination that has no content of its own.
func (b *treeBuilder) anchor(name string) {
	if name == "" {
		return
	}
	if b.pending != "" {
		b.flushPending()
	}
	b.pending = name
}

func (b *treeBuilder) flushPending() {
	if b.pending == "" {
		return
	}
	top := b.top()
	top.Children = append(top.Children, &doctree.DocNode{Kind: doctree.KindParagraph, Anchor: b.pending})
	b.pending = ""
}

func (b *treeBuilder) takeAnchor(anchor string) string {
	if b.pending == "" {
		return anchor
	}
	if anchor == "" {
		anchor = b.pending
		b.pending = ""
		return anchor
	}
	b.flushPending()
	return anchor
}

func (b *treeBuilder) heading(level int, runs []doctree.Run, anchor string) {
	if len(runs) == 0 && anchor == "" {
		return
	}
	anchor = b.takeAnchor(anchor)
	node := &doctree.DocNode{Kind: doctree.KindSection, Level: level, Anchor: anchor, Runs: runs}

	// Pop stack until we find a parent with lower level.
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.top()
	parent.Children = append(parent.Children, node)
	b.stack = append(b.stack, stackEntry{node: node, level: level})
}

func (b *treeBuilder) block(kind doctree.NodeKind, runs []doctree.Run, anchor string) {
	if len(runs) == 0 && anchor == "" {
		return
	}
	anchor = b.takeAnchor(anchor)
	top := b.top()
	top.Children = append(top.Children, &doctree.DocNode{Kind: kind, Anchor: anchor, Runs: runs})
}

func (b *treeBuilder) tree(title string) *doctree.DocTree {
	b.flushPending()
	return &doctree.DocTree{Title: title, Children: b.root.Children}
}

// normalizeRuns collapses whitespace across run boundaries, trims the ends
// and drops empty runs. An anchor on a dropped run moves to the next run; an
// anchor left over at the end is returned.
func normalizeRuns(runs []doctree.Run) ([]doctree.Run, string) {
	var out []doctree.Run
	prevSpace := true
	carry := ""
	for _, r := range runs {
		var sb strings.Builder
		for _, c := range r.Text {
			if unicode.IsSpace(c) {
				if !prevSpace {
					sb.WriteByte(' ')
					prevSpace = true
				}
				continue
			}
			sb.WriteRune(c)
			prevSpace = false
		}
		r.Text = sb.String()
		if r.Anchor == "" {
			r.Anchor = carry
			carry = ""
		} else if carry != "" && r.Text != "" {
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

	// Trim the trailing space left by collapsing.
	for len(out) > 0 {
		last := &out[len(out)-1]
		last.Text = strings.TrimRight(last.Text, " ")
		if last.Text != "" {
			break
		}
		if last.Anchor != "" && carry == "" {
			carry = last.Anchor
		}
		out = out[:len(out)-1]
	}
	return out, carry
}

// resolveLink maps an href to a link style. Fragment-only references and
// references back into the base document are internal; http(s) targets are
// external and resolved against base when it is known.
func resolveLink(href string, base *url.URL) box.Link {
	href = strings.TrimSpace(href)
	if href == "" {
		return box.Link{}
	}
	if strings.HasPrefix(href, "#") {
		return internalLink(href[1:])
	}

	u, err := url.Parse(href)
	if err != nil {
		return box.Link{}
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return box.Link{}
	}
	if base == nil {
		return box.Link{Kind: box.LinkExternal, Target: strings.TrimPrefix(href, "/")}
	}

	abs := base.ResolveReference(u)
	if abs.Fragment != "" && sameDocument(abs, base) {
		return internalLink(abs.Fragment)
	}
	return box.Link{Kind: box.LinkExternal, Target: abs.String()}
}

func internalLink(fragment string) box.Link {
	if unescaped, err := url.PathUnescape(fragment); err == nil {
		fragment = unescaped
	}
	if fragment == "" {
		return box.Link{}
	}
	return box.Link{Kind: box.LinkInternal, Target: fragment}
}

func sameDocument(a, b *url.URL) bool {
	ac, bc := *a, *b
	ac.Fragment, bc.Fragment = "", ""
	ac.RawFragment, bc.RawFragment = "", ""
	return ac.String() == bc.String()
}
