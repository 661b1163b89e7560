package doctree

import (
	"strings"

	"github.com/dgallion1/pageview/internal/box"
)

// NodeKind identifies what a DocNode represents.
type NodeKind int

const (
	KindSection      NodeKind = iota // Runs hold the heading
	KindParagraph                    // wrapped text
	KindListItem                     // wrapped text with a bullet
	KindPreformatted                 // text broken only at newlines
)

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections and blocks
}

// DocNode is a recursive section or block in the document tree.
type DocNode struct {
	Kind     NodeKind
	Level    int        // Heading level for sections
	Anchor   string     // Named destination for the whole node
	Runs     []Run      // Inline content (heading text for sections)
	Page     int        // Source page (0 if N/A)
	Children []*DocNode // Subsections and blocks
}

// Run is a span of inline text sharing link and weight.
type Run struct {
	Text   string
	Link   box.Link
	Anchor string
	Bold   bool
}

// Text concatenates the text of all runs.
func (n *DocNode) Text() string {
	var sb strings.Builder
	for _, r := range n.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// PlainRuns wraps text in a single unstyled run, or none if text is empty.
func PlainRuns(text string) []Run {
	if text == "" {
		return nil
	}
	return []Run{{Text: text}}
}

// FlattenText joins the text of every node for hashing and previews.
func FlattenText(tree *DocTree) string {
	var sb strings.Builder
	var walk func(nodes []*DocNode)
	walk = func(nodes []*DocNode) {
		for _, n := range nodes {
			if t := n.Text(); t != "" {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(t)
			}
			walk(n.Children)
		}
	}
	walk(tree.Children)
	return sb.String()
}
