package parser

import (
	"testing"

	"github.com/dgallion1/pageview/internal/box"
	"github.com/dgallion1/pageview/internal/doctree"
	"github.com/google/go-cmp/cmp"
)

func TestNormalizeRuns(t *testing.T) {
	runs := []doctree.Run{
		{Text: "  Hello\n  "},
		{Anchor: "a"},
		{Text: "  world ", Bold: true},
		{Text: "   "},
		{Anchor: "tail"},
	}
	got, carry := normalizeRuns(runs)
	want := []doctree.Run{
		{Text: "Hello "},
		{Text: "world", Bold: true, Anchor: "a"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
	if carry != "tail" {
		t.Errorf("expected carried anchor %q, got %q", "tail", carry)
	}
}

func TestResolveLink(t *testing.T) {
	tests := []struct {
		href string
		want box.Link
	}{
		{"#intro", box.Link{Kind: box.LinkInternal, Target: "intro"}},
		{"#", box.Link{}},
		{"", box.Link{}},
		{"foo/bar", box.Link{Kind: box.LinkExternal, Target: "foo/bar"}},
		{"/foo/bar", box.Link{Kind: box.LinkExternal, Target: "foo/bar"}},
		{"http://x.test/p", box.Link{Kind: box.LinkExternal, Target: "http://x.test/p"}},
		{"javascript:void(0)", box.Link{}},
	}
	for _, tt := range tests {
		if got := resolveLink(tt.href, nil); got != tt.want {
			t.Errorf("resolveLink(%q): expected %+v, got %+v", tt.href, tt.want, got)
		}
	}
}

func TestTreeBuilder_PendingAnchorFlushedAtEnd(t *testing.T) {
	b := newTreeBuilder()
	b.block(doctree.KindParagraph, doctree.PlainRuns("x"), "")
	b.anchor("end")
	tree := b.tree("t")
	if len(tree.Children) != 2 || tree.Children[1].Anchor != "end" {
		t.Fatalf("expected trailing anchor block, got %+v", tree.Children)
	}
}

func TestForContentType(t *testing.T) {
	tests := []struct {
		contentType string
		name        string
		want        string
	}{
		{"text/html; charset=utf-8", "", "*parser.HTMLParser"},
		{"text/markdown", "x", "*parser.MarkdownParser"},
		{"text/plain", "notes.md", "*parser.MarkdownParser"},
		{"text/plain", "notes", "*parser.TextParser"},
		{"application/pdf", "", "*parser.PDFParser"},
		{"", "/path/report.csv", "*parser.CSVParser"},
		{"", "/no-extension", "*parser.HTMLParser"},
	}
	for _, tt := range tests {
		p, err := ForContentType(tt.contentType, tt.name, Options{})
		if err != nil {
			t.Errorf("%q/%q: unexpected error: %v", tt.contentType, tt.name, err)
			continue
		}
		if got := typeName(p); got != tt.want {
			t.Errorf("%q/%q: expected %s, got %s", tt.contentType, tt.name, tt.want, got)
		}
	}

	if _, err := ForContentType("image/png", "x.png", Options{}); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestSlugify(t *testing.T) {
	if got := slugify("  Getting Started: Part 1 "); got != "getting-started-part-1" {
		t.Errorf("unexpected slug %q", got)
	}
}

func typeName(p Parser) string {
	switch p.(type) {
	case *HTMLParser:
		return "*parser.HTMLParser"
	case *MarkdownParser:
		return "*parser.MarkdownParser"
	case *TextParser:
		return "*parser.TextParser"
	case *PDFParser:
		return "*parser.PDFParser"
	case *CSVParser:
		return "*parser.CSVParser"
	case *DOCXParser:
		return "*parser.DOCXParser"
	}
	return "unknown"
}
