package hitregion

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/dgallion1/pageview/internal/box"
	"github.com/google/go-cmp/cmp"
)

func rect(x, y, w, h float64) box.Rect {
	return box.Rect{X: x, Y: y, Width: w, Height: h}
}

func TestExtract_LinkedContainerWithTextChildren(t *testing.T) {
	link := box.Link{Kind: box.LinkInternal, Target: "section2"}
	root := &box.Box{
		Kind:  box.KindInline,
		Rect:  rect(10, 20, 200, 16),
		Style: box.Style{Link: link},
		Children: []*box.Box{
			{Kind: box.KindText, Rect: rect(10, 20, 90, 16), Text: "first", Style: box.Style{Link: link}},
			{Kind: box.KindText, Rect: rect(100, 20, 110, 16), Text: "second", Style: box.Style{Link: link, Anchor: "mark1"}},
		},
	}

	links, anchors, err := Extract(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantLinks := []LinkRecord{{Href: "#section2", X: 10, Y: 20, Width: 200, Height: 16}}
	wantAnchors := []AnchorRecord{{Name: "mark1", X: 100, Y: 20, Width: 110, Height: 16}}
	if diff := cmp.Diff(wantLinks, links); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantAnchors, anchors); diff != "" {
		t.Errorf("anchors mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_ExternalHref(t *testing.T) {
	root := &box.Box{
		Kind:  box.KindBlock,
		Rect:  rect(0, 0, 50, 10),
		Style: box.Style{Link: box.Link{Kind: box.LinkExternal, Target: "foo/bar"}},
	}
	links, _, err := Extract(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if links[0].Href != "/foo/bar" {
		t.Errorf("expected href %q, got %q", "/foo/bar", links[0].Href)
	}
}

func TestExtract_PreOrder(t *testing.T) {
	// page
	//   block (anchor a)
	//     line
	//       inline (link x, anchor b)
	//         text
	//   block (anchor c)
	//     line
	//       inline (link y)
	//         text (anchor d)
	x := box.Link{Kind: box.LinkExternal, Target: "x"}
	y := box.Link{Kind: box.LinkInternal, Target: "y"}
	root := &box.Box{Kind: box.KindPage, Rect: rect(0, 0, 100, 100), Children: []*box.Box{
		{Kind: box.KindBlock, Rect: rect(1, 1, 1, 1), Style: box.Style{Anchor: "a"}, Children: []*box.Box{
			{Kind: box.KindLine, Rect: rect(2, 2, 2, 2), Children: []*box.Box{
				{Kind: box.KindInline, Rect: rect(3, 3, 3, 3), Style: box.Style{Link: x, Anchor: "b"}, Children: []*box.Box{
					{Kind: box.KindText, Rect: rect(4, 4, 4, 4), Style: box.Style{Link: x}},
				}},
			}},
		}},
		{Kind: box.KindBlock, Rect: rect(5, 5, 5, 5), Style: box.Style{Anchor: "c"}, Children: []*box.Box{
			{Kind: box.KindLine, Rect: rect(6, 6, 6, 6), Children: []*box.Box{
				{Kind: box.KindInline, Rect: rect(7, 7, 7, 7), Style: box.Style{Link: y}, Children: []*box.Box{
					{Kind: box.KindText, Rect: rect(8, 8, 8, 8), Style: box.Style{Link: y, Anchor: "d"}},
				}},
			}},
		}},
	}}

	links, anchors, err := Extract(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantLinks := []LinkRecord{
		{Href: "/x", X: 3, Y: 3, Width: 3, Height: 3},
		{Href: "#y", X: 7, Y: 7, Width: 7, Height: 7},
	}
	wantAnchors := []AnchorRecord{
		{Name: "a", X: 1, Y: 1, Width: 1, Height: 1},
		{Name: "b", X: 3, Y: 3, Width: 3, Height: 3},
		{Name: "c", X: 5, Y: 5, Width: 5, Height: 5},
		{Name: "d", X: 8, Y: 8, Width: 8, Height: 8},
	}
	if diff := cmp.Diff(wantLinks, links); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantAnchors, anchors); diff != "" {
		t.Errorf("anchors mismatch (-want +got):\n%s", diff)
	}

	// Idempotent on an unmodified tree.
	links2, anchors2, err := Extract(root)
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	if !cmp.Equal(links, links2) || !cmp.Equal(anchors, anchors2) {
		t.Error("expected identical output on second run")
	}
}

func TestExtract_EmptyTreeReturnsEmptySlices(t *testing.T) {
	links, anchors, err := Extract(&box.Box{Kind: box.KindPage, Rect: rect(0, 0, 10, 10)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if links == nil || anchors == nil {
		t.Fatal("expected non-nil empty slices")
	}
	if len(links) != 0 || len(anchors) != 0 {
		t.Errorf("expected no records, got %d links and %d anchors", len(links), len(anchors))
	}
}

func TestExtract_NodeWithLinkAndAnchorEmitsBoth(t *testing.T) {
	root := &box.Box{
		Kind:  box.KindInline,
		Rect:  rect(1, 2, 3, 4),
		Style: box.Style{Link: box.Link{Kind: box.LinkInternal, Target: "t"}, Anchor: "here"},
	}
	links, anchors, err := Extract(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 1 || len(anchors) != 1 {
		t.Fatalf("expected 1 link and 1 anchor, got %d and %d", len(links), len(anchors))
	}
}

func TestExtract_TextLeafNeverEmitsLink(t *testing.T) {
	root := &box.Box{
		Kind:  box.KindText,
		Rect:  rect(0, 0, 5, 5),
		Style: box.Style{Link: box.Link{Kind: box.LinkExternal, Target: "a"}},
	}
	links, anchors, err := Extract(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("expected no links from a text leaf, got %d", len(links))
	}
	if len(anchors) != 0 {
		t.Errorf("expected no anchors, got %d", len(anchors))
	}
}

func TestExtract_NilChild(t *testing.T) {
	root := &box.Box{Kind: box.KindPage, Children: []*box.Box{
		{Kind: box.KindBlock},
		{Kind: box.KindBlock, Children: []*box.Box{nil}},
	}}
	_, _, err := Extract(root)
	var te *TraversalError
	if !errors.As(err, &te) {
		t.Fatalf("expected TraversalError, got %v", err)
	}
	if diff := cmp.Diff([]int{1, 0}, te.Path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(err.Error(), "[1.0]") {
		t.Errorf("expected path in message, got %q", err.Error())
	}
}

func TestExtract_BadGeometry(t *testing.T) {
	tests := []struct {
		name string
		area box.Rect
	}{
		{"nan", rect(math.NaN(), 0, 1, 1)},
		{"inf", rect(0, math.Inf(1), 1, 1)},
		{"negative", rect(0, 0, -1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := &box.Box{Kind: box.KindBlock, Rect: tt.area, Style: box.Style{Anchor: "a"}}
			_, _, err := Extract(root)
			var te *TraversalError
			if !errors.As(err, &te) {
				t.Fatalf("expected TraversalError, got %v", err)
			}
		})
	}
}

func TestExtract_UnknownLinkKind(t *testing.T) {
	root := &box.Box{Kind: box.KindBlock, Style: box.Style{Link: box.Link{Kind: box.LinkKind(9), Target: "x"}}}
	_, _, err := Extract(root)
	var te *TraversalError
	if !errors.As(err, &te) {
		t.Fatalf("expected TraversalError, got %v", err)
	}
}

func TestExtract_NilRoot(t *testing.T) {
	if _, _, err := Extract(nil); err == nil {
		t.Fatal("expected error for nil root")
	}
}

func TestExtract_InheritingContainerDoesNotEmit(t *testing.T) {
	link := box.Link{Kind: box.LinkExternal, Target: "example.com"}
	root := &box.Box{
		Kind:  box.KindInline,
		Rect:  rect(0, 0, 50, 10),
		Style: box.Style{Link: link},
		Children: []*box.Box{
			{Kind: box.KindInline, Rect: rect(0, 0, 20, 10), Style: box.Style{Link: link, LinkInherited: true}},
		},
	}
	links, _, err := Extract(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []LinkRecord{{Href: "/example.com", X: 0, Y: 0, Width: 50, Height: 10}}
	if diff := cmp.Diff(want, links); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
}

// plainNode cannot report inheritance, so the node kind alone decides.
type plainNode struct {
	kind box.Kind
	link box.Link
}

func (n plainNode) NodeKind() box.Kind           { return n.kind }
func (n plainNode) LinkStyle() box.Link          { return n.link }
func (n plainNode) AnchorStyle() string          { return "" }
func (n plainNode) HitArea() box.Rect            { return rect(1, 2, 3, 4) }
func (n plainNode) ChildNodes() []box.LayoutNode { return nil }

func TestExtract_NodeWithoutInheritanceFallsBackToKind(t *testing.T) {
	link := box.Link{Kind: box.LinkInternal, Target: "x"}

	links, _, err := Extract(plainNode{kind: box.KindInline, link: link})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 1 {
		t.Errorf("expected the inline node to emit, got %d links", len(links))
	}

	links, _, _ = Extract(plainNode{kind: box.KindText, link: link})
	if len(links) != 0 {
		t.Errorf("expected the text node to stay silent, got %d links", len(links))
	}
}
