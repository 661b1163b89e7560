package doctree

import "testing"

func TestFlattenText_DepthFirst(t *testing.T) {
	tree := &DocTree{Children: []*DocNode{
		{Kind: KindSection, Runs: PlainRuns("Intro"), Children: []*DocNode{
			{Kind: KindParagraph, Runs: []Run{{Text: "Hello "}, {Text: "world", Bold: true}}},
		}},
		{Kind: KindParagraph, Runs: PlainRuns("Tail")},
	}}
	want := "Intro\nHello world\nTail"
	if got := FlattenText(tree); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestPlainRuns_Empty(t *testing.T) {
	if runs := PlainRuns(""); runs != nil {
		t.Errorf("expected nil runs, got %v", runs)
	}
}
