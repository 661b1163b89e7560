// Package hitregion collects clickable link regions and named anchor regions
// from a laid-out page.
package hitregion

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dgallion1/pageview/internal/box"
)

// LinkRecord is a clickable region and the href it points to.
type LinkRecord struct {
	Href   string  `json:"href"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AnchorRecord is a named position inside the page.
type AnchorRecord struct {
	Name   string  `json:"name"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TraversalError reports a node that violates the layout node contract.
type TraversalError struct {
	Path   []int // child indexes from the root
	Reason string
}

func (e *TraversalError) Error() string {
	parts := make([]string, len(e.Path))
	for i, p := range e.Path {
		parts[i] = strconv.Itoa(p)
	}
	return fmt.Sprintf("layout traversal at [%s]: %s", strings.Join(parts, "."), e.Reason)
}

// Href builds the overlay href for a link: "#target" for internal links and
// "/target" for external ones, which the browser view fetches through itself.
func Href(l box.Link) (string, error) {
	switch l.Kind {
	case box.LinkInternal:
		return "#" + l.Target, nil
	case box.LinkExternal:
		return "/" + l.Target, nil
	default:
		return "", fmt.Errorf("unknown link kind %d", l.Kind)
	}
}

// Extract walks root in pre-order and returns link and anchor records in
// document order.
//
// Links are inherited by text leaves, so only non-text nodes emit them.
// Nodes that report an inherited link are skipped as well. Anchors are
// emitted on every node kind.
func Extract(root box.LayoutNode) ([]LinkRecord, []AnchorRecord, error) {
	links := []LinkRecord{}
	anchors := []AnchorRecord{}
	if err := walk(root, nil, &links, &anchors); err != nil {
		return nil, nil, err
	}
	return links, anchors, nil
}

func walk(n box.LayoutNode, path []int, links *[]LinkRecord, anchors *[]AnchorRecord) error {
	if n == nil {
		return &TraversalError{Path: copyPath(path), Reason: "nil node"}
	}

	link := n.LinkStyle()
	emitLink := !link.IsZero() && !n.NodeKind().IsText() && !inherits(n)
	anchor := n.AnchorStyle()

	if emitLink || anchor != "" {
		area := n.HitArea()
		if reason := checkArea(area); reason != "" {
			return &TraversalError{Path: copyPath(path), Reason: reason}
		}
		if emitLink {
			href, err := Href(link)
			if err != nil {
				return &TraversalError{Path: copyPath(path), Reason: err.Error()}
			}
			*links = append(*links, LinkRecord{
				Href: href, X: area.X, Y: area.Y, Width: area.Width, Height: area.Height,
			})
		}
		if anchor != "" {
			*anchors = append(*anchors, AnchorRecord{
				Name: anchor, X: area.X, Y: area.Y, Width: area.Width, Height: area.Height,
			})
		}
	}

	for i, child := range n.ChildNodes() {
		if err := walk(child, append(path, i), links, anchors); err != nil {
			return err
		}
	}
	return nil
}

func inherits(n box.LayoutNode) bool {
	i, ok := n.(box.LinkInheritor)
	return ok && i.InheritsLink()
}

func checkArea(r box.Rect) string {
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "non-finite hit area"
		}
	}
	if r.Width < 0 || r.Height < 0 {
		return "negative hit area size"
	}
	return ""
}

func copyPath(path []int) []int {
	out := make([]int, len(path))
	copy(out, path)
	return out
}
