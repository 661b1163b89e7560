package box

import "image/color"

// Kind discriminates layout nodes.
type Kind int

const (
	KindPage   Kind = iota // page root
	KindBlock              // paragraph, heading or list item fragment
	KindLine               // one line box inside a block
	KindInline             // inline container, e.g. a link fragment
	KindText               // text leaf
)

func (k Kind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindBlock:
		return "block"
	case KindLine:
		return "line"
	case KindInline:
		return "inline"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// IsText reports whether k is a text leaf.
func (k Kind) IsText() bool { return k == KindText }

// LinkKind tells internal (same document) links from external ones.
type LinkKind int

const (
	LinkInternal LinkKind = iota
	LinkExternal
)

func (k LinkKind) String() string {
	switch k {
	case LinkInternal:
		return "internal"
	case LinkExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Link is the link style of a node. The zero value means no link.
type Link struct {
	Kind   LinkKind
	Target string
}

// IsZero reports whether no link is set.
func (l Link) IsZero() bool { return l.Target == "" }

// Rect is a border box in page-local pixels.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Bottom returns Y + Height.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// LayoutNode is the read-only view of a positioned node.
type LayoutNode interface {
	NodeKind() Kind
	LinkStyle() Link
	AnchorStyle() string
	HitArea() Rect
	ChildNodes() []LayoutNode
}

// Style holds the computed style values the renderer and extractor need.
type Style struct {
	Link Link
	// LinkInherited marks a node that carries Link only because an ancestor
	// introduced it.
	LinkInherited bool
	Anchor        string

	FontSize  float64
	Bold      bool
	Color     color.RGBA
	Underline bool
	// Marker is drawn left of a block, e.g. a list bullet.
	Marker string
}

// Box is a positioned node produced by the layout engine.
type Box struct {
	Kind     Kind
	Rect     Rect
	Style    Style
	Text     string // text leaves only
	Children []*Box
}

// LinkInheritor is implemented by nodes that can tell an inherited link from
// one they introduce.
type LinkInheritor interface {
	InheritsLink() bool
}

func (b *Box) InheritsLink() bool { return b.Style.LinkInherited }

func (b *Box) NodeKind() Kind      { return b.Kind }
func (b *Box) LinkStyle() Link     { return b.Style.Link }
func (b *Box) AnchorStyle() string { return b.Style.Anchor }
func (b *Box) HitArea() Rect       { return b.Rect }

func (b *Box) ChildNodes() []LayoutNode {
	if len(b.Children) == 0 {
		return nil
	}
	nodes := make([]LayoutNode, len(b.Children))
	for i, c := range b.Children {
		if c == nil {
			// Leave the interface nil so walkers can detect the hole.
			continue
		}
		nodes[i] = c
	}
	return nodes
}

// Page is one paginated unit.
type Page struct {
	Index       int
	OuterWidth  float64
	OuterHeight float64
	Root        *Box
}

// Document is the laid-out result for a whole source document.
type Document struct {
	Title      string
	Background color.RGBA
	Pages      []*Page
}
