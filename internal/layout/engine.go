// Package layout flows a parsed document into fixed-size pages of
// positioned boxes.
package layout

import (
	"errors"
	"fmt"
	"image/color"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/pageview/internal/box"
	"github.com/dgallion1/pageview/internal/doctree"
	"github.com/dgallion1/pageview/internal/typeface"
	"golang.org/x/image/font"
)

// Engine lays documents out. It holds no per-document state and is safe for
// concurrent use.
type Engine struct {
	Bullet string // list item marker
}

func NewEngine() *Engine {
	return &Engine{Bullet: "•"}
}

// Layout flows tree onto pages using the cascade of sheets over the
// defaults. An empty tree yields a single blank page.
func (e *Engine) Layout(tree *doctree.DocTree, sheets []Stylesheet) (*box.Document, error) {
	if tree == nil {
		return nil, errors.New("nil document tree")
	}
	st := Cascade(sheets...)
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("stylesheet: %w", err)
	}
	textColor, _ := ParseColor(st.TextColor)
	linkColor, _ := ParseColor(st.LinkColor)
	background, _ := ParseColor(st.Background)

	faces := typeface.NewCache()
	defer faces.Close()

	f := &flow{
		st:     st,
		faces:  faces,
		text:   textColor,
		link:   linkColor,
		bullet: e.Bullet,
	}
	f.newPage()
	if err := f.nodes(tree.Children); err != nil {
		return nil, err
	}

	return &box.Document{
		Title:      tree.Title,
		Background: background,
		Pages:      f.pages,
	}, nil
}

func headingScale(level int) float64 {
	switch level {
	case 1:
		return 2
	case 2:
		return 1.5
	case 3:
		return 1.25
	default:
		return 1.1
	}
}

// flow is the mutable state of one Layout call.
type flow struct {
	st     Stylesheet
	faces  *typeface.Cache
	text   color.RGBA
	link   color.RGBA
	bullet string

	pages []*box.Page
	page  *box.Page
	y     float64 // next free y on the current page
}

type blockSpec struct {
	runs   []doctree.Run
	anchor string
	size   float64
	bold   bool
	indent float64
	marker string
	pre    bool
}

func (f *flow) newPage() {
	f.page = &box.Page{
		Index:       len(f.pages),
		OuterWidth:  f.st.PageWidth,
		OuterHeight: f.st.PageHeight,
		Root: &box.Box{
			Kind: box.KindPage,
			Rect: box.Rect{Width: f.st.PageWidth, Height: f.st.PageHeight},
		},
	}
	f.pages = append(f.pages, f.page)
	f.y = f.st.Margin
}

func (f *flow) atTop() bool       { return f.y <= f.st.Margin }
func (f *flow) bottom() float64   { return f.st.PageHeight - f.st.Margin }
func (f *flow) contentW() float64 { return f.st.PageWidth - 2*f.st.Margin }

func (f *flow) nodes(nodes []*doctree.DocNode) error {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		spec := blockSpec{runs: n.Runs, anchor: n.Anchor, size: f.st.FontSize}
		switch n.Kind {
		case doctree.KindSection:
			spec.size = f.st.FontSize * headingScale(n.Level)
			spec.bold = true
			if len(n.Runs) > 0 && !f.atTop() {
				f.y += f.st.BlockSpacing
			}
		case doctree.KindListItem:
			spec.indent = min(f.st.FontSize*1.5, f.contentW()/4)
			spec.marker = f.bullet
		case doctree.KindPreformatted:
			spec.pre = true
		}
		if err := f.place(spec); err != nil {
			return err
		}
		if err := f.nodes(n.Children); err != nil {
			return err
		}
	}
	return nil
}

// place lays one block out, splitting it into fragments across pages.
func (f *flow) place(b blockSpec) error {
	faces := make([]font.Face, len(b.runs))
	for i, r := range b.runs {
		face, err := f.faces.Face(b.size, b.bold || r.Bold)
		if err != nil {
			return fmt.Errorf("layout: %w", err)
		}
		faces[i] = face
	}

	left := f.st.Margin + b.indent
	width := f.contentW() - b.indent
	var lines []line
	if b.pre {
		lines = preLines(b.runs, faces)
	} else {
		lines = wrapLines(b.runs, faces, width)
	}
	markAnchors(lines, b.runs)

	if len(lines) == 0 {
		if b.anchor == "" {
			return nil
		}
		if f.y > f.bottom() {
			f.newPage()
		}
		f.page.Root.Children = append(f.page.Root.Children, &box.Box{
			Kind:  box.KindBlock,
			Rect:  box.Rect{X: left, Y: f.y, Width: width},
			Style: box.Style{Anchor: b.anchor},
		})
		return nil
	}

	lineH := b.size * f.st.LineHeight
	var frag *box.Box
	first := true
	for _, ln := range lines {
		if f.y+lineH > f.bottom() && !f.atTop() {
			f.newPage()
			frag = nil
		}
		if frag == nil {
			frag = &box.Box{
				Kind:  box.KindBlock,
				Rect:  box.Rect{X: left, Y: f.y, Width: width},
				Style: box.Style{FontSize: b.size, Bold: b.bold, Color: f.text},
			}
			if first {
				frag.Style.Anchor = b.anchor
				frag.Style.Marker = b.marker
				first = false
			}
			f.page.Root.Children = append(f.page.Root.Children, frag)
		}
		frag.Children = append(frag.Children, f.lineBox(ln, b, left, lineH))
		f.y += lineH
		frag.Rect.Height = f.y - frag.Rect.Y
	}
	f.y += f.st.BlockSpacing
	return nil
}

// lineBox positions the segments of ln at the current y. Consecutive
// segments sharing a link are grouped under one inline box that originates
// the link; their text leaves inherit it.
func (f *flow) lineBox(ln line, b blockSpec, left, height float64) *box.Box {
	lb := &box.Box{
		Kind: box.KindLine,
		Rect: box.Rect{X: left, Y: f.y, Width: ln.width, Height: height},
	}
	var inline *box.Box
	for _, s := range ln.segs {
		r := b.runs[s.run]
		leaf := &box.Box{
			Kind: box.KindText,
			Rect: box.Rect{X: left + s.x, Y: f.y, Width: s.width, Height: height},
			Text: s.text,
			Style: box.Style{
				Anchor:   s.anchor,
				FontSize: b.size,
				Bold:     b.bold || r.Bold,
				Color:    f.text,
			},
		}
		if r.Link.IsZero() {
			lb.Children = append(lb.Children, leaf)
			inline = nil
			continue
		}

		leaf.Style.Link = r.Link
		leaf.Style.LinkInherited = true
		leaf.Style.Color = f.link
		leaf.Style.Underline = true
		if inline == nil || inline.Style.Link != r.Link {
			inline = &box.Box{
				Kind: box.KindInline,
				Rect: leaf.Rect,
				Style: box.Style{
					Link:     r.Link,
					FontSize: b.size,
					Color:    f.link,
				},
			}
			lb.Children = append(lb.Children, inline)
		}
		inline.Children = append(inline.Children, leaf)
		inline.Rect.Width = leaf.Rect.X + leaf.Rect.Width - inline.Rect.X
	}
	return lb
}

type segment struct {
	run    int
	text   string
	x      float64 // offset from the line start
	width  float64
	anchor string
}

type line struct {
	segs  []segment
	width float64
}

// add appends text from run. gap is the advance of a space placed before it.
func (l *line) add(run int, text string, w, gap float64) {
	if n := len(l.segs); n > 0 && l.segs[n-1].run == run {
		last := &l.segs[n-1]
		if gap > 0 {
			last.text += " "
		}
		last.text += text
		l.width += gap + w
		last.width = l.width - last.x
		return
	}
	l.segs = append(l.segs, segment{run: run, text: text, x: l.width + gap, width: w})
	l.width += gap + w
}

type piece struct {
	run   int
	text  string
	width float64
}

// unit is a stretch of text with no break opportunity inside.
type unit struct {
	pieces      []piece
	width       float64
	spaceBefore bool
}

func splitUnits(runs []doctree.Run, faces []font.Face) []unit {
	var units []unit
	space := false
	for i, r := range runs {
		text := r.Text
		for text != "" {
			if c, _ := utf8.DecodeRuneInString(text); unicode.IsSpace(c) {
				space = true
				text = strings.TrimLeftFunc(text, unicode.IsSpace)
				continue
			}
			end := strings.IndexFunc(text, unicode.IsSpace)
			if end < 0 {
				end = len(text)
			}
			p := piece{run: i, text: text[:end], width: typeface.Width(faces[i], text[:end])}
			text = text[end:]
			if len(units) > 0 && !space {
				u := &units[len(units)-1]
				u.pieces = append(u.pieces, p)
				u.width += p.width
			} else {
				units = append(units, unit{pieces: []piece{p}, width: p.width, spaceBefore: len(units) > 0})
			}
			space = false
		}
	}
	return units
}

// wrapLines breaks runs greedily into lines no wider than maxW. A unit wider
// than a whole line is broken between characters.
func wrapLines(runs []doctree.Run, faces []font.Face, maxW float64) []line {
	var lines []line
	var cur line
	for _, u := range splitUnits(runs, faces) {
		gap := 0.0
		if u.spaceBefore && len(cur.segs) > 0 {
			gap = typeface.Width(faces[u.pieces[0].run], " ")
		}
		if len(cur.segs) > 0 && cur.width+gap+u.width > maxW {
			lines = append(lines, cur)
			cur = line{}
			gap = 0
		}
		if len(cur.segs) == 0 && u.width > maxW {
			hardBreak(u, faces, maxW, &cur, &lines)
			continue
		}
		for j, p := range u.pieces {
			g := 0.0
			if j == 0 {
				g = gap
			}
			cur.add(p.run, p.text, p.width, g)
		}
	}
	if len(cur.segs) > 0 {
		lines = append(lines, cur)
	}
	return lines
}

func hardBreak(u unit, faces []font.Face, maxW float64, cur *line, lines *[]line) {
	for _, p := range u.pieces {
		var chunk strings.Builder
		chunkW := 0.0
		for _, c := range p.text {
			cw := typeface.Width(faces[p.run], string(c))
			if cur.width+chunkW+cw > maxW && (len(cur.segs) > 0 || chunk.Len() > 0) {
				if chunk.Len() > 0 {
					cur.add(p.run, chunk.String(), chunkW, 0)
				}
				*lines = append(*lines, *cur)
				*cur = line{}
				chunk.Reset()
				chunkW = 0
			}
			chunk.WriteRune(c)
			chunkW += cw
		}
		if chunk.Len() > 0 {
			cur.add(p.run, chunk.String(), chunkW, 0)
		}
	}
}

// preLines breaks runs only at newlines. Blank lines are kept.
func preLines(runs []doctree.Run, faces []font.Face) []line {
	if len(runs) == 0 {
		return nil
	}
	lines := []line{{}}
	for i, r := range runs {
		text := strings.ReplaceAll(r.Text, "\t", "    ")
		for j, part := range strings.Split(text, "\n") {
			if j > 0 {
				lines = append(lines, line{})
			}
			if part == "" {
				continue
			}
			lines[len(lines)-1].add(i, part, typeface.Width(faces[i], part), 0)
		}
	}
	return lines
}

// markAnchors puts each run's anchor on the first segment laid out for it.
func markAnchors(lines []line, runs []doctree.Run) {
	seen := make([]bool, len(runs))
	for li := range lines {
		for si := range lines[li].segs {
			s := &lines[li].segs[si]
			if seen[s.run] {
				continue
			}
			seen[s.run] = true
			s.anchor = runs[s.run].Anchor
		}
	}
}
