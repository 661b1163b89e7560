package pipeline

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/pageview/internal/box"
	"github.com/dgallion1/pageview/internal/doctree"
	"github.com/dgallion1/pageview/internal/hitregion"
	"github.com/dgallion1/pageview/internal/imageenc"
	"github.com/dgallion1/pageview/internal/layout"
	"github.com/dgallion1/pageview/internal/raster"
	"github.com/dgallion1/pageview/internal/render"
	"github.com/dgallion1/pageview/internal/stats"
	"github.com/google/go-cmp/cmp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend paints nothing and fails on request.
type fakeBackend struct {
	mu        sync.Mutex
	started   int
	failStart bool
	failDraw  int // page index, -1 for none
	emptyPage int // page index whose surface is zero-sized, -1 for none
	delay     time.Duration
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{failDraw: -1, emptyPage: -1}
}

func (b *fakeBackend) StartPage(w, h int) (render.Canvas, error) {
	b.mu.Lock()
	b.started++
	b.mu.Unlock()
	if b.failStart {
		return nil, errors.New("out of memory")
	}
	return &fakeCanvas{b: b, w: w, h: h}, nil
}

type fakeCanvas struct {
	b     *fakeBackend
	w, h  int
	index int
}

func (c *fakeCanvas) DrawPage(_ *box.Document, page *box.Page) error {
	c.index = page.Index
	if c.b.delay > 0 {
		time.Sleep(c.b.delay * time.Duration(3-page.Index%3))
	}
	if page.Index == c.b.failDraw {
		return &render.BackendError{Op: "draw", Err: errors.New("boom")}
	}
	return nil
}

func (c *fakeCanvas) Finish() (int, int, render.Surface, error) {
	if c.index == c.b.emptyPage {
		return 0, 0, raster.NewSurface(image.NewRGBA(image.Rectangle{})), nil
	}
	return c.w, c.h, raster.NewSurface(image.NewRGBA(image.Rect(0, 0, c.w, c.h))), nil
}

func testDoc(n int) *box.Document {
	doc := &box.Document{Title: "test"}
	for i := range n {
		doc.Pages = append(doc.Pages, &box.Page{
			Index:       i,
			OuterWidth:  float64(40 + i),
			OuterHeight: 30.5,
			Root:        &box.Box{Kind: box.KindPage, Rect: box.Rect{Width: float64(40 + i), Height: 30.5}},
		})
	}
	return doc
}

func newTestRenderer(b render.Backend, workers int) *Renderer {
	return NewRenderer(layout.NewEngine(), b, testLogger(), stats.NewRenderStats(time.Hour), workers)
}

func TestRenderDocument_OneDescriptorPerPageInOrder(t *testing.T) {
	for _, workers := range []int{1, 4} {
		b := newFakeBackend()
		b.delay = time.Millisecond
		r := newTestRenderer(b, workers)

		pages, err := r.RenderDocument(context.Background(), testDoc(5))
		if err != nil {
			t.Fatalf("workers=%d: unexpected error: %v", workers, err)
		}
		if len(pages) != 5 {
			t.Fatalf("workers=%d: expected 5 descriptors, got %d", workers, len(pages))
		}
		for i, p := range pages {
			if p.Width != 40+i {
				t.Errorf("workers=%d: descriptor %d has width %d, want %d", workers, i, p.Width, 40+i)
			}
			if p.Height != 31 {
				t.Errorf("workers=%d: expected height rounded up to 31, got %d", workers, p.Height)
			}
		}
	}
}

func TestRenderDocument_EmptyPageHasPayload(t *testing.T) {
	r := newTestRenderer(newFakeBackend(), 1)
	pages, err := r.RenderDocument(context.Background(), testDoc(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := pages[0]
	if p.Links == nil || len(p.Links) != 0 {
		t.Errorf("expected empty non-nil links, got %#v", p.Links)
	}
	if p.Anchors == nil || len(p.Anchors) != 0 {
		t.Errorf("expected empty non-nil anchors, got %#v", p.Anchors)
	}
	if !strings.HasPrefix(p.Image, "data:image/png;base64,") || len(p.Image) <= len("data:image/png;base64,") {
		t.Errorf("expected non-empty PNG payload, got %q", p.Image)
	}
}

func TestRenderDocument_DrawFailureIsAtomic(t *testing.T) {
	for _, workers := range []int{1, 3} {
		b := newFakeBackend()
		b.failDraw = 1
		r := newTestRenderer(b, workers)

		pages, err := r.RenderDocument(context.Background(), testDoc(3))
		if pages != nil {
			t.Errorf("workers=%d: expected no descriptors, got %d", workers, len(pages))
		}
		var pe *PageError
		if !errors.As(err, &pe) {
			t.Fatalf("workers=%d: expected PageError, got %v", workers, err)
		}
		if pe.Page != 1 {
			t.Errorf("workers=%d: expected page 1, got %d", workers, pe.Page)
		}
		var be *render.BackendError
		if !errors.As(err, &be) || be.Op != "draw" {
			t.Errorf("workers=%d: expected draw BackendError, got %v", workers, err)
		}
	}
}

func TestRenderDocument_StartFailureWrapped(t *testing.T) {
	b := newFakeBackend()
	b.failStart = true
	r := newTestRenderer(b, 1)

	_, err := r.RenderDocument(context.Background(), testDoc(2))
	var be *render.BackendError
	if !errors.As(err, &be) || be.Op != "start" {
		t.Fatalf("expected start BackendError, got %v", err)
	}
	var pe *PageError
	if !errors.As(err, &pe) || pe.Page != 0 {
		t.Errorf("expected failure on page 0, got %v", err)
	}
	if b.started != 1 {
		t.Errorf("expected processing to stop after the first failure, started %d pages", b.started)
	}
}

func TestRenderDocument_EncodingFailure(t *testing.T) {
	b := newFakeBackend()
	b.emptyPage = 0
	r := newTestRenderer(b, 1)

	_, err := r.RenderDocument(context.Background(), testDoc(2))
	var ee *imageenc.EncodingError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EncodingError, got %v", err)
	}
}

func TestRenderDocument_TraversalFailure(t *testing.T) {
	doc := testDoc(2)
	doc.Pages[1].Root.Children = []*box.Box{nil}
	r := newTestRenderer(newFakeBackend(), 1)

	_, err := r.RenderDocument(context.Background(), doc)
	var te *hitregion.TraversalError
	if !errors.As(err, &te) {
		t.Fatalf("expected TraversalError, got %v", err)
	}
	var pe *PageError
	if !errors.As(err, &pe) || pe.Page != 1 {
		t.Errorf("expected failure on page 1, got %v", err)
	}
}

func TestRenderDocument_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newTestRenderer(newFakeBackend(), 1)
	if _, err := r.RenderDocument(ctx, testDoc(2)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRenderDocument_RecordsStats(t *testing.T) {
	st := stats.NewRenderStats(time.Hour)
	r := NewRenderer(layout.NewEngine(), newFakeBackend(), testLogger(), st, 1)
	if _, err := r.RenderDocument(context.Background(), testDoc(3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := st.Snapshot()
	if snap.Count != 1 || snap.Pages != 3 {
		t.Errorf("expected one render of 3 pages, got %+v", snap)
	}
}

func TestRender_EndToEnd(t *testing.T) {
	tree := &doctree.DocTree{
		Title: "Guide",
		Children: []*doctree.DocNode{
			{Kind: doctree.KindSection, Level: 1, Anchor: "intro", Runs: doctree.PlainRuns("Intro")},
			{Kind: doctree.KindParagraph, Runs: []doctree.Run{
				{Text: "back to "},
				{Text: "the top", Link: box.Link{Kind: box.LinkInternal, Target: "intro"}},
				{Text: " or "},
				{Text: "elsewhere", Link: box.Link{Kind: box.LinkExternal, Target: "example.com/a"}},
			}},
		},
	}
	r := NewRenderer(layout.NewEngine(), raster.New(), testLogger(), nil, 1)
	pages, err := r.Render(context.Background(), tree, []layout.Stylesheet{{PageWidth: 400, PageHeight: 300, Margin: 20}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	p := pages[0]
	if p.Width != 400 || p.Height != 300 {
		t.Errorf("expected 400x300, got %dx%d", p.Width, p.Height)
	}

	var hrefs []string
	for _, l := range p.Links {
		hrefs = append(hrefs, l.Href)
	}
	if diff := cmp.Diff([]string{"#intro", "/example.com/a"}, hrefs); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
	if len(p.Anchors) != 1 || p.Anchors[0].Name != "intro" {
		t.Errorf("expected intro anchor, got %+v", p.Anchors)
	}
	if p.Anchors[0].Y != 20 {
		t.Errorf("expected anchor at the top margin without offset, got y=%v", p.Anchors[0].Y)
	}
}

func TestRender_LayoutError(t *testing.T) {
	r := newTestRenderer(newFakeBackend(), 1)
	_, err := r.Render(context.Background(), &doctree.DocTree{}, []layout.Stylesheet{{Margin: 5000}})
	if err == nil || !strings.HasPrefix(err.Error(), "layout:") {
		t.Fatalf("expected layout error, got %v", err)
	}
}
