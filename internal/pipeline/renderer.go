package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgallion1/pageview/internal/box"
	"github.com/dgallion1/pageview/internal/doctree"
	"github.com/dgallion1/pageview/internal/hitregion"
	"github.com/dgallion1/pageview/internal/imageenc"
	"github.com/dgallion1/pageview/internal/layout"
	"github.com/dgallion1/pageview/internal/render"
	"github.com/dgallion1/pageview/internal/stats"
)

// LayoutEngine flows a parsed document onto pages.
type LayoutEngine interface {
	Layout(tree *doctree.DocTree, sheets []layout.Stylesheet) (*box.Document, error)
}

// PageDescriptor is everything the presentation layer needs for one page.
type PageDescriptor struct {
	Width   int                      `json:"width"`
	Height  int                      `json:"height"`
	Links   []hitregion.LinkRecord   `json:"links"`
	Anchors []hitregion.AnchorRecord `json:"anchors"`
	Image   string                   `json:"data_url"`
}

// PageError names the zero-based page whose processing failed.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Renderer turns laid-out documents into page descriptors.
type Renderer struct {
	layout  LayoutEngine
	backend render.Backend
	log     *slog.Logger
	stats   *stats.RenderStats
	workers int
}

// NewRenderer creates a Renderer. pageWorkers above 1 renders pages of a
// document concurrently; backend must then be safe for concurrent StartPage
// calls. st may be nil.
func NewRenderer(engine LayoutEngine, backend render.Backend, log *slog.Logger, st *stats.RenderStats, pageWorkers int) *Renderer {
	return &Renderer{
		layout:  engine,
		backend: backend,
		log:     log,
		stats:   st,
		workers: max(pageWorkers, 1),
	}
}

// Layout runs the layout engine alone.
func (r *Renderer) Layout(tree *doctree.DocTree, sheets []layout.Stylesheet) (*box.Document, error) {
	doc, err := r.layout.Layout(tree, sheets)
	if err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	return doc, nil
}

// Render lays tree out with sheets and renders every page.
func (r *Renderer) Render(ctx context.Context, tree *doctree.DocTree, sheets []layout.Stylesheet) ([]PageDescriptor, error) {
	doc, err := r.Layout(tree, sheets)
	if err != nil {
		return nil, err
	}
	return r.RenderDocument(ctx, doc)
}

// RenderDocument returns one descriptor per page, in page order, or the
// first failure. No partial results are returned.
func (r *Renderer) RenderDocument(ctx context.Context, doc *box.Document) ([]PageDescriptor, error) {
	return r.RenderDocumentProgress(ctx, doc, nil)
}

// RenderDocumentProgress is RenderDocument with a callback invoked after each
// finished page. The callback may run on several goroutines at once.
func (r *Renderer) RenderDocumentProgress(ctx context.Context, doc *box.Document, progress func()) ([]PageDescriptor, error) {
	if doc == nil {
		return nil, errors.New("nil document")
	}
	if progress == nil {
		progress = func() {}
	}

	start := time.Now()
	var (
		pages []PageDescriptor
		err   error
	)
	if r.workers > 1 && len(doc.Pages) > 1 {
		pages, err = r.parallel(ctx, doc, progress)
	} else {
		pages, err = r.sequential(ctx, doc, progress)
	}
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	if r.stats != nil {
		r.stats.Record(elapsed, len(pages))
	}
	r.log.Info("render complete", "title", doc.Title, "pages", len(pages), "duration_ms", elapsed.Milliseconds())
	return pages, nil
}

func (r *Renderer) sequential(ctx context.Context, doc *box.Document, progress func()) ([]PageDescriptor, error) {
	out := make([]PageDescriptor, 0, len(doc.Pages))
	for i, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, &PageError{Page: i, Err: err}
		}
		d, err := r.renderPage(doc, page)
		if err != nil {
			return nil, &PageError{Page: i, Err: err}
		}
		out = append(out, d)
		progress()
	}
	return out, nil
}

// parallel hands page indexes to a bounded set of goroutines. Results land
// in their page slot so order is kept; after the first failure the remaining
// pages are skipped.
func (r *Renderer) parallel(ctx context.Context, doc *box.Document, progress func()) ([]PageDescriptor, error) {
	out := make([]PageDescriptor, len(doc.Pages))
	errs := make([]error, len(doc.Pages))
	var failed atomic.Bool

	next := make(chan int)
	var wg sync.WaitGroup
	for range min(r.workers, len(doc.Pages)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				if failed.Load() {
					continue
				}
				if err := ctx.Err(); err != nil {
					errs[i] = err
					failed.Store(true)
					continue
				}
				d, err := r.renderPage(doc, doc.Pages[i])
				if err != nil {
					errs[i] = err
					failed.Store(true)
					continue
				}
				out[i] = d
				progress()
			}
		}()
	}

	for i := range doc.Pages {
		if failed.Load() {
			break
		}
		next <- i
	}
	close(next)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, &PageError{Page: i, Err: err}
		}
	}
	return out, nil
}

func (r *Renderer) renderPage(doc *box.Document, page *box.Page) (PageDescriptor, error) {
	if page == nil || page.Root == nil {
		return PageDescriptor{}, &hitregion.TraversalError{Reason: "page has no root node"}
	}

	canvas, err := r.backend.StartPage(int(math.Ceil(page.OuterWidth)), int(math.Ceil(page.OuterHeight)))
	if err != nil {
		return PageDescriptor{}, backendErr("start", err)
	}
	if err := canvas.DrawPage(doc, page); err != nil {
		return PageDescriptor{}, backendErr("draw", err)
	}
	width, height, surface, err := canvas.Finish()
	if err != nil {
		return PageDescriptor{}, backendErr("finish", err)
	}

	links, anchors, err := hitregion.Extract(page.Root)
	if err != nil {
		return PageDescriptor{}, err
	}
	img, err := imageenc.Encode(surface)
	if err != nil {
		return PageDescriptor{}, err
	}

	return PageDescriptor{
		Width:   width,
		Height:  height,
		Links:   links,
		Anchors: anchors,
		Image:   img,
	}, nil
}

// backendErr makes sure backend failures surface as *render.BackendError.
func backendErr(op string, err error) error {
	var be *render.BackendError
	if errors.As(err, &be) {
		return err
	}
	return &render.BackendError{Op: op, Err: err}
}
