package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/pageview/internal/doctree"
	"github.com/dgallion1/pageview/internal/layout"
	"github.com/dgallion1/pageview/internal/parser"
	"github.com/dgallion1/pageview/internal/store"
)

// Cache persists finished renders. *store.Store satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) (*store.Entry, error)
	Put(ctx context.Context, key, title string, pages json.RawMessage) error
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Worker processes a single document job.
type Worker struct {
	renderer  *Renderer
	cache     Cache
	log       *slog.Logger
	parseOpts parser.Options
	base      layout.Stylesheet
	cacheTTL  time.Duration
}

// NewWorker creates a Worker. cache may be nil.
func NewWorker(renderer *Renderer, cache Cache, log *slog.Logger, parseOpts parser.Options, base layout.Stylesheet, cacheTTL time.Duration) *Worker {
	return &Worker{
		renderer:  renderer,
		cache:     cache,
		log:       log,
		parseOpts: parseOpts,
		base:      base,
		cacheTTL:  cacheTTL,
	}
}

// Process runs parse, layout and render for a job and records the outcome on
// it. The returned error is the one that failed the job.
func (w *Worker) Process(ctx context.Context, job *Job) error {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)
	if job.SourceURL != "" {
		log = log.With("url", job.SourceURL)
	}

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	p, err := w.parserFor(job)
	if err != nil {
		return w.fail(log, job, "parsing", err)
	}
	data := job.FileData()
	tree, err := p.Parse(bytes.NewReader(data), job.Filename)
	if err != nil {
		return w.fail(log, job, "parsing", fmt.Errorf("parse: %w", err))
	}
	if job.Title != "" {
		tree.Title = job.Title
	}

	sheets := []layout.Stylesheet{w.base, job.Sheet}
	hash := ContentHashHex(data)
	job.setContentHash(hash)
	key := store.Key(sourceKind(job), hash, layout.Cascade(sheets...).Hash())

	if pages, ok := w.lookup(ctx, log, key); ok {
		log.Info("render cache hit", "pages", len(pages))
		job.Complete(tree.Title, pages, true)
		return nil
	}

	pages, err := w.render(ctx, log, job, tree, sheets)
	if err != nil {
		return err
	}
	w.save(ctx, log, key, tree.Title, pages)
	job.Complete(tree.Title, pages, false)
	return nil
}

func (w *Worker) render(ctx context.Context, log *slog.Logger, job *Job, tree *doctree.DocTree, sheets []layout.Stylesheet) ([]PageDescriptor, error) {
	// Phase 2: Layout
	job.SetStatus(StatusLayout, "layout")
	doc, err := w.renderer.Layout(tree, sheets)
	if err != nil {
		return nil, w.fail(log, job, "layout", err)
	}
	job.SetPagesTotal(len(doc.Pages))
	log.Info("layout complete", "pages", len(doc.Pages))

	// Phase 3: Render pages
	job.SetStatus(StatusRendering, "rendering")
	pages, err := w.renderer.RenderDocumentProgress(ctx, doc, job.IncrPagesRendered)
	if err != nil {
		return nil, w.fail(log, job, "rendering", err)
	}
	return pages, nil
}

func (w *Worker) parserFor(job *Job) (parser.Parser, error) {
	if job.SourceURL == "" && job.ContentType == "" {
		return parser.ForFile(job.Filename, w.parseOpts)
	}
	opts := w.parseOpts
	if job.SourceURL != "" {
		u, err := url.Parse(job.SourceURL)
		if err != nil {
			return nil, fmt.Errorf("source url: %w", err)
		}
		opts.BaseURL = u
	}
	return parser.ForContentType(job.ContentType, job.Filename, opts)
}

func (w *Worker) lookup(ctx context.Context, log *slog.Logger, key string) ([]PageDescriptor, bool) {
	if w.cache == nil {
		return nil, false
	}
	e, err := w.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn("render cache lookup failed", "error", err)
		}
		return nil, false
	}
	if w.cacheTTL > 0 && time.Since(e.CreatedAt) > w.cacheTTL {
		return nil, false
	}
	var pages []PageDescriptor
	if err := json.Unmarshal(e.Pages, &pages); err != nil {
		log.Warn("render cache entry unreadable", "error", err)
		return nil, false
	}
	return pages, true
}

func (w *Worker) save(ctx context.Context, log *slog.Logger, key, title string, pages []PageDescriptor) {
	if w.cache == nil {
		return
	}
	data, err := json.Marshal(pages)
	if err != nil {
		log.Warn("render cache encode failed", "error", err)
		return
	}
	if err := w.cache.Put(ctx, key, title, data); err != nil {
		log.Warn("render cache write failed", "error", err)
	}
}

func (w *Worker) fail(log *slog.Logger, job *Job, phase string, err error) error {
	log.Error("render job failed", "phase", phase, "error", err)
	job.AddError(err.Error())
	job.SetStatus(StatusFailed, phase)
	return err
}

// sourceKind distinguishes inputs whose bytes alone do not decide the output:
// the same bytes parse differently per format, and fetched pages resolve
// links against their URL.
func sourceKind(job *Job) string {
	ext := strings.ToLower(filepath.Ext(job.Filename))
	if job.SourceURL == "" && job.ContentType == "" {
		return ext
	}
	return ext + "|" + job.ContentType + "|" + job.SourceURL
}
