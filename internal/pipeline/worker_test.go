package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/pageview/internal/config"
	"github.com/dgallion1/pageview/internal/layout"
	"github.com/dgallion1/pageview/internal/parser"
	"github.com/dgallion1/pageview/internal/raster"
	"github.com/dgallion1/pageview/internal/store"
)

func newTestWorker(t *testing.T, withCache bool) (*Worker, *store.Store) {
	t.Helper()
	var cache Cache
	var s *store.Store
	if withCache {
		var err error
		s, err = store.Open(context.Background(), ":memory:")
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		cache = s
	}
	r := NewRenderer(layout.NewEngine(), raster.New(), testLogger(), nil, 1)
	base := layout.Stylesheet{PageWidth: 300, PageHeight: 200, Margin: 10}
	return NewWorker(r, cache, testLogger(), parser.Options{}, base, time.Hour), s
}

func TestWorker_ProcessMarkdown(t *testing.T) {
	w, _ := newTestWorker(t, false)
	job := NewJob("j1", "guide.md", "", []byte("# Intro\n\nSee [below](#intro).\n"), layout.Stylesheet{})

	if err := w.Process(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pages, done := job.Pages()
	if !done || len(pages) != 1 {
		t.Fatalf("expected 1 page on a completed job, got %d (done=%v)", len(pages), done)
	}
	snap := job.Snapshot()
	if snap.Title != "guide" {
		t.Errorf("expected title from filename, got %q", snap.Title)
	}
	if snap.Cached {
		t.Error("expected fresh render")
	}
	if len(pages[0].Links) != 1 || pages[0].Links[0].Href != "#intro" {
		t.Errorf("expected #intro link, got %+v", pages[0].Links)
	}
	if pages[0].Width != 300 || pages[0].Height != 200 {
		t.Errorf("expected 300x200 page, got %dx%d", pages[0].Width, pages[0].Height)
	}
}

func TestWorker_TitleOverrideAndSheet(t *testing.T) {
	w, _ := newTestWorker(t, false)
	job := NewJob("j2", "notes.txt", "Custom", []byte("hello"), layout.Stylesheet{PageWidth: 250})

	if err := w.Process(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pages, _ := job.Pages()
	if job.Snapshot().Title != "Custom" {
		t.Errorf("expected title override, got %q", job.Snapshot().Title)
	}
	if pages[0].Width != 250 {
		t.Errorf("expected job sheet to win, got width %d", pages[0].Width)
	}
}

func TestWorker_UnsupportedFormatFails(t *testing.T) {
	w, _ := newTestWorker(t, false)
	job := NewJob("j3", "image.png", "", []byte{1, 2, 3}, layout.Stylesheet{})

	if err := w.Process(context.Background(), job); err == nil {
		t.Fatal("expected error for unsupported format")
	}
	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Phase != "parsing" {
		t.Errorf("expected failed in parsing, got %s/%s", snap.Status, snap.Phase)
	}
	if len(snap.Progress.Errors) != 1 {
		t.Errorf("expected 1 recorded error, got %d", len(snap.Progress.Errors))
	}
}

func TestWorker_LayoutFailure(t *testing.T) {
	w, _ := newTestWorker(t, false)
	job := NewJob("j4", "a.txt", "", []byte("x"), layout.Stylesheet{Margin: 1000})

	if err := w.Process(context.Background(), job); err == nil {
		t.Fatal("expected layout error")
	}
	if snap := job.Snapshot(); snap.Phase != "layout" {
		t.Errorf("expected failure in layout phase, got %q", snap.Phase)
	}
}

func TestWorker_CacheHit(t *testing.T) {
	w, _ := newTestWorker(t, true)
	data := []byte("some text worth caching")

	first := NewJob("c1", "a.txt", "", data, layout.Stylesheet{})
	if err := w.Process(context.Background(), first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Snapshot().Cached {
		t.Fatal("expected first render to miss the cache")
	}

	second := NewJob("c2", "b.txt", "", data, layout.Stylesheet{})
	if err := w.Process(context.Background(), second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Snapshot().Cached {
		t.Error("expected identical content to hit the cache")
	}
	a, _ := first.Pages()
	b, _ := second.Pages()
	if a[0].Image != b[0].Image {
		t.Error("expected cached image to match the original")
	}

	other := NewJob("c3", "a.txt", "", data, layout.Stylesheet{FontSize: 14})
	if err := w.Process(context.Background(), other); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.Snapshot().Cached {
		t.Error("expected a different stylesheet to miss the cache")
	}
}

func TestWorker_FetchedHTMLResolvesAgainstSource(t *testing.T) {
	w, _ := newTestWorker(t, false)
	job := NewJob("f1", "/docs/page", "", []byte(`<p><a href="other">next</a></p>`), layout.Stylesheet{})
	job.ContentType = "text/html; charset=utf-8"
	job.SourceURL = "http://example.com/docs/page"

	if err := w.Process(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pages, _ := job.Pages()
	if len(pages[0].Links) != 1 {
		t.Fatalf("expected 1 link, got %+v", pages[0].Links)
	}
	if got := pages[0].Links[0].Href; got != "/http://example.com/docs/other" {
		t.Errorf("expected resolved external href, got %q", got)
	}
}

func TestOrchestrator_SubmitAndRenderNow(t *testing.T) {
	cfg := config.Config{
		WorkerCount:  1,
		MaxQueueSize: 1,
		JobTTL:       time.Hour,
		PageWidth:    300,
		PageHeight:   200,
		PageMargin:   10,
		FontSize:     12,
		LineHeight:   1.4,
	}
	r := NewRenderer(layout.NewEngine(), raster.New(), testLogger(), nil, 1)
	o := NewOrchestrator(cfg, r, nil, testLogger())

	pages, err := o.RenderNow(context.Background(), NewJob("now", "a.md", "", []byte("hi"), layout.Stylesheet{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}

	// Without started workers the queue fills up.
	if err := o.Submit(NewJob("q1", "a.txt", "", []byte("x"), layout.Stylesheet{})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	full := NewJob("q2", "a.txt", "", []byte("x"), layout.Stylesheet{})
	err = o.Submit(full)
	if err == nil || !strings.Contains(err.Error(), "queue is full") {
		t.Fatalf("expected queue full error, got %v", err)
	}
	if full.Snapshot().Status != StatusFailed {
		t.Error("expected rejected job to be failed")
	}
	if o.GetJob("q2") == nil {
		t.Error("expected rejected job to stay visible")
	}

	o.Start(context.Background())
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, done := o.GetJob("q1").Pages(); done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("queued job did not complete")
		}
		time.Sleep(10 * time.Millisecond)
	}
	o.Stop()
	if o.QueueDepth() != 0 {
		t.Errorf("expected empty queue, got %d", o.QueueDepth())
	}
}
