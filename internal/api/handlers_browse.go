package api

import (
	_ "embed"
	"errors"
	"html/template"
	"math"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/dgallion1/pageview/internal/fetch"
	"github.com/dgallion1/pageview/internal/layout"
	"github.com/dgallion1/pageview/internal/pipeline"
	"github.com/google/uuid"
)

//go:embed templates/browser.html
var browserHTML string

var browserTemplate = template.Must(template.New("browser").Parse(browserHTML))

type browserView struct {
	Title     string
	URL       string
	Error     string
	NavOffset int
	Pages     []pageView
}

type pageView struct {
	Index   int
	Width   int
	Height  int
	Image   template.URL
	Links   []linkView
	Anchors []anchorView
}

type linkView struct {
	Href                string
	X, Y, Width, Height float64
}

type anchorView struct {
	Name string
	X, Y float64
}

// buildView lays hit regions over the page images. Anchors are raised by
// navOffset so a jump lands below the fixed navigation bar.
func buildView(title, src string, pages []pipeline.PageDescriptor, navOffset int) browserView {
	v := browserView{Title: title, URL: src, NavOffset: navOffset}
	for i, p := range pages {
		pv := pageView{
			Index:  i,
			Width:  p.Width,
			Height: p.Height,
			// Descriptors only ever carry base64 PNG data URLs.
			Image: template.URL(p.Image),
		}
		for _, l := range p.Links {
			pv.Links = append(pv.Links, linkView{
				Href:   l.Href,
				X:      round2(l.X),
				Y:      round2(l.Y),
				Width:  round2(l.Width),
				Height: round2(l.Height),
			})
		}
		for _, a := range p.Anchors {
			pv.Anchors = append(pv.Anchors, anchorView{
				Name: a.Name,
				X:    round2(a.X),
				Y:    round2(a.Y - float64(navOffset)),
			})
		}
		v.Pages = append(v.Pages, pv)
	}
	return v
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// handleBrowse renders the URL carried in the request path, e.g.
// /example.com/docs?page=2.
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/")
	if raw == "" {
		if q := r.URL.Query().Get("url"); q != "" {
			http.Redirect(w, r, "/"+strings.TrimPrefix(q, "/"), http.StatusSeeOther)
			return
		}
		s.writeBrowser(w, http.StatusOK, browserView{NavOffset: s.cfg.NavOffset})
		return
	}
	if r.URL.RawQuery != "" {
		raw += "?" + r.URL.RawQuery
	}

	view := browserView{URL: raw, NavOffset: s.cfg.NavOffset}
	if _, err := fetch.NormalizeURL(raw); err != nil {
		view.Error = err.Error()
		s.writeBrowser(w, http.StatusBadRequest, view)
		return
	}

	res, err := s.fetcher.Fetch(r.Context(), raw)
	if err != nil {
		s.log.Warn("browse fetch failed", "url", raw, "error", err)
		view.Error = err.Error()
		s.writeBrowser(w, fetchStatus(err), view)
		return
	}

	job := pipeline.NewJob(uuid.NewString(), sourceFilename(res.URL), "", res.Body, layout.Stylesheet{})
	job.ContentType = res.ContentType
	job.SourceURL = res.URL.String()

	pages, err := s.orchestrator.RenderNow(r.Context(), job)
	if err != nil {
		view.Error = "render failed: " + err.Error()
		s.writeBrowser(w, http.StatusUnprocessableEntity, view)
		return
	}
	s.writeBrowser(w, http.StatusOK, buildView(job.Snapshot().Title, res.URL.String(), pages, s.cfg.NavOffset))
}

func (s *Server) writeBrowser(w http.ResponseWriter, code int, v browserView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := s.browser.Execute(w, v); err != nil {
		s.log.Error("browser template failed", "error", err)
	}
}

func fetchStatus(err error) int {
	var blocked *fetch.BlockedError
	if errors.As(err, &blocked) {
		return http.StatusForbidden
	}
	return http.StatusBadGateway
}

// sourceFilename names a fetched page for parser dispatch and the default
// title: the last path segment, or the host for a site root.
func sourceFilename(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return u.Host
	}
	return name
}
