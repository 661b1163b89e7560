package api

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/dgallion1/pageview/internal/config"
	"github.com/dgallion1/pageview/internal/fetch"
	"github.com/dgallion1/pageview/internal/pipeline"
	"github.com/dgallion1/pageview/internal/stats"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Fetcher retrieves remote documents for the browser view.
type Fetcher interface {
	Fetch(ctx context.Context, raw string) (*fetch.Resource, error)
}

// Server is the HTTP API server for pageview.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	fetcher      Fetcher
	stats        *stats.RenderStats
	cache        pipeline.Cache
	browser      *template.Template
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. cache may be nil.
func NewServer(orch *pipeline.Orchestrator, fetcher Fetcher, st *stats.RenderStats, cache pipeline.Cache, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		fetcher:      fetcher,
		stats:        st,
		cache:        cache,
		browser:      browserTemplate,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Get("/favicon.ico", http.NotFound)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/render", s.handleRender)
		r.Post("/api/jobs", s.handleSubmitJob)
		r.Post("/api/jobs/batch", s.handleBatchJobs)
		r.Get("/api/jobs/{jobID}/status", s.handleJobStatus)
		r.Get("/api/jobs/{jobID}/pages", s.handleJobPages)
		r.Get("/api/stats/render", s.handleRenderStats)
		r.Delete("/api/cache", s.handlePruneCache)
	})

	// Browser view: everything else is a URL to fetch and render.
	r.Get("/", s.handleBrowse)
	r.Get("/*", s.handleBrowse)

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
