package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/pageview/internal/api"
	"github.com/dgallion1/pageview/internal/config"
	"github.com/dgallion1/pageview/internal/fetch"
	"github.com/dgallion1/pageview/internal/layout"
	"github.com/dgallion1/pageview/internal/pipeline"
	"github.com/dgallion1/pageview/internal/raster"
	"github.com/dgallion1/pageview/internal/stats"
	"github.com/dgallion1/pageview/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := config.LoadDotEnv(); err != nil {
		log.Error("invalid .env file", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional render cache.
	var cache pipeline.Cache
	var db *store.Store
	if cfg.CacheDBPath != "" {
		var err error
		db, err = store.Open(ctx, cfg.CacheDBPath)
		if err != nil {
			log.Error("open render cache", "path", cfg.CacheDBPath, "error", err)
			os.Exit(1)
		}
		cache = db
	}

	// Initialize pipeline.
	renderStats := stats.NewRenderStats(time.Hour)
	renderer := pipeline.NewRenderer(layout.NewEngine(), raster.New(), log, renderStats, cfg.PageWorkers)
	orch := pipeline.NewOrchestrator(cfg, renderer, cache, log)
	orch.Start(ctx)

	fetcher := fetch.New(fetch.Options{
		Timeout:       cfg.FetchTimeout,
		MaxBytes:      cfg.FetchMaxBytes,
		UserAgent:     cfg.FetchUserAgent,
		RespectRobots: cfg.RespectRobots,
	}, log)

	// Initialize HTTP server.
	srv := api.NewServer(orch, fetcher, renderStats, cache, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		if db != nil {
			db.Close()
		}
	}()

	log.Info("starting pageview", "port", cfg.Port, "cache", cfg.CacheDBPath != "")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
