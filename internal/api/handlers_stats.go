package api

import (
	"encoding/json"
	"net/http"
	"time"
)

func (s *Server) handleRenderStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		jsonError(w, "render stats unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"stats":       s.stats.Snapshot(),
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}

// handlePruneCache drops cached renders older than ?older_than (default: the
// configured cache TTL; "0s" clears everything).
func (s *Server) handlePruneCache(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		jsonError(w, "render cache disabled", http.StatusServiceUnavailable)
		return
	}
	olderThan := s.cfg.CacheTTL
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			jsonError(w, "older_than must be a non-negative duration", http.StatusBadRequest)
			return
		}
		olderThan = d
	}
	n, err := s.cache.Prune(r.Context(), olderThan)
	if err != nil {
		s.log.Error("cache prune failed", "error", err)
		jsonError(w, "cache prune failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"pruned": n})
}
