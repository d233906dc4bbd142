package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"quizbot/internal/config"
	"quizbot/internal/store"
	"quizbot/internal/syncsvc"
)

// New builds the operational HTTP endpoint: liveness, readiness and a
// peek at the sync queue.
func New(cfg config.Config, st *store.Store, queue *syncsvc.Queue) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			http.Error(w, "db: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		running, queued := queue.Status()
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sync_running": running,
			"sync_queued":  queued,
			"ts":           time.Now().UTC().Format(time.RFC3339),
		})
	})

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}
}
