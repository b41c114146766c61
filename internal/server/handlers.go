package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonguttman/MasterStat/internal/model"
	"github.com/jonguttman/MasterStat/internal/poller"
	"github.com/jonguttman/MasterStat/internal/store"
)

// Handler serves the read API over the cache and the sample store.
type Handler struct {
	cache *poller.Cache
	store *store.Store
	hub   *Hub
	ready *atomic.Bool
}

// NewHandler creates the HTTP handler.
func NewHandler(cache *poller.Cache, st *store.Store, hub *Hub, ready *atomic.Bool) *Handler {
	return &Handler{cache: cache, store: st, hub: hub, ready: ready}
}

// SetupRoutes configures API routes.
func SetupRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/api/status", h.GetStatus).Methods("GET")
	router.HandleFunc("/api/history", h.GetHistory).Methods("GET")
	router.HandleFunc("/ws", h.hub.ServeWS)

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/healthz/live", h.Liveness).Methods("GET")
	router.HandleFunc("/healthz/ready", h.Readiness).Methods("GET")
}

// GetStatus handles GET /api/status. The cache decides whether an upstream
// fetch happens; an upstream failure is reported, not masked.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.cache.Status(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// GetHistory handles GET /api/history, returning the retained samples in
// timestamp order. An empty history is an empty array, never null.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	samples := h.store.Snapshot()
	if samples == nil {
		samples = []model.Sample{}
	}
	respondJSON(w, http.StatusOK, samples)
}

// Liveness handles GET /healthz/live.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness handles GET /healthz/ready. Ready means the startup sequence
// (credential check, history load, initial backfill) has completed.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		respondError(w, http.StatusServiceUnavailable, "starting")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
