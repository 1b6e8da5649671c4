package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/AegisWatt/internal/domain"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

// StatusSource is what the API reads node status from.
type StatusSource interface {
	Snapshot() []ports.NodeStatus
	NodeStatus(node domain.NodeID) (ports.NodeStatus, bool)
}

// RunInfo describes the current run for /healthz.
type RunInfo struct {
	RunID        string    `json:"run_id"`
	ExperimentID int       `json:"experiment_id"`
	StartedAt    time.Time `json:"started_at"`
}

type Handlers struct {
	source StatusSource
	info   RunInfo
}

// NewRouter serves /metrics, /healthz and the read-only node API.
func NewRouter(source StatusSource, info RunInfo) http.Handler {
	h := &Handlers{source: source, info: info}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.apiHealthCheck)
	r.Route("/api", func(r chi.Router) {
		r.Get("/nodes", h.apiListNodes)
		r.Get("/nodes/{node}", h.apiGetNode)
	})
	return r
}

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	active := 0
	for _, st := range h.source.Snapshot() {
		if st.State == "active" {
			active++
		}
	}
	h.jsonOK(w, map[string]any{
		"status":        "ok",
		"run_id":        h.info.RunID,
		"experiment_id": h.info.ExperimentID,
		"uptime_s":      int64(time.Since(h.info.StartedAt).Seconds()),
		"active_nodes":  active,
	})
}

func (h *Handlers) apiListNodes(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.source.Snapshot())
}

func (h *Handlers) apiGetNode(w http.ResponseWriter, r *http.Request) {
	node := domain.NodeID(chi.URLParam(r, "node"))
	st, ok := h.source.NodeStatus(node)
	if !ok {
		h.jsonError(w, "unknown node", http.StatusNotFound)
		return
	}
	h.jsonOK(w, st)
}

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
