// Package api exposes the engine's core operations over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/cortexmem/cortex/internal/api/recovery"
	"github.com/cortexmem/cortex/internal/api/respond"
	"github.com/cortexmem/cortex/internal/decay"
	"github.com/cortexmem/cortex/internal/engine"
	"github.com/cortexmem/cortex/internal/model"
)

// Handler wires engine operations to routes.
type Handler struct {
	eng     *engine.Engine
	worker  *decay.Worker
	healthy func() bool
}

// NewHandler builds the HTTP handler set. healthy may be nil (always up).
func NewHandler(eng *engine.Engine, worker *decay.Worker, healthy func() bool) *Handler {
	return &Handler{eng: eng, worker: worker, healthy: healthy}
}

// Router assembles the service router with recovery middleware.
func (h *Handler) Router() *mux.Router {
	root := mux.NewRouter()
	root.Use(recovery.Middleware)

	root.HandleFunc("/api/memories", h.Add).Methods("POST")
	root.HandleFunc("/api/memories", h.List).Methods("GET")
	root.HandleFunc("/api/memories/query", h.Query).Methods("POST")
	root.HandleFunc("/api/memories/{id}", h.Get).Methods("GET")
	root.HandleFunc("/api/memories/{id}", h.Delete).Methods("DELETE")
	root.HandleFunc("/api/memories/{id}/reinforce", h.Reinforce).Methods("POST")
	root.HandleFunc("/api/stats", h.Stats).Methods("GET")
	root.HandleFunc("/api/decay/run", h.DecayRun).Methods("POST")
	root.HandleFunc("/api/health", h.Health).Methods("GET")
	return root
}

// Add POST /api/memories
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	var req model.AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON")
		return
	}
	out, err := h.eng.Add(r.Context(), req)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, out)
}

// Query POST /api/memories/query
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req model.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON")
		return
	}
	out, err := h.eng.Query(r.Context(), req)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	if out == nil {
		out = []*model.QueryResult{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"results": out, "count": len(out)})
}

// List GET /api/memories
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := model.ListRequest{
		UserID: q.Get("userId"),
		Sector: model.Sector(q.Get("sector")),
		Tag:    q.Get("tag"),
		Cursor: q.Get("cursor"),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			respond.WriteBadRequest(w, "invalid limit")
			return
		}
		req.Limit = n
	}
	page, err := h.eng.List(r.Context(), req)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	if page.Memories == nil {
		page.Memories = []*model.Memory{}
	}
	respond.WriteJSON(w, http.StatusOK, page)
}

// Get GET /api/memories/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.eng.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, m)
}

// Delete DELETE /api/memories/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Reinforce POST /api/memories/{id}/reinforce
func (h *Handler) Reinforce(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta *float64 `json:"delta,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.WriteBadRequest(w, "invalid JSON")
			return
		}
	}
	salience, err := h.eng.Reinforce(r.Context(), mux.Vars(r)["id"], req.Delta)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]float64{"salience": salience})
}

// Stats GET /api/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.eng.Stats(r.Context())
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, st)
}

// DecayRun POST /api/decay/run triggers an on-demand decay sweep.
func (h *Handler) DecayRun(w http.ResponseWriter, r *http.Request) {
	if h.worker == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "decay worker not running")
		return
	}
	if err := h.worker.RunOnce(r.Context()); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	decayRun, pruneRun := h.worker.LastRuns()
	respond.WriteJSON(w, http.StatusOK, map[string]int64{"decayLastRun": decayRun, "pruneLastRun": pruneRun})
}

// Health GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.healthy != nil && !h.healthy() {
		respond.WriteError(w, http.StatusServiceUnavailable, "dependencies unhealthy")
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
