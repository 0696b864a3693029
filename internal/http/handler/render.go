package handler

import (
	"encoding/json"
	"net/http"

	"docpress/internal/auth"
	"docpress/internal/jobs"

	"github.com/go-chi/chi/v5"
)

// RenderHandler owns the enqueue and requeue endpoints.
type RenderHandler struct {
	Enqueuer *jobs.Enqueuer
	Store    jobs.Store
}

// ownsPack loads the pack and checks the caller session. Writes the
// response on failure and returns nil.
func (h *RenderHandler) ownsPack(w http.ResponseWriter, r *http.Request, packID string) *jobs.Pack {
	sid, _ := auth.SessionIDFromContext(r.Context())

	pack, err := h.Store.GetPack(r.Context(), packID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return nil
	}
	if pack == nil || pack.SessionID != sid {
		// Same response for missing and foreign packs.
		http.Error(w, "not found", http.StatusNotFound)
		return nil
	}
	return pack
}

func (h *RenderHandler) EnqueueAll(w http.ResponseWriter, r *http.Request) {
	packID := chi.URLParam(r, "packID")
	if h.ownsPack(w, r, packID) == nil {
		return
	}

	res, err := h.Enqueuer.EnqueueAll(r.Context(), packID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(res)
}

func (h *RenderHandler) EnqueueOne(w http.ResponseWriter, r *http.Request) {
	packID := chi.URLParam(r, "packID")
	docID := chi.URLParam(r, "docID")
	if h.ownsPack(w, r, packID) == nil {
		return
	}

	job, err := h.Enqueuer.EnqueueOne(r.Context(), packID, docID)
	switch err {
	case nil, jobs.ErrPushFailed:
		// ErrPushFailed still created the job; the sweep re-pushes it.
	case jobs.ErrDocumentDisabled:
		http.Error(w, "DOCUMENT_DISABLED", http.StatusConflict)
		return
	default:
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"job_id": job.ID})
}

func (h *RenderHandler) RequeueJob(w http.ResponseWriter, r *http.Request) {
	sid, _ := auth.SessionIDFromContext(r.Context())
	jobID := chi.URLParam(r, "jobID")

	job, err := h.Store.GetJob(r.Context(), jobID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if job == nil || job.SessionID != sid {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch err := h.Enqueuer.RequeueFailed(r.Context(), jobID); err {
	case nil:
		w.WriteHeader(http.StatusNoContent)
	case jobs.ErrNotFailed:
		http.Error(w, "job is not failed", http.StatusConflict)
	case jobs.ErrPushFailed:
		// Row already reset to queued; sweep will push it.
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

func (h *RenderHandler) RequeueAllFailed(w http.ResponseWriter, r *http.Request) {
	packID := chi.URLParam(r, "packID")
	if h.ownsPack(w, r, packID) == nil {
		return
	}

	n, err := h.Enqueuer.RequeueAllFailed(r.Context(), packID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"requeued": n})
}
