package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"docpress/internal/auth"
	"docpress/internal/jobs"
	"docpress/internal/status"

	"github.com/go-chi/chi/v5"
)

// StatusHandler serves the pack listing and download resolution.
type StatusHandler struct {
	Resolver   *status.Resolver
	Store      jobs.Store
	PresignTTL time.Duration
}

func (h *StatusHandler) ListPackDocuments(w http.ResponseWriter, r *http.Request) {
	sid, _ := auth.SessionIDFromContext(r.Context())
	packID := chi.URLParam(r, "packID")

	pack, err := h.Store.GetPack(r.Context(), packID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if pack == nil || pack.SessionID != sid {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	docs, err := h.Resolver.ListPackDocuments(r.Context(), packID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"documents": docs})
}

func (h *StatusHandler) ResolveDownload(w http.ResponseWriter, r *http.Request) {
	sid, _ := auth.SessionIDFromContext(r.Context())
	fileID := chi.URLParam(r, "fileID")

	url, err := h.Resolver.ResolveDownload(r.Context(), fileID, sid)
	switch err {
	case nil:
	case jobs.ErrNotFound, status.ErrForbidden:
		// Foreign files look missing, same as packs.
		http.Error(w, "not found", http.StatusNotFound)
		return
	default:
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"url":        url,
		"expires_in": int(h.PresignTTL.Seconds()),
	})
}
