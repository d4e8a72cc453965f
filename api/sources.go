package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/atlaslabs/newsbase/metadata"
	"github.com/atlaslabs/newsbase/worker"
)

type sourceRequest struct {
	Name           string   `json:"name"`
	URL            string   `json:"url"`
	Kind           string   `json:"kind"`
	CadenceSeconds int      `json:"cadence_seconds"`
	Active         bool     `json:"active"`
	AutoTags       []string `json:"auto_tags"`
}

func (h *handler) listSources(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	srcs, err := h.engine.Store.ListSourcesByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing sources failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sources": srcs})
}

func (h *handler) createSource(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	var req sourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.URL == "" || (req.Kind != "rss" && req.Kind != "web") {
		writeError(w, http.StatusBadRequest, "name, url, and kind (rss|web) are required")
		return
	}
	if req.CadenceSeconds <= 0 {
		req.CadenceSeconds = h.engine.SchedulerDefaultCadence()
	}

	id, err := h.engine.Store.UpsertSource(r.Context(), metadata.Source{
		UserID:         userID,
		Name:           req.Name,
		URL:            req.URL,
		Kind:           req.Kind,
		CadenceSeconds: req.CadenceSeconds,
		Active:         true,
		AutoTags:       req.AutoTags,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "creating source failed")
		return
	}

	src, err := h.engine.Store.GetSource(r.Context(), userID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "creating source failed")
		return
	}
	h.engine.RegisterSource(*src)

	writeJSON(w, http.StatusCreated, src)
}

func (h *handler) updateSource(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return
	}

	existing, err := h.engine.Store.GetSource(r.Context(), userID, id)
	if errors.Is(err, metadata.ErrNotFound) {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "fetching source failed")
		return
	}

	var req sourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated := metadata.Source{
		ID: id, UserID: userID,
		Name: req.Name, URL: req.URL, Kind: req.Kind,
		CadenceSeconds: req.CadenceSeconds, Active: req.Active, AutoTags: req.AutoTags,
	}
	if updated.Name == "" {
		updated.Name = existing.Name
	}
	if updated.URL == "" {
		updated.URL = existing.URL
	}
	if updated.Kind == "" {
		updated.Kind = existing.Kind
	}
	if updated.CadenceSeconds <= 0 {
		updated.CadenceSeconds = existing.CadenceSeconds
	}

	if _, err := h.engine.Store.UpsertSource(r.Context(), updated); err != nil {
		writeError(w, http.StatusInternalServerError, "updating source failed")
		return
	}

	if updated.Active {
		h.engine.RegisterSource(updated)
	} else {
		h.engine.UnregisterSource(id)
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteSource(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return
	}

	if err := h.engine.Store.DeleteSource(r.Context(), userID, id); err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "deleting source failed")
		return
	}
	h.engine.UnregisterSource(id)
	w.WriteHeader(http.StatusNoContent)
}

// pollSource submits an immediate poll of one source to the
// background executor rather than blocking the request on a network
// fetch (spec §6.1 "manual poll trigger returns 202 immediately").
func (h *handler) pollSource(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return
	}

	if _, err := h.engine.Store.GetSource(r.Context(), userID, id); err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "fetching source failed")
		return
	}

	err = h.engine.Pool.Submit(worker.Task{
		Kind:   worker.KindRunSchedulerJob,
		UserID: userID,
		Run: func(ctx context.Context) error {
			return h.engine.Poller.PollSource(ctx, userID, id)
		},
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "poll queue is full, try again shortly")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
