package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atlaslabs/newsbase/ingest"
	"github.com/atlaslabs/newsbase/metadata"
	"github.com/atlaslabs/newsbase/worker"
)

// createDocumentRequest is the body of POST /api/content/documents
// (spec §6.1's "manual document creation").
type createDocumentRequest struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Summary   string   `json:"summary"`
	SourceURL string   `json:"source_url"`
	Tags      []string `json:"tags"`
}

func (h *handler) createDocument(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	var req createDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	docID, err := h.engine.Ingest.Ingest(r.Context(), ingest.Candidate{
		UserID:     userID,
		Title:      req.Title,
		Content:    req.Content,
		Summary:    req.Summary,
		SourceURL:  req.SourceURL,
		SourceType: "manual",
		Tags:       req.Tags,
	})
	if errors.Is(err, ingest.ErrDuplicate) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "duplicate document", "document_id": docID})
		return
	}
	if errors.Is(err, worker.ErrQueueFull) {
		writeBackpressure(w)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"document_id": docID})
}

// maxPerPage caps listDocuments' per_page parameter (spec §6.1).
const maxPerPage = 100

func (h *handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	q := r.URL.Query()

	filter := metadata.Filter{
		SourceType: q.Get("source_type"),
		TextLike:   q.Get("search"),
	}
	if tags := q.Get("tags"); tags != "" {
		filter.TagsAny = strings.Split(tags, ",")
	}
	if from := q.Get("date_from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.DateFrom = &t
		}
	}
	if to := q.Get("date_to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.DateTo = &t
		}
	}

	perPage := 50
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 {
		perPage = v
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	pageNum := 1
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		pageNum = v
	}
	page := metadata.Page{Limit: perPage, Offset: (pageNum - 1) * perPage}

	docs, err := h.engine.Store.ListDocuments(r.Context(), userID, filter, page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing documents failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "count": len(docs)})
}

func (h *handler) getDocument(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	docID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := h.engine.Store.GetDocument(r.Context(), userID, docID)
	if errors.Is(err, metadata.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "fetching document failed")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type updateDocumentRequest struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

func (h *handler) updateDocument(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	docID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	var req updateDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.Store.UpdateMutableFields(r.Context(), userID, docID, req.Summary, req.Tags); err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "updating document failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	docID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	if err := h.engine.Ingest.Delete(r.Context(), userID, docID); err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "deleting document failed")
		return
	}
	// Delete only begins eviction synchronously; vector cleanup finishes
	// asynchronously on the worker pool, so this is accepted, not done.
	w.WriteHeader(http.StatusAccepted)
}
