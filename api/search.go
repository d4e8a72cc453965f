package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/atlaslabs/newsbase/metadata"
	"github.com/atlaslabs/newsbase/search"
	"github.com/atlaslabs/newsbase/sse"
)

type searchRequest struct {
	Query           string   `json:"query"`
	Limit           int      `json:"limit"`
	IncludeExternal bool     `json:"include_external"`
	Summarize       bool     `json:"summarize"`
	SourceType      string   `json:"source_type"`
	TagsAny         []string `json:"tags_any"`
}

func (req searchRequest) toOptions(userID int64) search.Options {
	return search.Options{
		UserID:          userID,
		Query:           req.Query,
		Limit:           req.Limit,
		IncludeExternal: req.IncludeExternal,
		Summarize:       req.Summarize,
		Filter: metadata.Filter{
			SourceType: req.SourceType,
			TagsAny:    req.TagsAny,
		},
	}
}

// semanticSearch runs the retrieval pipeline and returns the final
// Response as one JSON body, discarding intermediate progress events
// (spec §6.1 "blocking variant").
func (h *handler) semanticSearch(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	requestID := uuid.NewString()
	resp, err := h.engine.Search.Run(r.Context(), req.toOptions(userID), requestID, sse.Discard{})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// semanticSearchStream runs the same pipeline over an SSE connection,
// forwarding every stage event to the client as it happens (spec
// §6.1 "streaming variant", §6.3 protocol).
func (h *handler) semanticSearchStream(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sink, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	requestID := uuid.NewString()
	if _, err := h.engine.Search.Run(r.Context(), req.toOptions(userID), requestID, sink); err != nil {
		// Headers are already committed to 200 by sse.NewWriter; Run has
		// already sent an sse error event for the client, this is just
		// for server-side visibility.
		slog.Warn("search: streaming pipeline failed", "request_id", requestID, "error", err)
	}
}
