package api

import (
	"net/http"
	"strconv"
	"time"
)

func (h *handler) topKeywords(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	n := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("n")); err == nil && v > 0 {
		n = v
	}

	tags, err := h.engine.Store.TopTags(r.Context(), userID, n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "computing top keywords failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"keywords": tags})
}

func (h *handler) trendingQueries(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	n := 10
	if v, err := strconv.Atoi(r.URL.Query().Get("n")); err == nil && v > 0 {
		n = v
	}
	window := 7 * 24 * time.Hour
	if v, err := strconv.Atoi(r.URL.Query().Get("window_days")); err == nil && v > 0 {
		window = time.Duration(v) * 24 * time.Hour
	}

	trending, err := h.engine.Store.TrendingQueries(r.Context(), userID, window, n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "computing trending queries failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trending_queries": trending})
}
