package api

import (
	"net/http"

	"github.com/atlaslabs/newsbase"
)

// handler holds the wired Engine every route dispatches against,
// mirroring bbiangul-go-reason/cmd/server/handlers.go's handler{engine}
// shape.
type handler struct {
	engine *newsbase.Engine
}

// Options configures the router (spec §6.1's cross-cutting concerns:
// auth token and CORS origin are collaborators supplied by the
// deployment, not this package).
type Options struct {
	APIKey        string
	AllowedOrigin string
}

// NewRouter builds the full HTTP surface over engine, wrapped in the
// recovery -> cors -> auth -> logging middleware chain.
func NewRouter(engine *newsbase.Engine, opts Options) http.Handler {
	h := &handler{engine: engine}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("POST /api/content/documents", h.createDocument)
	mux.HandleFunc("GET /api/content/documents", h.listDocuments)
	mux.HandleFunc("GET /api/content/documents/{id}", h.getDocument)
	mux.HandleFunc("PUT /api/content/documents/{id}", h.updateDocument)
	mux.HandleFunc("DELETE /api/content/documents/{id}", h.deleteDocument)
	mux.HandleFunc("POST /api/content/documents/upload/stream", h.uploadStream)

	mux.HandleFunc("POST /api/search/semantic", h.semanticSearch)
	mux.HandleFunc("POST /api/search/semantic/stream", h.semanticSearchStream)

	mux.HandleFunc("GET /api/sources", h.listSources)
	mux.HandleFunc("POST /api/sources", h.createSource)
	mux.HandleFunc("PUT /api/sources/{id}", h.updateSource)
	mux.HandleFunc("DELETE /api/sources/{id}", h.deleteSource)
	mux.HandleFunc("POST /api/sources/{id}/poll", h.pollSource)

	mux.HandleFunc("GET /api/analytics/keywords", h.topKeywords)
	mux.HandleFunc("GET /api/analytics/trending-queries", h.trendingQueries)

	var wrapped http.Handler = mux
	wrapped = logMiddleware(wrapped)
	wrapped = authMiddleware(opts.APIKey, wrapped)
	wrapped = corsMiddleware(opts.AllowedOrigin, wrapped)
	wrapped = recoveryMiddleware(wrapped)
	return wrapped
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
