package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddlewareRejectsMissingUserID(t *testing.T) {
	h := authMiddleware("", okHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/content/documents", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without X-User-Id, got %d", rec.Code)
	}
}

func TestAuthMiddlewareAcceptsUserIDAndSetsContext(t *testing.T) {
	var gotID int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = userIDFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := authMiddleware("", next)

	req := httptest.NewRequest(http.MethodGet, "/api/content/documents", nil)
	req.Header.Set("X-User-Id", "42")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotID != 42 {
		t.Errorf("expected user id 42 in context, got %d", gotID)
	}
}

func TestAuthMiddlewareRejectsWrongBearerToken(t *testing.T) {
	h := authMiddleware("secret", okHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/content/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	req.Header.Set("X-User-Id", "1")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong bearer token, got %d", rec.Code)
	}
}

func TestAuthMiddlewareBypassesHealthCheck(t *testing.T) {
	h := authMiddleware("secret", okHandler())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected /health to bypass auth, got %d", rec.Code)
	}
}

func TestCorsMiddlewareHandlesPreflight(t *testing.T) {
	h := corsMiddleware("https://example.com", okHandler())
	req := httptest.NewRequest(http.MethodOptions, "/api/content/documents", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for OPTIONS preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("expected CORS origin header, got %q", got)
	}
}
