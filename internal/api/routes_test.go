package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/partsflow/storefront/backend/internal/cache"
	"github.com/partsflow/storefront/backend/internal/circuitbreaker"
	"github.com/partsflow/storefront/backend/internal/config"
	"github.com/partsflow/storefront/backend/internal/documentstore"
	"github.com/partsflow/storefront/backend/internal/kvstore"
	"github.com/partsflow/storefront/backend/internal/orchestrator"
	"github.com/partsflow/storefront/backend/internal/repository"
	"github.com/partsflow/storefront/backend/internal/warmer"
)

func newTestRouter(t *testing.T) (http.Handler, *documentstore.Memory) {
	t.Helper()
	cfg := &config.Config{
		WarmInterval:      5 * time.Minute,
		WarmProductLimit:  200,
		WarmCategoryLimit: 50,
		WarmSearchTerms:   []string{"brake"},
		CleanupMaxKeys:    10000,
		CleanupInterval:   10 * time.Minute,
	}
	docs := documentstore.NewMemory()
	kv := kvstore.NewMemory()
	cb := circuitbreaker.New(circuitbreaker.Config{
		Name:             "api-test-" + t.Name(),
		FailureThreshold: 1,
		Timeout:          time.Hour,
	})
	c := cache.New(kv, cb)
	repo := repository.New(c, docs, nil)
	w := warmer.New(repo, cfg)
	o, err := orchestrator.New(c, repo, w, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Close)
	return NewRouter(o, w), docs
}

func setAdminToken(t *testing.T, token string) {
	t.Helper()
	os.Setenv("ADMIN_API_TOKEN", token)
	config.Reset()
	t.Cleanup(func() {
		os.Unsetenv("ADMIN_API_TOKEN")
		config.Reset()
	})
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestAdminAuthMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		adminToken     string
		authHeader     string
		expectedStatus int
	}{
		{
			name:           "valid token",
			adminToken:     "test-admin-token-123",
			authHeader:     "Bearer test-admin-token-123",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid token",
			adminToken:     "test-admin-token-123",
			authHeader:     "Bearer wrong-token",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "missing header",
			adminToken:     "test-admin-token-123",
			authHeader:     "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "malformed bearer token",
			adminToken:     "test-admin-token-123",
			authHeader:     "Bearertest-admin-token-123",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong auth scheme",
			adminToken:     "test-admin-token-123",
			authHeader:     "Basic dGVzdDp0ZXN0",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "admin token not configured",
			adminToken:     "",
			authHeader:     "Bearer test-admin-token-123",
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setAdminToken(t, tt.adminToken)
			router, _ := newTestRouter(t)

			req := httptest.NewRequest("GET", "/api/admin/cache/stats", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
		})
	}
}

func TestInvalidateEndpoint(t *testing.T) {
	setAdminToken(t, "tok")
	router, _ := newTestRouter(t)

	do := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/admin/cache/invalidate", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer tok")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	if rr := do(`{"entityType":"product","id":"P-1"}`); rr.Code != http.StatusOK {
		t.Errorf("valid invalidation: status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if rr := do(`{"entityType":"widget","id":"X"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("unknown entity type: status = %d", rr.Code)
	}
	if rr := do(`{"entityType":"product"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("missing id: status = %d", rr.Code)
	}
	if rr := do(`not-json`); rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d", rr.Code)
	}
}

func TestWarmEndpoint(t *testing.T) {
	setAdminToken(t, "tok")
	router, _ := newTestRouter(t)

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", path, nil)
		req.Header.Set("Authorization", "Bearer tok")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	if rr := do("/api/admin/cache/warm"); rr.Code != http.StatusOK {
		t.Fatalf("first warm: status = %d, body = %s", rr.Code, rr.Body.String())
	}
	// Immediately repeated: throttled.
	if rr := do("/api/admin/cache/warm"); rr.Code != http.StatusConflict {
		t.Errorf("throttled warm: status = %d", rr.Code)
	}
	// Forced: runs.
	if rr := do("/api/admin/cache/warm?force=true"); rr.Code != http.StatusOK {
		t.Errorf("forced warm: status = %d", rr.Code)
	}
}

func TestPrewarmProductEndpoint(t *testing.T) {
	router, docs := newTestRouter(t)

	doc := documentstore.Document{"id": "P-1", "name": "Brake Pad", "active": true}
	if err := docs.Insert(context.Background(), documentstore.CollectionProducts, "P-1", doc); err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/prewarm/product/P-1", nil))
	if rr.Code != http.StatusAccepted {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/health", nil))
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("response is missing X-Request-ID")
	}

	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "upstream-id" {
		t.Errorf("upstream request id not honored: %q", got)
	}
}
