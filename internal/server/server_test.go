package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hot-rank/internal/core"
)

type fakeFeature struct {
	*core.BaseFeature
	degraded bool
}

func (f *fakeFeature) Routes() []core.Route {
	ok := func(w http.ResponseWriter, r *http.Request) { core.WriteJSON(w, "pong") }
	return []core.Route{
		{Method: "GET", Path: "/api/v1/ping", Handler: ok},
		{Method: "GET", Path: "/api/v1/heavy", Handler: ok, Limiter: LimiterAggregate},
	}
}

func (f *fakeFeature) Health(context.Context) (any, bool) {
	return map[string]any{"scheduler": map[string]any{"sources": []string{}}}, f.degraded
}

func newTestServer(t *testing.T, degraded bool) http.Handler {
	t.Helper()
	logger := core.NewDiscardLogger()
	registry := core.NewRegistry(logger)
	feature := &fakeFeature{BaseFeature: core.NewBaseFeature("fake", "test feature", true, logger), degraded: degraded}
	if err := registry.Register(feature); err != nil {
		t.Fatal(err)
	}

	config := &core.Config{
		Server:    core.ServerConfig{Host: "127.0.0.1", Port: 0, CORSOrigin: "*", MetricsEnabled: true},
		RateLimit: core.RateLimitConfig{WindowMs: 60000, Max: 3, AggregateMax: 1},
	}
	return New(config, logger, registry).Handler()
}

func do(h http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	for _, degraded := range []bool{false, true} {
		rec := do(newTestServer(t, degraded), http.MethodGet, "/healthz", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		want := "ok"
		if degraded {
			want = "degraded"
		}
		if body["status"] != want || body["scheduler"] == nil || body["features"] == nil {
			t.Errorf("unexpected health body: %v", body)
		}
	}
}

func TestRateLimitBuckets(t *testing.T) {
	h := newTestServer(t, false)

	if rec := do(h, http.MethodGet, "/api/v1/heavy", nil); rec.Code != http.StatusOK {
		t.Fatalf("first aggregate request status = %d", rec.Code)
	}
	rec := do(h, http.MethodGet, "/api/v1/heavy", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second aggregate request status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	var body core.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Code != http.StatusTooManyRequests {
		t.Errorf("unexpected error body %s", rec.Body.String())
	}

	// the default bucket is separate
	for i := 0; i < 3; i++ {
		if rec := do(h, http.MethodGet, "/api/v1/ping", nil); rec.Code != http.StatusOK {
			t.Fatalf("ping %d status = %d", i, rec.Code)
		}
	}
	if rec := do(h, http.MethodGet, "/api/v1/ping", nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("fourth ping status = %d", rec.Code)
	}

	// another client has its own budget
	if rec := do(h, http.MethodGet, "/api/v1/ping", map[string]string{"X-Real-IP": "203.0.113.9"}); rec.Code != http.StatusOK {
		t.Errorf("other client status = %d", rec.Code)
	}
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 1)
	now := time.Now()
	rl.allow("a", now)
	rl.allow("b", now.Add(2*time.Minute))

	rl.sweep(now.Add(150 * time.Second))
	if _, ok := rl.limiters["a"]; ok {
		t.Error("idle client should be swept")
	}
	if _, ok := rl.limiters["b"]; !ok {
		t.Error("recent client should be kept")
	}
}

func TestCORSAndFallbacks(t *testing.T) {
	h := newTestServer(t, false)

	rec := do(h, http.MethodOptions, "/api/v1/ping", map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": "GET",
	})
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight: %d %v", rec.Code, rec.Header())
	}

	rec = do(h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("metrics status = %d", rec.Code)
	}

	rec = do(h, http.MethodGet, "/api/v1/missing/deeper", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d", rec.Code)
	}
}
