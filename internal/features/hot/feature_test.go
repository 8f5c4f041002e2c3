package hot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/juju/clock/testclock"

	"hot-rank/internal/core"
	"hot-rank/internal/features/hot/models"
	"hot-rank/internal/features/hot/sources"
	"hot-rank/internal/scheduler"
)

type stubAdapter struct {
	id      string
	calls   atomic.Int32
	payload *models.SourcePayload
	err     error
}

func (s *stubAdapter) ID() string { return s.id }

func (s *stubAdapter) Fetch(context.Context) (*models.SourcePayload, error) {
	s.calls.Add(1)
	return s.payload, s.err
}

func testConfig() *Config {
	return &Config{
		FetchTimeout:     time.Second,
		RequestTimeout:   time.Second,
		CacheTTL:         time.Minute,
		CacheStale:       5 * time.Minute,
		Secondary:        core.SecondaryNone,
		SchedulerEnabled: false,
		Scheduler: scheduler.Config{
			RefreshInterval:        time.Minute,
			RetryInterval:          10 * time.Second,
			MaxConsecutiveFailures: 1,
			RunTimeout:             2 * time.Second,
		},
	}
}

func newTestFeature(t *testing.T, config *Config) (*Feature, *stubAdapter, *stubAdapter, http.Handler, *testclock.Clock) {
	t.Helper()

	weibo := &stubAdapter{id: "weibo", payload: &models.SourcePayload{
		Title: "微博",
		Link:  "https://s.weibo.com/top/summary",
		Data: []models.RawRow{
			{"id": "w1", "title": "first", "url": "https://s.weibo.com/1", "timestamp": "2026-03-01T01:00:00.000Z"},
			{"title": "second", "url": "https://s.weibo.com/2"},
		},
	}}
	zhihu := &stubAdapter{id: "zhihu", err: errors.New("zhihu is down")}

	clk := testclock.NewClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	feature, err := NewFeatureWithAdapters(context.Background(), core.NewDiscardLogger(), config,
		map[string]sources.Adapter{"weibo": weibo, "zhihu": zhihu}, clk)
	if err != nil {
		t.Fatalf("NewFeatureWithAdapters failed: %v", err)
	}
	t.Cleanup(func() { _ = feature.Shutdown(context.Background()) })

	r := chi.NewRouter()
	for _, route := range feature.Routes() {
		r.Method(route.Method, route.Path, route.Handler)
	}
	return feature, weibo, zhihu, r, clk
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func TestSourcesRoute(t *testing.T) {
	_, _, _, h, _ := newTestFeature(t, testConfig())

	rec := get(t, h, "/api/v1/sources")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[envelope[[]models.SourceDefinition]](t, rec)
	if body.Code != 200 || len(body.Data) != 2 || body.Data[0].ID != "weibo" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestFeedRoute(t *testing.T) {
	_, weibo, _, h, _ := newTestFeature(t, testConfig())

	rec := get(t, h, "/api/v1/hot/weibo?limit=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decode[envelope[models.HotFeed]](t, rec)
	if body.Data.Total != 1 || body.Data.Items[0].ID != "w1" || body.Data.FromCache {
		t.Errorf("unexpected feed: %+v", body.Data)
	}

	rec = get(t, h, "/api/v1/hot/weibo?limit=abc")
	body = decode[envelope[models.HotFeed]](t, rec)
	if body.Data.Total != 2 || !body.Data.FromCache {
		t.Errorf("invalid limit should be ignored: %+v", body.Data)
	}

	get(t, h, "/api/v1/hot/weibo?cache=false")
	if got := weibo.calls.Load(); got != 2 {
		t.Errorf("cache=false should fetch again, got %d fetches", got)
	}
}

func TestFeedRouteErrors(t *testing.T) {
	_, _, _, h, _ := newTestFeature(t, testConfig())

	rec := get(t, h, "/api/v1/hot/myspace")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown source status = %d", rec.Code)
	}
	if body := decode[core.ErrorResponse](t, rec); body.Code != http.StatusNotFound {
		t.Errorf("error body code = %d", body.Code)
	}

	rec = get(t, h, "/api/v1/hot/zhihu")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("failing source status = %d", rec.Code)
	}
}

func TestAggregateRoute(t *testing.T) {
	_, _, _, h, _ := newTestFeature(t, testConfig())

	rec := get(t, h, "/api/v1/hot/aggregate?sources=weibo,zhihu&limit=0")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decode[envelope[models.AggregateHotData]](t, rec)
	if len(body.Data.FailedSources) != 1 || body.Data.FailedSources[0] != "zhihu" {
		t.Errorf("failedSources = %v", body.Data.FailedSources)
	}
	if body.Data.Total != 2 || body.Data.Items[0].ID != "w1" {
		t.Errorf("unexpected items: %+v", body.Data.Items)
	}

	rec = get(t, h, "/api/v1/hot/aggregate?sources=nope")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty candidate set status = %d", rec.Code)
	}
}

func TestCompatRoutes(t *testing.T) {
	_, _, _, h, _ := newTestFeature(t, testConfig())

	rec := get(t, h, "/all")
	routes := decode[struct {
		Code   int `json:"code"`
		Count  int `json:"count"`
		Routes []models.CompatRoute
	}](t, rec)
	if routes.Code != 200 || routes.Count != len(models.SourceIDs()) || len(routes.Routes) != routes.Count {
		t.Errorf("unexpected /all body: %+v", routes)
	}

	rec = get(t, h, "/weibo?limit=1")
	feed := decode[struct {
		Code   int    `json:"code"`
		Source string `json:"source"`
		Total  int    `json:"total"`
	}](t, rec)
	if feed.Code != 200 || feed.Source != "weibo" || feed.Total != 1 {
		t.Errorf("unexpected compat feed: %+v", feed)
	}

	rec = get(t, h, "/weibo?rss=true")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("content type = %q", ct)
	}
	xml := rec.Body.String()
	for _, want := range []string{"<rss", "<title>微博</title>", "<title>first</title>", "https://s.weibo.com/1"} {
		if !strings.Contains(xml, want) {
			t.Errorf("rss missing %q:\n%s", want, xml)
		}
	}
}

func TestSchedulerWarmsCacheAndReportsGiveUp(t *testing.T) {
	config := testConfig()
	config.SchedulerEnabled = true
	feature, weibo, _, h, clk := newTestFeature(t, config)

	if err := feature.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	// the initial runs are staged without startup jitter
	clk.Advance(time.Millisecond)

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, degraded := feature.Health(context.Background())
		if degraded && weibo.calls.Load() == 1 {
			if st, ok := feature.scheduler.State("weibo"); ok && st.TotalRefreshes == 1 {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("scheduler did not run: %+v", feature.scheduler.Snapshot())
		}
		time.Sleep(5 * time.Millisecond)
	}

	body := decode[envelope[models.HotFeed]](t, get(t, h, "/api/v1/hot/weibo"))
	if !body.Data.FromCache || weibo.calls.Load() != 1 {
		t.Errorf("expected a warm cache hit, fromCache=%v fetches=%d", body.Data.FromCache, weibo.calls.Load())
	}

	report, _ := feature.Health(context.Background())
	sections, ok := report.(map[string]any)
	if !ok || sections["cache"] == nil || sections["scheduler"] == nil {
		t.Errorf("unexpected health report: %#v", report)
	}
}
