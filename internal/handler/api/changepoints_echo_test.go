package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"BrentShift/internal/domain/models"
	"BrentShift/internal/repository"
	"BrentShift/internal/service/ratelimit"
	"BrentShift/internal/services/changepoint"
	"BrentShift/internal/services/events"
	"BrentShift/internal/usecase"
	xhttp "BrentShift/pkg/http"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type stubQueue struct{ n int }

func (q *stubQueue) Enqueue(context.Context, string, any) (string, error) {
	q.n++
	return "msg", nil
}

func testPrices() []models.PricePoint {
	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	out := []models.PricePoint{{Date: day, Price: 50}}
	for i := 0; i < 120; i++ {
		mu := 0.0
		if i >= 60 {
			mu = 0.02
		}
		r := mu + 0.01
		if i%2 == 1 {
			r = mu - 0.01
		}
		prev := out[len(out)-1]
		out = append(out, models.PricePoint{Date: prev.Date.AddDate(0, 0, 1), Price: prev.Price * math.Exp(r)})
	}
	return out
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter, opts ...usecase.AnalysisOption) *xhttp.Server {
	t.Helper()
	prices := repository.NewMemoryPriceStore()
	if err := prices.StorePrices(context.Background(), "brent", testPrices()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	evs := repository.NewMemoryEventStore(events.Catalog())
	results := repository.NewMemoryResultStore()

	cfg := changepoint.DefaultConfig()
	cfg.Iterations, cfg.BurnIn, cfg.Chains, cfg.Seed = 3000, 1000, 2, 5
	cfg.Steps = changepoint.StepSizes{Mu: 0.002, Sigma: 0.002, Tau: 5}
	seg := changepoint.DefaultSegmentationConfig()
	seg.Enabled = false
	settings := usecase.EngineSettings{
		Sampler:       cfg,
		Model:         changepoint.KindFull,
		Priors:        changepoint.DefaultPriors(),
		Segmentation:  seg,
		ToleranceDays: 30,
	}

	svc := usecase.NewAnalysisService(prices, evs, results, events.NewAssociator(), nil, settings, nil, opts...)
	h := NewChangePointsHandler(nil, usecase.NewDashboard(prices, evs, results), svc, limiter)
	reg := prometheus.NewRegistry()
	return xhttp.NewServer(nil, []xhttp.Handler{h}, xhttp.WithMetrics("/metrics", reg, reg))
}

func do(t *testing.T, srv *xhttp.Server, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func TestDashboardEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	if rec, _ := do(t, srv, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	rec, env := do(t, srv, http.MethodGet, "/api/prices?series=brent&start_date=2020-01-02&end_date=2020-01-11", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("prices: %d %s", rec.Code, rec.Body.String())
	}
	var list struct {
		Rows  []models.PricePoint `json:"rows"`
		Total int64               `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil || list.Total != 10 || len(list.Rows) != 10 {
		t.Fatalf("unexpected price list %+v %v", list, err)
	}

	if rec, _ := do(t, srv, http.MethodGet, "/api/prices?start_date=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date should be 400, got %d", rec.Code)
	}

	rec, env = do(t, srv, http.MethodGet, "/api/events", "")
	if err := json.Unmarshal(env.Data, &list); rec.Code != http.StatusOK || err != nil || int(list.Total) != len(events.Catalog()) {
		t.Fatalf("events: %d total=%d %v", rec.Code, list.Total, err)
	}

	if rec, _ := do(t, srv, http.MethodGet, "/api/changepoints?series=brent", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("changepoints before analysis should be 404, got %d", rec.Code)
	}
	if rec, _ := do(t, srv, http.MethodGet, "/api/summary?series=brent", ""); rec.Code != http.StatusOK {
		t.Fatalf("summary: %d", rec.Code)
	}
	if rec, _ := do(t, srv, http.MethodGet, "/api/summary?series=wti", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown series summary should be 404, got %d", rec.Code)
	}
}

func TestSubmitAnalysisInline(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, env := do(t, srv, http.MethodPost, "/api/analyses", `{"series":"brent"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}
	var res models.AnalysisResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != models.AnalysisCompleted || len(res.ChangePoints) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	if rec, _ := do(t, srv, http.MethodGet, "/api/analyses/"+res.ID, ""); rec.Code != http.StatusOK {
		t.Fatalf("get analysis: %d", rec.Code)
	}
	if rec, _ := do(t, srv, http.MethodGet, "/api/analyses/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing analysis should be 404, got %d", rec.Code)
	}
	if rec, _ := do(t, srv, http.MethodGet, "/api/changepoints?series=brent", ""); rec.Code != http.StatusOK {
		t.Fatalf("changepoints after analysis: %d", rec.Code)
	}

	if rec, _ := do(t, srv, http.MethodPost, "/api/analyses", `{"series":"wti"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("series without prices should be 422, got %d", rec.Code)
	}
	if rec, _ := do(t, srv, http.MethodPost, "/api/analyses", `{"series":"brent","model":"garch"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown model should be 400, got %d", rec.Code)
	}

	rec, _ = do(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "brentshift_http_requests_total") {
		t.Fatalf("metrics endpoint missing request counter")
	}
}

func TestSubmitAnalysisQueued(t *testing.T) {
	q := &stubQueue{}
	srv := newTestServer(t, nil, usecase.WithQueue(q))

	rec, env := do(t, srv, http.MethodPost, "/api/analyses", `{"series":"brent"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("queued submit should be 202, got %d", rec.Code)
	}
	var res models.AnalysisResult
	if err := json.Unmarshal(env.Data, &res); err != nil || res.ID == "" || res.Status != models.AnalysisPending {
		t.Fatalf("unexpected pending record %+v %v", res, err)
	}
	if q.n != 1 {
		t.Fatalf("expected one enqueued job, got %d", q.n)
	}
	if rec, _ := do(t, srv, http.MethodGet, "/api/analyses/"+res.ID, ""); rec.Code != http.StatusOK {
		t.Fatalf("pending analysis should be readable, got %d", rec.Code)
	}
}

func TestSubmitAnalysisRateLimited(t *testing.T) {
	srv := newTestServer(t, ratelimit.New(1, 0), usecase.WithQueue(&stubQueue{}))

	if rec, _ := do(t, srv, http.MethodPost, "/api/analyses", `{"series":"brent"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("first submit: %d", rec.Code)
	}
	if rec, _ := do(t, srv, http.MethodPost, "/api/analyses", `{"series":"brent"}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second submit should be 429, got %d", rec.Code)
	}
}
