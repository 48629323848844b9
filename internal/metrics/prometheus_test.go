package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_MiddlewareUsesRoutePattern(t *testing.T) {
	m := New(&fakeSource{snap: testSnapshot()})

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Post("/v1/providers/{id}/enable", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/providers/"+id+"/enable", nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, "/v1/providers/{id}/enable", "404"))
	if got != 3 {
		t.Errorf("requests counter = %v, want 3", got)
	}
	if n := testutil.CollectAndCount(m.requests); n != 1 {
		t.Errorf("series = %d, want 1 (ids must not become labels)", n)
	}
	if v := testutil.ToFloat64(m.inFlight); v != 0 {
		t.Errorf("in-flight after requests = %v, want 0", v)
	}
}

func TestMetrics_DefaultStatusIsOK(t *testing.T) {
	m := New(&fakeSource{})

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/health", "200")); got != 1 {
		t.Errorf("requests{status=200} = %v, want 1", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New(&fakeSource{snap: testSnapshot()})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`llmgate_provider_health_score{provider="openai"} 50`,
		"llmgate_cache_hits_total 7",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
