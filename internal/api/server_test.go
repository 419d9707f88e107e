package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jobradar/lmi/internal/job"
	"github.com/jobradar/lmi/internal/rag"
)

func newTestServer(t *testing.T, cfg ServerConfig) *httptest.Server {
	t.Helper()

	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = &stubAnalyzer{report: &rag.SkillReport{Summary: "ok"}, trending: &rag.TrendingReport{}}
	}
	if cfg.Store == nil {
		cfg.Store = &stubJobStore{stats: &job.Stats{}}
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 1000
	}
	cfg.Version = "test"

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestServer_Routes(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodPost, "/api/v1/analyze", `{"query": "golang"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/analyze", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/trending", "", http.StatusOK},
		{http.MethodGet, "/api/v1/jobs/search?query=x", "", http.StatusOK},
		{http.MethodGet, "/api/v1/stats", "", http.StatusOK},
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/ready", "", http.StatusOK},
		{http.MethodGet, "/api/v1/nope", "", http.StatusNotFound},
		// Ingest endpoint is absent when no Ingester is configured.
		{http.MethodPost, "/api/v1/ingest", `{"search_terms": ["x"]}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		req, err := http.NewRequest(tt.method, ts.URL+tt.path, strings.NewReader(tt.body))
		if err != nil {
			t.Fatalf("building request: %v", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s failed: %v", tt.method, tt.path, err)
		}
		resp.Body.Close()

		if resp.StatusCode != tt.want {
			t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestServer_SecurityAndRequestIDHeaders(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})

	resp, err := http.Get(ts.URL + "/api/v1/trending")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID missing")
	}
	if resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}
}

func TestServer_HealthBypassesMiddleware(t *testing.T) {
	ts := newTestServer(t, ServerConfig{RateBurst: 1})

	// Burst of 1 exhausts the API limiter after one request, but health
	// probes are unaffected.
	resp, err := http.Get(ts.URL + "/api/v1/trending")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	for range 5 {
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("health request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("health status = %d during rate limiting", resp.StatusCode)
		}
	}
}

func TestServer_IngestRouteWhenConfigured(t *testing.T) {
	ts := newTestServer(t, ServerConfig{Ingest: &stubIngester{stats: nil, err: nil}})

	resp, err := http.Post(ts.URL+"/api/v1/ingest", "application/json",
		strings.NewReader(`{"search_terms": ["golang"]}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	// Stub returns nil stats with no error; the envelope still reports success.
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var env decodedEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if !env.Success {
		t.Error("success = false")
	}
}
