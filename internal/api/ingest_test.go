package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jobradar/lmi/internal/ingest"
)

// stubIngester is a canned Ingester. block, when set, holds Run until
// released so tests can observe the in-progress guard.
type stubIngester struct {
	stats *ingest.Stats
	err   error
	block chan struct{}

	mu        sync.Mutex
	lastTerms []string
	lastMax   int
}

func (s *stubIngester) Run(_ context.Context, terms []string, _ string, maxPerSource int) (*ingest.Stats, error) {
	s.mu.Lock()
	s.lastTerms = terms
	s.lastMax = maxPerSource
	s.mu.Unlock()

	if s.block != nil {
		<-s.block
	}
	return s.stats, s.err
}

func newIngestHandler(stub *stubIngester) *ingestHandler {
	return &ingestHandler{service: stub, logger: discardLogger()}
}

func TestIngestTrigger(t *testing.T) {
	stub := &stubIngester{stats: &ingest.Stats{JobsFetched: 5, JobsNew: 3, ChunksCreated: 12}}
	h := newIngestHandler(stub)

	w := postJSON(t, h.trigger, `{"search_terms": ["golang", " machine learning "], "max_jobs": 25}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	var stats ingest.Stats
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &stats); err != nil {
		t.Fatalf("data: %v", err)
	}
	if stats.JobsNew != 3 {
		t.Errorf("stats = %+v", stats)
	}

	if len(stub.lastTerms) != 2 || stub.lastTerms[1] != "machine learning" {
		t.Errorf("terms = %v, want trimmed", stub.lastTerms)
	}
	if stub.lastMax != 25 {
		t.Errorf("maxPerSource = %d, want 25", stub.lastMax)
	}
}

func TestIngestTrigger_Validation(t *testing.T) {
	terms := `["a","b","c","d","e","f","g","h","i","j","k"]`
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{"search_terms": `, "invalid_request"},
		{"no terms", `{"search_terms": []}`, "missing_search_terms"},
		{"blank terms", `{"search_terms": ["  ", ""]}`, "missing_search_terms"},
		{"too many terms", `{"search_terms": ` + terms + `}`, "too_many_search_terms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newIngestHandler(&stubIngester{})
			w := postJSON(t, h.trigger, tt.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			env := decodeEnvelope(t, w)
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %q", env.Error, tt.wantCode)
			}
		})
	}
}

func TestIngestTrigger_ClampsMaxJobs(t *testing.T) {
	tests := []struct {
		body string
		want int
	}{
		{`{"search_terms": ["golang"]}`, defaultMaxPerSource},
		{`{"search_terms": ["golang"], "max_jobs": -1}`, defaultMaxPerSource},
		{`{"search_terms": ["golang"], "max_jobs": 500}`, ingestMaxPerSource},
	}

	for _, tt := range tests {
		stub := &stubIngester{stats: &ingest.Stats{}}
		h := newIngestHandler(stub)

		if w := postJSON(t, h.trigger, tt.body); w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if stub.lastMax != tt.want {
			t.Errorf("body %s: maxPerSource = %d, want %d", tt.body, stub.lastMax, tt.want)
		}
	}
}

func TestIngestTrigger_RejectsConcurrentRuns(t *testing.T) {
	block := make(chan struct{})
	stub := &stubIngester{stats: &ingest.Stats{}, block: block}
	h := newIngestHandler(stub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		postJSON(t, h.trigger, `{"search_terms": ["golang"]}`)
	}()

	// Wait for the first run to take the guard.
	for {
		h.mu.Lock()
		running := h.running
		h.mu.Unlock()
		if running {
			break
		}
		time.Sleep(time.Millisecond)
	}

	w := postJSON(t, h.trigger, `{"search_terms": ["python"]}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 while a run is in progress", w.Code)
	}
	env := decodeEnvelope(t, w)
	if env.Error == nil || env.Error.Code != "ingestion_in_progress" {
		t.Errorf("error = %+v", env.Error)
	}

	close(block)
	<-done

	// Guard releases after the run completes.
	if w := postJSON(t, h.trigger, `{"search_terms": ["rust"]}`); w.Code != http.StatusOK {
		t.Errorf("status after release = %d, want 200", w.Code)
	}
}

func TestIngestTrigger_RunFailure(t *testing.T) {
	h := newIngestHandler(&stubIngester{err: errors.New("all boards down")})

	w := postJSON(t, h.trigger, `{"search_terms": ["golang"]}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}
