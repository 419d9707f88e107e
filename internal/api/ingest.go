package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/jobradar/lmi/internal/ingest"
)

const (
	maxSearchTerms      = 10
	defaultMaxPerSource = 10
	ingestMaxPerSource  = 50
)

// Ingester runs one ingestion pass over the configured sources.
type Ingester interface {
	Run(ctx context.Context, searchTerms []string, location string, maxPerSource int) (*ingest.Stats, error)
}

// ingestHandler triggers ingestion runs. Only one run is allowed at a time
// so concurrent triggers cannot hammer the upstream boards.
type ingestHandler struct {
	service Ingester
	logger  *slog.Logger
	mu      sync.Mutex
	running bool
}

type ingestRequest struct {
	SearchTerms []string `json:"search_terms"`
	Location    string   `json:"location,omitempty"`
	MaxJobs     int      `json:"max_jobs,omitempty"`
}

// trigger handles POST /api/v1/ingest.
func (h *ingestHandler) trigger(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error(), h.logger)
		return
	}

	terms := make([]string, 0, len(req.SearchTerms))
	for _, t := range req.SearchTerms {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		WriteError(w, http.StatusBadRequest, "missing_search_terms", "at least one search term is required", h.logger)
		return
	}
	if len(terms) > maxSearchTerms {
		WriteError(w, http.StatusBadRequest, "too_many_search_terms", "at most 10 search terms are allowed", h.logger)
		return
	}

	maxJobs := req.MaxJobs
	if maxJobs <= 0 {
		maxJobs = defaultMaxPerSource
	}
	if maxJobs > ingestMaxPerSource {
		maxJobs = ingestMaxPerSource
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		WriteError(w, http.StatusConflict, "ingestion_in_progress", "an ingestion run is already in progress", h.logger)
		return
	}
	h.running = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
	}()

	h.logger.Info("starting ingestion run", "terms", terms, "location", req.Location, "max_jobs", maxJobs)

	stats, err := h.service.Run(r.Context(), terms, req.Location, maxJobs)
	if err != nil {
		h.logger.Error("ingestion run failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "ingestion_failed", "ingestion run failed", h.logger)
		return
	}

	WriteData(w, http.StatusOK, stats)
}
