package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jobradar/lmi/internal/job"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
	descriptionPreview = 500
)

// JobStore is the store surface the job handlers need.
type JobStore interface {
	SearchPostings(ctx context.Context, query, location string, limit int) ([]job.Posting, error)
	GetStats(ctx context.Context) (*job.Stats, error)
}

type jobsHandler struct {
	store  JobStore
	logger *slog.Logger
}

type jobSummary struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
	SourceURL   string   `json:"source_url"`
	PostedDate  *string  `json:"posted_date"`
}

type searchData struct {
	Jobs  []jobSummary `json:"jobs"`
	Total int          `json:"total"`
	Query string       `json:"query"`
}

// search handles GET /api/v1/jobs/search.
func (h *jobsHandler) search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	query := strings.TrimSpace(params.Get("query"))
	if query == "" {
		WriteError(w, http.StatusBadRequest, "missing_query", "query parameter is required", h.logger)
		return
	}

	limit := defaultSearchLimit
	if raw := params.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxSearchLimit {
			WriteError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 50", h.logger)
			return
		}
		limit = parsed
	}

	postings, err := h.store.SearchPostings(r.Context(), query, params.Get("location"), limit)
	if err != nil {
		h.logger.Error("job search failed", "query", query, "error", err)
		WriteError(w, http.StatusInternalServerError, "search_failed", "failed to search jobs", h.logger)
		return
	}

	summaries := make([]jobSummary, 0, len(postings))
	for _, p := range postings {
		description := p.Description
		if len(description) > descriptionPreview {
			description = description[:descriptionPreview] + "..."
		}
		var posted *string
		if p.PostedDate != nil {
			s := p.PostedDate.Format(time.RFC3339)
			posted = &s
		}
		summaries = append(summaries, jobSummary{
			ID:          p.ID,
			Title:       p.Title,
			Company:     p.Company,
			Location:    p.Location,
			Description: description,
			Skills:      p.Skills,
			SourceURL:   p.SourceURL,
			PostedDate:  posted,
		})
	}

	WriteData(w, http.StatusOK, searchData{Jobs: summaries, Total: len(summaries), Query: query})
}

type dataRange struct {
	Oldest *time.Time `json:"oldest"`
	Newest *time.Time `json:"newest"`
}

type statsData struct {
	TotalJobPostings int64              `json:"total_job_postings"`
	TotalChunks      int64              `json:"total_indexed_chunks"`
	TotalAnalyses    int64              `json:"total_analyses_performed"`
	DataRange        dataRange          `json:"data_range"`
	TopCompanies     []job.CompanyCount `json:"top_companies"`
}

// stats handles GET /api/v1/stats.
func (h *jobsHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		h.logger.Error("stats query failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "stats_failed", "failed to fetch statistics", h.logger)
		return
	}

	WriteData(w, http.StatusOK, statsData{
		TotalJobPostings: stats.TotalJobPostings,
		TotalChunks:      stats.TotalChunks,
		TotalAnalyses:    stats.TotalAnalyses,
		DataRange:        dataRange{Oldest: stats.OldestScraped, Newest: stats.NewestScraped},
		TopCompanies:     stats.TopCompanies,
	})
}
