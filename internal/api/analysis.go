package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/jobradar/lmi/internal/rag"
)

const (
	maxQueryLen      = 500
	defaultTrendDays = 30
	maxTrendDays     = 365
)

// Analyzer is the pipeline surface the analysis handlers need.
type Analyzer interface {
	AnalyzeSkills(ctx context.Context, query, jobRole, location string, useCache bool) (*rag.SkillReport, error)
	CompareRoles(ctx context.Context, roleA, roleB, location string) (*rag.ComparisonReport, error)
	TrendingSkills(ctx context.Context, periodDays int) (*rag.TrendingReport, error)
}

type analysisHandler struct {
	pipeline Analyzer
	logger   *slog.Logger
}

type analyzeRequest struct {
	Query    string `json:"query"`
	JobRole  string `json:"job_role,omitempty"`
	Location string `json:"location,omitempty"`
	UseCache *bool  `json:"use_cache,omitempty"`
}

type noResultsData struct {
	Error       string   `json:"error"`
	Query       string   `json:"query"`
	Suggestions []string `json:"suggestions"`
}

// analyze handles POST /api/v1/analyze.
func (h *analysisHandler) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error(), h.logger)
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		WriteError(w, http.StatusBadRequest, "missing_query", "query is required", h.logger)
		return
	}
	if len(req.Query) > maxQueryLen {
		WriteError(w, http.StatusBadRequest, "query_too_long", "query exceeds maximum length", h.logger)
		return
	}

	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}

	h.logger.Info("received analysis request", "query", req.Query, "request_id", requestIDFromContext(r.Context()))

	report, err := h.pipeline.AnalyzeSkills(r.Context(), req.Query, req.JobRole, req.Location, useCache)
	if errors.Is(err, rag.ErrNoResults) {
		WriteData(w, http.StatusOK, noResultsData{
			Error:       "No relevant job postings found",
			Query:       req.Query,
			Suggestions: rag.NoResultsSuggestions,
		})
		return
	}
	if err != nil {
		h.logger.Error("analysis failed", "query", req.Query, "error", err)
		WriteError(w, http.StatusInternalServerError, "analysis_failed", "failed to process analysis", h.logger)
		return
	}

	WriteData(w, http.StatusOK, report)
}

type compareRequest struct {
	RoleA    string `json:"role_a"`
	RoleB    string `json:"role_b"`
	Location string `json:"location,omitempty"`
}

// compare handles POST /api/v1/compare.
func (h *analysisHandler) compare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error(), h.logger)
		return
	}

	req.RoleA = strings.TrimSpace(req.RoleA)
	req.RoleB = strings.TrimSpace(req.RoleB)
	if req.RoleA == "" || req.RoleB == "" {
		WriteError(w, http.StatusBadRequest, "missing_roles", "role_a and role_b are required", h.logger)
		return
	}

	h.logger.Info("comparing roles", "role_a", req.RoleA, "role_b", req.RoleB)

	report, err := h.pipeline.CompareRoles(r.Context(), req.RoleA, req.RoleB, req.Location)
	if errors.Is(err, rag.ErrNoResults) {
		WriteData(w, http.StatusOK, noResultsData{
			Error:       "No relevant job postings found",
			Query:       req.RoleA + " vs " + req.RoleB,
			Suggestions: rag.NoResultsSuggestions,
		})
		return
	}
	if err != nil {
		h.logger.Error("comparison failed", "role_a", req.RoleA, "role_b", req.RoleB, "error", err)
		WriteError(w, http.StatusInternalServerError, "comparison_failed", "failed to compare roles", h.logger)
		return
	}

	WriteData(w, http.StatusOK, report)
}

// trending handles GET /api/v1/trending.
func (h *analysisHandler) trending(w http.ResponseWriter, r *http.Request) {
	days := defaultTrendDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxTrendDays {
			WriteError(w, http.StatusBadRequest, "invalid_days", "days must be between 1 and 365", h.logger)
			return
		}
		days = parsed
	}

	report, err := h.pipeline.TrendingSkills(r.Context(), days)
	if err != nil {
		h.logger.Error("trending aggregation failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "trending_failed", "failed to fetch trending skills", h.logger)
		return
	}

	WriteData(w, http.StatusOK, report)
}
