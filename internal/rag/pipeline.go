package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jobradar/lmi/internal/cache"
	"github.com/jobradar/lmi/internal/job"
)

// ErrNoResults indicates retrieval found no relevant postings for a query.
var ErrNoResults = errors.New("no relevant job postings found")

// NoResultsSuggestions is offered to clients when a query matches nothing.
var NoResultsSuggestions = []string{
	"Try broader search terms",
	"Check spelling",
	"Try different job titles",
}

const (
	// analysisTopK is how many chunks feed one analysis. Wider than search
	// topK so the model sees enough postings to quantify patterns.
	analysisTopK = 10
	// sampleSize caps the postings included in a report for UI display.
	sampleSize = 5
	// trendingLimit caps the trending-skills list.
	trendingLimit = 20
)

// AnalysisStore is the slice of the job store the pipeline needs for
// persistence and trend aggregation.
type AnalysisStore interface {
	InsertAnalysis(ctx context.Context, a *job.Analysis) error
	LatestAnalysis(ctx context.Context, query, jobRole, location string, since time.Time) (*job.Analysis, error)
	RecentAnalyses(ctx context.Context, since time.Time) ([]job.Analysis, error)
}

// TrendingSkill is one aggregated entry of a trending report.
type TrendingSkill struct {
	Skill        string  `json:"skill"`
	MentionCount int     `json:"mention_count"`
	TrendScore   float64 `json:"trend_score"`
}

// TrendingReport aggregates skills over recent persisted analyses.
type TrendingReport struct {
	TrendingSkills    []TrendingSkill `json:"trending_skills"`
	TimePeriodDays    int             `json:"time_period_days"`
	TotalAnalyses     int             `json:"total_analyses"`
	TotalJobsAnalyzed int             `json:"total_jobs_analyzed"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

// Pipeline orchestrates the full analysis flow: cache lookup, retrieval,
// generation, enrichment, and persistence.
type Pipeline struct {
	retriever *Retriever
	generator *Generator
	store     AnalysisStore
	cache     cache.Cache
	cacheTTL  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewPipeline wires the pipeline. cache may be nil to disable the TTL
// layer; the database fallback still applies.
func NewPipeline(retriever *Retriever, generator *Generator, store AnalysisStore, c cache.Cache, cacheTTL time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		retriever: retriever,
		generator: generator,
		store:     store,
		cache:     c,
		cacheTTL:  cacheTTL,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AnalyzeSkills runs the complete skill analysis for a query. useCache
// controls both the TTL cache and the persisted-analysis fallback. Returns
// ErrNoResults when retrieval comes back empty.
func (p *Pipeline) AnalyzeSkills(ctx context.Context, query, jobRole, location string, useCache bool) (*SkillReport, error) {
	if useCache {
		if report := p.cachedReport(ctx, query, jobRole, location); report != nil {
			p.logger.Info("returning cached analysis", "query", truncate(query, 50))
			return report, nil
		}
	}

	p.logger.Info("starting analysis", "query", truncate(query, 50), "job_role", jobRole, "location", location)
	chunks, err := p.retriever.Retrieve(ctx, query, analysisTopK, location)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		p.logger.Warn("no results for query", "query", truncate(query, 50))
		return nil, ErrNoResults
	}

	report, err := p.generator.SkillAnalysis(ctx, query, chunks, jobRole)
	if err != nil {
		return nil, err
	}

	postings := p.retriever.JobContext(ctx, chunks)
	if len(postings) > sampleSize {
		postings = postings[:sampleSize]
	}
	report.JobPostingsSample = postings
	report.Query = query
	report.GeneratedAt = p.now()

	p.persist(ctx, query, jobRole, location, report, chunks)
	if useCache && p.cache != nil {
		key := cache.AnalysisKey(query, jobRole, location)
		if err := p.cache.Set(ctx, key, report, p.cacheTTL); err != nil {
			p.logger.Warn("caching analysis failed", "error", err)
		}
	}

	p.logger.Info("analysis completed", "query", truncate(query, 50),
		"jobs_analyzed", report.TotalJobsAnalyzed)
	return report, nil
}

// CompareRoles retrieves context for both roles and generates a
// comparative report. Comparisons are cached in the TTL layer only.
func (p *Pipeline) CompareRoles(ctx context.Context, roleA, roleB, location string) (*ComparisonReport, error) {
	if p.cache != nil {
		var cached ComparisonReport
		key := cache.ComparisonKey(roleA, roleB, location)
		if err := p.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	contextA, err := p.retriever.Retrieve(ctx, roleA, analysisTopK, location)
	if err != nil {
		return nil, fmt.Errorf("retrieving context for %q: %w", roleA, err)
	}
	contextB, err := p.retriever.Retrieve(ctx, roleB, analysisTopK, location)
	if err != nil {
		return nil, fmt.Errorf("retrieving context for %q: %w", roleB, err)
	}
	if len(contextA) == 0 && len(contextB) == 0 {
		return nil, ErrNoResults
	}

	report, err := p.generator.Comparison(ctx, roleA, roleB, contextA, contextB)
	if err != nil {
		return nil, err
	}
	report.GeneratedAt = p.now()

	if p.cache != nil {
		key := cache.ComparisonKey(roleA, roleB, location)
		if err := p.cache.Set(ctx, key, report, p.cacheTTL); err != nil {
			p.logger.Warn("caching comparison failed", "error", err)
		}
	}
	return report, nil
}

// TrendingSkills aggregates skill mentions across analyses performed in
// the last periodDays days. No LLM call is involved.
func (p *Pipeline) TrendingSkills(ctx context.Context, periodDays int) (*TrendingReport, error) {
	cutoff := p.now().AddDate(0, 0, -periodDays)
	analyses, err := p.store.RecentAnalyses(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("loading recent analyses: %w", err)
	}

	skillCounts := make(map[string]int)
	totalJobs := 0
	for _, a := range analyses {
		// Only the skill name is decoded; the model reports frequency as
		// a percentage or a raw count, so the other fields have no fixed
		// shape.
		var entries []struct {
			Skill string `json:"skill"`
		}
		if len(a.TopSkills) > 0 {
			if err := json.Unmarshal(a.TopSkills, &entries); err != nil {
				p.logger.Warn("skipping unparseable top_skills", "analysis_id", a.ID, "error", err)
				continue
			}
		}
		for _, e := range entries {
			if e.Skill != "" {
				skillCounts[e.Skill]++
			}
		}
		totalJobs += a.TotalJobsAnalyzed
	}

	trending := make([]TrendingSkill, 0, len(skillCounts))
	for skill, count := range skillCounts {
		score := 0.0
		if len(analyses) > 0 {
			score = float64(count) / float64(len(analyses))
		}
		trending = append(trending, TrendingSkill{
			Skill:        skill,
			MentionCount: count,
			TrendScore:   score,
		})
	}
	sort.Slice(trending, func(i, j int) bool {
		if trending[i].MentionCount != trending[j].MentionCount {
			return trending[i].MentionCount > trending[j].MentionCount
		}
		return trending[i].Skill < trending[j].Skill
	})
	if len(trending) > trendingLimit {
		trending = trending[:trendingLimit]
	}

	return &TrendingReport{
		TrendingSkills:    trending,
		TimePeriodDays:    periodDays,
		TotalAnalyses:     len(analyses),
		TotalJobsAnalyzed: totalJobs,
		GeneratedAt:       p.now(),
	}, nil
}

// cachedReport checks the TTL cache first, then falls back to the newest
// persisted analysis within the TTL window. Cache failures are logged and
// treated as misses.
func (p *Pipeline) cachedReport(ctx context.Context, query, jobRole, location string) *SkillReport {
	if p.cache != nil {
		var cached SkillReport
		key := cache.AnalysisKey(query, jobRole, location)
		err := p.cache.Get(ctx, key, &cached)
		if err == nil {
			cached.FromCache = true
			return &cached
		}
		if !errors.Is(err, cache.ErrNotFound) {
			p.logger.Warn("cache lookup failed", "error", err)
		}
	}

	since := p.now().Add(-p.cacheTTL)
	stored, err := p.store.LatestAnalysis(ctx, query, jobRole, location, since)
	if err != nil {
		p.logger.Warn("stored analysis lookup failed", "error", err)
		return nil
	}
	if stored == nil {
		return nil
	}

	return &SkillReport{
		Summary:              "Cached result",
		TopSkills:            stored.TopSkills,
		SkillCategories:      stored.SkillFrequencies,
		SkillNecessityScores: stored.SkillNecessity,
		EmergingTrends:       stored.EmergingSkills,
		TotalJobsAnalyzed:    stored.TotalJobsAnalyzed,
		Query:                stored.Query,
		GeneratedAt:          stored.AnalysisDate,
		FromCache:            true,
	}
}

// persist records the analysis for future cache hits and trend
// aggregation. Persistence failures degrade trending but not the response.
func (p *Pipeline) persist(ctx context.Context, query, jobRole, location string, report *SkillReport, chunks []job.ScoredChunk) {
	analysis := &job.Analysis{
		Query:             query,
		JobRole:           jobRole,
		Location:          location,
		TopSkills:         report.TopSkills,
		SkillFrequencies:  report.SkillCategories,
		SkillNecessity:    report.SkillNecessityScores,
		EmergingSkills:    report.EmergingTrends,
		TotalJobsAnalyzed: report.TotalJobsAnalyzed,
		SourceJobIDs:      uniquePostingIDs(chunks),
	}
	if err := p.store.InsertAnalysis(ctx, analysis); err != nil {
		p.logger.Warn("persisting analysis failed", "error", err)
	}
}
