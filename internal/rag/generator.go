package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jobradar/lmi/internal/job"
)

const (
	analystSystemPrompt = "You are an expert career analyst specializing in labor market intelligence " +
		"and skill gap analysis. Provide data-driven insights in JSON based strictly on the provided job posting data."

	comparisonSystemPrompt = "You are a career comparison analyst. Respond in JSON."

	// contextSnippetLen bounds how much of each chunk goes into the prompt.
	contextSnippetLen = 500
)

// Completer produces a JSON completion for a system/user prompt pair.
// Satisfied by *groq.Client.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string) (json.RawMessage, error)
}

// Citation points a report back at one source posting.
type Citation struct {
	JobID          int64   `json:"job_id"`
	Title          string  `json:"title"`
	Company        string  `json:"company"`
	SourceURL      string  `json:"source_url"`
	RelevanceScore float64 `json:"relevance_score"`
}

// SkillReport is the full analysis returned to API clients. The RawMessage
// fields carry the model's JSON output verbatim; the rest is added by the
// pipeline.
type SkillReport struct {
	Summary                string          `json:"summary"`
	TopSkills              json.RawMessage `json:"top_skills,omitempty"`
	EmergingTrends         json.RawMessage `json:"emerging_trends,omitempty"`
	SkillCategories        json.RawMessage `json:"skill_categories,omitempty"`
	ExperienceRequirements json.RawMessage `json:"experience_requirements,omitempty"`
	SalaryInsights         json.RawMessage `json:"salary_insights,omitempty"`
	GeographicTrends       json.RawMessage `json:"geographic_trends,omitempty"`
	Recommendations        json.RawMessage `json:"recommendations,omitempty"`
	SkillNecessityScores   json.RawMessage `json:"skill_necessity_scores,omitempty"`

	Citations         []Citation    `json:"citations"`
	TotalJobsAnalyzed int           `json:"total_jobs_analyzed"`
	JobPostingsSample []job.Posting `json:"job_postings_sample,omitempty"`
	Query             string        `json:"query"`
	GeneratedAt       time.Time     `json:"generated_at"`
	FromCache         bool          `json:"from_cache,omitempty"`
}

// ComparisonReport is the two-role comparison returned to API clients.
type ComparisonReport struct {
	RoleAName         string          `json:"role_a_name"`
	RoleBName         string          `json:"role_b_name"`
	UniqueToRoleA     json.RawMessage `json:"unique_to_role_a,omitempty"`
	UniqueToRoleB     json.RawMessage `json:"unique_to_role_b,omitempty"`
	CommonSkills      json.RawMessage `json:"common_skills,omitempty"`
	SalaryComparison  string          `json:"salary_comparison,omitempty"`
	CareerProgression string          `json:"career_progression,omitempty"`
	MarketDemand      string          `json:"market_demand,omitempty"`
	Recommendations   string          `json:"recommendations,omitempty"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

// Generator turns retrieved context into analysis reports via the LLM.
type Generator struct {
	completer Completer
	logger    *slog.Logger
}

// NewGenerator creates a generator backed by the given completer.
func NewGenerator(completer Completer, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{completer: completer, logger: logger}
}

// SkillAnalysis generates a skill gap analysis grounded in the retrieved
// chunks. Citations and the analyzed-job count are derived from the chunks,
// not from the model.
func (g *Generator) SkillAnalysis(ctx context.Context, query string, chunks []job.ScoredChunk, jobRole string) (*SkillReport, error) {
	prompt := buildAnalysisPrompt(query, prepareContext(chunks), jobRole)

	g.logger.Info("generating skill analysis", "query", truncate(query, 50), "chunks", len(chunks))
	raw, err := g.completer.CompleteJSON(ctx, analystSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating analysis: %w", err)
	}

	var report SkillReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("parsing analysis response: %w", err)
	}

	report.Citations = extractCitations(chunks)
	report.TotalJobsAnalyzed = len(uniquePostingIDs(chunks))
	return &report, nil
}

// Comparison generates a comparative report between two roles from their
// separately retrieved contexts.
func (g *Generator) Comparison(ctx context.Context, roleA, roleB string, contextA, contextB []job.ScoredChunk) (*ComparisonReport, error) {
	prompt := buildComparisonPrompt(roleA, roleB, prepareContext(contextA), prepareContext(contextB))

	g.logger.Info("generating role comparison", "role_a", roleA, "role_b", roleB)
	raw, err := g.completer.CompleteJSON(ctx, comparisonSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating comparison: %w", err)
	}

	var report ComparisonReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("parsing comparison response: %w", err)
	}

	// The model echoes the role names; trust our inputs instead.
	report.RoleAName = roleA
	report.RoleBName = roleB
	return &report, nil
}

// prepareContext renders retrieved chunks into the numbered context block
// the prompts reference. Chunk text is capped so a handful of long postings
// cannot blow the token budget.
func prepareContext(chunks []job.ScoredChunk) string {
	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		text := chunk.Text
		if len(text) > contextSnippetLen {
			text = text[:contextSnippetLen] + "..."
		}
		parts = append(parts, fmt.Sprintf(
			"[Job Posting %d]\nTitle: %s\nCompany: %s\nLocation: %s\nContent: %s\nRelevance Score: %.2f\n---",
			i+1,
			orNA(chunk.Metadata.Title),
			orNA(chunk.Metadata.Company),
			orNA(chunk.Metadata.Location),
			text,
			chunk.Similarity,
		))
	}
	return strings.Join(parts, "\n\n")
}

func buildAnalysisPrompt(query, context, jobRole string) string {
	roleContext := ""
	if jobRole != "" {
		roleContext = " for " + jobRole + " positions"
	}
	return fmt.Sprintf(`Based on the following job posting data%s, provide a comprehensive skill gap analysis.

User Query: %s

Job Posting Data:
%s

Analyze this data and provide a JSON response with the following structure:
{
    "summary": "Brief overview of the analysis findings",
    "top_skills": [
        {
            "skill": "skill name",
            "frequency": "percentage or count",
            "necessity_level": "mandatory/highly_desired/nice_to_have",
            "explanation": "why this skill is important"
        }
    ],
    "emerging_trends": ["trend 1", "trend 2"],
    "skill_categories": {
        "technical_skills": ["skill1", "skill2"],
        "soft_skills": ["skill1", "skill2"],
        "tools_and_platforms": ["tool1", "tool2"],
        "certifications": ["cert1", "cert2"]
    },
    "experience_requirements": {
        "entry_level": "requirements description",
        "mid_level": "requirements description",
        "senior_level": "requirements description"
    },
    "salary_insights": {
        "range": "salary range if available",
        "factors": ["factor affecting salary"]
    },
    "geographic_trends": {
        "hot_locations": ["location1", "location2"],
        "remote_opportunities": "percentage or availability"
    },
    "recommendations": [
        "actionable recommendation 1",
        "actionable recommendation 2"
    ]
}

Requirements:
1. Base ALL findings strictly on the provided job posting data.
2. Quantify findings with percentages or frequencies when possible.
3. Identify patterns across multiple job postings.
4. Distinguish between mandatory vs. desired skills.
5. Provide actionable, specific recommendations.
6. Do NOT hallucinate or add information not present in the data.`,
		roleContext, query, context)
}

func buildComparisonPrompt(roleA, roleB, contextA, contextB string) string {
	return fmt.Sprintf(`Compare the skill requirements and market characteristics between two roles:

ROLE A: %s
%s

ROLE B: %s
%s

Provide a JSON comparison report with:
{
    "role_a_name": %q,
    "role_b_name": %q,
    "unique_to_role_a": ["skill1", "skill2"],
    "unique_to_role_b": ["skill1", "skill2"],
    "common_skills": ["skill1", "skill2"],
    "salary_comparison": "comparison text",
    "career_progression": "which role leads to which",
    "market_demand": "comparison of demand",
    "recommendations": "who should choose which role and why"
}`,
		roleA, contextA, roleB, contextB, roleA, roleB)
}

// extractCitations collects one citation per distinct posting, keeping the
// best-scoring chunk's relevance.
func extractCitations(chunks []job.ScoredChunk) []Citation {
	seen := make(map[int64]struct{}, len(chunks))
	citations := make([]Citation, 0, len(chunks))
	for _, chunk := range chunks {
		if _, ok := seen[chunk.PostingID]; ok {
			continue
		}
		seen[chunk.PostingID] = struct{}{}
		citations = append(citations, Citation{
			JobID:          chunk.PostingID,
			Title:          chunk.Metadata.Title,
			Company:        chunk.Metadata.Company,
			SourceURL:      chunk.Metadata.SourceURL,
			RelevanceScore: chunk.Similarity,
		})
	}
	return citations
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
