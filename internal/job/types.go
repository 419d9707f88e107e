// Package job defines the job-posting domain model and its PostgreSQL
// persistence. Postings are the raw ingested records; chunks are the
// embedded text fragments used for retrieval; analyses are persisted
// skill-analysis results used for caching and trend aggregation.
package job

import (
	"encoding/json"
	"time"
)

// Posting is a single job posting as stored in job_postings.
type Posting struct {
	ID              int64      `json:"id"`
	JobID           string     `json:"job_id"` // stable hash of title+company+source
	Title           string     `json:"title"`
	Company         string     `json:"company"`
	Location        string     `json:"location"`
	Description     string     `json:"description"`
	Requirements    string     `json:"requirements"`
	Skills          []string   `json:"skills"`
	SalaryRange     string     `json:"salary_range,omitempty"`
	SourceURL       string     `json:"source_url"`
	SourcePlatform  string     `json:"source_platform"`
	PostedDate      *time.Time `json:"posted_date,omitempty"`
	ScrapedDate     time.Time  `json:"scraped_date"`
	JobType         string     `json:"job_type,omitempty"`
	ExperienceLevel string     `json:"experience_level,omitempty"`
	RemoteOption    string     `json:"remote_option,omitempty"`
}

// ChunkMetadata is the filterable metadata stored alongside each chunk.
type ChunkMetadata struct {
	Title      string   `json:"title"`
	Company    string   `json:"company"`
	Location   string   `json:"location"`
	SourceURL  string   `json:"source_url"`
	PostedDate string   `json:"posted_date,omitempty"`
	Skills     []string `json:"skills,omitempty"`
}

// Chunk is an embedded text fragment of a posting.
type Chunk struct {
	ID        int64
	PostingID int64
	Text      string
	Index     int
	Embedding []float32
	Metadata  ChunkMetadata
}

// ScoredChunk is a chunk returned by vector similarity search.
type ScoredChunk struct {
	ChunkID    int64         `json:"chunk_id"`
	PostingID  int64         `json:"job_posting_id"`
	Text       string        `json:"text"`
	Similarity float64       `json:"similarity_score"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// Analysis is a persisted skill-analysis result row. The JSON columns keep
// the LLM output verbatim; trending aggregation only interprets TopSkills.
type Analysis struct {
	ID                int64           `json:"id"`
	Query             string          `json:"query"`
	JobRole           string          `json:"job_role,omitempty"`
	Location          string          `json:"location,omitempty"`
	TopSkills         json.RawMessage `json:"top_skills"`
	SkillFrequencies  json.RawMessage `json:"skill_frequencies"`
	SkillNecessity    json.RawMessage `json:"skill_necessity_scores"`
	EmergingSkills    json.RawMessage `json:"emerging_skills"`
	TotalJobsAnalyzed int             `json:"total_jobs_analyzed"`
	SourceJobIDs      []int64         `json:"source_job_ids"`
	AnalysisDate      time.Time       `json:"analysis_date"`
}

// TopSkillEntry is the shape of one element of Analysis.TopSkills, as
// produced by the generator's JSON schema.
type TopSkillEntry struct {
	Skill          string `json:"skill"`
	Frequency      string `json:"frequency"`
	NecessityLevel string `json:"necessity_level"`
	Explanation    string `json:"explanation"`
}

// CompanyCount is one entry of the stats top-companies aggregate.
type CompanyCount struct {
	Company  string `json:"company"`
	JobCount int    `json:"job_count"`
}

// Stats summarizes the indexed corpus for GET /api/v1/stats.
type Stats struct {
	TotalJobPostings int64          `json:"total_job_postings"`
	TotalChunks      int64          `json:"total_indexed_chunks"`
	TotalAnalyses    int64          `json:"total_analyses_performed"`
	OldestScraped    *time.Time     `json:"oldest,omitempty"`
	NewestScraped    *time.Time     `json:"newest,omitempty"`
	TopCompanies     []CompanyCount `json:"top_companies"`
}
