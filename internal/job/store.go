package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// UpsertStatus reports what happened to a posting during ingestion.
type UpsertStatus int

const (
	// StatusCreated means a new posting row was inserted.
	StatusCreated UpsertStatus = iota
	// StatusUpdated means an existing posting was refreshed with richer data.
	StatusUpdated
	// StatusSkipped means the existing row already had equal or better data.
	StatusSkipped
)

// Store manages job postings, chunks, and analyses with a PostgreSQL
// backend. It is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a new Store instance. logger may be nil.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// UpsertPosting inserts a posting or refreshes an existing one keyed by its
// stable job_id. An existing row is only updated when the new data is
// richer (longer description or more skills), which keeps repeated
// ingestion runs idempotent.
func (s *Store) UpsertPosting(ctx context.Context, p *Posting) (int64, UpsertStatus, error) {
	var (
		existingID     int64
		descLen        int
		skillCount     int
		existingSkills []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, length(description), jsonb_array_length(skills), skills
		 FROM job_postings WHERE job_id = $1`, p.JobID,
	).Scan(&existingID, &descLen, &skillCount, &existingSkills)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		id, insErr := s.insertPosting(ctx, p)
		if insErr != nil {
			return 0, StatusSkipped, insErr
		}
		s.logger.Debug("created job posting", "id", id, "title", p.Title, "company", p.Company)
		return id, StatusCreated, nil
	case err != nil:
		return 0, StatusSkipped, fmt.Errorf("looking up posting %q: %w", p.JobID, err)
	}

	if len(p.Description) <= descLen && len(p.Skills) <= skillCount {
		return existingID, StatusSkipped, nil
	}

	// A refresh from a sparser source must not drop skills already
	// extracted, so the update stores the union of both sets.
	var prior []string
	if err := json.Unmarshal(existingSkills, &prior); err == nil {
		p.Skills = unionSkills(prior, p.Skills)
	}

	if err := s.updatePosting(ctx, existingID, p); err != nil {
		return existingID, StatusSkipped, err
	}
	s.logger.Debug("updated job posting", "id", existingID, "title", p.Title)
	return existingID, StatusUpdated, nil
}

func (s *Store) insertPosting(ctx context.Context, p *Posting) (int64, error) {
	skills, err := json.Marshal(skillsOrEmpty(p.Skills))
	if err != nil {
		return 0, fmt.Errorf("marshaling skills: %w", err)
	}

	scraped := p.ScrapedDate
	if scraped.IsZero() {
		scraped = time.Now().UTC()
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO job_postings
		   (job_id, title, company, location, description, requirements, skills,
		    salary_range, source_url, source_platform, posted_date, scraped_date,
		    job_type, experience_level, remote_option)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id`,
		p.JobID, p.Title, p.Company, p.Location, p.Description, p.Requirements, skills,
		nullableString(p.SalaryRange), p.SourceURL, p.SourcePlatform, p.PostedDate, scraped,
		nullableString(p.JobType), nullableString(p.ExperienceLevel), nullableString(p.RemoteOption),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting posting %q: %w", p.JobID, err)
	}
	return id, nil
}

func (s *Store) updatePosting(ctx context.Context, id int64, p *Posting) error {
	skills, err := json.Marshal(skillsOrEmpty(p.Skills))
	if err != nil {
		return fmt.Errorf("marshaling skills: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE job_postings
		 SET title = $2, company = $3, location = $4, description = $5,
		     requirements = $6, skills = $7, salary_range = $8,
		     scraped_date = now(), job_type = $9, experience_level = $10,
		     remote_option = $11
		 WHERE id = $1`,
		id, p.Title, p.Company, p.Location, p.Description, p.Requirements, skills,
		nullableString(p.SalaryRange), nullableString(p.JobType),
		nullableString(p.ExperienceLevel), nullableString(p.RemoteOption),
	)
	if err != nil {
		return fmt.Errorf("updating posting %d: %w", id, err)
	}
	return nil
}

// ReplaceChunks deletes any existing chunks for a posting and inserts the
// new set in a single transaction, so retrieval never sees a half-indexed
// posting.
func (s *Store) ReplaceChunks(ctx context.Context, postingID int64, chunks []Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning chunk transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM job_chunks WHERE job_posting_id = $1`, postingID); err != nil {
		return fmt.Errorf("deleting stale chunks for posting %d: %w", postingID, err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling chunk metadata: %w", err)
		}
		vec := pgvector.NewVector(c.Embedding)
		batch.Queue(
			`INSERT INTO job_chunks (job_posting_id, chunk_text, chunk_index, embedding, metadata)
			 VALUES ($1, $2, $3, $4, $5)`,
			postingID, c.Text, c.Index, vec, metadata,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("inserting chunk for posting %d: %w", postingID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing chunk batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunks for posting %d: %w", postingID, err)
	}
	return nil
}

// SearchChunks performs cosine similarity search over job_chunks. An empty
// location applies no filter. Results are ordered by similarity, highest
// first.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, topK int, location string) ([]ScoredChunk, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx,
		`SELECT jc.id, jc.job_posting_id, jc.chunk_text,
		        1 - (jc.embedding <=> $1) AS similarity, jc.metadata
		 FROM job_chunks jc
		 WHERE $2 = '' OR jc.metadata->>'location' ILIKE '%' || $2 || '%'
		 ORDER BY jc.embedding <=> $1
		 LIMIT $3`,
		vec, location, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var (
			sc       ScoredChunk
			metadata []byte
		)
		if err := rows.Scan(&sc.ChunkID, &sc.PostingID, &sc.Text, &sc.Similarity, &metadata); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		if err := json.Unmarshal(metadata, &sc.Metadata); err != nil {
			s.logger.Warn("unparseable chunk metadata", "chunk_id", sc.ChunkID, "error", err)
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}
	return results, nil
}

// GetPostings returns the full postings for the given IDs. Order follows
// the database, not the input.
func (s *Store) GetPostings(ctx context.Context, ids []int64) ([]Posting, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		postingColumns+` FROM job_postings WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching postings: %w", err)
	}
	defer rows.Close()
	return scanPostings(rows)
}

// SearchPostings performs a plain text search over title and description
// with an optional location filter, newest scraped first.
func (s *Store) SearchPostings(ctx context.Context, query, location string, limit int) ([]Posting, error) {
	rows, err := s.pool.Query(ctx,
		postingColumns+`
		 FROM job_postings
		 WHERE (title ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')
		   AND ($2 = '' OR location ILIKE '%' || $2 || '%')
		 ORDER BY scraped_date DESC
		 LIMIT $3`,
		query, location, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching postings: %w", err)
	}
	defer rows.Close()
	return scanPostings(rows)
}

// GetStats returns corpus-wide statistics for the stats endpoint.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{TopCompanies: []CompanyCount{}}

	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT count(*) FROM job_postings),
		   (SELECT count(*) FROM job_chunks),
		   (SELECT count(*) FROM skill_analyses),
		   (SELECT min(scraped_date) FROM job_postings),
		   (SELECT max(scraped_date) FROM job_postings)`,
	).Scan(&stats.TotalJobPostings, &stats.TotalChunks, &stats.TotalAnalyses,
		&stats.OldestScraped, &stats.NewestScraped)
	if err != nil {
		return nil, fmt.Errorf("counting corpus: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT company, count(*) AS job_count
		 FROM job_postings
		 GROUP BY company
		 ORDER BY job_count DESC
		 LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("aggregating companies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cc CompanyCount
		if err := rows.Scan(&cc.Company, &cc.JobCount); err != nil {
			return nil, fmt.Errorf("scanning company row: %w", err)
		}
		stats.TopCompanies = append(stats.TopCompanies, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating company rows: %w", err)
	}
	return stats, nil
}

// InsertAnalysis persists a skill-analysis result for later cache hits and
// trend aggregation.
func (s *Store) InsertAnalysis(ctx context.Context, a *Analysis) error {
	sourceIDs, err := json.Marshal(a.SourceJobIDs)
	if err != nil {
		return fmt.Errorf("marshaling source job IDs: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO skill_analyses
		   (query, job_role, location, top_skills, skill_frequencies,
		    skill_necessity_scores, emerging_skills, total_jobs_analyzed, source_job_ids)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, analysis_date`,
		a.Query, nullableString(a.JobRole), nullableString(a.Location),
		rawOrEmpty(a.TopSkills, `[]`), rawOrEmpty(a.SkillFrequencies, `{}`),
		rawOrEmpty(a.SkillNecessity, `{}`), rawOrEmpty(a.EmergingSkills, `[]`),
		a.TotalJobsAnalyzed, sourceIDs,
	).Scan(&a.ID, &a.AnalysisDate)
	if err != nil {
		return fmt.Errorf("inserting analysis: %w", err)
	}
	return nil
}

// LatestAnalysis returns the most recent analysis matching the exact
// query/role/location triple no older than `since`, or nil when there is
// none.
func (s *Store) LatestAnalysis(ctx context.Context, query, jobRole, location string, since time.Time) (*Analysis, error) {
	row := s.pool.QueryRow(ctx,
		analysisColumns+`
		 FROM skill_analyses
		 WHERE query = $1
		   AND coalesce(job_role, '') = $2
		   AND coalesce(location, '') = $3
		   AND analysis_date >= $4
		 ORDER BY analysis_date DESC
		 LIMIT 1`,
		query, jobRole, location, since,
	)

	a, err := scanAnalysis(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching cached analysis: %w", err)
	}
	return a, nil
}

// RecentAnalyses returns all analyses performed since the cutoff, newest
// first. Used by the trending aggregation.
func (s *Store) RecentAnalyses(ctx context.Context, since time.Time) ([]Analysis, error) {
	rows, err := s.pool.Query(ctx,
		analysisColumns+`
		 FROM skill_analyses
		 WHERE analysis_date >= $1
		 ORDER BY analysis_date DESC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching recent analyses: %w", err)
	}
	defer rows.Close()

	var analyses []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning analysis row: %w", err)
		}
		analyses = append(analyses, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating analysis rows: %w", err)
	}
	return analyses, nil
}

const postingColumns = `SELECT id, job_id, title, company, location, description,
	requirements, skills, salary_range, source_url, source_platform,
	posted_date, scraped_date, job_type, experience_level, remote_option`

const analysisColumns = `SELECT id, query, coalesce(job_role, ''), coalesce(location, ''),
	top_skills, skill_frequencies, skill_necessity_scores, emerging_skills,
	total_jobs_analyzed, source_job_ids, analysis_date`

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostings(rows pgx.Rows) ([]Posting, error) {
	var postings []Posting
	for rows.Next() {
		var (
			p        Posting
			skills   []byte
			salary   *string
			jobType  *string
			expLevel *string
			remote   *string
		)
		if err := rows.Scan(&p.ID, &p.JobID, &p.Title, &p.Company, &p.Location,
			&p.Description, &p.Requirements, &skills, &salary, &p.SourceURL,
			&p.SourcePlatform, &p.PostedDate, &p.ScrapedDate,
			&jobType, &expLevel, &remote); err != nil {
			return nil, fmt.Errorf("scanning posting row: %w", err)
		}
		if err := json.Unmarshal(skills, &p.Skills); err != nil {
			p.Skills = nil
		}
		p.SalaryRange = deref(salary)
		p.JobType = deref(jobType)
		p.ExperienceLevel = deref(expLevel)
		p.RemoteOption = deref(remote)
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating posting rows: %w", err)
	}
	return postings, nil
}

func scanAnalysis(row rowScanner) (*Analysis, error) {
	var (
		a         Analysis
		sourceIDs []byte
	)
	if err := row.Scan(&a.ID, &a.Query, &a.JobRole, &a.Location,
		&a.TopSkills, &a.SkillFrequencies, &a.SkillNecessity, &a.EmergingSkills,
		&a.TotalJobsAnalyzed, &sourceIDs, &a.AnalysisDate); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sourceIDs, &a.SourceJobIDs); err != nil {
		a.SourceJobIDs = nil
	}
	return &a, nil
}

func unionSkills(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	union := make([]string, 0, len(a)+len(b))
	for _, s := range append(a, b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		union = append(union, s)
	}
	sort.Strings(union)
	return union
}

func skillsOrEmpty(skills []string) []string {
	if skills == nil {
		return []string{}
	}
	return skills
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func rawOrEmpty(raw json.RawMessage, empty string) []byte {
	if len(raw) == 0 {
		return []byte(empty)
	}
	return raw
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
