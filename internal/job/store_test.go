package job

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jobradar/lmi/internal/testutil"
)

const embeddingDim = 384

// setupStore starts an isolated pgvector container for one test. These
// tests hit a real database and are skipped in short mode.
func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	return NewStore(tdb.Pool, testutil.DiscardLogger())
}

func samplePosting(jobID string) *Posting {
	posted := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	return &Posting{
		JobID:          jobID,
		Title:          "Backend Engineer",
		Company:        "Acme",
		Location:       "Berlin, Germany",
		Description:    "Build and operate Go services with PostgreSQL.",
		Requirements:   "3+ years of backend experience.",
		Skills:         []string{"Go", "PostgreSQL"},
		SalaryRange:    "$90000 - $120000",
		SourceURL:      "https://example.com/jobs/" + jobID,
		SourcePlatform: "remoteok",
		PostedDate:     &posted,
		JobType:        "Full-time",
	}
}

// axisVec returns a 384-dimensional unit vector along the given axis, so
// cosine similarities in search tests are exact by construction.
func axisVec(axis int) []float32 {
	v := make([]float32, embeddingDim)
	v[axis] = 1
	return v
}

func mixVec(a0, a1 float32) []float32 {
	v := make([]float32, embeddingDim)
	v[0] = a0
	v[1] = a1
	return v
}

func TestUpsertPosting(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	p := samplePosting("job-upsert-1")
	id, status, err := store.UpsertPosting(ctx, p)
	if err != nil {
		t.Fatalf("UpsertPosting() error = %v", err)
	}
	if status != StatusCreated {
		t.Errorf("first upsert status = %v, want StatusCreated", status)
	}
	if id == 0 {
		t.Error("first upsert returned id 0")
	}

	// Same data again is a no-op.
	again := samplePosting("job-upsert-1")
	id2, status, err := store.UpsertPosting(ctx, again)
	if err != nil {
		t.Fatalf("UpsertPosting() repeat error = %v", err)
	}
	if status != StatusSkipped {
		t.Errorf("repeat upsert status = %v, want StatusSkipped", status)
	}
	if id2 != id {
		t.Errorf("repeat upsert id = %d, want %d", id2, id)
	}

	// A strictly poorer record must not overwrite the stored one.
	poorer := samplePosting("job-upsert-1")
	poorer.Description = "Short."
	poorer.Skills = []string{"Go"}
	_, status, err = store.UpsertPosting(ctx, poorer)
	if err != nil {
		t.Fatalf("UpsertPosting() poorer error = %v", err)
	}
	if status != StatusSkipped {
		t.Errorf("poorer upsert status = %v, want StatusSkipped", status)
	}

	// Richer data refreshes the existing row in place.
	richer := samplePosting("job-upsert-1")
	richer.Description = "Build and operate Go services with PostgreSQL. Own the retrieval pipeline end to end."
	richer.Skills = []string{"Go", "PostgreSQL", "Kubernetes"}
	id3, status, err := store.UpsertPosting(ctx, richer)
	if err != nil {
		t.Fatalf("UpsertPosting() richer error = %v", err)
	}
	if status != StatusUpdated {
		t.Errorf("richer upsert status = %v, want StatusUpdated", status)
	}
	if id3 != id {
		t.Errorf("richer upsert id = %d, want %d", id3, id)
	}

	got, err := store.GetPostings(ctx, []int64{id})
	if err != nil {
		t.Fatalf("GetPostings() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetPostings() returned %d postings, want 1", len(got))
	}
	if got[0].Description != richer.Description {
		t.Errorf("stored description = %q, want refreshed value", got[0].Description)
	}
	if len(got[0].Skills) != 3 {
		t.Errorf("stored skills = %v, want 3 entries", got[0].Skills)
	}
	if got[0].SalaryRange != "$90000 - $120000" {
		t.Errorf("stored salary range = %q", got[0].SalaryRange)
	}
	if got[0].PostedDate == nil || !got[0].PostedDate.Equal(*richer.PostedDate) {
		t.Errorf("stored posted date = %v, want %v", got[0].PostedDate, richer.PostedDate)
	}
}

func TestUpsertPosting_UpdateMergesSkills(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	p := samplePosting("job-merge-1")
	p.Skills = []string{"Go", "PostgreSQL"}
	id, _, err := store.UpsertPosting(ctx, p)
	if err != nil {
		t.Fatalf("UpsertPosting() error = %v", err)
	}

	// A richer description from a source that extracted different skills
	// must not lose the ones already stored.
	refresh := samplePosting("job-merge-1")
	refresh.Description = p.Description + " Now with on-call rotation and infrastructure ownership."
	refresh.Skills = []string{"Go", "Rust"}
	_, status, err := store.UpsertPosting(ctx, refresh)
	if err != nil {
		t.Fatalf("UpsertPosting() refresh error = %v", err)
	}
	if status != StatusUpdated {
		t.Fatalf("refresh status = %v, want StatusUpdated", status)
	}

	got, err := store.GetPostings(ctx, []int64{id})
	if err != nil {
		t.Fatalf("GetPostings() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetPostings() returned %d postings, want 1", len(got))
	}
	want := []string{"Go", "PostgreSQL", "Rust"}
	if len(got[0].Skills) != len(want) {
		t.Fatalf("merged skills = %v, want %v", got[0].Skills, want)
	}
	for i, skill := range want {
		if got[0].Skills[i] != skill {
			t.Errorf("merged skills[%d] = %q, want %q", i, got[0].Skills[i], skill)
		}
	}
}

func TestUpsertPosting_NullableFields(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	p := samplePosting("job-nullable-1")
	p.SalaryRange = ""
	p.JobType = ""
	p.PostedDate = nil
	p.Skills = nil

	id, _, err := store.UpsertPosting(ctx, p)
	if err != nil {
		t.Fatalf("UpsertPosting() error = %v", err)
	}

	got, err := store.GetPostings(ctx, []int64{id})
	if err != nil {
		t.Fatalf("GetPostings() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetPostings() returned %d postings, want 1", len(got))
	}
	if got[0].SalaryRange != "" || got[0].JobType != "" {
		t.Errorf("null columns scanned as %q/%q, want empty", got[0].SalaryRange, got[0].JobType)
	}
	if got[0].PostedDate != nil {
		t.Errorf("posted date = %v, want nil", got[0].PostedDate)
	}
	if got[0].ScrapedDate.IsZero() {
		t.Error("scraped date not defaulted")
	}
}

func TestReplaceChunksAndSearch(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	berlinID, _, err := store.UpsertPosting(ctx, samplePosting("job-chunks-berlin"))
	if err != nil {
		t.Fatalf("UpsertPosting() error = %v", err)
	}
	remote := samplePosting("job-chunks-remote")
	remote.Location = "Remote"
	remoteID, _, err := store.UpsertPosting(ctx, remote)
	if err != nil {
		t.Fatalf("UpsertPosting() error = %v", err)
	}

	berlinMeta := ChunkMetadata{Title: "Backend Engineer", Company: "Acme", Location: "Berlin, Germany"}
	remoteMeta := ChunkMetadata{Title: "Backend Engineer", Company: "Acme", Location: "Remote"}

	err = store.ReplaceChunks(ctx, berlinID, []Chunk{
		{Text: "exact match", Index: 0, Embedding: axisVec(0), Metadata: berlinMeta},
		{Text: "partial match", Index: 1, Embedding: mixVec(0.6, 0.8), Metadata: berlinMeta},
	})
	if err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}
	err = store.ReplaceChunks(ctx, remoteID, []Chunk{
		{Text: "orthogonal", Index: 0, Embedding: axisVec(1), Metadata: remoteMeta},
	})
	if err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}

	results, err := store.SearchChunks(ctx, axisVec(0), 10, "")
	if err != nil {
		t.Fatalf("SearchChunks() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("SearchChunks() returned %d chunks, want 3", len(results))
	}
	if results[0].Text != "exact match" || results[1].Text != "partial match" {
		t.Errorf("similarity ordering = [%q, %q, %q]", results[0].Text, results[1].Text, results[2].Text)
	}
	if got := results[0].Similarity; got < 0.999 {
		t.Errorf("exact match similarity = %f, want ~1.0", got)
	}
	// 0.6/0.8 unit vector against the first axis.
	if got := results[1].Similarity; got < 0.59 || got > 0.61 {
		t.Errorf("partial match similarity = %f, want ~0.6", got)
	}
	if results[0].Metadata.Location != "Berlin, Germany" {
		t.Errorf("chunk metadata location = %q", results[0].Metadata.Location)
	}
	if results[0].PostingID != berlinID {
		t.Errorf("chunk posting id = %d, want %d", results[0].PostingID, berlinID)
	}

	// topK trims the result set after ordering.
	results, err = store.SearchChunks(ctx, axisVec(0), 1, "")
	if err != nil {
		t.Fatalf("SearchChunks() topK error = %v", err)
	}
	if len(results) != 1 || results[0].Text != "exact match" {
		t.Errorf("SearchChunks(topK=1) = %+v", results)
	}

	// The location filter matches the chunk metadata case-insensitively.
	results, err = store.SearchChunks(ctx, axisVec(0), 10, "berlin")
	if err != nil {
		t.Fatalf("SearchChunks() location error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("SearchChunks(location=berlin) returned %d chunks, want 2", len(results))
	}
	for _, sc := range results {
		if sc.PostingID != berlinID {
			t.Errorf("location-filtered chunk belongs to posting %d", sc.PostingID)
		}
	}

	// Replacing swaps the whole chunk set atomically.
	err = store.ReplaceChunks(ctx, berlinID, []Chunk{
		{Text: "reindexed", Index: 0, Embedding: axisVec(0), Metadata: berlinMeta},
	})
	if err != nil {
		t.Fatalf("ReplaceChunks() reindex error = %v", err)
	}
	results, err = store.SearchChunks(ctx, axisVec(0), 10, "berlin")
	if err != nil {
		t.Fatalf("SearchChunks() after reindex error = %v", err)
	}
	if len(results) != 1 || results[0].Text != "reindexed" {
		t.Errorf("after reindex got %+v, want single reindexed chunk", results)
	}
}

func TestSearchChunks_SemanticOrdering(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	// The deterministic embedder gives texts with shared vocabulary higher
	// cosine similarity, so retrieval order follows topical relevance.
	embedder := testutil.NewMockEmbedder(embeddingDim)
	mustEmbed := func(text string) []float32 {
		t.Helper()
		v, err := embedder.Embed(ctx, text)
		if err != nil {
			t.Fatalf("Embed(%q) error = %v", text, err)
		}
		return v
	}

	id, _, err := store.UpsertPosting(ctx, samplePosting("job-semantic-1"))
	if err != nil {
		t.Fatalf("UpsertPosting() error = %v", err)
	}
	meta := ChunkMetadata{Title: "Backend Engineer", Company: "Acme", Location: "Berlin, Germany"}
	err = store.ReplaceChunks(ctx, id, []Chunk{
		{Text: "backend", Index: 0, Embedding: mustEmbed("golang backend microservices postgresql"), Metadata: meta},
		{Text: "offtopic", Index: 1, Embedding: mustEmbed("gardening flowers soil compost"), Metadata: meta},
	})
	if err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}

	results, err := store.SearchChunks(ctx, mustEmbed("golang backend services"), 10, "")
	if err != nil {
		t.Fatalf("SearchChunks() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("SearchChunks() returned %d chunks, want 2", len(results))
	}
	if results[0].Text != "backend" {
		t.Errorf("most similar chunk = %q, want the backend chunk", results[0].Text)
	}
	if results[0].Similarity <= results[1].Similarity {
		t.Errorf("similarities not ordered: %f <= %f", results[0].Similarity, results[1].Similarity)
	}
}

func TestSearchPostings(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first := samplePosting("job-search-1")
	first.Title = "Senior Go Developer"
	first.ScrapedDate = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	second := samplePosting("job-search-2")
	second.Title = "Platform Engineer"
	second.Description = "Golang services on Kubernetes."
	second.Location = "Remote"
	second.ScrapedDate = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	third := samplePosting("job-search-3")
	third.Title = "Data Analyst"
	third.Description = "SQL reporting and dashboards."

	for _, p := range []*Posting{first, second, third} {
		if _, _, err := store.UpsertPosting(ctx, p); err != nil {
			t.Fatalf("UpsertPosting(%s) error = %v", p.JobID, err)
		}
	}

	// Matches title or description, newest scraped first.
	got, err := store.SearchPostings(ctx, "go", "", 10)
	if err != nil {
		t.Fatalf("SearchPostings() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("SearchPostings(go) returned %d postings, want 2", len(got))
	}
	if got[0].JobID != "job-search-2" || got[1].JobID != "job-search-1" {
		t.Errorf("ordering = [%s, %s], want newest first", got[0].JobID, got[1].JobID)
	}

	got, err = store.SearchPostings(ctx, "go", "remote", 10)
	if err != nil {
		t.Fatalf("SearchPostings() location error = %v", err)
	}
	if len(got) != 1 || got[0].JobID != "job-search-2" {
		t.Errorf("SearchPostings(go, remote) = %+v", got)
	}

	got, err = store.SearchPostings(ctx, "go", "", 1)
	if err != nil {
		t.Fatalf("SearchPostings() limit error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("SearchPostings(limit=1) returned %d postings", len(got))
	}

	got, err = store.SearchPostings(ctx, "haskell", "", 10)
	if err != nil {
		t.Fatalf("SearchPostings() no-match error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("SearchPostings(haskell) returned %d postings, want 0", len(got))
	}
}

func TestGetPostings_Empty(t *testing.T) {
	store := setupStore(t)

	got, err := store.GetPostings(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetPostings(nil) error = %v", err)
	}
	if got != nil {
		t.Errorf("GetPostings(nil) = %+v, want nil", got)
	}
}

func TestGetStats(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	empty, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() on empty corpus error = %v", err)
	}
	if empty.TotalJobPostings != 0 || empty.OldestScraped != nil {
		t.Errorf("empty stats = %+v", empty)
	}
	if empty.TopCompanies == nil {
		t.Error("TopCompanies is nil, want empty slice")
	}

	for i, company := range []string{"Acme", "Acme", "Globex"} {
		p := samplePosting("job-stats-" + string(rune('a'+i)))
		p.Company = company
		id, _, err := store.UpsertPosting(ctx, p)
		if err != nil {
			t.Fatalf("UpsertPosting() error = %v", err)
		}
		meta := ChunkMetadata{Title: p.Title, Company: company, Location: p.Location}
		err = store.ReplaceChunks(ctx, id, []Chunk{
			{Text: "chunk", Index: 0, Embedding: axisVec(0), Metadata: meta},
		})
		if err != nil {
			t.Fatalf("ReplaceChunks() error = %v", err)
		}
	}
	if err := store.InsertAnalysis(ctx, &Analysis{Query: "stats"}); err != nil {
		t.Fatalf("InsertAnalysis() error = %v", err)
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.TotalJobPostings != 3 {
		t.Errorf("TotalJobPostings = %d, want 3", stats.TotalJobPostings)
	}
	if stats.TotalChunks != 3 {
		t.Errorf("TotalChunks = %d, want 3", stats.TotalChunks)
	}
	if stats.TotalAnalyses != 1 {
		t.Errorf("TotalAnalyses = %d, want 1", stats.TotalAnalyses)
	}
	if stats.OldestScraped == nil || stats.NewestScraped == nil {
		t.Fatal("scraped date range not populated")
	}
	if len(stats.TopCompanies) != 2 {
		t.Fatalf("TopCompanies = %+v, want 2 entries", stats.TopCompanies)
	}
	if stats.TopCompanies[0].Company != "Acme" || stats.TopCompanies[0].JobCount != 2 {
		t.Errorf("top company = %+v, want Acme with 2 jobs", stats.TopCompanies[0])
	}
}

func TestAnalysisPersistence(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	a := &Analysis{
		Query:             "golang backend",
		JobRole:           "Backend Engineer",
		Location:          "Berlin",
		TopSkills:         json.RawMessage(`[{"skill":"Go","frequency":"9/10","necessity_level":"required","explanation":"core language"}]`),
		SkillFrequencies:  json.RawMessage(`{"Go":9}`),
		SkillNecessity:    json.RawMessage(`{"Go":0.95}`),
		EmergingSkills:    json.RawMessage(`["Kubernetes"]`),
		TotalJobsAnalyzed: 9,
		SourceJobIDs:      []int64{101, 102},
	}
	if err := store.InsertAnalysis(ctx, a); err != nil {
		t.Fatalf("InsertAnalysis() error = %v", err)
	}
	if a.ID == 0 {
		t.Error("InsertAnalysis() did not fill ID")
	}
	if a.AnalysisDate.IsZero() {
		t.Error("InsertAnalysis() did not fill AnalysisDate")
	}

	since := time.Now().Add(-time.Hour)

	got, err := store.LatestAnalysis(ctx, "golang backend", "Backend Engineer", "Berlin", since)
	if err != nil {
		t.Fatalf("LatestAnalysis() error = %v", err)
	}
	if got == nil {
		t.Fatal("LatestAnalysis() = nil, want stored analysis")
	}
	if got.ID != a.ID {
		t.Errorf("LatestAnalysis() id = %d, want %d", got.ID, a.ID)
	}
	if got.TotalJobsAnalyzed != 9 {
		t.Errorf("TotalJobsAnalyzed = %d, want 9", got.TotalJobsAnalyzed)
	}
	if len(got.SourceJobIDs) != 2 || got.SourceJobIDs[0] != 101 {
		t.Errorf("SourceJobIDs = %v", got.SourceJobIDs)
	}
	var skills []TopSkillEntry
	if err := json.Unmarshal(got.TopSkills, &skills); err != nil {
		t.Fatalf("TopSkills did not round-trip: %v", err)
	}
	if len(skills) != 1 || skills[0].Skill != "Go" {
		t.Errorf("TopSkills = %+v", skills)
	}

	// The lookup triple is exact.
	for _, tc := range []struct {
		name                  string
		query, role, location string
	}{
		{"different query", "python backend", "Backend Engineer", "Berlin"},
		{"different role", "golang backend", "SRE", "Berlin"},
		{"different location", "golang backend", "Backend Engineer", "Munich"},
		{"empty role", "golang backend", "", "Berlin"},
	} {
		got, err := store.LatestAnalysis(ctx, tc.query, tc.role, tc.location, since)
		if err != nil {
			t.Fatalf("LatestAnalysis(%s) error = %v", tc.name, err)
		}
		if got != nil {
			t.Errorf("LatestAnalysis(%s) = %+v, want nil", tc.name, got)
		}
	}

	// Nothing is fresh enough when the cutoff is in the future.
	got, err = store.LatestAnalysis(ctx, "golang backend", "Backend Engineer", "Berlin", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("LatestAnalysis() future cutoff error = %v", err)
	}
	if got != nil {
		t.Errorf("LatestAnalysis() with future cutoff = %+v, want nil", got)
	}

	// Analyses with null role/location scan as empty strings.
	bare := &Analysis{Query: "data engineering"}
	if err := store.InsertAnalysis(ctx, bare); err != nil {
		t.Fatalf("InsertAnalysis() bare error = %v", err)
	}

	recent, err := store.RecentAnalyses(ctx, since)
	if err != nil {
		t.Fatalf("RecentAnalyses() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("RecentAnalyses() returned %d analyses, want 2", len(recent))
	}
	if recent[0].Query != "data engineering" {
		t.Errorf("RecentAnalyses() newest first: got %q", recent[0].Query)
	}
	if recent[0].JobRole != "" || recent[0].Location != "" {
		t.Errorf("bare analysis role/location = %q/%q, want empty", recent[0].JobRole, recent[0].Location)
	}
	if string(recent[0].TopSkills) != "[]" {
		t.Errorf("bare analysis TopSkills = %s, want []", recent[0].TopSkills)
	}

	recent, err = store.RecentAnalyses(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("RecentAnalyses() future cutoff error = %v", err)
	}
	if len(recent) != 0 {
		t.Errorf("RecentAnalyses() with future cutoff returned %d analyses", len(recent))
	}
}
