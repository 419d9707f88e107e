package rag

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jobradar/lmi/internal/job"
)

// stubCompleter records prompts and returns a canned JSON document.
type stubCompleter struct {
	response string
	err      error

	lastSystem string
	lastUser   string
}

func (s *stubCompleter) CompleteJSON(_ context.Context, system, user string) (json.RawMessage, error) {
	s.lastSystem = system
	s.lastUser = user
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(s.response), nil
}

func analysisChunks() []job.ScoredChunk {
	return []job.ScoredChunk{
		{
			ChunkID: 1, PostingID: 10, Similarity: 0.92,
			Text: "Senior Go engineer building payment infrastructure.",
			Metadata: job.ChunkMetadata{
				Title: "Senior Go Engineer", Company: "Fintech Co",
				Location: "Amsterdam", SourceURL: "https://example.com/10",
			},
		},
		{
			ChunkID: 2, PostingID: 10, Similarity: 0.85,
			Text: "Requirements: Go, PostgreSQL, Kafka.",
			Metadata: job.ChunkMetadata{
				Title: "Senior Go Engineer", Company: "Fintech Co",
				Location: "Amsterdam", SourceURL: "https://example.com/10",
			},
		},
		{
			ChunkID: 3, PostingID: 11, Similarity: 0.78,
			Text: "Platform engineer with Kubernetes experience.",
			Metadata: job.ChunkMetadata{
				Title: "Platform Engineer", Company: "Cloud Co",
				SourceURL: "https://example.com/11",
			},
		},
	}
}

func TestSkillAnalysis(t *testing.T) {
	completer := &stubCompleter{response: `{
		"summary": "Go dominates backend roles.",
		"top_skills": [{"skill": "Go", "frequency": "80%", "necessity_level": "mandatory", "explanation": "core language"}],
		"emerging_trends": ["platform engineering"]
	}`}
	g := NewGenerator(completer, testLogger())

	report, err := g.SkillAnalysis(context.Background(), "backend skills", analysisChunks(), "Backend Engineer")
	if err != nil {
		t.Fatalf("SkillAnalysis() failed: %v", err)
	}

	if report.Summary != "Go dominates backend roles." {
		t.Errorf("Summary = %q", report.Summary)
	}
	// Citations come from the chunks, one per distinct posting.
	if len(report.Citations) != 2 {
		t.Fatalf("Citations = %d, want 2", len(report.Citations))
	}
	if report.Citations[0].JobID != 10 || report.Citations[0].RelevanceScore != 0.92 {
		t.Errorf("first citation = %+v", report.Citations[0])
	}
	if report.TotalJobsAnalyzed != 2 {
		t.Errorf("TotalJobsAnalyzed = %d, want 2", report.TotalJobsAnalyzed)
	}

	if completer.lastSystem != analystSystemPrompt {
		t.Errorf("system prompt = %q", completer.lastSystem)
	}
	for _, want := range []string{
		"for Backend Engineer positions",
		"User Query: backend skills",
		"[Job Posting 1]",
		"Company: Fintech Co",
		"Do NOT hallucinate",
	} {
		if !strings.Contains(completer.lastUser, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSkillAnalysis_NoJobRole(t *testing.T) {
	completer := &stubCompleter{response: `{"summary": "ok"}`}
	g := NewGenerator(completer, testLogger())

	if _, err := g.SkillAnalysis(context.Background(), "q", analysisChunks(), ""); err != nil {
		t.Fatalf("SkillAnalysis() failed: %v", err)
	}
	if strings.Contains(completer.lastUser, " for  positions") {
		t.Error("prompt should omit the role clause when job role is empty")
	}
}

func TestSkillAnalysis_CompleterError(t *testing.T) {
	g := NewGenerator(&stubCompleter{err: errors.New("rate limited")}, testLogger())

	if _, err := g.SkillAnalysis(context.Background(), "q", analysisChunks(), ""); err == nil {
		t.Fatal("SkillAnalysis() should propagate completer errors")
	}
}

func TestSkillAnalysis_MalformedResponse(t *testing.T) {
	g := NewGenerator(&stubCompleter{response: `{"summary": 42}`}, testLogger())

	if _, err := g.SkillAnalysis(context.Background(), "q", analysisChunks(), ""); err == nil {
		t.Fatal("SkillAnalysis() should fail on a mistyped response")
	}
}

func TestComparison_TrustsInputRoleNames(t *testing.T) {
	completer := &stubCompleter{response: `{
		"role_a_name": "model echo A",
		"role_b_name": "model echo B",
		"common_skills": ["Git"],
		"market_demand": "both strong"
	}`}
	g := NewGenerator(completer, testLogger())

	report, err := g.Comparison(context.Background(), "Data Engineer", "ML Engineer", analysisChunks(), nil)
	if err != nil {
		t.Fatalf("Comparison() failed: %v", err)
	}

	if report.RoleAName != "Data Engineer" || report.RoleBName != "ML Engineer" {
		t.Errorf("role names = %q, %q; model echoes must be overridden", report.RoleAName, report.RoleBName)
	}
	if report.MarketDemand != "both strong" {
		t.Errorf("MarketDemand = %q", report.MarketDemand)
	}
	for _, want := range []string{"ROLE A: Data Engineer", "ROLE B: ML Engineer"} {
		if !strings.Contains(completer.lastUser, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestPrepareContext_TruncatesLongChunks(t *testing.T) {
	long := strings.Repeat("x", contextSnippetLen+200)
	got := prepareContext([]job.ScoredChunk{{ChunkID: 1, PostingID: 1, Text: long, Similarity: 0.5}})

	if !strings.Contains(got, strings.Repeat("x", contextSnippetLen)+"...") {
		t.Error("long chunk text should be truncated with an ellipsis")
	}
	if strings.Contains(got, strings.Repeat("x", contextSnippetLen+1)) {
		t.Error("chunk text exceeds the snippet cap")
	}
}

func TestPrepareContext_MissingMetadata(t *testing.T) {
	got := prepareContext([]job.ScoredChunk{{ChunkID: 1, PostingID: 1, Text: "t", Similarity: 0.5}})

	if !strings.Contains(got, "Title: N/A") || !strings.Contains(got, "Company: N/A") {
		t.Errorf("missing metadata should render as N/A, got:\n%s", got)
	}
}

func TestExtractCitations_KeepsFirstScorePerPosting(t *testing.T) {
	citations := extractCitations(analysisChunks())

	if len(citations) != 2 {
		t.Fatalf("extractCitations() = %d entries, want 2", len(citations))
	}
	// Chunks arrive score-descending, so the first (best) chunk wins.
	if citations[0].RelevanceScore != 0.92 {
		t.Errorf("citation score = %v, want best chunk's 0.92", citations[0].RelevanceScore)
	}
}
