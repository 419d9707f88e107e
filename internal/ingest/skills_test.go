package ingest

import (
	"slices"
	"testing"
)

func TestExtractSkills(t *testing.T) {
	text := `We are looking for a Senior Backend Engineer with strong Python and Go
	experience. You will deploy services on Kubernetes in AWS, use PostgreSQL
	and Redis, and build CI/CD pipelines with GitHub Actions.`

	skills := ExtractSkills(text)

	for _, want := range []string{"Python", "Go", "Kubernetes", "AWS", "PostgreSQL", "Redis", "CI/CD", "GitHub Actions"} {
		if !slices.Contains(skills, want) {
			t.Errorf("ExtractSkills() missing %q, got %v", want, skills)
		}
	}
	if slices.Contains(skills, "Rust") {
		t.Errorf("ExtractSkills() found Rust in text that never mentions it")
	}
	if !slices.IsSorted(skills) {
		t.Errorf("ExtractSkills() output not sorted: %v", skills)
	}
}

func TestExtractSkills_Aliases(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"experience with golang required", "Go"},
		{"we use k8s in production", "Kubernetes"},
		{"fine-tuning transformers models", "Hugging Face"},
		{"building retrieval augmented generation systems", "RAG"},
		{"working with large language models", "LLM"},
		{"familiarity with sklearn", "Scikit-learn"},
		{"continuous integration experience", "CI/CD"},
	}

	for _, tt := range tests {
		if skills := ExtractSkills(tt.text); !slices.Contains(skills, tt.want) {
			t.Errorf("ExtractSkills(%q) = %v, want to include %q", tt.text, skills, tt.want)
		}
	}
}

func TestExtractSkills_Empty(t *testing.T) {
	if skills := ExtractSkills("nothing technical here"); len(skills) != 0 {
		t.Errorf("ExtractSkills() = %v, want empty", skills)
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain text", "  plain   text  ", "plain text"},
		{"html markup", "<p>We need a <strong>Go</strong> developer.</p>", "We need a Go developer."},
		{"nested html", "<div><ul><li>Python</li><li>SQL</li></ul></div>", "PythonSQL"},
		{"whitespace collapse", "line one\n\n\nline two\t\ttabbed", "line one line two tabbed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGenerateJobID(t *testing.T) {
	id := GenerateJobID("Backend Engineer", "Acme", "remoteok")

	if len(id) != 32 {
		t.Fatalf("GenerateJobID() length = %d, want 32 hex chars", len(id))
	}
	// Case variations hash to the same id.
	if GenerateJobID("BACKEND ENGINEER", "acme", "RemoteOK") != id {
		t.Error("GenerateJobID() should be case-insensitive")
	}
	// Any field change produces a different id.
	if GenerateJobID("Backend Engineer", "Acme", "adzuna") == id {
		t.Error("different source must produce a different id")
	}
	if GenerateJobID("Backend Engineer", "Other Co", "remoteok") == id {
		t.Error("different company must produce a different id")
	}
}

func TestInferExperienceLevel(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Senior Software Engineer", "Senior"},
		{"Sr. Data Scientist", "Senior"},
		{"Lead Platform Engineer", "Senior"},
		{"Principal Architect", "Senior"},
		{"Staff Engineer", "Senior"},
		{"Junior Developer", "Entry"},
		{"Jr. Analyst", "Entry"},
		{"Graduate Software Engineer", "Entry"},
		{"Machine Learning Intern", "Entry"},
		{"Software Engineer", "Mid"},
		{"Backend Developer", "Mid"},
	}

	for _, tt := range tests {
		if got := InferExperienceLevel(tt.title); got != tt.want {
			t.Errorf("InferExperienceLevel(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestInferRemoteOption(t *testing.T) {
	tests := []struct {
		description string
		want        string
	}{
		{"Fully remote position, work from anywhere", "Remote"},
		{"Option to work from home", "Remote"},
		{"Hybrid role, remote two days a week", "Hybrid"},
		{"On location in our Berlin office", "On-site"},
		{"", "On-site"},
	}

	for _, tt := range tests {
		if got := InferRemoteOption(tt.description); got != tt.want {
			t.Errorf("InferRemoteOption(%q) = %q, want %q", tt.description, got, tt.want)
		}
	}
}
