// Package ingest fetches job postings from external boards, normalizes
// them, and indexes them for retrieval: dedupe, chunking, embedding, and
// storage.
package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// skillPatterns maps canonical skill names to detection patterns, matched
// against lowercased posting text.
var skillPatterns = map[string]*regexp.Regexp{
	// Programming languages
	"Python":     regexp.MustCompile(`\bpython\b`),
	"Java":       regexp.MustCompile(`\bjava\b([^s]|$)`),
	"JavaScript": regexp.MustCompile(`\bjavascript\b|\bjs\b`),
	"TypeScript": regexp.MustCompile(`\btypescript\b|\bts\b`),
	"C++":        regexp.MustCompile(`c\+\+`),
	"C#":         regexp.MustCompile(`c#`),
	"Go":         regexp.MustCompile(`\bgolang\b|\bgo\b`),
	"Rust":       regexp.MustCompile(`\brust\b`),
	"Ruby":       regexp.MustCompile(`\bruby\b`),
	"PHP":        regexp.MustCompile(`\bphp\b`),
	"Swift":      regexp.MustCompile(`\bswift\b`),
	"Kotlin":     regexp.MustCompile(`\bkotlin\b`),
	"Scala":      regexp.MustCompile(`\bscala\b`),

	// ML and AI
	"TensorFlow":   regexp.MustCompile(`\btensorflow\b`),
	"PyTorch":      regexp.MustCompile(`\bpytorch\b`),
	"Keras":        regexp.MustCompile(`\bkeras\b`),
	"Scikit-learn": regexp.MustCompile(`\bscikit-learn\b|\bsklearn\b`),
	"Hugging Face": regexp.MustCompile(`\bhugging\s*face\b|\btransformers\b`),
	"LangChain":    regexp.MustCompile(`\blangchain\b`),
	"OpenAI":       regexp.MustCompile(`\bopenai\b`),
	"RAG":          regexp.MustCompile(`\brag\b|\bretrieval.{0,20}generation\b`),
	"LLM":          regexp.MustCompile(`\bllm\b|\blarge\s+language\s+model`),

	// Web frameworks
	"React":   regexp.MustCompile(`\breact\b`),
	"Angular": regexp.MustCompile(`\bangular\b`),
	"Vue.js":  regexp.MustCompile(`\bvue\.?js\b|\bvue\b`),
	"Next.js": regexp.MustCompile(`\bnext\.?js\b`),
	"Node.js": regexp.MustCompile(`\bnode\.?js\b`),
	"Django":  regexp.MustCompile(`\bdjango\b`),
	"Flask":   regexp.MustCompile(`\bflask\b`),
	"FastAPI": regexp.MustCompile(`\bfastapi\b`),
	"Spring":  regexp.MustCompile(`\bspring\b`),

	// Cloud and DevOps
	"AWS":            regexp.MustCompile(`\baws\b|\bamazon\s+web\s+services\b`),
	"Azure":          regexp.MustCompile(`\bazure\b`),
	"GCP":            regexp.MustCompile(`\bgcp\b|\bgoogle\s+cloud\b`),
	"Docker":         regexp.MustCompile(`\bdocker\b`),
	"Kubernetes":     regexp.MustCompile(`\bkubernetes\b|\bk8s\b`),
	"Jenkins":        regexp.MustCompile(`\bjenkins\b`),
	"GitHub Actions": regexp.MustCompile(`\bgithub\s+actions\b`),
	"Terraform":      regexp.MustCompile(`\bterraform\b`),
	"Ansible":        regexp.MustCompile(`\bansible\b`),

	// Databases
	"PostgreSQL":    regexp.MustCompile(`\bpostgresql\b|\bpostgres\b`),
	"MySQL":         regexp.MustCompile(`\bmysql\b`),
	"MongoDB":       regexp.MustCompile(`\bmongodb\b|\bmongo\b`),
	"Redis":         regexp.MustCompile(`\bredis\b`),
	"Elasticsearch": regexp.MustCompile(`\belasticsearch\b|\belastic\b`),
	"Cassandra":     regexp.MustCompile(`\bcassandra\b`),
	"DynamoDB":      regexp.MustCompile(`\bdynamodb\b`),

	// Data engineering
	"Spark":   regexp.MustCompile(`\bspark\b|\bpyspark\b`),
	"Hadoop":  regexp.MustCompile(`\bhadoop\b`),
	"Airflow": regexp.MustCompile(`\bairflow\b`),
	"Kafka":   regexp.MustCompile(`\bkafka\b`),
	"Pandas":  regexp.MustCompile(`\bpandas\b`),
	"NumPy":   regexp.MustCompile(`\bnumpy\b`),

	// MLOps
	"MLflow":    regexp.MustCompile(`\bmlflow\b`),
	"Kubeflow":  regexp.MustCompile(`\bkubeflow\b`),
	"SageMaker": regexp.MustCompile(`\bsagemaker\b`),
	"Vertex AI": regexp.MustCompile(`\bvertex\s+ai\b`),

	// Collaboration and process
	"Git":    regexp.MustCompile(`\bgit\b`),
	"GitHub": regexp.MustCompile(`\bgithub\b`),
	"GitLab": regexp.MustCompile(`\bgitlab\b`),
	"Jira":   regexp.MustCompile(`\bjira\b`),
	"Agile":  regexp.MustCompile(`\bagile\b`),
	"Scrum":  regexp.MustCompile(`\bscrum\b`),
	"CI/CD":  regexp.MustCompile(`\bci/cd\b|\bcontinuous\s+integration\b`),
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// ExtractSkills returns the canonical skills mentioned in text, sorted for
// stable output.
func ExtractSkills(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for skill, pattern := range skillPatterns {
		if pattern.MatchString(lower) {
			found = append(found, skill)
		}
	}
	sort.Strings(found)
	return found
}

// CleanText strips HTML markup and collapses whitespace. Board APIs
// routinely embed markup in description fields.
func CleanText(raw string) string {
	if raw == "" {
		return ""
	}
	text := raw
	if strings.ContainsAny(raw, "<>") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
		if err == nil {
			text = doc.Text()
		}
	}
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " "))
}

// GenerateJobID derives the stable dedupe key for a posting from its
// title, company, and source platform.
func GenerateJobID(title, company, source string) string {
	composite := strings.TrimSpace(strings.ToLower(fmt.Sprintf("%s_%s_%s", title, company, source)))
	sum := md5.Sum([]byte(composite))
	return hex.EncodeToString(sum[:])
}

// InferExperienceLevel guesses seniority from the title.
func InferExperienceLevel(title string) string {
	lower := strings.ToLower(title)
	for _, w := range []string{"senior", "sr.", "lead", "principal", "staff", "director"} {
		if strings.Contains(lower, w) {
			return "Senior"
		}
	}
	for _, w := range []string{"junior", "jr.", "entry", "graduate", "intern"} {
		if strings.Contains(lower, w) {
			return "Entry"
		}
	}
	return "Mid"
}

// InferRemoteOption guesses the work arrangement from the description.
func InferRemoteOption(description string) string {
	lower := strings.ToLower(description)
	if strings.Contains(lower, "remote") || strings.Contains(lower, "work from home") {
		if strings.Contains(lower, "hybrid") {
			return "Hybrid"
		}
		return "Remote"
	}
	return "On-site"
}
