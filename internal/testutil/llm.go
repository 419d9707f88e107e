package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// GroqStub is an httptest server mimicking the chat-completions endpoint.
type GroqStub struct {
	*httptest.Server

	// Requests counts completed calls.
	Requests int
}

// NewGroqStub starts a stub chat-completions server that returns content
// as the single choice of every completion. content must be the raw
// message content (typically a JSON document for JSON-mode calls).
func NewGroqStub(t *testing.T, content string) *GroqStub {
	t.Helper()

	stub := &GroqStub{}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		stub.Requests++

		resp := map[string]any{
			"choices": []map[string]any{
				{
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]int{"prompt_tokens": 100, "completion_tokens": 200},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(stub.Server.Close)
	return stub
}

// NewEmbeddingStub starts a stub HuggingFace feature-extraction server
// that returns a fixed vector per input text.
func NewEmbeddingStub(t *testing.T, dimension int) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs any `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		vector := make([]float32, dimension)
		for i := range vector {
			vector[i] = 0.1
		}

		w.Header().Set("Content-Type", "application/json")
		switch inputs := req.Inputs.(type) {
		case string:
			_ = json.NewEncoder(w).Encode(vector)
		case []any:
			vectors := make([][]float32, len(inputs))
			for i := range vectors {
				vectors[i] = vector
			}
			_ = json.NewEncoder(w).Encode(vectors)
		default:
			http.Error(w, "unexpected inputs", http.StatusBadRequest)
		}
	}))
	t.Cleanup(server.Close)
	return server
}
