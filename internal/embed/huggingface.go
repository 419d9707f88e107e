package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://api-inference.huggingface.co/models"
	defaultBatchSize = 8
	maxRetries       = 3
	// batchPause spaces out consecutive batch calls so sustained ingestion
	// stays under the free-tier rate limit.
	batchPause = 300 * time.Millisecond
)

// ErrInvalidAPIKey indicates the HuggingFace API rejected the credentials.
var ErrInvalidAPIKey = errors.New("invalid huggingface api key")

// HuggingFace calls the HuggingFace Inference API feature-extraction
// pipeline. It retries model cold starts (503) with a linear backoff and
// falls back to per-text requests when a batch fails.
type HuggingFace struct {
	apiKey    string
	model     string
	dimension int
	baseURL   string
	batchSize int
	client    *http.Client
	logger    *slog.Logger
}

// Option configures a HuggingFace embedder.
type Option func(*HuggingFace)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HuggingFace) { h.client = c }
}

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(u string) Option {
	return func(h *HuggingFace) { h.baseURL = strings.TrimRight(u, "/") }
}

// WithBatchSize sets how many texts are sent per API call.
func WithBatchSize(n int) Option {
	return func(h *HuggingFace) {
		if n > 0 {
			h.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *HuggingFace) { h.logger = l }
}

// NewHuggingFace creates an embedder for the given model. dimension must
// match the model's output size.
func NewHuggingFace(apiKey, model string, dimension int, opts ...Option) (*HuggingFace, error) {
	if apiKey == "" {
		return nil, errors.New("huggingface api key is required")
	}
	if model == "" {
		return nil, errors.New("embedding model is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dimension)
	}

	h := &HuggingFace{
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		baseURL:   defaultBaseURL,
		batchSize: defaultBatchSize,
		client:    &http.Client{Timeout: 60 * time.Second},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Dimension reports the embedding vector length.
func (h *HuggingFace) Dimension() int { return h.dimension }

// Embed returns the embedding for a single text. Blank input yields a zero
// vector without an API call.
func (h *HuggingFace) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		h.logger.Warn("embedding requested for blank text, returning zero vector")
		return make([]float32, h.dimension), nil
	}

	vectors, err := h.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in batches. A failed batch is retried one text at
// a time; a text that still fails gets a zero vector so one bad input does
// not sink a whole ingestion run.
func (h *HuggingFace) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += h.batchSize {
		end := min(start+h.batchSize, len(texts))
		batch := texts[start:end]

		vectors, err := h.request(ctx, batch)
		if err != nil {
			if errors.Is(err, ErrInvalidAPIKey) || ctx.Err() != nil {
				return nil, err
			}
			h.logger.Error("embedding batch failed, retrying individually",
				"start", start, "size", len(batch), "error", err)
			vectors, err = h.embedIndividually(ctx, batch)
			if err != nil {
				return nil, err
			}
		}
		results = append(results, vectors...)

		if end < len(texts) {
			if err := sleepCtx(ctx, batchPause); err != nil {
				return nil, err
			}
		}
	}
	return results, nil
}

// embedIndividually retries a failed batch one text at a time. A text that
// still fails gets a zero vector; only cancellation aborts, so callers
// always get one vector per text on a nil error.
func (h *HuggingFace) embedIndividually(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := h.request(ctx, []string{text})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			h.logger.Error("embedding single text failed, using zero vector", "error", err)
			vectors = append(vectors, make([]float32, h.dimension))
			continue
		}
		vectors = append(vectors, vec[0])
		if i < len(texts)-1 {
			if err := sleepCtx(ctx, batchPause); err != nil {
				return nil, err
			}
		}
	}
	return vectors, nil
}

type featureRequest struct {
	Inputs  any            `json:"inputs"`
	Options map[string]any `json:"options"`
}

func (h *HuggingFace) request(ctx context.Context, texts []string) ([][]float32, error) {
	// The API accepts a bare string for single inputs and returns a flat
	// vector for it; always check both response shapes.
	var inputs any = texts
	if len(texts) == 1 {
		inputs = texts[0]
	}

	body, err := json.Marshal(featureRequest{
		Inputs:  inputs,
		Options: map[string]any{"wait_for_model": true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling embedding request: %w", err)
	}

	url := h.baseURL + "/" + h.model
	var lastErr error

	for attempt := range maxRetries {
		if attempt > 0 {
			if err := sleepCtx(ctx, time.Duration(2*attempt)*time.Second); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("building embedding request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := h.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("calling huggingface: %w", err)
			continue
		}

		vectors, err := h.handleResponse(resp, len(texts))
		if err == nil {
			return vectors, nil
		}
		if errors.Is(err, ErrInvalidAPIKey) {
			return nil, err
		}
		lastErr = err

		var loading *modelLoadingError
		if errors.As(err, &loading) {
			wait := time.Duration(5*(attempt+1)) * time.Second
			h.logger.Warn("model loading, waiting before retry",
				"model", h.model, "wait", wait, "attempt", attempt+1)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", maxRetries, lastErr)
}

type modelLoadingError struct{ body string }

func (e *modelLoadingError) Error() string {
	return "model is loading: " + e.body
}

func (h *HuggingFace) handleResponse(resp *http.Response, want int) ([][]float32, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading embedding response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return parseVectors(data, want)
	case http.StatusUnauthorized:
		return nil, ErrInvalidAPIKey
	case http.StatusServiceUnavailable:
		return nil, &modelLoadingError{body: truncate(string(data), 120)}
	default:
		return nil, fmt.Errorf("huggingface returned %d: %s", resp.StatusCode, truncate(string(data), 120))
	}
}

// parseVectors accepts either a single flat vector or a list of vectors.
func parseVectors(data []byte, want int) ([][]float32, error) {
	var nested [][]float32
	if err := json.Unmarshal(data, &nested); err == nil {
		if len(nested) != want {
			return nil, fmt.Errorf("expected %d embeddings, got %d", want, len(nested))
		}
		return nested, nil
	}

	var flat []float32
	if err := json.Unmarshal(data, &flat); err == nil {
		if want != 1 {
			return nil, fmt.Errorf("expected %d embeddings, got 1", want)
		}
		return [][]float32{flat}, nil
	}
	return nil, fmt.Errorf("unexpected embedding response shape: %s", truncate(string(data), 120))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
