package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jobradar/lmi/internal/embed"
	"github.com/jobradar/lmi/internal/job"
)

// ChunkSearcher is the slice of the job store the retriever needs.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, embedding []float32, topK int, location string) ([]job.ScoredChunk, error)
	GetPostings(ctx context.Context, ids []int64) ([]job.Posting, error)
}

// Retriever performs embedding-based similarity search over indexed job
// chunks.
type Retriever struct {
	store    ChunkSearcher
	embedder embed.Embedder
	topK     int
	logger   *slog.Logger
}

// NewRetriever creates a retriever with the given default result count.
func NewRetriever(store ChunkSearcher, embedder embed.Embedder, topK int, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, embedder: embedder, topK: topK, logger: logger}
}

// Retrieve embeds the query and returns the most similar chunks. topK <= 0
// falls back to the configured default. An empty location applies no filter.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, location string) ([]job.ScoredChunk, error) {
	if topK <= 0 {
		topK = r.topK
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	chunks, err := r.store.SearchChunks(ctx, embedding, topK, location)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	r.logger.Info("retrieved chunks", "count", len(chunks), "query", truncate(query, 50))
	return chunks, nil
}

// HybridSearch combines similarity search with a keyword boost: results
// containing a keyword gain 0.1 similarity per keyword, capped at 1.0,
// then the boosted list is re-sorted and trimmed to topK.
func (r *Retriever) HybridSearch(ctx context.Context, query string, keywords []string, topK int, location string) ([]job.ScoredChunk, error) {
	if topK <= 0 {
		topK = r.topK
	}

	chunks, err := r.Retrieve(ctx, query, topK*2, location)
	if err != nil {
		return nil, err
	}

	for i := range chunks {
		boost := 0.0
		text := strings.ToLower(chunks[i].Text)
		for _, kw := range keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				boost += 0.1
			}
		}
		chunks[i].Similarity = min(chunks[i].Similarity+boost, 1.0)
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Similarity > chunks[j].Similarity
	})
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks, nil
}

// JobContext resolves the full postings backing the retrieved chunks,
// deduplicated by posting ID. Failures here degrade the response rather
// than fail it, so errors are logged and an empty slice returned.
func (r *Retriever) JobContext(ctx context.Context, chunks []job.ScoredChunk) []job.Posting {
	ids := uniquePostingIDs(chunks)
	if len(ids) == 0 {
		return nil
	}

	postings, err := r.store.GetPostings(ctx, ids)
	if err != nil {
		r.logger.Error("fetching job context failed", "error", err)
		return nil
	}
	return postings
}

func uniquePostingIDs(chunks []job.ScoredChunk) []int64 {
	seen := make(map[int64]struct{}, len(chunks))
	ids := make([]int64, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.PostingID]; ok {
			continue
		}
		seen[c.PostingID] = struct{}{}
		ids = append(ids, c.PostingID)
	}
	return ids
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
