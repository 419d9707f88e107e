package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jobradar/lmi/internal/embed"
	"github.com/jobradar/lmi/internal/job"
	"github.com/jobradar/lmi/internal/rag"
)

// embedBatchSize keeps ingestion under the embedding API's rate limits.
const embedBatchSize = 5

// Stats counts the outcomes of one ingestion run.
type Stats struct {
	JobsFetched   int `json:"jobs_fetched"`
	JobsNew       int `json:"jobs_new"`
	JobsUpdated   int `json:"jobs_updated"`
	JobsSkipped   int `json:"jobs_skipped"`
	ChunksCreated int `json:"chunks_created"`
	Errors        int `json:"errors"`
}

// PostingStore is the slice of the job store ingestion needs.
type PostingStore interface {
	UpsertPosting(ctx context.Context, p *job.Posting) (int64, job.UpsertStatus, error)
	ReplaceChunks(ctx context.Context, postingID int64, chunks []job.Chunk) error
}

// Service fetches postings from configured sources and indexes them:
// dedupe by job ID, chunk, embed, store.
type Service struct {
	fetchers []Fetcher
	store    PostingStore
	embedder embed.Embedder
	chunker  *rag.Chunker
	logger   *slog.Logger
}

// NewService wires an ingestion service over the given fetchers.
func NewService(fetchers []Fetcher, store PostingStore, embedder embed.Embedder, chunker *rag.Chunker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetchers: fetchers,
		store:    store,
		embedder: embedder,
		chunker:  chunker,
		logger:   logger,
	}
}

// Run fetches postings for each search term, deduplicates across sources,
// and ingests them. maxPerSource caps how many postings one source
// contributes per term. Per-posting failures are counted, not fatal.
func (s *Service) Run(ctx context.Context, searchTerms []string, location string, maxPerSource int) (*Stats, error) {
	stats := &Stats{}

	postings, err := s.fetchAll(ctx, searchTerms, location, maxPerSource)
	if err != nil {
		return stats, err
	}
	stats.JobsFetched = len(postings)
	s.logger.Info("fetched postings from all sources", "count", len(postings))

	for i := range postings {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := s.ingestOne(ctx, &postings[i], stats); err != nil {
			s.logger.Error("ingesting posting failed",
				"title", postings[i].Title, "source", postings[i].SourcePlatform, "error", err)
			stats.Errors++
		}
	}

	s.logger.Info("ingestion run completed",
		"fetched", stats.JobsFetched, "new", stats.JobsNew, "updated", stats.JobsUpdated,
		"skipped", stats.JobsSkipped, "chunks", stats.ChunksCreated, "errors", stats.Errors)
	return stats, nil
}

func (s *Service) fetchAll(ctx context.Context, searchTerms []string, location string, maxPerSource int) ([]job.Posting, error) {
	seen := make(map[string]struct{})
	var all []job.Posting

	for _, term := range searchTerms {
		for _, fetcher := range s.fetchers {
			if err := ctx.Err(); err != nil {
				return all, err
			}

			postings, err := fetcher.Fetch(ctx, term, location)
			if err != nil {
				s.logger.Error("fetcher failed", "source", fetcher.Name(), "term", term, "error", err)
				continue
			}

			added := 0
			for _, p := range postings {
				if _, dup := seen[p.JobID]; dup {
					continue
				}
				seen[p.JobID] = struct{}{}
				all = append(all, p)
				added++
				if maxPerSource > 0 && added >= maxPerSource {
					break
				}
			}
			s.logger.Info("added postings from source",
				"source", fetcher.Name(), "term", term, "added", added)
		}
	}
	return all, nil
}

// ingestOne upserts a posting and, when it is new or changed, rebuilds its
// chunk index.
func (s *Service) ingestOne(ctx context.Context, p *job.Posting, stats *Stats) error {
	id, status, err := s.store.UpsertPosting(ctx, p)
	if err != nil {
		return err
	}
	p.ID = id

	switch status {
	case job.StatusSkipped:
		stats.JobsSkipped++
		return nil
	case job.StatusCreated:
		stats.JobsNew++
	case job.StatusUpdated:
		stats.JobsUpdated++
	}

	chunks := s.chunker.PrepareJobChunks(p)
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := s.embedBatched(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	if err := s.store.ReplaceChunks(ctx, id, chunks); err != nil {
		return err
	}
	stats.ChunksCreated += len(chunks)
	return nil
}

func (s *Service) embedBatched(ctx context.Context, texts []string) ([][]float32, error) {
	var all [][]float32
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		vectors, err := s.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vectors...)
	}
	return all, nil
}
