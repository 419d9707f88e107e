// Package rag implements the retrieval-augmented analysis pipeline:
// chunking postings into embeddable fragments, similarity retrieval over
// pgvector, prompt assembly, and orchestration of the full analysis flow.
package rag

import (
	"fmt"
	"strings"

	"github.com/jobradar/lmi/internal/job"
)

// sentence boundaries tried when splitting, in preference order.
var sentenceBreaks = []string{". ", "! ", "? ", "\n\n"}

// Chunker splits text into overlapping chunks sized for the embedding
// model's context window.
type Chunker struct {
	chunkSize int
	overlap   int
}

// NewChunker creates a chunker. overlap must be smaller than chunkSize.
func NewChunker(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", chunkSize, overlap)
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split breaks text into overlapping chunks, preferring to cut at sentence
// boundaries in the second half of each window so chunks stay coherent.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= c.chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0

	for start < len(text) {
		end := min(start+c.chunkSize, len(text))

		if end < len(text) {
			for _, punct := range sentenceBreaks {
				if cut := strings.LastIndex(text[start:end], punct); cut >= 0 {
					abs := start + cut
					if abs > start+c.chunkSize/2 {
						end = abs + len(punct)
						break
					}
				}
			}
		}

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(text) {
			break
		}
		next := end - c.overlap
		if next <= start {
			// A sentence cut inside the overlap region would rewind the
			// window; advance past it instead.
			next = end
		}
		start = next
	}
	return chunks
}

// PrepareJobChunks renders a posting into a composite document and splits
// it into chunks carrying the posting's retrieval metadata. Embeddings are
// left empty for the caller to fill.
func (c *Chunker) PrepareJobChunks(p *job.Posting) []job.Chunk {
	fullText := strings.TrimSpace(fmt.Sprintf(`Job Title: %s
Company: %s
Location: %s

Description:
%s

Requirements:
%s

Skills: %s`,
		p.Title, p.Company, p.Location,
		p.Description, p.Requirements,
		strings.Join(p.Skills, ", ")))

	metadata := job.ChunkMetadata{
		Title:     p.Title,
		Company:   p.Company,
		Location:  p.Location,
		SourceURL: p.SourceURL,
		Skills:    p.Skills,
	}
	if p.PostedDate != nil {
		metadata.PostedDate = p.PostedDate.Format("2006-01-02")
	}

	pieces := c.Split(fullText)
	chunks := make([]job.Chunk, 0, len(pieces))
	for i, text := range pieces {
		chunks = append(chunks, job.Chunk{
			PostingID: p.ID,
			Text:      text,
			Index:     i,
			Metadata:  metadata,
		})
	}
	return chunks
}
