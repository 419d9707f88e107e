// Package embed generates vector embeddings for retrieval. The production
// implementation calls the HuggingFace Inference API; tests substitute a
// deterministic embedder.
package embed

import "context"

// Embedder produces fixed-dimension embeddings for text.
type Embedder interface {
	// Embed returns the embedding for a single text. A blank text yields a
	// zero vector rather than an error.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension reports the length of the vectors this embedder produces.
	Dimension() int
}
