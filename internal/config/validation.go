package config

import (
	"fmt"
)

// validSSLModes are the sslmode values accepted by libpq/pgx.
var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Validate checks the configuration and fails fast with sentinel errors.
// It is called from Load; callers constructing a Config by hand (tests)
// should call it explicitly.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.GroqTemperature < 0 || c.GroqTemperature > 2 {
		return fmt.Errorf("%w: %.2f out of range [0, 2]", ErrInvalidTemperature, c.GroqTemperature)
	}
	if c.GroqMaxTokens < 1 || c.GroqMaxTokens > 32768 {
		return fmt.Errorf("%w: %d out of range [1, 32768]", ErrInvalidMaxTokens, c.GroqMaxTokens)
	}

	if c.ChunkSize < 64 || c.ChunkSize > 8192 {
		return fmt.Errorf("%w: chunk_size %d out of range [64, 8192]", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}

	if c.RetrievalTopK < 1 || c.RetrievalTopK > 50 {
		return fmt.Errorf("%w: %d out of range [1, 50]", ErrInvalidTopK, c.RetrievalTopK)
	}

	if dim := embeddingModelDimension(c.EmbeddingModel); dim != 0 && dim != EmbeddingDimension {
		return fmt.Errorf("%w: model %q emits %d dimensions, schema expects %d",
			ErrInvalidEmbeddingDimension, c.EmbeddingModel, dim, EmbeddingDimension)
	}

	return nil
}

// ValidateServe checks the additional requirements of the serve and ingest
// commands: upstream API credentials must be present before the service
// accepts work that needs them.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.GroqAPIKey == "" {
		return fmt.Errorf("%w: set GROQ_API_KEY", ErrMissingGroqKey)
	}
	if c.HuggingFaceAPIKey == "" {
		return fmt.Errorf("%w: set HUGGINGFACE_API_KEY", ErrMissingHuggingFaceKey)
	}
	return nil
}
