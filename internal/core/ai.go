package core

import "context"

// EmbeddingProvider turns text into fixed-length vectors. EmbedTexts
// returns one vector per input, same order and length as the input.
// Failures map onto ErrEmbeddingUnavailable / ErrEmbeddingRateLimited /
// ErrEmbeddingTooLong so callers can back off or fail fast.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider generates an answer from an assembled prompt.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
