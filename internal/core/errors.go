package core

import "errors"

// Sentinel errors shared across components. Callers classify failures
// with errors.Is; components wrap these with %w and local detail.
var (
	// ErrInvalidConfiguration marks a caller bug: bad chunk/overlap
	// sizing, malformed filters or metadata. Fatal, never retried.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrEmbeddingUnavailable is a transient transport/provider failure.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrEmbeddingRateLimited means the provider throttled us; callers
	// back off and retry a bounded number of times.
	ErrEmbeddingRateLimited = errors.New("embedding provider rate limited")

	// ErrEmbeddingTooLong means a chunk exceeded the provider's token
	// limit. That is a chunker configuration bug, not transient.
	ErrEmbeddingTooLong = errors.New("embedding input exceeds provider token limit")

	// ErrIngestionInProgress signals another ingestion run already holds
	// the document. Expected under concurrency, not worth alerting on.
	ErrIngestionInProgress = errors.New("ingestion already in progress")

	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidUser marks a signup payload the store must never see:
	// missing email or password hash.
	ErrInvalidUser = errors.New("invalid user payload")

	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationArchived = errors.New("conversation archived")

	// ErrGenerationFailure is recoverable: the user turn is persisted,
	// the assistant turn is not, and the caller may retry the turn.
	ErrGenerationFailure = errors.New("generation failed")
)
