package ingestion_engine

// IngestConfig tunes the ingestion pipeline.
//
// MaxTokens:      token bound per chunk.
// OverlapTokens:  token overlap between consecutive chunks for context bleed.
// BatchSize:      how many chunk texts go into one embedding request.
// MaxAttempts:    bounded attempt count for transient embedding failures.
type IngestConfig struct {
	MaxTokens     int
	OverlapTokens int
	BatchSize     int
	MaxAttempts   int
}

func (c *IngestConfig) batchSize() int {
	if c.BatchSize <= 0 {
		return 16
	}
	return c.BatchSize
}

func (c *IngestConfig) maxAttempts() uint64 {
	if c.MaxAttempts <= 1 {
		return 1
	}
	return uint64(c.MaxAttempts)
}
