package ingestion_engine

import (
	"context"

	"github.com/docchat-ai/docchat/internal/models"
)

// Ingestor brings documents from pending/changed to processed.
type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(docID string)
	ProcessOne(ctx context.Context, docID string) (*models.Document, error)
}
