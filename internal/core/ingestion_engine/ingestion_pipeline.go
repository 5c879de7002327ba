// Package ingestion_engine orchestrates the document ingestion
// pipeline: extract, chunk, embed, index, swap.
package ingestion_engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/docchat-ai/docchat/internal/core"
	"github.com/docchat-ai/docchat/internal/core/chunker"
	"github.com/docchat-ai/docchat/internal/logger"
	"github.com/docchat-ai/docchat/internal/models"
)

// embedConcurrency bounds parallel embedding requests per document.
const embedConcurrency = 4

// DocumentIngestor runs the pipeline behind a bounded in-memory job
// queue (easy to swap for a broker later).
type DocumentIngestor struct {
	db        core.DocumentStore
	obj       core.ObjectClient
	index     core.VectorIndex
	embedder  core.EmbeddingProvider
	extractor core.DocumentExtractor
	cfg       *IngestConfig
	bucket    string
	log       *logger.Logger
	jobs      chan string
}

func NewDocumentIngestor(
	db core.DocumentStore,
	obj core.ObjectClient,
	index core.VectorIndex,
	emb core.EmbeddingProvider,
	extractor core.DocumentExtractor,
	cfg *IngestConfig,
	bucket string,
	log *logger.Logger,
) *DocumentIngestor {
	return &DocumentIngestor{
		db: db, obj: obj, index: index, embedder: emb, extractor: extractor,
		cfg: cfg, bucket: bucket, log: log,
		jobs: make(chan string, 64),
	}
}

// Start launches the worker goroutines reading from the job queue.
// Different documents process fully in parallel; the per-document CAS
// in the store keeps two workers off the same document.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			wlog := i.log.With("worker", w)
			for {
				select {
				case <-ctx.Done():
					wlog.Info("ingest worker shutting down")
					return
				case docID := <-i.jobs:
					if _, err := i.ProcessOne(ctx, docID); err != nil {
						if errors.Is(err, core.ErrIngestionInProgress) {
							wlog.Debug("document already processing", "document_id", docID)
							continue
						}
						wlog.Error("ingestion failed", "document_id", docID, "error", err)
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a document ID for ingestion. Blocks when the queue
// is full.
func (i *DocumentIngestor) Enqueue(docID string) {
	i.jobs <- docID
}

// ProcessOne brings one document to the processed state.
//
// A failure after the state CAS marks the document failed but leaves
// the previously committed chunk/vector set untouched, so ingestion
// failures never degrade retrieval. Fresh vectors already written for
// the aborted run are cleaned up.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, docID string) (*models.Document, error) {
	procCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	doc, err := i.db.GetDocumentByID(procCtx, docID)
	if err != nil {
		return nil, err
	}

	data, err := i.obj.GetFile(procCtx, i.bucket, doc.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("fetch source %s: %w", doc.SourcePath, err)
	}
	text, err := i.extractor.ExtractText(procCtx, data, doc.ContentType)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", doc.SourcePath, err)
	}

	hash := contentHash(text)
	if hash == doc.ContentHash && doc.Status == models.DocumentProcessed {
		i.log.Debug("content unchanged, skipping ingestion", "document_id", docID)
		return doc, nil
	}

	if _, err := i.db.BeginProcessing(procCtx, docID); err != nil {
		return nil, err
	}

	rows, newRefs, err := i.chunkEmbedIndex(procCtx, doc, text)
	if err != nil {
		return nil, i.fail(docID, newRefs, err)
	}

	retired, err := i.db.ReplaceDocumentChunks(procCtx, docID, hash, rows)
	if err != nil {
		return nil, i.fail(docID, newRefs, fmt.Errorf("swap chunk set: %w", err))
	}

	// Old vectors go away only after the new set is committed, so
	// retrieval never sees a gap. Orphans from a failed delete are
	// harmless: their refs no longer resolve to chunks.
	if len(retired) > 0 {
		if err := i.index.Delete(procCtx, retired...); err != nil {
			i.log.Warn("failed to retire old vectors", "document_id", docID, "count", len(retired), "error", err)
		}
	}

	i.log.Info("document processed", "document_id", docID, "chunks", len(rows))
	return i.db.GetDocumentByID(procCtx, docID)
}

// chunkEmbedIndex produces the new chunk rows and writes their vectors
// under fresh refs. It returns whatever refs it managed to upsert so a
// failing run can clean up after itself.
func (i *DocumentIngestor) chunkEmbedIndex(ctx context.Context, doc *models.Document, text string) ([]models.DocumentChunk, []string, error) {
	chunks, err := chunker.Split(text, i.cfg.MaxTokens, i.cfg.OverlapTokens)
	if err != nil {
		return nil, nil, err
	}

	texts := make([]string, len(chunks))
	for idx, ch := range chunks {
		texts[idx] = ch.Text
	}

	vectors, err := i.embedAll(ctx, texts)
	if err != nil {
		return nil, nil, err
	}

	rows := make([]models.DocumentChunk, len(chunks))
	newRefs := make([]string, 0, len(chunks))
	for idx, ch := range chunks {
		rows[idx] = models.DocumentChunk{
			ID:            uuid.NewString(),
			DocumentID:    doc.ID,
			SequenceIndex: ch.Index,
			Text:          ch.Text,
			TokenCount:    ch.TokenCount,
			VectorRef:     uuid.NewString(),
		}
	}
	for idx := range rows {
		meta := core.ChunkMetadata{
			DocumentID:    doc.ID,
			ChunkID:       rows[idx].ID,
			SequenceIndex: rows[idx].SequenceIndex,
		}
		if err := i.index.Upsert(ctx, rows[idx].VectorRef, vectors[idx], meta); err != nil {
			return nil, newRefs, fmt.Errorf("index chunk %d: %w", idx, err)
		}
		newRefs = append(newRefs, rows[idx].VectorRef)
	}
	return rows, newRefs, nil
}

// embedAll embeds chunk texts in order-preserving batches, a few
// batches in flight at a time.
func (i *DocumentIngestor) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	bs := i.cfg.batchSize()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(texts); start += bs {
		start := start
		end := start + bs
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := i.embedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// embedBatch retries transient provider failures with exponential
// backoff up to the configured attempt bound. Token-limit and
// configuration errors are permanent: they are operator problems, not
// weather.
func (i *DocumentIngestor) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 500 * time.Millisecond
	expo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, i.cfg.maxAttempts()-1), ctx)
	return backoff.RetryWithData(func() ([][]float32, error) {
		vecs, err := i.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			if errors.Is(err, core.ErrEmbeddingTooLong) || errors.Is(err, core.ErrInvalidConfiguration) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, backoff.Permanent(fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(texts)))
		}
		return vecs, nil
	}, policy)
}

func (i *DocumentIngestor) fail(docID string, newRefs []string, cause error) error {
	// Detached context: the run may be failing because its own context
	// expired, and the failure mark still has to land.
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := i.db.MarkFailed(cleanupCtx, docID); err != nil {
		i.log.Error("failed to mark document failed", "document_id", docID, "error", err)
	}
	if len(newRefs) > 0 {
		if err := i.index.Delete(cleanupCtx, newRefs...); err != nil {
			i.log.Warn("failed to clean up new vectors", "document_id", docID, "count", len(newRefs), "error", err)
		}
	}
	return cause
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

var _ Ingestor = (*DocumentIngestor)(nil)
