package services

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/docchat-ai/docchat/internal/core"
	"github.com/docchat-ai/docchat/internal/core/ingestion_engine"
	"github.com/docchat-ai/docchat/internal/logger"
	"github.com/docchat-ai/docchat/internal/models"
)

type DocumentService struct {
	db       core.DbClient
	storage  core.ObjectClient
	index    core.VectorIndex
	ingestor ingestion_engine.Ingestor
	bucket   string
	log      *logger.Logger
}

func NewDocumentService(
	db core.DbClient,
	storage core.ObjectClient,
	index core.VectorIndex,
	ing ingestion_engine.Ingestor,
	bucket string,
	log *logger.Logger,
) *DocumentService {
	return &DocumentService{db: db, storage: storage, index: index, ingestor: ing, bucket: bucket, log: log}
}

// UploadAndCreate stores the raw bytes, registers the document in the
// pending state and queues it for ingestion.
func (s *DocumentService) UploadAndCreate(ctx context.Context, ownerID, filename, contentType string, data []byte, sourceType string) (*models.Document, error) {
	docID := uuid.NewString()
	key := s.objectKey(ownerID, docID, filename)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:          docID,
		OwnerID:     ownerID,
		SourcePath:  key,
		StorageURL:  url,
		SourceType:  sourceType, // "upload" or "url"
		ContentType: contentType,
		Status:      models.DocumentPending,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	s.ingestor.Enqueue(doc.ID)
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, ownerID, id string) (*models.Document, error) {
	return s.ownedDocument(ctx, ownerID, id)
}

func (s *DocumentService) ListByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	return s.db.ListDocumentsByOwner(ctx, ownerID)
}

// Reprocess queues another ingestion run for the document. Unchanged
// content makes the run a no-op; a document mid-run keeps its single
// active ingestion.
func (s *DocumentService) Reprocess(ctx context.Context, ownerID, id string) (*models.Document, error) {
	doc, err := s.ownedDocument(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == models.DocumentProcessing {
		return nil, core.ErrIngestionInProgress
	}
	s.ingestor.Enqueue(doc.ID)
	return doc, nil
}

// Delete removes the document row (cascading to its chunks), its
// vectors and the stored object. Vector and object cleanup after the
// row is gone is best effort: retrieval already cannot reach them.
func (s *DocumentService) Delete(ctx context.Context, ownerID, id string) error {
	doc, err := s.ownedDocument(ctx, ownerID, id)
	if err != nil {
		return err
	}

	retired, err := s.db.DeleteDocument(ctx, id)
	if err != nil {
		return err
	}
	if len(retired) > 0 {
		if err := s.index.Delete(ctx, retired...); err != nil {
			s.log.Warn("failed to delete vectors for removed document", "document_id", id, "error", err)
		}
	}
	if err := s.storage.DeleteFile(ctx, s.bucket, doc.SourcePath); err != nil {
		s.log.Warn("failed to delete stored object", "key", doc.SourcePath, "error", err)
	}
	return nil
}

func (s *DocumentService) ownedDocument(ctx context.Context, ownerID, id string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, core.ErrDocumentNotFound
	}
	return doc, nil
}

// objectKey creates a consistent S3 key layout.
func (s *DocumentService) objectKey(ownerID, docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", ownerID, "documents", docID, filename)
}
