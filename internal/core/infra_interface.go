package core

import (
	"context"
	"io"

	"github.com/docchat-ai/docchat/internal/models"
)

// DocumentStore is the durable record of documents and their chunks.
// It owns the processing-state machine and the atomic chunk-set swap;
// nothing else touches its tables directly.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	GetDocumentBySourcePath(ctx context.Context, sourcePath string) (*models.Document, error)
	ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error)

	// BeginProcessing compare-and-swaps the document into the processing
	// state. A document already processing yields ErrIngestionInProgress,
	// which enforces at most one concurrent run per document.
	BeginProcessing(ctx context.Context, id string) (*models.Document, error)
	MarkFailed(ctx context.Context, id string) error

	// ReplaceDocumentChunks swaps the document's chunk set for the given
	// one, records the new content hash and marks the document processed,
	// all in one transaction. It returns the vector refs of the retired
	// chunks so the caller can delete them from the index afterwards.
	ReplaceDocumentChunks(ctx context.Context, documentID, contentHash string, chunks []models.DocumentChunk) (retiredRefs []string, err error)

	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	GetChunksByVectorRefs(ctx context.Context, refs []string) ([]models.DocumentChunk, error)

	// DeleteDocument removes the document and cascades to its chunks,
	// returning the retired vector refs.
	DeleteDocument(ctx context.Context, id string) (retiredRefs []string, err error)
}

// ConversationStore is the durable, append-only record of conversations
// and messages. Messages are immutable once written; corrections are new
// messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, ownerID string) (*models.Conversation, error)
	GetConversationByID(ctx context.Context, id string) (*models.Conversation, error)
	ArchiveConversation(ctx context.Context, id string) error

	// AppendMessage appends one message, assigning the next seq. Fails
	// with ErrConversationNotFound or ErrConversationArchived.
	AppendMessage(ctx context.Context, msg *models.Message) (*models.Message, error)

	// AppendTurn persists a user/assistant pair both-or-neither so a
	// successful turn never leaves the history half written.
	AppendTurn(ctx context.Context, userMsg, assistantMsg *models.Message) error

	// ListMessages returns messages with seq > sinceSeq, oldest first.
	ListMessages(ctx context.Context, conversationID string, sinceSeq int64) ([]models.Message, error)
}

// UserStore backs the auth layer that resolves owner IDs.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// DbClient bundles the relational stores served by one database client.
type DbClient interface {
	UserStore
	DocumentStore
	ConversationStore
	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
