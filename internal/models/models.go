package models

import (
	"time"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document processing states.
const (
	DocumentPending    = "pending"
	DocumentProcessing = "processing"
	DocumentProcessed  = "processed"
	DocumentFailed     = "failed"
)

// Document represents a source document registered for retrieval.
// ContentHash is the SHA-256 of the extracted text; a changed hash
// triggers re-ingestion, an unchanged one makes re-ingestion a no-op.
type Document struct {
	ID          string    `db:"id" json:"id"`
	OwnerID     string    `db:"owner_id" json:"owner_id"`
	SourcePath  string    `db:"source_path" json:"source_path"` // unique within the corpus
	StorageURL  string    `db:"storage_url" json:"storage_url"`
	SourceType  string    `db:"source_type" json:"source_type"` // "upload" or "url"
	ContentType string    `db:"content_type" json:"content_type"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentChunk represents one retrievable span of a document's text.
// SequenceIndex values are contiguous and stable for a single ingestion
// run; re-ingestion replaces the whole chunk set atomically.
type DocumentChunk struct {
	ID            string    `db:"id" json:"id"`
	DocumentID    string    `db:"document_id" json:"document_id"`
	SequenceIndex int       `db:"sequence_index" json:"sequence_index"`
	Text          string    `db:"text" json:"text"`
	TokenCount    int       `db:"token_count" json:"token_count"`
	VectorRef     string    `db:"vector_ref" json:"vector_ref"` // opaque handle into the vector index
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Conversation states.
const (
	ConversationActive   = "active"
	ConversationArchived = "archived"
)

// Conversation represents one chat thread owned by a user.
// Conversations are archived rather than deleted while messages exist.
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	State     string    `db:"state" json:"state"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one immutable turn inside a conversation. Seq is assigned
// by the store and gives the append-only total order. ContextRefs holds
// the chunk IDs actually used to ground an assistant answer; empty means
// the answer is ungrounded.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Role           string    `db:"role" json:"role"`
	Content        string    `db:"content" json:"content"`
	ContextRefs    []string  `db:"context_refs" json:"context_refs"`
	Seq            int64     `db:"seq" json:"seq"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// SelectionContext is a user-highlighted span used to narrow retrieval
// to a single document for one turn. It is never persisted.
type SelectionContext struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}
