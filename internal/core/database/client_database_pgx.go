package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/docchat-ai/docchat/internal/config"
	"github.com/docchat-ai/docchat/internal/core"
	"github.com/docchat-ai/docchat/internal/models"
)

// DatabaseClient implements the document, conversation and user stores
// on Postgres via pgx. Chunk vectors live in their own table owned by
// the vector index; this client only shares the pool with it.
type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// DB exposes the underlying pool for components that share it (the
// pgvector index).
func (c *DatabaseClient) DB() *sql.DB { return c.db }

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// --- users ---

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, user.ID, user.FirstName, user.Email, user.PasswordHash)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// --- documents ---

const documentColumns = `id, owner_id, source_path, storage_url, source_type, content_type, content_hash, status, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.OwnerID, &d.SourcePath, &d.StorageURL, &d.SourceType,
		&d.ContentType, &d.ContentHash, &d.Status, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, owner_id, source_path, storage_url, source_type, content_type, content_hash, status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.OwnerID, doc.SourcePath, doc.StorageURL, doc.SourceType, doc.ContentType, doc.ContentHash, doc.Status)
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(c.db.QueryRowContext(ctx, q, id))
}

func (c *DatabaseClient) GetDocumentBySourcePath(ctx context.Context, sourcePath string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE source_path = $1`
	return scanDocument(c.db.QueryRowContext(ctx, q, sourcePath))
}

func (c *DatabaseClient) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.OwnerID, &d.SourcePath, &d.StorageURL, &d.SourceType,
			&d.ContentType, &d.ContentHash, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// BeginProcessing compare-and-swaps the document into "processing". The
// state filter in the UPDATE is what makes two concurrent ingestion
// runs on the same document impossible: the loser matches zero rows and
// gets ErrIngestionInProgress.
func (c *DatabaseClient) BeginProcessing(ctx context.Context, id string) (*models.Document, error) {
	q := `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status <> $2
		RETURNING ` + documentColumns
	doc, err := scanDocument(c.db.QueryRowContext(ctx, q, id, models.DocumentProcessing))
	if errors.Is(err, core.ErrDocumentNotFound) {
		// Zero rows: either the document is gone or another run holds it.
		if _, getErr := c.GetDocumentByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, core.ErrIngestionInProgress
	}
	return doc, err
}

func (c *DatabaseClient) MarkFailed(ctx context.Context, id string) error {
	const q = `UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`
	res, err := c.db.ExecContext(ctx, q, id, models.DocumentFailed)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrDocumentNotFound
	}
	return nil
}

// ReplaceDocumentChunks swaps the chunk set, records the new content
// hash and marks the document processed in a single transaction, so
// retrieval either sees the full old set or the full new one.
func (c *DatabaseClient) ReplaceDocumentChunks(ctx context.Context, documentID, contentHash string, chunks []models.DocumentChunk) ([]string, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT vector_ref FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return nil, err
	}
	var retired []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			rows.Close()
			return nil, err
		}
		retired = append(retired, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return nil, err
	}

	const insertQ = `
		INSERT INTO document_chunks
			(id, document_id, sequence_index, text, token_count, vector_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`
	stmt, err := tx.PrepareContext(ctx, insertQ)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.DocumentID, ch.SequenceIndex, ch.Text, ch.TokenCount, ch.VectorRef); err != nil {
			return nil, err
		}
	}

	const updateQ = `
		UPDATE documents
		SET content_hash = $2, status = $3, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, updateQ, documentID, contentHash, models.DocumentProcessed); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return retired, nil
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, sequence_index, text, token_count, vector_ref, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY sequence_index ASC
	`
	return c.queryChunks(ctx, q, documentID)
}

func (c *DatabaseClient) GetChunksByVectorRefs(ctx context.Context, refs []string) ([]models.DocumentChunk, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	const q = `
		SELECT id, document_id, sequence_index, text, token_count, vector_ref, created_at
		FROM document_chunks
		WHERE vector_ref = ANY($1::uuid[])
	`
	return c.queryChunks(ctx, q, refs)
}

func (c *DatabaseClient) queryChunks(ctx context.Context, q string, args ...any) ([]models.DocumentChunk, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.SequenceIndex, &ch.Text, &ch.TokenCount, &ch.VectorRef, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) ([]string, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT vector_ref FROM document_chunks WHERE document_id = $1`, id)
	if err != nil {
		return nil, err
	}
	var retired []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			rows.Close()
			return nil, err
		}
		retired = append(retired, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, core.ErrDocumentNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return retired, nil
}

// --- conversations ---

func (c *DatabaseClient) CreateConversation(ctx context.Context, ownerID string) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		State:   models.ConversationActive,
	}
	const q = `
		INSERT INTO conversations (id, owner_id, state, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING created_at
	`
	if err := c.db.QueryRowContext(ctx, q, conv.ID, conv.OwnerID, conv.State).Scan(&conv.CreatedAt); err != nil {
		return nil, err
	}
	return conv, nil
}

func (c *DatabaseClient) GetConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	const q = `SELECT id, owner_id, state, created_at FROM conversations WHERE id = $1`
	var conv models.Conversation
	err := c.db.QueryRowContext(ctx, q, id).Scan(&conv.ID, &conv.OwnerID, &conv.State, &conv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *DatabaseClient) ArchiveConversation(ctx context.Context, id string) error {
	const q = `UPDATE conversations SET state = $2 WHERE id = $1`
	res, err := c.db.ExecContext(ctx, q, id, models.ConversationArchived)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrConversationNotFound
	}
	return nil
}

// lockConversation takes the conversation's row lock, serializing all
// appends within one conversation while leaving other conversations
// fully parallel.
func lockConversation(ctx context.Context, tx *sql.Tx, id string) error {
	var state string
	err := tx.QueryRowContext(ctx, `SELECT state FROM conversations WHERE id = $1 FOR UPDATE`, id).Scan(&state)
	if err == sql.ErrNoRows {
		return core.ErrConversationNotFound
	}
	if err != nil {
		return err
	}
	if state != models.ConversationActive {
		return core.ErrConversationArchived
	}
	return nil
}

func appendLocked(ctx context.Context, tx *sql.Tx, msg *models.Message) (*models.Message, error) {
	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = $1`,
		msg.ConversationID,
	).Scan(&seq); err != nil {
		return nil, err
	}

	refs := msg.ContextRefs
	if refs == nil {
		refs = []string{}
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return nil, err
	}

	out := *msg
	out.Seq = seq
	const q = `
		INSERT INTO messages (id, conversation_id, role, content, context_refs, seq, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING created_at
	`
	if err := tx.QueryRowContext(ctx, q,
		out.ID, out.ConversationID, out.Role, out.Content, refsJSON, out.Seq,
	).Scan(&out.CreatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *DatabaseClient) AppendMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockConversation(ctx, tx, msg.ConversationID); err != nil {
		return nil, err
	}
	out, err := appendLocked(ctx, tx, msg)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// AppendTurn writes the user and assistant messages of one successful
// turn in a single transaction: both-or-neither.
func (c *DatabaseClient) AppendTurn(ctx context.Context, userMsg, assistantMsg *models.Message) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockConversation(ctx, tx, userMsg.ConversationID); err != nil {
		return err
	}
	u, err := appendLocked(ctx, tx, userMsg)
	if err != nil {
		return err
	}
	a, err := appendLocked(ctx, tx, assistantMsg)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	*userMsg = *u
	*assistantMsg = *a
	return nil
}

func (c *DatabaseClient) ListMessages(ctx context.Context, conversationID string, sinceSeq int64) ([]models.Message, error) {
	// Existence check so an empty result for a bogus id is an error,
	// not an empty history.
	if _, err := c.GetConversationByID(ctx, conversationID); err != nil {
		return nil, err
	}

	const q = `
		SELECT id, conversation_id, role, content, context_refs, seq, created_at
		FROM messages
		WHERE conversation_id = $1 AND seq > $2
		ORDER BY seq ASC
	`
	rows, err := c.db.QueryContext(ctx, q, conversationID, sinceSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var (
			m        models.Message
			refsJSON []byte
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &refsJSON, &m.Seq, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(refsJSON, &m.ContextRefs); err != nil {
			return nil, fmt.Errorf("decode context refs for message %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

var _ core.DbClient = (*DatabaseClient)(nil)
