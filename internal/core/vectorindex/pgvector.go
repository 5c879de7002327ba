// Package vectorindex provides the nearest-neighbor store for chunk
// embeddings, keyed by opaque vector refs.
package vectorindex

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/docchat-ai/docchat/internal/core"
)

// PgVectorIndex keeps chunk vectors in a pgvector column alongside the
// validated metadata columns used for filtering. Similarity is cosine;
// score = 1 - cosine distance.
type PgVectorIndex struct {
	db       *sql.DB
	minScore float64
}

// NewPgVectorIndex wraps an existing connection pool; the pool's
// lifecycle stays with the owner.
func NewPgVectorIndex(db *sql.DB, minScore float64) *PgVectorIndex {
	return &PgVectorIndex{db: db, minScore: minScore}
}

func (x *PgVectorIndex) Upsert(ctx context.Context, ref string, vector []float32, meta core.ChunkMetadata) error {
	if err := meta.Validate(); err != nil {
		return err
	}
	const q = `
		INSERT INTO chunk_vectors (vector_ref, document_id, chunk_id, sequence_index, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (vector_ref) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			chunk_id = EXCLUDED.chunk_id,
			sequence_index = EXCLUDED.sequence_index,
			embedding = EXCLUDED.embedding,
			updated_at = now()
	`
	_, err := x.db.ExecContext(ctx, q, ref, meta.DocumentID, meta.ChunkID, meta.SequenceIndex, pgvector.NewVector(vector))
	if err != nil {
		return fmt.Errorf("upsert vector %s: %w", ref, err)
	}
	return nil
}

func (x *PgVectorIndex) Delete(ctx context.Context, refs ...string) error {
	if len(refs) == 0 {
		return nil
	}
	const q = `DELETE FROM chunk_vectors WHERE vector_ref = ANY($1::uuid[])`
	if _, err := x.db.ExecContext(ctx, q, refs); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

// Search returns up to k hits by descending similarity. Equal scores
// are broken most-recently-upserted first so results are reproducible.
func (x *PgVectorIndex) Search(ctx context.Context, queryVec []float32, k int, filter *core.SearchFilter) ([]core.SearchHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", core.ErrInvalidConfiguration, k)
	}
	if filter != nil && filter.DocumentID == "" {
		return nil, fmt.Errorf("%w: filter without document id", core.ErrInvalidConfiguration)
	}

	vec := pgvector.NewVector(queryVec)
	var (
		rows *sql.Rows
		err  error
	)
	if filter != nil {
		const q = `
			SELECT vector_ref, 1 - (embedding <=> $1) AS score
			FROM chunk_vectors
			WHERE document_id = $2 AND 1 - (embedding <=> $1) >= $3
			ORDER BY embedding <=> $1 ASC, updated_at DESC
			LIMIT $4
		`
		rows, err = x.db.QueryContext(ctx, q, vec, filter.DocumentID, x.minScore, k)
	} else {
		const q = `
			SELECT vector_ref, 1 - (embedding <=> $1) AS score
			FROM chunk_vectors
			WHERE 1 - (embedding <=> $1) >= $2
			ORDER BY embedding <=> $1 ASC, updated_at DESC
			LIMIT $3
		`
		rows, err = x.db.QueryContext(ctx, q, vec, x.minScore, k)
	}
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var out []core.SearchHit
	for rows.Next() {
		var h core.SearchHit
		if err := rows.Scan(&h.VectorRef, &h.Score); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Close is a no-op; the pool belongs to the database client.
func (x *PgVectorIndex) Close() error { return nil }

var _ core.VectorIndex = (*PgVectorIndex)(nil)
