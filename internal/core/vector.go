package core

import (
	"context"
	"fmt"
)

// ChunkMetadata is the validated metadata record attached to every
// indexed vector. Keeping it a typed struct (not a free-form map) keeps
// filter semantics well-defined.
type ChunkMetadata struct {
	DocumentID    string
	ChunkID       string
	SequenceIndex int
}

func (m ChunkMetadata) Validate() error {
	if m.DocumentID == "" {
		return fmt.Errorf("%w: chunk metadata missing document id", ErrInvalidConfiguration)
	}
	if m.ChunkID == "" {
		return fmt.Errorf("%w: chunk metadata missing chunk id", ErrInvalidConfiguration)
	}
	if m.SequenceIndex < 0 {
		return fmt.Errorf("%w: negative sequence index %d", ErrInvalidConfiguration, m.SequenceIndex)
	}
	return nil
}

// SearchFilter restricts search candidates by metadata. A nil filter
// means whole-corpus retrieval; a DocumentID scopes retrieval to one
// document (how selection-scoped turns are implemented).
type SearchFilter struct {
	DocumentID string
}

// SearchHit is one nearest-neighbor result.
type SearchHit struct {
	VectorRef string
	Score     float64
}

// VectorIndex stores chunk vectors and answers nearest-neighbor queries.
//
// Guarantees implementations must hold:
//   - Upsert of an existing ref fully replaces it.
//   - Search never returns a ref that was deleted and not re-upserted.
//   - Results are ordered by descending score, ties broken
//     most-recently-upserted first, length <= k.
type VectorIndex interface {
	Upsert(ctx context.Context, ref string, vector []float32, meta ChunkMetadata) error
	Delete(ctx context.Context, refs ...string) error
	Search(ctx context.Context, queryVec []float32, k int, filter *SearchFilter) ([]SearchHit, error)
	Close() error
}
