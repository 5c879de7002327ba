package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/docchat-ai/docchat/internal/core"
)

// MemoryIndex is a brute-force cosine-similarity index. It backs tests
// and single-node setups that do not want a pgvector dependency.
type MemoryIndex struct {
	mu       sync.RWMutex
	entries  map[string]*memoryEntry
	seq      int64
	minScore float64
}

type memoryEntry struct {
	vector []float32
	meta   core.ChunkMetadata
	seq    int64 // insertion order, used to break score ties
}

func NewMemoryIndex(minScore float64) *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]*memoryEntry), minScore: minScore}
}

func (x *MemoryIndex) Upsert(ctx context.Context, ref string, vector []float32, meta core.ChunkMetadata) error {
	if err := meta.Validate(); err != nil {
		return err
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector for ref %s", core.ErrInvalidConfiguration, ref)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.seq++
	cp := make([]float32, len(vector))
	copy(cp, vector)
	x.entries[ref] = &memoryEntry{vector: cp, meta: meta, seq: x.seq}
	return nil
}

func (x *MemoryIndex) Delete(ctx context.Context, refs ...string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, r := range refs {
		delete(x.entries, r)
	}
	return nil
}

func (x *MemoryIndex) Search(ctx context.Context, queryVec []float32, k int, filter *core.SearchFilter) ([]core.SearchHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", core.ErrInvalidConfiguration, k)
	}
	if filter != nil && filter.DocumentID == "" {
		return nil, fmt.Errorf("%w: filter without document id", core.ErrInvalidConfiguration)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	type scored struct {
		hit core.SearchHit
		seq int64
	}
	var candidates []scored
	for ref, e := range x.entries {
		if filter != nil && e.meta.DocumentID != filter.DocumentID {
			continue
		}
		score := cosine(queryVec, e.vector)
		if score < x.minScore {
			continue
		}
		candidates = append(candidates, scored{hit: core.SearchHit{VectorRef: ref, Score: score}, seq: e.seq})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].hit.Score != candidates[j].hit.Score {
			return candidates[i].hit.Score > candidates[j].hit.Score
		}
		return candidates[i].seq > candidates[j].seq
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]core.SearchHit, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, candidates[i].hit)
	}
	return out, nil
}

func (x *MemoryIndex) Close() error { return nil }

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ core.VectorIndex = (*MemoryIndex)(nil)
