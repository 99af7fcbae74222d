// Package vectorindex is a flat, memory-resident inner-product index over
// recipe vectors. Distances follow one convention everywhere:
//
//	dist = 1 - innerProduct(query, vec)
//
// so lower is closer and results come back ascending.
package vectorindex

import (
	"fmt"
	"sort"
	"sync"

	"github.com/intellicook/recipe-search/pkg/types"
)

// Index is a flat inner-product index. Safe for concurrent use.
type Index struct {
	mu   sync.RWMutex
	dim  int
	ids  []int64
	vecs [][]float32
	pos  map[int64]int // id -> slot in ids/vecs
}

// New creates an empty index for vectors of the given dimension
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", types.ErrInvalidArgument, dim)
	}
	return &Index{
		dim: dim,
		pos: make(map[int64]int),
	}, nil
}

// Dimension returns the vector dimension
func (idx *Index) Dimension() int {
	return idx.dim
}

// Count returns the number of vectors in the index
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

// Add inserts a vector under the given id. Adding an id that is already
// present replaces its vector (last write wins).
func (idx *Index) Add(id int64, vec []float32) error {
	if len(vec) != idx.dim {
		return fmt.Errorf("%w: index dimension %d, vector dimension %d", types.ErrDimensionMismatch, idx.dim, len(vec))
	}

	cp := make([]float32, len(vec))
	copy(cp, vec)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if slot, ok := idx.pos[id]; ok {
		idx.vecs[slot] = cp
		return nil
	}
	idx.pos[id] = len(idx.ids)
	idx.ids = append(idx.ids, id)
	idx.vecs = append(idx.vecs, cp)
	return nil
}

// Remove deletes a vector by id. Removing an absent id is a no-op.
func (idx *Index) Remove(id int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	slot, ok := idx.pos[id]
	if !ok {
		return
	}

	// Move the last entry into the freed slot
	last := len(idx.ids) - 1
	if slot != last {
		idx.ids[slot] = idx.ids[last]
		idx.vecs[slot] = idx.vecs[last]
		idx.pos[idx.ids[slot]] = slot
	}
	idx.ids = idx.ids[:last]
	idx.vecs = idx.vecs[:last]
	delete(idx.pos, id)
}

// Result is one nearest neighbor
type Result struct {
	ID       int64
	Distance float64
}

// Search returns the k nearest vectors to query, ordered by distance
// ascending. Fewer than k results are returned when the index is smaller.
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: index dimension %d, query dimension %d", types.ErrDimensionMismatch, idx.dim, len(query))
	}
	if k <= 0 {
		return []Result{}, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	results := make([]Result, 0, len(idx.ids))
	for i, id := range idx.ids {
		results = append(results, Result{
			ID:       id,
			Distance: 1 - innerProduct(query, idx.vecs[i]),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// DistanceTo returns the distance from query to the vector stored under id.
// The boolean is false when the id is not in the index.
func (idx *Index) DistanceTo(query []float32, id int64) (float64, bool, error) {
	if len(query) != idx.dim {
		return 0, false, fmt.Errorf("%w: index dimension %d, query dimension %d", types.ErrDimensionMismatch, idx.dim, len(query))
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	slot, ok := idx.pos[id]
	if !ok {
		return 0, false, nil
	}
	return 1 - innerProduct(query, idx.vecs[slot]), true, nil
}

// innerProduct computes the dot product of two equal-length vectors
func innerProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
