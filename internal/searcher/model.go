package searcher

import (
	"sync/atomic"

	"github.com/intellicook/recipe-search/internal/vectorindex"
)

// Model is one immutable generation of the vector index. A rebuild
// produces a new Model; the old one is never mutated.
type Model struct {
	Name  string
	Index *vectorindex.Index
}

// Handle publishes the active model. Swapped atomically by the rebuild
// completion callback, read by every search.
type Handle struct {
	ptr atomic.Pointer[Model]
}

// NewHandle creates an empty handle with no active model
func NewHandle() *Handle {
	return &Handle{}
}

// Load returns the active model, or nil when none has been activated
func (h *Handle) Load() *Model {
	return h.ptr.Load()
}

// Swap replaces the active model
func (h *Handle) Swap(m *Model) {
	h.ptr.Store(m)
}
