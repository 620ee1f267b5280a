package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryIndex is the in-process index implementation: a flat scan over
// entries guarded by a RWMutex. Searches proceed under the read lock while
// mutations of other items wait their turn; upserts of the same key serialize
// on the write lock, so callers never need external locking.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	seq     uint64
}

type memEntry struct {
	Entry
	seq uint64 // insertion recency, for deterministic tie-breaks
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]*memEntry)}
}

func (m *MemoryIndex) Upsert(_ context.Context, e Entry) error {
	vec := make([]float32, len(e.Vector))
	copy(vec, e.Vector)
	e.Vector = vec

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.entries[e.ItemID] = &memEntry{Entry: e, seq: m.seq}
	return nil
}

func (m *MemoryIndex) Delete(_ context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, itemID)
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, query []float32, k int, f *Filter) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	type scored struct {
		Match
		seq uint64
	}
	candidates := make([]scored, 0, len(m.entries))
	for _, e := range m.entries {
		if !f.matches(&e.Entry) {
			continue
		}
		candidates = append(candidates, scored{
			Match: Match{ItemID: e.ItemID, Score: cosine(query, e.Vector)},
			seq:   e.seq,
		})
	}
	m.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].seq > candidates[j].seq
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	matches := make([]Match, len(candidates))
	for i, c := range candidates {
		matches[i] = c.Match
	}
	return matches, nil
}

// Get returns the stored entry for itemID, if present.
func (m *MemoryIndex) Get(_ context.Context, itemID string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[itemID]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// GetVector returns the stored vector for itemID.
func (m *MemoryIndex) GetVector(_ context.Context, itemID string) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[itemID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexed, itemID)
	}
	vec := make([]float32, len(e.Vector))
	copy(vec, e.Vector)
	return vec, nil
}

// Count reports the number of indexed entries.
func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// cosine computes cosine similarity. All indexed vectors are unit length, so
// this is a plain dot product for well-formed input; mismatched lengths score
// over the shared prefix.
func cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float32
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	return dot
}
