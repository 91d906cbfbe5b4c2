package vecstore

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sync"
)

// Memory is an in-memory exact Index.
type Memory struct {
	mu      sync.RWMutex
	dim     int
	vectors map[string][]float32
}

var _ Index = (*Memory)(nil)

// NewMemory creates an empty index.
func NewMemory() *Memory {
	return &Memory{vectors: make(map[string][]float32)}
}

// Dim returns the vector dimension, or 0 if the index is empty and has
// never been written.
func (m *Memory) Dim() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dim
}

func (m *Memory) checkDimLocked(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimension)
	}
	if m.dim != 0 && len(v) != m.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimension, len(v), m.dim)
	}
	return nil
}

func (m *Memory) Insert(id string, vector []float32) error {
	return m.BatchInsert([]string{id}, [][]float32{vector})
}

func (m *Memory) BatchInsert(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("vecstore: %d ids for %d vectors", len(ids), len(vectors))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vectors {
		if err := m.checkDimLocked(v); err != nil {
			return err
		}
		if m.dim == 0 {
			m.dim = len(v)
		}
	}
	for i, id := range ids {
		m.vectors[id] = slices.Clone(vectors[i])
	}
	return nil
}

// Search scans every vector. Ties are broken by id so results are stable.
func (m *Memory) Search(query []float32, topK int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.vectors) == 0 || topK <= 0 {
		return nil, nil
	}
	if len(query) != m.dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimension, len(query), m.dim)
	}

	matches := make([]Match, 0, len(m.vectors))
	for id, vec := range m.vectors {
		matches = append(matches, Match{ID: id, Distance: CosineDistance(query, vec)})
	}
	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *Memory) Delete(id string) error {
	m.mu.Lock()
	delete(m.vectors, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

func (m *Memory) Close() error { return nil }

// CosineDistance returns 1 - cos(a, b), in [0, 2]. Vectors of different
// length or with zero norm are maximally distant.
func CosineDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 2
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return float32(1 - max(-1, min(1, sim)))
}
