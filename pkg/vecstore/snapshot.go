package vecstore

import (
	"fmt"
	"io"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

const snapshotVersion = 1

type snapshot struct {
	Version int         `msgpack:"v"`
	Dim     int         `msgpack:"dim"`
	IDs     []string    `msgpack:"ids"`
	Vectors [][]float32 `msgpack:"vectors"`
}

// Save writes the index as a msgpack snapshot, ids in sorted order.
func (m *Memory) Save(w io.Writer) error {
	m.mu.RLock()
	snap := snapshot{Version: snapshotVersion, Dim: m.dim}
	for id := range m.vectors {
		snap.IDs = append(snap.IDs, id)
	}
	slices.Sort(snap.IDs)
	snap.Vectors = make([][]float32, len(snap.IDs))
	for i, id := range snap.IDs {
		snap.Vectors[i] = m.vectors[id]
	}
	err := msgpack.NewEncoder(w).Encode(&snap)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("vecstore: save: %w", err)
	}
	return nil
}

// LoadMemory reads a snapshot written by Save.
func LoadMemory(r io.Reader) (*Memory, error) {
	var snap snapshot
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("vecstore: load: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("vecstore: load: unsupported snapshot version %d", snap.Version)
	}
	m := NewMemory()
	if err := m.BatchInsert(snap.IDs, snap.Vectors); err != nil {
		return nil, fmt.Errorf("vecstore: load: %w", err)
	}
	if snap.Dim != 0 && m.dim != 0 && snap.Dim != m.dim {
		return nil, fmt.Errorf("vecstore: load: %w: header %d, vectors %d", ErrDimension, snap.Dim, m.dim)
	}
	m.dim = snap.Dim
	return m, nil
}
