package knowledge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/google/uuid"
	"github.com/haivivi/zoocari/pkg/embed"
	"github.com/haivivi/zoocari/pkg/kv"
	"github.com/haivivi/zoocari/pkg/storage"
	"github.com/haivivi/zoocari/pkg/vecstore"
	"github.com/vmihailenco/msgpack/v5"
)

// Searcher finds the passages closest to a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Hit, error)
}

var passagePrefix = kv.Key{"kb", "passage"}

func passageKey(id string) kv.Key { return passagePrefix.Append(id) }

// Index stores passages and their embeddings.
type Index struct {
	store    kv.Store
	vectors  *vecstore.Memory
	embedder embed.Embedder
}

var _ Searcher = (*Index)(nil)

// NewIndex creates an index over store and vectors. A nil vectors starts
// an empty in-memory index.
func NewIndex(store kv.Store, vectors *vecstore.Memory, embedder embed.Embedder) *Index {
	if vectors == nil {
		vectors = vecstore.NewMemory()
	}
	return &Index{store: store, vectors: vectors, embedder: embedder}
}

// Len returns the number of indexed passages.
func (x *Index) Len() int { return x.vectors.Len() }

// Add embeds passages and stores them. Passages without an ID get a random
// one; passages with an existing ID are replaced.
func (x *Index) Add(ctx context.Context, passages ...Passage) error {
	if len(passages) == 0 {
		return nil
	}
	texts := make([]string, len(passages))
	for i := range passages {
		if passages[i].ID == "" {
			passages[i].ID = uuid.NewString()
		}
		texts[i] = passages[i].Text
	}
	vecs, err := x.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("knowledge: embed %d passages: %w", len(passages), err)
	}

	entries := make([]kv.Entry, len(passages))
	ids := make([]string, len(passages))
	for i, p := range passages {
		b, err := msgpack.Marshal(&p)
		if err != nil {
			return fmt.Errorf("knowledge: encode passage %s: %w", p.ID, err)
		}
		entries[i] = kv.Entry{Key: passageKey(p.ID), Value: b}
		ids[i] = p.ID
	}
	if err := x.store.BatchSet(ctx, entries); err != nil {
		return fmt.Errorf("knowledge: store passages: %w", err)
	}
	if err := x.vectors.BatchInsert(ids, vecs); err != nil {
		return fmt.Errorf("knowledge: index passages: %w", err)
	}
	return nil
}

// Get returns the passage stored under id.
func (x *Index) Get(ctx context.Context, id string) (Passage, error) {
	return kv.GetValue[Passage](ctx, x.store, passageKey(id))
}

// Search embeds query and returns up to k passages, closest first.
// Vectors whose passage has gone missing from the store are skipped.
func (x *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 || x.vectors.Len() == 0 {
		return nil, nil
	}
	q, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("knowledge: embed query: %w", err)
	}
	matches, err := x.vectors.Search(q, k)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		p, err := x.Get(ctx, m.ID)
		if errors.Is(err, kv.ErrNotFound) {
			slog.Warn("knowledge: passage missing for vector", "id", m.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("knowledge: load passage %s: %w", m.ID, err)
		}
		hits = append(hits, Hit{Passage: p, Distance: m.Distance})
	}
	return hits, nil
}

// Passages lists every stored passage in id order.
func (x *Index) Passages(ctx context.Context) ([]Passage, error) {
	var out []Passage
	for p, err := range kv.Values[Passage](ctx, x.store, passagePrefix) {
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Snapshot paths within a FileStore.
const (
	vectorsFile  = "vectors.msgpack"
	passagesFile = "passages.msgpack"
)

// Save writes the index to fs under dir, so another process can Load it
// without re-embedding.
func (x *Index) Save(ctx context.Context, fs storage.FileStore, dir string) error {
	var buf bytes.Buffer
	if err := x.vectors.Save(&buf); err != nil {
		return err
	}
	if err := storage.WriteFile(ctx, fs, path.Join(dir, vectorsFile), buf.Bytes()); err != nil {
		return fmt.Errorf("knowledge: save vectors: %w", err)
	}

	passages, err := x.Passages(ctx)
	if err != nil {
		return fmt.Errorf("knowledge: list passages: %w", err)
	}
	b, err := msgpack.Marshal(passages)
	if err != nil {
		return fmt.Errorf("knowledge: encode passages: %w", err)
	}
	if err := storage.WriteFile(ctx, fs, path.Join(dir, passagesFile), b); err != nil {
		return fmt.Errorf("knowledge: save passages: %w", err)
	}
	slog.Info("knowledge: index saved", "dir", dir, "passages", len(passages))
	return nil
}

// Load reads an index written by Save into store. A missing snapshot
// yields an empty index.
func Load(ctx context.Context, fs storage.FileStore, dir string, store kv.Store, embedder embed.Embedder) (*Index, error) {
	vb, err := storage.ReadFile(ctx, fs, path.Join(dir, vectorsFile))
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("knowledge: no index snapshot, starting empty", "dir", dir)
		return NewIndex(store, nil, embedder), nil
	}
	if err != nil {
		return nil, fmt.Errorf("knowledge: read vectors: %w", err)
	}
	vectors, err := vecstore.LoadMemory(bytes.NewReader(vb))
	if err != nil {
		return nil, err
	}
	if want := embedder.Dimension(); want > 0 && vectors.Dim() > 0 && vectors.Dim() != want {
		return nil, fmt.Errorf("knowledge: index dimension %d, embedder dimension %d: %w", vectors.Dim(), want, vecstore.ErrDimension)
	}

	pb, err := storage.ReadFile(ctx, fs, path.Join(dir, passagesFile))
	if err != nil {
		return nil, fmt.Errorf("knowledge: read passages: %w", err)
	}
	var passages []Passage
	if err := msgpack.Unmarshal(pb, &passages); err != nil {
		return nil, fmt.Errorf("knowledge: decode passages: %w", err)
	}
	entries := make([]kv.Entry, 0, len(passages))
	for _, p := range passages {
		b, err := msgpack.Marshal(&p)
		if err != nil {
			return nil, fmt.Errorf("knowledge: encode passage %s: %w", p.ID, err)
		}
		entries = append(entries, kv.Entry{Key: passageKey(p.ID), Value: b})
	}
	if err := store.BatchSet(ctx, entries); err != nil {
		return nil, fmt.Errorf("knowledge: store passages: %w", err)
	}
	slog.Info("knowledge: index loaded", "dir", dir, "passages", len(passages), "vectors", vectors.Len())
	return NewIndex(store, vectors, embedder), nil
}
