package app

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/haivivi/zoocari/pkg/config"
	"github.com/haivivi/zoocari/pkg/embed"
	"github.com/haivivi/zoocari/pkg/knowledge"
	"github.com/haivivi/zoocari/pkg/kv"
	"github.com/haivivi/zoocari/pkg/storage"
)

// Knowledge is the passage index with the stores behind it.
type Knowledge struct {
	Index *knowledge.Index
	Files storage.FileStore

	store *kv.Badger
	dir   string
}

// OpenKnowledge opens the kv database in the data directory and loads the
// index snapshot from the configured file store.
func OpenKnowledge(ctx context.Context, cfg *config.Config, client *http.Client) (*Knowledge, error) {
	files, err := OpenFiles(cfg)
	if err != nil {
		return nil, err
	}
	store, err := kv.NewBadger(kv.BadgerOptions{Dir: filepath.Join(cfg.Storage.DataDir, "kv")})
	if err != nil {
		return nil, err
	}
	idx, err := knowledge.Load(ctx, files, cfg.Storage.IndexDir, store, NewEmbedder(cfg, client))
	if err != nil {
		store.Close()
		return nil, err
	}
	return &Knowledge{Index: idx, Files: files, store: store, dir: cfg.Storage.IndexDir}, nil
}

// Save writes the index snapshot back to the file store.
func (k *Knowledge) Save(ctx context.Context) error {
	return k.Index.Save(ctx, k.Files, k.dir)
}

func (k *Knowledge) Close() error { return k.store.Close() }

// OpenFiles opens the file store that holds the index snapshot.
func OpenFiles(cfg *config.Config) (storage.FileStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		s3cfg := cfg.Storage.S3
		return storage.NewS3(storage.NewS3Client(s3cfg), s3cfg.Bucket, s3cfg.Prefix), nil
	default:
		return storage.NewLocal(cfg.Storage.DataDir)
	}
}

// NewEmbedder returns the embedding client for indexing and search.
func NewEmbedder(cfg *config.Config, client *http.Client) *embed.OpenAI {
	p := cfg.Retrieval.Embedding
	opts := []embed.Option{embed.WithModel(p.Model)}
	if client != nil {
		opts = append(opts, embed.WithHTTPClient(client))
	}
	if p.BaseURL != "" {
		opts = append(opts, embed.WithBaseURL(p.BaseURL))
	}
	if d := cfg.Retrieval.Dimension; d > 0 {
		opts = append(opts, embed.WithDimension(d))
	}
	return embed.NewOpenAI(p.APIKey, opts...)
}
