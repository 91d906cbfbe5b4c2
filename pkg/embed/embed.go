// Package embed turns text into dense vectors for similarity search.
//
// The [OpenAI] embedder works against the hosted OpenAI embeddings API and
// against any server that exposes the same endpoint, such as Ollama's /v1
// with nomic-embed-text for fully local retrieval.
//
//	e := embed.NewOpenAI(key, embed.WithModel(embed.ModelOpenAI3Small))
//	vec, err := e.Embed(ctx, "What do lions eat?")
package embed

import (
	"context"
	"errors"
)

// Embedder converts text into dense float32 vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embedding vectors for multiple texts, in input
	// order. Implementations may split large batches transparently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the output vectors.
	Dimension() int
}

// ErrEmptyInput is returned when the input text is empty.
var ErrEmptyInput = errors.New("embed: empty input")
