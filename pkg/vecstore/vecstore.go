// Package vecstore searches dense vectors by cosine distance.
//
// [Memory] is an exact, brute-force index. A park knowledge base holds a
// few thousand passages at most, well within what a linear scan answers in
// microseconds. Its contents can be written to and read from a msgpack
// snapshot so a server starts from a prebuilt index.
package vecstore

import "errors"

// Index is a nearest-neighbor index over float32 vectors. Implementations
// are safe for concurrent use.
type Index interface {
	// Insert adds or replaces the vector stored under id.
	Insert(id string, vector []float32) error

	// BatchInsert inserts ids[i] -> vectors[i] for every i.
	BatchInsert(ids []string, vectors [][]float32) error

	// Search returns up to topK matches, closest first.
	Search(query []float32, topK int) ([]Match, error)

	// Delete removes id. Missing ids are ignored.
	Delete(id string) error

	// Len returns the number of stored vectors.
	Len() int

	Close() error
}

// Match is one search result.
type Match struct {
	ID string

	// Distance is the cosine distance in [0, 2]; lower is closer.
	Distance float32
}

// ErrDimension is returned when a vector's length differs from the index
// dimension, which is fixed by the first insert.
var ErrDimension = errors.New("vecstore: dimension mismatch")
