// Package knowledge grounds answers in the park's knowledge base.
//
// An [Index] holds passages: their text lives in a kv.Store and their
// embeddings in a vecstore.Memory. A [Retriever] searches the index for a
// question, merges the hits into one grounding text with provenance, and
// prepends facts about the park's own animals from an [Inventory].
//
//	r := knowledge.NewRetriever(idx, knowledge.WithInventory(inv))
//	got, err := r.Retrieve(ctx, "What do lions eat?", 5)
//	// got.Text, got.Sources, got.Confidence
package knowledge

import "strings"

// Provenance tags carried by sources.
const (
	TagKB            = "kb"
	TagParkInventory = "park-inventory"
)

// Passage is one chunk of a knowledge-base document.
type Passage struct {
	ID     string `msgpack:"id" json:"id"`
	Animal string `msgpack:"animal" json:"animal"`
	Title  string `msgpack:"title" json:"title"`
	URL    string `msgpack:"url" json:"url,omitempty"`
	Text   string `msgpack:"text" json:"text"`
}

// Hit is a passage returned by a similarity search.
type Hit struct {
	Passage  Passage
	Distance float32
}

// Source tells the caller where a piece of the grounding text came from.
type Source struct {
	Label   string   `json:"label"`
	Title   string   `json:"title,omitempty"`
	Locator string   `json:"locator,omitempty"`
	Tags    []string `json:"tags"`
}

// Retrieved is the grounding context for one question.
type Retrieved struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`

	// Confidence is 1 minus the mean hit distance, clipped to [0, 1]. It
	// is 0 when nothing was found.
	Confidence float64 `json:"confidence"`
}

// Empty reports whether no grounding text was found.
func (r *Retrieved) Empty() bool {
	return r == nil || strings.TrimSpace(r.Text) == ""
}
