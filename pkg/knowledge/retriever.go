package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// contextSeparator divides passages in the grounding text.
const contextSeparator = "\n\n---\n\n"

// Retriever builds grounding context for questions.
type Retriever struct {
	searcher  Searcher
	inventory *Inventory
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithInventory enriches results with park inventory facts.
func WithInventory(inv *Inventory) RetrieverOption {
	return func(r *Retriever) { r.inventory = inv }
}

// NewRetriever creates a Retriever over searcher.
func NewRetriever(searcher Searcher, opts ...RetrieverOption) *Retriever {
	r := &Retriever{searcher: searcher}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Retrieve searches for up to k passages about query. Finding nothing is
// not an error: the result is empty with zero confidence, as it is for
// k <= 0.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (*Retrieved, error) {
	if k <= 0 {
		return &Retrieved{Sources: []Source{}}, nil
	}
	hits, err := r.searcher.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("knowledge: retrieve: %w", err)
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	out := &Retrieved{Sources: []Source{}}
	if len(hits) == 0 {
		return out, nil
	}

	var (
		blocks []string
		sum    float64
	)
	for _, h := range hits {
		animal := h.Passage.Animal
		if animal == "" {
			animal = "Unknown"
		}
		blocks = append(blocks, fmt.Sprintf("[About: %s]\n%s", animal, h.Passage.Text))
		out.Sources = append(out.Sources, Source{
			Label:   animal,
			Title:   h.Passage.Title,
			Locator: h.Passage.URL,
			Tags:    []string{TagKB},
		})
		sum += float64(h.Distance)
	}
	out.Confidence = min(max(1-sum/float64(len(hits)), 0), 1)

	facts, factSources := r.enrich(query, hits)
	if len(facts) > 0 {
		blocks = append([]string{strings.Join(facts, "\n")}, blocks...)
		out.Sources = append(factSources, out.Sources...)
	}
	out.Text = strings.Join(blocks, contextSeparator)
	return out, nil
}

// enrich collects inventory facts for the resident named in the query and
// for every species mentioned in the query or covered by a hit. Species
// the park does not keep contribute nothing.
func (r *Retriever) enrich(query string, hits []Hit) ([]string, []Source) {
	inv := r.inventory
	if inv == nil {
		return nil, nil
	}
	var (
		facts   []string
		sources []Source
	)
	if s, ok := inv.ResidentFacts(query); ok {
		facts = append(facts, s)
		sources = append(sources, Source{Label: inv.Park, Title: "Park residents", Tags: []string{TagParkInventory}})
	}

	candidates := inv.Mentions(query)
	for _, h := range hits {
		candidates = append(candidates, h.Passage.Animal)
	}
	seen := make(map[string]bool)
	for _, c := range candidates {
		sp, ok := inv.Canonical(c)
		if !ok || seen[sp] {
			continue
		}
		seen[sp] = true
		if s, ok := inv.SpeciesFacts(sp); ok {
			facts = append(facts, s)
			sources = append(sources, Source{Label: inv.Park, Title: "Park animals: " + sp, Tags: []string{TagParkInventory}})
		}
	}
	if len(facts) > 0 {
		slog.Debug("knowledge: park facts attached", "count", len(facts))
	}
	return facts, sources
}
