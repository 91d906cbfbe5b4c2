package knowledge_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haivivi/zoocari/pkg/knowledge"
	"github.com/haivivi/zoocari/pkg/kv"
	"github.com/haivivi/zoocari/pkg/storage"
)

// fixedSearcher returns canned hits.
type fixedSearcher []knowledge.Hit

func (f fixedSearcher) Search(_ context.Context, _ string, k int) ([]knowledge.Hit, error) {
	if k < len(f) {
		return f[:k], nil
	}
	return f, nil
}

// keywordEmbedder maps text onto one axis per keyword it contains.
type keywordEmbedder struct{ words []string }

func (e keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, len(e.words)+1)
	v[len(e.words)] = 0.01
	lower := strings.ToLower(text)
	for i, w := range e.words {
		if strings.Contains(lower, w) {
			v[i] = 1
		}
	}
	return v, nil
}

func (e keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (e keywordEmbedder) Dimension() int { return len(e.words) + 1 }

var animals = keywordEmbedder{words: []string{"lion", "penguin", "goat"}}

func sampleInventory() *knowledge.Inventory {
	return knowledge.NewInventory(knowledge.Inventory{
		Species: map[string]knowledge.SpeciesInfo{
			"goat": {
				AtPark:    true,
				Count:     16,
				Locations: []string{"Contact Area", "Barn"},
				Individuals: []knowledge.Animal{
					{Name: "Rue"}, {Name: "Taffy"}, {Name: "Morgan"},
				},
			},
			"monkey": {
				AtPark:      true,
				Count:       4,
				Locations:   []string{"Building - Window Exhibits"},
				Individuals: []knowledge.Animal{{Name: "Ziggy"}},
			},
		},
		Residents: map[string]knowledge.Resident{
			"ziggy":   {Species: "monkey", Type: "Cotton-top Tamarin", Location: "Building - Window Exhibits"},
			"anthony": {Species: "donkey", Type: "African ass", Location: "Barn"},
		},
		Aliases: map[string][]string{
			"monkey": {"tamarin", "marmoset"},
		},
	})
}

func TestRetrieveConfidence(t *testing.T) {
	s := fixedSearcher{
		{Passage: knowledge.Passage{Animal: "Lion", Title: "Lion diet", URL: "https://example.org/lion", Text: "Lions eat meat."}, Distance: 0.1},
		{Passage: knowledge.Passage{Animal: "Lion", Title: "Lion hunting", Text: "Lionesses hunt."}, Distance: 0.2},
		{Passage: knowledge.Passage{Animal: "Lion", Title: "Lion prides", Text: "Prides share food."}, Distance: 0.3},
	}
	got, err := knowledge.NewRetriever(s).Retrieve(context.Background(), "What do lions eat?", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if math.Abs(got.Confidence-0.8) > 1e-6 {
		t.Fatalf("Confidence = %v, want 0.8", got.Confidence)
	}
	want := "[About: Lion]\nLions eat meat.\n\n---\n\n[About: Lion]\nLionesses hunt.\n\n---\n\n[About: Lion]\nPrides share food."
	if got.Text != want {
		t.Fatalf("Text = %q, want %q", got.Text, want)
	}
	if len(got.Sources) != 3 || got.Sources[0].Locator != "https://example.org/lion" || got.Sources[0].Tags[0] != knowledge.TagKB {
		t.Fatalf("Sources = %+v", got.Sources)
	}
}

func TestRetrieveConfidenceClamped(t *testing.T) {
	s := fixedSearcher{
		{Passage: knowledge.Passage{Animal: "Owl", Text: "Owls hoot."}, Distance: 1.6},
	}
	got, err := knowledge.NewRetriever(s).Retrieve(context.Background(), "owls", 5)
	if err != nil {
		t.Fatal(err)
	}
	if got.Confidence != 0 {
		t.Fatalf("Confidence = %v, want 0", got.Confidence)
	}
}

func TestRetrieveNoResults(t *testing.T) {
	r := knowledge.NewRetriever(fixedSearcher{}, knowledge.WithInventory(sampleInventory()))
	got, err := r.Retrieve(context.Background(), "Who is Ziggy?", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !got.Empty() || got.Confidence != 0 || len(got.Sources) != 0 {
		t.Fatalf("got %+v, want empty", got)
	}
}

func TestRetrieveNonPositiveK(t *testing.T) {
	s := fixedSearcher{
		{Passage: knowledge.Passage{Animal: "Lion", Text: "Lions eat meat."}, Distance: 0.1},
	}
	for _, k := range []int{0, -1} {
		got, err := knowledge.NewRetriever(s).Retrieve(context.Background(), "lions", k)
		if err != nil {
			t.Fatalf("Retrieve(k=%d): %v", k, err)
		}
		if !got.Empty() || len(got.Sources) != 0 {
			t.Fatalf("Retrieve(k=%d) = %+v, want empty", k, got)
		}
	}
}

func TestRetrieveParkFacts(t *testing.T) {
	s := fixedSearcher{
		{Passage: knowledge.Passage{Animal: "Goat", Text: "Goats climb."}, Distance: 0.2},
		{Passage: knowledge.Passage{Animal: "Elephant", Text: "Elephants are big."}, Distance: 0.4},
	}
	r := knowledge.NewRetriever(s, knowledge.WithInventory(sampleInventory()))
	got, err := r.Retrieve(context.Background(), "Is Ziggy a tamarin?", 5)
	if err != nil {
		t.Fatal(err)
	}
	blocks := strings.Split(got.Text, "\n\n---\n\n")
	if len(blocks) != 3 {
		t.Fatalf("blocks = %q", blocks)
	}
	facts := strings.Split(blocks[0], "\n")
	want := []string{
		"[PARK INFO: Ziggy is a Cotton-top Tamarin at Leesburg Animal Park! You can find Ziggy at Building - Window Exhibits.]",
		"[PARK INFO: Leesburg Animal Park has 4 monkeys! Their names include Ziggy. Find them at: Building - Window Exhibits.]",
		"[PARK INFO: Leesburg Animal Park has 16 goats! Their names include Rue, Taffy, Morgan. Find them at: Contact Area, Barn.]",
	}
	if len(facts) != len(want) {
		t.Fatalf("facts = %q", facts)
	}
	for i := range want {
		if facts[i] != want[i] {
			t.Fatalf("facts[%d] = %q, want %q", i, facts[i], want[i])
		}
	}
	var inventoryTagged int
	for _, s := range got.Sources {
		if s.Tags[0] == knowledge.TagParkInventory {
			inventoryTagged++
		}
	}
	if inventoryTagged != 3 || len(got.Sources) != 5 {
		t.Fatalf("Sources = %+v", got.Sources)
	}
	// Enrichment does not change confidence.
	if math.Abs(got.Confidence-0.7) > 1e-6 {
		t.Fatalf("Confidence = %v", got.Confidence)
	}
}

func TestSpeciesFacts(t *testing.T) {
	inv := sampleInventory()

	for _, name := range []string{"goat", "GOAT", "  goat  "} {
		s, ok := inv.SpeciesFacts(name)
		if !ok || !strings.Contains(s, "16 goats") {
			t.Fatalf("SpeciesFacts(%q) = %q, %v", name, s, ok)
		}
	}
	a, _ := inv.SpeciesFacts("tamarin")
	b, _ := inv.SpeciesFacts("monkey")
	if a != b || a == "" {
		t.Fatalf("alias facts %q != species facts %q", a, b)
	}
	if _, ok := inv.SpeciesFacts("elephant"); ok {
		t.Fatal("unknown species has facts")
	}
	if _, ok := inv.SpeciesFacts(""); ok {
		t.Fatal("empty name has facts")
	}
}

func TestSpeciesFactsSingularAndNameCap(t *testing.T) {
	var goats []knowledge.Animal
	for _, n := range []string{"G0", "G1", "G2", "G3", "G4", "G5", "G6"} {
		goats = append(goats, knowledge.Animal{Name: n})
	}
	inv := knowledge.NewInventory(knowledge.Inventory{
		Species: map[string]knowledge.SpeciesInfo{
			"goat":  {AtPark: true, Count: 7, Individuals: goats},
			"llama": {AtPark: true, Count: 1},
			"emu":   {AtPark: false, Count: 2},
		},
	})
	s, _ := inv.SpeciesFacts("goat")
	if !strings.Contains(s, "G4") || strings.Contains(s, "G5") {
		t.Fatalf("names not capped at five: %q", s)
	}
	s, _ = inv.SpeciesFacts("llama")
	if s != "[PARK INFO: Leesburg Animal Park has 1 llama!]" {
		t.Fatalf("singular = %q", s)
	}
	if _, ok := inv.SpeciesFacts("emu"); ok {
		t.Fatal("species not at the park has facts")
	}
}

func TestResidentFacts(t *testing.T) {
	inv := sampleInventory()
	tests := []struct {
		query string
		want  string
	}{
		{"where is ziggy", "Ziggy is a Cotton-top Tamarin"},
		{"WHERE IS ZIGGY", "Ziggy is a Cotton-top Tamarin"},
		{"I heard Anthony is really friendly!", "Anthony is a African ass"},
		{"Who is Zig?", ""},
		{"Who is Dumbo?", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got, ok := inv.ResidentFacts(tt.query)
		if tt.want == "" {
			if ok {
				t.Fatalf("ResidentFacts(%q) = %q, want none", tt.query, got)
			}
			continue
		}
		if !ok || !strings.Contains(got, tt.want) {
			t.Fatalf("ResidentFacts(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestMentionsWholeWords(t *testing.T) {
	inv := sampleInventory()
	got := inv.Mentions("Do goats and Marmosets get along?")
	if len(got) != 2 || got[0] != "goat" || got[1] != "monkey" {
		t.Fatalf("Mentions = %v", got)
	}
	if got := inv.Mentions("goatee monkeying"); len(got) != 0 {
		t.Fatalf("partial words matched: %v", got)
	}
}

func TestLoadInventory(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "inventory.json")
	// Trailing comma: repaired on load.
	os.WriteFile(jsonPath, []byte(`{"animals_by_species": {"goat": {"at_park": true, "count": 2,}}, "animals_by_name": {}, "aliases": {}}`), 0o644)
	if s, ok := knowledge.LoadInventory(jsonPath).SpeciesFacts("goat"); !ok || !strings.Contains(s, "2 goats") {
		t.Fatalf("json inventory facts = %q, %v", s, ok)
	}

	yamlPath := filepath.Join(dir, "inventory.yaml")
	os.WriteFile(yamlPath, []byte("animals_by_species:\n  Alpaca:\n    at_park: true\n    count: 3\n"), 0o644)
	if s, ok := knowledge.LoadInventory(yamlPath).SpeciesFacts("alpaca"); !ok || !strings.Contains(s, "3 alpacas") {
		t.Fatalf("yaml inventory facts = %q, %v", s, ok)
	}

	badPath := filepath.Join(dir, "bad.json")
	os.WriteFile(badPath, []byte(`[1, 2, 3]`), 0o644)
	for _, p := range []string{badPath, filepath.Join(dir, "missing.json"), ""} {
		inv := knowledge.LoadInventory(p)
		if len(inv.Species) != 0 {
			t.Fatalf("LoadInventory(%q) = %+v, want empty", p, inv)
		}
		if _, ok := inv.ResidentFacts("Who is Ziggy?"); ok {
			t.Fatalf("LoadInventory(%q) has residents", p)
		}
	}
}

func TestIndexAddSearch(t *testing.T) {
	ctx := context.Background()
	idx := knowledge.NewIndex(kv.NewMemory(nil), nil, animals)
	err := idx.Add(ctx,
		knowledge.Passage{ID: "lion-1", Animal: "Lion", Text: "The lion eats zebras."},
		knowledge.Passage{ID: "penguin-1", Animal: "Penguin", Text: "A penguin eats fish."},
		knowledge.Passage{Animal: "Goat", Text: "A goat eats hay."},
	)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Len() != 3 {
		t.Fatalf("Len = %d", idx.Len())
	}

	hits, err := idx.Search(ctx, "what does a penguin eat", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 || hits[0].Passage.ID != "penguin-1" {
		t.Fatalf("hits = %+v", hits)
	}
	if hits[0].Distance > 0.01 {
		t.Fatalf("closest distance = %v", hits[0].Distance)
	}

	if hits, _ := idx.Search(ctx, "anything", 0); len(hits) != 0 {
		t.Fatalf("k=0 hits = %+v", hits)
	}
}

func TestIndexSaveLoad(t *testing.T) {
	ctx := context.Background()
	fs, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	idx := knowledge.NewIndex(kv.NewMemory(nil), nil, animals)
	if err := idx.Add(ctx, knowledge.Passage{ID: "lion-1", Animal: "Lion", Text: "The lion roars."}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(ctx, fs, "kb"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := knowledge.Load(ctx, fs, "kb", kv.NewMemory(nil), animals)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	hits, err := loaded.Search(ctx, "lion", 1)
	if err != nil || len(hits) != 1 || hits[0].Passage.Text != "The lion roars." {
		t.Fatalf("hits = %+v, %v", hits, err)
	}

	empty, err := knowledge.Load(ctx, fs, "missing", kv.NewMemory(nil), animals)
	if err != nil || empty.Len() != 0 {
		t.Fatalf("Load missing = %v, %v", empty, err)
	}
}

func TestChunk(t *testing.T) {
	para := strings.Repeat("Lions sleep a lot. ", 10) // 190 chars
	text := para + "\n\n" + "Short one.\n\n" + strings.Repeat("x", 250)

	chunks := knowledge.Chunk(text, 100)
	for i, c := range chunks {
		if n := len([]rune(c)); n > 100 {
			t.Fatalf("chunk %d has %d chars", i, n)
		}
		if strings.TrimSpace(c) != c || c == "" {
			t.Fatalf("chunk %d = %q", i, c)
		}
	}
	joined := strings.Join(chunks, "")
	if strings.Count(joined, "Lions sleep a lot.") != 10 || strings.Count(joined, "x") != 250 || !strings.Contains(joined, "Short one.") {
		t.Fatalf("text lost: %q", chunks)
	}

	if got := knowledge.Chunk("One.\n\nTwo.", 1000); len(got) != 1 || got[0] != "One.\n\nTwo." {
		t.Fatalf("small paragraphs = %q", got)
	}
}

func TestParseRecords(t *testing.T) {
	ctx := context.Background()

	arr := `[{"animal":"Lion","title":"Lions","url":"u1","text":"Lions roar."},{"animal":"Owl","text":""}]`
	recs, err := knowledge.ParseRecords(ctx, []byte(arr), "")
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	if len(recs) != 1 || recs[0].Animal != "Lion" || recs[0].URL != "u1" {
		t.Fatalf("array records = %+v", recs)
	}

	lines := "{\"content\":\"Owls hoot.\",\"metadata\":{\"animal_name\":\"Owl\",\"title\":\"Owls\"}}\n\n{\"text\":\"Bats fly.\",\"animal\":\"Bat\"}\n"
	recs, err = knowledge.ParseRecords(ctx, []byte(lines), "")
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if len(recs) != 2 || recs[0].Animal != "Owl" || recs[0].Title != "Owls" || recs[1].Text != "Bats fly." {
		t.Fatalf("jsonl records = %+v", recs)
	}

	export := `{"data":{"pages":[{"species":"Otter","body":"Otters hold hands."},{"species":"Seal","body":"Seals bark."}]}}`
	recs, err = knowledge.ParseRecords(ctx, []byte(export), ".data.pages[] | select(.species == \"Otter\")")
	if err != nil {
		t.Fatalf("jq: %v", err)
	}
	if len(recs) != 1 || recs[0].Animal != "Otter" {
		t.Fatalf("jq records = %+v", recs)
	}

	if _, err := knowledge.ParseRecords(ctx, []byte(export), ".data | ]"); err == nil {
		t.Fatal("expected jq parse error")
	}
}

func TestPassagesStableIDs(t *testing.T) {
	recs := []knowledge.Record{{Animal: "Lion", Title: "Lions", URL: "u1", Text: "Lions roar."}}
	a := knowledge.Passages(recs, 0)
	b := knowledge.Passages(recs, 0)
	if len(a) != 1 || a[0].ID == "" || a[0].ID != b[0].ID {
		t.Fatalf("ids not stable: %+v %+v", a, b)
	}
	if got := knowledge.Passages([]knowledge.Record{{Text: "Hi."}}, 0); got[0].Animal != "Unknown" {
		t.Fatalf("animal = %q", got[0].Animal)
	}
}
