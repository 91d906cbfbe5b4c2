package knowledge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/itchyny/gojq"
	"github.com/kaptinlin/jsonrepair"
)

// Record is one knowledge-base document before chunking.
type Record struct {
	Animal string
	Title  string
	URL    string
	Text   string
}

// Field names accepted for each Record field, in order of preference.
var (
	animalFields = []string{"animal", "animal_name", "species"}
	titleFields  = []string{"title", "name"}
	urlFields    = []string{"url", "source_url", "link"}
	textFields   = []string{"text", "content", "body"}
)

// ParseRecords reads documents from a JSON array, a single JSON object or
// JSON Lines. If selector is not empty it is a jq expression run against
// each top-level value; every object it emits becomes a record. Records
// without text are dropped.
func ParseRecords(ctx context.Context, data []byte, selector string) ([]Record, error) {
	var query *gojq.Query
	if strings.TrimSpace(selector) != "" {
		q, err := gojq.Parse(selector)
		if err != nil {
			return nil, fmt.Errorf("knowledge: invalid jq expression %q: %w", selector, err)
		}
		query = q
	}

	docs, err := decodeDocuments(data)
	if err != nil {
		return nil, err
	}

	var out []Record
	emit := func(v any) {
		switch v := v.(type) {
		case map[string]any:
			if r, ok := toRecord(v); ok {
				out = append(out, r)
			}
		case []any:
			for _, e := range v {
				if m, ok := e.(map[string]any); ok {
					if r, ok := toRecord(m); ok {
						out = append(out, r)
					}
				}
			}
		}
	}
	for _, doc := range docs {
		if query == nil {
			emit(doc)
			continue
		}
		it := query.RunWithContext(ctx, doc)
		for {
			v, ok := it.Next()
			if !ok {
				break
			}
			if err, ok := v.(error); ok {
				return nil, fmt.Errorf("knowledge: jq %q: %w", selector, err)
			}
			emit(v)
		}
	}
	return out, nil
}

// decodeDocuments parses data as one JSON value, falling back to one value
// per line. Malformed JSON is repaired before giving up.
func decodeDocuments(data []byte) ([]any, error) {
	if v, err := decodeJSON(bytes.TrimSpace(data)); err == nil {
		return []any{v}, nil
	}
	var docs []any
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		v, err := decodeJSON(b)
		if err != nil {
			return nil, fmt.Errorf("knowledge: line %d: %w", line, err)
		}
		docs = append(docs, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("knowledge: read records: %w", err)
	}
	return docs, nil
}

func decodeJSON(b []byte) (any, error) {
	var v any
	err := json.Unmarshal(b, &v)
	if err == nil {
		return v, nil
	}
	if _, ok := err.(*json.SyntaxError); !ok {
		return nil, err
	}
	// Several concatenated values are JSON Lines, not something to repair.
	if bytes.Count(b, []byte("\n")) > 0 {
		return nil, err
	}
	fixed, rerr := jsonrepair.JSONRepair(string(b))
	if rerr != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fixed), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func toRecord(m map[string]any) (Record, bool) {
	r := Record{
		Animal: field(m, animalFields),
		Title:  field(m, titleFields),
		URL:    field(m, urlFields),
		Text:   strings.TrimSpace(field(m, textFields)),
	}
	if meta, ok := m["metadata"].(map[string]any); ok {
		if r.Animal == "" {
			r.Animal = field(meta, animalFields)
		}
		if r.Title == "" {
			r.Title = field(meta, titleFields)
		}
		if r.URL == "" {
			r.URL = field(meta, urlFields)
		}
	}
	return r, r.Text != ""
}

func field(m map[string]any, names []string) string {
	for _, n := range names {
		switch v := m[n].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// Passages chunks records into passages. IDs are derived from the record
// source and chunk position, so re-ingesting a document replaces its
// passages instead of duplicating them.
func Passages(records []Record, chunkSize int) []Passage {
	var out []Passage
	for _, r := range records {
		animal := r.Animal
		if animal == "" {
			animal = "Unknown"
		}
		for i, text := range Chunk(r.Text, chunkSize) {
			name := fmt.Sprintf("%s|%s|%s|%d", r.URL, animal, r.Title, i)
			out = append(out, Passage{
				ID:     uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String(),
				Animal: animal,
				Title:  r.Title,
				URL:    r.URL,
				Text:   text,
			})
		}
	}
	return out
}
