package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/kaptinlin/jsonrepair"
	"gopkg.in/yaml.v3"
)

// DefaultParkName names the park in inventory facts.
const DefaultParkName = "Leesburg Animal Park"

// maxNames caps the individual names listed in a species fact.
const maxNames = 5

// Inventory lists the animals living at the park.
type Inventory struct {
	Park      string                 `json:"park_name,omitempty" yaml:"park_name,omitempty"`
	Species   map[string]SpeciesInfo `json:"animals_by_species" yaml:"animals_by_species"`
	Residents map[string]Resident    `json:"animals_by_name" yaml:"animals_by_name"`
	Aliases   map[string][]string    `json:"aliases" yaml:"aliases"`

	terms []term
	names []term
}

// SpeciesInfo is what the park keeps of one species.
type SpeciesInfo struct {
	AtPark      bool     `json:"at_park" yaml:"at_park"`
	Count       int      `json:"count" yaml:"count"`
	Locations   []string `json:"locations" yaml:"locations"`
	Individuals []Animal `json:"individuals" yaml:"individuals"`
}

// Animal is one individual within a species listing.
type Animal struct {
	Name     string `json:"name" yaml:"name"`
	Breed    string `json:"breed" yaml:"breed"`
	Location string `json:"location" yaml:"location"`
	Gender   string `json:"gender" yaml:"gender"`
}

// Resident is a named animal, looked up by its lowercase name.
type Resident struct {
	Species  string `json:"species" yaml:"species"`
	Type     string `json:"type" yaml:"type"`
	Location string `json:"location" yaml:"location"`
}

// term is a whole-word matcher for a species, an alias or a name.
type term struct {
	re  *regexp.Regexp
	key string
}

func wordPattern(word string, plural bool) *regexp.Regexp {
	p := `(?i)\b` + regexp.QuoteMeta(word)
	if plural {
		p += `(?:s|es)?`
	}
	return regexp.MustCompile(p + `\b`)
}

// NewInventory prepares inv for matching. Keys are normalized to lower
// case.
func NewInventory(inv Inventory) *Inventory {
	out := &Inventory{
		Park:      inv.Park,
		Species:   make(map[string]SpeciesInfo, len(inv.Species)),
		Residents: make(map[string]Resident, len(inv.Residents)),
		Aliases:   make(map[string][]string, len(inv.Aliases)),
	}
	if out.Park == "" {
		out.Park = DefaultParkName
	}
	for k, v := range inv.Species {
		out.Species[normalize(k)] = v
	}
	for k, v := range inv.Residents {
		out.Residents[normalize(k)] = v
	}
	for k, v := range inv.Aliases {
		out.Aliases[normalize(k)] = v
	}

	for _, sp := range slices.Sorted(maps.Keys(out.Species)) {
		out.terms = append(out.terms, term{re: wordPattern(sp, true), key: sp})
		for _, a := range out.Aliases[sp] {
			if a = normalize(a); a != "" {
				out.terms = append(out.terms, term{re: wordPattern(a, true), key: sp})
			}
		}
	}
	for _, name := range slices.Sorted(maps.Keys(out.Residents)) {
		if name != "" {
			out.names = append(out.names, term{re: wordPattern(name, false), key: name})
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseInventory decodes an inventory document. format is "yaml" or
// "json"; malformed JSON is repaired before decoding.
func ParseInventory(data []byte, format string) (*Inventory, error) {
	var inv Inventory
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &inv); err != nil {
			return nil, fmt.Errorf("knowledge: parse inventory: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &inv); err != nil {
			var syn *json.SyntaxError
			if !errors.As(err, &syn) {
				return nil, fmt.Errorf("knowledge: parse inventory: %w", err)
			}
			fixed, rerr := jsonrepair.JSONRepair(string(data))
			if rerr != nil {
				return nil, fmt.Errorf("knowledge: parse inventory: %w", err)
			}
			if err := json.Unmarshal([]byte(fixed), &inv); err != nil {
				return nil, fmt.Errorf("knowledge: parse inventory: %w", err)
			}
		}
	}
	return NewInventory(inv), nil
}

// LoadInventory reads the inventory at path. The format follows the file
// extension. A missing or unreadable inventory is logged and yields an
// empty one: enrichment is optional.
func LoadInventory(path string) *Inventory {
	if path == "" {
		return NewInventory(Inventory{})
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("knowledge: inventory unavailable", "path", path, "err", err)
		return NewInventory(Inventory{})
	}
	inv, err := ParseInventory(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		slog.Warn("knowledge: inventory invalid", "path", path, "err", err)
		return NewInventory(Inventory{})
	}
	slog.Info("knowledge: inventory loaded", "path", path, "species", len(inv.Species), "residents", len(inv.Residents))
	return inv
}

// Canonical resolves a species name or alias to its inventory species.
func (inv *Inventory) Canonical(name string) (string, bool) {
	if inv == nil {
		return "", false
	}
	n := normalize(name)
	if n == "" {
		return "", false
	}
	if _, ok := inv.Species[n]; ok {
		return n, true
	}
	for sp, aliases := range inv.Aliases {
		for _, a := range aliases {
			if normalize(a) == n {
				if _, ok := inv.Species[sp]; ok {
					return sp, true
				}
			}
		}
	}
	return "", false
}

// SpeciesFacts describes the park's animals of the species named (or
// aliased) by name.
func (inv *Inventory) SpeciesFacts(name string) (string, bool) {
	sp, ok := inv.Canonical(name)
	if !ok {
		return "", false
	}
	info := inv.Species[sp]
	if !info.AtPark || info.Count <= 0 {
		return "", false
	}

	noun := sp + "s"
	if info.Count == 1 {
		noun = sp
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[PARK INFO: %s has %d %s!", inv.Park, info.Count, noun)
	var names []string
	for _, a := range info.Individuals {
		if a.Name != "" {
			names = append(names, a.Name)
		}
		if len(names) == maxNames {
			break
		}
	}
	if len(names) > 0 {
		fmt.Fprintf(&b, " Their names include %s.", strings.Join(names, ", "))
	}
	if len(info.Locations) > 0 {
		fmt.Fprintf(&b, " Find them at: %s.", strings.Join(info.Locations, ", "))
	}
	b.WriteString("]")
	return b.String(), true
}

// ResidentFacts describes the first named resident mentioned in query.
func (inv *Inventory) ResidentFacts(query string) (string, bool) {
	if inv == nil {
		return "", false
	}
	name, ok := firstMatch(inv.names, query)
	if !ok {
		return "", false
	}
	r := inv.Residents[name]
	display := titleCase(name)
	s := fmt.Sprintf("[PARK INFO: %s is a %s at %s!", display, r.Type, inv.Park)
	if r.Location != "" {
		s += fmt.Sprintf(" You can find %s at %s.", display, r.Location)
	}
	return s + "]", true
}

// Mentions returns the species mentioned in text, by first occurrence.
func (inv *Inventory) Mentions(text string) []string {
	if inv == nil {
		return nil
	}
	type found struct {
		species string
		pos     int
	}
	var all []found
	seen := make(map[string]int)
	for _, t := range inv.terms {
		loc := t.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if i, ok := seen[t.key]; ok {
			if loc[0] < all[i].pos {
				all[i].pos = loc[0]
			}
			continue
		}
		seen[t.key] = len(all)
		all = append(all, found{t.key, loc[0]})
	}
	slices.SortStableFunc(all, func(a, b found) int { return a.pos - b.pos })
	out := make([]string, len(all))
	for i, f := range all {
		out[i] = f.species
	}
	return out
}

func firstMatch(terms []term, text string) (string, bool) {
	best, pos := "", -1
	for _, t := range terms {
		loc := t.re.FindStringIndex(text)
		if loc != nil && (pos < 0 || loc[0] < pos) {
			best, pos = t.key, loc[0]
		}
	}
	return best, pos >= 0
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
