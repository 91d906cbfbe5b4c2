// Package followup separates the suggested next questions from an answer.
//
// Answers end with a section like
//
//	**Want to explore more?**
//	1. How fast can a cheetah run?
//	2. Why do zebras have stripes?
//
// The Extractor tolerates the usual variations in that section. When it
// finds nothing, it hands out questions from a rotating pool so the caller
// always has suggestions to show.
package followup

import (
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
)

// DefaultCount is the number of pool questions returned per failed
// extraction.
const DefaultCount = 3

// DefaultPool is the kid-friendly fallback question pool.
var DefaultPool = []string{
	"What do lions like to eat?",
	"How fast can a cheetah run?",
	"Why do zebras have stripes?",
	"What sounds do elephants make?",
	"How long do giraffes sleep?",
	"What do monkeys eat for breakfast?",
	"Can camels really store water in their humps?",
	"Why do flamingos stand on one leg?",
	"How do penguins stay warm?",
	"What's the biggest animal at the zoo?",
	"Do snakes have bones?",
	"Why do owls come out at night?",
	"How do chameleons change color?",
	"What do baby animals eat?",
	"Can parrots really talk?",
	"How strong is a gorilla?",
	"What do tortoises eat?",
	"Why do peacocks have colorful feathers?",
	"How do animals stay cool in summer?",
	"What's the fastest bird?",
	"Do all bears hibernate?",
	"How do kangaroos carry their babies?",
	"What do lemurs like to do for fun?",
	"Why do wolves howl at the moon?",
	"How do otters sleep in the water?",
	"What's special about a tiger's stripes?",
	"Do hippos really swim?",
	"What do porcupines eat?",
	"How do meerkats warn each other of danger?",
	"What animals can you pet at Leesburg Animal Park?",
}

// HeaderPhrases are the lowercase phrases that mark a line as the header
// of the follow-up section.
var HeaderPhrases = []string{"explore more", "questions to ask"}

// Section patterns, tried in order. Group 1 is the numbered list.
var sectionPatterns = []*regexp.Regexp{
	// **Want to explore more?** followed by the list, possibly on the same line.
	regexp.MustCompile(`(?i)\*\*Want to explore more\?[^*]*\*\*\s*\n?((?:\d+\.\s+.+(?:\n|$))+)`),
	// Unbolded header.
	regexp.MustCompile(`(?i)Want to explore more\?[^\n]*\n((?:\d+\.\s+.+(?:\n|$))+)`),
	// Any numbered list after a loosely worded header line.
	regexp.MustCompile(`(?i)(?:^|\n)[^\n]*(?:` + phraseAlternation() + `)[^\n]*\n((?:\d+\.\s+.+(?:\n|$))+)`),
}

func phraseAlternation() string {
	quoted := make([]string, len(HeaderPhrases))
	for i, p := range HeaderPhrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(quoted, "|")
}

var itemPattern = regexp.MustCompile(`\d+\.\s+(.+?)(?:\n|$)`)

// Extractor pulls follow-up questions out of answers. It is safe for
// concurrent use.
type Extractor struct {
	pool  []string
	count int
	next  atomic.Uint64
}

// New creates an Extractor drawing fallbacks from pool, or DefaultPool
// when pool is empty.
func New(pool ...string) *Extractor {
	if len(pool) == 0 {
		pool = DefaultPool
	}
	return &Extractor{pool: pool, count: DefaultCount}
}

// Extract splits response into the answer text and its follow-up
// questions. Without a recognizable section, the response is returned
// unchanged together with the next pool questions.
func (e *Extractor) Extract(response string) (main string, questions []string) {
	for i, re := range sectionPatterns {
		m := re.FindStringSubmatchIndex(response)
		if m == nil {
			continue
		}
		qs := parseItems(response[m[2]:m[3]])
		if len(qs) == 0 {
			continue
		}
		slog.Debug("followup: extracted", "pattern", i+1, "count", len(qs))
		return strings.TrimSpace(response[:m[0]]), qs
	}

	lower := strings.ToLower(response)
	if strings.Contains(lower, "want to explore") || strings.Contains(lower, "questions to ask") {
		tail := response
		if len(tail) > 200 {
			tail = tail[len(tail)-200:]
		}
		slog.Warn("followup: section present but not parsed", "tail", tail)
	}
	return response, e.Fallback(e.count)
}

func parseItems(list string) []string {
	var out []string
	for _, m := range itemPattern.FindAllStringSubmatch(list, -1) {
		q := strings.TrimSpace(m[1])
		if q == "" {
			continue
		}
		out = append(out, strings.TrimRight(q, "?")+"?")
	}
	return out
}

// Fallback returns the next n pool questions. Consecutive calls continue
// where the previous one stopped, wrapping around the pool.
func (e *Extractor) Fallback(n int) []string {
	if n <= 0 || len(e.pool) == 0 {
		return nil
	}
	end := e.next.Add(uint64(n))
	start := end - uint64(n)
	size := uint64(len(e.pool))
	out := make([]string, n)
	for i := range out {
		out[i] = e.pool[(start+uint64(i))%size]
	}
	return out
}
