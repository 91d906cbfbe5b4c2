// Package segment splits an incrementally produced text stream into
// sentences as soon as their boundaries are known.
//
// A boundary is a run of terminators (. ! ?), optionally followed by
// closing quotes, brackets or emphasis markers, followed by whitespace. A
// terminator at the very end of the buffered text is not yet a boundary:
// the next chunk might continue the run, or turn "3." into "3.5". A list
// ordinal such as "2." at the start of a line is never a boundary.
//
// Extract is lossless: the returned spans concatenated with the remainder
// reproduce the input byte for byte, so feeding remainder+nextChunk back
// into Extract never splits, drops or repeats text.
package segment

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/haivivi/zoocari/pkg/followup"
)

// Extract returns the complete sentence spans found in buf, in order and
// untrimmed, and the unconsumed tail.
func Extract(buf string) (spans []string, remainder string) {
	start := 0
	for i := 0; i < len(buf); {
		r, size := utf8.DecodeRuneInString(buf[i:])
		if !isTerminator(r) {
			i += size
			continue
		}
		j := skip(buf, i+size, isTerminator)
		j = skip(buf, j, isCloser)
		if j >= len(buf) {
			break
		}
		next, _ := utf8.DecodeRuneInString(buf[j:])
		if unicode.IsSpace(next) && !isOrdinal(buf, i, j) {
			spans = append(spans, buf[start:j])
			start = j
		}
		i = j
	}
	return spans, buf[start:]
}

func skip(s string, i int, fn func(rune) bool) int {
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !fn(r) {
			break
		}
		i += size
	}
	return i
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '*', '_', '”', '’', '»':
		return true
	}
	return false
}

// isOrdinal reports whether buf[i:j] is the single dot of a list ordinal
// that begins a line.
func isOrdinal(buf string, i, j int) bool {
	if j != i+1 || buf[i] != '.' {
		return false
	}
	k := i
	for k > 0 && buf[k-1] >= '0' && buf[k-1] <= '9' {
		k--
	}
	if k == i {
		return false
	}
	m := k
	for m > 0 && (buf[m-1] == ' ' || buf[m-1] == '\t') {
		m--
	}
	if m == 0 {
		return k == 0
	}
	return buf[m-1] == '\n'
}

// DefaultSkipMarkers introduce the suggested follow-up questions that
// close an answer. They are the headers the follow-up extractor accepts.
var DefaultSkipMarkers = followup.HeaderPhrases

// Sentence is one trimmed sentence. Skip is set for sentences at or after
// the skip marker; they are delivered as text but not narrated.
type Sentence struct {
	Text string
	Skip bool
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithSkipMarkers replaces the case-insensitive phrases that switch the
// segmenter into skip mode.
func WithSkipMarkers(markers ...string) Option {
	return func(s *Segmenter) {
		s.markers = s.markers[:0]
		for _, m := range markers {
			s.markers = append(s.markers, strings.ToLower(m))
		}
	}
}

// Segmenter accumulates chunks and emits sentences. It is not safe for
// concurrent use; one Segmenter serves one stream.
type Segmenter struct {
	buf      string
	markers  []string
	skipping bool
}

// New creates a Segmenter.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{markers: slices.Clone(DefaultSkipMarkers)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Push appends chunk and returns the sentences it completed.
func (s *Segmenter) Push(chunk string) []Sentence {
	spans, rest := Extract(s.buf + chunk)
	s.buf = rest
	return s.sentences(spans)
}

// Flush returns the buffered tail as a final sentence, if it is not blank,
// and resets the buffer.
func (s *Segmenter) Flush() []Sentence {
	rest := s.buf
	s.buf = ""
	return s.sentences([]string{rest})
}

// Skipping reports whether the skip marker has been seen.
func (s *Segmenter) Skipping() bool { return s.skipping }

// Pending returns the buffered text not yet emitted.
func (s *Segmenter) Pending() string { return s.buf }

func (s *Segmenter) sentences(spans []string) []Sentence {
	var out []Sentence
	for _, span := range spans {
		text := strings.TrimSpace(span)
		if text == "" {
			continue
		}
		if !s.skipping && s.hasMarker(text) {
			s.skipping = true
		}
		out = append(out, Sentence{Text: text, Skip: s.skipping})
	}
	return out
}

func (s *Segmenter) hasMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range s.markers {
		if m != "" && strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
