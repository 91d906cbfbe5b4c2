package knowledge

import (
	"strings"
	"unicode/utf8"

	"github.com/haivivi/zoocari/pkg/segment"
)

// DefaultChunkSize is the target passage length in characters.
const DefaultChunkSize = 1000

// Chunk splits text into passages of at most size characters. Paragraphs
// are kept whole when they fit, long paragraphs are split between
// sentences, and only a single over-long sentence is cut mid-text.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}
	add := func(piece, sep string) {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			return
		}
		if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+len(sep)+utf8.RuneCountInString(piece) > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(piece)
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= size {
			add(para, "\n\n")
			continue
		}
		flush()
		spans, rest := segment.Extract(para)
		for _, s := range append(spans, rest) {
			for _, piece := range hardSplit(strings.TrimSpace(s), size) {
				add(piece, " ")
			}
		}
		flush()
	}
	flush()
	return chunks
}

func hardSplit(s string, size int) []string {
	r := []rune(s)
	if len(r) <= size {
		return []string{s}
	}
	var out []string
	for len(r) > size {
		out = append(out, string(r[:size]))
		r = r[size:]
	}
	return append(out, string(r))
}
