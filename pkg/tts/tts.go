// Package tts synthesizes speech for answers.
//
// [OpenAI] speaks the OpenAI speech API. It drives both the hosted tts-1
// model and a local Kokoro server, which exposes the same endpoint. Voices
// are given as presets (bella, heart, adam, ...) and mapped to each
// engine's own voice names.
package tts

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// Request is one synthesis call.
type Request struct {
	Text  string
	Voice string
	Speed float64
}

// Synthesizer turns text into audio. Implementations return WAV.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// ErrEmptyText is returned when nothing speakable remains after cleaning.
var ErrEmptyText = errors.New("tts: empty text")

// Speed limits.
const (
	MinSpeed = 0.5
	MaxSpeed = 2.0
)

// ClampSpeed limits s to [MinSpeed, MaxSpeed]. Zero means normal speed.
func ClampSpeed(s float64) float64 {
	switch {
	case s == 0:
		return 1
	case s < MinSpeed:
		return MinSpeed
	case s > MaxSpeed:
		return MaxSpeed
	}
	return s
}

// DefaultPreset is used when no voice is requested.
const DefaultPreset = "heart"

var kokoroPresets = map[string]string{
	"bella":   "af_bella",
	"nova":    "af_nova",
	"heart":   "af_heart",
	"sarah":   "af_sarah",
	"adam":    "am_adam",
	"eric":    "am_eric",
	"default": "af_heart",
}

var openAIPresets = map[string]string{
	"bella":   "nova",
	"nova":    "nova",
	"heart":   "shimmer",
	"sarah":   "nova",
	"adam":    "onyx",
	"eric":    "echo",
	"default": "nova",
}

var openAIVoices = map[string]bool{
	"alloy": true, "ash": true, "ballad": true, "coral": true, "echo": true, "fable": true,
	"onyx": true, "nova": true, "sage": true, "shimmer": true, "verse": true,
}

var kokoroVoiceID = regexp.MustCompile(`^[a-z][fm]_[a-z]+$`)

// KokoroVoice maps a preset or Kokoro voice id to a Kokoro voice id.
func KokoroVoice(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if v, ok := kokoroPresets[name]; ok {
		return v
	}
	if kokoroVoiceID.MatchString(name) {
		return name
	}
	return kokoroPresets["default"]
}

// OpenAIVoice maps a preset, OpenAI voice name or Kokoro voice id to an
// OpenAI voice name.
func OpenAIVoice(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if kokoroVoiceID.MatchString(name) {
		name = name[strings.IndexByte(name, '_')+1:]
	}
	if v, ok := openAIPresets[name]; ok {
		return v
	}
	if openAIVoices[name] {
		return name
	}
	return openAIPresets["default"]
}

var (
	reFollowups = []*regexp.Regexp{
		regexp.MustCompile(`(?is)\*\*Want to explore more\?.*`),
		regexp.MustCompile(`(?is)Want to explore more\?.*`),
		regexp.MustCompile(`(?is)Here are some.*questions to ask.*`),
	}
	reBold    = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	reItalic  = regexp.MustCompile(`\*([^*]+)\*`)
	reHeader  = regexp.MustCompile(`#{1,6}\s*`)
	reLink    = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reBullet  = regexp.MustCompile(`(?m)^\s*[-*•]\s+`)
	reStrayMD = regexp.MustCompile("[*_`]+")
)

// CleanText prepares answer text for narration: the follow-up section is
// removed and markdown is reduced to plain words.
func CleanText(text string) string {
	for _, re := range reFollowups {
		if loc := re.FindStringIndex(text); loc != nil {
			text = text[:loc[0]]
			break
		}
	}
	text = reBold.ReplaceAllString(text, "$1")
	text = reItalic.ReplaceAllString(text, "$1")
	text = reHeader.ReplaceAllString(text, "")
	text = reLink.ReplaceAllString(text, "$1")
	text = reBullet.ReplaceAllString(text, "")
	text = reStrayMD.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
