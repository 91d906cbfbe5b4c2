// Package assistant answers children's questions about the park.
//
// An Assistant runs one pipeline per question:
//
//	input safety check -> retrieval -> generation -> output moderation
//	    -> follow-up extraction -> session and analytics recording
//
// Questions that fail the input check never reach retrieval or the model;
// they get an in-persona refusal with pool follow-up questions instead.
//
// Answers come back whole ([Assistant.Chat]), as a stream of text events
// ([Assistant.ChatStream]) or as text and audio events narrated sentence
// by sentence while the answer is still being generated
// ([Assistant.ChatVoiceStream]).
package assistant

import (
	"context"
	"errors"
	"text/template"
	"time"

	"github.com/haivivi/zoocari/pkg/analytics"
	"github.com/haivivi/zoocari/pkg/followup"
	"github.com/haivivi/zoocari/pkg/genx"
	"github.com/haivivi/zoocari/pkg/knowledge"
	"github.com/haivivi/zoocari/pkg/safety"
	"github.com/haivivi/zoocari/pkg/session"
	"github.com/haivivi/zoocari/pkg/stt"
	"github.com/haivivi/zoocari/pkg/tts"
)

var (
	// ErrRejected is returned when text fails a safety check before any
	// provider is called.
	ErrRejected = errors.New("assistant: rejected by safety check")

	// ErrNotConfigured is returned when the capability a call needs has no
	// provider.
	ErrNotConfigured = errors.New("assistant: capability not configured")
)

// UnavailableResponse is the in-persona message sent when every provider
// of a capability failed.
const UnavailableResponse = "Oh no, my brain got a little tangled! Can you ask me that again in a moment?"

// DefaultTopK is the number of passages retrieved per question.
const DefaultTopK = 5

// DefaultRetrievalTimeout bounds the query embedding and vector search of
// one question.
const DefaultRetrievalTimeout = 10 * time.Second

// Validator checks text against the safety policy.
type Validator interface {
	Validate(ctx context.Context, text string, dir safety.Direction) safety.Result
}

// Retriever builds grounding context for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (*knowledge.Retrieved, error)
}

// Sessions reads and records conversation turns.
type Sessions interface {
	History(ctx context.Context, id string, n int) ([]session.Turn, error)
	Append(ctx context.Context, id string, role session.Role, content string) (session.Turn, error)
}

// Voice selects how answers are narrated. Zero values use the engine
// defaults.
type Voice struct {
	Name  string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

// Assistant is safe for concurrent use. Every collaborator it holds is
// shared across requests.
type Assistant struct {
	generator   genx.Generator
	gate        Validator
	retriever   Retriever
	synthesizer tts.Synthesizer
	transcriber stt.Transcriber
	followups   *followup.Extractor
	sessions    Sessions
	sink        analytics.Sink

	persona     *template.Template
	park        string
	params      *genx.ModelParams
	topK        int
	retrieveTTL time.Duration
	history     int
	lookahead   int
	voice       Voice
	skipMarkers []string
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithSafety replaces the default gate, which runs the pattern checks
// without a moderation service.
func WithSafety(v Validator) Option {
	return func(a *Assistant) { a.gate = v }
}

// WithRetriever sets where grounding context comes from and how many
// passages are retrieved.
func WithRetriever(r Retriever, k int) Option {
	return func(a *Assistant) {
		a.retriever = r
		if k > 0 {
			a.topK = k
		}
	}
}

// WithRetrievalTimeout bounds each retrieval. A retrieval that times out
// leaves the answer ungrounded.
func WithRetrievalTimeout(d time.Duration) Option {
	return func(a *Assistant) {
		if d > 0 {
			a.retrieveTTL = d
		}
	}
}

// WithSynthesizer enables voice answers.
func WithSynthesizer(s tts.Synthesizer) Option {
	return func(a *Assistant) { a.synthesizer = s }
}

// WithTranscriber enables voice questions.
func WithTranscriber(t stt.Transcriber) Option {
	return func(a *Assistant) { a.transcriber = t }
}

// WithFollowups replaces the follow-up extractor.
func WithFollowups(e *followup.Extractor) Option {
	return func(a *Assistant) { a.followups = e }
}

// WithSessions enables conversation history. Without it, every question
// is answered on its own.
func WithSessions(s Sessions, history int) Option {
	return func(a *Assistant) {
		a.sessions = s
		a.history = history
	}
}

// WithAnalytics sets where completed turns and rejected questions are
// reported.
func WithAnalytics(s analytics.Sink) Option {
	return func(a *Assistant) { a.sink = s }
}

// WithPersona replaces the instruction template. It is executed with a
// value carrying Park and Context fields.
func WithPersona(t *template.Template) Option {
	return func(a *Assistant) { a.persona = t }
}

// WithPark sets the park name used in the persona.
func WithPark(name string) Option {
	return func(a *Assistant) { a.park = name }
}

// WithModelParams sets the sampling parameters of every generation.
func WithModelParams(p genx.ModelParams) Option {
	return func(a *Assistant) { a.params = &p }
}

// WithVoice sets the default narration voice.
func WithVoice(v Voice) Option {
	return func(a *Assistant) { a.voice = v }
}

// WithSynthesisLookahead lets up to n sentences be synthesized at once.
// Audio is still emitted strictly in sentence order. The default of 1
// synthesizes one sentence at a time.
func WithSynthesisLookahead(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.lookahead = n
		}
	}
}

// WithSkipMarkers replaces the phrases after which sentences are shown
// but not narrated.
func WithSkipMarkers(markers ...string) Option {
	return func(a *Assistant) { a.skipMarkers = markers }
}

// New creates an Assistant that answers with generator.
func New(generator genx.Generator, opts ...Option) *Assistant {
	a := &Assistant{
		generator:   generator,
		gate:        safety.NewGate(),
		followups:   followup.New(),
		persona:     defaultPersona,
		park:        knowledge.DefaultParkName,
		topK:        DefaultTopK,
		retrieveTTL: DefaultRetrievalTimeout,
		lookahead:   1,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}
