// Package safety validates questions and answers for a children's
// audience.
//
// A Gate runs its checks strictly in order and stops at the first failure:
//
//  1. length budget
//  2. prompt-injection phrasings
//  3. personal information (email, phone, ssn, address)
//  4. topic relevance (input only; three words or fewer always pass)
//  5. content moderation
//
// Output validation runs only the moderation stage. Moderation failures of
// the infrastructure itself fail open: the text is treated as safe and the
// condition is logged and counted.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// Direction tells the gate whether it validates a question or an answer.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Result is the verdict of one check or of the whole gate.
type Result struct {
	Safe       bool     `json:"is_safe"`
	Reason     string   `json:"reason,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// Pass returns a passing Result.
func Pass() Result { return Result{Safe: true} }

// Moderator classifies text against a content policy. An error means the
// moderation service itself failed, not that the text is unsafe.
type Moderator interface {
	Moderate(ctx context.Context, text string) (Result, error)
}

type config struct {
	maxLen    int
	injection []*regexp.Regexp
	pii       []PIIPattern
	keywords  []string
	moderator Moderator
}

// Option configures a Gate.
type Option func(*config)

// WithMaxInputLength sets the character budget for input text.
func WithMaxInputLength(n int) Option {
	return func(c *config) { c.maxLen = n }
}

// WithInjectionPatterns replaces the prompt-injection patterns.
func WithInjectionPatterns(res ...*regexp.Regexp) Option {
	return func(c *config) { c.injection = res }
}

// WithPIIPatterns replaces the personal-information patterns.
func WithPIIPatterns(ps ...PIIPattern) Option {
	return func(c *config) { c.pii = ps }
}

// WithTopicKeywords replaces the domain vocabulary.
func WithTopicKeywords(kws ...string) Option {
	return func(c *config) { c.keywords = kws }
}

// WithModerator sets the moderation stage. Without one, moderation passes.
func WithModerator(m Moderator) Option {
	return func(c *config) { c.moderator = m }
}

type stage struct {
	name  string
	check func(ctx context.Context, text string) Result
}

// Gate is the ordered validation pipeline. It is safe for concurrent use.
type Gate struct {
	maxLen    int
	injection []*regexp.Regexp
	pii       []PIIPattern
	topic     topicFilter
	moderator Moderator

	input  []stage
	output []stage

	failOpens atomic.Int64
}

// NewGate creates a Gate with the default zoo policy, adjusted by opts.
func NewGate(opts ...Option) *Gate {
	c := config{
		maxLen:    DefaultMaxInputLength,
		injection: DefaultInjectionPatterns,
		pii:       DefaultPIIPatterns,
		keywords:  DefaultTopicKeywords,
	}
	for _, o := range opts {
		o(&c)
	}
	g := &Gate{
		maxLen:    c.maxLen,
		injection: c.injection,
		pii:       c.pii,
		topic:     newTopicFilter(c.keywords),
		moderator: c.moderator,
	}
	g.input = []stage{
		{"length", g.checkLength},
		{"injection", func(_ context.Context, s string) Result { return checkInjection(g.injection, s) }},
		{"pii", func(_ context.Context, s string) Result { return checkPII(g.pii, s) }},
		{"topic", func(_ context.Context, s string) Result { return g.topic.check(s) }},
		{"moderation", g.moderate},
	}
	g.output = []stage{
		{"moderation", g.moderate},
	}
	return g
}

// Validate runs the stages for dir in order and returns the first failure,
// or a passing Result.
func (g *Gate) Validate(ctx context.Context, text string, dir Direction) Result {
	stages := g.input
	if dir == Output {
		stages = g.output
	}
	for _, st := range stages {
		if r := st.check(ctx, text); !r.Safe {
			slog.Info("safety: rejected", "direction", dir, "stage", st.name, "categories", r.Categories)
			return r
		}
	}
	return Pass()
}

// FailOpens returns how many moderation calls failed and were let through.
func (g *Gate) FailOpens() int64 { return g.failOpens.Load() }

func (g *Gate) checkLength(_ context.Context, text string) Result {
	if utf8.RuneCountInString(text) > g.maxLen {
		return Result{
			Reason:     fmt.Sprintf("Message too long - please keep it under %d characters", g.maxLen),
			Categories: []string{CategoryTooLong},
		}
	}
	return Pass()
}

func (g *Gate) moderate(ctx context.Context, text string) Result {
	if g.moderator == nil || strings.TrimSpace(text) == "" {
		return Pass()
	}
	r, err := g.moderator.Moderate(ctx, text)
	if err != nil {
		g.failOpens.Add(1)
		slog.Error("safety: moderation unavailable, failing open", "err", err)
		return Pass()
	}
	if !r.Safe && r.Reason == "" {
		r.Reason = ReasonFlagged
	}
	return r
}
