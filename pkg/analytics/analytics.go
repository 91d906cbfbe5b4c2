// Package analytics records completed turns and rejected inputs.
//
// Recording is best effort. Callers log a failed Record and carry on; a
// user never sees an analytics error.
package analytics

import (
	"context"
	"log/slog"

	"github.com/haivivi/zoocari/pkg/knowledge"
	"github.com/haivivi/zoocari/pkg/timing"
)

// Interaction is one answered question.
type Interaction struct {
	SessionID  string
	Question   string
	Answer     string
	Sources    []knowledge.Source
	Confidence float64
	Timings    timing.ComponentTimings
	Voice      bool
}

// Abuse is one input rejected by the safety gate.
type Abuse struct {
	SessionID  string
	Message    string
	Reason     string
	Categories []string
}

// Sink receives analytics records.
type Sink interface {
	RecordInteraction(ctx context.Context, in Interaction) error
	RecordAbuse(ctx context.Context, a Abuse) error
}

// Log is a Sink that writes records as structured log lines.
type Log struct {
	Logger *slog.Logger
}

var _ Sink = Log{}

func (l Log) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l Log) RecordInteraction(ctx context.Context, in Interaction) error {
	attrs := []any{
		"session_id", in.SessionID,
		"question", in.Question,
		"answer_len", len(in.Answer),
		"sources", len(in.Sources),
		"confidence", in.Confidence,
		"voice", in.Voice,
	}
	for _, f := range []struct {
		key string
		v   *int64
	}{
		{"retrieval_ms", in.Timings.RetrievalMS},
		{"generation_ms", in.Timings.GenerationMS},
		{"synthesis_ms", in.Timings.SynthesisMS},
		{"total_ms", in.Timings.TotalMS},
	} {
		if f.v != nil {
			attrs = append(attrs, f.key, *f.v)
		}
	}
	l.logger().InfoContext(ctx, "analytics: interaction", attrs...)
	return nil
}

func (l Log) RecordAbuse(ctx context.Context, a Abuse) error {
	l.logger().WarnContext(ctx, "analytics: input rejected",
		"session_id", a.SessionID,
		"message", a.Message,
		"reason", a.Reason,
		"categories", a.Categories,
	)
	return nil
}

// Multi fans records out to every sink and returns the first error.
type Multi []Sink

var _ Sink = Multi(nil)

func (m Multi) RecordInteraction(ctx context.Context, in Interaction) error {
	var first error
	for _, s := range m {
		if err := s.RecordInteraction(ctx, in); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) RecordAbuse(ctx context.Context, a Abuse) error {
	var first error
	for _, s := range m {
		if err := s.RecordAbuse(ctx, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}
