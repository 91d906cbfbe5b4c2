package assistant

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/haivivi/zoocari/pkg/analytics"
	"github.com/haivivi/zoocari/pkg/followup"
	"github.com/haivivi/zoocari/pkg/genx"
	"github.com/haivivi/zoocari/pkg/knowledge"
	"github.com/haivivi/zoocari/pkg/safety"
	"github.com/haivivi/zoocari/pkg/segment"
	"github.com/haivivi/zoocari/pkg/session"
	"github.com/haivivi/zoocari/pkg/timing"
)

// Reply is a whole answer.
type Reply struct {
	SessionID  string                  `json:"session_id"`
	MessageID  string                  `json:"message_id,omitempty"`
	Text       string                  `json:"reply"`
	Sources    []knowledge.Source      `json:"sources"`
	Followups  []string                `json:"followup_questions"`
	Confidence float64                 `json:"confidence"`
	Rejected   bool                    `json:"rejected,omitempty"`
	Timings    timing.ComponentTimings `json:"timings"`
}

// turn is one question that passed the input check.
type turn struct {
	sessionID string
	message   string
	timer     *timing.Timer
	retrieved *knowledge.Retrieved
	request   *genx.Request
}

// begin checks the question and prepares its generation request. A
// non-nil Result means the question was rejected; the turn then carries
// only the timer.
func (a *Assistant) begin(ctx context.Context, label, sessionID, message string) (*turn, *safety.Result, error) {
	t := &turn{sessionID: sessionID, message: message, timer: timing.Start(label)}

	if r := a.gate.Validate(ctx, message, safety.Input); !r.Safe {
		a.recordAbuse(ctx, sessionID, message, r)
		t.timer.End("rejected")
		return t, &r, nil
	}

	t.retrieved = a.retrieve(ctx, t.timer, message)
	system, err := a.SystemPrompt(t.retrieved.Text)
	if err != nil {
		t.timer.End("error")
		return nil, nil, err
	}
	t.request = &genx.Request{
		System:   system,
		Messages: a.conversation(ctx, sessionID, message),
		Params:   a.params,
	}
	return t, nil, nil
}

// retrieve returns the grounding context for message. Retrieval failures
// leave the answer ungrounded rather than failing the turn.
func (a *Assistant) retrieve(ctx context.Context, timer *timing.Timer, message string) *knowledge.Retrieved {
	empty := &knowledge.Retrieved{Sources: []knowledge.Source{}}
	if a.retriever == nil {
		return empty
	}
	rctx, cancel := context.WithTimeout(ctx, a.retrieveTTL)
	defer cancel()
	stop := timer.Component(timing.Retrieval)
	r, err := a.retriever.Retrieve(rctx, message, a.topK)
	stop()
	if err != nil {
		slog.Warn("assistant: retrieval failed, answering without context", "request_id", timer.ID(), "err", err)
		return empty
	}
	timer.Mark(fmt.Sprintf("retrieved %d sources, confidence %.2f", len(r.Sources), r.Confidence))
	return r
}

func (a *Assistant) recordAbuse(ctx context.Context, sessionID, message string, r safety.Result) {
	if a.sink == nil {
		return
	}
	err := a.sink.RecordAbuse(ctx, analytics.Abuse{
		SessionID:  sessionID,
		Message:    message,
		Reason:     r.Reason,
		Categories: r.Categories,
	})
	if err != nil {
		slog.Error("assistant: record abuse", "session", sessionID, "err", err)
	}
}

// finish records an accepted answer and returns the text to keep, its
// follow-up questions and the message id of the recorded answer.
func (a *Assistant) finish(ctx context.Context, t *turn, answer string, voice bool) (text string, questions []string, messageID string) {
	text, questions = a.followups.Extract(answer)

	if a.sessions != nil && t.sessionID != "" {
		if _, err := a.sessions.Append(ctx, t.sessionID, session.RoleUser, t.message); err != nil {
			slog.Error("assistant: record question", "session", t.sessionID, "err", err)
		} else if reply, err := a.sessions.Append(ctx, t.sessionID, session.RoleAssistant, text); err != nil {
			slog.Error("assistant: record answer", "session", t.sessionID, "err", err)
		} else {
			messageID = reply.ID
		}
	}

	t.timer.End("ok")
	if a.sink != nil {
		err := a.sink.RecordInteraction(ctx, analytics.Interaction{
			SessionID:  t.sessionID,
			Question:   t.message,
			Answer:     text,
			Sources:    t.retrieved.Sources,
			Confidence: t.retrieved.Confidence,
			Timings:    t.timer.Timings(),
			Voice:      voice,
		})
		if err != nil {
			slog.Error("assistant: record interaction", "request_id", t.timer.ID(), "err", err)
		}
	}
	return text, questions, messageID
}

func (a *Assistant) fallbackQuestions() []string {
	return a.followups.Fallback(followup.DefaultCount)
}

// Chat answers message as a whole. Rejected questions and moderated
// answers are not errors; they produce an in-persona reply. The error is
// non-nil only when no answer could be generated.
func (a *Assistant) Chat(ctx context.Context, sessionID, message string) (*Reply, error) {
	t, rejected, err := a.begin(ctx, "chat", sessionID, message)
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return &Reply{
			SessionID: sessionID,
			Text:      safety.BlockedInputResponse,
			Sources:   []knowledge.Source{},
			Followups: a.fallbackQuestions(),
			Rejected:  true,
			Timings:   t.timer.Timings(),
		}, nil
	}

	stop := t.timer.Component(timing.Generation)
	answer, err := a.generate(ctx, t.request)
	stop()
	if err != nil {
		t.timer.End("error")
		return nil, fmt.Errorf("assistant: generate: %w", err)
	}

	if r := a.gate.Validate(ctx, answer, safety.Output); !r.Safe {
		t.timer.End("moderated")
		return &Reply{
			SessionID: sessionID,
			Text:      safety.SafeFallbackResponse,
			Sources:   []knowledge.Source{},
			Followups: a.fallbackQuestions(),
			Timings:   t.timer.Timings(),
		}, nil
	}

	text, questions, messageID := a.finish(ctx, t, answer, false)
	return &Reply{
		SessionID:  sessionID,
		MessageID:  messageID,
		Text:       text,
		Sources:    t.retrieved.Sources,
		Followups:  questions,
		Confidence: t.retrieved.Confidence,
		Timings:    t.timer.Timings(),
	}, nil
}

func (a *Assistant) generate(ctx context.Context, req *genx.Request) (string, error) {
	s, err := a.generator.GenerateStream(ctx, req)
	if err != nil {
		return "", err
	}
	return genx.Collect(s)
}

// ChatStream answers message as text events followed by a done event, or
// by an error event when generation fails or the answer fails moderation.
// Text already sent is not retracted.
//
// Breaking out of the loop cancels generation.
func (a *Assistant) ChatStream(ctx context.Context, sessionID, message string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		a.stream(ctx, sessionID, message, nil, yield)
	}
}

// ChatVoiceStream is ChatStream with narration. Text arrives one sentence
// per event, and each narrated sentence's text event precedes its audio
// event. Sentences of the follow-up section are sent as text only. A
// sentence that fails to synthesize is skipped without using an index.
// The done event carries the number of audio events.
func (a *Assistant) ChatVoiceStream(ctx context.Context, sessionID, message string, v Voice) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if a.synthesizer == nil {
			yield(errorEvent(UnavailableResponse))
			return
		}
		a.stream(ctx, sessionID, message, &v, yield)
	}
}

func (a *Assistant) stream(ctx context.Context, sessionID, message string, voice *Voice, yield func(Event) bool) {
	label := "chat_stream"
	if voice != nil {
		label = "chat_voice_stream"
	}
	t, rejected, err := a.begin(ctx, label, sessionID, message)
	if err != nil {
		slog.Error("assistant: prepare", "session", sessionID, "err", err)
		yield(errorEvent(UnavailableResponse))
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sp *speaker
	if voice != nil {
		sp = a.newSpeaker(ctx, *voice, t.timer, yield, true)
		defer sp.close()
	}

	if rejected != nil {
		if sp == nil {
			if !yield(textEvent(safety.BlockedInputResponse)) {
				return
			}
		} else if !sp.say(a.sentences(safety.BlockedInputResponse)) || !sp.flush() {
			return
		}
		yield(Event{
			Type:      EventDone,
			SessionID: sessionID,
			Followups: a.fallbackQuestions(),
			Chunks:    sp.count(),
			Rejected:  true,
		})
		return
	}

	// Generation counts only time spent waiting on the model, not time
	// the loop spends blocked on narration.
	stopGen := t.timer.Component(timing.Generation)
	s, err := a.generator.GenerateStream(ctx, t.request)
	stopGen()
	if err != nil {
		a.fail(t, err, yield)
		return
	}
	defer s.Close()

	var (
		seg    = segment.New(a.segmentOptions()...)
		answer strings.Builder
	)
	for {
		stopGen = t.timer.Component(timing.Generation)
		frag, err := s.Next()
		stopGen()
		if err != nil {
			if errors.Is(err, genx.ErrDone) || errors.Is(err, genx.ErrTruncated) {
				break
			}
			if ctx.Err() != nil {
				t.timer.End("cancelled")
				return
			}
			a.fail(t, err, yield)
			return
		}
		answer.WriteString(frag)
		if sp == nil {
			if !yield(textEvent(frag)) {
				t.timer.End("cancelled")
				return
			}
			continue
		}
		if !sp.say(seg.Push(frag)) {
			t.timer.End("cancelled")
			return
		}
	}
	if sp != nil {
		if !sp.say(seg.Flush()) || !sp.flush() {
			t.timer.End("cancelled")
			return
		}
	}

	full := answer.String()
	if r := a.gate.Validate(ctx, full, safety.Output); !r.Safe {
		t.timer.End("moderated")
		yield(errorEvent(safety.SafeFallbackResponse))
		return
	}

	_, questions, messageID := a.finish(ctx, t, full, voice != nil)
	yield(Event{
		Type:       EventDone,
		SessionID:  sessionID,
		MessageID:  messageID,
		Sources:    t.retrieved.Sources,
		Followups:  questions,
		Confidence: t.retrieved.Confidence,
		Chunks:     sp.count(),
	})
}

func (a *Assistant) fail(t *turn, err error, yield func(Event) bool) {
	slog.Error("assistant: generation failed", "request_id", t.timer.ID(), "err", err)
	t.timer.End("error")
	yield(errorEvent(UnavailableResponse))
}

func (a *Assistant) segmentOptions() []segment.Option {
	if a.skipMarkers == nil {
		return nil
	}
	return []segment.Option{segment.WithSkipMarkers(a.skipMarkers...)}
}

// sentences splits a complete text.
func (a *Assistant) sentences(text string) []segment.Sentence {
	seg := segment.New(a.segmentOptions()...)
	return append(seg.Push(text), seg.Flush()...)
}
