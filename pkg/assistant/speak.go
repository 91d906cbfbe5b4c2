package assistant

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/haivivi/zoocari/pkg/safety"
	"github.com/haivivi/zoocari/pkg/segment"
	"github.com/haivivi/zoocari/pkg/timing"
	"github.com/haivivi/zoocari/pkg/tts"
)

// speaker narrates sentences in order. Up to window sentences are
// synthesized concurrently; their audio is emitted strictly in the order
// the sentences were given. Failed sentences are logged and skipped
// without using an index.
//
// A speaker belongs to one stream and is not safe for concurrent use.
type speaker struct {
	ctx    context.Context
	cancel context.CancelFunc
	synth  tts.Synthesizer
	voice  Voice
	timer  *timing.Timer
	yield  func(Event) bool
	texts  bool
	window int

	queue   []*utterance
	next    int
	failed  int
	stopped bool
}

type utterance struct {
	text  string
	done  chan struct{}
	audio []byte
	err   error
}

func (a *Assistant) newSpeaker(ctx context.Context, v Voice, timer *timing.Timer, yield func(Event) bool, texts bool) *speaker {
	if v.Name == "" {
		v.Name = a.voice.Name
	}
	if v.Speed == 0 {
		v.Speed = a.voice.Speed
	}
	ctx, cancel := context.WithCancel(ctx)
	return &speaker{
		ctx:    ctx,
		cancel: cancel,
		synth:  a.synthesizer,
		voice:  v,
		timer:  timer,
		yield:  yield,
		texts:  texts,
		window: max(a.lookahead, 1),
	}
}

func (s *speaker) emit(e Event) bool {
	if s.stopped {
		return false
	}
	if !s.yield(e) {
		s.stopped = true
	}
	return !s.stopped
}

// say queues sentences for narration, emitting their text first when the
// speaker sends texts. Skipped sentences are never synthesized. It
// returns false once the consumer stopped.
func (s *speaker) say(sentences []segment.Sentence) bool {
	for _, sent := range sentences {
		if s.texts && !s.emit(textEvent(sent.Text)) {
			return false
		}
		if sent.Skip {
			continue
		}
		s.enqueue(sent.Text)
		for len(s.queue) >= s.window {
			if !s.emitFirst() {
				return false
			}
		}
	}
	return !s.stopped
}

func (s *speaker) enqueue(text string) {
	u := &utterance{text: text, done: make(chan struct{})}
	req := tts.Request{Text: text, Voice: s.voice.Name, Speed: s.voice.Speed}
	go func() {
		defer close(u.done)
		defer s.timer.Component(timing.Synthesis)()
		u.audio, u.err = s.synth.Synthesize(s.ctx, req)
	}()
	s.queue = append(s.queue, u)
}

// emitFirst waits for the oldest queued sentence and emits its audio.
func (s *speaker) emitFirst() bool {
	u := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	<-u.done

	if u.err != nil {
		if s.ctx.Err() != nil {
			s.stopped = true
			return false
		}
		if !errors.Is(u.err, tts.ErrEmptyText) {
			s.failed++
			slog.Warn("assistant: sentence not narrated", "request_id", s.timer.ID(), "sentence", u.text, "err", u.err)
		}
		return true
	}
	e := audioEvent(u.audio, u.text, s.next)
	s.next++
	return s.emit(e)
}

// flush emits the audio of every queued sentence.
func (s *speaker) flush() bool {
	for len(s.queue) > 0 {
		if !s.emitFirst() {
			return false
		}
	}
	return !s.stopped
}

// close abandons queued sentences and waits for their synthesis to stop.
func (s *speaker) close() {
	s.cancel()
	for _, u := range s.queue {
		<-u.done
	}
	s.queue = nil
}

// count returns the number of audio events emitted.
func (s *speaker) count() int {
	if s == nil {
		return 0
	}
	return s.next
}

// Speak narrates text. The stream carries one audio event per sentence
// and a done event with the number of chunks. Sentences after a skip
// marker are not narrated.
//
// Text that fails moderation is refused with ErrRejected before anything
// is synthesized.
func (a *Assistant) Speak(ctx context.Context, text string, v Voice) (iter.Seq[Event], error) {
	if a.synthesizer == nil {
		return nil, fmt.Errorf("%w: tts", ErrNotConfigured)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, tts.ErrEmptyText
	}
	if r := a.gate.Validate(ctx, text, safety.Output); !r.Safe {
		return nil, fmt.Errorf("%w: %s", ErrRejected, r.Reason)
	}

	return func(yield func(Event) bool) {
		timer := timing.Start("speak")
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		sp := a.newSpeaker(ctx, v, timer, yield, false)
		defer sp.close()
		if !sp.say(a.sentences(text)) || !sp.flush() {
			timer.End("cancelled")
			return
		}
		if sp.count() == 0 && sp.failed > 0 {
			timer.End("error")
			yield(errorEvent(UnavailableResponse))
			return
		}
		timer.End("ok")
		yield(Event{Type: EventDone, Chunks: sp.count()})
	}, nil
}
