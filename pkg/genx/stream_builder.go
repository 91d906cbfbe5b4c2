package genx

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/haivivi/zoocari/pkg/buffer"
)

type Status int

const (
	StatusOK Status = iota
	StatusDone
	StatusTruncated
	StatusBlocked
	StatusError
)

type streamEvent struct {
	Text    string
	Status  Status
	Usage   Usage
	Refusal string
	Error   error
}

// StreamBuilder is the producer side of a Stream. A backend goroutine
// calls Add for every fragment and finishes with exactly one of Done,
// Truncated, Blocked, Unexpected or Abort.
type StreamBuilder struct {
	rb *buffer.BlockBuffer[*streamEvent]
}

func NewStreamBuilder(size int) *StreamBuilder {
	return &StreamBuilder{rb: buffer.BlockN[*streamEvent](size)}
}

func (sb *StreamBuilder) finish(evt *streamEvent) error {
	if err := sb.rb.Add(evt); err != nil {
		return err
	}
	return sb.rb.CloseWrite()
}

func (sb *StreamBuilder) Done(stats Usage) error {
	return sb.finish(&streamEvent{Status: StatusDone, Usage: stats})
}

func (sb *StreamBuilder) Truncated(stats Usage) error {
	return sb.finish(&streamEvent{Status: StatusTruncated, Usage: stats})
}

func (sb *StreamBuilder) Blocked(stats Usage, refusal string) error {
	return sb.finish(&streamEvent{Status: StatusBlocked, Usage: stats, Refusal: refusal})
}

func (sb *StreamBuilder) Unexpected(stats Usage, err error) error {
	return sb.finish(&streamEvent{Status: StatusError, Usage: stats, Error: err})
}

// Add queues text fragments. Empty fragments are dropped.
func (sb *StreamBuilder) Add(texts ...string) error {
	for _, t := range texts {
		if t == "" {
			continue
		}
		if err := sb.rb.Add(&streamEvent{Text: t}); err != nil {
			return err
		}
	}
	return nil
}

// Abort closes the stream immediately; the consumer's next Next returns err.
func (sb *StreamBuilder) Abort(err error) error {
	return sb.rb.CloseWithError(err)
}

func (sb *StreamBuilder) Stream() Stream {
	return (*streamImpl)(sb)
}

type streamImpl StreamBuilder

func (s *streamImpl) Next() (string, error) {
	evt, err := s.rb.Next()
	if err != nil {
		if errors.Is(err, buffer.ErrIteratorDone) {
			return "", newState(&streamEvent{Status: StatusError, Error: errors.New("unexpected end of stream")})
		}
		return "", err
	}
	if evt.Status == StatusOK {
		return evt.Text, nil
	}
	err = newState(evt)
	s.rb.CloseWithError(err)
	return "", err
}

func (s *streamImpl) Close() error {
	return s.rb.Close()
}

func (s *streamImpl) CloseWithError(err error) error {
	return s.rb.CloseWithError(err)
}

// Fragments returns a completed Stream that yields texts and then ErrDone.
func Fragments(texts ...string) Stream {
	sb := NewStreamBuilder(len(texts) + 1)
	sb.Add(texts...)
	sb.Done(Usage{})
	return sb.Stream()
}

// Collect drains s into a single string. A stream truncated at the token
// limit still yields its text.
func Collect(s Stream) (string, error) {
	defer s.Close()
	var sb strings.Builder
	for {
		text, err := s.Next()
		if err != nil {
			if errors.Is(err, ErrDone) {
				return sb.String(), nil
			}
			if errors.Is(err, ErrTruncated) {
				slog.Debug("genx: collected truncated response", "len", sb.Len())
				return sb.String(), nil
			}
			return sb.String(), err
		}
		sb.WriteString(text)
	}
}

// Prefetch pulls the first fragment of s so that failures to start
// generating surface as an error here. The returned Stream replays that
// fragment before continuing with s. A stream that finishes without any
// fragment is returned as an empty completed stream.
func Prefetch(s Stream) (Stream, error) {
	first, err := s.Next()
	if err != nil {
		if errors.Is(err, ErrDone) {
			return Fragments(), nil
		}
		s.CloseWithError(err)
		return nil, err
	}
	return &prefetched{first: first, has: true, Stream: s}, nil
}

type prefetched struct {
	first string
	has   bool
	Stream
}

func (p *prefetched) Next() (string, error) {
	if p.has {
		p.has = false
		return p.first, nil
	}
	return p.Stream.Next()
}
