package genx

import (
	"errors"
	"fmt"
)

// Terminal conditions of a Stream. The *State returned by Next wraps one
// of them, or the provider error for StatusError.
var (
	ErrDone      = errors.New("genx: done")
	ErrTruncated = errors.New("genx: truncated at the token limit")
	ErrBlocked   = errors.New("genx: blocked by the provider")
)

// State is the error a Stream returns after its last fragment. Match it
// with errors.Is against the sentinels above, or errors.As to read the
// usage.
type State struct {
	Status Status
	Usage  Usage

	// Refusal is the provider's explanation for StatusBlocked.
	Refusal string

	cause error
}

func newState(evt *streamEvent) *State {
	st := &State{Status: evt.Status, Usage: evt.Usage, Refusal: evt.Refusal}
	switch evt.Status {
	case StatusDone:
		st.cause = ErrDone
	case StatusTruncated:
		st.cause = ErrTruncated
	case StatusBlocked:
		st.cause = ErrBlocked
	case StatusError:
		st.cause = fmt.Errorf("genx: generate: %w", evt.Error)
	default:
		st.cause = fmt.Errorf("genx: unexpected stream status %d", evt.Status)
	}
	return st
}

func (st *State) Unwrap() error { return st.cause }

func (st *State) Error() string {
	if st.Status == StatusBlocked && st.Refusal != "" {
		return ErrBlocked.Error() + ": " + st.Refusal
	}
	return st.cause.Error()
}
