// Package genx wraps text-generation backends behind one streaming
// interface.
//
// A Generator turns a Request (a leading system instruction plus the
// ordered conversation) into a Stream of text fragments:
//
//	type Stream interface {
//	    Next() (string, error)
//	    Close() error
//	    CloseWithError(error) error
//	}
//
// Streams are pull-based and forward-only. Next returns ErrDone (wrapped
// in a *State carrying token usage) after the final fragment; any other
// error terminates the stream. Collect drains a stream into one string.
//
// Implementations:
//
//   - [OpenAIGenerator]: OpenAI chat completions, and any OpenAI-compatible
//     server such as Ollama's /v1 endpoint
//   - [GeminiGenerator]: Google Gemini
//
// Backends push fragments into a [StreamBuilder] from a goroutine; the
// builder's bounded buffer gives the consumer backpressure.
package genx
