package genx

import (
	"context"

	"github.com/goccy/go-yaml"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "assistant"
)

func (r Role) String() string { return string(r) }

// Message is one turn of conversation history.
type Message struct {
	Role    Role   `json:"role" msgpack:"role"`
	Content string `json:"content" msgpack:"content"`
}

// ModelParams are the sampling parameters passed to the backend.
// Zero values leave the backend default in place.
type ModelParams struct {
	MaxTokens   int     `json:"max_tokens,omitzero" yaml:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitzero" yaml:"temperature,omitempty"`
	TopP        float32 `json:"top_p,omitzero" yaml:"top_p,omitempty"`
}

// Request is an immutable generation request. System is sent as the
// leading instruction turn, followed by Messages in order.
type Request struct {
	System   string
	Messages []Message
	Params   *ModelParams
}

// Stream is a forward-only sequence of generated text fragments.
type Stream interface {
	Next() (string, error)
	Close() error
	CloseWithError(error) error
}

// Generator produces a Stream for a Request. The returned stream runs
// under ctx; cancelling ctx aborts it.
type Generator interface {
	GenerateStream(ctx context.Context, req *Request) (Stream, error)
}

type Usage struct {
	// Number of tokens in the prompt.
	PromptTokenCount int64

	// Number of tokens generated.
	GeneratedTokenCount int64
}

func (u Usage) String() string {
	b, _ := yaml.Marshal(map[string]map[string]any{
		"Usage": {
			"Prompt":    u.PromptTokenCount,
			"Generated": u.GeneratedTokenCount,
		},
	})
	return string(b)
}
