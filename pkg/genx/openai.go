package genx

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
)

var _ Generator = (*OpenAIGenerator)(nil)

const (
	oaiFinishReasonStop          string = "stop"
	oaiFinishReasonLength        string = "length"
	oaiFinishReasonContentFilter string = "content_filter"
)

// OpenAIGenerator implements Generator using the OpenAI chat completions
// API. Pointing the client at an OpenAI-compatible server (for example
// Ollama at http://localhost:11434/v1) makes it a local generator.
type OpenAIGenerator struct {
	Client *openai.Client `json:"-"`

	Model string `json:"model"`

	// Params are used when the request carries none.
	Params *ModelParams `json:"params,omitzero"`

	// UseSystemRole sends the instruction turn with the system role
	// instead of the developer role. Most OpenAI-compatible servers
	// only understand the system role.
	UseSystemRole bool `json:"use_system_role,omitzero"`
}

func (g *OpenAIGenerator) GenerateStream(ctx context.Context, req *Request) (Stream, error) {
	if req == nil || (req.System == "" && len(req.Messages) == 0) {
		return nil, errors.New("genx: empty request")
	}
	params := g.chatCompletion(req)
	sb := NewStreamBuilder(32)
	go func() {
		if err := oaiPull(sb, g.Client.Chat.Completions.NewStreaming(ctx, params)); err != nil {
			sb.Abort(err)
		}
	}()
	return sb.Stream(), nil
}

func (g *OpenAIGenerator) chatCompletion(req *Request) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		if g.UseSystemRole {
			msgs = append(msgs, openai.SystemMessage(req.System))
		} else {
			msgs = append(msgs, openai.DeveloperMessage(req.System))
		}
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleModel:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    g.Model,
	}
	mp := req.Params
	if mp == nil {
		mp = g.Params
	}
	if mp != nil {
		if mp.MaxTokens > 0 {
			params.MaxCompletionTokens = param.NewOpt(int64(mp.MaxTokens))
		}
		if mp.Temperature > 0 {
			params.Temperature = param.NewOpt(float64(mp.Temperature))
		}
		if mp.TopP > 0 {
			params.TopP = param.NewOpt(float64(mp.TopP))
		}
	}
	return params
}

func oaiPull(sb *StreamBuilder, stream *ssestream.Stream[openai.ChatCompletionChunk]) error {
	defer stream.Close()
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		sel := chunk.Choices[0]
		if err := sb.Add(sel.Delta.Content); err != nil {
			return err
		}
		if s := sel.Delta.Refusal; s != "" {
			return sb.Blocked(oaiConvUsage(&chunk.Usage), s)
		}
		switch sel.FinishReason {
		case oaiFinishReasonStop:
			return sb.Done(oaiConvUsage(&chunk.Usage))
		case oaiFinishReasonLength:
			return sb.Truncated(oaiConvUsage(&chunk.Usage))
		case oaiFinishReasonContentFilter:
			return sb.Blocked(oaiConvUsage(&chunk.Usage), "content filter")
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	// Some compatible servers end the event stream without a finish reason.
	return sb.Done(Usage{})
}

func oaiConvUsage(usage *openai.CompletionUsage) Usage {
	return Usage{
		PromptTokenCount:    usage.PromptTokens,
		GeneratedTokenCount: usage.CompletionTokens,
	}
}
