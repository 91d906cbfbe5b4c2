package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"

	"github.com/haivivi/zoocari/pkg/fallback"
	"github.com/haivivi/zoocari/pkg/genx"
)

var (
	_ Moderator = (*OpenAIModerator)(nil)
	_ Moderator = (*LlamaGuard)(nil)
	_ Moderator = (*FallbackModerator)(nil)
)

// OpenAIModerator uses the OpenAI moderation endpoint.
type OpenAIModerator struct {
	Client *openai.Client

	// Model defaults to omni-moderation-latest.
	Model string
}

func (m *OpenAIModerator) Moderate(ctx context.Context, text string) (Result, error) {
	model := openai.ModerationModelOmniModerationLatest
	if m.Model != "" {
		model = openai.ModerationModel(m.Model)
	}
	resp, err := m.Client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
		Model: model,
	})
	if err != nil {
		return Result{}, fmt.Errorf("safety: openai moderation: %w", err)
	}
	if len(resp.Results) == 0 {
		return Result{}, fmt.Errorf("safety: openai moderation: empty result")
	}
	res := resp.Results[0]
	if !res.Flagged {
		return Pass(), nil
	}
	return Result{Reason: ReasonFlagged, Categories: flaggedCategories(res.Categories.RawJSON())}, nil
}

// flaggedCategories returns the keys set to true in a categories object,
// sorted for stable output.
func flaggedCategories(raw string) []string {
	var cats map[string]bool
	if err := json.Unmarshal([]byte(raw), &cats); err != nil {
		return nil
	}
	var out []string
	for k, v := range cats {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// llamaGuardCategories maps Llama Guard 3 hazard codes to category names.
var llamaGuardCategories = map[string]string{
	"S1":  "violent_crimes",
	"S2":  "non_violent_crimes",
	"S3":  "sex_related_crimes",
	"S4":  "child_sexual_exploitation",
	"S5":  "defamation",
	"S6":  "specialized_advice",
	"S7":  "privacy",
	"S8":  "intellectual_property",
	"S9":  "indiscriminate_weapons",
	"S10": "hate",
	"S11": "suicide_self_harm",
	"S12": "sexual_content",
	"S13": "elections",
	"S14": "code_interpreter_abuse",
}

// LlamaGuard classifies text with a locally served Llama Guard model,
// typically through Ollama's OpenAI-compatible endpoint. The model answers
// "safe", or "unsafe" followed by a line of comma-separated hazard codes.
type LlamaGuard struct {
	Generator genx.Generator
}

func (m *LlamaGuard) Moderate(ctx context.Context, text string) (Result, error) {
	s, err := m.Generator.GenerateStream(ctx, &genx.Request{
		Messages: []genx.Message{{Role: genx.RoleUser, Content: text}},
		Params:   &genx.ModelParams{MaxTokens: 20},
	})
	if err != nil {
		return Result{}, fmt.Errorf("safety: llama guard: %w", err)
	}
	verdict, err := genx.Collect(s)
	if err != nil {
		return Result{}, fmt.Errorf("safety: llama guard: %w", err)
	}
	return ParseLlamaGuard(verdict)
}

// ParseLlamaGuard interprets a Llama Guard verdict.
func ParseLlamaGuard(verdict string) (Result, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(verdict)))
	if len(fields) == 0 {
		return Result{}, fmt.Errorf("safety: llama guard: empty verdict")
	}
	switch fields[0] {
	case "safe":
		return Pass(), nil
	case "unsafe":
	default:
		return Result{}, fmt.Errorf("safety: llama guard: unexpected verdict %q", verdict)
	}
	var cats []string
	for _, f := range fields[1:] {
		for _, code := range strings.Split(f, ",") {
			code = strings.ToUpper(strings.TrimSpace(code))
			if code == "" {
				continue
			}
			if name, ok := llamaGuardCategories[code]; ok {
				cats = append(cats, name)
			} else {
				cats = append(cats, code)
			}
		}
	}
	return Result{Reason: ReasonFlagged, Categories: cats}, nil
}

// FallbackModerator prefers a local classifier and falls back to a cloud
// moderation service.
type FallbackModerator struct {
	d *fallback.Dispatcher[string, Result]
}

// NewFallbackModerator creates a FallbackModerator. local may be nil.
func NewFallbackModerator(local, cloud Moderator, localName, cloudName string, opts ...fallback.Option) *FallbackModerator {
	var lp, cp fallback.Provider[string, Result]
	if local != nil {
		lp = fallback.Provider[string, Result]{Name: localName, Call: local.Moderate}
	}
	if cloud != nil {
		cp = fallback.Provider[string, Result]{Name: cloudName, Call: cloud.Moderate}
	}
	return &FallbackModerator{d: fallback.New(fallback.CapabilityModeration, lp, cp, opts...)}
}

func (m *FallbackModerator) Moderate(ctx context.Context, text string) (Result, error) {
	return m.d.Execute(ctx, text)
}

// Probe returns the local classifier's availability probe, if any.
func (m *FallbackModerator) Probe() *fallback.Probe { return m.d.Probe() }
