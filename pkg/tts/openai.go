package tts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Speech models.
const (
	ModelTTS1   = "tts-1"
	ModelKokoro = "kokoro"
)

// OpenAIMaxChars is the input limit of the hosted speech API.
const OpenAIMaxChars = 4096

type config struct {
	model      string
	baseURL    string
	httpClient *http.Client
	voice      func(string) string
	maxChars   int
}

// Option configures an OpenAI synthesizer.
type Option func(*config)

// WithModel sets the speech model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// WithMaxChars truncates input to n characters. Zero disables truncation.
func WithMaxChars(n int) Option {
	return func(c *config) { c.maxChars = n }
}

// OpenAI implements [Synthesizer] with the OpenAI speech API.
type OpenAI struct {
	client   *openai.Client
	model    string
	voice    func(string) string
	maxChars int
}

var _ Synthesizer = (*OpenAI)(nil)

// NewOpenAI creates a synthesizer for the hosted speech API. Presets map to
// OpenAI voices and input is truncated to OpenAIMaxChars.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	cfg := config{
		model:    ModelTTS1,
		voice:    OpenAIVoice,
		maxChars: OpenAIMaxChars,
	}
	return newOpenAI(apiKey, cfg, opts)
}

// NewKokoro creates a synthesizer for a local Kokoro server at baseURL
// (for example http://localhost:8880/v1).
func NewKokoro(baseURL string, opts ...Option) *OpenAI {
	cfg := config{
		model:   ModelKokoro,
		baseURL: baseURL,
		voice:   KokoroVoice,
	}
	return newOpenAI("local", cfg, opts)
}

func newOpenAI(apiKey string, cfg config, opts []Option) *OpenAI {
	cfg.httpClient = http.DefaultClient
	for _, o := range opts {
		o(&cfg)
	}
	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(clientOpts...)
	return &OpenAI{client: &client, model: cfg.model, voice: cfg.voice, maxChars: cfg.maxChars}
}

// Synthesize returns WAV audio for req.Text after CleanText.
func (o *OpenAI) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	text := truncate(CleanText(req.Text), o.maxChars)
	if text == "" {
		return nil, ErrEmptyText
	}
	voice := o.voice(req.Voice)
	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(o.model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatWAV,
		Speed:          openai.Float(ClampSpeed(req.Speed)),
	})
	if err != nil {
		return nil, fmt.Errorf("tts: %s: %w", o.model, err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: %s: read audio: %w", o.model, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("tts: %s: empty audio", o.model)
	}
	slog.Debug("tts: synthesized", "model", o.model, "voice", voice, "chars", len(text), "bytes", len(audio))
	return audio, nil
}
