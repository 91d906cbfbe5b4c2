package stt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Transcription models.
const (
	ModelWhisper1 = "whisper-1"

	// ModelFasterWhisperBase is the model name local faster-whisper
	// servers use for the base int8 model.
	ModelFasterWhisperBase = "Systran/faster-whisper-base"
)

type config struct {
	model      string
	language   string
	baseURL    string
	httpClient *http.Client
}

// Option configures a transcriber.
type Option func(*config)

// WithModel sets the transcription model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage sets the spoken language hint (ISO-639-1). Default "en".
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithBaseURL points the transcriber at an OpenAI-compatible server, such as
// a local faster-whisper deployment.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// OpenAI implements [Transcriber] with the OpenAI transcription API.
type OpenAI struct {
	client   *openai.Client
	model    string
	language string
}

var _ Transcriber = (*OpenAI)(nil)

// NewOpenAI creates a transcriber. apiKey may be empty for local servers.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	cfg := config{
		model:      ModelWhisper1,
		language:   "en",
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if apiKey == "" {
		apiKey = "local"
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
	return &OpenAI{client: &client, model: cfg.model, language: cfg.language}
}

// Transcribe sends audio to the transcription endpoint. The file name
// carries the detected container format so the server can decode it.
func (o *OpenAI) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	format, ok := DetectFormat(audio)
	if !ok {
		format = DefaultFormat
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "recording."+format, ContentType(format)),
		Model: openai.AudioModel(o.model),
	}
	if o.language != "" {
		params.Language = openai.String(o.language)
	}
	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("stt: %s: %w", o.model, err)
	}
	text := strings.TrimSpace(resp.Text)
	slog.Debug("stt: transcribed", "model", o.model, "format", format, "chars", len(text))
	return text, nil
}
