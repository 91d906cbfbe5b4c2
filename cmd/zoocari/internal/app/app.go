// Package app builds the zoocari service from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"

	"github.com/haivivi/zoocari/pkg/analytics"
	"github.com/haivivi/zoocari/pkg/assistant"
	"github.com/haivivi/zoocari/pkg/config"
	"github.com/haivivi/zoocari/pkg/fallback"
	"github.com/haivivi/zoocari/pkg/genx"
	"github.com/haivivi/zoocari/pkg/knowledge"
	"github.com/haivivi/zoocari/pkg/safety"
	"github.com/haivivi/zoocari/pkg/server"
	"github.com/haivivi/zoocari/pkg/session"
	"github.com/haivivi/zoocari/pkg/stt"
	"github.com/haivivi/zoocari/pkg/tts"
)

const gcInterval = 10 * time.Minute

// App is a fully wired service.
type App struct {
	Config    *config.Config
	Assistant *assistant.Assistant
	Sessions  *session.Store
	Index     *knowledge.Index

	// Reports is nil when analytics.duckdb is not set.
	Reports *analytics.DuckDB

	// Probes holds the probe of each capability with a local provider.
	Probes map[fallback.Capability]*fallback.Probe

	httpClient *http.Client
	closers    []func() error
	cancel     context.CancelFunc
}

// New opens storage and builds every provider named by cfg. Close the App
// when done.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	bg, cancel := context.WithCancel(context.Background())
	a := &App{
		Config:     cfg,
		Probes:     make(map[fallback.Capability]*fallback.Probe),
		httpClient: &http.Client{},
		cancel:     cancel,
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	k, err := OpenKnowledge(ctx, cfg, a.httpClient)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, k.Close)
	go k.store.RunGC(bg, gcInterval)
	a.Index = k.Index
	a.Sessions = session.New(k.store)

	gen, err := a.generator(ctx)
	if err != nil {
		return nil, err
	}
	sinks, err := a.sinks()
	if err != nil {
		return nil, err
	}
	opts := []assistant.Option{
		assistant.WithSafety(a.gate()),
		assistant.WithRetriever(a.retriever(), cfg.Retrieval.TopK),
		assistant.WithRetrievalTimeout(cfg.Timeouts.Provider.Std()),
		assistant.WithSessions(a.Sessions, cfg.Generation.History),
		assistant.WithAnalytics(sinks),
		assistant.WithPark(cfg.Park.Name),
		assistant.WithModelParams(genx.ModelParams{
			MaxTokens:   cfg.Generation.MaxTokens,
			Temperature: cfg.Generation.Temperature,
		}),
		assistant.WithVoice(assistant.Voice{Name: cfg.Speech.TTS.Voice, Speed: cfg.Speech.TTS.Speed}),
		assistant.WithSynthesisLookahead(cfg.Speech.TTS.Lookahead),
	}
	if cfg.Generation.Persona != "" {
		persona, err := assistant.ParsePersona(cfg.Generation.Persona)
		if err != nil {
			return nil, err
		}
		opts = append(opts, assistant.WithPersona(persona))
	}
	if t := a.transcriber(); t != nil {
		opts = append(opts, assistant.WithTranscriber(t))
	}
	if s := a.synthesizer(); s != nil {
		opts = append(opts, assistant.WithSynthesizer(s))
	}
	a.Assistant = assistant.New(gen, opts...)
	return a, nil
}

// Close releases storage. It is safe to call more than once.
func (a *App) Close() error {
	a.cancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ServerOptions returns the options for serving this App over HTTP.
func (a *App) ServerOptions() []server.Option {
	opts := []server.Option{
		server.WithSessions(a.Sessions),
		server.WithCORSOrigins(a.Config.Server.CORSOrigins...),
	}
	if a.Reports != nil {
		opts = append(opts, server.WithReports(a.Reports))
	}
	for c, p := range a.Probes {
		opts = append(opts, server.WithProbe(c, p))
	}
	return opts
}

func (a *App) retriever() *knowledge.Retriever {
	var opts []knowledge.RetrieverOption
	if path := a.Config.Park.Inventory; path != "" {
		opts = append(opts, knowledge.WithInventory(knowledge.LoadInventory(path)))
	}
	return knowledge.NewRetriever(a.Index, opts...)
}

func (a *App) timeouts() []fallback.Option {
	return []fallback.Option{fallback.WithTimeout(a.Config.Timeouts.Provider.Std())}
}

// probe registers a probe for the local provider of c that checks urls.
func (a *App) probe(c fallback.Capability, name string, urls ...string) fallback.Option {
	p := fallback.NewProbe(name, fallback.HTTPCheck(a.httpClient, urls...)).WithTimeout(a.Config.Timeouts.Probe.Std())
	a.Probes[c] = p
	return fallback.WithProbe(p)
}

func (a *App) generator(ctx context.Context) (*genx.Fallback, error) {
	gc := a.Config.Generation
	params := &genx.ModelParams{MaxTokens: gc.MaxTokens, Temperature: gc.Temperature}

	var local, cloud genx.Generator
	opts := a.timeouts()
	if gc.Local.Enabled() {
		g, err := newGenerator(ctx, gc.Local, params, true)
		if err != nil {
			return nil, err
		}
		local = g
		opts = append(opts, a.probe(fallback.CapabilityGeneration, "ollama", trimSlash(gc.Local.BaseURL)+"/api/tags"))
	}
	if gc.Cloud.Enabled() {
		g, err := newGenerator(ctx, gc.Cloud, params, false)
		if err != nil {
			return nil, err
		}
		cloud = g
	}
	if local == nil && cloud == nil {
		return nil, errors.New("app: no generation provider configured")
	}
	return genx.NewFallback(local, cloud, "ollama", gc.Cloud.Kind, opts...), nil
}

func newGenerator(ctx context.Context, p config.Provider, params *genx.ModelParams, local bool) (genx.Generator, error) {
	switch p.Kind {
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: p.APIKey, Backend: genai.BackendGeminiAPI})
		if err != nil {
			return nil, fmt.Errorf("app: genai client: %w", err)
		}
		return &genx.GeminiGenerator{Client: client, Model: p.Model, Params: params}, nil
	default:
		return &genx.OpenAIGenerator{
			Client:        newOpenAIClient(p, local),
			Model:         p.Model,
			Params:        params,
			UseSystemRole: local,
		}, nil
	}
}

// newOpenAIClient creates a client for p. Local servers get their
// OpenAI-compatible /v1 root.
func newOpenAIClient(p config.Provider, local bool) *openai.Client {
	key := p.APIKey
	if key == "" {
		key = "local"
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if p.BaseURL != "" {
		base := p.BaseURL
		if local {
			base = v1(base)
		}
		opts = append(opts, option.WithBaseURL(trimSlash(base)+"/"))
	}
	client := openai.NewClient(opts...)
	return &client
}

func (a *App) gate() *safety.Gate {
	sc := a.Config.Safety
	opts := []safety.Option{safety.WithMaxInputLength(sc.MaxInputLength)}

	var local, cloud safety.Moderator
	var fopts []fallback.Option
	if m := sc.Moderation.Local; m.Enabled() {
		guard := &genx.OpenAIGenerator{Client: newOpenAIClient(m, true), Model: m.Model, UseSystemRole: true}
		local = &safety.LlamaGuard{Generator: guard}
		fopts = append(fopts, a.probe(fallback.CapabilityModeration, "llama-guard", trimSlash(m.BaseURL)+"/api/tags"))
	}
	if m := sc.Moderation.Cloud; m.Enabled() {
		cloud = &safety.OpenAIModerator{Client: newOpenAIClient(m, false), Model: m.Model}
	}
	if local != nil || cloud != nil {
		fopts = append(fopts, a.timeouts()...)
		opts = append(opts, safety.WithModerator(safety.NewFallbackModerator(local, cloud, "llama-guard", "openai", fopts...)))
	} else {
		slog.Warn("app: no moderation provider, output moderation is off")
	}
	return safety.NewGate(opts...)
}

func (a *App) transcriber() stt.Transcriber {
	sc := a.Config.Speech.STT
	var local, cloud stt.Transcriber
	opts := a.timeouts()
	if sc.Local.Enabled() {
		sopts := []stt.Option{stt.WithBaseURL(v1(sc.Local.BaseURL)), stt.WithLanguage(sc.Language), stt.WithHTTPClient(a.httpClient)}
		if sc.Local.Model != "" {
			sopts = append(sopts, stt.WithModel(sc.Local.Model))
		}
		local = stt.NewOpenAI(sc.Local.APIKey, sopts...)
		opts = append(opts, a.probe(fallback.CapabilitySTT, "whisper", trimSlash(sc.Local.BaseURL)+"/health"))
	}
	if sc.Cloud.Enabled() {
		sopts := []stt.Option{stt.WithLanguage(sc.Language), stt.WithHTTPClient(a.httpClient)}
		if sc.Cloud.Model != "" {
			sopts = append(sopts, stt.WithModel(sc.Cloud.Model))
		}
		if sc.Cloud.BaseURL != "" {
			sopts = append(sopts, stt.WithBaseURL(sc.Cloud.BaseURL))
		}
		cloud = stt.NewOpenAI(sc.Cloud.APIKey, sopts...)
	}
	if local == nil && cloud == nil {
		return nil
	}
	return stt.NewFallback(local, cloud, "whisper", "openai", opts...)
}

func (a *App) synthesizer() tts.Synthesizer {
	tc := a.Config.Speech.TTS
	var local, cloud tts.Synthesizer
	opts := a.timeouts()
	if tc.Local.Enabled() {
		topts := []tts.Option{tts.WithHTTPClient(a.httpClient)}
		if tc.Local.Model != "" {
			topts = append(topts, tts.WithModel(tc.Local.Model))
		}
		local = tts.NewKokoro(v1(tc.Local.BaseURL), topts...)
		base := trimSlash(tc.Local.BaseURL)
		opts = append(opts, a.probe(fallback.CapabilityTTS, "kokoro", base+"/health", v1(base)+"/models"))
	}
	if tc.Cloud.Enabled() {
		topts := []tts.Option{tts.WithHTTPClient(a.httpClient)}
		if tc.Cloud.Model != "" {
			topts = append(topts, tts.WithModel(tc.Cloud.Model))
		}
		if tc.Cloud.BaseURL != "" {
			topts = append(topts, tts.WithBaseURL(tc.Cloud.BaseURL))
		}
		cloud = tts.NewOpenAI(tc.Cloud.APIKey, topts...)
	}
	if local == nil && cloud == nil {
		return nil
	}
	return tts.NewFallback(local, cloud, "kokoro", "openai", opts...)
}

func (a *App) sinks() (analytics.Sink, error) {
	var sinks analytics.Multi
	if a.Config.Analytics.Log {
		sinks = append(sinks, analytics.Log{})
	}
	if path := a.Config.Analytics.DuckDB; path != "" {
		db, err := analytics.OpenDuckDB(path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.Reports = db
		sinks = append(sinks, db)
	}
	return sinks, nil
}

func trimSlash(s string) string { return strings.TrimRight(s, "/") }

// v1 returns the OpenAI-compatible API root of a local server.
func v1(base string) string {
	base = trimSlash(base)
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}
