package config

import (
	"os"
	"time"

	"github.com/haivivi/zoocari/pkg/knowledge"
)

// Defaults of the reference deployment.
const (
	DefaultAddr           = ":8000"
	DefaultMaxInputLength = 500
	DefaultTopK           = 5
	DefaultHistory        = 10

	DefaultOllamaURL   = "http://localhost:11434"
	DefaultLocalModel  = "llama3.2"
	DefaultCloudModel  = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500

	DefaultWhisperURL = "http://localhost:8002"
	DefaultKokoroURL  = "http://localhost:8880"
	DefaultVoice      = "af_heart"
	DefaultSpeed      = 1.0
	DefaultEmbedModel = "text-embedding-3-small"

	DefaultDataDir  = "data"
	DefaultIndexDir = "index"

	DefaultProviderTimeout = 30 * time.Second
	DefaultProbeTimeout    = 5 * time.Second
)

func setString(p *string, v string) {
	if *p == "" {
		*p = v
	}
}

func setInt(p *int, v int) {
	if *p == 0 {
		*p = v
	}
}

func (c *Config) applyDefaults() {
	openAIKey := os.Getenv("OPENAI_API_KEY")

	setString(&c.Server.Addr, DefaultAddr)
	setString(&c.Park.Name, knowledge.DefaultParkName)

	setInt(&c.Safety.MaxInputLength, DefaultMaxInputLength)
	mod := &c.Safety.Moderation
	setString(&mod.Cloud.APIKey, openAIKey)
	setString(&mod.Cloud.Model, "omni-moderation-latest")
	setString(&mod.Local.Model, "llama-guard3")

	setInt(&c.Retrieval.TopK, DefaultTopK)
	setString(&c.Retrieval.Embedding.APIKey, openAIKey)
	setString(&c.Retrieval.Embedding.Model, DefaultEmbedModel)

	gen := &c.Generation
	setString(&gen.Local.Kind, "openai")
	setString(&gen.Local.BaseURL, DefaultOllamaURL)
	setString(&gen.Local.Model, DefaultLocalModel)
	setString(&gen.Cloud.Kind, "openai")
	switch gen.Cloud.Kind {
	case "openai":
		setString(&gen.Cloud.APIKey, openAIKey)
		setString(&gen.Cloud.Model, DefaultCloudModel)
	case "gemini":
		setString(&gen.Cloud.APIKey, os.Getenv("GEMINI_API_KEY"))
		setString(&gen.Cloud.Model, DefaultGeminiModel)
	}
	if gen.Temperature == 0 {
		gen.Temperature = DefaultTemperature
	}
	setInt(&gen.MaxTokens, DefaultMaxTokens)
	setInt(&gen.History, DefaultHistory)

	stt := &c.Speech.STT
	setString(&stt.Local.BaseURL, DefaultWhisperURL)
	setString(&stt.Cloud.APIKey, openAIKey)
	setString(&stt.Language, "en")

	tts := &c.Speech.TTS
	setString(&tts.Local.BaseURL, DefaultKokoroURL)
	setString(&tts.Cloud.APIKey, openAIKey)
	setString(&tts.Voice, DefaultVoice)
	if tts.Speed == 0 {
		tts.Speed = DefaultSpeed
	}
	setInt(&tts.Lookahead, 1)

	setString(&c.Storage.DataDir, DefaultDataDir)
	setString(&c.Storage.Backend, "local")
	setString(&c.Storage.IndexDir, DefaultIndexDir)

	if c.Timeouts.Provider == 0 {
		c.Timeouts.Provider = Duration(DefaultProviderTimeout)
	}
	if c.Timeouts.Probe == 0 {
		c.Timeouts.Probe = Duration(DefaultProbeTimeout)
	}
}
