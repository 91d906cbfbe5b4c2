// Package config loads the zoocari.yaml service configuration.
//
// Environment references ($VAR and ${VAR}) anywhere in the file are
// expanded before it is decoded, so secrets stay out of the file:
//
//	generation:
//	  cloud:
//	    api_key: $OPENAI_API_KEY
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/haivivi/zoocari/pkg/storage"
)

// Config is the whole service configuration.
type Config struct {
	Server     Server     `yaml:"server"`
	Park       Park       `yaml:"park"`
	Safety     Safety     `yaml:"safety"`
	Retrieval  Retrieval  `yaml:"retrieval"`
	Generation Generation `yaml:"generation"`
	Speech     Speech     `yaml:"speech"`
	Storage    Storage    `yaml:"storage"`
	Analytics  Analytics  `yaml:"analytics"`
	Timeouts   Timeouts   `yaml:"timeouts"`
}

type Server struct {
	Addr string `yaml:"addr"`

	// CORSOrigins are allowed to call the API from a browser.
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

type Park struct {
	Name string `yaml:"name"`

	// Inventory is a JSON or YAML file describing the animals at the park.
	Inventory string `yaml:"inventory,omitempty"`
}

// Provider is one inference endpoint. Kind selects the client: "openai"
// covers OpenAI and every OpenAI-compatible server, "gemini" the Gemini
// API. An empty BaseURL means the vendor's hosted API.
type Provider struct {
	Kind    string `yaml:"kind,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
	Model   string `yaml:"model,omitempty"`

	// Disabled turns off a provider that defaults would enable.
	Disabled bool `yaml:"disabled,omitempty"`
}

// Enabled reports whether the provider is configured at all.
func (p Provider) Enabled() bool {
	return !p.Disabled && (p.BaseURL != "" || p.APIKey != "")
}

type Safety struct {
	MaxInputLength int `yaml:"max_input_length"`

	// Moderation runs a local Llama Guard model first and the cloud
	// moderation endpoint as fallback. Neither is required.
	Moderation struct {
		Local Provider `yaml:"local"`
		Cloud Provider `yaml:"cloud"`
	} `yaml:"moderation"`
}

type Retrieval struct {
	TopK      int      `yaml:"top_k"`
	Embedding Provider `yaml:"embedding"`
	Dimension int      `yaml:"dimension,omitempty"`
}

type Generation struct {
	Local       Provider `yaml:"local"`
	Cloud       Provider `yaml:"cloud"`
	Temperature float32  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	History     int      `yaml:"history"`

	// Persona replaces the built-in instruction template.
	Persona string `yaml:"persona,omitempty"`
}

type Speech struct {
	STT STT `yaml:"stt"`
	TTS TTS `yaml:"tts"`
}

type STT struct {
	Local    Provider `yaml:"local"`
	Cloud    Provider `yaml:"cloud"`
	Language string   `yaml:"language"`
}

type TTS struct {
	Local     Provider `yaml:"local"`
	Cloud     Provider `yaml:"cloud"`
	Voice     string   `yaml:"voice"`
	Speed     float64  `yaml:"speed"`
	Lookahead int      `yaml:"lookahead"`
}

type Storage struct {
	// DataDir holds the badger database of passages and sessions.
	DataDir string `yaml:"data_dir"`

	// Backend is "local" or "s3". It holds the vector index snapshot.
	Backend  string           `yaml:"backend"`
	IndexDir string           `yaml:"index_dir"`
	S3       storage.S3Config `yaml:"s3,omitempty"`
}

type Analytics struct {
	// DuckDB is the analytics database file. Empty disables it.
	DuckDB string `yaml:"duckdb,omitempty"`

	// Log also writes every record to the service log.
	Log bool `yaml:"log"`
}

type Timeouts struct {
	Provider Duration `yaml:"provider"`
	Probe    Duration `yaml:"probe"`
}

// Load reads the configuration at path and applies defaults. An empty
// path, or a path that does not exist, yields the defaults alone.
func Load(path string) (*Config, error) {
	if path == "" {
		return Parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return cfg, nil
}

// Parse decodes data and applies defaults, like Load.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if text := strings.TrimSpace(os.ExpandEnv(string(data))); text != "" {
		if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal encodes the effective configuration with secrets masked.
func (c *Config) Marshal() ([]byte, error) {
	masked := *c
	for _, p := range []*Provider{
		&masked.Safety.Moderation.Local, &masked.Safety.Moderation.Cloud,
		&masked.Retrieval.Embedding,
		&masked.Generation.Local, &masked.Generation.Cloud,
		&masked.Speech.STT.Local, &masked.Speech.STT.Cloud,
		&masked.Speech.TTS.Local, &masked.Speech.TTS.Cloud,
	} {
		p.APIKey = mask(p.APIKey)
	}
	masked.Storage.S3.SecretAccessKey = mask(masked.Storage.S3.SecretAccessKey)
	return yaml.Marshal(&masked)
}

func mask(secret string) string {
	if len(secret) <= 8 {
		if secret == "" {
			return ""
		}
		return "****"
	}
	return secret[:4] + "****" + secret[len(secret)-4:]
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.New("config: storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	for name, p := range map[string]Provider{
		"generation.local": c.Generation.Local,
		"generation.cloud": c.Generation.Cloud,
	} {
		if p.Kind != "openai" && p.Kind != "gemini" {
			return fmt.Errorf("config: %s: unknown kind %q", name, p.Kind)
		}
	}
	if c.Speech.TTS.Speed < 0.5 || c.Speech.TTS.Speed > 2 {
		return fmt.Errorf("config: speech.tts.speed %v out of range [0.5, 2]", c.Speech.TTS.Speed)
	}
	return nil
}
