package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haivivi/zoocari/pkg/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.yaml")} {
		cfg, err := config.Load(path)
		if err != nil {
			t.Fatalf("Load(%q): %v", path, err)
		}
		if cfg.Safety.MaxInputLength != 500 || cfg.Retrieval.TopK != 5 {
			t.Fatalf("safety/retrieval = %+v / %+v", cfg.Safety, cfg.Retrieval)
		}
		gen := cfg.Generation
		if gen.Cloud.Model != "gpt-4o-mini" || gen.Temperature != 0.7 || gen.MaxTokens != 500 || gen.Cloud.APIKey != "sk-test" {
			t.Fatalf("generation = %+v", gen)
		}
		if gen.Local.BaseURL != "http://localhost:11434" || !gen.Local.Enabled() {
			t.Fatalf("local generation = %+v", gen.Local)
		}
		if cfg.Speech.TTS.Voice != "af_heart" || cfg.Speech.TTS.Speed != 1.0 || cfg.Speech.TTS.Lookahead != 1 {
			t.Fatalf("tts = %+v", cfg.Speech.TTS)
		}
		if cfg.Timeouts.Provider.Std() != 30*time.Second || cfg.Timeouts.Probe.Std() != 5*time.Second {
			t.Fatalf("timeouts = %v, %v", cfg.Timeouts.Provider, cfg.Timeouts.Probe)
		}
		if cfg.Park.Name != "Leesburg Animal Park" || cfg.Storage.Backend != "local" {
			t.Fatalf("park/storage = %+v / %+v", cfg.Park, cfg.Storage)
		}
	}
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("ZOO_GEMINI_KEY", "gm-secret")
	t.Setenv("ZOO_BUCKET", "zoo-index")
	cfg, err := config.Parse([]byte(`
generation:
  local:
    disabled: true
  cloud:
    kind: gemini
    api_key: ${ZOO_GEMINI_KEY}
  temperature: 0.3
speech:
  tts:
    voice: bella
    speed: 1.5
    lookahead: 2
storage:
  backend: s3
  s3:
    bucket: $ZOO_BUCKET
    prefix: kb
timeouts:
  provider: 10s
  probe: 2
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	gen := cfg.Generation
	if gen.Cloud.APIKey != "gm-secret" || gen.Cloud.Model != config.DefaultGeminiModel || gen.Temperature != 0.3 {
		t.Fatalf("generation = %+v", gen)
	}
	if gen.Local.Enabled() {
		t.Fatal("disabled local generation is enabled")
	}
	if cfg.Storage.S3.Bucket != "zoo-index" || cfg.Storage.S3.Prefix != "kb" {
		t.Fatalf("s3 = %+v", cfg.Storage.S3)
	}
	if cfg.Speech.TTS.Voice != "bella" || cfg.Speech.TTS.Speed != 1.5 || cfg.Speech.TTS.Lookahead != 2 {
		t.Fatalf("tts = %+v", cfg.Speech.TTS)
	}
	if cfg.Timeouts.Provider.Std() != 10*time.Second || cfg.Timeouts.Probe.Std() != 2*time.Second {
		t.Fatalf("timeouts = %v, %v", cfg.Timeouts.Provider, cfg.Timeouts.Probe)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"backend", "storage:\n  backend: ftp\n", "unknown storage backend"},
		{"bucket", "storage:\n  backend: s3\n", "bucket is required"},
		{"kind", "generation:\n  cloud:\n    kind: claude\n", "unknown kind"},
		{"speed", "speech:\n  tts:\n    speed: 3\n", "out of range"},
		{"duration", "timeouts:\n  provider: soon\n", "invalid duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestMarshalMasksSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-1234567890abcdef")
	path := filepath.Join(t.TempDir(), "zoocari.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":9000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	out, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(out), "sk-1234567890abcdef") {
		t.Fatalf("secret leaked:\n%s", out)
	}
	if !strings.Contains(string(out), "sk-1****cdef") || !strings.Contains(string(out), "30s") {
		t.Fatalf("marshal output:\n%s", out)
	}
	if cfg.Generation.Cloud.APIKey != "sk-1234567890abcdef" {
		t.Fatal("Marshal modified the config")
	}
}
