package tts_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/haivivi/zoocari/pkg/tts"
)

func TestVoices(t *testing.T) {
	tests := []struct {
		in, kokoro, openai string
	}{
		{"", "af_heart", "nova"},
		{"bella", "af_bella", "nova"},
		{"Heart", "af_heart", "shimmer"},
		{"adam", "am_adam", "onyx"},
		{"eric", "am_eric", "echo"},
		{"af_sky", "af_sky", "nova"},
		{"am_adam", "am_adam", "onyx"},
		{"alloy", "af_heart", "alloy"},
		{"robot", "af_heart", "nova"},
	}
	for _, tt := range tests {
		if got := tts.KokoroVoice(tt.in); got != tt.kokoro {
			t.Fatalf("KokoroVoice(%q) = %q, want %q", tt.in, got, tt.kokoro)
		}
		if got := tts.OpenAIVoice(tt.in); got != tt.openai {
			t.Fatalf("OpenAIVoice(%q) = %q, want %q", tt.in, got, tt.openai)
		}
	}
}

func TestClampSpeed(t *testing.T) {
	for in, want := range map[float64]float64{0: 1, 0.1: 0.5, 0.5: 0.5, 1.25: 1.25, 2: 2, 9: 2} {
		if got := tts.ClampSpeed(in); got != want {
			t.Fatalf("ClampSpeed(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"**Lions** are *big*.", "Lions are big."},
		{"## Fun facts\nSee [our map](https://example.com).", "Fun facts\nSee our map."},
		{"- Lions roar\n- Tigers swim", "Lions roar\nTigers swim"},
		{"Lions sleep!\n\n**Want to explore more?**\n1. Why?", "Lions sleep!"},
		{"Owls hoot. Want to explore more? 1. Why?", "Owls hoot."},
		{"**Want to explore more?**", ""},
	}
	for _, tt := range tests {
		if got := tts.CleanText(tt.in); got != tt.want {
			t.Fatalf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func speechServer(t *testing.T, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFF\x00\x00\x00\x00WAVEdata"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestKokoroSynthesize(t *testing.T) {
	var body map[string]any
	srv := speechServer(t, &body)

	s := tts.NewKokoro(srv.URL + "/v1/")
	audio, err := s.Synthesize(context.Background(), tts.Request{Text: "**Hello** zoo friends!", Voice: "bella", Speed: 3})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.HasPrefix(string(audio), "RIFF") {
		t.Fatalf("audio = %q", audio)
	}
	if body["model"] != "kokoro" || body["voice"] != "af_bella" || body["input"] != "Hello zoo friends!" {
		t.Fatalf("request = %v", body)
	}
	if body["speed"] != 2.0 || body["response_format"] != "wav" {
		t.Fatalf("request speed/format = %v/%v", body["speed"], body["response_format"])
	}
}

func TestOpenAITruncates(t *testing.T) {
	var body map[string]any
	srv := speechServer(t, &body)

	s := tts.NewOpenAI("sk-test", tts.WithBaseURL(srv.URL+"/v1/"))
	long := strings.Repeat("a", 5000)
	if _, err := s.Synthesize(context.Background(), tts.Request{Text: long, Voice: "adam"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if in, _ := body["input"].(string); len(in) != tts.OpenAIMaxChars {
		t.Fatalf("input length = %d, want %d", len(in), tts.OpenAIMaxChars)
	}
	if body["model"] != "tts-1" || body["voice"] != "onyx" {
		t.Fatalf("request = model %v voice %v", body["model"], body["voice"])
	}

	if _, err := s.Synthesize(context.Background(), tts.Request{Text: "**  **"}); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}

type fakeSynth struct {
	calls atomic.Int64
	err   error
}

func (f *fakeSynth) Synthesize(_ context.Context, req tts.Request) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("wav:" + req.Text), nil
}

func TestFallback(t *testing.T) {
	local := &fakeSynth{err: errors.New("kokoro down")}
	cloud := &fakeSynth{}
	f := tts.NewFallback(local, cloud, "kokoro", "openai")

	for range 3 {
		audio, err := f.Synthesize(context.Background(), tts.Request{Text: "Hi"})
		if err != nil || string(audio) != "wav:Hi" {
			t.Fatalf("Synthesize = %q, %v", audio, err)
		}
	}
	if local.calls.Load() != 1 || cloud.calls.Load() != 3 {
		t.Fatalf("calls local=%d cloud=%d; want 1, 3", local.calls.Load(), cloud.calls.Load())
	}

	if _, err := f.Synthesize(context.Background(), tts.Request{Text: "**Want to explore more?**"}); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if cloud.calls.Load() != 3 {
		t.Fatal("empty text reached a provider")
	}
}
