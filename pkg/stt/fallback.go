package stt

import (
	"context"

	"github.com/haivivi/zoocari/pkg/fallback"
)

// Fallback transcribes with a local engine when it is available and with a
// cloud engine otherwise.
type Fallback struct {
	d *fallback.Dispatcher[[]byte, string]
}

var _ Transcriber = (*Fallback)(nil)

// NewFallback creates a Fallback. Either transcriber may be nil.
func NewFallback(local, cloud Transcriber, localName, cloudName string, opts ...fallback.Option) *Fallback {
	var lp, cp fallback.Provider[[]byte, string]
	if local != nil {
		lp = fallback.Provider[[]byte, string]{Name: localName, Call: local.Transcribe}
	}
	if cloud != nil {
		cp = fallback.Provider[[]byte, string]{Name: cloudName, Call: cloud.Transcribe}
	}
	return &Fallback{d: fallback.New(fallback.CapabilitySTT, lp, cp, opts...)}
}

// Transcribe implements [Transcriber]. Empty audio is rejected before any
// provider is tried.
func (f *Fallback) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	return f.d.Execute(ctx, audio)
}

// Probe returns the local engine's availability probe, or nil.
func (f *Fallback) Probe() *fallback.Probe { return f.d.Probe() }
