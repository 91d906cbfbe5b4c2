package tts

import (
	"context"

	"github.com/haivivi/zoocari/pkg/fallback"
)

// Fallback synthesizes with a local engine when it is available and with a
// cloud engine otherwise.
type Fallback struct {
	d *fallback.Dispatcher[Request, []byte]
}

var _ Synthesizer = (*Fallback)(nil)

// NewFallback creates a Fallback. Either synthesizer may be nil.
func NewFallback(local, cloud Synthesizer, localName, cloudName string, opts ...fallback.Option) *Fallback {
	var lp, cp fallback.Provider[Request, []byte]
	if local != nil {
		lp = fallback.Provider[Request, []byte]{Name: localName, Call: local.Synthesize}
	}
	if cloud != nil {
		cp = fallback.Provider[Request, []byte]{Name: cloudName, Call: cloud.Synthesize}
	}
	return &Fallback{d: fallback.New(fallback.CapabilityTTS, lp, cp, opts...)}
}

// Synthesize implements [Synthesizer]. Text with nothing to speak is
// rejected before any provider is tried, so it never marks the local
// engine unavailable.
func (f *Fallback) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if CleanText(req.Text) == "" {
		return nil, ErrEmptyText
	}
	return f.d.Execute(ctx, req)
}

// Probe returns the local engine's availability probe, or nil.
func (f *Fallback) Probe() *fallback.Probe { return f.d.Probe() }
