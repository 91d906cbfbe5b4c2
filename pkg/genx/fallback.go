package genx

import (
	"context"
	"slices"

	"github.com/haivivi/zoocari/pkg/fallback"
)

// Fallback generates with a local model when it is available and with a
// cloud model otherwise.
//
// A stream is committed to a tier once it yields its first fragment. Errors
// before that fall back to the cloud; errors after it end the stream. The
// dispatcher timeout therefore bounds the time to the first fragment only.
type Fallback struct {
	d *fallback.Dispatcher[*Request, Stream]
}

var _ Generator = (*Fallback)(nil)

// NewFallback creates a Fallback. Either generator may be nil.
func NewFallback(local, cloud Generator, localName, cloudName string, opts ...fallback.Option) *Fallback {
	var lp, cp fallback.Provider[*Request, Stream]
	if local != nil {
		lp = fallback.Provider[*Request, Stream]{Name: localName, Call: prefetching(local)}
	}
	if cloud != nil {
		cp = fallback.Provider[*Request, Stream]{Name: cloudName, Call: prefetching(cloud)}
	}
	opts = append(slices.Clip(opts), fallback.WithDetachedResult())
	return &Fallback{d: fallback.New(fallback.CapabilityGeneration, lp, cp, opts...)}
}

func prefetching(g Generator) func(context.Context, *Request) (Stream, error) {
	return func(ctx context.Context, req *Request) (Stream, error) {
		s, err := g.GenerateStream(ctx, req)
		if err != nil {
			return nil, err
		}
		return Prefetch(s)
	}
}

// GenerateStream implements [Generator].
func (f *Fallback) GenerateStream(ctx context.Context, req *Request) (Stream, error) {
	return f.d.Execute(ctx, req)
}

// Probe returns the local model's availability probe, or nil.
func (f *Fallback) Probe() *fallback.Probe { return f.d.Probe() }
