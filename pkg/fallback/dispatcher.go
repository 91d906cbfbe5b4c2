package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Capability names the inference capability a Dispatcher serves.
type Capability string

const (
	CapabilitySTT        Capability = "stt"
	CapabilityGeneration Capability = "generation"
	CapabilityTTS        Capability = "tts"
	CapabilityModeration Capability = "moderation"
)

// Tier distinguishes the local provider from the cloud provider.
type Tier string

const (
	TierLocal Tier = "local"
	TierCloud Tier = "cloud"
)

// ErrTimeout is the cause attached to an attempt that exceeded its timeout.
var ErrTimeout = errors.New("fallback: provider timeout")

// errNotConfigured marks a tier without a provider.
var errNotConfigured = errors.New("fallback: provider not configured")

// Provider is one implementation of a capability.
type Provider[I, O any] struct {
	Name string
	Call func(ctx context.Context, in I) (O, error)
}

func (p Provider[I, O]) configured() bool { return p.Call != nil }

// ProviderError is the failure of a single attempt.
type ProviderError struct {
	Capability Capability
	Provider   string
	Tier       Tier
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("fallback: %s %s provider %q: %v", e.Capability, e.Tier, e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AllProvidersFailedError is returned when neither tier produced a result.
type AllProvidersFailedError struct {
	Capability Capability
	Local      error
	Cloud      error
}

func (e *AllProvidersFailedError) Error() string {
	var parts []string
	if e.Local != nil {
		parts = append(parts, "local: "+e.Local.Error())
	}
	if e.Cloud != nil {
		parts = append(parts, "cloud: "+e.Cloud.Error())
	}
	return fmt.Sprintf("fallback: all %s providers failed (%s)", e.Capability, strings.Join(parts, "; "))
}

func (e *AllProvidersFailedError) Unwrap() []error {
	var errs []error
	if e.Local != nil {
		errs = append(errs, e.Local)
	}
	if e.Cloud != nil {
		errs = append(errs, e.Cloud)
	}
	return errs
}

// Result is the outcome of one attempt. Err is nil on success.
type Result[O any] struct {
	Value    O
	Err      error
	Provider string
	Tier     Tier
	Elapsed  time.Duration
}

// OK reports whether the attempt succeeded.
func (r Result[O]) OK() bool { return r.Err == nil }

type settings struct {
	timeout time.Duration
	probe   *Probe
	detach  bool
}

// Option configures a Dispatcher.
type Option func(*settings)

// WithTimeout bounds each attempt. A timed-out attempt fails with
// ErrTimeout and falls through like any other failure. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithProbe sets the availability probe of the local provider. Without
// one, the dispatcher creates a probe with no initialization check.
func WithProbe(p *Probe) Option {
	return func(s *settings) { s.probe = p }
}

// WithDetachedResult keeps the attempt context alive after the provider
// returns. Use it when the result is a stream that keeps reading under
// that context; the timeout then bounds only the time to return.
func WithDetachedResult() Option {
	return func(s *settings) { s.detach = true }
}

// Dispatcher executes a capability with local-first, cloud-fallback policy.
// It is safe for concurrent use; the only shared state is the probe.
type Dispatcher[I, O any] struct {
	capability Capability
	local      Provider[I, O]
	cloud      Provider[I, O]
	settings
}

// New creates a Dispatcher. Either provider may be the zero Provider,
// in which case that tier is skipped.
func New[I, O any](c Capability, local, cloud Provider[I, O], opts ...Option) *Dispatcher[I, O] {
	d := &Dispatcher[I, O]{capability: c, local: local, cloud: cloud}
	for _, o := range opts {
		o(&d.settings)
	}
	if d.probe == nil && local.configured() {
		d.probe = NewProbe(local.Name, nil)
	}
	return d
}

// Capability returns the capability served.
func (d *Dispatcher[I, O]) Capability() Capability { return d.capability }

// Probe returns the local provider's probe, or nil when there is no
// local provider.
func (d *Dispatcher[I, O]) Probe() *Probe { return d.probe }

// Reset clears the cached availability of the local provider.
func (d *Dispatcher[I, O]) Reset() {
	if d.probe != nil {
		d.probe.Reset()
	}
}

// Execute runs in through the local provider when it is available, and
// through the cloud provider otherwise or on local failure. It returns
// *AllProvidersFailedError when both tiers fail.
func (d *Dispatcher[I, O]) Execute(ctx context.Context, in I) (O, error) {
	r := d.Run(ctx, in)
	return r.Value, r.Err
}

// Run is Execute returning the Result of the attempt that decided the
// outcome.
func (d *Dispatcher[I, O]) Run(ctx context.Context, in I) Result[O] {
	local := d.attemptLocal(ctx, in)
	if local.OK() {
		return local
	}
	if errors.Is(local.Err, context.Canceled) && ctx.Err() != nil {
		// The caller went away; do not spend a cloud call on it.
		return local
	}

	cloud := d.attempt(ctx, TierCloud, d.cloud, in)
	if cloud.OK() {
		return cloud
	}
	if !errors.Is(cloud.Err, errNotConfigured) {
		slog.Error("fallback: cloud provider failed", "capability", d.capability, "provider", d.cloud.Name, "err", cloud.Err)
	}
	cloud.Err = &AllProvidersFailedError{
		Capability: d.capability,
		Local:      local.Err,
		Cloud:      cloud.Err,
	}
	return cloud
}

func (d *Dispatcher[I, O]) attemptLocal(ctx context.Context, in I) Result[O] {
	if !d.local.configured() {
		return Result[O]{Tier: TierLocal, Err: errNotConfigured}
	}
	if !d.probe.Available(ctx) {
		return Result[O]{
			Tier:     TierLocal,
			Provider: d.local.Name,
			Err:      &ProviderError{Capability: d.capability, Provider: d.local.Name, Tier: TierLocal, Err: errors.New("marked unavailable")},
		}
	}
	r := d.attempt(ctx, TierLocal, d.local, in)
	if !r.OK() && ctx.Err() == nil {
		d.probe.MarkUnavailable(r.Err)
		slog.Warn("fallback: local provider failed, using cloud",
			"capability", d.capability, "provider", d.local.Name, "elapsed", r.Elapsed, "err", r.Err)
	}
	return r
}

func (d *Dispatcher[I, O]) attempt(ctx context.Context, tier Tier, p Provider[I, O], in I) (r Result[O]) {
	r.Tier = tier
	r.Provider = p.Name
	if !p.configured() {
		r.Err = errNotConfigured
		return r
	}

	actx, cancel := context.WithCancelCause(ctx)
	release := func() { cancel(nil) }
	var timer *time.Timer
	if d.timeout > 0 {
		timer = time.AfterFunc(d.timeout, func() { cancel(ErrTimeout) })
	}
	start := time.Now()
	v, err := p.Call(actx, in)
	r.Elapsed = time.Since(start)
	if timer != nil && !timer.Stop() {
		// The timeout fired. A detached result would run under a
		// cancelled context, so it counts as a failure too.
		if err == nil {
			err = ErrTimeout
		} else {
			err = fmt.Errorf("%w: %w", ErrTimeout, err)
		}
	}
	if err != nil || !d.detach {
		release()
	}
	if err != nil {
		r.Err = &ProviderError{Capability: d.capability, Provider: p.Name, Tier: tier, Err: err}
		return r
	}
	r.Value = v
	return r
}
