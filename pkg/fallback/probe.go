// Package fallback runs one inference capability through a local provider
// with a cloud provider behind it.
//
// A Probe caches whether the local provider is usable. It runs its
// initialization check at most once, and a failure (of the check or of
// any later call) is sticky until Reset. A Dispatcher consults the probe,
// makes at most one local attempt and one cloud attempt, and bounds each
// attempt with a timeout.
package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc initializes or health-checks a local provider.
type CheckFunc func(ctx context.Context) error

type probeState int32

const (
	probeUnknown probeState = iota
	probeAvailable
	probeUnavailable
)

func (s probeState) String() string {
	switch s {
	case probeAvailable:
		return "available"
	case probeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Probe is a process-wide availability flag for one local provider.
// It is safe for concurrent use.
type Probe struct {
	name    string
	check   CheckFunc
	timeout time.Duration

	mu       sync.Mutex // serializes initialization
	state    atomic.Int32
	attempts atomic.Int64
	lastErr  atomic.Pointer[error]
}

// NewProbe creates a probe for the named provider. A nil check means the
// provider is assumed available until a call fails.
func NewProbe(name string, check CheckFunc) *Probe {
	return &Probe{name: name, check: check, timeout: 5 * time.Second}
}

// WithTimeout sets the time allowed for the initialization check.
func (p *Probe) WithTimeout(d time.Duration) *Probe {
	p.timeout = d
	return p
}

// Name returns the provider name.
func (p *Probe) Name() string { return p.name }

// Available reports whether the local provider may be used, running the
// initialization check on first use.
func (p *Probe) Available(ctx context.Context) bool {
	switch probeState(p.state.Load()) {
	case probeAvailable:
		return true
	case probeUnavailable:
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if s := probeState(p.state.Load()); s != probeUnknown {
		return s == probeAvailable
	}
	p.attempts.Add(1)
	if p.check == nil {
		p.state.Store(int32(probeAvailable))
		return true
	}
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.check(cctx); err != nil {
		p.markLocked(err)
		slog.Warn("fallback: local provider unavailable", "provider", p.name, "err", err)
		return false
	}
	p.state.Store(int32(probeAvailable))
	slog.Info("fallback: local provider available", "provider", p.name)
	return true
}

// MarkUnavailable records a failure of the local provider. The probe stays
// unavailable until Reset.
func (p *Probe) MarkUnavailable(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markLocked(err)
}

func (p *Probe) markLocked(err error) {
	p.state.Store(int32(probeUnavailable))
	if err != nil {
		p.lastErr.Store(&err)
	}
}

// Reset forgets the cached result; the next Available runs the check again.
func (p *Probe) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Store(int32(probeUnknown))
	p.lastErr.Store(nil)
}

// Attempts returns how many times initialization was attempted.
func (p *Probe) Attempts() int64 { return p.attempts.Load() }

// Status describes the cached probe state.
type Status struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
}

// Status returns a snapshot of the probe without triggering a check.
func (p *Probe) Status() Status {
	st := Status{Provider: p.name, State: probeState(p.state.Load()).String()}
	if e := p.lastErr.Load(); e != nil {
		st.Error = (*e).Error()
	}
	return st
}

// HTTPCheck returns a CheckFunc that succeeds when any of the URLs answers
// GET with a 2xx status. It is used for local servers such as Ollama
// (/api/tags) and Kokoro (/health).
func HTTPCheck(client *http.Client, urls ...string) CheckFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		var lastErr error
		for _, u := range urls {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				lastErr = err
				continue
			}
			resp.Body.Close()
			if resp.StatusCode/100 == 2 {
				return nil
			}
			lastErr = fmt.Errorf("fallback: health check %s: status %d", u, resp.StatusCode)
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("fallback: no health check url")
		}
		return lastErr
	}
}
