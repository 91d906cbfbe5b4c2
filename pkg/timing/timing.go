// Package timing records per-request latency for observability.
//
// A Timer never influences the request it measures. All methods are no-ops
// on a nil *Timer, so instrumentation can be removed or left unset.
package timing

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Component names aggregated into ComponentTimings.
const (
	Retrieval  = "retrieval"
	Generation = "generation"
	Synthesis  = "synthesis"
)

// ComponentTimings is the latency breakdown of one request. A field is
// nil until the corresponding stage has completed.
type ComponentTimings struct {
	RetrievalMS  *int64 `json:"retrieval_ms,omitempty"`
	GenerationMS *int64 `json:"generation_ms,omitempty"`
	SynthesisMS  *int64 `json:"synthesis_ms,omitempty"`
	TotalMS      *int64 `json:"total_ms,omitempty"`
}

// Option configures a Timer.
type Option func(*Timer)

// WithRequestID sets the request id instead of generating one.
func WithRequestID(id string) Option {
	return func(t *Timer) { t.id = id }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Timer) { t.log = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Timer) { t.now = now }
}

// Timer measures one request. It is safe for concurrent use.
type Timer struct {
	label string
	id    string
	log   *slog.Logger
	now   func() time.Time
	start time.Time

	mu         sync.Mutex
	components map[string]time.Duration
	end        time.Duration
	ended      bool
}

// Start creates a Timer and logs the start of label.
func Start(label string, opts ...Option) *Timer {
	t := &Timer{
		label:      label,
		log:        slog.Default(),
		now:        time.Now,
		components: make(map[string]time.Duration),
	}
	for _, o := range opts {
		o(t)
	}
	if t.id == "" {
		t.id = uuid.NewString()[:8]
	}
	t.start = t.now()
	t.print("▶ START " + label)
	return t
}

// ID returns the request id.
func (t *Timer) ID() string {
	if t == nil {
		return ""
	}
	return t.id
}

// Mark logs a point in the request flow.
func (t *Timer) Mark(note string) {
	if t == nil {
		return
	}
	t.print("• " + note)
}

// Component starts timing the named stage and returns the function that
// stops it. Time spent in repeated or concurrent runs of the same stage
// accumulates.
//
//	defer t.Component(timing.Retrieval)()
func (t *Timer) Component(name string) (stop func()) {
	if t == nil {
		return func() {}
	}
	begin := t.now()
	var once sync.Once
	return func() {
		once.Do(func() { t.Add(name, t.now().Sub(begin)) })
	}
}

// Add accounts d to the named stage.
func (t *Timer) Add(name string, d time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.components[name] += d
	t.mu.Unlock()
}

// Elapsed returns the time since Start.
func (t *Timer) Elapsed() time.Duration {
	if t == nil {
		return 0
	}
	return t.now().Sub(t.start)
}

// End logs the end of the request with status and returns the total
// elapsed milliseconds. Later calls return the first result without
// logging.
func (t *Timer) End(status string) int64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	if t.ended {
		d := t.end
		t.mu.Unlock()
		return d.Milliseconds()
	}
	t.ended = true
	t.end = t.now().Sub(t.start)
	d := t.end
	t.mu.Unlock()

	t.print("◀ END " + t.label + " (" + status + ")")
	return d.Milliseconds()
}

// Timings returns the breakdown recorded so far. TotalMS is the value
// returned by End, or the current elapsed time if End was not called.
func (t *Timer) Timings() ComponentTimings {
	if t == nil {
		return ComponentTimings{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ms := func(name string) *int64 {
		d, ok := t.components[name]
		if !ok {
			return nil
		}
		v := d.Milliseconds()
		return &v
	}
	total := t.end
	if !t.ended {
		total = t.now().Sub(t.start)
	}
	tot := total.Milliseconds()
	return ComponentTimings{
		RetrievalMS:  ms(Retrieval),
		GenerationMS: ms(Generation),
		SynthesisMS:  ms(Synthesis),
		TotalMS:      &tot,
	}
}

func (t *Timer) print(note string) {
	elapsed := float64(t.now().Sub(t.start).Microseconds()) / 1000
	t.log.Info("timing: "+note, "request_id", t.id, "elapsed_ms", elapsed)
}
