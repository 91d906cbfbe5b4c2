package timing_test

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/zoocari/pkg/timing"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTimer(t *testing.T) (*timing.Timer, *fakeClock, *bytes.Buffer) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	tm := timing.Start("chat", timing.WithRequestID("req1"), timing.WithLogger(log), timing.WithClock(clk.Now))
	return tm, clk, &buf
}

func TestTimerComponents(t *testing.T) {
	tm, clk, buf := newTimer(t)

	stop := tm.Component(timing.Retrieval)
	clk.Advance(120 * time.Millisecond)
	stop()
	stop() // idempotent

	tm.Mark("generating")
	stop = tm.Component(timing.Generation)
	clk.Advance(800 * time.Millisecond)
	stop()

	for range 3 {
		stop := tm.Component(timing.Synthesis)
		clk.Advance(100 * time.Millisecond)
		stop()
	}

	if got := tm.End("COMPLETE"); got != 1220 {
		t.Fatalf("End = %d, want 1220", got)
	}
	clk.Advance(time.Second)
	if got := tm.End("AGAIN"); got != 1220 {
		t.Fatalf("second End = %d, want 1220", got)
	}

	ct := tm.Timings()
	check := func(name string, got *int64, want int64) {
		t.Helper()
		if got == nil || *got != want {
			t.Fatalf("%s = %v, want %d", name, got, want)
		}
	}
	check("retrieval", ct.RetrievalMS, 120)
	check("generation", ct.GenerationMS, 800)
	check("synthesis", ct.SynthesisMS, 300)
	check("total", ct.TotalMS, 1220)

	out := buf.String()
	for _, want := range []string{"▶ START chat", "• generating", "◀ END chat (COMPLETE)", "request_id=req1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "AGAIN") {
		t.Fatalf("second End logged:\n%s", out)
	}
}

func TestTimerUnsetComponents(t *testing.T) {
	tm, clk, _ := newTimer(t)
	clk.Advance(5 * time.Millisecond)
	ct := tm.Timings()
	if ct.RetrievalMS != nil || ct.GenerationMS != nil || ct.SynthesisMS != nil {
		t.Fatalf("Timings = %+v, want unset components", ct)
	}
	if ct.TotalMS == nil || *ct.TotalMS != 5 {
		t.Fatalf("TotalMS = %v, want 5", ct.TotalMS)
	}
}

func TestNilTimer(t *testing.T) {
	var tm *timing.Timer
	tm.Mark("x")
	tm.Component("retrieval")()
	tm.Add("synthesis", time.Second)
	if tm.End("OK") != 0 || tm.ID() != "" || tm.Elapsed() != 0 {
		t.Fatal("nil timer should be inert")
	}
	if ct := tm.Timings(); ct.TotalMS != nil {
		t.Fatalf("Timings = %+v", ct)
	}
}

func TestGeneratedRequestID(t *testing.T) {
	tm := timing.Start("voice", timing.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	if len(tm.ID()) != 8 {
		t.Fatalf("ID = %q, want 8 characters", tm.ID())
	}
}
