package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/zoocari/pkg/kv"
	"github.com/haivivi/zoocari/pkg/session"
)

func newStore(t *testing.T) *session.Store {
	t.Helper()
	b, err := kv.NewBadger(kv.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return session.New(b, session.WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
}

func TestOpenCreatesOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	sess, created, err := s.Open(ctx, "kid-1")
	if err != nil || !created || sess.ID != "kid-1" {
		t.Fatalf("Open = %+v, %v, %v", sess, created, err)
	}
	_, created, err = s.Open(ctx, "kid-1")
	if err != nil || created {
		t.Fatalf("second Open created = %v, err = %v", created, err)
	}
	if _, err := s.Get(ctx, "kid-2"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Get unknown err = %v", err)
	}
}

func TestHistoryKeepsLastTurnsInOrder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := range 12 {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAssistant
		}
		if _, err := s.Append(ctx, "kid-1", role, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	hist, err := s.History(ctx, "kid-1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != session.DefaultHistory {
		t.Fatalf("len = %d, want %d", len(hist), session.DefaultHistory)
	}
	for i, turn := range hist {
		if want := fmt.Sprintf("m%d", i+2); turn.Content != want {
			t.Fatalf("hist[%d] = %q, want %q", i, turn.Content, want)
		}
	}
	if hist[0].Role != session.RoleUser || hist[1].Role != session.RoleAssistant {
		t.Fatalf("roles = %s, %s", hist[0].Role, hist[1].Role)
	}

	sess, err := s.Get(ctx, "kid-1")
	if err != nil || sess.MessageCount != 12 {
		t.Fatalf("session = %+v, %v", sess, err)
	}

	if hist, err := s.History(ctx, "nobody", 5); err != nil || len(hist) != 0 {
		t.Fatalf("unknown history = %v, %v", hist, err)
	}
}

func TestConcurrentAppendsStayDense(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 5 {
				if _, err := s.Append(ctx, "kid-1", session.RoleUser, "hi"); err != nil {
					t.Errorf("Append: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	hist, err := s.History(ctx, "kid-1", 100)
	if err != nil || len(hist) != 40 {
		t.Fatalf("history len = %d, err = %v", len(hist), err)
	}
}

func TestRatings(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	turn, err := s.Append(ctx, "kid-1", session.RoleAssistant, "Lions eat meat.")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Rate(ctx, "kid-1", turn.ID, "meh"); !errors.Is(err, session.ErrInvalidRating) {
		t.Fatalf("Rate invalid err = %v", err)
	}
	if _, err := s.Rate(ctx, "kid-1", "no-such-message", session.RatingUp); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Rate unknown err = %v", err)
	}
	if _, err := s.Rate(ctx, "kid-1", turn.ID, session.RatingDown); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	// A second rating replaces the first.
	if _, err := s.Rate(ctx, "kid-1", turn.ID, session.RatingUp); err != nil {
		t.Fatalf("Rate again: %v", err)
	}
	r, err := s.RatingOf(ctx, "kid-1", turn.ID)
	if err != nil || r.Rating != session.RatingUp {
		t.Fatalf("RatingOf = %+v, %v", r, err)
	}
	st, err := s.Ratings(ctx)
	if err != nil || st.Up != 1 || st.Down != 0 || st.PositiveRate() != 1 {
		t.Fatalf("Ratings = %+v, %v", st, err)
	}
}

func TestInvalidIDs(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, id := range []string{"", "a:b"} {
		if _, err := s.Append(ctx, id, session.RoleUser, "x"); !errors.Is(err, session.ErrInvalidID) {
			t.Fatalf("Append(%q) err = %v", id, err)
		}
	}
}
