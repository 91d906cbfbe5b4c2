// Package session keeps conversation history and message ratings.
//
// Everything lives in a kv.Store under these keys:
//
//	session:{id}                    Session metadata
//	session:{id}:turn:{seq}         Turn, seq zero-padded so keys sort in order
//	session:{id}:msg:{message_id}   seq of the turn with that message id
//	rating:{session_id}:{message_id} Rating
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haivivi/zoocari/pkg/kv"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultHistory is the number of turns History returns by default.
const DefaultHistory = 10

var (
	// ErrNotFound is returned for unknown sessions and messages.
	ErrNotFound = errors.New("session: not found")

	// ErrInvalidRating is returned for ratings other than up or down.
	ErrInvalidRating = errors.New("session: invalid rating")

	// ErrInvalidID is returned for empty ids and ids containing ':'.
	ErrInvalidID = errors.New("session: invalid id")
)

// Role is who spoke a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session is the metadata of one conversation.
type Session struct {
	ID           string    `msgpack:"id" json:"session_id"`
	Client       string    `msgpack:"client" json:"client,omitempty"`
	CreatedAt    time.Time `msgpack:"created_at" json:"created_at"`
	LastActive   time.Time `msgpack:"last_active" json:"last_active"`
	MessageCount int       `msgpack:"message_count" json:"message_count"`
}

// Turn is one message in a conversation.
type Turn struct {
	ID      string    `msgpack:"id" json:"message_id"`
	Role    Role      `msgpack:"role" json:"role"`
	Content string    `msgpack:"content" json:"content"`
	Time    time.Time `msgpack:"time" json:"created_at"`
}

// Rating values.
const (
	RatingUp   = "up"
	RatingDown = "down"
)

// Rating is a thumbs up or down on one assistant message.
type Rating struct {
	SessionID string    `msgpack:"session_id" json:"session_id"`
	MessageID string    `msgpack:"message_id" json:"message_id"`
	Rating    string    `msgpack:"rating" json:"rating"`
	Time      time.Time `msgpack:"time" json:"created_at"`
}

// Store reads and writes sessions. It is safe for concurrent use within
// one process.
type Store struct {
	kv  kv.Store
	now func() time.Time

	mu sync.Mutex // serializes appends so sequence numbers stay dense
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store on kvs.
func New(kvs kv.Store, opts ...Option) *Store {
	s := &Store{kv: kvs, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func validID(id string) error {
	if id == "" || strings.ContainsRune(id, ':') {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func sessionKey(id string) kv.Key { return kv.Key{"session", id} }

func turnKey(id string, seq int) kv.Key {
	return kv.Key{"session", id, "turn", fmt.Sprintf("%010d", seq)}
}

func msgKey(id, messageID string) kv.Key { return kv.Key{"session", id, "msg", messageID} }

func ratingKey(id, messageID string) kv.Key { return kv.Key{"rating", id, messageID} }

// Create starts a new session with a random id.
func (s *Store) Create(ctx context.Context, client string) (Session, error) {
	now := s.now().UTC()
	sess := Session{ID: uuid.NewString(), Client: client, CreatedAt: now, LastActive: now}
	if err := kv.SetValue(ctx, s.kv, sessionKey(sess.ID), sess); err != nil {
		return Session{}, fmt.Errorf("session: create: %w", err)
	}
	return sess, nil
}

// Get returns the session, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	if err := validID(id); err != nil {
		return Session{}, err
	}
	sess, err := kv.GetValue[Session](ctx, s.kv, sessionKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return Session{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return sess, err
}

// Open returns the session with id, creating it if needed. created
// reports whether it was new.
func (s *Store) Open(ctx context.Context, id string) (sess Session, created bool, err error) {
	if err := validID(id); err != nil {
		return Session{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err = kv.GetValue[Session](ctx, s.kv, sessionKey(id))
	if err == nil {
		return sess, false, nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return Session{}, false, err
	}
	now := s.now().UTC()
	sess = Session{ID: id, CreatedAt: now, LastActive: now}
	if err := kv.SetValue(ctx, s.kv, sessionKey(id), sess); err != nil {
		return Session{}, false, fmt.Errorf("session: create %s: %w", id, err)
	}
	return sess, true, nil
}

// Append records a turn and returns it with its message id. The session
// is created if it does not exist.
func (s *Store) Append(ctx context.Context, id string, role Role, content string) (Turn, error) {
	if err := validID(id); err != nil {
		return Turn{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	sess, err := kv.GetValue[Session](ctx, s.kv, sessionKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		sess = Session{ID: id, CreatedAt: now}
	} else if err != nil {
		return Turn{}, err
	}

	seq := sess.MessageCount
	turn := Turn{ID: uuid.NewString(), Role: role, Content: content, Time: now}
	sess.MessageCount++
	sess.LastActive = now

	entries := make([]kv.Entry, 0, 3)
	for _, e := range []struct {
		key kv.Key
		val any
	}{
		{turnKey(id, seq), turn},
		{msgKey(id, turn.ID), seq},
		{sessionKey(id), sess},
	} {
		b, err := encode(e.val)
		if err != nil {
			return Turn{}, err
		}
		entries = append(entries, kv.Entry{Key: e.key, Value: b})
	}
	if err := s.kv.BatchSet(ctx, entries); err != nil {
		return Turn{}, fmt.Errorf("session: append to %s: %w", id, err)
	}
	return turn, nil
}

func encode(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("session: encode: %w", err)
	}
	return b, nil
}

// History returns the last n turns of the session in chronological
// order. n <= 0 means DefaultHistory. Unknown sessions have no history.
func (s *Store) History(ctx context.Context, id string, n int) ([]Turn, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = DefaultHistory
	}
	var all []Turn
	for t, err := range kv.Values[Turn](ctx, s.kv, kv.Key{"session", id, "turn"}) {
		if err != nil {
			return nil, fmt.Errorf("session: history of %s: %w", id, err)
		}
		all = append(all, t)
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// Turn returns one turn by message id.
func (s *Store) Turn(ctx context.Context, id, messageID string) (Turn, error) {
	if err := validID(id); err != nil {
		return Turn{}, err
	}
	if err := validID(messageID); err != nil {
		return Turn{}, err
	}
	seq, err := kv.GetValue[int](ctx, s.kv, msgKey(id, messageID))
	if errors.Is(err, kv.ErrNotFound) {
		return Turn{}, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	if err != nil {
		return Turn{}, err
	}
	return kv.GetValue[Turn](ctx, s.kv, turnKey(id, seq))
}

// Rate records or replaces the rating of an assistant message.
func (s *Store) Rate(ctx context.Context, id, messageID, rating string) (Rating, error) {
	if rating != RatingUp && rating != RatingDown {
		return Rating{}, fmt.Errorf("%w: %q", ErrInvalidRating, rating)
	}
	if _, err := s.Turn(ctx, id, messageID); err != nil {
		return Rating{}, err
	}
	r := Rating{SessionID: id, MessageID: messageID, Rating: rating, Time: s.now().UTC()}
	if err := kv.SetValue(ctx, s.kv, ratingKey(id, messageID), r); err != nil {
		return Rating{}, fmt.Errorf("session: rate %s: %w", messageID, err)
	}
	return r, nil
}

// RatingOf returns the rating of a message, or ErrNotFound.
func (s *Store) RatingOf(ctx context.Context, id, messageID string) (Rating, error) {
	if err := validID(id); err != nil {
		return Rating{}, err
	}
	if err := validID(messageID); err != nil {
		return Rating{}, err
	}
	r, err := kv.GetValue[Rating](ctx, s.kv, ratingKey(id, messageID))
	if errors.Is(err, kv.ErrNotFound) {
		return Rating{}, fmt.Errorf("%w: rating for %s", ErrNotFound, messageID)
	}
	return r, err
}

// RatingStats counts ratings across all sessions.
type RatingStats struct {
	Up   int `json:"thumbs_up"`
	Down int `json:"thumbs_down"`
}

// PositiveRate is the share of up ratings, or 0 without ratings.
func (r RatingStats) PositiveRate() float64 {
	if r.Up+r.Down == 0 {
		return 0
	}
	return float64(r.Up) / float64(r.Up+r.Down)
}

// Ratings counts every stored rating.
func (s *Store) Ratings(ctx context.Context) (RatingStats, error) {
	var st RatingStats
	for r, err := range kv.Values[Rating](ctx, s.kv, kv.Key{"rating"}) {
		if err != nil {
			return st, err
		}
		switch r.Rating {
		case RatingUp:
			st.Up++
		case RatingDown:
			st.Down++
		}
	}
	return st, nil
}
