package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/haivivi/zoocari/pkg/fallback"
	"github.com/haivivi/zoocari/pkg/session"
)

type health struct {
	OK        bool                                    `json:"ok"`
	Providers map[fallback.Capability]fallback.Status `json:"providers"`
}

// handleHealth reports cached probe states. It never triggers a probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := health{OK: true, Providers: make(map[fallback.Capability]fallback.Status, len(s.probes))}
	for c, p := range s.probes {
		h.Providers[c] = p.Status()
	}
	writeJSON(w, http.StatusOK, h)
}

type createSession struct {
	Client string `json:"client"`
}

type sessionCreated struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusNotImplemented, CodeNotConfigured, "sessions are not configured")
		return
	}
	req := createSession{Client: "web"}
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	sess, err := s.sessions.Create(r.Context(), req.Client)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionCreated{SessionID: sess.ID, CreatedAt: sess.CreatedAt})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusNotImplemented, CodeNotConfigured, "sessions are not configured")
		return
	}
	id := r.PathValue("id")
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type ratingRequest struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Rating    string `json:"rating"`
}

type ratingSaved struct {
	session.Rating
	Success bool `json:"success"`
}

func (s *Server) handleRating(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusNotImplemented, CodeNotConfigured, "sessions are not configured")
		return
	}
	var req ratingRequest
	if !decode(w, r, &req) {
		return
	}
	rating, err := s.sessions.Rate(r.Context(), req.SessionID, req.MessageID, req.Rating)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ratingSaved{Rating: rating, Success: true})
}

// queryInt reads a positive integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (s *Server) handleLatency(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusNotImplemented, CodeNotConfigured, "analytics are not configured")
		return
	}
	days, ok := queryInt(r, "days", 7)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "days must be a positive integer")
		return
	}
	lb, err := s.reports.LatencyBreakdown(r.Context(), days)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusNotImplemented, CodeNotConfigured, "analytics are not configured")
		return
	}
	days, ok := queryInt(r, "days", 7)
	top, ok2 := queryInt(r, "top", 10)
	if !ok || !ok2 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "days and top must be positive integers")
		return
	}
	sum, err := s.reports.Summary(r.Context(), days, top)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	out := map[string]any{"days": days, "activity": sum}
	if s.sessions != nil {
		stats, err := s.sessions.Ratings(r.Context())
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		out["ratings"] = map[string]any{
			"thumbs_up":     stats.Up,
			"thumbs_down":   stats.Down,
			"positive_rate": stats.PositiveRate(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}
