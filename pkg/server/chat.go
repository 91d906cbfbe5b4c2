package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/haivivi/zoocari/pkg/assistant"
	"github.com/haivivi/zoocari/pkg/session"
)

type chatRequest struct {
	SessionID string  `json:"session_id"`
	Message   string  `json:"message"`
	Voice     string  `json:"voice,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
}

// readChat decodes a chat request and checks its session. It writes the
// error response itself and reports whether to continue.
func (s *Server) readChat(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if !decode(w, r, &req) {
		return req, false
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "message is required")
		return req, false
	}
	if s.sessions == nil {
		return req, true
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "session_id is required")
		return req, false
	}
	if _, err := s.sessions.Get(r.Context(), req.SessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, CodeSessionNotFound, fmt.Sprintf("Session %s not found", req.SessionID))
			return req, false
		}
		writeFailure(w, r, err)
		return req, false
	}
	return req, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readChat(w, r)
	if !ok {
		return
	}
	reply, err := s.assistant.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readChat(w, r)
	if !ok {
		return
	}
	s.streamEvents(w, r, s.assistant.ChatStream(r.Context(), req.SessionID, req.Message), nil)
}

func (s *Server) handleChatVoiceStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readChat(w, r)
	if !ok {
		return
	}
	v := assistant.Voice{Name: req.Voice, Speed: req.Speed}
	s.streamEvents(w, r, s.assistant.ChatVoiceStream(r.Context(), req.SessionID, req.Message, v), nil)
}

// handleTTSStream narrates an answer without its text events.
func (s *Server) handleTTSStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readChat(w, r)
	if !ok {
		return
	}
	v := assistant.Voice{Name: req.Voice, Speed: req.Speed}
	audioOnly := func(e assistant.Event) bool { return e.Type != assistant.EventText }
	s.streamEvents(w, r, s.assistant.ChatVoiceStream(r.Context(), req.SessionID, req.Message, v), audioOnly)
}

// streamEvents writes events as server-sent events. A write failure stops
// the stream, which cancels generation and synthesis.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, events iter.Seq[assistant.Event], keep func(assistant.Event) bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, CodeInternal, "streaming unsupported")
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for e := range events {
		if keep != nil && !keep(e) {
			continue
		}
		data, err := json.Marshal(e)
		if err != nil {
			slog.Error("server: encode event", "type", e.Type, "err", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			slog.Debug("server: client went away", "path", r.URL.Path, "err", err)
			return
		}
		flusher.Flush()
	}
}
