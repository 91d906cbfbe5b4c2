// Package server exposes an Assistant over HTTP.
//
// Routes:
//
//	GET  /health               provider availability per capability
//	POST /session              create a session
//	GET  /session/{id}         session metadata
//	POST /chat                 whole answer as JSON
//	POST /chat/stream          answer as server-sent events
//	POST /chat/voice/stream    narrated answer as server-sent events
//	POST /voice/stt            transcribe uploaded audio
//	POST /voice/tts/stream     narrated answer, audio events only
//	GET  /voice/tts/ws         narrate text over a WebSocket
//	POST /feedback/rating      thumbs up or down on an answer
//	GET  /analytics/latency    latency percentiles
//	GET  /analytics/summary    recent activity
//
// Streams carry one JSON event per SSE data line, in the shapes of
// assistant.Event.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/haivivi/zoocari/pkg/analytics"
	"github.com/haivivi/zoocari/pkg/assistant"
	"github.com/haivivi/zoocari/pkg/fallback"
	"github.com/haivivi/zoocari/pkg/session"
)

// DefaultMaxAudioBytes bounds uploads to /voice/stt.
const DefaultMaxAudioBytes = 25 << 20

const shutdownTimeout = 10 * time.Second

// Reports serves the analytics endpoints. *analytics.DuckDB implements it.
type Reports interface {
	LatencyBreakdown(ctx context.Context, days int) (*analytics.LatencyBreakdown, error)
	Summary(ctx context.Context, days, top int) (*analytics.Summary, error)
}

// Server routes HTTP requests to an Assistant.
type Server struct {
	assistant *assistant.Assistant
	sessions  *session.Store
	reports   Reports
	probes    map[fallback.Capability]*fallback.Probe
	origins   []string
	maxAudio  int64

	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithSessions enables the session and feedback routes. Chat requests
// must then name an existing session.
func WithSessions(s *session.Store) Option {
	return func(srv *Server) { srv.sessions = s }
}

// WithReports enables the analytics routes.
func WithReports(r Reports) Option {
	return func(srv *Server) { srv.reports = r }
}

// WithProbe reports the probe of a capability's local provider on
// /health. A nil probe is ignored.
func WithProbe(c fallback.Capability, p *fallback.Probe) Option {
	return func(srv *Server) {
		if p != nil {
			srv.probes[c] = p
		}
	}
}

// WithCORSOrigins allows browsers on these origins. "*" allows any.
func WithCORSOrigins(origins ...string) Option {
	return func(srv *Server) { srv.origins = origins }
}

// WithMaxAudioBytes bounds audio uploads.
func WithMaxAudioBytes(n int64) Option {
	return func(srv *Server) {
		if n > 0 {
			srv.maxAudio = n
		}
	}
}

// New creates a Server for a.
func New(a *assistant.Assistant, opts ...Option) *Server {
	s := &Server{
		assistant: a,
		probes:    make(map[fallback.Capability]*fallback.Probe),
		maxAudio:  DefaultMaxAudioBytes,
		mux:       http.NewServeMux(),
	}
	for _, o := range opts {
		o(s)
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /session", s.handleCreateSession)
	s.mux.HandleFunc("GET /session/{id}", s.handleGetSession)

	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("POST /chat/stream", s.handleChatStream)
	s.mux.HandleFunc("POST /chat/voice/stream", s.handleChatVoiceStream)

	s.mux.HandleFunc("POST /voice/stt", s.handleSTT)
	s.mux.HandleFunc("POST /voice/tts/stream", s.handleTTSStream)
	s.mux.HandleFunc("GET /voice/tts/ws", s.handleTTSWebSocket)

	s.mux.HandleFunc("POST /feedback/rating", s.handleRating)

	s.mux.HandleFunc("GET /analytics/latency", s.handleLatency)
	s.mux.HandleFunc("GET /analytics/summary", s.handleSummary)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && s.allowed(origin) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) allowed(origin string) bool {
	return slices.Contains(s.origins, "*") || slices.Contains(s.origins, origin)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || len(s.origins) == 0 || s.allowed(origin)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{Addr: addr, Handler: s}
	errCh := make(chan error, 1)
	go func() { errCh <- hs.ListenAndServe() }()

	slog.Info("server: listening", "addr", addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("server: shutting down")
		shutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := hs.Shutdown(shutdown); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Error codes of the JSON error body.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeNotFound        = "NOT_FOUND"
	CodeNotConfigured   = "NOT_CONFIGURED"
	CodeUnavailable     = "PROVIDER_UNAVAILABLE"
	CodeRejected        = "REJECTED"
	CodeInternal        = "INTERNAL"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("server: write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

// writeFailure maps err onto a status and error code.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var failed *fallback.AllProvidersFailedError
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, session.ErrInvalidID), errors.Is(err, session.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, assistant.ErrNotConfigured):
		writeError(w, http.StatusNotImplemented, CodeNotConfigured, err.Error())
	case errors.Is(err, assistant.ErrRejected):
		writeError(w, http.StatusUnprocessableEntity, CodeRejected, err.Error())
	case errors.As(err, &failed):
		slog.Error("server: providers failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, assistant.UnavailableResponse)
	default:
		slog.Error("server: request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

const maxJSONBytes = 1 << 20
