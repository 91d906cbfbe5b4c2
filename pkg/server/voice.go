package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/haivivi/zoocari/pkg/assistant"
	"github.com/haivivi/zoocari/pkg/safety"
	"github.com/haivivi/zoocari/pkg/tts"
)

type transcript struct {
	Text string `json:"text"`
}

// handleSTT accepts audio as a multipart "audio" (or "file") part or as
// the raw request body.
func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxAudio)
	audio, err := readAudio(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, fmt.Sprintf("audio exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if len(audio) == 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "audio is required")
		return
	}
	text, err := s.assistant.Transcribe(r.Context(), audio)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transcript{Text: text})
}

func readAudio(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errors.New("missing audio part")
		}
		if err != nil {
			return nil, err
		}
		if name := part.FormName(); name == "audio" || name == "file" {
			return io.ReadAll(part)
		}
	}
}

type speakRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

// handleTTSWebSocket narrates each {text,voice,speed} message the client
// sends. Requests on one connection are served in order.
func (s *Server) handleTTSWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("server: websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	for {
		var req speakRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("server: websocket read", "err", err)
			}
			return
		}
		if err := s.speak(ctx, conn, req); err != nil {
			slog.Debug("server: websocket write", "err", err)
			return
		}
	}
}

func (s *Server) speak(ctx context.Context, conn *websocket.Conn, req speakRequest) error {
	events, err := s.assistant.Speak(ctx, req.Text, assistant.Voice{Name: req.Voice, Speed: req.Speed})
	if err != nil {
		return conn.WriteJSON(assistant.Event{Type: assistant.EventError, Content: speakFailure(err)})
	}
	for e := range events {
		if err := conn.WriteJSON(e); err != nil {
			return err
		}
	}
	return nil
}

func speakFailure(err error) string {
	switch {
	case errors.Is(err, tts.ErrEmptyText):
		return "text is required"
	case errors.Is(err, assistant.ErrNotConfigured):
		return "speech synthesis is not configured"
	case errors.Is(err, assistant.ErrRejected):
		return safety.SafeFallbackResponse
	default:
		slog.Warn("server: speak", "err", err)
		return assistant.UnavailableResponse
	}
}
