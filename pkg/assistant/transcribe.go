package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/haivivi/zoocari/pkg/timing"
)

// Transcribe turns a spoken question into text. The text is not checked;
// it goes through the input check when it is asked.
func (a *Assistant) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if a.transcriber == nil {
		return "", fmt.Errorf("%w: stt", ErrNotConfigured)
	}
	timer := timing.Start("transcribe")
	text, err := a.transcriber.Transcribe(ctx, audio)
	if err != nil {
		timer.End("error")
		return "", fmt.Errorf("assistant: transcribe: %w", err)
	}
	timer.End("ok")
	return strings.TrimSpace(text), nil
}
